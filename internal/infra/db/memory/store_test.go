package memory

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bryanwahyu/automaton-review/internal/domain/apperr"
	"github.com/bryanwahyu/automaton-review/internal/domain/jobs"
	"github.com/bryanwahyu/automaton-review/internal/domain/projects"
)

func TestJobsAreIsolatedCopies(t *testing.T) {
	ctx := context.Background()
	repo := NewJobRepository()
	j := jobs.New("j1", "p1", "", time.Now().UTC())
	require.NoError(t, repo.Create(ctx, j))

	j.Status = jobs.StatusDone
	got, err := repo.Get(ctx, "j1")
	require.NoError(t, err)
	assert.Equal(t, jobs.StatusPending, got.Status)

	got.Status = jobs.StatusError
	again, _ := repo.Get(ctx, "j1")
	assert.Equal(t, jobs.StatusPending, again.Status)

	assert.ErrorIs(t, repo.Create(ctx, again), apperr.ErrConflict)
}

func TestTransitionSingleWinner(t *testing.T) {
	ctx := context.Background()
	repo := NewJobRepository()
	j := jobs.New("j1", "p1", "", time.Now().UTC())
	require.NoError(t, repo.Create(ctx, j))
	running, _ := j.Start(time.Now().UTC())

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if repo.Transition(ctx, running, jobs.StatusPending) == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, wins)
}

func TestProjectListClamp(t *testing.T) {
	ctx := context.Background()
	repo := NewProjectRepository()
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 130; i++ {
		require.NoError(t, repo.Create(ctx, &projects.Project{
			ID: fmt.Sprintf("p%03d", i), Name: "n", Source: projects.SourceUpload, CreatedAt: base.Add(time.Duration(i) * time.Second),
		}))
	}

	def, err := repo.List(ctx, "", 0)
	require.NoError(t, err)
	assert.Len(t, def, 20)
	assert.Equal(t, "p129", def[0].ID)

	capped, err := repo.List(ctx, "", 1000)
	require.NoError(t, err)
	assert.Len(t, capped, 100)
}
