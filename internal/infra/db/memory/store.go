// Package memory keeps projects and jobs in process memory. It backs the
// "memory" database driver and tests; nothing survives a restart.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/bryanwahyu/automaton-review/internal/domain/apperr"
	"github.com/bryanwahyu/automaton-review/internal/domain/jobs"
	"github.com/bryanwahyu/automaton-review/internal/domain/projects"
)

type ProjectRepository struct {
	mu    sync.RWMutex
	items map[string]projects.Project
}

func NewProjectRepository() *ProjectRepository {
	return &ProjectRepository{items: map[string]projects.Project{}}
}

func (r *ProjectRepository) Create(_ context.Context, p *projects.Project) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.items[p.ID]; ok {
		return fmt.Errorf("%w: project %s exists", apperr.ErrConflict, p.ID)
	}
	r.items[p.ID] = *p
	return nil
}

func (r *ProjectRepository) Get(_ context.Context, id string) (*projects.Project, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.items[id]
	if !ok {
		return nil, fmt.Errorf("%w: project %s", apperr.ErrNotFound, id)
	}
	return &p, nil
}

func (r *ProjectRepository) List(_ context.Context, owner string, limit int) ([]*projects.Project, error) {
	r.mu.RLock()
	out := []*projects.Project{}
	for _, p := range r.items {
		if owner != "" && p.Owner != owner {
			continue
		}
		p := p
		out = append(out, &p)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		// UUIDv7 ids sort in creation order
		return out[i].ID > out[j].ID
	})
	return out[:min(len(out), clampLimit(limit))], nil
}

func (r *ProjectRepository) MarkMaterialized(_ context.Context, id string, at time.Time, commitSHA string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.items[id]
	if !ok {
		return fmt.Errorf("%w: project %s", apperr.ErrNotFound, id)
	}
	if p.MaterializedAt != nil {
		return fmt.Errorf("%w: project %s already materialized", apperr.ErrConflict, id)
	}
	p.MaterializedAt = &at
	p.CommitSHA = commitSHA
	r.items[id] = p
	return nil
}

func (r *ProjectRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.items[id]; !ok {
		return fmt.Errorf("%w: project %s", apperr.ErrNotFound, id)
	}
	delete(r.items, id)
	return nil
}

// JobRepository stores jobs as encoded snapshots so callers never share
// memory with the stored value.
type JobRepository struct {
	mu    sync.RWMutex
	items map[jobs.ID][]byte
}

func NewJobRepository() *JobRepository {
	return &JobRepository{items: map[jobs.ID][]byte{}}
}

func (r *JobRepository) Create(_ context.Context, j *jobs.Job) error {
	b, err := json.Marshal(j)
	if err != nil {
		return fmt.Errorf("encode job: %w", err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.items[j.ID]; ok {
		return fmt.Errorf("%w: job %s exists", apperr.ErrConflict, j.ID)
	}
	r.items[j.ID] = b
	return nil
}

func (r *JobRepository) Get(_ context.Context, id jobs.ID) (*jobs.Job, error) {
	r.mu.RLock()
	b, ok := r.items[id]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: job %s", apperr.ErrNotFound, id)
	}
	return decode(b)
}

func (r *JobRepository) List(_ context.Context, f jobs.ListFilter) ([]*jobs.Job, error) {
	out, err := r.filter(func(j *jobs.Job) bool {
		return (f.ProjectID == "" || j.ProjectID == f.ProjectID) && (f.Owner == "" || j.Owner == f.Owner)
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		// UUIDv7 ids sort in creation order
		return out[i].ID > out[j].ID
	})
	return out[:min(len(out), clampLimit(f.Limit))], nil
}

func (r *JobRepository) ListByStatus(_ context.Context, statuses ...jobs.Status) ([]*jobs.Job, error) {
	want := map[jobs.Status]bool{}
	for _, s := range statuses {
		want[s] = true
	}
	out, err := r.filter(func(j *jobs.Job) bool { return want[j.Status] })
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (r *JobRepository) Transition(_ context.Context, next *jobs.Job, from jobs.Status) error {
	b, err := json.Marshal(next)
	if err != nil {
		return fmt.Errorf("encode job: %w", err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.items[next.ID]
	if !ok {
		return fmt.Errorf("%w: job %s", apperr.ErrNotFound, next.ID)
	}
	stored, err := decode(cur)
	if err != nil {
		return err
	}
	if stored.Status != from {
		return fmt.Errorf("%w: job %s is %s, not %s", apperr.ErrConflict, next.ID, stored.Status, from)
	}
	r.items[next.ID] = b
	return nil
}

func (r *JobRepository) filter(keep func(*jobs.Job) bool) ([]*jobs.Job, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := []*jobs.Job{}
	for _, b := range r.items {
		j, err := decode(b)
		if err != nil {
			return nil, err
		}
		if keep(j) {
			out = append(out, j)
		}
	}
	return out, nil
}

func decode(b []byte) (*jobs.Job, error) {
	var j jobs.Job
	if err := json.Unmarshal(b, &j); err != nil {
		return nil, fmt.Errorf("decode job: %w", err)
	}
	return &j, nil
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return 20
	}
	if limit > 100 {
		return 100
	}
	return limit
}
