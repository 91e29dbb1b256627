package jobs

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bryanwahyu/automaton-review/internal/domain/apperr"
)

var t0 = time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

func TestLifecycleDone(t *testing.T) {
	j := New("j1", "p1", "alice", t0)
	require.NoError(t, j.CheckInvariants())
	assert.Equal(t, StatusPending, j.Status)

	running, err := j.Start(t0.Add(time.Second))
	require.NoError(t, err)
	assert.Equal(t, StatusPending, j.Status, "Start returns a copy")
	assert.Equal(t, StatusRunning, running.Status)
	require.NotNil(t, running.StartedAt)
	require.NoError(t, running.CheckInvariants())

	done, err := running.Complete(t0.Add(time.Minute), &AnalysisResult{ProjectID: "p1"})
	require.NoError(t, err)
	assert.Equal(t, StatusDone, done.Status)
	require.NotNil(t, done.Results)
	assert.NotNil(t, done.Results.VPoints)
	assert.NotNil(t, done.Results.Tools)
	assert.Nil(t, done.Error)
	require.NoError(t, done.CheckInvariants())
}

func TestLifecycleError(t *testing.T) {
	j := New("j1", "p1", "", t0)

	failed, err := j.Fail(t0, "")
	require.NoError(t, err, "pending jobs may fail directly")
	require.NotNil(t, failed.Error)
	assert.Equal(t, "analysis failed", *failed.Error)
	assert.Nil(t, failed.Results)
	require.NoError(t, failed.CheckInvariants())
}

func TestTerminalStatesAreFinal(t *testing.T) {
	running, _ := New("j1", "p1", "", t0).Start(t0)
	done, err := running.Complete(t0, &AnalysisResult{})
	require.NoError(t, err)
	failed, err := running.Fail(t0, "boom")
	require.NoError(t, err)

	for _, j := range []*Job{done, failed} {
		_, err := j.Start(t0)
		assert.ErrorIs(t, err, apperr.ErrConflict)
		_, err = j.Complete(t0, &AnalysisResult{})
		assert.ErrorIs(t, err, apperr.ErrConflict)
		_, err = j.Fail(t0, "again")
		assert.ErrorIs(t, err, apperr.ErrConflict)
	}
}

func TestInvalidMoves(t *testing.T) {
	pending := New("j1", "p1", "", t0)
	_, err := pending.Complete(t0, &AnalysisResult{})
	assert.ErrorIs(t, err, apperr.ErrConflict, "pending cannot skip running")

	running, _ := pending.Start(t0)
	_, err = running.Start(t0)
	assert.ErrorIs(t, err, apperr.ErrConflict)
	_, err = running.Complete(t0, nil)
	assert.ErrorIs(t, err, apperr.ErrInternal)
}

func TestCheckInvariants(t *testing.T) {
	msg := "x"
	tests := []struct {
		name string
		job  Job
		ok   bool
	}{
		{"pending clean", Job{Status: StatusPending}, true},
		{"pending with error", Job{Status: StatusPending, Error: &msg}, false},
		{"running with results", Job{Status: StatusRunning, Results: &AnalysisResult{}}, false},
		{"done without results", Job{Status: StatusDone}, false},
		{"done with both", Job{Status: StatusDone, Results: &AnalysisResult{}, Error: &msg}, false},
		{"error without message", Job{Status: StatusError}, false},
		{"error ok", Job{Status: StatusError, Error: &msg}, true},
		{"unknown status", Job{Status: "queued"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.job.CheckInvariants()
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}
