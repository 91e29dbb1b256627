package jobs

import (
	"fmt"
	"time"

	"github.com/bryanwahyu/automaton-review/internal/domain/apperr"
	"github.com/bryanwahyu/automaton-review/internal/domain/findings"
)

// New returns a pending job.
func New(id ID, projectID, owner string, now time.Time) *Job {
	return &Job{
		ID:        id,
		ProjectID: projectID,
		Owner:     owner,
		Status:    StatusPending,
		CreatedAt: now,
	}
}

// Start returns the running copy of a pending job.
func (j *Job) Start(now time.Time) (*Job, error) {
	if j.Status != StatusPending {
		return nil, invalidTransition(j.Status, StatusRunning)
	}
	next := *j
	next.Status = StatusRunning
	next.StartedAt = &now
	return &next, nil
}

// Complete returns the done copy of a running job carrying res.
func (j *Job) Complete(now time.Time, res *AnalysisResult) (*Job, error) {
	if j.Status != StatusRunning {
		return nil, invalidTransition(j.Status, StatusDone)
	}
	if res == nil {
		return nil, fmt.Errorf("%w: done requires a result", apperr.ErrInternal)
	}
	if res.VPoints == nil {
		res.VPoints = []findings.Finding{}
	}
	if res.Tools == nil {
		res.Tools = []ToolReport{}
	}
	next := *j
	next.Status = StatusDone
	next.FinishedAt = &now
	next.Results = res
	next.Error = nil
	return &next, nil
}

// Fail returns the error copy of a pending or running job.
func (j *Job) Fail(now time.Time, msg string) (*Job, error) {
	if j.Status.Terminal() {
		return nil, invalidTransition(j.Status, StatusError)
	}
	if msg == "" {
		msg = "analysis failed"
	}
	next := *j
	next.Status = StatusError
	next.FinishedAt = &now
	next.Results = nil
	next.Error = &msg
	return &next, nil
}

// CheckInvariants reports whether results/error agree with status.
func (j *Job) CheckInvariants() error {
	if !j.Status.Valid() {
		return fmt.Errorf("unknown status %q", j.Status)
	}
	switch j.Status {
	case StatusDone:
		if j.Results == nil || j.Error != nil {
			return fmt.Errorf("done job %s must carry results only", j.ID)
		}
	case StatusError:
		if j.Error == nil || j.Results != nil {
			return fmt.Errorf("error job %s must carry an error only", j.ID)
		}
	default:
		if j.Results != nil || j.Error != nil {
			return fmt.Errorf("%s job %s must carry neither results nor error", j.Status, j.ID)
		}
	}
	return nil
}

func invalidTransition(from, to Status) error {
	return fmt.Errorf("%w: job cannot move from %s to %s", apperr.ErrConflict, from, to)
}
