package jobs

import "context"

// Repository port (interface untuk persistence)
type Repository interface {
	Create(ctx context.Context, j *Job) error
	// Get returns apperr.ErrNotFound for unknown ids.
	Get(ctx context.Context, id ID) (*Job, error)
	// List returns the newest jobs first.
	List(ctx context.Context, f ListFilter) ([]*Job, error)
	ListByStatus(ctx context.Context, statuses ...Status) ([]*Job, error)
	// Transition atomically replaces the stored job with next, but only if
	// its stored status is still from. It returns apperr.ErrConflict when
	// the status moved on and apperr.ErrNotFound for unknown ids.
	Transition(ctx context.Context, next *Job, from Status) error
}

// ListFilter narrows List. Empty fields match everything.
type ListFilter struct {
	ProjectID string
	Owner     string
	Limit     int
}
