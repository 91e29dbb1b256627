package projects

import (
	"context"
	"time"
)

// Repository port (interface untuk persistence)
type Repository interface {
	Create(ctx context.Context, p *Project) error
	// Get returns apperr.ErrNotFound for unknown ids.
	Get(ctx context.Context, id string) (*Project, error)
	// List returns the newest projects first; an empty owner lists all.
	List(ctx context.Context, owner string, limit int) ([]*Project, error)
	// MarkMaterialized stamps the project once. A second call returns
	// apperr.ErrConflict.
	MarkMaterialized(ctx context.Context, id string, at time.Time, commitSHA string) error
	// Delete removes a project whose source never arrived. Unknown ids
	// return apperr.ErrNotFound.
	Delete(ctx context.Context, id string) error
}
