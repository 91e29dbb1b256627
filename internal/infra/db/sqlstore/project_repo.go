package sqlstore

import (
	"context"
	"database/sql"
	"time"

	"github.com/pkg/errors"

	"github.com/bryanwahyu/automaton-review/internal/domain/apperr"
	domain "github.com/bryanwahyu/automaton-review/internal/domain/projects"
)

const projectColumns = `id, name, source, owner, repo_url, branch, commit_sha, created_at, materialized_at`

type ProjectRepository struct {
	db *DB
}

func NewProjectRepository(db *DB) *ProjectRepository {
	return &ProjectRepository{db: db}
}

func (r *ProjectRepository) Create(ctx context.Context, p *domain.Project) error {
	const q = `INSERT INTO review_projects (` + projectColumns + `) VALUES (?,?,?,?,?,?,?,?,?)`
	_, err := r.db.ExecContext(ctx, r.db.rebind(q),
		p.ID, p.Name, string(p.Source), p.Owner, p.RepoURL, p.Branch, p.CommitSHA,
		formatTime(p.CreatedAt), nullTime(p.MaterializedAt),
	)
	return errors.Wrap(err, "insert project")
}

func (r *ProjectRepository) Get(ctx context.Context, id string) (*domain.Project, error) {
	const q = `SELECT ` + projectColumns + ` FROM review_projects WHERE id=?`
	p, err := scanProject(r.db.QueryRowContext(ctx, r.db.rebind(q), id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.Wrapf(apperr.ErrNotFound, "project %s", id)
	}
	return p, err
}

func (r *ProjectRepository) List(ctx context.Context, owner string, limit int) ([]*domain.Project, error) {
	q := `SELECT ` + projectColumns + ` FROM review_projects`
	var args []any
	if owner != "" {
		q += ` WHERE owner=?`
		args = append(args, owner)
	}
	// ids are UUIDv7, so id breaks created_at ties in creation order
	q += ` ORDER BY created_at DESC, id DESC LIMIT ?`
	args = append(args, clampLimit(limit))

	rows, err := r.db.QueryContext(ctx, r.db.rebind(q), args...)
	if err != nil {
		return nil, errors.Wrap(err, "list projects")
	}
	defer rows.Close()

	out := []*domain.Project{}
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, errors.Wrap(rows.Err(), "list projects")
}

func (r *ProjectRepository) MarkMaterialized(ctx context.Context, id string, at time.Time, commitSHA string) error {
	const q = `UPDATE review_projects SET materialized_at=?, commit_sha=? WHERE id=? AND materialized_at IS NULL`
	res, err := r.db.ExecContext(ctx, r.db.rebind(q), formatTime(at), commitSHA, id)
	if err != nil {
		return errors.Wrap(err, "mark materialized")
	}
	if n, err := res.RowsAffected(); err == nil && n == 1 {
		return nil
	}
	if _, err := r.Get(ctx, id); err != nil {
		return err
	}
	return errors.Wrapf(apperr.ErrConflict, "project %s already materialized", id)
}

func (r *ProjectRepository) Delete(ctx context.Context, id string) error {
	const q = `DELETE FROM review_projects WHERE id=?`
	res, err := r.db.ExecContext(ctx, r.db.rebind(q), id)
	if err != nil {
		return errors.Wrap(err, "delete project")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return errors.Wrapf(apperr.ErrNotFound, "project %s", id)
	}
	return nil
}

func scanProject(row rowScanner) (*domain.Project, error) {
	var (
		p            domain.Project
		source       string
		created      string
		materialized sql.NullString
	)
	if err := row.Scan(&p.ID, &p.Name, &source, &p.Owner, &p.RepoURL, &p.Branch, &p.CommitSHA, &created, &materialized); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, errors.Wrap(err, "scan project")
	}
	p.Source = domain.Source(source)
	var err error
	if p.CreatedAt, err = parseTime(created); err != nil {
		return nil, err
	}
	if p.MaterializedAt, err = parseNullTime(materialized); err != nil {
		return nil, err
	}
	return &p, nil
}
