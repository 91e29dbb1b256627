package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"

	"github.com/pkg/errors"

	"github.com/bryanwahyu/automaton-review/internal/domain/apperr"
	domain "github.com/bryanwahyu/automaton-review/internal/domain/jobs"
)

const jobColumns = `id, project_id, owner, status, created_at, started_at, finished_at, results_json, error_text`

type JobRepository struct {
	db *DB
}

func NewJobRepository(db *DB) *JobRepository {
	return &JobRepository{db: db}
}

func (r *JobRepository) Create(ctx context.Context, j *domain.Job) error {
	results, err := encodeResults(j.Results)
	if err != nil {
		return err
	}
	const q = `INSERT INTO review_jobs (` + jobColumns + `) VALUES (?,?,?,?,?,?,?,?,?)`
	_, err = r.db.ExecContext(ctx, r.db.rebind(q),
		string(j.ID), j.ProjectID, j.Owner, string(j.Status), formatTime(j.CreatedAt),
		nullTime(j.StartedAt), nullTime(j.FinishedAt), results, nullString(j.Error),
	)
	return errors.Wrap(err, "insert job")
}

func (r *JobRepository) Get(ctx context.Context, id domain.ID) (*domain.Job, error) {
	const q = `SELECT ` + jobColumns + ` FROM review_jobs WHERE id=?`
	j, err := scanJob(r.db.QueryRowContext(ctx, r.db.rebind(q), string(id)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.Wrapf(apperr.ErrNotFound, "job %s", id)
	}
	return j, err
}

func (r *JobRepository) List(ctx context.Context, f domain.ListFilter) ([]*domain.Job, error) {
	var (
		where []string
		args  []any
	)
	if f.ProjectID != "" {
		where = append(where, "project_id=?")
		args = append(args, f.ProjectID)
	}
	if f.Owner != "" {
		where = append(where, "owner=?")
		args = append(args, f.Owner)
	}
	q := `SELECT ` + jobColumns + ` FROM review_jobs`
	if len(where) > 0 {
		q += ` WHERE ` + strings.Join(where, " AND ")
	}
	// ids are UUIDv7, so id breaks created_at ties in creation order
	q += ` ORDER BY created_at DESC, id DESC LIMIT ?`
	args = append(args, clampLimit(f.Limit))
	return r.query(ctx, q, args...)
}

func (r *JobRepository) ListByStatus(ctx context.Context, statuses ...domain.Status) ([]*domain.Job, error) {
	if len(statuses) == 0 {
		return []*domain.Job{}, nil
	}
	args := make([]any, len(statuses))
	for i, s := range statuses {
		args[i] = string(s)
	}
	q := `SELECT ` + jobColumns + ` FROM review_jobs WHERE status IN (?` +
		strings.Repeat(",?", len(statuses)-1) + `) ORDER BY created_at ASC, id ASC`
	return r.query(ctx, q, args...)
}

// Transition is a compare-and-set on status; the terminal payload is written
// in the same statement.
func (r *JobRepository) Transition(ctx context.Context, next *domain.Job, from domain.Status) error {
	results, err := encodeResults(next.Results)
	if err != nil {
		return err
	}
	const q = `UPDATE review_jobs
SET status=?, started_at=?, finished_at=?, results_json=?, error_text=?
WHERE id=? AND status=?`
	res, err := r.db.ExecContext(ctx, r.db.rebind(q),
		string(next.Status), nullTime(next.StartedAt), nullTime(next.FinishedAt), results, nullString(next.Error),
		string(next.ID), string(from),
	)
	if err != nil {
		return errors.Wrap(err, "update job")
	}
	if n, err := res.RowsAffected(); err == nil && n == 1 {
		return nil
	}
	cur, err := r.Get(ctx, next.ID)
	if err != nil {
		return err
	}
	return errors.Wrapf(apperr.ErrConflict, "job %s is %s, not %s", next.ID, cur.Status, from)
}

func (r *JobRepository) query(ctx context.Context, q string, args ...any) ([]*domain.Job, error) {
	rows, err := r.db.QueryContext(ctx, r.db.rebind(q), args...)
	if err != nil {
		return nil, errors.Wrap(err, "query jobs")
	}
	defer rows.Close()

	out := []*domain.Job{}
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, j)
	}
	return out, errors.Wrap(rows.Err(), "query jobs")
}

func scanJob(row rowScanner) (*domain.Job, error) {
	var (
		j                 domain.Job
		id, status        string
		created           string
		started, finished sql.NullString
		results, errText  sql.NullString
	)
	if err := row.Scan(&id, &j.ProjectID, &j.Owner, &status, &created, &started, &finished, &results, &errText); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, errors.Wrap(err, "scan job")
	}
	j.ID = domain.ID(id)
	j.Status = domain.Status(status)

	var err error
	if j.CreatedAt, err = parseTime(created); err != nil {
		return nil, err
	}
	if j.StartedAt, err = parseNullTime(started); err != nil {
		return nil, err
	}
	if j.FinishedAt, err = parseNullTime(finished); err != nil {
		return nil, err
	}
	if results.Valid && results.String != "" {
		var res domain.AnalysisResult
		if err := json.Unmarshal([]byte(results.String), &res); err != nil {
			return nil, errors.Wrapf(err, "decode results of job %s", id)
		}
		j.Results = &res
	}
	if errText.Valid {
		msg := errText.String
		j.Error = &msg
	}
	return &j, nil
}

func encodeResults(res *domain.AnalysisResult) (sql.NullString, error) {
	if res == nil {
		return sql.NullString{}, nil
	}
	b, err := json.Marshal(res)
	if err != nil {
		return sql.NullString{}, errors.Wrap(err, "encode results")
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}
