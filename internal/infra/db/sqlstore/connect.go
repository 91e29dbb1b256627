// Package sqlstore persists projects and jobs in MySQL, Postgres or SQLite.
// Queries are written with ? placeholders and rebound per dialect.
package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	"github.com/pkg/errors"
	_ "modernc.org/sqlite"
)

type Dialect string

const (
	MySQL    Dialect = "mysql"
	Postgres Dialect = "postgres"
	SQLite   Dialect = "sqlite"
)

// DB is a *sql.DB bound to its dialect.
type DB struct {
	*sql.DB
	Dialect Dialect
}

func Connect(ctx context.Context, dialect Dialect, dsn string) (*DB, error) {
	driver := string(dialect)
	switch dialect {
	case MySQL, Postgres, SQLite:
	default:
		return nil, errors.Errorf("unsupported database driver %q", dialect)
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", dialect)
	}
	if dialect == SQLite {
		// a single connection serializes writers and keeps :memory: databases shared
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(10)
		db.SetConnMaxLifetime(30 * time.Minute)
	}

	// test ping
	ctx2, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx2); err != nil {
		db.Close()
		return nil, errors.Wrapf(err, "ping %s", dialect)
	}
	return &DB{DB: db, Dialect: dialect}, nil
}

// Check implements the readiness probe.
func (db *DB) Check(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return db.PingContext(ctx)
}

// rebind rewrites ? placeholders to $n for Postgres.
func (db *DB) rebind(q string) string {
	if db.Dialect != Postgres {
		return q
	}
	var sb strings.Builder
	n := 0
	for _, r := range q {
		if r == '?' {
			n++
			sb.WriteByte('$')
			sb.WriteString(strconv.Itoa(n))
			continue
		}
		sb.WriteRune(r)
	}
	return sb.String()
}

// Migrate creates the tables when missing.
func (db *DB) Migrate(ctx context.Context) error {
	for i, stmt := range schema(db.Dialect) {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return errors.Wrapf(err, "migration step %d", i+1)
		}
	}
	return nil
}

func schema(d Dialect) []string {
	text := "TEXT"
	if d == MySQL {
		text = "LONGTEXT"
	}
	projects := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS review_projects (
  id VARCHAR(36) NOT NULL PRIMARY KEY,
  name VARCHAR(200) NOT NULL,
  source VARCHAR(16) NOT NULL,
  owner VARCHAR(128) NOT NULL DEFAULT '',
  repo_url VARCHAR(1024) NOT NULL DEFAULT '',
  branch VARCHAR(255) NOT NULL DEFAULT '',
  commit_sha VARCHAR(64) NOT NULL DEFAULT '',
  created_at VARCHAR(40) NOT NULL,
  materialized_at VARCHAR(40) NULL%s
)`, mysqlIndex(d, "idx_review_projects_owner (owner, created_at)"))
	jobs := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS review_jobs (
  id VARCHAR(36) NOT NULL PRIMARY KEY,
  project_id VARCHAR(36) NOT NULL,
  owner VARCHAR(128) NOT NULL DEFAULT '',
  status VARCHAR(16) NOT NULL,
  created_at VARCHAR(40) NOT NULL,
  started_at VARCHAR(40) NULL,
  finished_at VARCHAR(40) NULL,
  results_json %s NULL,
  error_text %s NULL%s%s
)`, text, text,
		mysqlIndex(d, "idx_review_jobs_project (project_id, created_at)"),
		mysqlIndex(d, "idx_review_jobs_status (status)"))

	stmts := []string{projects, jobs}
	if d != MySQL {
		stmts = append(stmts,
			`CREATE INDEX IF NOT EXISTS idx_review_projects_owner ON review_projects (owner, created_at)`,
			`CREATE INDEX IF NOT EXISTS idx_review_jobs_project ON review_jobs (project_id, created_at)`,
			`CREATE INDEX IF NOT EXISTS idx_review_jobs_status ON review_jobs (status)`,
		)
	}
	return stmts
}

// MySQL has no CREATE INDEX IF NOT EXISTS, so its indexes live in the table DDL.
func mysqlIndex(d Dialect, def string) string {
	if d != MySQL {
		return ""
	}
	return ",\n  INDEX " + def
}
