// Package workspace owns the on-disk project trees. A tree becomes visible
// under Root/<projectID> only once it is complete: archives and clones are
// filled into a staging directory and renamed into place.
package workspace

import (
	"context"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/google/uuid"
	"github.com/mholt/archives"
	"github.com/pkg/errors"

	"github.com/bryanwahyu/automaton-review/internal/domain/apperr"
)

// DefaultExcludes are skipped on extraction and when counting files.
var DefaultExcludes = []string{
	".git/**",
	"**/.git/**",
	"**/__pycache__/**",
	"**/node_modules/**",
	"**/.venv/**",
	"**/venv/**",
	"**/*.pyc",
	"__MACOSX/**",
}

const (
	defaultMaxFileBytes      = 512 << 10
	defaultMaxExtractedBytes = 512 << 20
)

type Store struct {
	Root     string
	Excludes []string
	// MaxFileBytes bounds ReadFile.
	MaxFileBytes int64
	// MaxExtractedBytes bounds the total size of an extracted archive.
	MaxExtractedBytes int64
}

func New(root string) (*Store, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, errors.Wrap(err, "projects dir")
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, errors.Wrap(err, "create projects dir")
	}
	return &Store{Root: abs, Excludes: DefaultExcludes}, nil
}

// Path returns the tree location of a project. Ids must be UUIDs.
func (s *Store) Path(projectID string) (string, error) {
	if _, err := uuid.Parse(projectID); err != nil {
		return "", errors.Wrapf(apperr.ErrNotFound, "project %q", projectID)
	}
	return filepath.Join(s.Root, projectID), nil
}

// Exists reports whether the project tree has been materialized.
func (s *Store) Exists(projectID string) bool {
	p, err := s.Path(projectID)
	if err != nil {
		return false
	}
	fi, err := os.Stat(p)
	return err == nil && fi.IsDir()
}

// MaterializeArchive extracts a zip (or any format mholt/archives
// recognizes) as the project tree and returns the number of files written.
func (s *Store) MaterializeArchive(ctx context.Context, projectID, archivePath string) (int, error) {
	return s.publish(ctx, projectID, true, func(dir string) error {
		return s.extract(ctx, archivePath, dir)
	})
}

// MaterializeDir lets fill populate a staging directory, then publishes it
// as the project tree. A tree that already exists is never replaced.
func (s *Store) MaterializeDir(ctx context.Context, projectID string, fill func(dir string) error) (int, error) {
	return s.publish(ctx, projectID, false, fill)
}

func (s *Store) publish(ctx context.Context, projectID string, unwrap bool, fill func(dir string) error) (int, error) {
	final, err := s.Path(projectID)
	if err != nil {
		return 0, err
	}
	if s.Exists(projectID) {
		return 0, errors.Wrapf(apperr.ErrConflict, "project %s already has a source tree", projectID)
	}

	staging, err := os.MkdirTemp(s.Root, ".staging-"+projectID+"-")
	if err != nil {
		return 0, errors.Wrap(err, "create staging dir")
	}
	defer os.RemoveAll(staging)

	if err := fill(staging); err != nil {
		return 0, err
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	src := staging
	if unwrap {
		src = singleTopDir(staging)
	}
	n, err := s.countFiles(src)
	if err != nil {
		return 0, err
	}
	if err := os.Rename(src, final); err != nil {
		if os.IsExist(err) || s.Exists(projectID) {
			return 0, errors.Wrapf(apperr.ErrConflict, "project %s already has a source tree", projectID)
		}
		return 0, errors.Wrap(err, "publish tree")
	}
	return n, nil
}

// Remove deletes a published tree. A missing tree is not an error.
func (s *Store) Remove(projectID string) error {
	p, err := s.Path(projectID)
	if err != nil {
		return err
	}
	return errors.Wrap(os.RemoveAll(p), "remove tree")
}

// checkArchive rejects files that are not an extractable archive; FileSystem
// would otherwise serve a plain file as a one-entry tree.
func checkArchive(ctx context.Context, archivePath string) error {
	f, err := os.Open(archivePath)
	if err != nil {
		return errors.Wrap(err, "open archive")
	}
	defer f.Close()
	format, _, err := archives.Identify(ctx, archivePath, f)
	if err != nil {
		return errors.Wrapf(apperr.ErrInvalidInput, "unrecognized archive: %v", err)
	}
	if _, ok := format.(archives.Extractor); !ok {
		return errors.Wrapf(apperr.ErrInvalidInput, "%s is not an archive", format.Extension())
	}
	return nil
}

func (s *Store) extract(ctx context.Context, archivePath, dest string) error {
	if err := checkArchive(ctx, archivePath); err != nil {
		return err
	}
	fsys, err := archives.FileSystem(ctx, archivePath, nil)
	if err != nil {
		return errors.Wrapf(apperr.ErrInvalidInput, "unreadable archive: %v", err)
	}

	limit := s.MaxExtractedBytes
	if limit <= 0 {
		limit = defaultMaxExtractedBytes
	}
	var written int64

	return fs.WalkDir(fsys, ".", func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return errors.Wrapf(apperr.ErrInvalidInput, "unreadable archive entry %s: %v", path, err)
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if path == "." {
			return nil
		}
		if s.excluded(path, d.IsDir()) {
			if d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if d.IsDir() || !d.Type().IsRegular() {
			// symlinks and devices are dropped
			return nil
		}
		if !fs.ValidPath(path) {
			return errors.Wrapf(apperr.ErrInvalidPath, "archive entry %q", path)
		}

		reader, err := fsys.Open(path)
		if err != nil {
			return errors.Wrapf(err, "open %s", path)
		}
		defer reader.Close()

		destPath := filepath.Join(dest, filepath.FromSlash(path))
		if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
			return errors.Wrap(err, "mkdir")
		}
		outFile, err := os.OpenFile(destPath, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0o644)
		if err != nil {
			return errors.Wrapf(err, "create %s", path)
		}
		defer outFile.Close()

		n, err := io.Copy(outFile, io.LimitReader(reader, limit-written+1))
		written += n
		if err != nil {
			return errors.Wrapf(err, "extract %s", path)
		}
		if written > limit {
			return errors.Wrapf(apperr.ErrTooLarge, "archive expands beyond %d bytes", limit)
		}
		return nil
	})
}

// singleTopDir unwraps archives whose content sits in one top-level folder,
// as GitHub zip downloads do.
func singleTopDir(dir string) string {
	entries, err := os.ReadDir(dir)
	if err != nil || len(entries) != 1 || !entries[0].IsDir() {
		return dir
	}
	return filepath.Join(dir, entries[0].Name())
}

// excluded matches rel against the exclude globs. A directory also matches
// when a file directly inside it would.
func (s *Store) excluded(rel string, dir bool) bool {
	rel = filepath.ToSlash(rel)
	for _, pattern := range s.Excludes {
		if ok, _ := doublestar.Match(pattern, rel); ok {
			return true
		}
		if dir {
			if ok, _ := doublestar.Match(pattern, rel+"/_"); ok {
				return true
			}
		}
	}
	return false
}

func (s *Store) countFiles(root string) (int, error) {
	n := 0
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, _ := filepath.Rel(root, path)
		if rel == "." {
			return nil
		}
		if s.excluded(rel, d.IsDir()) {
			if d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if d.Type().IsRegular() {
			n++
		}
		return nil
	})
	if err != nil {
		return 0, errors.Wrap(err, "walk tree")
	}
	return n, nil
}

// CountDir counts the regular, non-excluded files under any directory.
func (s *Store) CountDir(root string) (int, error) { return s.countFiles(root) }

// FileCount returns the number of regular, non-excluded files in the tree.
func (s *Store) FileCount(projectID string) (int, error) {
	if !s.Exists(projectID) {
		return 0, errors.Wrapf(apperr.ErrNotFound, "project %s tree", projectID)
	}
	p, _ := s.Path(projectID)
	return s.countFiles(p)
}
