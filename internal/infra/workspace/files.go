package workspace

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"

	"github.com/bryanwahyu/automaton-review/internal/domain/apperr"
)

// ReadFile returns the content of rel inside the project tree. rel must be
// relative and stay inside the tree, symlinks included.
func (s *Store) ReadFile(projectID, rel string) ([]byte, error) {
	if err := ValidateRelPath(rel); err != nil {
		return nil, err
	}
	if !s.Exists(projectID) {
		return nil, errors.Wrapf(apperr.ErrNotFound, "project %s tree", projectID)
	}
	root, _ := s.Path(projectID)
	realRoot, err := filepath.EvalSymlinks(root)
	if err != nil {
		return nil, errors.Wrap(err, "resolve tree root")
	}

	full := filepath.Join(root, filepath.FromSlash(rel))
	resolved, err := filepath.EvalSymlinks(full)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Wrapf(apperr.ErrNotFound, "file %q", rel)
		}
		return nil, errors.Wrapf(err, "resolve %q", rel)
	}
	if !within(realRoot, resolved) {
		return nil, errors.Wrapf(apperr.ErrInvalidPath, "%q escapes the project tree", rel)
	}

	fi, err := os.Stat(resolved)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Wrapf(apperr.ErrNotFound, "file %q", rel)
		}
		return nil, errors.Wrapf(err, "stat %q", rel)
	}
	if !fi.Mode().IsRegular() {
		return nil, errors.Wrapf(apperr.ErrNotFound, "%q is not a file", rel)
	}
	limit := s.MaxFileBytes
	if limit <= 0 {
		limit = defaultMaxFileBytes
	}
	if fi.Size() > limit {
		return nil, errors.Wrapf(apperr.ErrTooLarge, "%q is %d bytes (limit %d)", rel, fi.Size(), limit)
	}

	b, err := os.ReadFile(resolved)
	if err != nil {
		return nil, errors.Wrapf(err, "read %q", rel)
	}
	return b, nil
}

// ValidateRelPath rejects empty, absolute and parent-relative paths and NUL
// bytes. Both slash styles count as separators.
func ValidateRelPath(rel string) error {
	switch {
	case strings.TrimSpace(rel) == "":
		return errors.Wrap(apperr.ErrInvalidPath, "path is required")
	case strings.ContainsRune(rel, 0):
		return errors.Wrap(apperr.ErrInvalidPath, "path contains NUL")
	case strings.HasPrefix(rel, "/") || strings.HasPrefix(rel, `\`) || filepath.IsAbs(rel) || filepath.VolumeName(rel) != "":
		return errors.Wrapf(apperr.ErrInvalidPath, "%q is absolute", rel)
	}
	for _, seg := range strings.FieldsFunc(rel, func(r rune) bool { return r == '/' || r == '\\' }) {
		if seg == ".." {
			return errors.Wrapf(apperr.ErrInvalidPath, "%q leaves the project tree", rel)
		}
	}
	return nil
}

func within(root, p string) bool {
	rel, err := filepath.Rel(root, p)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
