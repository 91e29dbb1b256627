package workspace

import (
	"archive/zip"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bryanwahyu/automaton-review/internal/domain/apperr"
)

func writeZip(t *testing.T, files map[string]string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "upload.zip")
	f, err := os.Create(path)
	require.NoError(t, err)
	zw := zip.NewWriter(f)
	for name, body := range files {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(body))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())
	return path
}

func newStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "projects"))
	require.NoError(t, err)
	return s
}

func TestMaterializeArchiveUnwrapsTopDir(t *testing.T) {
	s := newStore(t)
	id := uuid.NewString()
	archive := writeZip(t, map[string]string{
		"proj/a.py":                     "import os\n\nprint(x)\n",
		"proj/pkg/b.py":                 "def f():\n    return 1\n",
		"proj/.git/config":              "[core]",
		"proj/pkg/__pycache__/b.pyc":    "bytecode",
		"proj/node_modules/left/pad.js": "module.exports = 1",
		"__MACOSX/proj/._a.py":          "resource fork",
	})

	n, err := s.MaterializeArchive(context.Background(), id, archive)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.True(t, s.Exists(id))

	b, err := s.ReadFile(id, "a.py")
	require.NoError(t, err)
	assert.Equal(t, "import os\n\nprint(x)\n", string(b))
	_, err = s.ReadFile(id, "pkg/b.py")
	require.NoError(t, err)
	_, err = s.ReadFile(id, ".git/config")
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	count, err := s.FileCount(id)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	entries, err := os.ReadDir(s.Root)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "staging directory removed")
}

func TestMaterializeArchiveFlat(t *testing.T) {
	s := newStore(t)
	id := uuid.NewString()
	archive := writeZip(t, map[string]string{"a.py": "x = 1\n", "b.py": "y = 2\n"})

	n, err := s.MaterializeArchive(context.Background(), id, archive)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	_, err = s.ReadFile(id, "b.py")
	assert.NoError(t, err)
}

func TestRemoveAllowsRepublish(t *testing.T) {
	s := newStore(t)
	id := uuid.NewString()
	_, err := s.MaterializeArchive(context.Background(), id, writeZip(t, map[string]string{"a.py": ""}))
	require.NoError(t, err)

	require.NoError(t, s.Remove(id))
	assert.False(t, s.Exists(id))
	require.NoError(t, s.Remove(id), "removing a missing tree is a no-op")
	assert.ErrorIs(t, s.Remove("../etc"), apperr.ErrNotFound)

	n, err := s.MaterializeArchive(context.Background(), id, writeZip(t, map[string]string{"b.py": "", "c.py": ""}))
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestMaterializeTwiceConflicts(t *testing.T) {
	s := newStore(t)
	id := uuid.NewString()
	archive := writeZip(t, map[string]string{"a.py": "x = 1\n"})

	_, err := s.MaterializeArchive(context.Background(), id, archive)
	require.NoError(t, err)
	_, err = s.MaterializeArchive(context.Background(), id, writeZip(t, map[string]string{"other.py": ""}))
	assert.ErrorIs(t, err, apperr.ErrConflict)

	_, err = s.ReadFile(id, "a.py")
	assert.NoError(t, err, "original tree untouched")
}

func TestMaterializeRejectsNonArchive(t *testing.T) {
	s := newStore(t)
	id := uuid.NewString()
	path := filepath.Join(t.TempDir(), "notes.txt")
	require.NoError(t, os.WriteFile(path, []byte("just some text, not an archive"), 0o644))

	_, err := s.MaterializeArchive(context.Background(), id, path)
	assert.ErrorIs(t, err, apperr.ErrInvalidInput)
	assert.False(t, s.Exists(id))
}

func TestMaterializeEnforcesSizeLimit(t *testing.T) {
	s := newStore(t)
	s.MaxExtractedBytes = 64
	id := uuid.NewString()
	archive := writeZip(t, map[string]string{"big.py": strings.Repeat("#", 1000)})

	_, err := s.MaterializeArchive(context.Background(), id, archive)
	assert.ErrorIs(t, err, apperr.ErrTooLarge)
	assert.False(t, s.Exists(id), "partial tree never published")
}

func TestMaterializeDir(t *testing.T) {
	s := newStore(t)
	id := uuid.NewString()

	_, err := s.MaterializeDir(context.Background(), id, func(dir string) error {
		require.NoError(t, os.WriteFile(filepath.Join(dir, "half.py"), nil, 0o644))
		return errors.New("clone failed")
	})
	assert.EqualError(t, err, "clone failed")
	assert.False(t, s.Exists(id))

	n, err := s.MaterializeDir(context.Background(), id, func(dir string) error {
		return os.WriteFile(filepath.Join(dir, "main.py"), []byte("print(1)\n"), 0o644)
	})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.True(t, s.Exists(id))
}

func TestMaterializeDirCancelled(t *testing.T) {
	s := newStore(t)
	id := uuid.NewString()
	ctx, cancel := context.WithCancel(context.Background())

	_, err := s.MaterializeDir(ctx, id, func(dir string) error {
		cancel()
		return os.WriteFile(filepath.Join(dir, "main.py"), nil, 0o644)
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, s.Exists(id))
}

func TestPathRequiresUUID(t *testing.T) {
	s := newStore(t)

	_, err := s.Path("../../etc")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	assert.False(t, s.Exists("../../etc"))
	_, err = s.FileCount(uuid.NewString())
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}
