package vcs

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/transport"
	"github.com/stretchr/testify/assert"

	"github.com/bryanwahyu/automaton-review/internal/domain/apperr"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"deadline", fmt.Errorf("fetch: %w", context.DeadlineExceeded), apperr.ErrTimeout},
		{"missing branch", errors.New("couldn't find remote ref refs/heads/nope"), apperr.ErrNotFound},
		{"ref not found", plumbing.ErrReferenceNotFound, apperr.ErrNotFound},
		{"missing repo", transport.ErrRepositoryNotFound, apperr.ErrNotFound},
		{"private repo", transport.ErrAuthenticationRequired, apperr.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, classify(tt.err, "https://github.com/a/b", "main"), tt.want)
		})
	}

	other := errors.New("connection reset")
	err := classify(other, "https://github.com/a/b", "main")
	assert.ErrorIs(t, err, other)
	assert.NotErrorIs(t, err, apperr.ErrNotFound)
}

func TestCloneCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := (&Cloner{}).Clone(ctx, "https://github.com/a/b", "", t.TempDir())
	assert.Error(t, err)
}
