// Package vcs fetches source trees from git hosts.
package vcs

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	githttp "github.com/go-git/go-git/v5/plumbing/transport/http"
	"github.com/pkg/errors"

	"github.com/bryanwahyu/automaton-review/internal/domain/apperr"
)

// Cloner does shallow single-branch clones over HTTPS.
type Cloner struct {
	// Token authenticates private repositories. It is never logged.
	Token string
}

// Clone fetches branch of repoURL into dest, removes the .git directory and
// returns the HEAD commit sha.
func (c *Cloner) Clone(ctx context.Context, repoURL, branch, dest string) (string, error) {
	if branch == "" {
		branch = "main"
	}
	opts := &git.CloneOptions{
		URL:           repoURL,
		ReferenceName: plumbing.NewBranchReferenceName(branch),
		SingleBranch:  true,
		Depth:         1,
		Tags:          git.NoTags,
	}
	if c.Token != "" {
		opts.Auth = &githttp.BasicAuth{Username: "x-access-token", Password: c.Token}
	}

	repo, err := git.PlainCloneContext(ctx, dest, false, opts)
	if err != nil {
		return "", classify(err, repoURL, branch)
	}
	head, err := repo.Head()
	if err != nil {
		return "", errors.Wrap(err, "resolve HEAD")
	}
	sha := head.Hash().String()

	if err := os.RemoveAll(filepath.Join(dest, ".git")); err != nil {
		return "", errors.Wrap(err, "remove .git")
	}
	return sha, nil
}

func classify(err error, repoURL, branch string) error {
	msg := err.Error()
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return errors.Wrapf(apperr.ErrTimeout, "clone %s", repoURL)
	case strings.Contains(msg, "couldn't find remote ref"), errors.Is(err, plumbing.ErrReferenceNotFound):
		return errors.Wrapf(apperr.ErrNotFound, "branch %q of %s", branch, repoURL)
	case strings.Contains(msg, "repository not found"), strings.Contains(msg, "authentication required"):
		return errors.Wrapf(apperr.ErrNotFound, "repository %s", repoURL)
	}
	return errors.Wrapf(err, "clone %s", repoURL)
}
