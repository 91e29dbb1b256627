package projects

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"path"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/bryanwahyu/automaton-review/internal/application"
	"github.com/bryanwahyu/automaton-review/internal/domain/apperr"
	"github.com/bryanwahyu/automaton-review/internal/domain/jobs"
	domain "github.com/bryanwahyu/automaton-review/internal/domain/projects"
)

const (
	defaultCloneTimeout = 5 * time.Minute
	maxNameLen          = 200
)

// Trees stores project source trees.
type Trees interface {
	MaterializeArchive(ctx context.Context, projectID, archivePath string) (int, error)
	MaterializeDir(ctx context.Context, projectID string, fill func(dir string) error) (int, error)
	ReadFile(projectID, rel string) ([]byte, error)
	Remove(projectID string) error
}

// Cloner fetches a branch into dest and returns the HEAD sha.
type Cloner interface {
	Clone(ctx context.Context, repoURL, branch, dest string) (string, error)
}

// JobCreator starts analysis jobs.
type JobCreator interface {
	CreateJob(ctx context.Context, projectID, owner string) (*jobs.Job, error)
}

// ArtifactStore archives uploaded sources.
type ArtifactStore interface {
	Upload(ctx context.Context, localPath, key string) (string, error)
}

// Service implements use-cases untuk Project.
type Service struct {
	Repo         domain.Repository
	Trees        Trees
	Cloner       Cloner
	Jobs         JobCreator
	Artifacts    ArtifactStore
	Clock        application.Clock
	Logger       *slog.Logger
	CloneTimeout time.Duration
}

//
// ==== USE CASES ====
//

// CreateProjectCommand untuk POST /projects
type CreateProjectCommand struct {
	Name    string
	Source  string
	Owner   string
	RepoURL string
	Branch  string
}

func (s *Service) CreateProject(ctx context.Context, cmd CreateProjectCommand) (*domain.Project, error) {
	name := strings.TrimSpace(cmd.Name)
	if name == "" || utf8.RuneCountInString(name) > maxNameLen {
		return nil, fmt.Errorf("%w: name must be 1-%d characters", apperr.ErrInvalidInput, maxNameLen)
	}
	src, err := domain.ParseSource(cmd.Source)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperr.ErrInvalidInput, err)
	}

	p := &domain.Project{
		ID:        application.NewID(),
		Name:      name,
		Source:    src,
		Owner:     cmd.Owner,
		RepoURL:   cmd.RepoURL,
		Branch:    cmd.Branch,
		CreatedAt: application.NowFrom(s.Clock),
	}
	if err := s.Repo.Create(ctx, p); err != nil {
		return nil, fmt.Errorf("create project: %w", err)
	}
	s.logger().Info("project created", "project", p.ID, "source", p.Source)
	return p, nil
}

func (s *Service) ListProjects(ctx context.Context, owner string, limit int) ([]*domain.Project, error) {
	return s.Repo.List(ctx, owner, limit)
}

func (s *Service) GetProject(ctx context.Context, id, owner string) (*domain.Project, error) {
	p, err := s.Repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if p.Owner != "" && p.Owner != owner {
		return nil, fmt.Errorf("%w: project %s", apperr.ErrForbidden, id)
	}
	return p, nil
}

// Upload materializes a zip archive as the project tree. A project accepts
// exactly one source tree.
func (s *Service) Upload(ctx context.Context, projectID, owner, archivePath string) (int, error) {
	p, err := s.GetProject(ctx, projectID, owner)
	if err != nil {
		return 0, err
	}
	if p.Materialized() {
		return 0, fmt.Errorf("%w: project %s already has a source tree", apperr.ErrConflict, projectID)
	}

	n, err := s.Trees.MaterializeArchive(ctx, projectID, archivePath)
	if err != nil {
		return 0, err
	}
	if err := s.Repo.MarkMaterialized(ctx, projectID, application.NowFrom(s.Clock), ""); err != nil {
		// an unmarked tree would make every retry a conflict
		s.removeTree(projectID, err)
		return 0, fmt.Errorf("mark materialized: %w", err)
	}
	s.archive(ctx, archivePath, "projects/"+projectID+"/source.zip")
	s.logger().Info("project uploaded", "project", projectID, "files", n)
	return n, nil
}

// ImportCommand untuk POST /projects/github
type ImportCommand struct {
	RepoURL string
	Branch  string
	Name    string
	Owner   string
}

// ImportResult is the project created by an import plus its first job.
type ImportResult struct {
	Project *domain.Project
	Job     *jobs.Job
}

// ImportGitHub creates a git project, clones it and starts the first job.
// A failed clone deletes the project again.
func (s *Service) ImportGitHub(ctx context.Context, cmd ImportCommand) (*ImportResult, error) {
	branch := strings.TrimSpace(cmd.Branch)
	if branch == "" {
		branch = "main"
	}
	name := strings.TrimSpace(cmd.Name)
	if name == "" {
		name = repoName(cmd.RepoURL)
	}

	p, err := s.CreateProject(ctx, CreateProjectCommand{
		Name:    name,
		Source:  string(domain.SourceGit),
		Owner:   cmd.Owner,
		RepoURL: cmd.RepoURL,
		Branch:  branch,
	})
	if err != nil {
		return nil, err
	}

	timeout := s.CloneTimeout
	if timeout <= 0 {
		timeout = defaultCloneTimeout
	}
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var sha string
	n, err := s.Trees.MaterializeDir(cctx, p.ID, func(dir string) error {
		var err error
		sha, err = s.Cloner.Clone(cctx, cmd.RepoURL, branch, dir)
		return err
	})
	if err != nil {
		s.logger().Warn("clone failed", "project", p.ID, "error", err)
		s.deleteProject(ctx, p.ID)
		return nil, err
	}
	now := application.NowFrom(s.Clock)
	if err := s.Repo.MarkMaterialized(ctx, p.ID, now, sha); err != nil {
		s.removeTree(p.ID, err)
		s.deleteProject(ctx, p.ID)
		return nil, fmt.Errorf("mark materialized: %w", err)
	}
	p.MaterializedAt = &now
	p.CommitSHA = sha
	s.logger().Info("project cloned", "project", p.ID, "files", n, "commit", sha)

	j, err := s.Jobs.CreateJob(ctx, p.ID, cmd.Owner)
	if err != nil {
		return nil, err
	}
	return &ImportResult{Project: p, Job: j}, nil
}

// FileContent untuk GET /projects/{id}/files
type FileContent struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

// GetFile reads one file of the project tree.
func (s *Service) GetFile(ctx context.Context, projectID, rel, owner string) (*FileContent, error) {
	if _, err := s.GetProject(ctx, projectID, owner); err != nil {
		return nil, err
	}
	b, err := s.Trees.ReadFile(projectID, rel)
	if err != nil {
		return nil, err
	}
	return &FileContent{Path: rel, Content: string(b)}, nil
}

func (s *Service) archive(ctx context.Context, localPath, key string) {
	if s.Artifacts == nil {
		return
	}
	if _, err := s.Artifacts.Upload(ctx, localPath, key); err != nil {
		s.logger().Warn("archive source", "key", key, "error", err)
	}
}

// removeTree undoes a publish whose MarkMaterialized failed. A conflict
// means the project was already marked, so the tree is left alone.
func (s *Service) removeTree(projectID string, cause error) {
	if errors.Is(cause, apperr.ErrConflict) {
		return
	}
	if err := s.Trees.Remove(projectID); err != nil {
		s.logger().Error("remove unmarked tree", "project", projectID, "error", err)
	}
}

// deleteProject drops a git project whose import failed, so the import can
// simply be retried. It runs even when ctx is already cancelled.
func (s *Service) deleteProject(ctx context.Context, projectID string) {
	if err := s.Repo.Delete(context.WithoutCancel(ctx), projectID); err != nil {
		s.logger().Error("delete failed import", "project", projectID, "error", err)
	}
}

func (s *Service) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}

func repoName(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	name := strings.TrimSuffix(path.Base(strings.TrimSuffix(u.Path, "/")), ".git")
	if name == "" || name == "." || name == "/" {
		return u.Host
	}
	return name
}
