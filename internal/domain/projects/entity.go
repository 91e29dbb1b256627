package projects

import (
	"fmt"
	"strings"
	"time"
)

// Source enum
type Source string

const (
	SourceUpload Source = "upload"
	SourceGit    Source = "git"
)

// ParseSource accepts "github" as an alias of git.
func ParseSource(s string) (Source, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "upload", "zip":
		return SourceUpload, nil
	case "git", "github":
		return SourceGit, nil
	}
	return "", fmt.Errorf("unsupported source %q (allowed: upload, git)", s)
}

// Project identifies one ingested source tree.
type Project struct {
	ID             string     `json:"id"`
	Name           string     `json:"name"`
	Source         Source     `json:"source"`
	Owner          string     `json:"owner,omitempty"`
	RepoURL        string     `json:"repoUrl,omitempty"`
	Branch         string     `json:"branch,omitempty"`
	CommitSHA      string     `json:"commitSha,omitempty"`
	CreatedAt      time.Time  `json:"createdAt"`
	MaterializedAt *time.Time `json:"materializedAt,omitempty"`
}

// Materialized reports whether the file tree has been fully populated.
func (p *Project) Materialized() bool { return p.MaterializedAt != nil }
