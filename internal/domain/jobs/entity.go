package jobs

import (
	"time"

	"github.com/bryanwahyu/automaton-review/internal/domain/findings"
)

// ID tipe untuk Job
type ID string

// Status enum
type Status string

const (
	StatusPending Status = "pending"
	StatusRunning Status = "running"
	StatusDone    Status = "done"
	StatusError   Status = "error"
)

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusRunning, StatusDone, StatusError:
		return true
	}
	return false
}

func (s Status) Terminal() bool { return s == StatusDone || s == StatusError }

// Aggregate Root: Job
type Job struct {
	ID         ID              `json:"id"`
	ProjectID  string          `json:"projectId"`
	Owner      string          `json:"owner,omitempty"`
	Status     Status          `json:"status"`
	CreatedAt  time.Time       `json:"createdAt"`
	StartedAt  *time.Time      `json:"startedAt,omitempty"`
	FinishedAt *time.Time      `json:"finishedAt,omitempty"`
	Results    *AnalysisResult `json:"results"`
	Error      *string         `json:"error"`
}

// AnalysisResult is the payload of a job that finished as done.
type AnalysisResult struct {
	ProjectID string             `json:"projectId"`
	VPoints   []findings.Finding `json:"vpoints"`
	AI        AIReview           `json:"ai"`
	Tools     []ToolReport       `json:"tools"`
	Stats     TreeStats          `json:"stats"`
}

// AIReview holds either a summary or an error marker, never both.
type AIReview struct {
	Summary   string          `json:"summary,omitempty"`
	Checklist []ChecklistItem `json:"checklist,omitempty"`
	TopWins   []string        `json:"top_wins,omitempty"`
	Model     string          `json:"model,omitempty"`
	Error     string          `json:"error,omitempty"`
}

func (r AIReview) Failed() bool { return r.Error != "" }

type ChecklistItem struct {
	Title    string            `json:"title"`
	Severity findings.Severity `json:"severity,omitempty"`
	Why      string            `json:"why,omitempty"`
	How      string            `json:"how,omitempty"`
}

// ToolReport records how one tool invocation went.
type ToolReport struct {
	Tool        findings.Tool       `json:"tool"`
	Findings    int                 `json:"findings"`
	DurationMS  int64               `json:"durationMs"`
	Error       *findings.ToolError `json:"error,omitempty"`
	ArtifactURL string              `json:"artifactUrl,omitempty"`
}

type TreeStats struct {
	FileCount int `json:"fileCount"`
	// PylintScore is pylint's rating out of 10, when pylint ran.
	PylintScore *float64 `json:"pylintScore,omitempty"`
	// Maintainability is the radon maintainability index per file.
	Maintainability map[string]float64 `json:"maintainability,omitempty"`
}
