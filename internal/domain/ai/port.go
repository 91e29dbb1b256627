package ai

import (
	"context"

	"github.com/bryanwahyu/automaton-review/internal/domain/findings"
)

// Reviewer turns a capped finding list into a raw review document (JSON).
type Reviewer interface {
	Review(ctx context.Context, req ReviewRequest) (string, error)
	// Name is recorded as the model of the review.
	Name() string
}

// ReviewRequest untuk Reviewer
type ReviewRequest struct {
	Findings      []findings.Finding
	TotalFindings int
	Meta          TreeMeta
}

type TreeMeta struct {
	FileCount   int                  `json:"fileCount"`
	TopFiles    []findings.FileCount `json:"topFiles"`
	PylintScore *float64             `json:"pylintScore,omitempty"`
	// LeastMaintainable lists the files with the lowest radon MI.
	LeastMaintainable []findings.FileMI `json:"leastMaintainable,omitempty"`
}
