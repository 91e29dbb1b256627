package findings

import (
	"context"
	"time"
)

// ErrorKind classifies why a tool contributed no findings.
type ErrorKind string

const (
	ErrorTimeout     ErrorKind = "timeout"
	ErrorExit        ErrorKind = "exit"
	ErrorParse       ErrorKind = "parse"
	ErrorUnavailable ErrorKind = "unavailable"
)

// ToolError is a non-fatal, per-tool failure. Message is short and safe to
// show to API clients; diagnostics stay in the log.
type ToolError struct {
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
}

func (e *ToolError) Error() string { return string(e.Kind) + ": " + e.Message }

// RunRequest untuk Runner
type RunRequest struct {
	Tool Tool
	// Root is the materialized project tree. Tools must treat it as read-only.
	Root string
	// ArtifactKey, when set, is where the raw output is archived.
	ArtifactKey string
}

// RunResult hasil dari Runner. Err is set iff the tool failed; Findings is
// then empty.
type RunResult struct {
	Tool        Tool
	Findings    []Finding
	Err         *ToolError
	Metrics     Metrics
	Duration    time.Duration
	ArtifactURL string
}

// Runner port (interface untuk eksekusi tool analisis)
type Runner interface {
	Run(ctx context.Context, req RunRequest) RunResult
}
