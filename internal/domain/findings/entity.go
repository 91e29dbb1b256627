package findings

import (
	"fmt"
	"strings"
)

// Tool enum
type Tool string

const (
	ToolPylint  Tool = "pylint"
	ToolBandit  Tool = "bandit"
	ToolRadonCC Tool = "radon-cc"
	// ToolRadonMI reports per-file maintainability metrics, not findings.
	ToolRadonMI Tool = "radon-mi"
	ToolRuff    Tool = "ruff"
)

// KnownTools in their default execution order.
var KnownTools = []Tool{ToolPylint, ToolBandit, ToolRadonCC, ToolRadonMI, ToolRuff}

// ParseTool accepts the canonical tool names plus a couple of aliases.
func ParseTool(s string) (Tool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "pylint":
		return ToolPylint, nil
	case "bandit":
		return ToolBandit, nil
	case "radon-cc", "radon":
		return ToolRadonCC, nil
	case "radon-mi", "mi":
		return ToolRadonMI, nil
	case "ruff":
		return ToolRuff, nil
	}
	return "", fmt.Errorf("unsupported tool: %q", s)
}

// Severity enum
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// Rank orders severities: high > medium > low. Unknown values rank lowest.
func (s Severity) Rank() int {
	switch s {
	case SeverityHigh:
		return 3
	case SeverityMedium:
		return 2
	case SeverityLow:
		return 1
	}
	return 0
}

// ParseSeverity maps loose spellings ("med", "HIGH", "critical") onto the
// three canonical levels. ok is false when nothing matched.
func ParseSeverity(s string) (Severity, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "critical", "high", "error", "fatal":
		return SeverityHigh, true
	case "medium", "med", "moderate", "warning":
		return SeverityMedium, true
	case "low", "info", "informational", "note":
		return SeverityLow, true
	}
	return "", false
}

// Finding is one normalized static-analysis observation (a "vpoint").
type Finding struct {
	Tool     Tool     `json:"tool"`
	Severity Severity `json:"severity"`
	Code     string   `json:"code,omitempty"`
	Message  string   `json:"message"`
	Path     string   `json:"path"`
	Line     int      `json:"line"`
	EndLine  int      `json:"endLine"`
	Col      int      `json:"col,omitempty"`
}

// Key is the deduplication identity of a finding.
type Key struct {
	Tool Tool
	Path string
	Line int
	Code string
}

func (f Finding) Key() Key {
	return Key{Tool: f.Tool, Path: f.Path, Line: f.Line, Code: f.Code}
}
