package prompt

import (
	"encoding/json"
	"fmt"

	"github.com/bryanwahyu/automaton-review/internal/domain/ai"
)

// SystemPrompt provides strict directions and schema for JSON output.
func SystemPrompt() string {
	return `You are a senior staff engineer doing a code review. You receive normalized findings from pylint (style), bandit (security), radon (complexity) and ruff (lint). Write concise, actionable guidance. Prefer specific file/line refs if available. Do NOT invent findings that aren't in the provided data.

Respond with one valid JSON object only (no markdown, no commentary, no code fences) with this shape:
{
  "summary": "<2-4 sentences>",
  "checklist": [
    {"title": "<string>", "why": "<string>", "how": "<string>", "severity": "<low|medium|high>"}
  ],
  "top_wins": ["<string>"]
}

The "tree" object may carry pylintScore (pylint's rating out of 10) and leastMaintainable (files with the lowest radon maintainability index, 0-100, lower is harder to maintain). Use them to weigh priorities when present.

Requirements:
- checklist is prioritized, at most 8 items.
- top_wins holds 3 quick wins, at most 5.
- Use lowercase severity values: low, medium, high.`
}

type promptFinding struct {
	Tool     string `json:"tool"`
	Code     string `json:"code,omitempty"`
	Severity string `json:"severity"`
	Path     string `json:"path"`
	Line     int    `json:"line"`
	Msg      string `json:"msg"`
}

type promptPayload struct {
	Total    int             `json:"totalFindings"`
	Shown    int             `json:"shownFindings"`
	Meta     ai.TreeMeta     `json:"tree"`
	Findings []promptFinding `json:"findings"`
}

// UserPrompt builds a compact user message around the capped finding list.
func UserPrompt(req ai.ReviewRequest) string {
	p := promptPayload{
		Total:    req.TotalFindings,
		Shown:    len(req.Findings),
		Meta:     req.Meta,
		Findings: make([]promptFinding, 0, len(req.Findings)),
	}
	for _, f := range req.Findings {
		p.Findings = append(p.Findings, promptFinding{
			Tool:     string(f.Tool),
			Code:     f.Code,
			Severity: string(f.Severity),
			Path:     f.Path,
			Line:     f.Line,
			Msg:      f.Message,
		})
	}
	b, err := json.Marshal(p)
	if err != nil {
		// only plain values above; cannot happen
		b = []byte("{}")
	}
	return fmt.Sprintf("Static-analysis findings (JSON):\n%s\n\n"+
		"Task: 1) Brief summary (2-4 sentences). "+
		"2) A prioritized checklist (max 8 items) with fields: title, why, how, severity. "+
		"3) 3 quick wins. "+
		"Return strict JSON with keys: summary, checklist, top_wins.", b)
}
