package findings

import (
	"bytes"
	"encoding/json"
	"fmt"
	"path"
	"path/filepath"
	"strings"
)

// Report is one tool's decoded output.
type Report struct {
	Findings []Finding
	Metrics  Metrics
}

// Normalize decodes one tool's raw JSON output into findings. root is the
// directory the tool ran in; absolute paths under it become relative.
func Normalize(tool Tool, raw []byte, root string) ([]Finding, error) {
	rep, err := Decode(tool, raw, root)
	if err != nil {
		return nil, err
	}
	return rep.Findings, nil
}

// Decode is Normalize plus the tool's metrics (pylint score, radon MI).
func Decode(tool Tool, raw []byte, root string) (Report, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return Report{Findings: []Finding{}}, nil
	}

	var (
		rep Report
		err error
	)
	switch tool {
	case ToolPylint:
		rep.Findings, rep.Metrics.PylintScore, err = normalizePylint(raw)
	case ToolBandit:
		rep.Findings, err = normalizeBandit(raw)
	case ToolRadonCC:
		rep.Findings, err = normalizeRadonCC(raw)
	case ToolRadonMI:
		rep.Findings = []Finding{}
		rep.Metrics.Maintainability, err = decodeRadonMI(raw, root)
	case ToolRuff:
		rep.Findings, err = normalizeRuff(raw)
	default:
		return Report{}, fmt.Errorf("no normalizer for tool %q", tool)
	}
	if err != nil {
		return Report{}, fmt.Errorf("decode %s output: %w", tool, err)
	}

	for i := range rep.Findings {
		f := &rep.Findings[i]
		f.Tool = tool
		f.Path = relativePath(root, f.Path)
		if f.Line <= 0 {
			f.Line = 1
		}
		if f.EndLine < f.Line {
			f.EndLine = f.Line
		}
		if f.Message == "" {
			f.Message = f.Code
		}
	}
	return rep, nil
}

func relativePath(root, p string) string {
	if p == "" {
		return p
	}
	p = filepath.ToSlash(p)
	if root != "" && path.IsAbs(p) {
		r := path.Clean(filepath.ToSlash(root))
		if rel := strings.TrimPrefix(p, r+"/"); rel != p {
			p = rel
		}
	}
	p = path.Clean(p)
	return strings.TrimPrefix(p, "./")
}

// pylint --output-format=json (a bare array) or json2 ({messages, statistics})
type pylintMessage struct {
	Type      string `json:"type"`
	Path      string `json:"path"`
	Line      int    `json:"line"`
	Column    int    `json:"column"`
	EndLine   *int   `json:"endLine"`
	Symbol    string `json:"symbol"`
	Message   string `json:"message"`
	MessageID string `json:"message-id"`
	// json2 spelling
	MessageID2 string `json:"messageId"`
}

type pylintJSON2 struct {
	Messages   []pylintMessage `json:"messages"`
	Statistics struct {
		Score *float64 `json:"score"`
	} `json:"statistics"`
}

func normalizePylint(raw []byte) ([]Finding, *float64, error) {
	var (
		msgs  []pylintMessage
		score *float64
	)
	if raw[0] == '{' {
		var rep pylintJSON2
		if err := json.Unmarshal(raw, &rep); err != nil {
			return nil, nil, err
		}
		msgs, score = rep.Messages, rep.Statistics.Score
	} else if err := json.Unmarshal(raw, &msgs); err != nil {
		return nil, nil, err
	}

	out := make([]Finding, 0, len(msgs))
	for _, m := range msgs {
		code := m.MessageID
		if code == "" {
			code = m.MessageID2
		}
		if code == "" {
			code = m.Symbol
		}
		f := Finding{
			Severity: pylintSeverity(m.Type),
			Code:     code,
			Message:  m.Message,
			Path:     m.Path,
			Line:     m.Line,
			// pylint columns are 0-based
			Col: m.Column + 1,
		}
		if m.EndLine != nil {
			f.EndLine = *m.EndLine
		}
		out = append(out, f)
	}
	return out, score, nil
}

func pylintSeverity(kind string) Severity {
	switch strings.ToLower(kind) {
	case "fatal", "error":
		return SeverityHigh
	case "warning", "refactor":
		return SeverityMedium
	}
	return SeverityLow
}

// bandit -f json
type banditReport struct {
	Results []struct {
		Filename      string `json:"filename"`
		LineNumber    int    `json:"line_number"`
		LineRange     []int  `json:"line_range"`
		ColOffset     int    `json:"col_offset"`
		IssueSeverity string `json:"issue_severity"`
		IssueText     string `json:"issue_text"`
		TestID        string `json:"test_id"`
	} `json:"results"`
}

func normalizeBandit(raw []byte) ([]Finding, error) {
	var rep banditReport
	if err := json.Unmarshal(raw, &rep); err != nil {
		return nil, err
	}
	out := make([]Finding, 0, len(rep.Results))
	for _, r := range rep.Results {
		f := Finding{
			Severity: banditSeverity(r.IssueSeverity),
			Code:     r.TestID,
			Message:  r.IssueText,
			Path:     r.Filename,
			Line:     r.LineNumber,
			Col:      r.ColOffset + 1,
		}
		if n := len(r.LineRange); n > 0 {
			f.EndLine = r.LineRange[n-1]
		}
		out = append(out, f)
	}
	return out, nil
}

func banditSeverity(level string) Severity {
	switch strings.ToLower(level) {
	case "high":
		return SeverityHigh
	case "medium", "med":
		return SeverityMedium
	}
	return SeverityLow
}

// radon cc -s -j: {"path": [block, ...]} or {"path": {"error": "..."}}
type radonBlock struct {
	Type       string `json:"type"`
	Name       string `json:"name"`
	Rank       string `json:"rank"`
	Complexity int    `json:"complexity"`
	LineNo     int    `json:"lineno"`
	EndLine    int    `json:"endline"`
	ColOffset  int    `json:"col_offset"`
}

func normalizeRadonCC(raw []byte) ([]Finding, error) {
	var byFile map[string]json.RawMessage
	if err := json.Unmarshal(raw, &byFile); err != nil {
		return nil, err
	}
	out := []Finding{}
	for file, entries := range byFile {
		var blocks []radonBlock
		if err := json.Unmarshal(entries, &blocks); err != nil {
			// per-file {"error": ...} entries mean radon could not parse that file
			continue
		}
		for _, b := range blocks {
			rank := strings.ToUpper(strings.TrimSpace(b.Rank))
			if rank == "" {
				rank = "C"
			}
			if rank < "C" {
				continue
			}
			sev := SeverityHigh
			if rank == "C" || rank == "D" {
				sev = SeverityMedium
			}
			kind := b.Type
			if kind == "" {
				kind = "block"
			}
			out = append(out, Finding{
				Severity: sev,
				Code:     "CC-" + rank,
				Message:  fmt.Sprintf("%s %s has high cyclomatic complexity (%d) rank %s", kind, b.Name, b.Complexity, rank),
				Path:     file,
				Line:     b.LineNo,
				EndLine:  b.EndLine,
				Col:      b.ColOffset + 1,
			})
		}
	}
	// map iteration order is random; keep the decoder deterministic
	Sort(out)
	return out, nil
}

// radon mi -j: {"path": {"mi": 71.2, "rank": "A"}} or {"path": {"error": "..."}}
func decodeRadonMI(raw []byte, root string) (map[string]float64, error) {
	var byFile map[string]struct {
		MI    *float64 `json:"mi"`
		Error string   `json:"error"`
	}
	if err := json.Unmarshal(raw, &byFile); err != nil {
		return nil, err
	}
	out := make(map[string]float64, len(byFile))
	for file, entry := range byFile {
		if entry.Error != "" || entry.MI == nil {
			continue
		}
		out[relativePath(root, file)] = *entry.MI
	}
	return out, nil
}

// ruff check --output-format=json
type ruffIssue struct {
	Code     *string `json:"code"`
	Message  string  `json:"message"`
	Filename string  `json:"filename"`
	Location struct {
		Row    int `json:"row"`
		Column int `json:"column"`
	} `json:"location"`
	EndLocation struct {
		Row int `json:"row"`
	} `json:"end_location"`
}

func normalizeRuff(raw []byte) ([]Finding, error) {
	var issues []ruffIssue
	if err := json.Unmarshal(raw, &issues); err != nil {
		return nil, err
	}
	out := make([]Finding, 0, len(issues))
	for _, is := range issues {
		code := ""
		if is.Code != nil {
			code = *is.Code
		}
		out = append(out, Finding{
			Severity: ruffSeverity(code),
			Code:     code,
			Message:  is.Message,
			Path:     is.Filename,
			Line:     is.Location.Row,
			EndLine:  is.EndLocation.Row,
			Col:      is.Location.Column,
		})
	}
	return out, nil
}

func ruffSeverity(code string) Severity {
	switch {
	case code == "":
		// syntax errors carry no rule code
		return SeverityHigh
	case strings.HasPrefix(code, "E9"), strings.HasPrefix(code, "F8"):
		return SeverityHigh
	case strings.HasPrefix(code, "F"), strings.HasPrefix(code, "B"),
		strings.HasPrefix(code, "S"), strings.HasPrefix(code, "PL"):
		return SeverityMedium
	}
	return SeverityLow
}
