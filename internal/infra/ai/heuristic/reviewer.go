// Package heuristic is an offline reviewer. It groups findings with a fixed
// rule table and returns a review in the same JSON shape the LLM providers
// are asked for, so the summarizer treats every provider alike.
package heuristic

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/bryanwahyu/automaton-review/internal/domain/ai"
	"github.com/bryanwahyu/automaton-review/internal/domain/findings"
	"github.com/bryanwahyu/automaton-review/internal/infra/ai/prompt"
)

type rule struct {
	re       *regexp.Regexp
	title    string
	why      string
	how      string
	severity findings.Severity
	win      string
}

// rules are matched against "<tool> <code> <message>"; first match wins.
var rules = []rule{
	{regexp.MustCompile(`(?i)\bB10[5-7]\b|hardcoded.*(password|secret|token)`), "Remove hardcoded credentials",
		"Secrets committed to source leak through every clone and backup.",
		"Load credentials from environment variables or a secret manager and rotate the exposed values.",
		findings.SeverityHigh, "Move hardcoded secrets into environment configuration"},
	{regexp.MustCompile(`(?i)\bB60[2-9]\b|subprocess|shell=True|os\.system`), "Harden subprocess calls",
		"Shell invocation with untrusted input allows command injection.",
		"Pass argument lists instead of shell strings and validate every external input.",
		findings.SeverityHigh, "Replace shell=True calls with argument lists"},
	{regexp.MustCompile(`(?i)\bB30[1-3]\b|\bB40[3-9]\b|pickle|marshal|md5|sha1`), "Avoid unsafe deserialization and weak hashes",
		"pickle/marshal execute code on load and md5/sha1 are broken for security use.",
		"Use json for data exchange and hashlib.sha256 or better for integrity checks.",
		findings.SeverityMedium, ""},
	{regexp.MustCompile(`(?i)\bB608\b|sql`), "Parameterize SQL queries",
		"String-built SQL is open to injection.",
		"Use the driver's placeholder parameters instead of formatting queries.",
		findings.SeverityHigh, ""},
	{regexp.MustCompile(`(?i)\bB101\b|assert`), "Do not rely on assert for checks",
		"Assertions are stripped when Python runs with -O.",
		"Raise explicit exceptions for runtime validation.",
		findings.SeverityLow, ""},
	{regexp.MustCompile(`(?i)^radon-cc |too-many-(branches|statements|locals)|complex`), "Reduce function complexity",
		"Highly branched functions are hard to test and change safely.",
		"Split large functions into smaller helpers and cover each path with tests.",
		findings.SeverityMedium, "Split the most complex function into helpers"},
	{regexp.MustCompile(`(?i)\bE9\d*\b|syntax-error|\bE0\d{3}\b|undefined|import-error|\bF8\d*\b`), "Fix errors that break execution",
		"Syntax errors, undefined names and failing imports stop the module from running.",
		"Run the linter locally and fix every error-class finding before anything else.",
		findings.SeverityHigh, "Fix the syntax and undefined-name errors first"},
	{regexp.MustCompile(`(?i)unused|\bF401\b|\bW0611\b|\bW0612\b`), "Remove unused code",
		"Unused imports and variables hide real problems in lint output.",
		"Delete the unused names or enable autofix in your editor.",
		findings.SeverityLow, "Delete unused imports and variables"},
	{regexp.MustCompile(`(?i)docstring|\bC01\d{2}\b|naming|invalid-name|line-too-long`), "Tidy style and documentation",
		"Consistent naming and docstrings make the code easier to review.",
		"Adopt a formatter and add docstrings to public functions.",
		findings.SeverityLow, "Run a formatter over the code base"},
}

// Reviewer implements ai.Reviewer without network access.
type Reviewer struct{}

func New() *Reviewer { return &Reviewer{} }

func (*Reviewer) Name() string { return "heuristic" }

func (*Reviewer) Review(ctx context.Context, req ai.ReviewRequest) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	type bucket struct {
		rule  rule
		count int
		first findings.Finding
	}
	buckets := make([]*bucket, len(rules))
	var bySeverity = map[findings.Severity]int{}
	for _, f := range req.Findings {
		bySeverity[f.Severity]++
		subject := fmt.Sprintf("%s %s %s", f.Tool, f.Code, f.Message)
		for i, r := range rules {
			if r.re.MatchString(subject) {
				if buckets[i] == nil {
					buckets[i] = &bucket{rule: r, first: f}
				}
				buckets[i].count++
				break
			}
		}
	}

	out := prompt.Review{
		Checklist: []prompt.ChecklistItem{},
		TopWins:   []string{},
	}
	// Checklist ordered by severity, then by rule order.
	for _, sev := range []findings.Severity{findings.SeverityHigh, findings.SeverityMedium, findings.SeverityLow} {
		for _, b := range buckets {
			if b == nil || b.rule.severity != sev {
				continue
			}
			out.Checklist = append(out.Checklist, prompt.ChecklistItem{
				Title:    b.rule.title,
				Why:      fmt.Sprintf("%s %d finding(s), e.g. %s:%d.", b.rule.why, b.count, b.first.Path, b.first.Line),
				How:      b.rule.how,
				Severity: string(sev),
			})
			if b.rule.win != "" {
				out.TopWins = append(out.TopWins, b.rule.win)
			}
		}
	}

	out.Summary = summary(req, bySeverity)
	if len(out.TopWins) == 0 {
		out.TopWins = append(out.TopWins, "Add the linters to CI so new findings are caught on every change")
	}

	b, err := json.Marshal(out)
	if err != nil {
		return "", fmt.Errorf("failed to marshal review: %w", err)
	}
	return string(b), nil
}

func summary(req ai.ReviewRequest, bySeverity map[findings.Severity]int) string {
	var sb strings.Builder
	if req.TotalFindings == 0 {
		fmt.Fprintf(&sb, "No findings were reported across %d file(s). Keep the linters in CI to hold this baseline.", req.Meta.FileCount)
		codeMetrics(&sb, req.Meta)
		return sb.String()
	}
	fmt.Fprintf(&sb, "%d finding(s) across %d file(s): %d high, %d medium, %d low",
		req.TotalFindings, req.Meta.FileCount,
		bySeverity[findings.SeverityHigh], bySeverity[findings.SeverityMedium], bySeverity[findings.SeverityLow])
	if req.TotalFindings > len(req.Findings) {
		fmt.Fprintf(&sb, " (first %d reviewed)", len(req.Findings))
	}
	sb.WriteString(".")
	if len(req.Meta.TopFiles) > 0 {
		top := req.Meta.TopFiles[0]
		fmt.Fprintf(&sb, " %s has the most findings (%d); start there.", top.Path, top.Findings)
	}
	codeMetrics(&sb, req.Meta)
	return sb.String()
}

func codeMetrics(sb *strings.Builder, meta ai.TreeMeta) {
	if meta.PylintScore != nil {
		fmt.Fprintf(sb, " pylint rates the code %.2f/10.", *meta.PylintScore)
	}
	if len(meta.LeastMaintainable) > 0 {
		low := meta.LeastMaintainable[0]
		fmt.Fprintf(sb, " %s has the lowest maintainability index (%.1f).", low.Path, low.MI)
	}
}
