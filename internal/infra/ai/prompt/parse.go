package prompt

import (
	"encoding/json"
	"errors"
	"regexp"
	"strings"
)

var (
	codeFenceRegex = regexp.MustCompile("(?s)`{3}(?:json|JSON)?\\s*\\n?(.*?)\\n?`{3}")
	trailingComma  = regexp.MustCompile(`,(\s*[}\]])`)
	objectRegex    = regexp.MustCompile(`(?s)\{.*\}`)
)

// ErrUnparseable is returned when no JSON review could be recovered.
var ErrUnparseable = errors.New("unparseable review")

// Review is the document a reviewer is asked to produce. Severity is kept as
// free text; callers normalize it.
type Review struct {
	Summary   string          `json:"summary"`
	Checklist []ChecklistItem `json:"checklist"`
	TopWins   []string        `json:"top_wins"`
}

type ChecklistItem struct {
	Title    string `json:"title"`
	Why      string `json:"why"`
	How      string `json:"how"`
	Severity string `json:"severity"`
}

// ParseReview decodes a model reply. It tolerates code fences, trailing
// commas and prose around the object. A reply without a summary is rejected.
func ParseReview(text string) (*Review, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil, ErrUnparseable
	}
	candidates := []string{trimmed}
	if m := codeFenceRegex.FindStringSubmatch(trimmed); m != nil {
		candidates = append(candidates, strings.TrimSpace(m[1]))
	}
	last := candidates[len(candidates)-1]
	candidates = append(candidates, trailingComma.ReplaceAllString(last, "$1"))
	if obj := objectRegex.FindString(candidates[len(candidates)-1]); obj != "" {
		candidates = append(candidates, obj)
	}

	for _, c := range candidates {
		var r Review
		if err := json.Unmarshal([]byte(c), &r); err != nil {
			continue
		}
		if strings.TrimSpace(r.Summary) == "" {
			return nil, ErrUnparseable
		}
		return &r, nil
	}
	return nil, ErrUnparseable
}
