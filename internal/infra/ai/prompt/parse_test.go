package prompt

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bryanwahyu/automaton-review/internal/domain/ai"
	"github.com/bryanwahyu/automaton-review/internal/domain/findings"
)

func TestParseReview(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		summary string
		items   int
	}{
		{
			name:    "plain object",
			input:   `{"summary":"ok","checklist":[{"title":"t","why":"w","how":"h","severity":"high"}],"top_wins":["a"]}`,
			summary: "ok",
			items:   1,
		},
		{
			name:    "code fence",
			input:   "```json\n{\"summary\":\"fenced\",\"checklist\":[]}\n```",
			summary: "fenced",
		},
		{
			name:    "trailing commas",
			input:   `{"summary":"tc","checklist":[{"title":"t","severity":"low"},],}`,
			summary: "tc",
			items:   1,
		},
		{
			name:    "prose around object",
			input:   "Here is the review you asked for:\n{\"summary\":\"wrapped\",\"top_wins\":[]}\nHope it helps.",
			summary: "wrapped",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := ParseReview(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.summary, r.Summary)
			assert.Len(t, r.Checklist, tt.items)
		})
	}
}

func TestParseReviewRejects(t *testing.T) {
	for name, input := range map[string]string{
		"empty":          "   ",
		"prose":          "I could not review this project.",
		"empty object":   `{}`,
		"broken json":    `{"summary": "x"`,
		"array":          `[1,2,3]`,
		"checklist only": `{"checklist":[{"title":"t"}]}`,
		"blank summary":  `{"summary":"   ","checklist":[{"title":"Fix imports"}]}`,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := ParseReview(input)
			assert.ErrorIs(t, err, ErrUnparseable)
		})
	}
}

func TestUserPromptIsCompact(t *testing.T) {
	req := ai.ReviewRequest{
		Findings: []findings.Finding{
			{Tool: findings.ToolPylint, Severity: findings.SeverityHigh, Code: "E0602", Message: "Undefined variable 'x'", Path: "a.py", Line: 3},
		},
		TotalFindings: 12,
		Meta: ai.TreeMeta{
			FileCount: 4,
			TopFiles:  []findings.FileCount{{Path: "a.py", Findings: 9}},
		},
	}
	p := UserPrompt(req)

	assert.Contains(t, p, "E0602")
	assert.Contains(t, p, "a.py")
	assert.Contains(t, p, `"totalFindings":12`)
	assert.Contains(t, p, "top_wins")
	assert.False(t, strings.Contains(p, "\n  "), "payload is not indented")
	assert.Contains(t, SystemPrompt(), "top_wins")
}
