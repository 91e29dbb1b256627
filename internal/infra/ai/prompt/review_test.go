package prompt

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bryanwahyu/automaton-review/internal/domain/ai"
	"github.com/bryanwahyu/automaton-review/internal/domain/findings"
)

func payload(t *testing.T, msg string) map[string]any {
	t.Helper()
	start := strings.Index(msg, "{")
	end := strings.Index(msg, "\n\nTask:")
	require.True(t, start >= 0 && end > start, "payload not found in %q", msg)
	var out map[string]any
	require.NoError(t, json.Unmarshal([]byte(msg[start:end]), &out))
	return out
}

func TestUserPromptCarriesCodeMetrics(t *testing.T) {
	score := 8.1
	msg := UserPrompt(ai.ReviewRequest{
		TotalFindings: 1,
		Findings:      []findings.Finding{{Tool: findings.ToolRuff, Code: "F401", Severity: findings.SeverityMedium, Path: "a.py", Line: 1, Message: "unused"}},
		Meta: ai.TreeMeta{
			FileCount:         1,
			PylintScore:       &score,
			LeastMaintainable: []findings.FileMI{{Path: "a.py", MI: 40}},
		},
	})

	tree, ok := payload(t, msg)["tree"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, 8.1, tree["pylintScore"])
	assert.Equal(t, []any{map[string]any{"path": "a.py", "mi": 40.0}}, tree["leastMaintainable"])
}

func TestUserPromptOmitsMissingMetrics(t *testing.T) {
	tree := payload(t, UserPrompt(ai.ReviewRequest{Meta: ai.TreeMeta{FileCount: 3}}))["tree"].(map[string]any)

	assert.Equal(t, 3.0, tree["fileCount"])
	assert.NotContains(t, tree, "pylintScore")
	assert.NotContains(t, tree, "leastMaintainable")
}
