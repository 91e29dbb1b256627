package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainai "github.com/bryanwahyu/automaton-review/internal/domain/ai"
	"github.com/bryanwahyu/automaton-review/internal/domain/findings"
	"github.com/bryanwahyu/automaton-review/internal/domain/jobs"
	"github.com/bryanwahyu/automaton-review/internal/infra/ai/prompt"
)

type fakeReviewer struct {
	reply string
	err   error
	delay time.Duration
	got   domainai.ReviewRequest
}

func (f *fakeReviewer) Name() string { return "fake-model" }

func (f *fakeReviewer) Review(ctx context.Context, req domainai.ReviewRequest) (string, error) {
	f.got = req
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return f.reply, f.err
}

func someFindings(n int) []findings.Finding {
	out := make([]findings.Finding, n)
	for i := range out {
		out[i] = findings.Finding{Tool: findings.ToolRuff, Severity: findings.SeverityLow, Code: "E501", Path: fmt.Sprintf("f%d.py", i%3), Line: i + 1, Message: "Line too long"}
	}
	return out
}

func TestSummarizeSuccess(t *testing.T) {
	rev := &fakeReviewer{reply: `{
	  "summary": "  Looks fine overall.  ",
	  "checklist": [
	    {"title":"Fix SQL","why":"injection","how":"params","severity":"HIGH"},
	    {"title":"  ","why":"dropped"},
	    {"title":"Weird severity","severity":"urgent"}
	  ],
	  "top_wins": ["a", " ", "b"]
	}`}
	var marker = "unset"
	s := &Summarizer{Reviewer: rev, Observe: func(m string, _ time.Duration) { marker = m }}

	got := s.Summarize(context.Background(), someFindings(3), jobs.TreeStats{FileCount: 10})

	assert.False(t, got.Failed())
	assert.Equal(t, "", marker)
	assert.Equal(t, "Looks fine overall.", got.Summary)
	assert.Equal(t, "fake-model", got.Model)
	require.Len(t, got.Checklist, 2)
	assert.Equal(t, findings.SeverityHigh, got.Checklist[0].Severity)
	assert.Equal(t, findings.Severity(""), got.Checklist[1].Severity)
	assert.Equal(t, []string{"a", "b"}, got.TopWins)
	assert.Equal(t, 10, rev.got.Meta.FileCount)
}

func TestSummarizeCapsInputAndOutput(t *testing.T) {
	var items []string
	for i := 0; i < 12; i++ {
		items = append(items, fmt.Sprintf(`{"title":"item %d","severity":"low"}`, i))
	}
	wins := `["1","2","3","4","5","6","7"]`
	rev := &fakeReviewer{reply: fmt.Sprintf(`{"summary":%q,"checklist":[%s],"top_wins":%s}`,
		strings.Repeat("é", 50), strings.Join(items, ","), wins)}
	s := &Summarizer{Reviewer: rev, MaxFindings: 5, MaxSummaryChars: 10}

	got := s.Summarize(context.Background(), someFindings(20), jobs.TreeStats{FileCount: 3})

	assert.Len(t, rev.got.Findings, 5)
	assert.Equal(t, 20, rev.got.TotalFindings)
	assert.Len(t, rev.got.Meta.TopFiles, 3)
	assert.Len(t, got.Checklist, maxChecklist)
	assert.Len(t, got.TopWins, maxTopWins)
	assert.Equal(t, strings.Repeat("é", 10), got.Summary)
}

func TestSummarizeFailureMarkers(t *testing.T) {
	tests := []struct {
		name   string
		rev    *fakeReviewer
		want   string
		nilRev bool
	}{
		{"provider error", &fakeReviewer{err: errors.New("500 from upstream")}, MarkerFailed, false},
		{"quota", &fakeReviewer{err: fmt.Errorf("openai: %w", domainai.ErrQuotaExceeded)}, MarkerQuota, false},
		{"disabled error", &fakeReviewer{err: domainai.ErrDisabled}, MarkerDisabled, false},
		{"unparseable", &fakeReviewer{reply: "sorry, I cannot help"}, MarkerUnparseable, false},
		{"empty review", &fakeReviewer{reply: `{"summary":"","checklist":[]}`}, MarkerUnparseable, false},
		{"checklist without summary", &fakeReviewer{reply: `{"summary":"","checklist":[{"title":"Fix imports"}]}`}, MarkerUnparseable, false},
		{"blank summary and titles", &fakeReviewer{reply: `{"summary":"   ","checklist":[{"title":"  "}]}`}, MarkerUnparseable, false},
		{"no reviewer", nil, MarkerDisabled, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &Summarizer{}
			if !tt.nilRev {
				s.Reviewer = tt.rev
			}
			var observed string
			s.Observe = func(m string, _ time.Duration) { observed = m }

			got := s.Summarize(context.Background(), someFindings(2), jobs.TreeStats{FileCount: 1})

			assert.True(t, got.Failed())
			assert.Equal(t, tt.want, got.Error)
			assert.Equal(t, tt.want, observed)
			assert.Empty(t, got.Summary)
			assert.Empty(t, got.Checklist)
		})
	}
}

func TestSummarizePassesCodeMetrics(t *testing.T) {
	rev := &fakeReviewer{reply: `{"summary":"ok"}`}
	s := &Summarizer{Reviewer: rev}
	score := 6.25
	mi := map[string]float64{}
	for i := 0; i < 15; i++ {
		mi[fmt.Sprintf("m%02d.py", i)] = float64(100 - i)
	}

	got := s.Summarize(context.Background(), someFindings(1), jobs.TreeStats{FileCount: 15, PylintScore: &score, Maintainability: mi})

	require.False(t, got.Failed())
	require.NotNil(t, rev.got.Meta.PylintScore)
	assert.Equal(t, 6.25, *rev.got.Meta.PylintScore)
	require.Len(t, rev.got.Meta.LeastMaintainable, leastMaintainable)
	assert.Equal(t, findings.FileMI{Path: "m14.py", MI: 86}, rev.got.Meta.LeastMaintainable[0])

	_ = s.Summarize(context.Background(), someFindings(1), jobs.TreeStats{FileCount: 1})
	assert.Nil(t, rev.got.Meta.PylintScore)
	assert.Empty(t, rev.got.Meta.LeastMaintainable)
}

func TestSummarizeTimeout(t *testing.T) {
	s := &Summarizer{Reviewer: &fakeReviewer{reply: `{"summary":"late"}`, delay: time.Second}, Timeout: 20 * time.Millisecond}

	start := time.Now()
	got := s.Summarize(context.Background(), someFindings(1), jobs.TreeStats{FileCount: 1})

	assert.Equal(t, MarkerTimeout, got.Error)
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}

func TestNormalizeRequiresSummary(t *testing.T) {
	s := &Summarizer{Reviewer: &fakeReviewer{}}

	got := s.normalize(&prompt.Review{Summary: " \n ", Checklist: []prompt.ChecklistItem{{Title: "Fix imports"}}})

	assert.Equal(t, MarkerUnparseable, got.Error)
	assert.Empty(t, got.Checklist)
	assert.Empty(t, got.Model)
}
