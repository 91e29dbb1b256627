package ai

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/bryanwahyu/automaton-review/internal/domain/ai"
	"github.com/bryanwahyu/automaton-review/internal/domain/findings"
	"github.com/bryanwahyu/automaton-review/internal/domain/jobs"
	"github.com/bryanwahyu/automaton-review/internal/infra/ai/prompt"
)

// Error markers recorded on AIReview.Error. They are shown to API clients.
const (
	MarkerFailed      = "summarization failed"
	MarkerTimeout     = "summarization timed out"
	MarkerUnparseable = "summarization returned unparseable output"
	MarkerQuota       = "ai quota exceeded"
	MarkerDisabled    = "summarization disabled"
)

const (
	defaultMaxFindings     = 40
	defaultMaxSummaryChars = 2000
	maxChecklist           = 8
	maxTopWins             = 5
	topFiles               = 5
	leastMaintainable      = 10
)

// Observer is notified once per summarization with its outcome marker
// ("" on success).
type Observer func(marker string, d time.Duration)

// Summarizer runs one review pass. A nil Reviewer means summarization is
// disabled.
type Summarizer struct {
	Reviewer        ai.Reviewer
	MaxFindings     int
	MaxSummaryChars int
	Timeout         time.Duration
	Logger          *slog.Logger
	Observe         Observer
}

// Summarize never fails; every problem becomes an error marker.
func (s *Summarizer) Summarize(ctx context.Context, fs []findings.Finding, stats jobs.TreeStats) jobs.AIReview {
	start := time.Now()
	review := s.summarize(ctx, fs, stats)
	if s.Observe != nil {
		s.Observe(review.Error, time.Since(start))
	}
	return review
}

func (s *Summarizer) summarize(ctx context.Context, fs []findings.Finding, stats jobs.TreeStats) jobs.AIReview {
	if s.Reviewer == nil {
		return jobs.AIReview{Error: MarkerDisabled}
	}
	log := s.logger()

	limit := s.MaxFindings
	if limit <= 0 {
		limit = defaultMaxFindings
	}
	capped := fs
	if len(capped) > limit {
		capped = capped[:limit]
	}
	req := ai.ReviewRequest{
		Findings:      capped,
		TotalFindings: len(fs),
		Meta: ai.TreeMeta{
			FileCount:         stats.FileCount,
			TopFiles:          findings.TopFiles(fs, topFiles),
			PylintScore:       stats.PylintScore,
			LeastMaintainable: findings.LeastMaintainable(stats.Maintainability, leastMaintainable),
		},
	}

	if s.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.Timeout)
		defer cancel()
	}

	raw, err := s.Reviewer.Review(ctx, req)
	if err != nil {
		marker := MarkerFailed
		switch {
		case errors.Is(err, ai.ErrDisabled):
			marker = MarkerDisabled
		case errors.Is(err, ai.ErrQuotaExceeded):
			marker = MarkerQuota
		case errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded):
			marker = MarkerTimeout
		}
		log.Warn("summarization failed", "reviewer", s.Reviewer.Name(), "marker", marker, "error", err)
		return jobs.AIReview{Error: marker}
	}

	parsed, err := prompt.ParseReview(raw)
	if err != nil {
		log.Warn("summarization output rejected", "reviewer", s.Reviewer.Name(), "error", err, "bytes", len(raw))
		return jobs.AIReview{Error: MarkerUnparseable}
	}
	return s.normalize(parsed)
}

// normalize trims and caps a parsed review. A review always carries a
// summary; without one it becomes the unparseable marker.
func (s *Summarizer) normalize(r *prompt.Review) jobs.AIReview {
	summary := strings.TrimSpace(r.Summary)
	if summary == "" {
		return jobs.AIReview{Error: MarkerUnparseable}
	}
	maxChars := s.MaxSummaryChars
	if maxChars <= 0 {
		maxChars = defaultMaxSummaryChars
	}
	out := jobs.AIReview{
		Summary:   truncateRunes(summary, maxChars),
		Checklist: make([]jobs.ChecklistItem, 0, maxChecklist),
		TopWins:   make([]string, 0, maxTopWins),
		Model:     s.Reviewer.Name(),
	}
	for _, item := range r.Checklist {
		if len(out.Checklist) == maxChecklist {
			break
		}
		title := strings.TrimSpace(item.Title)
		if title == "" {
			continue
		}
		ci := jobs.ChecklistItem{
			Title: title,
			Why:   strings.TrimSpace(item.Why),
			How:   strings.TrimSpace(item.How),
		}
		if sev, ok := findings.ParseSeverity(item.Severity); ok {
			ci.Severity = sev
		}
		out.Checklist = append(out.Checklist, ci)
	}
	for _, w := range r.TopWins {
		if len(out.TopWins) == maxTopWins {
			break
		}
		if w = strings.TrimSpace(w); w != "" {
			out.TopWins = append(out.TopWins, w)
		}
	}
	return out
}

func (s *Summarizer) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
