package analysis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	aiapp "github.com/bryanwahyu/automaton-review/internal/application/ai"
	"github.com/bryanwahyu/automaton-review/internal/domain/apperr"
	"github.com/bryanwahyu/automaton-review/internal/domain/jobs"
)

// Trees resolves materialized project trees.
type Trees interface {
	Path(projectID string) (string, error)
	Exists(projectID string) bool
	FileCount(projectID string) (int, error)
}

// Pipeline is one full analysis: tools, merge, summary.
type Pipeline struct {
	Trees      Trees
	Aggregator *Aggregator
	Summarizer *aiapp.Summarizer
	Logger     *slog.Logger
}

// Run analyzes the tree of projectID. Tool and summarizer failures are
// folded into the result; an error means no result could be produced.
func (p *Pipeline) Run(ctx context.Context, projectID string, jobID jobs.ID) (*jobs.AnalysisResult, error) {
	if !p.Trees.Exists(projectID) {
		return nil, fmt.Errorf("%w: source tree of project %s", apperr.ErrNotFound, projectID)
	}
	root, err := p.Trees.Path(projectID)
	if err != nil {
		return nil, fmt.Errorf("resolve tree: %w", err)
	}
	fileCount, err := p.Trees.FileCount(projectID)
	if err != nil {
		return nil, fmt.Errorf("%w: read tree: %v", apperr.ErrInternal, err)
	}

	prefix := ""
	if jobID != "" {
		prefix = "jobs/" + string(jobID)
	}
	res, err := p.Analyze(ctx, root, fileCount, prefix)
	if err != nil {
		return nil, err
	}
	res.ProjectID = projectID
	return res, nil
}

// Analyze runs the tools and the summarizer over root directly.
func (p *Pipeline) Analyze(ctx context.Context, root string, fileCount int, artifactPrefix string) (*jobs.AnalysisResult, error) {
	if fi, err := os.Stat(root); err != nil || !fi.IsDir() {
		return nil, fmt.Errorf("%w: tree %s is not readable", apperr.ErrNotFound, root)
	}

	outcome := p.Aggregator.Run(ctx, root, artifactPrefix)
	if err := deadline(ctx); err != nil {
		return nil, err
	}

	stats := jobs.TreeStats{
		FileCount:       fileCount,
		PylintScore:     outcome.Metrics.PylintScore,
		Maintainability: outcome.Metrics.Maintainability,
	}
	var review jobs.AIReview
	if p.Summarizer != nil {
		review = p.Summarizer.Summarize(ctx, outcome.Findings, stats)
	} else {
		review = jobs.AIReview{Error: aiapp.MarkerDisabled}
	}
	if err := deadline(ctx); err != nil {
		return nil, err
	}

	p.logger().Info("analysis finished", "root", root, "findings", len(outcome.Findings), "ai_error", review.Error)
	return &jobs.AnalysisResult{
		VPoints: outcome.Findings,
		AI:      review,
		Tools:   outcome.Reports,
		Stats:   stats,
	}, nil
}

func deadline(ctx context.Context) error {
	switch err := ctx.Err(); {
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: analysis", apperr.ErrTimeout)
	case err != nil:
		return err
	}
	return nil
}

func (p *Pipeline) logger() *slog.Logger {
	if p.Logger != nil {
		return p.Logger
	}
	return slog.Default()
}
