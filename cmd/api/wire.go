package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	aiapp "github.com/bryanwahyu/automaton-review/internal/application/ai"
	"github.com/bryanwahyu/automaton-review/internal/application/analysis"
	"github.com/bryanwahyu/automaton-review/internal/config"
	domainai "github.com/bryanwahyu/automaton-review/internal/domain/ai"
	"github.com/bryanwahyu/automaton-review/internal/domain/jobs"
	"github.com/bryanwahyu/automaton-review/internal/domain/projects"
	anthropicai "github.com/bryanwahyu/automaton-review/internal/infra/ai/anthropic"
	"github.com/bryanwahyu/automaton-review/internal/infra/ai/heuristic"
	openaiai "github.com/bryanwahyu/automaton-review/internal/infra/ai/openai"
	"github.com/bryanwahyu/automaton-review/internal/infra/db/memory"
	"github.com/bryanwahyu/automaton-review/internal/infra/db/sqlstore"
	"github.com/bryanwahyu/automaton-review/internal/infra/executor"
	"github.com/bryanwahyu/automaton-review/internal/infra/metrics"
	"github.com/bryanwahyu/automaton-review/internal/middleware"
)

func newLogger(cfg *config.Config, json bool) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.ToUpper(cfg.Log.Level))); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if json && cfg.Log.Format != "text" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

func newReviewer(cfg *config.Config) domainai.Reviewer {
	switch cfg.AI.Provider {
	case "openai":
		return openaiai.NewClient(cfg.AI.APIKey, cfg.AI.Model, cfg.AI.BaseURL)
	case "anthropic":
		return anthropicai.NewClient(cfg.AI.APIKey, cfg.AI.Model, cfg.AI.BaseURL)
	case "heuristic":
		return heuristic.New()
	}
	return nil
}

// newPipeline wires runner, aggregator and summarizer. artifacts and m may be nil.
func newPipeline(cfg *config.Config, trees analysis.Trees, artifacts executor.ArtifactStore, m *metrics.Metrics, log *slog.Logger) *analysis.Pipeline {
	runner := &executor.Runner{
		Specs:      executor.DefaultSpecs(cfg.Analysis.DockerImage),
		Timeout:    cfg.Analysis.ToolTimeout,
		Timeouts:   cfg.ToolTimeouts(),
		Docker:     cfg.Analysis.Mode == "docker",
		ScratchDir: cfg.Storage.ScratchDir,
		Artifacts:  artifacts,
		Logger:     log.With("component", "executor"),
	}
	summarizer := &aiapp.Summarizer{
		Reviewer:        newReviewer(cfg),
		MaxFindings:     cfg.AI.MaxFindings,
		MaxSummaryChars: cfg.AI.MaxSummaryChars,
		Timeout:         cfg.AI.Timeout,
		Logger:          log.With("component", "summarizer"),
	}
	agg := &analysis.Aggregator{
		Runner:      runner,
		Tools:       cfg.Tools(),
		Parallelism: cfg.Analysis.MaxParallelTools,
		Logger:      log.With("component", "aggregator"),
	}
	if m != nil {
		agg.Observe = m.ToolRun
		summarizer.Observe = m.Summarized
	}
	return &analysis.Pipeline{
		Trees:      trees,
		Aggregator: agg,
		Summarizer: summarizer,
		Logger:     log.With("component", "pipeline"),
	}
}

type stores struct {
	projects projects.Repository
	jobs     jobs.Repository
	checker  middleware.HealthChecker
	close    func() error
}

func openStores(ctx context.Context, cfg *config.Config) (*stores, error) {
	if cfg.Database.Driver == "memory" {
		return &stores{
			projects: memory.NewProjectRepository(),
			jobs:     memory.NewJobRepository(),
			close:    func() error { return nil },
		}, nil
	}
	if cfg.Database.Driver == "sqlite" && cfg.Database.Path != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.Database.Path), 0o755); err != nil {
			return nil, fmt.Errorf("sqlite dir: %w", err)
		}
	}
	db, err := sqlstore.Connect(ctx, sqlstore.Dialect(cfg.Database.Driver), cfg.DSN())
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return &stores{
		projects: sqlstore.NewProjectRepository(db),
		jobs:     sqlstore.NewJobRepository(db),
		checker:  db,
		close:    db.Close,
	}, nil
}
