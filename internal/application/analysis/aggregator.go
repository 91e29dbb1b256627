package analysis

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/bryanwahyu/automaton-review/internal/domain/findings"
	"github.com/bryanwahyu/automaton-review/internal/domain/jobs"
)

const defaultParallelism = 2

// Aggregator runs every configured tool over one tree and merges the
// results. A failing tool only costs its own findings.
type Aggregator struct {
	Runner      findings.Runner
	Tools       []findings.Tool
	Parallelism int
	// Observe is called once per tool run.
	Observe func(findings.RunResult)
	Logger  *slog.Logger
}

// Outcome is the merged result of one aggregation.
type Outcome struct {
	Findings []findings.Finding
	Reports  []jobs.ToolReport
	Metrics  findings.Metrics
}

// Run executes the tools over root. artifactPrefix, when set, is the object
// key prefix for raw outputs ("<prefix>/<tool>.json").
func (a *Aggregator) Run(ctx context.Context, root, artifactPrefix string) Outcome {
	tools := a.Tools
	if len(tools) == 0 {
		tools = findings.KnownTools
	}
	limit := a.Parallelism
	if limit <= 0 {
		limit = defaultParallelism
	}

	results := make([]findings.RunResult, len(tools))
	var g errgroup.Group
	g.SetLimit(limit)
	for i, tool := range tools {
		g.Go(func() error {
			req := findings.RunRequest{Tool: tool, Root: root}
			if artifactPrefix != "" {
				req.ArtifactKey = fmt.Sprintf("%s/%s.json", artifactPrefix, tool)
			}
			results[i] = a.runOne(ctx, req)
			return nil
		})
	}
	_ = g.Wait()

	out := Outcome{
		Findings: []findings.Finding{},
		Reports:  make([]jobs.ToolReport, 0, len(tools)),
	}
	for _, res := range results {
		out.Findings = append(out.Findings, res.Findings...)
		out.Metrics.Merge(res.Metrics)
		out.Reports = append(out.Reports, jobs.ToolReport{
			Tool:        res.Tool,
			Findings:    len(res.Findings),
			DurationMS:  res.Duration.Milliseconds(),
			Error:       res.Err,
			ArtifactURL: res.ArtifactURL,
		})
		if a.Observe != nil {
			a.Observe(res)
		}
	}
	out.Findings = findings.Dedupe(out.Findings)
	findings.Sort(out.Findings)
	return out
}

// runOne shields the group from a panicking runner.
func (a *Aggregator) runOne(ctx context.Context, req findings.RunRequest) (res findings.RunResult) {
	defer func() {
		if r := recover(); r != nil {
			a.logger().Error("tool runner panicked", "tool", req.Tool, "panic", r)
			res = findings.RunResult{
				Tool:     req.Tool,
				Findings: []findings.Finding{},
				Err:      &findings.ToolError{Kind: findings.ErrorExit, Message: "runner crashed"},
			}
		}
	}()
	res = a.Runner.Run(ctx, req)
	res.Tool = req.Tool
	if res.Err != nil {
		a.logger().Warn("tool failed", "tool", req.Tool, "kind", res.Err.Kind, "message", res.Err.Message)
		res.Findings = []findings.Finding{}
		res.Metrics = findings.Metrics{}
	}
	if res.Findings == nil {
		res.Findings = []findings.Finding{}
	}
	return res
}

func (a *Aggregator) logger() *slog.Logger {
	if a.Logger != nil {
		return a.Logger
	}
	return slog.Default()
}
