package analysis

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bryanwahyu/automaton-review/internal/domain/findings"
)

// stubRunner answers per tool; tools without an entry return no findings.
type stubRunner struct {
	mu       sync.Mutex
	results  map[findings.Tool]findings.RunResult
	delays   map[findings.Tool]time.Duration
	panics   map[findings.Tool]bool
	requests []findings.RunRequest

	active, peak atomic.Int32
}

func (s *stubRunner) Run(ctx context.Context, req findings.RunRequest) findings.RunResult {
	n := s.active.Add(1)
	defer s.active.Add(-1)
	for {
		p := s.peak.Load()
		if n <= p || s.peak.CompareAndSwap(p, n) {
			break
		}
	}
	s.mu.Lock()
	s.requests = append(s.requests, req)
	s.mu.Unlock()

	if s.panics[req.Tool] {
		panic("boom")
	}
	if d := s.delays[req.Tool]; d > 0 {
		select {
		case <-time.After(d):
		case <-ctx.Done():
			return findings.RunResult{Err: &findings.ToolError{Kind: findings.ErrorTimeout, Message: "cancelled"}}
		}
	}
	return s.results[req.Tool]
}

func f(tool findings.Tool, path string, line int, code string, sev findings.Severity) findings.Finding {
	return findings.Finding{Tool: tool, Path: path, Line: line, EndLine: line, Code: code, Severity: sev, Message: code}
}

func TestAggregatorMergesAndOrders(t *testing.T) {
	runner := &stubRunner{
		results: map[findings.Tool]findings.RunResult{
			findings.ToolPylint: {Findings: []findings.Finding{
				f(findings.ToolPylint, "b.py", 1, "C0114", findings.SeverityLow),
				f(findings.ToolPylint, "a.py", 3, "E0602", findings.SeverityHigh),
				f(findings.ToolPylint, "a.py", 3, "E0602", findings.SeverityHigh),
			}, Duration: 1500 * time.Millisecond},
			findings.ToolRuff: {Findings: []findings.Finding{
				f(findings.ToolRuff, "a.py", 1, "F401", findings.SeverityMedium),
			}},
		},
		// finish in reverse order of configuration
		delays: map[findings.Tool]time.Duration{findings.ToolPylint: 30 * time.Millisecond},
	}
	var observed []findings.Tool
	agg := &Aggregator{
		Runner:      runner,
		Tools:       []findings.Tool{findings.ToolPylint, findings.ToolRuff},
		Parallelism: 2,
		Observe:     func(r findings.RunResult) { observed = append(observed, r.Tool) },
	}

	out := agg.Run(context.Background(), "/tree", "jobs/j1")

	require.Len(t, out.Findings, 3, "duplicate dropped")
	assert.Equal(t, "F401", out.Findings[0].Code)
	assert.Equal(t, "E0602", out.Findings[1].Code)
	assert.Equal(t, "b.py", out.Findings[2].Path)

	require.Len(t, out.Reports, 2)
	assert.Equal(t, findings.ToolPylint, out.Reports[0].Tool)
	assert.Equal(t, 3, out.Reports[0].Findings)
	assert.Equal(t, int64(1500), out.Reports[0].DurationMS)
	assert.Equal(t, findings.ToolRuff, out.Reports[1].Tool)
	assert.Equal(t, []findings.Tool{findings.ToolPylint, findings.ToolRuff}, observed)

	keys := map[string]bool{}
	for _, r := range runner.requests {
		keys[r.ArtifactKey] = true
		assert.Equal(t, "/tree", r.Root)
	}
	assert.True(t, keys["jobs/j1/pylint.json"])
	assert.True(t, keys["jobs/j1/ruff.json"])
}

func TestAggregatorDeterministic(t *testing.T) {
	base := map[findings.Tool]findings.RunResult{
		findings.ToolPylint:  {Findings: []findings.Finding{f(findings.ToolPylint, "a.py", 2, "W0611", findings.SeverityMedium)}},
		findings.ToolBandit:  {Findings: []findings.Finding{f(findings.ToolBandit, "a.py", 2, "B101", findings.SeverityLow)}},
		findings.ToolRadonCC: {Findings: []findings.Finding{f(findings.ToolRadonCC, "a.py", 2, "CC-F", findings.SeverityHigh)}},
		findings.ToolRuff:    {Findings: []findings.Finding{f(findings.ToolRuff, "a.py", 2, "F401", findings.SeverityMedium)}},
	}
	var first []findings.Finding
	for i := 0; i < 4; i++ {
		delays := map[findings.Tool]time.Duration{}
		for j, tool := range findings.KnownTools {
			delays[tool] = time.Duration((i+j)%4) * 5 * time.Millisecond
		}
		out := (&Aggregator{Runner: &stubRunner{results: base, delays: delays}, Parallelism: 4}).Run(context.Background(), "/t", "")
		if first == nil {
			first = out.Findings
			continue
		}
		assert.Equal(t, first, out.Findings)
	}
	require.Len(t, first, 4)
	assert.Equal(t, findings.SeverityHigh, first[0].Severity)
}

func TestAggregatorAllToolsFail(t *testing.T) {
	runner := &stubRunner{results: map[findings.Tool]findings.RunResult{}}
	for _, tool := range findings.KnownTools {
		runner.results[tool] = findings.RunResult{
			Findings: []findings.Finding{f(tool, "x.py", 1, "X", findings.SeverityLow)},
			Err:      &findings.ToolError{Kind: findings.ErrorUnavailable, Message: string(tool) + " not found"},
		}
	}

	out := (&Aggregator{Runner: runner}).Run(context.Background(), "/t", "")

	assert.NotNil(t, out.Findings)
	assert.Empty(t, out.Findings, "failed tools contribute nothing")
	require.Len(t, out.Reports, len(findings.KnownTools))
	for _, r := range out.Reports {
		require.NotNil(t, r.Error)
		assert.Equal(t, findings.ErrorUnavailable, r.Error.Kind)
		assert.Equal(t, 0, r.Findings)
	}
}

func TestAggregatorRespectsParallelism(t *testing.T) {
	delays := map[findings.Tool]time.Duration{}
	for _, tool := range findings.KnownTools {
		delays[tool] = 20 * time.Millisecond
	}
	runner := &stubRunner{delays: delays}

	(&Aggregator{Runner: runner, Parallelism: 1}).Run(context.Background(), "/t", "")

	assert.Equal(t, int32(1), runner.peak.Load())
	assert.Len(t, runner.requests, len(findings.KnownTools))
}

func TestAggregatorSurvivesPanic(t *testing.T) {
	runner := &stubRunner{
		panics: map[findings.Tool]bool{findings.ToolBandit: true},
		results: map[findings.Tool]findings.RunResult{
			findings.ToolRuff: {Findings: []findings.Finding{f(findings.ToolRuff, "a.py", 1, "F401", findings.SeverityMedium)}},
		},
	}

	out := (&Aggregator{Runner: runner, Tools: []findings.Tool{findings.ToolBandit, findings.ToolRuff}}).Run(context.Background(), "/t", "")

	require.Len(t, out.Reports, 2)
	require.NotNil(t, out.Reports[0].Error)
	assert.Equal(t, "runner crashed", out.Reports[0].Error.Message)
	assert.Len(t, out.Findings, 1)
}

func TestAggregatorMergesMetrics(t *testing.T) {
	score := 9.0
	runner := &stubRunner{results: map[findings.Tool]findings.RunResult{
		findings.ToolPylint:  {Metrics: findings.Metrics{PylintScore: &score}},
		findings.ToolRadonMI: {Findings: []findings.Finding{}, Metrics: findings.Metrics{Maintainability: map[string]float64{"a.py": 55}}},
		findings.ToolRuff: {
			Err:     &findings.ToolError{Kind: findings.ErrorParse, Message: "bad output"},
			Metrics: findings.Metrics{Maintainability: map[string]float64{"ghost.py": 1}},
		},
	}}

	out := (&Aggregator{Runner: runner}).Run(context.Background(), "/t", "")

	require.NotNil(t, out.Metrics.PylintScore)
	assert.Equal(t, 9.0, *out.Metrics.PylintScore)
	assert.Equal(t, map[string]float64{"a.py": 55}, out.Metrics.Maintainability, "failed tools contribute no metrics")
}
