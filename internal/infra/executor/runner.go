package executor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/bryanwahyu/automaton-review/internal/domain/findings"
)

const (
	defaultTimeout   = 180 * time.Second
	defaultMaxOutput = 32 << 20
	stderrTail       = 4 << 10
	containerRoot    = "/src"
	containerScratch = "/scratch"
)

// ArtifactStore archives raw tool output.
type ArtifactStore interface {
	Upload(ctx context.Context, localPath, key string) (string, error)
}

// Runner executes analysis tools as subprocesses, either from PATH or inside
// a throwaway container. It implements findings.Runner.
type Runner struct {
	Specs    map[findings.Tool]Spec
	Timeout  time.Duration
	Timeouts map[findings.Tool]time.Duration
	Docker   bool
	// DockerBinary defaults to "docker".
	DockerBinary string
	// ScratchDir is the parent of per-run scratch directories; empty means os.TempDir.
	ScratchDir     string
	MaxOutputBytes int64
	Artifacts      ArtifactStore
	Logger         *slog.Logger
}

func (r *Runner) Run(ctx context.Context, req findings.RunRequest) (res findings.RunResult) {
	start := time.Now()
	res.Tool = req.Tool
	defer func() { res.Duration = time.Since(start) }()

	log := r.logger().With("tool", req.Tool)
	fail := func(kind findings.ErrorKind, msg string) findings.RunResult {
		res.Findings = []findings.Finding{}
		res.Metrics = findings.Metrics{}
		res.Err = &findings.ToolError{Kind: kind, Message: msg}
		return res
	}

	spec, ok := r.specs()[req.Tool]
	if !ok {
		return fail(findings.ErrorUnavailable, "tool not configured")
	}

	scratch, err := os.MkdirTemp(r.ScratchDir, "review-"+string(req.Tool)+"-")
	if err != nil {
		log.Error("scratch directory", "error", err)
		return fail(findings.ErrorUnavailable, "scratch directory unavailable")
	}
	defer func() {
		if err := os.RemoveAll(scratch); err != nil {
			log.Warn("remove scratch", "dir", scratch, "error", err)
		}
	}()

	timeout := r.timeoutFor(req.Tool)
	tctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	stdout := &cappedBuffer{max: r.maxOutput()}
	stderr := &cappedBuffer{max: stderrTail, keepTail: true}
	cmd := r.command(tctx, spec, req.Root, scratch)
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	cmd.WaitDelay = 2 * time.Second

	runErr := cmd.Run()
	if tctx.Err() != nil {
		log.Warn("tool timed out", "timeout", timeout, "parent_cancelled", ctx.Err() != nil)
		if ctx.Err() != nil {
			return fail(findings.ErrorTimeout, "cancelled")
		}
		return fail(findings.ErrorTimeout, fmt.Sprintf("exceeded %s", timeout))
	}

	if runErr != nil {
		var exitErr *exec.ExitError
		switch {
		case errors.As(runErr, &exitErr):
			if code := exitErr.ExitCode(); spec.OK == nil || !spec.OK(code) {
				log.Warn("tool exited", "code", code, "stderr", stderr.String())
				return fail(findings.ErrorExit, fmt.Sprintf("exited with status %d", code))
			}
		case errors.Is(runErr, exec.ErrNotFound):
			return fail(findings.ErrorUnavailable, fmt.Sprintf("%s not found", cmd.Path))
		default:
			log.Error("tool start", "error", runErr)
			return fail(findings.ErrorUnavailable, "could not start tool")
		}
	}

	if stdout.overflow {
		return fail(findings.ErrorParse, fmt.Sprintf("output exceeds %d bytes", stdout.max))
	}

	out := stdout.Bytes()
	res.ArtifactURL = r.archive(ctx, log, scratch, req, out)

	root := req.Root
	if r.Docker {
		root = containerRoot
	}
	rep, err := findings.Decode(req.Tool, out, root)
	if err != nil {
		log.Warn("tool output rejected", "error", err, "bytes", len(out))
		return fail(findings.ErrorParse, "malformed output")
	}
	res.Findings = rep.Findings
	res.Metrics = rep.Metrics
	if req.Tool == findings.ToolPylint && res.Metrics.PylintScore == nil {
		// older reporters print the rating as text on stderr
		if score, ok := findings.ScoreFromText(stderr.String()); ok {
			res.Metrics.PylintScore = &score
		}
	}
	return res
}

func (r *Runner) command(ctx context.Context, spec Spec, root, scratch string) *exec.Cmd {
	if !r.Docker {
		cmd := exec.CommandContext(ctx, spec.Binary, spec.Args...)
		cmd.Dir = root
		cmd.Env = append(os.Environ(), toolEnv(scratch)...)
		return cmd
	}

	bin := r.DockerBinary
	if bin == "" {
		bin = "docker"
	}
	args := []string{"run", "--rm", "--network", "none",
		"-v", root + ":" + containerRoot + ":ro",
		"-v", scratch + ":" + containerScratch,
		"-w", containerRoot,
	}
	for _, kv := range toolEnv(containerScratch) {
		args = append(args, "-e", kv)
	}
	args = append(args, spec.Image, spec.Binary)
	args = append(args, spec.Args...)
	return exec.CommandContext(ctx, bin, args...)
}

// toolEnv points every tool cache at the scratch directory so the tree stays untouched.
func toolEnv(scratch string) []string {
	return []string{
		"HOME=" + scratch,
		"XDG_CACHE_HOME=" + filepath.Join(scratch, "cache"),
		"PYLINTHOME=" + filepath.Join(scratch, "pylint"),
		"RUFF_CACHE_DIR=" + filepath.Join(scratch, "ruff"),
		"PYTHONDONTWRITEBYTECODE=1",
	}
}

func (r *Runner) archive(ctx context.Context, log *slog.Logger, scratch string, req findings.RunRequest, out []byte) string {
	if r.Artifacts == nil || req.ArtifactKey == "" {
		return ""
	}
	local := filepath.Join(scratch, string(req.Tool)+".json")
	if err := os.WriteFile(local, out, 0o600); err != nil {
		log.Warn("write raw output", "error", err)
		return ""
	}
	url, err := r.Artifacts.Upload(ctx, local, req.ArtifactKey)
	if err != nil {
		log.Warn("archive raw output", "key", req.ArtifactKey, "error", err)
		return ""
	}
	return url
}

func (r *Runner) specs() map[findings.Tool]Spec {
	if r.Specs != nil {
		return r.Specs
	}
	return DefaultSpecs("")
}

func (r *Runner) timeoutFor(t findings.Tool) time.Duration {
	if d, ok := r.Timeouts[t]; ok && d > 0 {
		return d
	}
	if r.Timeout > 0 {
		return r.Timeout
	}
	return defaultTimeout
}

func (r *Runner) maxOutput() int64 {
	if r.MaxOutputBytes > 0 {
		return r.MaxOutputBytes
	}
	return defaultMaxOutput
}

func (r *Runner) logger() *slog.Logger {
	if r.Logger != nil {
		return r.Logger
	}
	return slog.Default()
}

// cappedBuffer stops growing at max bytes. With keepTail it keeps the last
// max bytes instead of the first.
type cappedBuffer struct {
	buf      bytes.Buffer
	max      int64
	keepTail bool
	overflow bool
}

func (b *cappedBuffer) Write(p []byte) (int, error) {
	n := len(p)
	if b.keepTail {
		b.buf.Write(p)
		if over := int64(b.buf.Len()) - b.max; over > 0 {
			b.buf.Next(int(over))
			b.overflow = true
		}
		return n, nil
	}
	room := b.max - int64(b.buf.Len())
	if int64(len(p)) > room {
		b.overflow = true
		if room > 0 {
			b.buf.Write(p[:room])
		}
		return n, nil
	}
	b.buf.Write(p)
	return n, nil
}

func (b *cappedBuffer) Bytes() []byte { return b.buf.Bytes() }

func (b *cappedBuffer) String() string { return strings.TrimSpace(b.buf.String()) }
