package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/bryanwahyu/automaton-review/internal/application"
	appjobs "github.com/bryanwahyu/automaton-review/internal/application/jobs"
	appprojects "github.com/bryanwahyu/automaton-review/internal/application/projects"
	"github.com/bryanwahyu/automaton-review/internal/config"
	"github.com/bryanwahyu/automaton-review/internal/infra/executor"
	"github.com/bryanwahyu/automaton-review/internal/infra/httpserver"
	"github.com/bryanwahyu/automaton-review/internal/infra/metrics"
	minioStore "github.com/bryanwahyu/automaton-review/internal/infra/storage"
	"github.com/bryanwahyu/automaton-review/internal/infra/vcs"
	"github.com/bryanwahyu/automaton-review/internal/infra/workspace"
	"github.com/bryanwahyu/automaton-review/internal/middleware"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and the job worker",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(resolveConfigPath())
	if err != nil {
		return err
	}
	log := newLogger(cfg, true)
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := openStores(ctx, cfg)
	if err != nil {
		return fmt.Errorf("database: %w", err)
	}
	defer st.close()

	trees, err := workspace.New(cfg.Storage.ProjectsDir)
	if err != nil {
		return err
	}
	trees.MaxFileBytes = cfg.Storage.MaxFileKB << 10

	checkers := map[string]middleware.HealthChecker{}
	if st.checker != nil {
		checkers["database"] = st.checker
	}

	// MinIO opsional: tanpa itu artifact tidak diarsipkan.
	var (
		toolArtifacts   executor.ArtifactStore
		sourceArtifacts appprojects.ArtifactStore
	)
	if cfg.Minio.Enabled {
		store, err := minioStore.New(ctx,
			cfg.Minio.Endpoint,
			cfg.Minio.Region,
			cfg.Minio.BucketName,
			cfg.Minio.AccessKey,
			cfg.Minio.SecretKey,
			cfg.Minio.UseSSL,
		)
		if err != nil {
			return fmt.Errorf("minio init: %w", err)
		}
		toolArtifacts, sourceArtifacts = store, store
		checkers["artifacts"] = middleware.CheckFunc(store.Ping)
	}

	m := metrics.New(prometheus.DefaultRegisterer)
	pipeline := newPipeline(cfg, trees, toolArtifacts, m, log)

	jobSvc := &appjobs.Service{
		Repo:          st.jobs,
		Projects:      st.projects,
		Pipeline:      pipeline,
		Clock:         application.SystemClock{},
		Logger:        log.With("component", "jobs"),
		Recorder:      m,
		JobTimeout:    cfg.Analysis.JobTimeout,
		MaxConcurrent: cfg.Analysis.MaxConcurrentJobs,
	}
	projectSvc := &appprojects.Service{
		Repo:         st.projects,
		Trees:        trees,
		Cloner:       &vcs.Cloner{Token: cfg.GitHub.Token},
		Jobs:         jobSvc,
		Artifacts:    sourceArtifacts,
		Clock:        application.SystemClock{},
		Logger:       log.With("component", "projects"),
		CloneTimeout: cfg.GitHub.CloneTimeout,
	}

	failed, resumed, err := jobSvc.RecoverInterrupted(ctx)
	if err != nil {
		return fmt.Errorf("recover jobs: %w", err)
	}
	if failed+resumed > 0 {
		log.Info("recovered jobs", "failed", failed, "resumed", resumed)
	}

	opts := httpserver.Options{
		Projects:       projectSvc,
		Jobs:           jobSvc,
		Logger:         log.With("component", "http"),
		Metrics:        m,
		MetricsHandler: promhttp.Handler(),
		Checkers:       checkers,
		MaxUploadBytes: cfg.Storage.MaxUploadMB << 20,
		UploadDir:      cfg.Storage.ScratchDir,
		AllowedHosts:   cfg.GitHub.AllowedHosts,
	}
	if len(cfg.Auth.Tokens) > 0 {
		opts.Verifier = middleware.StaticTokens(cfg.Auth.Tokens)
	} else {
		log.Warn("authentication disabled; all requests run as anonymous")
	}
	if cfg.RateLimit.Enabled {
		rl := middleware.NewRateLimiter(cfg.RateLimit.RPS, cfg.RateLimit.Burst)
		opts.RateLimiter = rl
		go pruneLimiter(ctx, rl, time.Minute)
	}

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           httpserver.NewRouter(opts),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("server listening", "addr", addr, "db", cfg.Database.Driver, "ai", cfg.AI.Provider, "mode", cfg.Analysis.Mode)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	case <-ctx.Done():
	}
	log.Info("shutting down server...")

	// graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown", "err", err)
	}
	if err := jobSvc.Shutdown(shutdownCtx); err != nil {
		log.Error("job shutdown", "err", err)
	}
	return nil
}

func pruneLimiter(ctx context.Context, rl *middleware.RateLimiter, every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			rl.Prune(now)
		}
	}
}
