package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/bryanwahyu/automaton-review/internal/application"
	"github.com/bryanwahyu/automaton-review/internal/domain/apperr"
	domain "github.com/bryanwahyu/automaton-review/internal/domain/jobs"
	"github.com/bryanwahyu/automaton-review/internal/domain/projects"
)

const (
	defaultJobTimeout    = 15 * time.Minute
	defaultMaxConcurrent = 2
	finalizeTimeout      = 10 * time.Second
)

// Messages stored on failed jobs. They are shown to API clients.
const (
	MsgTimedOut    = "analysis timed out"
	MsgTreeMissing = "project source tree is missing"
	MsgInterrupted = "analysis interrupted"
	MsgRestarted   = "analysis interrupted by a server restart"
	MsgInternal    = "internal error"
)

// Pipeline produces the result of one job.
type Pipeline interface {
	Run(ctx context.Context, projectID string, jobID domain.ID) (*domain.AnalysisResult, error)
}

// Recorder receives job lifecycle events.
type Recorder interface {
	JobStarted()
	JobFinished(status string, started bool, d time.Duration)
}

// Service implements use-cases untuk Job. Jobs execute in-process, one
// goroutine each, at most MaxConcurrent at a time; the rest wait in pending.
// Service is safe for concurrent use.
type Service struct {
	Repo          domain.Repository
	Projects      projects.Repository
	Pipeline      Pipeline
	Clock         application.Clock
	Logger        *slog.Logger
	Recorder      Recorder
	JobTimeout    time.Duration
	MaxConcurrent int

	once     sync.Once
	slots    *semaphore.Weighted
	base     context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	mu       sync.Mutex
	inflight map[domain.ID]struct{}
	closed   bool
}

func (s *Service) init() {
	s.once.Do(func() {
		n := s.MaxConcurrent
		if n <= 0 {
			n = defaultMaxConcurrent
		}
		s.slots = semaphore.NewWeighted(int64(n))
		s.base, s.cancel = context.WithCancel(context.Background())
		s.inflight = map[domain.ID]struct{}{}
		if s.Logger == nil {
			s.Logger = slog.Default()
		}
	})
}

//
// ==== USE CASES ====
//

// CreateJob persists a pending job for a materialized project and starts it.
func (s *Service) CreateJob(ctx context.Context, projectID, owner string) (*domain.Job, error) {
	s.init()
	p, err := s.Projects.Get(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if !owns(owner, p.Owner) {
		return nil, fmt.Errorf("%w: project %s", apperr.ErrForbidden, projectID)
	}
	if !p.Materialized() {
		return nil, fmt.Errorf("%w: project %s", apperr.ErrIngestionIncomplete, projectID)
	}

	j := domain.New(domain.ID(application.NewID()), projectID, owner, application.NowFrom(s.Clock))
	if err := s.Repo.Create(ctx, j); err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}
	s.Logger.Info("job created", "job", j.ID, "project", projectID)
	snapshot := *j
	s.dispatch(j.ID)
	return &snapshot, nil
}

// GetJob returns the stored snapshot. It never waits on execution.
func (s *Service) GetJob(ctx context.Context, id domain.ID, owner string) (*domain.Job, error) {
	j, err := s.Repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !owns(owner, j.Owner) {
		return nil, fmt.Errorf("%w: job %s", apperr.ErrForbidden, id)
	}
	return j, nil
}

// ListJobs returns the newest jobs of owner, optionally for one project.
func (s *Service) ListJobs(ctx context.Context, projectID, owner string, limit int) ([]*domain.Job, error) {
	return s.Repo.List(ctx, domain.ListFilter{ProjectID: projectID, Owner: owner, Limit: limit})
}

// RecoverInterrupted settles jobs left behind by a previous process: running
// jobs are failed (no retry), pending ones are dispatched.
func (s *Service) RecoverInterrupted(ctx context.Context) (failed, resumed int, err error) {
	s.init()
	running, err := s.Repo.ListByStatus(ctx, domain.StatusRunning)
	if err != nil {
		return 0, 0, fmt.Errorf("list running jobs: %w", err)
	}
	for _, j := range running {
		next, err := j.Fail(application.NowFrom(s.Clock), MsgRestarted)
		if err != nil {
			continue
		}
		if err := s.Repo.Transition(ctx, next, domain.StatusRunning); err != nil {
			s.Logger.Warn("fail interrupted job", "job", j.ID, "error", err)
			continue
		}
		failed++
	}

	pending, err := s.Repo.ListByStatus(ctx, domain.StatusPending)
	if err != nil {
		return failed, 0, fmt.Errorf("list pending jobs: %w", err)
	}
	for _, j := range pending {
		s.dispatch(j.ID)
		resumed++
	}
	if failed+resumed > 0 {
		s.Logger.Info("recovered jobs", "failed", failed, "resumed", resumed)
	}
	return failed, resumed, nil
}

// Wait blocks until every dispatched job has finished.
func (s *Service) Wait() {
	s.init()
	s.wg.Wait()
}

// Shutdown stops accepting work and waits for running jobs. When ctx expires
// first, running jobs are cancelled and recorded as interrupted.
func (s *Service) Shutdown(ctx context.Context) error {
	s.init()
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		s.cancel()
		return nil
	case <-ctx.Done():
		s.cancel()
		<-done
		return ctx.Err()
	}
}

//
// ==== EXECUTION ====
//

func (s *Service) dispatch(id domain.ID) {
	s.init()
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	if _, busy := s.inflight[id]; busy {
		return
	}
	s.inflight[id] = struct{}{}
	s.wg.Add(1)
	go s.execute(id)
}

func (s *Service) execute(id domain.ID) {
	defer s.wg.Done()
	defer func() {
		s.mu.Lock()
		delete(s.inflight, id)
		s.mu.Unlock()
	}()

	// Shutdown while queued leaves the job pending for the next start.
	if err := s.slots.Acquire(s.base, 1); err != nil {
		return
	}
	defer s.slots.Release(1)

	s.run(id)
}

func (s *Service) run(id domain.ID) {
	log := s.Logger.With("job", id)

	cur, err := s.Repo.Get(s.base, id)
	if err != nil {
		log.Error("load job", "error", err)
		return
	}
	if cur.Status != domain.StatusPending {
		return
	}
	running, err := cur.Start(application.NowFrom(s.Clock))
	if err != nil {
		return
	}
	if err := s.Repo.Transition(s.base, running, domain.StatusPending); err != nil {
		if !errors.Is(err, apperr.ErrConflict) {
			log.Error("mark running", "error", err)
		}
		return
	}
	if s.Recorder != nil {
		s.Recorder.JobStarted()
	}
	log.Info("job running", "project", running.ProjectID)

	res, runErr := s.analyze(running)

	now := application.NowFrom(s.Clock)
	var next *domain.Job
	if runErr == nil {
		next, err = running.Complete(now, res)
	}
	if runErr != nil || err != nil {
		if runErr == nil {
			runErr = err
		}
		log.Error("job failed", "error", runErr)
		next, _ = running.Fail(now, failureMessage(runErr))
	}

	// The terminal write must land even when the job context is gone.
	wctx, cancel := context.WithTimeout(context.Background(), finalizeTimeout)
	defer cancel()
	if err := s.Repo.Transition(wctx, next, domain.StatusRunning); err != nil {
		log.Error("record terminal state", "status", next.Status, "error", err)
		return
	}
	if s.Recorder != nil {
		s.Recorder.JobFinished(string(next.Status), true, now.Sub(*running.StartedAt))
	}
	log.Info("job finished", "status", next.Status, "duration", now.Sub(*running.StartedAt))
}

func (s *Service) analyze(j *domain.Job) (res *domain.AnalysisResult, err error) {
	timeout := s.JobTimeout
	if timeout <= 0 {
		timeout = defaultJobTimeout
	}
	ctx, cancel := context.WithTimeout(s.base, timeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			s.Logger.Error("job panicked", "job", j.ID, "panic", r, "stack", string(debug.Stack()))
			res, err = nil, fmt.Errorf("%w: panic: %v", apperr.ErrInternal, r)
		}
	}()

	res, err = s.Pipeline.Run(ctx, j.ProjectID, j.ID)
	if err == nil && ctx.Err() != nil {
		err = ctx.Err()
	}
	if err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
		err = fmt.Errorf("%w: %v", apperr.ErrTimeout, err)
	}
	if res != nil {
		res.ProjectID = j.ProjectID
	}
	return res, err
}

func failureMessage(err error) string {
	switch {
	case errors.Is(err, apperr.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return MsgTimedOut
	case errors.Is(err, context.Canceled):
		return MsgInterrupted
	case errors.Is(err, apperr.ErrNotFound), errors.Is(err, apperr.ErrIngestionIncomplete):
		return MsgTreeMissing
	}
	return MsgInternal
}

// owns reports whether caller may see a resource of owner. Resources without
// an owner are public.
func owns(caller, owner string) bool {
	return owner == "" || caller == owner
}
