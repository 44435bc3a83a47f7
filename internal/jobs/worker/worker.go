package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/yungbote/enneagram-backend/internal/data/repos"
	"github.com/yungbote/enneagram-backend/internal/jobs/runtime"
	"github.com/yungbote/enneagram-backend/internal/observability"
	"github.com/yungbote/enneagram-backend/internal/platform/dbctx"
	"github.com/yungbote/enneagram-backend/internal/platform/envutil"
	"github.com/yungbote/enneagram-backend/internal/platform/logger"
)

type Config struct {
	Concurrency  int
	PollInterval time.Duration
	MaxAttempts  int
	RetryDelay   time.Duration
	StaleRunning time.Duration
	Heartbeat    time.Duration
}

func ConfigFromEnv() Config {
	return Config{
		Concurrency:  envutil.Int("WORKER_CONCURRENCY", 4),
		PollInterval: envutil.Millis("WORKER_POLL_INTERVAL_MS", time.Second),
		MaxAttempts:  envutil.Int("WORKER_MAX_ATTEMPTS", 5),
		RetryDelay:   envutil.Seconds("WORKER_RETRY_DELAY_SECONDS", 30*time.Second),
		StaleRunning: envutil.Seconds("WORKER_STALE_RUNNING_SECONDS", 10*time.Minute),
		Heartbeat:    envutil.Seconds("WORKER_HEARTBEAT_SECONDS", 15*time.Second),
	}
}

type Worker struct {
	log      *logger.Logger
	repo     repos.JobRunRepo
	registry *runtime.Registry
	cfg      Config
}

func NewWorker(baseLog *logger.Logger, repo repos.JobRunRepo, registry *runtime.Registry, cfg Config) *Worker {
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	return &Worker{
		log:      baseLog.With("component", "JobWorker"),
		repo:     repo,
		registry: registry,
		cfg:      cfg,
	}
}

// Run blocks until ctx is canceled and every loop has drained its current job.
func (w *Worker) Run(ctx context.Context) error {
	w.log.Info("Starting job worker pool", "concurrency", w.cfg.Concurrency, "job_types", w.registry.Types())
	var wg sync.WaitGroup
	for i := 0; i < w.cfg.Concurrency; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			w.runLoop(ctx, workerID)
		}(i + 1)
	}
	wg.Wait()
	return nil
}

func (w *Worker) runLoop(ctx context.Context, workerID int) {
	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info("Worker loop stopped", "worker_id", workerID)
			return
		case <-ticker.C:
			// drain back-to-back while there is work
			for ctx.Err() == nil && w.RunOnce(ctx, workerID) {
			}
		}
	}
}

// RunOnce claims and executes at most one job. It reports whether a job ran.
func (w *Worker) RunOnce(ctx context.Context, workerID int) bool {
	job, err := w.repo.ClaimNextRunnable(dbctx.Context{Ctx: ctx}, w.cfg.MaxAttempts, w.cfg.RetryDelay, w.cfg.StaleRunning)
	if err != nil {
		w.log.Warn("ClaimNextRunnable failed", "worker_id", workerID, "error", err)
		return false
	}
	if job == nil {
		return false
	}

	jc := runtime.NewContext(ctx, job, w.repo, w.log.With("worker_id", workerID))
	h, ok := w.registry.Get(job.JobType)
	if !ok {
		w.log.Warn("No handler registered for job_type",
			"worker_id", workerID,
			"job_type", job.JobType,
			"job_id", job.ID,
		)
		jc.Fail("dispatch", &missingHandlerError{JobType: job.JobType})
		return true
	}

	stopBeat := w.heartbeat(ctx, job.ID)
	defer stopBeat()
	started := time.Now()
	defer func() {
		observability.Current().ObserveJob(job.JobType, jc.Job.Status, time.Since(started))
	}()

	func() {
		defer func() {
			if r := recover(); r != nil {
				w.log.Error("Job handler panic",
					"worker_id", workerID,
					"job_id", job.ID,
					"job_type", job.JobType,
					"panic", r,
				)
				jc.Fail("panic", errFromRecover(r))
			}
		}()

		if runErr := h.Run(jc); runErr != nil {
			// safety net; handlers normally call jc.Fail themselves
			jc.Fail("run", runErr)
		}
	}()
	return true
}

func (w *Worker) heartbeat(ctx context.Context, jobID string) func() {
	if w.cfg.Heartbeat <= 0 {
		return func() {}
	}
	beatCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		t := time.NewTicker(w.cfg.Heartbeat)
		defer t.Stop()
		for {
			select {
			case <-beatCtx.Done():
				return
			case <-t.C:
				if err := w.repo.Heartbeat(dbctx.Context{Ctx: beatCtx}, jobID); err != nil {
					w.log.Debug("heartbeat failed", "job_id", jobID, "error", err)
				}
			}
		}
	}()
	return func() {
		cancel()
		<-done
	}
}

type missingHandlerError struct{ JobType string }

func (e *missingHandlerError) Error() string { return "no handler registered for job_type=" + e.JobType }

func errFromRecover(v any) error { return &panicError{Val: v} }

type panicError struct{ Val any }

func (e *panicError) Error() string { return fmt.Sprintf("panic: %v", e.Val) }
