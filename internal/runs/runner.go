// Package runs manages interactive import runs: a single-flight guard so
// only one run is active at a time, a background goroutine per run, and a
// registry of snapshots callers can poll or cancel.
package runs

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/eventhub/event-importer/internal/importer"
)

// ErrInProgress is returned by Start while another interactive run holds
// the guard.
var ErrInProgress = errors.New("an import run is already in progress")

// guardKey covers every interactive run, whichever provider it imports.
const guardKey = "import:interactive"

// DefaultLockTTL bounds how long a crashed process can keep the guard. A
// running import extends the lock on every progress report, so runs may
// take longer than this as long as no single page does.
const DefaultLockTTL = 15 * time.Minute

// JobRunner is the part of the importer a Runner drives.
type JobRunner interface {
	NewJob(provider string) (importer.JobState, error)
	RunJob(ctx context.Context, job importer.JobState, progress importer.ProgressFunc) (importer.JobState, error)
}

// Runner starts interactive runs in the background.
type Runner struct {
	jobs     JobRunner
	guard    Guard
	registry *Registry
	lockTTL  time.Duration
	logger   *slog.Logger
}

// NewRunner creates a Runner. lockTTL <= 0 uses DefaultLockTTL.
func NewRunner(jobs JobRunner, guard Guard, registry *Registry, lockTTL time.Duration, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	if guard == nil {
		guard = NewMemoryGuard()
	}
	if registry == nil {
		registry = NewRegistry(0)
	}
	if lockTTL <= 0 {
		lockTTL = DefaultLockTTL
	}
	return &Runner{jobs: jobs, guard: guard, registry: registry, lockTTL: lockTTL, logger: logger}
}

// Registry returns the snapshot registry runs report into.
func (r *Runner) Registry() *Registry { return r.registry }

// Start begins an interactive run of provider and returns its id. It fails
// with importer.ErrConfig for unknown or unconfigured providers and with
// ErrInProgress when another run is active.
func (r *Runner) Start(ctx context.Context, provider string) (string, error) {
	job, err := r.jobs.NewJob(provider)
	if err != nil {
		return "", err
	}
	ok, err := r.guard.Acquire(ctx, guardKey, r.lockTTL)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", ErrInProgress
	}

	id := uuid.NewString()
	runCtx, cancel := context.WithCancel(context.Background())
	job.State = importer.StateRunning
	r.registry.register(id, job, cancel)

	logger := r.logger.With("run_id", id, "provider", provider)
	logger.Info("Interactive import started", "keys", job.KeyCount)

	go func() {
		final, err := r.jobs.RunJob(runCtx, job, func(j importer.JobState) {
			r.registry.Update(id, j)
			r.keepLock(runCtx, cancel, logger)
		})
		cancel()
		switch {
		case errors.Is(err, context.Canceled):
			final.State = importer.StateCancelled
			logger.Warn("Interactive import cancelled", "summary", final.Result.Summary())
		case err != nil:
			final.State = importer.StateFailed
			final.Result.AddErrorf("%v", err)
			logger.Error("Interactive import failed", "error", err)
		default:
			logger.Info("Interactive import finished", "summary", final.Result.Summary())
		}
		// The guard is free before the snapshot reports the run finished.
		if err := r.guard.Release(context.Background(), guardKey); err != nil {
			logger.Error("Failed to release import guard", "error", err)
		}
		r.registry.finish(id, final)
	}()

	return id, nil
}

// keepLock extends the guard. A run that lost its lock is cancelled so two
// interactive runs never overlap.
func (r *Runner) keepLock(ctx context.Context, cancel context.CancelFunc, logger *slog.Logger) {
	if ctx.Err() != nil {
		return
	}
	ok, err := r.guard.Extend(ctx, guardKey, r.lockTTL)
	if err != nil {
		logger.Warn("Failed to extend import guard", "error", err)
		return
	}
	if !ok {
		logger.Error("Import guard lost, cancelling run")
		cancel()
	}
}

// Get returns the snapshot of a run.
func (r *Runner) Get(id string) (Snapshot, bool) { return r.registry.Get(id) }

// Cancel requests cancellation of a running run.
func (r *Runner) Cancel(id string) bool { return r.registry.Cancel(id) }
