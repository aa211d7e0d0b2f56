// Package maintenance runs periodic background tasks as Go tickers: one
// cron import loop per cron-enabled provider and the expiration sweep.
package maintenance

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/eventhub/event-importer/internal/importer"
)

// Stepper is the cron side of the importer.
type Stepper interface {
	NewJob(provider string) (importer.JobState, error)
	Step(ctx context.Context, job importer.JobState) (importer.JobState, error)
}

// Config controls maintenance task intervals. Zero duration disables a task.
type Config struct {
	ImportInterval time.Duration // One credential entry per provider per tick
	SweepInterval  time.Duration // Expired occasions + orphaned events
	Location       *time.Location
	Hooks          []Hook
}

// DefaultConfig returns sensible production defaults.
func DefaultConfig() Config {
	return Config{
		ImportInterval: time.Hour,
		SweepInterval:  24 * time.Hour,
		Location:       time.UTC,
	}
}

// Start launches all configured maintenance tickers. Blocks until ctx is
// cancelled. Intended to be called with `go`.
func Start(ctx context.Context, stepper Stepper, cronProviders []string, sweeper *Sweeper, cfg Config, logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("Maintenance tickers started",
		"import", cfg.ImportInterval,
		"sweep", cfg.SweepInterval,
		"cron_providers", cronProviders)

	tickers := make([]*time.Ticker, 0, len(cronProviders)+1)
	defer func() {
		for _, t := range tickers {
			t.Stop()
		}
	}()

	// Cron imports: each provider loop owns its job and never overlaps itself
	if cfg.ImportInterval > 0 && stepper != nil {
		for _, name := range cronProviders {
			c := &cronJob{provider: name, stepper: stepper, hooks: cfg.Hooks, logger: logger.With("provider", name)}
			t := time.NewTicker(cfg.ImportInterval)
			tickers = append(tickers, t)
			go runLoop(ctx, t.C, "import:"+name, func() { c.tick(ctx) })
		}
	}

	// Sweep: expired occasions, then events left without occasions
	if cfg.SweepInterval > 0 && sweeper != nil {
		t := time.NewTicker(cfg.SweepInterval)
		tickers = append(tickers, t)
		go runLoop(ctx, t.C, "sweep", func() {
			if _, err := sweeper.Sweep(ctx, Cutoff(time.Now(), cfg.Location)); err != nil {
				logger.Warn("Sweep failed", "error", err)
				return
			}
			runHooks(ctx, cfg.Hooks, "", logger)
		})
	}

	<-ctx.Done()
	logger.Info("Maintenance tickers stopped")
}

func runLoop(ctx context.Context, ch <-chan time.Time, name string, fn func()) {
	for {
		select {
		case <-ch:
			fn()
		case <-ctx.Done():
			return
		}
	}
}

// --------------------------------------------------------------------------
// Cron import
// --------------------------------------------------------------------------

// cronJob advances one provider's job by one credential entry per tick and
// starts a new pass after the last entry.
type cronJob struct {
	provider string
	stepper  Stepper
	hooks    []Hook
	logger   *slog.Logger

	job    importer.JobState
	active bool
}

func (c *cronJob) tick(ctx context.Context) {
	if !c.active || c.job.Done() {
		job, err := c.stepper.NewJob(c.provider)
		if err != nil {
			c.logger.Warn("Cron import not started", "error", err)
			return
		}
		c.job, c.active = job, true
	}

	key := c.job.KeyIndex
	job, err := c.stepper.Step(ctx, c.job)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			c.logger.Error("Cron import step failed", "key", key, "error", err)
		}
		c.active = false
		return
	}
	c.job = job

	if job.Done() {
		c.logger.Info("Cron import pass complete", "keys", job.KeyCount, "summary", job.Result.Summary())
		runHooks(ctx, c.hooks, c.provider, c.logger)
	}
}
