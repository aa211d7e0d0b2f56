package maintenance

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/eventhub/event-importer/internal/metrics"
)

// OccasionPurger deletes occasions that ended before a cutoff.
type OccasionPurger interface {
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// EventTrasher trashes published events that have no occasions left.
type EventTrasher interface {
	TrashEventsWithoutOccasions(ctx context.Context) (int64, error)
}

// SweepResult counts what one sweep removed.
type SweepResult struct {
	Occasions int64 `json:"occasions_deleted"`
	Events    int64 `json:"events_trashed"`
}

// Sweeper removes expired occasions and trashes events left without any.
// Running it twice with the same cutoff changes nothing the second time.
type Sweeper struct {
	occasions OccasionPurger
	events    EventTrasher
	metrics   *metrics.ImportMetrics
	logger    *slog.Logger
}

func NewSweeper(occasions OccasionPurger, events EventTrasher, m *metrics.ImportMetrics, logger *slog.Logger) *Sweeper {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sweeper{occasions: occasions, events: events, metrics: m, logger: logger}
}

// Sweep deletes occasions whose end lies before now, then trashes
// published events without remaining occasions.
func (s *Sweeper) Sweep(ctx context.Context, now time.Time) (SweepResult, error) {
	var res SweepResult

	n, err := s.occasions.DeleteExpired(ctx, now)
	if err != nil {
		return res, fmt.Errorf("sweep occasions: %w", err)
	}
	res.Occasions = n
	s.metrics.ObserveSweep("occasions", n)

	n, err = s.events.TrashEventsWithoutOccasions(ctx)
	if err != nil {
		return res, fmt.Errorf("sweep events: %w", err)
	}
	res.Events = n
	s.metrics.ObserveSweep("events", n)

	s.logger.Info("Expiration sweep complete",
		"cutoff", now.Format(time.RFC3339),
		"occasions_deleted", res.Occasions,
		"events_trashed", res.Events)
	return res, nil
}

// Cutoff is the scheduled sweep's limit: the start of now's day in loc.
// Occasions that ended yesterday go, today's stay until tomorrow's sweep.
func Cutoff(now time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	t := now.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}
