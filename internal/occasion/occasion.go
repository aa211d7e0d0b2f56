// Package occasion persists event occurrences idempotently.
//
// An occasion is unique on (event, start, end). Upsert checks for the
// triple before inserting and the insert itself is ON CONFLICT DO NOTHING,
// so a concurrent duplicate also resolves to DUPLICATE rather than an error.
package occasion

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/eventhub/event-importer/internal/config"
	"github.com/eventhub/event-importer/internal/db"
	"github.com/eventhub/event-importer/internal/provider"
)

// Status is the outcome of one Upsert.
type Status string

const (
	StatusInserted  Status = "INSERTED"
	StatusDuplicate Status = "DUPLICATE"
	StatusInvalid   Status = "INVALID"
)

// Result describes one occasion upsert. Reason is set for INVALID.
type Result struct {
	Status Status
	Start  int64
	End    int64
	Door   int64
	Reason string
}

// Summary aggregates UpsertAll results for one event.
type Summary struct {
	Inserted  int
	Duplicate int
	Invalid   int
	Results   []Result
}

// Warning reports whether any occurrence of the event was rejected.
func (s Summary) Warning() bool { return s.Invalid > 0 }

// Store writes occasions through the prepared occasion statements.
type Store struct {
	db  db.Querier
	loc *time.Location
}

// NewStore creates an occasion store. Timestamps without a zone are read
// in loc.
func NewStore(q db.Querier, loc *time.Location) *Store {
	if loc == nil {
		loc = time.UTC
	}
	return &Store{db: q, loc: loc}
}

// Upsert validates and stores one occurrence. Validation failures are a
// Result, not an error; errors are storage failures only.
func (s *Store) Upsert(ctx context.Context, eventID int64, startRaw, endRaw, doorRaw string) (Result, error) {
	start, err := ParseTimestamp(startRaw, s.loc)
	if err != nil {
		return Result{Status: StatusInvalid, Reason: "start: " + err.Error()}, nil
	}
	end, err := ParseTimestamp(endRaw, s.loc)
	if err != nil {
		return Result{Status: StatusInvalid, Start: start, Reason: "end: " + err.Error()}, nil
	}
	res := Result{Start: start, End: end}
	switch {
	case start <= 0 || end <= 0:
		res.Status, res.Reason = StatusInvalid, "non-positive timestamp"
		return res, nil
	case end < start:
		res.Status, res.Reason = StatusInvalid, "end before start"
		return res, nil
	}

	// Door time is optional; an unparseable value is dropped, not fatal.
	var door any
	if strings.TrimSpace(doorRaw) != "" {
		if d, err := ParseTimestamp(doorRaw, s.loc); err == nil && d > 0 {
			res.Door = d
			door = d
		}
	}

	var one int
	err = s.db.QueryRow(ctx, "occasion_exists", eventID, start, end).Scan(&one)
	switch {
	case err == nil:
		res.Status = StatusDuplicate
		return res, nil
	case !errors.Is(err, pgx.ErrNoRows):
		return Result{}, fmt.Errorf("check occasion: %w", err)
	}

	tag, err := s.db.Exec(ctx, "occasion_insert", eventID, start, end, door)
	if err != nil {
		return Result{}, fmt.Errorf("insert occasion: %w", err)
	}
	if tag.RowsAffected() == 0 {
		res.Status = StatusDuplicate
	} else {
		res.Status = StatusInserted
	}
	return res, nil
}

// UpsertAll stores every occurrence of one event and records the event's
// occasion warning flag.
func (s *Store) UpsertAll(ctx context.Context, eventID int64, occurrences []provider.Occurrence) (Summary, error) {
	var sum Summary
	for _, o := range occurrences {
		res, err := s.Upsert(ctx, eventID, o.Start, o.End, o.Door)
		if err != nil {
			return sum, err
		}
		sum.Results = append(sum.Results, res)
		switch res.Status {
		case StatusInserted:
			sum.Inserted++
		case StatusDuplicate:
			sum.Duplicate++
		case StatusInvalid:
			sum.Invalid++
		}
	}
	if len(occurrences) > 0 {
		if _, err := s.db.Exec(ctx, "occasion_warning", eventID, sum.Warning()); err != nil {
			return sum, fmt.Errorf("set occasion warning: %w", err)
		}
	}
	return sum, nil
}

// DeleteExpired removes every occasion that ended before now.
func (s *Store) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	tag, err := s.db.Exec(ctx,
		"DELETE FROM "+config.OccasionsTable+" WHERE timestamp_end < $1", now.Unix())
	if err != nil {
		return 0, fmt.Errorf("delete expired occasions: %w", err)
	}
	return tag.RowsAffected(), nil
}

// Counts is the aggregate occasion overview.
type Counts struct {
	Total    int64 `json:"total"`
	Upcoming int64 `json:"upcoming"`
	Expired  int64 `json:"expired"`
	Events   int64 `json:"events"`
}

// Counts returns aggregate occasion numbers relative to now.
func (s *Store) Counts(ctx context.Context, now time.Time) (Counts, error) {
	var c Counts
	err := s.db.QueryRow(ctx, `
		SELECT COUNT(*),
		       COUNT(*) FILTER (WHERE timestamp_end >= $1),
		       COUNT(DISTINCT event_id)
		FROM `+config.OccasionsTable, now.Unix()).Scan(&c.Total, &c.Upcoming, &c.Events)
	if err != nil {
		return Counts{}, fmt.Errorf("count occasions: %w", err)
	}
	c.Expired = c.Total - c.Upcoming
	return c, nil
}

// --------------------------------------------------------------------------
// Timestamp parsing
// --------------------------------------------------------------------------

var layouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

// ParseTimestamp reads a provider date/time as unix seconds. Accepted are
// RFC3339, the zone-less layouts above (read in loc) and numeric epochs;
// epochs above 1e11 are taken as milliseconds.
func ParseTimestamp(raw string, loc *time.Location) (int64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, errors.New("empty timestamp")
	}
	if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
		if n > 1e11 || n < -1e11 {
			n /= 1000
		}
		return n, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t.Unix(), nil
	}
	for _, layout := range layouts {
		if t, err := time.ParseInLocation(layout, raw, loc); err == nil {
			return t.Unix(), nil
		}
	}
	return 0, fmt.Errorf("unparseable timestamp %q", raw)
}
