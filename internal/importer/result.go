package importer

import (
	"errors"
	"fmt"
)

// Error taxonomy. Both are fatal for one credential entry only; the run
// continues with the next entry.
var (
	ErrConfig    = errors.New("configuration error")
	ErrTransport = errors.New("transport error")
)

// Counters are the created-entity totals reported to callers.
type Counters struct {
	Events    int `json:"events"`
	Locations int `json:"locations"`
	Contacts  int `json:"contacts"`
}

// Add merges other into c.
func (c *Counters) Add(other Counters) {
	c.Events += other.Events
	c.Locations += other.Locations
	c.Contacts += other.Contacts
}

// OccasionCounts tallies occasion upsert outcomes.
type OccasionCounts struct {
	Inserted  int `json:"inserted"`
	Duplicate int `json:"duplicate"`
	Invalid   int `json:"invalid"`
}

// Result tracks counts, failures and warnings of an import.
// Errors are per-entry failures (configuration, transport, storage);
// Warnings are record-level validation issues for administrator review.
type Result struct {
	Counters  Counters       `json:"counters"`
	Reused    Counters       `json:"reused"`
	Skipped   int            `json:"skipped"`
	Occasions OccasionCounts `json:"occasions"`
	Errors    []string       `json:"failures"`
	Warnings  []string       `json:"warnings"`
}

// Add merges another Result into this one.
func (r *Result) Add(other Result) {
	r.Counters.Add(other.Counters)
	r.Reused.Add(other.Reused)
	r.Skipped += other.Skipped
	r.Occasions.Inserted += other.Occasions.Inserted
	r.Occasions.Duplicate += other.Occasions.Duplicate
	r.Occasions.Invalid += other.Occasions.Invalid
	r.Errors = append(r.Errors, other.Errors...)
	r.Warnings = append(r.Warnings, other.Warnings...)
}

// AddErrorf records a formatted failure message.
func (r *Result) AddErrorf(format string, args ...interface{}) {
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
}

// AddWarningf records a formatted validation warning.
func (r *Result) AddWarningf(format string, args ...interface{}) {
	r.Warnings = append(r.Warnings, fmt.Sprintf(format, args...))
}

// Summary returns a human-readable summary of the import.
func (r *Result) Summary() string {
	return fmt.Sprintf(
		"events=%d locations=%d contacts=%d reused=%d skipped=%d occasions=%d/%d/%d failures=%d warnings=%d",
		r.Counters.Events, r.Counters.Locations, r.Counters.Contacts,
		r.Reused.Events+r.Reused.Locations+r.Reused.Contacts, r.Skipped,
		r.Occasions.Inserted, r.Occasions.Duplicate, r.Occasions.Invalid,
		len(r.Errors), len(r.Warnings),
	)
}
