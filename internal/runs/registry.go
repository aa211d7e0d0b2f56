package runs

import (
	"context"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/eventhub/event-importer/internal/importer"
)

// Snapshot is the externally visible state of an interactive run.
type Snapshot struct {
	RunID      string            `json:"run_id"`
	Provider   string            `json:"provider"`
	KeyIndex   int               `json:"key_index"`
	KeyCount   int               `json:"key_count"`
	State      importer.State    `json:"state"`
	Counters   importer.Counters `json:"counters"`
	Reused     importer.Counters `json:"reused"`
	Skipped    int               `json:"skipped"`
	Failures   []string          `json:"failures"`
	Warnings   []string          `json:"warnings"`
	StartedAt  time.Time         `json:"started_at"`
	FinishedAt *time.Time        `json:"finished_at,omitempty"`
}

// Registry keeps run snapshots for a TTL after they finish and the cancel
// functions of runs still in flight.
type Registry struct {
	snapshots *gocache.Cache
	ttl       time.Duration

	mu      sync.Mutex
	cancels map[string]context.CancelFunc
}

func NewRegistry(ttl time.Duration) *Registry {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Registry{
		snapshots: gocache.New(ttl, 10*time.Minute),
		ttl:       ttl,
		cancels:   make(map[string]context.CancelFunc),
	}
}

func (r *Registry) register(id string, job importer.JobState, cancel context.CancelFunc) {
	r.mu.Lock()
	r.cancels[id] = cancel
	r.mu.Unlock()
	r.snapshots.Set(id, snapshot(id, job, time.Now()), gocache.NoExpiration)
}

// Update records progress of a running job.
func (r *Registry) Update(id string, job importer.JobState) {
	prev, ok := r.Get(id)
	if !ok {
		return
	}
	s := snapshot(id, job, prev.StartedAt)
	r.snapshots.Set(id, s, gocache.NoExpiration)
}

// finish records the final state and starts the snapshot's TTL.
func (r *Registry) finish(id string, job importer.JobState) {
	r.mu.Lock()
	delete(r.cancels, id)
	r.mu.Unlock()

	started := time.Now()
	if prev, ok := r.Get(id); ok {
		started = prev.StartedAt
	}
	s := snapshot(id, job, started)
	now := time.Now()
	s.FinishedAt = &now
	r.snapshots.Set(id, s, r.ttl)
}

// Get returns the snapshot of a run.
func (r *Registry) Get(id string) (Snapshot, bool) {
	v, ok := r.snapshots.Get(id)
	if !ok {
		return Snapshot{}, false
	}
	return v.(Snapshot), true
}

// Cancel requests cancellation of a running job. It reports false for
// unknown or finished runs.
func (r *Registry) Cancel(id string) bool {
	r.mu.Lock()
	cancel, ok := r.cancels[id]
	r.mu.Unlock()
	if ok {
		cancel()
	}
	return ok
}

func snapshot(id string, job importer.JobState, started time.Time) Snapshot {
	res := job.Result
	return Snapshot{
		RunID:     id,
		Provider:  job.Provider,
		KeyIndex:  job.KeyIndex,
		KeyCount:  job.KeyCount,
		State:     job.State,
		Counters:  res.Counters,
		Reused:    res.Reused,
		Skipped:   res.Skipped,
		Failures:  append([]string{}, res.Errors...),
		Warnings:  append([]string{}, res.Warnings...),
		StartedAt: started,
	}
}
