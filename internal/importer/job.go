package importer

import "github.com/eventhub/event-importer/internal/config"

// State is the lifecycle of a JobState.
type State string

const (
	StateIdle      State = "idle"
	StateRunning   State = "running"
	StateDone      State = "done"
	StateCancelled State = "cancelled"
	StateFailed    State = "failed"
)

// JobState is the cursor of one provider run over its ordered credential
// entries. It is a value: callers pass it in and get the advanced copy back,
// and each run owns its own instance.
type JobState struct {
	Provider string              `json:"provider"`
	Keys     []config.Credential `json:"-"`
	KeyIndex int                 `json:"key_index"`
	KeyCount int                 `json:"key_count"`
	State    State               `json:"state"`
	Result   Result              `json:"result"`
}

// NewJob creates an idle job positioned at the first credential entry.
func NewJob(provider string, keys []config.Credential) JobState {
	return JobState{
		Provider: provider,
		Keys:     keys,
		KeyCount: len(keys),
		State:    StateIdle,
	}
}

// Done reports whether every credential entry has been processed or the
// job stopped.
func (j JobState) Done() bool {
	switch j.State {
	case StateDone, StateCancelled, StateFailed:
		return true
	}
	return j.KeyIndex >= len(j.Keys)
}

// advance moves past the current entry and marks the job done after the
// last one.
func (j JobState) advance() JobState {
	j.KeyIndex++
	if j.KeyIndex >= len(j.Keys) {
		j.State = StateDone
	} else {
		j.State = StateRunning
	}
	return j
}
