package maintenance

import (
	"context"
	"errors"
	"testing"
	"time"

	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eventhub/event-importer/internal/config"
	"github.com/eventhub/event-importer/internal/importer"
	"github.com/eventhub/event-importer/internal/metrics"
	"github.com/eventhub/event-importer/internal/occasion"
	"github.com/eventhub/event-importer/internal/store"
)

// --------------------------------------------------------------------------
// Sweep
// --------------------------------------------------------------------------

func TestSweep(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	now := time.Date(2026, 6, 2, 0, 0, 0, 0, time.UTC)
	mock.ExpectExec("DELETE FROM occasions WHERE timestamp_end").WithArgs(now.Unix()).
		WillReturnResult(pgxmock.NewResult("DELETE", 5))
	mock.ExpectExec("UPDATE events e").WillReturnResult(pgxmock.NewResult("UPDATE", 2))

	reg := prometheus.NewRegistry()
	m := metrics.NewImportMetrics(reg)
	s := NewSweeper(occasion.NewStore(mock, time.UTC), store.New(mock), m, nil)

	res, err := s.Sweep(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, SweepResult{Occasions: 5, Events: 2}, res)
	n, err := testutil.GatherAndCount(reg, "eventimport_sweep_deleted_total")
	require.NoError(t, err)
	assert.Equal(t, 2, n, "one series each for occasions and events")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSweep_Idempotent(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	now := time.Date(2026, 6, 2, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 2; i++ {
		mock.ExpectExec("DELETE FROM occasions").WithArgs(now.Unix()).WillReturnResult(pgxmock.NewResult("DELETE", 0))
		mock.ExpectExec("UPDATE events e").WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	}

	s := NewSweeper(occasion.NewStore(mock, time.UTC), store.New(mock), nil, nil)
	for i := 0; i < 2; i++ {
		res, err := s.Sweep(context.Background(), now)
		require.NoError(t, err)
		assert.Zero(t, res)
	}
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSweep_StopsOnOccasionError(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec("DELETE FROM occasions").WithArgs(pgxmock.AnyArg()).WillReturnError(errors.New("db down"))

	s := NewSweeper(occasion.NewStore(mock, time.UTC), store.New(mock), nil, nil)
	_, err = s.Sweep(context.Background(), time.Now())
	assert.ErrorContains(t, err, "db down")
	require.NoError(t, mock.ExpectationsWereMet(), "events must not be trashed after a failed delete")
}

func TestCutoff(t *testing.T) {
	loc, err := time.LoadLocation("Europe/Stockholm")
	require.NoError(t, err)

	now := time.Date(2026, 6, 1, 23, 30, 0, 0, time.UTC) // 01:30 on June 2 in Stockholm
	got := Cutoff(now, loc)
	assert.Equal(t, time.Date(2026, 6, 2, 0, 0, 0, 0, loc), got)
}

// --------------------------------------------------------------------------
// Cron
// --------------------------------------------------------------------------

type fakeStepper struct {
	keys  int
	steps []int
	jobs  int
	err   error
}

func (f *fakeStepper) NewJob(provider string) (importer.JobState, error) {
	if f.keys == 0 {
		return importer.JobState{}, importer.ErrConfig
	}
	f.jobs++
	return importer.NewJob(provider, make([]config.Credential, f.keys)), nil
}

func (f *fakeStepper) Step(_ context.Context, job importer.JobState) (importer.JobState, error) {
	if f.err != nil {
		return job, f.err
	}
	f.steps = append(f.steps, job.KeyIndex)
	job.KeyIndex++
	if job.KeyIndex >= job.KeyCount {
		job.State = importer.StateDone
	} else {
		job.State = importer.StateRunning
	}
	return job, nil
}

func TestCronJob_OneKeyPerTickAndWraps(t *testing.T) {
	st := &fakeStepper{keys: 3}
	var passes []string
	hook := func(_ context.Context, provider string) error {
		passes = append(passes, provider)
		return nil
	}
	c := &cronJob{provider: "xcap", stepper: st, hooks: []Hook{hook}, logger: discardLogger()}

	for i := 0; i < 5; i++ {
		c.tick(context.Background())
	}

	assert.Equal(t, []int{0, 1, 2, 0, 1}, st.steps)
	assert.Equal(t, 2, st.jobs, "a new pass starts after the last key")
	assert.Equal(t, []string{"xcap"}, passes, "hooks run once per completed pass")
}

func TestCronJob_NotConfigured(t *testing.T) {
	st := &fakeStepper{}
	c := &cronJob{provider: "arcgis", stepper: st, logger: discardLogger()}
	c.tick(context.Background())
	assert.Empty(t, st.steps)
}

func TestCronJob_CancelledStepRestartsPass(t *testing.T) {
	st := &fakeStepper{keys: 2, err: context.Canceled}
	c := &cronJob{provider: "cbis", stepper: st, logger: discardLogger()}
	c.tick(context.Background())
	assert.False(t, c.active)

	st.err = nil
	c.tick(context.Background())
	assert.Equal(t, []int{0}, st.steps)
	assert.Equal(t, 2, st.jobs)
}

func TestRunHooks_ContinuesAfterFailure(t *testing.T) {
	var ran []int
	hooks := []Hook{
		func(context.Context, string) error { ran = append(ran, 0); return errors.New("nope") },
		func(context.Context, string) error { ran = append(ran, 1); return nil },
	}
	runHooks(context.Background(), hooks, "cbis", discardLogger())
	assert.Equal(t, []int{0, 1}, ran)
}

func TestStart_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		Start(ctx, &fakeStepper{keys: 1}, []string{"cbis"}, nil, Config{ImportInterval: time.Hour}, discardLogger())
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Start did not return after cancel")
	}
}
