package importer

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eventhub/event-importer/internal/config"
	"github.com/eventhub/event-importer/internal/occasion"
	"github.com/eventhub/event-importer/internal/provider"
	"github.com/eventhub/event-importer/internal/reconcile"
)

// --------------------------------------------------------------------------
// Fakes
// --------------------------------------------------------------------------

type memStore struct {
	mu         sync.Mutex
	next       int64
	rows       map[provider.Kind][]reconcile.Candidate
	uids       map[provider.Kind]map[string]int64
	events     map[int64]provider.Event
	categories map[int64][]string
	trashed    map[int64]bool

	categoryErr error
}

func newMemStore() *memStore {
	return &memStore{
		next:       100,
		rows:       map[provider.Kind][]reconcile.Candidate{},
		uids:       map[provider.Kind]map[string]int64{},
		events:     map[int64]provider.Event{},
		categories: map[int64][]string{},
		trashed:    map[int64]bool{},
	}
}

// trash marks an event trashed; it drops out of both lookups.
func (m *memStore) trash(id int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.trashed[id] = true
}

func (m *memStore) seed(kind provider.Kind, id int64, title string) {
	m.rows[kind] = append(m.rows[kind], reconcile.Candidate{ID: id, Title: title})
}

func (m *memStore) insert(kind provider.Kind, title, uid string) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.next++
	m.rows[kind] = append(m.rows[kind], reconcile.Candidate{ID: m.next, Title: title})
	if uid != "" {
		if m.uids[kind] == nil {
			m.uids[kind] = map[string]int64{}
		}
		m.uids[kind][uid] = m.next
	}
	return m.next
}

func (m *memStore) FindByUID(_ context.Context, kind provider.Kind, uid string) (int64, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.uids[kind][uid]
	if ok && m.trashed[id] {
		return 0, false, nil
	}
	return id, ok, nil
}

func (m *memStore) ListCandidates(_ context.Context, kind provider.Kind) ([]reconcile.Candidate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []reconcile.Candidate
	for _, c := range m.rows[kind] {
		if !m.trashed[c.ID] {
			out = append(out, c)
		}
	}
	return out, nil
}

func (m *memStore) SaveLocation(_ context.Context, loc provider.Location) (int64, error) {
	return m.insert(provider.KindLocation, loc.Title, loc.ExternalUID), nil
}

func (m *memStore) SaveContact(_ context.Context, c provider.Contact) (int64, error) {
	return m.insert(provider.KindContact, c.Title, c.ExternalUID), nil
}

func (m *memStore) SaveEvent(_ context.Context, ev provider.Event) (int64, error) {
	id := m.insert(provider.KindEvent, ev.Title, ev.ExternalUID)
	m.mu.Lock()
	m.events[id] = ev
	m.mu.Unlock()
	return id, nil
}

func (m *memStore) AssignCategories(_ context.Context, eventID int64, categories []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.categoryErr != nil {
		return m.categoryErr
	}
	m.categories[eventID] = append(m.categories[eventID], categories...)
	return nil
}

type memOccasions struct {
	seen map[string]bool
}

func (m *memOccasions) UpsertAll(_ context.Context, eventID int64, occ []provider.Occurrence) (occasion.Summary, error) {
	if m.seen == nil {
		m.seen = map[string]bool{}
	}
	var sum occasion.Summary
	for _, o := range occ {
		key := fmt.Sprintf("%d|%s|%s", eventID, o.Start, o.End)
		if m.seen[key] {
			sum.Duplicate++
			continue
		}
		m.seen[key] = true
		sum.Inserted++
	}
	return sum, nil
}

type fakeRaw struct {
	bundle provider.Bundle
	err    error
}

func (r fakeRaw) Normalize(provider.NormalizeContext) (provider.Bundle, error) {
	return r.bundle, r.err
}

func locationRecord(title string) provider.Raw {
	return fakeRaw{bundle: provider.Bundle{Location: &provider.Location{Title: title}}}
}

// fakeSource serves pages per credential name; the cursor is the page index.
type fakeSource struct {
	pages       map[string][][]provider.Raw
	validateErr map[string]error
	fetchErr    map[string]error
	onFetch     func(cred config.Credential, page int)
	fetches     int
}

func (s *fakeSource) Name() string { return "Fake" }

func (s *fakeSource) Validate(cred config.Credential) error { return s.validateErr[cred.Name] }

func (s *fakeSource) FetchPage(_ context.Context, cred config.Credential, cursor string) (provider.Page, error) {
	s.fetches++
	if err := s.fetchErr[cred.Name]; err != nil {
		return provider.Page{}, err
	}
	i := 0
	if cursor != "" {
		i, _ = strconv.Atoi(cursor)
	}
	if s.onFetch != nil {
		s.onFetch(cred, i)
	}
	pages := s.pages[cred.Name]
	if i >= len(pages) {
		return provider.Page{}, nil
	}
	page := provider.Page{Records: pages[i]}
	if i+1 < len(pages) {
		page.Next = strconv.Itoa(i + 1)
	}
	return page, nil
}

func keys(names ...string) []config.Credential {
	out := make([]config.Credential, len(names))
	for i, n := range names {
		out[i] = config.Credential{Name: n}
	}
	return out
}

func newTestImporter(src *fakeSource, store Store, occ OccasionStore, keyNames ...string) *Importer {
	providers := config.Providers{"fake": {PostStatus: "publish", Keys: keys(keyNames...)}}
	im := New(map[string]provider.Source{"fake": src}, providers, store, occ, Options{FuzzyThreshold: 0.2}, nil)
	im.now = func() time.Time { return time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC) }
	return im
}

// --------------------------------------------------------------------------
// Tests
// --------------------------------------------------------------------------

func TestRunLocationScenario(t *testing.T) {
	store := newMemStore()
	store.seed(provider.KindLocation, 1, "Central Arena")

	src := &fakeSource{pages: map[string][][]provider.Raw{
		"a": {{
			fakeRaw{err: fmt.Errorf("cbis product 3 has no name or address: %w", provider.ErrRejected)},
			locationRecord("Central Arenaa"),
			locationRecord("Completely Different Venue"),
		}},
	}}
	im := newTestImporter(src, store, &memOccasions{}, "a")

	res, err := im.Run(context.Background(), "fake")
	require.NoError(t, err)
	assert.Equal(t, Counters{Locations: 1}, res.Counters)
	assert.Equal(t, Counters{Locations: 1}, res.Reused)
	assert.Equal(t, 1, res.Skipped)
	assert.Len(t, res.Warnings, 1)
	assert.Empty(t, res.Errors)
}

func TestRunDuplicateOccasionPair(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	loc, err := time.LoadLocation("Europe/Stockholm")
	require.NoError(t, err)
	start, end := int64(1704135600), int64(1704146400)

	store := newMemStore()
	eventID := store.next + 1
	mock.ExpectQuery("occasion_exists").WithArgs(eventID, start, end).WillReturnError(pgx.ErrNoRows)
	mock.ExpectExec("occasion_insert").WithArgs(eventID, start, end, nil).WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectQuery("occasion_exists").WithArgs(eventID, start, end).WillReturnRows(pgxmock.NewRows([]string{"one"}).AddRow(1))
	mock.ExpectExec("occasion_warning").WithArgs(eventID, false).WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	occ := provider.Occurrence{Start: "2024-01-01T20:00", End: "2024-01-01T23:00"}
	src := &fakeSource{pages: map[string][][]provider.Raw{
		"a": {{fakeRaw{bundle: provider.Bundle{Event: &provider.Event{
			Title:       "Nyårskonsert",
			Categories:  []string{"Musik"},
			Occurrences: []provider.Occurrence{occ, occ},
		}}}}},
	}}
	im := newTestImporter(src, store, occasion.NewStore(mock, loc), "a")

	res, err := im.Run(context.Background(), "fake")
	require.NoError(t, err)
	assert.Equal(t, Counters{Events: 1}, res.Counters)
	assert.Equal(t, OccasionCounts{Inserted: 1, Duplicate: 1}, res.Occasions)
	assert.Equal(t, []string{"Musik"}, store.categories[eventID])
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRunEventLinksLocationAndContact(t *testing.T) {
	store := newMemStore()
	src := &fakeSource{pages: map[string][][]provider.Raw{
		"a": {{fakeRaw{bundle: provider.Bundle{
			Event:    &provider.Event{Title: "Jazz", Meta: provider.Meta{ExternalUID: "xcap-1"}},
			Location: &provider.Location{Title: "Stadsparken"},
			Contact:  &provider.Contact{Title: "Kulturförvaltningen"},
		}}}},
	}}
	im := newTestImporter(src, store, &memOccasions{}, "a")

	res, err := im.Run(context.Background(), "fake")
	require.NoError(t, err)
	assert.Equal(t, Counters{Events: 1, Locations: 1, Contacts: 1}, res.Counters)

	var ev provider.Event
	for _, e := range store.events {
		ev = e
	}
	require.NotNil(t, ev.LocationID)
	assert.Len(t, ev.ContactIDs, 1)

	// A second run reuses everything through the uid and title matches.
	res, err = im.Run(context.Background(), "fake")
	require.NoError(t, err)
	assert.Equal(t, Counters{}, res.Counters)
	assert.Equal(t, Counters{Events: 1, Locations: 1, Contacts: 1}, res.Reused)
}

func eventRecord(title, uid, start string, categories ...string) provider.Raw {
	return fakeRaw{bundle: provider.Bundle{Event: &provider.Event{
		Meta:        provider.Meta{ExternalUID: uid},
		Title:       title,
		Categories:  categories,
		Occurrences: []provider.Occurrence{{Start: start, End: start}},
	}}}
}

func TestRunCategoryFailureKeepsEventRegistered(t *testing.T) {
	store := newMemStore()
	store.categoryErr = errors.New("term table locked")
	occ := &memOccasions{}
	src := &fakeSource{pages: map[string][][]provider.Raw{
		"a": {{
			eventRecord("Jazz Night", "", "2026-06-01T20:00", "Musik"),
			eventRecord("Jazz Night", "", "2026-06-02T20:00", "Musik"),
		}},
	}}
	im := newTestImporter(src, store, occ, "a")

	res, err := im.Run(context.Background(), "fake")
	require.NoError(t, err)

	assert.Len(t, store.events, 1, "the second record reuses the first")
	assert.Equal(t, Counters{Events: 1}, res.Counters)
	assert.Equal(t, Counters{Events: 1}, res.Reused)
	assert.Equal(t, OccasionCounts{Inserted: 2}, res.Occasions, "occasions of both records are stored")
	require.Len(t, res.Errors, 1)
	assert.Contains(t, res.Errors[0], "term table locked")
}

func TestRunRecreatesTrashedEvent(t *testing.T) {
	store := newMemStore()
	occ := &memOccasions{}
	src := &fakeSource{pages: map[string][][]provider.Raw{
		"a": {{eventRecord("Vårmarknad", "xcap-7", "2026-04-01T10:00")}},
	}}
	im := newTestImporter(src, store, occ, "a")

	_, err := im.Run(context.Background(), "fake")
	require.NoError(t, err)
	require.Len(t, store.events, 1)
	var first int64
	for id := range store.events {
		first = id
	}

	// An editor trashed it; the provider lists it again with new dates.
	store.trash(first)
	src.pages["a"] = [][]provider.Raw{{eventRecord("Vårmarknad", "xcap-7", "2027-04-01T10:00")}}

	res, err := im.Run(context.Background(), "fake")
	require.NoError(t, err)
	assert.Equal(t, Counters{Events: 1}, res.Counters, "a trashed event is never reused")
	assert.Equal(t, Counters{}, res.Reused)
	assert.Len(t, store.events, 2)
	assert.Equal(t, 1, res.Occasions.Inserted)
}

func TestRunKeyFailuresDoNotAbort(t *testing.T) {
	src := &fakeSource{
		pages:       map[string][][]provider.Raw{"c": {{locationRecord("Konserthuset")}}},
		validateErr: map[string]error{"a": errors.New("api_key is required")},
		fetchErr:    map[string]error{"b": errors.New("connection refused")},
	}
	im := newTestImporter(src, newMemStore(), &memOccasions{}, "a", "b", "c")

	res, err := im.Run(context.Background(), "fake")
	require.NoError(t, err)
	assert.Equal(t, Counters{Locations: 1}, res.Counters)
	require.Len(t, res.Errors, 2)
	assert.Contains(t, res.Errors[0], ErrConfig.Error())
	assert.Contains(t, res.Errors[1], ErrTransport.Error())
}

func TestRunSharesEngineAcrossKeys(t *testing.T) {
	src := &fakeSource{pages: map[string][][]provider.Raw{
		"a": {{locationRecord("Nya Scenen")}},
		"b": {{locationRecord("Nya Scenen")}},
	}}
	im := newTestImporter(src, newMemStore(), &memOccasions{}, "a", "b")

	res, err := im.Run(context.Background(), "fake")
	require.NoError(t, err)
	assert.Equal(t, Counters{Locations: 1}, res.Counters)
	assert.Equal(t, Counters{Locations: 1}, res.Reused)
}

func TestRunPagesInOrder(t *testing.T) {
	var seen []int
	src := &fakeSource{
		pages: map[string][][]provider.Raw{
			"a": {{locationRecord("A")}, {locationRecord("B")}, {locationRecord("C")}},
		},
		onFetch: func(_ config.Credential, page int) { seen = append(seen, page) },
	}
	var snapshots []JobState
	im := newTestImporter(src, newMemStore(), &memOccasions{}, "a")
	job, err := im.NewJob("fake")
	require.NoError(t, err)

	job, err = im.RunJob(context.Background(), job, func(j JobState) { snapshots = append(snapshots, j) })
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 2}, seen)
	assert.Equal(t, StateDone, job.State)
	assert.Equal(t, 3, job.Result.Counters.Locations)
	require.NotEmpty(t, snapshots)
	assert.Equal(t, StateDone, snapshots[len(snapshots)-1].State)
}

func TestRunCancelledBetweenPages(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	src := &fakeSource{
		pages: map[string][][]provider.Raw{
			"a": {{locationRecord("A")}, {locationRecord("B")}},
			"b": {{locationRecord("C")}},
		},
		onFetch: func(_ config.Credential, page int) {
			if page == 0 {
				cancel()
			}
		},
	}
	im := newTestImporter(src, newMemStore(), &memOccasions{}, "a", "b")
	job, err := im.NewJob("fake")
	require.NoError(t, err)

	job, err = im.RunJob(ctx, job, nil)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, StateCancelled, job.State)
	assert.Equal(t, 1, src.fetches)
	assert.Equal(t, 1, job.Result.Counters.Locations)
}

func TestStepAdvancesOneKeyPerCall(t *testing.T) {
	store := newMemStore()
	src := &fakeSource{pages: map[string][][]provider.Raw{
		"a": {{locationRecord("Nya Scenen")}},
		"b": {{locationRecord("Nya Scenen")}},
	}}
	im := newTestImporter(src, store, &memOccasions{}, "a", "b")
	job, err := im.NewJob("fake")
	require.NoError(t, err)

	job, err = im.Step(context.Background(), job)
	require.NoError(t, err)
	assert.Equal(t, 1, job.KeyIndex)
	assert.Equal(t, StateRunning, job.State)
	assert.Equal(t, 1, job.Result.Counters.Locations)

	// The second step has a fresh engine but sees the stored sibling.
	job, err = im.Step(context.Background(), job)
	require.NoError(t, err)
	assert.True(t, job.Done())
	assert.Equal(t, StateDone, job.State)
	assert.Equal(t, 1, job.Result.Reused.Locations)

	before := src.fetches
	job, err = im.Step(context.Background(), job)
	require.NoError(t, err)
	assert.Equal(t, before, src.fetches)
}

func TestNewJobConfigErrors(t *testing.T) {
	im := newTestImporter(&fakeSource{}, newMemStore(), &memOccasions{})

	_, err := im.NewJob("fake")
	assert.ErrorIs(t, err, ErrConfig)

	_, err = im.Run(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrConfig)
}

func TestResultSummary(t *testing.T) {
	var r Result
	r.Counters.Locations = 2
	r.AddErrorf("key %d failed", 1)
	r.AddWarningf("skip")
	s := r.Summary()
	assert.True(t, strings.HasPrefix(s, "events=0 locations=2"))
	assert.Contains(t, s, "failures=1 warnings=1")
}
