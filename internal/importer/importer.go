// Package importer drives provider imports: it walks a provider's
// credential entries in order, pages through each entry, and passes every
// record through normalization, reconciliation and occasion storage.
//
// There are two entry points over the same per-key logic:
//   - Step processes exactly one credential entry (cron path). Each call
//     gets a fresh reconciliation engine.
//   - Run / RunJob processes every entry (interactive path) with one engine
//     shared across entries, so siblings created under an earlier key are
//     matched by later ones.
//
// Keys and pages are strictly sequential. A failing entry is recorded and
// skipped; no single record or entry aborts the run.
package importer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/eventhub/event-importer/internal/config"
	"github.com/eventhub/event-importer/internal/metrics"
	"github.com/eventhub/event-importer/internal/occasion"
	"github.com/eventhub/event-importer/internal/provider"
	"github.com/eventhub/event-importer/internal/reconcile"
)

// maxPages bounds one credential entry in case a provider keeps returning
// a continuation.
const maxPages = 10000

// Store is the persistence collaborator.
type Store interface {
	reconcile.Lookup
	SaveLocation(ctx context.Context, loc provider.Location) (int64, error)
	SaveContact(ctx context.Context, c provider.Contact) (int64, error)
	SaveEvent(ctx context.Context, ev provider.Event) (int64, error)
	AssignCategories(ctx context.Context, eventID int64, categories []string) error
}

// OccasionStore stores an event's occurrences.
type OccasionStore interface {
	UpsertAll(ctx context.Context, eventID int64, occurrences []provider.Occurrence) (occasion.Summary, error)
}

// ProgressFunc receives a snapshot of the job after every page and entry.
type ProgressFunc func(JobState)

// Options tunes an Importer.
type Options struct {
	FuzzyThreshold float64
	Metrics        *metrics.ImportMetrics
}

// Importer runs imports for all configured providers.
type Importer struct {
	sources   map[string]provider.Source
	providers config.Providers
	store     Store
	occasions OccasionStore
	opts      Options
	logger    *slog.Logger
	now       func() time.Time
}

// New creates an importer. sources is keyed by provider name as used in
// the providers file.
func New(sources map[string]provider.Source, providers config.Providers, store Store, occasions OccasionStore, opts Options, logger *slog.Logger) *Importer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Importer{
		sources:   sources,
		providers: providers,
		store:     store,
		occasions: occasions,
		opts:      opts,
		logger:    logger,
		now:       time.Now,
	}
}

// NewJob creates a job over the configured keys of providerName.
func (im *Importer) NewJob(providerName string) (JobState, error) {
	if _, ok := im.sources[providerName]; !ok {
		return JobState{}, fmt.Errorf("%w: no source for provider %q", ErrConfig, providerName)
	}
	keys := im.providers.Keys(providerName)
	if len(keys) == 0 {
		return JobState{}, fmt.Errorf("%w: no keys configured for provider %q", ErrConfig, providerName)
	}
	return NewJob(providerName, keys), nil
}

// Step processes the job's current credential entry and returns the
// advanced job. A done job is returned unchanged. The only error is
// context cancellation; entry failures land in the job's Result.
func (im *Importer) Step(ctx context.Context, job JobState) (JobState, error) {
	if job.Done() {
		return job, nil
	}
	started := im.now()
	defer func() {
		im.opts.Metrics.ObserveRunDuration(job.Provider, "cron", time.Since(started).Seconds())
	}()

	job.State = StateRunning
	engine := reconcile.NewEngine(im.store, im.opts.FuzzyThreshold)
	if err := im.processKey(ctx, engine, &job, nil); err != nil {
		job.State = StateCancelled
		return job, err
	}
	job = job.advance()
	im.logger.Info("Import step complete",
		"provider", job.Provider, "key", job.KeyIndex, "of", job.KeyCount, "summary", job.Result.Summary())
	return job, nil
}

// Run processes every credential entry of providerName and returns the
// aggregated result.
func (im *Importer) Run(ctx context.Context, providerName string) (Result, error) {
	job, err := im.NewJob(providerName)
	if err != nil {
		return Result{}, err
	}
	job, err = im.RunJob(ctx, job, nil)
	return job.Result, err
}

// RunJob processes the remaining entries of job, reporting progress after
// every page and entry. On cancellation the job is returned in state
// cancelled with the partial result.
func (im *Importer) RunJob(ctx context.Context, job JobState, progress ProgressFunc) (JobState, error) {
	started := im.now()
	defer func() {
		im.opts.Metrics.ObserveRunDuration(job.Provider, "interactive", time.Since(started).Seconds())
	}()

	report := func() {
		if progress != nil {
			progress(job)
		}
	}

	engine := reconcile.NewEngine(im.store, im.opts.FuzzyThreshold)
	job.State = StateRunning
	report()
	for !job.Done() {
		if err := ctx.Err(); err != nil {
			job.State = StateCancelled
			report()
			return job, err
		}
		if err := im.processKey(ctx, engine, &job, report); err != nil {
			job.State = StateCancelled
			report()
			return job, err
		}
		job = job.advance()
		report()
	}

	im.logger.Info("Import run complete", "provider", job.Provider, "summary", job.Result.Summary())
	return job, nil
}

// processKey imports every page of the job's current entry into
// job.Result. It returns an error only when ctx is cancelled.
func (im *Importer) processKey(ctx context.Context, engine *reconcile.Engine, job *JobState, report func()) error {
	idx := job.KeyIndex
	cred := job.Keys[idx]
	src := im.sources[job.Provider]
	res := &job.Result
	logger := im.logger.With("provider", job.Provider, "key", idx, "label", cred.Label())

	if err := src.Validate(cred); err != nil {
		err = fmt.Errorf("%w: %v", ErrConfig, err)
		res.AddErrorf("key %d (%s): %v", idx, cred.Label(), err)
		im.opts.Metrics.ObserveKeyFailure(job.Provider, "config")
		logger.Error("Skipping credential entry", "error", err)
		return nil
	}

	pc := im.providers[job.Provider]
	nc := provider.NormalizeContext{
		Provider:          src.Name(),
		DefaultCity:       cred.DefaultCity,
		PostStatus:        pc.PostStatus,
		Groups:            cred.Groups,
		ExcludeCategories: cred.ExcludeCategories,
		Now:               im.now(),
	}

	logger.Info("Importing credential entry...")
	cursor := ""
	processed := 0
	for pages := 0; pages < maxPages; pages++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		page, err := src.FetchPage(ctx, cred, cursor)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			err = fmt.Errorf("%w: %v", ErrTransport, err)
			res.AddErrorf("key %d (%s): %v", idx, cred.Label(), err)
			im.opts.Metrics.ObserveKeyFailure(job.Provider, "transport")
			logger.Error("Fetch failed, skipping rest of entry", "cursor", cursor, "error", err)
			return nil
		}

		for _, raw := range page.Records {
			if err := im.importRecord(ctx, engine, job.Provider, nc, raw, res); err != nil {
				if ctxErr := ctx.Err(); ctxErr != nil {
					return ctxErr
				}
				res.AddErrorf("key %d (%s): %v", idx, cred.Label(), err)
				logger.Warn("Record not stored", "error", err)
			}
			processed++
			if processed%50 == 0 {
				logger.Info("Import progress", "processed", processed)
			}
		}
		if report != nil {
			report()
		}

		if page.Next == "" || page.Next == cursor {
			break
		}
		cursor = page.Next
	}
	logger.Info("Credential entry done", "processed", processed)
	return nil
}

// importRecord normalizes one raw record and reconciles its entities.
// Related location and contact are resolved first so the event can
// reference them. Validation problems become warnings; the returned error
// is a storage failure.
func (im *Importer) importRecord(ctx context.Context, engine *reconcile.Engine, providerName string, nc provider.NormalizeContext, raw provider.Raw, res *Result) error {
	b, err := raw.Normalize(nc)
	if err != nil {
		res.Skipped++
		if !errors.Is(err, provider.ErrRejected) {
			err = fmt.Errorf("normalize: %w", err)
		}
		res.AddWarningf("%v", err)
		return nil
	}
	if b.Empty() {
		res.Skipped++
		return nil
	}

	var locationID *int64
	if loc := b.Location; loc != nil && loc.Title != "" {
		id, created, err := im.resolve(ctx, engine, providerName, provider.KindLocation, loc.Title, loc.ExternalUID,
			func() (int64, error) { return im.store.SaveLocation(ctx, *loc) })
		if id != 0 {
			countInto(res, provider.KindLocation, created)
		}
		if err != nil {
			return err
		}
		locationID = &id
	}

	var contactIDs []int64
	if c := b.Contact; c != nil && c.Title != "" {
		id, created, err := im.resolve(ctx, engine, providerName, provider.KindContact, c.Title, c.ExternalUID,
			func() (int64, error) { return im.store.SaveContact(ctx, *c) })
		if id != 0 {
			countInto(res, provider.KindContact, created)
		}
		if err != nil {
			return err
		}
		contactIDs = append(contactIDs, id)
	}

	ev := b.Event
	if ev == nil {
		return nil
	}
	ev.LocationID = locationID
	ev.ContactIDs = contactIDs

	eventID, created, err := im.resolve(ctx, engine, providerName, provider.KindEvent, ev.Title, ev.ExternalUID,
		func() (int64, error) { return im.store.SaveEvent(ctx, *ev) })
	if eventID == 0 {
		return err
	}
	countInto(res, provider.KindEvent, created)

	// The event is registered with the engine by now, so a failed link or
	// category write neither loses its occasions nor lets a sibling record
	// duplicate it.
	partialErr := err
	if created && len(ev.Categories) > 0 {
		if err := im.store.AssignCategories(ctx, eventID, ev.Categories); err != nil {
			partialErr = errors.Join(partialErr,
				fmt.Errorf("categories of event %q (id %d): %w", ev.Title, eventID, err))
		}
	}

	// Occasions are stored for reused events too; the insert is idempotent
	// and only adds new dates.
	sum, err := im.occasions.UpsertAll(ctx, eventID, ev.Occurrences)
	for _, r := range sum.Results {
		im.opts.Metrics.ObserveOccasion(string(r.Status))
	}
	res.Occasions.Inserted += sum.Inserted
	res.Occasions.Duplicate += sum.Duplicate
	res.Occasions.Invalid += sum.Invalid
	if err != nil {
		return errors.Join(partialErr, fmt.Errorf("occasions of event %q: %w", ev.Title, err))
	}
	if sum.Warning() {
		res.AddWarningf("event %q (id %d): %d invalid occasion(s)", ev.Title, eventID, sum.Invalid)
	}
	return partialErr
}

// resolve reconciles one entity and saves it on CREATE. It reports the
// entity id and whether it was created; created can be true alongside an
// error when the row was written but a follow-up write failed.
func (im *Importer) resolve(ctx context.Context, engine *reconcile.Engine, providerName string, kind provider.Kind, title, uid string, save func() (int64, error)) (int64, bool, error) {
	r, err := engine.Resolve(ctx, kind, reconcile.Candidate{Title: title, UID: uid})
	if err != nil {
		return 0, false, err
	}
	im.opts.Metrics.ObserveRecord(providerName, string(kind), string(r.Action))
	if r.Action == reconcile.ActionReuse {
		return r.ID, false, nil
	}
	id, err := save()
	if id == 0 {
		if err == nil {
			err = fmt.Errorf("save %s %q: no id returned", kind, title)
		}
		return 0, false, err
	}
	// A row that exists is remembered even when a follow-up write failed.
	engine.Remember(kind, id, title, uid)
	return id, true, err
}

func countInto(res *Result, kind provider.Kind, created bool) {
	c := &res.Reused
	if created {
		c = &res.Counters
	}
	switch kind {
	case provider.KindEvent:
		c.Events++
	case provider.KindLocation:
		c.Locations++
	case provider.KindContact:
		c.Contacts++
	}
}
