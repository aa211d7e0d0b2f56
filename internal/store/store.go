// Package store is the pgx-backed persistence collaborator: lookups for
// reconciliation and create-only writes for canonical entities.
//
// Saves always insert. Reuse of an existing entity is decided upstream and
// never rewrites the stored row.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/eventhub/event-importer/internal/config"
	"github.com/eventhub/event-importer/internal/db"
	"github.com/eventhub/event-importer/internal/provider"
	"github.com/eventhub/event-importer/internal/reconcile"
)

// Store writes canonical entities to Postgres.
type Store struct {
	db db.Querier
}

// New creates a store on the given pool or transaction.
func New(q db.Querier) *Store {
	return &Store{db: q}
}

func statement(kind provider.Kind, suffix string) (string, error) {
	switch kind {
	case provider.KindEvent, provider.KindLocation, provider.KindContact:
		return string(kind) + suffix, nil
	}
	return "", fmt.Errorf("unknown entity kind %q", kind)
}

// FindByUID returns the id of the entity of kind with the external uid.
func (s *Store) FindByUID(ctx context.Context, kind provider.Kind, uid string) (int64, bool, error) {
	stmt, err := statement(kind, "_by_uid")
	if err != nil {
		return 0, false, err
	}
	var id int64
	err = s.db.QueryRow(ctx, stmt, uid).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return id, true, nil
}

// ListCandidates returns (id, title) of every stored entity of kind in id
// order.
func (s *Store) ListCandidates(ctx context.Context, kind provider.Kind) ([]reconcile.Candidate, error) {
	stmt, err := statement(kind, "_candidates")
	if err != nil {
		return nil, err
	}
	rows, err := s.db.Query(ctx, stmt)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []reconcile.Candidate
	for rows.Next() {
		var c reconcile.Candidate
		if err := rows.Scan(&c.ID, &c.Title); err != nil {
			return nil, fmt.Errorf("scan candidate: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// SaveLocation inserts a location and returns its id.
func (s *Store) SaveLocation(ctx context.Context, loc provider.Location) (int64, error) {
	var id int64
	err := s.db.QueryRow(ctx, `
		INSERT INTO `+config.LocationsTable+` (
			title, status, external_uid, import_client, street_address,
			postal_code, city, municipality, country, latitude, longitude, user_groups
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
		RETURNING id`,
		loc.Title, loc.Status, nilEmpty(loc.ExternalUID), nilEmpty(loc.ImportClient),
		nilEmpty(loc.StreetAddress), nilEmpty(loc.PostalCode), nilEmpty(loc.City),
		nilEmpty(loc.Municipality), nilEmpty(loc.Country), loc.Latitude, loc.Longitude,
		nonNilInts(loc.Groups),
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert location %q: %w", loc.Title, err)
	}
	return id, nil
}

// SaveContact inserts a contact and returns its id.
func (s *Store) SaveContact(ctx context.Context, c provider.Contact) (int64, error) {
	var id int64
	err := s.db.QueryRow(ctx, `
		INSERT INTO `+config.ContactsTable+` (
			title, status, external_uid, import_client, email, phone, user_groups
		) VALUES ($1,$2,$3,$4,$5,$6,$7)
		RETURNING id`,
		c.Title, c.Status, nilEmpty(c.ExternalUID), nilEmpty(c.ImportClient),
		nilEmpty(c.Email), nilEmpty(c.Phone), nonNilInts(c.Groups),
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert contact %q: %w", c.Title, err)
	}
	return id, nil
}

// SaveEvent inserts an event, links its contacts and returns its id.
func (s *Store) SaveEvent(ctx context.Context, ev provider.Event) (int64, error) {
	var id int64
	err := s.db.QueryRow(ctx, `
		INSERT INTO `+config.EventsTable+` (
			title, content, status, external_uid, import_client, location_id,
			alternate_name, event_link, booking_link, booking_phone,
			organizer_phone, organizer_email, coorganizer, age_restriction,
			price_information, price_adult, price_children, image_url, user_groups
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19)
		RETURNING id`,
		ev.Title, nilEmpty(ev.Content), ev.Status, nilEmpty(ev.ExternalUID),
		nilEmpty(ev.ImportClient), ev.LocationID, nilEmpty(ev.AlternateName),
		nilEmpty(ev.EventLink), nilEmpty(ev.BookingLink), nilEmpty(ev.BookingPhone),
		nilEmpty(ev.OrganizerPhone), nilEmpty(ev.OrganizerEmail), nilEmpty(ev.Coorganizer),
		nilEmpty(ev.AgeRestriction), nilEmpty(ev.PriceInformation), nilEmpty(ev.PriceAdult),
		nilEmpty(ev.PriceChildren), nilEmpty(ev.ImageURL), nonNilInts(ev.Groups),
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert event %q: %w", ev.Title, err)
	}

	for _, cid := range ev.ContactIDs {
		if _, err := s.db.Exec(ctx, `
			INSERT INTO `+config.EventContactsTable+` (event_id, contact_id)
			VALUES ($1, $2) ON CONFLICT DO NOTHING`, id, cid); err != nil {
			return id, fmt.Errorf("link contact %d to event %d: %w", cid, id, err)
		}
	}
	return id, nil
}

// AssignCategories attaches category terms to an event. Existing terms are
// kept.
func (s *Store) AssignCategories(ctx context.Context, eventID int64, categories []string) error {
	for _, c := range categories {
		if _, err := s.db.Exec(ctx, `
			INSERT INTO `+config.EventCategoriesTable+` (event_id, category)
			VALUES ($1, $2) ON CONFLICT DO NOTHING`, eventID, c); err != nil {
			return fmt.Errorf("assign category %q to event %d: %w", c, eventID, err)
		}
	}
	return nil
}

// TrashEventsWithoutOccasions moves published events with no remaining
// occasions to trash and returns how many were moved.
func (s *Store) TrashEventsWithoutOccasions(ctx context.Context) (int64, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE `+config.EventsTable+` e
		SET status = 'trash', updated_at = NOW()
		WHERE e.status = 'publish'
		  AND NOT EXISTS (
			SELECT 1 FROM `+config.OccasionsTable+` o WHERE o.event_id = e.id
		  )`)
	if err != nil {
		return 0, fmt.Errorf("trash events without occasions: %w", err)
	}
	return tag.RowsAffected(), nil
}

// nilEmpty converts empty strings to nil for nullable columns.
func nilEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// nonNilInts ensures a nil slice is stored as an empty array.
func nonNilInts(v []int) []int {
	if v == nil {
		return []int{}
	}
	return v
}
