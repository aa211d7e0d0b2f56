// Package xcap provides the XCAP event feed adapter.
//
// XCAP serves a JSON document of items with a "next" continuation URL.
// The continuation URL is used verbatim as the page cursor.
package xcap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/eventhub/event-importer/internal/config"
	"github.com/eventhub/event-importer/internal/provider"
	"github.com/eventhub/event-importer/internal/provider/rest"
)

// Feed is one XCAP response page.
type Feed struct {
	Items []*Item `json:"items"`
	Next  string  `json:"next"`
}

// Item is one XCAP event.
type Item struct {
	ID          any      `json:"id"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Ingress     string   `json:"ingress"`
	URL         string   `json:"url"`
	TicketURL   string   `json:"ticket_url"`
	Image       string   `json:"image"`
	Price       string   `json:"price"`
	AgeLimit    string   `json:"age_limit"`
	Categories  []string `json:"categories"`
	Location    *struct {
		Name       string `json:"name"`
		Address    string `json:"address"`
		PostalCode string `json:"postal_code"`
		City       string `json:"city"`
		Country    string `json:"country"`
		Latitude   any    `json:"latitude"`
		Longitude  any    `json:"longitude"`
	} `json:"location"`
	Organizer *struct {
		Name  string `json:"name"`
		Email string `json:"email"`
		Phone string `json:"phone"`
	} `json:"organizer"`
	Occasions []struct {
		Start string `json:"start"`
		End   string `json:"end"`
		Door  string `json:"door"`
	} `json:"occasions"`
}

// Normalize maps an XCAP item to an event bundle.
func (it *Item) Normalize(nc provider.NormalizeContext) (provider.Bundle, error) {
	id := provider.ExtractString(it.ID)
	title := provider.CleanString(it.Title)
	if title == "" {
		return provider.Bundle{}, fmt.Errorf("xcap item %q has no title: %w", id, provider.ErrRejected)
	}
	if provider.Excluded(it.Categories, nc.ExcludeCategories) {
		return provider.Bundle{}, fmt.Errorf("xcap item %q only in excluded categories: %w", id, provider.ErrRejected)
	}

	uid := ""
	if id != "" {
		uid = "xcap-" + id
	}
	ev := &provider.Event{
		Meta:             nc.Meta(uid),
		Title:            title,
		Content:          provider.CleanString(provider.FirstNonEmpty(it.Description, it.Ingress)),
		EventLink:        provider.CleanString(it.URL),
		BookingLink:      provider.CleanString(it.TicketURL),
		ImageURL:         provider.CleanString(it.Image),
		PriceInformation: provider.CleanString(it.Price),
		AgeRestriction:   provider.CleanString(it.AgeLimit),
		Categories:       provider.FilterCategories(it.Categories, nc.ExcludeCategories),
	}
	for _, o := range it.Occasions {
		ev.Occurrences = append(ev.Occurrences, provider.Occurrence{Start: o.Start, End: o.End, Door: o.Door})
	}
	b := provider.Bundle{Event: ev}

	if l := it.Location; l != nil {
		name := provider.CleanString(l.Name)
		address := provider.CleanString(l.Address)
		if t := provider.FirstNonEmpty(name, address); t != "" {
			b.Location = &provider.Location{
				Meta:          nc.Meta(""),
				Title:         t,
				StreetAddress: address,
				PostalCode:    provider.CleanString(l.PostalCode),
				City:          provider.FirstNonEmpty(provider.CleanString(l.City), nc.DefaultCity),
				Country:       provider.CleanString(l.Country),
				Latitude:      provider.Coordinate(l.Latitude),
				Longitude:     provider.Coordinate(l.Longitude),
			}
		}
	}

	if o := it.Organizer; o != nil {
		email := provider.CleanEmail(o.Email)
		phone := provider.CleanPhone(o.Phone)
		ev.OrganizerEmail = email
		ev.OrganizerPhone = phone
		if t := provider.FirstNonEmpty(provider.CleanString(o.Name), email); t != "" {
			b.Contact = &provider.Contact{Meta: nc.Meta(""), Title: t, Email: email, Phone: phone}
		}
	}
	return b, nil
}

// Source adapts the XCAP feed to provider.Source.
type Source struct {
	client *rest.Client
	logger *slog.Logger
}

// NewSource creates the XCAP source.
func NewSource(client *rest.Client, logger *slog.Logger) *Source {
	if logger == nil {
		logger = slog.Default()
	}
	return &Source{client: client, logger: logger}
}

// Name returns the provider display name.
func (s *Source) Name() string { return "XCAP" }

// Validate requires a feed URL.
func (s *Source) Validate(cred config.Credential) error {
	if !strings.HasPrefix(cred.URL, "http://") && !strings.HasPrefix(cred.URL, "https://") {
		return errors.New("xcap: url must be an http(s) feed link")
	}
	return nil
}

// FetchPage fetches the feed at cursor, or the configured URL when cursor
// is empty.
func (s *Source) FetchPage(ctx context.Context, cred config.Credential, cursor string) (provider.Page, error) {
	u := cred.URL
	if cursor != "" {
		u = cursor
	}
	var feed Feed
	auth := rest.Auth{Header: "Authorization", Key: cred.APIKey}
	if err := s.client.GetJSON(ctx, u, nil, auth, &feed); err != nil {
		return provider.Page{}, fmt.Errorf("xcap feed: %w", err)
	}

	page := provider.Page{Records: make([]provider.Raw, 0, len(feed.Items))}
	for _, it := range feed.Items {
		if it == nil {
			continue
		}
		page.Records = append(page.Records, it)
	}
	// A feed that points back at itself would loop forever.
	if feed.Next != "" && feed.Next != u {
		page.Next = feed.Next
	}
	return page, nil
}
