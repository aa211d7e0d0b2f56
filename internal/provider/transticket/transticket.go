// Package transticket provides the TransTicket adapter.
//
// TransTicket is queried one calendar week at a time with HTTP basic auth.
// The page cursor is the week index counted from the current week; a key
// is exhausted after its configured number of weeks.
package transticket

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/eventhub/event-importer/internal/config"
	"github.com/eventhub/event-importer/internal/provider"
	"github.com/eventhub/event-importer/internal/provider/rest"
)

const (
	defaultWeeks  = 4
	dateLayout    = "2006-01-02"
	ticketIDToken = "{id}"
)

// Event is one TransTicket performance.
type Event struct {
	ID          int      `json:"Id"`
	Name        string   `json:"Name"`
	SubName     string   `json:"SubName"`
	Description string   `json:"Description"`
	EventDate   string   `json:"EventDate"`
	EndDate     string   `json:"EndDate"`
	DoorsOpen   string   `json:"DoorsOpen"`
	ImageURL    string   `json:"ImageUrl"`
	Tags        []string `json:"Tags"`
	Categories  []string `json:"Categories"`
	MinPrice    any      `json:"MinPrice"`
	MaxPrice    any      `json:"MaxPrice"`
	Venue       struct {
		Name       string `json:"Name"`
		Address    string `json:"Address"`
		PostalCode string `json:"ZipCode"`
		City       string `json:"City"`
	} `json:"Venue"`
	Organizer struct {
		Name  string `json:"Name"`
		Email string `json:"Email"`
		Phone string `json:"Phone"`
	} `json:"Organizer"`

	ticketURL string
}

// Normalize maps a performance to an event bundle with its venue and
// organizer.
func (e *Event) Normalize(nc provider.NormalizeContext) (provider.Bundle, error) {
	title := provider.CleanString(e.Name)
	if title == "" {
		return provider.Bundle{}, fmt.Errorf("transticket event %d has no name: %w", e.ID, provider.ErrRejected)
	}
	if provider.Excluded(e.Categories, nc.ExcludeCategories) {
		return provider.Bundle{}, fmt.Errorf("transticket event %d only in excluded categories: %w", e.ID, provider.ErrRejected)
	}

	ev := &provider.Event{
		Meta:          nc.Meta("transticket-" + strconv.Itoa(e.ID)),
		Title:         title,
		AlternateName: provider.CleanString(e.SubName),
		Content:       provider.CleanString(e.Description),
		BookingLink:   e.ticketURL,
		ImageURL:      provider.CleanString(e.ImageURL),
		Categories:    provider.FilterCategories(e.Categories, nc.ExcludeCategories),
	}
	ev.PriceInformation = priceRange(e.MinPrice, e.MaxPrice)
	if e.EventDate != "" {
		ev.Occurrences = []provider.Occurrence{{
			Start: e.EventDate,
			End:   provider.FirstNonEmpty(e.EndDate, e.EventDate),
			Door:  e.DoorsOpen,
		}}
	}
	b := provider.Bundle{Event: ev}

	venue := provider.CleanString(e.Venue.Name)
	address := provider.CleanString(e.Venue.Address)
	if t := provider.FirstNonEmpty(venue, address); t != "" {
		b.Location = &provider.Location{
			Meta:          nc.Meta(""),
			Title:         t,
			StreetAddress: address,
			PostalCode:    provider.CleanString(e.Venue.PostalCode),
			City:          provider.FirstNonEmpty(provider.CleanString(e.Venue.City), nc.DefaultCity),
		}
	}

	email := provider.CleanEmail(e.Organizer.Email)
	phone := provider.CleanPhone(e.Organizer.Phone)
	ev.OrganizerEmail = email
	ev.OrganizerPhone = phone
	if t := provider.FirstNonEmpty(provider.CleanString(e.Organizer.Name), email); t != "" {
		b.Contact = &provider.Contact{Meta: nc.Meta(""), Title: t, Email: email, Phone: phone}
	}
	return b, nil
}

func priceRange(lo, hi any) string {
	l, lok := provider.ExtractFloat(lo)
	h, hok := provider.ExtractFloat(hi)
	switch {
	case lok && hok && l != h:
		return provider.ExtractString(l) + "-" + provider.ExtractString(h) + " kr"
	case lok:
		return provider.ExtractString(l) + " kr"
	case hok:
		return provider.ExtractString(h) + " kr"
	}
	return ""
}

// Source adapts TransTicket to provider.Source.
type Source struct {
	client *rest.Client
	loc    *time.Location
	logger *slog.Logger
	now    func() time.Time
}

// NewSource creates the TransTicket source. Week windows are computed in loc.
func NewSource(client *rest.Client, loc *time.Location, logger *slog.Logger) *Source {
	if logger == nil {
		logger = slog.Default()
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Source{client: client, loc: loc, logger: logger, now: time.Now}
}

// Name returns the provider display name.
func (s *Source) Name() string { return "TransTicket" }

// Validate requires an endpoint and basic auth credentials.
func (s *Source) Validate(cred config.Credential) error {
	if cred.URL == "" {
		return errors.New("transticket: url is required")
	}
	if cred.Username == "" || cred.Password == "" {
		return errors.New("transticket: username and password are required")
	}
	if cred.TicketURL != "" && !strings.Contains(cred.TicketURL, ticketIDToken) {
		return fmt.Errorf("transticket: ticket_url must contain %s", ticketIDToken)
	}
	return nil
}

// FetchPage fetches one week window.
func (s *Source) FetchPage(ctx context.Context, cred config.Credential, cursor string) (provider.Page, error) {
	week := 0
	if cursor != "" {
		w, err := strconv.Atoi(cursor)
		if err != nil || w < 0 {
			return provider.Page{}, fmt.Errorf("transticket: malformed cursor %q", cursor)
		}
		week = w
	}
	weeks := cred.Weeks
	if weeks <= 0 {
		weeks = defaultWeeks
	}
	if week >= weeks {
		return provider.Page{}, nil
	}

	from := weekStart(s.now().In(s.loc)).AddDate(0, 0, 7*week)
	to := from.AddDate(0, 0, 6)
	params := url.Values{
		"from": {from.Format(dateLayout)},
		"to":   {to.Format(dateLayout)},
	}

	var events []*Event
	auth := rest.Auth{Username: cred.Username, Password: cred.Password}
	if err := s.client.GetJSON(ctx, strings.TrimRight(cred.URL, "/")+"/events", params, auth, &events); err != nil {
		return provider.Page{}, fmt.Errorf("transticket week %s: %w", from.Format(dateLayout), err)
	}

	page := provider.Page{Records: make([]provider.Raw, 0, len(events))}
	for _, e := range events {
		if e == nil || !matchesTags(e.Tags, cred.FilterTags) {
			continue
		}
		if cred.TicketURL != "" {
			e.ticketURL = strings.ReplaceAll(cred.TicketURL, ticketIDToken, strconv.Itoa(e.ID))
		}
		page.Records = append(page.Records, e)
	}
	if week+1 < weeks {
		page.Next = strconv.Itoa(week + 1)
	}
	return page, nil
}

// weekStart returns midnight of the Monday of t's week.
func weekStart(t time.Time) time.Time {
	offset := (int(t.Weekday()) + 6) % 7
	y, m, d := t.AddDate(0, 0, -offset).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// matchesTags reports whether any event tag is in filter. An empty filter
// matches everything.
func matchesTags(tags, filter []string) bool {
	if len(filter) == 0 {
		return true
	}
	for _, t := range tags {
		for _, f := range filter {
			if strings.EqualFold(strings.TrimSpace(t), strings.TrimSpace(f)) {
				return true
			}
		}
	}
	return false
}
