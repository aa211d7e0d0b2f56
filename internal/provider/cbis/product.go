package cbis

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/eventhub/event-importer/internal/provider"
)

// Product is one CBIS product as returned by ListAll.
type Product struct {
	ID             int    `xml:"Id"`
	Name           string `xml:"Name"`
	ExpirationDate string `xml:"ExpirationDate"`
	GeoNode        struct {
		ID   int    `xml:"Id"`
		Name string `xml:"Name"`
	} `xml:"GeoNode"`
	Attributes provider.AttributeList `xml:"Attributes"`
	Categories []struct {
		Name string `xml:"Name"`
	} `xml:"Categories>Category"`
	Occasions []Occasion `xml:"Occasions>OccasionObject"`
	Image     struct {
		URL string `xml:"Url"`
	} `xml:"Image"`

	// Set by the source: which segment the product was fetched for.
	category string
	asEvent  bool
	logger   *slog.Logger
}

// Occasion is one CBIS occasion. Dates arrive as midnight timestamps with
// the clock time in separate fields.
type Occasion struct {
	StartDate string `xml:"StartDate"`
	EndDate   string `xml:"EndDate"`
	StartTime string `xml:"StartTime"`
	EndTime   string `xml:"EndTime"`
	EntryTime string `xml:"EntryTime"`
}

// Normalize maps the product into a location bundle or, for event
// segments, an event bundle with its venue and contact.
func (p *Product) Normalize(nc provider.NormalizeContext) (provider.Bundle, error) {
	nc.Category = p.category
	attrs := provider.ExtractAttributes(p.Attributes, p.logger)
	if p.asEvent {
		return p.normalizeEvent(nc, attrs)
	}
	loc, err := p.location(nc, attrs)
	if err != nil {
		return provider.Bundle{}, err
	}
	return provider.Bundle{Location: loc}, nil
}

// location builds the venue. Title falls back from name to address; a
// product with neither is rejected.
func (p *Product) location(nc provider.NormalizeContext, attrs provider.AttributeMap) (*provider.Location, error) {
	name := provider.CleanString(provider.FirstNonEmpty(attrs.Get(AttrName, ""), p.Name))
	address := provider.CleanString(attrs.Get(AttrAddress, ""))
	title := provider.FirstNonEmpty(name, address)
	if title == "" {
		return nil, fmt.Errorf("cbis product %d has no name or address: %w", p.ID, provider.ErrRejected)
	}

	country := provider.CleanString(attrs.Get(AttrCountry, ""))
	if _, err := strconv.Atoi(country); err == nil {
		country = fallbackCountry
	}

	return &provider.Location{
		Meta:          nc.Meta(title),
		Title:         title,
		StreetAddress: address,
		PostalCode:    provider.CleanString(attrs.Get(AttrPostcode, "")),
		City: provider.FirstNonEmpty(
			provider.CleanString(attrs.Get(AttrPostalAddress, "")),
			provider.CleanString(p.GeoNode.Name),
			nc.DefaultCity,
		),
		Municipality: provider.CleanString(attrs.Get(AttrMunicipality, "")),
		Country:      country,
		Latitude:     provider.Coordinate(attrs.Get(AttrLatitude, "")),
		Longitude:    provider.Coordinate(attrs.Get(AttrLongitude, "")),
	}, nil
}

func (p *Product) normalizeEvent(nc provider.NormalizeContext, attrs provider.AttributeMap) (provider.Bundle, error) {
	title := provider.CleanString(provider.FirstNonEmpty(attrs.Get(AttrName, ""), p.Name))
	if title == "" {
		return provider.Bundle{}, fmt.Errorf("cbis event %d has no name: %w", p.ID, provider.ErrRejected)
	}

	categories := make([]string, 0, len(p.Categories))
	for _, c := range p.Categories {
		categories = append(categories, c.Name)
	}
	if provider.Excluded(categories, nc.ExcludeCategories) {
		return provider.Bundle{}, fmt.Errorf("cbis event %d only in excluded categories: %w", p.ID, provider.ErrRejected)
	}

	ev := &provider.Event{
		Meta:  nc.Meta("cbis-" + strconv.Itoa(p.ID)),
		Title: title,
		Content: provider.CleanString(provider.FirstNonEmpty(
			attrs.Get(AttrDescription, ""),
			attrs.Get(AttrIngress, ""),
		)),
		EventLink:        provider.CleanString(provider.FirstNonEmpty(attrs.Get(AttrEventLink, ""), attrs.Get(AttrWebSite, ""))),
		BookingLink:      provider.CleanString(attrs.Get(AttrBookingLink, "")),
		BookingPhone:     provider.CleanPhone(attrs.Get(AttrBookingPhone, "")),
		OrganizerPhone:   provider.CleanPhone(attrs.Get(AttrPhoneNumber, "")),
		OrganizerEmail:   provider.CleanEmail(attrs.Get(AttrOrganizerEmail, "")),
		Coorganizer:      provider.CleanString(attrs.Get(AttrCoOrganizer, "")),
		AgeRestriction:   provider.CleanString(attrs.Get(AttrAgeRestriction, "")),
		PriceInformation: provider.CleanString(attrs.Get(AttrPriceInformation, "")),
		PriceAdult:       provider.CleanString(attrs.Get(AttrPriceAdult, "")),
		PriceChildren:    provider.CleanString(attrs.Get(AttrPriceChild, "")),
		ImageURL:         provider.CleanString(provider.FirstNonEmpty(p.Image.URL, attrs.Get(AttrMedia, ""))),
		Categories:       provider.FilterCategories(categories, nc.ExcludeCategories),
	}
	for _, o := range p.Occasions {
		ev.Occurrences = append(ev.Occurrences, o.occurrence())
	}

	b := provider.Bundle{Event: ev}

	// The venue is identified by its address; events carry no venue id.
	if address := provider.CleanString(attrs.Get(AttrAddress, "")); address != "" {
		b.Location = &provider.Location{
			Meta:          nc.Meta(""),
			Title:         address,
			StreetAddress: address,
			PostalCode:    provider.CleanString(attrs.Get(AttrPostcode, "")),
			City: provider.FirstNonEmpty(
				provider.CleanString(attrs.Get(AttrPostalAddress, "")),
				provider.CleanString(p.GeoNode.Name),
				nc.DefaultCity,
			),
			Latitude:  provider.Coordinate(attrs.Get(AttrLatitude, "")),
			Longitude: provider.Coordinate(attrs.Get(AttrLongitude, "")),
		}
	}

	person := provider.CleanString(attrs.Get(AttrContactPerson, ""))
	email := provider.CleanEmail(attrs.Get(AttrContactEmail, ""))
	if person != "" || email != "" {
		b.Contact = &provider.Contact{
			Meta:  nc.Meta(""),
			Title: provider.FirstNonEmpty(person, email),
			Email: email,
			Phone: ev.OrganizerPhone,
		}
	}
	return b, nil
}

// occurrence joins the date part of StartDate/EndDate with the separate
// clock fields. Missing end dates fall back to the start date.
func (o Occasion) occurrence() provider.Occurrence {
	endDate := provider.FirstNonEmpty(o.EndDate, o.StartDate)
	oc := provider.Occurrence{
		Start: joinDateTime(o.StartDate, o.StartTime),
		End:   joinDateTime(endDate, provider.FirstNonEmpty(o.EndTime, o.StartTime)),
	}
	if o.EntryTime != "" {
		oc.Door = joinDateTime(o.StartDate, o.EntryTime)
	}
	return oc
}

// joinDateTime turns ("2026-05-01T00:00:00", "19:30:00") into
// "2026-05-01T19:30". Unparseable input is returned as-is for the occasion
// store to reject.
func joinDateTime(date, clock string) string {
	date = strings.TrimSpace(date)
	clock = strings.TrimSpace(clock)
	if len(date) < 10 {
		return date
	}
	if clock == "" {
		return date
	}
	if len(clock) >= 5 {
		clock = clock[:5]
	}
	return date[:10] + "T" + clock
}
