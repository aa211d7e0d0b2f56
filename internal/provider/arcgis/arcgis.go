// Package arcgis provides the ArcGIS feature-service adapter.
//
// Features are read through the layer's /query endpoint with offset
// pagination; the service sets exceededTransferLimit while more records
// remain. Dates are epoch milliseconds and geometry is requested in WGS84
// so x/y map directly to longitude/latitude.
package arcgis

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

const defaultPageSize = 1000

// Field name candidates, first present wins. Layers differ in casing and
// language between municipalities.
var (
	fieldID          = []string{"OBJECTID", "ObjectId", "FID"}
	fieldTitle       = []string{"TITLE", "Title", "NAMN", "Namn", "NAME", "Name"}
	fieldDescription = []string{"DESCRIPTION", "Description", "BESKRIVNING", "Beskrivning"}
	fieldStart       = []string{"START_DATE", "StartDate", "STARTDATUM", "Startdatum"}
	fieldEnd         = []string{"END_DATE", "EndDate", "SLUTDATUM", "Slutdatum"}
	fieldPlace       = []string{"PLACE", "Place", "PLATS", "Plats"}
	fieldAddress     = []string{"ADDRESS", "Address", "ADRESS", "Adress"}
	fieldURL         = []string{"URL", "Url", "LINK", "Link", "LANK"}
	fieldCategory    = []string{"CATEGORY", "Category", "KATEGORI", "Kategori"}
	fieldOrganizer   = []string{"ORGANIZER", "Organizer", "ARRANGOR", "Arrangor"}
	fieldEmail       = []string{"EMAIL", "Email", "EPOST", "Epost"}
	fieldPhone       = []string{"PHONE", "Phone", "TELEFON", "Telefon"}
)

// queryResponse is the feature query envelope. ArcGIS reports failures as
// HTTP 200 with an error object.
type queryResponse struct {
	Features              []*Feature `json:"features"`
	ExceededTransferLimit bool       `json:"exceededTransferLimit"`
	Error                 *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// Feature is one ArcGIS feature.
type Feature struct {
	Attributes map[string]any `json:"attributes"`
	Geometry   *struct {
		X any `json:"x"`
		Y any `json:"y"`
	} `json:"geometry"`
}

func (f *Feature) field(names []string) any {
	for _, n := range names {
		if v, ok := f.Attributes[n]; ok && v != nil {
			return v
		}
	}
	return nil
}

func (f *Feature) str(names []string) string {
	return provider.CleanString(provider.ExtractString(f.field(names)))
}

// Normalize maps a feature to an event bundle; the feature geometry places
// its location.
func (f *Feature) Normalize(nc provider.NormalizeContext) (provider.Bundle, error) {
	id := provider.ExtractString(f.field(fieldID))
	title := f.str(fieldTitle)
	if title == "" {
		return provider.Bundle{}, fmt.Errorf("arcgis feature %q has no title: %w", id, provider.ErrRejected)
	}
	var categories []string
	if c := f.str(fieldCategory); c != "" {
		for _, part := range strings.Split(c, ",") {
			categories = append(categories, strings.TrimSpace(part))
		}
	}
	if provider.Excluded(categories, nc.ExcludeCategories) {
		return provider.Bundle{}, fmt.Errorf("arcgis feature %q only in excluded categories: %w", id, provider.ErrRejected)
	}

	uid := ""
	if id != "" {
		uid = "arcgis-" + id
	}
	ev := &provider.Event{
		Meta:           nc.Meta(uid),
		Title:          title,
		Content:        f.str(fieldDescription),
		EventLink:      f.str(fieldURL),
		OrganizerEmail: provider.CleanEmail(provider.ExtractString(f.field(fieldEmail))),
		OrganizerPhone: provider.CleanPhone(provider.ExtractString(f.field(fieldPhone))),
		Categories:     provider.FilterCategories(categories, nc.ExcludeCategories),
	}
	if start := epochMillis(f.field(fieldStart)); start != "" {
		end := epochMillis(f.field(fieldEnd))
		ev.Occurrences = []provider.Occurrence{{Start: start, End: provider.FirstNonEmpty(end, start)}}
	}
	b := provider.Bundle{Event: ev}

	place := f.str(fieldPlace)
	address := f.str(fieldAddress)
	if t := provider.FirstNonEmpty(place, address); t != "" {
		loc := &provider.Location{
			Meta:          nc.Meta(""),
			Title:         t,
			StreetAddress: address,
			City:          nc.DefaultCity,
		}
		if f.Geometry != nil {
			loc.Longitude = provider.Coordinate(f.Geometry.X)
			loc.Latitude = provider.Coordinate(f.Geometry.Y)
		}
		b.Location = loc
	}

	if org := provider.FirstNonEmpty(f.str(fieldOrganizer), ev.OrganizerEmail); org != "" {
		b.Contact = &provider.Contact{Meta: nc.Meta(""), Title: org, Email: ev.OrganizerEmail, Phone: ev.OrganizerPhone}
	}
	return b, nil
}

// epochMillis renders an epoch-millisecond value as RFC3339 UTC.
func epochMillis(v any) string {
	ms, ok := provider.ExtractFloat(v)
	if !ok || ms <= 0 {
		return ""
	}
	return time.UnixMilli(int64(ms)).UTC().Format(time.RFC3339)
}

// Source adapts an ArcGIS feature layer to provider.Source.
type Source struct {
	client *rest.Client
	logger *slog.Logger
}

// NewSource creates the ArcGIS source.
func NewSource(client *rest.Client, logger *slog.Logger) *Source {
	if logger == nil {
		logger = slog.Default()
	}
	return &Source{client: client, logger: logger}
}

// Name returns the provider display name.
func (s *Source) Name() string { return "ArcGIS" }

// Validate requires the feature layer URL.
func (s *Source) Validate(cred config.Credential) error {
	if cred.URL == "" {
		return errors.New("arcgis: url is required")
	}
	if _, err := url.Parse(cred.URL); err != nil {
		return fmt.Errorf("arcgis: invalid url: %w", err)
	}
	return nil
}

// FetchPage queries one page of features. The cursor is the result offset.
func (s *Source) FetchPage(ctx context.Context, cred config.Credential, cursor string) (provider.Page, error) {
	offset := 0
	if cursor != "" {
		o, err := strconv.Atoi(cursor)
		if err != nil || o < 0 {
			return provider.Page{}, fmt.Errorf("arcgis: malformed cursor %q", cursor)
		}
		offset = o
	}
	pageSize := cred.PageSize
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}

	params := url.Values{
		"where":             {"1=1"},
		"outFields":         {"*"},
		"returnGeometry":    {"true"},
		"outSR":             {"4326"},
		"f":                 {"json"},
		"resultOffset":      {strconv.Itoa(offset)},
		"resultRecordCount": {strconv.Itoa(pageSize)},
	}
	if cred.APIKey != "" {
		params.Set("token", cred.APIKey)
	}

	var resp queryResponse
	endpoint := strings.TrimRight(cred.URL, "/") + "/query"
	if err := s.client.GetJSON(ctx, endpoint, params, rest.Auth{}, &resp); err != nil {
		return provider.Page{}, fmt.Errorf("arcgis query offset %d: %w", offset, err)
	}
	if resp.Error != nil {
		return provider.Page{}, fmt.Errorf("arcgis query offset %d: error %d: %s", offset, resp.Error.Code, resp.Error.Message)
	}

	page := provider.Page{Records: make([]provider.Raw, 0, len(resp.Features))}
	for _, f := range resp.Features {
		if f == nil {
			continue
		}
		page.Records = append(page.Records, f)
	}
	if resp.ExceededTransferLimit && len(resp.Features) > 0 {
		page.Next = strconv.Itoa(offset + len(resp.Features))
	}
	return page, nil
}
