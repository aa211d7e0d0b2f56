package cbis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/eventhub/event-importer/internal/config"
	"github.com/eventhub/event-importer/internal/provider"
)

const (
	defaultPageSize = 200
	languageID      = 1
	templateID      = 0
)

// segment is one ListAll query for a credential: the event category or one
// of the configured location categories.
type segment struct {
	category   string
	categoryID int
	arena      bool
	asEvent    bool
}

// Source adapts the CBIS client to provider.Source.
type Source struct {
	client *Client
	logger *slog.Logger
	now    func() time.Time
}

// NewSource creates the CBIS source.
func NewSource(client *Client, logger *slog.Logger) *Source {
	if logger == nil {
		logger = slog.Default()
	}
	return &Source{client: client, logger: logger, now: time.Now}
}

// Name returns the provider display name.
func (s *Source) Name() string { return "CBIS" }

// Validate checks that a credential entry has everything ListAll needs.
func (s *Source) Validate(cred config.Credential) error {
	if strings.TrimSpace(cred.APIKey) == "" {
		return errors.New("cbis: api_key is required")
	}
	if cred.GeoNodeID == 0 {
		return errors.New("cbis: geonode_id is required")
	}
	if len(segments(cred)) == 0 {
		return errors.New("cbis: neither event_category_id nor location_categories configured")
	}
	return nil
}

func segments(cred config.Credential) []segment {
	var out []segment
	if cred.EventCategoryID > 0 {
		out = append(out, segment{category: "event", categoryID: cred.EventCategoryID, asEvent: true})
	}
	for _, lc := range cred.LocationCategories {
		if lc.ID <= 0 {
			continue
		}
		out = append(out, segment{category: lc.Name, categoryID: lc.ID, arena: lc.Arena})
	}
	return out
}

// FetchPage fetches one page of one segment. The cursor is
// "<segment index>:<item offset>"; "" starts at the first segment.
func (s *Source) FetchPage(ctx context.Context, cred config.Credential, cursor string) (provider.Page, error) {
	segs := segments(cred)
	idx, offset, err := parseCursor(cursor)
	if err != nil {
		return provider.Page{}, err
	}
	if idx >= len(segs) {
		return provider.Page{}, nil
	}
	seg := segs[idx]

	pageSize := cred.PageSize
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	endpoint := cred.URL
	if endpoint == "" {
		endpoint = DefaultURL
	}

	now := s.now()
	req := ListAllRequest{
		APIKey:       cred.APIKey,
		LanguageID:   languageID,
		CategoryID:   seg.categoryID,
		TemplateID:   templateID,
		PageOffset:   offset,
		ItemsPerPage: pageSize,
		Filter:       s.filter(cred, seg, now),
	}

	products, total, err := s.client.ListAll(ctx, endpoint, req)
	if err != nil {
		return provider.Page{}, fmt.Errorf("cbis %s offset %d: %w", seg.category, offset, err)
	}

	page := provider.Page{Records: make([]provider.Raw, 0, len(products))}
	for i := range products {
		p := &products[i]
		if expired(p.ExpirationDate, now) {
			s.logger.Debug("skipping expired product", "id", p.ID, "expires", p.ExpirationDate)
			continue
		}
		p.category = seg.category
		p.asEvent = seg.asEvent
		p.logger = s.logger
		page.Records = append(page.Records, p)
	}

	next := offset + len(products)
	switch {
	case len(products) > 0 && (next < total || (total == 0 && len(products) == pageSize)):
		page.Next = formatCursor(idx, next)
	case idx+1 < len(segs):
		page.Next = formatCursor(idx+1, 0)
	}
	return page, nil
}

func (s *Source) filter(cred config.Credential, seg segment, now time.Time) Filter {
	f := Filter{
		GeoNodeIDs:  []int{cred.GeoNodeID},
		OrderBy:     "Date",
		SortOrder:   "Descending",
		ProductType: "Product",
	}
	switch {
	case seg.asEvent:
		f.StartDate = now.Format("2006-01-02")
		f.WithOccasionsOnly = true
		f.ExcludeProductsWithoutOccasions = true
	case seg.arena:
		f.ProductType = "Arena"
		f.StartDate = now.Format("2006-01-02")
	}
	return f
}

// expired reports whether a product's expiration date lies before now.
// Products without a parseable date never expire.
func expired(date string, now time.Time) bool {
	date = strings.TrimSpace(date)
	if len(date) < 10 {
		return false
	}
	t, err := time.Parse("2006-01-02", date[:10])
	if err != nil || t.Year() <= 1 {
		return false
	}
	return t.Before(now.Truncate(24 * time.Hour))
}

func parseCursor(cursor string) (int, int, error) {
	if cursor == "" {
		return 0, 0, nil
	}
	seg, off, ok := strings.Cut(cursor, ":")
	if !ok {
		return 0, 0, fmt.Errorf("cbis: malformed cursor %q", cursor)
	}
	idx, err := strconv.Atoi(seg)
	if err != nil {
		return 0, 0, fmt.Errorf("cbis: malformed cursor %q: %w", cursor, err)
	}
	offset, err := strconv.Atoi(off)
	if err != nil {
		return 0, 0, fmt.Errorf("cbis: malformed cursor %q: %w", cursor, err)
	}
	return idx, offset, nil
}

func formatCursor(idx, offset int) string {
	return strconv.Itoa(idx) + ":" + strconv.Itoa(offset)
}
