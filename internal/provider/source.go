package provider

import (
	"context"
	"errors"
	"time"

	"github.com/eventhub/event-importer/internal/config"
)

// ErrRejected marks a raw record that cannot be imported (e.g. no title
// candidate). The orchestrator counts it as a skipped record.
var ErrRejected = errors.New("record rejected")

// NormalizeContext carries the provider-level defaults a raw record is
// normalized against.
type NormalizeContext struct {
	Provider          string // display name, e.g. "CBIS"
	Category          string // provider category, e.g. "arena"
	DefaultCity       string
	PostStatus        string
	Groups            []int
	ExcludeCategories []string
	Now               time.Time
}

// Meta builds the provenance block for an entity normalized in this context.
func (nc NormalizeContext) Meta(uid string) Meta {
	status := nc.PostStatus
	if status == "" {
		status = "publish"
	}
	return Meta{
		ExternalUID:  CleanString(uid),
		ImportClient: ImportClient(nc.Provider, nc.Category),
		Status:       status,
		Groups:       nc.Groups,
	}
}

// Raw is one provider record as fetched, before normalization.
type Raw interface {
	Normalize(nc NormalizeContext) (Bundle, error)
}

// Page is one fetched page of raw records. Next is the continuation cursor
// for the following page; "" means the credential entry is exhausted.
type Page struct {
	Records []Raw
	Next    string
}

// Source is a provider adapter. FetchPage is called strictly in order for
// one credential entry, feeding Next back in as cursor.
type Source interface {
	Name() string
	Validate(cred config.Credential) error
	FetchPage(ctx context.Context, cred config.Credential, cursor string) (Page, error)
}
