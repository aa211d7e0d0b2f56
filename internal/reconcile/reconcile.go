// Package reconcile decides whether a normalized record creates a new
// entity or reuses an existing one.
//
// Matching is two-phase: an exact external uid lookup, then a fuzzy title
// comparison against a per-run candidate pool. The pool for a kind is loaded
// lazily on first use and never reloaded during the run; entities created
// by the run are appended with Remember so later records in the same batch
// match their siblings.
//
// An Engine belongs to one run and is not safe for concurrent use.
package reconcile

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/agnivade/levenshtein"

	"github.com/eventhub/event-importer/internal/provider"
)

// DefaultThreshold is the normalized edit distance below which two titles
// are considered the same entity.
const DefaultThreshold = 0.2

// Action is the reconciliation outcome.
type Action string

const (
	ActionCreate Action = "CREATE"
	ActionReuse  Action = "REUSE"
)

// Candidate is a lightweight projection of a stored entity. As a Resolve
// argument only Title and UID are read.
type Candidate struct {
	ID    int64
	Title string
	UID   string
}

// Resolution is the result of Resolve. ID is set for REUSE.
type Resolution struct {
	Action    Action
	ID        int64
	MatchedBy string // "uid" or "title"
	Distance  float64
}

// Lookup is the read side of the persistence collaborator.
type Lookup interface {
	FindByUID(ctx context.Context, kind provider.Kind, uid string) (int64, bool, error)
	ListCandidates(ctx context.Context, kind provider.Kind) ([]Candidate, error)
}

// Engine resolves records of all kinds for one run.
type Engine struct {
	lookup    Lookup
	threshold float64
	pools     map[provider.Kind][]Candidate
}

// NewEngine creates an engine with an empty candidate cache. A threshold
// <= 0 falls back to DefaultThreshold.
func NewEngine(lookup Lookup, threshold float64) *Engine {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return &Engine{
		lookup:    lookup,
		threshold: threshold,
		pools:     make(map[provider.Kind][]Candidate),
	}
}

// Resolve returns REUSE with the matched id, or CREATE.
func (e *Engine) Resolve(ctx context.Context, kind provider.Kind, c Candidate) (Resolution, error) {
	if uid := strings.TrimSpace(c.UID); uid != "" {
		pool, err := e.pool(ctx, kind)
		if err != nil {
			return Resolution{}, err
		}
		for _, p := range pool {
			if p.UID == uid {
				return Resolution{Action: ActionReuse, ID: p.ID, MatchedBy: "uid"}, nil
			}
		}
		id, ok, err := e.lookup.FindByUID(ctx, kind, uid)
		if err != nil {
			return Resolution{}, fmt.Errorf("find %s by uid: %w", kind, err)
		}
		if ok {
			return Resolution{Action: ActionReuse, ID: id, MatchedBy: "uid"}, nil
		}
	}

	title := normalizeTitle(c.Title)
	if title == "" {
		return Resolution{Action: ActionCreate}, nil
	}
	pool, err := e.pool(ctx, kind)
	if err != nil {
		return Resolution{}, err
	}

	best := -1
	bestDist := 0.0
	for i, p := range pool {
		d := distance(title, normalizeTitle(p.Title))
		// Strictly less keeps the first candidate on ties.
		if best < 0 || d < bestDist {
			best, bestDist = i, d
		}
	}
	if best >= 0 && bestDist < e.threshold {
		return Resolution{Action: ActionReuse, ID: pool[best].ID, MatchedBy: "title", Distance: bestDist}, nil
	}
	return Resolution{Action: ActionCreate}, nil
}

// Remember appends an entity created during the run to the kind's pool.
func (e *Engine) Remember(kind provider.Kind, id int64, title, uid string) {
	e.pools[kind] = append(e.pools[kind], Candidate{ID: id, Title: title, UID: strings.TrimSpace(uid)})
}

// pool returns the cached candidates for kind, loading them on first use.
func (e *Engine) pool(ctx context.Context, kind provider.Kind) ([]Candidate, error) {
	if p, ok := e.pools[kind]; ok {
		return p, nil
	}
	p, err := e.lookup.ListCandidates(ctx, kind)
	if err != nil {
		return nil, fmt.Errorf("load %s candidates: %w", kind, err)
	}
	if p == nil {
		p = []Candidate{}
	}
	e.pools[kind] = p
	return p, nil
}

// Distance is the edit distance between two titles divided by the rune
// length of the longer one, after case folding and trimming. It is 0 for
// identical titles and 1 for completely different ones.
func Distance(a, b string) float64 {
	return distance(normalizeTitle(a), normalizeTitle(b))
}

func distance(a, b string) float64 {
	la, lb := utf8.RuneCountInString(a), utf8.RuneCountInString(b)
	longest := max(la, lb)
	if longest == 0 {
		return 0
	}
	return float64(levenshtein.ComputeDistance(a, b)) / float64(longest)
}

func normalizeTitle(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}
