// Package enrich is the enrichment/classification orchestration
// pipeline: it deduplicates events by a derived key, resolves cache
// hits, dispatches the remaining unique keys to the LLM resolver in
// concurrency-bounded batches, and propagates each resolved result to
// every event sharing its key.
package enrich

import (
	"strings"

	"github.com/calens/calens/internal/model"
)

// Kind selects which event field the dedup key is derived from.
type Kind int

const (
	// KindLocation keys events by their trimmed raw location string.
	KindLocation Kind = iota
	// KindClassification keys events by their lower-cased trimmed summary.
	KindClassification
)

// KeyFor derives the dedup key for an event, or "" when the source
// field is empty and the event is excluded from this enrichment kind.
func KeyFor(kind Kind, e model.Event) string {
	switch kind {
	case KindLocation:
		return strings.TrimSpace(e.LocationRaw)
	case KindClassification:
		return strings.ToLower(strings.TrimSpace(e.Summary))
	default:
		return ""
	}
}

// Group collects the events sharing one dedup key. Representative is
// the first event seen with the key; it stands in for the whole group
// in the resolver prompt.
type Group struct {
	Key            string
	EventIDs       []string
	Representative model.Event
}

// Dedup is the result of grouping a run's events by dedup key.
type Dedup struct {
	Groups map[string]*Group
	Order  []string          // keys in first-seen order
	ByID   map[string]string // event id to key
}

// Deduplicate groups events by their derived key. Events whose source
// field is empty are skipped entirely.
func Deduplicate(events []model.Event, kind Kind) *Dedup {
	d := &Dedup{
		Groups: make(map[string]*Group),
		ByID:   make(map[string]string),
	}
	for _, e := range events {
		key := KeyFor(kind, e)
		if key == "" {
			continue
		}
		g, ok := d.Groups[key]
		if !ok {
			g = &Group{Key: key, Representative: e}
			d.Groups[key] = g
			d.Order = append(d.Order, key)
		}
		g.EventIDs = append(g.EventIDs, e.ID)
		d.ByID[e.ID] = key
	}
	return d
}
