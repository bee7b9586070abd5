package enrich

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/calens/calens/internal/logging"
	"github.com/calens/calens/internal/model"
	"github.com/calens/calens/internal/places"
)

// Keys containing these are treated as non-physical locations and
// skipped by the coordinate backfill pass.
var meetingLinkKeywords = []string{"zoom", "google meet", "meet link", "see attached"}

// EnrichLocations resolves venue/location metadata for every event with
// a non-empty location. Cache hits are satisfied without any external
// call; opaque map links go through the geocoder bypass; the remaining
// unique keys are batched to the LLM resolver. A best-effort geocoding
// pass then backfills coordinates for string-form keys.
//
// When a batch fails, results merged from sibling batches are kept and
// the failure is returned alongside them.
func (p *Pipeline) EnrichLocations(ctx context.Context, events []model.Event) (map[string]*model.LocationEnrichment, error) {
	if p.cfg.OpenAIKey == "" && p.generateFn == nil {
		return nil, ErrMissingCredential
	}

	dedup := Deduplicate(events, KindLocation)
	lookup := make(map[string]*model.LocationEnrichment)

	var items []PromptItem
	var geocodeTargets []string
	targeted := make(map[string]bool)
	addTarget := func(key string) {
		if !targeted[key] {
			targeted[key] = true
			geocodeTargets = append(geocodeTargets, key)
		}
	}

	for _, key := range dedup.Order {
		g := dedup.Groups[key]

		var cached model.LocationEnrichment
		if p.store.Get(NamespaceLocations, key, &cached) {
			for _, id := range g.EventIDs {
				lookup[id] = cloneEnrichment(cached, id)
			}
			if p.geoEnabled() && (cached.Latitude == nil || cached.Longitude == nil) {
				addTarget(key)
			}
			continue
		}

		// Opaque map links resolve directly, skipping the LLM entirely.
		if p.geoEnabled() && places.LooksLikeMapsURL(key) {
			if resolved := p.resolvePlace(ctx, key); resolved != nil {
				p.mergeLocation(key, *resolved, true)
				for _, id := range g.EventIDs {
					lookup[id] = cloneEnrichment(*resolved, id)
				}
				continue
			}
		}

		if p.geoEnabled() {
			addTarget(key)
		}

		items = append(items, PromptItem{
			EventID:  g.Representative.ID,
			Summary:  shortenText(g.Representative.Summary),
			Location: shortenLocation(key),
		})
	}

	if len(items) == 0 && len(geocodeTargets) == 0 {
		return lookup, nil
	}

	var runErr error
	if len(items) > 0 {
		results, err := p.newScheduler(p.cfg.LocationModel).Run(ctx, items, locationPrompt)
		runErr = err

		for _, raw := range results {
			var e model.LocationEnrichment
			if err := json.Unmarshal(raw, &e); err != nil || e.EventID == "" {
				continue
			}
			key, ok := dedup.ByID[e.EventID]
			if !ok {
				continue
			}
			p.mergeLocation(key, e, false)
			for _, id := range dedup.Groups[key].EventIDs {
				lookup[id] = cloneEnrichment(e, id)
			}
		}
	}

	// Backfill coordinates for address-like strings. This pass only
	// adds to what the LLM resolved; the geocoder wins coordinates,
	// the LLM keeps venue/neighborhood/cuisine.
	for _, key := range geocodeTargets {
		var cached model.LocationEnrichment
		if p.store.Get(NamespaceLocations, key, &cached) && cached.Latitude != nil && cached.Longitude != nil {
			continue
		}
		low := strings.ToLower(key)
		if strings.HasPrefix(low, "http://") || strings.HasPrefix(low, "https://") {
			continue
		}
		if containsAny(low, meetingLinkKeywords) {
			continue
		}

		resolved := p.resolvePlace(ctx, key)
		if resolved == nil {
			continue
		}
		p.mergeLocation(key, *resolved, true)

		for _, id := range dedup.Groups[key].EventIDs {
			if enr, ok := lookup[id]; ok {
				if enr.Latitude == nil {
					enr.Latitude = resolved.Latitude
					enr.Longitude = resolved.Longitude
				}
				if enr.Neighborhood == "" {
					enr.Neighborhood = resolved.Neighborhood
				}
				if enr.City == "" {
					enr.City = resolved.City
				}
				if enr.Cuisine == "" {
					enr.Cuisine = resolved.Cuisine
				}
				continue
			}
			lookup[id] = cloneEnrichment(*resolved, id)
		}
	}

	return lookup, runErr
}

// mergeLocation writes one resolved record into the locations
// namespace. refreshCoords marks the source as authoritative for
// coordinates (the geocoder); text fields never regress either way.
func (p *Pipeline) mergeLocation(key string, e model.LocationEnrichment, refreshCoords bool) {
	var refresh []string
	if refreshCoords {
		refresh = []string{"latitude", "longitude"}
	}
	if err := p.store.Merge(NamespaceLocations, key, locationRecord(e), refresh...); err != nil {
		logging.Error("cache merge failed", err, "key", key)
	}
}

func containsAny(s string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(s, kw) {
			return true
		}
	}
	return false
}
