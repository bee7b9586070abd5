package enrich

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/calens/calens/internal/cache"
	"github.com/calens/calens/internal/config"
	"github.com/calens/calens/internal/model"
)

func testConfig() config.ResolvedPipeline {
	return config.ResolvedPipeline{
		BatchSize:           30,
		MaxConcurrency:      2,
		Timeout:             5 * time.Second,
		LocationModel:       "test-model",
		ClassificationModel: "test-model",
	}
}

func newTestPipeline(t *testing.T, generate TextGenerator) (*Pipeline, *cache.Store) {
	t.Helper()
	store := cache.Open(t.TempDir(), Namespaces...)
	p := New(testConfig(), store, nil)
	p.generateFn = generate
	p.sleepFn = func(time.Duration) {}
	return p, store
}

// promptEventIDs extracts the event IDs embedded in a batch prompt.
func promptEventIDs(t *testing.T, prompt string) []string {
	t.Helper()
	start := -1
	depth := 0
	for i, r := range prompt {
		if r == '[' {
			if depth == 0 {
				start = i
			}
			depth++
		}
		if r == ']' {
			depth--
			if depth == 0 && start >= 0 {
				var items []PromptItem
				if err := json.Unmarshal([]byte(prompt[start:i+1]), &items); err != nil {
					t.Fatalf("parse prompt payload: %v", err)
				}
				ids := make([]string, 0, len(items))
				for _, item := range items {
					ids = append(ids, item.EventID)
				}
				return ids
			}
		}
	}
	t.Fatal("no payload found in prompt")
	return nil
}

func locationResponse(results ...map[string]any) string {
	payload := map[string]any{"results": results}
	b, _ := json.Marshal(payload)
	return string(b)
}

func TestDeduplicateByLocation(t *testing.T) {
	events := []model.Event{
		{ID: "e1", LocationRaw: "Balthazar, 80 Spring St"},
		{ID: "e2", LocationRaw: "  Balthazar, 80 Spring St  "},
		{ID: "e3", LocationRaw: "Lucali"},
		{ID: "e4"},
	}

	d := Deduplicate(events, KindLocation)
	if len(d.Order) != 2 {
		t.Fatalf("expected 2 groups, got %d", len(d.Order))
	}
	g := d.Groups["Balthazar, 80 Spring St"]
	if g == nil || len(g.EventIDs) != 2 {
		t.Fatalf("expected e1+e2 grouped, got %+v", g)
	}
	if g.Representative.ID != "e1" {
		t.Errorf("representative should be first seen, got %s", g.Representative.ID)
	}
	if _, ok := d.ByID["e4"]; ok {
		t.Error("event without location must be excluded")
	}
}

func TestDeduplicateBySummaryCaseInsensitive(t *testing.T) {
	events := []model.Event{
		{ID: "e1", Summary: "Dinner with Masha"},
		{ID: "e2", Summary: "dinner with masha"},
	}
	d := Deduplicate(events, KindClassification)
	if len(d.Order) != 1 {
		t.Fatalf("expected 1 group, got %d", len(d.Order))
	}
	if d.ByID["e1"] != "dinner with masha" || d.ByID["e2"] != "dinner with masha" {
		t.Errorf("unexpected keys: %+v", d.ByID)
	}
}

func TestEnrichLocationsDedupAndPropagate(t *testing.T) {
	var calls int32
	p, store := newTestPipeline(t, func(ctx context.Context, prompt string) (string, error) {
		atomic.AddInt32(&calls, 1)
		ids := promptEventIDs(t, prompt)
		if len(ids) != 2 {
			t.Errorf("expected one item per unique key, got %v", ids)
		}
		return locationResponse(
			map[string]any{"event_id": "e1", "venue_name": "Balthazar", "neighborhood": "SoHo", "cuisine": "French"},
			map[string]any{"event_id": "e3", "venue_name": "Lucali", "neighborhood": "Carroll Gardens", "cuisine": "Pizza"},
		), nil
	})

	events := []model.Event{
		{ID: "e1", Summary: "Dinner", LocationRaw: "Balthazar, 80 Spring St"},
		{ID: "e2", Summary: "Brunch", LocationRaw: "Balthazar, 80 Spring St"},
		{ID: "e3", Summary: "Pizza night", LocationRaw: "Lucali"},
	}

	lookup, err := p.EnrichLocations(context.Background(), events)
	if err != nil {
		t.Fatalf("EnrichLocations: %v", err)
	}
	if calls != 1 {
		t.Errorf("expected 1 resolver call, got %d", calls)
	}
	for _, id := range []string{"e1", "e2"} {
		e := lookup[id]
		if e == nil || e.VenueName != "Balthazar" {
			t.Errorf("event %s: expected propagated Balthazar, got %+v", id, e)
		}
		if e != nil && e.EventID != id {
			t.Errorf("event %s: EventID not rewritten, got %s", id, e.EventID)
		}
	}
	if e := lookup["e3"]; e == nil || e.VenueName != "Lucali" {
		t.Errorf("e3: expected Lucali, got %+v", e)
	}
	if !store.Has(NamespaceLocations, "Balthazar, 80 Spring St") {
		t.Error("resolved key should be cached")
	}
}

func TestEnrichLocationsCacheHitSkipsResolver(t *testing.T) {
	p, store := newTestPipeline(t, func(ctx context.Context, prompt string) (string, error) {
		t.Error("resolver must not be called on cache hit")
		return "", nil
	})
	if err := store.Put(NamespaceLocations, "Lucali", model.LocationEnrichment{VenueName: "Lucali", Neighborhood: "Carroll Gardens"}); err != nil {
		t.Fatal(err)
	}

	lookup, err := p.EnrichLocations(context.Background(), []model.Event{
		{ID: "e1", LocationRaw: "Lucali"},
	})
	if err != nil {
		t.Fatalf("EnrichLocations: %v", err)
	}
	if e := lookup["e1"]; e == nil || e.Neighborhood != "Carroll Gardens" {
		t.Errorf("expected cached enrichment, got %+v", e)
	}
}

func TestEnrichLocationsSecondRunIdempotent(t *testing.T) {
	var calls int32
	p, _ := newTestPipeline(t, func(ctx context.Context, prompt string) (string, error) {
		atomic.AddInt32(&calls, 1)
		return locationResponse(map[string]any{"event_id": "e1", "venue_name": "Lucali"}), nil
	})

	events := []model.Event{{ID: "e1", LocationRaw: "Lucali"}}
	if _, err := p.EnrichLocations(context.Background(), events); err != nil {
		t.Fatal(err)
	}
	if _, err := p.EnrichLocations(context.Background(), events); err != nil {
		t.Fatal(err)
	}
	if calls != 1 {
		t.Errorf("second run should be served from cache, got %d calls", calls)
	}
}

func TestEnrichLocationsMissingCredential(t *testing.T) {
	store := cache.Open(t.TempDir(), Namespaces...)
	p := New(testConfig(), store, nil) // no key, no seam

	_, err := p.EnrichLocations(context.Background(), []model.Event{{ID: "e1", LocationRaw: "Lucali"}})
	if !errors.Is(err, ErrMissingCredential) {
		t.Fatalf("expected ErrMissingCredential, got %v", err)
	}
}

func TestEnrichLocationsMapsURLBypass(t *testing.T) {
	lat, lng := 40.6779, -73.9981
	var geoCalls int32

	p, store := newTestPipeline(t, func(ctx context.Context, prompt string) (string, error) {
		t.Error("maps links must bypass the llm resolver")
		return "", nil
	})
	p.resolveFn = func(ctx context.Context, location string) *model.LocationEnrichment {
		atomic.AddInt32(&geoCalls, 1)
		return &model.LocationEnrichment{
			VenueName:    "Lucali",
			Neighborhood: "Carroll Gardens",
			Latitude:     &lat,
			Longitude:    &lng,
		}
	}

	url := "https://maps.app.goo.gl/abc123"
	lookup, err := p.EnrichLocations(context.Background(), []model.Event{
		{ID: "e1", LocationRaw: url},
		{ID: "e2", LocationRaw: url},
	})
	if err != nil {
		t.Fatalf("EnrichLocations: %v", err)
	}
	if geoCalls != 1 {
		t.Errorf("expected 1 geocoder call, got %d", geoCalls)
	}
	for _, id := range []string{"e1", "e2"} {
		e := lookup[id]
		if e == nil || e.Latitude == nil || *e.Latitude != lat {
			t.Errorf("event %s: expected geocoded coordinates, got %+v", id, e)
		}
	}
	if !store.Has(NamespacePlaces, url) {
		t.Error("geocoder result should be cached in the places namespace")
	}
}

func TestEnrichLocationsGeocodeBackfill(t *testing.T) {
	lat, lng := 40.7227, -73.9987
	p, store := newTestPipeline(t, func(ctx context.Context, prompt string) (string, error) {
		return locationResponse(map[string]any{
			"event_id": "e1", "venue_name": "Balthazar", "neighborhood": "SoHo", "cuisine": "French",
		}), nil
	})
	p.resolveFn = func(ctx context.Context, location string) *model.LocationEnrichment {
		return &model.LocationEnrichment{Latitude: &lat, Longitude: &lng, Neighborhood: "SoHo (geo)"}
	}

	lookup, err := p.EnrichLocations(context.Background(), []model.Event{
		{ID: "e1", LocationRaw: "80 Spring St, New York"},
	})
	if err != nil {
		t.Fatalf("EnrichLocations: %v", err)
	}

	e := lookup["e1"]
	if e == nil {
		t.Fatal("missing enrichment")
	}
	if e.VenueName != "Balthazar" || e.Neighborhood != "SoHo" {
		t.Errorf("llm text fields must win, got %+v", e)
	}
	if e.Latitude == nil || *e.Latitude != lat {
		t.Errorf("geocoder coordinates must backfill, got %+v", e)
	}

	var cached model.LocationEnrichment
	if !store.Get(NamespaceLocations, "80 Spring St, New York", &cached) {
		t.Fatal("expected cached record")
	}
	if cached.VenueName != "Balthazar" || cached.Latitude == nil {
		t.Errorf("cache should carry merged record, got %+v", cached)
	}
}

func TestEnrichLocationsSkipsMeetingLinksInBackfill(t *testing.T) {
	var geoCalls int32
	p, _ := newTestPipeline(t, func(ctx context.Context, prompt string) (string, error) {
		return locationResponse(), nil
	})
	p.resolveFn = func(ctx context.Context, location string) *model.LocationEnrichment {
		atomic.AddInt32(&geoCalls, 1)
		return nil
	}

	_, err := p.EnrichLocations(context.Background(), []model.Event{
		{ID: "e1", LocationRaw: "Zoom (see attached)"},
		{ID: "e2", LocationRaw: "https://example.com/meet"},
		{ID: "e3", LocationRaw: "Google Meet link in description"},
	})
	if err != nil {
		t.Fatalf("EnrichLocations: %v", err)
	}
	if geoCalls != 0 {
		t.Errorf("meeting links must not be geocoded, got %d calls", geoCalls)
	}
}

func TestClassifyEventsPropagateAndCache(t *testing.T) {
	var calls int32
	p, store := newTestPipeline(t, func(ctx context.Context, prompt string) (string, error) {
		atomic.AddInt32(&calls, 1)
		return `{"results": [{"event_id": "e1", "type": "SOCIAL", "names": ["Masha"]}]}`, nil
	})

	byID, err := p.ClassifyEvents(context.Background(), []model.Event{
		{ID: "e1", Summary: "Dinner with Masha"},
		{ID: "e2", Summary: "dinner with masha"},
	})
	if err != nil {
		t.Fatalf("ClassifyEvents: %v", err)
	}
	if calls != 1 {
		t.Errorf("expected 1 call for the shared summary, got %d", calls)
	}
	for _, id := range []string{"e1", "e2"} {
		c := byID[id]
		if c == nil || c.Type != model.TypeSocial || len(c.Names) != 1 {
			t.Errorf("event %s: bad classification %+v", id, c)
		}
		if c != nil && c.EventID != id {
			t.Errorf("event %s: EventID not rewritten, got %q", id, c.EventID)
		}
	}

	var cached model.Classification
	if !store.Get(NamespaceClassifications, "dinner with masha", &cached) {
		t.Fatal("classification should be cached by summary key")
	}
	if cached.EventID != "" {
		t.Errorf("cached record must not carry an event id, got %q", cached.EventID)
	}
}

func TestClassifyEventsResultsWithoutTypeDropped(t *testing.T) {
	p, _ := newTestPipeline(t, func(ctx context.Context, prompt string) (string, error) {
		return `{"results": [{"event_id": "e1"}, {"event_id": "ghost", "type": "SOCIAL"}]}`, nil
	})

	byID, err := p.ClassifyEvents(context.Background(), []model.Event{
		{ID: "e1", Summary: "Standup"},
	})
	if err != nil {
		t.Fatalf("ClassifyEvents: %v", err)
	}
	if len(byID) != 0 {
		t.Errorf("expected no classifications, got %+v", byID)
	}
}

func TestPipelineRunFlushesCache(t *testing.T) {
	dir := t.TempDir()
	store := cache.Open(dir, Namespaces...)
	p := New(testConfig(), store, nil)
	p.sleepFn = func(time.Duration) {}
	p.generateFn = func(ctx context.Context, prompt string) (string, error) {
		ids := promptEventIDs(t, prompt)
		results := make([]map[string]any, 0, len(ids))
		for _, id := range ids {
			results = append(results, map[string]any{
				"event_id": id, "type": "OTHER", "venue_name": "Somewhere",
			})
		}
		return locationResponse(results...), nil
	}

	_, err := p.Run(context.Background(), []model.Event{
		{ID: "e1", Summary: "Dinner", LocationRaw: "Lucali"},
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	for _, ns := range []string{NamespaceLocations, NamespaceClassifications} {
		path := filepath.Join(dir, fmt.Sprintf("%s_cache.json", ns))
		if _, err := os.Stat(path); err != nil {
			t.Errorf("expected flushed %s: %v", path, err)
		}
	}
}
