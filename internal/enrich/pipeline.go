package enrich

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/calens/calens/internal/cache"
	"github.com/calens/calens/internal/config"
	"github.com/calens/calens/internal/logging"
	"github.com/calens/calens/internal/model"
	"github.com/calens/calens/internal/openai"
	"github.com/calens/calens/internal/places"
)

// Cache namespaces, one per enrichment kind plus the geocoder's own.
const (
	NamespaceLocations       = "locations"
	NamespaceClassifications = "classifications"
	NamespacePlaces          = "places"
)

// Namespaces lists every cache namespace the pipeline touches, for
// callers opening the store.
var Namespaces = []string{NamespaceLocations, NamespaceClassifications, NamespacePlaces}

// ErrMissingCredential is returned before any call is attempted when
// the resolver credential is absent. The caller decides whether that
// skips the enrichment kind or aborts the run.
var ErrMissingCredential = errors.New("enrich: resolver credential not configured")

// Pipeline owns one run's enrichment and classification passes. The
// cache store is loaded before the run and flushed once at the end;
// batch workers report results back to a single merging goroutine, so
// the store never sees interleaved writers mid-batch.
type Pipeline struct {
	cfg    config.ResolvedPipeline
	store  *cache.Store
	client *openai.Client
	geo    *places.Resolver

	// Test seams. When nil, calls go to the real clients above.
	generateFn TextGenerator
	resolveFn  func(ctx context.Context, location string) *model.LocationEnrichment
	sleepFn    func(time.Duration)
}

// New creates a pipeline. geo may be nil (geocoding disabled).
func New(cfg config.ResolvedPipeline, store *cache.Store, geo *places.Resolver) *Pipeline {
	p := &Pipeline{
		cfg:   cfg,
		store: store,
		geo:   geo,
	}
	if cfg.OpenAIKey != "" {
		p.client = openai.NewClient(cfg.OpenAIKey, cfg.Timeout)
	}
	return p
}

// Client exposes the resolver client (for usage reporting); nil when
// no credential is configured.
func (p *Pipeline) Client() *openai.Client { return p.client }

// Output is the merged result of one pipeline run.
type Output struct {
	Enrichment      map[string]*model.LocationEnrichment
	Classifications map[string]*model.Classification

	// Per-kind failures; partial results for the failed kind are still
	// populated from the batches that succeeded.
	LocationErr error
	ClassifyErr error
}

// Run executes location enrichment and classification concurrently,
// then flushes the cache once. The two passes share no mutable state;
// each merges its own results before Run returns.
func (p *Pipeline) Run(ctx context.Context, events []model.Event) (*Output, error) {
	out := &Output{}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		out.Enrichment, out.LocationErr = p.EnrichLocations(ctx, events)
	}()
	go func() {
		defer wg.Done()
		out.Classifications, out.ClassifyErr = p.ClassifyEvents(ctx, events)
	}()
	wg.Wait()

	if err := p.store.Flush(); err != nil {
		logging.Error("cache flush failed", err)
	}

	return out, errors.Join(out.LocationErr, out.ClassifyErr)
}

// newScheduler builds a batch scheduler bound to one model.
func (p *Pipeline) newScheduler(model string) *Scheduler {
	s := &Scheduler{
		BatchSize:      p.cfg.BatchSize,
		MaxConcurrency: p.cfg.MaxConcurrency,
		Sleep:          p.sleepFn,
	}
	if p.generateFn != nil {
		s.Generate = p.generateFn
		return s
	}
	client := p.client
	s.Generate = func(ctx context.Context, prompt string) (string, error) {
		return client.GenerateText(ctx, model, prompt)
	}
	return s
}

// resolvePlace resolves a location string through the geocoder with its
// own cache namespace in front. Misses are not cached (a later run may
// succeed).
func (p *Pipeline) resolvePlace(ctx context.Context, location string) *model.LocationEnrichment {
	var cached model.LocationEnrichment
	if p.store.Get(NamespacePlaces, location, &cached) {
		return &cached
	}

	var resolved *model.LocationEnrichment
	if p.resolveFn != nil {
		resolved = p.resolveFn(ctx, location)
	} else if p.geo != nil {
		resolved = p.geo.Resolve(ctx, location)
	}
	if resolved == nil {
		return nil
	}

	rec := *resolved
	rec.EventID = ""
	if err := p.store.Put(NamespacePlaces, location, rec); err != nil {
		logging.Error("cache place record failed", err, "location", location)
	}
	return resolved
}

// geoEnabled reports whether the geocoder bypass is available.
func (p *Pipeline) geoEnabled() bool {
	return p.geo != nil || p.resolveFn != nil
}

// locationRecord converts an enrichment to cache merge fields. Nil
// coordinates are omitted so they never clear a cached value.
func locationRecord(e model.LocationEnrichment) map[string]any {
	rec := map[string]any{
		"venue_name":   e.VenueName,
		"neighborhood": e.Neighborhood,
		"city":         e.City,
		"cuisine":      e.Cuisine,
	}
	if e.Latitude != nil {
		rec["latitude"] = *e.Latitude
	}
	if e.Longitude != nil {
		rec["longitude"] = *e.Longitude
	}
	return rec
}

// cloneEnrichment copies a resolved record onto one event of the group.
func cloneEnrichment(src model.LocationEnrichment, eventID string) *model.LocationEnrichment {
	c := src
	c.EventID = eventID
	return &c
}
