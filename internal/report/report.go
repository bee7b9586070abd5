// Package report assembles the year report: aggregated stats plus the
// narrative, pattern, and experiment passes. LLM output is cached per
// year so regenerating a report is free until the cache is cleared.
package report

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/calens/calens/internal/cache"
	"github.com/calens/calens/internal/config"
	"github.com/calens/calens/internal/logging"
	"github.com/calens/calens/internal/model"
	"github.com/calens/calens/internal/openai"
)

// Cache namespaces, keyed by year.
const (
	NamespaceNarrative   = "narrative"
	NamespaceInsights    = "insights"
	NamespaceExperiments = "experiments"
)

// Namespaces lists the report cache namespaces for callers opening the
// store.
var Namespaces = []string{NamespaceNarrative, NamespaceInsights, NamespaceExperiments}

// Stats bundles the aggregations a report is generated from.
type Stats struct {
	Year            int
	TimeStats       *model.TimeStats
	Friends         []model.FriendStats
	InferredFriends []model.InferredFriend
	Activities      map[string]*model.ActivityCategoryStats
	Locations       *model.LocationStats
	Merges          []model.MergeSuggestion
}

// Generator produces the narrative sections of a report.
type Generator struct {
	cfg    config.ResolvedPipeline
	store  *cache.Store
	client *openai.Client

	// Test seam. When nil, calls go through the real client.
	generateFn func(ctx context.Context, model, prompt string) (string, error)
}

// NewGenerator creates a Generator. With no API key configured the
// narrative sections are skipped.
func NewGenerator(cfg config.ResolvedPipeline, store *cache.Store) *Generator {
	g := &Generator{cfg: cfg, store: store}
	if cfg.OpenAIKey != "" {
		g.client = openai.NewClient(cfg.OpenAIKey, cfg.Timeout)
	}
	return g
}

// Assemble builds the full report from stats and, when a resolver is
// available, the narrative sections. Narrative failures never fail the
// report; those sections are left empty.
func (g *Generator) Assemble(ctx context.Context, stats *Stats) *model.Report {
	report := &model.Report{
		ID:          uuid.NewString(),
		Year:        stats.Year,
		GeneratedAt: time.Now().UTC(),

		TimeStats:       stats.TimeStats,
		Friends:         stats.Friends,
		InferredFriends: stats.InferredFriends,
		Activities:      stats.Activities,
		Locations:       stats.Locations,
		Merges:          stats.Merges,
	}

	narrative, insights, experiments := g.Narrative(ctx, stats)
	report.Narrative = narrative
	report.Insights = insights
	report.Experiments = experiments
	return report
}

// Narrative generates (or loads from cache) the narrative text,
// insights, and experiment ideas for the year.
func (g *Generator) Narrative(ctx context.Context, stats *Stats) (string, []model.Insight, []model.ExperimentIdea) {
	if g.client == nil && g.generateFn == nil {
		return "", nil, nil
	}

	yearKey := strconv.Itoa(stats.Year)
	contextJSON, err := json.Marshal(buildContext(stats))
	if err != nil {
		logging.Error("stats context marshal failed", err)
		return "", nil, nil
	}

	var narrative string
	if !g.store.Get(NamespaceNarrative, yearKey, &narrative) {
		text := g.generate(ctx, g.cfg.NarrativeModel, narrativePrompt, string(contextJSON))
		if text != "" {
			narrative = strings.TrimSpace(text)
			g.store.Put(NamespaceNarrative, yearKey, narrative)
		}
	}

	var insights []model.Insight
	if !g.store.Get(NamespaceInsights, yearKey, &insights) {
		text := g.generate(ctx, g.cfg.InsightsModel, insightsPrompt, string(contextJSON))
		if items := parseJSONList[model.Insight](text, "patterns"); items != nil {
			insights = items
			g.store.Put(NamespaceInsights, yearKey, insights)
		}
	}

	var experiments []model.ExperimentIdea
	if !g.store.Get(NamespaceExperiments, yearKey, &experiments) {
		text := g.generate(ctx, g.cfg.InsightsModel, experimentsPrompt, string(contextJSON))
		if items := parseJSONList[model.ExperimentIdea](text, "experiments"); items != nil {
			experiments = items
			g.store.Put(NamespaceExperiments, yearKey, experiments)
		}
	}

	return narrative, insights, experiments
}

// generate makes one call and swallows failures; the narrative layer
// is strictly best-effort.
func (g *Generator) generate(ctx context.Context, model, template, contextJSON string) string {
	prompt := strings.Replace(template, "{context_json}", contextJSON, 1)

	var text string
	var err error
	if g.generateFn != nil {
		text, err = g.generateFn(ctx, model, prompt)
	} else {
		text, err = g.client.GenerateText(ctx, model, prompt)
	}
	if err != nil {
		logging.Error("narrative call failed", err, "model", model)
		return ""
	}
	return text
}

// parseJSONList extracts a named list from possibly-fenced JSON output.
// Returns nil when the payload is unusable.
func parseJSONList[T any](text, key string) []T {
	text = stripFence(text)
	if text == "" {
		return nil
	}
	var envelope map[string]json.RawMessage
	if err := json.Unmarshal([]byte(text), &envelope); err != nil {
		return nil
	}
	raw, ok := envelope[key]
	if !ok {
		return nil
	}
	var items []T
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil
	}
	return items
}

func stripFence(text string) string {
	text = strings.TrimSpace(text)
	if i := strings.Index(text, "```json"); i >= 0 {
		text = text[i+len("```json"):]
		if j := strings.Index(text, "```"); j >= 0 {
			text = text[:j]
		}
	} else if i := strings.Index(text, "```"); i >= 0 {
		text = text[i+len("```"):]
		if j := strings.Index(text, "```"); j >= 0 {
			text = text[:j]
		}
	}
	return strings.TrimSpace(text)
}
