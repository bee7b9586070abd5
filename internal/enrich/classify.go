package enrich

import (
	"context"
	"encoding/json"

	"github.com/calens/calens/internal/model"
)

// ClassifyEvents classifies every event with a non-empty summary into
// SOCIAL, ACTIVITY, or OTHER. One representative per unique summary key
// goes to the resolver; the result is cached by key and propagated to
// every event sharing it.
func (p *Pipeline) ClassifyEvents(ctx context.Context, events []model.Event) (map[string]*model.Classification, error) {
	if p.cfg.OpenAIKey == "" && p.generateFn == nil {
		return nil, ErrMissingCredential
	}

	dedup := Deduplicate(events, KindClassification)
	byID := make(map[string]*model.Classification)

	var items []PromptItem
	for _, key := range dedup.Order {
		g := dedup.Groups[key]

		var cached model.Classification
		if p.store.Get(NamespaceClassifications, key, &cached) {
			propagateClassification(byID, g, cached)
			continue
		}

		item := PromptItem{
			EventID: g.Representative.ID,
			Summary: shortenText(g.Representative.Summary),
		}
		if hint := shortenLocation(g.Representative.LocationRaw); hint != "" {
			item.LocationHint = hint
		}
		items = append(items, item)
	}

	if len(items) == 0 {
		return byID, nil
	}

	results, err := p.newScheduler(p.cfg.ClassificationModel).Run(ctx, items, classificationPrompt)

	for _, raw := range results {
		var c model.Classification
		if err := json.Unmarshal(raw, &c); err != nil || c.EventID == "" || c.Type == "" {
			continue
		}
		key, ok := dedup.ByID[c.EventID]
		if !ok {
			continue
		}

		stored := c
		stored.EventID = ""
		_ = p.store.Put(NamespaceClassifications, key, stored)

		propagateClassification(byID, dedup.Groups[key], stored)
	}

	return byID, err
}

func propagateClassification(byID map[string]*model.Classification, g *Group, c model.Classification) {
	for _, id := range g.EventIDs {
		copied := c
		copied.EventID = id
		byID[id] = &copied
	}
}
