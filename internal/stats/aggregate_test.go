package stats

import (
	"testing"
	"time"

	"github.com/calens/calens/internal/model"
)

func social(names ...string) *model.Classification {
	return &model.Classification{Type: model.TypeSocial, Names: names}
}

func TestAggregateInferredFriendsMergesNameCase(t *testing.T) {
	jan := time.Date(2025, time.January, 10, 19, 0, 0, 0, time.UTC)
	events := []model.Event{
		event("e1", "Dinner w/ Masha", jan, 120),
		event("e2", "masha bday", jan.AddDate(0, 1, 0), 180),
		event("e3", "Solo run", jan, 30),
	}
	classifications := map[string]*model.Classification{
		"e1": social("Masha"),
		"e2": social("masha "),
		"e3": {Type: model.TypeActivity, Category: "fitness"},
	}
	enrichment := map[string]*model.LocationEnrichment{
		"e1": {VenueName: "Balthazar", Neighborhood: "SoHo"},
	}

	friends := AggregateInferredFriends(events, classifications, enrichment)
	if len(friends) != 1 {
		t.Fatalf("expected one merged friend, got %+v", friends)
	}
	f := friends[0]
	if f.Name != "Masha" || f.NormalizedName != "masha" {
		t.Errorf("first spelling must win: %+v", f)
	}
	if f.EventCount != 2 || f.TotalHours != 5.0 {
		t.Errorf("got %d events %.1fh", f.EventCount, f.TotalHours)
	}
	if f.Events[0].VenueName != "Balthazar" {
		t.Errorf("enrichment not applied: %+v", f.Events[0])
	}
}

func TestAggregateInferredFriendsSortsByCountThenHours(t *testing.T) {
	jan := time.Date(2025, time.January, 10, 19, 0, 0, 0, time.UTC)
	events := []model.Event{
		event("e1", "a", jan, 60),
		event("e2", "b", jan, 60),
		event("e3", "c", jan, 600),
	}
	classifications := map[string]*model.Classification{
		"e1": social("Alex"),
		"e2": social("Alex"),
		"e3": social("Sam"),
	}

	friends := AggregateInferredFriends(events, classifications, nil)
	if len(friends) != 2 || friends[0].Name != "Alex" {
		t.Errorf("event count must outrank hours: %+v", friends)
	}
}

func TestAggregateActivityStatsVenuePrecedence(t *testing.T) {
	jan := time.Date(2025, time.January, 8, 7, 0, 0, 0, time.UTC)
	events := []model.Event{
		event("e1", "Yoga @ Vital", jan, 60),
		event("e2", "Yoga", jan.AddDate(0, 0, 7), 60),
	}
	classifications := map[string]*model.Classification{
		"e1": {Type: model.TypeActivity, Category: "fitness", ActivityType: "yoga", Venue: "Vital"},
		"e2": {Type: model.TypeActivity, Category: "fitness", ActivityType: "yoga"},
	}
	enrichment := map[string]*model.LocationEnrichment{
		"e1": {VenueName: "Vital Climbing Gym", Neighborhood: "Williamsburg"},
		"e2": {VenueName: "CorePower", Neighborhood: "SoHo"},
	}

	byCategory := AggregateActivityStats(events, classifications, enrichment)
	fitness := byCategory["fitness"]
	if fitness == nil {
		t.Fatal("missing fitness category")
	}
	if fitness.EventCount != 2 || fitness.TotalHours != 2.0 {
		t.Errorf("fitness totals: %+v", fitness)
	}

	// e1's classifier venue wins over the enrichment venue; e2 falls
	// back to enrichment.
	if fitness.Events[0].VenueName != "Vital" {
		t.Errorf("classifier venue must win, got %q", fitness.Events[0].VenueName)
	}
	if fitness.Events[1].VenueName != "CorePower" {
		t.Errorf("enrichment fallback, got %q", fitness.Events[1].VenueName)
	}
	if fitness.Events[0].Neighborhood != "Williamsburg" {
		t.Errorf("neighborhood comes from enrichment, got %q", fitness.Events[0].Neighborhood)
	}

	if len(fitness.TopActivities) != 1 || fitness.TopActivities[0].Name != "yoga" || fitness.TopActivities[0].Count != 2 {
		t.Errorf("TopActivities = %+v", fitness.TopActivities)
	}
}

func TestAggregateActivityStatsDefaultsAndOtherDiscarded(t *testing.T) {
	jan := time.Date(2025, time.January, 8, 7, 0, 0, 0, time.UTC)
	events := []model.Event{
		event("e1", "Something", jan, 60),
		event("e2", "Dentist", jan, 60),
	}
	classifications := map[string]*model.Classification{
		"e1": {Type: model.TypeActivity},
		"e2": {Type: model.TypeOther},
	}

	byCategory := AggregateActivityStats(events, classifications, nil)
	if len(byCategory) != 1 {
		t.Fatalf("OTHER must be discarded, got %+v", byCategory)
	}
	other := byCategory["other"]
	if other == nil || other.Events[0].ActivityType != "unknown" {
		t.Errorf("missing category/type defaults: %+v", other)
	}
}

func TestSuggestMerges(t *testing.T) {
	inferred := []model.InferredFriend{
		{Name: "Dan", NormalizedName: "dan"},
		{Name: "Masha", NormalizedName: "masha"},
		{Name: "Zoe", NormalizedName: "zoe"},
	}
	friends := []model.FriendStats{
		{Email: "daniel.smith@example.com", DisplayName: "Daniel Smith"},
		{Email: "masha@example.com"},
	}

	suggestions := SuggestMerges(inferred, friends)
	if len(suggestions) != 2 {
		t.Fatalf("expected 2 suggestions, got %+v", suggestions)
	}

	// "dan" is a substring of "daniel.smith" and the display name
	// contains it, so confidence is high.
	if suggestions[0].SuggestedEmail != "daniel.smith@example.com" || suggestions[0].Confidence != "high" {
		t.Errorf("dan: %+v", suggestions[0])
	}
	// masha matches the local part but there is no display name.
	if suggestions[1].SuggestedEmail != "masha@example.com" || suggestions[1].Confidence != "medium" {
		t.Errorf("masha: %+v", suggestions[1])
	}
}

func TestApplyEnrichments(t *testing.T) {
	friends := []model.FriendStats{
		{Email: "a@example.com", Events: []model.FriendEvent{{ID: "e1"}, {ID: "e2"}}},
	}
	enrichment := map[string]*model.LocationEnrichment{
		"e1": {VenueName: "Lucali", Neighborhood: "Carroll Gardens", Cuisine: "Pizza"},
	}

	ApplyEnrichments(friends, enrichment)
	if friends[0].Events[0].VenueName != "Lucali" || friends[0].Events[0].Cuisine != "Pizza" {
		t.Errorf("enrichment not applied: %+v", friends[0].Events[0])
	}
	if friends[0].Events[1].VenueName != "" {
		t.Errorf("unenriched event must stay empty: %+v", friends[0].Events[1])
	}
}
