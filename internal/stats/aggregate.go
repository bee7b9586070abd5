package stats

import (
	"fmt"
	"sort"
	"strings"

	"github.com/calens/calens/internal/model"
)

// AggregateInferredFriends groups SOCIAL-classified events by each
// extracted name. Names are keyed case-insensitively; the first
// spelling seen becomes the display form. Sorted by (event count,
// total hours) descending.
func AggregateInferredFriends(
	events []model.Event,
	classifications map[string]*model.Classification,
	enrichment map[string]*model.LocationEnrichment,
) []model.InferredFriend {
	type nameAcc struct {
		display    string
		totalHours float64
		events     []model.FriendEvent
	}
	byName := make(map[string]*nameAcc)
	var order []string

	for _, event := range events {
		c := classifications[event.ID]
		if c == nil || c.Type != model.TypeSocial || len(c.Names) == 0 {
			continue
		}

		fe := model.FriendEvent{
			ID:          event.ID,
			Summary:     event.Summary,
			Date:        event.Date(),
			Hours:       event.Hours(),
			LocationRaw: event.LocationRaw,
		}
		if e := enrichment[event.ID]; e != nil {
			fe.VenueName = e.VenueName
			fe.Neighborhood = e.Neighborhood
			fe.Cuisine = e.Cuisine
		}

		for _, name := range c.Names {
			trimmed := strings.TrimSpace(name)
			if trimmed == "" {
				continue
			}
			key := strings.ToLower(trimmed)
			acc, ok := byName[key]
			if !ok {
				acc = &nameAcc{display: trimmed}
				byName[key] = acc
				order = append(order, key)
			}
			acc.totalHours += event.Hours()
			acc.events = append(acc.events, fe)
		}
	}

	friends := make([]model.InferredFriend, 0, len(byName))
	for _, key := range order {
		acc := byName[key]
		friends = append(friends, model.InferredFriend{
			Name:           acc.display,
			NormalizedName: key,
			EventCount:     len(acc.events),
			TotalHours:     round1(acc.totalHours),
			Events:         acc.events,
		})
	}

	sort.SliceStable(friends, func(i, j int) bool {
		if friends[i].EventCount != friends[j].EventCount {
			return friends[i].EventCount > friends[j].EventCount
		}
		return friends[i].TotalHours > friends[j].TotalHours
	})

	return friends
}

// AggregateActivityStats groups ACTIVITY-classified events by category
// with top-5 venue and activity-type tables. A venue extracted by the
// classifier (from summaries like "Yoga @ Vital") wins over the venue
// from location enrichment.
func AggregateActivityStats(
	events []model.Event,
	classifications map[string]*model.Classification,
	enrichment map[string]*model.LocationEnrichment,
) map[string]*model.ActivityCategoryStats {
	type catAcc struct {
		totalHours float64
		venues     *counter
		types      *counter
		events     []model.ActivityEvent
	}
	byCategory := make(map[string]*catAcc)

	for _, event := range events {
		c := classifications[event.ID]
		if c == nil || c.Type != model.TypeActivity {
			continue
		}

		category := c.Category
		if category == "" {
			category = "other"
		}
		activityType := c.ActivityType
		if activityType == "" {
			activityType = "unknown"
		}

		ae := model.ActivityEvent{
			ID:           event.ID,
			Summary:      event.Summary,
			Date:         event.Date(),
			Hours:        event.Hours(),
			Category:     category,
			ActivityType: activityType,
			VenueName:    c.Venue,
		}
		if e := enrichment[event.ID]; e != nil {
			if ae.VenueName == "" {
				ae.VenueName = e.VenueName
			}
			ae.Neighborhood = e.Neighborhood
		}

		acc, ok := byCategory[category]
		if !ok {
			acc = &catAcc{venues: newCounter(), types: newCounter()}
			byCategory[category] = acc
		}
		acc.totalHours += event.Hours()
		acc.events = append(acc.events, ae)
		acc.venues.add(ae.VenueName)
		acc.types.add(activityType)
	}

	out := make(map[string]*model.ActivityCategoryStats, len(byCategory))
	for category, acc := range byCategory {
		out[category] = &model.ActivityCategoryStats{
			Category:      category,
			EventCount:    len(acc.events),
			TotalHours:    round1(acc.totalHours),
			TopVenues:     acc.venues.top(5),
			TopActivities: acc.types.top(5),
			Events:        acc.events,
		}
	}
	return out
}

// SuggestMerges links inferred names to email-identified friends by
// substring match against the email local part. "Dan" matches
// "daniel.smith@example.com" in either direction; confidence is high
// when the display name also contains the name.
func SuggestMerges(inferred []model.InferredFriend, friends []model.FriendStats) []model.MergeSuggestion {
	var suggestions []model.MergeSuggestion

	for _, inf := range inferred {
		if inf.NormalizedName == "" {
			continue
		}
		for _, friend := range friends {
			local, _, _ := strings.Cut(friend.Email, "@")
			local = strings.ToLower(local)
			if local == "" {
				continue
			}
			if !strings.Contains(local, inf.NormalizedName) && !strings.Contains(inf.NormalizedName, local) {
				continue
			}

			confidence := "medium"
			if friend.DisplayName != "" && strings.Contains(strings.ToLower(friend.DisplayName), inf.NormalizedName) {
				confidence = "high"
			}
			suggestions = append(suggestions, model.MergeSuggestion{
				InferredName:   inf.Name,
				SuggestedEmail: friend.Email,
				Confidence:     confidence,
				Reason:         fmt.Sprintf("%q matches email prefix %q", inf.Name, local),
			})
		}
	}

	return suggestions
}

// ApplyEnrichments copies resolved venue fields onto friend events in
// place.
func ApplyEnrichments(friends []model.FriendStats, enrichment map[string]*model.LocationEnrichment) {
	for i := range friends {
		for j := range friends[i].Events {
			ev := &friends[i].Events[j]
			if e := enrichment[ev.ID]; e != nil {
				ev.VenueName = e.VenueName
				ev.Neighborhood = e.Neighborhood
				ev.Cuisine = e.Cuisine
			}
		}
	}
}
