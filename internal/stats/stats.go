// Package stats folds normalized events and pipeline results into the
// per-person, per-category, and per-time aggregations that feed the
// final report.
package stats

import (
	"math"
	"sort"
	"strings"

	"github.com/calens/calens/internal/model"
)

// Emails containing these substrings are filtered out as system
// accounts when computing friend stats.
var systemEmailPatterns = []string{
	"@resource.calendar.google.com",
	"noreply",
	"no-reply",
	"calendar-notification",
	"@zoom.us",
	"@calendly.com",
	"mailer-daemon",
	"@google.com", // Google Meet, etc.
}

func isSystemEmail(email string) bool {
	low := strings.ToLower(email)
	for _, pattern := range systemEmailPatterns {
		if strings.Contains(low, pattern) {
			return true
		}
	}
	return false
}

// ComputeFriendStats aggregates shared time per attendee email,
// excluding self, declined attendees, and system accounts. Sorted by
// (event count, total hours) descending.
func ComputeFriendStats(events []model.Event, minEvents int) []model.FriendStats {
	if minEvents < 1 {
		minEvents = 1
	}

	type friendAcc struct {
		displayName string
		totalHours  float64
		events      []model.FriendEvent
	}
	byEmail := make(map[string]*friendAcc)
	var order []string

	for _, event := range events {
		hours := event.Hours()
		for _, a := range event.Attendees {
			if a.IsSelf || a.ResponseStatus == "declined" {
				continue
			}
			if a.Email == "" || isSystemEmail(a.Email) {
				continue
			}

			acc, ok := byEmail[a.Email]
			if !ok {
				acc = &friendAcc{}
				byEmail[a.Email] = acc
				order = append(order, a.Email)
			}
			acc.totalHours += hours
			acc.events = append(acc.events, model.FriendEvent{
				ID:          event.ID,
				Summary:     event.Summary,
				Date:        event.Date(),
				Hours:       hours,
				LocationRaw: event.LocationRaw,
			})
			// Keep the most recent display name.
			if a.DisplayName != "" {
				acc.displayName = a.DisplayName
			}
		}
	}

	stats := make([]model.FriendStats, 0, len(byEmail))
	for _, email := range order {
		acc := byEmail[email]
		if len(acc.events) < minEvents {
			continue
		}
		stats = append(stats, model.FriendStats{
			Email:       email,
			DisplayName: acc.displayName,
			EventCount:  len(acc.events),
			TotalHours:  round1(acc.totalHours),
			Events:      acc.events,
		})
	}

	sort.SliceStable(stats, func(i, j int) bool {
		if stats[i].EventCount != stats[j].EventCount {
			return stats[i].EventCount > stats[j].EventCount
		}
		return stats[i].TotalHours > stats[j].TotalHours
	})

	return stats
}

var weekdayNames = map[int]string{
	0: "Sun", 1: "Mon", 2: "Tue", 3: "Wed", 4: "Thu", 5: "Fri", 6: "Sat",
}

// ComputeTimeStats computes totals, per-month and per-weekday counts,
// and the busiest day by hours.
func ComputeTimeStats(events []model.Event) *model.TimeStats {
	stats := &model.TimeStats{
		TotalEvents:      len(events),
		EventsPerMonth:   make(map[int]int),
		EventsPerWeekday: make(map[string]int),
		HoursPerMonth:    make(map[int]float64),
	}

	type dayAcc struct {
		count int
		hours float64
	}
	perDay := make(map[string]*dayAcc)

	var totalHours float64
	for _, e := range events {
		hours := e.DurationMinutes / 60
		totalHours += hours

		month := int(e.Start.Month())
		stats.EventsPerMonth[month]++
		stats.HoursPerMonth[month] += hours
		stats.EventsPerWeekday[weekdayNames[int(e.Start.Weekday())]]++

		day := e.Date()
		acc, ok := perDay[day]
		if !ok {
			acc = &dayAcc{}
			perDay[day] = acc
		}
		acc.count++
		acc.hours += hours
	}

	stats.TotalHours = round1(totalHours)
	for m, h := range stats.HoursPerMonth {
		stats.HoursPerMonth[m] = round1(h)
	}

	days := make([]string, 0, len(perDay))
	for day := range perDay {
		days = append(days, day)
	}
	sort.Strings(days)

	var maxHours float64
	for _, day := range days {
		acc := perDay[day]
		if acc.hours > maxHours {
			maxHours = acc.hours
			stats.BusiestDay = &model.BusiestDay{
				Date:       day,
				EventCount: acc.count,
				Hours:      round1(acc.hours),
			}
		}
	}

	return stats
}

// ComputeLocationStats counts top neighborhoods, venues, and cuisines
// over the run's enrichment lookup.
func ComputeLocationStats(enrichment map[string]*model.LocationEnrichment, topN int) *model.LocationStats {
	if topN <= 0 {
		topN = 5
	}

	neighborhoods := newCounter()
	venues := newCounter()
	cuisines := newCounter()
	total := 0

	// Deterministic iteration keeps tie-breaks stable across runs.
	ids := make([]string, 0, len(enrichment))
	for id := range enrichment {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		e := enrichment[id]
		if e == nil {
			continue
		}
		if e.VenueName != "" || e.Neighborhood != "" {
			total++
		}
		neighborhoods.add(e.Neighborhood)
		venues.add(e.VenueName)
		cuisines.add(e.Cuisine)
	}

	return &model.LocationStats{
		TopNeighborhoods:  neighborhoods.top(topN),
		TopVenues:         venues.top(topN),
		TopCuisines:       cuisines.top(topN),
		TotalWithLocation: total,
	}
}

// counter is a frequency table that remembers first-seen order for
// tie-breaking.
type counter struct {
	counts map[string]int
	order  []string
}

func newCounter() *counter {
	return &counter{counts: make(map[string]int)}
}

func (c *counter) add(name string) {
	if name == "" {
		return
	}
	if _, ok := c.counts[name]; !ok {
		c.order = append(c.order, name)
	}
	c.counts[name]++
}

// top returns the n most frequent names; ties break by first
// occurrence.
func (c *counter) top(n int) []model.CountedName {
	names := make([]string, len(c.order))
	copy(names, c.order)
	sort.SliceStable(names, func(i, j int) bool {
		return c.counts[names[i]] > c.counts[names[j]]
	})
	if len(names) > n {
		names = names[:n]
	}
	out := make([]model.CountedName, 0, len(names))
	for _, name := range names {
		out = append(out, model.CountedName{Name: name, Count: c.counts[name]})
	}
	return out
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
