package stats

import (
	"testing"
	"time"

	"github.com/calens/calens/internal/model"
)

func event(id, summary string, start time.Time, minutes float64, attendees ...model.Attendee) model.Event {
	return model.Event{
		ID:              id,
		Summary:         summary,
		Start:           start,
		End:             start.Add(time.Duration(minutes) * time.Minute),
		DurationMinutes: minutes,
		Attendees:       attendees,
	}
}

func TestComputeFriendStatsFiltersAndSorts(t *testing.T) {
	jan := time.Date(2025, time.January, 10, 19, 0, 0, 0, time.UTC)
	dan := model.Attendee{Email: "daniel.smith@example.com", DisplayName: "Dan Smith"}
	masha := model.Attendee{Email: "masha@example.com"}

	events := []model.Event{
		event("e1", "Dinner", jan, 90, dan, masha,
			model.Attendee{Email: "me@example.com", IsSelf: true},
			model.Attendee{Email: "room-42@resource.calendar.google.com"},
			model.Attendee{Email: "flaky@example.com", ResponseStatus: "declined"},
		),
		event("e2", "Coffee", jan.AddDate(0, 0, 1), 30, dan),
		event("e3", "Movie", jan.AddDate(0, 0, 2), 120, masha),
	}

	stats := ComputeFriendStats(events, 1)
	if len(stats) != 2 {
		t.Fatalf("expected 2 friends, got %d: %+v", len(stats), stats)
	}
	if stats[0].Email != "daniel.smith@example.com" {
		t.Errorf("expected dan first by event count, got %s", stats[0].Email)
	}
	if stats[0].EventCount != 2 || stats[0].TotalHours != 2.0 {
		t.Errorf("dan: got %d events %.1fh", stats[0].EventCount, stats[0].TotalHours)
	}
	if stats[0].DisplayName != "Dan Smith" {
		t.Errorf("display name lost: %q", stats[0].DisplayName)
	}
	if stats[1].Email != "masha@example.com" || stats[1].EventCount != 2 {
		t.Errorf("masha: %+v", stats[1])
	}
}

func TestComputeFriendStatsMinEvents(t *testing.T) {
	jan := time.Date(2025, time.January, 10, 19, 0, 0, 0, time.UTC)
	events := []model.Event{
		event("e1", "Dinner", jan, 60, model.Attendee{Email: "once@example.com"}),
	}
	if got := ComputeFriendStats(events, 2); len(got) != 0 {
		t.Errorf("expected one-off attendee filtered, got %+v", got)
	}
}

func TestIsSystemEmail(t *testing.T) {
	system := []string{
		"room-42@resource.calendar.google.com",
		"noreply@service.io",
		"calendar-notification@google.com",
		"someone@zoom.us",
	}
	for _, email := range system {
		if !isSystemEmail(email) {
			t.Errorf("%s should be a system email", email)
		}
	}
	if isSystemEmail("masha@example.com") {
		t.Error("masha@example.com is not a system email")
	}
}

func TestComputeTimeStats(t *testing.T) {
	jan10 := time.Date(2025, time.January, 10, 10, 0, 0, 0, time.UTC) // Friday
	events := []model.Event{
		event("e1", "a", jan10, 60),
		event("e2", "b", jan10.Add(4*time.Hour), 120),
		event("e3", "c", time.Date(2025, time.March, 3, 9, 0, 0, 0, time.UTC), 30), // Monday
	}

	ts := ComputeTimeStats(events)
	if ts.TotalEvents != 3 {
		t.Errorf("TotalEvents = %d", ts.TotalEvents)
	}
	if ts.TotalHours != 3.5 {
		t.Errorf("TotalHours = %.1f", ts.TotalHours)
	}
	if ts.EventsPerMonth[1] != 2 || ts.EventsPerMonth[3] != 1 {
		t.Errorf("EventsPerMonth = %+v", ts.EventsPerMonth)
	}
	if ts.EventsPerWeekday["Fri"] != 2 || ts.EventsPerWeekday["Mon"] != 1 {
		t.Errorf("EventsPerWeekday = %+v", ts.EventsPerWeekday)
	}
	if ts.BusiestDay == nil || ts.BusiestDay.Date != "2025-01-10" {
		t.Fatalf("BusiestDay = %+v", ts.BusiestDay)
	}
	if ts.BusiestDay.EventCount != 2 || ts.BusiestDay.Hours != 3.0 {
		t.Errorf("BusiestDay = %+v", ts.BusiestDay)
	}
}

func TestComputeLocationStatsTopN(t *testing.T) {
	enrichment := map[string]*model.LocationEnrichment{
		"e1": {VenueName: "Lucali", Neighborhood: "Carroll Gardens", Cuisine: "Pizza"},
		"e2": {VenueName: "Lucali", Neighborhood: "Carroll Gardens"},
		"e3": {VenueName: "Balthazar", Neighborhood: "SoHo", Cuisine: "French"},
		"e4": {},
	}

	ls := ComputeLocationStats(enrichment, 1)
	if len(ls.TopVenues) != 1 || ls.TopVenues[0].Name != "Lucali" || ls.TopVenues[0].Count != 2 {
		t.Errorf("TopVenues = %+v", ls.TopVenues)
	}
	if len(ls.TopNeighborhoods) != 1 || ls.TopNeighborhoods[0].Name != "Carroll Gardens" {
		t.Errorf("TopNeighborhoods = %+v", ls.TopNeighborhoods)
	}
	if ls.TotalWithLocation != 3 {
		t.Errorf("TotalWithLocation = %d", ls.TotalWithLocation)
	}
}

func TestCounterTieBreaksByFirstSeen(t *testing.T) {
	c := newCounter()
	c.add("b-street")
	c.add("a-street")
	c.add("b-street")
	c.add("a-street")

	top := c.top(2)
	if len(top) != 2 || top[0].Name != "b-street" {
		t.Errorf("expected first-seen tie-break, got %+v", top)
	}
}
