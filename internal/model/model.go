// Package model defines the normalized calendar event records and the
// enrichment/classification result types shared across the pipeline.
package model

import (
	"math"
	"time"
)

// Attendee is a normalized event attendee.
type Attendee struct {
	Email          string `json:"email"`
	DisplayName    string `json:"display_name,omitempty"`
	IsSelf         bool   `json:"is_self,omitempty"`
	ResponseStatus string `json:"response_status,omitempty"`
}

// Event is a normalized calendar event. Events are immutable once
// normalized; the pipeline reads them but never mutates them.
type Event struct {
	ID          string `json:"id"`
	Summary     string `json:"summary,omitempty"`
	Description string `json:"description,omitempty"`

	Start           time.Time `json:"start"`
	End             time.Time `json:"end"`
	AllDay          bool      `json:"all_day,omitempty"`
	DurationMinutes float64   `json:"duration_minutes"`

	Attendees      []Attendee `json:"attendees,omitempty"`
	OrganizerEmail string     `json:"organizer_email,omitempty"`

	LocationRaw string `json:"location_raw,omitempty"`

	Created          *time.Time `json:"created,omitempty"`
	Updated          *time.Time `json:"updated,omitempty"`
	RecurringEventID string     `json:"recurring_event_id,omitempty"`
}

// Hours returns the event duration in hours, rounded to one decimal.
func (e Event) Hours() float64 {
	return round1(e.DurationMinutes / 60)
}

// Date returns the event start date as YYYY-MM-DD.
func (e Event) Date() string {
	return e.Start.Format("2006-01-02")
}

// LocationEnrichment is the resolved venue/location record for one event.
type LocationEnrichment struct {
	EventID      string   `json:"event_id,omitempty"`
	VenueName    string   `json:"venue_name,omitempty"`
	Neighborhood string   `json:"neighborhood,omitempty"`
	City         string   `json:"city,omitempty"`
	Cuisine      string   `json:"cuisine,omitempty"`
	Latitude     *float64 `json:"latitude,omitempty"`
	Longitude    *float64 `json:"longitude,omitempty"`
}

// Classification event types.
const (
	TypeSocial   = "SOCIAL"
	TypeActivity = "ACTIVITY"
	TypeOther    = "OTHER"
)

// Classification is the person/activity inference for one event.
type Classification struct {
	EventID string `json:"event_id,omitempty"`
	Type    string `json:"type"`

	// SOCIAL
	Names []string `json:"names,omitempty"`

	// ACTIVITY
	Category     string `json:"category,omitempty"`
	ActivityType string `json:"activity_type,omitempty"`
	Venue        string `json:"venue,omitempty"`
}

// FriendEvent is a single event shared with (or attributed to) a person.
type FriendEvent struct {
	ID           string  `json:"id"`
	Summary      string  `json:"summary,omitempty"`
	Date         string  `json:"date"`
	Hours        float64 `json:"hours"`
	LocationRaw  string  `json:"location_raw,omitempty"`
	VenueName    string  `json:"venue_name,omitempty"`
	Neighborhood string  `json:"neighborhood,omitempty"`
	Cuisine      string  `json:"cuisine,omitempty"`
}

// FriendStats aggregates shared time with an email-identified person.
type FriendStats struct {
	Email       string        `json:"email"`
	DisplayName string        `json:"display_name,omitempty"`
	EventCount  int           `json:"event_count"`
	TotalHours  float64       `json:"total_hours"`
	Events      []FriendEvent `json:"events,omitempty"`
}

// InferredFriend aggregates SOCIAL events by a name the classifier
// extracted from event summaries.
type InferredFriend struct {
	Name           string        `json:"name"`
	NormalizedName string        `json:"normalized_name"`
	EventCount     int           `json:"event_count"`
	TotalHours     float64       `json:"total_hours"`
	Events         []FriendEvent `json:"events,omitempty"`
}

// ActivityEvent is a single classified ACTIVITY event.
type ActivityEvent struct {
	ID           string  `json:"id"`
	Summary      string  `json:"summary,omitempty"`
	Date         string  `json:"date"`
	Hours        float64 `json:"hours"`
	Category     string  `json:"category"`
	ActivityType string  `json:"activity_type,omitempty"`
	VenueName    string  `json:"venue_name,omitempty"`
	Neighborhood string  `json:"neighborhood,omitempty"`
}

// CountedName is a (name, count) pair from a frequency table.
type CountedName struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// ActivityCategoryStats aggregates ACTIVITY events for one category.
type ActivityCategoryStats struct {
	Category      string          `json:"category"`
	EventCount    int             `json:"event_count"`
	TotalHours    float64         `json:"total_hours"`
	TopVenues     []CountedName   `json:"top_venues,omitempty"`
	TopActivities []CountedName   `json:"top_activities,omitempty"`
	Events        []ActivityEvent `json:"events,omitempty"`
}

// MergeSuggestion links an inferred name to an email-identified person.
type MergeSuggestion struct {
	InferredName   string `json:"inferred_name"`
	SuggestedEmail string `json:"suggested_email"`
	Confidence     string `json:"confidence"` // "high" or "medium"
	Reason         string `json:"reason"`
}

// TimeStats holds time-based aggregations for a year of events.
type TimeStats struct {
	TotalEvents      int             `json:"total_events"`
	TotalHours       float64         `json:"total_hours"`
	EventsPerMonth   map[int]int     `json:"events_per_month"`
	EventsPerWeekday map[string]int  `json:"events_per_weekday"`
	HoursPerMonth    map[int]float64 `json:"hours_per_month"`
	BusiestDay       *BusiestDay     `json:"busiest_day,omitempty"`
}

// BusiestDay identifies the single busiest day by total hours.
type BusiestDay struct {
	Date       string  `json:"date"`
	EventCount int     `json:"event_count"`
	Hours      float64 `json:"hours"`
}

// LocationStats holds top-N location aggregations over enriched events.
type LocationStats struct {
	TopNeighborhoods  []CountedName `json:"top_neighborhoods,omitempty"`
	TopVenues         []CountedName `json:"top_venues,omitempty"`
	TopCuisines       []CountedName `json:"top_cuisines,omitempty"`
	TotalWithLocation int           `json:"total_with_location"`
}

// Insight is one data-grounded pattern from the year's stats.
type Insight struct {
	Title  string `json:"title"`
	Detail string `json:"detail"`
}

// ExperimentIdea is one forward-looking suggestion for next year.
type ExperimentIdea struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

// Report is the final persisted year report.
type Report struct {
	ID          string    `json:"id"`
	Year        int       `json:"year"`
	GeneratedAt time.Time `json:"generated_at"`

	TimeStats       *TimeStats                        `json:"time_stats,omitempty"`
	Friends         []FriendStats                     `json:"friends,omitempty"`
	InferredFriends []InferredFriend                  `json:"inferred_friends,omitempty"`
	Activities      map[string]*ActivityCategoryStats `json:"activities,omitempty"`
	Locations       *LocationStats                    `json:"locations,omitempty"`
	Merges          []MergeSuggestion                 `json:"merge_suggestions,omitempty"`

	Narrative   string           `json:"narrative,omitempty"`
	Insights    []Insight        `json:"insights,omitempty"`
	Experiments []ExperimentIdea `json:"experiments,omitempty"`
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
