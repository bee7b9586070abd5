package report

import (
	"sort"
	"strings"

	"github.com/calens/calens/internal/model"
)

// statsContext is the compact payload sent with narrative calls. Kept
// small on purpose; the full stats would blow the prompt up for no
// gain.
type statsContext struct {
	Year           int     `json:"year"`
	TotalEvents    int     `json:"total_events"`
	TotalHours     float64 `json:"total_hours"`
	BusiestMonth   string  `json:"busiest_month,omitempty"`
	BusiestWeekday string  `json:"busiest_weekday,omitempty"`

	TopFriends         []personContext     `json:"top_friends,omitempty"`
	TopInferredFriends []personContext     `json:"top_inferred_friends,omitempty"`
	TopNeighborhoods   []model.CountedName `json:"top_neighborhoods,omitempty"`
	TopVenues          []model.CountedName `json:"top_venues,omitempty"`
	TopCuisines        []model.CountedName `json:"top_cuisines,omitempty"`
	Activities         []activityContext   `json:"activities,omitempty"`
}

type personContext struct {
	Name          string   `json:"name"`
	Events        int      `json:"events"`
	Hours         float64  `json:"hours"`
	Venues        []string `json:"venues,omitempty"`
	Neighborhoods []string `json:"neighborhoods,omitempty"`
}

type activityContext struct {
	Category      string   `json:"category"`
	Events        int      `json:"events"`
	Hours         float64  `json:"hours"`
	TopActivities []string `json:"top_activities,omitempty"`
	TopVenues     []string `json:"top_venues,omitempty"`
}

const contextTopN = 5

var monthNames = [...]string{"", "Jan", "Feb", "Mar", "Apr", "May", "Jun", "Jul", "Aug", "Sep", "Oct", "Nov", "Dec"}

func buildContext(stats *Stats) statsContext {
	sc := statsContext{Year: stats.Year}

	if ts := stats.TimeStats; ts != nil {
		sc.TotalEvents = ts.TotalEvents
		sc.TotalHours = ts.TotalHours
		if month := maxIntKey(ts.EventsPerMonth); month > 0 && month < len(monthNames) {
			sc.BusiestMonth = monthNames[month]
		}
		sc.BusiestWeekday = maxStringKey(ts.EventsPerWeekday)
	}

	for _, f := range topFriends(stats.Friends) {
		name := f.DisplayName
		if name == "" {
			name, _, _ = strings.Cut(f.Email, "@")
		}
		sc.TopFriends = append(sc.TopFriends, personContext{
			Name:          name,
			Events:        f.EventCount,
			Hours:         f.TotalHours,
			Venues:        eventVenues(f.Events),
			Neighborhoods: eventNeighborhoods(f.Events),
		})
	}

	inferred := stats.InferredFriends
	if len(inferred) > contextTopN {
		inferred = inferred[:contextTopN]
	}
	for _, f := range inferred {
		sc.TopInferredFriends = append(sc.TopInferredFriends, personContext{
			Name:          f.Name,
			Events:        f.EventCount,
			Hours:         f.TotalHours,
			Venues:        eventVenues(f.Events),
			Neighborhoods: eventNeighborhoods(f.Events),
		})
	}

	if locs := stats.Locations; locs != nil {
		sc.TopNeighborhoods = locs.TopNeighborhoods
		sc.TopVenues = locs.TopVenues
		sc.TopCuisines = locs.TopCuisines
	}

	for _, category := range sortedCategories(stats.Activities) {
		a := stats.Activities[category]
		sc.Activities = append(sc.Activities, activityContext{
			Category:      a.Category,
			Events:        a.EventCount,
			Hours:         a.TotalHours,
			TopActivities: countedNames(a.TopActivities, 2),
			TopVenues:     countedNames(a.TopVenues, 2),
		})
	}

	return sc
}

func topFriends(friends []model.FriendStats) []model.FriendStats {
	if len(friends) > contextTopN {
		return friends[:contextTopN]
	}
	return friends
}

// eventVenues collects up to three distinct venues in first-seen order.
func eventVenues(events []model.FriendEvent) []string {
	var venues []string
	for _, e := range events {
		if e.VenueName == "" || contains(venues, e.VenueName) {
			continue
		}
		venues = append(venues, e.VenueName)
		if len(venues) == 3 {
			break
		}
	}
	return venues
}

func eventNeighborhoods(events []model.FriendEvent) []string {
	var hoods []string
	for _, e := range events {
		if e.Neighborhood == "" || contains(hoods, e.Neighborhood) {
			continue
		}
		hoods = append(hoods, e.Neighborhood)
		if len(hoods) == 3 {
			break
		}
	}
	return hoods
}

func countedNames(counted []model.CountedName, n int) []string {
	if len(counted) > n {
		counted = counted[:n]
	}
	names := make([]string, 0, len(counted))
	for _, c := range counted {
		names = append(names, c.Name)
	}
	return names
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}

func maxIntKey(m map[int]int) int {
	best, bestCount := 0, 0
	for k, count := range m {
		if count > bestCount || (count == bestCount && k < best) {
			best, bestCount = k, count
		}
	}
	return best
}

func maxStringKey(m map[string]int) string {
	best, bestCount := "", 0
	for k, count := range m {
		if count > bestCount || (count == bestCount && best != "" && k < best) {
			best, bestCount = k, count
		}
	}
	return best
}

func sortedCategories(activities map[string]*model.ActivityCategoryStats) []string {
	categories := make([]string, 0, len(activities))
	for category := range activities {
		categories = append(categories, category)
	}
	sort.Strings(categories)
	return categories
}
