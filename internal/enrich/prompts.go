package enrich

import "strings"

// PromptItem is one representative entry in a resolver batch. The
// event_id of the representative keys the result back to its group.
type PromptItem struct {
	EventID      string `json:"event_id"`
	Summary      string `json:"summary,omitempty"`
	Location     string `json:"location,omitempty"`
	LocationHint string `json:"location_hint,omitempty"`
}

const locationPrompt = `Extract location details from these calendar events.

For each event with location data, extract:
- venue_name: Business/place name (e.g., "Thai Villa", "Equinox", "AMC Theater")
- neighborhood: Neighborhood or district, inferred from the address when possible
- city: Borough or city (e.g., "Manhattan", "Brooklyn", "Queens", "New York")
- cuisine: Food type if restaurant/bar (e.g., "Thai", "Italian", "Japanese", "Korean", "American")

Rules:
- ALWAYS try to infer neighborhood from street addresses
- For non-food venues, leave cuisine as null
- Skip events with no location data or private addresses (apartments, homes)

Events:
{events_json}

Return JSON: {"results": [
  {"event_id": "...", "venue_name": "...", "neighborhood": "...", "city": "...", "cuisine": "..."}
]}`

const classificationPrompt = `Classify these calendar events into SOCIAL, ACTIVITY, or OTHER.

For each event, determine:
1. SOCIAL - Meeting with specific people (friends, family, dates)
   - Extract names: list of person names mentioned
   - Examples: "Dinner with Masha" -> ["Masha"], "Coffee w/ John & Sarah" -> ["John", "Sarah"]
   - "1:1 Bob" -> ["Bob"], "Mom's birthday" -> ["Mom"]

2. ACTIVITY - Personal activities you do solo or at a venue
   - Extract category, activity_type, and venue (if mentioned in summary)
   - Categories: fitness, wellness, health, personal_care, learning, entertainment
   - Extract venue from summary if present:
     - "Yoga @ Vital" -> venue: "Vital"
     - "Climbing at Brooklyn Boulders" -> venue: "Brooklyn Boulders"
     - "Gym" -> venue: null (no specific venue)

3. OTHER - Skip these (work, reminders, travel logistics, chores)
   - Examples: "Team standup", "Flight to LA", "Pay rent", "Block: focus time"

Events:
{events_json}

Return JSON: {"results": [
  {"event_id": "...", "type": "SOCIAL", "names": ["..."]} or
  {"event_id": "...", "type": "ACTIVITY", "category": "...", "activity_type": "...", "venue": "..."} or
  {"event_id": "...", "type": "OTHER"}
]}`

const (
	maxSummaryLen  = 180
	maxLocationLen = 160
)

// shortenText trims text for prompts to keep payloads small.
func shortenText(text string) string {
	text = strings.TrimSpace(text)
	if len(text) > maxSummaryLen {
		return text[:maxSummaryLen]
	}
	return text
}

// shortenLocation trims locations (especially long map URLs) before
// sending them to the resolver.
func shortenLocation(location string) string {
	trimmed := strings.TrimSpace(location)
	if strings.HasPrefix(trimmed, "http") {
		if i := strings.IndexByte(trimmed, '?'); i >= 0 {
			trimmed = trimmed[:i]
		}
	}
	if len(trimmed) > maxLocationLen {
		return trimmed[:maxLocationLen]
	}
	return trimmed
}
