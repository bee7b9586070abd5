// Package normalize converts raw Google Calendar API event payloads
// into the pipeline's event records. It handles timezone conversion,
// duration calculation, and attendee cleanup.
package normalize

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/calens/calens/internal/model"
)

// RawEvent mirrors the Calendar API event resource, limited to the
// fields the pipeline consumes.
type RawEvent struct {
	ID               string        `json:"id"`
	Status           string        `json:"status,omitempty"`
	Summary          string        `json:"summary,omitempty"`
	Description      string        `json:"description,omitempty"`
	Location         string        `json:"location,omitempty"`
	Start            RawEventTime  `json:"start"`
	End              RawEventTime  `json:"end"`
	Attendees        []RawAttendee `json:"attendees,omitempty"`
	Organizer        *RawPerson    `json:"organizer,omitempty"`
	Created          string        `json:"created,omitempty"`
	Updated          string        `json:"updated,omitempty"`
	RecurringEventID string        `json:"recurringEventId,omitempty"`
}

// RawEventTime is a Calendar API start/end object: timed events carry
// dateTime, all-day events carry date.
type RawEventTime struct {
	DateTime string `json:"dateTime,omitempty"`
	Date     string `json:"date,omitempty"`
	TimeZone string `json:"timeZone,omitempty"`
}

// RawAttendee is a Calendar API attendee entry.
type RawAttendee struct {
	Email          string `json:"email,omitempty"`
	DisplayName    string `json:"displayName,omitempty"`
	Self           bool   `json:"self,omitempty"`
	ResponseStatus string `json:"responseStatus,omitempty"`
}

// RawPerson is a Calendar API organizer/creator entry.
type RawPerson struct {
	Email string `json:"email,omitempty"`
}

// Normalizer converts raw events into normalized records in a single
// target timezone.
type Normalizer struct {
	tz        *time.Location
	userEmail string
}

// New builds a Normalizer for the given IANA timezone. The user email
// is used for self-detection on attendees.
func New(timezone, userEmail string) (*Normalizer, error) {
	tz, err := time.LoadLocation(timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", timezone, err)
	}
	return &Normalizer{tz: tz, userEmail: strings.ToLower(userEmail)}, nil
}

// Events normalizes a batch of raw events. Cancelled events and events
// without usable start/end times are dropped.
func (n *Normalizer) Events(raw []RawEvent) []model.Event {
	out := make([]model.Event, 0, len(raw))
	for _, r := range raw {
		if event, ok := n.Event(r); ok {
			out = append(out, event)
		}
	}
	return out
}

// Event normalizes one raw event. The second return is false when the
// event should be skipped.
func (n *Normalizer) Event(raw RawEvent) (model.Event, bool) {
	if raw.Status == "cancelled" || raw.ID == "" {
		return model.Event{}, false
	}

	start, allDay, ok := n.parseTime(raw.Start)
	if !ok {
		return model.Event{}, false
	}
	end, _, ok := n.parseTime(raw.End)
	if !ok {
		return model.Event{}, false
	}

	event := model.Event{
		ID:               raw.ID,
		Summary:          raw.Summary,
		Description:      raw.Description,
		Start:            start,
		End:              end,
		AllDay:           allDay,
		DurationMinutes:  end.Sub(start).Minutes(),
		Attendees:        n.attendees(raw.Attendees),
		LocationRaw:      raw.Location,
		Created:          parseTimestamp(raw.Created),
		Updated:          parseTimestamp(raw.Updated),
		RecurringEventID: raw.RecurringEventID,
	}
	if raw.Organizer != nil {
		event.OrganizerEmail = raw.Organizer.Email
	}
	return event, true
}

// parseTime resolves a start/end object to the target timezone.
// All-day events become midnight in the target timezone.
func (n *Normalizer) parseTime(t RawEventTime) (time.Time, bool, bool) {
	if t.Date != "" {
		parsed, err := time.ParseInLocation("2006-01-02", t.Date, n.tz)
		if err != nil {
			return time.Time{}, false, false
		}
		return parsed, true, true
	}
	if t.DateTime != "" {
		parsed, err := time.Parse(time.RFC3339, t.DateTime)
		if err != nil {
			return time.Time{}, false, false
		}
		return parsed.In(n.tz), false, true
	}
	return time.Time{}, false, false
}

func (n *Normalizer) attendees(raw []RawAttendee) []model.Attendee {
	if len(raw) == 0 {
		return nil
	}
	out := make([]model.Attendee, 0, len(raw))
	for _, a := range raw {
		email := strings.ToLower(a.Email)
		out = append(out, model.Attendee{
			Email:          email,
			DisplayName:    a.DisplayName,
			IsSelf:         a.Self || (email != "" && email == n.userEmail),
			ResponseStatus: a.ResponseStatus,
		})
	}
	return out
}

func parseTimestamp(s string) *time.Time {
	if s == "" {
		return nil
	}
	parsed, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return nil
	}
	return &parsed
}

// ParseExport decodes a Calendar API export file. Both a bare event
// array and the API list envelope ({"items": [...]}) are accepted.
func ParseExport(data []byte) ([]RawEvent, error) {
	trimmed := strings.TrimSpace(string(data))
	if strings.HasPrefix(trimmed, "[") {
		var events []RawEvent
		if err := json.Unmarshal(data, &events); err != nil {
			return nil, fmt.Errorf("parse event array: %w", err)
		}
		return events, nil
	}

	var envelope struct {
		Items []RawEvent `json:"items"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, fmt.Errorf("parse event list: %w", err)
	}
	return envelope.Items, nil
}
