package ics

import (
	"fmt"
	"sort"
	"time"

	"github.com/teambition/rrule-go"

	"github.com/calens/calens/internal/logging"
	"github.com/calens/calens/internal/model"
)

// Safety cap so a malformed unbounded RRULE cannot blow up an import.
const maxInstancesPerEvent = 1000

// Import parses an ICS payload and expands it into normalized events
// within [rangeStart, rangeEnd), converted to tz.
func Import(body []byte, rangeStart, rangeEnd time.Time, tz *time.Location) ([]model.Event, error) {
	parsed, err := Parse(body)
	if err != nil {
		return nil, err
	}
	return expand(parsed, rangeStart, rangeEnd, tz), nil
}

// ImportYear expands an ICS payload into events starting in the given
// calendar year.
func ImportYear(body []byte, year int, tz *time.Location) ([]model.Event, error) {
	start := time.Date(year, time.January, 1, 0, 0, 0, 0, tz)
	return Import(body, start, start.AddDate(1, 0, 0), tz)
}

func expand(parsed []parsedEvent, rangeStart, rangeEnd time.Time, tz *time.Location) []model.Event {
	if tz == nil {
		tz = time.Local
	}

	// Overrides (RECURRENCE-ID) replace the matching expanded instance.
	overrides := make(map[string][]parsedEvent)
	var bases []parsedEvent
	for _, ev := range parsed {
		if ev.IsOverride && ev.Recurrence != nil {
			overrides[ev.UID] = append(overrides[ev.UID], ev)
		} else {
			bases = append(bases, ev)
		}
	}

	var events []model.Event
	for _, base := range bases {
		if base.RawRRule == "" {
			if !base.Start.Before(rangeStart) && base.Start.Before(rangeEnd) {
				events = append(events, toEvent(base, base.Start, base.End, false, tz))
			}
			continue
		}
		events = append(events, expandRecurring(base, overrides[base.UID], rangeStart, rangeEnd, tz)...)
	}

	sort.Slice(events, func(i, j int) bool {
		return events[i].Start.Before(events[j].Start)
	})
	return events
}

func expandRecurring(base parsedEvent, overrides []parsedEvent, rangeStart, rangeEnd time.Time, tz *time.Location) []model.Event {
	rule, err := rrule.StrToRRule(base.RawRRule)
	if err != nil {
		logging.Debug("skipping malformed rrule", "uid", base.UID, "err", err)
		return nil
	}
	rule.DTStart(base.Start)

	var set rrule.Set
	set.RRule(rule)
	for _, ex := range base.ExDates {
		set.ExDate(ex.In(base.Start.Location()))
	}

	loc := base.Start.Location()
	starts := set.Between(rangeStart.In(loc), rangeEnd.In(loc), true)
	if len(starts) > maxInstancesPerEvent {
		logging.Info("capping recurring event expansion", "uid", base.UID, "cap", maxInstancesPerEvent)
		starts = starts[:maxInstancesPerEvent]
	}

	duration := base.End.Sub(base.Start)
	var events []model.Event
	for _, start := range starts {
		if !start.Before(rangeEnd) {
			continue
		}
		instance := base
		end := start.Add(duration)
		if o, ok := findOverride(overrides, start); ok {
			instance = o
			start = o.Start
			end = o.End
		}
		events = append(events, toEvent(instance, start, end, true, tz))
	}
	return events
}

func findOverride(overrides []parsedEvent, start time.Time) (parsedEvent, bool) {
	for _, ov := range overrides {
		if ov.Recurrence != nil && ov.Recurrence.In(start.Location()).Equal(start) {
			return ov, true
		}
	}
	return parsedEvent{}, false
}

func toEvent(ev parsedEvent, start, end time.Time, recurring bool, tz *time.Location) model.Event {
	start = start.In(tz)
	end = end.In(tz)

	id := ev.UID
	recurringID := ""
	if recurring {
		// Instances of the same UID need distinct stable IDs.
		id = fmt.Sprintf("%s_%s", ev.UID, start.Format("20060102T150405"))
		recurringID = ev.UID
	}

	return model.Event{
		ID:               id,
		Summary:          ev.Summary,
		Description:      ev.Description,
		Start:            start,
		End:              end,
		AllDay:           ev.AllDay,
		DurationMinutes:  end.Sub(start).Minutes(),
		Attendees:        ev.Attendees,
		OrganizerEmail:   ev.OrganizerEmail,
		LocationRaw:      ev.Location,
		RecurringEventID: recurringID,
	}
}
