// Package ics imports iCalendar exports into normalized events,
// expanding recurring events into concrete instances.
package ics

import (
	"bytes"
	"errors"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"

	"github.com/calens/calens/internal/logging"
	"github.com/calens/calens/internal/model"
)

// parsedEvent is one VEVENT before recurrence expansion.
type parsedEvent struct {
	UID string

	Summary     string
	Description string
	Location    string

	Start  time.Time
	End    time.Time
	AllDay bool

	Attendees      []model.Attendee
	OrganizerEmail string

	RawRRule   string
	ExDates    []time.Time
	Recurrence *time.Time
	IsOverride bool
}

// Parse reads an ICS payload into parsed events. Individual VEVENTs
// that fail to parse are skipped.
func Parse(body []byte) ([]parsedEvent, error) {
	if len(body) == 0 {
		return nil, errors.New("empty ics body")
	}

	cal, err := ical.ParseCalendar(bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	var events []parsedEvent
	for _, ve := range cal.Events() {
		ev, err := parseVEvent(ve)
		if err != nil {
			logging.Debug("skipping vevent", "err", err)
			continue
		}
		events = append(events, ev)
	}
	return events, nil
}

func parseVEvent(ve *ical.VEvent) (parsedEvent, error) {
	var out parsedEvent

	uid := ve.GetProperty(ical.ComponentPropertyUniqueId)
	if uid == nil || uid.Value == "" {
		return out, errors.New("missing UID")
	}
	out.UID = uid.Value

	if p := ve.GetProperty(ical.ComponentPropertySummary); p != nil {
		out.Summary = p.Value
	}
	if p := ve.GetProperty(ical.ComponentPropertyDescription); p != nil {
		out.Description = p.Value
	}
	if p := ve.GetProperty(ical.ComponentPropertyLocation); p != nil {
		out.Location = p.Value
	}

	start, _ := ve.GetStartAt()
	end, _ := ve.GetEndAt()
	out.Start = start
	out.End = end

	if p := ve.GetProperty(ical.ComponentPropertyDtStart); p != nil {
		out.AllDay = isDateOnly(p)
	}
	if out.AllDay && out.End.Equal(out.Start) {
		out.End = out.Start.Add(24 * time.Hour)
	}

	if p := ve.GetProperty(ical.ComponentPropertyRrule); p != nil {
		out.RawRRule = p.Value
	}

	for _, p := range ve.GetProperties(ical.ComponentPropertyExdate) {
		for _, part := range strings.Split(p.Value, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			if t, err := parseICSTime(part, out.Start.Location()); err == nil {
				out.ExDates = append(out.ExDates, t)
			}
		}
	}

	if p := ve.GetProperty("RECURRENCE-ID"); p != nil {
		if t, err := parseICSTime(p.Value, out.Start.Location()); err == nil {
			out.Recurrence = &t
			out.IsOverride = true
		}
	}

	for _, p := range ve.GetProperties(ical.ComponentPropertyAttendee) {
		if a, ok := parseAttendee(p); ok {
			out.Attendees = append(out.Attendees, a)
		}
	}
	if p := ve.GetProperty(ical.ComponentPropertyOrganizer); p != nil {
		out.OrganizerEmail = mailtoEmail(p.Value)
	}

	return out, nil
}

func isDateOnly(p *ical.IANAProperty) bool {
	if params := p.ICalParameters; params != nil {
		if vs, ok := params["VALUE"]; ok && len(vs) > 0 && strings.EqualFold(vs[0], "DATE") {
			return true
		}
	}
	return !strings.Contains(p.Value, "T")
}

func parseAttendee(p *ical.IANAProperty) (model.Attendee, bool) {
	email := mailtoEmail(p.Value)
	if email == "" {
		return model.Attendee{}, false
	}
	a := model.Attendee{Email: email}
	if params := p.ICalParameters; params != nil {
		if cn, ok := params["CN"]; ok && len(cn) > 0 {
			a.DisplayName = cn[0]
		}
		if ps, ok := params["PARTSTAT"]; ok && len(ps) > 0 {
			a.ResponseStatus = partstatToResponse(ps[0])
		}
	}
	return a, true
}

func mailtoEmail(v string) string {
	v = strings.TrimSpace(v)
	if strings.HasPrefix(strings.ToLower(v), "mailto:") {
		v = v[len("mailto:"):]
	}
	if !strings.Contains(v, "@") {
		return ""
	}
	return strings.ToLower(v)
}

// partstatToResponse maps iCalendar participation status onto the
// Calendar API response vocabulary the rest of the pipeline uses.
func partstatToResponse(partstat string) string {
	switch strings.ToUpper(partstat) {
	case "ACCEPTED":
		return "accepted"
	case "DECLINED":
		return "declined"
	case "TENTATIVE":
		return "tentative"
	case "NEEDS-ACTION":
		return "needsAction"
	default:
		return ""
	}
}

// parseICSTime parses basic DATE, DATE-TIME, and UTC forms.
func parseICSTime(v string, loc *time.Location) (time.Time, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return time.Time{}, errors.New("empty time value")
	}
	if loc == nil {
		loc = time.UTC
	}
	if strings.HasSuffix(v, "Z") {
		return time.Parse("20060102T150405Z", v)
	}
	if strings.Contains(v, "T") {
		return time.ParseInLocation("20060102T150405", v, loc)
	}
	return time.ParseInLocation("20060102", v, loc)
}
