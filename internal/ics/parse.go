package ics

import (
	"bytes"
	"errors"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"

	appLog "chronosync/internal/log"
	"chronosync/internal/model"
	"chronosync/internal/store"
)

// ParsedEvent is one VEVENT reduced to what a custom calendar can hold.
type ParsedEvent struct {
	UID         string
	Summary     string
	Description string
	Categories  []string

	Start  model.CalendarDate
	End    model.CalendarDate // inclusive last day, zero for single-day events
	AllDay bool
	// Millisecond epoch times of timed events.
	StartMillis int64
	EndMillis   int64

	RawRRule string
	ExDates  []model.CalendarDate
}

// ParseICS parses an iCalendar payload. Timed events are converted to loc
// before their day is taken. VEVENTs without a summary or start are logged
// and skipped; RECURRENCE-ID overrides are skipped because custom calendars
// have no per-instance storage.
func ParseICS(body []byte, loc *time.Location) ([]ParsedEvent, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, errors.New("empty ICS body")
	}
	if !bytes.Contains(body, []byte("BEGIN:VCALENDAR")) {
		return nil, errors.New("not an iCalendar payload")
	}
	if loc == nil {
		loc = time.Local
	}

	cal, err := ical.ParseCalendar(bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	events := make([]ParsedEvent, 0)
	for _, comp := range cal.Events() {
		if comp.GetProperty("RECURRENCE-ID") != nil {
			continue
		}
		ev, perr := parseVEvent(comp, loc)
		if perr != nil {
			appLog.Debug("ics vevent skipped", "reason", perr.Error())
			continue
		}
		events = append(events, ev)
	}

	appLog.Info("ics parse completed", "event_count", len(events))
	return events, nil
}

func parseVEvent(ve *ical.VEvent, loc *time.Location) (ParsedEvent, error) {
	var out ParsedEvent

	if p := ve.GetProperty(ical.ComponentPropertyUniqueId); p != nil {
		out.UID = strings.TrimSpace(p.Value)
	}
	if p := ve.GetProperty(ical.ComponentPropertySummary); p != nil {
		out.Summary = strings.TrimSpace(p.Value)
	}
	if out.Summary == "" {
		return out, errors.New("missing SUMMARY")
	}
	if p := ve.GetProperty(ical.ComponentPropertyDescription); p != nil {
		out.Description = p.Value
	}
	for _, p := range ve.GetProperties(ical.ComponentPropertyCategories) {
		for _, c := range strings.Split(p.Value, ",") {
			if c = strings.TrimSpace(c); c != "" {
				out.Categories = append(out.Categories, c)
			}
		}
	}

	dtStart := ve.GetProperty(ical.ComponentPropertyDtStart)
	if dtStart == nil {
		return out, errors.New("missing DTSTART")
	}
	out.AllDay = isDateValue(dtStart)

	if out.AllDay {
		start, err := ve.GetAllDayStartAt()
		if err != nil {
			return out, err
		}
		out.Start = model.Date(start.Year(), start.Month(), start.Day())
		// DTEND of an all-day event is exclusive.
		if end, err := ve.GetAllDayEndAt(); err == nil {
			last := model.Date(end.Year(), end.Month(), end.Day()).AddDays(-1)
			if last.After(out.Start) {
				out.End = last
			}
		}
	} else {
		start, err := ve.GetStartAt()
		if err != nil {
			return out, err
		}
		out.Start = model.FromTime(start.In(loc))
		out.StartMillis = start.UnixMilli()
		if end, err := ve.GetEndAt(); err == nil {
			out.EndMillis = end.UnixMilli()
			last := model.FromTime(end.In(loc))
			if last.After(out.Start) {
				out.End = last
			}
		}
	}

	if p := ve.GetProperty(ical.ComponentPropertyRrule); p != nil {
		out.RawRRule = p.Value
	}
	for _, p := range ve.GetProperties(ical.ComponentPropertyExdate) {
		for _, part := range strings.Split(p.Value, ",") {
			if t, err := parseICSTime(part, loc); err == nil {
				out.ExDates = append(out.ExDates, model.FromTime(t))
			}
		}
	}

	return out, nil
}

// Doc converts the event into the stored document shape. The UID becomes
// the document id so importing the same feed twice updates in place.
func (e ParsedEvent) Doc() store.EventDoc {
	doc := store.EventDoc{
		ID:          e.UID,
		Title:       e.Summary,
		Description: e.Description,
		Date:        &store.DateField{ISO: e.Start.String()},
		TimeStart:   e.StartMillis,
		TimeEnd:     e.EndMillis,
		Type:        e.Categories,
	}
	if !e.End.IsZero() {
		doc.DateStart = &store.DateField{ISO: e.Start.String()}
		doc.DateEnd = &store.DateField{ISO: e.End.String()}
	}
	if e.RawRRule != "" {
		doc.Repeat = []string{e.RawRRule}
	}
	for _, d := range e.ExDates {
		doc.ExDates = append(doc.ExDates, d.String())
	}
	return doc
}

func isDateValue(p *ical.IANAProperty) bool {
	if vs, ok := p.ICalParameters["VALUE"]; ok && len(vs) > 0 && strings.EqualFold(vs[0], "DATE") {
		return true
	}
	return !strings.Contains(p.Value, "T")
}

// parseICSTime parses the basic DATE / DATE-TIME / UTC forms used by EXDATE.
func parseICSTime(v string, loc *time.Location) (time.Time, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return time.Time{}, errors.New("empty time value")
	}
	if strings.HasSuffix(v, "Z") {
		t, err := time.Parse("20060102T150405Z", v)
		return t.In(loc), err
	}
	if strings.Contains(v, "T") {
		return time.ParseInLocation("20060102T150405", v, loc)
	}
	return time.ParseInLocation("20060102", v, loc)
}
