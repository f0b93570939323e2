package ics

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	ical "github.com/arran4/golang-ical"

	"chronosync/internal/model"
)

const productID = "-//chronosync//agenda//EN"

// Encode renders records as an iCalendar feed of all-day events.
func Encode(name string, records []model.EventRecord, stamp time.Time) string {
	cal := ical.NewCalendar()
	cal.SetProductId(productID)
	cal.SetMethod(ical.MethodPublish)
	if name != "" {
		cal.SetXWRCalName(name)
	}

	for _, r := range records {
		if r.Title == "" || r.Date.IsZero() {
			continue
		}
		day := r.Date.Time(time.UTC)
		ev := cal.AddEvent(recordUID(r))
		ev.SetDtStampTime(stamp.UTC())
		ev.SetAllDayStartAt(day)
		ev.SetAllDayEndAt(day.AddDate(0, 0, 1))
		ev.SetSummary(r.Title)
		if r.Description != "" {
			ev.SetDescription(r.Description)
		}
		for _, t := range r.Types {
			ev.AddProperty(ical.ComponentPropertyCategories, t)
		}
		if r.SourceLabel != "" {
			ev.AddProperty(ical.ComponentPropertyCategories, r.SourceLabel)
		}
	}
	return cal.Serialize()
}

// recordUID is stable for the same source, date and title so calendar
// clients update instead of duplicating on re-subscribe.
func recordUID(r model.EventRecord) string {
	h := sha256.New()
	h.Write([]byte(string(r.SourceKind) + ":" + r.SourceID))
	h.Write([]byte{0})
	h.Write([]byte(r.Date.String()))
	h.Write([]byte{0})
	h.Write([]byte(r.Title))
	return hex.EncodeToString(h.Sum(nil)[:16]) + "@chronosync"
}
