package fetch

import (
	"strings"

	"chronosync/internal/holidays"
	"chronosync/internal/model"
	"chronosync/internal/store"
)

// RecordSchemaV1 is the raw record layout the normalizers understand:
//
//	title:  "title", else "name"
//	date:   "date.iso", else "date" as a plain string, else "day",
//	        else "date_start.iso" / "dateStart.iso"
//
// Anything else in the raw record is carried as description or types, or
// ignored.
const RecordSchemaV1 = 1

// NormalizeHoliday converts a holiday API entry. ok is false when no title or
// no parsable date can be resolved.
func NormalizeHoliday(h holidays.Holiday, src model.EventSource) (model.EventRecord, bool) {
	title := strings.TrimSpace(h.Name)
	if title == "" {
		return model.EventRecord{}, false
	}
	date, ok := firstDate(isoOf(h.Date), isoOf(h.DateStart))
	if !ok {
		return model.EventRecord{}, false
	}
	return model.EventRecord{
		Title:       title,
		Date:        date,
		SourceLabel: src.Label(),
		SourceKind:  src.Kind,
		SourceID:    src.ID,
		Description: h.Description,
		Types:       h.Type,
	}, true
}

// NormalizeStored converts a custom calendar document.
func NormalizeStored(d store.EventDoc, src model.EventSource) (model.EventRecord, bool) {
	title := strings.TrimSpace(d.Title)
	if title == "" {
		title = strings.TrimSpace(d.Name)
	}
	if title == "" {
		return model.EventRecord{}, false
	}
	date, ok := firstDate(fieldISO(d.Date), d.Day, fieldISO(d.DateStart))
	if !ok {
		return model.EventRecord{}, false
	}
	return model.EventRecord{
		Title:       title,
		Date:        date,
		SourceLabel: src.Label(),
		SourceKind:  src.Kind,
		SourceID:    src.ID,
		Description: d.Description,
		Types:       d.Type,
	}, true
}

// firstDate returns the first candidate that parses. A present but broken
// value does not stop the search.
func firstDate(candidates ...string) (model.CalendarDate, bool) {
	for _, c := range candidates {
		if strings.TrimSpace(c) == "" {
			continue
		}
		if d, err := model.ParseDate(c); err == nil {
			return d, true
		}
	}
	return model.CalendarDate{}, false
}

func isoOf(d *holidays.DateInfo) string {
	if d == nil {
		return ""
	}
	return d.ISO
}

func fieldISO(d *store.DateField) string {
	if d == nil {
		return ""
	}
	return d.ISO
}
