package agenda

import (
	"strings"

	"chronosync/internal/model"
)

// NoUpcoming is shown for a source with nothing on or after today.
const NoUpcoming = "No upcoming events"

const nextLayout = "Mon, 02 Jan"

// NextEvent returns the earliest record dated on or after ref. Records on
// the same day are ordered by title, then source label, then source id, so
// the answer does not depend on input order.
func NextEvent(records []model.EventRecord, ref model.CalendarDate) (model.EventRecord, bool) {
	var (
		best  model.EventRecord
		found bool
	)
	for _, r := range records {
		if r.Date.Before(ref) {
			continue
		}
		if !found || recordLess(r, best) {
			best, found = r, true
		}
	}
	return best, found
}

// FormatNext renders the dashboard line for a slot: "Freedom Day — Sun, 27 Apr".
func FormatNext(r model.EventRecord, ok bool) string {
	if !ok {
		return NoUpcoming
	}
	return r.Title + " — " + r.Date.Format(nextLayout)
}

func recordLess(a, b model.EventRecord) bool {
	if c := a.Date.Compare(b.Date); c != 0 {
		return c < 0
	}
	if c := strings.Compare(a.Title, b.Title); c != 0 {
		return c < 0
	}
	if c := strings.Compare(a.SourceLabel, b.SourceLabel); c != 0 {
		return c < 0
	}
	return a.SourceID < b.SourceID
}
