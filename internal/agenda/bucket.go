package agenda

import (
	"slices"
	"strings"

	"chronosync/internal/model"
)

// Bucket groups records by day. Records of a day keep insertion order;
// Day returns them sorted for display.
type Bucket struct {
	days map[model.CalendarDate][]model.EventRecord
	n    int
}

func NewBucket() *Bucket {
	return &Bucket{days: make(map[model.CalendarDate][]model.EventRecord)}
}

func (b *Bucket) Add(r model.EventRecord) {
	b.days[r.Date] = append(b.days[r.Date], r)
	b.n++
}

// Day returns a copy of the records of d sorted by title, then source label.
func (b *Bucket) Day(d model.CalendarDate) []model.EventRecord {
	recs := slices.Clone(b.days[d])
	slices.SortStableFunc(recs, func(x, y model.EventRecord) int {
		if c := strings.Compare(x.Title, y.Title); c != 0 {
			return c
		}
		return strings.Compare(x.SourceLabel, y.SourceLabel)
	})
	return recs
}

// Cell is what a grid square shows: whether there is anything that day,
// whether there is more than one thing, and a short source tag.
type Cell struct {
	Date      model.CalendarDate `json:"date"`
	InMonth   bool               `json:"in_month"`
	HasEvents bool               `json:"has_events"`
	Multiple  bool               `json:"multiple"`
	Count     int                `json:"count"`
	Tag       string             `json:"tag,omitempty"`
}

func (b *Bucket) Cell(d model.CalendarDate) Cell {
	recs := b.days[d]
	c := Cell{Date: d, Count: len(recs), HasEvents: len(recs) > 0, Multiple: len(recs) > 1}
	if len(recs) == 0 {
		return c
	}
	c.Tag = sourceTag(recs[0])
	if c.Multiple {
		c.Tag += "+"
	}
	return c
}

// Cells summarizes every grid position of w.
func (b *Bucket) Cells(w MonthWindow) []Cell {
	days := w.Cells()
	out := make([]Cell, len(days))
	for i, gd := range days {
		out[i] = b.Cell(gd.Date)
		out[i].InMonth = gd.InMonth
	}
	return out
}

func (b *Bucket) Len() int { return b.n }

// Dates returns the days holding at least one record, ascending.
func (b *Bucket) Dates() []model.CalendarDate {
	out := make([]model.CalendarDate, 0, len(b.days))
	for d := range b.days {
		out = append(out, d)
	}
	slices.SortFunc(out, model.CalendarDate.Compare)
	return out
}

// Records returns all records, by day and then in display order.
func (b *Bucket) Records() []model.EventRecord {
	out := make([]model.EventRecord, 0, b.n)
	for _, d := range b.Dates() {
		out = append(out, b.Day(d)...)
	}
	return out
}

// sourceTag is "C" for custom calendars and the first two letters of the
// source label, upper-cased, for public holidays.
func sourceTag(r model.EventRecord) string {
	if r.SourceKind == model.SourceCustom {
		return "C"
	}
	label := strings.TrimSpace(r.SourceLabel)
	if label == "" {
		label = r.SourceID
	}
	runes := []rune(label)
	if len(runes) > 2 {
		runes = runes[:2]
	}
	return strings.ToUpper(string(runes))
}
