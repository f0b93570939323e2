package agenda

import (
	"fmt"
	"time"

	"chronosync/internal/model"
)

// MonthWindow is a calendar month plus the padding days that complete its
// first and last week in a seven-column grid.
type MonthWindow struct {
	Year      int                `json:"year"`
	Month     time.Month         `json:"month"`
	First     model.CalendarDate `json:"first"`
	Last      model.CalendarDate `json:"last"`
	GridStart model.CalendarDate `json:"grid_start"`
	GridEnd   model.CalendarDate `json:"grid_end"`
	WeekStart time.Weekday       `json:"week_start"`
}

// GridDay is one cell position of the month grid.
type GridDay struct {
	Date    model.CalendarDate `json:"date"`
	InMonth bool               `json:"in_month"`
}

func NewMonthWindow(year int, month time.Month, weekStart time.Weekday) MonthWindow {
	first := model.Date(year, month, 1)
	last := model.Date(year, month+1, 0)

	lead := (int(first.Weekday()) - int(weekStart) + 7) % 7
	trail := (int(weekStart) + 6 - int(last.Weekday()) + 7) % 7

	return MonthWindow{
		Year:      first.Year,
		Month:     first.Month,
		First:     first,
		Last:      last,
		GridStart: first.AddDays(-lead),
		GridEnd:   last.AddDays(trail),
		WeekStart: weekStart,
	}
}

// MonthOf returns the window containing d.
func MonthOf(d model.CalendarDate, weekStart time.Weekday) MonthWindow {
	return NewMonthWindow(d.Year, d.Month, weekStart)
}

// Range is the month itself, without padding.
func (w MonthWindow) Range() model.DateRange {
	return model.DateRange{From: w.First, To: w.Last}
}

func (w MonthWindow) Grid() model.DateRange {
	return model.DateRange{From: w.GridStart, To: w.GridEnd}
}

// Cells lists every grid position, a multiple of seven.
func (w MonthWindow) Cells() []GridDay {
	var out []GridDay
	for d := w.GridStart; !d.After(w.GridEnd); d = d.AddDays(1) {
		out = append(out, GridDay{Date: d, InMonth: w.Range().Contains(d)})
	}
	return out
}

func (w MonthWindow) Next() MonthWindow {
	return NewMonthWindow(w.Year, w.Month+1, w.WeekStart)
}

func (w MonthWindow) Prev() MonthWindow {
	return NewMonthWindow(w.Year, w.Month-1, w.WeekStart)
}

func (w MonthWindow) String() string {
	return fmt.Sprintf("%04d-%02d", w.Year, int(w.Month))
}

// ParseMonth parses "YYYY-MM".
func ParseMonth(s string, weekStart time.Weekday) (MonthWindow, error) {
	t, err := time.Parse("2006-01", s)
	if err != nil {
		return MonthWindow{}, fmt.Errorf("parse month %q: %w", s, err)
	}
	return NewMonthWindow(t.Year(), t.Month(), weekStart), nil
}
