package ics

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/teambition/rrule-go"

	appLog "chronosync/internal/log"
	"chronosync/internal/model"
)

const defaultMaxOccurrences = 1000

// Repeat keywords stored on custom events.
const (
	RepeatDaily    = "daily"
	RepeatWeekly   = "weekly"
	RepeatMonthly  = "monthly"
	RepeatAnnually = "annually"
)

var ErrUnknownRepeat = errors.New("unknown repeat rule")

// Rule describes a repeating all-day event.
type Rule struct {
	Start model.CalendarDate
	// Repeat is a keyword (daily, weekly, monthly, annually/yearly) or a
	// raw RRULE value such as "FREQ=WEEKLY;BYDAY=MO,WE".
	Repeat  string
	ExDates []model.CalendarDate
	// MaxOccurrences caps the expansion; zero uses the default.
	MaxOccurrences int
}

// ParseRule builds the recurrence for r. The rule is anchored at r.Start.
func ParseRule(r Rule) (*rrule.RRule, error) {
	dtstart := r.Start.Time(time.UTC)
	spec := strings.TrimSpace(r.Repeat)

	var freq rrule.Frequency
	switch strings.ToLower(spec) {
	case RepeatDaily:
		freq = rrule.DAILY
	case RepeatWeekly:
		freq = rrule.WEEKLY
	case RepeatMonthly:
		freq = rrule.MONTHLY
	case RepeatAnnually, "yearly":
		freq = rrule.YEARLY
	default:
		spec = strings.TrimPrefix(spec, "RRULE:")
		if !strings.Contains(strings.ToUpper(spec), "FREQ=") {
			return nil, fmt.Errorf("%w: %q", ErrUnknownRepeat, r.Repeat)
		}
		rule, err := rrule.StrToRRule(spec)
		if err != nil {
			return nil, err
		}
		rule.DTStart(dtstart)
		return rule, nil
	}
	return rrule.NewRRule(rrule.ROption{Freq: freq, Dtstart: dtstart})
}

// Expand returns the occurrences of r that fall in [from, to], inclusive,
// in ascending order.
func Expand(r Rule, from, to model.CalendarDate) ([]model.CalendarDate, error) {
	if to.Before(from) {
		return nil, errors.New("expand: range end is before range start")
	}
	rule, err := ParseRule(r)
	if err != nil {
		return nil, err
	}

	var set rrule.Set
	set.RRule(rule)
	for _, ex := range r.ExDates {
		set.ExDate(ex.Time(time.UTC))
	}

	limit := r.MaxOccurrences
	if limit <= 0 {
		limit = defaultMaxOccurrences
	}

	times := set.Between(from.Time(time.UTC), to.Time(time.UTC), true)
	if len(times) > limit {
		appLog.Error("expand: truncated occurrences due to cap",
			errors.New("max occurrences reached"),
			"repeat", r.Repeat,
			"cap", limit,
		)
		times = times[:limit]
	}

	out := make([]model.CalendarDate, 0, len(times))
	for _, t := range times {
		out = append(out, model.FromTime(t))
	}
	return out, nil
}

// ExpandYears expands r over whole calendar years.
func ExpandYears(r Rule, years []int) ([]model.CalendarDate, error) {
	if len(years) == 0 {
		return nil, nil
	}
	lo, hi := years[0], years[0]
	for _, y := range years[1:] {
		lo = min(lo, y)
		hi = max(hi, y)
	}
	dates, err := Expand(r, model.Date(lo, time.January, 1), model.Date(hi, time.December, 31))
	if err != nil {
		return nil, err
	}
	wanted := make(map[int]bool, len(years))
	for _, y := range years {
		wanted[y] = true
	}
	out := dates[:0]
	for _, d := range dates {
		if wanted[d.Year] {
			out = append(out, d)
		}
	}
	return out, nil
}
