package model

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

const dateLayout = "2006-01-02"

// CalendarDate is a day on the calendar with no time or zone component.
type CalendarDate struct {
	Year  int
	Month time.Month
	Day   int
}

// Date builds a CalendarDate, normalizing overflow the way time.Date does
// (e.g. March 32 becomes April 1).
func Date(year int, month time.Month, day int) CalendarDate {
	return FromTime(time.Date(year, month, day, 12, 0, 0, 0, time.UTC))
}

// FromTime takes the calendar day of t in t's own location.
func FromTime(t time.Time) CalendarDate {
	y, m, d := t.Date()
	return CalendarDate{Year: y, Month: m, Day: d}
}

// Today returns the current date in loc (time.Local when nil).
func Today(loc *time.Location) CalendarDate {
	if loc == nil {
		loc = time.Local
	}
	return FromTime(time.Now().In(loc))
}

// ParseDate parses "YYYY-MM-DD". A longer ISO-8601 date-time is accepted
// when its first ten characters form a valid date.
func ParseDate(s string) (CalendarDate, error) {
	s = strings.TrimSpace(s)
	if len(s) > len(dateLayout) && s[len(dateLayout)] == 'T' {
		s = s[:len(dateLayout)]
	}
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return CalendarDate{}, fmt.Errorf("parse date %q: %w", s, err)
	}
	return FromTime(t), nil
}

// Time returns midnight of the date in loc (UTC when nil).
func (d CalendarDate) Time(loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, loc)
}

func (d CalendarDate) IsZero() bool { return d == CalendarDate{} }

func (d CalendarDate) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, int(d.Month), d.Day)
}

// Compare returns -1, 0 or +1.
func (d CalendarDate) Compare(o CalendarDate) int {
	switch {
	case d.Year != o.Year:
		return cmpInt(d.Year, o.Year)
	case d.Month != o.Month:
		return cmpInt(int(d.Month), int(o.Month))
	default:
		return cmpInt(d.Day, o.Day)
	}
}

func (d CalendarDate) Before(o CalendarDate) bool { return d.Compare(o) < 0 }
func (d CalendarDate) After(o CalendarDate) bool  { return d.Compare(o) > 0 }

func (d CalendarDate) AddDays(n int) CalendarDate {
	return Date(d.Year, d.Month, d.Day+n)
}

func (d CalendarDate) Weekday() time.Weekday {
	return d.Time(time.UTC).Weekday()
}

// Format renders the date with a time layout (e.g. "Mon, 02 Jan").
func (d CalendarDate) Format(layout string) string {
	return d.Time(time.UTC).Format(layout)
}

func (d CalendarDate) MarshalText() ([]byte, error) {
	if d.IsZero() {
		return []byte{}, nil
	}
	return []byte(d.String()), nil
}

func (d *CalendarDate) UnmarshalText(b []byte) error {
	if len(b) == 0 {
		*d = CalendarDate{}
		return nil
	}
	parsed, err := ParseDate(string(b))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

func cmpInt(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// DateRange is an inclusive range of calendar days.
type DateRange struct {
	From CalendarDate `json:"from"`
	To   CalendarDate `json:"to"`
}

func (r DateRange) Contains(d CalendarDate) bool {
	return !d.Before(r.From) && !d.After(r.To)
}

// Years lists the calendar years overlapping the range, ascending.
func (r DateRange) Years() []int {
	if r.To.Before(r.From) {
		return nil
	}
	years := make([]int, 0, r.To.Year-r.From.Year+1)
	for y := r.From.Year; y <= r.To.Year; y++ {
		years = append(years, y)
	}
	return years
}

// SourceKind tags where events come from.
type SourceKind string

const (
	SourcePublic SourceKind = "public"
	SourceCustom SourceKind = "custom"
)

func (k SourceKind) Valid() bool {
	return k == SourcePublic || k == SourceCustom
}

// EventSource is either a public-holidays feed for a country (ID is the
// ISO-3166 code) or a user calendar (ID is the calendar id). Name is the
// display label and does not take part in identity.
type EventSource struct {
	Kind SourceKind `json:"kind"`
	ID   string     `json:"id"`
	Name string     `json:"name,omitempty"`
}

func PublicHolidays(countryCode, name string) EventSource {
	return EventSource{Kind: SourcePublic, ID: strings.ToUpper(strings.TrimSpace(countryCode)), Name: name}
}

func CustomCalendar(calendarID, name string) EventSource {
	return EventSource{Kind: SourceCustom, ID: strings.TrimSpace(calendarID), Name: name}
}

// Key identifies the source regardless of its display name.
func (s EventSource) Key() string {
	return string(s.Kind) + ":" + s.ID
}

func (s EventSource) Label() string {
	if s.Name != "" {
		return s.Name
	}
	return s.ID
}

var (
	ErrSourceKind = errors.New("source kind must be public or custom")
	ErrSourceID   = errors.New("source id is empty")
)

func (s EventSource) Validate() error {
	if !s.Kind.Valid() {
		return ErrSourceKind
	}
	if strings.TrimSpace(s.ID) == "" {
		return ErrSourceID
	}
	return nil
}

// EventRecord is a normalized, all-day event from any source.
type EventRecord struct {
	Title       string       `json:"title"`
	Date        CalendarDate `json:"date"`
	SourceLabel string       `json:"source_label"`
	SourceKind  SourceKind   `json:"source_kind"`
	SourceID    string       `json:"source_id"`
	Description string       `json:"description,omitempty"`
	Types       []string     `json:"types,omitempty"`
}

// Country is an entry of the holiday provider's country list.
type Country struct {
	Name    string `json:"country_name"`
	ISOCode string `json:"iso-3166"`
}
