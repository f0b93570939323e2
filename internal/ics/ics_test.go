package ics

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chronosync/internal/model"
)

const sample = "BEGIN:VCALENDAR\r\n" +
	"VERSION:2.0\r\n" +
	"PRODID:-//test//EN\r\n" +
	"BEGIN:VEVENT\r\n" +
	"UID:allday-1\r\n" +
	"DTSTAMP:20250101T000000Z\r\n" +
	"DTSTART;VALUE=DATE:20250321\r\n" +
	"DTEND;VALUE=DATE:20250322\r\n" +
	"SUMMARY:Human Rights Day\r\n" +
	"CATEGORIES:Holiday\r\n" +
	"END:VEVENT\r\n" +
	"BEGIN:VEVENT\r\n" +
	"UID:trip-1\r\n" +
	"DTSTAMP:20250101T000000Z\r\n" +
	"DTSTART;VALUE=DATE:20250410\r\n" +
	"DTEND;VALUE=DATE:20250413\r\n" +
	"SUMMARY:Trip\r\n" +
	"END:VEVENT\r\n" +
	"BEGIN:VEVENT\r\n" +
	"UID:standup\r\n" +
	"DTSTAMP:20250101T000000Z\r\n" +
	"DTSTART:20250106T223000Z\r\n" +
	"DTEND:20250106T230000Z\r\n" +
	"RRULE:FREQ=WEEKLY;BYDAY=MO\r\n" +
	"EXDATE:20250113T223000Z\r\n" +
	"SUMMARY:Standup\r\n" +
	"END:VEVENT\r\n" +
	"BEGIN:VEVENT\r\n" +
	"UID:nosummary\r\n" +
	"DTSTAMP:20250101T000000Z\r\n" +
	"DTSTART;VALUE=DATE:20250101\r\n" +
	"END:VEVENT\r\n" +
	"END:VCALENDAR\r\n"

func TestParseICS(t *testing.T) {
	loc, err := time.LoadLocation("Africa/Johannesburg")
	require.NoError(t, err)

	events, err := ParseICS([]byte(sample), loc)
	require.NoError(t, err)
	require.Len(t, events, 3)

	hr := events[0]
	assert.Equal(t, "allday-1", hr.UID)
	assert.True(t, hr.AllDay)
	assert.Equal(t, model.Date(2025, time.March, 21), hr.Start)
	assert.True(t, hr.End.IsZero(), "single all-day event has no range")
	assert.Equal(t, []string{"Holiday"}, hr.Categories)

	trip := events[1]
	assert.Equal(t, model.Date(2025, time.April, 12), trip.End)

	standup := events[2]
	assert.False(t, standup.AllDay)
	// 22:30 UTC is already the next day in Johannesburg.
	assert.Equal(t, model.Date(2025, time.January, 7), standup.Start)
	assert.Equal(t, "FREQ=WEEKLY;BYDAY=MO", standup.RawRRule)
	assert.Equal(t, []model.CalendarDate{model.Date(2025, time.January, 14)}, standup.ExDates)

	doc := trip.Doc()
	assert.Equal(t, "trip-1", doc.ID)
	assert.Equal(t, "2025-04-10", doc.Date.ISO)
	assert.Equal(t, "2025-04-12", doc.DateEnd.ISO)
}

func TestParseICSRejectsEmpty(t *testing.T) {
	_, err := ParseICS([]byte("  "), time.UTC)
	assert.Error(t, err)
}

func TestExpandKeywords(t *testing.T) {
	start := model.Date(2024, time.February, 29)

	got, err := ExpandYears(Rule{Start: start, Repeat: "annually"}, []int{2024, 2025, 2028})
	require.NoError(t, err)
	assert.Equal(t, []model.CalendarDate{start, model.Date(2028, time.February, 29)}, got)

	got, err = Expand(Rule{Start: model.Date(2025, time.January, 30), Repeat: "weekly"},
		model.Date(2025, time.February, 1), model.Date(2025, time.February, 28))
	require.NoError(t, err)
	assert.Equal(t, []model.CalendarDate{
		model.Date(2025, time.February, 6),
		model.Date(2025, time.February, 13),
		model.Date(2025, time.February, 20),
		model.Date(2025, time.February, 27),
	}, got)
}

func TestExpandRawRuleWithExDate(t *testing.T) {
	r := Rule{
		Start:   model.Date(2025, time.March, 3),
		Repeat:  "RRULE:FREQ=DAILY;COUNT=5",
		ExDates: []model.CalendarDate{model.Date(2025, time.March, 4)},
	}
	got, err := ExpandYears(r, []int{2025})
	require.NoError(t, err)
	assert.Equal(t, []model.CalendarDate{
		model.Date(2025, time.March, 3),
		model.Date(2025, time.March, 5),
		model.Date(2025, time.March, 6),
		model.Date(2025, time.March, 7),
	}, got)
}

func TestExpandCapAndErrors(t *testing.T) {
	got, err := ExpandYears(Rule{Start: model.Date(2025, time.January, 1), Repeat: "daily", MaxOccurrences: 10}, []int{2025})
	require.NoError(t, err)
	assert.Len(t, got, 10)

	_, err = ExpandYears(Rule{Start: model.Date(2025, time.January, 1), Repeat: "fortnightly"}, []int{2025})
	assert.ErrorIs(t, err, ErrUnknownRepeat)

	got, err = ExpandYears(Rule{Start: model.Date(2025, time.January, 1), Repeat: "daily"}, nil)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestEncodeRoundTripsThroughParser(t *testing.T) {
	records := []model.EventRecord{
		{Title: "Freedom Day", Date: model.Date(2025, time.April, 27), SourceLabel: "South Africa", SourceKind: model.SourcePublic, SourceID: "ZA"},
		{Title: "", Date: model.Date(2025, time.April, 28)},
	}
	out := Encode("April", records, time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	assert.Contains(t, out, "BEGIN:VCALENDAR")
	assert.Contains(t, out, "X-WR-CALNAME:April")
	assert.Equal(t, 1, strings.Count(out, "BEGIN:VEVENT"))

	events, err := ParseICS([]byte(out), time.UTC)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "Freedom Day", events[0].Summary)
	assert.Equal(t, model.Date(2025, time.April, 27), events[0].Start)
	assert.Equal(t, recordUID(records[0]), events[0].UID)
}

func TestFeedFetcher(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing.ics" {
			http.NotFound(w, r)
			return
		}
		fmt.Fprint(w, sample)
	}))
	defer srv.Close()

	f := NewFeedFetcher(time.Second)
	body, err := f.Fetch(context.Background(), srv.URL+"/cal.ics?token=secret")
	require.NoError(t, err)
	assert.Equal(t, sample, string(body))

	_, err = f.Fetch(context.Background(), srv.URL+"/missing.ics?token=secret")
	require.Error(t, err)
	assert.NotContains(t, err.Error(), "secret")

	_, err = f.Fetch(context.Background(), "file:///etc/passwd")
	assert.ErrorContains(t, err, "unsupported scheme")
}
