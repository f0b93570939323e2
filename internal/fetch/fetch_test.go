package fetch

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chronosync/internal/holidays"
	"chronosync/internal/metrics"
	"chronosync/internal/model"
	"chronosync/internal/store"
)

type fakeHolidays struct {
	mu    sync.Mutex
	calls []int
	byYr  map[int][]holidays.Holiday
	fail  map[int]error
	delay time.Duration
}

func (f *fakeHolidays) Holidays(ctx context.Context, country string, year int) ([]holidays.Holiday, error) {
	f.mu.Lock()
	f.calls = append(f.calls, year)
	f.mu.Unlock()
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err := f.fail[year]; err != nil {
		return nil, err
	}
	return f.byYr[year], nil
}

type fakeEvents struct {
	docs map[string][]store.EventDoc
	err  error
}

func (f *fakeEvents) ListEvents(ctx context.Context, id string) ([]store.EventDoc, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.docs[id], nil
}

func hol(name, iso string) holidays.Holiday {
	return holidays.Holiday{Name: name, Date: &holidays.DateInfo{ISO: iso}}
}

func TestFetchPublicOneRequestPerYear(t *testing.T) {
	api := &fakeHolidays{byYr: map[int][]holidays.Holiday{
		2024: {hol("Day of Goodwill", "2024-12-26")},
		2025: {hol("New Year's Day", "2025-01-01"), {Name: "", Date: &holidays.DateInfo{ISO: "2025-01-02"}}},
	}}
	f := New(api, nil, time.Second, metrics.New())

	src := model.PublicHolidays("za", "South Africa")
	recs := f.Fetch(context.Background(), src, []int{2025, 2024, 2025})

	assert.ElementsMatch(t, []int{2024, 2025}, api.calls)
	require.Len(t, recs, 2)
	assert.Equal(t, "Day of Goodwill", recs[0].Title, "years are merged in ascending order")
	assert.Equal(t, "New Year's Day", recs[1].Title)
	assert.Equal(t, "South Africa", recs[1].SourceLabel)
	assert.Equal(t, "ZA", recs[1].SourceID)
	assert.Equal(t, model.SourcePublic, recs[1].SourceKind)
}

func TestFetchPublicYearFailureIsIndependent(t *testing.T) {
	api := &fakeHolidays{
		byYr: map[int][]holidays.Holiday{2026: {hol("New Year's Day", "2026-01-01")}},
		fail: map[int]error{2025: errors.New("boom")},
	}
	f := New(api, nil, time.Second, nil)

	recs := f.Fetch(context.Background(), model.PublicHolidays("ZA", ""), []int{2025, 2026})
	require.Len(t, recs, 1)
	assert.Equal(t, model.Date(2026, time.January, 1), recs[0].Date)
}

func TestFetchPublicTimeoutOmits(t *testing.T) {
	api := &fakeHolidays{delay: time.Second}
	f := New(api, nil, 20*time.Millisecond, nil)

	start := time.Now()
	recs := f.Fetch(context.Background(), model.PublicHolidays("ZA", ""), []int{2025})
	assert.Empty(t, recs)
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}

func TestFetchCustomDropsMalformedAndIgnoresYears(t *testing.T) {
	events := &fakeEvents{docs: map[string][]store.EventDoc{
		"UM-1": {
			{ID: "a", Title: "Dentist", Date: &store.DateField{ISO: "2030-02-03"}},
			{ID: "b", Name: "Legacy name", Day: "2025-03-04"},
			{ID: "c", Title: "No date"},
			{ID: "d", Title: "Bad date", Date: &store.DateField{ISO: "03/04/2025"}},
			{ID: "e", Title: "Span", DateStart: &store.DateField{ISO: "2025-06-01"}},
		},
	}}
	f := New(nil, events, time.Second, nil)

	recs := f.Fetch(context.Background(), model.CustomCalendar("UM-1", "Family"), []int{2025})
	require.Len(t, recs, 3)
	assert.Equal(t, "Dentist", recs[0].Title, "one-off records outside the years are kept")
	assert.Equal(t, "Legacy name", recs[1].Title)
	assert.Equal(t, model.Date(2025, time.March, 4), recs[1].Date)
	assert.Equal(t, model.Date(2025, time.June, 1), recs[2].Date)
	assert.Equal(t, "Family", recs[2].SourceLabel)
}

func TestFetchCustomExpandsRepeats(t *testing.T) {
	events := &fakeEvents{docs: map[string][]store.EventDoc{
		"UM-1": {
			{ID: "bday", Title: "Birthday", Date: &store.DateField{ISO: "1990-07-15"}, Repeat: []string{"annually"}},
			{ID: "weird", Title: "Weird", Date: &store.DateField{ISO: "2025-01-01"}, Repeat: []string{"sometimes"}},
		},
	}}
	f := New(nil, events, time.Second, nil)

	recs := f.Fetch(context.Background(), model.CustomCalendar("UM-1", ""), []int{2025, 2026})
	require.Len(t, recs, 3)
	assert.Equal(t, model.Date(2025, time.July, 15), recs[0].Date)
	assert.Equal(t, model.Date(2026, time.July, 15), recs[1].Date)
	assert.Equal(t, "Weird", recs[2].Title, "unknown rule keeps the base date")
	assert.Equal(t, model.Date(2025, time.January, 1), recs[2].Date)

	recs = f.Fetch(context.Background(), model.CustomCalendar("UM-1", ""), nil)
	require.Len(t, recs, 2)
	assert.Equal(t, model.Date(1990, time.July, 15), recs[0].Date)
}

func TestFetchCustomStoreFailure(t *testing.T) {
	f := New(nil, &fakeEvents{err: errors.New("db down")}, time.Second, nil)
	assert.Empty(t, f.Fetch(context.Background(), model.CustomCalendar("UM-1", ""), nil))
}

func TestFetchInvalidSource(t *testing.T) {
	f := New(&fakeHolidays{}, &fakeEvents{}, time.Second, nil)
	assert.Empty(t, f.Fetch(context.Background(), model.EventSource{Kind: "other", ID: "x"}, []int{2025}))
	assert.Empty(t, f.Fetch(context.Background(), model.PublicHolidays("", ""), []int{2025}))
}

func TestNormalizeHoliday(t *testing.T) {
	src := model.PublicHolidays("US", "United States")

	r, ok := NormalizeHoliday(holidays.Holiday{
		Name: "June Solstice", Description: "Season", Type: []string{"Season"},
		Date: &holidays.DateInfo{ISO: "2025-06-21T04:42:00-04:00"},
	}, src)
	require.True(t, ok)
	assert.Equal(t, model.Date(2025, time.June, 21), r.Date)
	assert.Equal(t, []string{"Season"}, r.Types)

	r, ok = NormalizeHoliday(holidays.Holiday{Name: "Range", DateStart: &holidays.DateInfo{ISO: "2025-09-01"}}, src)
	require.True(t, ok)
	assert.Equal(t, model.Date(2025, time.September, 1), r.Date)

	_, ok = NormalizeHoliday(holidays.Holiday{Name: "No date"}, src)
	assert.False(t, ok)
	_, ok = NormalizeHoliday(holidays.Holiday{Name: "  ", Date: &holidays.DateInfo{ISO: "2025-01-01"}}, src)
	assert.False(t, ok)
}
