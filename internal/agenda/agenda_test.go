package agenda

import (
	"context"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chronosync/internal/model"
	"chronosync/internal/registry"
)

func d(y int, m time.Month, day int) model.CalendarDate { return model.Date(y, m, day) }

func rec(title string, date model.CalendarDate) model.EventRecord {
	return model.EventRecord{Title: title, Date: date, SourceLabel: "South Africa", SourceKind: model.SourcePublic, SourceID: "ZA"}
}

func TestNextEventScenario(t *testing.T) {
	records := []model.EventRecord{
		rec("A", d(2024, time.December, 31)),
		rec("B", d(2025, time.January, 1)),
		rec("C", d(2025, time.March, 1)),
	}
	got, ok := NextEvent(records, d(2025, time.January, 1))
	require.True(t, ok)
	assert.Equal(t, "B", got.Title)

	_, ok = NextEvent(nil, d(2025, time.January, 1))
	assert.False(t, ok)
	_, ok = NextEvent(records, d(2025, time.March, 2))
	assert.False(t, ok)
}

func TestNextEventProperty(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	ref := d(2025, time.June, 15)
	for iter := 0; iter < 200; iter++ {
		n := rng.Intn(12)
		records := make([]model.EventRecord, n)
		for i := range records {
			records[i] = rec(string(rune('A'+rng.Intn(5))), ref.AddDays(rng.Intn(40)-20))
		}
		got, ok := NextEvent(records, ref)

		anyUpcoming := false
		for _, r := range records {
			if !r.Date.Before(ref) {
				anyUpcoming = true
				if ok {
					assert.False(t, r.Date.Before(got.Date), "a closer record exists")
				}
			}
		}
		assert.Equal(t, anyUpcoming, ok)
		if ok {
			assert.False(t, got.Date.Before(ref))
		}
	}
}

func TestNextEventTieBreakIsOrderIndependent(t *testing.T) {
	day := d(2025, time.April, 27)
	a := model.EventRecord{Title: "Freedom Day", Date: day, SourceLabel: "South Africa", SourceID: "ZA"}
	b := model.EventRecord{Title: "Freedom Day", Date: day, SourceLabel: "Family", SourceID: "UM-1"}
	c := model.EventRecord{Title: "Braai", Date: day, SourceLabel: "Zeta", SourceID: "UM-2"}

	for _, order := range [][]model.EventRecord{{a, b, c}, {c, b, a}, {b, a, c}} {
		got, ok := NextEvent(order, day)
		require.True(t, ok)
		assert.Equal(t, "Braai", got.Title)
	}
	got, _ := NextEvent([]model.EventRecord{a, b}, day)
	assert.Equal(t, "Family", got.SourceLabel)
}

func TestFormatNext(t *testing.T) {
	assert.Equal(t, "Freedom Day — Sun, 27 Apr", FormatNext(rec("Freedom Day", d(2025, time.April, 27)), true))
	assert.Equal(t, NoUpcoming, FormatNext(model.EventRecord{}, false))
}

func TestMonthWindowPadding(t *testing.T) {
	// March 2025 starts on a Saturday and ends on a Monday.
	w := NewMonthWindow(2025, time.March, time.Sunday)
	assert.Equal(t, d(2025, time.March, 1), w.First)
	assert.Equal(t, d(2025, time.March, 31), w.Last)
	assert.Equal(t, d(2025, time.February, 23), w.GridStart)
	assert.Equal(t, d(2025, time.April, 5), w.GridEnd)

	cells := w.Cells()
	assert.Len(t, cells, 42)
	assert.Equal(t, time.Sunday, cells[0].Date.Weekday())
	assert.False(t, cells[0].InMonth)
	assert.True(t, cells[6].InMonth)

	mon := NewMonthWindow(2025, time.March, time.Monday)
	assert.Equal(t, d(2025, time.February, 24), mon.GridStart)
	assert.Equal(t, d(2025, time.April, 6), mon.GridEnd)

	// February 2026 fills exactly four Sunday-first weeks.
	feb := NewMonthWindow(2026, time.February, time.Sunday)
	assert.Equal(t, feb.First, feb.GridStart)
	assert.Equal(t, feb.Last, feb.GridEnd)
	assert.Len(t, feb.Cells(), 28)

	dec := NewMonthWindow(2025, time.December, time.Sunday)
	assert.Equal(t, []int{2025}, dec.Range().Years())
	assert.Equal(t, "2026-01", dec.Next().String())
	assert.Equal(t, "2025-11", dec.Prev().String())

	w2, err := ParseMonth("2025-03", time.Sunday)
	require.NoError(t, err)
	assert.Equal(t, w, w2)
	_, err = ParseMonth("March", time.Sunday)
	assert.Error(t, err)
}

func TestBucketCellsAndDayOrder(t *testing.T) {
	b := NewBucket()
	day := d(2025, time.March, 21)
	b.Add(model.EventRecord{Title: "Zulu", Date: day, SourceLabel: "south africa", SourceKind: model.SourcePublic})
	b.Add(model.EventRecord{Title: "Alpha", Date: day, SourceLabel: "Family", SourceKind: model.SourceCustom})
	b.Add(model.EventRecord{Title: "Solo", Date: d(2025, time.March, 2), SourceLabel: "Family", SourceKind: model.SourceCustom})

	c := b.Cell(day)
	assert.True(t, c.HasEvents)
	assert.True(t, c.Multiple)
	assert.Equal(t, "SO+", c.Tag)

	assert.Equal(t, "C", b.Cell(d(2025, time.March, 2)).Tag)
	assert.False(t, b.Cell(d(2025, time.March, 3)).HasEvents)

	list := b.Day(day)
	require.Len(t, list, 2)
	assert.Equal(t, "Alpha", list[0].Title)
	assert.Equal(t, 3, b.Len())
	assert.Equal(t, []model.CalendarDate{d(2025, time.March, 2), day}, b.Dates())

	cells := b.Cells(NewMonthWindow(2025, time.March, time.Sunday))
	assert.Len(t, cells, 42)
}

type mapFetcher map[string][]model.EventRecord

func (m mapFetcher) Fetch(ctx context.Context, src model.EventSource, years []int) []model.EventRecord {
	return m[src.Key()]
}

func TestAggregateSingleHoliday(t *testing.T) {
	za := model.PublicHolidays("ZA", "South Africa")
	f := mapFetcher{za.Key(): {
		rec("Human Rights Day", d(2025, time.March, 21)),
		rec("Freedom Day", d(2025, time.April, 27)),
		rec("Day of Goodwill", d(2025, time.February, 28)),
	}}
	b := Aggregate(context.Background(), f, NewMonthWindow(2025, time.March, time.Sunday), []model.EventSource{za})

	assert.Equal(t, 1, b.Len())
	assert.Equal(t, []model.CalendarDate{d(2025, time.March, 21)}, b.Dates())
	assert.Equal(t, "Human Rights Day", b.Day(d(2025, time.March, 21))[0].Title)
}

func TestAggregateKeepsEverythingInRangeAndIsIdempotent(t *testing.T) {
	za := model.PublicHolidays("ZA", "South Africa")
	fam := model.CustomCalendar("UM-1", "Family")
	f := mapFetcher{
		za.Key(): {rec("Human Rights Day", d(2025, time.March, 21)), rec("Freedom Day", d(2025, time.April, 27))},
		fam.Key(): {
			{Title: "Dentist", Date: d(2025, time.March, 21), SourceLabel: "Family", SourceKind: model.SourceCustom},
			{Title: "Trip", Date: d(2025, time.March, 31), SourceLabel: "Family", SourceKind: model.SourceCustom},
		},
	}
	w := NewMonthWindow(2025, time.March, time.Sunday)
	sources := []model.EventSource{za, fam}

	b1 := Aggregate(context.Background(), f, w, sources)
	b2 := Aggregate(context.Background(), f, w, sources)

	assert.Equal(t, 3, b1.Len())
	for _, r := range b1.Records() {
		assert.True(t, w.Range().Contains(r.Date))
	}
	assert.Equal(t, b1.Records(), b2.Records())
	assert.Equal(t, "SO+", b1.Cell(d(2025, time.March, 21)).Tag, "first source given wins the tag")
}

// gatedFetcher holds the source named "blocked" until release is closed.
type gatedFetcher struct {
	started chan struct{}
	release chan struct{}
	once    sync.Once
}

func (g *gatedFetcher) Fetch(ctx context.Context, src model.EventSource, years []int) []model.EventRecord {
	if src.Name == "blocked" {
		g.once.Do(func() { close(g.started) })
		<-g.release
		return []model.EventRecord{rec("blocked", d(2025, time.January, 10))}
	}
	return []model.EventRecord{rec(src.Name, d(2025, time.February, 10))}
}

func TestAggregatorDiscardsStaleLoad(t *testing.T) {
	g := &gatedFetcher{started: make(chan struct{}), release: make(chan struct{})}
	agg := NewAggregator(g, nil)
	jan := NewMonthWindow(2025, time.January, time.Sunday)
	feb := NewMonthWindow(2025, time.February, time.Sunday)

	done := make(chan bool)
	go func() {
		_, committed := agg.Load(context.Background(), jan, []model.EventSource{model.PublicHolidays("ZA", "blocked")})
		done <- committed
	}()
	<-g.started

	view, committed := agg.Load(context.Background(), feb, []model.EventSource{model.PublicHolidays("US", "fresh")})
	require.True(t, committed)
	assert.Equal(t, feb, view.Window)

	close(g.release)
	assert.False(t, <-done, "older request must not commit")

	cur := agg.Current()
	require.NotNil(t, cur)
	assert.Equal(t, feb, cur.Window)
	assert.Equal(t, "US", cur.Sources[0].ID)
	for _, r := range cur.Bucket.Records() {
		assert.NotEqual(t, "blocked", r.Title)
	}
}

func TestDashboardKeepsNewestRefresh(t *testing.T) {
	slots, err := registry.OpenSlots("")
	require.NoError(t, err)
	require.NoError(t, slots.Assign(0, model.PublicHolidays("ZA", "blocked")))

	g := &gatedFetcher{started: make(chan struct{}), release: make(chan struct{})}
	dash := NewDashboard(g, slots, time.UTC, nil)
	dash.now = func() time.Time { return time.Date(2025, time.January, 1, 9, 0, 0, 0, time.UTC) }

	done := make(chan []SlotView)
	go func() { done <- dash.Refresh(context.Background()) }()
	<-g.started

	require.NoError(t, slots.Assign(0, model.PublicHolidays("US", "fresh")))
	newer := dash.Refresh(context.Background())
	require.NotNil(t, newer[0].Source)
	assert.Equal(t, "fresh", newer[0].Source.Name)

	close(g.release)
	older := <-done
	assert.Equal(t, "blocked", older[0].Source.Name)

	views, _ := dash.View()
	require.NotNil(t, views[0].Source)
	assert.Equal(t, "fresh", views[0].Source.Name, "an older refresh must not replace a newer one")
	assert.Equal(t, "fresh — Mon, 10 Feb", views[0].Text)
}

func TestAggregatorCurrentBeforeLoad(t *testing.T) {
	assert.Nil(t, NewAggregator(mapFetcher{}, nil).Current())
}

func TestDashboardRefresh(t *testing.T) {
	slots, err := registry.OpenSlots("")
	require.NoError(t, err)
	za := model.PublicHolidays("ZA", "South Africa")
	fam := model.CustomCalendar("UM-1", "Family")
	require.NoError(t, slots.Assign(0, za))
	require.NoError(t, slots.Assign(4, fam))

	f := &yearsFetcher{data: map[string][]model.EventRecord{
		za.Key(): {rec("Christmas Day", d(2025, time.December, 25)), rec("New Year's Day", d(2026, time.January, 1))},
	}}
	dash := NewDashboard(f, slots, time.UTC, nil)
	dash.now = func() time.Time { return time.Date(2025, time.December, 26, 9, 0, 0, 0, time.UTC) }

	views, at := dash.View()
	assert.Empty(t, views)
	assert.True(t, at.IsZero())

	views = dash.Refresh(context.Background())
	require.Len(t, views, registry.SlotCount)
	assert.Equal(t, "New Year's Day — Thu, 01 Jan", views[0].Text)
	require.NotNil(t, views[0].Next)
	assert.Equal(t, NoUpcoming, views[4].Text)
	assert.Nil(t, views[4].Next)
	assert.Nil(t, views[1].Source)
	assert.Empty(t, views[1].Text)

	f.mu.Lock()
	assert.Equal(t, []int{2025, 2026}, f.years[za.Key()])
	f.mu.Unlock()

	cached, at := dash.View()
	assert.Equal(t, views, cached)
	assert.False(t, at.IsZero())
}

type yearsFetcher struct {
	mu    sync.Mutex
	data  map[string][]model.EventRecord
	years map[string][]int
}

func (f *yearsFetcher) Fetch(ctx context.Context, src model.EventSource, years []int) []model.EventRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.years == nil {
		f.years = make(map[string][]int)
	}
	f.years[src.Key()] = years
	return f.data[src.Key()]
}
