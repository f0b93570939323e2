package agenda

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	appLog "chronosync/internal/log"
	"chronosync/internal/metrics"
	"chronosync/internal/model"
)

// Fetcher returns the normalized records of a source for the given years.
// It never fails; unavailable data is simply missing.
type Fetcher interface {
	Fetch(ctx context.Context, src model.EventSource, years []int) []model.EventRecord
}

// Aggregate fetches every source concurrently and buckets the records that
// fall inside the month. Records are added source by source in the order
// sources were given.
func Aggregate(ctx context.Context, f Fetcher, w MonthWindow, sources []model.EventSource) *Bucket {
	rng := w.Range()
	years := rng.Years()

	perSource := make([][]model.EventRecord, len(sources))
	var g errgroup.Group
	for i, src := range sources {
		g.Go(func() error {
			perSource[i] = f.Fetch(ctx, src, years)
			return nil
		})
	}
	_ = g.Wait()

	b := NewBucket()
	for _, recs := range perSource {
		for _, r := range recs {
			if rng.Contains(r.Date) {
				b.Add(r)
			}
		}
	}
	return b
}

// MonthView is a committed aggregation result.
type MonthView struct {
	Window   MonthWindow
	Sources  []model.EventSource
	Bucket   *Bucket
	Token    uint64
	LoadedAt time.Time
}

// Aggregator keeps the month view of the latest request. A request that
// was overtaken by a newer one while fetching is discarded on arrival.
type Aggregator struct {
	fetcher Fetcher
	metrics *metrics.Metrics

	mu      sync.Mutex
	latest  uint64
	current *MonthView
}

func NewAggregator(f Fetcher, m *metrics.Metrics) *Aggregator {
	return &Aggregator{fetcher: f, metrics: m}
}

// Load aggregates w for sources. It returns the view and true when the view
// became current, or the discarded view and false when a newer Load started
// in the meantime.
func (a *Aggregator) Load(ctx context.Context, w MonthWindow, sources []model.EventSource) (*MonthView, bool) {
	a.mu.Lock()
	a.latest++
	token := a.latest
	a.mu.Unlock()

	b := Aggregate(ctx, a.fetcher, w, sources)
	view := &MonthView{
		Window:   w,
		Sources:  append([]model.EventSource(nil), sources...),
		Bucket:   b,
		Token:    token,
		LoadedAt: time.Now(),
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if token != a.latest {
		a.metrics.ObserveAggregation(metrics.OutcomeStale)
		appLog.Debug("month aggregation discarded", "month", w.String(), "token", token, "latest", a.latest)
		return view, false
	}
	a.current = view
	a.metrics.ObserveAggregation(metrics.OutcomeOK)
	appLog.Debug("month aggregation loaded", "month", w.String(), "sources", len(sources), "records", b.Len())
	return view, true
}

// Current returns the last committed view, or nil before the first Load.
func (a *Aggregator) Current() *MonthView {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.current
}
