package agenda

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	appLog "chronosync/internal/log"
	"chronosync/internal/metrics"
	"chronosync/internal/model"
	"chronosync/internal/registry"
)

// SlotLister is the dashboard's view of the slot registry.
type SlotLister interface {
	All() []registry.Slot
}

// SlotView is the computed state of one dashboard slot.
type SlotView struct {
	Index  int                `json:"index"`
	Source *model.EventSource `json:"source,omitempty"`
	Next   *model.EventRecord `json:"next,omitempty"`
	Text   string             `json:"text"`
}

// Dashboard caches the next event of every assigned slot. Refresh is
// driven by the scheduler and by slot changes; View never fetches. When
// refreshes overlap, only the one started last is cached.
type Dashboard struct {
	fetcher Fetcher
	slots   SlotLister
	loc     *time.Location
	metrics *metrics.Metrics
	now     func() time.Time

	mu          sync.RWMutex
	latest      uint64
	views       []SlotView
	refreshedAt time.Time
}

func NewDashboard(f Fetcher, slots SlotLister, loc *time.Location, m *metrics.Metrics) *Dashboard {
	if loc == nil {
		loc = time.Local
	}
	return &Dashboard{fetcher: f, slots: slots, loc: loc, metrics: m, now: time.Now}
}

// Refresh recomputes every slot concurrently. Public holidays are looked up
// for this year and next year, so a December "today" still finds January.
func (d *Dashboard) Refresh(ctx context.Context) []SlotView {
	d.mu.Lock()
	d.latest++
	token := d.latest
	d.mu.Unlock()

	start := d.now()
	today := model.FromTime(start.In(d.loc))
	years := []int{today.Year, today.Year + 1}

	slots := d.slots.All()
	views := make([]SlotView, len(slots))

	var g errgroup.Group
	for i, sl := range slots {
		views[i] = SlotView{Index: sl.Index, Source: sl.Source}
		if sl.Source == nil {
			continue
		}
		g.Go(func() error {
			recs := d.fetcher.Fetch(ctx, *sl.Source, years)
			next, ok := NextEvent(recs, today)
			if ok {
				views[i].Next = &next
			}
			views[i].Text = FormatNext(next, ok)
			return nil
		})
	}
	_ = g.Wait()

	outcome := metrics.OutcomeOK
	if ctx.Err() != nil {
		outcome = metrics.OutcomeError
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if token != d.latest {
		d.metrics.ObserveRefresh(metrics.OutcomeStale, time.Since(start), start)
		appLog.Debug("dashboard refresh discarded", "token", token, "latest", d.latest)
		return cloneViews(views)
	}
	d.metrics.ObserveRefresh(outcome, time.Since(start), start)
	d.views = views
	d.refreshedAt = start

	appLog.Info("dashboard refreshed", "slots", len(slots), "today", today.String())
	return cloneViews(views)
}

// View returns the cached slots and when they were computed. The time is
// zero before the first Refresh.
func (d *Dashboard) View() ([]SlotView, time.Time) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return cloneViews(d.views), d.refreshedAt
}

func cloneViews(in []SlotView) []SlotView {
	out := make([]SlotView, len(in))
	copy(out, in)
	return out
}
