// Package fetch turns event sources into normalized records. Fetch never
// fails: unavailable remotes and malformed records are logged and omitted.
package fetch

import (
	"context"
	"slices"
	"time"

	"golang.org/x/sync/errgroup"

	"chronosync/internal/holidays"
	"chronosync/internal/ics"
	appLog "chronosync/internal/log"
	"chronosync/internal/metrics"
	"chronosync/internal/model"
	"chronosync/internal/store"
)

const defaultTimeout = 10 * time.Second

// HolidayAPI is the remote holiday provider.
type HolidayAPI interface {
	Holidays(ctx context.Context, country string, year int) ([]holidays.Holiday, error)
}

// EventStore reads the documents of a custom calendar.
type EventStore interface {
	ListEvents(ctx context.Context, calendarID string) ([]store.EventDoc, error)
}

type Fetcher struct {
	holidays HolidayAPI
	events   EventStore
	timeout  time.Duration
	metrics  *metrics.Metrics
}

// New creates a Fetcher. Each remote call is bounded by timeout; a
// non-positive timeout uses 10s. m may be nil.
func New(h HolidayAPI, e EventStore, timeout time.Duration, m *metrics.Metrics) *Fetcher {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Fetcher{holidays: h, events: e, timeout: timeout, metrics: m}
}

// Fetch returns the records of src. For public sources one request is made
// per year, concurrently; a failed year is omitted without affecting the
// others. Custom calendars are read once; years only bound the expansion of
// repeating events.
func (f *Fetcher) Fetch(ctx context.Context, src model.EventSource, years []int) []model.EventRecord {
	if err := src.Validate(); err != nil {
		appLog.Error("fetch: invalid source", err, "source", src.Key())
		return nil
	}
	switch src.Kind {
	case model.SourcePublic:
		return f.fetchPublic(ctx, src, years)
	default:
		return f.fetchCustom(ctx, src, years)
	}
}

func (f *Fetcher) fetchPublic(ctx context.Context, src model.EventSource, years []int) []model.EventRecord {
	if f.holidays == nil {
		return nil
	}
	years = uniqueYears(years)
	perYear := make([][]model.EventRecord, len(years))

	var g errgroup.Group
	for i, year := range years {
		g.Go(func() error {
			cctx, cancel := context.WithTimeout(ctx, f.timeout)
			defer cancel()

			start := time.Now()
			hols, err := f.holidays.Holidays(cctx, src.ID, year)
			if err != nil {
				f.metrics.ObserveFetch(string(src.Kind), metrics.OutcomeError, time.Since(start))
				appLog.Error("fetch: holidays unavailable", err, "country", src.ID, "year", year)
				return nil
			}
			f.metrics.ObserveFetch(string(src.Kind), metrics.OutcomeOK, time.Since(start))

			recs := make([]model.EventRecord, 0, len(hols))
			for _, h := range hols {
				if r, ok := NormalizeHoliday(h, src); ok {
					recs = append(recs, r)
				}
			}
			f.dropped(src, len(hols)-len(recs))
			perYear[i] = recs
			return nil
		})
	}
	_ = g.Wait()

	var out []model.EventRecord
	for _, recs := range perYear {
		out = append(out, recs...)
	}
	return out
}

func (f *Fetcher) fetchCustom(ctx context.Context, src model.EventSource, years []int) []model.EventRecord {
	if f.events == nil {
		return nil
	}
	cctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	start := time.Now()
	docs, err := f.events.ListEvents(cctx, src.ID)
	if err != nil {
		f.metrics.ObserveFetch(string(src.Kind), metrics.OutcomeError, time.Since(start))
		appLog.Error("fetch: calendar unavailable", err, "calendar", src.ID)
		return nil
	}
	f.metrics.ObserveFetch(string(src.Kind), metrics.OutcomeOK, time.Since(start))

	years = uniqueYears(years)
	out := make([]model.EventRecord, 0, len(docs))
	dropped := 0
	for _, d := range docs {
		r, ok := NormalizeStored(d, src)
		if !ok {
			dropped++
			continue
		}
		if len(d.Repeat) == 0 || len(years) == 0 {
			out = append(out, r)
			continue
		}
		out = append(out, expandRepeat(r, d, years)...)
	}
	f.dropped(src, dropped)
	return out
}

// expandRepeat returns one record per occurrence of a repeating document.
// A rule that cannot be expanded falls back to the base date.
func expandRepeat(base model.EventRecord, d store.EventDoc, years []int) []model.EventRecord {
	rule := ics.Rule{Start: base.Date, Repeat: d.Repeat[0]}
	for _, s := range d.ExDates {
		if ex, err := model.ParseDate(s); err == nil {
			rule.ExDates = append(rule.ExDates, ex)
		}
	}
	dates, err := ics.ExpandYears(rule, years)
	if err != nil {
		appLog.Error("fetch: repeat rule ignored", err, "calendar", base.SourceID, "event", d.ID)
		return []model.EventRecord{base}
	}
	out := make([]model.EventRecord, 0, len(dates))
	for _, date := range dates {
		r := base
		r.Date = date
		out = append(out, r)
	}
	return out
}

func (f *Fetcher) dropped(src model.EventSource, n int) {
	if n <= 0 {
		return
	}
	f.metrics.RecordDropped(string(src.Kind), n)
	appLog.Debug("fetch: dropped malformed records", "source", src.Key(), "count", n)
}

func uniqueYears(years []int) []int {
	out := slices.Clone(years)
	slices.Sort(out)
	return slices.Compact(out)
}
