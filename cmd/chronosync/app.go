package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"chronosync/internal/agenda"
	"chronosync/internal/auth"
	"chronosync/internal/config"
	"chronosync/internal/fetch"
	"chronosync/internal/holidays"
	"chronosync/internal/ics"
	"chronosync/internal/metrics"
	"chronosync/internal/model"
	"chronosync/internal/registry"
	"chronosync/internal/store"
	"chronosync/internal/web"
)

// app is the wired set of services shared by every command.
type app struct {
	cfg       *config.Config
	store     *store.Storage
	slots     *registry.Slots
	countries *registry.CountryCache
	fetcher   *fetch.Fetcher
	dashboard *agenda.Dashboard
	metrics   *metrics.Metrics
}

func openApp(cfg *config.Config) (*app, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.Database), 0o700); err != nil {
		return nil, err
	}
	st, err := store.Open(cfg.Database)
	if err != nil {
		return nil, err
	}
	slots, err := registry.OpenSlots(cfg.StateFile)
	if err != nil {
		st.Close()
		return nil, err
	}

	m := metrics.New()
	hc := holidays.NewClient(
		cfg.Holidays.BaseURL,
		cfg.Holidays.APIKey,
		cfg.Holidays.CacheDir,
		time.Duration(cfg.Holidays.TimeoutSeconds)*time.Second,
	)
	f := fetch.New(hc, st, cfg.FetchTimeout(), m)

	return &app{
		cfg:       cfg,
		store:     st,
		slots:     slots,
		countries: registry.NewCountryCache(hc),
		fetcher:   f,
		dashboard: agenda.NewDashboard(f, slots, cfg.Location(), m),
		metrics:   m,
	}, nil
}

func (a *app) server() *web.Server {
	return web.NewServer(web.Deps{
		Config:     a.cfg,
		Store:      a.store,
		Auth:       auth.NewService(a.store, auth.DefaultParams),
		Slots:      a.slots,
		Active:     &registry.ActiveSet{},
		Countries:  a.countries,
		Fetcher:    a.fetcher,
		Aggregator: agenda.NewAggregator(a.fetcher, a.metrics),
		Dashboard:  a.dashboard,
		Feeds:      ics.NewFeedFetcher(time.Duration(a.cfg.Holidays.TimeoutSeconds) * time.Second),
		Metrics:    a.metrics,
	})
}

func (a *app) Close() error {
	return a.store.Close()
}

// parseSource reads "public:ZA" or "custom:<calendar id>". A bare country
// code is taken as public.
func parseSource(s string) (model.EventSource, error) {
	kind, id, found := strings.Cut(strings.TrimSpace(s), ":")
	if !found {
		kind, id = string(model.SourcePublic), kind
	}
	var src model.EventSource
	switch model.SourceKind(strings.ToLower(kind)) {
	case model.SourcePublic:
		src = model.PublicHolidays(id, "")
	case model.SourceCustom:
		src = model.CustomCalendar(id, "")
	default:
		return src, fmt.Errorf("source %q: %w", s, model.ErrSourceKind)
	}
	if err := src.Validate(); err != nil {
		return src, fmt.Errorf("source %q: %w", s, err)
	}
	return src, nil
}

// label fills in a source's display name from the country list or the
// calendar title.
func (a *app) label(ctx context.Context, src model.EventSource) model.EventSource {
	if src.Name != "" {
		return src
	}
	switch src.Kind {
	case model.SourcePublic:
		if a.countries.Load(ctx) == nil {
			if name, ok := a.countries.Name(src.ID); ok {
				src.Name = name
			}
		}
	case model.SourceCustom:
		if cal, err := a.store.GetCalendar(ctx, src.ID); err == nil {
			src.Name = cal.Title
		}
	}
	return src
}
