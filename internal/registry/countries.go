package registry

import (
	"context"
	"strings"
	"sync"
	"time"

	appLog "chronosync/internal/log"
	"chronosync/internal/model"
)

// Status is the load state of the country cache.
type Status int

const (
	StatusNotLoaded Status = iota
	StatusLoaded
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusLoaded:
		return "loaded"
	case StatusFailed:
		return "failed"
	default:
		return "not_loaded"
	}
}

func (s Status) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// RetryBackoff is how long a failed load is reported again without asking
// the provider.
const RetryBackoff = 30 * time.Second

type CountryLister interface {
	Countries(ctx context.Context) ([]model.Country, error)
}

// CountryCache holds the provider's country list for the life of the
// process. A successful load is final; a failed one is retried by the
// first Load call after RetryBackoff.
type CountryCache struct {
	lister CountryLister
	now    func() time.Time

	loadMu sync.Mutex // serializes Load

	mu        sync.RWMutex
	status    Status
	countries []model.Country
	byISO     map[string]string
	failedAt  time.Time
	lastErr   error
}

func NewCountryCache(l CountryLister) *CountryCache {
	return &CountryCache{lister: l, now: time.Now}
}

func (c *CountryCache) Load(ctx context.Context) error {
	c.loadMu.Lock()
	defer c.loadMu.Unlock()

	c.mu.RLock()
	status, failedAt, lastErr := c.status, c.failedAt, c.lastErr
	c.mu.RUnlock()
	switch {
	case status == StatusLoaded:
		return nil
	case status == StatusFailed && c.now().Sub(failedAt) < RetryBackoff:
		return lastErr
	}

	countries, err := c.lister.Countries(ctx)
	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		c.status = StatusFailed
		c.failedAt = c.now()
		c.lastErr = err
		appLog.Error("country list unavailable, picker limited to custom calendars", err)
		return err
	}
	c.countries = countries
	c.byISO = make(map[string]string, len(countries))
	for _, ct := range countries {
		c.byISO[strings.ToUpper(ct.ISOCode)] = ct.Name
	}
	c.status = StatusLoaded
	appLog.Info("country list loaded", "count", len(countries))
	return nil
}

func (c *CountryCache) Status() Status {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.status
}

func (c *CountryCache) Countries() []model.Country {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]model.Country, len(c.countries))
	copy(out, c.countries)
	return out
}

// Name returns the display name of an ISO-3166 code.
func (c *CountryCache) Name(iso string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	name, ok := c.byISO[strings.ToUpper(strings.TrimSpace(iso))]
	return name, ok
}

// Choices lists the sources a picker can offer: every country followed by
// the given custom calendars. Until the country list is loaded only the
// custom calendars are returned.
func (c *CountryCache) Choices(customs []model.EventSource) []model.EventSource {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]model.EventSource, 0, len(c.countries)+len(customs))
	if c.status == StatusLoaded {
		for _, ct := range c.countries {
			out = append(out, model.PublicHolidays(ct.ISOCode, ct.Name))
		}
	}
	return append(out, customs...)
}

// FilterChoices keeps the choices whose label or id contains query,
// ignoring case. An empty query keeps everything.
func FilterChoices(choices []model.EventSource, query string) []model.EventSource {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return choices
	}
	out := make([]model.EventSource, 0, len(choices))
	for _, ch := range choices {
		if strings.Contains(strings.ToLower(ch.Label()), q) || strings.Contains(strings.ToLower(ch.ID), q) {
			out = append(out, ch)
		}
	}
	return out
}
