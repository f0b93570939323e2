package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCounters(t *testing.T) {
	m := New()
	m.ObserveFetch("public", OutcomeOK, 20*time.Millisecond)
	m.ObserveFetch("public", OutcomeError, time.Second)
	m.ObserveFetch("custom", OutcomeOK, time.Millisecond)
	m.RecordDropped("custom", 2)
	m.RecordDropped("custom", 0)
	m.ObserveAggregation(OutcomeStale)

	assert.Equal(t, 1.0, value(t, m, "chronosync_fetch_requests_total", "public", OutcomeError))
	assert.Equal(t, 2.0, value(t, m, "chronosync_fetch_records_dropped_total", "custom"))
	assert.Equal(t, 1.0, value(t, m, "chronosync_month_aggregations_total", OutcomeStale))

	now := time.Unix(1700000000, 0)
	m.ObserveRefresh(OutcomeOK, time.Second, now)
	assert.Equal(t, float64(now.Unix()), value(t, m, "chronosync_dashboard_last_refresh_timestamp_seconds"))
}

// value returns the counter or gauge sample of name whose label values
// equal labels, in declaration order.
func value(t *testing.T, m *Metrics, name string, labels ...string) float64 {
	t.Helper()
	families, err := m.Registry().Gather()
	require.NoError(t, err)
	for _, fam := range families {
		if fam.GetName() != name {
			continue
		}
		for _, metric := range fam.GetMetric() {
			if !labelsEqual(metric.GetLabel(), labels) {
				continue
			}
			if c := metric.GetCounter(); c != nil {
				return c.GetValue()
			}
			return metric.GetGauge().GetValue()
		}
	}
	t.Fatalf("metric %s%v not found", name, labels)
	return 0
}

func labelsEqual(pairs []*dto.LabelPair, values []string) bool {
	if len(pairs) != len(values) {
		return false
	}
	for i, p := range pairs {
		if p.GetValue() != values[i] {
			return false
		}
	}
	return true
}

func TestHandlerServesRegistry(t *testing.T) {
	m := New()
	m.ObserveAggregation(OutcomeOK)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "chronosync_month_aggregations_total"))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveFetch("public", OutcomeOK, time.Second)
		m.RecordDropped("public", 1)
		m.ObserveAggregation(OutcomeOK)
		m.ObserveRefresh(OutcomeOK, time.Second, time.Now())
	})
	assert.Nil(t, m.Registry())
}
