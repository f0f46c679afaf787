package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"
)

func TestHandlerRendersDomainMetrics(t *testing.T) {
	c := NewMetricsCollector()
	flushes := c.Counter("gembot_flushes_total", "Total burst flushes dispatched", "")
	flushes.Add(3)
	delivered := c.Counter("gembot_deliveries_total", "Deliveries by outcome status", `status="delivered"`)
	delivered.Inc()
	buckets := c.Gauge("gembot_active_buckets", "Aggregation buckets currently open", "")
	buckets.Set(2)
	lat := c.Histogram("gembot_generation_latency_seconds", "Generation call latency in seconds", "",
		[]float64{1, 10, 120})
	lat.Observe(4.2)

	rec := httptest.NewRecorder()
	c.Handler()(rec, httptest.NewRequest("GET", "/metrics", nil))
	body := rec.Body.String()

	for _, want := range []string{
		"gembot_uptime_seconds",
		"gembot_flushes_total 3",
		`gembot_deliveries_total{status="delivered"} 1`,
		"gembot_active_buckets 2",
		`gembot_generation_latency_seconds_bucket{le="10"} 1`,
		`gembot_generation_latency_seconds_bucket{le="1"} 0`,
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("exposition missing %q:\n%s", want, body)
		}
	}
}

func TestCounterRegistrationIsIdempotent(t *testing.T) {
	c := NewMetricsCollector()
	a := c.Counter("gembot_events_total", "Total inbound events accepted", "")
	b := c.Counter("gembot_events_total", "Total inbound events accepted", "")
	if a != b {
		t.Fatal("same name must return the same counter")
	}
	a.Inc()
	if b.Value() != 1 {
		t.Fatalf("value = %d", b.Value())
	}
}
