package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"praetor-hq/tribune/pkg/config"
	"praetor-hq/tribune/pkg/snapshot"
)

func newTestCollector(t *testing.T) *Collector {
	t.Helper()
	return NewCollector(&config.MetricsConfig{Namespace: "tribune"}, prometheus.NewRegistry())
}

func scrape(t *testing.T, c *Collector) string {
	t.Helper()
	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	if rec.Code != 200 {
		t.Fatalf("scrape status = %d", rec.Code)
	}
	return rec.Body.String()
}

func TestCollectorExposesAllConcerns(t *testing.T) {
	c := newTestCollector(t)

	c.Compiler().ObserveCompile("acme", "discount", "compiled", 4*time.Millisecond)
	c.Runtime().ObserveExecute("acme", "discount", "decision", 2*time.Millisecond)
	c.Runtime().AddGuardFaults(2)
	c.Runtime().IncMaskRecompute()
	c.Cache().ObserveLookup(snapshot.SourceHot)
	c.Audit().IncRecorded()
	c.Audit().IncDropped()
	c.Server().ObserveRequest("/v1/execute", "200", time.Millisecond)

	body := scrape(t, c)
	for _, want := range []string{
		`tribune_compiler_compiles_total{decision_type="discount",outcome="compiled",tenant="acme"} 1`,
		`tribune_runtime_executes_total{decision_type="discount",outcome="decision",tenant="acme"} 1`,
		`tribune_runtime_guard_faults_total 2`,
		`tribune_runtime_mask_recomputes_total 1`,
		`tribune_cache_lookups_total{source="hot"} 1`,
		`tribune_audit_records_total 1`,
		`tribune_audit_records_dropped_total 1`,
		`tribune_http_requests_total{route="/v1/execute",status="200"} 1`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("scrape missing %q", want)
		}
	}
}

func TestNilCollectorIsNoop(t *testing.T) {
	var c *Collector

	// None of these may panic.
	c.Compiler().ObserveCompile("t", "d", "error", time.Millisecond)
	c.Runtime().ObserveExecute("t", "d", "timeout", time.Millisecond)
	c.Runtime().AddGuardFaults(1)
	c.Runtime().IncMaskRecompute()
	c.Cache().ObserveLookup(snapshot.SourceDefault)
	c.Audit().IncWriteError()
	c.Server().ObserveRequest("/health", "200", 0)
	c.Server().TrackInFlight()()
}

func TestExecuteBucketsFromConfig(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(&config.MetricsConfig{
		Namespace:              "tribune",
		ExecuteDurationBuckets: []float64{0.001, 0.01},
	}, reg)

	c.Runtime().ObserveExecute("t", "d", "decision", 5*time.Millisecond)
	body := scrape(t, c)
	if !strings.Contains(body, `tribune_runtime_execute_duration_seconds_bucket{outcome="decision",le="0.001"} 0`) {
		t.Errorf("configured bucket 0.001 missing:\n%s", body)
	}
	if !strings.Contains(body, `tribune_runtime_execute_duration_seconds_bucket{outcome="decision",le="0.01"} 1`) {
		t.Errorf("configured bucket 0.01 missing or miscounted")
	}
}
