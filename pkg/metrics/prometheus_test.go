package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func scrape(t *testing.T, h http.Handler) string {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("scrape returned %d", w.Code)
	}
	body, err := io.ReadAll(w.Body)
	if err != nil {
		t.Fatalf("read body failed: %v", err)
	}
	return string(body)
}

func TestPrometheusExporterHandler(t *testing.T) {
	c := NewCollector(Labels{"instance": "test"})
	c.ShareCreated(false)
	c.ShareCreated(true)
	c.RedeemRejected(RejectExhausted)
	c.RecordWrapLatency(400 * time.Microsecond)

	output := scrape(t, NewPrometheusExporter(c, "pqshare").Handler())

	expected := []string{
		`pqshare_shares_created_total{instance="test",kind="public"} 1`,
		`pqshare_shares_created_total{instance="test",kind="private"} 1`,
		`pqshare_redeem_rejections_total{instance="test",reason="exhausted"} 1`,
		"# TYPE pqshare_kem_insecure gauge",
		"# TYPE pqshare_wrap_duration_microseconds histogram",
		`pqshare_wrap_duration_microseconds_bucket{instance="test",le="500"} 1`,
		`pqshare_wrap_duration_microseconds_count{instance="test"} 1`,
		"go_goroutines",
	}
	for _, want := range expected {
		if !strings.Contains(output, want) {
			t.Errorf("expected %q in output", want)
		}
	}
}

func TestPrometheusExporterInsecureGauge(t *testing.T) {
	c := NewCollector(nil)
	exp := NewPrometheusExporter(c, "pq")

	if !strings.Contains(scrape(t, exp.Handler()), "pq_kem_insecure 0") {
		t.Error("expected kem_insecure 0 before fallback")
	}

	c.RecordKEMFallback()
	output := scrape(t, exp.Handler())
	if !strings.Contains(output, "pq_kem_insecure 1") {
		t.Error("expected kem_insecure 1 after fallback")
	}
	if !strings.Contains(output, "pq_kem_fallbacks_total 1") {
		t.Error("expected one fallback")
	}
}

func TestPrometheusExporterGather(t *testing.T) {
	c := NewCollector(nil)
	exp := NewPrometheusExporter(c, "pqshare")

	families, err := exp.Registry().Gather()
	if err != nil {
		t.Fatalf("Gather failed: %v", err)
	}

	found := map[string]bool{}
	for _, f := range families {
		found[f.GetName()] = true
	}
	for _, name := range []string{
		"pqshare_shares_redeemed_total",
		"pqshare_unwrap_errors_total",
		"pqshare_password_derivation_milliseconds",
		"pqshare_uptime_seconds",
	} {
		if !found[name] {
			t.Errorf("metric family %s not gathered", name)
		}
	}
}
