package metrics

import (
	"math"
	"net/http"
	"sort"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PrometheusExporter exposes a Collector through a dedicated Prometheus
// registry. Values are read from a Snapshot at scrape time.
type PrometheusExporter struct {
	collector *Collector
	registry  *prometheus.Registry

	sharesCreated   *prometheus.Desc
	sharesRedeemed  *prometheus.Desc
	sharesDisabled  *prometheus.Desc
	rejections      *prometheus.Desc
	userKeys        *prometheus.Desc
	rotations       *prometheus.Desc
	fallbacks       *prometheus.Desc
	insecure        *prometheus.Desc
	bytesEncrypted  *prometheus.Desc
	bytesDecrypted  *prometheus.Desc
	wrapErrors      *prometheus.Desc
	unwrapErrors    *prometheus.Desc
	uptime          *prometheus.Desc
	wrapLatency     *prometheus.Desc
	unwrapLatency   *prometheus.Desc
	passwordLatency *prometheus.Desc
}

// NewPrometheusExporter creates a Prometheus exporter for the given collector.
// The namespace is prepended to all metric names (e.g., "pqshare").
func NewPrometheusExporter(c *Collector, namespace string) *PrometheusExporter {
	constLabels := prometheus.Labels{}
	for k, v := range c.labels {
		constLabels[k] = v
	}
	desc := func(name, help string, variable ...string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(namespace, "", name), help, variable, constLabels)
	}

	e := &PrometheusExporter{
		collector:       c,
		registry:        prometheus.NewRegistry(),
		sharesCreated:   desc("shares_created_total", "Total number of shares created", "kind"),
		sharesRedeemed:  desc("shares_redeemed_total", "Total number of successful redemptions"),
		sharesDisabled:  desc("shares_deactivated_total", "Total number of shares deactivated by their owner"),
		rejections:      desc("redeem_rejections_total", "Total number of refused redemptions", "reason"),
		userKeys:        desc("user_keys_generated_total", "Total number of user keypairs generated"),
		rotations:       desc("server_key_rotations_total", "Total number of server key generations created"),
		fallbacks:       desc("kem_fallbacks_total", "Total number of fallbacks to the insecure mock KEM"),
		insecure:        desc("kem_insecure", "1 if the active KEM provides no confidentiality"),
		bytesEncrypted:  desc("bytes_encrypted_total", "Total plaintext bytes encrypted"),
		bytesDecrypted:  desc("bytes_decrypted_total", "Total plaintext bytes returned by redemptions"),
		wrapErrors:      desc("wrap_errors_total", "Total key-wrap errors"),
		unwrapErrors:    desc("unwrap_errors_total", "Total key-unwrap errors"),
		uptime:          desc("uptime_seconds", "Time since the collector was created"),
		wrapLatency:     desc("wrap_duration_microseconds", "KEM wrap duration in microseconds"),
		unwrapLatency:   desc("unwrap_duration_microseconds", "KEM unwrap duration in microseconds"),
		passwordLatency: desc("password_derivation_milliseconds", "PBKDF2 derivation duration in milliseconds"),
	}

	e.registry.MustRegister(e)
	e.registry.MustRegister(collectors.NewGoCollector())
	e.registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return e
}

// Registry returns the exporter's registry.
func (e *PrometheusExporter) Registry() *prometheus.Registry {
	return e.registry
}

// Handler returns an http.Handler that serves Prometheus metrics.
func (e *PrometheusExporter) Handler() http.Handler {
	return promhttp.HandlerFor(e.registry, promhttp.HandlerOpts{})
}

// Describe implements prometheus.Collector.
func (e *PrometheusExporter) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range []*prometheus.Desc{
		e.sharesCreated, e.sharesRedeemed, e.sharesDisabled, e.rejections,
		e.userKeys, e.rotations, e.fallbacks, e.insecure,
		e.bytesEncrypted, e.bytesDecrypted, e.wrapErrors, e.unwrapErrors,
		e.uptime, e.wrapLatency, e.unwrapLatency, e.passwordLatency,
	} {
		ch <- d
	}
}

// Collect implements prometheus.Collector.
func (e *PrometheusExporter) Collect(ch chan<- prometheus.Metric) {
	snap := e.collector.Snapshot()

	counter := func(d *prometheus.Desc, v uint64, labels ...string) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.CounterValue, float64(v), labels...)
	}

	counter(e.sharesCreated, snap.PublicSharesCreated, "public")
	counter(e.sharesCreated, snap.PrivateSharesCreated, "private")
	counter(e.sharesRedeemed, snap.SharesRedeemed)
	counter(e.sharesDisabled, snap.SharesDeactivated)

	reasons := make([]string, 0, len(snap.Rejections))
	for r := range snap.Rejections {
		reasons = append(reasons, r)
	}
	sort.Strings(reasons)
	for _, r := range reasons {
		counter(e.rejections, snap.Rejections[r], r)
	}

	counter(e.userKeys, snap.UserKeysGenerated)
	counter(e.rotations, snap.ServerKeyRotations)
	counter(e.fallbacks, snap.KEMFallbacks)
	counter(e.bytesEncrypted, snap.BytesEncrypted)
	counter(e.bytesDecrypted, snap.BytesDecrypted)
	counter(e.wrapErrors, snap.WrapErrors)
	counter(e.unwrapErrors, snap.UnwrapErrors)

	insecure := 0.0
	if snap.KEMInsecure {
		insecure = 1
	}
	ch <- prometheus.MustNewConstMetric(e.insecure, prometheus.GaugeValue, insecure)
	ch <- prometheus.MustNewConstMetric(e.uptime, prometheus.GaugeValue, snap.Uptime.Seconds())

	ch <- constHistogram(e.wrapLatency, snap.WrapLatency)
	ch <- constHistogram(e.unwrapLatency, snap.UnwrapLatency)
	ch <- constHistogram(e.passwordLatency, snap.PasswordLatency)
}

// constHistogram converts a summary with cumulative buckets. The +Inf bucket
// is implied by the count and is left out.
func constHistogram(d *prometheus.Desc, h HistogramSummary) prometheus.Metric {
	buckets := make(map[float64]uint64, len(h.Buckets))
	for _, b := range h.Buckets {
		if math.IsInf(b.UpperBound, 1) {
			continue
		}
		buckets[b.UpperBound] = b.Count
	}
	return prometheus.MustNewConstHistogram(d, h.Count, h.Sum, buckets)
}
