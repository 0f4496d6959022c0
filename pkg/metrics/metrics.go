// Package metrics provides observability primitives for the pqshare engine.
//
// The package includes:
//   - Counter and Histogram aggregation for share and key operations
//   - Prometheus export through client_golang
//   - OpenTelemetry tracing support
//   - Structured logging with levels
//   - Health check functionality
package metrics

import (
	"sync"
	"sync/atomic"
	"time"
)

// RejectReason classifies a refused redemption.
type RejectReason int

// Rejection reasons, one counter each.
const (
	RejectNotFound RejectReason = iota
	RejectExpired
	RejectExhausted
	RejectDeactivated
	RejectAccessDenied
	RejectRateLimited
	RejectAuthFailed
	numRejectReasons
)

var rejectReasonNames = [numRejectReasons]string{
	RejectNotFound:     "not_found",
	RejectExpired:      "expired",
	RejectExhausted:    "exhausted",
	RejectDeactivated:  "deactivated",
	RejectAccessDenied: "access_denied",
	RejectRateLimited:  "rate_limited",
	RejectAuthFailed:   "auth_failed",
}

// String returns the label value used for the reason.
func (r RejectReason) String() string {
	if r < 0 || r >= numRejectReasons {
		return "unknown"
	}
	return rejectReasonNames[r]
}

// Collector aggregates metrics from the share manager, the key custody
// service and the envelope engine.
type Collector struct {
	// Share metrics
	publicSharesCreated  atomic.Uint64
	privateSharesCreated atomic.Uint64
	sharesRedeemed       atomic.Uint64
	sharesDeactivated    atomic.Uint64
	rejections           [numRejectReasons]atomic.Uint64

	// Key metrics
	userKeysGenerated  atomic.Uint64
	serverKeyRotations atomic.Uint64
	kemFallbacks       atomic.Uint64
	kemInsecure        atomic.Bool

	// Traffic metrics
	bytesEncrypted atomic.Uint64
	bytesDecrypted atomic.Uint64

	// Error metrics
	wrapErrors   atomic.Uint64
	unwrapErrors atomic.Uint64

	// Performance histograms
	wrapLatency     *Histogram
	unwrapLatency   *Histogram
	passwordLatency *Histogram

	createdAt time.Time
	labels    Labels
}

// Labels represents key-value pairs for metric labeling.
type Labels map[string]string

// NewCollector creates a new metrics collector.
func NewCollector(labels Labels) *Collector {
	if labels == nil {
		labels = make(Labels)
	}

	return &Collector{
		wrapLatency:     NewHistogram(time.Microsecond, LatencyBuckets),
		unwrapLatency:   NewHistogram(time.Microsecond, LatencyBuckets),
		passwordLatency: NewHistogram(time.Millisecond, PasswordLatencyBuckets),
		createdAt:       time.Now(),
		labels:          labels,
	}
}

// Default bucket configurations for histograms.
var (
	// LatencyBuckets for KEM wrap/unwrap operations (microseconds).
	LatencyBuckets = []float64{50, 100, 250, 500, 1000, 2500, 5000, 10000, 25000}

	// PasswordLatencyBuckets for PBKDF2 derivations (milliseconds).
	PasswordLatencyBuckets = []float64{10, 25, 50, 100, 250, 500, 1000, 2500}
)

// --- Share Metrics ---

// ShareCreated counts a newly persisted share.
func (c *Collector) ShareCreated(private bool) {
	if private {
		c.privateSharesCreated.Add(1)
		return
	}
	c.publicSharesCreated.Add(1)
}

// ShareRedeemed counts a successful download of n plaintext bytes.
func (c *Collector) ShareRedeemed(n int) {
	c.sharesRedeemed.Add(1)
	if n > 0 {
		c.bytesDecrypted.Add(uint64(n))
	}
}

// ShareDeactivated counts an owner-initiated deactivation.
func (c *Collector) ShareDeactivated() {
	c.sharesDeactivated.Add(1)
}

// RedeemRejected counts a refused redemption.
func (c *Collector) RedeemRejected(reason RejectReason) {
	if reason < 0 || reason >= numRejectReasons {
		return
	}
	c.rejections[reason].Add(1)
}

// --- Key Metrics ---

// RecordUserKeysGenerated counts a lazily created user keypair.
func (c *Collector) RecordUserKeysGenerated() {
	c.userKeysGenerated.Add(1)
}

// RecordServerKeyRotation counts a new server key generation.
func (c *Collector) RecordServerKeyRotation() {
	c.serverKeyRotations.Add(1)
}

// RecordKEMFallback counts a switch to the insecure mock KEM and marks the
// process as running without real confidentiality.
func (c *Collector) RecordKEMFallback() {
	c.kemFallbacks.Add(1)
	c.kemInsecure.Store(true)
}

// SetKEMInsecure records whether the active KEM is the mock.
func (c *Collector) SetKEMInsecure(insecure bool) {
	c.kemInsecure.Store(insecure)
}

// KEMInsecure reports whether the active KEM is the mock.
func (c *Collector) KEMInsecure() bool {
	return c.kemInsecure.Load()
}

// --- Traffic Metrics ---

// RecordBytesEncrypted adds to the encrypted payload counter.
func (c *Collector) RecordBytesEncrypted(n int) {
	if n > 0 {
		c.bytesEncrypted.Add(uint64(n))
	}
}

// --- Error Metrics ---

// RecordWrapError increments the key-wrap error counter.
func (c *Collector) RecordWrapError() {
	c.wrapErrors.Add(1)
}

// RecordUnwrapError increments the key-unwrap error counter.
func (c *Collector) RecordUnwrapError() {
	c.unwrapErrors.Add(1)
}

// --- Performance Metrics ---

// RecordWrapLatency records a KEM wrap duration.
func (c *Collector) RecordWrapLatency(d time.Duration) {
	c.wrapLatency.ObserveDuration(d)
}

// RecordUnwrapLatency records a KEM unwrap duration.
func (c *Collector) RecordUnwrapLatency(d time.Duration) {
	c.unwrapLatency.ObserveDuration(d)
}

// RecordPasswordLatency records a PBKDF2 derivation duration.
func (c *Collector) RecordPasswordLatency(d time.Duration) {
	c.passwordLatency.ObserveDuration(d)
}

// --- Snapshot ---

// Snapshot is a point-in-time copy of all metrics.
type Snapshot struct {
	Timestamp time.Time
	Uptime    time.Duration

	// Share metrics
	PublicSharesCreated  uint64
	PrivateSharesCreated uint64
	SharesRedeemed       uint64
	SharesDeactivated    uint64
	Rejections           map[string]uint64

	// Key metrics
	UserKeysGenerated  uint64
	ServerKeyRotations uint64
	KEMFallbacks       uint64
	KEMInsecure        bool

	// Traffic metrics
	BytesEncrypted uint64
	BytesDecrypted uint64

	// Error metrics
	WrapErrors   uint64
	UnwrapErrors uint64

	// Histogram summaries
	WrapLatency     HistogramSummary
	UnwrapLatency   HistogramSummary
	PasswordLatency HistogramSummary

	Labels Labels
}

// SharesCreated returns the total of public and private shares created.
func (s Snapshot) SharesCreated() uint64 {
	return s.PublicSharesCreated + s.PrivateSharesCreated
}

// RejectionsTotal sums every rejection reason.
func (s Snapshot) RejectionsTotal() uint64 {
	var total uint64
	for _, n := range s.Rejections {
		total += n
	}
	return total
}

// Snapshot returns a point-in-time snapshot of all metrics.
func (c *Collector) Snapshot() Snapshot {
	rejections := make(map[string]uint64, numRejectReasons)
	for i := range c.rejections {
		rejections[RejectReason(i).String()] = c.rejections[i].Load()
	}

	return Snapshot{
		Timestamp:            time.Now(),
		Uptime:               time.Since(c.createdAt),
		PublicSharesCreated:  c.publicSharesCreated.Load(),
		PrivateSharesCreated: c.privateSharesCreated.Load(),
		SharesRedeemed:       c.sharesRedeemed.Load(),
		SharesDeactivated:    c.sharesDeactivated.Load(),
		Rejections:           rejections,
		UserKeysGenerated:    c.userKeysGenerated.Load(),
		ServerKeyRotations:   c.serverKeyRotations.Load(),
		KEMFallbacks:         c.kemFallbacks.Load(),
		KEMInsecure:          c.kemInsecure.Load(),
		BytesEncrypted:       c.bytesEncrypted.Load(),
		BytesDecrypted:       c.bytesDecrypted.Load(),
		WrapErrors:           c.wrapErrors.Load(),
		UnwrapErrors:         c.unwrapErrors.Load(),
		WrapLatency:          c.wrapLatency.Summary(),
		UnwrapLatency:        c.unwrapLatency.Summary(),
		PasswordLatency:      c.passwordLatency.Summary(),
		Labels:               c.labels,
	}
}

// Reset clears all metrics (useful for testing).
func (c *Collector) Reset() {
	c.publicSharesCreated.Store(0)
	c.privateSharesCreated.Store(0)
	c.sharesRedeemed.Store(0)
	c.sharesDeactivated.Store(0)
	for i := range c.rejections {
		c.rejections[i].Store(0)
	}
	c.userKeysGenerated.Store(0)
	c.serverKeyRotations.Store(0)
	c.kemFallbacks.Store(0)
	c.kemInsecure.Store(false)
	c.bytesEncrypted.Store(0)
	c.bytesDecrypted.Store(0)
	c.wrapErrors.Store(0)
	c.unwrapErrors.Store(0)
	c.wrapLatency.Reset()
	c.unwrapLatency.Reset()
	c.passwordLatency.Reset()
	c.createdAt = time.Now()
}

// --- Global Collector ---

var (
	globalCollector     *Collector
	globalCollectorOnce sync.Once
)

// Global returns the global metrics collector.
// Creates one with default settings if not already initialized.
func Global() *Collector {
	globalCollectorOnce.Do(func() {
		if globalCollector == nil {
			globalCollector = NewCollector(Labels{"instance": "default"})
		}
	})
	return globalCollector
}

// SetGlobal sets the global metrics collector.
// Should be called during initialization before any metrics are recorded.
func SetGlobal(c *Collector) {
	globalCollector = c
}
