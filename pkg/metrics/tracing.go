package metrics

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Tracer starts spans around custody, envelope, vault and share operations.
// NoOpTracer, SimpleTracer and OTelTracer implement it.
type Tracer interface {
	// StartSpan returns a context carrying the span and the function that
	// ends it.
	StartSpan(ctx context.Context, name string, opts ...SpanOption) (context.Context, SpanEnder)
}

// SpanEnder ends a span. A non-nil error marks it failed.
type SpanEnder func(err error)

// SpanOption configures span behavior.
type SpanOption func(*spanConfig)

type spanConfig struct {
	kind       SpanKind
	attributes map[string]interface{}
}

// SpanKind identifies the type of span.
type SpanKind int

// SpanKindInternal is the default span kind; other values indicate server or client spans.
const (
	SpanKindInternal SpanKind = iota
	SpanKindServer
	SpanKindClient
)

// WithSpanKind sets the span kind.
func WithSpanKind(kind SpanKind) SpanOption {
	return func(c *spanConfig) {
		c.kind = kind
	}
}

// WithAttributes sets span attributes.
func WithAttributes(attrs map[string]interface{}) SpanOption {
	return func(c *spanConfig) {
		c.attributes = attrs
	}
}

// --- NoOp Tracer ---

// NoOpTracer discards spans. It is the global default.
type NoOpTracer struct{}

// StartSpan returns the context unchanged and a no-op end function.
func (NoOpTracer) StartSpan(ctx context.Context, name string, opts ...SpanOption) (context.Context, SpanEnder) {
	return ctx, func(err error) {}
}

// --- Simple Tracer ---

// DefaultSpanCapacity bounds the spans a SimpleTracer keeps.
const DefaultSpanCapacity = 4096

// SimpleTracer records finished spans in memory, keeping the most recent
// capacity of them. It backs the CLI's simple tracing mode and the tests.
type SimpleTracer struct {
	mu       sync.Mutex
	spans    []RecordedSpan
	capacity int
	dropped  uint64
}

// RecordedSpan is a finished span.
type RecordedSpan struct {
	Name       string
	StartTime  time.Time
	EndTime    time.Time
	Duration   time.Duration
	Kind       SpanKind
	Attributes map[string]interface{}
	Error      error
	TraceID    string
	SpanID     string
	ParentID   string
}

// NewSimpleTracer returns a tracer holding up to DefaultSpanCapacity spans.
func NewSimpleTracer() *SimpleTracer {
	return NewBoundedTracer(DefaultSpanCapacity)
}

// NewBoundedTracer returns a tracer holding up to capacity spans. Older
// spans are discarded first.
func NewBoundedTracer(capacity int) *SimpleTracer {
	if capacity < 1 {
		capacity = 1
	}
	return &SimpleTracer{capacity: capacity}
}

// StartSpan starts a span. A parent span in ctx donates its trace id.
func (t *SimpleTracer) StartSpan(ctx context.Context, name string, opts ...SpanOption) (context.Context, SpanEnder) {
	cfg := &spanConfig{attributes: map[string]interface{}{}}
	for _, opt := range opts {
		opt(cfg)
	}

	span := &RecordedSpan{
		Name:       name,
		StartTime:  time.Now(),
		Kind:       cfg.kind,
		Attributes: cfg.attributes,
		SpanID:     generateID(),
	}
	if parent := spanFromContext(ctx); parent != nil {
		span.ParentID = parent.SpanID
		span.TraceID = parent.TraceID
	} else {
		span.TraceID = generateID()
	}

	return contextWithSpan(ctx, span), func(err error) {
		span.EndTime = time.Now()
		span.Duration = span.EndTime.Sub(span.StartTime)
		span.Error = err
		t.record(*span)
	}
}

func (t *SimpleTracer) record(span RecordedSpan) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.spans) == t.capacity {
		copy(t.spans, t.spans[1:])
		t.spans = t.spans[:len(t.spans)-1]
		t.dropped++
	}
	t.spans = append(t.spans, span)
}

// Spans returns the retained spans, oldest first.
func (t *SimpleTracer) Spans() []RecordedSpan {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]RecordedSpan(nil), t.spans...)
}

// SpansNamed returns the retained spans called name.
func (t *SimpleTracer) SpansNamed(name string) []RecordedSpan {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []RecordedSpan
	for _, s := range t.spans {
		if s.Name == name {
			out = append(out, s)
		}
	}
	return out
}

// Dropped returns how many spans were discarded to stay within capacity.
func (t *SimpleTracer) Dropped() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.dropped
}

// Reset discards all spans.
func (t *SimpleTracer) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.spans = nil
	t.dropped = 0
}

// --- Context helpers ---

type spanContextKey struct{}

func contextWithSpan(ctx context.Context, span *RecordedSpan) context.Context {
	return context.WithValue(ctx, spanContextKey{}, span)
}

func spanFromContext(ctx context.Context) *RecordedSpan {
	if span, ok := ctx.Value(spanContextKey{}).(*RecordedSpan); ok {
		return span
	}
	return nil
}

// generateID returns a random span or trace identifier.
func generateID() string {
	return uuid.NewString()
}

// --- Global Tracer ---

var (
	globalTracer   Tracer = NoOpTracer{}
	globalTracerMu sync.RWMutex
)

// SetTracer sets the global tracer.
func SetTracer(t Tracer) {
	globalTracerMu.Lock()
	defer globalTracerMu.Unlock()
	globalTracer = t
}

// GetTracer returns the global tracer.
func GetTracer() Tracer {
	globalTracerMu.RLock()
	defer globalTracerMu.RUnlock()
	return globalTracer
}

// StartSpan starts a span using the global tracer.
func StartSpan(ctx context.Context, name string, opts ...SpanOption) (context.Context, SpanEnder) {
	return GetTracer().StartSpan(ctx, name, opts...)
}

// --- Span Names ---

// Standard span names for pqshare operations.
const (
	SpanShareCreate     = "pqshare.share.create"
	SpanShareRedeem     = "pqshare.share.redeem"
	SpanShareDeactivate = "pqshare.share.deactivate"
	SpanEnvelopeWrap    = "pqshare.envelope.wrap"
	SpanEnvelopeUnwrap  = "pqshare.envelope.unwrap"
	SpanUserKeysEnsure  = "pqshare.custody.user_keys"
	SpanServerKeyRotate = "pqshare.custody.rotate"
	SpanPasswordDerive  = "pqshare.custody.pbkdf2"
	SpanVaultSeal       = "pqshare.vault.seal"
	SpanVaultOpen       = "pqshare.vault.open"
)

// SpanAttributes for common pqshare operations.
type SpanAttributes struct {
	ShareID      string
	ShareKind    string
	KEMAlgorithm string
	CipherSuite  string
	PayloadBytes int64
	Error        string
}

// ToMap converts SpanAttributes to a generic map for use with tracers.
func (a SpanAttributes) ToMap() map[string]interface{} {
	m := make(map[string]interface{})
	if a.ShareID != "" {
		m["share.id"] = a.ShareID
	}
	if a.ShareKind != "" {
		m["share.kind"] = a.ShareKind
	}
	if a.KEMAlgorithm != "" {
		m["crypto.kem"] = a.KEMAlgorithm
	}
	if a.CipherSuite != "" {
		m["crypto.cipher_suite"] = a.CipherSuite
	}
	if a.PayloadBytes > 0 {
		m["payload.bytes"] = a.PayloadBytes
	}
	if a.Error != "" {
		m["error.message"] = a.Error
	}
	return m
}
