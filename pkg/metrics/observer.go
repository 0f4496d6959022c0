package metrics

import (
	"context"
	"errors"
	"time"

	qerrors "github.com/pzverkov/pqshare/internal/errors"
)

// ShareObserver provides observability hooks for share and envelope
// operations. Each hook records metrics, traces and logs in one place.
type ShareObserver struct {
	collector *Collector
	tracer    Tracer
	logger    *Logger
}

// ShareObserverConfig configures a share observer. Nil fields fall back to
// the global collector, tracer and logger.
type ShareObserverConfig struct {
	Collector *Collector
	Tracer    Tracer
	Logger    *Logger
}

// NewShareObserver creates a new share observer.
func NewShareObserver(cfg ShareObserverConfig) *ShareObserver {
	if cfg.Collector == nil {
		cfg.Collector = Global()
	}
	if cfg.Tracer == nil {
		cfg.Tracer = GetTracer()
	}
	if cfg.Logger == nil {
		cfg.Logger = GetLogger()
	}

	return &ShareObserver{
		collector: cfg.Collector,
		tracer:    cfg.Tracer,
		logger:    cfg.Logger.Named("share"),
	}
}

// Collector returns the observer's collector.
func (o *ShareObserver) Collector() *Collector {
	return o.collector
}

// Logger returns the observer's logger for custom logging.
func (o *ShareObserver) Logger() *Logger {
	return o.logger
}

// ClassifyRejection maps a redemption error to its rejection reason.
// It returns false for errors that are not client-visible refusals.
func ClassifyRejection(err error) (RejectReason, bool) {
	switch {
	case errors.Is(err, qerrors.ErrNotFound):
		return RejectNotFound, true
	case errors.Is(err, qerrors.ErrExpired):
		return RejectExpired, true
	case errors.Is(err, qerrors.ErrExhausted), errors.Is(err, qerrors.ErrExpiredOrExhausted):
		return RejectExhausted, true
	case errors.Is(err, qerrors.ErrDeactivated):
		return RejectDeactivated, true
	case errors.Is(err, qerrors.ErrAccessDenied):
		return RejectAccessDenied, true
	case errors.Is(err, qerrors.ErrRateLimited):
		return RejectRateLimited, true
	case errors.Is(err, qerrors.ErrAuthenticationFailed):
		return RejectAuthFailed, true
	}
	return 0, false
}

// OnCreate starts tracing a share creation.
func (o *ShareObserver) OnCreate(ctx context.Context, kind string, payloadLen int) (context.Context, func(shareID string, err error)) {
	ctx, endSpan := o.tracer.StartSpan(ctx, SpanShareCreate, WithAttributes(SpanAttributes{
		ShareKind:    kind,
		PayloadBytes: int64(payloadLen),
	}.ToMap()))

	return ctx, func(shareID string, err error) {
		if err != nil {
			o.logger.Error("share creation failed", Fields{"kind": kind, "error": err})
		} else {
			o.collector.ShareCreated(kind == "private")
			o.collector.RecordBytesEncrypted(payloadLen)
			o.logger.Info("share created", Fields{"kind": kind, "share_id": shareID})
		}
		endSpan(err)
	}
}

// OnRedeem starts tracing a redemption attempt.
func (o *ShareObserver) OnRedeem(ctx context.Context, shareID string) (context.Context, func(n int, err error)) {
	ctx, endSpan := o.tracer.StartSpan(ctx, SpanShareRedeem,
		WithSpanKind(SpanKindServer),
		WithAttributes(SpanAttributes{ShareID: shareID}.ToMap()))

	return ctx, func(n int, err error) {
		switch reason, refused := ClassifyRejection(err); {
		case err == nil:
			o.collector.ShareRedeemed(n)
			o.logger.Info("share redeemed", Fields{"share_id": shareID, "bytes": n})
		case refused:
			o.collector.RedeemRejected(reason)
			o.logger.Warn("redemption refused", Fields{"share_id": shareID, "reason": reason.String()})
		default:
			o.logger.Error("redemption failed", Fields{"share_id": shareID, "error": err})
		}
		endSpan(err)
	}
}

// OnDeactivate records an owner deactivating a share.
func (o *ShareObserver) OnDeactivate(ctx context.Context, shareID string, err error) {
	_, endSpan := o.tracer.StartSpan(ctx, SpanShareDeactivate, WithAttributes(SpanAttributes{ShareID: shareID}.ToMap()))
	if err == nil {
		o.collector.ShareDeactivated()
		o.logger.Info("share deactivated", Fields{"share_id": shareID})
	}
	endSpan(err)
}

// OnWrap starts timing a KEM wrap.
func (o *ShareObserver) OnWrap(ctx context.Context, algorithm string) (context.Context, func(error)) {
	start := time.Now()
	ctx, endSpan := o.tracer.StartSpan(ctx, SpanEnvelopeWrap, WithAttributes(SpanAttributes{KEMAlgorithm: algorithm}.ToMap()))

	return ctx, func(err error) {
		o.collector.RecordWrapLatency(time.Since(start))
		if err != nil {
			o.collector.RecordWrapError()
			o.logger.Error("key wrap failed", Fields{"kem": algorithm, "error": err})
		}
		endSpan(err)
	}
}

// OnUnwrap starts timing a KEM unwrap. Failures are logged at debug level
// because a wrong key is an expected client error.
func (o *ShareObserver) OnUnwrap(ctx context.Context, algorithm string) (context.Context, func(error)) {
	start := time.Now()
	ctx, endSpan := o.tracer.StartSpan(ctx, SpanEnvelopeUnwrap, WithAttributes(SpanAttributes{KEMAlgorithm: algorithm}.ToMap()))

	return ctx, func(err error) {
		o.collector.RecordUnwrapLatency(time.Since(start))
		if err != nil {
			o.collector.RecordUnwrapError()
			o.logger.Debug("key unwrap failed", Fields{"kem": algorithm, "error": err})
		}
		endSpan(err)
	}
}

// OnRateLimited records a redemption refused by the attempt limiter.
func (o *ShareObserver) OnRateLimited(shareID string) {
	o.logger.Warn("redeem rate limit exceeded", Fields{"share_id": shareID})
}
