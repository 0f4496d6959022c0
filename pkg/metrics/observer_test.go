package metrics

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	qerrors "github.com/pzverkov/pqshare/internal/errors"
)

func newTestObserver(buf *bytes.Buffer) (*ShareObserver, *Collector, *SimpleTracer) {
	c := NewCollector(nil)
	tr := NewSimpleTracer()
	o := NewShareObserver(ShareObserverConfig{Collector: c, Tracer: tr, Logger: TestLogger(buf)})
	return o, c, tr
}

func TestClassifyRejection(t *testing.T) {
	tests := []struct {
		err    error
		reason RejectReason
		ok     bool
	}{
		{qerrors.ErrNotFound, RejectNotFound, true},
		{qerrors.ErrExpired, RejectExpired, true},
		{qerrors.ErrExhausted, RejectExhausted, true},
		{qerrors.ErrExpiredOrExhausted, RejectExhausted, true},
		{qerrors.ErrDeactivated, RejectDeactivated, true},
		{qerrors.NewShareError("redeem", "abc", qerrors.ErrAccessDenied), RejectAccessDenied, true},
		{fmt.Errorf("wrapped: %w", qerrors.ErrRateLimited), RejectRateLimited, true},
		{qerrors.ErrAuthenticationFailed, RejectAuthFailed, true},
		{errors.New("disk on fire"), 0, false},
	}

	for _, tt := range tests {
		reason, ok := ClassifyRejection(tt.err)
		if ok != tt.ok || (ok && reason != tt.reason) {
			t.Errorf("ClassifyRejection(%v) = %v, %v; want %v, %v", tt.err, reason, ok, tt.reason, tt.ok)
		}
	}
}

func TestShareObserverCreate(t *testing.T) {
	var buf bytes.Buffer
	o, c, tr := newTestObserver(&buf)

	_, done := o.OnCreate(context.Background(), "private", 10)
	done("share-1", nil)
	_, done = o.OnCreate(context.Background(), "public", 5)
	done("", errors.New("store down"))

	snap := c.Snapshot()
	if snap.PrivateSharesCreated != 1 || snap.PublicSharesCreated != 0 {
		t.Errorf("created = %d private / %d public", snap.PrivateSharesCreated, snap.PublicSharesCreated)
	}
	if snap.BytesEncrypted != 10 {
		t.Errorf("bytes encrypted = %d", snap.BytesEncrypted)
	}
	if spans := tr.Spans(); len(spans) != 2 || spans[0].Name != SpanShareCreate || spans[1].Error == nil {
		t.Errorf("unexpected spans: %+v", spans)
	}
	if !strings.Contains(buf.String(), "share creation failed") {
		t.Error("creation failure not logged")
	}
}

func TestShareObserverRedeem(t *testing.T) {
	var buf bytes.Buffer
	o, c, _ := newTestObserver(&buf)

	_, done := o.OnRedeem(context.Background(), "s1")
	done(10, nil)
	_, done = o.OnRedeem(context.Background(), "s1")
	done(0, qerrors.ErrExhausted)
	_, done = o.OnRedeem(context.Background(), "s1")
	done(0, errors.New("io"))

	snap := c.Snapshot()
	if snap.SharesRedeemed != 1 || snap.BytesDecrypted != 10 {
		t.Errorf("redeemed = %d, bytes = %d", snap.SharesRedeemed, snap.BytesDecrypted)
	}
	if snap.Rejections["exhausted"] != 1 || snap.RejectionsTotal() != 1 {
		t.Errorf("rejections = %v", snap.Rejections)
	}
	if !strings.Contains(buf.String(), "redemption failed") {
		t.Error("internal failure not logged")
	}
}

func TestShareObserverWrapUnwrap(t *testing.T) {
	var buf bytes.Buffer
	o, c, tr := newTestObserver(&buf)

	_, done := o.OnWrap(context.Background(), "ML-KEM-768")
	done(nil)
	_, done = o.OnUnwrap(context.Background(), "ML-KEM-768")
	done(qerrors.ErrAuthenticationFailed)

	snap := c.Snapshot()
	if snap.WrapLatency.Count != 1 || snap.UnwrapLatency.Count != 1 {
		t.Error("latencies not recorded")
	}
	if snap.WrapErrors != 0 || snap.UnwrapErrors != 1 {
		t.Errorf("errors = %d wrap / %d unwrap", snap.WrapErrors, snap.UnwrapErrors)
	}
	spans := tr.Spans()
	if len(spans) != 2 || spans[0].Attributes["crypto.kem"] != "ML-KEM-768" {
		t.Errorf("unexpected spans: %+v", spans)
	}
}

func TestShareObserverDeactivateAndRateLimit(t *testing.T) {
	var buf bytes.Buffer
	o, c, _ := newTestObserver(&buf)

	o.OnDeactivate(context.Background(), "s1", nil)
	o.OnDeactivate(context.Background(), "s2", qerrors.ErrAccessDenied)
	o.OnRateLimited("s3")

	if c.Snapshot().SharesDeactivated != 1 {
		t.Error("expected one deactivation")
	}
	if !strings.Contains(buf.String(), "redeem rate limit exceeded") {
		t.Error("rate limit not logged")
	}
	if o.Collector() != c || o.Logger() == nil {
		t.Error("accessors broken")
	}
}
