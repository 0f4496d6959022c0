package metrics

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestNoOpTracer(t *testing.T) {
	ctx := context.Background()
	newCtx, end := NoOpTracer{}.StartSpan(ctx, SpanShareCreate)
	if newCtx != ctx {
		t.Error("NoOpTracer changed the context")
	}
	end(nil)
	end(errors.New("ignored"))
}

func TestSimpleTracerRecordsSpan(t *testing.T) {
	tests := []struct {
		name  string
		kind  SpanKind
		err   error
		attrs map[string]interface{}
	}{
		{"ok", SpanKindServer, nil, SpanAttributes{ShareID: "abc"}.ToMap()},
		{"failed", SpanKindInternal, errors.New("unwrap failed"), nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tracer := NewSimpleTracer()
			opts := []SpanOption{WithSpanKind(tt.kind)}
			if tt.attrs != nil {
				opts = append(opts, WithAttributes(tt.attrs))
			}
			_, end := tracer.StartSpan(context.Background(), SpanShareRedeem, opts...)
			time.Sleep(time.Millisecond)
			end(tt.err)

			spans := tracer.Spans()
			if len(spans) != 1 {
				t.Fatalf("expected 1 span, got %d", len(spans))
			}
			span := spans[0]
			if span.Name != SpanShareRedeem || span.Kind != tt.kind || span.Error != tt.err {
				t.Errorf("span = %+v", span)
			}
			if span.Duration < time.Millisecond || span.TraceID == "" || span.SpanID == "" {
				t.Errorf("span timing or ids missing: %+v", span)
			}
			if tt.attrs != nil && span.Attributes["share.id"] != "abc" {
				t.Errorf("attributes = %v", span.Attributes)
			}
		})
	}
}

func TestSimpleTracerParentSpan(t *testing.T) {
	tracer := NewSimpleTracer()

	ctx, endParent := tracer.StartSpan(context.Background(), SpanShareCreate)
	_, endChild := tracer.StartSpan(ctx, SpanEnvelopeWrap)
	endChild(nil)
	endParent(nil)

	parent := tracer.SpansNamed(SpanShareCreate)
	child := tracer.SpansNamed(SpanEnvelopeWrap)
	if len(parent) != 1 || len(child) != 1 {
		t.Fatalf("expected one parent and one child, got %d and %d", len(parent), len(child))
	}
	if child[0].ParentID != parent[0].SpanID {
		t.Error("child does not point at its parent")
	}
	if child[0].TraceID != parent[0].TraceID {
		t.Error("child has a different trace id")
	}
	if parent[0].ParentID != "" {
		t.Error("root span has a parent")
	}
}

func TestSimpleTracerCapacity(t *testing.T) {
	tracer := NewBoundedTracer(3)
	for _, name := range []string{"a", "b", "c", "d", "e"} {
		_, end := tracer.StartSpan(context.Background(), name)
		end(nil)
	}

	spans := tracer.Spans()
	if len(spans) != 3 {
		t.Fatalf("expected 3 spans, got %d", len(spans))
	}
	if spans[0].Name != "c" || spans[2].Name != "e" {
		t.Errorf("kept %s..%s, want c..e", spans[0].Name, spans[2].Name)
	}
	if tracer.Dropped() != 2 {
		t.Errorf("Dropped() = %d, want 2", tracer.Dropped())
	}

	tracer.Reset()
	if len(tracer.Spans()) != 0 || tracer.Dropped() != 0 {
		t.Error("Reset left state behind")
	}
	if NewBoundedTracer(0).capacity != 1 {
		t.Error("non-positive capacity not clamped")
	}
}

func TestGlobalTracer(t *testing.T) {
	if _, ok := GetTracer().(NoOpTracer); !ok {
		t.Error("default tracer should be NoOpTracer")
	}

	simple := NewSimpleTracer()
	SetTracer(simple)
	defer SetTracer(NoOpTracer{})

	_, end := StartSpan(context.Background(), SpanVaultSeal)
	end(nil)

	if len(simple.SpansNamed(SpanVaultSeal)) != 1 {
		t.Error("expected span from global StartSpan")
	}
}

func TestSpanAttributes(t *testing.T) {
	attrs := SpanAttributes{
		ShareID:      "Xk3...",
		ShareKind:    "private",
		KEMAlgorithm: "ML-KEM-768",
		CipherSuite:  "AES-256-GCM",
		PayloadBytes: 10,
		Error:        "test error",
	}

	m := attrs.ToMap()
	want := map[string]interface{}{
		"share.id":            "Xk3...",
		"share.kind":          "private",
		"crypto.kem":          "ML-KEM-768",
		"crypto.cipher_suite": "AES-256-GCM",
		"payload.bytes":       int64(10),
		"error.message":       "test error",
	}
	for k, v := range want {
		if m[k] != v {
			t.Errorf("%s = %v, want %v", k, m[k], v)
		}
	}
	if len(m) != len(want) {
		t.Errorf("unexpected extra attributes: %v", m)
	}
}

func TestSpanAttributesEmpty(t *testing.T) {
	if m := (SpanAttributes{}).ToMap(); len(m) != 0 {
		t.Errorf("expected empty map for empty attributes, got %d items", len(m))
	}
}

func TestSpanNames(t *testing.T) {
	names := []string{
		SpanShareCreate,
		SpanShareRedeem,
		SpanShareDeactivate,
		SpanEnvelopeWrap,
		SpanEnvelopeUnwrap,
		SpanUserKeysEnsure,
		SpanServerKeyRotate,
		SpanPasswordDerive,
		SpanVaultSeal,
		SpanVaultOpen,
	}

	seen := make(map[string]bool)
	for _, name := range names {
		if !strings.HasPrefix(name, "pqshare.") {
			t.Errorf("span %q lacks the pqshare prefix", name)
		}
		if seen[name] {
			t.Errorf("duplicate span name %q", name)
		}
		seen[name] = true
	}
}

func TestOTelTracerWithoutSDK(t *testing.T) {
	tracer := NewOTelTracer("")
	ctx, end := tracer.StartSpan(context.Background(), SpanShareRedeem,
		WithSpanKind(SpanKindServer),
		WithAttributes(map[string]interface{}{"share.id": "x", "n": 1, "ok": true, "f": 1.5, "other": []int{1}}))
	if ctx == nil {
		t.Fatal("nil context")
	}
	end(errors.New("boom"))
}

func TestSimpleTracerConcurrency(t *testing.T) {
	tracer := NewSimpleTracer()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				_, end := tracer.StartSpan(ctx, SpanEnvelopeUnwrap)
				end(nil)
			}
		}()
	}
	wg.Wait()

	spans := tracer.Spans()
	if len(spans) != 1000 {
		t.Errorf("expected 1000 spans, got %d", len(spans))
	}
}
