// Package metrics provides observability for pqshare: structured logging,
// counters and latency histograms, Prometheus export, tracing hooks and
// health endpoints.
//
// # Collector
//
// A Collector aggregates share and key events with atomic counters:
//
//	c := metrics.NewCollector(metrics.Labels{"instance": "node-1"})
//	c.ShareCreated(private)
//	c.RedeemRejected(metrics.RejectExpired)
//	c.RecordWrapLatency(d)
//	snap := c.Snapshot()
//
// Components normally do not call the collector directly. They go through a
// ShareObserver, which records the metric, the span and the log line for an
// operation in one place:
//
//	obs := metrics.NewShareObserver(metrics.ShareObserverConfig{Collector: c, Logger: logger})
//	ctx, done := obs.OnRedeem(ctx, shareID)
//	dl, err := redeem(ctx)
//	done(len(dl.Payload), err)
//
// # Prometheus
//
// PrometheusExporter is a prometheus.Collector that reads a Snapshot at
// scrape time. It owns its own registry, which also carries the Go runtime
// and process collectors:
//
//	exp := metrics.NewPrometheusExporter(c, "pqshare")
//	http.Handle("/metrics", exp.Handler())
//
// # Tracing
//
// Tracer is a small interface with NoOpTracer, SimpleTracer (in-memory, for
// tests) and OTelTracer, which forwards to the global OpenTelemetry
// provider:
//
//	metrics.SetTracer(metrics.NewOTelTracer("pqshare"))
//	ctx, end := metrics.StartSpan(ctx, metrics.SpanShareRedeem)
//	defer end(err)
//
// # Logging
//
// Logger wraps log/slog with text or JSON output, named children and a
// level shared by every child:
//
//	logger := metrics.NewLogger(
//		metrics.WithLevel(metrics.LevelInfo),
//		metrics.WithFormat(metrics.FormatJSON),
//	)
//	logger.Named("custody").Warn("server key rotated", metrics.Fields{"generation": gen})
//
// # Health
//
// Server mounts /metrics, /health, /healthz and /readyz on a chi router.
// A check returning Degraded(err) marks the service degraded without
// failing readiness; the mock KEM does this automatically through the
// collector's insecure flag.
package metrics
