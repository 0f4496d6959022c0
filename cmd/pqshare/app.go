package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/pzverkov/pqshare/pkg/config"
	"github.com/pzverkov/pqshare/pkg/crypto"
	"github.com/pzverkov/pqshare/pkg/custody"
	"github.com/pzverkov/pqshare/pkg/envelope"
	"github.com/pzverkov/pqshare/pkg/kem"
	"github.com/pzverkov/pqshare/pkg/metrics"
	"github.com/pzverkov/pqshare/pkg/share"
	"github.com/pzverkov/pqshare/pkg/store"
	"github.com/pzverkov/pqshare/pkg/store/blob"
	"github.com/pzverkov/pqshare/pkg/store/memory"
	"github.com/pzverkov/pqshare/pkg/store/postgres"
	"github.com/pzverkov/pqshare/pkg/vault"
)

// app is the wired service graph shared by the subcommands.
type app struct {
	cfg       *config.Config
	logger    *metrics.Logger
	collector *metrics.Collector
	tracer    metrics.Tracer

	store  store.Store
	blobs  store.BlobStore
	scheme kem.Scheme

	custody *custody.Service
	vault   *vault.Vault
	shares  *share.Manager
}

// setupObservability installs the process logger, tracer and collector.
func setupObservability(cfg *config.Config, tracing string) (*metrics.Logger, *metrics.Collector, metrics.Tracer, error) {
	logger := cfg.Logger()
	metrics.SetLogger(logger)

	var tracer metrics.Tracer
	switch strings.ToLower(tracing) {
	case "", "none":
		tracer = metrics.NoOpTracer{}
	case "simple":
		tracer = metrics.NewSimpleTracer()
	case "otel":
		tracer = metrics.NewOTelTracer("pqshare")
	default:
		return nil, nil, nil, fmt.Errorf("invalid tracing mode: %s (use none, simple, or otel)", tracing)
	}
	metrics.SetTracer(tracer)

	hostname, _ := os.Hostname()
	collector := metrics.NewCollector(metrics.Labels{"instance": hostname})
	metrics.SetGlobal(collector)

	return logger, collector, tracer, nil
}

// newApp loads configuration and wires storage, custody and shares. With
// migrate set, pending database migrations run first.
func newApp(ctx context.Context, tracing string, migrate bool) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	logger, collector, tracer, err := setupObservability(cfg, tracing)
	if err != nil {
		return nil, err
	}

	if res := crypto.RunSelfTests(); res.Err() != nil {
		return nil, fmt.Errorf("crypto self-test failed: %w", res.Err())
	}

	a := &app{cfg: cfg, logger: logger, collector: collector, tracer: tracer}

	if cfg.UsesDatabase() {
		if migrate {
			if err := postgres.Migrate(cfg.DatabaseURL, logger); err != nil {
				return nil, err
			}
		}
		pool, err := postgres.Connect(ctx, cfg.DatabaseURL, logger)
		if err != nil {
			return nil, err
		}
		a.store = postgres.New(pool)
	} else {
		logger.Warn("DATABASE_URL not set, using in-memory store")
		a.store = memory.New()
	}

	fs, err := blob.NewFS(cfg.UploadFolder)
	if err != nil {
		a.store.Close()
		return nil, err
	}
	a.blobs = fs

	a.scheme, err = kem.Load(kem.Options{
		Provider:      cfg.KEMProvider,
		Algorithm:     cfg.KEMAlgorithm,
		AllowFallback: cfg.KEMFallback,
		Logger:        logger,
		Collector:     collector,
	})
	if err != nil {
		a.store.Close()
		return nil, err
	}

	a.custody, err = custody.NewService(custody.Config{
		MasterSecret: []byte(cfg.MasterKey),
		Iterations:   cfg.PBKDF2Iterations,
		ServerKeyID:  cfg.ServerKeyID,
		RotationDays: cfg.RotationDays,
	}, a.scheme, a.store, a.store,
		custody.WithLogger(logger),
		custody.WithCollector(collector),
		custody.WithTracer(tracer),
		custody.WithWorkers(cfg.CryptoWorkers),
		custody.WithPublicKeyCache(cfg.PubKeyCacheSize, cfg.PubKeyCacheTTL),
	)
	if err != nil {
		a.store.Close()
		return nil, err
	}

	a.vault = vault.New(a.custody, a.store, a.blobs, vault.WithLogger(logger), vault.WithTracer(tracer))

	observer := metrics.NewShareObserver(metrics.ShareObserverConfig{Collector: collector, Tracer: tracer, Logger: logger})
	engine := envelope.New(a.scheme, cfg.CipherSuite, envelope.WithObserver(observer))
	a.shares = share.NewManager(a.custody, engine, a.store, a.blobs,
		share.WithLogger(logger),
		share.WithCollector(collector),
		share.WithTracer(tracer),
		share.WithBasePath(cfg.ShareBasePath),
		share.WithDefaultExpiry(cfg.ShareDefaultExpiry),
		share.WithSuite(cfg.CipherSuite),
		share.WithAttemptLimiter(share.NewAttemptLimiter(cfg.RedeemRate, cfg.RedeemBurst)),
		share.WithVerifyServerWrap(cfg.VerifyServerWrap),
		share.WithFileSource(a.vault),
		share.WithFeatures(cfg.EnableShareLinks, cfg.EnableUserKeys),
	)
	return a, nil
}

func (a *app) Close() {
	a.store.Close()
}

// healthChecks registers the kem, database and self_test checks.
func (a *app) healthChecks(s *metrics.Server) {
	s.AddHealthCheck("kem", func(context.Context) error {
		if !a.scheme.Secure() {
			return metrics.Degraded(fmt.Errorf("%s is INSECURE", a.scheme.Name()))
		}
		return nil
	})
	s.AddHealthCheck("database", a.store.Ping)
	s.AddHealthCheck("self_test", func(context.Context) error {
		if !crypto.SelfTestsPassed() {
			return fmt.Errorf("crypto self-tests have not passed")
		}
		return nil
	})
}
