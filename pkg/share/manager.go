// Package share creates, redeems and retires file shares.
//
// A public share encrypts its payload under a fresh 32-byte key carried in
// the URL fragment; a copy of that key is wrapped to the server key so the
// operator can recover it. A private share wraps the key to the target
// user's KEM public key and its URL carries no key.
//
// Redemption runs in a fixed order: attempt limit, lookup, lifecycle state,
// access and key unlock, payload decryption, and finally an atomic consume
// of one download. A failed consume discards the decrypted payload.
package share

import (
	"context"
	"time"

	"github.com/pzverkov/pqshare/internal/constants"
	"github.com/pzverkov/pqshare/pkg/custody"
	"github.com/pzverkov/pqshare/pkg/envelope"
	"github.com/pzverkov/pqshare/pkg/metrics"
	"github.com/pzverkov/pqshare/pkg/model"
	"github.com/pzverkov/pqshare/pkg/store"
)

// KeyCustody is the subset of *custody.Service the manager needs.
type KeyCustody interface {
	ServerKeyID() string
	EnsureServerKey(ctx context.Context) (*custody.PublicKey, error)
	ServerPrivateKey(ctx context.Context, generation string) (*custody.PrivateKey, error)
	UserPublicKey(ctx context.Context, userID string) (*custody.PublicKey, error)
	UserPrivateKey(ctx context.Context, userID, password string) (*custody.PrivateKey, error)
}

// FileSource loads an owner's stored file. *vault.Vault implements it.
type FileSource interface {
	Load(ctx context.Context, ownerID, fileID string) (*model.StoredFile, []byte, error)
}

// Manager runs the share lifecycle. It is safe for concurrent use.
type Manager struct {
	custody KeyCustody
	engine  *envelope.Engine
	shares  store.ShareStore
	blobs   store.BlobStore
	files   FileSource

	logger    *metrics.Logger
	collector *metrics.Collector
	tracer    metrics.Tracer
	observer  *metrics.ShareObserver
	now       func() time.Time

	basePath      string
	defaultExpiry time.Duration
	suite         constants.CipherSuite
	limiter       *AttemptLimiter
	verifyWrap    bool
	publicLinks   bool
	privateShares bool
}

// Option configures a Manager.
type Option func(*Manager)

func WithLogger(l *metrics.Logger) Option       { return func(m *Manager) { m.logger = l } }
func WithCollector(c *metrics.Collector) Option { return func(m *Manager) { m.collector = c } }
func WithTracer(t metrics.Tracer) Option        { return func(m *Manager) { m.tracer = t } }

// WithClock replaces time.Now for expiry decisions.
func WithClock(now func() time.Time) Option { return func(m *Manager) { m.now = now } }

// WithBasePath sets the prefix of generated URLs. Default "/share".
func WithBasePath(p string) Option { return func(m *Manager) { m.basePath = p } }

// WithDefaultExpiry applies when a request leaves ExpiryHours at zero.
func WithDefaultExpiry(d time.Duration) Option { return func(m *Manager) { m.defaultExpiry = d } }

// WithSuite selects the payload AEAD. Defaults to the engine's suite.
func WithSuite(s constants.CipherSuite) Option { return func(m *Manager) { m.suite = s } }

// WithAttemptLimiter throttles redemptions per share.
func WithAttemptLimiter(l *AttemptLimiter) Option { return func(m *Manager) { m.limiter = l } }

// WithVerifyServerWrap makes public redemption cross-check the link key
// against the server-wrapped copy.
func WithVerifyServerWrap(on bool) Option { return func(m *Manager) { m.verifyWrap = on } }

// WithFileSource enables the FromFile operations.
func WithFileSource(f FileSource) Option { return func(m *Manager) { m.files = f } }

// WithFeatures switches public links and private shares on or off.
func WithFeatures(publicLinks, privateShares bool) Option {
	return func(m *Manager) { m.publicLinks, m.privateShares = publicLinks, privateShares }
}

// NewManager creates a share manager.
func NewManager(keys KeyCustody, engine *envelope.Engine, shares store.ShareStore, blobs store.BlobStore, opts ...Option) *Manager {
	m := &Manager{
		custody:       keys,
		engine:        engine,
		shares:        shares,
		blobs:         blobs,
		logger:        metrics.NullLogger(),
		collector:     metrics.Global(),
		tracer:        metrics.NoOpTracer{},
		now:           time.Now,
		basePath:      constants.DefaultSharePath,
		defaultExpiry: constants.DefaultShareExpiryHours * time.Hour,
		publicLinks:   true,
		privateShares: true,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.suite == 0 {
		m.suite = engine.Suite()
	}
	// Records carry a single suite for the payload and both wraps.
	m.engine = engine.ForSuite(m.suite)
	m.observer = metrics.NewShareObserver(metrics.ShareObserverConfig{
		Collector: m.collector,
		Tracer:    m.tracer,
		Logger:    m.logger,
	})
	return m
}

// Observer returns the hooks the manager reports through.
func (m *Manager) Observer() *metrics.ShareObserver {
	return m.observer
}
