// Package custody generates, stores and releases KEM keypairs for users and
// for the server.
//
// Private keys are stored sealed under a PBKDF2 key derived from a password
// and the service master secret:
//
//	user:   PBKDF2(len||password || len||master, salt)
//	server: PBKDF2(len||"server_static_key" || len||master, salt)
//
// The sealed envelope is bound to its owner through associated data, so a
// row copied to another user or generation does not open.
//
// Server keys rotate by generation. Every generation is retained, so data
// wrapped under a rotated key stays recoverable.
package custody

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/semaphore"

	"github.com/pzverkov/pqshare/internal/constants"
	qerrors "github.com/pzverkov/pqshare/internal/errors"
	"github.com/pzverkov/pqshare/pkg/crypto"
	"github.com/pzverkov/pqshare/pkg/kem"
	"github.com/pzverkov/pqshare/pkg/metrics"
	"github.com/pzverkov/pqshare/pkg/model"
	"github.com/pzverkov/pqshare/pkg/store"
)

// Private keys at rest are always sealed with AES-256-GCM, independent of
// the suite configured for shares.
const keySuite = constants.CipherSuiteAES256GCM

// Config holds the custody parameters.
type Config struct {
	// MasterSecret is mixed into every key-encryption password.
	MasterSecret []byte

	// Iterations is the PBKDF2 count; zero selects the default.
	Iterations int

	// ServerKeyID is the logical server key; empty selects "default".
	ServerKeyID string

	// RotationDays is the server key lifetime; zero disables age-based
	// rotation.
	RotationDays int
}

// Service is the key custody service. It is safe for concurrent use.
type Service struct {
	cfg     Config
	scheme  kem.Scheme
	users   store.UserKeyStore
	servers store.ServerKeyStore

	logger    *metrics.Logger
	collector *metrics.Collector
	tracer    metrics.Tracer
	now       func() time.Time

	workers  int64
	sem      *semaphore.Weighted
	cacheLen int
	cacheTTL time.Duration
	pubCache *expirable.LRU[string, *PublicKey]
}

// Option configures a Service.
type Option func(*Service)

func WithLogger(l *metrics.Logger) Option {
	return func(s *Service) { s.logger = l }
}

func WithCollector(c *metrics.Collector) Option {
	return func(s *Service) { s.collector = c }
}

func WithTracer(t metrics.Tracer) Option {
	return func(s *Service) { s.tracer = t }
}

// WithClock replaces time.Now, for rotation tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithWorkers bounds concurrent PBKDF2 derivations.
func WithWorkers(n int) Option {
	return func(s *Service) { s.workers = int64(n) }
}

// WithPublicKeyCache caches public keys (never private ones). A size of
// zero disables the cache.
func WithPublicKeyCache(size int, ttl time.Duration) Option {
	return func(s *Service) { s.cacheLen, s.cacheTTL = size, ttl }
}

// NewService validates cfg and builds a service on scheme.
func NewService(cfg Config, scheme kem.Scheme, users store.UserKeyStore, servers store.ServerKeyStore, opts ...Option) (*Service, error) {
	if len(cfg.MasterSecret) == 0 {
		return nil, fmt.Errorf("%w: custody master secret is empty", qerrors.ErrConfiguration)
	}
	if cfg.Iterations == 0 {
		cfg.Iterations = constants.DefaultPBKDF2Iterations
	}
	if cfg.Iterations < constants.MinPBKDF2Iterations {
		return nil, fmt.Errorf("%w: PBKDF2 iterations %d below %d", qerrors.ErrConfiguration, cfg.Iterations, constants.MinPBKDF2Iterations)
	}
	if cfg.ServerKeyID == "" {
		cfg.ServerKeyID = constants.DefaultServerKeyID
	}
	if scheme == nil {
		return nil, qerrors.ErrKEMDisabled
	}

	s := &Service{
		cfg:       cfg,
		scheme:    scheme,
		users:     users,
		servers:   servers,
		logger:    metrics.NullLogger(),
		collector: metrics.Global(),
		tracer:    metrics.NoOpTracer{},
		now:       time.Now,
		workers:   int64(runtime.NumCPU()),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.workers < 1 {
		s.workers = 1
	}
	s.sem = semaphore.NewWeighted(s.workers)
	if s.cacheLen > 0 {
		s.pubCache = expirable.NewLRU[string, *PublicKey](s.cacheLen, nil, s.cacheTTL)
	}
	s.logger = s.logger.Named("custody")
	return s, nil
}

// Scheme returns the KEM used for new keys.
func (s *Service) Scheme() kem.Scheme {
	return s.scheme
}

// ServerKeyID returns the logical server key id.
func (s *Service) ServerKeyID() string {
	return s.cfg.ServerKeyID
}

// PublicKey is a KEM public key with its algorithm. Generation is set for
// server keys. Callers must not modify Bytes.
type PublicKey struct {
	Algorithm  string
	Generation string
	Bytes      []byte
}

// PrivateKey is released key material. Call Zeroize when done.
type PrivateKey struct {
	Algorithm string
	bytes     []byte
}

// Bytes returns the encoded key. The slice is wiped by Zeroize.
func (k *PrivateKey) Bytes() []byte {
	return k.bytes
}

// Zeroize wipes the key.
func (k *PrivateKey) Zeroize() {
	if k == nil {
		return
	}
	crypto.Zeroize(k.bytes)
	k.bytes = nil
}

// deriveKEK derives the key protecting a private key from secret and the
// master secret.
func (s *Service) deriveKEK(ctx context.Context, secret, salt []byte) ([]byte, error) {
	return s.derive(ctx, salt, secret, s.cfg.MasterSecret)
}

// FileKey derives the at-rest key for a file owned by ownerID.
func (s *Service) FileKey(ctx context.Context, ownerID string, salt []byte) ([]byte, error) {
	return s.derive(ctx, salt, s.cfg.MasterSecret, []byte(ownerID))
}

// derive runs PBKDF2 over the joined parts under the worker semaphore.
func (s *Service) derive(ctx context.Context, salt []byte, parts ...[]byte) ([]byte, error) {
	if err := s.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer s.sem.Release(1)

	_, end := s.tracer.StartSpan(ctx, metrics.SpanPasswordDerive)
	start := time.Now()
	password := crypto.JoinSecrets(parts...)
	key, err := crypto.DerivePasswordKey(password, salt, s.cfg.Iterations)
	crypto.Zeroize(password)
	s.collector.RecordPasswordLatency(time.Since(start))
	end(err)
	return key, err
}

// seal encrypts a private key under secret, bound to binding.
func (s *Service) seal(ctx context.Context, secret, privateKey []byte, binding string) (model.EncryptedPrivateKey, error) {
	salt, err := crypto.NewSalt()
	if err != nil {
		return model.EncryptedPrivateKey{}, err
	}
	kek, err := s.deriveKEK(ctx, secret, salt)
	if err != nil {
		return model.EncryptedPrivateKey{}, err
	}
	defer crypto.Zeroize(kek)

	env, err := crypto.Seal(keySuite, kek, privateKey, []byte(binding))
	if err != nil {
		return model.EncryptedPrivateKey{}, err
	}
	return model.EncryptedPrivateKey{Salt: salt, Envelope: env}, nil
}

// open reverses seal. A wrong secret yields ErrAuthenticationFailed.
func (s *Service) open(ctx context.Context, secret []byte, enc model.EncryptedPrivateKey, binding string) ([]byte, error) {
	kek, err := s.deriveKEK(ctx, secret, enc.Salt)
	if err != nil {
		return nil, err
	}
	defer crypto.Zeroize(kek)
	return crypto.Open(keySuite, kek, enc.Envelope, []byte(binding))
}

func (s *Service) cacheGet(key string) (*PublicKey, bool) {
	if s.pubCache == nil {
		return nil, false
	}
	return s.pubCache.Get(key)
}

func (s *Service) cacheAdd(key string, pk *PublicKey) {
	if s.pubCache != nil {
		s.pubCache.Add(key, pk)
	}
}

func userBinding(userID string) string       { return "user:" + userID }
func serverBinding(generation string) string { return "server:" + generation }
