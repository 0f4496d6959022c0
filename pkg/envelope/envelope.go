// Package envelope wraps symmetric keys to a recipient's KEM public key.
//
// Wrap:
//
//	(ct, ss) <- KEM.Encaps(pk)
//	kw       <- HKDF-SHA256(ikm=ss, salt=SHA-256(ct), info="pqshare-v1-wrap-key")
//	env      <- AEAD(kw).Seal(key, ad=ct)
//
// Unwrap reverses this and reports every failure, KEM or AEAD, as a single
// false result. The KEM shared secret is never used directly as an AEAD key.
package envelope

import (
	"context"

	"github.com/pzverkov/pqshare/internal/constants"
	qerrors "github.com/pzverkov/pqshare/internal/errors"
	"github.com/pzverkov/pqshare/pkg/crypto"
	"github.com/pzverkov/pqshare/pkg/kem"
	"github.com/pzverkov/pqshare/pkg/metrics"
)

// WrappedKey is a symmetric key encrypted for one KEM recipient.
type WrappedKey struct {
	// Algorithm is the KEM name; it selects the scheme on unwrap.
	Algorithm string

	// Suite is the AEAD used for Envelope. It is stored beside the
	// encoded blob, not inside it.
	Suite constants.CipherSuite

	KEMCiphertext []byte
	Envelope      []byte
}

// Engine wraps and unwraps keys with one KEM scheme and one AEAD suite.
// It is safe for concurrent use.
type Engine struct {
	scheme   kem.Scheme
	suite    constants.CipherSuite
	observer *metrics.ShareObserver
}

// Option configures an Engine.
type Option func(*Engine)

// WithObserver records wrap and unwrap latency, errors and spans.
func WithObserver(o *metrics.ShareObserver) Option {
	return func(e *Engine) { e.observer = o }
}

// New creates an engine. A zero suite selects AES-256-GCM.
func New(scheme kem.Scheme, suite constants.CipherSuite, opts ...Option) *Engine {
	if suite == 0 {
		suite = constants.CipherSuiteAES256GCM
	}
	e := &Engine{scheme: scheme, suite: suite}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Scheme returns the KEM new keys are wrapped with.
func (e *Engine) Scheme() kem.Scheme {
	return e.scheme
}

// Suite returns the AEAD suite new keys are wrapped with.
func (e *Engine) Suite() constants.CipherSuite {
	return e.suite
}

// ForAlgorithm returns an engine that wraps with the named KEM, for
// recipients whose keys predate a change of the configured scheme.
func (e *Engine) ForAlgorithm(name string) (*Engine, error) {
	if name == "" || name == e.scheme.Name() {
		return e, nil
	}
	scheme, err := kem.Lookup(name)
	if err != nil {
		return nil, err
	}
	c := *e
	c.scheme = scheme
	return &c, nil
}

// ForSuite returns an engine that seals wrapped keys with suite.
func (e *Engine) ForSuite(suite constants.CipherSuite) *Engine {
	if suite == 0 || suite == e.suite {
		return e
	}
	c := *e
	c.suite = suite
	return &c
}

// Wrap encrypts key for the holder of recipientPK.
func (e *Engine) Wrap(key, recipientPK []byte) (*WrappedKey, error) {
	return e.WrapContext(context.Background(), key, recipientPK)
}

// WrapContext is Wrap with a parent context for tracing.
func (e *Engine) WrapContext(ctx context.Context, key, recipientPK []byte) (w *WrappedKey, err error) {
	if e.observer != nil {
		var done func(error)
		_, done = e.observer.OnWrap(ctx, e.scheme.Name())
		defer func() { done(err) }()
	}

	if len(key) != constants.SymmetricKeySize {
		return nil, qerrors.NewCryptoError("envelope.Wrap", qerrors.ErrInvalidKeySize)
	}

	ct, ss, err := e.scheme.Encapsulate(recipientPK)
	if err != nil {
		return nil, qerrors.NewCryptoError("envelope.Wrap", err)
	}
	kw, err := crypto.DeriveWrapKey(ss, ct, constants.DomainSeparatorWrapKey)
	crypto.Zeroize(ss)
	if err != nil {
		return nil, err
	}
	defer crypto.Zeroize(kw)

	env, err := crypto.Seal(e.suite, kw, key, ct)
	if err != nil {
		return nil, err
	}
	return &WrappedKey{
		Algorithm:     e.scheme.Name(),
		Suite:         e.suite,
		KEMCiphertext: ct,
		Envelope:      env,
	}, nil
}

// Unwrap recovers the key in w with recipientSK. It returns false if the
// algorithm is unknown, decapsulation fails or the envelope does not
// authenticate.
func (e *Engine) Unwrap(w *WrappedKey, recipientSK []byte) ([]byte, bool) {
	return e.UnwrapContext(context.Background(), w, recipientSK)
}

// UnwrapContext is Unwrap with a parent context for tracing.
func (e *Engine) UnwrapContext(ctx context.Context, w *WrappedKey, recipientSK []byte) ([]byte, bool) {
	if w == nil {
		return nil, false
	}
	var done func(error)
	if e.observer != nil {
		_, done = e.observer.OnUnwrap(ctx, w.Algorithm)
	}
	key, ok := e.unwrap(w, recipientSK)
	if done != nil {
		if ok {
			done(nil)
		} else {
			done(qerrors.ErrAuthenticationFailed)
		}
	}
	return key, ok
}

func (e *Engine) unwrap(w *WrappedKey, recipientSK []byte) ([]byte, bool) {
	scheme := e.scheme
	if w.Algorithm != "" && w.Algorithm != scheme.Name() {
		s, err := kem.Lookup(w.Algorithm)
		if err != nil {
			return nil, false
		}
		scheme = s
	}
	suite := w.Suite
	if suite == 0 {
		suite = e.suite
	}

	ss, ok := scheme.Decapsulate(w.KEMCiphertext, recipientSK)
	if !ok {
		return nil, false
	}
	kw, err := crypto.DeriveWrapKey(ss, w.KEMCiphertext, constants.DomainSeparatorWrapKey)
	crypto.Zeroize(ss)
	if err != nil {
		return nil, false
	}
	defer crypto.Zeroize(kw)

	key, err := crypto.Open(suite, kw, w.Envelope, w.KEMCiphertext)
	if err != nil || len(key) != constants.SymmetricKeySize {
		crypto.Zeroize(key)
		return nil, false
	}
	return key, true
}
