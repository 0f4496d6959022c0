package kem

import (
	"fmt"
	"strings"

	qerrors "github.com/pzverkov/pqshare/internal/errors"
	"github.com/pzverkov/pqshare/pkg/metrics"
)

// Provider names accepted by Load.
const (
	ProviderKyber  = "kyber"
	ProviderMLKEM  = "mlkem"
	ProviderHybrid = "hybrid"
	ProviderMock   = "mock"
	ProviderNone   = "none"
)

// Options selects a KEM.
type Options struct {
	// Provider is one of the Provider* names. Empty means ProviderKyber.
	Provider string

	// Algorithm is the variant, e.g. "Kyber768" or "ML-KEM-1024".
	// Ignored by the hybrid provider.
	Algorithm string

	// AllowFallback substitutes the mock scheme when the requested one
	// cannot be built.
	AllowFallback bool

	Logger    *metrics.Logger
	Collector *metrics.Collector
}

// aliases maps configuration spellings onto stored algorithm names.
var aliases = map[string]string{
	"kyber512":    MLKEM512,
	"kyber768":    MLKEM768,
	"kyber1024":   MLKEM1024,
	"ml-kem-512":  MLKEM512,
	"ml-kem-768":  MLKEM768,
	"ml-kem-1024": MLKEM1024,
	"mlkem512":    MLKEM512,
	"mlkem768":    MLKEM768,
	"mlkem1024":   MLKEM1024,
}

// NormalizeAlgorithm returns the canonical ML-KEM name for alg, or alg
// unchanged if it is not a known spelling.
func NormalizeAlgorithm(alg string) string {
	if name, ok := aliases[strings.ToLower(strings.TrimSpace(alg))]; ok {
		return name
	}
	return alg
}

// Load builds the scheme described by opts.
//
// ProviderNone yields ErrKEMDisabled. Any other failure yields
// ErrConfiguration unless AllowFallback is set, in which case the INSECURE
// mock scheme is returned and the fallback is logged and counted.
func Load(opts Options) (Scheme, error) {
	logger := opts.Logger
	if logger == nil {
		logger = metrics.NullLogger()
	}
	logger = logger.Named("kem")

	provider := strings.ToLower(strings.TrimSpace(opts.Provider))
	if provider == "" {
		provider = ProviderKyber
	}
	alg := NormalizeAlgorithm(opts.Algorithm)

	var (
		scheme Scheme
		err    error
	)
	switch provider {
	case ProviderNone:
		return nil, qerrors.ErrKEMDisabled
	case ProviderKyber, ProviderMLKEM:
		if alg == "" {
			alg = MLKEM768
		}
		scheme, err = NewMLKEM(alg)
	case ProviderHybrid:
		scheme = NewHybrid()
	case ProviderMock:
		if alg == "" {
			alg = MLKEM768
		}
		scheme = NewMock(alg)
		logger.Warn("mock KEM selected explicitly; shares are INSECURE", metrics.Fields{"algorithm": scheme.Name()})
		if opts.Collector != nil {
			opts.Collector.SetKEMInsecure(true)
		}
		return scheme, nil
	default:
		err = qerrors.NewCryptoError("kem.Load provider "+opts.Provider, qerrors.ErrConfiguration)
	}

	if err == nil {
		err = SelfTest(scheme)
	}
	if err == nil {
		logger.Info("KEM loaded", metrics.Fields{"provider": provider, "algorithm": scheme.Name()})
		return scheme, nil
	}

	if !opts.AllowFallback {
		if !qerrors.Is(err, qerrors.ErrConfiguration) {
			err = fmt.Errorf("%w: %w", qerrors.ErrConfiguration, err)
		}
		return nil, qerrors.NewCryptoError("kem.Load", err)
	}

	if alg == "" {
		alg = MLKEM768
	}
	mock := NewMock(alg)
	logger.Warn("KEM unavailable, falling back to mock; shares are INSECURE", metrics.Fields{
		"provider":  provider,
		"requested": opts.Algorithm,
		"algorithm": mock.Name(),
		"error":     err,
	})
	if opts.Collector != nil {
		opts.Collector.RecordKEMFallback()
	}
	return mock, nil
}

// Lookup returns the scheme for a stored algorithm name. It accepts every
// name a Scheme can report, including mock names, so records created under
// a different configuration can still be unwrapped.
func Lookup(name string) (Scheme, error) {
	switch {
	case name == Hybrid:
		return NewHybrid(), nil
	case strings.HasPrefix(name, MockPrefix):
		return NewMock(strings.TrimPrefix(name, MockPrefix)), nil
	}
	return NewMLKEM(NormalizeAlgorithm(name))
}
