package kem_test

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	qerrors "github.com/pzverkov/pqshare/internal/errors"
	"github.com/pzverkov/pqshare/pkg/kem"
	"github.com/pzverkov/pqshare/pkg/metrics"
)

func TestLoad(t *testing.T) {
	tests := []struct {
		name     string
		opts     kem.Options
		wantName string
		secure   bool
	}{
		{"default", kem.Options{}, kem.MLKEM768, true},
		{"kyber alias", kem.Options{Provider: "kyber", Algorithm: "Kyber1024"}, kem.MLKEM1024, true},
		{"mlkem canonical", kem.Options{Provider: "mlkem", Algorithm: "ML-KEM-512"}, kem.MLKEM512, true},
		{"provider case", kem.Options{Provider: "KYBER", Algorithm: "kyber512"}, kem.MLKEM512, true},
		{"hybrid", kem.Options{Provider: "hybrid"}, kem.Hybrid, true},
		{"explicit mock", kem.Options{Provider: "mock", Algorithm: "Kyber768"}, "Mock-ML-KEM-768", false},
		{"fallback unknown algorithm", kem.Options{Provider: "kyber", Algorithm: "Kyber2048", AllowFallback: true}, "Mock-Kyber2048", false},
		{"fallback unknown provider", kem.Options{Provider: "oqs", Algorithm: "Kyber768", AllowFallback: true}, "Mock-ML-KEM-768", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := kem.Load(tt.opts)
			if err != nil {
				t.Fatalf("Load failed: %v", err)
			}
			if s.Name() != tt.wantName {
				t.Errorf("Name = %q, want %q", s.Name(), tt.wantName)
			}
			if s.Secure() != tt.secure {
				t.Errorf("Secure = %v, want %v", s.Secure(), tt.secure)
			}
		})
	}
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name string
		opts kem.Options
		want error
	}{
		{"none", kem.Options{Provider: "none", AllowFallback: true}, qerrors.ErrKEMDisabled},
		{"unknown algorithm", kem.Options{Provider: "kyber", Algorithm: "Kyber2048"}, qerrors.ErrConfiguration},
		{"unknown provider", kem.Options{Provider: "oqs"}, qerrors.ErrConfiguration},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := kem.Load(tt.opts)
			if !errors.Is(err, tt.want) {
				t.Errorf("Load error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestLoadFallbackIsLoud(t *testing.T) {
	var buf bytes.Buffer
	c := metrics.NewCollector(nil)

	_, err := kem.Load(kem.Options{
		Provider:      "kyber",
		Algorithm:     "Kyber4096",
		AllowFallback: true,
		Logger:        metrics.TestLogger(&buf),
		Collector:     c,
	})
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	out := buf.String()
	if !strings.Contains(out, "WARN") || !strings.Contains(out, "INSECURE") {
		t.Errorf("fallback warning missing: %q", out)
	}
	if snap := c.Snapshot(); snap.KEMFallbacks != 1 || !snap.KEMInsecure {
		t.Errorf("fallback not counted: %+v", snap)
	}
}

func TestLookup(t *testing.T) {
	tests := []struct {
		name string
		want string
	}{
		{kem.MLKEM512, kem.MLKEM512},
		{kem.MLKEM768, kem.MLKEM768},
		{kem.MLKEM1024, kem.MLKEM1024},
		{"Kyber768", kem.MLKEM768},
		{kem.Hybrid, kem.Hybrid},
		{"Mock-Kyber512", "Mock-Kyber512"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := kem.Lookup(tt.name)
			if err != nil {
				t.Fatalf("Lookup failed: %v", err)
			}
			if s.Name() != tt.want {
				t.Errorf("Name = %q, want %q", s.Name(), tt.want)
			}
		})
	}

	if _, err := kem.Lookup("RSA-2048"); !errors.Is(err, qerrors.ErrConfiguration) {
		t.Errorf("Lookup(RSA-2048) error = %v", err)
	}
}

func TestLookupUnwrapsMockRecords(t *testing.T) {
	orig := kem.NewMock("Kyber768")
	kp, err := orig.GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair failed: %v", err)
	}
	ct, ss, err := orig.Encapsulate(kp.PublicKey)
	if err != nil {
		t.Fatalf("Encapsulate failed: %v", err)
	}

	s, err := kem.Lookup(kp.Algorithm)
	if err != nil {
		t.Fatalf("Lookup failed: %v", err)
	}
	got, ok := s.Decapsulate(ct, kp.PrivateKey)
	if !ok || !bytes.Equal(got, ss) {
		t.Error("looked-up scheme could not decapsulate")
	}
}

func TestPairwiseCheck(t *testing.T) {
	s, err := kem.NewMLKEM(kem.MLKEM768)
	if err != nil {
		t.Fatalf("NewMLKEM failed: %v", err)
	}
	if err := kem.SelfTest(s); err != nil {
		t.Fatalf("SelfTest failed: %v", err)
	}

	a, _ := s.GenerateKeyPair()
	b, _ := s.GenerateKeyPair()
	mixed := &kem.KeyPair{PublicKey: a.PublicKey, PrivateKey: b.PrivateKey, Algorithm: s.Name()}
	if err := kem.PairwiseCheck(s, mixed); err == nil {
		t.Error("PairwiseCheck accepted mismatched keys")
	}
	if err := kem.PairwiseCheck(s, &kem.KeyPair{PublicKey: a.PublicKey[:5]}); !errors.Is(err, qerrors.ErrInvalidKeySize) {
		t.Errorf("PairwiseCheck truncated key error = %v", err)
	}
	if err := kem.PairwiseCheck(s, nil); err == nil {
		t.Error("PairwiseCheck accepted nil")
	}
}
