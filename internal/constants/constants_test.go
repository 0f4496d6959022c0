package constants

import "testing"

// TestCipherSuiteString tests String method for CipherSuite.
func TestCipherSuiteString(t *testing.T) {
	tests := []struct {
		suite CipherSuite
		want  string
	}{
		{CipherSuiteAES256GCM, "AES-256-GCM"},
		{CipherSuiteChaCha20Poly1305, "ChaCha20-Poly1305"},
		{CipherSuite(0x9999), "Unknown"},
	}

	for _, tt := range tests {
		if got := tt.suite.String(); got != tt.want {
			t.Errorf("CipherSuite(%d).String() = %q, want %q", tt.suite, got, tt.want)
		}
	}
}

func TestParseCipherSuite(t *testing.T) {
	tests := []struct {
		name string
		want CipherSuite
	}{
		{"aes-256-gcm", CipherSuiteAES256GCM},
		{"AES-256-GCM", CipherSuiteAES256GCM},
		{"chacha20-poly1305", CipherSuiteChaCha20Poly1305},
		{"chacha20", CipherSuiteChaCha20Poly1305},
		{"rot13", 0},
		{"", 0},
	}

	for _, tt := range tests {
		got := ParseCipherSuite(tt.name)
		if got != tt.want {
			t.Errorf("ParseCipherSuite(%q) = %v, want %v", tt.name, got, tt.want)
		}
		if tt.want == 0 && got.IsSupported() {
			t.Errorf("ParseCipherSuite(%q) returned a supported suite", tt.name)
		}
	}
}

func TestCipherSuiteIsFIPSApproved(t *testing.T) {
	if !CipherSuiteAES256GCM.IsFIPSApproved() {
		t.Error("AES-256-GCM should be FIPS approved")
	}
	if CipherSuiteChaCha20Poly1305.IsFIPSApproved() {
		t.Error("ChaCha20-Poly1305 should not be FIPS approved")
	}
}

// TestConstants verifies the parameters the on-disk formats depend on.
func TestConstants(t *testing.T) {
	tests := []struct {
		name string
		got  int
		want int
	}{
		{"SymmetricKeySize", SymmetricKeySize, 32},
		{"NonceSize", NonceSize, 12},
		{"TagSize", TagSize, 16},
		{"EnvelopeOverhead", EnvelopeOverhead, 28},
		{"SaltSize", SaltSize, 16},
		{"LengthPrefixSize", LengthPrefixSize, 4},
		{"ShareIDSize", ShareIDSize, 16},
		{"X25519PublicKeySize", X25519PublicKeySize, 32},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("%s = %d, want %d", tt.name, tt.got, tt.want)
		}
	}

	if MinPBKDF2Iterations < 100000 {
		t.Errorf("MinPBKDF2Iterations = %d, must be at least 100000", MinPBKDF2Iterations)
	}
	if DefaultPBKDF2Iterations < MinPBKDF2Iterations {
		t.Error("default iterations below the enforced floor")
	}
}

func TestDomainSeparatorsDistinct(t *testing.T) {
	seps := []string{DomainSeparatorHybrid, DomainSeparatorMockKEM, DomainSeparatorWrapKey, ServerKeyContext}
	seen := make(map[string]bool)
	for _, s := range seps {
		if s == "" {
			t.Error("empty domain separator")
		}
		if seen[s] {
			t.Errorf("duplicate domain separator %q", s)
		}
		seen[s] = true
	}
}
