package errors

import (
	"errors"
	"strings"
	"testing"
)

// TestCryptoError tests CryptoError type.
func TestCryptoError(t *testing.T) {
	baseErr := errors.New("base error")
	cerr := NewCryptoError("envelope-unwrap", baseErr)

	errStr := cerr.Error()
	if !strings.Contains(errStr, "envelope-unwrap") {
		t.Errorf("Error string should contain operation: %q", errStr)
	}
	if !strings.Contains(errStr, "base error") {
		t.Errorf("Error string should contain base error: %q", errStr)
	}
	if cerr.Unwrap() != baseErr {
		t.Errorf("Unwrap() returned %v, want %v", cerr.Unwrap(), baseErr)
	}
}

// TestShareError tests ShareError type.
func TestShareError(t *testing.T) {
	serr := NewShareError("redeem", "abc123", ErrExhausted)

	errStr := serr.Error()
	for _, part := range []string{"redeem", "abc123", "download limit"} {
		if !strings.Contains(errStr, part) {
			t.Errorf("Error string %q should contain %q", errStr, part)
		}
	}
	if !errors.Is(serr, ErrExhausted) {
		t.Error("ShareError should match its wrapped sentinel")
	}
	if serr.ShareID != "abc123" || serr.Op != "redeem" {
		t.Errorf("fields = (%q, %q), want (abc123, redeem)", serr.ShareID, serr.Op)
	}
}

// TestLifecycleSentinelHierarchy checks which sentinels collapse into ErrExpiredOrExhausted.
func TestLifecycleSentinelHierarchy(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"expired", ErrExpired, true},
		{"exhausted", ErrExhausted, true},
		{"deactivated", ErrDeactivated, false},
		{"not found", ErrNotFound, false},
		{"access denied", ErrAccessDenied, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Is(tt.err, ErrExpiredOrExhausted); got != tt.want {
				t.Errorf("Is(%v, ErrExpiredOrExhausted) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}

	if Is(ErrExpired, ErrExhausted) || Is(ErrExhausted, ErrExpired) {
		t.Error("expired and exhausted must stay distinguishable")
	}
}

// TestAsFunction tests the As helper function.
func TestAsFunction(t *testing.T) {
	cerr := NewCryptoError("test-op", ErrKeyGenerationFailed)

	var target *CryptoError
	if !As(cerr, &target) {
		t.Error("As() should return true for matching type")
	}
	if target.Op != "test-op" {
		t.Errorf("As() extracted Op = %q, want %q", target.Op, "test-op")
	}

	var shareErr *ShareError
	if As(cerr, &shareErr) {
		t.Error("As() should return false for non-matching type")
	}
}

// TestSentinelErrors tests all sentinel error definitions.
func TestSentinelErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"ErrInvalidKeySize", ErrInvalidKeySize},
		{"ErrInvalidCiphertext", ErrInvalidCiphertext},
		{"ErrInvalidPublicKey", ErrInvalidPublicKey},
		{"ErrInvalidPrivateKey", ErrInvalidPrivateKey},
		{"ErrKeyGenerationFailed", ErrKeyGenerationFailed},
		{"ErrKEMDisabled", ErrKEMDisabled},
		{"ErrConfiguration", ErrConfiguration},
		{"ErrAuthenticationFailed", ErrAuthenticationFailed},
		{"ErrCiphertextTooShort", ErrCiphertextTooShort},
		{"ErrUnsupportedCipherSuite", ErrUnsupportedCipherSuite},
		{"ErrInvalidMessage", ErrInvalidMessage},
		{"ErrKeyUnavailable", ErrKeyUnavailable},
		{"ErrNotFound", ErrNotFound},
		{"ErrAccessDenied", ErrAccessDenied},
		{"ErrRateLimited", ErrRateLimited},
		{"ErrFeatureDisabled", ErrFeatureDisabled},
		{"ErrConflict", ErrConflict},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err == nil {
				t.Fatalf("%s is nil", tt.name)
			}
			if tt.err.Error() == "" {
				t.Errorf("%s.Error() returned empty string", tt.name)
			}
		})
	}
}

// TestMixedErrorTypes tests a CryptoError nested inside a ShareError.
func TestMixedErrorTypes(t *testing.T) {
	cryptoErr := NewCryptoError("aead-open", ErrAuthenticationFailed)
	shareErr := NewShareError("redeem", "s1", cryptoErr)

	var ce *CryptoError
	if !errors.As(shareErr, &ce) {
		t.Error("Should be able to extract CryptoError from ShareError wrapper")
	}
	if !errors.Is(shareErr, ErrAuthenticationFailed) {
		t.Error("Should match base sentinel error through multiple wrappers")
	}

	errStr := shareErr.Error()
	if !strings.Contains(errStr, "aead-open") || !strings.Contains(errStr, "authentication failed") {
		t.Errorf("Error string lost context: %q", errStr)
	}
}

// TestNilErrorHandling tests handling of nil errors.
func TestNilErrorHandling(t *testing.T) {
	if Is(nil, ErrInvalidKeySize) {
		t.Error("Is(nil, target) should return false")
	}
	var target *CryptoError
	if As(nil, &target) {
		t.Error("As(nil, target) should return false")
	}
}
