package crypto_test

import (
	"testing"

	"github.com/pzverkov/pqshare/internal/constants"
	"github.com/pzverkov/pqshare/pkg/crypto"
)

func TestAllowedSuitesMatchNewAEAD(t *testing.T) {
	key := make([]byte, 32)
	allowed := map[constants.CipherSuite]bool{}
	for _, s := range crypto.AllowedSuites() {
		allowed[s] = true
	}
	if !allowed[constants.CipherSuiteAES256GCM] {
		t.Fatal("AES-256-GCM must always be allowed")
	}
	if crypto.FIPSMode() && len(allowed) != 1 {
		t.Errorf("FIPS build allows %d suites", len(allowed))
	}

	for _, s := range []constants.CipherSuite{constants.CipherSuiteAES256GCM, constants.CipherSuiteChaCha20Poly1305} {
		_, err := crypto.NewAEAD(s, key)
		if allowed[s] && err != nil {
			t.Errorf("NewAEAD(%s) failed: %v", s, err)
		}
		if !allowed[s] && err == nil {
			t.Errorf("NewAEAD(%s) accepted a suite outside the build", s)
		}
	}
}
