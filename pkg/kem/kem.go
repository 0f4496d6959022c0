// Package kem provides the pluggable key-encapsulation capability.
//
// Every variant implements Scheme:
//
//   - ML-KEM-512/768/1024 (NIST FIPS 203) via github.com/cloudflare/circl
//   - X25519-ML-KEM-1024, a hybrid that stays secure if either half does
//   - Mock-<alg>, a functional but INSECURE stand-in used only when the
//     configured algorithm is unavailable and fallback is allowed
//
// Key and ciphertext sizes are algorithm-dependent and must be read from the
// Scheme; no caller hard-codes them.
//
// Decapsulate reports failure only through its boolean result. Callers see
// the same outcome for a wrong key and a corrupt ciphertext; for ML-KEM the
// underlying implicit rejection yields a pseudorandom secret and the
// envelope layer then fails authentication.
package kem

import (
	"github.com/pzverkov/pqshare/pkg/crypto"
)

// Scheme is a key encapsulation mechanism with a fixed operation contract.
type Scheme interface {
	// Name returns the algorithm identifier stored alongside wrapped keys.
	Name() string

	// Secure reports whether the scheme provides real confidentiality.
	// Only the mock returns false.
	Secure() bool

	// GenerateKeyPair creates a new keypair from the system CSPRNG.
	GenerateKeyPair() (*KeyPair, error)

	// Encapsulate produces a ciphertext and a shared secret for publicKey.
	Encapsulate(publicKey []byte) (ciphertext, sharedSecret []byte, err error)

	// Decapsulate recovers the shared secret. It returns false, never an
	// error, when the inputs are malformed or do not decapsulate.
	Decapsulate(ciphertext, privateKey []byte) ([]byte, bool)

	PublicKeySize() int
	PrivateKeySize() int
	CiphertextSize() int
	SharedSecretSize() int
}

// KeyPair holds encoded KEM keys.
type KeyPair struct {
	PublicKey  []byte
	PrivateKey []byte
	Algorithm  string
}

// Zeroize erases the private key.
func (kp *KeyPair) Zeroize() {
	if kp == nil {
		return
	}
	crypto.Zeroize(kp.PrivateKey)
	kp.PrivateKey = nil
}
