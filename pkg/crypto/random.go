// Package crypto provides the symmetric primitives of the pqshare engine:
// AEAD envelopes, password and KEM-secret key derivation, randomness, X25519
// and the startup self-tests.
//
// All random number generation uses crypto/rand, which reads from the
// operating system's CSPRNG.
package crypto

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"io"

	"github.com/pzverkov/pqshare/internal/constants"
	qerrors "github.com/pzverkov/pqshare/internal/errors"
)

// SecureRandom reads cryptographically secure random bytes into the provided slice.
//
// An error here means the system CSPRNG failed and must be treated as a
// critical system failure.
func SecureRandom(b []byte) error {
	_, err := io.ReadFull(rand.Reader, b)
	if err != nil {
		return qerrors.NewCryptoError("SecureRandom", err)
	}
	return nil
}

// SecureRandomBytes returns n cryptographically secure random bytes.
func SecureRandomBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	if err := SecureRandom(b); err != nil {
		return nil, err
	}
	return b, nil
}

// NewSymmetricKey returns a fresh 32-byte key for one file or share.
// The caller owns it exclusively and should Zeroize it after use.
func NewSymmetricKey() ([]byte, error) {
	return SecureRandomBytes(constants.SymmetricKeySize)
}

// NewSalt returns a fresh 16-byte salt for one password derivation target.
func NewSalt() ([]byte, error) {
	return SecureRandomBytes(constants.SaltSize)
}

// RandomToken returns n random bytes encoded as unpadded base64url.
// Share identifiers use this with n = constants.ShareIDSize.
func RandomToken(n int) (string, error) {
	b, err := SecureRandomBytes(n)
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// Reader is an io.Reader that returns cryptographically secure random bytes.
var Reader = rand.Reader

// ConstantTimeCompare compares two byte slices in constant time.
// Slices of different length compare unequal.
func ConstantTimeCompare(a, b []byte) bool {
	return subtle.ConstantTimeCompare(a, b) == 1
}

// Zeroize overwrites sensitive data with zeros.
//
// The Go runtime may already hold copies (e.g. after append growth), so this
// limits exposure rather than guaranteeing erasure.
func Zeroize(b []byte) {
	clear(b)
}

// ZeroizeMultiple erases multiple byte slices.
func ZeroizeMultiple(slices ...[]byte) {
	for _, s := range slices {
		Zeroize(s)
	}
}
