package model

import (
	"time"

	"github.com/pzverkov/pqshare/internal/constants"
	qerrors "github.com/pzverkov/pqshare/internal/errors"
)

// EncryptedPrivateKey is a KEM private key sealed under a PBKDF2-derived key.
// Envelope is the encoded nonce||tag||ciphertext.
type EncryptedPrivateKey struct {
	Salt     []byte
	Envelope []byte
}

// Encode returns salt||nonce||tag||ciphertext.
func (k EncryptedPrivateKey) Encode() []byte {
	out := make([]byte, 0, len(k.Salt)+len(k.Envelope))
	out = append(out, k.Salt...)
	return append(out, k.Envelope...)
}

// ParseEncryptedPrivateKey splits the output of Encode.
func ParseEncryptedPrivateKey(b []byte) (EncryptedPrivateKey, error) {
	if len(b) < constants.SaltSize+constants.EnvelopeOverhead {
		return EncryptedPrivateKey{}, qerrors.ErrCiphertextTooShort
	}
	return EncryptedPrivateKey{
		Salt:     cloneBytes(b[:constants.SaltSize]),
		Envelope: cloneBytes(b[constants.SaltSize:]),
	}, nil
}

// UserKeys is a user's KEM keypair with the private half encrypted.
type UserKeys struct {
	UserID              string
	Algorithm           string
	PublicKey           []byte
	EncryptedPrivateKey EncryptedPrivateKey
	CreatedAt           time.Time
}

// ServerKey is one generation of a server static keypair. Generations are
// never mutated except for Active and never deleted.
type ServerKey struct {
	Generation          string
	KeyID               string
	Algorithm           string
	PublicKey           []byte
	EncryptedPrivateKey EncryptedPrivateKey
	CreatedAt           time.Time
	Active              bool
}

// DueForRotation reports whether the key is older than rotation at now.
// A non-positive rotation disables age-based rotation.
func (k *ServerKey) DueForRotation(now time.Time, rotation time.Duration) bool {
	return rotation > 0 && k.CreatedAt.Before(now.Add(-rotation))
}
