// aead.go implements Authenticated Encryption with Associated Data (AEAD)
// and the on-disk envelope format.
//
// Two AEAD algorithms are supported:
//   - AES-256-GCM: FIPS-approved, hardware-accelerated on modern CPUs
//   - ChaCha20-Poly1305: High performance without hardware support
//
// Envelope format (stored on disk and inside wrapped keys):
//
//	nonce (12 bytes) || tag (16 bytes) || ciphertext
//
// Nonces are 96-bit values drawn from crypto/rand on every Encrypt call.
// There is no API that accepts a caller-chosen nonce, so (key, nonce) reuse
// requires a CSPRNG collision. Keys in this system are single-purpose (one
// file, one share, one wrapped private key) and encrypt very few messages,
// which keeps random nonces far below the birthday bound.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"

	"golang.org/x/crypto/chacha20poly1305"

	"github.com/pzverkov/pqshare/internal/constants"
	qerrors "github.com/pzverkov/pqshare/internal/errors"
)

// Envelope is a parsed AEAD ciphertext.
type Envelope struct {
	Nonce      [constants.NonceSize]byte
	Tag        [constants.TagSize]byte
	Ciphertext []byte
}

// Bytes returns the on-disk encoding nonce || tag || ciphertext.
func (e *Envelope) Bytes() []byte {
	out := make([]byte, 0, constants.EnvelopeOverhead+len(e.Ciphertext))
	out = append(out, e.Nonce[:]...)
	out = append(out, e.Tag[:]...)
	return append(out, e.Ciphertext...)
}

// Len returns the encoded length of the envelope.
func (e *Envelope) Len() int {
	return constants.EnvelopeOverhead + len(e.Ciphertext)
}

// ParseEnvelope splits an encoded envelope into its parts.
// The returned ciphertext aliases data.
func ParseEnvelope(data []byte) (*Envelope, error) {
	if len(data) < constants.EnvelopeOverhead {
		return nil, qerrors.ErrCiphertextTooShort
	}
	env := &Envelope{Ciphertext: data[constants.EnvelopeOverhead:]}
	copy(env.Nonce[:], data[:constants.NonceSize])
	copy(env.Tag[:], data[constants.NonceSize:constants.EnvelopeOverhead])
	return env, nil
}

// AEAD represents an authenticated encryption cipher bound to one key.
type AEAD struct {
	cipher cipher.AEAD
	suite  constants.CipherSuite
}

// NewAEAD creates a new AEAD cipher with the specified suite and key.
//
// Parameters:
//   - suite: CipherSuiteAES256GCM or CipherSuiteChaCha20Poly1305
//   - key: 32-byte encryption key
//
// Returns:
//   - AEAD: The initialized cipher
//   - error: Non-nil if the key size is wrong, the suite is unsupported, or
//     the suite is not approved in a FIPS build
func NewAEAD(suite constants.CipherSuite, key []byte) (*AEAD, error) {
	if len(key) != constants.SymmetricKeySize {
		return nil, qerrors.ErrInvalidKeySize
	}
	if FIPSMode() && !suite.IsFIPSApproved() {
		return nil, qerrors.ErrUnsupportedCipherSuite
	}

	var aeadCipher cipher.AEAD

	switch suite {
	case constants.CipherSuiteAES256GCM:
		block, err := aes.NewCipher(key)
		if err != nil {
			return nil, qerrors.NewCryptoError("NewAEAD", err)
		}
		aeadCipher, err = cipher.NewGCM(block)
		if err != nil {
			return nil, qerrors.NewCryptoError("NewAEAD", err)
		}

	case constants.CipherSuiteChaCha20Poly1305:
		var err error
		aeadCipher, err = chacha20poly1305.New(key)
		if err != nil {
			return nil, qerrors.NewCryptoError("NewAEAD", err)
		}

	default:
		return nil, qerrors.ErrUnsupportedCipherSuite
	}

	return &AEAD{cipher: aeadCipher, suite: suite}, nil
}

// Encrypt seals plaintext under a freshly generated random nonce.
//
// additionalData is authenticated but not encrypted; the same value must be
// supplied to Decrypt.
func (a *AEAD) Encrypt(plaintext, additionalData []byte) (*Envelope, error) {
	env := &Envelope{}
	if err := SecureRandom(env.Nonce[:]); err != nil {
		return nil, err
	}

	sealed := a.cipher.Seal(nil, env.Nonce[:], plaintext, additionalData)
	split := len(sealed) - constants.TagSize
	copy(env.Tag[:], sealed[split:])
	env.Ciphertext = sealed[:split]

	return env, nil
}

// Decrypt verifies and opens an envelope.
//
// On any verification failure it returns ErrAuthenticationFailed and no
// plaintext, partial or otherwise.
func (a *AEAD) Decrypt(env *Envelope, additionalData []byte) ([]byte, error) {
	if env == nil {
		return nil, qerrors.ErrCiphertextTooShort
	}

	sealed := make([]byte, 0, len(env.Ciphertext)+constants.TagSize)
	sealed = append(sealed, env.Ciphertext...)
	sealed = append(sealed, env.Tag[:]...)

	plaintext, err := a.cipher.Open(nil, env.Nonce[:], sealed, additionalData)
	if err != nil {
		return nil, qerrors.ErrAuthenticationFailed
	}
	return plaintext, nil
}

// Suite returns the cipher suite identifier.
func (a *AEAD) Suite() constants.CipherSuite {
	return a.suite
}

// Overhead returns the number of bytes an envelope adds to a plaintext.
func (a *AEAD) Overhead() int {
	return constants.NonceSize + a.cipher.Overhead()
}

// Seal encrypts plaintext under key and returns the encoded envelope.
func Seal(suite constants.CipherSuite, key, plaintext, additionalData []byte) ([]byte, error) {
	a, err := NewAEAD(suite, key)
	if err != nil {
		return nil, err
	}
	env, err := a.Encrypt(plaintext, additionalData)
	if err != nil {
		return nil, err
	}
	return env.Bytes(), nil
}

// Open parses and decrypts an encoded envelope.
//
// Returns ErrCiphertextTooShort if data cannot hold a nonce and tag, and
// ErrAuthenticationFailed if the tag does not verify.
func Open(suite constants.CipherSuite, key, data, additionalData []byte) ([]byte, error) {
	env, err := ParseEnvelope(data)
	if err != nil {
		return nil, err
	}
	a, err := NewAEAD(suite, key)
	if err != nil {
		return nil, err
	}
	return a.Decrypt(env, additionalData)
}
