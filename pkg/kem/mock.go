package kem

import (
	"github.com/pzverkov/pqshare/internal/constants"
	qerrors "github.com/pzverkov/pqshare/internal/errors"
	"github.com/pzverkov/pqshare/pkg/crypto"
)

// MockPrefix starts the name of every mock scheme.
const MockPrefix = "Mock-"

// Mock KEM sizes. They match ML-KEM-512 so stored records look alike.
const (
	mockPublicKeySize    = 800
	mockPrivateKeySize   = 1632
	mockCiphertextSize   = 768
	mockSharedSecretSize = 32
)

// mockScheme is a functional stand-in with NO confidentiality. Anyone holding
// the public key and the ciphertext can compute the shared secret.
//
// The private key embeds the public key in its first mockPublicKeySize bytes:
//
//	ss = SHAKE-256(pqshare-v1-mock-kem, pk, ct)
type mockScheme struct {
	alg string
}

// NewMock returns an INSECURE scheme named "Mock-<alg>".
func NewMock(alg string) Scheme {
	return &mockScheme{alg: alg}
}

func (m *mockScheme) Name() string          { return MockPrefix + m.alg }
func (m *mockScheme) Secure() bool          { return false }
func (m *mockScheme) PublicKeySize() int    { return mockPublicKeySize }
func (m *mockScheme) PrivateKeySize() int   { return mockPrivateKeySize }
func (m *mockScheme) CiphertextSize() int   { return mockCiphertextSize }
func (m *mockScheme) SharedSecretSize() int { return mockSharedSecretSize }

func (m *mockScheme) GenerateKeyPair() (*KeyPair, error) {
	sk, err := crypto.SecureRandomBytes(mockPrivateKeySize)
	if err != nil {
		return nil, err
	}
	pk := append([]byte(nil), sk[:mockPublicKeySize]...)
	return &KeyPair{PublicKey: pk, PrivateKey: sk, Algorithm: m.Name()}, nil
}

func (m *mockScheme) Encapsulate(publicKey []byte) ([]byte, []byte, error) {
	if len(publicKey) != mockPublicKeySize {
		return nil, nil, qerrors.ErrInvalidPublicKey
	}
	ct, err := crypto.SecureRandomBytes(mockCiphertextSize)
	if err != nil {
		return nil, nil, err
	}
	ss, err := mockSecret(publicKey, ct)
	if err != nil {
		return nil, nil, err
	}
	return ct, ss, nil
}

func (m *mockScheme) Decapsulate(ciphertext, privateKey []byte) ([]byte, bool) {
	if len(ciphertext) != mockCiphertextSize || len(privateKey) != mockPrivateKeySize {
		return nil, false
	}
	ss, err := mockSecret(privateKey[:mockPublicKeySize], ciphertext)
	if err != nil {
		return nil, false
	}
	return ss, true
}

func mockSecret(publicKey, ciphertext []byte) ([]byte, error) {
	return crypto.DeriveKeyMultiple(constants.DomainSeparatorMockKEM, [][]byte{publicKey, ciphertext}, mockSharedSecretSize)
}
