// mlkem.go adapts circl's ML-KEM implementations to Scheme.
//
// ML-KEM (Module-Lattice-based Key-Encapsulation Mechanism, NIST FIPS 203)
// rests on the hardness of Module Learning With Errors over
// R_q = Z_q[X]/(X^256 + 1), q = 3329. The three parameter sets differ in
// module rank k:
//
//	ML-KEM-512   k=2  NIST Category 1
//	ML-KEM-768   k=3  NIST Category 3
//	ML-KEM-1024  k=4  NIST Category 5
//
// Decapsulation uses the Fujisaki-Okamoto transform with implicit rejection:
// a ciphertext that fails re-encryption yields KDF(z || H(c)) instead of an
// error, so a wrong key cannot be told apart from a corrupt ciphertext.
package kem

import (
	circlkem "github.com/cloudflare/circl/kem"
	"github.com/cloudflare/circl/kem/mlkem/mlkem1024"
	"github.com/cloudflare/circl/kem/mlkem/mlkem512"
	"github.com/cloudflare/circl/kem/mlkem/mlkem768"

	qerrors "github.com/pzverkov/pqshare/internal/errors"
)

// ML-KEM algorithm names as stored in records.
const (
	MLKEM512  = "ML-KEM-512"
	MLKEM768  = "ML-KEM-768"
	MLKEM1024 = "ML-KEM-1024"
)

type mlkemScheme struct {
	inner circlkem.Scheme
}

// NewMLKEM returns the ML-KEM scheme for one of MLKEM512, MLKEM768 or
// MLKEM1024.
func NewMLKEM(name string) (Scheme, error) {
	var inner circlkem.Scheme
	switch name {
	case MLKEM512:
		inner = mlkem512.Scheme()
	case MLKEM768:
		inner = mlkem768.Scheme()
	case MLKEM1024:
		inner = mlkem1024.Scheme()
	default:
		return nil, qerrors.NewCryptoError("kem.NewMLKEM "+name, qerrors.ErrConfiguration)
	}
	return &mlkemScheme{inner: inner}, nil
}

func (s *mlkemScheme) Name() string { return s.inner.Name() }

func (s *mlkemScheme) Secure() bool { return true }

func (s *mlkemScheme) GenerateKeyPair() (*KeyPair, error) {
	pk, sk, err := s.inner.GenerateKeyPair()
	if err != nil {
		return nil, qerrors.NewCryptoError(s.Name()+".GenerateKeyPair", err)
	}
	pkBytes, err := pk.MarshalBinary()
	if err != nil {
		return nil, qerrors.NewCryptoError(s.Name()+".GenerateKeyPair", err)
	}
	skBytes, err := sk.MarshalBinary()
	if err != nil {
		return nil, qerrors.NewCryptoError(s.Name()+".GenerateKeyPair", err)
	}
	return &KeyPair{PublicKey: pkBytes, PrivateKey: skBytes, Algorithm: s.Name()}, nil
}

func (s *mlkemScheme) Encapsulate(publicKey []byte) ([]byte, []byte, error) {
	if len(publicKey) != s.inner.PublicKeySize() {
		return nil, nil, qerrors.ErrInvalidPublicKey
	}
	pk, err := s.inner.UnmarshalBinaryPublicKey(publicKey)
	if err != nil {
		return nil, nil, qerrors.NewCryptoError(s.Name()+".Encapsulate", qerrors.ErrInvalidPublicKey)
	}
	ct, ss, err := s.inner.Encapsulate(pk)
	if err != nil {
		return nil, nil, qerrors.NewCryptoError(s.Name()+".Encapsulate", err)
	}
	return ct, ss, nil
}

func (s *mlkemScheme) Decapsulate(ciphertext, privateKey []byte) ([]byte, bool) {
	if len(ciphertext) != s.inner.CiphertextSize() || len(privateKey) != s.inner.PrivateKeySize() {
		return nil, false
	}
	sk, err := s.inner.UnmarshalBinaryPrivateKey(privateKey)
	if err != nil {
		return nil, false
	}
	ss, err := s.inner.Decapsulate(sk, ciphertext)
	if err != nil {
		return nil, false
	}
	return ss, true
}

func (s *mlkemScheme) PublicKeySize() int    { return s.inner.PublicKeySize() }
func (s *mlkemScheme) PrivateKeySize() int   { return s.inner.PrivateKeySize() }
func (s *mlkemScheme) CiphertextSize() int   { return s.inner.CiphertextSize() }
func (s *mlkemScheme) SharedSecretSize() int { return s.inner.SharedKeySize() }

// publicFromPrivate recovers the encoded public key from an encoded private key.
func (s *mlkemScheme) publicFromPrivate(privateKey []byte) ([]byte, bool) {
	sk, err := s.inner.UnmarshalBinaryPrivateKey(privateKey)
	if err != nil {
		return nil, false
	}
	pk, err := sk.Public().MarshalBinary()
	if err != nil {
		return nil, false
	}
	return pk, true
}
