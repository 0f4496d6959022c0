package kem

import (
	"crypto/ecdh"

	"github.com/pzverkov/pqshare/internal/constants"
	qerrors "github.com/pzverkov/pqshare/internal/errors"
	"github.com/pzverkov/pqshare/pkg/crypto"
)

// x25519KeyGen returns an encoded X25519 public and private key.
func x25519KeyGen() (pub, priv []byte, err error) {
	sk, err := ecdh.X25519().GenerateKey(crypto.Reader)
	if err != nil {
		return nil, nil, qerrors.NewCryptoError("x25519.KeyGen", err)
	}
	return sk.PublicKey().Bytes(), sk.Bytes(), nil
}

// x25519Agree computes the raw Diffie-Hellman output of priv and peer. It
// also returns the public half of priv. The output goes through
// DeriveHybridSecret and is never used as a key on its own.
func x25519Agree(priv, peer []byte) (secret, pub []byte, err error) {
	if len(priv) != constants.X25519PrivateKeySize {
		return nil, nil, qerrors.ErrInvalidPrivateKey
	}
	if len(peer) != constants.X25519PublicKeySize {
		return nil, nil, qerrors.ErrInvalidPublicKey
	}
	sk, err := ecdh.X25519().NewPrivateKey(priv)
	if err != nil {
		return nil, nil, qerrors.NewCryptoError("x25519.Agree", qerrors.ErrInvalidPrivateKey)
	}
	pk, err := ecdh.X25519().NewPublicKey(peer)
	if err != nil {
		return nil, nil, qerrors.NewCryptoError("x25519.Agree", qerrors.ErrInvalidPublicKey)
	}
	// ECDH rejects low-order points with an all-zero output.
	secret, err = sk.ECDH(pk)
	if err != nil {
		return nil, nil, qerrors.NewCryptoError("x25519.Agree", err)
	}
	return secret, sk.PublicKey().Bytes(), nil
}
