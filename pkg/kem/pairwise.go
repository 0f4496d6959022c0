package kem

import (
	"fmt"

	qerrors "github.com/pzverkov/pqshare/internal/errors"
	"github.com/pzverkov/pqshare/pkg/crypto"
)

// PairwiseCheck encapsulates to kp and decapsulates the result, failing if
// the secrets differ. Run it on freshly generated keys before storing them.
func PairwiseCheck(s Scheme, kp *KeyPair) error {
	if kp == nil {
		return qerrors.ErrInvalidPrivateKey
	}
	if len(kp.PublicKey) != s.PublicKeySize() || len(kp.PrivateKey) != s.PrivateKeySize() {
		return qerrors.NewCryptoError(s.Name()+".PairwiseCheck", qerrors.ErrInvalidKeySize)
	}
	ct, ss1, err := s.Encapsulate(kp.PublicKey)
	if err != nil {
		return qerrors.NewCryptoError(s.Name()+".PairwiseCheck", err)
	}
	defer crypto.Zeroize(ss1)

	ss2, ok := s.Decapsulate(ct, kp.PrivateKey)
	if !ok {
		return qerrors.NewCryptoError(s.Name()+".PairwiseCheck", qerrors.ErrInvalidCiphertext)
	}
	defer crypto.Zeroize(ss2)

	if len(ss1) != s.SharedSecretSize() || !crypto.ConstantTimeCompare(ss1, ss2) {
		return qerrors.NewCryptoError(s.Name()+".PairwiseCheck", fmt.Errorf("shared secrets differ"))
	}
	return nil
}

// SelfTest generates a throwaway keypair and runs PairwiseCheck on it.
func SelfTest(s Scheme) error {
	kp, err := s.GenerateKeyPair()
	if err != nil {
		return err
	}
	defer kp.Zeroize()
	return PairwiseCheck(s, kp)
}
