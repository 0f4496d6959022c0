// hybrid.go implements X25519-ML-KEM-1024, a hybrid KEM that stays secure if
// either X25519 or ML-KEM-1024 does.
//
// Key generation:
//
//	(sk_x, pk_x) <- X25519.KeyGen()
//	(sk_m, pk_m) <- ML-KEM-1024.KeyGen()
//	pk = pk_x || pk_m
//	sk = sk_x || sk_m
//
// Encapsulation:
//
//	(ct_m, K_m) <- ML-KEM-1024.Encaps(pk_m)
//	(e, E)      <- X25519.KeyGen()
//	K_x         <- X25519(e, pk_x)
//	ct          = E || ct_m
//	transcript  = SHA3-256(pk_x, pk_m, E, ct_m)
//	K           = SHAKE-256(K_x, K_m, transcript)
//
// Decapsulation recomputes both public halves from sk, so the stored private
// key is all that is needed to unwrap.
package kem

import (
	"github.com/cloudflare/circl/kem/mlkem/mlkem1024"

	"github.com/pzverkov/pqshare/internal/constants"
	qerrors "github.com/pzverkov/pqshare/internal/errors"
	"github.com/pzverkov/pqshare/pkg/crypto"
)

// Hybrid is the algorithm name of the hybrid scheme.
const Hybrid = "X25519-ML-KEM-1024"

type hybridScheme struct {
	pq *mlkemScheme
}

// NewHybrid returns the X25519-ML-KEM-1024 scheme.
func NewHybrid() Scheme {
	return &hybridScheme{pq: &mlkemScheme{inner: mlkem1024.Scheme()}}
}

func (h *hybridScheme) Name() string { return Hybrid }

func (h *hybridScheme) Secure() bool { return true }

func (h *hybridScheme) PublicKeySize() int {
	return constants.X25519PublicKeySize + h.pq.PublicKeySize()
}

func (h *hybridScheme) PrivateKeySize() int {
	return constants.X25519PrivateKeySize + h.pq.PrivateKeySize()
}

func (h *hybridScheme) CiphertextSize() int {
	return constants.X25519PublicKeySize + h.pq.CiphertextSize()
}

func (h *hybridScheme) SharedSecretSize() int { return constants.KDFOutputSize }

func (h *hybridScheme) GenerateKeyPair() (*KeyPair, error) {
	xPub, xPriv, err := x25519KeyGen()
	if err != nil {
		return nil, qerrors.NewCryptoError("Hybrid.GenerateKeyPair", err)
	}
	defer crypto.Zeroize(xPriv)
	m, err := h.pq.GenerateKeyPair()
	if err != nil {
		return nil, qerrors.NewCryptoError("Hybrid.GenerateKeyPair", err)
	}
	defer m.Zeroize()

	return &KeyPair{
		PublicKey:  concat(xPub, m.PublicKey),
		PrivateKey: concat(xPriv, m.PrivateKey),
		Algorithm:  Hybrid,
	}, nil
}

func (h *hybridScheme) Encapsulate(publicKey []byte) ([]byte, []byte, error) {
	if len(publicKey) != h.PublicKeySize() {
		return nil, nil, qerrors.ErrInvalidPublicKey
	}
	pkX, pkM := publicKey[:constants.X25519PublicKeySize], publicKey[constants.X25519PublicKeySize:]

	_, ephPriv, err := x25519KeyGen()
	if err != nil {
		return nil, nil, qerrors.NewCryptoError("Hybrid.Encapsulate", err)
	}
	ssX, ephPub, err := x25519Agree(ephPriv, pkX)
	crypto.Zeroize(ephPriv)
	if err != nil {
		return nil, nil, qerrors.NewCryptoError("Hybrid.Encapsulate", qerrors.ErrInvalidPublicKey)
	}
	ctM, ssM, err := h.pq.Encapsulate(pkM)
	if err != nil {
		crypto.Zeroize(ssX)
		return nil, nil, qerrors.NewCryptoError("Hybrid.Encapsulate", err)
	}

	ss, err := combine(ssX, ssM, pkX, pkM, ephPub, ctM)
	if err != nil {
		return nil, nil, err
	}
	return concat(ephPub, ctM), ss, nil
}

func (h *hybridScheme) Decapsulate(ciphertext, privateKey []byte) ([]byte, bool) {
	if len(ciphertext) != h.CiphertextSize() || len(privateKey) != h.PrivateKeySize() {
		return nil, false
	}
	skX, skM := privateKey[:constants.X25519PrivateKeySize], privateKey[constants.X25519PrivateKeySize:]
	ephPub, ctM := ciphertext[:constants.X25519PublicKeySize], ciphertext[constants.X25519PublicKeySize:]

	pkM, ok := h.pq.publicFromPrivate(skM)
	if !ok {
		return nil, false
	}
	ssX, pkX, err := x25519Agree(skX, ephPub)
	if err != nil {
		return nil, false
	}
	ssM, ok := h.pq.Decapsulate(ctM, skM)
	if !ok {
		crypto.Zeroize(ssX)
		return nil, false
	}

	ss, err := combine(ssX, ssM, pkX, pkM, ephPub, ctM)
	if err != nil {
		return nil, false
	}
	return ss, true
}

// combine binds both shared secrets to the full transcript and erases them.
func combine(ssX, ssM, pkX, pkM, ephPub, ctM []byte) ([]byte, error) {
	defer crypto.ZeroizeMultiple(ssX, ssM)
	return crypto.DeriveHybridSecret(ssX, ssM, crypto.TranscriptHash(pkX, pkM, ephPub, ctM))
}

func concat(a, b []byte) []byte {
	out := make([]byte, 0, len(a)+len(b))
	return append(append(out, a...), b...)
}
