// kdf.go implements the non-password key derivations.
//
// Two constructions are used:
//
//   - HKDF-SHA256 (RFC 5869) turns a KEM shared secret into the AEAD key
//     that wraps a symmetric key. The salt is SHA-256 of the KEM ciphertext,
//     so every wrap key is bound to the encapsulation that produced it.
//
//   - SHAKE-256 (FIPS 202) with length-prefixed domain separation combines
//     the two halves of the hybrid KEM and drives the mock KEM:
//
//     output = SHAKE-256(len(domain) || domain || len(input) || input, n)
//
// Length prefixes are 4-byte big-endian integers so that no two distinct
// input tuples encode to the same byte string.
package crypto

import (
	"crypto/sha256"
	"encoding/binary"
	"io"

	"golang.org/x/crypto/hkdf"
	"golang.org/x/crypto/sha3"

	"github.com/pzverkov/pqshare/internal/constants"
	qerrors "github.com/pzverkov/pqshare/internal/errors"
)

// DeriveKey derives a key using SHAKE-256 with domain separation.
//
// Parameters:
//   - domain: Domain separation string
//   - input: Secret input material to derive from
//   - outputLen: Desired output length in bytes (1 to 1 MiB)
func DeriveKey(domain string, input []byte, outputLen int) ([]byte, error) {
	if outputLen <= 0 || outputLen > 1<<20 {
		return nil, qerrors.NewCryptoError("DeriveKey", qerrors.ErrInvalidKeySize)
	}

	h := sha3.NewShake256()
	writeLengthPrefixed(h, []byte(domain))
	writeLengthPrefixed(h, input)

	output := make([]byte, outputLen)
	_, _ = h.Read(output) // SHAKE256.Read never fails
	return output, nil
}

// DeriveKeyMultiple derives a key from several inputs with domain separation.
// The input count is absorbed before the inputs themselves.
func DeriveKeyMultiple(domain string, inputs [][]byte, outputLen int) ([]byte, error) {
	if outputLen <= 0 || outputLen > 1<<20 {
		return nil, qerrors.NewCryptoError("DeriveKeyMultiple", qerrors.ErrInvalidKeySize)
	}

	h := sha3.NewShake256()
	writeLengthPrefixed(h, []byte(domain))

	var countBuf [4]byte
	binary.BigEndian.PutUint32(countBuf[:], uint32(len(inputs)))
	h.Write(countBuf[:])

	for _, input := range inputs {
		writeLengthPrefixed(h, input)
	}

	output := make([]byte, outputLen)
	_, _ = h.Read(output)
	return output, nil
}

// TranscriptHash computes SHA3-256 over length-prefixed components.
// The hybrid KEM binds both public keys and both ciphertext halves with it.
func TranscriptHash(components ...[]byte) []byte {
	h := sha3.New256()

	var countBuf [4]byte
	binary.BigEndian.PutUint32(countBuf[:], uint32(len(components)))
	h.Write(countBuf[:])

	for _, component := range components {
		writeLengthPrefixed(h, component)
	}

	return h.Sum(nil)
}

// DeriveHybridSecret combines the X25519 and ML-KEM secrets of the hybrid KEM.
//
//	K = SHAKE-256(K_x25519 || K_mlkem || transcript, 256)
//
// K stays secret as long as either input secret does.
func DeriveHybridSecret(x25519Secret, mlkemSecret, transcriptHash []byte) ([]byte, error) {
	if len(x25519Secret) != constants.X25519SharedSecretSize {
		return nil, qerrors.NewCryptoError("DeriveHybridSecret", qerrors.ErrInvalidKeySize)
	}
	if len(mlkemSecret) != constants.KDFOutputSize {
		return nil, qerrors.NewCryptoError("DeriveHybridSecret", qerrors.ErrInvalidKeySize)
	}
	if len(transcriptHash) != constants.TranscriptHashSize {
		return nil, qerrors.NewCryptoError("DeriveHybridSecret", qerrors.ErrInvalidKeySize)
	}

	return DeriveKeyMultiple(
		constants.DomainSeparatorHybrid,
		[][]byte{x25519Secret, mlkemSecret, transcriptHash},
		constants.KDFOutputSize,
	)
}

// DeriveWrapKey derives the AEAD key that wraps a symmetric key for one
// recipient, from the KEM shared secret of one encapsulation.
//
// Parameters:
//   - sharedSecret: KEM shared secret (any algorithm-defined length)
//   - kemCiphertext: The encapsulation that produced sharedSecret
//   - info: Domain separation string
//
// Returns a 32-byte key.
func DeriveWrapKey(sharedSecret, kemCiphertext []byte, info string) ([]byte, error) {
	if len(sharedSecret) == 0 {
		return nil, qerrors.NewCryptoError("DeriveWrapKey", qerrors.ErrInvalidKeySize)
	}

	salt := sha256.Sum256(kemCiphertext)
	r := hkdf.New(sha256.New, sharedSecret, salt[:], []byte(info))

	key := make([]byte, constants.SymmetricKeySize)
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, qerrors.NewCryptoError("DeriveWrapKey", err)
	}
	return key, nil
}

func writeLengthPrefixed(w io.Writer, b []byte) {
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(b)))
	w.Write(lenBuf[:])
	w.Write(b)
}
