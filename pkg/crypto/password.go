package crypto

import (
	"crypto/sha256"
	"encoding/binary"

	"golang.org/x/crypto/pbkdf2"

	"github.com/pzverkov/pqshare/internal/constants"
	qerrors "github.com/pzverkov/pqshare/internal/errors"
)

// DerivePasswordKey stretches a password (or other low-entropy context) into
// a 32-byte key with PBKDF2-HMAC-SHA256.
//
// Parameters:
//   - password: Secret input; use JoinSecrets to combine several
//   - salt: 16 random bytes, unique per protected secret
//   - iterations: At least constants.MinPBKDF2Iterations
func DerivePasswordKey(password, salt []byte, iterations int) ([]byte, error) {
	if len(salt) != constants.SaltSize {
		return nil, qerrors.NewCryptoError("DerivePasswordKey", qerrors.ErrInvalidKeySize)
	}
	if iterations < constants.MinPBKDF2Iterations {
		return nil, qerrors.NewCryptoError("DerivePasswordKey", qerrors.ErrConfiguration)
	}
	return pbkdf2.Key(password, salt, iterations, constants.SymmetricKeySize, sha256.New), nil
}

// JoinSecrets encodes several secrets into one unambiguous password input:
// each part is preceded by its 4-byte big-endian length.
//
// The caller should Zeroize the result once the key has been derived.
func JoinSecrets(parts ...[]byte) []byte {
	n := 0
	for _, p := range parts {
		n += constants.LengthPrefixSize + len(p)
	}
	out := make([]byte, 0, n)
	for _, p := range parts {
		out = binary.BigEndian.AppendUint32(out, uint32(len(p)))
		out = append(out, p...)
	}
	return out
}
