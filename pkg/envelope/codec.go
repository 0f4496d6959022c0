package envelope

import (
	"encoding/binary"

	"github.com/pzverkov/pqshare/internal/constants"
	qerrors "github.com/pzverkov/pqshare/internal/errors"
)

// Encode serializes the two ciphertext parts:
//
//	+---------+--------+---------+----------+
//	| CT len  | KEM CT | Env len | Envelope |
//	| 4B BE   | var    | 4B BE   | var      |
//	+---------+--------+---------+----------+
//
// Algorithm and Suite are not part of the encoding.
func (w *WrappedKey) Encode() []byte {
	buf := make([]byte, 0, 2*constants.LengthPrefixSize+len(w.KEMCiphertext)+len(w.Envelope))
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(w.KEMCiphertext)))
	buf = append(buf, w.KEMCiphertext...)
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(w.Envelope)))
	buf = append(buf, w.Envelope...)
	return buf
}

// DecodeWrappedKey parses the output of Encode. Truncated input, trailing
// bytes, an empty KEM ciphertext, an envelope shorter than nonce plus tag,
// or a part longer than MaxWrappedPartSize all yield ErrInvalidMessage.
//
// The caller sets Algorithm and Suite from the stored record.
func DecodeWrappedKey(data []byte) (*WrappedKey, error) {
	ct, rest, err := readPart(data)
	if err != nil {
		return nil, err
	}
	env, rest, err := readPart(rest)
	if err != nil {
		return nil, err
	}
	if len(rest) != 0 || len(ct) == 0 || len(env) < constants.EnvelopeOverhead {
		return nil, qerrors.ErrInvalidMessage
	}
	return &WrappedKey{
		KEMCiphertext: append([]byte(nil), ct...),
		Envelope:      append([]byte(nil), env...),
	}, nil
}

func readPart(data []byte) (part, rest []byte, err error) {
	if len(data) < constants.LengthPrefixSize {
		return nil, nil, qerrors.ErrInvalidMessage
	}
	n := binary.BigEndian.Uint32(data)
	data = data[constants.LengthPrefixSize:]
	if n > constants.MaxWrappedPartSize || uint64(n) > uint64(len(data)) {
		return nil, nil, qerrors.ErrInvalidMessage
	}
	return data[:n], data[n:], nil
}
