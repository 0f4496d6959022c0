// Package constants defines cryptographic parameters and storage-format
// constants for the pqshare envelope-encryption engine.
//
// KEM sizes are deliberately absent: they depend on the configured algorithm
// and must always be queried from the kem.Scheme in use.
package constants

// Format version and identification
const (
	// FormatVersion is the version of the at-rest envelope format
	FormatVersion uint16 = 0x0001

	// ProductName is used in log fields and tracer names
	ProductName = "pqshare"
)

// X25519 Parameters (RFC 7748)
const (
	// X25519PublicKeySize is the size of X25519 public key in bytes
	X25519PublicKeySize = 32

	// X25519PrivateKeySize is the size of X25519 private key in bytes
	X25519PrivateKeySize = 32

	// X25519SharedSecretSize is the size of the X25519 shared secret in bytes
	X25519SharedSecretSize = 32
)

// Symmetric Encryption Parameters
const (
	// SymmetricKeySize is the size of every share, file and wrap key in bytes
	SymmetricKeySize = 32

	// NonceSize is the AEAD nonce size in bytes (96 bits) for both suites
	NonceSize = 12

	// TagSize is the AEAD authentication tag size in bytes
	TagSize = 16

	// EnvelopeOverhead is the fixed prefix of an on-disk envelope: nonce || tag
	EnvelopeOverhead = NonceSize + TagSize
)

// Password-based Key Derivation Parameters (PBKDF2-HMAC-SHA256)
const (
	// SaltSize is the size of every PBKDF2 salt in bytes
	SaltSize = 16

	// MinPBKDF2Iterations is the floor enforced on every password derivation
	MinPBKDF2Iterations = 100000

	// DefaultPBKDF2Iterations is used when configuration does not override it
	DefaultPBKDF2Iterations = MinPBKDF2Iterations
)

// Key Derivation Parameters (HKDF-SHA256 / SHAKE-256)
const (
	// KDFOutputSize is the default output size for key derivation in bytes
	KDFOutputSize = 32

	// TranscriptHashSize is the size of the hybrid KEM transcript hash in bytes
	TranscriptHashSize = 32

	// DomainSeparatorHybrid is used in the hybrid KEM combiner
	DomainSeparatorHybrid = "pqshare-v1-hybrid-kem"

	// DomainSeparatorMockKEM is used by the insecure mock KEM
	DomainSeparatorMockKEM = "pqshare-v1-mock-kem"

	// DomainSeparatorWrapKey is the HKDF info for envelope wrap keys
	DomainSeparatorWrapKey = "pqshare-v1-wrap-key"

	// ServerKeyContext is mixed into the password that protects server static keys
	ServerKeyContext = "server_static_key"
)

// Share Parameters
const (
	// ShareIDSize is the number of random bytes behind a share identifier
	ShareIDSize = 16

	// DefaultShareExpiryHours is the lifetime of a share when none is given
	DefaultShareExpiryHours = 24

	// DefaultRotationDays is the server static key rotation interval
	DefaultRotationDays = 90

	// DefaultServerKeyID is the logical id of the server static keypair
	DefaultServerKeyID = "default"

	// DefaultSharePath is the path prefix of generated share URLs
	DefaultSharePath = "/share"
)

// Encoding Limits
const (
	// MaxWrappedPartSize bounds each length-prefixed part of a wrapped key
	MaxWrappedPartSize = 1 << 20

	// LengthPrefixSize is the size of the big-endian length before each part
	LengthPrefixSize = 4
)

// CipherSuite identifiers
type CipherSuite uint16

const (
	// CipherSuiteAES256GCM uses AES-256-GCM for symmetric encryption
	CipherSuiteAES256GCM CipherSuite = 0x0001

	// CipherSuiteChaCha20Poly1305 uses ChaCha20-Poly1305 for symmetric encryption
	CipherSuiteChaCha20Poly1305 CipherSuite = 0x0002
)

// String returns a human-readable name for the cipher suite
func (cs CipherSuite) String() string {
	switch cs {
	case CipherSuiteAES256GCM:
		return "AES-256-GCM"
	case CipherSuiteChaCha20Poly1305:
		return "ChaCha20-Poly1305"
	default:
		return "Unknown"
	}
}

// IsSupported returns true if the cipher suite is supported
func (cs CipherSuite) IsSupported() bool {
	return cs == CipherSuiteAES256GCM || cs == CipherSuiteChaCha20Poly1305
}

// IsFIPSApproved returns true if the cipher suite is FIPS 140-3 approved.
// Only AES-256-GCM is.
func (cs CipherSuite) IsFIPSApproved() bool {
	return cs == CipherSuiteAES256GCM
}

// ParseCipherSuite maps a configuration name to a CipherSuite.
// Unknown names return 0, which IsSupported rejects.
func ParseCipherSuite(name string) CipherSuite {
	switch name {
	case "aes-256-gcm", "AES-256-GCM", "aes":
		return CipherSuiteAES256GCM
	case "chacha20-poly1305", "ChaCha20-Poly1305", "chacha20":
		return CipherSuiteChaCha20Poly1305
	default:
		return 0
	}
}
