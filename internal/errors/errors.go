// Package errors defines the error taxonomy of the pqshare engine.
// Messages never include key material, passwords or plaintext.
package errors

import (
	"errors"
	"fmt"
)

// Sentinel errors for KEM and key material
var (
	// ErrInvalidKeySize indicates that a key has an incorrect size
	ErrInvalidKeySize = errors.New("kem: invalid key size")

	// ErrInvalidCiphertext indicates that a KEM ciphertext is malformed
	ErrInvalidCiphertext = errors.New("kem: invalid ciphertext")

	// ErrInvalidPublicKey indicates that a public key is invalid
	ErrInvalidPublicKey = errors.New("kem: invalid public key")

	// ErrInvalidPrivateKey indicates that a private key is invalid
	ErrInvalidPrivateKey = errors.New("kem: invalid private key")

	// ErrKeyGenerationFailed indicates that key generation failed
	ErrKeyGenerationFailed = errors.New("kem: key generation failed")

	// ErrKEMDisabled indicates the KEM provider is configured as "none"
	ErrKEMDisabled = errors.New("kem: provider disabled")

	// ErrConfiguration indicates an unusable configuration; fatal at startup only
	ErrConfiguration = errors.New("configuration error")
)

// Sentinel errors for AEAD operations
var (
	// ErrAuthenticationFailed indicates AEAD tag verification failed.
	// Surfaced to users as corrupted or tampered data.
	ErrAuthenticationFailed = errors.New("aead: authentication failed")

	// ErrCiphertextTooShort indicates the input cannot hold nonce and tag
	ErrCiphertextTooShort = errors.New("aead: ciphertext too short")

	// ErrUnsupportedCipherSuite indicates an unsupported or non-approved suite
	ErrUnsupportedCipherSuite = errors.New("aead: unsupported cipher suite")

	// ErrInvalidMessage indicates a stored encoding is malformed
	ErrInvalidMessage = errors.New("encoding: invalid message")
)

// Sentinel errors for key custody
var (
	// ErrKeyUnavailable indicates a user or server has no usable key.
	// Degrades the feature rather than failing the process.
	ErrKeyUnavailable = errors.New("custody: key unavailable")
)

// Sentinel errors for the share lifecycle
var (
	// ErrNotFound indicates an unknown share, file or key id
	ErrNotFound = errors.New("share: not found")

	// ErrAccessDenied indicates the requester is not the owner or target
	ErrAccessDenied = errors.New("share: access denied")

	// ErrExpiredOrExhausted indicates the share can no longer be redeemed
	ErrExpiredOrExhausted = errors.New("share: expired or exhausted")

	// ErrExpired indicates the share is past its expiry time
	ErrExpired = fmt.Errorf("%w: expired", ErrExpiredOrExhausted)

	// ErrExhausted indicates the download limit has been reached
	ErrExhausted = fmt.Errorf("%w: download limit reached", ErrExpiredOrExhausted)

	// ErrDeactivated indicates the owner deactivated the share
	ErrDeactivated = errors.New("share: deactivated")

	// ErrRateLimited indicates too many redemption attempts for one share
	ErrRateLimited = errors.New("share: too many attempts")

	// ErrFeatureDisabled indicates the operation is switched off by configuration
	ErrFeatureDisabled = errors.New("share: feature disabled")
)

// Sentinel errors for storage
var (
	// ErrConflict indicates a uniqueness conflict on insert
	ErrConflict = errors.New("store: record already exists")
)

// CryptoError wraps a cryptographic error with additional context
type CryptoError struct {
	Op  string // Operation that failed
	Err error  // Underlying error
}

func (e *CryptoError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *CryptoError) Unwrap() error {
	return e.Err
}

// NewCryptoError creates a new CryptoError
func NewCryptoError(op string, err error) *CryptoError {
	return &CryptoError{Op: op, Err: err}
}

// ShareError wraps a share lifecycle error with the share it concerns
type ShareError struct {
	ShareID string // Share the operation targeted
	Op      string // Lifecycle operation (e.g., "redeem", "deactivate")
	Err     error  // Underlying error
}

func (e *ShareError) Error() string {
	return fmt.Sprintf("share %s %s: %v", e.Op, e.ShareID, e.Err)
}

func (e *ShareError) Unwrap() error {
	return e.Err
}

// NewShareError creates a new ShareError
func NewShareError(op, shareID string, err error) *ShareError {
	return &ShareError{ShareID: shareID, Op: op, Err: err}
}

// Is reports whether any error in err's chain matches target.
// This is a convenience wrapper around errors.Is.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
// This is a convenience wrapper around errors.As.
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}
