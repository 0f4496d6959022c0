// Package model defines the persisted entities of pqshare.
package model

import (
	"fmt"
	"time"

	"github.com/pzverkov/pqshare/internal/constants"
	qerrors "github.com/pzverkov/pqshare/internal/errors"
)

// ShareType distinguishes link shares from recipient-bound shares.
type ShareType string

const (
	SharePublic  ShareType = "public"
	SharePrivate ShareType = "private"
)

// State is the lifecycle state of a share as seen at a given instant.
type State int

const (
	StateActive State = iota
	StateDeactivated
	StateExpired
	StateExhausted
)

func (s State) String() string {
	switch s {
	case StateActive:
		return "active"
	case StateDeactivated:
		return "deactivated"
	case StateExpired:
		return "expired"
	case StateExhausted:
		return "exhausted"
	default:
		return "unknown"
	}
}

// Err returns the sentinel a redemption in this state fails with, or nil
// for StateActive.
func (s State) Err() error {
	switch s {
	case StateActive:
		return nil
	case StateDeactivated:
		return qerrors.ErrDeactivated
	case StateExpired:
		return qerrors.ErrExpired
	case StateExhausted:
		return qerrors.ErrExhausted
	default:
		return qerrors.ErrExpiredOrExhausted
	}
}

// ShareRecord is a share and the key material needed to redeem it.
//
// A public share carries the share key wrapped to the server key
// (KEMCiphertext, KEMAlgorithm, KEMKeyID, KEMGeneration). A private share
// carries it wrapped to the target user (TargetUserID, TargetKEMCiphertext,
// TargetKEMAlgorithm). Exactly one group is set.
type ShareRecord struct {
	ShareID          string
	Type             ShareType
	OwnerID          string
	PayloadRef       string
	OriginalFilename string
	FileSize         int64
	CipherSuite      constants.CipherSuite

	CreatedAt     time.Time
	ExpiryTime    time.Time
	MaxDownloads  *int
	DownloadCount int
	IsActive      bool

	KEMCiphertext []byte
	KEMAlgorithm  string
	KEMKeyID      string
	KEMGeneration string

	TargetUserID        string
	TargetKEMCiphertext []byte
	TargetKEMAlgorithm  string
}

// State evaluates the record at now. Deactivation wins over expiry, and
// expiry over exhaustion. A share is expired once now reaches ExpiryTime.
func (r *ShareRecord) State(now time.Time) State {
	switch {
	case !r.IsActive:
		return StateDeactivated
	case !now.Before(r.ExpiryTime):
		return StateExpired
	case r.MaxDownloads != nil && r.DownloadCount >= *r.MaxDownloads:
		return StateExhausted
	default:
		return StateActive
	}
}

// DownloadsRemaining returns the downloads left, or -1 for unlimited.
func (r *ShareRecord) DownloadsRemaining() int {
	if r.MaxDownloads == nil {
		return -1
	}
	return max(*r.MaxDownloads-r.DownloadCount, 0)
}

// Validate checks the field invariants of a new record.
func (r *ShareRecord) Validate() error {
	if r.ShareID == "" || r.OwnerID == "" || r.PayloadRef == "" {
		return fmt.Errorf("%w: share id, owner and payload are required", qerrors.ErrInvalidMessage)
	}
	if !r.ExpiryTime.After(r.CreatedAt) {
		return fmt.Errorf("%w: expiry must follow creation", qerrors.ErrInvalidMessage)
	}
	if r.MaxDownloads != nil && *r.MaxDownloads < 1 {
		return fmt.Errorf("%w: max downloads must be positive", qerrors.ErrInvalidMessage)
	}

	public := len(r.KEMCiphertext) > 0 || r.KEMAlgorithm != "" || r.KEMKeyID != "" || r.KEMGeneration != ""
	private := r.TargetUserID != "" || len(r.TargetKEMCiphertext) > 0 || r.TargetKEMAlgorithm != ""

	switch r.Type {
	case SharePublic:
		if private || len(r.KEMCiphertext) == 0 || r.KEMAlgorithm == "" || r.KEMGeneration == "" {
			return fmt.Errorf("%w: public share needs server-wrapped key only", qerrors.ErrInvalidMessage)
		}
	case SharePrivate:
		if public || r.TargetUserID == "" || len(r.TargetKEMCiphertext) == 0 || r.TargetKEMAlgorithm == "" {
			return fmt.Errorf("%w: private share needs target-wrapped key only", qerrors.ErrInvalidMessage)
		}
	default:
		return fmt.Errorf("%w: share type %q", qerrors.ErrInvalidMessage, r.Type)
	}
	return nil
}

// Clone returns a deep copy.
func (r *ShareRecord) Clone() *ShareRecord {
	c := *r
	if r.MaxDownloads != nil {
		n := *r.MaxDownloads
		c.MaxDownloads = &n
	}
	c.KEMCiphertext = cloneBytes(r.KEMCiphertext)
	c.TargetKEMCiphertext = cloneBytes(r.TargetKEMCiphertext)
	return &c
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	return append([]byte(nil), b...)
}
