package share

import (
	"context"
	"fmt"

	"github.com/pzverkov/pqshare/internal/constants"
	qerrors "github.com/pzverkov/pqshare/internal/errors"
	"github.com/pzverkov/pqshare/pkg/crypto"
	"github.com/pzverkov/pqshare/pkg/envelope"
	"github.com/pzverkov/pqshare/pkg/metrics"
	"github.com/pzverkov/pqshare/pkg/model"
)

// Download is a redeemed payload. Record reflects the consumed download.
type Download struct {
	Filename string
	Payload  []byte
	Record   *model.ShareRecord
}

// Credentials identify the requester of a private share.
type Credentials struct {
	UserID   string
	Password string
}

// Redeem parses a share URL and redeems it: with the fragment key for a
// public link, otherwise with creds.
func (m *Manager) Redeem(ctx context.Context, rawURL string, creds Credentials) (*Download, error) {
	link, err := ParseURL(rawURL)
	if err != nil {
		return nil, err
	}
	if link.Public() {
		return m.RedeemPublic(ctx, link.ShareID, link.Key)
	}
	return m.RedeemPrivate(ctx, link.ShareID, creds.UserID, creds.Password)
}

// RedeemPublic redeems a link share with the key from its URL.
func (m *Manager) RedeemPublic(ctx context.Context, shareID string, linkKey []byte) (d *Download, err error) {
	ctx, done := m.observer.OnRedeem(ctx, shareID)
	defer func() { done(downloadLen(d), err) }()

	r, err := m.admit(ctx, "share.RedeemPublic", shareID)
	if err != nil {
		return nil, err
	}
	if r.Type != model.SharePublic {
		return nil, qerrors.NewShareError("share.RedeemPublic", shareID, qerrors.ErrAccessDenied)
	}
	if len(linkKey) != constants.SymmetricKeySize {
		return nil, qerrors.NewShareError("share.RedeemPublic", shareID,
			fmt.Errorf("%w: link key must be %d bytes", qerrors.ErrAuthenticationFailed, constants.SymmetricKeySize))
	}
	if m.verifyWrap {
		if err := m.verifyServerWrap(ctx, r, linkKey); err != nil {
			return nil, qerrors.NewShareError("share.RedeemPublic", shareID, err)
		}
	}
	return m.deliver(ctx, "share.RedeemPublic", r, linkKey)
}

// RedeemPrivate redeems a private share as userID, unlocking the user's
// private key with password.
func (m *Manager) RedeemPrivate(ctx context.Context, shareID, userID, password string) (d *Download, err error) {
	ctx, done := m.observer.OnRedeem(ctx, shareID)
	defer func() { done(downloadLen(d), err) }()

	if !m.privateShares {
		return nil, qerrors.NewShareError("share.RedeemPrivate", shareID, qerrors.ErrFeatureDisabled)
	}
	r, err := m.admit(ctx, "share.RedeemPrivate", shareID)
	if err != nil {
		return nil, err
	}
	if r.Type != model.SharePrivate || userID == "" || r.TargetUserID != userID {
		return nil, qerrors.NewShareError("share.RedeemPrivate", shareID, qerrors.ErrAccessDenied)
	}

	sk, err := m.custody.UserPrivateKey(ctx, userID, password)
	if err != nil {
		return nil, qerrors.NewShareError("share.RedeemPrivate", shareID, err)
	}
	defer sk.Zeroize()

	key, err := m.unwrap(ctx, r.TargetKEMCiphertext, r.TargetKEMAlgorithm, r.CipherSuite, sk.Bytes())
	if err != nil {
		return nil, qerrors.NewShareError("share.RedeemPrivate", shareID, err)
	}
	defer crypto.Zeroize(key)

	return m.deliver(ctx, "share.RedeemPrivate", r, key)
}

// admit applies the attempt limit, loads the record and checks its state.
func (m *Manager) admit(ctx context.Context, op, shareID string) (*model.ShareRecord, error) {
	if !m.limiter.Allow(shareID) {
		m.observer.OnRateLimited(shareID)
		return nil, qerrors.NewShareError(op, shareID, qerrors.ErrRateLimited)
	}
	r, err := m.shares.Get(ctx, shareID)
	if err != nil {
		return nil, qerrors.NewShareError(op, shareID, err)
	}
	if err := r.State(m.now()).Err(); err != nil {
		return nil, qerrors.NewShareError(op, shareID, err)
	}
	return r, nil
}

// deliver decrypts the payload and then consumes one download.
func (m *Manager) deliver(ctx context.Context, op string, r *model.ShareRecord, key []byte) (*Download, error) {
	env, err := m.blobs.Get(ctx, r.PayloadRef)
	if err != nil {
		return nil, qerrors.NewShareError(op, r.ShareID, err)
	}
	payload, err := crypto.Open(r.CipherSuite, key, env, payloadBinding(r.ShareID))
	if err != nil {
		return nil, qerrors.NewShareError(op, r.ShareID, err)
	}

	updated, err := m.shares.Consume(ctx, r.ShareID, m.now())
	if err != nil {
		crypto.Zeroize(payload)
		return nil, qerrors.NewShareError(op, r.ShareID, err)
	}
	return &Download{
		Filename: updated.OriginalFilename,
		Payload:  payload,
		Record:   updated,
	}, nil
}

// unwrap decodes a stored wrapped key and opens it with sk.
func (m *Manager) unwrap(ctx context.Context, encoded []byte, algorithm string, suite constants.CipherSuite, sk []byte) ([]byte, error) {
	w, err := envelope.DecodeWrappedKey(encoded)
	if err != nil {
		return nil, err
	}
	w.Algorithm = algorithm
	w.Suite = suite

	key, ok := m.engine.UnwrapContext(ctx, w, sk)
	if !ok {
		return nil, qerrors.ErrAuthenticationFailed
	}
	return key, nil
}

// verifyServerWrap compares the link key with the server-wrapped copy. An
// unavailable server key is logged and ignored since the link key governs.
func (m *Manager) verifyServerWrap(ctx context.Context, r *model.ShareRecord, linkKey []byte) error {
	serverKey, err := m.recover(ctx, r)
	if err != nil {
		m.observer.Logger().Warn("server wrap not verifiable", metrics.Fields{"share_id": r.ShareID, "error": err})
		return nil
	}
	defer crypto.Zeroize(serverKey)
	if !crypto.ConstantTimeCompare(serverKey, linkKey) {
		return qerrors.ErrAccessDenied
	}
	return nil
}

// RecoverPublicKey returns a public share's key from its server-wrapped
// copy, using whichever server key generation wrapped it.
func (m *Manager) RecoverPublicKey(ctx context.Context, shareID string) ([]byte, error) {
	r, err := m.shares.Get(ctx, shareID)
	if err != nil {
		return nil, qerrors.NewShareError("share.RecoverPublicKey", shareID, err)
	}
	if r.Type != model.SharePublic {
		return nil, qerrors.NewShareError("share.RecoverPublicKey", shareID, qerrors.ErrAccessDenied)
	}
	key, err := m.recover(ctx, r)
	if err != nil {
		return nil, qerrors.NewShareError("share.RecoverPublicKey", shareID, err)
	}
	return key, nil
}

func (m *Manager) recover(ctx context.Context, r *model.ShareRecord) ([]byte, error) {
	sk, err := m.custody.ServerPrivateKey(ctx, r.KEMGeneration)
	if err != nil {
		return nil, err
	}
	defer sk.Zeroize()
	return m.unwrap(ctx, r.KEMCiphertext, r.KEMAlgorithm, r.CipherSuite, sk.Bytes())
}

func downloadLen(d *Download) int {
	if d == nil {
		return 0
	}
	return len(d.Payload)
}
