package share

import (
	"context"
	"fmt"
	"time"

	"github.com/pzverkov/pqshare/internal/constants"
	qerrors "github.com/pzverkov/pqshare/internal/errors"
	"github.com/pzverkov/pqshare/pkg/crypto"
	"github.com/pzverkov/pqshare/pkg/metrics"
	"github.com/pzverkov/pqshare/pkg/model"
)

// Options common to both share kinds.
type Options struct {
	// ExpiryHours is the lifetime; zero selects the manager default.
	ExpiryHours int

	// MaxDownloads limits redemptions; nil is unlimited.
	MaxDownloads *int
}

// PublicRequest creates a link share.
type PublicRequest struct {
	OwnerID  string
	Filename string
	Payload  []byte
	Options
}

// PrivateRequest creates a share only TargetUserID can redeem.
type PrivateRequest struct {
	OwnerID      string
	TargetUserID string
	Filename     string
	Payload      []byte
	Options
}

// FileRequest shares a file already held in the vault.
type FileRequest struct {
	OwnerID      string
	FileID       string
	TargetUserID string // private shares only
	Options
}

// Created is the result of a share creation. Key is set for public shares
// and is the same key encoded in URL.
type Created struct {
	ShareID string
	URL     string
	Key     []byte
	Record  *model.ShareRecord
}

// CreatePublic encrypts req.Payload under a fresh key and wraps that key to
// the current server key.
func (m *Manager) CreatePublic(ctx context.Context, req PublicRequest) (c *Created, err error) {
	ctx, done := m.observer.OnCreate(ctx, string(model.SharePublic), len(req.Payload))
	defer func() { done(createdID(c), err) }()

	if !m.publicLinks {
		return nil, qerrors.NewShareError("share.CreatePublic", "", qerrors.ErrFeatureDisabled)
	}
	r, err := m.newRecord(model.SharePublic, req.OwnerID, req.Filename, len(req.Payload), req.Options)
	if err != nil {
		return nil, err
	}

	server, err := m.custody.EnsureServerKey(ctx)
	if err != nil {
		return nil, qerrors.NewShareError("share.CreatePublic", "", err)
	}
	engine, err := m.engine.ForAlgorithm(server.Algorithm)
	if err != nil {
		return nil, err
	}

	key, err := crypto.NewSymmetricKey()
	if err != nil {
		return nil, err
	}
	w, err := engine.WrapContext(ctx, key, server.Bytes)
	if err != nil {
		crypto.Zeroize(key)
		return nil, qerrors.NewShareError("share.CreatePublic", r.ShareID, err)
	}
	r.KEMCiphertext = w.Encode()
	r.KEMAlgorithm = w.Algorithm
	r.KEMKeyID = m.custody.ServerKeyID()
	r.KEMGeneration = server.Generation

	if err := m.store(ctx, r, key, req.Payload); err != nil {
		crypto.Zeroize(key)
		return nil, err
	}
	return &Created{
		ShareID: r.ShareID,
		URL:     BuildURL(m.basePath, r.ShareID, key),
		Key:     key,
		Record:  r,
	}, nil
}

// CreatePrivate encrypts req.Payload and wraps its key to the target user.
// A target without keys yields ErrKeyUnavailable and nothing is stored.
func (m *Manager) CreatePrivate(ctx context.Context, req PrivateRequest) (c *Created, err error) {
	ctx, done := m.observer.OnCreate(ctx, string(model.SharePrivate), len(req.Payload))
	defer func() { done(createdID(c), err) }()

	if !m.privateShares {
		return nil, qerrors.NewShareError("share.CreatePrivate", "", qerrors.ErrFeatureDisabled)
	}
	if req.TargetUserID == "" {
		return nil, fmt.Errorf("%w: target user is required", qerrors.ErrInvalidMessage)
	}
	r, err := m.newRecord(model.SharePrivate, req.OwnerID, req.Filename, len(req.Payload), req.Options)
	if err != nil {
		return nil, err
	}

	target, err := m.custody.UserPublicKey(ctx, req.TargetUserID)
	if err != nil {
		return nil, qerrors.NewShareError("share.CreatePrivate", "", err)
	}
	engine, err := m.engine.ForAlgorithm(target.Algorithm)
	if err != nil {
		return nil, err
	}

	key, err := crypto.NewSymmetricKey()
	if err != nil {
		return nil, err
	}
	defer crypto.Zeroize(key)

	w, err := engine.WrapContext(ctx, key, target.Bytes)
	if err != nil {
		return nil, qerrors.NewShareError("share.CreatePrivate", r.ShareID, err)
	}
	r.TargetUserID = req.TargetUserID
	r.TargetKEMCiphertext = w.Encode()
	r.TargetKEMAlgorithm = w.Algorithm

	if err := m.store(ctx, r, key, req.Payload); err != nil {
		return nil, err
	}
	return &Created{
		ShareID: r.ShareID,
		URL:     BuildURL(m.basePath, r.ShareID, nil),
		Record:  r,
	}, nil
}

// CreatePublicFromFile reseals an owner's stored file into a public share.
func (m *Manager) CreatePublicFromFile(ctx context.Context, req FileRequest) (*Created, error) {
	f, data, err := m.loadFile(ctx, req)
	if err != nil {
		return nil, err
	}
	defer crypto.Zeroize(data)
	return m.CreatePublic(ctx, PublicRequest{
		OwnerID:  req.OwnerID,
		Filename: f.OriginalFilename,
		Payload:  data,
		Options:  req.Options,
	})
}

// CreatePrivateFromFile reseals an owner's stored file into a private share.
func (m *Manager) CreatePrivateFromFile(ctx context.Context, req FileRequest) (*Created, error) {
	f, data, err := m.loadFile(ctx, req)
	if err != nil {
		return nil, err
	}
	defer crypto.Zeroize(data)
	return m.CreatePrivate(ctx, PrivateRequest{
		OwnerID:      req.OwnerID,
		TargetUserID: req.TargetUserID,
		Filename:     f.OriginalFilename,
		Payload:      data,
		Options:      req.Options,
	})
}

func (m *Manager) loadFile(ctx context.Context, req FileRequest) (*model.StoredFile, []byte, error) {
	if m.files == nil {
		return nil, nil, fmt.Errorf("%w: no file source", qerrors.ErrFeatureDisabled)
	}
	return m.files.Load(ctx, req.OwnerID, req.FileID)
}

// newRecord fills the fields shared by both kinds.
func (m *Manager) newRecord(kind model.ShareType, ownerID, filename string, size int, opts Options) (*model.ShareRecord, error) {
	if ownerID == "" {
		return nil, fmt.Errorf("%w: owner is required", qerrors.ErrInvalidMessage)
	}
	if opts.ExpiryHours < 0 {
		return nil, fmt.Errorf("%w: negative expiry", qerrors.ErrInvalidMessage)
	}
	if opts.MaxDownloads != nil && *opts.MaxDownloads < 1 {
		return nil, fmt.Errorf("%w: max downloads must be positive", qerrors.ErrInvalidMessage)
	}

	id, err := crypto.RandomToken(constants.ShareIDSize)
	if err != nil {
		return nil, err
	}
	expiry := m.defaultExpiry
	if opts.ExpiryHours > 0 {
		expiry = time.Duration(opts.ExpiryHours) * time.Hour
	}
	now := m.now().UTC()

	r := &model.ShareRecord{
		ShareID:          id,
		Type:             kind,
		OwnerID:          ownerID,
		OriginalFilename: filename,
		FileSize:         int64(size),
		CipherSuite:      m.suite,
		CreatedAt:        now,
		ExpiryTime:       now.Add(expiry),
		IsActive:         true,
	}
	if opts.MaxDownloads != nil {
		n := *opts.MaxDownloads
		r.MaxDownloads = &n
	}
	return r, nil
}

// store seals the payload into a blob and persists the record. The blob is
// removed again if the record cannot be written.
func (m *Manager) store(ctx context.Context, r *model.ShareRecord, key, payload []byte) error {
	env, err := crypto.Seal(r.CipherSuite, key, payload, payloadBinding(r.ShareID))
	if err != nil {
		return err
	}
	if r.PayloadRef, err = m.blobs.Put(ctx, env); err != nil {
		return qerrors.NewShareError("share.store", r.ShareID, err)
	}
	if err = r.Validate(); err == nil {
		err = m.shares.Create(ctx, r)
	}
	if err != nil {
		if derr := m.blobs.Delete(ctx, r.PayloadRef); derr != nil {
			m.observer.Logger().Warn("orphaned share blob", metrics.Fields{"ref": r.PayloadRef, "error": derr})
		}
		return qerrors.NewShareError("share.store", r.ShareID, err)
	}
	return nil
}

func payloadBinding(shareID string) []byte {
	return []byte("share:" + shareID)
}

func createdID(c *Created) string {
	if c == nil {
		return ""
	}
	return c.ShareID
}
