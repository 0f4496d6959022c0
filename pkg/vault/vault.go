// Package vault stores an owner's files encrypted at rest.
//
// Each file gets a fresh salt; its key is derived from the master secret and
// the owner id, so a blob moved to another owner's record does not open.
package vault

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/pzverkov/pqshare/internal/constants"
	qerrors "github.com/pzverkov/pqshare/internal/errors"
	"github.com/pzverkov/pqshare/pkg/crypto"
	"github.com/pzverkov/pqshare/pkg/metrics"
	"github.com/pzverkov/pqshare/pkg/model"
	"github.com/pzverkov/pqshare/pkg/store"
)

// KeyDeriver derives per-owner file keys. *custody.Service implements it.
type KeyDeriver interface {
	FileKey(ctx context.Context, ownerID string, salt []byte) ([]byte, error)
}

// Vault seals and opens stored files.
type Vault struct {
	keys  KeyDeriver
	files store.FileStore
	blobs store.BlobStore

	logger *metrics.Logger
	tracer metrics.Tracer
	now    func() time.Time
}

// Option configures a Vault.
type Option func(*Vault)

func WithLogger(l *metrics.Logger) Option { return func(v *Vault) { v.logger = l } }

func WithTracer(t metrics.Tracer) Option { return func(v *Vault) { v.tracer = t } }

func WithClock(now func() time.Time) Option { return func(v *Vault) { v.now = now } }

// New creates a vault over the given stores.
func New(keys KeyDeriver, files store.FileStore, blobs store.BlobStore, opts ...Option) *Vault {
	v := &Vault{
		keys:   keys,
		files:  files,
		blobs:  blobs,
		logger: metrics.NullLogger(),
		tracer: metrics.NoOpTracer{},
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(v)
	}
	v.logger = v.logger.Named("vault")
	return v
}

// Seal encrypts data for ownerID and records it.
func (v *Vault) Seal(ctx context.Context, ownerID, filename string, data []byte) (f *model.StoredFile, err error) {
	ctx, end := v.tracer.StartSpan(ctx, metrics.SpanVaultSeal,
		metrics.WithAttributes(metrics.SpanAttributes{PayloadBytes: int64(len(data))}.ToMap()))
	defer func() { end(err) }()

	if ownerID == "" {
		return nil, qerrors.ErrInvalidMessage
	}
	salt, err := crypto.NewSalt()
	if err != nil {
		return nil, err
	}
	key, err := v.keys.FileKey(ctx, ownerID, salt)
	if err != nil {
		return nil, err
	}
	defer crypto.Zeroize(key)

	f = &model.StoredFile{
		ID:               uuid.NewString(),
		OwnerID:          ownerID,
		Salt:             salt,
		OriginalFilename: filename,
		Size:             int64(len(data)),
		CreatedAt:        v.now().UTC(),
	}
	env, err := crypto.Seal(constants.CipherSuiteAES256GCM, key, data, fileBinding(f))
	if err != nil {
		return nil, err
	}
	if f.BlobRef, err = v.blobs.Put(ctx, env); err != nil {
		return nil, err
	}
	if err = v.files.CreateFile(ctx, f); err != nil {
		if derr := v.blobs.Delete(ctx, f.BlobRef); derr != nil {
			v.logger.Warn("orphaned blob", metrics.Fields{"ref": f.BlobRef, "error": derr})
		}
		return nil, err
	}
	v.logger.Debug("file sealed", metrics.Fields{"file_id": f.ID, "owner_id": ownerID, "bytes": len(data)})
	return f, nil
}

// Open decrypts f. Only the owner may open a file.
func (v *Vault) Open(ctx context.Context, ownerID string, f *model.StoredFile) (data []byte, err error) {
	ctx, end := v.tracer.StartSpan(ctx, metrics.SpanVaultOpen)
	defer func() { end(err) }()

	if f.OwnerID != ownerID {
		return nil, qerrors.ErrAccessDenied
	}
	env, err := v.blobs.Get(ctx, f.BlobRef)
	if err != nil {
		return nil, err
	}
	key, err := v.keys.FileKey(ctx, ownerID, f.Salt)
	if err != nil {
		return nil, err
	}
	defer crypto.Zeroize(key)

	return crypto.Open(constants.CipherSuiteAES256GCM, key, env, fileBinding(f))
}

// Load fetches a file record and decrypts it.
func (v *Vault) Load(ctx context.Context, ownerID, fileID string) (*model.StoredFile, []byte, error) {
	f, err := v.files.GetFile(ctx, fileID)
	if err != nil {
		return nil, nil, err
	}
	data, err := v.Open(ctx, ownerID, f)
	if err != nil {
		return nil, nil, err
	}
	return f, data, nil
}

// List returns ownerID's file records, newest first.
func (v *Vault) List(ctx context.Context, ownerID string) ([]*model.StoredFile, error) {
	return v.files.ListFiles(ctx, ownerID)
}

// Delete removes an owner's file record and then its blob. Shares already
// created from the file keep their own payload copy.
func (v *Vault) Delete(ctx context.Context, ownerID, fileID string) error {
	f, err := v.files.GetFile(ctx, fileID)
	if err != nil {
		return err
	}
	if err := v.files.DeleteFile(ctx, fileID, ownerID); err != nil {
		return err
	}
	if err := v.blobs.Delete(ctx, f.BlobRef); err != nil {
		v.logger.Warn("orphaned blob", metrics.Fields{"ref": f.BlobRef, "error": err})
	}
	v.logger.Debug("file deleted", metrics.Fields{"file_id": fileID, "owner_id": ownerID})
	return nil
}

func fileBinding(f *model.StoredFile) []byte {
	return []byte("file:" + f.ID + ":" + f.OwnerID)
}
