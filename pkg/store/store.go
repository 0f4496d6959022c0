// Package store declares the persistence interfaces of pqshare.
//
// Implementations live in subpackages: memory for tests and single-process
// use, postgres for production, and blob for ciphertext files on disk.
// Every implementation reports a missing row with qerrors.ErrNotFound and a
// duplicate key with qerrors.ErrConflict.
package store

import (
	"context"
	"time"

	"github.com/pzverkov/pqshare/pkg/model"
)

// ShareStore persists share records.
type ShareStore interface {
	Create(ctx context.Context, r *model.ShareRecord) error
	Get(ctx context.Context, shareID string) (*model.ShareRecord, error)

	// ListByOwner returns the owner's shares, newest first.
	ListByOwner(ctx context.Context, ownerID string) ([]*model.ShareRecord, error)

	// Consume atomically increments the download count if, at now, the
	// share is active, unexpired and below its limit. It returns the
	// updated record. On refusal it returns the error for the share's
	// current state (see model.State.Err) or ErrNotFound.
	Consume(ctx context.Context, shareID string, now time.Time) (*model.ShareRecord, error)

	// Deactivate clears IsActive. A caller other than ownerID gets
	// ErrAccessDenied; repeating it is a no-op.
	Deactivate(ctx context.Context, shareID, ownerID string) error
}

// UserKeyStore persists user KEM keypairs.
type UserKeyStore interface {
	GetUserKeys(ctx context.Context, userID string) (*model.UserKeys, error)

	// InsertUserKeys stores keys once; ErrConflict if the user has keys.
	InsertUserKeys(ctx context.Context, k *model.UserKeys) error

	// ResetAllUserKeys deletes every user's keys and returns how many.
	ResetAllUserKeys(ctx context.Context) (int, error)
}

// ServerKeyStore persists server key generations.
type ServerKeyStore interface {
	ActiveServerKey(ctx context.Context, keyID string) (*model.ServerKey, error)

	// ServerKeyByGeneration returns any generation, active or not.
	ServerKeyByGeneration(ctx context.Context, generation string) (*model.ServerKey, error)

	// RotateServerKey deactivates the active key for k.KeyID and inserts k
	// as the active one, atomically. replaces is the generation the caller
	// believes active ("" for none); if it is not, nothing changes and
	// ErrConflict is returned.
	RotateServerKey(ctx context.Context, k *model.ServerKey, replaces string) error
}

// FileStore persists vault file metadata.
type FileStore interface {
	CreateFile(ctx context.Context, f *model.StoredFile) error
	GetFile(ctx context.Context, id string) (*model.StoredFile, error)
	// ListFiles returns ownerID's files, newest first.
	ListFiles(ctx context.Context, ownerID string) ([]*model.StoredFile, error)
	// DeleteFile removes a file record owned by ownerID. Another owner's
	// file yields ErrAccessDenied.
	DeleteFile(ctx context.Context, id, ownerID string) error
}

// BlobStore holds opaque ciphertext blobs addressed by generated refs.
type BlobStore interface {
	Put(ctx context.Context, data []byte) (ref string, err error)
	Get(ctx context.Context, ref string) ([]byte, error)
	Delete(ctx context.Context, ref string) error
}

// Store is a database backend providing every record store.
type Store interface {
	ShareStore
	UserKeyStore
	ServerKeyStore
	FileStore

	Ping(ctx context.Context) error
	Close()
}
