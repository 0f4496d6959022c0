// Package memory implements the store interfaces in process memory.
package memory

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	qerrors "github.com/pzverkov/pqshare/internal/errors"
	"github.com/pzverkov/pqshare/pkg/model"
	"github.com/pzverkov/pqshare/pkg/store"
)

var (
	_ store.Store     = (*Store)(nil)
	_ store.BlobStore = (*Blobs)(nil)
)

// Store keeps records in maps behind one mutex. Records are copied on the
// way in and out.
type Store struct {
	mu         sync.Mutex
	shares     map[string]*model.ShareRecord
	userKeys   map[string]*model.UserKeys
	serverKeys map[string]*model.ServerKey // by generation
	files      map[string]*model.StoredFile
}

// New returns an empty store.
func New() *Store {
	return &Store{
		shares:     make(map[string]*model.ShareRecord),
		userKeys:   make(map[string]*model.UserKeys),
		serverKeys: make(map[string]*model.ServerKey),
		files:      make(map[string]*model.StoredFile),
	}
}

func (s *Store) Ping(context.Context) error { return nil }

func (s *Store) Close() {}

// --- shares ---

func (s *Store) Create(_ context.Context, r *model.ShareRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.shares[r.ShareID]; ok {
		return qerrors.ErrConflict
	}
	s.shares[r.ShareID] = r.Clone()
	return nil
}

func (s *Store) Get(_ context.Context, shareID string) (*model.ShareRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.shares[shareID]
	if !ok {
		return nil, qerrors.ErrNotFound
	}
	return r.Clone(), nil
}

func (s *Store) ListByOwner(_ context.Context, ownerID string) ([]*model.ShareRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*model.ShareRecord
	for _, r := range s.shares {
		if r.OwnerID == ownerID {
			out = append(out, r.Clone())
		}
	}
	slices.SortFunc(out, func(a, b *model.ShareRecord) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	return out, nil
}

func (s *Store) Consume(_ context.Context, shareID string, now time.Time) (*model.ShareRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.shares[shareID]
	if !ok {
		return nil, qerrors.ErrNotFound
	}
	if err := r.State(now).Err(); err != nil {
		return nil, err
	}
	r.DownloadCount++
	return r.Clone(), nil
}

func (s *Store) Deactivate(_ context.Context, shareID, ownerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.shares[shareID]
	if !ok {
		return qerrors.ErrNotFound
	}
	if r.OwnerID != ownerID {
		return qerrors.ErrAccessDenied
	}
	r.IsActive = false
	return nil
}

// --- user keys ---

func (s *Store) GetUserKeys(_ context.Context, userID string) (*model.UserKeys, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k, ok := s.userKeys[userID]
	if !ok {
		return nil, qerrors.ErrNotFound
	}
	c := *k
	return &c, nil
}

func (s *Store) InsertUserKeys(_ context.Context, k *model.UserKeys) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.userKeys[k.UserID]; ok {
		return qerrors.ErrConflict
	}
	c := *k
	s.userKeys[k.UserID] = &c
	return nil
}

func (s *Store) ResetAllUserKeys(context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.userKeys)
	clear(s.userKeys)
	return n, nil
}

// --- server keys ---

func (s *Store) ActiveServerKey(_ context.Context, keyID string) (*model.ServerKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if k := s.activeLocked(keyID); k != nil {
		c := *k
		return &c, nil
	}
	return nil, qerrors.ErrNotFound
}

func (s *Store) activeLocked(keyID string) *model.ServerKey {
	for _, k := range s.serverKeys {
		if k.KeyID == keyID && k.Active {
			return k
		}
	}
	return nil
}

func (s *Store) ServerKeyByGeneration(_ context.Context, generation string) (*model.ServerKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k, ok := s.serverKeys[generation]
	if !ok {
		return nil, qerrors.ErrNotFound
	}
	c := *k
	return &c, nil
}

func (s *Store) RotateServerKey(_ context.Context, k *model.ServerKey, replaces string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.serverKeys[k.Generation]; ok {
		return qerrors.ErrConflict
	}
	cur := s.activeLocked(k.KeyID)
	switch {
	case cur == nil && replaces != "":
		return qerrors.ErrConflict
	case cur != nil && cur.Generation != replaces:
		return qerrors.ErrConflict
	case cur != nil:
		cur.Active = false
	}
	c := *k
	c.Active = true
	s.serverKeys[k.Generation] = &c
	return nil
}

// --- files ---

func (s *Store) CreateFile(_ context.Context, f *model.StoredFile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.files[f.ID]; ok {
		return qerrors.ErrConflict
	}
	c := *f
	s.files[f.ID] = &c
	return nil
}

func (s *Store) GetFile(_ context.Context, id string) (*model.StoredFile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.files[id]
	if !ok {
		return nil, qerrors.ErrNotFound
	}
	c := *f
	return &c, nil
}

func (s *Store) ListFiles(_ context.Context, ownerID string) ([]*model.StoredFile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*model.StoredFile
	for _, f := range s.files {
		if f.OwnerID == ownerID {
			c := *f
			out = append(out, &c)
		}
	}
	slices.SortFunc(out, func(a, b *model.StoredFile) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	return out, nil
}

func (s *Store) DeleteFile(_ context.Context, id, ownerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.files[id]
	if !ok {
		return qerrors.ErrNotFound
	}
	if f.OwnerID != ownerID {
		return qerrors.ErrAccessDenied
	}
	delete(s.files, id)
	return nil
}

// Blobs is an in-memory BlobStore.
type Blobs struct {
	mu    sync.RWMutex
	blobs map[string][]byte
}

// NewBlobs returns an empty blob store.
func NewBlobs() *Blobs {
	return &Blobs{blobs: make(map[string][]byte)}
}

func (b *Blobs) Put(_ context.Context, data []byte) (string, error) {
	ref := uuid.NewString()
	b.mu.Lock()
	b.blobs[ref] = append([]byte(nil), data...)
	b.mu.Unlock()
	return ref, nil
}

func (b *Blobs) Get(_ context.Context, ref string) ([]byte, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	data, ok := b.blobs[ref]
	if !ok {
		return nil, qerrors.ErrNotFound
	}
	return append([]byte(nil), data...), nil
}

func (b *Blobs) Delete(_ context.Context, ref string) error {
	b.mu.Lock()
	delete(b.blobs, ref)
	b.mu.Unlock()
	return nil
}

// Len returns the number of stored blobs.
func (b *Blobs) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.blobs)
}
