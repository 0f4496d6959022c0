package memory_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	qerrors "github.com/pzverkov/pqshare/internal/errors"
	"github.com/pzverkov/pqshare/pkg/model"
	"github.com/pzverkov/pqshare/pkg/store/memory"
)

func share(id, owner string, created time.Time, maxDownloads int) *model.ShareRecord {
	r := &model.ShareRecord{
		ShareID:       id,
		Type:          model.SharePublic,
		OwnerID:       owner,
		PayloadRef:    "blob-" + id,
		CreatedAt:     created,
		ExpiryTime:    created.Add(time.Hour),
		IsActive:      true,
		KEMCiphertext: []byte{1},
		KEMAlgorithm:  "ML-KEM-768",
		KEMGeneration: "g1",
	}
	if maxDownloads > 0 {
		r.MaxDownloads = &maxDownloads
	}
	return r
}

func TestShareCreateGet(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	now := time.Now()

	r := share("a", "alice", now, 0)
	if err := s.Create(ctx, r); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if err := s.Create(ctx, r); !errors.Is(err, qerrors.ErrConflict) {
		t.Errorf("duplicate Create = %v", err)
	}

	r.OwnerID = "mallory"
	got, err := s.Get(ctx, "a")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.OwnerID != "alice" {
		t.Error("store kept a reference to the caller's record")
	}
	if _, err := s.Get(ctx, "missing"); !errors.Is(err, qerrors.ErrNotFound) {
		t.Errorf("Get(missing) = %v", err)
	}
}

func TestShareListByOwner(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	now := time.Now()

	s.Create(ctx, share("old", "alice", now.Add(-time.Hour), 0))
	s.Create(ctx, share("new", "alice", now, 0))
	s.Create(ctx, share("other", "bob", now, 0))

	list, err := s.ListByOwner(ctx, "alice")
	if err != nil {
		t.Fatalf("ListByOwner failed: %v", err)
	}
	if len(list) != 2 || list[0].ShareID != "new" || list[1].ShareID != "old" {
		t.Errorf("unexpected list order: %v", list)
	}
}

func TestShareConsume(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	now := time.Now()
	s.Create(ctx, share("a", "alice", now, 2))

	for i := 1; i <= 2; i++ {
		r, err := s.Consume(ctx, "a", now)
		if err != nil {
			t.Fatalf("Consume %d failed: %v", i, err)
		}
		if r.DownloadCount != i {
			t.Errorf("DownloadCount = %d, want %d", r.DownloadCount, i)
		}
	}

	tests := []struct {
		name string
		id   string
		at   time.Time
		want error
	}{
		{"exhausted", "a", now, qerrors.ErrExhausted},
		{"missing", "nope", now, qerrors.ErrNotFound},
	}
	for _, tt := range tests {
		if _, err := s.Consume(ctx, tt.id, tt.at); !errors.Is(err, tt.want) {
			t.Errorf("%s: Consume = %v, want %v", tt.name, err, tt.want)
		}
	}

	s.Create(ctx, share("b", "alice", now, 0))
	if _, err := s.Consume(ctx, "b", now.Add(time.Hour)); !errors.Is(err, qerrors.ErrExpired) {
		t.Errorf("Consume at expiry = %v", err)
	}
}

func TestShareConsumeRace(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	now := time.Now()
	s.Create(ctx, share("a", "alice", now, 1))

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.Consume(ctx, "a", now); err == nil {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()

	if wins.Load() != 1 {
		t.Errorf("%d concurrent consumes succeeded, want 1", wins.Load())
	}
}

func TestShareDeactivate(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	now := time.Now()
	s.Create(ctx, share("a", "alice", now, 0))

	if err := s.Deactivate(ctx, "a", "bob"); !errors.Is(err, qerrors.ErrAccessDenied) {
		t.Errorf("Deactivate by non-owner = %v", err)
	}
	for i := 0; i < 2; i++ {
		if err := s.Deactivate(ctx, "a", "alice"); err != nil {
			t.Fatalf("Deactivate failed: %v", err)
		}
	}
	if _, err := s.Consume(ctx, "a", now); !errors.Is(err, qerrors.ErrDeactivated) {
		t.Errorf("Consume after deactivate = %v", err)
	}
	if err := s.Deactivate(ctx, "missing", "alice"); !errors.Is(err, qerrors.ErrNotFound) {
		t.Errorf("Deactivate(missing) = %v", err)
	}
}

func TestUserKeys(t *testing.T) {
	ctx := context.Background()
	s := memory.New()

	k := &model.UserKeys{UserID: "alice", Algorithm: "ML-KEM-768", PublicKey: []byte{1}}
	if err := s.InsertUserKeys(ctx, k); err != nil {
		t.Fatalf("InsertUserKeys failed: %v", err)
	}
	if err := s.InsertUserKeys(ctx, k); !errors.Is(err, qerrors.ErrConflict) {
		t.Errorf("second insert = %v", err)
	}
	if _, err := s.GetUserKeys(ctx, "alice"); err != nil {
		t.Fatalf("GetUserKeys failed: %v", err)
	}

	n, err := s.ResetAllUserKeys(ctx)
	if err != nil || n != 1 {
		t.Fatalf("ResetAllUserKeys = %d, %v", n, err)
	}
	if _, err := s.GetUserKeys(ctx, "alice"); !errors.Is(err, qerrors.ErrNotFound) {
		t.Errorf("GetUserKeys after reset = %v", err)
	}
}

func TestServerKeyRotation(t *testing.T) {
	ctx := context.Background()
	s := memory.New()

	if _, err := s.ActiveServerKey(ctx, "default"); !errors.Is(err, qerrors.ErrNotFound) {
		t.Errorf("ActiveServerKey on empty store = %v", err)
	}

	g1 := &model.ServerKey{Generation: "g1", KeyID: "default"}
	if err := s.RotateServerKey(ctx, g1, "g0"); !errors.Is(err, qerrors.ErrConflict) {
		t.Errorf("rotate with stale replaces = %v", err)
	}
	if err := s.RotateServerKey(ctx, g1, ""); err != nil {
		t.Fatalf("first RotateServerKey failed: %v", err)
	}

	g2 := &model.ServerKey{Generation: "g2", KeyID: "default"}
	if err := s.RotateServerKey(ctx, g2, ""); !errors.Is(err, qerrors.ErrConflict) {
		t.Errorf("rotate racing an existing key = %v", err)
	}
	if err := s.RotateServerKey(ctx, g2, "g1"); err != nil {
		t.Fatalf("RotateServerKey failed: %v", err)
	}

	active, err := s.ActiveServerKey(ctx, "default")
	if err != nil || active.Generation != "g2" {
		t.Fatalf("active = %+v, %v", active, err)
	}
	old, err := s.ServerKeyByGeneration(ctx, "g1")
	if err != nil {
		t.Fatalf("ServerKeyByGeneration failed: %v", err)
	}
	if old.Active {
		t.Error("previous generation still active")
	}

	other := &model.ServerKey{Generation: "x1", KeyID: "backup"}
	if err := s.RotateServerKey(ctx, other, ""); err != nil {
		t.Fatalf("independent key id failed: %v", err)
	}
}

func TestFiles(t *testing.T) {
	ctx := context.Background()
	s := memory.New()

	f := &model.StoredFile{ID: "f1", OwnerID: "alice", BlobRef: "b"}
	if err := s.CreateFile(ctx, f); err != nil {
		t.Fatalf("CreateFile failed: %v", err)
	}
	if err := s.CreateFile(ctx, f); !errors.Is(err, qerrors.ErrConflict) {
		t.Errorf("duplicate CreateFile = %v", err)
	}
	got, err := s.GetFile(ctx, "f1")
	if err != nil || got.OwnerID != "alice" {
		t.Fatalf("GetFile = %+v, %v", got, err)
	}
	if _, err := s.GetFile(ctx, "f2"); !errors.Is(err, qerrors.ErrNotFound) {
		t.Errorf("GetFile(missing) = %v", err)
	}
}

func TestFilesListDelete(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	for i, id := range []string{"a", "b", "c"} {
		owner := "alice"
		if id == "c" {
			owner = "bob"
		}
		f := &model.StoredFile{ID: id, OwnerID: owner, CreatedAt: base.Add(time.Duration(i) * time.Minute)}
		if err := s.CreateFile(ctx, f); err != nil {
			t.Fatalf("CreateFile failed: %v", err)
		}
	}

	list, err := s.ListFiles(ctx, "alice")
	if err != nil {
		t.Fatalf("ListFiles failed: %v", err)
	}
	if len(list) != 2 || list[0].ID != "b" || list[1].ID != "a" {
		t.Fatalf("ListFiles = %+v, want b then a", list)
	}

	tests := []struct {
		name  string
		id    string
		owner string
		want  error
	}{
		{"other owner", "a", "bob", qerrors.ErrAccessDenied},
		{"missing", "zz", "alice", qerrors.ErrNotFound},
		{"owner", "a", "alice", nil},
		{"already deleted", "a", "alice", qerrors.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := s.DeleteFile(ctx, tt.id, tt.owner); !errors.Is(err, tt.want) {
				t.Errorf("DeleteFile = %v, want %v", err, tt.want)
			}
		})
	}
	if list, _ := s.ListFiles(ctx, "alice"); len(list) != 1 {
		t.Errorf("ListFiles after delete = %d files", len(list))
	}
}

func TestBlobs(t *testing.T) {
	ctx := context.Background()
	b := memory.NewBlobs()

	ref, err := b.Put(ctx, []byte("abc"))
	if err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	got, err := b.Get(ctx, ref)
	if err != nil || string(got) != "abc" {
		t.Fatalf("Get = %q, %v", got, err)
	}
	got[0] = 'z'
	if again, _ := b.Get(ctx, ref); string(again) != "abc" {
		t.Error("Get returned shared storage")
	}
	b.Delete(ctx, ref)
	if b.Len() != 0 {
		t.Errorf("Len = %d after delete", b.Len())
	}
	if _, err := b.Get(ctx, ref); !errors.Is(err, qerrors.ErrNotFound) {
		t.Errorf("Get after delete = %v", err)
	}
}
