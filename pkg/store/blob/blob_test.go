package blob_test

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	qerrors "github.com/pzverkov/pqshare/internal/errors"
	"github.com/pzverkov/pqshare/pkg/store/blob"
)

func TestFSPutGetDelete(t *testing.T) {
	ctx := context.Background()
	s, err := blob.NewFS(filepath.Join(t.TempDir(), "uploads"))
	if err != nil {
		t.Fatalf("NewFS failed: %v", err)
	}

	data := []byte("ciphertext bytes")
	ref, err := s.Put(ctx, data)
	if err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	got, err := s.Get(ctx, ref)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Error("blob contents differ")
	}

	info, err := os.Stat(filepath.Join(s.Root(), ref[:2], ref))
	if err != nil {
		t.Fatalf("Stat failed: %v", err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Errorf("blob mode = %v", info.Mode().Perm())
	}

	if err := s.Delete(ctx, ref); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := s.Get(ctx, ref); !errors.Is(err, qerrors.ErrNotFound) {
		t.Errorf("Get after delete = %v", err)
	}
	if err := s.Delete(ctx, ref); err != nil {
		t.Errorf("second Delete = %v", err)
	}
}

func TestFSNoTempFilesLeft(t *testing.T) {
	s, err := blob.NewFS(t.TempDir())
	if err != nil {
		t.Fatalf("NewFS failed: %v", err)
	}
	ref, err := s.Put(context.Background(), []byte("x"))
	if err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	entries, err := os.ReadDir(filepath.Join(s.Root(), ref[:2]))
	if err != nil {
		t.Fatalf("ReadDir failed: %v", err)
	}
	if len(entries) != 1 || entries[0].Name() != ref {
		t.Errorf("unexpected directory contents: %v", entries)
	}
}

func TestFSRejectsUnsafeRefs(t *testing.T) {
	s, err := blob.NewFS(t.TempDir())
	if err != nil {
		t.Fatalf("NewFS failed: %v", err)
	}
	for _, ref := range []string{"../../etc/passwd", "", "not-a-uuid"} {
		if _, err := s.Get(context.Background(), ref); !errors.Is(err, qerrors.ErrNotFound) {
			t.Errorf("Get(%q) = %v", ref, err)
		}
	}
}

func TestFSCancelledContext(t *testing.T) {
	s, err := blob.NewFS(t.TempDir())
	if err != nil {
		t.Fatalf("NewFS failed: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := s.Put(ctx, []byte("x")); !errors.Is(err, context.Canceled) {
		t.Errorf("Put with cancelled context = %v", err)
	}
}
