// Package blob stores ciphertext blobs as files under a root directory.
package blob

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	qerrors "github.com/pzverkov/pqshare/internal/errors"
	"github.com/pzverkov/pqshare/pkg/store"
)

var _ store.BlobStore = (*FS)(nil)

const (
	dirPerm  = 0o700
	filePerm = 0o600
)

// FS writes each blob to <root>/<uuid[:2]>/<uuid>. Writes go through a
// temporary file that is synced and renamed into place, so a reader never
// sees a partial blob.
type FS struct {
	root string
}

// NewFS creates root if needed.
func NewFS(root string) (*FS, error) {
	if err := os.MkdirAll(root, dirPerm); err != nil {
		return nil, fmt.Errorf("blob: create root: %w", err)
	}
	return &FS{root: root}, nil
}

// Root returns the blob directory.
func (s *FS) Root() string {
	return s.root
}

func (s *FS) path(ref string) (string, error) {
	id, err := uuid.Parse(ref)
	if err != nil {
		return "", qerrors.ErrNotFound
	}
	name := id.String()
	return filepath.Join(s.root, name[:2], name), nil
}

func (s *FS) Put(ctx context.Context, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	ref := uuid.NewString()
	dst, _ := s.path(ref)
	dir := filepath.Dir(dst)
	if err := os.MkdirAll(dir, dirPerm); err != nil {
		return "", fmt.Errorf("blob: create dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return "", fmt.Errorf("blob: create temp: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		return "", fmt.Errorf("blob: write: %w", err)
	}
	if err := tmp.Chmod(filePerm); err != nil {
		return "", fmt.Errorf("blob: chmod: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return "", fmt.Errorf("blob: sync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("blob: close: %w", err)
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		return "", fmt.Errorf("blob: rename: %w", err)
	}
	committed = true
	return ref, nil
}

func (s *FS) Get(ctx context.Context, ref string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p, err := s.path(ref)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(p)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, qerrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("blob: read: %w", err)
	}
	return data, nil
}

// Delete removes a blob. Deleting a missing blob is not an error.
func (s *FS) Delete(_ context.Context, ref string) error {
	p, err := s.path(ref)
	if err != nil {
		return nil
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("blob: delete: %w", err)
	}
	return nil
}
