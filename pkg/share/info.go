package share

import (
	"context"
	"time"

	qerrors "github.com/pzverkov/pqshare/internal/errors"
	"github.com/pzverkov/pqshare/pkg/model"
)

// Info describes a share without its key material.
type Info struct {
	ShareID    string
	Type       model.ShareType
	OwnerID    string
	Filename   string
	Size       int64
	CreatedAt  time.Time
	ExpiryTime time.Time
	State      model.State

	// Stats is nil unless requested.
	Stats *Stats
}

// Stats are download counters. Remaining is -1 for unlimited shares.
type Stats struct {
	DownloadCount int
	Remaining     int
}

// Info returns metadata for shareID.
func (m *Manager) Info(ctx context.Context, shareID string, includeStats bool) (*Info, error) {
	r, err := m.shares.Get(ctx, shareID)
	if err != nil {
		return nil, qerrors.NewShareError("share.Info", shareID, err)
	}
	return m.info(r, includeStats), nil
}

// ListByOwner returns the owner's shares, newest first, with stats.
func (m *Manager) ListByOwner(ctx context.Context, ownerID string) ([]*Info, error) {
	records, err := m.shares.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	out := make([]*Info, 0, len(records))
	for _, r := range records {
		out = append(out, m.info(r, true))
	}
	return out, nil
}

// Deactivate retires a share. Only the owner may do so; repeating it is a
// no-op.
func (m *Manager) Deactivate(ctx context.Context, shareID, ownerID string) error {
	err := m.shares.Deactivate(ctx, shareID, ownerID)
	if err == nil {
		m.limiter.Forget(shareID)
	} else {
		err = qerrors.NewShareError("share.Deactivate", shareID, err)
	}
	m.observer.OnDeactivate(ctx, shareID, err)
	return err
}

func (m *Manager) info(r *model.ShareRecord, includeStats bool) *Info {
	i := &Info{
		ShareID:    r.ShareID,
		Type:       r.Type,
		OwnerID:    r.OwnerID,
		Filename:   r.OriginalFilename,
		Size:       r.FileSize,
		CreatedAt:  r.CreatedAt,
		ExpiryTime: r.ExpiryTime,
		State:      r.State(m.now()),
	}
	if includeStats {
		i.Stats = &Stats{DownloadCount: r.DownloadCount, Remaining: r.DownloadsRemaining()}
	}
	return i
}
