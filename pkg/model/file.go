package model

import "time"

// StoredFile is an owner's file encrypted at rest in the blob store under a
// key derived from the master secret, the owner id and Salt.
type StoredFile struct {
	ID               string
	OwnerID          string
	BlobRef          string
	Salt             []byte
	OriginalFilename string
	Size             int64
	CreatedAt        time.Time
}
