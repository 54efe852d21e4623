// Package store implements the BanyanFS pluggable block storage
// abstraction (§4.7): a DataStore contract, a SyncTracker bookkeeping
// dirty/deleted blocks, and a layered ApiSyncableStore that caches
// locally and flushes to remote storage hosts.
package store

import (
	"context"

	"github.com/banyancomputer/go-banyanfs/pkg/codec"
)

// DataStore is the storage contract a DataBlock is handed to: presence
// check, retrieval of the full encoded block, storage, and removal
// (§4.7).
type DataStore interface {
	// ContainsCid reports whether the store already holds cid.
	ContainsCid(ctx context.Context, cid codec.Cid) (bool, error)
	// Retrieve returns the full encoded block (including its header)
	// for cid.
	Retrieve(ctx context.Context, cid codec.Cid) ([]byte, error)
	// Store writes the full encoded block under cid. immediate hints
	// that the caller needs durability before this call returns.
	Store(ctx context.Context, cid codec.Cid, data []byte, immediate bool) error
	// Remove deletes cid. recursive applies to indirect-reference
	// blocks whose own referents should also be removed.
	Remove(ctx context.Context, cid codec.Cid, recursive bool) error
}

// SyncTracker records which blocks a drive has written locally but not
// yet flushed to a remote (tracked), and which blocks should be deleted
// from the remote on the next sync (deleted) (§4.7).
type SyncTracker interface {
	Track(cid codec.Cid, size uint64)
	Untrack(cid codec.Cid)
	Delete(cid codec.Cid)
	ClearDeleted()
	TrackedCids() []codec.Cid
	TrackedSize() uint64
	DeletedCids() []codec.Cid
}

// SyncableDataStore is a DataStore that can additionally flush its
// tracked blocks to a configured remote (§4.7).
type SyncableDataStore interface {
	DataStore
	SetSyncRemote(hostURL string)
	Sync(ctx context.Context, versionId string) error
}
