package store

import (
	"fmt"

	"github.com/banyancomputer/go-banyanfs/pkg/codec"
	"github.com/banyancomputer/go-banyanfs/pkg/codec/cborcanon"
)

// CacheIndexEntry is one local cache bookkeeping record: the CID's
// string form, its byte size, and the host URLs it was last known to be
// reachable from. This is local, off-wire metadata; it never appears in
// a drive image or data block (§4.1, §4.6 reserve the binary codec for
// those).
type CacheIndexEntry struct {
	Cid   string   `cbor:"cid"`
	Size  uint64   `cbor:"size"`
	Hosts []string `cbor:"hosts,omitempty"`
}

// CacheIndex is a snapshot of ApiSyncableStore's local cache and locator
// map, persisted between process runs so a restart does not require
// re-resolving every CID's host set from the platform (§4.7).
type CacheIndex struct {
	Entries []CacheIndexEntry `cbor:"entries"`
}

// Marshal encodes the index in canonical CBOR.
func (idx CacheIndex) Marshal() ([]byte, error) {
	data, err := cborcanon.Marshal(idx)
	if err != nil {
		return nil, fmt.Errorf("store: marshal cache index: %w", err)
	}
	return data, nil
}

// UnmarshalCacheIndex decodes a CacheIndex previously produced by
// Marshal.
func UnmarshalCacheIndex(data []byte) (CacheIndex, error) {
	var idx CacheIndex
	if err := cborcanon.Unmarshal(data, &idx); err != nil {
		return CacheIndex{}, fmt.Errorf("store: unmarshal cache index: %w", err)
	}
	return idx, nil
}

// SnapshotCacheIndex builds a CacheIndex from the locator map and local
// cache contents an ApiSyncableStore currently holds.
func SnapshotCacheIndex(locators map[codec.Cid][]string, localSizes map[codec.Cid]uint64) CacheIndex {
	entries := make([]CacheIndexEntry, 0, len(localSizes))
	for cid, size := range localSizes {
		entries = append(entries, CacheIndexEntry{
			Cid:   cid.String(),
			Size:  size,
			Hosts: locators[cid],
		})
	}
	return CacheIndex{Entries: entries}
}
