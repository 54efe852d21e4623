package store

import (
	"sort"
	"sync"

	"github.com/banyancomputer/go-banyanfs/pkg/codec"
)

// BasicSyncTracker is the reference SyncTracker implementation: two
// guarded sets, pending-store (cid -> size) and pending-delete (set of
// cid), matching §4.7's "maintains two sets" description. The sync
// tracker uses a writer lock during all mutations (§5).
type BasicSyncTracker struct {
	mu      sync.Mutex
	pending map[codec.Cid]uint64
	deleted map[codec.Cid]struct{}
}

// NewBasicSyncTracker constructs an empty tracker.
func NewBasicSyncTracker() *BasicSyncTracker {
	return &BasicSyncTracker{
		pending: make(map[codec.Cid]uint64),
		deleted: make(map[codec.Cid]struct{}),
	}
}

func (t *BasicSyncTracker) Track(cid codec.Cid, size uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.pending[cid] = size
}

func (t *BasicSyncTracker) Untrack(cid codec.Cid) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.pending, cid)
}

func (t *BasicSyncTracker) Delete(cid codec.Cid) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.pending, cid)
	t.deleted[cid] = struct{}{}
}

func (t *BasicSyncTracker) ClearDeleted() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.deleted = make(map[codec.Cid]struct{})
}

// TrackedCids returns a snapshot of the pending-store set, sorted for
// deterministic iteration. Callers that need an atomic "as-of-now" view
// for sync take this snapshot at entry (§4.7 "the sync walks a snapshot
// of tracked_cids() taken at entry").
func (t *BasicSyncTracker) TrackedCids() []codec.Cid {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]codec.Cid, 0, len(t.pending))
	for cid := range t.pending {
		out = append(out, cid)
	}
	sortCids(out)
	return out
}

func (t *BasicSyncTracker) TrackedSize() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	var total uint64
	for _, size := range t.pending {
		total += size
	}
	return total
}

func (t *BasicSyncTracker) DeletedCids() []codec.Cid {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]codec.Cid, 0, len(t.deleted))
	for cid := range t.deleted {
		out = append(out, cid)
	}
	sortCids(out)
	return out
}

func sortCids(cids []codec.Cid) {
	sort.Slice(cids, func(i, j int) bool {
		return string(cids[i][:]) < string(cids[j][:])
	})
}
