package store

import (
	"context"
	"sync"

	"github.com/banyancomputer/go-banyanfs/pkg/codec"
)

// MemoryDataStore is an in-memory DataStore reference implementation,
// used by tests and as the local cache layer of ApiSyncableStore,
// grounded on the teacher's in-memory DHT test double (§4.7).
type MemoryDataStore struct {
	mu     sync.RWMutex
	blocks map[codec.Cid][]byte
}

// NewMemoryDataStore constructs an empty store.
func NewMemoryDataStore() *MemoryDataStore {
	return &MemoryDataStore{blocks: make(map[codec.Cid][]byte)}
}

func (s *MemoryDataStore) ContainsCid(_ context.Context, cid codec.Cid) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.blocks[cid]
	return ok, nil
}

func (s *MemoryDataStore) Retrieve(_ context.Context, cid codec.Cid) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.blocks[cid]
	if !ok {
		return nil, NewNotFoundError(cid.String())
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

func (s *MemoryDataStore) Store(_ context.Context, cid codec.Cid, data []byte, _ bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored := make([]byte, len(data))
	copy(stored, data)
	s.blocks[cid] = stored
	return nil
}

func (s *MemoryDataStore) Remove(_ context.Context, cid codec.Cid, _ bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.blocks, cid)
	return nil
}

// Len reports the number of blocks currently held, for test assertions.
func (s *MemoryDataStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.blocks)
}
