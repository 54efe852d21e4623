package store

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	"github.com/banyancomputer/go-banyanfs/internal/platformapi"
	"github.com/banyancomputer/go-banyanfs/pkg/codec"
)

func cidOf(b byte) codec.Cid {
	var c codec.Cid
	c[0] = b
	return c
}

func TestMemoryDataStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	ds := NewMemoryDataStore()
	cid := cidOf(1)

	if ok, _ := ds.ContainsCid(ctx, cid); ok {
		t.Fatalf("expected empty store to not contain cid")
	}
	if _, err := ds.Retrieve(ctx, cid); err == nil {
		t.Fatalf("expected not-found error")
	}

	payload := []byte("hello banyan")
	if err := ds.Store(ctx, cid, payload, true); err != nil {
		t.Fatalf("store: %v", err)
	}
	if ok, _ := ds.ContainsCid(ctx, cid); !ok {
		t.Fatalf("expected store to contain cid")
	}
	got, err := ds.Retrieve(ctx, cid)
	if err != nil {
		t.Fatalf("retrieve: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Fatalf("retrieved %q, want %q", got, payload)
	}

	got[0] = 'X'
	got2, _ := ds.Retrieve(ctx, cid)
	if got2[0] == 'X' {
		t.Fatalf("Retrieve must return a defensive copy")
	}

	if err := ds.Remove(ctx, cid, false); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if ok, _ := ds.ContainsCid(ctx, cid); ok {
		t.Fatalf("expected cid removed")
	}
}

func TestBasicSyncTrackerTrackAndDelete(t *testing.T) {
	tr := NewBasicSyncTracker()
	a, b := cidOf(1), cidOf(2)

	tr.Track(a, 10)
	tr.Track(b, 20)
	if got := tr.TrackedSize(); got != 30 {
		t.Fatalf("tracked size = %d, want 30", got)
	}
	if got := tr.TrackedCids(); len(got) != 2 {
		t.Fatalf("tracked cids = %v, want 2 entries", got)
	}

	tr.Untrack(a)
	if got := tr.TrackedSize(); got != 20 {
		t.Fatalf("tracked size after untrack = %d, want 20", got)
	}

	tr.Delete(b)
	if got := tr.TrackedSize(); got != 0 {
		t.Fatalf("tracked size after delete = %d, want 0", got)
	}
	if got := tr.DeletedCids(); len(got) != 1 || got[0] != b {
		t.Fatalf("deleted cids = %v, want [%v]", got, b)
	}

	tr.ClearDeleted()
	if got := tr.DeletedCids(); len(got) != 0 {
		t.Fatalf("expected deleted set cleared, got %v", got)
	}
}

func TestCacheIndexRoundTrip(t *testing.T) {
	idx := CacheIndex{Entries: []CacheIndexEntry{
		{Cid: cidOf(1).String(), Size: 4, Hosts: []string{"https://host-a.example"}},
		{Cid: cidOf(2).String(), Size: 8},
	}}
	data, err := idx.Marshal()
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	got, err := UnmarshalCacheIndex(data)
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(got.Entries) != 2 || got.Entries[0].Cid != idx.Entries[0].Cid || got.Entries[0].Hosts[0] != "https://host-a.example" {
		t.Fatalf("round trip mismatch: %+v", got)
	}
}

// fakeLocator and fakeStorageHost are hand-written platformapi fakes, in
// the teacher's style of test doubles rather than a mocking framework.

type fakeLocator struct {
	hosts map[codec.Cid][]string
}

func (f *fakeLocator) Locate(_ context.Context, cids []codec.Cid) (map[codec.Cid][]string, error) {
	out := make(map[codec.Cid][]string, len(cids))
	for _, cid := range cids {
		hosts, ok := f.hosts[cid]
		if !ok {
			hosts = []string{platformapi.NotAvailableHost}
		}
		out[cid] = hosts
	}
	return out, nil
}

type fakeStorageHost struct {
	blocks     map[string]map[codec.Cid][]byte
	failHosts  map[string]bool
	storeCalls int
	fetchCalls int
}

func (f *fakeStorageHost) Store(_ context.Context, host, _ string, cid codec.Cid, chunk io.Reader, _ bool) error {
	f.storeCalls++
	if f.failHosts[host] {
		return errors.New("host rejected upload")
	}
	data, err := io.ReadAll(chunk)
	if err != nil {
		return err
	}
	if f.blocks[host] == nil {
		f.blocks[host] = make(map[codec.Cid][]byte)
	}
	f.blocks[host][cid] = data
	return nil
}

func (f *fakeStorageHost) Fetch(_ context.Context, host string, cid codec.Cid) (io.ReadCloser, error) {
	f.fetchCalls++
	if f.failHosts[host] {
		return nil, errors.New("host unreachable")
	}
	data, ok := f.blocks[host][cid]
	if !ok {
		return nil, errors.New("not found on host")
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

type fakeMetadata struct{}

func (fakeMetadata) Push(_ context.Context, _ string, _ uint64, _ codec.Cid, _ *codec.Cid, _ io.Reader, _ []codec.KeyId, _ []codec.Cid) (platformapi.PushResult, error) {
	return platformapi.PushResult{MetadataId: "meta-1", State: platformapi.MetadataStatePending, StorageHost: "https://primary.example"}, nil
}

func (fakeMetadata) Pull(_ context.Context, _, _ string) (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(nil)), nil
}

func TestApiSyncableStoreRetrieveFallsBackToLocatorAndHost(t *testing.T) {
	ctx := context.Background()
	cid := cidOf(7)
	host := "https://host-a.example"

	storageHost := &fakeStorageHost{
		blocks:    map[string]map[codec.Cid][]byte{host: {cid: []byte("remote payload")}},
		failHosts: map[string]bool{},
	}
	locator := &fakeLocator{hosts: map[codec.Cid][]string{cid: {host}}}

	s := NewApiSyncableStore(NewMemoryDataStore(), NewBasicSyncTracker(), locator, storageHost, fakeMetadata{}, nil)

	got, err := s.Retrieve(ctx, cid)
	if err != nil {
		t.Fatalf("retrieve: %v", err)
	}
	if string(got) != "remote payload" {
		t.Fatalf("got %q, want %q", got, "remote payload")
	}

	if ok, _ := s.cache.ContainsCid(ctx, cid); !ok {
		t.Fatalf("expected retrieve to populate local cache")
	}
}

func TestApiSyncableStoreRetrieveNotAvailable(t *testing.T) {
	ctx := context.Background()
	cid := cidOf(9)
	locator := &fakeLocator{hosts: map[codec.Cid][]string{}}
	s := NewApiSyncableStore(NewMemoryDataStore(), NewBasicSyncTracker(), locator, &fakeStorageHost{blocks: map[string]map[codec.Cid][]byte{}}, fakeMetadata{}, nil)

	if _, err := s.Retrieve(ctx, cid); err == nil {
		t.Fatalf("expected not-found error when every host is NA")
	}
}

func TestApiSyncableStoreSyncFlushesTrackedBlocks(t *testing.T) {
	ctx := context.Background()
	cid := cidOf(3)
	storageHost := &fakeStorageHost{blocks: map[string]map[codec.Cid][]byte{}, failHosts: map[string]bool{}}

	s := NewApiSyncableStore(NewMemoryDataStore(), NewBasicSyncTracker(), &fakeLocator{hosts: map[codec.Cid][]string{}}, storageHost, fakeMetadata{}, nil)
	s.SetSyncRemote("https://primary.example")

	if err := s.Store(ctx, cid, []byte("payload"), true); err != nil {
		t.Fatalf("store: %v", err)
	}
	if err := s.Sync(ctx, "v1"); err != nil {
		t.Fatalf("sync: %v", err)
	}

	if got := s.tracker.TrackedCids(); len(got) != 0 {
		t.Fatalf("expected tracker cleared after sync, got %v", got)
	}
	if storageHost.blocks["https://primary.example"][cid] == nil {
		t.Fatalf("expected block uploaded to primary host")
	}
}

func TestApiSyncableStoreSyncWithoutRemote(t *testing.T) {
	ctx := context.Background()
	s := NewApiSyncableStore(NewMemoryDataStore(), NewBasicSyncTracker(), nil, nil, nil, nil)
	if err := s.Sync(ctx, "v1"); err == nil {
		t.Fatalf("expected error syncing without a configured remote")
	}
}
