package store

import (
	"context"
	"io"
	"math/rand"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/banyancomputer/go-banyanfs/internal/platformapi"
	"github.com/banyancomputer/go-banyanfs/pkg/codec"
	"github.com/banyancomputer/go-banyanfs/pkg/driveconfig"
)

// ApiSyncableStore layers a local cache, a SyncTracker, and a per-CID
// host locator map over the platform's metadata/block-locate/storage
// RPCs, matching §4.7's description of the composed store exactly.
type ApiSyncableStore struct {
	cache   DataStore
	tracker SyncTracker
	config  *driveconfig.Config

	locator     platformapi.BlockLocator
	storageHost platformapi.StorageHost
	metadata    platformapi.Metadata
	identity    platformapi.Identity

	mu         sync.Mutex
	locators   map[codec.Cid][]string
	activeHost string
}

// NewApiSyncableStore constructs a store over the given local cache and
// tracker, under driveconfig.DefaultConfig(). The platform collaborators
// may be nil during tests that only exercise the local-cache fast path.
func NewApiSyncableStore(cache DataStore, tracker SyncTracker, locator platformapi.BlockLocator, storageHost platformapi.StorageHost, metadata platformapi.Metadata, identity platformapi.Identity) *ApiSyncableStore {
	return NewApiSyncableStoreWithConfig(cache, tracker, locator, storageHost, metadata, identity, driveconfig.DefaultConfig())
}

// NewApiSyncableStoreWithConfig is NewApiSyncableStore, honoring cfg's
// RetryCount (how many extra candidate hosts a fetch races, §4.7 "up to
// three attempts, in shuffled order") and SyncConcurrency (the fan-out
// limit on a Sync call's concurrent uploads).
func NewApiSyncableStoreWithConfig(cache DataStore, tracker SyncTracker, locator platformapi.BlockLocator, storageHost platformapi.StorageHost, metadata platformapi.Metadata, identity platformapi.Identity, cfg *driveconfig.Config) *ApiSyncableStore {
	if cfg == nil {
		cfg = driveconfig.DefaultConfig()
	}
	return &ApiSyncableStore{
		cache:       cache,
		tracker:     tracker,
		config:      cfg,
		locator:     locator,
		storageHost: storageHost,
		metadata:    metadata,
		identity:    identity,
		locators:    make(map[codec.Cid][]string),
	}
}

// maxFetchAttempts is how many candidate hosts a single retrieve races
// before giving up: one first attempt plus cfg.RetryCount retries.
func (s *ApiSyncableStore) maxFetchAttempts() int {
	return int(s.config.RetryCount) + 1
}

// SetSyncRemote records the host URL that Sync flushes tracked blocks
// to.
func (s *ApiSyncableStore) SetSyncRemote(hostURL string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.activeHost = hostURL
}

func (s *ApiSyncableStore) ContainsCid(ctx context.Context, cid codec.Cid) (bool, error) {
	return s.cache.ContainsCid(ctx, cid)
}

// Retrieve checks the local cache, then the locator map, then a
// platform locate RPC, then fetches from up to three shuffled candidate
// hosts, writing the block back into the local cache on success (§4.7).
func (s *ApiSyncableStore) Retrieve(ctx context.Context, cid codec.Cid) ([]byte, error) {
	if ok, err := s.cache.ContainsCid(ctx, cid); err == nil && ok {
		return s.cache.Retrieve(ctx, cid)
	}

	hosts := s.knownHosts(cid)
	if len(hosts) == 0 && s.locator != nil {
		resolved, err := s.locator.Locate(ctx, []codec.Cid{cid})
		if err != nil {
			return nil, err
		}
		s.storeLocators(resolved)
		hosts = s.knownHosts(cid)
	}

	hosts = usableHosts(hosts)
	if len(hosts) == 0 {
		return nil, NewNotFoundError(cid.String())
	}

	data, err := s.fetchFromCandidates(ctx, cid, hosts)
	if err != nil {
		return nil, err
	}

	if storeErr := s.cache.Store(ctx, cid, data, false); storeErr != nil {
		return nil, storeErr
	}
	return data, nil
}

func (s *ApiSyncableStore) Store(ctx context.Context, cid codec.Cid, data []byte, immediate bool) error {
	if err := s.cache.Store(ctx, cid, data, immediate); err != nil {
		return err
	}
	s.tracker.Track(cid, uint64(len(data)))
	return nil
}

func (s *ApiSyncableStore) Remove(ctx context.Context, cid codec.Cid, recursive bool) error {
	if err := s.cache.Remove(ctx, cid, recursive); err != nil {
		return err
	}
	s.tracker.Delete(cid)
	return nil
}

// fetchFromCandidates races up to maxFetchAttempts shuffled hosts and
// returns the first successful fetch, cancelling the rest.
func (s *ApiSyncableStore) fetchFromCandidates(ctx context.Context, cid codec.Cid, hosts []string) ([]byte, error) {
	if s.storageHost == nil {
		return nil, NewNotFoundError(cid.String())
	}

	shuffled := shuffledCopy(hosts)
	if max := s.maxFetchAttempts(); len(shuffled) > max {
		shuffled = shuffled[:max]
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(int(s.config.SyncConcurrency))
	fetchCtx, cancelFetch := context.WithCancel(groupCtx)
	defer cancelFetch()
	results := make(chan []byte, 1)

	for _, host := range shuffled {
		host := host
		group.Go(func() error {
			body, err := s.storageHost.Fetch(fetchCtx, host, cid)
			if err != nil {
				return nil
			}
			defer body.Close()
			data, err := io.ReadAll(body)
			if err != nil {
				return nil
			}
			select {
			case results <- data:
				cancelFetch()
			default:
			}
			return nil
		})
	}

	done := make(chan error, 1)
	go func() { done <- group.Wait() }()

	select {
	case data := <-results:
		return data, nil
	case <-done:
		select {
		case data := <-results:
			return data, nil
		default:
			return nil, NewAllHostsFailedError(cid.String())
		}
	}
}

// Sync flushes every tracked block to the active remote, then requests
// deletion of every block marked for removal, retrying a failed upload
// once after re-checking identity on that host (§4.7).
func (s *ApiSyncableStore) Sync(ctx context.Context, versionId string) error {
	s.mu.Lock()
	host := s.activeHost
	s.mu.Unlock()
	if host == "" {
		return NewNoSyncRemoteError()
	}
	if s.metadata == nil || s.storageHost == nil {
		return NewNoSyncRemoteError()
	}

	cids := s.tracker.TrackedCids()
	deleted := s.tracker.DeletedCids()

	result, err := s.metadata.Push(ctx, versionId, s.tracker.TrackedSize(), codec.Cid{}, nil, nil, nil, deleted)
	if err != nil {
		return err
	}

	uploadHost := result.StorageHost
	if uploadHost == "" {
		uploadHost = host
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(int(s.config.SyncConcurrency))
	for i, cid := range cids {
		cid := cid
		isLast := i == len(cids)-1
		group.Go(func() error {
			data, err := s.cache.Retrieve(groupCtx, cid)
			if err != nil {
				return err
			}
			err = s.storageHost.Store(groupCtx, uploadHost, result.MetadataId, cid, newByteReader(data), isLast)
			if err != nil {
				return s.retryAfterAuth(groupCtx, uploadHost, result, cid, data, isLast, err)
			}
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return err
	}

	for _, cid := range cids {
		s.tracker.Untrack(cid)
	}
	s.tracker.ClearDeleted()
	return nil
}

// retryAfterAuth re-checks identity on the failing host and retries the
// store exactly once; this is the only retry path, matching §7's advice
// that authorization failures are recoverable by re-registering a grant
// rather than failing the whole sync.
func (s *ApiSyncableStore) retryAfterAuth(ctx context.Context, host string, result platformapi.PushResult, cid codec.Cid, data []byte, isLast bool, cause error) error {
	if s.identity == nil || result.StorageAuthorization == "" {
		return NewAuthorizationFailedError(host, cause)
	}
	if _, _, err := s.identity.WhoAmI(ctx, host, result.StorageAuthorization); err != nil {
		return NewAuthorizationFailedError(host, err)
	}
	if err := s.storageHost.Store(ctx, host, result.MetadataId, cid, newByteReader(data), isLast); err != nil {
		return NewAuthorizationFailedError(host, err)
	}
	return nil
}

func (s *ApiSyncableStore) knownHosts(cid codec.Cid) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	hosts := s.locators[cid]
	out := make([]string, len(hosts))
	copy(out, hosts)
	return out
}

func (s *ApiSyncableStore) storeLocators(resolved map[codec.Cid][]string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for cid, hosts := range resolved {
		s.locators[cid] = hosts
	}
}

func usableHosts(hosts []string) []string {
	out := make([]string, 0, len(hosts))
	for _, h := range hosts {
		if h != platformapi.NotAvailableHost {
			out = append(out, h)
		}
	}
	return out
}

func shuffledCopy(in []string) []string {
	out := make([]string, len(in))
	copy(out, in)
	rand.Shuffle(len(out), func(i, j int) { out[i], out[j] = out[j], out[i] })
	return out
}

type byteReader struct {
	data []byte
	pos  int
}

func newByteReader(data []byte) *byteReader { return &byteReader{data: data} }

func (r *byteReader) Read(p []byte) (int, error) {
	if r.pos >= len(r.data) {
		return 0, io.EOF
	}
	n := copy(p, r.data[r.pos:])
	r.pos += n
	return n, nil
}
