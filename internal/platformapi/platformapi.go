// Package platformapi declares the external collaborator interfaces §6
// names but places out of this module's scope: the hosting platform's
// metadata service, the storage-host block API, and the storage-host
// authorization check. Nothing in this package performs network I/O;
// concrete clients (HTTP, JWT minting, CLI/WASM bindings) are built
// elsewhere and satisfy these interfaces (§1 "Out of scope").
package platformapi

import (
	"context"
	"io"

	"github.com/banyancomputer/go-banyanfs/pkg/codec"
)

// MetadataState is the lifecycle state the platform reports for a push.
type MetadataState string

const (
	MetadataStatePending  MetadataState = "pending"
	MetadataStateCurrent  MetadataState = "current"
	MetadataStateOutdated MetadataState = "outdated"
)

// PushResult is the platform's response to a metadata push.
type PushResult struct {
	MetadataId           string
	State                MetadataState
	StorageHost          string
	StorageAuthorization string
}

// Metadata is the hosting platform's drive-image bookkeeping service
// (§6 `platform.metadata.push` / `platform.metadata.pull`).
type Metadata interface {
	Push(ctx context.Context, driveId string, expectedDataSize uint64, rootCid codec.Cid, prevRootCid *codec.Cid, body io.Reader, validKeys []codec.KeyId, deletedCids []codec.Cid) (PushResult, error)
	Pull(ctx context.Context, driveId, metadataId string) (io.ReadCloser, error)
}

// NotAvailableHost is the sentinel key the platform locate call uses to
// partition CIDs it could not find a host for (§6 `platform.blocks.locate`).
const NotAvailableHost = "NA"

// BlockLocator resolves which storage hosts carry which CIDs (§6
// `platform.blocks.locate`).
type BlockLocator interface {
	Locate(ctx context.Context, cids []codec.Cid) (map[codec.Cid][]string, error)
}

// StorageHost is a single storage host's block API: upload during sync
// (§6 `storage_host.blocks.store`) and download during retrieval. The
// spec names only the upload RPC explicitly, but §4.7's "fetches from
// the first responding host" requires a symmetric read path off the
// same host's block API, so Fetch is modeled alongside Store here
// rather than invented as a separate, unnamed collaborator.
type StorageHost interface {
	Store(ctx context.Context, host, uploadId string, cid codec.Cid, chunk io.Reader, isLast bool) error
	Fetch(ctx context.Context, host string, cid codec.Cid) (io.ReadCloser, error)
}

// Identity is the storage host's bearer-token introspection endpoint
// (§6 `storage_host.auth.who_am_i`); a 401 response is the caller's cue
// to re-register a storage grant.
type Identity interface {
	WhoAmI(ctx context.Context, host, bearer string) (fingerprint codec.Fingerprint, consumedStorage uint64, err error)
}
