package drive

import (
	"encoding/binary"
	"fmt"
	"io"
	"sync"
	"time"

	"lukechampine.com/blake3"

	"github.com/banyancomputer/go-banyanfs/pkg/access"
	"github.com/banyancomputer/go-banyanfs/pkg/codec"
	"github.com/banyancomputer/go-banyanfs/pkg/crypto"
	"github.com/banyancomputer/go-banyanfs/pkg/driveconfig"
	"github.com/banyancomputer/go-banyanfs/pkg/node"
	"github.com/banyancomputer/go-banyanfs/pkg/store"
)

// Magic is the 4-byte prefix identifying an encoded drive image (§4.6).
var Magic = [4]byte{'B', 'Y', 'F', 'S'}

// Version is the only drive image wire version this implementation
// emits or accepts.
const Version byte = 0x01

// identityHeaderSize is Magic(4) + Version(1).
const identityHeaderSize = 5

// Drive holds a single actor's live view of a BanyanFS filesystem: its
// node graph, access table, and the permission keys this process has
// unwrapped. A *sync.RWMutex guards every field so a DirectoryHandle can
// read concurrently with other readers while a writer has exclusive
// access (§5 "multiple readers or a single writer").
type Drive struct {
	mu sync.RWMutex

	filesystemId   codec.FilesystemId
	private        bool
	contentOptions ContentOptions
	metaKey        access.MetaKey
	access         *access.DriveAccess
	arena          *node.Arena
	checkpoint     JournalCheckpoint

	dataStore  store.DataStore
	signingKey crypto.SigningKey
	config     *driveconfig.Config
}

// InitializePrivate creates a brand-new private drive under
// driveconfig.DefaultConfig(). See InitializePrivateWithConfig to
// override block profile, strictness, or store tunables.
func InitializePrivate(rng io.Reader, signingKey crypto.SigningKey, dataStore store.DataStore) (*Drive, error) {
	return InitializePrivateWithConfig(rng, signingKey, dataStore, driveconfig.DefaultConfig())
}

// InitializePrivateWithConfig creates a brand-new private drive: a fresh
// filesystem id, a sole owning actor (signingKey, granted every
// permission key), and an empty root directory (§4.5 item 1, §12).
func InitializePrivateWithConfig(rng io.Reader, signingKey crypto.SigningKey, dataStore store.DataStore, cfg *driveconfig.Config) (*Drive, error) {
	if cfg == nil {
		cfg = driveconfig.DefaultConfig()
	}
	fsId, err := codec.NewFilesystemId()
	if err != nil {
		return nil, fmt.Errorf("drive: generate filesystem id: %w", err)
	}

	metaKey, err := crypto.GenerateAccessKey(rng)
	if err != nil {
		return nil, fmt.Errorf("drive: generate meta key: %w", err)
	}
	keys := access.PermissionKeys{}
	if keys.Filesystem, err = crypto.GenerateAccessKey(rng); err != nil {
		return nil, err
	}
	if keys.Data, err = crypto.GenerateAccessKey(rng); err != nil {
		return nil, err
	}
	if keys.Maintenance, err = crypto.GenerateAccessKey(rng); err != nil {
		return nil, err
	}

	da := access.NewDriveAccess()
	da.SetKeys(keys)
	settings, err := access.NewActorSettings(signingKey.VerifyingKey(), access.AccessMask{
		Protected: true,
		Owner:     true,
	}, "")
	if err != nil {
		return nil, err
	}
	settings.AccessMask.FilesystemKey = true
	settings.AccessMask.DataKey = true
	settings.AccessMask.MaintenanceKey = true
	da.Put(settings)

	arena := node.NewArena()
	owner := signingKey.VerifyingKey().ActorId()
	root, err := node.NewRoot(owner, nowMillis())
	if err != nil {
		return nil, fmt.Errorf("drive: create root node: %w", err)
	}
	rootSlot := arena.Insert(root)
	arena.SetRoot(rootSlot)

	return &Drive{
		filesystemId:   fsId,
		private:        true,
		contentOptions: Everything(),
		metaKey:        metaKey,
		access:         da,
		arena:          arena,
		dataStore:      dataStore,
		signingKey:     signingKey,
		config:         cfg,
	}, nil
}

// nowMillis is the millisecond timestamp stamped on newly created nodes.
// Factored out so it reads the same way at every call site (§3).
func nowMillis() uint64 {
	return uint64(time.Now().UnixMilli())
}

// FilesystemId returns the drive's identifier.
func (d *Drive) FilesystemId() codec.FilesystemId {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.filesystemId
}

// Access returns the drive's access table.
func (d *Drive) Access() *access.DriveAccess {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.access
}

// SetContentOptions controls which sections Encode writes. Defaults to
// Everything() for a freshly initialized drive (§4.5 item 2).
func (d *Drive) SetContentOptions(opts ContentOptions) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.contentOptions = opts
}

// Root returns a DirectoryHandle positioned at the drive's root node
// (§3 "Lifecycle").
func (d *Drive) Root() *DirectoryHandle {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return &DirectoryHandle{drive: d, slot: d.arena.Root()}
}

// AddActor registers a new authorized actor and grants it mask (§4.5).
// The meta-key escrow record and the permission keys mask names are
// wrapped for the actor at the next Encode. The caller is responsible
// for distributing the drive
// image afterward so the new actor can actually reach it.
func (d *Drive) AddActor(verifyingKey crypto.VerifyingKey, mask access.AccessMask, agent string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	settings, err := access.NewActorSettings(verifyingKey, mask, agent)
	if err != nil {
		return err
	}
	d.access.Put(settings)
	return nil
}

// recomputeCids walks the node graph in post-order from root, refreshing
// every node's cached CID and, for directories, the ChildEntry
// cid/size of each of its children plus the rolled-up ChildrenSize field
// (§3 invariant 5: "the cache is correct immediately after any Encode
// call"). It returns slot's freshly computed CID and encoded size.
func recomputeCids(arena *node.Arena, slot node.Slot) (codec.Cid, uint64, error) {
	n, err := arena.Get(slot)
	if err != nil {
		return codec.Cid{}, 0, err
	}

	if n.IsDirectory() {
		var total uint64
		for _, item := range n.Children().ItemsByPermanentId() {
			childSlot, ok := arena.Resolve(item.Entry.PermanentId)
			if !ok {
				return codec.Cid{}, 0, NewInternalCorruptionError(int(slot), fmt.Sprintf("child %x does not resolve to a node", item.Entry.PermanentId))
			}
			childCid, childSize, err := recomputeCids(arena, childSlot)
			if err != nil {
				return codec.Cid{}, 0, err
			}
			n.Children().Put(item.Name, node.ChildEntry{
				PermanentId: item.Entry.PermanentId,
				Cid:         childCid,
				Size:        childSize,
			})
			total += childSize
		}
		n.SetChildrenSize(total)
	}

	encoded, err := n.Encode(nil)
	if err != nil {
		return codec.Cid{}, 0, err
	}
	digest := blake3.Sum256(encoded)
	cid, err := codec.CidFromDigest(digest[:])
	if err != nil {
		return codec.Cid{}, 0, err
	}
	n.SetCachedCid(cid)
	return cid, uint64(len(encoded)), nil
}

// encodeNodesPreorder walks the node graph from root in deterministic
// preorder (a directory's children visited in ascending permanent-id
// order), appending each node's own encoding exactly once. A seen set
// breaks cycles; nodes unreachable from root are never visited and so
// are silently dropped from the image (§4.6).
func encodeNodesPreorder(arena *node.Arena, root node.Slot) ([]byte, error) {
	seen := make(map[codec.PermanentId]bool)
	var buf []byte

	var walk func(slot node.Slot) error
	walk = func(slot node.Slot) error {
		n, err := arena.Get(slot)
		if err != nil {
			return err
		}
		if seen[n.PermanentId()] {
			return nil
		}
		seen[n.PermanentId()] = true

		buf, err = n.Encode(buf)
		if err != nil {
			return err
		}

		if n.IsDirectory() {
			for _, item := range n.Children().ItemsByPermanentId() {
				childSlot, ok := arena.Resolve(item.Entry.PermanentId)
				if !ok {
					continue
				}
				if err := walk(childSlot); err != nil {
					return err
				}
			}
		}
		return nil
	}

	if err := walk(root); err != nil {
		return nil, err
	}
	return buf, nil
}

// Encode serializes the drive to w: identity header, filesystem id,
// public settings, escrow table, encrypted header (permission records,
// content options, journal checkpoint), and, per ContentOptions, the
// sealed node graph and a reserved data-segments section (§4.6).
//
// Encode takes the write lock: it mutates every node's cached CID and
// every directory's rolled-up child sizes as a side effect of computing
// what it writes (§3 invariant 5).
func (d *Drive) Encode(rng io.Reader, w io.Writer) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	rootCid, _, err := recomputeCids(d.arena, d.arena.Root())
	if err != nil {
		return fmt.Errorf("drive: recompute node cids: %w", err)
	}
	root, err := d.arena.Get(d.arena.Root())
	if err != nil {
		return err
	}
	d.checkpoint = JournalCheckpoint{RootCid: rootCid, VectorClock: root.VectorClock()}

	var out []byte
	out = append(out, Magic[:]...)
	out = append(out, Version)
	out = d.filesystemId.Encode(out)
	out = PublicSettings{Private: d.private}.Encode(out)

	escrow, permRecords, err := d.access.BuildEscrowAndRecords(rng, d.metaKey)
	if err != nil {
		return fmt.Errorf("drive: build escrow table: %w", err)
	}
	if len(escrow.Records) > 0xFF {
		return fmt.Errorf("drive: %d authorized actors exceeds u8 key count max", len(escrow.Records))
	}
	out = append(out, byte(len(escrow.Records)))
	for _, rec := range escrow.Records {
		out = rec.Encode(out)
	}

	var headerPlain []byte
	for _, rec := range permRecords {
		headerPlain, err = rec.Encode(headerPlain)
		if err != nil {
			return fmt.Errorf("drive: encode permission record: %w", err)
		}
	}
	headerPlain = d.contentOptions.Encode(headerPlain)
	headerPlain = d.checkpoint.Encode(headerPlain)

	nonce, tag, err := d.metaKey.Encrypt(rng, nil, headerPlain)
	if err != nil {
		return fmt.Errorf("drive: seal encrypted header: %w", err)
	}
	out = nonce.Encode(out)
	out = append(out, headerPlain...)
	out = tag.Encode(out)

	if d.contentOptions.Filesystem {
		nodesPlain, err := encodeNodesPreorder(d.arena, d.arena.Root())
		if err != nil {
			return fmt.Errorf("drive: encode node graph: %w", err)
		}
		nonce2, tag2, err := d.access.Keys().Filesystem.Encrypt(rng, nil, nodesPlain)
		if err != nil {
			return fmt.Errorf("drive: seal node graph: %w", err)
		}
		total := uint64(codec.NonceSize + len(nodesPlain) + codec.TagSize)
		var lenBuf [8]byte
		binary.BigEndian.PutUint64(lenBuf[:], total)
		out = append(out, lenBuf[:]...)
		out = nonce2.Encode(out)
		out = append(out, nodesPlain...)
		out = tag2.Encode(out)
	}

	if d.contentOptions.Data {
		var lenBuf [8]byte // reserved; no writer currently emits data segments
		out = append(out, lenBuf[:]...)
	}

	if _, err := w.Write(out); err != nil {
		return fmt.Errorf("drive: write image: %w", err)
	}
	return nil
}
