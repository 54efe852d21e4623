package node

import (
	"encoding/binary"
	"fmt"
	"sort"
	"sync"

	"github.com/banyancomputer/go-banyanfs/pkg/codec"
)

// Node is one entry in the drive's node graph: an arena slot holding
// identity, ownership, timestamps, a vector clock, a kind-specific
// payload, a small metadata map, and a lazily (re)computed CID (§3).
type Node struct {
	id         Slot
	parentId   Slot
	permanentId codec.PermanentId
	ownerId    codec.ActorId
	name       codec.NodeName
	createdAt  uint64
	modifiedAt uint64
	clock      codec.VectorClock
	metadata   map[string][]byte

	kind                 Kind
	filePermissions      FilePermissions
	directoryPermissions DirectoryPermissions
	content              FileContent
	associatedData       map[uint16]codec.PermanentId
	children             *ChildMap
	childrenSize         uint64

	cidMu sync.Mutex
	cid   *codec.Cid
}

// NewFile constructs a File node under owner, with Stub content and no
// data stored yet.
func NewFile(owner codec.ActorId, name codec.NodeName, now uint64) (*Node, error) {
	permId, err := codec.NewPermanentId()
	if err != nil {
		return nil, err
	}
	clock, err := codec.NewVectorClock()
	if err != nil {
		return nil, err
	}
	return &Node{
		parentId:    noParent,
		permanentId: permId,
		ownerId:     owner,
		name:        name,
		createdAt:   now,
		modifiedAt:  now,
		clock:       clock,
		metadata:    make(map[string][]byte),
		kind:        KindFile,
		content:     StubContent(0),
	}, nil
}

// NewDirectory constructs a Directory node under owner.
func NewDirectory(owner codec.ActorId, name codec.NodeName, now uint64) (*Node, error) {
	permId, err := codec.NewPermanentId()
	if err != nil {
		return nil, err
	}
	clock, err := codec.NewVectorClock()
	if err != nil {
		return nil, err
	}
	return &Node{
		parentId:    noParent,
		permanentId: permId,
		ownerId:     owner,
		name:        name,
		createdAt:   now,
		modifiedAt:  now,
		clock:       clock,
		metadata:    make(map[string][]byte),
		kind:        KindDirectory,
		children:    NewChildMap(),
	}, nil
}

// NewRoot constructs the distinguished root directory node: name = Root,
// no parent (§3 invariant 1).
func NewRoot(owner codec.ActorId, now uint64) (*Node, error) {
	n, err := NewDirectory(owner, codec.RootName, now)
	if err != nil {
		return nil, err
	}
	return n, nil
}

func (n *Node) Slot() Slot                      { return n.id }
func (n *Node) ParentSlot() (Slot, bool)         { return n.parentId, n.parentId != noParent }
func (n *Node) PermanentId() codec.PermanentId   { return n.permanentId }
func (n *Node) OwnerId() codec.ActorId           { return n.ownerId }
func (n *Node) Name() codec.NodeName             { return n.name }
func (n *Node) CreatedAt() uint64                { return n.createdAt }
func (n *Node) ModifiedAt() uint64               { return n.modifiedAt }
func (n *Node) VectorClock() codec.VectorClock   { return n.clock }
func (n *Node) Kind() Kind                       { return n.kind }
func (n *Node) IsDirectory() bool                { return n.kind == KindDirectory }
func (n *Node) IsFile() bool                     { return n.kind == KindFile }
func (n *Node) Content() FileContent             { return n.content }
func (n *Node) FilePermissions() FilePermissions { return n.filePermissions }
func (n *Node) DirectoryPermissions() DirectoryPermissions {
	return n.directoryPermissions
}

// Children returns the directory's child map. Panics if called on a
// non-directory node; callers must check IsDirectory first.
func (n *Node) Children() *ChildMap {
	if n.kind != KindDirectory {
		panic("node: Children called on non-directory node")
	}
	return n.children
}

// ChildrenSize is the cached sum of the directory's children's serialized
// sizes.
func (n *Node) ChildrenSize() uint64 { return n.childrenSize }

// SetChildrenSize updates the cached rolled-up size of this directory's
// immediate children. Callers recompute it bottom-up whenever a child's
// own serialized size changes (§3 invariant 5).
func (n *Node) SetChildrenSize(size uint64) { n.childrenSize = size }

// Metadata returns the value stored under key, if any.
func (n *Node) Metadata(key string) ([]byte, bool) {
	v, ok := n.metadata[key]
	return v, ok
}

// SetMetadata stores value under key, marking the node dirty.
func (n *Node) SetMetadata(key string, value []byte) {
	n.metadata[key] = append([]byte(nil), value...)
	n.markDirty()
}

// Rename updates the node's own name field (used by the owning parent's
// directory operation; it does not itself update the parent's child
// map) (§4.4 mv).
func (n *Node) Rename(name codec.NodeName) {
	n.name = name
	n.markDirty()
}

// SetParent records slot as this node's new arena parent (§4.4 mv: "the
// node's permanent id does not change").
func (n *Node) SetParent(slot Slot) {
	n.parentId = slot
	n.markDirty()
}

// SetContent replaces a File node's content, updating modifiedAt and
// marking the node dirty (§4.4 write).
func (n *Node) SetContent(content FileContent, now uint64) error {
	if n.kind != KindFile {
		return fmt.Errorf("node: SetContent called on non-file node")
	}
	n.content = content
	n.modifiedAt = now
	n.markDirty()
	return nil
}

// Bump advances the node's vector clock by one tick, as every mutation
// must (§4.4 "every mutation bumps the actor's vector clock").
func (n *Node) Bump() {
	n.clock = n.clock.Increment()
}

// markDirty invalidates the cached CID (§3 invariant 5).
func (n *Node) markDirty() {
	n.cidMu.Lock()
	n.cid = nil
	n.cidMu.Unlock()
}

// CachedCid returns the node's cached CID, if any is currently valid.
func (n *Node) CachedCid() (codec.Cid, bool) {
	n.cidMu.Lock()
	defer n.cidMu.Unlock()
	if n.cid == nil {
		return codec.Cid{}, false
	}
	return *n.cid, true
}

// SetCachedCid records the CID most recently computed from this node's
// canonical encoding (§3 invariant 5).
func (n *Node) SetCachedCid(cid codec.Cid) {
	n.cidMu.Lock()
	n.cid = &cid
	n.cidMu.Unlock()
}

// Encode writes this node's on-wire record: permanent_id, owner_id,
// created_at, modified_at, name, vector_clock, kind-specific payload
// (§4.4).
func (n *Node) Encode(dst []byte) ([]byte, error) {
	dst = n.permanentId.Encode(dst)
	dst = n.ownerId.Encode(dst)

	var ts [16]byte
	binary.LittleEndian.PutUint64(ts[0:8], n.createdAt)
	binary.LittleEndian.PutUint64(ts[8:16], n.modifiedAt)
	dst = append(dst, ts[:]...)

	dst = n.name.Encode(dst)
	dst = n.clock.Encode(dst)
	dst = n.kind.Encode(dst)

	switch n.kind {
	case KindFile:
		dst = n.filePermissions.Encode(dst)
		dst = n.content.Encode(dst)
		return encodeAssociatedData(dst, n.associatedData)
	case KindAssociatedData:
		return n.content.Encode(dst), nil
	case KindDirectory:
		dst = n.directoryPermissions.Encode(dst)
		var size [8]byte
		binary.LittleEndian.PutUint64(size[:], n.childrenSize)
		dst = append(dst, size[:]...)
		return n.children.Encode(dst)
	default:
		return nil, fmt.Errorf("node: cannot encode unknown kind %s", n.kind)
	}
}

func encodeAssociatedData(dst []byte, m map[uint16]codec.PermanentId) ([]byte, error) {
	if len(m) > 0xFF {
		return nil, fmt.Errorf("node: %d associated-data entries exceeds u8 max", len(m))
	}
	dst = append(dst, byte(len(m)))
	kinds := make([]uint16, 0, len(m))
	for k := range m {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	for _, k := range kinds {
		var kb [2]byte
		binary.LittleEndian.PutUint16(kb[:], k)
		dst = append(dst, kb[:]...)
		dst = m[k].Encode(dst)
	}
	return dst, nil
}

// ParseNode reads one node record from buf (the inverse of Encode). The
// returned node is not yet inserted into any Arena.
func ParseNode(buf []byte) ([]byte, *Node, error) {
	rest, permId, err := codec.ParsePermanentId(buf)
	if err != nil {
		return buf, nil, err
	}
	rest, owner, err := codec.ParseActorId(rest)
	if err != nil {
		return buf, nil, err
	}
	if len(rest) < 16 {
		return buf, nil, codec.NeedMore(rest, 16)
	}
	createdAt := binary.LittleEndian.Uint64(rest[0:8])
	modifiedAt := binary.LittleEndian.Uint64(rest[8:16])
	rest = rest[16:]

	rest, name, err := codec.ParseNodeName(rest)
	if err != nil {
		return buf, nil, err
	}
	rest, clock, err := codec.ParseVectorClock(rest)
	if err != nil {
		return buf, nil, err
	}
	rest, kind, err := ParseKind(rest)
	if err != nil {
		return buf, nil, err
	}

	n := &Node{
		parentId:    noParent,
		permanentId: permId,
		ownerId:     owner,
		name:        name,
		createdAt:   createdAt,
		modifiedAt:  modifiedAt,
		clock:       clock,
		metadata:    make(map[string][]byte),
		kind:        kind,
	}

	switch kind {
	case KindFile:
		rest, perms, err := ParseFilePermissions(rest, false)
		if err != nil {
			return buf, nil, err
		}
		rest, content, err := ParseFileContent(rest)
		if err != nil {
			return buf, nil, err
		}
		rest, ad, err := parseAssociatedData(rest)
		if err != nil {
			return buf, nil, err
		}
		n.filePermissions = perms
		n.content = content
		n.associatedData = ad
		return rest, n, nil
	case KindAssociatedData:
		rest, content, err := ParseFileContent(rest)
		if err != nil {
			return buf, nil, err
		}
		n.content = content
		return rest, n, nil
	case KindDirectory:
		rest, perms, err := ParseDirectoryPermissions(rest, false)
		if err != nil {
			return buf, nil, err
		}
		if len(rest) < 8 {
			return buf, nil, codec.NeedMore(rest, 8)
		}
		size := binary.LittleEndian.Uint64(rest[:8])
		rest = rest[8:]
		rest, children, err := ParseChildMap(rest)
		if err != nil {
			return buf, nil, err
		}
		n.directoryPermissions = perms
		n.childrenSize = size
		n.children = children
		return rest, n, nil
	default:
		return buf, nil, fmt.Errorf("node: cannot parse unknown kind %s", kind)
	}
}

func parseAssociatedData(buf []byte) ([]byte, map[uint16]codec.PermanentId, error) {
	if len(buf) < 1 {
		return buf, nil, codec.NeedMore(buf, 1)
	}
	count := int(buf[0])
	rest := buf[1:]
	m := make(map[uint16]codec.PermanentId, count)
	var highest uint16
	for i := 0; i < count; i++ {
		if len(rest) < 2 {
			return buf, nil, codec.NeedMore(rest, 2)
		}
		k := binary.LittleEndian.Uint16(rest[:2])
		rest = rest[2:]
		if i > 0 && k <= highest {
			return buf, nil, fmt.Errorf("node: associated-data kinds must be strictly increasing")
		}
		highest = k

		next, permId, err := codec.ParsePermanentId(rest)
		if err != nil {
			return buf, nil, err
		}
		rest = next
		m[k] = permId
	}
	return rest, m, nil
}
