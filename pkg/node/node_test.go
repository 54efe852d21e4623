package node

import (
	"bytes"
	"crypto/rand"
	"testing"

	"github.com/banyancomputer/go-banyanfs/pkg/codec"
	"github.com/banyancomputer/go-banyanfs/pkg/crypto"
)

func testOwner(t *testing.T) codec.ActorId {
	t.Helper()
	sk, err := crypto.GenerateSigningKey(rand.Reader)
	if err != nil {
		t.Fatalf("GenerateSigningKey: %v", err)
	}
	return sk.VerifyingKey().ActorId()
}

func TestNewRootIsRootNamed(t *testing.T) {
	root, err := NewRoot(testOwner(t), 1000)
	if err != nil {
		t.Fatalf("NewRoot: %v", err)
	}
	if !root.Name().IsRoot() {
		t.Fatalf("root node name is not Root")
	}
	if !root.IsDirectory() {
		t.Fatalf("root node is not a directory")
	}
	if _, hasParent := root.ParentSlot(); hasParent {
		t.Fatalf("root node should have no parent")
	}
}

func TestFileNodeEncodeParseRoundTrip(t *testing.T) {
	owner := testOwner(t)
	name, err := codec.NewName("hello.txt")
	if err != nil {
		t.Fatalf("NewName: %v", err)
	}
	n, err := NewFile(owner, name, 1234)
	if err != nil {
		t.Fatalf("NewFile: %v", err)
	}
	n.associatedData = map[uint16]codec.PermanentId{}

	cid, err := codec.CidFromDigest(bytes.Repeat([]byte{0x09}, codec.CidSize))
	if err != nil {
		t.Fatalf("CidFromDigest: %v", err)
	}
	if err := n.SetContent(fileContentWithCid(cid), 5678); err != nil {
		t.Fatalf("SetContent: %v", err)
	}

	buf, err := n.Encode(nil)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	rest, parsed, err := ParseNode(buf)
	if err != nil {
		t.Fatalf("ParseNode: %v", err)
	}
	if len(rest) != 0 {
		t.Fatalf("leftover bytes: %d", len(rest))
	}
	if parsed.PermanentId() != n.PermanentId() {
		t.Fatalf("permanent id mismatch")
	}
	if parsed.Name().String() != "hello.txt" {
		t.Fatalf("name = %q, want hello.txt", parsed.Name().String())
	}
	if parsed.ModifiedAt() != 5678 {
		t.Fatalf("modifiedAt = %d, want 5678", parsed.ModifiedAt())
	}
	if parsed.Content().Cid() != cid {
		t.Fatalf("content cid mismatch after round trip")
	}
}

// fileContentWithCid builds a minimal Public FileContent with no chunk
// locations, used to test Node encode/parse without pulling in pkg/block.
func fileContentWithCid(cid codec.Cid) FileContent {
	return PublicContent(cid, 11, nil)
}

func TestDirectoryChildMapRoundTrip(t *testing.T) {
	owner := testOwner(t)
	dirName, _ := codec.NewName("dir")
	dir, err := NewDirectory(owner, dirName, 10)
	if err != nil {
		t.Fatalf("NewDirectory: %v", err)
	}

	childName, _ := codec.NewName("child")
	childId, err := codec.NewPermanentId()
	if err != nil {
		t.Fatalf("NewPermanentId: %v", err)
	}
	childCid, err := codec.CidFromDigest(bytes.Repeat([]byte{0x01}, codec.CidSize))
	if err != nil {
		t.Fatalf("CidFromDigest: %v", err)
	}
	dir.Children().Put(childName, ChildEntry{PermanentId: childId, Cid: childCid, Size: 42})

	buf, err := dir.Encode(nil)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	rest, parsed, err := ParseNode(buf)
	if err != nil {
		t.Fatalf("ParseNode: %v", err)
	}
	if len(rest) != 0 {
		t.Fatalf("leftover bytes: %d", len(rest))
	}
	entry, ok := parsed.Children().Get(childName)
	if !ok {
		t.Fatalf("child %q missing after round trip", childName.String())
	}
	if entry.PermanentId != childId || entry.Size != 42 {
		t.Fatalf("child entry mismatch: %+v", entry)
	}
}

func TestChildMapRejectsDuplicateNameOnParse(t *testing.T) {
	name, _ := codec.NewName("dup")
	id1, _ := codec.NewPermanentId()
	id2, _ := codec.NewPermanentId()
	cid, _ := codec.CidFromDigest(bytes.Repeat([]byte{0x03}, codec.CidSize))

	var buf []byte
	binaryPutUint16(&buf, 2) // claim two entries sharing the same name

	appendEntry := func(id codec.PermanentId) {
		buf = name.Encode(buf)
		buf = id.Encode(buf)
		buf = cid.Encode(buf)
		buf = append(buf, make([]byte, 8)...) // size
	}
	appendEntry(id1)
	appendEntry(id2)

	if _, _, err := ParseChildMap(buf); err == nil {
		t.Fatalf("expected error parsing child map with duplicate name")
	}
}

func binaryPutUint16(buf *[]byte, v uint16) {
	*buf = append(*buf, byte(v), byte(v>>8))
}

func TestArenaInsertResolveRemove(t *testing.T) {
	owner := testOwner(t)
	a := NewArena()

	root, err := NewRoot(owner, 1)
	if err != nil {
		t.Fatalf("NewRoot: %v", err)
	}
	rootSlot := a.Insert(root)
	a.SetRoot(rootSlot)

	fileName, _ := codec.NewName("file.bin")
	file, err := NewFile(owner, fileName, 2)
	if err != nil {
		t.Fatalf("NewFile: %v", err)
	}
	fileSlot := a.Insert(file)
	file.SetParent(rootSlot)

	got, err := a.Lookup(file.PermanentId())
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if got.Slot() != fileSlot {
		t.Fatalf("lookup returned slot %d, want %d", got.Slot(), fileSlot)
	}

	if err := a.Remove(fileSlot); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if _, err := a.Lookup(file.PermanentId()); err == nil {
		t.Fatalf("expected error looking up removed node")
	}
}

func TestNodeDirtyOnMutation(t *testing.T) {
	owner := testOwner(t)
	fileName, _ := codec.NewName("file")
	n, err := NewFile(owner, fileName, 1)
	if err != nil {
		t.Fatalf("NewFile: %v", err)
	}
	cid, _ := codec.CidFromDigest(bytes.Repeat([]byte{0x02}, codec.CidSize))
	n.SetCachedCid(cid)
	if _, ok := n.CachedCid(); !ok {
		t.Fatalf("expected cached cid to be set")
	}

	n.Bump()
	if _, ok := n.CachedCid(); !ok {
		t.Fatalf("Bump alone should not invalidate the cache")
	}

	n.markDirty()
	if _, ok := n.CachedCid(); ok {
		t.Fatalf("expected cached cid to be cleared after markDirty")
	}
}
