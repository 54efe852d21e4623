package node

import (
	"encoding/binary"
	"fmt"

	"github.com/banyancomputer/go-banyanfs/pkg/block"
	"github.com/banyancomputer/go-banyanfs/pkg/codec"
)

// BlockKind distinguishes which data-block profile a ContentReference's
// block uses, so a reader can size its decode buffer before fetching the
// block (§3).
type BlockKind byte

const (
	BlockKindSmall    BlockKind = 0x00
	BlockKindStandard BlockKind = 0x01
)

func (k BlockKind) Encode(dst []byte) []byte { return append(dst, byte(k)) }

func ParseBlockKind(buf []byte) ([]byte, BlockKind, error) {
	if len(buf) < 1 {
		return buf, 0, codec.NeedMore(buf, 1)
	}
	k := BlockKind(buf[0])
	switch k {
	case BlockKindSmall, BlockKindStandard:
		return buf[1:], k, nil
	default:
		return buf, 0, fmt.Errorf("node: unknown block kind 0x%02x", buf[0])
	}
}

// DataOptions returns the DataOptions profile this BlockKind identifies.
func (k BlockKind) DataOptions() block.DataOptions {
	if k == BlockKindStandard {
		return block.StandardDataOptions()
	}
	return block.SmallDataOptions()
}

// ContentLocation names one chunk, within one data block, that
// contributes bytes to a file's logical content (§3).
type ContentLocation struct {
	Block      BlockKind
	ChunkCid   codec.Cid
	BlockIndex uint32 // index of the chunk within its block
}

const contentLocationSize = 1 + codec.CidSize + 4

func (l ContentLocation) Encode(dst []byte) []byte {
	dst = l.Block.Encode(dst)
	dst = l.ChunkCid.Encode(dst)
	var idx [4]byte
	binary.LittleEndian.PutUint32(idx[:], l.BlockIndex)
	return append(dst, idx[:]...)
}

func ParseContentLocation(buf []byte) ([]byte, ContentLocation, error) {
	if len(buf) < contentLocationSize {
		return buf, ContentLocation{}, codec.NeedMore(buf, contentLocationSize)
	}
	rest, kind, err := ParseBlockKind(buf)
	if err != nil {
		return buf, ContentLocation{}, err
	}
	rest, cid, err := codec.ParseCid(rest)
	if err != nil {
		return buf, ContentLocation{}, err
	}
	idx := binary.LittleEndian.Uint32(rest[:4])
	return rest[4:], ContentLocation{Block: kind, ChunkCid: cid, BlockIndex: idx}, nil
}

// ContentReference names one data block backing part of a file's
// content: the block's own CID and data-options, plus the ordered
// locations within it that reconstruct (a slice of) the file (§3).
type ContentReference struct {
	BlockCid codec.Cid
	Options  block.DataOptions
	Locs     []ContentLocation
}

func (r ContentReference) Encode(dst []byte) []byte {
	dst = r.BlockCid.Encode(dst)
	dst = r.Options.Encode(dst)
	var count [2]byte
	binary.LittleEndian.PutUint16(count[:], uint16(len(r.Locs)))
	dst = append(dst, count[:]...)
	for _, loc := range r.Locs {
		dst = loc.Encode(dst)
	}
	return dst
}

func ParseContentReference(buf []byte) ([]byte, ContentReference, error) {
	rest, blockCid, err := codec.ParseCid(buf)
	if err != nil {
		return buf, ContentReference{}, err
	}
	rest, options, err := block.ParseDataOptions(rest)
	if err != nil {
		return buf, ContentReference{}, err
	}
	if len(rest) < 2 {
		return buf, ContentReference{}, codec.NeedMore(rest, 2)
	}
	count := int(binary.LittleEndian.Uint16(rest[:2]))
	rest = rest[2:]

	locs := make([]ContentLocation, 0, count)
	for i := 0; i < count; i++ {
		next, loc, err := ParseContentLocation(rest)
		if err != nil {
			return buf, ContentReference{}, err
		}
		rest = next
		locs = append(locs, loc)
	}
	return rest, ContentReference{BlockCid: blockCid, Options: options, Locs: locs}, nil
}

// contentTag distinguishes the three FileContent shapes on the wire.
type contentTag byte

const (
	contentTagStub      contentTag = 0x00
	contentTagPublic    contentTag = 0x01
	contentTagEncrypted contentTag = 0x02
)

// FileContent is the tagged union describing where a file's bytes live:
// a placeholder with only a size (Stub), plaintext-addressed content
// (Public), or content whose data key is itself escrowed (Encrypted)
// (§3).
type FileContent struct {
	tag            contentTag
	dataSize       uint64
	cid            codec.Cid
	refs           []ContentReference
	wrappedDataKey []byte // sealed crypto.SymLockedAccessKey bytes; pkg/node never unwraps it
}

// StubContent constructs a placeholder FileContent carrying only the
// logical size (no data stored yet).
func StubContent(dataSize uint64) FileContent {
	return FileContent{tag: contentTagStub, dataSize: dataSize}
}

// PublicContent constructs a FileContent whose plaintext CID and chunk
// references are stored unencrypted.
func PublicContent(cid codec.Cid, dataSize uint64, refs []ContentReference) FileContent {
	return FileContent{tag: contentTagPublic, cid: cid, dataSize: dataSize, refs: refs}
}

// EncryptedContent constructs a FileContent whose data key is wrapped
// for later unwrap, alongside the plaintext CID and chunk references.
func EncryptedContent(wrappedDataKey []byte, cid codec.Cid, dataSize uint64, refs []ContentReference) FileContent {
	return FileContent{
		tag:            contentTagEncrypted,
		wrappedDataKey: append([]byte(nil), wrappedDataKey...),
		cid:            cid,
		dataSize:       dataSize,
		refs:           refs,
	}
}

// IsStub reports whether this content has no stored bytes yet.
func (c FileContent) IsStub() bool { return c.tag == contentTagStub }

// Encrypted reports whether this content's data key is wrapped.
func (c FileContent) Encrypted() bool { return c.tag == contentTagEncrypted }

// DataSize is the logical byte length of the file.
func (c FileContent) DataSize() uint64 { return c.dataSize }

// Cid is the plaintext content identifier; valid for Public and
// Encrypted content only.
func (c FileContent) Cid() codec.Cid { return c.cid }

// References returns the ordered data-block references backing this
// content.
func (c FileContent) References() []ContentReference { return c.refs }

// WrappedDataKey returns the sealed data-key bytes for Encrypted content.
func (c FileContent) WrappedDataKey() []byte { return c.wrappedDataKey }

func (c FileContent) Encode(dst []byte) []byte {
	dst = append(dst, byte(c.tag))
	var size [8]byte
	binary.LittleEndian.PutUint64(size[:], c.dataSize)
	dst = append(dst, size[:]...)

	switch c.tag {
	case contentTagStub:
		return dst
	case contentTagPublic:
		dst = c.cid.Encode(dst)
		return encodeRefs(dst, c.refs)
	case contentTagEncrypted:
		var keyLen [2]byte
		binary.LittleEndian.PutUint16(keyLen[:], uint16(len(c.wrappedDataKey)))
		dst = append(dst, keyLen[:]...)
		dst = append(dst, c.wrappedDataKey...)
		dst = c.cid.Encode(dst)
		return encodeRefs(dst, c.refs)
	default:
		return dst
	}
}

func encodeRefs(dst []byte, refs []ContentReference) []byte {
	var count [2]byte
	binary.LittleEndian.PutUint16(count[:], uint16(len(refs)))
	dst = append(dst, count[:]...)
	for _, r := range refs {
		dst = r.Encode(dst)
	}
	return dst
}

func ParseFileContent(buf []byte) ([]byte, FileContent, error) {
	if len(buf) < 1+8 {
		return buf, FileContent{}, codec.NeedMore(buf, 1+8)
	}
	tag := contentTag(buf[0])
	dataSize := binary.LittleEndian.Uint64(buf[1:9])
	rest := buf[9:]

	switch tag {
	case contentTagStub:
		return rest, FileContent{tag: tag, dataSize: dataSize}, nil
	case contentTagPublic:
		rest, cid, err := codec.ParseCid(rest)
		if err != nil {
			return buf, FileContent{}, err
		}
		rest, refs, err := parseRefs(rest)
		if err != nil {
			return buf, FileContent{}, err
		}
		return rest, FileContent{tag: tag, dataSize: dataSize, cid: cid, refs: refs}, nil
	case contentTagEncrypted:
		if len(rest) < 2 {
			return buf, FileContent{}, codec.NeedMore(rest, 2)
		}
		keyLen := int(binary.LittleEndian.Uint16(rest[:2]))
		rest = rest[2:]
		if len(rest) < keyLen {
			return buf, FileContent{}, codec.NeedMore(rest, keyLen)
		}
		wrapped := append([]byte(nil), rest[:keyLen]...)
		rest = rest[keyLen:]

		rest, cid, err := codec.ParseCid(rest)
		if err != nil {
			return buf, FileContent{}, err
		}
		rest, refs, err := parseRefs(rest)
		if err != nil {
			return buf, FileContent{}, err
		}
		return rest, FileContent{
			tag:            tag,
			dataSize:       dataSize,
			cid:            cid,
			refs:           refs,
			wrappedDataKey: wrapped,
		}, nil
	default:
		return buf, FileContent{}, fmt.Errorf("node: unknown file content tag 0x%02x", tag)
	}
}

func parseRefs(buf []byte) ([]byte, []ContentReference, error) {
	if len(buf) < 2 {
		return buf, nil, codec.NeedMore(buf, 2)
	}
	count := int(binary.LittleEndian.Uint16(buf[:2]))
	rest := buf[2:]
	refs := make([]ContentReference, 0, count)
	for i := 0; i < count; i++ {
		next, ref, err := ParseContentReference(rest)
		if err != nil {
			return buf, nil, err
		}
		rest = next
		refs = append(refs, ref)
	}
	return rest, refs, nil
}
