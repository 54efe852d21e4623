package block

import (
	"errors"
	"fmt"
	"io"

	"github.com/banyancomputer/go-banyanfs/pkg/codec"
	"github.com/banyancomputer/go-banyanfs/pkg/crypto"
	"lukechampine.com/blake3"
)

// Magic is the 4-byte prefix identifying an encoded data block on the wire
// (§4.3).
var Magic = [4]byte{'B', 'Y', 'F', 'D'}

// Version is the only data block wire version this implementation emits
// or accepts.
const Version byte = 0x01

// headerSize is magic(4) + version(1).
const headerSize = 5

// ErrFull is returned by PushChunk once the block already holds
// ChunkCount() chunks.
var ErrFull = errors.New("block: data block is full")

// ErrChunkIndexOutOfBounds is returned by Chunk for an index that has no
// pushed chunk.
var ErrChunkIndexOutOfBounds = errors.New("block: chunk index out of bounds")

// ErrEncodingRequired is returned by CID before the block has been
// encoded at least once.
var ErrEncodingRequired = errors.New("block: CID is not available until the block has been encoded")

// DataBlock is a fixed-size collection of encrypted chunks, magic-prefixed
// and content-addressed by the Blake3 hash of its chunk payload plus
// trailing chunk-CID index (§4.3).
type DataBlock struct {
	options  DataOptions
	contents []EncryptedDataChunk
	cid      *codec.Cid
}

// Small constructs an empty DataBlock using the "small" profile: 2 chunks
// of 4KiB (§4.3).
func Small() *DataBlock {
	return &DataBlock{options: SmallDataOptions()}
}

// Standard constructs an empty DataBlock using the "standard" profile: 16
// chunks of 1MiB (§4.3).
func Standard() *DataBlock {
	return &DataBlock{options: StandardDataOptions()}
}

// Options returns the block's DataOptions.
func (b *DataBlock) Options() DataOptions { return b.options }

// IsEmpty reports whether any chunks have been pushed.
func (b *DataBlock) IsEmpty() bool { return len(b.contents) == 0 }

// IsFull reports whether the block already holds ChunkCount() chunks.
func (b *DataBlock) IsFull() bool {
	return len(b.contents) >= int(b.options.ChunkCount())
}

// RemainingChunks is the number of chunk slots still unused.
func (b *DataBlock) RemainingChunks() uint8 {
	return b.options.ChunkCount() - uint8(len(b.contents))
}

// RemainingSpace is the amount of caller data the unused chunk slots can
// still hold.
func (b *DataBlock) RemainingSpace() int {
	return int(b.RemainingChunks()) * b.options.ChunkDataSize()
}

// Chunk returns the pushed chunk at index.
func (b *DataBlock) Chunk(index int) (EncryptedDataChunk, error) {
	if index < 0 || index >= len(b.contents) {
		return EncryptedDataChunk{}, ErrChunkIndexOutOfBounds
	}
	return b.contents[index], nil
}

// PushChunk appends an already-encrypted chunk to the block, returning
// its index. It fails with ErrFull once the block holds ChunkCount()
// chunks. Pushing invalidates any cached block CID (§4.3).
func (b *DataBlock) PushChunk(chunk EncryptedDataChunk) (int, error) {
	if b.IsFull() {
		return 0, ErrFull
	}
	b.cid = nil
	b.contents = append(b.contents, chunk)
	return len(b.contents) - 1, nil
}

// CID returns the block's content identifier. It is only available after
// Encode has run at least once since the last PushChunk (§4.3).
func (b *DataBlock) CID() (codec.Cid, error) {
	if b.cid == nil {
		return codec.Cid{}, ErrEncodingRequired
	}
	return *b.cid, nil
}

// Encode writes the block's header and chunk payload to w, padding any
// unused chunk slots with fresh random data first. It returns the total
// bytes written and the ordered list of chunk CIDs (real chunks followed
// by padding chunks).
//
// The block CID is the Blake3 hash of the chunk payload and trailing
// chunk-CID index only — it does not cover the magic, version, CID field,
// or data options (§4.3; resolved against the reference implementation,
// see DESIGN.md).
func (b *DataBlock) Encode(rng io.Reader, w io.Writer) (int, []codec.Cid, error) {
	if b.options.ECCPresent() {
		return 0, nil, fmt.Errorf("block: error-correction blocks are not supported")
	}
	if !b.options.Encrypted {
		return 0, nil, fmt.Errorf("block: unencrypted data blocks are not supported")
	}

	var dataBuffer []byte
	chunkCids := make([]codec.Cid, 0, b.options.ChunkCount())

	for _, chunk := range b.contents {
		dataBuffer = append(dataBuffer, chunk.Bytes()...)
		chunkCids = append(chunkCids, chunk.CID())
	}

	needed := int(b.options.ChunkCount()) - len(b.contents)
	for i := 0; i < needed; i++ {
		pad, err := paddingChunk(rng, b.options)
		if err != nil {
			return 0, nil, err
		}
		dataBuffer = append(dataBuffer, pad.Bytes()...)
		chunkCids = append(chunkCids, pad.CID())
	}

	for _, cid := range chunkCids {
		dataBuffer = cid.Encode(dataBuffer)
	}

	digest := blake3.Sum256(dataBuffer)
	cid, err := codec.CidFromDigest(digest[:])
	if err != nil {
		return 0, nil, err
	}

	header := make([]byte, 0, headerSize+codec.CidSize+DataOptionsSize)
	header = append(header, Magic[:]...)
	header = append(header, Version)
	header = cid.Encode(header)
	header = b.options.Encode(header)

	n, err := w.Write(header)
	if err != nil {
		return n, nil, fmt.Errorf("block: write header: %w", err)
	}
	written := n

	n, err = w.Write(dataBuffer)
	if err != nil {
		return written + n, nil, fmt.Errorf("block: write data: %w", err)
	}
	written += n

	b.cid = &cid
	return written, chunkCids, nil
}

// Parse reads a DataBlock from buf, expecting the version byte (not the
// magic prefix) at buf[0]. Use ParseWithMagic when the magic prefix is
// still present.
func Parse(buf []byte) ([]byte, *DataBlock, error) {
	if len(buf) < 1 {
		return buf, nil, codec.NeedMore(buf, 1)
	}
	if buf[0] != Version {
		return buf, nil, fmt.Errorf("block: unsupported version 0x%02x", buf[0])
	}
	rest := buf[1:]

	rest, cid, err := codec.ParseCid(rest)
	if err != nil {
		return buf, nil, err
	}
	rest, options, err := ParseDataOptions(rest)
	if err != nil {
		return buf, nil, err
	}
	if options.ECCPresent() {
		return buf, nil, fmt.Errorf("block: error-correction blocks are not supported")
	}
	if !options.Encrypted {
		return buf, nil, fmt.Errorf("block: unencrypted data blocks are not supported")
	}

	chunkCount := int(options.ChunkCount())
	contents := make([]EncryptedDataChunk, 0, chunkCount)
	for i := 0; i < chunkCount; i++ {
		next, chunk, err := parseEncryptedDataChunk(rest, options)
		if err != nil {
			return buf, nil, err
		}
		rest = next
		contents = append(contents, chunk)
	}

	for i := 0; i < chunkCount; i++ {
		next, _, err := codec.ParseCid(rest)
		if err != nil {
			return buf, nil, err
		}
		rest = next
	}

	block := &DataBlock{options: options, contents: contents, cid: &cid}
	return rest, block, nil
}

// ParseWithMagic reads a DataBlock from buf, expecting the 4-byte magic
// prefix before the version byte.
func ParseWithMagic(buf []byte) ([]byte, *DataBlock, error) {
	if len(buf) < len(Magic) {
		return buf, nil, codec.NeedMore(buf, len(Magic))
	}
	for i, m := range Magic {
		if buf[i] != m {
			return buf, nil, fmt.Errorf("block: bad magic bytes")
		}
	}
	return Parse(buf[len(Magic):])
}
