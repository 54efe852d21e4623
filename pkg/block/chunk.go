package block

import (
	"fmt"
	"io"

	"github.com/banyancomputer/go-banyanfs/pkg/codec"
	"github.com/banyancomputer/go-banyanfs/pkg/crypto"
	"lukechampine.com/blake3"
)

// EncryptedDataChunk is one fixed-size, already-encrypted chunk inside a
// DataBlock: nonce(24) || ciphertext || tag(16), addressed by the Blake3
// CID of those raw bytes (§4.3).
type EncryptedDataChunk struct {
	contents []byte
	cid      codec.Cid
}

// CID returns the chunk's content identifier.
func (c EncryptedDataChunk) CID() codec.Cid { return c.cid }

// Bytes returns the raw on-wire chunk bytes (nonce||ciphertext||tag).
func (c EncryptedDataChunk) Bytes() []byte { return c.contents }

// EncryptChunk seals data (which must fit within options.ChunkDataSize())
// under access key into a fresh EncryptedDataChunk. The plaintext frame is
// u32 length || data || random padding out to ChunkPayloadSize, so every
// chunk has identical ciphertext length regardless of the caller's data
// length (§4.3).
func EncryptChunk(rng io.Reader, options DataOptions, key crypto.AccessKey, data []byte) (EncryptedDataChunk, error) {
	if !options.Encrypted {
		return EncryptedDataChunk{}, fmt.Errorf("block: unencrypted data blocks are not supported")
	}
	if len(data) > options.ChunkDataSize() {
		return EncryptedDataChunk{}, fmt.Errorf("block: chunk data %d exceeds max %d", len(data), options.ChunkDataSize())
	}

	payload := make([]byte, options.ChunkPayloadSize())
	var length [4]byte
	putUint32LE(length[:], uint32(len(data)))
	copy(payload[0:4], length[:])
	copy(payload[4:], data)
	if _, err := io.ReadFull(rng, payload[4+len(data):]); err != nil {
		return EncryptedDataChunk{}, fmt.Errorf("block: pad chunk: %w", err)
	}

	nonce, tag, err := key.Encrypt(rng, nil, payload)
	if err != nil {
		return EncryptedDataChunk{}, fmt.Errorf("block: encrypt chunk: %w", err)
	}

	contents := make([]byte, 0, codec.NonceSize+len(payload)+codec.TagSize)
	contents = append(contents, nonce[:]...)
	contents = append(contents, payload...)
	contents = append(contents, tag[:]...)

	digest := blake3.Sum256(contents)
	cid, err := codec.CidFromDigest(digest[:])
	if err != nil {
		return EncryptedDataChunk{}, err
	}
	return EncryptedDataChunk{contents: contents, cid: cid}, nil
}

// paddingChunk fills an unused chunk slot with random bytes the full
// width of a chunk, so encoding a partial block always produces a
// fixed-size, indistinguishable result (§4.3).
func paddingChunk(rng io.Reader, options DataOptions) (EncryptedDataChunk, error) {
	contents := make([]byte, options.ChunkSize())
	if _, err := io.ReadFull(rng, contents); err != nil {
		return EncryptedDataChunk{}, fmt.Errorf("block: generate padding chunk: %w", err)
	}
	digest := blake3.Sum256(contents)
	cid, err := codec.CidFromDigest(digest[:])
	if err != nil {
		return EncryptedDataChunk{}, err
	}
	return EncryptedDataChunk{contents: contents, cid: cid}, nil
}

// Decrypt opens the chunk under access key and returns its caller data,
// stripping the length prefix and random padding.
func (c EncryptedDataChunk) Decrypt(options DataOptions, key crypto.AccessKey) ([]byte, error) {
	if len(c.contents) != int(options.ChunkSize()) {
		return nil, fmt.Errorf("block: chunk is %d bytes, want %d", len(c.contents), options.ChunkSize())
	}

	var nonce codec.Nonce
	copy(nonce[:], c.contents[:codec.NonceSize])
	var tag codec.AuthenticationTag
	copy(tag[:], c.contents[len(c.contents)-codec.TagSize:])

	payload := make([]byte, len(c.contents)-codec.NonceSize-codec.TagSize)
	copy(payload, c.contents[codec.NonceSize:len(c.contents)-codec.TagSize])

	if err := key.Decrypt(nonce, nil, payload, tag); err != nil {
		return nil, err
	}

	length := getUint32LE(payload[0:4])
	if int(length) > options.ChunkDataSize() {
		return nil, fmt.Errorf("block: decoded chunk length %d exceeds max %d", length, options.ChunkDataSize())
	}
	out := make([]byte, length)
	copy(out, payload[4:4+length])
	return out, nil
}

// parseEncryptedDataChunk reads one fixed-size chunk (options.ChunkSize()
// bytes) from buf without decrypting it.
func parseEncryptedDataChunk(buf []byte, options DataOptions) ([]byte, EncryptedDataChunk, error) {
	size := int(options.ChunkSize())
	if len(buf) < size {
		return buf, EncryptedDataChunk{}, codec.NeedMore(buf, size)
	}
	contents := make([]byte, size)
	copy(contents, buf[:size])
	digest := blake3.Sum256(contents)
	cid, err := codec.CidFromDigest(digest[:])
	if err != nil {
		return buf, EncryptedDataChunk{}, err
	}
	return buf[size:], EncryptedDataChunk{contents: contents, cid: cid}, nil
}

func putUint32LE(dst []byte, v uint32) {
	dst[0] = byte(v)
	dst[1] = byte(v >> 8)
	dst[2] = byte(v >> 16)
	dst[3] = byte(v >> 24)
}

func getUint32LE(src []byte) uint32 {
	return uint32(src[0]) | uint32(src[1])<<8 | uint32(src[2])<<16 | uint32(src[3])<<24
}
