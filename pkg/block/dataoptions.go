// Package block implements the BanyanFS data-block engine (§4.3): fixed
// size, encrypted, chunked storage units addressed by a Blake3 CID.
package block

import (
	"fmt"

	"github.com/banyancomputer/go-banyanfs/pkg/codec"
)

// encryptedBit marks DataOptions.Encrypted in byte 0 of the wire form.
const encryptedBit byte = 0b1000_0000

// DataOptionsSize is the fixed wire width of a DataOptions value.
const DataOptionsSize = 2

// DataOptions describes the shape of a DataBlock: whether its chunks are
// encrypted, how many chunks it holds, how much error-correction it
// carries, and the size of each chunk (§4.3).
type DataOptions struct {
	Encrypted           bool
	ChunkCountExponent  uint8 // 0-3, chunk count = 2^(1+exp)
	ErrorCorrectionCount uint8 // 0-15
	ChunkSizeExponent   uint8 // 0-15, chunk size = 2^(12+exp)
}

// NewDataOptions validates and constructs a DataOptions value.
func NewDataOptions(encrypted bool, chunkCountExponent, errorCorrectionCount, chunkSizeExponent uint8) (DataOptions, error) {
	if chunkCountExponent > 3 {
		return DataOptions{}, fmt.Errorf("block: chunk count exponent %d exceeds max 3", chunkCountExponent)
	}
	if errorCorrectionCount > 15 {
		return DataOptions{}, fmt.Errorf("block: error correction count %d exceeds max 15", errorCorrectionCount)
	}
	if chunkSizeExponent > 15 {
		return DataOptions{}, fmt.Errorf("block: chunk size exponent %d exceeds max 15", chunkSizeExponent)
	}
	return DataOptions{
		Encrypted:            encrypted,
		ChunkCountExponent:   chunkCountExponent,
		ErrorCorrectionCount: errorCorrectionCount,
		ChunkSizeExponent:    chunkSizeExponent,
	}, nil
}

// SmallDataOptions returns the "small" profile: 2 chunks of 4KiB,
// encrypted, no ECC (§4.3).
func SmallDataOptions() DataOptions {
	opts, _ := NewDataOptions(true, 0, 0, 0)
	return opts
}

// StandardDataOptions returns the "standard" profile: 16 chunks of 1MiB,
// encrypted, no ECC (§4.3).
func StandardDataOptions() DataOptions {
	opts, _ := NewDataOptions(true, 3, 0, 8)
	return opts
}

// ChunkSize is the size, in bytes, of one encrypted chunk.
func (o DataOptions) ChunkSize() uint32 {
	return 1 << (12 + uint32(o.ChunkSizeExponent))
}

// ChunkCount is the number of chunks this block holds.
func (o DataOptions) ChunkCount() uint8 {
	return 1 << (1 + o.ChunkCountExponent)
}

// BlockSize is the total on-wire size of all chunks.
func (o DataOptions) BlockSize() uint64 {
	return uint64(o.ChunkCount()) * uint64(o.ChunkSize())
}

// ChunkPayloadSize is the size of a chunk's plaintext-equivalent payload
// (the AEAD-sealed region), after subtracting nonce and tag overhead.
func (o DataOptions) ChunkPayloadSize() int {
	size := int(o.ChunkSize())
	if o.Encrypted {
		size -= codec.NonceSize + codec.TagSize
	}
	return size
}

// ChunkDataSize is the amount of caller data a single chunk can hold,
// after subtracting the leading u32 length prefix.
func (o DataOptions) ChunkDataSize() int {
	return o.ChunkPayloadSize() - 4
}

// BlockDataSize is the total amount of caller data the block can hold
// across all of its chunks.
func (o DataOptions) BlockDataSize() int {
	return o.ChunkDataSize() * int(o.ChunkCount())
}

// ECCPresent reports whether this block carries error-correction chunks.
func (o DataOptions) ECCPresent() bool {
	return o.ErrorCorrectionCount > 0
}

// Encode appends the 2-byte wire form of o to dst.
func (o DataOptions) Encode(dst []byte) []byte {
	var b [DataOptionsSize]byte
	if o.Encrypted {
		b[0] |= encryptedBit
	}
	b[0] |= o.ChunkCountExponent & 0b11
	b[1] = (o.ErrorCorrectionCount << 4) | (o.ChunkSizeExponent & 0b1111)
	return append(dst, b[:]...)
}

// ParseDataOptions reads a DataOptions value from buf.
func ParseDataOptions(buf []byte) ([]byte, DataOptions, error) {
	if len(buf) < DataOptionsSize {
		return buf, DataOptions{}, codec.NeedMore(buf, DataOptionsSize)
	}
	encrypted := buf[0]&encryptedBit != 0
	chunkCountExponent := buf[0] & 0b11
	errorCorrectionCount := (buf[1] & 0b1111_0000) >> 4
	chunkSizeExponent := buf[1] & 0b1111

	opts, err := NewDataOptions(encrypted, chunkCountExponent, errorCorrectionCount, chunkSizeExponent)
	if err != nil {
		return buf, DataOptions{}, fmt.Errorf("block: invalid data options: %w", err)
	}
	return buf[DataOptionsSize:], opts, nil
}
