package drive

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"lukechampine.com/blake3"

	"github.com/banyancomputer/go-banyanfs/pkg/block"
	"github.com/banyancomputer/go-banyanfs/pkg/codec"
	"github.com/banyancomputer/go-banyanfs/pkg/crypto"
	"github.com/banyancomputer/go-banyanfs/pkg/driveconfig"
	"github.com/banyancomputer/go-banyanfs/pkg/node"
)

// encryptFileContent seals data under a fresh per-file AccessKey, packs
// it into as many data blocks as needed, stores each block, and wraps
// the per-file key under the drive's data permission key so only
// actors holding that key can ever recover it (§3, §4.3, §4.5).
func encryptFileContent(ctx context.Context, d *Drive, rng io.Reader, data []byte) (node.FileContent, error) {
	if len(data) == 0 {
		return node.StubContent(0), nil
	}

	perFileKey, err := crypto.GenerateAccessKey(rng)
	if err != nil {
		return node.FileContent{}, fmt.Errorf("drive: generate file data key: %w", err)
	}

	opts := block.SmallDataOptions()
	kind := node.BlockKindSmall
	newBlock := block.Small
	wantStandard := d.config != nil && d.config.BlockProfile == driveconfig.BlockProfileStandard
	if wantStandard || len(data) > opts.BlockDataSize() {
		opts = block.StandardDataOptions()
		kind = node.BlockKindStandard
		newBlock = block.Standard
	}
	chunkDataSize := opts.ChunkDataSize()

	var refs []node.ContentReference
	offset := 0
	for offset < len(data) {
		blk := newBlock()
		var locs []node.ContentLocation

		for !blk.IsFull() && offset < len(data) {
			end := offset + chunkDataSize
			if end > len(data) {
				end = len(data)
			}
			chunk, err := block.EncryptChunk(rng, opts, perFileKey, data[offset:end])
			if err != nil {
				return node.FileContent{}, fmt.Errorf("drive: encrypt chunk: %w", err)
			}
			idx, err := blk.PushChunk(chunk)
			if err != nil {
				return node.FileContent{}, fmt.Errorf("drive: push chunk: %w", err)
			}
			locs = append(locs, node.ContentLocation{Block: kind, ChunkCid: chunk.CID(), BlockIndex: uint32(idx)})
			offset = end
		}

		var buf bytes.Buffer
		if _, _, err := blk.Encode(rng, &buf); err != nil {
			return node.FileContent{}, fmt.Errorf("drive: encode data block: %w", err)
		}
		blockCid, err := blk.CID()
		if err != nil {
			return node.FileContent{}, err
		}
		if d.dataStore != nil {
			if err := d.dataStore.Store(ctx, blockCid, buf.Bytes(), false); err != nil {
				return node.FileContent{}, fmt.Errorf("drive: store data block: %w", err)
			}
		}
		refs = append(refs, node.ContentReference{BlockCid: blockCid, Options: opts, Locs: locs})
	}

	digest := blake3.Sum256(data)
	plainCid, err := codec.CidFromDigest(digest[:])
	if err != nil {
		return node.FileContent{}, err
	}

	wrapped, err := perFileKey.LockWith(rng, d.access.Keys().Data)
	if err != nil {
		return node.FileContent{}, fmt.Errorf("drive: wrap file data key: %w", err)
	}

	return node.EncryptedContent(wrapped.Encode(nil), plainCid, uint64(len(data)), refs), nil
}

// decryptFileContent reverses encryptFileContent: unwraps the per-file
// key under the drive's data permission key, then fetches and decrypts
// every referenced chunk in order.
func decryptFileContent(ctx context.Context, d *Drive, content node.FileContent) ([]byte, error) {
	if content.IsStub() {
		return nil, nil
	}
	if !content.Encrypted() {
		return nil, fmt.Errorf("drive: unencrypted file content is not supported")
	}
	if d.dataStore == nil {
		return nil, fmt.Errorf("drive: no data store configured to read file content")
	}

	_, wrapped, err := crypto.ParseSymLockedAccessKey(content.WrappedDataKey())
	if err != nil {
		return nil, fmt.Errorf("drive: parse wrapped file data key: %w", err)
	}
	perFileKey, err := wrapped.Unlock(d.access.Keys().Data)
	if err != nil {
		return nil, err
	}

	out := make([]byte, 0, content.DataSize())
	for _, ref := range content.References() {
		raw, err := d.dataStore.Retrieve(ctx, ref.BlockCid)
		if err != nil {
			return nil, fmt.Errorf("drive: retrieve data block %s: %w", ref.BlockCid.String(), err)
		}
		_, blk, err := block.ParseWithMagic(raw)
		if err != nil {
			return nil, fmt.Errorf("drive: parse data block: %w", err)
		}
		for _, loc := range ref.Locs {
			chunk, err := blk.Chunk(int(loc.BlockIndex))
			if err != nil {
				return nil, err
			}
			plain, err := chunk.Decrypt(ref.Options, perFileKey)
			if err != nil {
				return nil, err
			}
			out = append(out, plain...)
		}
	}
	return out, nil
}
