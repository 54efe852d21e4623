package block

import (
	"bytes"
	"crypto/rand"
	"testing"

	"github.com/banyancomputer/go-banyanfs/pkg/crypto"
)

func TestDataOptionsProfiles(t *testing.T) {
	small := SmallDataOptions()
	if small.ChunkCount() != 2 {
		t.Fatalf("small chunk count = %d, want 2", small.ChunkCount())
	}
	if small.ChunkSize() != 4096 {
		t.Fatalf("small chunk size = %d, want 4096", small.ChunkSize())
	}

	standard := StandardDataOptions()
	if standard.ChunkCount() != 16 {
		t.Fatalf("standard chunk count = %d, want 16", standard.ChunkCount())
	}
	if standard.ChunkSize() != 1<<20 {
		t.Fatalf("standard chunk size = %d, want %d", standard.ChunkSize(), 1<<20)
	}
}

func TestDataOptionsEncodeParseRoundTrip(t *testing.T) {
	for _, opts := range []DataOptions{SmallDataOptions(), StandardDataOptions()} {
		buf := opts.Encode(nil)
		if len(buf) != DataOptionsSize {
			t.Fatalf("encoded length = %d, want %d", len(buf), DataOptionsSize)
		}
		rest, parsed, err := ParseDataOptions(buf)
		if err != nil {
			t.Fatalf("ParseDataOptions: %v", err)
		}
		if len(rest) != 0 {
			t.Fatalf("leftover bytes: %d", len(rest))
		}
		if parsed != opts {
			t.Fatalf("parsed = %+v, want %+v", parsed, opts)
		}
	}
}

func TestDataBlockFullness(t *testing.T) {
	key, err := crypto.GenerateAccessKey(rand.Reader)
	if err != nil {
		t.Fatalf("GenerateAccessKey: %v", err)
	}
	b := Small()

	if got := b.RemainingSpace(); got != 2*b.Options().ChunkDataSize() {
		t.Fatalf("RemainingSpace before any push = %d, want %d", got, 2*b.Options().ChunkDataSize())
	}

	for i := 0; i < 2; i++ {
		chunk, err := EncryptChunk(rand.Reader, b.Options(), key, []byte("hello"))
		if err != nil {
			t.Fatalf("EncryptChunk: %v", err)
		}
		if _, err := b.PushChunk(chunk); err != nil {
			t.Fatalf("PushChunk %d: %v", i, err)
		}
	}

	if !b.IsFull() {
		t.Fatalf("block should be full after 2 pushes")
	}

	chunk, err := EncryptChunk(rand.Reader, b.Options(), key, []byte("overflow"))
	if err != nil {
		t.Fatalf("EncryptChunk: %v", err)
	}
	if _, err := b.PushChunk(chunk); err != ErrFull {
		t.Fatalf("expected ErrFull, got %v", err)
	}
}

func TestDataBlockEncodeParseRoundTrip(t *testing.T) {
	key, err := crypto.GenerateAccessKey(rand.Reader)
	if err != nil {
		t.Fatalf("GenerateAccessKey: %v", err)
	}
	b := Small()

	payloads := [][]byte{[]byte("first chunk payload"), []byte("second chunk payload")}
	for _, p := range payloads {
		chunk, err := EncryptChunk(rand.Reader, b.Options(), key, p)
		if err != nil {
			t.Fatalf("EncryptChunk: %v", err)
		}
		if _, err := b.PushChunk(chunk); err != nil {
			t.Fatalf("PushChunk: %v", err)
		}
	}

	var buf bytes.Buffer
	n, cids, err := b.Encode(rand.Reader, &buf)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if n != buf.Len() {
		t.Fatalf("Encode returned %d, buffer has %d", n, buf.Len())
	}
	if len(cids) != int(b.Options().ChunkCount()) {
		t.Fatalf("got %d chunk cids, want %d", len(cids), b.Options().ChunkCount())
	}

	cid, err := b.CID()
	if err != nil {
		t.Fatalf("CID: %v", err)
	}

	rest, parsed, err := ParseWithMagic(buf.Bytes())
	if err != nil {
		t.Fatalf("ParseWithMagic: %v", err)
	}
	if len(rest) != 0 {
		t.Fatalf("leftover bytes: %d", len(rest))
	}

	parsedCid, err := parsed.CID()
	if err != nil {
		t.Fatalf("parsed CID: %v", err)
	}
	if parsedCid != cid {
		t.Fatalf("parsed cid = %s, want %s", parsedCid, cid)
	}

	for i, want := range payloads {
		chunk, err := parsed.Chunk(i)
		if err != nil {
			t.Fatalf("Chunk(%d): %v", i, err)
		}
		got, err := chunk.Decrypt(parsed.Options(), key)
		if err != nil {
			t.Fatalf("Decrypt(%d): %v", i, err)
		}
		if !bytes.Equal(got, want) {
			t.Fatalf("chunk %d decrypted = %q, want %q", i, got, want)
		}
	}
}

func TestDataBlockCIDNotAvailableBeforeEncode(t *testing.T) {
	b := Small()
	if _, err := b.CID(); err != ErrEncodingRequired {
		t.Fatalf("expected ErrEncodingRequired, got %v", err)
	}
}

func TestDataBlockCIDDeterministic(t *testing.T) {
	key, err := crypto.GenerateAccessKey(rand.Reader)
	if err != nil {
		t.Fatalf("GenerateAccessKey: %v", err)
	}

	seed := bytes.Repeat([]byte{0x42}, 4096)

	build := func() (string, error) {
		b := Small()
		for i := 0; i < 2; i++ {
			chunk, err := EncryptChunk(bytes.NewReader(seed), b.Options(), key, []byte("payload"))
			if err != nil {
				return "", err
			}
			if _, err := b.PushChunk(chunk); err != nil {
				return "", err
			}
		}
		var buf bytes.Buffer
		if _, _, err := b.Encode(bytes.NewReader(seed), &buf); err != nil {
			return "", err
		}
		cid, err := b.CID()
		if err != nil {
			return "", err
		}
		return cid.String(), nil
	}

	first, err := build()
	if err != nil {
		t.Fatalf("first build: %v", err)
	}
	second, err := build()
	if err != nil {
		t.Fatalf("second build: %v", err)
	}
	if first != second {
		t.Fatalf("block CID not deterministic: %s != %s", first, second)
	}
}
