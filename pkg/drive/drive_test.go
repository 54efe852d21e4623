package drive

import (
	"bytes"
	"context"
	"crypto/rand"
	"testing"

	"github.com/banyancomputer/go-banyanfs/pkg/crypto"
	"github.com/banyancomputer/go-banyanfs/pkg/store"
)

func newTestDrive(t *testing.T) (*Drive, crypto.SigningKey) {
	t.Helper()
	sk, err := crypto.GenerateSigningKey(rand.Reader)
	if err != nil {
		t.Fatalf("GenerateSigningKey: %v", err)
	}
	d, err := InitializePrivate(rand.Reader, sk, store.NewMemoryDataStore())
	if err != nil {
		t.Fatalf("InitializePrivate: %v", err)
	}
	return d, sk
}

func TestWriteThenReadOwnWrites(t *testing.T) {
	d, _ := newTestDrive(t)
	ctx := context.Background()
	root := d.Root()

	if err := root.Write(ctx, rand.Reader, []string{"hello.txt"}, []byte("hello world")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	got, err := root.Read(ctx, []string{"hello.txt"})
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(got) != "hello world" {
		t.Fatalf("Read = %q, want %q", got, "hello world")
	}

	items, err := root.Ls(nil)
	if err != nil {
		t.Fatalf("Ls: %v", err)
	}
	if len(items) != 1 || items[0].Name.String() != "hello.txt" {
		t.Fatalf("Ls = %+v, want one entry named hello.txt", items)
	}
}

func TestMkdirAndNestedWrite(t *testing.T) {
	d, _ := newTestDrive(t)
	ctx := context.Background()
	root := d.Root()

	sub, err := root.Mkdir([]string{"docs"}, false)
	if err != nil {
		t.Fatalf("Mkdir: %v", err)
	}
	if err := sub.Write(ctx, rand.Reader, []string{"readme.md"}, []byte("notes")); err != nil {
		t.Fatalf("Write into subdir: %v", err)
	}
	got, err := root.Read(ctx, []string{"docs", "readme.md"})
	if err != nil {
		t.Fatalf("Read via root-relative path: %v", err)
	}
	if string(got) != "notes" {
		t.Fatalf("Read = %q, want %q", got, "notes")
	}

	if sameDir, err := root.Mkdir([]string{"docs"}, false); err != nil {
		t.Fatalf("Mkdir over existing directory should succeed idempotently: %v", err)
	} else if sameDir.Slot() != sub.Slot() {
		t.Fatalf("Mkdir over existing directory returned a different slot")
	}

	if _, err := root.Mkdir([]string{"docs", "readme.md"}, false); err == nil {
		t.Fatalf("Mkdir over an existing file should fail")
	} else if de, ok := err.(*DriveError); !ok || de.Code != CodeNotADirectory {
		t.Fatalf("Mkdir over existing file error = %v, want NOT_A_DIRECTORY", err)
	}
}

// TestMkdirRecursiveFromFreshRoot exercises the initialize + read-own-writes
// scenario directly: mkdir(["testing","poem"], recursive=true) from a root
// where neither "testing" nor "poem" exists yet.
func TestMkdirRecursiveFromFreshRoot(t *testing.T) {
	d, _ := newTestDrive(t)
	ctx := context.Background()
	root := d.Root()

	poem, err := root.Mkdir([]string{"testing", "poem"}, true)
	if err != nil {
		t.Fatalf("Mkdir recursive: %v", err)
	}
	if err := poem.Write(ctx, rand.Reader, []string{"p.txt"}, []byte("hello")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	got, err := root.Read(ctx, []string{"testing", "poem", "p.txt"})
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(got) != "hello" {
		t.Fatalf("Read = %q, want %q", got, "hello")
	}
}

// TestMkdirNonRecursiveRequiresAncestors matches mkdir's non-recursive
// exception: only the final component may be missing.
func TestMkdirNonRecursiveRequiresAncestors(t *testing.T) {
	d, _ := newTestDrive(t)
	root := d.Root()

	if _, err := root.Mkdir([]string{"testing", "poem"}, false); err == nil {
		t.Fatalf("non-recursive Mkdir with a missing ancestor should fail")
	} else if de, ok := err.(*DriveError); !ok || de.Code != CodePathNotFound {
		t.Fatalf("err = %v, want PATH_NOT_FOUND", err)
	}

	if _, err := root.Mkdir([]string{"testing"}, false); err != nil {
		t.Fatalf("Mkdir testing: %v", err)
	}
	if _, err := root.Mkdir([]string{"testing", "poem"}, false); err != nil {
		t.Fatalf("non-recursive Mkdir with only the final component missing should succeed: %v", err)
	}
}

func TestMvPreservesPermanentIdAndContent(t *testing.T) {
	d, _ := newTestDrive(t)
	ctx := context.Background()
	root := d.Root()

	if err := root.Write(ctx, rand.Reader, []string{"a.txt"}, []byte("payload")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if _, err := root.Mkdir([]string{"archive"}, false); err != nil {
		t.Fatalf("Mkdir: %v", err)
	}

	before, err := root.Ls(nil)
	if err != nil {
		t.Fatalf("Ls: %v", err)
	}
	var beforeId interface{}
	for _, item := range before {
		if item.Name.String() == "a.txt" {
			beforeId = item.Entry.PermanentId
		}
	}

	if err := root.Mv([]string{"a.txt"}, []string{"archive", "a.txt"}); err != nil {
		t.Fatalf("Mv: %v", err)
	}

	if _, err := root.Read(ctx, []string{"a.txt"}); err == nil {
		t.Fatalf("a.txt should no longer exist at the old path")
	}
	got, err := root.Read(ctx, []string{"archive", "a.txt"})
	if err != nil {
		t.Fatalf("Read moved file: %v", err)
	}
	if string(got) != "payload" {
		t.Fatalf("Read moved file = %q, want %q", got, "payload")
	}

	afterItems, err := root.Ls([]string{"archive"})
	if err != nil {
		t.Fatalf("Ls archive: %v", err)
	}
	var afterId interface{}
	for _, item := range afterItems {
		if item.Name.String() == "a.txt" {
			afterId = item.Entry.PermanentId
		}
	}
	if beforeId != afterId {
		t.Fatalf("Mv changed permanent id: before %v after %v", beforeId, afterId)
	}
}

func TestRmRemovesSubtree(t *testing.T) {
	d, _ := newTestDrive(t)
	ctx := context.Background()
	root := d.Root()

	sub, err := root.Mkdir([]string{"tmp"}, false)
	if err != nil {
		t.Fatalf("Mkdir: %v", err)
	}
	if err := sub.Write(ctx, rand.Reader, []string{"f.txt"}, []byte("x")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := root.Rm([]string{"tmp"}); err != nil {
		t.Fatalf("Rm: %v", err)
	}
	if _, err := root.Read(ctx, []string{"tmp", "f.txt"}); err == nil {
		t.Fatalf("file under removed directory should be unreachable")
	}
	items, err := root.Ls(nil)
	if err != nil {
		t.Fatalf("Ls: %v", err)
	}
	if len(items) != 0 {
		t.Fatalf("Ls after Rm = %+v, want empty", items)
	}
}

func TestEncodeDecodeRoundTripEverything(t *testing.T) {
	d, sk := newTestDrive(t)
	ctx := context.Background()
	root := d.Root()

	if err := root.Write(ctx, rand.Reader, []string{"a.txt"}, []byte("small file")); err != nil {
		t.Fatalf("Write a.txt: %v", err)
	}
	big := bytes.Repeat([]byte{0x42}, 5000)
	if err := root.Write(ctx, rand.Reader, []string{"b.bin"}, big); err != nil {
		t.Fatalf("Write b.bin: %v", err)
	}
	if _, err := root.Mkdir([]string{"sub"}, false); err != nil {
		t.Fatalf("Mkdir: %v", err)
	}

	d.SetContentOptions(Everything())

	var buf bytes.Buffer
	if err := d.Encode(rand.Reader, &buf); err != nil {
		t.Fatalf("Encode: %v", err)
	}

	loaded, err := NewDriveLoader(sk, d.dataStore).FromReader(bytes.NewReader(buf.Bytes()))
	if err != nil {
		t.Fatalf("FromReader: %v", err)
	}

	loadedRoot := loaded.Root()
	gotA, err := loadedRoot.Read(ctx, []string{"a.txt"})
	if err != nil {
		t.Fatalf("Read a.txt after reload: %v", err)
	}
	if string(gotA) != "small file" {
		t.Fatalf("a.txt = %q, want %q", gotA, "small file")
	}
	gotB, err := loadedRoot.Read(ctx, []string{"b.bin"})
	if err != nil {
		t.Fatalf("Read b.bin after reload: %v", err)
	}
	if !bytes.Equal(gotB, big) {
		t.Fatalf("b.bin round trip mismatch: got %d bytes, want %d", len(gotB), len(big))
	}
	items, err := loadedRoot.Ls(nil)
	if err != nil {
		t.Fatalf("Ls after reload: %v", err)
	}
	if len(items) != 3 {
		t.Fatalf("Ls after reload = %+v, want 3 entries", items)
	}
}

// TestMvAndRmAfterReload covers the move-preserves-content scenario on a
// drive that has round-tripped through Encode/FromReader, so it only
// passes if the loader reconstructs parent_id links: Mv and Rm both
// require the moved/removed node to resolve its parent slot.
func TestMvAndRmAfterReload(t *testing.T) {
	d, sk := newTestDrive(t)
	ctx := context.Background()
	root := d.Root()

	poem, err := root.Mkdir([]string{"testing", "poem"}, true)
	if err != nil {
		t.Fatalf("Mkdir: %v", err)
	}
	if err := poem.Write(ctx, rand.Reader, []string{"p.txt"}, []byte("hello")); err != nil {
		t.Fatalf("Write: %v", err)
	}

	d.SetContentOptions(Everything())
	var buf bytes.Buffer
	if err := d.Encode(rand.Reader, &buf); err != nil {
		t.Fatalf("Encode: %v", err)
	}
	loaded, err := NewDriveLoader(sk, d.dataStore).FromReader(bytes.NewReader(buf.Bytes()))
	if err != nil {
		t.Fatalf("FromReader: %v", err)
	}
	loadedRoot := loaded.Root()

	if _, err := loadedRoot.Mkdir([]string{"archive"}, false); err != nil {
		t.Fatalf("Mkdir archive after reload: %v", err)
	}
	if err := loadedRoot.Mv([]string{"testing", "poem"}, []string{"archive", "poem"}); err != nil {
		t.Fatalf("Mv after reload: %v", err)
	}
	items, err := loadedRoot.Ls([]string{"archive", "poem"})
	if err != nil {
		t.Fatalf("Ls archive after reload: %v", err)
	}
	if len(items) != 1 || items[0].Name.String() != "p.txt" {
		t.Fatalf("Ls archive = %+v, want one entry named p.txt", items)
	}
	got, err := loadedRoot.Read(ctx, []string{"archive", "poem", "p.txt"})
	if err != nil {
		t.Fatalf("Read moved file after reload: %v", err)
	}
	if string(got) != "hello" {
		t.Fatalf("Read = %q, want %q", got, "hello")
	}

	if err := loadedRoot.Rm([]string{"archive"}); err != nil {
		t.Fatalf("Rm after reload: %v", err)
	}
	if items, err := loadedRoot.Ls(nil); err != nil {
		t.Fatalf("Ls root after reload: %v", err)
	} else if len(items) != 1 || items[0].Name.String() != "testing" {
		t.Fatalf("Ls root after Rm = %+v, want only testing", items)
	}
}

func TestUnauthorizedReaderGetsAccessUnavailable(t *testing.T) {
	d, _ := newTestDrive(t)
	ctx := context.Background()
	root := d.Root()
	if err := root.Write(ctx, rand.Reader, []string{"secret.txt"}, []byte("shh")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	d.SetContentOptions(Everything())

	var buf bytes.Buffer
	if err := d.Encode(rand.Reader, &buf); err != nil {
		t.Fatalf("Encode: %v", err)
	}

	stranger, err := crypto.GenerateSigningKey(rand.Reader)
	if err != nil {
		t.Fatalf("GenerateSigningKey: %v", err)
	}
	_, err = NewDriveLoader(stranger, d.dataStore).FromReader(bytes.NewReader(buf.Bytes()))
	if err == nil {
		t.Fatalf("expected an unauthorized signing key to fail loading the drive")
	}
	de, ok := err.(*DriveError)
	if !ok || de.Code != CodeAccessUnavailable {
		t.Fatalf("err = %v, want ACCESS_UNAVAILABLE", err)
	}
}

func TestMkdirNameValidation(t *testing.T) {
	d, _ := newTestDrive(t)
	root := d.Root()

	t.Run("ReservedDirectoryTraversal", func(t *testing.T) {
		_, err := root.Mkdir([]string{"../escape"}, false)
		de, ok := err.(*DriveError)
		if !ok || de.Code != CodeReservedDirectoryTraversal {
			t.Fatalf("err = %v, want RESERVED_DIRECTORY_TRAVERSAL", err)
		}
	})

	t.Run("NameIsEmpty", func(t *testing.T) {
		_, err := root.Mkdir([]string{""}, false)
		de, ok := err.(*DriveError)
		if !ok || de.Code != CodeNameIsEmpty {
			t.Fatalf("err = %v, want NAME_IS_EMPTY", err)
		}
	})

	t.Run("TooLong", func(t *testing.T) {
		_, err := root.Mkdir([]string{string(bytes.Repeat([]byte{'a'}, 256))}, false)
		de, ok := err.(*DriveError)
		if !ok || de.Code != CodeTooLong {
			t.Fatalf("err = %v, want TOO_LONG", err)
		}
	})
}
