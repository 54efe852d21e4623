package drive

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/banyancomputer/go-banyanfs/pkg/access"
	"github.com/banyancomputer/go-banyanfs/pkg/codec"
	"github.com/banyancomputer/go-banyanfs/pkg/crypto"
	"github.com/banyancomputer/go-banyanfs/pkg/driveconfig"
	"github.com/banyancomputer/go-banyanfs/pkg/node"
	"github.com/banyancomputer/go-banyanfs/pkg/store"
)

// loaderState names the DriveLoader's position in the byte stream, in
// the order fields appear on the wire (§4.6).
type loaderState int

const (
	stateIdentityHeader loaderState = iota
	stateFilesystemId
	statePublicSettings
	stateKeyCount
	stateEscrowedKeys
	stateEncryptedHeader
	statePrivateContent
	stateDataSegments
	stateDone
)

// DriveLoader drives a growable buffer through the drive image's byte
// layout, a state at a time, so a caller can feed it chunks as they
// arrive over a network or from disk rather than holding the whole
// image in memory at once (§4.6).
type DriveLoader struct {
	signingKey crypto.SigningKey
	dataStore  store.DataStore
	config     *driveconfig.Config

	state loaderState
	buf   []byte

	filesystemId   codec.FilesystemId
	publicSettings PublicSettings
	keyCount       int
	escrow         access.EscrowTable
	metaKey        access.MetaKey
	permRecords    []access.PermissionRecord
	contentOptions ContentOptions
	checkpoint     JournalCheckpoint
	keys           access.PermissionKeys
	arena          *node.Arena
}

// NewDriveLoader constructs a loader under driveconfig.DefaultConfig()
// that will unlock the image's escrow table and encrypted header with
// signingKey.
func NewDriveLoader(signingKey crypto.SigningKey, dataStore store.DataStore) *DriveLoader {
	return NewDriveLoaderWithConfig(signingKey, dataStore, driveconfig.DefaultConfig())
}

// NewDriveLoaderWithConfig is NewDriveLoader, honoring cfg.Strict for
// every reserved-bit-bearing field this loader parses.
func NewDriveLoaderWithConfig(signingKey crypto.SigningKey, dataStore store.DataStore, cfg *driveconfig.Config) *DriveLoader {
	if cfg == nil {
		cfg = driveconfig.DefaultConfig()
	}
	return &DriveLoader{signingKey: signingKey, dataStore: dataStore, config: cfg}
}

// FromReader reads r in 1 KiB chunks until the image is fully parsed,
// returning the assembled Drive.
func (l *DriveLoader) FromReader(r io.Reader) (*Drive, error) {
	chunk := make([]byte, 1024)
	for {
		n, readErr := r.Read(chunk)
		if n > 0 {
			if err := l.Feed(chunk[:n]); err != nil {
				return nil, err
			}
			if l.state == stateDone {
				return l.build()
			}
		}
		if readErr != nil {
			if readErr == io.EOF {
				if l.state == stateDone {
					return l.build()
				}
				return nil, fmt.Errorf("drive: stream ended before the image was fully parsed (state %d)", l.state)
			}
			return nil, readErr
		}
	}
}

// Feed appends chunk to the loader's buffer and advances as many
// states as the buffered bytes allow. It returns nil both when more
// bytes are needed and when parsing has finished; callers check State
// (or call FromReader, which does this for them).
func (l *DriveLoader) Feed(chunk []byte) error {
	l.buf = append(l.buf, chunk...)
	for {
		advanced, err := l.step()
		if err != nil {
			if codec.IsIncomplete(err) {
				return nil
			}
			return err
		}
		if !advanced {
			return nil
		}
	}
}

// State reports the loader's current position, mainly useful in tests
// asserting that a truncated feed stalls in the expected state.
func (l *DriveLoader) State() string {
	switch l.state {
	case stateIdentityHeader:
		return "IdentityHeader"
	case stateFilesystemId:
		return "FilesystemId"
	case statePublicSettings:
		return "PublicSettings"
	case stateKeyCount:
		return "KeyCount"
	case stateEscrowedKeys:
		return "EscrowedKeys"
	case stateEncryptedHeader:
		return "EncryptedHeader"
	case statePrivateContent:
		return "PrivateContent"
	case stateDataSegments:
		return "DataSegments"
	default:
		return "Done"
	}
}

func (l *DriveLoader) step() (bool, error) {
	switch l.state {
	case stateIdentityHeader:
		return l.stepIdentityHeader()
	case stateFilesystemId:
		return l.stepFilesystemId()
	case statePublicSettings:
		return l.stepPublicSettings()
	case stateKeyCount:
		return l.stepKeyCount()
	case stateEscrowedKeys:
		return l.stepEscrowedKeys()
	case stateEncryptedHeader:
		return l.stepEncryptedHeader()
	case statePrivateContent:
		return l.stepPrivateContent()
	case stateDataSegments:
		return l.stepDataSegments()
	default:
		return false, nil
	}
}

func (l *DriveLoader) stepIdentityHeader() (bool, error) {
	if len(l.buf) < identityHeaderSize {
		return false, codec.NeedMore(l.buf, identityHeaderSize)
	}
	if !bytes.Equal(l.buf[:4], Magic[:]) {
		return false, fmt.Errorf("drive: bad magic bytes")
	}
	if l.buf[4] != Version {
		return false, fmt.Errorf("drive: unsupported drive image version 0x%02x", l.buf[4])
	}
	l.buf = l.buf[identityHeaderSize:]
	l.state = stateFilesystemId
	return true, nil
}

func (l *DriveLoader) stepFilesystemId() (bool, error) {
	rest, id, err := codec.ParseFilesystemId(l.buf, l.config.Strict)
	if err != nil {
		return false, err
	}
	l.filesystemId = id
	l.buf = rest
	l.state = statePublicSettings
	return true, nil
}

func (l *DriveLoader) stepPublicSettings() (bool, error) {
	rest, ps, err := ParsePublicSettings(l.buf, l.config.Strict)
	if err != nil {
		return false, err
	}
	l.publicSettings = ps
	l.buf = rest
	l.state = stateKeyCount
	return true, nil
}

func (l *DriveLoader) stepKeyCount() (bool, error) {
	if len(l.buf) < 1 {
		return false, codec.NeedMore(l.buf, 1)
	}
	l.keyCount = int(l.buf[0])
	l.buf = l.buf[1:]
	l.state = stateEscrowedKeys
	return true, nil
}

func (l *DriveLoader) stepEscrowedKeys() (bool, error) {
	rest := l.buf
	records := make([]access.EscrowRecord, 0, l.keyCount)
	for i := 0; i < l.keyCount; i++ {
		next, rec, err := access.ParseEscrowRecord(rest)
		if err != nil {
			return false, err
		}
		rest = next
		records = append(records, rec)
	}
	l.escrow = access.EscrowTable{Records: records}
	l.buf = rest
	l.state = stateEncryptedHeader
	return true, nil
}

func (l *DriveLoader) stepEncryptedHeader() (bool, error) {
	plainLen := l.keyCount*access.PermissionRecordSize + contentOptionsSize + JournalCheckpointSize
	need := codec.NonceSize + plainLen + codec.TagSize
	if len(l.buf) < need {
		return false, codec.NeedMore(l.buf, need)
	}

	rest, nonce, err := codec.ParseNonce(l.buf)
	if err != nil {
		return false, err
	}
	ciphertext := make([]byte, plainLen)
	copy(ciphertext, rest[:plainLen])
	rest = rest[plainLen:]
	rest, tag, err := codec.ParseAuthenticationTag(rest)
	if err != nil {
		return false, err
	}

	metaKey, err := l.escrow.Unlock(l.signingKey)
	if err != nil {
		return false, NewAccessUnavailableError(err)
	}
	if err := metaKey.Decrypt(nonce, nil, ciphertext, tag); err != nil {
		return false, NewIncorrectKeyError(err)
	}
	l.metaKey = metaKey

	buf := ciphertext
	records := make([]access.PermissionRecord, 0, l.keyCount)
	for i := 0; i < l.keyCount; i++ {
		next, rec, err := access.ParsePermissionRecord(buf)
		if err != nil {
			return false, fmt.Errorf("drive: corrupt permission record: %w", err)
		}
		buf = next
		records = append(records, rec)
	}
	buf, opts, err := ParseContentOptions(buf, l.config.Strict)
	if err != nil {
		return false, err
	}
	_, checkpoint, err := ParseJournalCheckpoint(buf)
	if err != nil {
		return false, err
	}

	l.permRecords = records
	l.contentOptions = opts
	l.checkpoint = checkpoint
	l.buf = rest

	switch {
	case l.contentOptions.Filesystem:
		l.state = statePrivateContent
	case l.contentOptions.Data:
		l.state = stateDataSegments
	default:
		l.state = stateDone
	}
	return true, nil
}

func (l *DriveLoader) stepPrivateContent() (bool, error) {
	if len(l.buf) < 8 {
		return false, codec.NeedMore(l.buf, 8)
	}
	total := int(binary.BigEndian.Uint64(l.buf[:8]))
	if len(l.buf) < 8+total {
		return false, codec.NeedMore(l.buf, 8+total)
	}
	section := l.buf[8 : 8+total]
	l.buf = l.buf[8+total:]

	rest, nonce, err := codec.ParseNonce(section)
	if err != nil {
		return false, err
	}
	ciphertextLen := total - codec.NonceSize - codec.TagSize
	if ciphertextLen < 0 {
		return false, fmt.Errorf("drive: private content section shorter than nonce+tag overhead")
	}
	ciphertext := make([]byte, ciphertextLen)
	copy(ciphertext, rest[:ciphertextLen])
	rest = rest[ciphertextLen:]
	_, tag, err := codec.ParseAuthenticationTag(rest)
	if err != nil {
		return false, err
	}

	fsKey, err := l.unlockKeys()
	if err != nil {
		return false, err
	}
	if err := fsKey.Decrypt(nonce, nil, ciphertext, tag); err != nil {
		return false, NewIncorrectKeyError(err)
	}

	arena, err := parseNodesPreorder(ciphertext)
	if err != nil {
		return false, err
	}
	l.arena = arena

	if l.contentOptions.Data {
		l.state = stateDataSegments
	} else {
		l.state = stateDone
	}
	return true, nil
}

func (l *DriveLoader) stepDataSegments() (bool, error) {
	if len(l.buf) < 8 {
		return false, codec.NeedMore(l.buf, 8)
	}
	length := int(binary.BigEndian.Uint64(l.buf[:8]))
	if len(l.buf) < 8+length {
		return false, codec.NeedMore(l.buf, 8+length)
	}
	l.buf = l.buf[8+length:] // reserved; no writer currently emits data segments
	l.state = stateDone
	return true, nil
}

// unlockKeys finds the permission record belonging to the loader's own
// signing key and unwraps all three permission keys from it, returning
// the filesystem key (the one every subsequent state needs).
func (l *DriveLoader) unlockKeys() (crypto.AccessKey, error) {
	ownId := l.signingKey.VerifyingKey().ActorId()
	for _, rec := range l.permRecords {
		if rec.Settings.ActorId() != ownId {
			continue
		}
		if !rec.Filesystem.Present {
			return crypto.AccessKey{}, NewAccessUnavailableError(access.ErrAccessUnavailable)
		}
		keys, err := rec.Unlock(l.signingKey)
		if err != nil {
			return crypto.AccessKey{}, NewIncorrectKeyError(err)
		}
		l.keys = keys
		return keys.Filesystem, nil
	}
	return crypto.AccessKey{}, NewAccessUnavailableError(access.ErrAccessUnavailable)
}

// parseNodesPreorder reverses encodeNodesPreorder: it reads node records
// until buf is exhausted, inserting each into a fresh Arena in the
// order encountered. The first node read is always the root, since
// Encode's preorder walk starts there (§4.6).
func parseNodesPreorder(buf []byte) (*node.Arena, error) {
	arena := node.NewArena()
	first := true
	for len(buf) > 0 {
		rest, n, err := node.ParseNode(buf)
		if err != nil {
			return nil, fmt.Errorf("drive: parse node graph: %w", err)
		}
		slot := arena.Insert(n)
		if first {
			arena.SetRoot(slot)
			first = false
		}
		buf = rest
	}
	if first {
		return nil, fmt.Errorf("drive: encrypted node graph is empty")
	}
	if err := linkParents(arena); err != nil {
		return nil, err
	}
	return arena, nil
}

// linkParents restores parent_id links the wire format doesn't carry
// (ParseNode always sets them to noParent): it walks the arena from the
// root, and for every directory, sets each child map entry's resolved
// node's parent slot to that directory. The root's own parent is left
// unset. Without this, Mv/Rm/".." on a reloaded drive see every
// non-root node as parentless (invariant: every non-root node's
// parent_id resolves).
func linkParents(arena *node.Arena) error {
	return linkChildren(arena, arena.Root())
}

func linkChildren(arena *node.Arena, dirSlot node.Slot) error {
	dir, err := arena.Get(dirSlot)
	if err != nil {
		return err
	}
	if !dir.IsDirectory() {
		return nil
	}
	for _, item := range dir.Children().ItemsByPermanentId() {
		childSlot, ok := arena.Resolve(item.Entry.PermanentId)
		if !ok {
			return fmt.Errorf("drive: child map entry does not resolve to a node")
		}
		child, err := arena.Get(childSlot)
		if err != nil {
			return err
		}
		child.SetParent(dirSlot)
		if err := linkChildren(arena, childSlot); err != nil {
			return err
		}
	}
	return nil
}

func (l *DriveLoader) build() (*Drive, error) {
	if l.arena == nil {
		return nil, fmt.Errorf("drive: image has no node graph (content_options.filesystem is false)")
	}
	da := access.NewDriveAccess()
	for _, rec := range l.permRecords {
		da.Put(rec.Settings)
	}
	da.SetKeys(l.keys)

	return &Drive{
		filesystemId:   l.filesystemId,
		private:        l.publicSettings.Private,
		contentOptions: l.contentOptions,
		metaKey:        l.metaKey,
		access:         da,
		arena:          l.arena,
		checkpoint:     l.checkpoint,
		dataStore:      l.dataStore,
		signingKey:     l.signingKey,
		config:         l.config,
	}, nil
}
