package access

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sort"

	"github.com/banyancomputer/go-banyanfs/pkg/codec"
	"github.com/banyancomputer/go-banyanfs/pkg/crypto"
)

// MetaKey is the single random AccessKey the drive escrows, once per
// authorized actor, so every authorized actor can eventually derive the
// three permission keys (§3, §4.5).
type MetaKey = crypto.AccessKey

// ErrAccessUnavailable is returned when none of the loader's escrow
// records could be unwrapped with the loader's own signing key (§4.5,
// §6).
var ErrAccessUnavailable = errors.New("access: no escrow record unlocks with this signing key")

// escrowRecordSize is KeyId(2) + AsymLockedAccessKey's fixed wire width.
const escrowRecordSize = codec.KeyIdSize + codec.VerifyingKeySize + codec.NonceSize + crypto.AccessKeySize + codec.TagSize

// EscrowRecord is one `(KeyId | AsymLockedAccessKey)` entry in the
// drive's escrow table: the meta key wrapped for one authorized actor
// (§4.5).
type EscrowRecord struct {
	KeyId  codec.KeyId
	Locked crypto.AsymLockedAccessKey
}

// Encode appends the fixed-size wire form to dst.
func (r EscrowRecord) Encode(dst []byte) []byte {
	dst = r.KeyId.Encode(dst)
	return r.Locked.Encode(dst)
}

// ParseEscrowRecord reads a fixed-size EscrowRecord from buf.
func ParseEscrowRecord(buf []byte) ([]byte, EscrowRecord, error) {
	if len(buf) < escrowRecordSize {
		return buf, EscrowRecord{}, codec.NeedMore(buf, escrowRecordSize)
	}
	rest, keyId, err := codec.ParseKeyId(buf)
	if err != nil {
		return buf, EscrowRecord{}, err
	}
	rest, locked, err := crypto.ParseAsymLockedAccessKey(rest)
	if err != nil {
		return buf, EscrowRecord{}, err
	}
	return rest, EscrowRecord{KeyId: keyId, Locked: locked}, nil
}

// EscrowTable is the drive's full set of escrow records, sorted by
// KeyId ascending on the wire (§4.5).
type EscrowTable struct {
	Records []EscrowRecord
}

// BuildEscrowTable wraps metaKey for every authorized actor in
// settings, producing a table sorted by KeyId (§4.5).
func BuildEscrowTable(rng io.Reader, metaKey MetaKey, settings []ActorSettings) (EscrowTable, error) {
	records := make([]EscrowRecord, 0, len(settings))
	for _, s := range settings {
		locked, err := metaKey.LockFor(rng, s.VerifyingKey)
		if err != nil {
			return EscrowTable{}, fmt.Errorf("access: escrow meta key for actor: %w", err)
		}
		records = append(records, EscrowRecord{KeyId: s.ActorId().KeyId(), Locked: locked})
	}
	sort.Slice(records, func(i, j int) bool { return records[i].KeyId.Less(records[j].KeyId) })
	return EscrowTable{Records: records}, nil
}

// Encode writes the record count (u16) followed by each EscrowRecord in
// table order. This self-describing form is a standalone round-trip
// helper; the drive image wire format never calls it, since it already
// carries its own u8 key_count ahead of the escrow section (§4.6) and
// encodes records directly via EscrowRecord.Encode to avoid a second,
// divergent count prefix.
func (t EscrowTable) Encode(dst []byte) ([]byte, error) {
	if len(t.Records) > 0xFFFF {
		return nil, fmt.Errorf("access: escrow table has %d records, exceeds u16 max", len(t.Records))
	}
	var count [2]byte
	binary.LittleEndian.PutUint16(count[:], uint16(len(t.Records)))
	dst = append(dst, count[:]...)
	for _, r := range t.Records {
		dst = r.Encode(dst)
	}
	return dst, nil
}

// ParseEscrowTable reads an EscrowTable from buf.
func ParseEscrowTable(buf []byte) ([]byte, EscrowTable, error) {
	if len(buf) < 2 {
		return buf, EscrowTable{}, codec.NeedMore(buf, 2)
	}
	count := int(binary.LittleEndian.Uint16(buf[:2]))
	rest := buf[2:]
	records := make([]EscrowRecord, 0, count)
	for i := 0; i < count; i++ {
		next, rec, err := ParseEscrowRecord(rest)
		if err != nil {
			return buf, EscrowTable{}, err
		}
		rest = next
		records = append(records, rec)
	}
	return rest, EscrowTable{Records: records}, nil
}

// Unlock tries every record whose KeyId matches signingKey's own key id,
// attempting to unwrap the meta key with signingKey until one succeeds.
// Returns ErrAccessUnavailable if every attempt fails (§4.5).
func (t EscrowTable) Unlock(signingKey crypto.SigningKey) (MetaKey, error) {
	ownKeyId := signingKey.VerifyingKey().ActorId().KeyId()
	for _, r := range t.Records {
		if r.KeyId != ownKeyId {
			continue
		}
		key, err := r.Locked.Unlock(signingKey)
		if err == nil {
			return key, nil
		}
	}
	return MetaKey{}, ErrAccessUnavailable
}
