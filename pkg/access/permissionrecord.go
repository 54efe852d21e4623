package access

import (
	"fmt"

	"github.com/banyancomputer/go-banyanfs/pkg/codec"
	"github.com/banyancomputer/go-banyanfs/pkg/crypto"
)

// lockedKeySize is the fixed wire width of one AsymLockedAccessKey, used
// to size every key slot so presence=0 slots can be zero-filled to the
// same length (§4.5: "facilitates constant-time parsing").
const lockedKeySize = codec.VerifyingKeySize + codec.NonceSize + crypto.AccessKeySize + codec.TagSize

// keySlotSize is presence(1) plus one AsymLockedAccessKey-sized region.
const keySlotSize = 1 + lockedKeySize

// PermissionRecordSize is the fixed wire width of one PermissionRecord:
// an ActorSettings record followed by three key slots. pkg/drive uses
// this to compute the encrypted header's total length from key_count
// alone, without a separate length prefix (§4.5, §4.6).
const PermissionRecordSize = ActorSettingsSize + 3*keySlotSize

// KeySlot is one of a PermissionRecord's three fixed-width key slots: a
// presence flag, and (if present) the permission key wrapped under this
// actor's verifying key (§4.5).
type KeySlot struct {
	Present bool
	Locked  crypto.AsymLockedAccessKey
}

// Encode appends the fixed-size wire form to dst: presence byte
// followed by lockedKeySize bytes, zero-filled when absent.
func (s KeySlot) Encode(dst []byte) []byte {
	if !s.Present {
		dst = append(dst, 0)
		return append(dst, make([]byte, lockedKeySize)...)
	}
	dst = append(dst, 1)
	return s.Locked.Encode(dst)
}

// ParseKeySlot reads a fixed-size KeySlot from buf.
func ParseKeySlot(buf []byte) ([]byte, KeySlot, error) {
	if len(buf) < keySlotSize {
		return buf, KeySlot{}, codec.NeedMore(buf, keySlotSize)
	}
	present := buf[0] != 0
	rest := buf[1:]
	if !present {
		return rest[lockedKeySize:], KeySlot{}, nil
	}
	_, locked, err := crypto.ParseAsymLockedAccessKey(rest[:lockedKeySize])
	if err != nil {
		return buf, KeySlot{}, err
	}
	return rest[lockedKeySize:], KeySlot{Present: true, Locked: locked}, nil
}

// PermissionRecord is one actor's entry in the drive's encrypted header:
// their settings followed by three fixed-width key slots, for
// filesystem, data, and maintenance keys respectively (§4.5).
type PermissionRecord struct {
	Settings    ActorSettings
	Filesystem  KeySlot
	Data        KeySlot
	Maintenance KeySlot
}

// BuildPermissionRecord wraps whichever of the three permission keys
// settings.AccessMask grants for this actor, under their verifying key.
func BuildPermissionRecord(rng ioReader, settings ActorSettings, keys PermissionKeys) (PermissionRecord, error) {
	rec := PermissionRecord{Settings: settings}

	lockIf := func(present bool, key crypto.AccessKey) (KeySlot, error) {
		if !present {
			return KeySlot{}, nil
		}
		locked, err := key.LockFor(rng, settings.VerifyingKey)
		if err != nil {
			return KeySlot{}, fmt.Errorf("access: lock permission key: %w", err)
		}
		return KeySlot{Present: true, Locked: locked}, nil
	}

	var err error
	if rec.Filesystem, err = lockIf(settings.AccessMask.FilesystemKey, keys.Filesystem); err != nil {
		return PermissionRecord{}, err
	}
	if rec.Data, err = lockIf(settings.AccessMask.DataKey, keys.Data); err != nil {
		return PermissionRecord{}, err
	}
	if rec.Maintenance, err = lockIf(settings.AccessMask.MaintenanceKey, keys.Maintenance); err != nil {
		return PermissionRecord{}, err
	}
	return rec, nil
}

// ioReader is the minimal io.Reader alias used so this file need not
// import io solely for a parameter type.
type ioReader = interface{ Read(p []byte) (int, error) }

// Encode appends the fixed-size wire form to dst.
func (r PermissionRecord) Encode(dst []byte) ([]byte, error) {
	dst, err := r.Settings.Encode(dst)
	if err != nil {
		return nil, err
	}
	dst = r.Filesystem.Encode(dst)
	dst = r.Data.Encode(dst)
	dst = r.Maintenance.Encode(dst)
	return dst, nil
}

// ParsePermissionRecord reads a fixed-size PermissionRecord from buf.
func ParsePermissionRecord(buf []byte) ([]byte, PermissionRecord, error) {
	rest, settings, err := ParseActorSettings(buf)
	if err != nil {
		return buf, PermissionRecord{}, err
	}
	rest, fs, err := ParseKeySlot(rest)
	if err != nil {
		return buf, PermissionRecord{}, err
	}
	rest, data, err := ParseKeySlot(rest)
	if err != nil {
		return buf, PermissionRecord{}, err
	}
	rest, maint, err := ParseKeySlot(rest)
	if err != nil {
		return buf, PermissionRecord{}, err
	}
	return rest, PermissionRecord{Settings: settings, Filesystem: fs, Data: data, Maintenance: maint}, nil
}

// Unlock derives this actor's three permission keys by unwrapping
// whichever key slots are present with signingKey (§4.5: "Any
// authorized actor derives its three permission keys ... by unwrapping
// each key slot with its signing key").
func (r PermissionRecord) Unlock(signingKey crypto.SigningKey) (PermissionKeys, error) {
	var keys PermissionKeys
	var err error
	if r.Filesystem.Present {
		if keys.Filesystem, err = r.Filesystem.Locked.Unlock(signingKey); err != nil {
			return PermissionKeys{}, err
		}
	}
	if r.Data.Present {
		if keys.Data, err = r.Data.Locked.Unlock(signingKey); err != nil {
			return PermissionKeys{}, err
		}
	}
	if r.Maintenance.Present {
		if keys.Maintenance, err = r.Maintenance.Locked.Unlock(signingKey); err != nil {
			return PermissionKeys{}, err
		}
	}
	return keys, nil
}
