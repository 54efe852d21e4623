// Package access implements the BanyanFS per-actor access model and key
// escrow of §3 and §4.5: access masks, actor settings, the drive's meta
// key, and the per-actor escrow table that wraps it.
package access

import "github.com/banyancomputer/go-banyanfs/pkg/codec"

const (
	maskProtected      byte = 0b1000_0000
	maskOwner          byte = 0b0100_0000
	maskHistorical     byte = 0b0010_0000
	maskReserved       byte = 0b0001_1000
	maskFilesystemKey  byte = 0b0000_0100
	maskDataKey        byte = 0b0000_0010
	maskMaintenanceKey byte = 0b0000_0001
)

// AccessMask is the one-byte per-actor capability bitfield: protected,
// owner, historical, two reserved bits, and three key-present bits
// (filesystem, data, maintenance) (§3, §4.5).
type AccessMask struct {
	Protected       bool
	Owner           bool
	Historical      bool
	FilesystemKey   bool
	DataKey         bool
	MaintenanceKey  bool
}

// FullAccess returns a mask with all three key-present bits set.
func FullAccess() AccessMask {
	return AccessMask{FilesystemKey: true, DataKey: true, MaintenanceKey: true}
}

// ReadOnlyAccess returns a mask with only the filesystem key present.
func ReadOnlyAccess() AccessMask {
	return AccessMask{FilesystemKey: true}
}

// CanRead reports whether this mask grants read access: the filesystem
// key is present and the actor is not historical (§4.5).
func (m AccessMask) CanRead() bool {
	return m.FilesystemKey && !m.Historical
}

// CanWrite reports whether this mask grants write access: all three key
// bits are present and the actor is not historical (§4.5).
func (m AccessMask) CanWrite() bool {
	return m.FilesystemKey && m.DataKey && m.MaintenanceKey && !m.Historical
}

// Encode appends the one-byte wire form to dst.
func (m AccessMask) Encode(dst []byte) []byte {
	var b byte
	if m.Protected {
		b |= maskProtected
	}
	if m.Owner {
		b |= maskOwner
	}
	if m.Historical {
		b |= maskHistorical
	}
	if m.FilesystemKey {
		b |= maskFilesystemKey
	}
	if m.DataKey {
		b |= maskDataKey
	}
	if m.MaintenanceKey {
		b |= maskMaintenanceKey
	}
	return append(dst, b)
}

// ParseAccessMask reads an AccessMask byte from buf. Under strict mode
// the two reserved bits must be zero; otherwise they are silently
// dropped (§4.1).
func ParseAccessMask(buf []byte, strict bool) ([]byte, AccessMask, error) {
	if len(buf) < 1 {
		return buf, AccessMask{}, codec.NeedMore(buf, 1)
	}
	b := buf[0]
	if strict {
		if err := codec.CheckReservedBits(b, maskReserved, "AccessMask"); err != nil {
			return buf, AccessMask{}, err
		}
	} else {
		b = codec.MaskReservedBits(b, maskReserved)
	}
	return buf[1:], AccessMask{
		Protected:      b&maskProtected != 0,
		Owner:          b&maskOwner != 0,
		Historical:     b&maskHistorical != 0,
		FilesystemKey:  b&maskFilesystemKey != 0,
		DataKey:        b&maskDataKey != 0,
		MaintenanceKey: b&maskMaintenanceKey != 0,
	}, nil
}
