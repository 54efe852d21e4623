// Package node implements the BanyanFS in-memory node graph (§3, §4.4):
// typed filesystem nodes addressed by permanent id, held in an arena, with
// deterministic child-map and metadata encoding.
package node

import "github.com/banyancomputer/go-banyanfs/pkg/codec"

const (
	filePermOwnerWriteOnly byte = 0b0000_0001
	filePermImmutable      byte = 0b0000_0010
	filePermExecutable     byte = 0b0000_0100
	filePermReservedMask   byte = 0b1111_1000
)

// FilePermissions is the single-byte permission set carried by a File
// node (§3).
type FilePermissions struct {
	OwnerWriteOnly bool
	Immutable      bool
	Executable     bool
}

// Encode appends the one-byte wire form to dst.
func (p FilePermissions) Encode(dst []byte) []byte {
	var b byte
	if p.OwnerWriteOnly {
		b |= filePermOwnerWriteOnly
	}
	if p.Immutable {
		b |= filePermImmutable
	}
	if p.Executable {
		b |= filePermExecutable
	}
	return append(dst, b)
}

// ParseFilePermissions reads a FilePermissions byte from buf. Under
// strict mode reserved bits must be zero; otherwise they are silently
// dropped (§4.1).
func ParseFilePermissions(buf []byte, strict bool) ([]byte, FilePermissions, error) {
	if len(buf) < 1 {
		return buf, FilePermissions{}, codec.NeedMore(buf, 1)
	}
	b := buf[0]
	if strict {
		if err := codec.CheckReservedBits(b, filePermReservedMask, "FilePermissions"); err != nil {
			return buf, FilePermissions{}, err
		}
	} else {
		b = codec.MaskReservedBits(b, filePermReservedMask)
	}
	return buf[1:], FilePermissions{
		OwnerWriteOnly: b&filePermOwnerWriteOnly != 0,
		Immutable:      b&filePermImmutable != 0,
		Executable:     b&filePermExecutable != 0,
	}, nil
}

const (
	dirPermOwnerWriteOnly byte = 0b0000_0001
	dirPermImmutable      byte = 0b0000_0010
	dirPermReservedMask   byte = 0b1111_1100
)

// DirectoryPermissions is the single-byte permission set carried by a
// Directory node (§3).
type DirectoryPermissions struct {
	OwnerWriteOnly bool
	Immutable      bool
}

// Encode appends the one-byte wire form to dst.
func (p DirectoryPermissions) Encode(dst []byte) []byte {
	var b byte
	if p.OwnerWriteOnly {
		b |= dirPermOwnerWriteOnly
	}
	if p.Immutable {
		b |= dirPermImmutable
	}
	return append(dst, b)
}

// ParseDirectoryPermissions reads a DirectoryPermissions byte from buf.
func ParseDirectoryPermissions(buf []byte, strict bool) ([]byte, DirectoryPermissions, error) {
	if len(buf) < 1 {
		return buf, DirectoryPermissions{}, codec.NeedMore(buf, 1)
	}
	b := buf[0]
	if strict {
		if err := codec.CheckReservedBits(b, dirPermReservedMask, "DirectoryPermissions"); err != nil {
			return buf, DirectoryPermissions{}, err
		}
	} else {
		b = codec.MaskReservedBits(b, dirPermReservedMask)
	}
	return buf[1:], DirectoryPermissions{
		OwnerWriteOnly: b&dirPermOwnerWriteOnly != 0,
		Immutable:      b&dirPermImmutable != 0,
	}, nil
}
