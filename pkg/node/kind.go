package node

import (
	"fmt"

	"github.com/banyancomputer/go-banyanfs/pkg/codec"
)

// Kind tags which of the three node shapes a Node carries (§3, §4.4).
type Kind byte

const (
	KindFile           Kind = 0x00
	KindAssociatedData Kind = 0x01
	KindDirectory      Kind = 0x02
)

func (k Kind) String() string {
	switch k {
	case KindFile:
		return "File"
	case KindAssociatedData:
		return "AssociatedData"
	case KindDirectory:
		return "Directory"
	default:
		return fmt.Sprintf("Kind(0x%02x)", byte(k))
	}
}

// Encode appends the one-byte kind tag to dst.
func (k Kind) Encode(dst []byte) []byte { return append(dst, byte(k)) }

// ParseKind reads a one-byte Kind tag from buf.
func ParseKind(buf []byte) ([]byte, Kind, error) {
	if len(buf) < 1 {
		return buf, 0, codec.NeedMore(buf, 1)
	}
	k := Kind(buf[0])
	switch k {
	case KindFile, KindAssociatedData, KindDirectory:
		return buf[1:], k, nil
	default:
		return buf, 0, fmt.Errorf("node: unknown node kind tag 0x%02x", buf[0])
	}
}
