package drive

import "github.com/banyancomputer/go-banyanfs/pkg/codec"

const (
	contentOptMetadata   byte = 0b0000_0001
	contentOptFilesystem byte = 0b0000_0010
	contentOptData       byte = 0b0000_0100
	contentOptReserved   byte = 0b1111_1000
)

// contentOptionsSize is the fixed one-byte wire width of ContentOptions,
// named so pkg/drive's encrypted-header size arithmetic reads in terms
// of the fields it sums rather than a bare literal.
const contentOptionsSize = 1

// ContentOptions is the encrypted header's bitfield naming which
// sections of the drive image follow the header: the per-actor
// permission records (Metadata, always true in practice), the
// encrypted node graph (Filesystem), and reserved data segments (Data)
// (§4.5 item 2, §4.6).
type ContentOptions struct {
	Metadata   bool
	Filesystem bool
	Data       bool
}

// Everything returns a ContentOptions with every section present,
// mirroring the round-trip scenario of §8 ("Encode ... with
// ContentOptions::everything()").
func Everything() ContentOptions {
	return ContentOptions{Metadata: true, Filesystem: true, Data: true}
}

// Encode appends the one-byte wire form to dst.
func (o ContentOptions) Encode(dst []byte) []byte {
	var b byte
	if o.Metadata {
		b |= contentOptMetadata
	}
	if o.Filesystem {
		b |= contentOptFilesystem
	}
	if o.Data {
		b |= contentOptData
	}
	return append(dst, b)
}

// ParseContentOptions reads a ContentOptions byte from buf.
func ParseContentOptions(buf []byte, strict bool) ([]byte, ContentOptions, error) {
	if len(buf) < 1 {
		return buf, ContentOptions{}, codec.NeedMore(buf, 1)
	}
	b := buf[0]
	if strict {
		if err := codec.CheckReservedBits(b, contentOptReserved, "ContentOptions"); err != nil {
			return buf, ContentOptions{}, err
		}
	} else {
		b = codec.MaskReservedBits(b, contentOptReserved)
	}
	return buf[1:], ContentOptions{
		Metadata:   b&contentOptMetadata != 0,
		Filesystem: b&contentOptFilesystem != 0,
		Data:       b&contentOptData != 0,
	}, nil
}
