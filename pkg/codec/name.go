package codec

import (
	"fmt"

	"golang.org/x/text/unicode/norm"
)

const (
	nodeNameTagRoot  = 0x00
	nodeNameTagNamed = 0x01

	// MaxNameLength is the maximum encoded length, in bytes, of a
	// Named NodeName (§3).
	MaxNameLength = 255

	// reservedRootLiteral is a name callers may never choose, since it
	// would collide in meaning with the Root tag (§3).
	reservedRootLiteral = "{:root:}"
)

// NodeName is either the sentinel Root name (for the filesystem root,
// which has no parent) or a validated Named string (§3, §4.1).
type NodeName struct {
	root bool
	name string
}

// RootName is the singleton Root NodeName.
var RootName = NodeName{root: true}

// NewName validates and constructs a Named NodeName. It rejects the
// empty string, names over MaxNameLength bytes, names containing '/',
// and the literal names ".", "..", and "{:root:}" (§3). The name is
// first normalized to NFC so that visually identical names composed of
// different Unicode sequences collide under invariant 4's uniqueness
// check rather than silently coexisting.
func NewName(s string) (NodeName, error) {
	s = norm.NFC.String(s)
	switch {
	case s == "":
		return NodeName{}, fmt.Errorf("codec: name is empty")
	case len(s) > MaxNameLength:
		return NodeName{}, fmt.Errorf("codec: name is %d bytes, exceeds %d", len(s), MaxNameLength)
	case s == "." || s == "..":
		return NodeName{}, fmt.Errorf("codec: name %q is reserved for path traversal", s)
	case s == reservedRootLiteral:
		return NodeName{}, fmt.Errorf("codec: name %q is reserved for the root sentinel", s)
	}
	for i := 0; i < len(s); i++ {
		if s[i] == '/' {
			return NodeName{}, fmt.Errorf("codec: name %q contains '/'", s)
		}
	}
	return NodeName{name: s}, nil
}

// IsRoot reports whether this is the Root sentinel name.
func (n NodeName) IsRoot() bool { return n.root }

// String returns the underlying name, or "Root" for Root.
func (n NodeName) String() string {
	if n.root {
		return "Root"
	}
	return n.name
}

// Less orders names lexically by their raw bytes; Root sorts before
// every Named value. Used only for presentation, never for the
// permanent-id-keyed encoding order (§3 invariant 6 orders by
// permanent id, not name).
func (n NodeName) Less(other NodeName) bool {
	if n.root != other.root {
		return n.root
	}
	return n.name < other.name
}

// ParseNodeName parses a one-byte tag, followed for Named names by a
// one-byte length prefix and the UTF-8 bytes themselves (§4.1).
func ParseNodeName(buf []byte) ([]byte, NodeName, error) {
	if len(buf) < 1 {
		return buf, NodeName{}, NeedMore(buf, 1)
	}
	tag := buf[0]
	rest := buf[1:]

	switch tag {
	case nodeNameTagRoot:
		return rest, RootName, nil
	case nodeNameTagNamed:
		if len(rest) < 1 {
			return buf, NodeName{}, NeedMore(buf, 2)
		}
		length := int(rest[0])
		rest = rest[1:]
		if len(rest) < length {
			return buf, NodeName{}, NeedMore(buf, 2+length)
		}
		raw := string(rest[:length])
		name, err := NewName(raw)
		if err != nil {
			return rest[length:], NodeName{}, err
		}
		return rest[length:], name, nil
	default:
		return rest, NodeName{}, fmt.Errorf("codec: unknown NodeName tag 0x%02x", tag)
	}
}

// Encode appends the tag, and for Named names the one-byte length
// prefix and UTF-8 bytes, to dst.
func (n NodeName) Encode(dst []byte) []byte {
	if n.root {
		return append(dst, nodeNameTagRoot)
	}
	dst = append(dst, nodeNameTagNamed, byte(len(n.name)))
	return append(dst, n.name...)
}
