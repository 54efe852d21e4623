package codec

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/binary"
	"fmt"
)

const (
	// FingerprintSize is the width of an ActorId/Fingerprint (§3).
	FingerprintSize = 32
	// VerifyingKeySize is the width of a compressed SEC1 P-384 point (§3).
	VerifyingKeySize = 49
	// NonceSize is the width of an XChaCha20-Poly1305 nonce (§3).
	NonceSize = 24
	// TagSize is the width of an AEAD authentication tag (§3).
	TagSize = 16
	// CidSize is the width of a Blake3-256 digest (§3).
	CidSize = 32
	// PermanentIdSize is the width of a node's permanent id (§3).
	PermanentIdSize = 8
	// FilesystemIdSize is the width of a filesystem id (§3).
	FilesystemIdSize = 16
	// VectorClockSize is the encoded width of one vector-clock counter (§4.1).
	VectorClockSize = 8
	// KeyIdSize is the width of the escrow filter-hint key id (§3).
	KeyIdSize = 2

	// cidStringSigil is the character that begins a Cid's string form
	// (§3, §6).
	cidStringSigil = 'u'
)

// cidMulticodecPrefix is the 4-byte multicodec/multihash prefix
// ("raw-ish" + blake3-256 code) prepended before base64url-encoding
// a Cid's string form (§3, §6).
var cidMulticodecPrefix = [4]byte{0x01, 0x55, 0x1e, 0x20}

// Nonce is a fresh-random XChaCha20-Poly1305 nonce.
type Nonce [NonceSize]byte

// ParseNonce reads a fixed-size Nonce from buf.
func ParseNonce(buf []byte) ([]byte, Nonce, error) {
	var n Nonce
	if len(buf) < NonceSize {
		return buf, n, NeedMore(buf, NonceSize)
	}
	copy(n[:], buf[:NonceSize])
	return buf[NonceSize:], n, nil
}

// Encode appends the nonce's bytes to dst.
func (n Nonce) Encode(dst []byte) []byte { return append(dst, n[:]...) }

// AuthenticationTag is a 16-byte AEAD tag.
type AuthenticationTag [TagSize]byte

// ParseAuthenticationTag reads a fixed-size tag from buf.
func ParseAuthenticationTag(buf []byte) ([]byte, AuthenticationTag, error) {
	var t AuthenticationTag
	if len(buf) < TagSize {
		return buf, t, NeedMore(buf, TagSize)
	}
	copy(t[:], buf[:TagSize])
	return buf[TagSize:], t, nil
}

func (t AuthenticationTag) Encode(dst []byte) []byte { return append(dst, t[:]...) }

// Cid is the 32-byte Blake3 digest content identifier (§3).
type Cid [CidSize]byte

// ParseCid reads a fixed-size Cid from buf.
func ParseCid(buf []byte) ([]byte, Cid, error) {
	var c Cid
	if len(buf) < CidSize {
		return buf, c, NeedMore(buf, CidSize)
	}
	copy(c[:], buf[:CidSize])
	return buf[CidSize:], c, nil
}

// Encode appends the digest bytes to dst.
func (c Cid) Encode(dst []byte) []byte { return append(dst, c[:]...) }

// String renders the canonical 49-character CID string form: the ASCII
// character 'u' followed by base64url(no padding) of the multicodec
// prefix `01 55 1e 20` concatenated with the 32-byte digest (§3, §6).
func (c Cid) String() string {
	buf := make([]byte, 0, len(cidMulticodecPrefix)+CidSize)
	buf = append(buf, cidMulticodecPrefix[:]...)
	buf = append(buf, c[:]...)
	return string(cidStringSigil) + base64.RawURLEncoding.EncodeToString(buf)
}

// ParseCidString parses a canonical CID string back into a Cid.
func ParseCidString(s string) (Cid, error) {
	var c Cid
	if len(s) == 0 || s[0] != cidStringSigil {
		return c, fmt.Errorf("codec: CID string missing %q sigil", string(cidStringSigil))
	}
	raw, err := base64.RawURLEncoding.DecodeString(s[1:])
	if err != nil {
		return c, fmt.Errorf("codec: CID string base64url decode: %w", err)
	}
	if len(raw) != len(cidMulticodecPrefix)+CidSize {
		return c, fmt.Errorf("codec: CID string decodes to %d bytes, want %d", len(raw), len(cidMulticodecPrefix)+CidSize)
	}
	var prefix [4]byte
	copy(prefix[:], raw[:4])
	if prefix != cidMulticodecPrefix {
		return c, fmt.Errorf("codec: CID string has unexpected multicodec prefix % x", prefix)
	}
	copy(c[:], raw[4:])
	return c, nil
}

// CidFromDigest wraps a caller-computed Blake3 digest as a Cid.
func CidFromDigest(digest []byte) (Cid, error) {
	var c Cid
	if len(digest) != CidSize {
		return c, fmt.Errorf("codec: digest is %d bytes, want %d", len(digest), CidSize)
	}
	copy(c[:], digest)
	return c, nil
}

// PermanentId is an 8-byte identifier assigned once at node creation and
// stable for the node's lifetime (§3).
type PermanentId [PermanentIdSize]byte

// NewPermanentId draws 8 random bytes for a freshly created node.
func NewPermanentId() (PermanentId, error) {
	var id PermanentId
	if _, err := rand.Read(id[:]); err != nil {
		return id, fmt.Errorf("codec: generate permanent id: %w", err)
	}
	return id, nil
}

// ParsePermanentId reads a fixed-size PermanentId from buf.
func ParsePermanentId(buf []byte) ([]byte, PermanentId, error) {
	var id PermanentId
	if len(buf) < PermanentIdSize {
		return buf, id, NeedMore(buf, PermanentIdSize)
	}
	copy(id[:], buf[:PermanentIdSize])
	return buf[PermanentIdSize:], id, nil
}

func (id PermanentId) Encode(dst []byte) []byte { return append(dst, id[:]...) }

// Less provides the ascending ordering required for deterministic child
// map and node-graph encoding (§3 invariant 6).
func (id PermanentId) Less(other PermanentId) bool {
	for i := range id {
		if id[i] != other[i] {
			return id[i] < other[i]
		}
	}
	return false
}

// KeyId is the two-byte filter hint derived from an actor's fingerprint;
// it is never used for unique identity (§3).
type KeyId [KeyIdSize]byte

func ParseKeyId(buf []byte) ([]byte, KeyId, error) {
	var k KeyId
	if len(buf) < KeyIdSize {
		return buf, k, NeedMore(buf, KeyIdSize)
	}
	copy(k[:], buf[:KeyIdSize])
	return buf[KeyIdSize:], k, nil
}

func (k KeyId) Encode(dst []byte) []byte { return append(dst, k[:]...) }

func (k KeyId) Less(other KeyId) bool {
	return binary.BigEndian.Uint16(k[:]) < binary.BigEndian.Uint16(other[:])
}
