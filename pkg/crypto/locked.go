package crypto

import (
	"fmt"

	"github.com/banyancomputer/go-banyanfs/pkg/codec"
)

// SymLockedAccessKey is an access key wrapped under another access key:
// nonce‖ciphertext‖tag (§3).
type SymLockedAccessKey struct {
	Sealed []byte // nonce(24) || ciphertext(32) || tag(16)
}

// Encode appends the sealed blob to dst.
func (l SymLockedAccessKey) Encode(dst []byte) []byte { return append(dst, l.Sealed...) }

// symLockedAccessKeySize is the fixed wire width of a SymLockedAccessKey:
// nonce + 32-byte plaintext + tag.
const symLockedAccessKeySize = codec.NonceSize + AccessKeySize + codec.TagSize

// ParseSymLockedAccessKey reads a fixed-size sealed blob from buf.
func ParseSymLockedAccessKey(buf []byte) ([]byte, SymLockedAccessKey, error) {
	if len(buf) < symLockedAccessKeySize {
		return buf, SymLockedAccessKey{}, codec.NeedMore(buf, symLockedAccessKeySize)
	}
	sealed := make([]byte, symLockedAccessKeySize)
	copy(sealed, buf[:symLockedAccessKeySize])
	return buf[symLockedAccessKeySize:], SymLockedAccessKey{Sealed: sealed}, nil
}

// AsymLockedAccessKey is an access key wrapped for a specific recipient:
// ephemeral public key‖nonce‖ciphertext‖tag (§3).
type AsymLockedAccessKey struct {
	EphemeralPublicKey codec.VerifyingKeyBytes
	Sealed             []byte // nonce(24) || ciphertext(32) || tag(16)
}

// asymLockedAccessKeySize is the fixed wire width of an
// AsymLockedAccessKey.
const asymLockedAccessKeySize = codec.VerifyingKeySize + symLockedAccessKeySize

// Encode appends the ephemeral public key and sealed blob to dst.
func (l AsymLockedAccessKey) Encode(dst []byte) []byte {
	dst = l.EphemeralPublicKey.Encode(dst)
	return append(dst, l.Sealed...)
}

// ParseAsymLockedAccessKey reads a fixed-size AsymLockedAccessKey from
// buf.
func ParseAsymLockedAccessKey(buf []byte) ([]byte, AsymLockedAccessKey, error) {
	if len(buf) < asymLockedAccessKeySize {
		return buf, AsymLockedAccessKey{}, codec.NeedMore(buf, asymLockedAccessKeySize)
	}
	rest, pub, err := codec.ParseVerifyingKeyBytes(buf)
	if err != nil {
		return buf, AsymLockedAccessKey{}, err
	}
	sealed := make([]byte, symLockedAccessKeySize)
	copy(sealed, rest[:symLockedAccessKeySize])
	return rest[symLockedAccessKeySize:], AsymLockedAccessKey{EphemeralPublicKey: pub, Sealed: sealed}, nil
}

// Unlock reverses AccessKey.LockFor: it derives the shared secret via
// ECDH between the recipient's signing key and the embedded ephemeral
// public key, expands it with HKDF-SHA384, and opens the sealed blob.
// Returns ErrIncorrectKey on tag mismatch (§4.2).
func (l AsymLockedAccessKey) Unlock(signingKey SigningKey) (AccessKey, error) {
	var out AccessKey

	ephemeralPub, err := decompressECDHPublicKey(l.EphemeralPublicKey)
	if err != nil {
		return out, err
	}
	recipientECDH, err := signingKey.ecdhKey()
	if err != nil {
		return out, err
	}
	shared, err := recipientECDH.ECDH(ephemeralPub)
	if err != nil {
		return out, fmt.Errorf("crypto: ECDH: %w", err)
	}

	wrapKey, err := deriveWrapSecret(shared)
	if err != nil {
		return out, err
	}

	plaintext, err := wrapKey.openStandalone(nil, l.Sealed)
	if err != nil {
		return out, err
	}
	if len(plaintext) != AccessKeySize {
		return out, fmt.Errorf("crypto: unwrapped key is %d bytes, want %d", len(plaintext), AccessKeySize)
	}
	copy(out[:], plaintext)
	return out, nil
}
