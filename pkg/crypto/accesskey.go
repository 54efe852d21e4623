package crypto

import (
	"crypto/sha512"
	"fmt"
	"io"

	"github.com/banyancomputer/go-banyanfs/pkg/codec"
	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

// AccessKeySize is the width, in bytes, of a symmetric AccessKey (§3).
const AccessKeySize = 32

// hkdfInfo is the domain-separation context string mixed into every
// HKDF-Expand call that derives a key-wrap secret (§4.2).
const hkdfInfo = "banyanfs-access-key-wrap-v1"

// AccessKey is a 32-byte symmetric AEAD key (§3).
type AccessKey [AccessKeySize]byte

// GenerateAccessKey draws a fresh random AccessKey.
func GenerateAccessKey(rng io.Reader) (AccessKey, error) {
	var k AccessKey
	if _, err := io.ReadFull(rng, k[:]); err != nil {
		return k, fmt.Errorf("crypto: generate access key: %w", err)
	}
	return k, nil
}

func newAEAD(key AccessKey) (cipherAEAD, error) {
	aead, err := chacha20poly1305.NewX(key[:])
	if err != nil {
		return nil, fmt.Errorf("crypto: construct XChaCha20-Poly1305: %w", err)
	}
	return aead, nil
}

// cipherAEAD is the subset of cipher.AEAD used here, named locally to
// avoid importing crypto/cipher just for the interface name at call
// sites.
type cipherAEAD interface {
	Seal(dst, nonce, plaintext, additionalData []byte) []byte
	Open(dst, nonce, ciphertext, additionalData []byte) ([]byte, error)
	NonceSize() int
	Overhead() int
}

// Encrypt seals buf in place under this access key with a fresh random
// nonce, returning the nonce and detached authentication tag (§4.2).
func (k AccessKey) Encrypt(rng io.Reader, aad, buf []byte) (codec.Nonce, codec.AuthenticationTag, error) {
	var nonce codec.Nonce
	var tag codec.AuthenticationTag

	aead, err := newAEAD(k)
	if err != nil {
		return nonce, tag, err
	}
	if _, err := io.ReadFull(rng, nonce[:]); err != nil {
		return nonce, tag, fmt.Errorf("crypto: generate nonce: %w", err)
	}

	sealed := aead.Seal(buf[:0], nonce[:], buf, aad)
	copy(buf, sealed[:len(buf)])
	copy(tag[:], sealed[len(buf):])
	return nonce, tag, nil
}

// Decrypt opens buf in place under this access key, verifying it
// against nonce, aad, and tag. Returns ErrIncorrectKey on tag mismatch
// (§4.2).
func (k AccessKey) Decrypt(nonce codec.Nonce, aad, buf []byte, tag codec.AuthenticationTag) error {
	aead, err := newAEAD(k)
	if err != nil {
		return err
	}

	sealed := make([]byte, 0, len(buf)+len(tag))
	sealed = append(sealed, buf...)
	sealed = append(sealed, tag[:]...)

	opened, err := aead.Open(buf[:0], nonce[:], sealed, aad)
	if err != nil {
		return ErrIncorrectKey
	}
	copy(buf, opened)
	return nil
}

// sealStandalone encrypts plaintext with a fresh nonce and returns the
// full nonce||ciphertext||tag blob; used where callers want a single
// self-contained ciphertext rather than an in-place seal (e.g. locked
// access keys).
func (k AccessKey) sealStandalone(rng io.Reader, aad, plaintext []byte) ([]byte, error) {
	aead, err := newAEAD(k)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := io.ReadFull(rng, nonce); err != nil {
		return nil, fmt.Errorf("crypto: generate nonce: %w", err)
	}
	out := make([]byte, 0, len(nonce)+len(plaintext)+aead.Overhead())
	out = append(out, nonce...)
	out = aead.Seal(out, nonce, plaintext, aad)
	return out, nil
}

// openStandalone reverses sealStandalone.
func (k AccessKey) openStandalone(aad, blob []byte) ([]byte, error) {
	aead, err := newAEAD(k)
	if err != nil {
		return nil, err
	}
	if len(blob) < aead.NonceSize() {
		return nil, fmt.Errorf("crypto: locked blob shorter than nonce")
	}
	nonce := blob[:aead.NonceSize()]
	ciphertext := blob[aead.NonceSize():]
	plaintext, err := aead.Open(nil, nonce, ciphertext, aad)
	if err != nil {
		return nil, ErrIncorrectKey
	}
	return plaintext, nil
}

// deriveWrapSecret runs HKDF-Expand(SHA-384) over an ECDH shared
// secret, producing a 32-byte symmetric key (§4.2).
func deriveWrapSecret(sharedSecret []byte) (AccessKey, error) {
	var out AccessKey
	reader := hkdf.Expand(sha512.New384, sharedSecret, []byte(hkdfInfo))
	if _, err := io.ReadFull(reader, out[:]); err != nil {
		return out, fmt.Errorf("crypto: HKDF-Expand: %w", err)
	}
	return out, nil
}

// LockFor wraps this access key asymmetrically for recipient, via a
// fresh ephemeral ECDH key pair, HKDF-derived wrap secret, and AEAD seal
// (§4.2).
func (k AccessKey) LockFor(rng io.Reader, recipient VerifyingKey) (AsymLockedAccessKey, error) {
	var locked AsymLockedAccessKey

	ephemeral, err := randomScalar(rng)
	if err != nil {
		return locked, err
	}
	recipientECDH, err := recipient.ecdhKey()
	if err != nil {
		return locked, err
	}
	shared, err := ephemeral.ECDH(recipientECDH)
	if err != nil {
		return locked, fmt.Errorf("crypto: ECDH: %w", err)
	}

	wrapKey, err := deriveWrapSecret(shared)
	if err != nil {
		return locked, err
	}

	blob, err := wrapKey.sealStandalone(rng, nil, k[:])
	if err != nil {
		return locked, err
	}

	ephemeralPub, err := compressECDHPublicKey(ephemeral.PublicKey())
	if err != nil {
		return locked, err
	}
	locked.EphemeralPublicKey = ephemeralPub
	locked.Sealed = blob
	return locked, nil
}

// LockWith wraps this access key symmetrically under another access
// key (§4.2).
func (k AccessKey) LockWith(rng io.Reader, other AccessKey) (SymLockedAccessKey, error) {
	blob, err := other.sealStandalone(rng, nil, k[:])
	if err != nil {
		return SymLockedAccessKey{}, err
	}
	return SymLockedAccessKey{Sealed: blob}, nil
}

// Unlock reverses LockWith given the wrapping key.
func (l SymLockedAccessKey) Unlock(wrappingKey AccessKey) (AccessKey, error) {
	var out AccessKey
	plaintext, err := wrappingKey.openStandalone(nil, l.Sealed)
	if err != nil {
		return out, err
	}
	if len(plaintext) != AccessKeySize {
		return out, fmt.Errorf("crypto: unwrapped key is %d bytes, want %d", len(plaintext), AccessKeySize)
	}
	copy(out[:], plaintext)
	return out, nil
}
