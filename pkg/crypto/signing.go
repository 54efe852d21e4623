package crypto

import (
	"crypto/ecdh"
	"crypto/ecdsa"
	"crypto/elliptic"
	"fmt"
	"io"

	"github.com/banyancomputer/go-banyanfs/pkg/codec"
	"lukechampine.com/blake3"
)

// curve is the NIST P-384 curve used for both ECDSA signing and ECDH
// key agreement throughout BanyanFS (§3, §4.2).
var curve = elliptic.P384()

// SigningKey is an actor's ECDSA P-384 private key.
type SigningKey struct {
	priv *ecdsa.PrivateKey
}

// VerifyingKey is an actor's ECDSA P-384 public key.
type VerifyingKey struct {
	pub *ecdsa.PublicKey
}

// GenerateSigningKey creates a fresh P-384 key pair.
func GenerateSigningKey(rng io.Reader) (SigningKey, error) {
	priv, err := ecdsa.GenerateKey(curve, rng)
	if err != nil {
		return SigningKey{}, fmt.Errorf("crypto: generate signing key: %w", err)
	}
	return SigningKey{priv: priv}, nil
}

// VerifyingKey returns the public half of the key pair.
func (k SigningKey) VerifyingKey() VerifyingKey {
	return VerifyingKey{pub: &k.priv.PublicKey}
}

// SignDigest signs a pre-hashed SHA-384 digest, returning an ASN.1 DER
// ECDSA signature (§4.2).
func (k SigningKey) SignDigest(rng io.Reader, digest []byte) ([]byte, error) {
	sig, err := ecdsa.SignASN1(rng, k.priv, digest)
	if err != nil {
		return nil, fmt.Errorf("crypto: sign digest: %w", err)
	}
	return sig, nil
}

// ecdhKey converts the ECDSA private key to its ECDH counterpart for use
// in access-key unwrap (§4.2).
func (k SigningKey) ecdhKey() (*ecdh.PrivateKey, error) {
	ek, err := k.priv.ECDH()
	if err != nil {
		return nil, fmt.Errorf("crypto: signing key has no ECDH representation: %w", err)
	}
	return ek, nil
}

// VerifyDigest verifies an ASN.1 DER ECDSA signature over a pre-hashed
// SHA-384 digest.
func (v VerifyingKey) VerifyDigest(digest, sig []byte) error {
	if !ecdsa.VerifyASN1(v.pub, digest, sig) {
		return ErrIncorrectKey
	}
	return nil
}

// ecdhKey converts the ECDSA public key to its ECDH counterpart.
func (v VerifyingKey) ecdhKey() (*ecdh.PublicKey, error) {
	ek, err := v.pub.ECDH()
	if err != nil {
		return nil, fmt.Errorf("crypto: verifying key has no ECDH representation: %w", err)
	}
	return ek, nil
}

// Bytes serializes the verifying key as a 49-byte compressed SEC1 point
// (§3).
func (v VerifyingKey) Bytes() codec.VerifyingKeyBytes {
	var out codec.VerifyingKeyBytes
	compressed := elliptic.MarshalCompressed(curve, v.pub.X, v.pub.Y)
	copy(out[:], compressed)
	return out
}

// ParseVerifyingKey decodes a 49-byte compressed SEC1 point back into a
// VerifyingKey.
func ParseVerifyingKey(raw codec.VerifyingKeyBytes) (VerifyingKey, error) {
	x, y := elliptic.UnmarshalCompressed(curve, raw[:])
	if x == nil {
		return VerifyingKey{}, fmt.Errorf("crypto: invalid compressed SEC1 point")
	}
	return VerifyingKey{pub: &ecdsa.PublicKey{Curve: curve, X: x, Y: y}}, nil
}

// Fingerprint returns the Blake3 hash of the compressed SEC1 encoding of
// the verifying key (§3).
func (v VerifyingKey) Fingerprint() codec.Fingerprint {
	raw := v.Bytes()
	digest := blake3.Sum256(raw[:])
	var fp codec.Fingerprint
	copy(fp[:], digest[:])
	return fp
}

// ActorId returns the ActorId (fingerprint wrapper) for this verifying
// key.
func (v VerifyingKey) ActorId() codec.ActorId {
	return codec.ActorId{Fingerprint: v.Fingerprint()}
}

// Equal reports whether two verifying keys are the same point.
func (v VerifyingKey) Equal(other VerifyingKey) bool {
	return v.pub.X.Cmp(other.pub.X) == 0 && v.pub.Y.Cmp(other.pub.Y) == 0
}

// randomScalar generates a fresh ephemeral ECDH P-384 key pair, used for
// each AccessKey.LockFor call (§4.2: "ephemeral keys are
// always fresh").
func randomScalar(rng io.Reader) (*ecdh.PrivateKey, error) {
	p384 := ecdh.P384()
	k, err := p384.GenerateKey(rng)
	if err != nil {
		return nil, fmt.Errorf("crypto: generate ephemeral ECDH key: %w", err)
	}
	return k, nil
}

// compressECDHPublicKey re-encodes an ECDH public key (whose Bytes()
// method yields the uncompressed X9.62 form) as the 49-byte compressed
// SEC1 point used on the wire (§3).
func compressECDHPublicKey(pub *ecdh.PublicKey) (codec.VerifyingKeyBytes, error) {
	var out codec.VerifyingKeyBytes
	uncompressed := pub.Bytes()
	x, y := elliptic.Unmarshal(curve, uncompressed)
	if x == nil {
		return out, fmt.Errorf("crypto: malformed ECDH public key")
	}
	compressed := elliptic.MarshalCompressed(curve, x, y)
	copy(out[:], compressed)
	return out, nil
}

// decompressECDHPublicKey reverses compressECDHPublicKey.
func decompressECDHPublicKey(raw codec.VerifyingKeyBytes) (*ecdh.PublicKey, error) {
	x, y := elliptic.UnmarshalCompressed(curve, raw[:])
	if x == nil {
		return nil, fmt.Errorf("crypto: invalid compressed SEC1 point")
	}
	uncompressed := elliptic.Marshal(curve, x, y)
	pub, err := ecdh.P384().NewPublicKey(uncompressed)
	if err != nil {
		return nil, fmt.Errorf("crypto: invalid ECDH public key: %w", err)
	}
	return pub, nil
}
