// Package crypto implements the BanyanFS cryptographic primitives of
// §4.2: ECDSA P-384 signing, ECDH P-384 key agreement, XChaCha20-Poly1305
// symmetric encryption, Blake3 fingerprinting, and access-key wrapping
// (symmetric and asymmetric).
package crypto

import "errors"

// ErrIncorrectKey is returned when an AEAD unwrap fails its tag check,
// or a signature fails to verify (§4.2, §6).
var ErrIncorrectKey = errors.New("crypto: incorrect key")
