package codec

// Fingerprint is the Blake3 hash of an actor's compressed SEC1 verifying
// key (§3). ActorId is a thin wrapper used for clarity at call sites;
// the two types share the same wire encoding.
type Fingerprint [FingerprintSize]byte

// ActorId identifies an actor (key-pair holder) by the fingerprint of
// their verifying key (§3).
type ActorId struct {
	Fingerprint Fingerprint
}

// ParseActorId reads a fixed-size ActorId from buf.
func ParseActorId(buf []byte) ([]byte, ActorId, error) {
	var a ActorId
	if len(buf) < FingerprintSize {
		return buf, a, NeedMore(buf, FingerprintSize)
	}
	copy(a.Fingerprint[:], buf[:FingerprintSize])
	return buf[FingerprintSize:], a, nil
}

func (a ActorId) Encode(dst []byte) []byte { return append(dst, a.Fingerprint[:]...) }

// KeyId returns the two-byte filter hint: the first two bytes of the
// fingerprint. It is never used for unique identity (§3).
func (a ActorId) KeyId() KeyId {
	var k KeyId
	copy(k[:], a.Fingerprint[:KeyIdSize])
	return k
}

// Less provides a total order for deterministic actor-list encoding.
func (a ActorId) Less(other ActorId) bool {
	for i := range a.Fingerprint {
		if a.Fingerprint[i] != other.Fingerprint[i] {
			return a.Fingerprint[i] < other.Fingerprint[i]
		}
	}
	return false
}

// VerifyingKeyBytes is the 49-byte compressed SEC1 encoding of a P-384
// public key (§3, §4.2).
type VerifyingKeyBytes [VerifyingKeySize]byte

// ParseVerifyingKeyBytes reads a fixed-size verifying key from buf.
func ParseVerifyingKeyBytes(buf []byte) ([]byte, VerifyingKeyBytes, error) {
	var v VerifyingKeyBytes
	if len(buf) < VerifyingKeySize {
		return buf, v, NeedMore(buf, VerifyingKeySize)
	}
	copy(v[:], buf[:VerifyingKeySize])
	return buf[VerifyingKeySize:], v, nil
}

func (v VerifyingKeyBytes) Encode(dst []byte) []byte { return append(dst, v[:]...) }
