package codec

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
)

// wrapWindow is the 2^18 tolerance window within which two clock values
// are compared using wrap-aware arithmetic (§3).
const wrapWindow = 1 << 18

// VectorClock is a monotonic 64-bit counter, encoded as 8 little-endian
// bytes. The specification requires random initialization (never zero)
// and increment-on-mutation; see §9's note that the source code's
// zero-init/never-increment behavior is a bug this port does not
// reproduce.
type VectorClock uint64

// NewVectorClock draws a non-zero random starting value.
func NewVectorClock() (VectorClock, error) {
	var b [8]byte
	for {
		if _, err := rand.Read(b[:]); err != nil {
			return 0, fmt.Errorf("codec: generate vector clock: %w", err)
		}
		v := VectorClock(binary.LittleEndian.Uint64(b[:]))
		if v != 0 {
			return v, nil
		}
	}
}

// ParseVectorClock reads a fixed-size VectorClock from buf.
func ParseVectorClock(buf []byte) ([]byte, VectorClock, error) {
	if len(buf) < VectorClockSize {
		return buf, 0, NeedMore(buf, VectorClockSize)
	}
	v := VectorClock(binary.LittleEndian.Uint64(buf[:VectorClockSize]))
	return buf[VectorClockSize:], v, nil
}

// Encode appends the little-endian counter bytes to dst.
func (v VectorClock) Encode(dst []byte) []byte {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], uint64(v))
	return append(dst, b[:]...)
}

// Increment bumps the counter by one, wrapping at the uint64 boundary
// back to 1 (0 is reserved as "never initialized").
func (v VectorClock) Increment() VectorClock {
	n := v + 1
	if n == 0 {
		n = 1
	}
	return n
}

// Compare returns -1, 0, or 1 for a.Compare(b), tolerating a single
// wrap-around within a 2^18 window: when both values sit below the
// threshold, the comparison is done on (a+T) vs (b+T) to recover the
// intended post-wrap order; otherwise a plain integer comparison is
// used (§3).
func (a VectorClock) Compare(b VectorClock) int {
	if a == b {
		return 0
	}
	if a < wrapWindow && b < wrapWindow {
		wa := uint64(a) + wrapWindow
		wb := uint64(b) + wrapWindow
		switch {
		case wa < wb:
			return -1
		case wa > wb:
			return 1
		default:
			return 0
		}
	}
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}
