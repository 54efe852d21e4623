// Package codec implements the fixed-size typed field primitives of the
// BanyanFS drive image and data-block wire formats, as specified in §4.1.
// Every field type provides a streaming parse/encode pair so that the
// drive loader (pkg/drive) can be driven progressively over a buffer that
// grows as bytes arrive, rather than requiring the whole image in memory.
package codec

import "fmt"

// Incomplete is returned by Parse functions when fewer bytes are
// available than the field requires. Needed is the number of
// additional bytes the caller should obtain before calling Parse again;
// it is a hint, not a hard requirement (a subsequent call may ask for
// more once a length prefix has been read).
type Incomplete struct {
	Needed int
}

func (e *Incomplete) Error() string {
	return fmt.Sprintf("codec: incomplete input, need %d more byte(s)", e.Needed)
}

// NeedMore builds an *Incomplete for a fixed-size field of the given
// width when fewer than width bytes remain in buf.
func NeedMore(buf []byte, width int) error {
	return &Incomplete{Needed: width - len(buf)}
}

// IsIncomplete reports whether err signals a resumable short read.
func IsIncomplete(err error) bool {
	_, ok := err.(*Incomplete)
	return ok
}
