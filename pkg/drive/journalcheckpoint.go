package drive

import "github.com/banyancomputer/go-banyanfs/pkg/codec"

// JournalCheckpointSize is the fixed wire width of a JournalCheckpoint.
const JournalCheckpointSize = codec.CidSize + codec.VectorClockSize

// JournalCheckpoint names the starting point of the drive's append
// journal: the root node's CID and vector clock at the time the header
// was written (§4.5 item 3). No append-journal logic consumes this yet
// (§9 Open Questions); the struct and its codec exist so the reserved
// format slot round-trips and is testable.
type JournalCheckpoint struct {
	RootCid     codec.Cid
	VectorClock codec.VectorClock
}

// Encode appends the fixed-size wire form to dst.
func (j JournalCheckpoint) Encode(dst []byte) []byte {
	dst = j.RootCid.Encode(dst)
	return j.VectorClock.Encode(dst)
}

// ParseJournalCheckpoint reads a fixed-size JournalCheckpoint from buf.
func ParseJournalCheckpoint(buf []byte) ([]byte, JournalCheckpoint, error) {
	if len(buf) < JournalCheckpointSize {
		return buf, JournalCheckpoint{}, codec.NeedMore(buf, JournalCheckpointSize)
	}
	rest, cid, err := codec.ParseCid(buf)
	if err != nil {
		return buf, JournalCheckpoint{}, err
	}
	rest, clock, err := codec.ParseVectorClock(rest)
	if err != nil {
		return buf, JournalCheckpoint{}, err
	}
	return rest, JournalCheckpoint{RootCid: cid, VectorClock: clock}, nil
}
