package access

import (
	"fmt"

	"github.com/banyancomputer/go-banyanfs/pkg/codec"
	"github.com/banyancomputer/go-banyanfs/pkg/crypto"
)

// AgentStringSize is the fixed width, in bytes, reserved for an actor's
// agent string regardless of its actual length (§4.5).
const AgentStringSize = 63

// ActorSettingsSize is the fixed wire width of one ActorSettings record:
// verifying key, vector clock, access mask, length byte, agent bytes.
const ActorSettingsSize = codec.VerifyingKeySize + codec.VectorClockSize + 1 + 1 + AgentStringSize

// ActorSettings is the per-actor record carried in the drive's escrowed
// header: identity, last-seen vector clock, access mask, and a
// forensic/telemetry agent string (§4.5).
type ActorSettings struct {
	VerifyingKey crypto.VerifyingKey
	VectorClock  codec.VectorClock
	AccessMask   AccessMask
	Agent        string
}

// NewActorSettings constructs an ActorSettings with a freshly
// initialized vector clock.
func NewActorSettings(verifyingKey crypto.VerifyingKey, mask AccessMask, agent string) (ActorSettings, error) {
	if len(agent) > AgentStringSize {
		return ActorSettings{}, fmt.Errorf("access: agent string is %d bytes, exceeds %d", len(agent), AgentStringSize)
	}
	clock, err := codec.NewVectorClock()
	if err != nil {
		return ActorSettings{}, err
	}
	return ActorSettings{VerifyingKey: verifyingKey, VectorClock: clock, AccessMask: mask, Agent: agent}, nil
}

// ActorId returns the ActorId derived from this actor's verifying key.
func (s ActorSettings) ActorId() codec.ActorId { return s.VerifyingKey.ActorId() }

// Encode appends the fixed-size wire form to dst: verifying key, vector
// clock, access mask, one-byte agent length, and AgentStringSize bytes
// of agent data zero-padded to that width (§4.5).
func (s ActorSettings) Encode(dst []byte) ([]byte, error) {
	if len(s.Agent) > AgentStringSize {
		return nil, fmt.Errorf("access: agent string is %d bytes, exceeds %d", len(s.Agent), AgentStringSize)
	}
	vk := s.VerifyingKey.Bytes()
	dst = vk.Encode(dst)
	dst = s.VectorClock.Encode(dst)
	dst = s.AccessMask.Encode(dst)

	dst = append(dst, byte(len(s.Agent)))
	var agentBuf [AgentStringSize]byte
	copy(agentBuf[:], s.Agent)
	return append(dst, agentBuf[:]...), nil
}

// ParseActorSettings reads a fixed-size ActorSettings record from buf.
func ParseActorSettings(buf []byte) ([]byte, ActorSettings, error) {
	if len(buf) < ActorSettingsSize {
		return buf, ActorSettings{}, codec.NeedMore(buf, ActorSettingsSize)
	}
	rest, rawKey, err := codec.ParseVerifyingKeyBytes(buf)
	if err != nil {
		return buf, ActorSettings{}, err
	}
	verifyingKey, err := crypto.ParseVerifyingKey(rawKey)
	if err != nil {
		return buf, ActorSettings{}, err
	}

	rest, clock, err := codec.ParseVectorClock(rest)
	if err != nil {
		return buf, ActorSettings{}, err
	}
	rest, mask, err := ParseAccessMask(rest, false)
	if err != nil {
		return buf, ActorSettings{}, err
	}

	if len(rest) < 1+AgentStringSize {
		return buf, ActorSettings{}, codec.NeedMore(rest, 1+AgentStringSize)
	}
	agentLen := int(rest[0])
	rest = rest[1:]
	if agentLen > AgentStringSize {
		return buf, ActorSettings{}, fmt.Errorf("access: encoded agent length %d exceeds %d", agentLen, AgentStringSize)
	}
	agent := string(rest[:agentLen])
	rest = rest[AgentStringSize:]

	return rest, ActorSettings{VerifyingKey: verifyingKey, VectorClock: clock, AccessMask: mask, Agent: agent}, nil
}
