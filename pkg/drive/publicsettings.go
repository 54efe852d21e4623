package drive

import "github.com/banyancomputer/go-banyanfs/pkg/codec"

const (
	publicSettingECCPresent byte = 0b0000_0001
	publicSettingPrivate    byte = 0b0000_0010
	publicSettingReserved   byte = 0b1111_1100
)

// PublicSettings is the one-byte, unencrypted field following the
// filesystem id: whether the image reserves error-correction chunks,
// and whether the drive is private (encrypted). Every other bit is
// reserved (§4.6).
type PublicSettings struct {
	ECCPresent bool
	Private    bool
}

// PrivateSettings returns the settings for a private (encrypted) drive
// with no error correction, the only kind InitializePrivate produces.
func PrivateSettings() PublicSettings {
	return PublicSettings{Private: true}
}

// Encode appends the one-byte wire form to dst.
func (s PublicSettings) Encode(dst []byte) []byte {
	var b byte
	if s.ECCPresent {
		b |= publicSettingECCPresent
	}
	if s.Private {
		b |= publicSettingPrivate
	}
	return append(dst, b)
}

// ParsePublicSettings reads a PublicSettings byte from buf.
func ParsePublicSettings(buf []byte, strict bool) ([]byte, PublicSettings, error) {
	if len(buf) < 1 {
		return buf, PublicSettings{}, codec.NeedMore(buf, 1)
	}
	b := buf[0]
	if strict {
		if err := codec.CheckReservedBits(b, publicSettingReserved, "PublicSettings"); err != nil {
			return buf, PublicSettings{}, err
		}
	} else {
		b = codec.MaskReservedBits(b, publicSettingReserved)
	}
	return buf[1:], PublicSettings{
		ECCPresent: b&publicSettingECCPresent != 0,
		Private:    b&publicSettingPrivate != 0,
	}, nil
}
