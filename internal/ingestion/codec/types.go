package codec

import (
	"strings"

	"github.com/pion/rtp"
)

// Type represents a video codec type
type Type string

const (
	// TypeVP9 represents the VP9 codec
	TypeVP9 Type = "VP9"
	// TypeUnknown represents an unknown codec
	TypeUnknown Type = "UNKNOWN"
)

// String returns the string representation of the codec type
func (t Type) String() string {
	return string(t)
}

// IsValid checks if the codec type is valid and supported
func (t Type) IsValid() bool {
	return t == TypeVP9
}

// ParseType parses a string into a codec type
func ParseType(s string) Type {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "VP9", "VP09":
		return TypeVP9
	default:
		return TypeUnknown
	}
}

// Frame is one complete encoded frame reassembled from RTP fragments.
// Data is the concatenation of every fragment's post-descriptor bytes in
// arrival order. Timestamp is the RTP timestamp of the fragment that
// opened the frame. Ownership transfers to the caller on emission.
type Frame struct {
	Data      []byte
	Timestamp uint32
}

// Depacketizer is the interface for RTP depacketizers.
//
// Depacketize consumes exactly one packet. It returns a non-nil Frame
// when the packet completed a frame, or (nil, nil) when more fragments
// are needed: either the packet was appended to an open frame that is
// not finished, or a mid-frame packet arrived with no frame open and was
// dropped. Errors are per-packet: the caller may keep feeding packets.
type Depacketizer interface {
	Depacketize(packet *rtp.Packet) (*Frame, error)

	// Discarded reports how many partial frames Depacketize has dropped
	// because the stream moved to a new timestamp before the open frame
	// completed. The count is cumulative; callers diff it around a
	// Depacketize call to detect a discard.
	Discarded() uint64

	// Reset discards any frame in progress and returns to idle. It
	// reports whether a partial frame was dropped.
	Reset() bool

	// Close releases per-stream resources held by the depacketizer,
	// which must not be used afterwards.
	Close()
}
