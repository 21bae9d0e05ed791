package codec

import (
	"encoding/binary"
	"fmt"
)

// cursor is a bounds-checked reader over one packet's payload. Every
// read re-validates the remaining length, so a truncated descriptor
// surfaces as ErrMalformedPacket instead of an out-of-range slice.
type cursor struct {
	buf []byte
	off int
}

func (c *cursor) remaining() int {
	return len(c.buf) - c.off
}

func (c *cursor) readByte() (byte, error) {
	if c.off >= len(c.buf) {
		return 0, fmt.Errorf("%w: truncated at offset %d", ErrMalformedPacket, c.off)
	}
	b := c.buf[c.off]
	c.off++
	return b, nil
}

func (c *cursor) readUint16() (uint16, error) {
	if c.remaining() < 2 {
		return 0, fmt.Errorf("%w: need 2 bytes at offset %d, have %d", ErrMalformedPacket, c.off, c.remaining())
	}
	v := binary.BigEndian.Uint16(c.buf[c.off:])
	c.off += 2
	return v, nil
}
