package dotnet

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// cursor is a bounds-checked little-endian reader with a sticky error.
type cursor struct {
	buf []byte
	off int
	err error
}

func newCursor(buf []byte) *cursor {
	return &cursor{buf: buf}
}

func (c *cursor) need(n int) bool {
	if c.err != nil {
		return false
	}
	if n < 0 || c.off < 0 || c.off+n > len(c.buf) || c.off+n < c.off {
		c.err = fmt.Errorf("%w: read of %d bytes at offset %d exceeds %d", ErrMalformed, n, c.off, len(c.buf))
		return false
	}
	return true
}

func (c *cursor) remaining() int {
	if c.off >= len(c.buf) {
		return 0
	}
	return len(c.buf) - c.off
}

func (c *cursor) u8() uint8 {
	if !c.need(1) {
		return 0
	}
	v := c.buf[c.off]
	c.off++
	return v
}

func (c *cursor) u16() uint16 {
	if !c.need(2) {
		return 0
	}
	v := binary.LittleEndian.Uint16(c.buf[c.off:])
	c.off += 2
	return v
}

func (c *cursor) u32() uint32 {
	if !c.need(4) {
		return 0
	}
	v := binary.LittleEndian.Uint32(c.buf[c.off:])
	c.off += 4
	return v
}

func (c *cursor) u64() uint64 {
	if !c.need(8) {
		return 0
	}
	v := binary.LittleEndian.Uint64(c.buf[c.off:])
	c.off += 8
	return v
}

func (c *cursor) bytes(n int) []byte {
	if !c.need(n) {
		return nil
	}
	v := c.buf[c.off : c.off+n]
	c.off += n
	return v
}

func (c *cursor) skip(n int) {
	if c.need(n) {
		c.off += n
	}
}

// index reads a 2 or 4 byte heap/table index.
func (c *cursor) index(wide bool) uint32 {
	if wide {
		return c.u32()
	}
	return uint32(c.u16())
}

// compressed reads an ECMA-335 compressed unsigned integer (II.23.2).
func (c *cursor) compressed() uint32 {
	b0 := c.u8()
	if c.err != nil {
		return 0
	}
	switch {
	case b0&0x80 == 0:
		return uint32(b0)
	case b0&0xC0 == 0x80:
		b1 := c.u8()
		return uint32(b0&0x3F)<<8 | uint32(b1)
	case b0&0xE0 == 0xC0:
		rest := c.bytes(3)
		if rest == nil {
			return 0
		}
		return uint32(b0&0x1F)<<24 | uint32(rest[0])<<16 | uint32(rest[1])<<8 | uint32(rest[2])
	default:
		c.err = fmt.Errorf("%w: invalid compressed integer lead byte 0x%02x", ErrMalformed, b0)
		return 0
	}
}

// compressedSigned reads an ECMA-335 compressed signed integer.
func (c *cursor) compressedSigned() int32 {
	start := c.off
	raw := c.compressed()
	if c.err != nil {
		return 0
	}
	width := c.off - start
	negative := raw&1 == 1
	v := int32(raw >> 1)
	if !negative {
		return v
	}
	switch width {
	case 1:
		return v - 0x40
	case 2:
		return v - 0x2000
	default:
		return v - 0x10000000
	}
}

// paddedName reads a NUL-terminated ASCII name padded to a 4-byte boundary.
func (c *cursor) paddedName() string {
	if c.err != nil {
		return ""
	}
	end := bytes.IndexByte(c.buf[c.off:], 0)
	if end < 0 {
		c.err = fmt.Errorf("%w: unterminated stream name at offset %d", ErrMalformed, c.off)
		return ""
	}
	name := string(c.buf[c.off : c.off+end])
	c.skip((end + 4) &^ 3)
	return name
}
