package dotnet

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCursorCompressed(t *testing.T) {
	tests := []struct {
		name    string
		input   []byte
		want    uint32
		wantErr bool
	}{
		{name: "one byte", input: []byte{0x03}, want: 0x03},
		{name: "one byte max", input: []byte{0x7F}, want: 0x7F},
		{name: "two bytes", input: []byte{0x80, 0x80}, want: 0x80},
		{name: "two bytes max", input: []byte{0xBF, 0xFF}, want: 0x3FFF},
		{name: "four bytes", input: []byte{0xC0, 0x00, 0x40, 0x00}, want: 0x4000},
		{name: "four bytes max", input: []byte{0xDF, 0xFF, 0xFF, 0xFF}, want: 0x1FFFFFFF},
		{name: "invalid lead byte", input: []byte{0xFF}, wantErr: true},
		{name: "truncated", input: []byte{0xC0, 0x00}, wantErr: true},
		{name: "empty", input: nil, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newCursor(tt.input)
			got := c.compressed()
			if tt.wantErr {
				assert.ErrorIs(t, c.err, ErrMalformed)
				return
			}
			assert.NoError(t, c.err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCursorCompressedSigned(t *testing.T) {
	tests := []struct {
		input []byte
		want  int32
	}{
		{input: []byte{0x06}, want: 3},
		{input: []byte{0x7B}, want: -3},
		{input: []byte{0x80, 0x80}, want: 64},
		{input: []byte{0x01}, want: -64},
		{input: []byte{0xC0, 0x00, 0x40, 0x00}, want: 8192},
		{input: []byte{0x80, 0x01}, want: -8192},
		{input: []byte{0xDF, 0xFF, 0xFF, 0xFE}, want: 268435455},
		{input: []byte{0xC0, 0x00, 0x00, 0x01}, want: -268435456},
	}

	for _, tt := range tests {
		c := newCursor(tt.input)
		assert.Equal(t, tt.want, c.compressedSigned(), "input %x", tt.input)
		assert.NoError(t, c.err)
	}
}

func TestCursorStickyError(t *testing.T) {
	c := newCursor([]byte{0x01, 0x02})
	assert.Equal(t, uint16(0x0201), c.u16())
	assert.Equal(t, uint32(0), c.u32())
	assert.ErrorIs(t, c.err, ErrMalformed)
	assert.Equal(t, uint8(0), c.u8())
	assert.Nil(t, c.bytes(1))
}

func TestCursorPaddedName(t *testing.T) {
	c := newCursor([]byte("#Strings\x00\x00\x00\x00#US\x00"))
	assert.Equal(t, "#Strings", c.paddedName())
	assert.Equal(t, 12, c.off)
	assert.Equal(t, "#US", c.paddedName())
	assert.Equal(t, 16, c.off)
	assert.NoError(t, c.err)

	c = newCursor([]byte("#~"))
	c.paddedName()
	assert.ErrorIs(t, c.err, ErrMalformed)
}
