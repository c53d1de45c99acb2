package dotnet

import (
	"bytes"
	"fmt"
	"unicode/utf16"
)

const metadataSignature = 0x424A5342 // "BSJB"

// metadata holds the streams of a metadata root.
type metadata struct {
	strings []byte
	us      []byte
	blob    []byte
	guid    []byte
	tables  *tableStream
}

func parseMetadata(root []byte) (*metadata, error) {
	c := newCursor(root)
	if c.u32() != metadataSignature {
		if c.err != nil {
			return nil, c.err
		}
		return nil, fmt.Errorf("%w: bad metadata signature", ErrNotManaged)
	}
	c.skip(8) // major, minor, reserved
	versionLen := c.u32()
	c.skip(int(versionLen))
	c.skip(2) // flags
	streams := int(c.u16())
	if c.err != nil {
		return nil, fmt.Errorf("metadata root: %w", c.err)
	}

	md := &metadata{}
	var tableData []byte
	for i := 0; i < streams; i++ {
		off := c.u32()
		size := c.u32()
		name := c.paddedName()
		if c.err != nil {
			return nil, fmt.Errorf("stream header %d: %w", i, c.err)
		}
		if uint64(off)+uint64(size) > uint64(len(root)) {
			return nil, fmt.Errorf("%w: stream %q exceeds metadata root", ErrMalformed, name)
		}
		data := root[off : off+size]
		switch name {
		case "#~", "#-":
			tableData = data
		case "#Strings":
			md.strings = data
		case "#US":
			md.us = data
		case "#Blob":
			md.blob = data
		case "#GUID":
			md.guid = data
		}
	}
	if tableData == nil {
		return nil, fmt.Errorf("%w: no table stream", ErrMalformed)
	}
	ts, err := parseTableStream(tableData)
	if err != nil {
		return nil, err
	}
	md.tables = ts
	return md, nil
}

// str reads a #Strings heap entry. Out-of-range indexes yield "".
func (md *metadata) str(idx uint32) string {
	if int(idx) >= len(md.strings) {
		return ""
	}
	rest := md.strings[idx:]
	if end := bytes.IndexByte(rest, 0); end >= 0 {
		rest = rest[:end]
	}
	return string(rest)
}

func (md *metadata) blobAt(idx uint32) ([]byte, error) {
	c := &cursor{buf: md.blob, off: int(idx)}
	n := c.compressed()
	b := c.bytes(int(n))
	if c.err != nil {
		return nil, fmt.Errorf("blob 0x%x: %w", idx, c.err)
	}
	return b, nil
}

// userString reads a #US heap entry: UTF-16LE followed by one flag byte.
func (md *metadata) userString(idx uint32) (string, error) {
	c := &cursor{buf: md.us, off: int(idx)}
	n := c.compressed()
	b := c.bytes(int(n))
	if c.err != nil {
		return "", fmt.Errorf("user string 0x%x: %w", idx, c.err)
	}
	b = b[:len(b)&^1]
	units := make([]uint16, len(b)/2)
	for i := range units {
		units[i] = uint16(b[2*i]) | uint16(b[2*i+1])<<8
	}
	return string(utf16.Decode(units)), nil
}
