package dotnet

import (
	"bytes"
	"fmt"

	"github.com/Binject/debug/pe"
)

type section struct {
	virtualAddress uint32
	virtualSize    uint32
	rawOffset      uint32
	rawSize        uint32
}

// image maps RVAs of a PE file onto its raw bytes.
type image struct {
	raw            []byte
	sections       []section
	metadata       []byte
	runtimeVersion string
}

// openImage locates the metadata root through the COR20 header decoded by
// debug/pe. Its reads are unchecked, so the root is sliced here against raw
// section bounds.
func openImage(data []byte) (*image, error) {
	f, err := pe.NewFile(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotPE, err)
	}
	if f.OptionalHeader == nil {
		return nil, fmt.Errorf("%w: missing optional header", ErrNotPE)
	}
	if !f.IsManaged() {
		return nil, ErrNotManaged
	}

	cor20 := f.Net.NetDirectory
	if cor20.MetaDataRVA == 0 || cor20.MetaDataSize == 0 {
		return nil, ErrNotManaged
	}

	img := &image{raw: data, runtimeVersion: f.NetCLRVersion()}
	for _, s := range f.Sections {
		img.sections = append(img.sections, section{
			virtualAddress: s.VirtualAddress,
			virtualSize:    s.VirtualSize,
			rawOffset:      s.Offset,
			rawSize:        s.Size,
		})
	}

	img.metadata, err = img.slice(cor20.MetaDataRVA, cor20.MetaDataSize)
	if err != nil {
		return nil, fmt.Errorf("metadata root: %w", err)
	}
	return img, nil
}

// sliceFrom returns the raw bytes from rva to the end of its section.
func (img *image) sliceFrom(rva uint32) ([]byte, error) {
	for _, s := range img.sections {
		span := s.virtualSize
		if s.rawSize > span {
			span = s.rawSize
		}
		if rva < s.virtualAddress || rva-s.virtualAddress >= span {
			continue
		}
		delta := rva - s.virtualAddress
		if delta >= s.rawSize {
			break
		}
		start := uint64(s.rawOffset) + uint64(delta)
		end := uint64(s.rawOffset) + uint64(s.rawSize)
		if end > uint64(len(img.raw)) {
			end = uint64(len(img.raw))
		}
		if start >= end {
			break
		}
		return img.raw[start:end], nil
	}
	return nil, fmt.Errorf("%w: RVA 0x%08x is not backed by file data", ErrMalformed, rva)
}

func (img *image) slice(rva, size uint32) ([]byte, error) {
	b, err := img.sliceFrom(rva)
	if err != nil {
		return nil, err
	}
	if uint64(size) > uint64(len(b)) {
		return nil, fmt.Errorf("%w: %d bytes at RVA 0x%08x run past section end", ErrMalformed, size, rva)
	}
	return b[:size], nil
}
