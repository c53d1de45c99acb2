package dotnet

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

const maxTypeDepth = 32

// typeResolver names the target of a TypeDefOrRef(OrSpec) reference.
type typeResolver interface {
	typeDefOrRefName(t tableID, row uint32, depth int) string
}

var primitiveTypes = map[byte]string{
	0x01: "System.Void",
	0x02: "System.Boolean",
	0x03: "System.Char",
	0x04: "System.SByte",
	0x05: "System.Byte",
	0x06: "System.Int16",
	0x07: "System.UInt16",
	0x08: "System.Int32",
	0x09: "System.UInt32",
	0x0A: "System.Int64",
	0x0B: "System.UInt64",
	0x0C: "System.Single",
	0x0D: "System.Double",
	0x0E: "System.String",
	0x16: "System.TypedReference",
	0x18: "System.IntPtr",
	0x19: "System.UIntPtr",
	0x1C: "System.Object",
}

type sigReader struct {
	c     *cursor
	types typeResolver
	depth int
}

func newSigReader(blob []byte, types typeResolver, depth int) *sigReader {
	return &sigReader{c: newCursor(blob), types: types, depth: depth}
}

type methodSig struct {
	ret    string
	params []string
}

func decodeMethodSig(blob []byte, types typeResolver) (methodSig, error) {
	s := newSigReader(blob, types, 0)
	cc := s.c.u8()
	if s.c.err == nil && cc&0x0F == 0x06 {
		return methodSig{}, fmt.Errorf("%w: field signature where method signature expected", ErrMalformed)
	}
	if cc&0x10 != 0 {
		s.c.compressed() // generic parameter count
	}
	n := s.c.compressed()
	if s.c.err == nil && int(n) > s.c.remaining() {
		return methodSig{}, fmt.Errorf("%w: %d parameters in a %d byte signature", ErrMalformed, n, len(blob))
	}
	sig := methodSig{ret: s.typeName()}
	for i := uint32(0); i < n && s.c.err == nil; i++ {
		sig.params = append(sig.params, s.typeName())
	}
	if s.c.err != nil {
		return methodSig{}, s.c.err
	}
	return sig, nil
}

// decodeGenericInst decodes a MethodSpec instantiation blob.
func decodeGenericInst(blob []byte, types typeResolver) ([]string, error) {
	s := newSigReader(blob, types, 0)
	if s.c.u8() != 0x0A {
		if s.c.err != nil {
			return nil, s.c.err
		}
		return nil, fmt.Errorf("%w: bad generic instantiation prolog", ErrMalformed)
	}
	n := s.c.compressed()
	if s.c.err == nil && int(n) > s.c.remaining() {
		return nil, fmt.Errorf("%w: %d generic arguments in a %d byte blob", ErrMalformed, n, len(blob))
	}
	var args []string
	for i := uint32(0); i < n && s.c.err == nil; i++ {
		args = append(args, s.typeName())
	}
	if s.c.err != nil {
		return nil, s.c.err
	}
	return args, nil
}

func (s *sigReader) typeName() string {
	if s.depth > maxTypeDepth {
		if s.c.err == nil {
			s.c.err = fmt.Errorf("%w: type signature nested too deeply", ErrMalformed)
		}
		return ""
	}
	s.depth++
	defer func() { s.depth-- }()

	et := s.c.u8()
	if s.c.err != nil {
		return ""
	}
	if name, ok := primitiveTypes[et]; ok {
		return name
	}
	switch et {
	case 0x0F: // PTR
		return s.typeName() + "*"
	case 0x10: // BYREF
		return s.typeName() + "&"
	case 0x11, 0x12: // VALUETYPE, CLASS
		return s.typeToken(s.c.compressed())
	case 0x13: // VAR
		return "!" + strconv.Itoa(int(s.c.compressed()))
	case 0x1E: // MVAR
		return "!!" + strconv.Itoa(int(s.c.compressed()))
	case 0x14: // ARRAY
		elem := s.typeName()
		rank := s.c.compressed()
		for i, n := uint32(0), s.c.compressed(); i < n && s.c.err == nil; i++ {
			s.c.compressed()
		}
		for i, n := uint32(0), s.c.compressed(); i < n && s.c.err == nil; i++ {
			s.c.compressedSigned()
		}
		if rank == 0 || rank > 32 {
			return elem + "[?]"
		}
		return elem + "[" + strings.Repeat(",", int(rank)-1) + "]"
	case 0x15: // GENERICINST
		s.c.u8()
		base := s.typeToken(s.c.compressed())
		n := s.c.compressed()
		if s.c.err == nil && int(n) > s.c.remaining() {
			s.c.err = fmt.Errorf("%w: %d generic arguments exceed signature", ErrMalformed, n)
			return ""
		}
		args := make([]string, 0, n)
		for i := uint32(0); i < n && s.c.err == nil; i++ {
			args = append(args, s.typeName())
		}
		return base + "<" + strings.Join(args, ",") + ">"
	case 0x1B: // FNPTR
		s.skipMethodSig()
		return "method"
	case 0x1D: // SZARRAY
		return s.typeName() + "[]"
	case 0x1F, 0x20: // CMOD_REQD, CMOD_OPT
		s.c.compressed()
		return s.typeName()
	case 0x41, 0x45: // SENTINEL, PINNED
		return s.typeName()
	}
	s.c.err = fmt.Errorf("%w: unknown element type 0x%02x", ErrMalformed, et)
	return ""
}

func (s *sigReader) skipMethodSig() {
	cc := s.c.u8()
	if cc&0x10 != 0 {
		s.c.compressed()
	}
	n := s.c.compressed()
	s.typeName()
	for i := uint32(0); i < n && s.c.err == nil; i++ {
		s.typeName()
	}
}

// typeToken resolves a TypeDefOrRefOrSpecEncoded value.
func (s *sigReader) typeToken(tok uint32) string {
	if s.c.err != nil {
		return ""
	}
	t, row := typeDefOrRef.decode(tok)
	if t == tNone || s.types == nil {
		return fmt.Sprintf("type_%08x", tok)
	}
	return s.types.typeDefOrRefName(t, row, s.depth)
}

// decodeAttributeArgs decodes the fixed arguments of a custom attribute blob.
// Decoding stops at the first argument type it does not handle.
func decodeAttributeArgs(blob []byte, paramTypes []string) []interface{} {
	c := newCursor(blob)
	if c.u16() != 0x0001 {
		return nil
	}
	var args []interface{}
	for _, t := range paramTypes {
		var v interface{}
		switch t {
		case "System.String", "System.Type":
			if c.remaining() > 0 && c.buf[c.off] == 0xFF {
				c.skip(1)
				args = append(args, nil)
				continue
			}
			n := c.compressed()
			v = string(c.bytes(int(n)))
		case "System.Boolean":
			v = c.u8() != 0
		case "System.Byte":
			v = c.u8()
		case "System.SByte":
			v = int8(c.u8())
		case "System.Char", "System.UInt16":
			v = c.u16()
		case "System.Int16":
			v = int16(c.u16())
		case "System.Int32":
			v = int32(c.u32())
		case "System.UInt32":
			v = c.u32()
		case "System.Single":
			v = math.Float32frombits(c.u32())
		case "System.Int64":
			v = int64(c.u64())
		case "System.UInt64":
			v = c.u64()
		case "System.Double":
			v = math.Float64frombits(c.u64())
		default:
			return args
		}
		if c.err != nil {
			return args
		}
		args = append(args, v)
	}
	return args
}
