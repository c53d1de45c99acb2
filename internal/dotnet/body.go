package dotnet

import (
	"fmt"
	"math"
)

// operandResolver turns metadata tokens found in IL into operands.
type operandResolver interface {
	resolveMethod(token uint32) (*MethodRef, error)
	resolveString(index uint32) (string, error)
}

// parseMethodBody reads a tiny or fat method header and decodes the IL that follows.
func parseMethodBody(data []byte, res operandResolver) ([]Instruction, error) {
	c := newCursor(data)
	first := c.u8()
	if c.err != nil {
		return nil, c.err
	}
	var codeSize int
	switch first & 0x03 {
	case 0x02:
		codeSize = int(first >> 2)
	case 0x03:
		c.off = 0
		flags := c.u16()
		headerSize := int(flags>>12) * 4
		c.skip(2) // max stack
		codeSize = int(c.u32())
		if c.err != nil {
			return nil, c.err
		}
		if headerSize < 12 {
			return nil, fmt.Errorf("%w: fat method header of %d bytes", ErrMalformed, headerSize)
		}
		c.off = headerSize
	default:
		return nil, fmt.Errorf("%w: unknown method header format 0x%02x", ErrMalformed, first)
	}
	code := c.bytes(codeSize)
	if c.err != nil {
		return nil, fmt.Errorf("method body: %w", c.err)
	}
	return decodeIL(code, res)
}

func decodeIL(code []byte, res operandResolver) ([]Instruction, error) {
	c := newCursor(code)
	var out []Instruction
	for c.remaining() > 0 {
		start := c.off
		op := OpCode(c.u8())
		if op == 0xFE {
			op = 0xFE00 | OpCode(c.u8())
		}
		info, ok := opcodeTable[op]
		if !ok {
			return out, fmt.Errorf("%w: unknown opcode 0x%x at IL_%04x", ErrMalformed, uint16(op), start)
		}
		in := Instruction{Offset: start, OpCode: op}
		switch info.operand {
		case operandShortLocal:
			in.Operand = LocalIndex(c.u8())
		case operandShortArg:
			in.Operand = ArgIndex(c.u8())
		case operandShortInt:
			in.Operand = int32(int8(c.u8()))
		case operandShortUInt:
			in.Operand = int32(c.u8())
		case operandShortBranch:
			delta := int8(c.u8())
			in.Operand = BranchTarget(c.off + int(delta))
		case operandInt:
			in.Operand = int32(c.u32())
		case operandInt64:
			in.Operand = int64(c.u64())
		case operandFloat32:
			in.Operand = math.Float32frombits(c.u32())
		case operandFloat64:
			in.Operand = math.Float64frombits(c.u64())
		case operandBranch:
			delta := int32(c.u32())
			in.Operand = BranchTarget(c.off + int(delta))
		case operandSwitch:
			n := c.u32()
			if c.err == nil && uint64(n)*4 > uint64(c.remaining()) {
				return out, fmt.Errorf("%w: switch with %d targets at IL_%04x", ErrMalformed, n, start)
			}
			deltas := make([]int32, n)
			for i := range deltas {
				deltas[i] = int32(c.u32())
			}
			targets := make([]BranchTarget, n)
			for i, d := range deltas {
				targets[i] = BranchTarget(c.off + int(d))
			}
			in.Operand = targets
		case operandLocal:
			in.Operand = LocalIndex(c.u16())
		case operandArg:
			in.Operand = ArgIndex(c.u16())
		case operandMethod:
			tok := c.u32()
			if c.err != nil {
				break
			}
			if ref, err := res.resolveMethod(tok); err == nil && ref != nil {
				in.Operand = ref
			} else {
				in.Operand = Token(tok)
			}
		case operandString:
			tok := c.u32()
			if c.err != nil {
				break
			}
			if s, err := res.resolveString(tok & 0x00FFFFFF); err == nil {
				in.Operand = s
			} else {
				in.Operand = Token(tok)
			}
		case operandField, operandType, operandToken, operandSig:
			in.Operand = Token(c.u32())
		}
		if c.err != nil {
			return out, fmt.Errorf("IL_%04x: %w", start, c.err)
		}
		out = append(out, in)
	}
	return out, nil
}
