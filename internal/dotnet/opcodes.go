package dotnet

import "fmt"

// OpCode is a CIL opcode. Two-byte opcodes are stored as 0xFExx.
type OpCode uint16

type operandKind uint8

const (
	operandNone operandKind = iota
	operandShortLocal
	operandShortArg
	operandShortInt
	operandShortUInt
	operandShortBranch
	operandInt
	operandInt64
	operandFloat32
	operandFloat64
	operandMethod
	operandSig
	operandBranch
	operandField
	operandType
	operandString
	operandToken
	operandSwitch
	operandLocal
	operandArg
)

type opcodeInfo struct {
	name    string
	operand operandKind
}

// Opcodes the analyzers match on.
const (
	OpNop       OpCode = 0x00
	OpLdarg0    OpCode = 0x02
	OpLdarg1    OpCode = 0x03
	OpLdloc0    OpCode = 0x06
	OpLdloc1    OpCode = 0x07
	OpLdloc2    OpCode = 0x08
	OpLdloc3    OpCode = 0x09
	OpStloc0    OpCode = 0x0A
	OpStloc1    OpCode = 0x0B
	OpStloc2    OpCode = 0x0C
	OpStloc3    OpCode = 0x0D
	OpLdlocS    OpCode = 0x11
	OpLdlocaS   OpCode = 0x12
	OpStlocS    OpCode = 0x13
	OpLdnull    OpCode = 0x14
	OpLdcI4M1   OpCode = 0x15
	OpLdcI40    OpCode = 0x16
	OpLdcI41    OpCode = 0x17
	OpLdcI42    OpCode = 0x18
	OpLdcI43    OpCode = 0x19
	OpLdcI44    OpCode = 0x1A
	OpLdcI45    OpCode = 0x1B
	OpLdcI46    OpCode = 0x1C
	OpLdcI47    OpCode = 0x1D
	OpLdcI48    OpCode = 0x1E
	OpLdcI4S    OpCode = 0x1F
	OpLdcI4     OpCode = 0x20
	OpLdcI8     OpCode = 0x21
	OpDup       OpCode = 0x25
	OpPop       OpCode = 0x26
	OpCall      OpCode = 0x28
	OpRet       OpCode = 0x2A
	OpBrS       OpCode = 0x2B
	OpBrtrueS   OpCode = 0x2D
	OpBr        OpCode = 0x38
	OpBrtrue    OpCode = 0x3A
	OpAdd       OpCode = 0x58
	OpCallvirt  OpCode = 0x6F
	OpLdstr     OpCode = 0x72
	OpNewobj    OpCode = 0x73
	OpNewarr    OpCode = 0x8D
	OpLdlen     OpCode = 0x8E
	OpConvI4    OpCode = 0x69
	OpConvU2    OpCode = 0xD1
	OpStelemRef OpCode = 0xA2
	OpLdelemRef OpCode = 0x9A
	OpClt       OpCode = 0xFE04
	OpLdloc     OpCode = 0xFE0C
	OpLdloca    OpCode = 0xFE0D
	OpStloc     OpCode = 0xFE0E
	OpLdftn     OpCode = 0xFE06
)

var opcodeTable = map[OpCode]opcodeInfo{
	0x00: {"nop", operandNone},
	0x01: {"break", operandNone},
	0x02: {"ldarg.0", operandNone},
	0x03: {"ldarg.1", operandNone},
	0x04: {"ldarg.2", operandNone},
	0x05: {"ldarg.3", operandNone},
	0x06: {"ldloc.0", operandNone},
	0x07: {"ldloc.1", operandNone},
	0x08: {"ldloc.2", operandNone},
	0x09: {"ldloc.3", operandNone},
	0x0A: {"stloc.0", operandNone},
	0x0B: {"stloc.1", operandNone},
	0x0C: {"stloc.2", operandNone},
	0x0D: {"stloc.3", operandNone},
	0x0E: {"ldarg.s", operandShortArg},
	0x0F: {"ldarga.s", operandShortArg},
	0x10: {"starg.s", operandShortArg},
	0x11: {"ldloc.s", operandShortLocal},
	0x12: {"ldloca.s", operandShortLocal},
	0x13: {"stloc.s", operandShortLocal},
	0x14: {"ldnull", operandNone},
	0x15: {"ldc.i4.m1", operandNone},
	0x16: {"ldc.i4.0", operandNone},
	0x17: {"ldc.i4.1", operandNone},
	0x18: {"ldc.i4.2", operandNone},
	0x19: {"ldc.i4.3", operandNone},
	0x1A: {"ldc.i4.4", operandNone},
	0x1B: {"ldc.i4.5", operandNone},
	0x1C: {"ldc.i4.6", operandNone},
	0x1D: {"ldc.i4.7", operandNone},
	0x1E: {"ldc.i4.8", operandNone},
	0x1F: {"ldc.i4.s", operandShortInt},
	0x20: {"ldc.i4", operandInt},
	0x21: {"ldc.i8", operandInt64},
	0x22: {"ldc.r4", operandFloat32},
	0x23: {"ldc.r8", operandFloat64},
	0x25: {"dup", operandNone},
	0x26: {"pop", operandNone},
	0x27: {"jmp", operandMethod},
	0x28: {"call", operandMethod},
	0x29: {"calli", operandSig},
	0x2A: {"ret", operandNone},
	0x2B: {"br.s", operandShortBranch},
	0x2C: {"brfalse.s", operandShortBranch},
	0x2D: {"brtrue.s", operandShortBranch},
	0x2E: {"beq.s", operandShortBranch},
	0x2F: {"bge.s", operandShortBranch},
	0x30: {"bgt.s", operandShortBranch},
	0x31: {"ble.s", operandShortBranch},
	0x32: {"blt.s", operandShortBranch},
	0x33: {"bne.un.s", operandShortBranch},
	0x34: {"bge.un.s", operandShortBranch},
	0x35: {"bgt.un.s", operandShortBranch},
	0x36: {"ble.un.s", operandShortBranch},
	0x37: {"blt.un.s", operandShortBranch},
	0x38: {"br", operandBranch},
	0x39: {"brfalse", operandBranch},
	0x3A: {"brtrue", operandBranch},
	0x3B: {"beq", operandBranch},
	0x3C: {"bge", operandBranch},
	0x3D: {"bgt", operandBranch},
	0x3E: {"ble", operandBranch},
	0x3F: {"blt", operandBranch},
	0x40: {"bne.un", operandBranch},
	0x41: {"bge.un", operandBranch},
	0x42: {"bgt.un", operandBranch},
	0x43: {"ble.un", operandBranch},
	0x44: {"blt.un", operandBranch},
	0x45: {"switch", operandSwitch},
	0x46: {"ldind.i1", operandNone},
	0x47: {"ldind.u1", operandNone},
	0x48: {"ldind.i2", operandNone},
	0x49: {"ldind.u2", operandNone},
	0x4A: {"ldind.i4", operandNone},
	0x4B: {"ldind.u4", operandNone},
	0x4C: {"ldind.i8", operandNone},
	0x4D: {"ldind.i", operandNone},
	0x4E: {"ldind.r4", operandNone},
	0x4F: {"ldind.r8", operandNone},
	0x50: {"ldind.ref", operandNone},
	0x51: {"stind.ref", operandNone},
	0x52: {"stind.i1", operandNone},
	0x53: {"stind.i2", operandNone},
	0x54: {"stind.i4", operandNone},
	0x55: {"stind.i8", operandNone},
	0x56: {"stind.r4", operandNone},
	0x57: {"stind.r8", operandNone},
	0x58: {"add", operandNone},
	0x59: {"sub", operandNone},
	0x5A: {"mul", operandNone},
	0x5B: {"div", operandNone},
	0x5C: {"div.un", operandNone},
	0x5D: {"rem", operandNone},
	0x5E: {"rem.un", operandNone},
	0x5F: {"and", operandNone},
	0x60: {"or", operandNone},
	0x61: {"xor", operandNone},
	0x62: {"shl", operandNone},
	0x63: {"shr", operandNone},
	0x64: {"shr.un", operandNone},
	0x65: {"neg", operandNone},
	0x66: {"not", operandNone},
	0x67: {"conv.i1", operandNone},
	0x68: {"conv.i2", operandNone},
	0x69: {"conv.i4", operandNone},
	0x6A: {"conv.i8", operandNone},
	0x6B: {"conv.r4", operandNone},
	0x6C: {"conv.r8", operandNone},
	0x6D: {"conv.u4", operandNone},
	0x6E: {"conv.u8", operandNone},
	0x6F: {"callvirt", operandMethod},
	0x70: {"cpobj", operandType},
	0x71: {"ldobj", operandType},
	0x72: {"ldstr", operandString},
	0x73: {"newobj", operandMethod},
	0x74: {"castclass", operandType},
	0x75: {"isinst", operandType},
	0x76: {"conv.r.un", operandNone},
	0x79: {"unbox", operandType},
	0x7A: {"throw", operandNone},
	0x7B: {"ldfld", operandField},
	0x7C: {"ldflda", operandField},
	0x7D: {"stfld", operandField},
	0x7E: {"ldsfld", operandField},
	0x7F: {"ldsflda", operandField},
	0x80: {"stsfld", operandField},
	0x81: {"stobj", operandType},
	0x82: {"conv.ovf.i1.un", operandNone},
	0x83: {"conv.ovf.i2.un", operandNone},
	0x84: {"conv.ovf.i4.un", operandNone},
	0x85: {"conv.ovf.i8.un", operandNone},
	0x86: {"conv.ovf.u1.un", operandNone},
	0x87: {"conv.ovf.u2.un", operandNone},
	0x88: {"conv.ovf.u4.un", operandNone},
	0x89: {"conv.ovf.u8.un", operandNone},
	0x8A: {"conv.ovf.i.un", operandNone},
	0x8B: {"conv.ovf.u.un", operandNone},
	0x8C: {"box", operandType},
	0x8D: {"newarr", operandType},
	0x8E: {"ldlen", operandNone},
	0x8F: {"ldelema", operandType},
	0x90: {"ldelem.i1", operandNone},
	0x91: {"ldelem.u1", operandNone},
	0x92: {"ldelem.i2", operandNone},
	0x93: {"ldelem.u2", operandNone},
	0x94: {"ldelem.i4", operandNone},
	0x95: {"ldelem.u4", operandNone},
	0x96: {"ldelem.i8", operandNone},
	0x97: {"ldelem.i", operandNone},
	0x98: {"ldelem.r4", operandNone},
	0x99: {"ldelem.r8", operandNone},
	0x9A: {"ldelem.ref", operandNone},
	0x9B: {"stelem.i", operandNone},
	0x9C: {"stelem.i1", operandNone},
	0x9D: {"stelem.i2", operandNone},
	0x9E: {"stelem.i4", operandNone},
	0x9F: {"stelem.i8", operandNone},
	0xA0: {"stelem.r4", operandNone},
	0xA1: {"stelem.r8", operandNone},
	0xA2: {"stelem.ref", operandNone},
	0xA3: {"ldelem", operandType},
	0xA4: {"stelem", operandType},
	0xA5: {"unbox.any", operandType},
	0xB3: {"conv.ovf.i1", operandNone},
	0xB4: {"conv.ovf.u1", operandNone},
	0xB5: {"conv.ovf.i2", operandNone},
	0xB6: {"conv.ovf.u2", operandNone},
	0xB7: {"conv.ovf.i4", operandNone},
	0xB8: {"conv.ovf.u4", operandNone},
	0xB9: {"conv.ovf.i8", operandNone},
	0xBA: {"conv.ovf.u8", operandNone},
	0xC2: {"refanyval", operandType},
	0xC3: {"ckfinite", operandNone},
	0xC6: {"mkrefany", operandType},
	0xD0: {"ldtoken", operandToken},
	0xD1: {"conv.u2", operandNone},
	0xD2: {"conv.u1", operandNone},
	0xD3: {"conv.i", operandNone},
	0xD4: {"conv.ovf.i", operandNone},
	0xD5: {"conv.ovf.u", operandNone},
	0xD6: {"add.ovf", operandNone},
	0xD7: {"add.ovf.un", operandNone},
	0xD8: {"mul.ovf", operandNone},
	0xD9: {"mul.ovf.un", operandNone},
	0xDA: {"sub.ovf", operandNone},
	0xDB: {"sub.ovf.un", operandNone},
	0xDC: {"endfinally", operandNone},
	0xDD: {"leave", operandBranch},
	0xDE: {"leave.s", operandShortBranch},
	0xDF: {"stind.i", operandNone},
	0xE0: {"conv.u", operandNone},

	0xFE00: {"arglist", operandNone},
	0xFE01: {"ceq", operandNone},
	0xFE02: {"cgt", operandNone},
	0xFE03: {"cgt.un", operandNone},
	0xFE04: {"clt", operandNone},
	0xFE05: {"clt.un", operandNone},
	0xFE06: {"ldftn", operandMethod},
	0xFE07: {"ldvirtftn", operandMethod},
	0xFE09: {"ldarg", operandArg},
	0xFE0A: {"ldarga", operandArg},
	0xFE0B: {"starg", operandArg},
	0xFE0C: {"ldloc", operandLocal},
	0xFE0D: {"ldloca", operandLocal},
	0xFE0E: {"stloc", operandLocal},
	0xFE0F: {"localloc", operandNone},
	0xFE11: {"endfilter", operandNone},
	0xFE12: {"unaligned.", operandShortUInt},
	0xFE13: {"volatile.", operandNone},
	0xFE14: {"tail.", operandNone},
	0xFE15: {"initobj", operandType},
	0xFE16: {"constrained.", operandType},
	0xFE17: {"cpblk", operandNone},
	0xFE18: {"initblk", operandNone},
	0xFE19: {"no.", operandShortUInt},
	0xFE1A: {"rethrow", operandNone},
	0xFE1C: {"sizeof", operandType},
	0xFE1D: {"refanytype", operandNone},
	0xFE1E: {"readonly.", operandNone},
}

// Name returns the assembler mnemonic, e.g. "ldc.i4.s".
func (op OpCode) Name() string {
	if info, ok := opcodeTable[op]; ok {
		return info.name
	}
	return fmt.Sprintf("op_%04x", uint16(op))
}

func (op OpCode) String() string {
	return op.Name()
}

// IsCall reports whether the opcode carries a method operand.
func (op OpCode) IsCall() bool {
	info, ok := opcodeTable[op]
	return ok && info.operand == operandMethod
}
