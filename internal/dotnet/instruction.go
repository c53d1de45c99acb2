package dotnet

import (
	"fmt"
	"strconv"
	"strings"
)

// BranchTarget is the absolute IL offset a branch jumps to.
type BranchTarget int

// LocalIndex identifies a local variable slot.
type LocalIndex int

// ArgIndex identifies a method argument slot.
type ArgIndex int

// Token is a metadata token the decoder does not resolve into a richer operand.
type Token uint32

// Instruction is one decoded CIL instruction.
type Instruction struct {
	Offset  int
	OpCode  OpCode
	Operand interface{}
}

// CallTarget returns the method operand of call-like instructions.
func (in Instruction) CallTarget() (*MethodRef, bool) {
	ref, ok := in.Operand.(*MethodRef)
	return ref, ok && ref != nil
}

// DirectCall returns the target of a call or callvirt instruction.
func (in Instruction) DirectCall() (*MethodRef, bool) {
	if in.OpCode != OpCall && in.OpCode != OpCallvirt {
		return nil, false
	}
	return in.CallTarget()
}

// StringOperand returns the literal of an ldstr instruction.
func (in Instruction) StringOperand() (string, bool) {
	if in.OpCode != OpLdstr {
		return "", false
	}
	s, ok := in.Operand.(string)
	return s, ok
}

// IntConstant returns the value pushed by any ldc.i4 form.
func (in Instruction) IntConstant() (int32, bool) {
	switch {
	case in.OpCode == OpLdcI4M1:
		return -1, true
	case in.OpCode >= OpLdcI40 && in.OpCode <= OpLdcI48:
		return int32(in.OpCode - OpLdcI40), true
	case in.OpCode == OpLdcI4S || in.OpCode == OpLdcI4:
		v, ok := in.Operand.(int32)
		return v, ok
	}
	return 0, false
}

// BranchTargetOffset returns the absolute target of a single-target branch.
func (in Instruction) BranchTargetOffset() (int, bool) {
	t, ok := in.Operand.(BranchTarget)
	return int(t), ok
}

// StoredLocal returns the local slot written by an stloc form.
func (in Instruction) StoredLocal() (int, bool) {
	switch in.OpCode {
	case OpStloc0, OpStloc1, OpStloc2, OpStloc3:
		return int(in.OpCode - OpStloc0), true
	case OpStlocS, OpStloc:
		v, ok := in.Operand.(LocalIndex)
		return int(v), ok
	}
	return 0, false
}

// LoadedLocal returns the local slot read by an ldloc form.
func (in Instruction) LoadedLocal() (int, bool) {
	switch in.OpCode {
	case OpLdloc0, OpLdloc1, OpLdloc2, OpLdloc3:
		return int(in.OpCode - OpLdloc0), true
	case OpLdlocS, OpLdloc:
		v, ok := in.Operand.(LocalIndex)
		return int(v), ok
	}
	return 0, false
}

// IsLocalLoad reports whether the instruction is any ldloc or ldloca form.
func (in Instruction) IsLocalLoad() bool {
	switch in.OpCode {
	case OpLdloc0, OpLdloc1, OpLdloc2, OpLdloc3, OpLdlocS, OpLdloc, OpLdlocaS, OpLdloca:
		return true
	}
	return false
}

func (in Instruction) String() string {
	head := fmt.Sprintf("IL_%04x: %s", in.Offset, in.OpCode.Name())
	operand := formatOperand(in.Operand)
	if operand == "" {
		return head
	}
	return head + " " + operand
}

func formatOperand(v interface{}) string {
	switch op := v.(type) {
	case nil:
		return ""
	case *MethodRef:
		if op == nil {
			return ""
		}
		return op.String()
	case string:
		return strconv.Quote(op)
	case BranchTarget:
		return fmt.Sprintf("IL_%04x", int(op))
	case []BranchTarget:
		parts := make([]string, len(op))
		for i, t := range op {
			parts[i] = fmt.Sprintf("IL_%04x", int(t))
		}
		return strings.Join(parts, ",")
	case LocalIndex:
		return fmt.Sprintf("V_%d", int(op))
	case ArgIndex:
		return fmt.Sprintf("A_%d", int(op))
	case Token:
		return fmt.Sprintf("0x%08x", uint32(op))
	default:
		return fmt.Sprint(op)
	}
}
