// Package dotnettest builds instruction streams for engine tests.
package dotnettest

import (
	"github.com/scan-io-git/modscan/internal/dotnet"
)

// Body assigns sequential offsets to the given instructions, five bytes apart.
func Body(instrs ...dotnet.Instruction) []dotnet.Instruction {
	out := make([]dotnet.Instruction, len(instrs))
	for i, in := range instrs {
		in.Offset = i * 5
		out[i] = in
	}
	return out
}

// Call is a call instruction to declaringType::name with the given parameter types.
func Call(declaringType, name string, params ...string) dotnet.Instruction {
	return dotnet.Instruction{OpCode: dotnet.OpCall, Operand: dotnet.NewMethodRef(declaringType, name, params...)}
}

// Callvirt is a callvirt instruction to declaringType::name.
func Callvirt(declaringType, name string, params ...string) dotnet.Instruction {
	return dotnet.Instruction{OpCode: dotnet.OpCallvirt, Operand: dotnet.NewMethodRef(declaringType, name, params...)}
}

// CallRef is a call instruction to a prepared target.
func CallRef(ref *dotnet.MethodRef) dotnet.Instruction {
	return dotnet.Instruction{OpCode: dotnet.OpCall, Operand: ref}
}

// Generic returns a call target with generic method arguments.
func Generic(declaringType, name string, genericArgs ...string) *dotnet.MethodRef {
	ref := dotnet.NewMethodRef(declaringType, name)
	ref.GenericArgs = genericArgs
	return ref
}

// Ldstr loads a string literal.
func Ldstr(s string) dotnet.Instruction {
	return dotnet.Instruction{OpCode: dotnet.OpLdstr, Operand: s}
}

// LdcI4 loads an int32 constant using the short form when it fits.
func LdcI4(v int32) dotnet.Instruction {
	if v >= -128 && v <= 127 {
		return dotnet.Instruction{OpCode: dotnet.OpLdcI4S, Operand: v}
	}
	return dotnet.Instruction{OpCode: dotnet.OpLdcI4, Operand: v}
}

// Stloc stores to a local slot using the short forms for 0..3.
func Stloc(slot int) dotnet.Instruction {
	if slot <= 3 {
		return dotnet.Instruction{OpCode: dotnet.OpStloc0 + dotnet.OpCode(slot)}
	}
	return dotnet.Instruction{OpCode: dotnet.OpStlocS, Operand: dotnet.LocalIndex(slot)}
}

// Ldloc loads a local slot using the short forms for 0..3.
func Ldloc(slot int) dotnet.Instruction {
	if slot <= 3 {
		return dotnet.Instruction{OpCode: dotnet.OpLdloc0 + dotnet.OpCode(slot)}
	}
	return dotnet.Instruction{OpCode: dotnet.OpLdlocS, Operand: dotnet.LocalIndex(slot)}
}

// Branch is a branch to the instruction at index target, resolved against
// the offsets Body assigns.
func Branch(op dotnet.OpCode, target int) dotnet.Instruction {
	return dotnet.Instruction{OpCode: op, Operand: dotnet.BranchTarget(target * 5)}
}

// Op is an instruction without operand.
func Op(op dotnet.OpCode) dotnet.Instruction {
	return dotnet.Instruction{OpCode: op}
}

// Method attaches a method with the given body to a fresh type.
func Method(typeFullName, name string, body []dotnet.Instruction) *dotnet.MethodDef {
	return Type(typeFullName).AddMethod(name, body)
}

// Type creates a type from a dotted full name.
func Type(fullName string) *dotnet.TypeDef {
	for i := len(fullName) - 1; i >= 0; i-- {
		if fullName[i] == '.' {
			return dotnet.NewType(fullName[:i], fullName[i+1:])
		}
	}
	return dotnet.NewType("", fullName)
}
