package dotnet

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func listingFixture() []Instruction {
	return []Instruction{
		{Offset: 0, OpCode: OpLdstr, Operand: "a"},
		{Offset: 5, OpCode: OpLdstr, Operand: "b"},
		{Offset: 10, OpCode: OpCall, Operand: NewMethodRef("System.Console", "WriteLine", "System.String")},
		{Offset: 15, OpCode: OpNop},
		{Offset: 16, OpCode: OpRet},
	}
}

func TestSnippet(t *testing.T) {
	instrs := listingFixture()

	assert.Equal(t,
		"    IL_0005: ldstr \"b\"\n"+
			">>> IL_000a: call System.Void System.Console::WriteLine(System.String)\n"+
			"    IL_000f: nop",
		Snippet(instrs, 2, 1))

	// Windows are clamped at both ends.
	assert.Equal(t, ">>> IL_0000: ldstr \"a\"\n    IL_0005: ldstr \"b\"", Snippet(instrs, 0, 1))
	assert.Equal(t, "    IL_000f: nop\n>>> IL_0010: ret", Snippet(instrs, 4, 1))
}

func TestListingAndDump(t *testing.T) {
	instrs := listingFixture()
	got := Listing(instrs, 3, 10, func(i int) bool { return i == 4 })
	assert.Equal(t, "    IL_000f: nop\n>>> IL_0010: ret", got)

	assert.Equal(t, "IL_000f: nop\nIL_0010: ret", Dump(instrs[3:]))
	assert.Equal(t, 2, IndexOfOffset(instrs, 10))
	assert.Equal(t, -1, IndexOfOffset(instrs, 11))
}
