package rules

import (
	"fmt"

	"github.com/scan-io-git/modscan/internal/dotnet"
)

// location renders "Type.Method:offset".
func location(typeName, method string, offset int) string {
	return fmt.Sprintf("%s.%s:%d", typeName, method, offset)
}

// literalsAround collects the non-empty string literals within window
// instructions on either side of index.
func literalsAround(instrs []dotnet.Instruction, index, window int) []string {
	start, end := index-window, index+window+1
	if start < 0 {
		start = 0
	}
	if end > len(instrs) {
		end = len(instrs)
	}
	var out []string
	for i := start; i < end; i++ {
		if s, ok := instrs[i].StringOperand(); ok && s != "" {
			out = append(out, s)
		}
	}
	return out
}

// firstLiteralBefore returns the earliest string literal in the window
// instructions before index.
func firstLiteralBefore(instrs []dotnet.Instruction, index, window int) (string, bool) {
	start := index - window
	if start < 0 {
		start = 0
	}
	for i := start; i < index && i < len(instrs); i++ {
		if s, ok := instrs[i].StringOperand(); ok {
			return s, true
		}
	}
	return "", false
}

// FolderArgument returns the first integer constant in the window
// instructions before a GetFolderPath call.
func FolderArgument(instrs []dotnet.Instruction, index, window int) (int, bool) {
	start := index - window
	if start < 0 {
		start = 0
	}
	for i := start; i < index && i < len(instrs); i++ {
		if v, ok := instrs[i].IntConstant(); ok {
			return int(v), true
		}
	}
	return 0, false
}

// isGetFolderPath matches System.Environment::GetFolderPath.
func isGetFolderPath(target *dotnet.MethodRef) bool {
	return target != nil && target.DeclaringType == "System.Environment" && target.Name == "GetFolderPath"
}

// offsetAt maps an instruction index of method to its byte offset, falling
// back to the index when the body is unavailable.
func offsetAt(method *dotnet.MethodDef, index int) int {
	instrs, err := method.Instructions()
	if err != nil || index < 0 || index >= len(instrs) {
		return index
	}
	return instrs[index].Offset
}
