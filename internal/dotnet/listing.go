package dotnet

import (
	"strings"
	"unicode"
)

// Listing renders instrs[start:end] one per line. Lines for which marked
// returns true are prefixed with ">>> ", the others are indented to match.
// Bounds are clamped to the slice.
func Listing(instrs []Instruction, start, end int, marked func(i int) bool) string {
	if start < 0 {
		start = 0
	}
	if end > len(instrs) {
		end = len(instrs)
	}
	var b strings.Builder
	for i := start; i < end; i++ {
		if marked != nil && marked(i) {
			b.WriteString(">>> ")
		} else {
			b.WriteString("    ")
		}
		b.WriteString(instrs[i].String())
		b.WriteByte('\n')
	}
	return strings.TrimRightFunc(b.String(), unicode.IsSpace)
}

// Snippet renders the instructions within context lines of index with the
// instruction at index marked.
func Snippet(instrs []Instruction, index, context int) string {
	return Listing(instrs, index-context, index+context+1, func(i int) bool { return i == index })
}

// Dump renders a whole method body without markers.
func Dump(instrs []Instruction) string {
	lines := make([]string, len(instrs))
	for i, in := range instrs {
		lines[i] = in.String()
	}
	return strings.Join(lines, "\n")
}

// IndexOfOffset returns the position of the instruction at the given byte offset.
func IndexOfOffset(instrs []Instruction, offset int) int {
	for i, in := range instrs {
		if in.Offset == offset {
			return i
		}
	}
	return -1
}
