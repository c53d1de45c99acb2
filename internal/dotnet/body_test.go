package dotnet

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeOperands struct {
	methods map[uint32]*MethodRef
	strings map[uint32]string
}

func (f fakeOperands) resolveMethod(token uint32) (*MethodRef, error) {
	if ref, ok := f.methods[token]; ok {
		return ref, nil
	}
	return nil, errors.New("unknown method token")
}

func (f fakeOperands) resolveString(index uint32) (string, error) {
	if s, ok := f.strings[index]; ok {
		return s, nil
	}
	return "", errors.New("unknown string")
}

func TestDecodeIL(t *testing.T) {
	start := NewMethodRef("System.Diagnostics.Process", "Start", "System.String")
	res := fakeOperands{
		methods: map[uint32]*MethodRef{0x0A000001: start},
		strings: map[uint32]string{1: "cmd.exe"},
	}
	code := []byte{
		0x72, 0x01, 0x00, 0x00, 0x70, // IL_0000 ldstr
		0x28, 0x01, 0x00, 0x00, 0x0A, // IL_0005 call
		0x1F, 0xFE, // IL_000a ldc.i4.s -2
		0x2B, 0xFC, // IL_000c br.s IL_000a
		0xFE, 0x0E, 0x02, 0x00, // IL_000e stloc 2
		0x0A,                         // IL_0012 stloc.0
		0x28, 0x09, 0x00, 0x00, 0x0A, // IL_0013 call to an unknown token
		0x2A, // IL_0018 ret
	}

	instrs, err := decodeIL(code, res)
	require.NoError(t, err)
	require.Len(t, instrs, 8)

	s, ok := instrs[0].StringOperand()
	assert.True(t, ok)
	assert.Equal(t, "cmd.exe", s)

	target, ok := instrs[1].CallTarget()
	assert.True(t, ok)
	assert.Same(t, start, target)
	assert.Equal(t, 5, instrs[1].Offset)

	v, ok := instrs[2].IntConstant()
	assert.True(t, ok)
	assert.Equal(t, int32(-2), v)

	branch, ok := instrs[3].BranchTargetOffset()
	assert.True(t, ok)
	assert.Equal(t, 0x0a, branch)

	slot, ok := instrs[4].StoredLocal()
	assert.True(t, ok)
	assert.Equal(t, 2, slot)
	assert.Equal(t, OpStloc, instrs[4].OpCode)

	slot, ok = instrs[5].StoredLocal()
	assert.True(t, ok)
	assert.Equal(t, 0, slot)

	_, ok = instrs[6].CallTarget()
	assert.False(t, ok)
	assert.Equal(t, Token(0x0A000009), instrs[6].Operand)

	assert.Equal(t, OpRet, instrs[7].OpCode)
}

func TestDecodeILUnknownOpcode(t *testing.T) {
	instrs, err := decodeIL([]byte{0x00, 0x24}, fakeOperands{})
	assert.ErrorIs(t, err, ErrMalformed)
	assert.Len(t, instrs, 1)
}

func TestDecodeILTruncatedOperand(t *testing.T) {
	_, err := decodeIL([]byte{0x20, 0x01, 0x02}, fakeOperands{})
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestDecodeILSwitch(t *testing.T) {
	code := []byte{
		0x45, 0x02, 0x00, 0x00, 0x00, // switch, 2 targets
		0x00, 0x00, 0x00, 0x00,
		0x01, 0x00, 0x00, 0x00,
		0x00, // nop at IL_000d
		0x2A, // ret at IL_000e
	}
	instrs, err := decodeIL(code, fakeOperands{})
	require.NoError(t, err)
	require.Len(t, instrs, 3)
	assert.Equal(t, []BranchTarget{0x0d, 0x0e}, instrs[0].Operand)
}

func TestParseMethodBody(t *testing.T) {
	tests := []struct {
		name    string
		data    []byte
		want    []OpCode
		wantErr bool
	}{
		{
			name: "tiny header",
			data: []byte{0x0A, 0x00, 0x2A},
			want: []OpCode{OpNop, OpRet},
		},
		{
			name: "fat header",
			data: []byte{
				0x13, 0x30, 0x08, 0x00,
				0x02, 0x00, 0x00, 0x00,
				0x00, 0x00, 0x00, 0x00,
				0x16, 0x2A,
			},
			want: []OpCode{OpLdcI40, OpRet},
		},
		{
			name:    "code size past end",
			data:    []byte{0x1E, 0x00},
			wantErr: true,
		},
		{
			name:    "unknown header",
			data:    []byte{0x00},
			wantErr: true,
		},
		{
			name:    "empty",
			data:    nil,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			instrs, err := parseMethodBody(tt.data, fakeOperands{})
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			var ops []OpCode
			for _, in := range instrs {
				ops = append(ops, in.OpCode)
			}
			assert.Equal(t, tt.want, ops)
		})
	}
}
