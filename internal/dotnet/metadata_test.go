package dotnet

import (
	"bytes"
	"encoding/binary"
	"sort"
	"testing"
	"unicode/utf16"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mdBuilder assembles a small uncompressed-index metadata root for tests.
type mdBuilder struct {
	strings bytes.Buffer
	us      bytes.Buffer
	blobs   bytes.Buffer
	rows    map[tableID][][]uint32
}

func newMDBuilder() *mdBuilder {
	b := &mdBuilder{rows: make(map[tableID][][]uint32)}
	b.strings.WriteByte(0)
	b.us.WriteByte(0)
	b.blobs.WriteByte(0)
	return b
}

func (b *mdBuilder) str(s string) uint32 {
	if s == "" {
		return 0
	}
	off := uint32(b.strings.Len())
	b.strings.WriteString(s)
	b.strings.WriteByte(0)
	return off
}

func (b *mdBuilder) blob(data ...byte) uint32 {
	off := uint32(b.blobs.Len())
	b.blobs.WriteByte(byte(len(data)))
	b.blobs.Write(data)
	return off
}

func (b *mdBuilder) userString(s string) uint32 {
	off := uint32(b.us.Len())
	units := utf16.Encode([]rune(s))
	b.us.WriteByte(byte(len(units)*2 + 1))
	for _, u := range units {
		b.us.WriteByte(byte(u))
		b.us.WriteByte(byte(u >> 8))
	}
	b.us.WriteByte(0)
	return off
}

func (b *mdBuilder) add(t tableID, cells ...uint32) uint32 {
	b.rows[t] = append(b.rows[t], cells)
	return uint32(len(b.rows[t]))
}

func pad4(buf *bytes.Buffer) {
	for buf.Len()%4 != 0 {
		buf.WriteByte(0)
	}
}

func (b *mdBuilder) tableStream() []byte {
	var ids []int
	var valid uint64
	for t := range b.rows {
		ids = append(ids, int(t))
		valid |= 1 << uint(t)
	}
	sort.Ints(ids)

	var out bytes.Buffer
	le := binary.LittleEndian
	_ = binary.Write(&out, le, uint32(0))
	out.Write([]byte{2, 0, 0, 1})
	_ = binary.Write(&out, le, valid)
	_ = binary.Write(&out, le, uint64(0))
	for _, id := range ids {
		_ = binary.Write(&out, le, uint32(len(b.rows[tableID(id)])))
	}
	for _, id := range ids {
		schema := tableSchemas[id]
		for _, row := range b.rows[tableID(id)] {
			for i, col := range schema {
				if col.kind == colU32 {
					_ = binary.Write(&out, le, row[i])
				} else {
					_ = binary.Write(&out, le, uint16(row[i]))
				}
			}
		}
	}
	return out.Bytes()
}

func (b *mdBuilder) build() []byte {
	type stream struct {
		name string
		data []byte
	}
	streams := []stream{
		{"#~", b.tableStream()},
		{"#Strings", b.strings.Bytes()},
		{"#US", b.us.Bytes()},
		{"#Blob", b.blobs.Bytes()},
	}
	for i := range streams {
		buf := bytes.NewBuffer(append([]byte(nil), streams[i].data...))
		pad4(buf)
		streams[i].data = buf.Bytes()
	}

	version := []byte("v4.0.30319\x00\x00")
	headerLen := 4 + 2 + 2 + 4 + 4 + len(version) + 2 + 2
	for _, s := range streams {
		headerLen += 8 + (len(s.name)+4)&^3
	}

	le := binary.LittleEndian
	var out bytes.Buffer
	_ = binary.Write(&out, le, uint32(metadataSignature))
	_ = binary.Write(&out, le, uint16(1))
	_ = binary.Write(&out, le, uint16(1))
	_ = binary.Write(&out, le, uint32(0))
	_ = binary.Write(&out, le, uint32(len(version)))
	out.Write(version)
	_ = binary.Write(&out, le, uint16(0))
	_ = binary.Write(&out, le, uint16(len(streams)))
	off := headerLen
	for _, s := range streams {
		_ = binary.Write(&out, le, uint32(off))
		_ = binary.Write(&out, le, uint32(len(s.data)))
		name := make([]byte, (len(s.name)+4)&^3)
		copy(name, s.name)
		out.Write(name)
		off += len(s.data)
	}
	for _, s := range streams {
		out.Write(s.data)
	}
	return out.Bytes()
}

type sampleAssembly struct {
	root          []byte
	greetingIndex uint32
}

// sampleMetadata describes:
//
//	assembly EvilMod, module EvilMod.dll
//	class Evil.Mod.Loader { void Run(string path); [DllImport("user32.dll", EntryPoint="MessageBoxW")] int MessageBox(IntPtr hWnd, string text); class Inner { void Helper(); } }
//	member refs Process::Start(string), AssemblyMetadataAttribute::.ctor(string, string), Enumerable::Select
//	[assembly: AssemblyMetadata("key", "72-101")]
func sampleMetadata() sampleAssembly {
	b := newMDBuilder()

	b.add(tModule, 0, b.str("EvilMod.dll"), 0, 0, 0)
	assemblyRefScope := uint32(1<<2 | 2)
	b.add(tTypeRef, assemblyRefScope, b.str("Process"), b.str("System.Diagnostics"))
	b.add(tTypeRef, assemblyRefScope, b.str("AssemblyMetadataAttribute"), b.str("System.Reflection"))
	b.add(tTypeRef, assemblyRefScope, b.str("Enumerable"), b.str("System.Linq"))
	b.add(tTypeRef, assemblyRefScope, b.str("Environment"), b.str("System"))
	b.add(tTypeRef, 4<<2|3, b.str("SpecialFolder"), 0)

	b.add(tTypeDef, 0, b.str("<Module>"), 0, 0, 1, 1)
	b.add(tTypeDef, 0x00100001, b.str("Loader"), b.str("Evil.Mod"), 0, 1, 1)
	b.add(tTypeDef, 0x00100002, b.str("Inner"), 0, 0, 1, 3)

	b.add(tMethodDef, 0, 0, 0x0086, b.str("Run"), b.blob(0x00, 0x01, 0x01, 0x0E), 1)
	b.add(tMethodDef, 0, 0x0080, 0x2096, b.str("MessageBox"), b.blob(0x00, 0x02, 0x08, 0x18, 0x0E), 2)
	b.add(tMethodDef, 0, 0, 0x0086, b.str("Helper"), b.blob(0x20, 0x00, 0x01), 4)

	b.add(tParam, 0, 1, b.str("path"))
	b.add(tParam, 0, 1, b.str("hWnd"))
	b.add(tParam, 0, 2, b.str("text"))

	// Process::Start(string), class parent TypeRef 1
	b.add(tMemberRef, 1<<3|1, b.str("Start"), b.blob(0x00, 0x01, 0x12, 1<<2|1, 0x0E))
	// AssemblyMetadataAttribute::.ctor(string, string)
	b.add(tMemberRef, 2<<3|1, b.str(".ctor"), b.blob(0x20, 0x02, 0x01, 0x0E, 0x0E))
	// Enumerable::Select<,>(IEnumerable<!!0>) simplified to one SZARRAY param
	b.add(tMemberRef, 3<<3|1, b.str("Select"), b.blob(0x10, 0x02, 0x01, 0x1D, 0x1E, 0x01, 0x1D, 0x1E, 0x00))
	// Environment::GetFolderPath(SpecialFolder), nested TypeRef parameter
	b.add(tMemberRef, 4<<3|1, b.str("GetFolderPath"), b.blob(0x00, 0x01, 0x0E, 0x11, 5<<2|1))

	b.add(tModuleRef, b.str("user32.dll"))
	b.add(tImplMap, 0, 2<<1|1, b.str("MessageBoxW"), 1)

	b.add(tNestedClass, 3, 2)

	b.add(tAssembly, 0, 1, 0, 0, 0, 0, 0, b.str("EvilMod"), 0)
	attrValue := []byte{0x01, 0x00, 0x03, 'k', 'e', 'y', 0x06, '7', '2', '-', '1', '0', '1', 0x00, 0x00}
	b.add(tCustomAttribute, 1<<5|14, 2<<3|3, b.blob(attrValue...))

	// Select<string, char>
	b.add(tMethodSpec, 3<<1|1, b.blob(0x0A, 0x02, 0x0E, 0x03))

	greeting := b.userString("powershell -enc")
	return sampleAssembly{root: b.build(), greetingIndex: greeting}
}

func TestReaderBuildsModel(t *testing.T) {
	sample := sampleMetadata()
	md, err := parseMetadata(sample.root)
	require.NoError(t, err)

	asm := newReader(md, nil).assembly()
	assert.Equal(t, "EvilMod", asm.Name)
	require.Len(t, asm.Modules, 1)

	mod := asm.Modules[0]
	assert.Equal(t, "EvilMod.dll", mod.Name)
	require.Len(t, mod.Types, 2)
	assert.Equal(t, "<Module>", mod.Types[0].FullName())

	loader := mod.Types[1]
	assert.Equal(t, "Evil.Mod.Loader", loader.FullName())
	require.Len(t, loader.NestedTypes, 1)
	assert.Equal(t, "Evil.Mod.Loader/Inner", loader.NestedTypes[0].FullName())
	assert.Len(t, mod.AllTypes(), 3)

	require.Len(t, loader.Methods, 2)
	run := loader.Methods[0]
	assert.Equal(t, "Run", run.Name)
	assert.Equal(t, "System.Void", run.ReturnType)
	assert.Equal(t, []Param{{Type: "System.String", Name: "path"}}, run.Params)
	assert.False(t, run.HasBody())
	assert.Equal(t, "Evil.Mod.Loader.Run", run.Location())

	box := loader.Methods[1]
	assert.True(t, box.IsPInvoke())
	assert.False(t, box.HasBody())
	assert.Equal(t, "System.Int32", box.ReturnType)
	assert.Equal(t, []Param{{Type: "System.IntPtr", Name: "hWnd"}, {Type: "System.String", Name: "text"}}, box.Params)
	require.NotNil(t, box.PInvoke)
	assert.Equal(t, PInvokeInfo{Module: "user32.dll", EntryPoint: "MessageBoxW"}, *box.PInvoke)

	inner := loader.NestedTypes[0]
	require.Len(t, inner.Methods, 1)
	assert.Equal(t, "Helper", inner.Methods[0].Name)
	assert.Empty(t, inner.Methods[0].Params)

	require.Len(t, asm.Attributes, 1)
	assert.Equal(t, "System.Reflection.AssemblyMetadataAttribute", asm.Attributes[0].Type)
	assert.Equal(t, "AssemblyMetadataAttribute", asm.Attributes[0].Name())
	assert.Equal(t, []interface{}{"key", "72-101"}, asm.Attributes[0].Args)
}

func TestReaderResolvesTokens(t *testing.T) {
	sample := sampleMetadata()
	md, err := parseMetadata(sample.root)
	require.NoError(t, err)
	r := newReader(md, nil)
	r.assembly()

	start, err := r.resolveMethod(0x0A000001)
	require.NoError(t, err)
	assert.Equal(t, "System.Diagnostics.Process", start.DeclaringType)
	assert.Equal(t, "Start", start.Name)
	assert.Equal(t, "System.Diagnostics.Process", start.ReturnType)
	assert.Equal(t, []Param{{Type: "System.String"}}, start.Params)

	again, err := r.resolveMethod(0x0A000001)
	require.NoError(t, err)
	assert.Same(t, start, again)

	folder, err := r.resolveMethod(0x0A000004)
	require.NoError(t, err)
	assert.Equal(t, "System.Environment", folder.DeclaringType)
	assert.Equal(t, []Param{{Type: "System.Environment/SpecialFolder"}}, folder.Params)

	sel, err := r.resolveMethod(0x2B000001)
	require.NoError(t, err)
	assert.Equal(t, "System.Linq.Enumerable", sel.DeclaringType)
	assert.Equal(t, "Select", sel.Name)
	assert.Equal(t, []string{"System.String", "System.Char"}, sel.GenericArgs)
	assert.Equal(t, []Param{{Type: "!!0[]"}}, sel.Params)

	box, err := r.resolveMethod(0x06000002)
	require.NoError(t, err)
	assert.Equal(t, "Evil.Mod.Loader", box.DeclaringType)
	require.NotNil(t, box.PInvoke)
	assert.Equal(t, "user32.dll", box.PInvoke.Module)

	s, err := r.resolveString(sample.greetingIndex)
	require.NoError(t, err)
	assert.Equal(t, "powershell -enc", s)

	_, err = r.resolveMethod(0x0A000099)
	assert.ErrorIs(t, err, ErrMalformed)
	_, err = r.resolveMethod(0x04000001)
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestParseMetadataRejectsBadInput(t *testing.T) {
	tests := []struct {
		name    string
		data    []byte
		wantErr error
	}{
		{name: "empty", data: nil, wantErr: ErrMalformed},
		{name: "bad signature", data: []byte("NOPE0000000000000000"), wantErr: ErrNotManaged},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseMetadata(tt.data)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}

	root := sampleMetadata().root
	_, err := parseMetadata(root[:len(root)/2])
	assert.Error(t, err)
}

func TestReadAssemblyRejectsNonPE(t *testing.T) {
	for _, data := range [][]byte{nil, []byte("not an assembly at all")} {
		_, err := ReadAssembly(data)
		assert.ErrorIs(t, err, ErrNotPE)
	}
}

// peHeaders returns a section-less PE32 image. With a CLI directory set, the
// COR20 header resolves to file offset 0, so its metadata fields live in the
// otherwise unused DOS header bytes.
func peHeaders(withCLI bool) []byte {
	buf := make([]byte, 64+4+20+224)
	buf[0], buf[1] = 'M', 'Z'
	binary.LittleEndian.PutUint32(buf[0x3c:], 64)
	copy(buf[64:], "PE\x00\x00")

	fh := buf[68:]
	binary.LittleEndian.PutUint16(fh[0:], 0x14c)
	binary.LittleEndian.PutUint16(fh[16:], 224)
	binary.LittleEndian.PutUint16(fh[18:], 0x2102)

	oh := buf[88:]
	binary.LittleEndian.PutUint16(oh[0:], 0x10b)
	binary.LittleEndian.PutUint32(oh[92:], 16)
	if withCLI {
		dir := oh[96+14*8:]
		binary.LittleEndian.PutUint32(dir[0:], 0x2000)
		binary.LittleEndian.PutUint32(dir[4:], 72)
		binary.LittleEndian.PutUint32(buf[8:], 0x4000)
		binary.LittleEndian.PutUint32(buf[12:], 0x40)
	}
	return buf
}

func TestReadAssemblyRejectsUnmanagedImages(t *testing.T) {
	_, err := ReadAssembly(peHeaders(false))
	assert.ErrorIs(t, err, ErrNotManaged)

	_, err = ReadAssembly(peHeaders(true))
	assert.ErrorIs(t, err, ErrMalformed)
	assert.Contains(t, err.Error(), "metadata root")
}
