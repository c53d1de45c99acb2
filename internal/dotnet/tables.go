package dotnet

import (
	"encoding/binary"
	"fmt"
)

type tableID uint8

const (
	tModule                 tableID = 0x00
	tTypeRef                tableID = 0x01
	tTypeDef                tableID = 0x02
	tFieldPtr               tableID = 0x03
	tField                  tableID = 0x04
	tMethodPtr              tableID = 0x05
	tMethodDef              tableID = 0x06
	tParamPtr               tableID = 0x07
	tParam                  tableID = 0x08
	tInterfaceImpl          tableID = 0x09
	tMemberRef              tableID = 0x0A
	tConstant               tableID = 0x0B
	tCustomAttribute        tableID = 0x0C
	tFieldMarshal           tableID = 0x0D
	tDeclSecurity           tableID = 0x0E
	tClassLayout            tableID = 0x0F
	tFieldLayout            tableID = 0x10
	tStandAloneSig          tableID = 0x11
	tEventMap               tableID = 0x12
	tEventPtr               tableID = 0x13
	tEvent                  tableID = 0x14
	tPropertyMap            tableID = 0x15
	tPropertyPtr            tableID = 0x16
	tProperty               tableID = 0x17
	tMethodSemantics        tableID = 0x18
	tMethodImpl             tableID = 0x19
	tModuleRef              tableID = 0x1A
	tTypeSpec               tableID = 0x1B
	tImplMap                tableID = 0x1C
	tFieldRVA               tableID = 0x1D
	tEncLog                 tableID = 0x1E
	tEncMap                 tableID = 0x1F
	tAssembly               tableID = 0x20
	tAssemblyProcessor      tableID = 0x21
	tAssemblyOS             tableID = 0x22
	tAssemblyRef            tableID = 0x23
	tAssemblyRefProcessor   tableID = 0x24
	tAssemblyRefOS          tableID = 0x25
	tFile                   tableID = 0x26
	tExportedType           tableID = 0x27
	tManifestResource       tableID = 0x28
	tNestedClass            tableID = 0x29
	tGenericParam           tableID = 0x2A
	tMethodSpec             tableID = 0x2B
	tGenericParamConstraint tableID = 0x2C

	tableCount         = 0x2D
	tNone      tableID = 0xFF
)

type codedIndex struct {
	bits   uint
	tables []tableID
}

func (ci *codedIndex) decode(v uint32) (tableID, uint32) {
	tag := v & (1<<ci.bits - 1)
	if int(tag) >= len(ci.tables) {
		return tNone, 0
	}
	return ci.tables[tag], v >> ci.bits
}

var (
	typeDefOrRef       = &codedIndex{2, []tableID{tTypeDef, tTypeRef, tTypeSpec}}
	hasConstant        = &codedIndex{2, []tableID{tField, tParam, tProperty}}
	hasCustomAttribute = &codedIndex{5, []tableID{
		tMethodDef, tField, tTypeRef, tTypeDef, tParam, tInterfaceImpl, tMemberRef, tModule,
		tDeclSecurity, tProperty, tEvent, tStandAloneSig, tModuleRef, tTypeSpec, tAssembly,
		tAssemblyRef, tFile, tExportedType, tManifestResource, tGenericParam,
		tGenericParamConstraint, tMethodSpec,
	}}
	hasFieldMarshal     = &codedIndex{1, []tableID{tField, tParam}}
	hasDeclSecurity     = &codedIndex{2, []tableID{tTypeDef, tMethodDef, tAssembly}}
	memberRefParent     = &codedIndex{3, []tableID{tTypeDef, tTypeRef, tModuleRef, tMethodDef, tTypeSpec}}
	hasSemantics        = &codedIndex{1, []tableID{tEvent, tProperty}}
	methodDefOrRef      = &codedIndex{1, []tableID{tMethodDef, tMemberRef}}
	memberForwarded     = &codedIndex{1, []tableID{tField, tMethodDef}}
	implementation      = &codedIndex{2, []tableID{tFile, tAssemblyRef, tExportedType}}
	customAttributeType = &codedIndex{3, []tableID{tNone, tNone, tMethodDef, tMemberRef, tNone}}
	resolutionScope     = &codedIndex{2, []tableID{tModule, tModuleRef, tAssemblyRef, tTypeRef}}
	typeOrMethodDef     = &codedIndex{1, []tableID{tTypeDef, tMethodDef}}
)

type columnKind uint8

const (
	colU16 columnKind = iota
	colU32
	colString
	colGUID
	colBlob
	colTable
	colCoded
)

type column struct {
	kind  columnKind
	table tableID
	coded *codedIndex
}

var (
	u16c  = column{kind: colU16}
	u32c  = column{kind: colU32}
	strc  = column{kind: colString}
	guidc = column{kind: colGUID}
	blobc = column{kind: colBlob}
)

func idx(t tableID) column { return column{kind: colTable, table: t} }
func coded(ci *codedIndex) column { return column{kind: colCoded, coded: ci} }
func cols(c ...column) []column { return c }

// Row layouts from ECMA-335 partition II, chapter 22.
var tableSchemas = [tableCount][]column{
	tModule:                 cols(u16c, strc, guidc, guidc, guidc),
	tTypeRef:                cols(coded(resolutionScope), strc, strc),
	tTypeDef:                cols(u32c, strc, strc, coded(typeDefOrRef), idx(tField), idx(tMethodDef)),
	tFieldPtr:               cols(idx(tField)),
	tField:                  cols(u16c, strc, blobc),
	tMethodPtr:              cols(idx(tMethodDef)),
	tMethodDef:              cols(u32c, u16c, u16c, strc, blobc, idx(tParam)),
	tParamPtr:               cols(idx(tParam)),
	tParam:                  cols(u16c, u16c, strc),
	tInterfaceImpl:          cols(idx(tTypeDef), coded(typeDefOrRef)),
	tMemberRef:              cols(coded(memberRefParent), strc, blobc),
	tConstant:               cols(u16c, coded(hasConstant), blobc),
	tCustomAttribute:        cols(coded(hasCustomAttribute), coded(customAttributeType), blobc),
	tFieldMarshal:           cols(coded(hasFieldMarshal), blobc),
	tDeclSecurity:           cols(u16c, coded(hasDeclSecurity), blobc),
	tClassLayout:            cols(u16c, u32c, idx(tTypeDef)),
	tFieldLayout:            cols(u32c, idx(tField)),
	tStandAloneSig:          cols(blobc),
	tEventMap:               cols(idx(tTypeDef), idx(tEvent)),
	tEventPtr:               cols(idx(tEvent)),
	tEvent:                  cols(u16c, strc, coded(typeDefOrRef)),
	tPropertyMap:            cols(idx(tTypeDef), idx(tProperty)),
	tPropertyPtr:            cols(idx(tProperty)),
	tProperty:               cols(u16c, strc, blobc),
	tMethodSemantics:        cols(u16c, idx(tMethodDef), coded(hasSemantics)),
	tMethodImpl:             cols(idx(tTypeDef), coded(methodDefOrRef), coded(methodDefOrRef)),
	tModuleRef:              cols(strc),
	tTypeSpec:               cols(blobc),
	tImplMap:                cols(u16c, coded(memberForwarded), strc, idx(tModuleRef)),
	tFieldRVA:               cols(u32c, idx(tField)),
	tEncLog:                 cols(u32c, u32c),
	tEncMap:                 cols(u32c),
	tAssembly:               cols(u32c, u16c, u16c, u16c, u16c, u32c, blobc, strc, strc),
	tAssemblyProcessor:      cols(u32c),
	tAssemblyOS:             cols(u32c, u32c, u32c),
	tAssemblyRef:            cols(u16c, u16c, u16c, u16c, u32c, blobc, strc, strc, blobc),
	tAssemblyRefProcessor:   cols(u32c, idx(tAssemblyRef)),
	tAssemblyRefOS:          cols(u32c, u32c, u32c, idx(tAssemblyRef)),
	tFile:                   cols(u32c, strc, blobc),
	tExportedType:           cols(u32c, u32c, strc, strc, coded(implementation)),
	tManifestResource:       cols(u32c, u32c, strc, coded(implementation)),
	tNestedClass:            cols(idx(tTypeDef), idx(tTypeDef)),
	tGenericParam:           cols(u16c, u16c, coded(typeOrMethodDef), strc),
	tMethodSpec:             cols(coded(methodDefOrRef), blobc),
	tGenericParamConstraint: cols(idx(tGenericParam), coded(typeDefOrRef)),
}

type table struct {
	rows    uint32
	rowSize int
	offsets []int
	widths  []int
	data    []byte
}

type tableStream struct {
	stringsWide bool
	guidWide    bool
	blobWide    bool
	tables      [tableCount]*table
}

func parseTableStream(data []byte) (*tableStream, error) {
	c := newCursor(data)
	c.skip(4) // reserved
	c.skip(2) // major, minor version
	heapSizes := c.u8()
	c.skip(1)
	valid := c.u64()
	c.skip(8) // sorted
	var rows [64]uint32
	for i := 0; i < 64; i++ {
		if valid&(1<<uint(i)) != 0 {
			rows[i] = c.u32()
		}
	}
	if heapSizes&0x40 != 0 {
		c.skip(4)
	}
	if c.err != nil {
		return nil, fmt.Errorf("table stream header: %w", c.err)
	}
	for i := tableCount; i < 64; i++ {
		if rows[i] != 0 {
			return nil, fmt.Errorf("%w: unsupported metadata table 0x%02x", ErrMalformed, i)
		}
	}

	ts := &tableStream{
		stringsWide: heapSizes&0x01 != 0,
		guidWide:    heapSizes&0x02 != 0,
		blobWide:    heapSizes&0x04 != 0,
	}
	for i := 0; i < tableCount; i++ {
		ts.tables[i] = &table{rows: rows[i]}
	}
	for i := 0; i < tableCount; i++ {
		t := ts.tables[i]
		for _, col := range tableSchemas[i] {
			w := ts.columnWidth(col)
			t.offsets = append(t.offsets, t.rowSize)
			t.widths = append(t.widths, w)
			t.rowSize += w
		}
	}
	for i := 0; i < tableCount; i++ {
		t := ts.tables[i]
		if t.rows == 0 {
			continue
		}
		size := uint64(t.rows) * uint64(t.rowSize)
		if size > uint64(c.remaining()) {
			return nil, fmt.Errorf("%w: table 0x%02x needs %d bytes, %d left", ErrMalformed, i, size, c.remaining())
		}
		t.data = c.bytes(int(size))
	}
	return ts, nil
}

func (ts *tableStream) columnWidth(col column) int {
	switch col.kind {
	case colU16:
		return 2
	case colU32:
		return 4
	case colString:
		return wideIf(ts.stringsWide)
	case colGUID:
		return wideIf(ts.guidWide)
	case colBlob:
		return wideIf(ts.blobWide)
	case colTable:
		return wideIf(ts.rows(col.table) >= 1<<16)
	case colCoded:
		var max uint32
		for _, t := range col.coded.tables {
			if r := ts.rows(t); r > max {
				max = r
			}
		}
		return wideIf(max >= 1<<(16-col.coded.bits))
	}
	return 2
}

func wideIf(wide bool) int {
	if wide {
		return 4
	}
	return 2
}

func (ts *tableStream) rows(t tableID) uint32 {
	if int(t) >= tableCount {
		return 0
	}
	return ts.tables[t].rows
}

// cell reads column col of the 1-based row. Out-of-range reads yield 0.
func (ts *tableStream) cell(t tableID, row uint32, col int) uint32 {
	if int(t) >= tableCount {
		return 0
	}
	tb := ts.tables[t]
	if row == 0 || row > tb.rows || col >= len(tb.offsets) {
		return 0
	}
	off := int(row-1)*tb.rowSize + tb.offsets[col]
	if tb.widths[col] == 4 {
		return binary.LittleEndian.Uint32(tb.data[off:])
	}
	return uint32(binary.LittleEndian.Uint16(tb.data[off:]))
}
