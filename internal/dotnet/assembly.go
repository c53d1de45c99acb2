package dotnet

import (
	"fmt"
)

// ReadAssembly decodes the managed metadata of a PE image held in memory.
// Method bodies are decoded on demand by MethodDef.Instructions; the returned
// assembly must not be shared between goroutines while bodies are decoded.
func ReadAssembly(data []byte) (*Assembly, error) {
	img, err := openImage(data)
	if err != nil {
		return nil, err
	}
	md, err := parseMetadata(img.metadata)
	if err != nil {
		return nil, err
	}
	r := newReader(md, img)
	return r.assembly(), nil
}

type reader struct {
	img     *image
	md      *metadata
	ts      *tableStream
	types   []*TypeDef
	methods []*MethodDef
	refs    map[uint32]*MethodRef
}

func newReader(md *metadata, img *image) *reader {
	return &reader{img: img, md: md, ts: md.tables, refs: make(map[uint32]*MethodRef)}
}

func (r *reader) assembly() *Assembly {
	r.buildTypes()
	r.buildMethods()
	r.bindPInvoke()

	asm := &Assembly{}
	if r.img != nil {
		asm.RuntimeVersion = r.img.runtimeVersion
	}
	if r.ts.rows(tAssembly) > 0 {
		asm.Name = r.md.str(r.ts.cell(tAssembly, 1, 7))
	}
	mod := &Module{}
	if r.ts.rows(tModule) > 0 {
		mod.Name = r.md.str(r.ts.cell(tModule, 1, 1))
	}
	for _, t := range r.types {
		if t.DeclaringType == nil {
			mod.Types = append(mod.Types, t)
		}
	}
	asm.Modules = []*Module{mod}
	asm.Attributes = r.assemblyAttributes()
	return asm
}

func (r *reader) buildTypes() {
	n := r.ts.rows(tTypeDef)
	r.types = make([]*TypeDef, n)
	for i := uint32(1); i <= n; i++ {
		r.types[i-1] = &TypeDef{
			Name:      r.md.str(r.ts.cell(tTypeDef, i, 1)),
			Namespace: r.md.str(r.ts.cell(tTypeDef, i, 2)),
		}
	}
	for i := uint32(1); i <= r.ts.rows(tNestedClass); i++ {
		nested := r.typeAt(r.ts.cell(tNestedClass, i, 0))
		enclosing := r.typeAt(r.ts.cell(tNestedClass, i, 1))
		if nested == nil || enclosing == nil || nested.DeclaringType != nil || isAncestor(nested, enclosing) {
			continue
		}
		enclosing.AddNested(nested)
	}
}

func isAncestor(candidate, t *TypeDef) bool {
	for depth := 0; t != nil && depth <= maxTypeDepth; depth++ {
		if t == candidate {
			return true
		}
		t = t.DeclaringType
	}
	return t != nil
}

func (r *reader) typeAt(row uint32) *TypeDef {
	if row == 0 || int(row) > len(r.types) {
		return nil
	}
	return r.types[row-1]
}

func (r *reader) methodAt(row uint32) *MethodDef {
	if row == 0 || int(row) > len(r.methods) {
		return nil
	}
	return r.methods[row-1]
}

// listRange resolves a run-length list column (MethodList, ParamList) through
// the optional pointer table.
func (r *reader) listRange(owner tableID, ownerRow uint32, col int, target, ptr tableID) []uint32 {
	start := r.ts.cell(owner, ownerRow, col)
	listRows := r.ts.rows(target)
	if r.ts.rows(ptr) > 0 {
		listRows = r.ts.rows(ptr)
	}
	end := listRows + 1
	if ownerRow < r.ts.rows(owner) {
		end = r.ts.cell(owner, ownerRow+1, col)
	}
	if end > listRows+1 {
		end = listRows + 1
	}
	var rows []uint32
	for j := start; j != 0 && j < end; j++ {
		row := j
		if r.ts.rows(ptr) > 0 {
			row = r.ts.cell(ptr, j, 0)
		}
		rows = append(rows, row)
	}
	return rows
}

func (r *reader) buildMethods() {
	n := r.ts.rows(tMethodDef)
	r.methods = make([]*MethodDef, n)
	for i := uint32(1); i <= n; i++ {
		r.methods[i-1] = r.buildMethod(i)
	}
	for i := uint32(1); i <= r.ts.rows(tTypeDef); i++ {
		t := r.types[i-1]
		for _, row := range r.listRange(tTypeDef, i, 5, tMethodDef, tMethodPtr) {
			m := r.methodAt(row)
			if m == nil || m.DeclaringType != nil {
				continue
			}
			m.DeclaringType = t
			t.Methods = append(t.Methods, m)
		}
	}
}

func (r *reader) buildMethod(row uint32) *MethodDef {
	m := &MethodDef{
		RVA:            r.ts.cell(tMethodDef, row, 0),
		ImplAttributes: uint16(r.ts.cell(tMethodDef, row, 1)),
		Attributes:     uint16(r.ts.cell(tMethodDef, row, 2)),
		Name:           r.md.str(r.ts.cell(tMethodDef, row, 3)),
	}
	if blob, err := r.md.blobAt(r.ts.cell(tMethodDef, row, 4)); err == nil {
		if sig, err := decodeMethodSig(blob, r); err == nil {
			m.ReturnType = sig.ret
			for _, p := range sig.params {
				m.Params = append(m.Params, Param{Type: p})
			}
		}
	}
	for _, prow := range r.listRange(tMethodDef, row, 5, tParam, tParamPtr) {
		seq := r.ts.cell(tParam, prow, 1)
		if seq >= 1 && int(seq) <= len(m.Params) {
			m.Params[seq-1].Name = r.md.str(r.ts.cell(tParam, prow, 2))
		}
	}
	if m.RVA != 0 &&
		m.Attributes&(MethodAbstract|MethodPInvokeImpl) == 0 &&
		m.ImplAttributes&MethodImplCodeType == methodImplIL &&
		m.ImplAttributes&MethodImplInternal == 0 {
		rva := m.RVA
		m.loadBody = func() ([]Instruction, error) { return r.methodBody(rva) }
	}
	return m
}

func (r *reader) methodBody(rva uint32) ([]Instruction, error) {
	if r.img == nil {
		return nil, fmt.Errorf("%w: no image backing method bodies", ErrMalformed)
	}
	data, err := r.img.sliceFrom(rva)
	if err != nil {
		return nil, err
	}
	return parseMethodBody(data, r)
}

func (r *reader) bindPInvoke() {
	for i := uint32(1); i <= r.ts.rows(tImplMap); i++ {
		t, row := memberForwarded.decode(r.ts.cell(tImplMap, i, 1))
		if t != tMethodDef {
			continue
		}
		m := r.methodAt(row)
		if m == nil {
			continue
		}
		entry := r.md.str(r.ts.cell(tImplMap, i, 2))
		if entry == "" {
			entry = m.Name
		}
		m.PInvoke = &PInvokeInfo{
			Module:     r.md.str(r.ts.cell(tModuleRef, r.ts.cell(tImplMap, i, 3), 0)),
			EntryPoint: entry,
		}
	}
}

func (r *reader) assemblyAttributes() []CustomAttribute {
	var out []CustomAttribute
	for i := uint32(1); i <= r.ts.rows(tCustomAttribute); i++ {
		if parent, _ := hasCustomAttribute.decode(r.ts.cell(tCustomAttribute, i, 0)); parent != tAssembly {
			continue
		}
		t, row := customAttributeType.decode(r.ts.cell(tCustomAttribute, i, 1))
		if t == tNone {
			continue
		}
		ctor, err := r.resolveMethod(uint32(t)<<24 | row)
		if err != nil {
			continue
		}
		blob, err := r.md.blobAt(r.ts.cell(tCustomAttribute, i, 2))
		if err != nil {
			continue
		}
		types := make([]string, len(ctor.Params))
		for j, p := range ctor.Params {
			types[j] = p.Type
		}
		out = append(out, CustomAttribute{Type: ctor.DeclaringType, Args: decodeAttributeArgs(blob, types)})
	}
	return out
}

func (r *reader) typeDefOrRefName(t tableID, row uint32, depth int) string {
	if depth > maxTypeDepth {
		return ""
	}
	switch t {
	case tTypeDef:
		return r.typeAt(row).FullName()
	case tTypeRef:
		return r.typeRefName(row, depth)
	case tTypeSpec:
		if row == 0 || row > r.ts.rows(tTypeSpec) {
			return ""
		}
		blob, err := r.md.blobAt(r.ts.cell(tTypeSpec, row, 0))
		if err != nil {
			return ""
		}
		return newSigReader(blob, r, depth+1).typeName()
	}
	return ""
}

func (r *reader) typeRefName(row uint32, depth int) string {
	if row == 0 || row > r.ts.rows(tTypeRef) || depth > maxTypeDepth {
		return ""
	}
	name := r.md.str(r.ts.cell(tTypeRef, row, 1))
	ns := r.md.str(r.ts.cell(tTypeRef, row, 2))
	if scope, srow := resolutionScope.decode(r.ts.cell(tTypeRef, row, 0)); scope == tTypeRef && srow != row {
		return r.typeRefName(srow, depth+1) + "/" + name
	}
	if ns == "" {
		return name
	}
	return ns + "." + name
}

func (r *reader) resolveString(index uint32) (string, error) {
	return r.md.userString(index)
}

func (r *reader) resolveMethod(token uint32) (*MethodRef, error) {
	if ref, ok := r.refs[token]; ok {
		return ref, nil
	}
	row := token & 0x00FFFFFF
	var (
		ref *MethodRef
		err error
	)
	switch tableID(token >> 24) {
	case tMethodDef:
		m := r.methodAt(row)
		if m == nil {
			return nil, fmt.Errorf("%w: method definition %d out of range", ErrMalformed, row)
		}
		ref = m.Ref()
	case tMemberRef:
		ref, err = r.memberRef(row)
	case tMethodSpec:
		ref, err = r.methodSpec(row)
	default:
		err = fmt.Errorf("%w: token 0x%08x is not a method", ErrMalformed, token)
	}
	if err != nil {
		return nil, err
	}
	r.refs[token] = ref
	return ref, nil
}

func (r *reader) memberRef(row uint32) (*MethodRef, error) {
	if row == 0 || row > r.ts.rows(tMemberRef) {
		return nil, fmt.Errorf("%w: member reference %d out of range", ErrMalformed, row)
	}
	ref := &MethodRef{Name: r.md.str(r.ts.cell(tMemberRef, row, 1))}
	switch t, prow := memberRefParent.decode(r.ts.cell(tMemberRef, row, 0)); t {
	case tTypeDef, tTypeRef, tTypeSpec:
		ref.DeclaringType = r.typeDefOrRefName(t, prow, 0)
	case tModuleRef:
		ref.DeclaringType = "<Module>"
	case tMethodDef:
		if m := r.methodAt(prow); m != nil {
			ref.DeclaringType = m.DeclaringType.FullName()
		}
	}
	blob, err := r.md.blobAt(r.ts.cell(tMemberRef, row, 2))
	if err != nil {
		return nil, err
	}
	sig, err := decodeMethodSig(blob, r)
	if err != nil {
		return nil, fmt.Errorf("member reference %s: %w", ref.Name, err)
	}
	ref.ReturnType = sig.ret
	for _, p := range sig.params {
		ref.Params = append(ref.Params, Param{Type: p})
	}
	return ref, nil
}

func (r *reader) methodSpec(row uint32) (*MethodRef, error) {
	if row == 0 || row > r.ts.rows(tMethodSpec) {
		return nil, fmt.Errorf("%w: method spec %d out of range", ErrMalformed, row)
	}
	t, mrow := methodDefOrRef.decode(r.ts.cell(tMethodSpec, row, 0))
	if t == tNone {
		return nil, fmt.Errorf("%w: method spec %d has no method", ErrMalformed, row)
	}
	base, err := r.resolveMethod(uint32(t)<<24 | mrow)
	if err != nil {
		return nil, err
	}
	blob, err := r.md.blobAt(r.ts.cell(tMethodSpec, row, 1))
	if err != nil {
		return nil, err
	}
	args, err := decodeGenericInst(blob, r)
	if err != nil {
		return nil, err
	}
	inst := *base
	inst.GenericArgs = args
	return &inst, nil
}
