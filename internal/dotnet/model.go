package dotnet

import (
	"strings"
	"sync"
)

// Method attribute and implementation flags used by the scanners.
const (
	MethodAbstract     uint16 = 0x0400
	MethodPInvokeImpl  uint16 = 0x2000
	MethodImplCodeType uint16 = 0x0003
	MethodImplInternal uint16 = 0x1000
	methodImplIL       uint16 = 0x0000
)

// Assembly is the decoded view of one managed PE image.
type Assembly struct {
	Name string
	// RuntimeVersion is the metadata version string, e.g. "v4.0.30319".
	RuntimeVersion string
	Modules        []*Module
	Attributes []CustomAttribute
}

// Module holds the type definitions of a module. Types lists top-level types only.
type Module struct {
	Name  string
	Types []*TypeDef
}

// AllTypes returns every type of the module, nested types following their parent.
func (m *Module) AllTypes() []*TypeDef {
	var out []*TypeDef
	var walk func(ts []*TypeDef)
	walk = func(ts []*TypeDef) {
		for _, t := range ts {
			out = append(out, t)
			walk(t.NestedTypes)
		}
	}
	walk(m.Types)
	return out
}

// CustomAttribute is an attribute instance with its decoded fixed arguments.
// Arguments of types the decoder does not handle end the list.
type CustomAttribute struct {
	Type string
	Args []interface{}
}

// Name returns the attribute type name without namespace.
func (a CustomAttribute) Name() string {
	return ShortTypeName(a.Type)
}

// TypeDef is a type definition.
type TypeDef struct {
	Namespace     string
	Name          string
	DeclaringType *TypeDef
	NestedTypes   []*TypeDef
	Methods       []*MethodDef
}

// NewType creates a detached type definition.
func NewType(namespace, name string) *TypeDef {
	return &TypeDef{Namespace: namespace, Name: name}
}

// FullName renders the type name with nested types joined by '/'.
func (t *TypeDef) FullName() string {
	if t == nil {
		return ""
	}
	if t.DeclaringType != nil {
		return t.DeclaringType.FullName() + "/" + t.Name
	}
	if t.Namespace == "" {
		return t.Name
	}
	return t.Namespace + "." + t.Name
}

// AddNested attaches a nested type.
func (t *TypeDef) AddNested(nested *TypeDef) *TypeDef {
	nested.DeclaringType = t
	t.NestedTypes = append(t.NestedTypes, nested)
	return nested
}

// AddMethod attaches a method with a pre-decoded body.
func (t *TypeDef) AddMethod(name string, body []Instruction) *MethodDef {
	m := &MethodDef{Name: name, DeclaringType: t, ReturnType: "System.Void"}
	if body != nil {
		m.loadBody = func() ([]Instruction, error) { return body, nil }
	}
	t.Methods = append(t.Methods, m)
	return m
}

// PInvokeInfo describes the native import of a PInvoke method.
type PInvokeInfo struct {
	Module     string
	EntryPoint string
}

// Param is a method parameter. Name is empty for external references.
type Param struct {
	Type string
	Name string
}

// MethodDef is a method defined in the scanned assembly.
type MethodDef struct {
	Name           string
	DeclaringType  *TypeDef
	Attributes     uint16
	ImplAttributes uint16
	RVA            uint32
	ReturnType     string
	Params         []Param
	PInvoke        *PInvokeInfo

	loadBody func() ([]Instruction, error)
	once     sync.Once
	body     []Instruction
	bodyErr  error
}

// HasBody reports whether the method carries IL.
func (m *MethodDef) HasBody() bool {
	return m.loadBody != nil
}

// IsPInvoke reports whether the method is a native import.
func (m *MethodDef) IsPInvoke() bool {
	return m.Attributes&MethodPInvokeImpl != 0
}

// Instructions decodes the method body on first use.
func (m *MethodDef) Instructions() ([]Instruction, error) {
	if m.loadBody == nil {
		return nil, nil
	}
	m.once.Do(func() {
		m.body, m.bodyErr = m.loadBody()
	})
	return m.body, m.bodyErr
}

// Location renders "Type.Method".
func (m *MethodDef) Location() string {
	return m.DeclaringType.FullName() + "." + m.Name
}

// Ref returns the call-target view of the definition.
func (m *MethodDef) Ref() *MethodRef {
	return &MethodRef{
		DeclaringType: m.DeclaringType.FullName(),
		Name:          m.Name,
		ReturnType:    m.ReturnType,
		Params:        m.Params,
		PInvoke:       m.PInvoke,
	}
}

// MethodRef is a resolved call target.
type MethodRef struct {
	DeclaringType string
	Name          string
	ReturnType    string
	Params        []Param
	GenericArgs   []string
	PInvoke       *PInvokeInfo
}

// NewMethodRef builds a call target from type names.
func NewMethodRef(declaringType, name string, paramTypes ...string) *MethodRef {
	ref := &MethodRef{DeclaringType: declaringType, Name: name, ReturnType: "System.Void"}
	for _, p := range paramTypes {
		ref.Params = append(ref.Params, Param{Type: p})
	}
	return ref
}

// DeclaringTypeName returns the declaring type without namespace.
func (r *MethodRef) DeclaringTypeName() string {
	return ShortTypeName(r.DeclaringType)
}

func (r *MethodRef) String() string {
	types := make([]string, len(r.Params))
	for i, p := range r.Params {
		types[i] = p.Type
	}
	name := r.Name
	if len(r.GenericArgs) > 0 {
		name += "<" + strings.Join(r.GenericArgs, ",") + ">"
	}
	return r.ReturnType + " " + r.DeclaringType + "::" + name + "(" + strings.Join(types, ",") + ")"
}

// ShortTypeName strips the namespace and enclosing types from a full type name.
func ShortTypeName(full string) string {
	base := full
	if i := strings.IndexByte(base, '<'); i >= 0 {
		base = base[:i]
	}
	cut := strings.LastIndexAny(base, "./")
	if cut < 0 {
		return full
	}
	return full[cut+1:]
}
