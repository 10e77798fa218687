package il

import (
	"fmt"
	"strings"

	"github.com/gofrs/uuid"
)

// Token is a metadata token: table tag in the high byte, 1-based row in the low 24 bits.
type Token uint32

// MakeToken builds a token for row (1-based) of table.
func MakeToken(table byte, row uint32) Token {
	return Token(uint32(table)<<24 | row&0x00FFFFFF)
}

// Table returns the table tag of t.
func (t Token) Table() byte { return byte(t >> 24) }

// Row returns the 1-based row of t.
func (t Token) Row() uint32 { return uint32(t) & 0x00FFFFFF }

// IsNil reports whether t refers to nothing.
func (t Token) IsNil() bool { return t.Row() == 0 }

func (t Token) String() string { return fmt.Sprintf("0x%08X", uint32(t)) }

// Module represents a parsed ILM module.
type Module struct {
	Name  string
	MVID  uuid.UUID
	Flags ModuleFlags

	ModuleRefs []ModuleRef
	TypeRefs   []TypeRef
	MemberRefs []MemberRef
	Types      []*TypeDef

	CustomSections []CustomSection
}

// ModuleRef names another module by its file stem.
type ModuleRef struct {
	Name string
}

// TypeRef names a type defined in a referenced module.
type TypeRef struct {
	Namespace string
	Name      string
	Scope     uint32 // 1-based ModuleRef row
}

// FullName returns the qualified name of the referenced type.
func (r TypeRef) FullName() string { return qualify(r.Namespace, r.Name) }

// MemberRef names a method on a referenced type.
type MemberRef struct {
	Name   string
	Parent Token // TypeRef or TypeDef
	Sig    MethodSig
}

// CustomSection carries opaque named data preserved across a round trip.
type CustomSection struct {
	Name string
	Data []byte
}

// TypeDef is a type defined in the module.
type TypeDef struct {
	Namespace  string
	Name       string
	Flags      TypeFlags
	Base       Token
	Fields     []FieldDef
	Methods    []*MethodDef
	Properties []*PropertyDef
}

// FullName returns the qualified name of the type.
func (t *TypeDef) FullName() string { return qualify(t.Namespace, t.Name) }

// IsValueType reports whether instances are stored inline.
func (t *TypeDef) IsValueType() bool { return t.Flags&TypeFlagValueType != 0 }

// Method returns the first method named name, or nil.
func (t *TypeDef) Method(name string) *MethodDef {
	for _, md := range t.Methods {
		if md.Name == name {
			return md
		}
	}
	return nil
}

// Property returns the property named name, or nil.
func (t *TypeDef) Property(name string) *PropertyDef {
	for _, p := range t.Properties {
		if p.Name == name {
			return p
		}
	}
	return nil
}

// FieldDef is a field of a type.
type FieldDef struct {
	Name  string
	Flags FieldFlags
	Type  TypeSig
}

// IsStatic reports whether the field lives on the type.
func (f *FieldDef) IsStatic() bool { return f.Flags&FieldFlagStatic != 0 }

// MethodDef is a method of a type.
type MethodDef struct {
	Name        string
	Flags       MethodFlags
	Sig         MethodSig
	Params      []ParamDef
	Annotations []Annotation
	Body        *MethodBody // nil for abstract or host-provided methods
}

// IsStatic reports whether the method has no receiver.
func (md *MethodDef) IsStatic() bool { return md.Flags&MethodFlagStatic != 0 }

// IsCtor reports whether the method is an instance constructor.
func (md *MethodDef) IsCtor() bool { return md.Flags&MethodFlagCtor != 0 }

// ParamName returns the declared name of parameter i, or a positional fallback.
func (md *MethodDef) ParamName(i int) string {
	if i < len(md.Params) && md.Params[i].Name != "" {
		return md.Params[i].Name
	}
	return fmt.Sprintf("arg%d", i)
}

// ParamDef carries a parameter name and its annotations.
type ParamDef struct {
	Name        string
	Annotations []Annotation
}

// MethodBody is the executable part of a method.
type MethodBody struct {
	MaxStack   uint32
	InitLocals bool
	Locals     []TypeSig
	Code       []Instruction
	Handlers   []ExceptionHandler
}

// Clone returns a deep copy of b.
func (b *MethodBody) Clone() *MethodBody {
	if b == nil {
		return nil
	}
	out := &MethodBody{
		MaxStack:   b.MaxStack,
		InitLocals: b.InitLocals,
		Locals:     append([]TypeSig(nil), b.Locals...),
		Code:       make([]Instruction, len(b.Code)),
		Handlers:   append([]ExceptionHandler(nil), b.Handlers...),
	}
	for i, instr := range b.Code {
		out.Code[i] = instr
		if sw, ok := instr.Imm.(SwitchImm); ok {
			out.Code[i].Imm = SwitchImm{Targets: append([]int(nil), sw.Targets...)}
		}
	}
	return out
}

// ExceptionHandler is a protected region with its handler.
// Bounds are instruction indices; ends are exclusive.
type ExceptionHandler struct {
	Kind         HandlerKind
	TryStart     int
	TryEnd       int
	HandlerStart int
	HandlerEnd   int
	CatchType    Token // nil token catches every fault
}

// PropertyDef groups accessor methods under one name.
type PropertyDef struct {
	Name        string
	Type        TypeSig
	Getter      Token // MethodDef, nil when absent
	Setter      Token // MethodDef, nil when absent
	Annotations []Annotation
}

// Annotation attaches an annotation instance to a member.
// Args is the CBOR encoding of the constructor arguments.
type Annotation struct {
	Ctor Token // MethodDef or MemberRef of the annotation constructor
	Args []byte
}

// MethodSig is a method calling signature.
type MethodSig struct {
	HasThis bool
	Return  TypeSig
	Params  []TypeSig
}

// Equal reports whether two signatures are identical.
func (s MethodSig) Equal(o MethodSig) bool {
	if s.HasThis != o.HasThis || !s.Return.Equal(o.Return) || len(s.Params) != len(o.Params) {
		return false
	}
	for i := range s.Params {
		if !s.Params[i].Equal(o.Params[i]) {
			return false
		}
	}
	return true
}

// ArgCount returns the number of argument slots including the receiver.
func (s MethodSig) ArgCount() int {
	if s.HasThis {
		return len(s.Params) + 1
	}
	return len(s.Params)
}

// TypeSig describes the type of a value, local, parameter or field.
type TypeSig struct {
	Elem *TypeSig // for Ptr, ByRef, SZArray
	Type Token    // for ValueType, Class
	Kind ElementType
}

// Signature helpers for common shapes.
var (
	SigVoid   = TypeSig{Kind: ElemVoid}
	SigBool   = TypeSig{Kind: ElemBool}
	SigI4     = TypeSig{Kind: ElemI4}
	SigI8     = TypeSig{Kind: ElemI8}
	SigR8     = TypeSig{Kind: ElemR8}
	SigString = TypeSig{Kind: ElemString}
	SigObject = TypeSig{Kind: ElemObject}
)

// Prim returns the signature of a primitive element kind.
func Prim(kind ElementType) TypeSig { return TypeSig{Kind: kind} }

// ValueTypeOf returns a signature for the value type t.
func ValueTypeOf(t Token) TypeSig { return TypeSig{Kind: ElemValueType, Type: t} }

// ClassOf returns a signature for the reference type t.
func ClassOf(t Token) TypeSig { return TypeSig{Kind: ElemClass, Type: t} }

// ArrayOf returns a single-dimension zero-based array of elem.
func ArrayOf(elem TypeSig) TypeSig { return TypeSig{Kind: ElemSZArray, Elem: &elem} }

// ByRefOf returns a managed reference to elem.
func ByRefOf(elem TypeSig) TypeSig { return TypeSig{Kind: ElemByRef, Elem: &elem} }

// PtrOf returns an unmanaged pointer to elem.
func PtrOf(elem TypeSig) TypeSig { return TypeSig{Kind: ElemPtr, Elem: &elem} }

// Equal reports whether two signatures denote the same type.
func (s TypeSig) Equal(o TypeSig) bool {
	if s.Kind != o.Kind || s.Type != o.Type {
		return false
	}
	if s.Elem == nil || o.Elem == nil {
		return s.Elem == nil && o.Elem == nil
	}
	return s.Elem.Equal(*o.Elem)
}

// IsByRef reports whether s is a managed reference.
func (s TypeSig) IsByRef() bool { return s.Kind == ElemByRef }

// IsValueKind reports whether values of s must be boxed to be stored as object.
func (s TypeSig) IsValueKind() bool {
	switch s.Kind {
	case ElemBool, ElemChar, ElemI1, ElemU1, ElemI2, ElemU2, ElemI4, ElemU4,
		ElemI8, ElemU8, ElemR4, ElemR8, ElemI, ElemU, ElemValueType:
		return true
	}
	return false
}

// IsPointerLike reports whether s is an unmanaged pointer, a function pointer
// or a native-sized integer.
func (s TypeSig) IsPointerLike() bool {
	switch s.Kind {
	case ElemPtr, ElemFnPtr, ElemI, ElemU:
		return true
	}
	return false
}

// IsVoid reports whether s is the void type.
func (s TypeSig) IsVoid() bool { return s.Kind == ElemVoid }

var primNames = map[ElementType]string{
	ElemVoid:   "void",
	ElemBool:   "bool",
	ElemChar:   "char",
	ElemI1:     "int8",
	ElemU1:     "uint8",
	ElemI2:     "int16",
	ElemU2:     "uint16",
	ElemI4:     "int32",
	ElemU4:     "uint32",
	ElemI8:     "int64",
	ElemU8:     "uint64",
	ElemR4:     "float32",
	ElemR8:     "float64",
	ElemI:      "native int",
	ElemU:      "native uint",
	ElemString: "string",
	ElemObject: "object",
	ElemFnPtr:  "method*",
}

// TypeSigString formats s, resolving type tokens against m when m is not nil.
func (m *Module) TypeSigString(s TypeSig) string {
	switch s.Kind {
	case ElemPtr:
		return m.TypeSigString(*s.Elem) + "*"
	case ElemByRef:
		return m.TypeSigString(*s.Elem) + "&"
	case ElemSZArray:
		return m.TypeSigString(*s.Elem) + "[]"
	case ElemValueType:
		return "valuetype " + m.TypeName(s.Type)
	case ElemClass:
		return "class " + m.TypeName(s.Type)
	}
	if name, ok := primNames[s.Kind]; ok {
		return name
	}
	return fmt.Sprintf("elem(0x%02X)", byte(s.Kind))
}

func (s TypeSig) String() string {
	var m *Module
	return m.TypeSigString(s)
}

// MethodSigString formats sig with name.
func (m *Module) MethodSigString(name string, sig MethodSig) string {
	var sb strings.Builder
	if sig.HasThis {
		sb.WriteString("instance ")
	}
	sb.WriteString(m.TypeSigString(sig.Return))
	sb.WriteByte(' ')
	sb.WriteString(name)
	sb.WriteByte('(')
	for i, p := range sig.Params {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(m.TypeSigString(p))
	}
	sb.WriteByte(')')
	return sb.String()
}

func qualify(ns, name string) string {
	if ns == "" {
		return name
	}
	return ns + "." + name
}
