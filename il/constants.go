package il

// ILM binary format magic number and version.
const (
	// Magic is the ILM binary magic number ("\0ILM" in little-endian).
	Magic uint32 = 0x4D4C4900

	// Version is the supported ILM binary format version.
	Version uint32 = 0x01
)

// Section IDs define the binary identifiers for each module section.
// Sections must appear in increasing order by ID (except custom sections).
const (
	SectionCustom    byte = 0 // Custom section (can appear anywhere)
	SectionHeader    byte = 1 // Module name, MVID and flags
	SectionModuleRef byte = 2 // Referenced modules
	SectionTypeRef   byte = 3 // Types defined in referenced modules
	SectionMemberRef byte = 4 // Methods defined on referenced types
	SectionTypeDef   byte = 5 // Types defined in this module
)

// Metadata table tags stored in the high byte of a Token.
const (
	TableModule    byte = 0x00
	TableTypeRef   byte = 0x01
	TableTypeDef   byte = 0x02
	TableField     byte = 0x04
	TableMethodDef byte = 0x06
	TableMemberRef byte = 0x0A
	TableModuleRef byte = 0x1A
)

// ElementType identifies the kind of a type signature.
// Values follow the ECMA-335 ELEMENT_TYPE encoding.
type ElementType byte

const (
	ElemVoid      ElementType = 0x01
	ElemBool      ElementType = 0x02
	ElemChar      ElementType = 0x03
	ElemI1        ElementType = 0x04
	ElemU1        ElementType = 0x05
	ElemI2        ElementType = 0x06
	ElemU2        ElementType = 0x07
	ElemI4        ElementType = 0x08
	ElemU4        ElementType = 0x09
	ElemI8        ElementType = 0x0A
	ElemU8        ElementType = 0x0B
	ElemR4        ElementType = 0x0C
	ElemR8        ElementType = 0x0D
	ElemString    ElementType = 0x0E
	ElemPtr       ElementType = 0x0F
	ElemByRef     ElementType = 0x10
	ElemValueType ElementType = 0x11
	ElemClass     ElementType = 0x12
	ElemI         ElementType = 0x18
	ElemU         ElementType = 0x19
	ElemFnPtr     ElementType = 0x1B
	ElemObject    ElementType = 0x1C
	ElemSZArray   ElementType = 0x1D
)

// ModuleFlags carries module-wide state.
type ModuleFlags uint32

// ModuleFlagWoven marks a module whose method bodies were instrumented.
const ModuleFlagWoven ModuleFlags = 1 << 0

// TypeFlags describe a type definition.
type TypeFlags uint32

const (
	TypeFlagValueType  TypeFlags = 1 << 0
	TypeFlagAnnotation TypeFlags = 1 << 1
	TypeFlagAbstract   TypeFlags = 1 << 2
	TypeFlagInterface  TypeFlags = 1 << 3
)

// MethodFlags describe a method definition.
type MethodFlags uint32

const (
	MethodFlagStatic   MethodFlags = 1 << 0
	MethodFlagCtor     MethodFlags = 1 << 1
	MethodFlagAbstract MethodFlags = 1 << 2
	MethodFlagVirtual  MethodFlags = 1 << 3
)

// FieldFlags describe a field definition.
type FieldFlags uint32

// FieldFlagStatic marks a field stored on the type rather than the instance.
const FieldFlagStatic FieldFlags = 1 << 0

// HandlerKind identifies an exception handler region kind.
type HandlerKind byte

const (
	// HandlerCatch runs its handler when a fault propagates out of the try range.
	HandlerCatch HandlerKind = 0x00
	// HandlerFinally runs its handler on every exit from the try range.
	HandlerFinally HandlerKind = 0x02
)

func (k HandlerKind) String() string {
	switch k {
	case HandlerCatch:
		return "catch"
	case HandlerFinally:
		return "finally"
	default:
		return "unknown"
	}
}
