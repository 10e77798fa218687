package il

import (
	"errors"
	"fmt"

	"github.com/gofrs/uuid"

	"github.com/wippyai/il-weaver/il/internal/binary"
)

// Parsing errors returned by ParseModule.
var (
	ErrInvalidMagic   = errors.New("invalid ilm magic number")
	ErrInvalidVersion = errors.New("invalid ilm version")
	ErrMissingHeader  = errors.New("missing header section")
)

// Upper bound on element counts to reject corrupt length prefixes early.
const maxCount = 1 << 20

// ParseModule parses an ILM binary module.
func ParseModule(data []byte) (*Module, error) {
	r := binary.NewReader(data)

	magic, err := r.ReadU32LE()
	if err != nil {
		return nil, r.WrapError("header", err)
	}
	if magic != Magic {
		return nil, ErrInvalidMagic
	}
	version, err := r.ReadU32LE()
	if err != nil {
		return nil, r.WrapError("header", err)
	}
	if version != Version {
		return nil, ErrInvalidVersion
	}

	m := &Module{}
	var lastSection byte
	sawHeader := false
	for r.Len() > 0 {
		sectionID, sr, err := r.ReadSection()
		if err != nil {
			return nil, r.WrapError("section", err)
		}

		// Custom sections can appear anywhere.
		if sectionID != SectionCustom {
			if sectionID <= lastSection {
				return nil, fmt.Errorf("section %d appears out of order", sectionID)
			}
			lastSection = sectionID
		}

		switch sectionID {
		case SectionCustom:
			err = parseCustomSection(sr, m)
		case SectionHeader:
			sawHeader = true
			err = parseHeaderSection(sr, m)
		case SectionModuleRef:
			err = parseModuleRefSection(sr, m)
		case SectionTypeRef:
			err = parseTypeRefSection(sr, m)
		case SectionMemberRef:
			err = parseMemberRefSection(sr, m)
		case SectionTypeDef:
			err = parseTypeDefSection(sr, m)
		default:
			return nil, fmt.Errorf("unknown section id %d", sectionID)
		}
		if err != nil {
			return nil, fmt.Errorf("%s section: %w", sectionName(sectionID), err)
		}
		if sr.Len() != 0 {
			return nil, fmt.Errorf("%s section: %d trailing bytes", sectionName(sectionID), sr.Len())
		}
	}

	if !sawHeader {
		return nil, ErrMissingHeader
	}
	return m, nil
}

func sectionName(id byte) string {
	switch id {
	case SectionCustom:
		return "custom"
	case SectionHeader:
		return "header"
	case SectionModuleRef:
		return "module reference"
	case SectionTypeRef:
		return "type reference"
	case SectionMemberRef:
		return "member reference"
	case SectionTypeDef:
		return "type definition"
	}
	return fmt.Sprintf("section(%d)", id)
}

func readCount(r *binary.Reader) (int, error) {
	n, err := r.ReadU32()
	if err != nil {
		return 0, err
	}
	if n > maxCount {
		return 0, fmt.Errorf("count %d exceeds limit", n)
	}
	return int(n), nil
}

func parseCustomSection(r *binary.Reader, m *Module) error {
	name, err := r.ReadName()
	if err != nil {
		return err
	}
	data, err := r.ReadBytes(r.Len())
	if err != nil {
		return err
	}
	m.CustomSections = append(m.CustomSections, CustomSection{Name: name, Data: data})
	return nil
}

func parseHeaderSection(r *binary.Reader, m *Module) error {
	name, err := r.ReadName()
	if err != nil {
		return err
	}
	raw, err := r.ReadBytes(uuid.Size)
	if err != nil {
		return err
	}
	mvid, err := uuid.FromBytes(raw)
	if err != nil {
		return err
	}
	flags, err := r.ReadU32()
	if err != nil {
		return err
	}
	m.Name = name
	m.MVID = mvid
	m.Flags = ModuleFlags(flags)
	return nil
}

func parseModuleRefSection(r *binary.Reader, m *Module) error {
	count, err := readCount(r)
	if err != nil {
		return err
	}
	m.ModuleRefs = make([]ModuleRef, count)
	for i := range m.ModuleRefs {
		if m.ModuleRefs[i].Name, err = r.ReadName(); err != nil {
			return err
		}
	}
	return nil
}

func parseTypeRefSection(r *binary.Reader, m *Module) error {
	count, err := readCount(r)
	if err != nil {
		return err
	}
	m.TypeRefs = make([]TypeRef, count)
	for i := range m.TypeRefs {
		tr := &m.TypeRefs[i]
		if tr.Scope, err = r.ReadU32(); err != nil {
			return err
		}
		if tr.Namespace, err = r.ReadName(); err != nil {
			return err
		}
		if tr.Name, err = r.ReadName(); err != nil {
			return err
		}
	}
	return nil
}

func parseMemberRefSection(r *binary.Reader, m *Module) error {
	count, err := readCount(r)
	if err != nil {
		return err
	}
	m.MemberRefs = make([]MemberRef, count)
	for i := range m.MemberRefs {
		mr := &m.MemberRefs[i]
		parent, err := r.ReadU32LE()
		if err != nil {
			return err
		}
		mr.Parent = Token(parent)
		if mr.Name, err = r.ReadName(); err != nil {
			return err
		}
		if mr.Sig, err = readMethodSig(r); err != nil {
			return err
		}
	}
	return nil
}

func parseTypeDefSection(r *binary.Reader, m *Module) error {
	count, err := readCount(r)
	if err != nil {
		return err
	}
	m.Types = make([]*TypeDef, 0, count)
	for i := 0; i < count; i++ {
		td, err := readTypeDef(r)
		if err != nil {
			return fmt.Errorf("type %d: %w", i, err)
		}
		m.Types = append(m.Types, td)
	}
	return nil
}

func readTypeDef(r *binary.Reader) (*TypeDef, error) {
	td := &TypeDef{}
	var err error
	if td.Namespace, err = r.ReadName(); err != nil {
		return nil, err
	}
	if td.Name, err = r.ReadName(); err != nil {
		return nil, err
	}
	flags, err := r.ReadU32()
	if err != nil {
		return nil, err
	}
	td.Flags = TypeFlags(flags)
	base, err := r.ReadU32LE()
	if err != nil {
		return nil, err
	}
	td.Base = Token(base)

	nfields, err := readCount(r)
	if err != nil {
		return nil, err
	}
	if nfields > 0 {
		td.Fields = make([]FieldDef, nfields)
	}
	for i := range td.Fields {
		f := &td.Fields[i]
		if f.Name, err = r.ReadName(); err != nil {
			return nil, err
		}
		flags, err := r.ReadU32()
		if err != nil {
			return nil, err
		}
		f.Flags = FieldFlags(flags)
		if f.Type, err = readTypeSig(r, 0); err != nil {
			return nil, err
		}
	}

	nmethods, err := readCount(r)
	if err != nil {
		return nil, err
	}
	for i := 0; i < nmethods; i++ {
		md, err := readMethodDef(r)
		if err != nil {
			return nil, fmt.Errorf("method %d: %w", i, err)
		}
		td.Methods = append(td.Methods, md)
	}

	nprops, err := readCount(r)
	if err != nil {
		return nil, err
	}
	for i := 0; i < nprops; i++ {
		p := &PropertyDef{}
		if p.Name, err = r.ReadName(); err != nil {
			return nil, err
		}
		if p.Type, err = readTypeSig(r, 0); err != nil {
			return nil, err
		}
		getter, err := r.ReadU32LE()
		if err != nil {
			return nil, err
		}
		setter, err := r.ReadU32LE()
		if err != nil {
			return nil, err
		}
		p.Getter, p.Setter = Token(getter), Token(setter)
		if p.Annotations, err = readAnnotations(r); err != nil {
			return nil, err
		}
		td.Properties = append(td.Properties, p)
	}
	return td, nil
}

func readMethodDef(r *binary.Reader) (*MethodDef, error) {
	md := &MethodDef{}
	var err error
	if md.Name, err = r.ReadName(); err != nil {
		return nil, err
	}
	flags, err := r.ReadU32()
	if err != nil {
		return nil, err
	}
	md.Flags = MethodFlags(flags)
	if md.Sig, err = readMethodSig(r); err != nil {
		return nil, err
	}

	nparams, err := readCount(r)
	if err != nil {
		return nil, err
	}
	if nparams > 0 {
		md.Params = make([]ParamDef, nparams)
	}
	for i := range md.Params {
		if md.Params[i].Name, err = r.ReadName(); err != nil {
			return nil, err
		}
		if md.Params[i].Annotations, err = readAnnotations(r); err != nil {
			return nil, err
		}
	}
	if md.Annotations, err = readAnnotations(r); err != nil {
		return nil, err
	}

	hasBody, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	switch hasBody {
	case 0:
	case 1:
		if md.Body, err = readBody(r); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("invalid body flag 0x%02X", hasBody)
	}
	return md, nil
}

func readBody(r *binary.Reader) (*MethodBody, error) {
	b := &MethodBody{}
	var err error
	if b.MaxStack, err = r.ReadU32(); err != nil {
		return nil, err
	}
	init, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	if init > 1 {
		return nil, fmt.Errorf("invalid init-locals flag 0x%02X", init)
	}
	b.InitLocals = init == 1

	nlocals, err := readCount(r)
	if err != nil {
		return nil, err
	}
	for i := 0; i < nlocals; i++ {
		sig, err := readTypeSig(r, 0)
		if err != nil {
			return nil, err
		}
		b.Locals = append(b.Locals, sig)
	}

	ncode, err := readCount(r)
	if err != nil {
		return nil, err
	}
	b.Code = make([]Instruction, 0, ncode)
	for i := 0; i < ncode; i++ {
		instr, err := readInstruction(r)
		if err != nil {
			return nil, fmt.Errorf("instruction %d: %w", i, err)
		}
		b.Code = append(b.Code, instr)
	}

	nhandlers, err := readCount(r)
	if err != nil {
		return nil, err
	}
	for i := 0; i < nhandlers; i++ {
		var h ExceptionHandler
		kind, err := r.ReadByte()
		if err != nil {
			return nil, err
		}
		h.Kind = HandlerKind(kind)
		if h.Kind != HandlerCatch && h.Kind != HandlerFinally {
			return nil, fmt.Errorf("invalid handler kind 0x%02X", kind)
		}
		var bounds [4]uint32
		for j := range bounds {
			if bounds[j], err = r.ReadU32(); err != nil {
				return nil, err
			}
		}
		h.TryStart, h.TryEnd = int(bounds[0]), int(bounds[1])
		h.HandlerStart, h.HandlerEnd = int(bounds[2]), int(bounds[3])
		catchType, err := r.ReadU32LE()
		if err != nil {
			return nil, err
		}
		h.CatchType = Token(catchType)
		b.Handlers = append(b.Handlers, h)
	}
	return b, nil
}

func readInstruction(r *binary.Reader) (Instruction, error) {
	b, err := r.ReadByte()
	if err != nil {
		return Instruction{}, err
	}
	op := Opcode(b)
	if b == PrefixFE {
		b2, err := r.ReadByte()
		if err != nil {
			return Instruction{}, err
		}
		op = Opcode(uint16(PrefixFE)<<8 | uint16(b2))
	}
	info, ok := op.Info()
	if !ok {
		return Instruction{}, fmt.Errorf("unknown opcode 0x%X", uint16(op))
	}

	instr := Instruction{Opcode: op}
	switch info.Operand {
	case OperandNone:
	case OperandI4:
		v, err := r.ReadS32()
		if err != nil {
			return instr, err
		}
		instr.Imm = I4Imm{Value: v}
	case OperandI8:
		v, err := r.ReadS64()
		if err != nil {
			return instr, err
		}
		instr.Imm = I8Imm{Value: v}
	case OperandR4:
		v, err := r.ReadF32()
		if err != nil {
			return instr, err
		}
		instr.Imm = R4Imm{Value: v}
	case OperandR8:
		v, err := r.ReadF64()
		if err != nil {
			return instr, err
		}
		instr.Imm = R8Imm{Value: v}
	case OperandString:
		v, err := r.ReadName()
		if err != nil {
			return instr, err
		}
		instr.Imm = StringImm{Value: v}
	case OperandLocal:
		v, err := r.ReadU32()
		if err != nil {
			return instr, err
		}
		instr.Imm = LocalImm{Index: v}
	case OperandArg:
		v, err := r.ReadU32()
		if err != nil {
			return instr, err
		}
		instr.Imm = ArgImm{Index: v}
	case OperandBranch:
		v, err := r.ReadU32()
		if err != nil {
			return instr, err
		}
		instr.Imm = BranchImm{Target: int(v)}
	case OperandSwitch:
		n, err := readCount(r)
		if err != nil {
			return instr, err
		}
		targets := make([]int, n)
		for i := range targets {
			v, err := r.ReadU32()
			if err != nil {
				return instr, err
			}
			targets[i] = int(v)
		}
		instr.Imm = SwitchImm{Targets: targets}
	case OperandMethod, OperandField:
		v, err := r.ReadU32LE()
		if err != nil {
			return instr, err
		}
		instr.Imm = TokenImm{Token: Token(v)}
	case OperandType:
		sig, err := readTypeSig(r, 0)
		if err != nil {
			return instr, err
		}
		instr.Imm = TypeImm{Type: sig}
	}
	return instr, nil
}

func readAnnotations(r *binary.Reader) ([]Annotation, error) {
	n, err := readCount(r)
	if err != nil || n == 0 {
		return nil, err
	}
	anns := make([]Annotation, n)
	for i := range anns {
		ctor, err := r.ReadU32LE()
		if err != nil {
			return nil, err
		}
		anns[i].Ctor = Token(ctor)
		if anns[i].Args, err = r.ReadBlob(); err != nil {
			return nil, err
		}
	}
	return anns, nil
}

func readMethodSig(r *binary.Reader) (MethodSig, error) {
	var sig MethodSig
	hasThis, err := r.ReadByte()
	if err != nil {
		return sig, err
	}
	if hasThis > 1 {
		return sig, fmt.Errorf("invalid has-this flag 0x%02X", hasThis)
	}
	sig.HasThis = hasThis == 1
	if sig.Return, err = readTypeSig(r, 0); err != nil {
		return sig, err
	}
	n, err := readCount(r)
	if err != nil {
		return sig, err
	}
	for i := 0; i < n; i++ {
		p, err := readTypeSig(r, 0)
		if err != nil {
			return sig, err
		}
		sig.Params = append(sig.Params, p)
	}
	return sig, nil
}

// Nesting limit for pointer, reference and array signatures.
const maxSigDepth = 32

func readTypeSig(r *binary.Reader, depth int) (TypeSig, error) {
	if depth > maxSigDepth {
		return TypeSig{}, errors.New("type signature nested too deeply")
	}
	b, err := r.ReadByte()
	if err != nil {
		return TypeSig{}, err
	}
	sig := TypeSig{Kind: ElementType(b)}
	switch sig.Kind {
	case ElemPtr, ElemByRef, ElemSZArray:
		elem, err := readTypeSig(r, depth+1)
		if err != nil {
			return sig, err
		}
		sig.Elem = &elem
	case ElemValueType, ElemClass:
		v, err := r.ReadU32LE()
		if err != nil {
			return sig, err
		}
		sig.Type = Token(v)
	default:
		if _, ok := primNames[sig.Kind]; !ok {
			return sig, fmt.Errorf("invalid element type 0x%02X", b)
		}
	}
	return sig, nil
}
