package il

import (
	"fmt"

	"github.com/wippyai/il-weaver/il/internal/binary"
)

// Encode encodes the module to ILM binary format.
// The header section is always written; other sections only when non-empty.
func (m *Module) Encode() ([]byte, error) {
	w := binary.NewWriter()

	w.WriteU32LE(Magic)
	w.WriteU32LE(Version)

	// Header section
	sec := binary.NewWriter()
	sec.WriteName(m.Name)
	sec.WriteBytes(m.MVID.Bytes())
	sec.WriteU32(uint32(m.Flags))
	w.Section(SectionHeader, sec)

	// Module reference section
	if len(m.ModuleRefs) > 0 {
		sec := binary.NewWriter()
		sec.WriteU32(uint32(len(m.ModuleRefs)))
		for _, mr := range m.ModuleRefs {
			sec.WriteName(mr.Name)
		}
		w.Section(SectionModuleRef, sec)
	}

	// Type reference section
	if len(m.TypeRefs) > 0 {
		sec := binary.NewWriter()
		sec.WriteU32(uint32(len(m.TypeRefs)))
		for _, tr := range m.TypeRefs {
			sec.WriteU32(tr.Scope)
			sec.WriteName(tr.Namespace)
			sec.WriteName(tr.Name)
		}
		w.Section(SectionTypeRef, sec)
	}

	// Member reference section
	if len(m.MemberRefs) > 0 {
		sec := binary.NewWriter()
		sec.WriteU32(uint32(len(m.MemberRefs)))
		for _, mr := range m.MemberRefs {
			sec.WriteU32LE(uint32(mr.Parent))
			sec.WriteName(mr.Name)
			writeMethodSig(sec, mr.Sig)
		}
		w.Section(SectionMemberRef, sec)
	}

	// Type definition section
	if len(m.Types) > 0 {
		sec := binary.NewWriter()
		sec.WriteU32(uint32(len(m.Types)))
		for _, td := range m.Types {
			if err := writeTypeDef(sec, td); err != nil {
				return nil, fmt.Errorf("type %s: %w", td.FullName(), err)
			}
		}
		w.Section(SectionTypeDef, sec)
	}

	for _, cs := range m.CustomSections {
		sec := binary.NewWriter()
		sec.WriteName(cs.Name)
		sec.WriteBytes(cs.Data)
		w.Section(SectionCustom, sec)
	}

	return w.Bytes(), nil
}

func writeTypeDef(w *binary.Writer, td *TypeDef) error {
	w.WriteName(td.Namespace)
	w.WriteName(td.Name)
	w.WriteU32(uint32(td.Flags))
	w.WriteU32LE(uint32(td.Base))

	w.WriteU32(uint32(len(td.Fields)))
	for _, f := range td.Fields {
		w.WriteName(f.Name)
		w.WriteU32(uint32(f.Flags))
		writeTypeSig(w, f.Type)
	}

	w.WriteU32(uint32(len(td.Methods)))
	for _, md := range td.Methods {
		if err := writeMethodDef(w, md); err != nil {
			return fmt.Errorf("method %s: %w", md.Name, err)
		}
	}

	w.WriteU32(uint32(len(td.Properties)))
	for _, p := range td.Properties {
		w.WriteName(p.Name)
		writeTypeSig(w, p.Type)
		w.WriteU32LE(uint32(p.Getter))
		w.WriteU32LE(uint32(p.Setter))
		writeAnnotations(w, p.Annotations)
	}
	return nil
}

func writeMethodDef(w *binary.Writer, md *MethodDef) error {
	w.WriteName(md.Name)
	w.WriteU32(uint32(md.Flags))
	writeMethodSig(w, md.Sig)

	w.WriteU32(uint32(len(md.Params)))
	for _, p := range md.Params {
		w.WriteName(p.Name)
		writeAnnotations(w, p.Annotations)
	}
	writeAnnotations(w, md.Annotations)

	if md.Body == nil {
		w.Byte(0)
		return nil
	}
	w.Byte(1)
	return writeBody(w, md.Body)
}

func writeBody(w *binary.Writer, b *MethodBody) error {
	w.WriteU32(b.MaxStack)
	if b.InitLocals {
		w.Byte(1)
	} else {
		w.Byte(0)
	}

	w.WriteU32(uint32(len(b.Locals)))
	for _, l := range b.Locals {
		writeTypeSig(w, l)
	}

	w.WriteU32(uint32(len(b.Code)))
	for i := range b.Code {
		if err := writeInstruction(w, &b.Code[i]); err != nil {
			return fmt.Errorf("instruction %d: %w", i, err)
		}
	}

	w.WriteU32(uint32(len(b.Handlers)))
	for _, h := range b.Handlers {
		w.Byte(byte(h.Kind))
		w.WriteU32(uint32(h.TryStart))
		w.WriteU32(uint32(h.TryEnd))
		w.WriteU32(uint32(h.HandlerStart))
		w.WriteU32(uint32(h.HandlerEnd))
		w.WriteU32LE(uint32(h.CatchType))
	}
	return nil
}

func writeInstruction(w *binary.Writer, instr *Instruction) error {
	info, ok := instr.Opcode.Info()
	if !ok {
		return fmt.Errorf("unknown opcode %s", instr.Opcode)
	}
	if instr.Opcode.IsTwoByte() {
		w.Byte(PrefixFE)
	}
	w.Byte(byte(instr.Opcode))

	bad := func() error {
		return fmt.Errorf("%s: immediate %T does not match operand kind", info.Name, instr.Imm)
	}

	switch info.Operand {
	case OperandNone:
		if instr.Imm != nil {
			return bad()
		}
	case OperandI4:
		imm, ok := instr.Imm.(I4Imm)
		if !ok {
			return bad()
		}
		w.WriteS32(imm.Value)
	case OperandI8:
		imm, ok := instr.Imm.(I8Imm)
		if !ok {
			return bad()
		}
		w.WriteS64(imm.Value)
	case OperandR4:
		imm, ok := instr.Imm.(R4Imm)
		if !ok {
			return bad()
		}
		w.WriteF32(imm.Value)
	case OperandR8:
		imm, ok := instr.Imm.(R8Imm)
		if !ok {
			return bad()
		}
		w.WriteF64(imm.Value)
	case OperandString:
		imm, ok := instr.Imm.(StringImm)
		if !ok {
			return bad()
		}
		w.WriteName(imm.Value)
	case OperandLocal:
		imm, ok := instr.Imm.(LocalImm)
		if !ok {
			return bad()
		}
		w.WriteU32(imm.Index)
	case OperandArg:
		imm, ok := instr.Imm.(ArgImm)
		if !ok {
			return bad()
		}
		w.WriteU32(imm.Index)
	case OperandBranch:
		imm, ok := instr.Imm.(BranchImm)
		if !ok || imm.Target < 0 {
			return bad()
		}
		w.WriteU32(uint32(imm.Target))
	case OperandSwitch:
		imm, ok := instr.Imm.(SwitchImm)
		if !ok {
			return bad()
		}
		w.WriteU32(uint32(len(imm.Targets)))
		for _, t := range imm.Targets {
			w.WriteU32(uint32(t))
		}
	case OperandMethod, OperandField:
		imm, ok := instr.Imm.(TokenImm)
		if !ok {
			return bad()
		}
		w.WriteU32LE(uint32(imm.Token))
	case OperandType:
		imm, ok := instr.Imm.(TypeImm)
		if !ok {
			return bad()
		}
		writeTypeSig(w, imm.Type)
	}
	return nil
}

func writeAnnotations(w *binary.Writer, anns []Annotation) {
	w.WriteU32(uint32(len(anns)))
	for _, a := range anns {
		w.WriteU32LE(uint32(a.Ctor))
		w.WriteBlob(a.Args)
	}
}

func writeMethodSig(w *binary.Writer, sig MethodSig) {
	if sig.HasThis {
		w.Byte(1)
	} else {
		w.Byte(0)
	}
	writeTypeSig(w, sig.Return)
	w.WriteU32(uint32(len(sig.Params)))
	for _, p := range sig.Params {
		writeTypeSig(w, p)
	}
}

func writeTypeSig(w *binary.Writer, s TypeSig) {
	w.Byte(byte(s.Kind))
	switch s.Kind {
	case ElemPtr, ElemByRef, ElemSZArray:
		if s.Elem == nil {
			writeTypeSig(w, SigObject)
			return
		}
		writeTypeSig(w, *s.Elem)
	case ElemValueType, ElemClass:
		w.WriteU32LE(uint32(s.Type))
	}
}
