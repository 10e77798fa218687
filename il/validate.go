package il

import (
	"fmt"

	"github.com/hashicorp/go-multierror"
)

// Validate checks the module for structural validity: token ranges, branch
// targets, handler bounds, local and argument indices. All problems found are
// reported together.
func (m *Module) Validate() error {
	var result *multierror.Error

	for i, tr := range m.TypeRefs {
		if _, ok := m.ModuleRefByRow(tr.Scope); !ok {
			result = multierror.Append(result, fmt.Errorf("typeref %d: scope %d out of range", i+1, tr.Scope))
		}
	}
	for i, mr := range m.MemberRefs {
		if !m.isTypeToken(mr.Parent) {
			result = multierror.Append(result, fmt.Errorf("memberref %d: parent %s is not a type", i+1, mr.Parent))
		}
		if err := m.validateMethodSig(mr.Sig); err != nil {
			result = multierror.Append(result, fmt.Errorf("memberref %d: %w", i+1, err))
		}
	}

	for _, td := range m.Types {
		if !td.Base.IsNil() && !m.isTypeToken(td.Base) {
			result = multierror.Append(result, fmt.Errorf("%s: base %s is not a type", td.FullName(), td.Base))
		}
		for _, f := range td.Fields {
			if err := m.validateTypeSig(f.Type); err != nil {
				result = multierror.Append(result, fmt.Errorf("%s::%s: %w", td.FullName(), f.Name, err))
			}
		}
		for _, md := range td.Methods {
			if err := m.validateMethod(md); err != nil {
				result = multierror.Append(result, fmt.Errorf("%s::%s: %w", td.FullName(), md.Name, err))
			}
		}
		for _, p := range td.Properties {
			for _, acc := range []Token{p.Getter, p.Setter} {
				if acc.IsNil() {
					continue
				}
				if _, _, ok := m.MethodByToken(acc); !ok {
					result = multierror.Append(result, fmt.Errorf("%s property %s: accessor %s is not a method", td.FullName(), p.Name, acc))
				}
			}
			if err := m.validateAnnotations(p.Annotations); err != nil {
				result = multierror.Append(result, fmt.Errorf("%s property %s: %w", td.FullName(), p.Name, err))
			}
		}
	}
	return result.ErrorOrNil()
}

func (m *Module) isTypeToken(t Token) bool {
	switch t.Table() {
	case TableTypeDef:
		_, ok := m.TypeDefByToken(t)
		return ok
	case TableTypeRef:
		_, ok := m.TypeRefByToken(t)
		return ok
	}
	return false
}

func (m *Module) isMethodToken(t Token) bool {
	_, err := m.MethodSigOf(t)
	return err == nil
}

func (m *Module) validateTypeSig(s TypeSig) error {
	switch s.Kind {
	case ElemValueType, ElemClass:
		if !m.isTypeToken(s.Type) {
			return fmt.Errorf("signature references %s which is not a type", s.Type)
		}
	case ElemPtr, ElemByRef, ElemSZArray:
		if s.Elem == nil {
			return fmt.Errorf("%s signature without element type", m.TypeSigString(s))
		}
		return m.validateTypeSig(*s.Elem)
	}
	return nil
}

func (m *Module) validateMethodSig(sig MethodSig) error {
	if err := m.validateTypeSig(sig.Return); err != nil {
		return err
	}
	for _, p := range sig.Params {
		if err := m.validateTypeSig(p); err != nil {
			return err
		}
	}
	return nil
}

func (m *Module) validateAnnotations(anns []Annotation) error {
	for i, a := range anns {
		if !m.isMethodToken(a.Ctor) {
			return fmt.Errorf("annotation %d: constructor %s is not a method", i, a.Ctor)
		}
	}
	return nil
}

func (m *Module) validateMethod(md *MethodDef) error {
	if err := m.validateMethodSig(md.Sig); err != nil {
		return err
	}
	if md.Sig.HasThis == md.IsStatic() {
		return fmt.Errorf("has-this flag disagrees with static flag")
	}
	if len(md.Params) > len(md.Sig.Params) {
		return fmt.Errorf("%d parameter records for %d parameters", len(md.Params), len(md.Sig.Params))
	}
	if err := m.validateAnnotations(md.Annotations); err != nil {
		return err
	}
	for i, p := range md.Params {
		if err := m.validateAnnotations(p.Annotations); err != nil {
			return fmt.Errorf("parameter %d: %w", i, err)
		}
	}
	if md.Body == nil {
		return nil
	}
	return m.validateBody(md.Sig, md.Body)
}

func (m *Module) validateBody(sig MethodSig, b *MethodBody) error {
	n := len(b.Code)
	if n == 0 {
		return fmt.Errorf("empty body")
	}
	for _, l := range b.Locals {
		if err := m.validateTypeSig(l); err != nil {
			return fmt.Errorf("local: %w", err)
		}
	}
	nargs := uint32(sig.ArgCount())
	for pc, instr := range b.Code {
		info, ok := instr.Opcode.Info()
		if !ok {
			return fmt.Errorf("instruction %d: unknown opcode %s", pc, instr.Opcode)
		}
		switch imm := instr.Imm.(type) {
		case BranchImm:
			if imm.Target < 0 || imm.Target >= n {
				return fmt.Errorf("instruction %d: branch target %d out of range", pc, imm.Target)
			}
		case SwitchImm:
			for _, t := range imm.Targets {
				if t < 0 || t >= n {
					return fmt.Errorf("instruction %d: switch target %d out of range", pc, t)
				}
			}
		case LocalImm:
			if int(imm.Index) >= len(b.Locals) {
				return fmt.Errorf("instruction %d: local %d out of range", pc, imm.Index)
			}
		case ArgImm:
			if imm.Index >= nargs {
				return fmt.Errorf("instruction %d: argument %d out of range", pc, imm.Index)
			}
		case TokenImm:
			switch info.Operand {
			case OperandMethod:
				if !m.isMethodToken(imm.Token) {
					return fmt.Errorf("instruction %d: %s is not a method", pc, imm.Token)
				}
			case OperandField:
				if _, _, ok := m.FieldByToken(imm.Token); !ok {
					return fmt.Errorf("instruction %d: %s is not a field", pc, imm.Token)
				}
			}
		case TypeImm:
			if err := m.validateTypeSig(imm.Type); err != nil {
				return fmt.Errorf("instruction %d: %w", pc, err)
			}
		}
	}
	for i, h := range b.Handlers {
		if !(0 <= h.TryStart && h.TryStart < h.TryEnd && h.TryEnd <= h.HandlerStart &&
			h.HandlerStart < h.HandlerEnd && h.HandlerEnd <= n) {
			return fmt.Errorf("handler %d: invalid bounds try=[%d,%d) handler=[%d,%d)",
				i, h.TryStart, h.TryEnd, h.HandlerStart, h.HandlerEnd)
		}
		switch last, _ := b.Code[h.HandlerEnd-1].Opcode.Info(); last.Flow {
		case FlowNext, FlowCondBranch, FlowCall:
			return fmt.Errorf("handler %d: falls through its end at instruction %d", i, h.HandlerEnd-1)
		}
		if h.Kind == HandlerCatch && !h.CatchType.IsNil() && !m.isTypeToken(h.CatchType) {
			return fmt.Errorf("handler %d: catch type %s is not a type", i, h.CatchType)
		}
	}
	return nil
}
