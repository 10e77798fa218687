package il

import (
	"fmt"
	"strconv"
	"strings"
)

// Disassemble renders a method as a text listing.
func Disassemble(m *Module, md *MethodDef) string {
	var sb strings.Builder
	sb.WriteString(".method ")
	if md.IsStatic() {
		sb.WriteString("static ")
	}
	sb.WriteString(m.MethodSigString(md.Name, md.Sig))
	sb.WriteByte('\n')

	for _, a := range md.Annotations {
		fmt.Fprintf(&sb, "  .annotation %s\n", m.MethodName(a.Ctor))
	}
	for i, p := range md.Params {
		for _, a := range p.Annotations {
			fmt.Fprintf(&sb, "  .param [%d] %s .annotation %s\n", i, p.Name, m.MethodName(a.Ctor))
		}
	}

	b := md.Body
	if b == nil {
		sb.WriteString("  // no body\n")
		return sb.String()
	}
	fmt.Fprintf(&sb, "  .maxstack %d\n", b.MaxStack)
	if len(b.Locals) > 0 {
		if b.InitLocals {
			sb.WriteString("  .locals init (")
		} else {
			sb.WriteString("  .locals (")
		}
		for i, l := range b.Locals {
			if i > 0 {
				sb.WriteString(", ")
			}
			fmt.Fprintf(&sb, "[%d] %s", i, m.TypeSigString(l))
		}
		sb.WriteString(")\n")
	}

	for pc, instr := range b.Code {
		for i, h := range b.Handlers {
			switch pc {
			case h.TryStart:
				fmt.Fprintf(&sb, "  .try #%d {\n", i)
			case h.HandlerStart:
				if h.Kind == HandlerCatch {
					fmt.Fprintf(&sb, "  } catch #%d {\n", i)
				} else {
					fmt.Fprintf(&sb, "  } finally #%d {\n", i)
				}
			}
		}
		fmt.Fprintf(&sb, "  IL_%04d: %s\n", pc, FormatInstruction(m, instr))
		for i, h := range b.Handlers {
			if pc+1 == h.HandlerEnd {
				fmt.Fprintf(&sb, "  } // end #%d\n", i)
			}
		}
	}
	return sb.String()
}

// FormatInstruction renders one instruction with its operand.
func FormatInstruction(m *Module, instr Instruction) string {
	name := instr.Opcode.String()
	switch imm := instr.Imm.(type) {
	case nil:
		return name
	case I4Imm:
		return name + " " + strconv.FormatInt(int64(imm.Value), 10)
	case I8Imm:
		return name + " " + strconv.FormatInt(imm.Value, 10)
	case R4Imm:
		return name + " " + strconv.FormatFloat(float64(imm.Value), 'g', -1, 32)
	case R8Imm:
		return name + " " + strconv.FormatFloat(imm.Value, 'g', -1, 64)
	case StringImm:
		return name + " " + strconv.Quote(imm.Value)
	case LocalImm:
		return fmt.Sprintf("%s %d", name, imm.Index)
	case ArgImm:
		return fmt.Sprintf("%s %d", name, imm.Index)
	case BranchImm:
		return fmt.Sprintf("%s IL_%04d", name, imm.Target)
	case SwitchImm:
		labels := make([]string, len(imm.Targets))
		for i, t := range imm.Targets {
			labels[i] = fmt.Sprintf("IL_%04d", t)
		}
		return name + " (" + strings.Join(labels, ", ") + ")"
	case TokenImm:
		if imm.Token.Table() == TableField {
			return name + " " + m.FieldName(imm.Token)
		}
		return name + " " + m.MethodName(imm.Token)
	case TypeImm:
		return name + " " + m.TypeSigString(imm.Type)
	}
	return fmt.Sprintf("%s <%T>", name, instr.Imm)
}
