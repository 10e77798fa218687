package il

// Instruction represents a decoded instruction.
type Instruction struct {
	Imm    interface{}
	Opcode Opcode
}

// I4Imm holds the constant for ldc.i4.
type I4Imm struct {
	Value int32
}

// I8Imm holds the constant for ldc.i8.
type I8Imm struct {
	Value int64
}

// R4Imm holds the constant for ldc.r4.
type R4Imm struct {
	Value float32
}

// R8Imm holds the constant for ldc.r8.
type R8Imm struct {
	Value float64
}

// StringImm holds the literal for ldstr.
type StringImm struct {
	Value string
}

// LocalImm holds the local index for ldloc, ldloca, stloc.
type LocalImm struct {
	Index uint32
}

// ArgImm holds the argument slot for ldarg, ldarga, starg.
// Slot 0 is the receiver on instance methods.
type ArgImm struct {
	Index uint32
}

// BranchImm holds the target instruction index of a branch or leave.
type BranchImm struct {
	Target int
}

// SwitchImm holds the jump table of a switch.
type SwitchImm struct {
	Targets []int
}

// TokenImm holds a method or field token.
type TokenImm struct {
	Token Token
}

// TypeImm holds the type operand of box, unbox.any, newarr, castclass and friends.
type TypeImm struct {
	Type TypeSig
}

// Convenience constructors.

// Op returns an instruction without immediate.
func Op(op Opcode) Instruction { return Instruction{Opcode: op} }

// LdcI4 returns ldc.i4 v.
func LdcI4(v int32) Instruction { return Instruction{Opcode: OpLdcI4, Imm: I4Imm{Value: v}} }

// Ldstr returns ldstr s.
func Ldstr(s string) Instruction { return Instruction{Opcode: OpLdstr, Imm: StringImm{Value: s}} }

// Local returns op with a local index (ldloc, ldloca, stloc).
func Local(op Opcode, idx uint32) Instruction {
	return Instruction{Opcode: op, Imm: LocalImm{Index: idx}}
}

// Arg returns op with an argument slot (ldarg, ldarga, starg).
func Arg(op Opcode, idx uint32) Instruction {
	return Instruction{Opcode: op, Imm: ArgImm{Index: idx}}
}

// Branch returns op targeting instruction index target.
func Branch(op Opcode, target int) Instruction {
	return Instruction{Opcode: op, Imm: BranchImm{Target: target}}
}

// WithToken returns op with a method or field token.
func WithToken(op Opcode, t Token) Instruction {
	return Instruction{Opcode: op, Imm: TokenImm{Token: t}}
}

// WithType returns op with a type operand.
func WithType(op Opcode, t TypeSig) Instruction {
	return Instruction{Opcode: op, Imm: TypeImm{Type: t}}
}

// Token returns the token immediate of i, if any.
func (i Instruction) Token() (Token, bool) {
	imm, ok := i.Imm.(TokenImm)
	return imm.Token, ok
}

// IsBranch reports whether i transfers control to an index operand.
func (i Instruction) IsBranch() bool {
	switch i.Imm.(type) {
	case BranchImm, SwitchImm:
		return true
	}
	return false
}

// Targets returns the branch targets of i.
func (i Instruction) Targets() []int {
	switch imm := i.Imm.(type) {
	case BranchImm:
		return []int{imm.Target}
	case SwitchImm:
		return imm.Targets
	}
	return nil
}
