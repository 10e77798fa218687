package codegen

import (
	"math"

	"github.com/wippyai/il-weaver/errors"
	"github.com/wippyai/il-weaver/il"
)

// Emitter accumulates instructions. Methods return the emitter for chaining.
// The first failing operation is sticky and reported by Err.
type Emitter struct {
	err  error
	code []il.Instruction
}

// NewEmitter creates an empty emitter.
func NewEmitter() *Emitter {
	return &Emitter{}
}

// Len returns the number of emitted instructions.
func (e *Emitter) Len() int { return len(e.code) }

// Instructions returns the emitted instructions without copying.
func (e *Emitter) Instructions() []il.Instruction { return e.code }

// Copy returns an independent copy of the emitted instructions.
func (e *Emitter) Copy() []il.Instruction {
	return append([]il.Instruction(nil), e.code...)
}

// Reset clears the emitter, including any recorded error.
func (e *Emitter) Reset() {
	e.code = e.code[:0]
	e.err = nil
}

// Err returns the first error recorded by the emitter.
func (e *Emitter) Err() error { return e.err }

// Emit appends instr.
func (e *Emitter) Emit(instr il.Instruction) *Emitter {
	e.code = append(e.code, instr)
	return e
}

// EmitAll appends instrs in order.
func (e *Emitter) EmitAll(instrs []il.Instruction) *Emitter {
	e.code = append(e.code, instrs...)
	return e
}

// Const appends a constant load for v. Unsupported values record an error.
func (e *Emitter) Const(v any) *Emitter {
	instr, err := ConstantLoad(v)
	if err != nil {
		if e.err == nil {
			e.err = err
		}
		return e
	}
	return e.Emit(instr)
}

func (e *Emitter) Nop() *Emitter        { return e.Emit(il.Op(il.OpNop)) }
func (e *Emitter) Ldnull() *Emitter     { return e.Emit(il.Op(il.OpLdnull)) }
func (e *Emitter) Dup() *Emitter        { return e.Emit(il.Op(il.OpDup)) }
func (e *Emitter) Ret() *Emitter        { return e.Emit(il.Op(il.OpRet)) }
func (e *Emitter) Rethrow() *Emitter    { return e.Emit(il.Op(il.OpRethrow)) }
func (e *Emitter) Endfinally() *Emitter { return e.Emit(il.Op(il.OpEndfinally)) }
func (e *Emitter) StelemRef() *Emitter  { return e.Emit(il.Op(il.OpStelemRef)) }

func (e *Emitter) LdcI4(v int32) *Emitter  { return e.Emit(il.LdcI4(v)) }
func (e *Emitter) Ldstr(s string) *Emitter { return e.Emit(il.Ldstr(s)) }

func (e *Emitter) Ldarg(i uint32) *Emitter  { return e.Emit(il.Arg(il.OpLdarg, i)) }
func (e *Emitter) Starg(i uint32) *Emitter  { return e.Emit(il.Arg(il.OpStarg, i)) }
func (e *Emitter) Ldloc(i uint32) *Emitter  { return e.Emit(il.Local(il.OpLdloc, i)) }
func (e *Emitter) Ldloca(i uint32) *Emitter { return e.Emit(il.Local(il.OpLdloca, i)) }
func (e *Emitter) Stloc(i uint32) *Emitter  { return e.Emit(il.Local(il.OpStloc, i)) }

func (e *Emitter) Call(t il.Token) *Emitter     { return e.Emit(il.WithToken(il.OpCall, t)) }
func (e *Emitter) Callvirt(t il.Token) *Emitter { return e.Emit(il.WithToken(il.OpCallvirt, t)) }
func (e *Emitter) Newobj(t il.Token) *Emitter   { return e.Emit(il.WithToken(il.OpNewobj, t)) }

func (e *Emitter) Box(t il.TypeSig) *Emitter       { return e.Emit(il.WithType(il.OpBox, t)) }
func (e *Emitter) UnboxAny(t il.TypeSig) *Emitter  { return e.Emit(il.WithType(il.OpUnboxAny, t)) }
func (e *Emitter) Castclass(t il.TypeSig) *Emitter { return e.Emit(il.WithType(il.OpCastclass, t)) }
func (e *Emitter) Newarr(t il.TypeSig) *Emitter    { return e.Emit(il.WithType(il.OpNewarr, t)) }

// ConstantLoad returns the instruction that pushes v. Only strings and
// 32-bit integers can be loaded; an int is accepted when it fits in 32 bits.
func ConstantLoad(v any) (il.Instruction, error) {
	switch c := v.(type) {
	case string:
		return il.Ldstr(c), nil
	case int32:
		return il.LdcI4(c), nil
	case int:
		if c >= math.MinInt32 && c <= math.MaxInt32 {
			return il.LdcI4(int32(c)), nil
		}
	}
	return il.Instruction{}, errors.UnsupportedOperand(v)
}
