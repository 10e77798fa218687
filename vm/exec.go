package vm

import (
	"math"

	"github.com/wippyai/il-weaver/errors"
	"github.com/wippyai/il-weaver/il"
	"github.com/wippyai/il-weaver/resolve"
)

type frame struct {
	method *resolve.Method
	mod    *resolve.Module
	body   *il.MethodBody
	args   []Value
	locals []Value
	stack  []Value
	// caught holds the exceptions of the catch handlers being executed.
	caught []*Fault
}

func newFrame(m *resolve.Method, args []Value) *frame {
	f := &frame{
		method: m,
		mod:    m.Type.Owner,
		body:   m.Def.Body,
		args:   make([]Value, len(args)),
		locals: make([]Value, len(m.Def.Body.Locals)),
	}
	this := 0
	if m.Def.Sig.HasThis {
		f.args[0] = args[0]
		this = 1
	}
	for i, p := range m.Def.Sig.Params {
		f.args[i+this] = normalize(p, args[i+this])
	}
	for i, t := range m.Def.Body.Locals {
		f.locals[i] = zero(t)
	}
	return f
}

func (f *frame) name() string {
	return f.method.Type.FullName() + "::" + f.method.Def.Name
}

func (f *frame) push(v Value) { f.stack = append(f.stack, v) }

func (f *frame) pop() Value {
	v := f.stack[len(f.stack)-1]
	f.stack = f.stack[:len(f.stack)-1]
	return v
}

func (f *frame) popN(n int) []Value {
	out := make([]Value, n)
	copy(out, f.stack[len(f.stack)-n:])
	f.stack = f.stack[:len(f.stack)-n]
	return out
}

func (f *frame) fail(pc int, format string, args ...any) error {
	return errors.New(errors.PhaseExecute, errors.KindInvalidData).
		Module(f.mod.Module.Name).
		Member(f.name()).
		Detail("IL_%04d: "+format, append([]any{pc}, args...)...).
		Build()
}

func raise(name, msg string) *Fault {
	return &Fault{Value: &Exception{Name: name, Message: msg}}
}

func argRef(f *frame, i uint32) *Ref {
	return &Ref{load: func() Value { return f.args[i] }, store: func(v Value) { f.args[i] = v }}
}

func localRef(f *frame, i uint32) *Ref {
	return &Ref{load: func() Value { return f.locals[i] }, store: func(v Value) { f.locals[i] = v }}
}

// run executes f from pc until ret, or until endfinally when inFinally is
// set. It reports whether it stopped at endfinally.
func (vm *Machine) run(f *frame, pc int, inFinally bool) (Value, bool, error) {
	code := f.body.Code
	for {
		if pc < 0 || pc >= len(code) {
			return nil, false, f.fail(pc, "control left the method body")
		}
		instr := code[pc]
		eff, err := il.GetStackEffect(f.mod.Module, instr, f.method.Def.Sig.Return)
		if err != nil {
			return nil, false, f.fail(pc, "%v", err)
		}
		if eff.Pops > len(f.stack) {
			return nil, false, f.fail(pc, "%s: stack underflow", instr.Opcode)
		}

		next, ret, done, err := vm.step(f, pc, instr)
		if err != nil {
			fault, ok := err.(*Fault)
			if !ok {
				return nil, false, err
			}
			next, err = vm.unwind(f, pc, fault, 0)
			if err != nil {
				return nil, false, err
			}
			pc = next
			continue
		}
		switch done {
		case stopReturn:
			if inFinally {
				return nil, false, f.fail(pc, "ret inside a finally handler")
			}
			return ret, false, nil
		case stopEndfinally:
			if !inFinally {
				return nil, false, f.fail(pc, "endfinally outside a finally handler")
			}
			return nil, true, nil
		}
		pc = next
	}
}

type stop int

const (
	stopNone stop = iota
	stopReturn
	stopEndfinally
)

// unwind looks for a handler of fault raised at pc, starting at handler
// index from. It returns the handler entry point, running the finally
// handlers it passes on the way.
func (vm *Machine) unwind(f *frame, pc int, fault *Fault, from int) (int, error) {
	for _, h := range f.body.Handlers[from:] {
		if pc < h.TryStart || pc >= h.TryEnd {
			continue
		}
		switch h.Kind {
		case il.HandlerCatch:
			if !h.CatchType.IsNil() && !vm.isInstance(f.mod.Module, il.ClassOf(h.CatchType), fault.Value) {
				continue
			}
			f.stack = append(f.stack[:0], fault.Value)
			f.caught = append(f.caught, fault)
			return h.HandlerStart, nil
		case il.HandlerFinally:
			if err := vm.runFinally(f, h); err != nil {
				nf, ok := err.(*Fault)
				if !ok {
					return 0, err
				}
				fault = nf
			}
		}
	}
	return 0, fault
}

func (vm *Machine) runFinally(f *frame, h il.ExceptionHandler) error {
	f.stack = f.stack[:0]
	_, ended, err := vm.run(f, h.HandlerStart, true)
	if err != nil {
		return err
	}
	if !ended {
		return f.fail(h.HandlerStart, "finally handler did not end with endfinally")
	}
	return nil
}

// leave transfers control from pc to target, running the finally handlers of
// every try range that is exited. A fault raised by one of them unwinds
// through the enclosing handlers instead.
func (vm *Machine) leave(f *frame, pc, target int) (int, error) {
	for i, h := range f.body.Handlers {
		switch {
		case h.Kind == il.HandlerFinally && pc >= h.TryStart && pc < h.TryEnd &&
			(target < h.TryStart || target >= h.TryEnd):
			if err := vm.runFinally(f, h); err != nil {
				fault, ok := err.(*Fault)
				if !ok {
					return 0, err
				}
				return vm.unwind(f, pc, fault, i+1)
			}
		case h.Kind == il.HandlerCatch && pc >= h.HandlerStart && pc < h.HandlerEnd && len(f.caught) > 0:
			f.caught = f.caught[:len(f.caught)-1]
		}
	}
	f.stack = f.stack[:0]
	return target, nil
}

// step executes one instruction and returns the next pc.
func (vm *Machine) step(f *frame, pc int, instr il.Instruction) (next int, ret Value, done stop, err error) {
	next = pc + 1
	switch instr.Opcode {
	case il.OpNop:
	case il.OpLdnull:
		f.push(nil)
	case il.OpLdcI4:
		f.push(instr.Imm.(il.I4Imm).Value)
	case il.OpLdcI8:
		f.push(instr.Imm.(il.I8Imm).Value)
	case il.OpLdcR4:
		f.push(float64(instr.Imm.(il.R4Imm).Value))
	case il.OpLdcR8:
		f.push(instr.Imm.(il.R8Imm).Value)
	case il.OpLdstr:
		f.push(instr.Imm.(il.StringImm).Value)
	case il.OpDup:
		v := f.pop()
		f.push(v)
		f.push(v)
	case il.OpPop:
		f.pop()

	case il.OpLdarg, il.OpLdarga, il.OpStarg:
		i := instr.Imm.(il.ArgImm).Index
		if int(i) >= len(f.args) {
			return 0, nil, stopNone, f.fail(pc, "argument %d out of range", i)
		}
		switch instr.Opcode {
		case il.OpLdarg:
			f.push(f.args[i])
		case il.OpLdarga:
			f.push(argRef(f, i))
		default:
			f.args[i] = f.pop()
		}
	case il.OpLdloc, il.OpLdloca, il.OpStloc:
		i := instr.Imm.(il.LocalImm).Index
		if int(i) >= len(f.locals) {
			return 0, nil, stopNone, f.fail(pc, "local %d out of range", i)
		}
		switch instr.Opcode {
		case il.OpLdloc:
			f.push(f.locals[i])
		case il.OpLdloca:
			f.push(localRef(f, i))
		default:
			f.locals[i] = normalize(f.body.Locals[i], f.pop())
		}

	case il.OpLdindI1, il.OpLdindU1, il.OpLdindI2, il.OpLdindU2, il.OpLdindI4, il.OpLdindU4,
		il.OpLdindI8, il.OpLdindI, il.OpLdindR4, il.OpLdindR8, il.OpLdindRef:
		ref, ok := f.pop().(*Ref)
		if !ok {
			return 0, nil, stopNone, raise(NullReference, "indirect load through a non-reference")
		}
		f.push(normalize(indType[instr.Opcode], ref.Load()))
	case il.OpStindRef, il.OpStindI1, il.OpStindI2, il.OpStindI4, il.OpStindI8, il.OpStindR4, il.OpStindR8:
		v := f.pop()
		ref, ok := f.pop().(*Ref)
		if !ok {
			return 0, nil, stopNone, raise(NullReference, "indirect store through a non-reference")
		}
		ref.Store(normalize(indType[instr.Opcode], v))
	case il.OpLdobj:
		ref, ok := f.pop().(*Ref)
		if !ok {
			return 0, nil, stopNone, raise(NullReference, "ldobj through a non-reference")
		}
		f.push(copyValue(ref.Load()))
	case il.OpStobj:
		v := f.pop()
		ref, ok := f.pop().(*Ref)
		if !ok {
			return 0, nil, stopNone, raise(NullReference, "stobj through a non-reference")
		}
		ref.Store(copyValue(v))
	case il.OpInitobj:
		ref, ok := f.pop().(*Ref)
		if !ok {
			return 0, nil, stopNone, raise(NullReference, "initobj through a non-reference")
		}
		ref.Store(zero(instr.Imm.(il.TypeImm).Type))

	case il.OpAdd, il.OpSub, il.OpMul, il.OpDiv, il.OpRem, il.OpAnd, il.OpOr, il.OpXor:
		b := f.pop()
		a := f.pop()
		v, err := arith(instr.Opcode, a, b)
		if err != nil {
			return 0, nil, stopNone, err
		}
		f.push(v)
	case il.OpNeg:
		switch n := f.pop().(type) {
		case int32:
			f.push(-n)
		case int64:
			f.push(-n)
		case float64:
			f.push(-n)
		default:
			return 0, nil, stopNone, f.fail(pc, "neg of %T", n)
		}
	case il.OpNot:
		switch n := f.pop().(type) {
		case int32:
			f.push(^n)
		case int64:
			f.push(^n)
		default:
			return 0, nil, stopNone, f.fail(pc, "not of %T", n)
		}
	case il.OpConvI4:
		f.push(normalize(il.SigI4, f.pop()))
	case il.OpConvI8:
		f.push(normalize(il.SigI8, f.pop()))
	case il.OpConvR8:
		f.push(normalize(il.SigR8, f.pop()))
	case il.OpCeq, il.OpCgt, il.OpClt:
		b := f.pop()
		a := f.pop()
		var res bool
		if instr.Opcode == il.OpCeq {
			res = equal(a, b)
		} else {
			c, ok := compare(a, b)
			if !ok {
				return 0, nil, stopNone, f.fail(pc, "cannot compare %T and %T", a, b)
			}
			res = (instr.Opcode == il.OpCgt && c > 0) || (instr.Opcode == il.OpClt && c < 0)
		}
		if res {
			f.push(int32(1))
		} else {
			f.push(int32(0))
		}

	case il.OpBr:
		next = instr.Targets()[0]
	case il.OpBrtrue, il.OpBrfalse:
		if truthy(f.pop()) == (instr.Opcode == il.OpBrtrue) {
			next = instr.Targets()[0]
		}
	case il.OpBeq, il.OpBneUn:
		b := f.pop()
		a := f.pop()
		if equal(a, b) == (instr.Opcode == il.OpBeq) {
			next = instr.Targets()[0]
		}
	case il.OpBge, il.OpBgt, il.OpBle, il.OpBlt:
		b := f.pop()
		a := f.pop()
		c, ok := compare(a, b)
		if !ok {
			return 0, nil, stopNone, f.fail(pc, "cannot compare %T and %T", a, b)
		}
		var taken bool
		switch instr.Opcode {
		case il.OpBge:
			taken = c >= 0
		case il.OpBgt:
			taken = c > 0
		case il.OpBle:
			taken = c <= 0
		default:
			taken = c < 0
		}
		if taken {
			next = instr.Targets()[0]
		}
	case il.OpSwitch:
		idx := asInt64(f.pop())
		targets := instr.Targets()
		if idx >= 0 && idx < int64(len(targets)) {
			next = targets[idx]
		}
	case il.OpLeave:
		next, err = vm.leave(f, pc, instr.Targets()[0])
		if err != nil {
			return 0, nil, stopNone, err
		}
	case il.OpEndfinally:
		return 0, nil, stopEndfinally, nil
	case il.OpRet:
		if !f.method.Def.Sig.Return.IsVoid() {
			ret = f.pop()
		}
		return 0, ret, stopReturn, nil
	case il.OpThrow:
		v := f.pop()
		if v == nil {
			return 0, nil, stopNone, raise(NullReference, "throw of null")
		}
		return 0, nil, stopNone, &Fault{Value: v}
	case il.OpRethrow:
		if len(f.caught) == 0 {
			return 0, nil, stopNone, f.fail(pc, "rethrow outside a catch handler")
		}
		fault := f.caught[len(f.caught)-1]
		f.caught = f.caught[:len(f.caught)-1]
		return 0, nil, stopNone, fault

	case il.OpCall, il.OpCallvirt, il.OpNewobj:
		if err := vm.call(f, instr); err != nil {
			return 0, nil, stopNone, err
		}

	case il.OpLdfld, il.OpLdflda, il.OpStfld:
		var v Value
		if instr.Opcode == il.OpStfld {
			v = f.pop()
		}
		obj, ok := f.pop().(*Object)
		if !ok || obj == nil {
			return 0, nil, stopNone, raise(NullReference, "field access on a non-object")
		}
		fd, _, found := f.mod.Module.FieldByToken(instr.Imm.(il.TokenImm).Token)
		if !found {
			return 0, nil, stopNone, f.fail(pc, "unknown field")
		}
		switch instr.Opcode {
		case il.OpLdfld:
			f.push(obj.Fields[fd.Name])
		case il.OpLdflda:
			name := fd.Name
			f.push(&Ref{
				load:  func() Value { return obj.Fields[name] },
				store: func(nv Value) { obj.Fields[name] = nv },
			})
		default:
			obj.Fields[fd.Name] = normalize(fd.Type, v)
		}
	case il.OpLdsfld, il.OpStsfld:
		fd, _, found := f.mod.Module.FieldByToken(instr.Imm.(il.TokenImm).Token)
		if !found {
			return 0, nil, stopNone, f.fail(pc, "unknown field")
		}
		if instr.Opcode == il.OpLdsfld {
			v, ok := vm.statics[fd]
			if !ok {
				v = zero(fd.Type)
			}
			f.push(v)
		} else {
			vm.statics[fd] = normalize(fd.Type, f.pop())
		}

	case il.OpBox:
		t := instr.Imm.(il.TypeImm).Type
		v := f.pop()
		if t.IsValueKind() {
			v = &Box{Value: normalize(t, v), Type: t}
		}
		f.push(v)
	case il.OpUnboxAny:
		t := instr.Imm.(il.TypeImm).Type
		v := f.pop()
		if !t.IsValueKind() {
			if !vm.isInstance(f.mod.Module, t, v) {
				return 0, nil, stopNone, raise(InvalidCast, "unbox.any to "+f.mod.Module.TypeSigString(t))
			}
			f.push(v)
			break
		}
		b, ok := v.(*Box)
		if !ok {
			if v == nil {
				return 0, nil, stopNone, raise(NullReference, "unbox of null")
			}
			return 0, nil, stopNone, raise(InvalidCast, "unbox of an unboxed value")
		}
		if !unboxCompatible(b.Type, t) {
			return 0, nil, stopNone, raise(InvalidCast, "unbox "+b.Type.String()+" as "+t.String())
		}
		f.push(normalize(t, b.Value))
	case il.OpCastclass, il.OpIsinst:
		t := instr.Imm.(il.TypeImm).Type
		v := f.pop()
		switch {
		case vm.isInstance(f.mod.Module, t, v):
			f.push(v)
		case instr.Opcode == il.OpIsinst:
			f.push(nil)
		default:
			return 0, nil, stopNone, raise(InvalidCast, "cast to "+f.mod.Module.TypeSigString(t))
		}

	case il.OpNewarr:
		t := instr.Imm.(il.TypeImm).Type
		n := asInt64(f.pop())
		if n < 0 || n > math.MaxInt32 {
			return 0, nil, stopNone, raise(ArgumentFailed, "negative array size")
		}
		arr := &Array{Elem: t, Elems: make([]Value, n)}
		for i := range arr.Elems {
			arr.Elems[i] = zero(t)
		}
		f.push(arr)
	case il.OpLdlen:
		arr, ok := f.pop().(*Array)
		if !ok || arr == nil {
			return 0, nil, stopNone, raise(NullReference, "ldlen of a non-array")
		}
		f.push(int32(len(arr.Elems)))
	case il.OpLdelemRef, il.OpStelemRef:
		var v Value
		if instr.Opcode == il.OpStelemRef {
			v = f.pop()
		}
		idx := asInt64(f.pop())
		arr, ok := f.pop().(*Array)
		if !ok || arr == nil {
			return 0, nil, stopNone, raise(NullReference, "element access on a non-array")
		}
		if idx < 0 || idx >= int64(len(arr.Elems)) {
			return 0, nil, stopNone, raise(IndexRange, "array index out of range")
		}
		if instr.Opcode == il.OpLdelemRef {
			f.push(arr.Elems[idx])
		} else {
			arr.Elems[idx] = v
		}

	default:
		return 0, nil, stopNone, errors.Unsupported(errors.PhaseExecute, "opcode "+instr.Opcode.String())
	}
	return next, nil, stopNone, nil
}

// call performs call, callvirt and newobj.
func (vm *Machine) call(f *frame, instr il.Instruction) error {
	tok, _ := instr.Token()
	c, err := vm.resolveCall(f.mod, tok)
	if err != nil {
		return err
	}

	var args []Value
	var obj *Object
	if instr.Opcode == il.OpNewobj {
		params := f.popN(len(c.sig.Params))
		if c.host != nil {
			v, err := c.host(vm, params)
			if err != nil {
				return err
			}
			f.push(v)
			return nil
		}
		obj = vm.alloc(c.method.Type)
		args = append([]Value{obj}, params...)
	} else {
		args = f.popN(c.sig.ArgCount())
	}

	var v Value
	switch {
	case c.host != nil:
		v, err = c.host(vm, args)
	default:
		target := c.method
		if c.sig.HasThis && instr.Opcode != il.OpNewobj {
			if args[0] == nil {
				return raise(NullReference, "call of "+c.name+" on null")
			}
			if instr.Opcode == il.OpCallvirt {
				target = vm.dispatch(target, args[0])
			}
		}
		v, err = vm.Call(target, args)
	}
	if err != nil {
		return err
	}

	switch {
	case obj != nil:
		f.push(obj)
	case !c.sig.Return.IsVoid():
		f.push(normalize(c.sig.Return, v))
	}
	return nil
}

var indType = map[il.Opcode]il.TypeSig{
	il.OpLdindI1:  il.Prim(il.ElemI1),
	il.OpLdindU1:  il.Prim(il.ElemU1),
	il.OpLdindI2:  il.Prim(il.ElemI2),
	il.OpLdindU2:  il.Prim(il.ElemU2),
	il.OpLdindI4:  il.SigI4,
	il.OpLdindU4:  il.Prim(il.ElemU4),
	il.OpLdindI8:  il.SigI8,
	il.OpLdindI:   il.Prim(il.ElemI),
	il.OpLdindR4:  il.Prim(il.ElemR4),
	il.OpLdindR8:  il.SigR8,
	il.OpLdindRef: il.SigObject,
	il.OpStindRef: il.SigObject,
	il.OpStindI1:  il.Prim(il.ElemI1),
	il.OpStindI2:  il.Prim(il.ElemI2),
	il.OpStindI4:  il.SigI4,
	il.OpStindI8:  il.SigI8,
	il.OpStindR4:  il.Prim(il.ElemR4),
	il.OpStindR8:  il.SigR8,
}

// copyValue copies value-type instances so they keep value semantics.
func copyValue(v Value) Value {
	obj, ok := v.(*Object)
	if !ok || obj == nil || !obj.Type.Def.IsValueType() {
		return v
	}
	cp := &Object{Type: obj.Type, Fields: make(map[string]Value, len(obj.Fields))}
	for k, fv := range obj.Fields {
		cp.Fields[k] = fv
	}
	return cp
}

func unboxCompatible(have, want il.TypeSig) bool {
	if have.Kind == want.Kind {
		return true
	}
	// Signedness differences share a representation.
	pairs := map[il.ElementType]il.ElementType{
		il.ElemI1: il.ElemU1, il.ElemI2: il.ElemU2, il.ElemI4: il.ElemU4,
		il.ElemI8: il.ElemU8, il.ElemI: il.ElemU,
	}
	return pairs[have.Kind] == want.Kind || pairs[want.Kind] == have.Kind
}

func arith(op il.Opcode, a, b Value) (Value, error) {
	switch x := a.(type) {
	case int32:
		if y, ok := b.(int32); ok {
			return arithInt32(op, x, y)
		}
		if y, ok := b.(int64); ok {
			return arithInt64(op, int64(x), y)
		}
	case int64:
		return arithInt64(op, x, asInt64(b))
	case float64:
		if y, ok := b.(float64); ok {
			return arithFloat(op, x, y)
		}
	}
	return nil, errors.Unsupported(errors.PhaseExecute, "arithmetic on mismatched operands")
}

func arithInt32(op il.Opcode, a, b int32) (Value, error) {
	switch op {
	case il.OpAdd:
		return a + b, nil
	case il.OpSub:
		return a - b, nil
	case il.OpMul:
		return a * b, nil
	case il.OpDiv, il.OpRem:
		if b == 0 {
			return nil, raise(DivideByZero, "integer division by zero")
		}
		if op == il.OpDiv {
			return a / b, nil
		}
		return a % b, nil
	case il.OpAnd:
		return a & b, nil
	case il.OpOr:
		return a | b, nil
	case il.OpXor:
		return a ^ b, nil
	}
	return nil, errors.Unsupported(errors.PhaseExecute, "opcode "+op.String())
}

func arithInt64(op il.Opcode, a, b int64) (Value, error) {
	switch op {
	case il.OpAdd:
		return a + b, nil
	case il.OpSub:
		return a - b, nil
	case il.OpMul:
		return a * b, nil
	case il.OpDiv, il.OpRem:
		if b == 0 {
			return nil, raise(DivideByZero, "integer division by zero")
		}
		if op == il.OpDiv {
			return a / b, nil
		}
		return a % b, nil
	case il.OpAnd:
		return a & b, nil
	case il.OpOr:
		return a | b, nil
	case il.OpXor:
		return a ^ b, nil
	}
	return nil, errors.Unsupported(errors.PhaseExecute, "opcode "+op.String())
}

func arithFloat(op il.Opcode, a, b float64) (Value, error) {
	switch op {
	case il.OpAdd:
		return a + b, nil
	case il.OpSub:
		return a - b, nil
	case il.OpMul:
		return a * b, nil
	case il.OpDiv:
		return a / b, nil
	case il.OpRem:
		return math.Mod(a, b), nil
	}
	return nil, errors.Unsupported(errors.PhaseExecute, "opcode "+op.String()+" on floats")
}

func compare(a, b Value) (int, bool) {
	switch x := a.(type) {
	case int32, int64:
		var y int64
		switch yb := b.(type) {
		case int32:
			y = int64(yb)
		case int64:
			y = yb
		default:
			return 0, false
		}
		xv := asInt64(x)
		switch {
		case xv < y:
			return -1, true
		case xv > y:
			return 1, true
		}
		return 0, true
	case float64:
		y, ok := b.(float64)
		if !ok {
			return 0, false
		}
		switch {
		case x < y:
			return -1, true
		case x > y:
			return 1, true
		}
		return 0, true
	}
	return 0, false
}

func equal(a, b Value) bool {
	if c, ok := compare(a, b); ok {
		return c == 0
	}
	return a == b
}
