package codegen

import (
	"github.com/wippyai/il-weaver/il"
)

// Target is a resolved hook call site.
type Target struct {
	// Receiver loads the hook's receiver; empty for static hooks.
	Receiver []il.Instruction
	Method   il.Token
	Instance bool
}

func (t Target) emitReceiver(e *Emitter) {
	if t.Instance {
		e.EmitAll(t.Receiver)
	}
}

func (t Target) emitCall(e *Emitter) {
	if t.Instance {
		e.Callvirt(t.Method)
		return
	}
	e.Call(t.Method)
}

// Capture reports how many parameters an argument capture stored.
type Capture struct {
	Captured int

	// Truncated is set when a pointer-like parameter stopped the capture;
	// Stop is its index.
	Truncated bool
	Stop      int
}

var derefOps = map[il.ElementType]il.Opcode{
	il.ElemBool:    il.OpLdindU1,
	il.ElemI1:      il.OpLdindI1,
	il.ElemU1:      il.OpLdindU1,
	il.ElemI2:      il.OpLdindI2,
	il.ElemU2:      il.OpLdindU2,
	il.ElemChar:    il.OpLdindU2,
	il.ElemI4:      il.OpLdindI4,
	il.ElemU4:      il.OpLdindU4,
	il.ElemI8:      il.OpLdindI8,
	il.ElemU8:      il.OpLdindI8,
	il.ElemR4:      il.OpLdindR4,
	il.ElemR8:      il.OpLdindR8,
	il.ElemI:       il.OpLdindI,
	il.ElemU:       il.OpLdindI,
	il.ElemString:  il.OpLdindRef,
	il.ElemObject:  il.OpLdindRef,
	il.ElemClass:   il.OpLdindRef,
	il.ElemSZArray: il.OpLdindRef,
}

// Deref returns the load that reads a value of type elem through a managed
// reference. Pointers and function pointers cannot be dereferenced.
func Deref(elem il.TypeSig) (il.Instruction, bool) {
	if elem.Kind == il.ElemValueType {
		return il.WithType(il.OpLdobj, elem), true
	}
	op, ok := derefOps[elem.Kind]
	if !ok {
		return il.Instruction{}, false
	}
	return il.Op(op), true
}

// capturable reports whether a parameter of type t can be loaded as an object.
func capturable(t il.TypeSig) bool {
	if t.IsPointerLike() {
		return false
	}
	if t.IsByRef() && t.Elem != nil {
		if t.Elem.Kind == il.ElemPtr || t.Elem.Kind == il.ElemFnPtr {
			return false
		}
		_, ok := Deref(*t.Elem)
		return ok
	}
	return true
}

// LoadAsObject emits the load of argument slot as an object reference,
// dereferencing by-reference parameters and boxing value kinds.
// It reports false, emitting nothing, for pointer-like parameters.
func (e *Emitter) LoadAsObject(slot uint32, t il.TypeSig) bool {
	if !capturable(t) {
		return false
	}
	e.Ldarg(slot)
	val := t
	if t.IsByRef() {
		val = *t.Elem
		load, _ := Deref(val)
		e.Emit(load)
	}
	if val.IsValueKind() {
		e.Box(val)
	}
	return true
}

// ArgumentCapture emits a call to a hook of shape (string, object[]) with the
// method name and its arguments.
//
// Zero-parameter methods pass null instead of an array. A pointer-like
// parameter ends the capture: it and every later slot are left null. This
// truncation is kept for compatibility and reported through Capture.
func ArgumentCapture(e *Emitter, md *il.MethodDef, name string, target Target) Capture {
	target.emitReceiver(e)
	e.Ldstr(name)

	params := md.Sig.Params
	res := Capture{Stop: len(params)}
	if len(params) == 0 {
		e.Ldnull()
		target.emitCall(e)
		return res
	}

	var this uint32
	if md.Sig.HasThis {
		this = 1
	}
	e.LdcI4(int32(len(params))).Newarr(il.SigObject)
	for i, p := range params {
		if !capturable(p) {
			res.Truncated = true
			res.Stop = i
			break
		}
		e.Dup().LdcI4(int32(i))
		e.LoadAsObject(uint32(i)+this, p)
		e.StelemRef()
		res.Captured++
	}
	target.emitCall(e)
	return res
}

// ExceptionCapture emits a call to a hook of shape (string, object) passing
// the method name and the exception held in local exc.
func ExceptionCapture(e *Emitter, name string, exc uint32, target Target) {
	target.emitReceiver(e)
	e.Ldstr(name).Ldloc(exc)
	target.emitCall(e)
}

// ValueCapture emits a call to a hook of shape (string, string, object)
// passing the method name, the parameter name and the parameter value.
// It reports false, emitting nothing, when the parameter cannot be captured.
func ValueCapture(e *Emitter, method, param string, slot uint32, t il.TypeSig, target Target) bool {
	if !capturable(t) {
		return false
	}
	target.emitReceiver(e)
	e.Ldstr(method).Ldstr(param)
	e.LoadAsObject(slot, t)
	target.emitCall(e)
	return true
}

// Unbox emits the conversion of an object on the stack back to type t.
func (e *Emitter) Unbox(t il.TypeSig) *Emitter {
	switch {
	case t.Kind == il.ElemObject:
		return e
	case t.IsValueKind():
		return e.UnboxAny(t)
	}
	return e.Castclass(t)
}

// SetterCapture emits a call to a hook of shape (string, ref object) on the
// incoming value of a setter, then stores the possibly replaced value back
// into the argument slot. tmp must be an object local.
func SetterCapture(e *Emitter, property string, slot uint32, t il.TypeSig, tmp uint32, target Target) {
	e.Ldarg(slot)
	if t.IsValueKind() {
		e.Box(t)
	}
	e.Stloc(tmp)
	target.emitReceiver(e)
	e.Ldstr(property).Ldloca(tmp)
	target.emitCall(e)
	e.Ldloc(tmp).Unbox(t).Starg(slot)
}

// GetterCapture emits a call to a hook of shape (string, ref object) on the
// value about to be returned, which must be on the stack. The possibly
// replaced value is left on the stack. tmp must be an object local.
func GetterCapture(e *Emitter, property string, t il.TypeSig, tmp uint32, target Target) {
	if t.IsValueKind() {
		e.Box(t)
	}
	e.Stloc(tmp)
	target.emitReceiver(e)
	e.Ldstr(property).Ldloca(tmp)
	target.emitCall(e)
	e.Ldloc(tmp).Unbox(t)
}
