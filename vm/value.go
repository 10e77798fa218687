package vm

import (
	"fmt"

	"github.com/wippyai/il-weaver/il"
	"github.com/wippyai/il-weaver/resolve"
)

// Value is an evaluation stack entry.
//
// Integers up to 32 bits are int32, 64-bit and native integers are int64,
// floating point values are float64. References are string, *Object, *Box,
// *Array, *Ref, *Exception, host values, or nil.
type Value = any

// Object is an instance of a type defined in a loaded module.
type Object struct {
	Type   *resolve.Type
	Fields map[string]Value
}

func (o *Object) String() string {
	return o.Type.FullName()
}

// Box is a boxed value type.
type Box struct {
	Value Value
	Type  il.TypeSig
}

func (b *Box) String() string {
	return fmt.Sprint(b.Value)
}

// Array is a single-dimensional, zero-based array.
type Array struct {
	Elems []Value
	Elem  il.TypeSig
}

// Ref is a managed reference to a variable, field or array slot.
type Ref struct {
	load  func() Value
	store func(Value)
}

// NewRef creates a reference over a standalone variable holding v.
func NewRef(v Value) *Ref {
	cell := v
	return &Ref{
		load:  func() Value { return cell },
		store: func(nv Value) { cell = nv },
	}
}

// Load reads the referenced variable.
func (r *Ref) Load() Value { return r.load() }

// Store writes the referenced variable.
func (r *Ref) Store(v Value) { r.store(v) }

// Exception is a fault raised by the machine itself.
type Exception struct {
	Name    string
	Message string
}

func (e *Exception) String() string {
	return e.Name + ": " + e.Message
}

// Runtime exception names.
const (
	NullReference  = "NullReferenceException"
	InvalidCast    = "InvalidCastException"
	IndexRange     = "IndexOutOfRangeException"
	DivideByZero   = "DivideByZeroException"
	StackOverflow  = "StackOverflowException"
	ArgumentFailed = "ArgumentException"
)

// Unbox returns the content of a box, or v itself.
func Unbox(v Value) Value {
	if b, ok := v.(*Box); ok {
		return b.Value
	}
	return v
}

// zero returns the default value of a variable of type t.
func zero(t il.TypeSig) Value {
	switch t.Kind {
	case il.ElemBool, il.ElemChar, il.ElemI1, il.ElemU1, il.ElemI2, il.ElemU2, il.ElemI4, il.ElemU4:
		return int32(0)
	case il.ElemI8, il.ElemU8, il.ElemI, il.ElemU:
		return int64(0)
	case il.ElemR4, il.ElemR8:
		return float64(0)
	}
	return nil
}

// normalize converts v to the stack representation of type t.
func normalize(t il.TypeSig, v Value) Value {
	switch t.Kind {
	case il.ElemBool, il.ElemU1:
		return int32(uint8(asInt64(v)))
	case il.ElemI1:
		return int32(int8(asInt64(v)))
	case il.ElemI2:
		return int32(int16(asInt64(v)))
	case il.ElemU2, il.ElemChar:
		return int32(uint16(asInt64(v)))
	case il.ElemI4, il.ElemU4:
		return int32(asInt64(v))
	case il.ElemI8, il.ElemU8, il.ElemI, il.ElemU:
		return asInt64(v)
	case il.ElemR4, il.ElemR8:
		switch f := v.(type) {
		case float64:
			return f
		case float32:
			return float64(f)
		}
		return float64(asInt64(v))
	}
	return v
}

func asInt64(v Value) int64 {
	switch n := v.(type) {
	case int32:
		return int64(n)
	case int64:
		return n
	case int:
		return int64(n)
	case float64:
		return int64(n)
	case bool:
		if n {
			return 1
		}
	}
	return 0
}

func truthy(v Value) bool {
	switch n := v.(type) {
	case nil:
		return false
	case int32:
		return n != 0
	case int64:
		return n != 0
	case float64:
		return n != 0
	}
	return true
}
