package codegen

import (
	stderrors "errors"
	"testing"

	"github.com/wippyai/il-weaver/errors"
	"github.com/wippyai/il-weaver/il"
)

func opcodes(code []il.Instruction) []il.Opcode {
	out := make([]il.Opcode, len(code))
	for i, instr := range code {
		out[i] = instr.Opcode
	}
	return out
}

func equalOps(t *testing.T, got []il.Instruction, want ...il.Opcode) {
	t.Helper()
	ops := opcodes(got)
	if len(ops) != len(want) {
		t.Fatalf("got %d instructions %v, want %d %v", len(ops), ops, len(want), want)
	}
	for i := range want {
		if ops[i] != want[i] {
			t.Errorf("instr %d = %s, want %s", i, ops[i], want[i])
		}
	}
}

func TestEmitter_NewAndInstructions(t *testing.T) {
	e := NewEmitter()
	if e.Len() != 0 {
		t.Errorf("new emitter should be empty, got len %d", e.Len())
	}

	e.LdcI4(42)
	if e.Len() != 1 {
		t.Error("emitter should have content after LdcI4")
	}
	if imm := e.Instructions()[0].Imm.(il.I4Imm); imm.Value != 42 {
		t.Errorf("immediate = %d, want 42", imm.Value)
	}
}

func TestEmitter_Reset(t *testing.T) {
	e := NewEmitter()
	e.LdcI4(42).LdcI4(100).Const(1.5)

	if e.Len() != 2 || e.Err() == nil {
		t.Fatalf("len = %d err = %v", e.Len(), e.Err())
	}

	e.Reset()
	if e.Len() != 0 || e.Err() != nil {
		t.Errorf("emitter should be empty after reset, got len %d err %v", e.Len(), e.Err())
	}
}

func TestEmitter_Copy(t *testing.T) {
	e := NewEmitter()
	e.LdcI4(42)

	copy1 := e.Copy()
	e.LdcI4(100)
	copy2 := e.Instructions()

	if len(copy1) == len(copy2) {
		t.Error("Copy should be independent of further emitter operations")
	}
}

func TestConstantLoad(t *testing.T) {
	tests := []struct {
		value   any
		name    string
		wantOp  il.Opcode
		wantErr bool
	}{
		{name: "string", value: "PreMethod", wantOp: il.OpLdstr},
		{name: "empty string", value: "", wantOp: il.OpLdstr},
		{name: "int32", value: int32(-7), wantOp: il.OpLdcI4},
		{name: "int in range", value: 3, wantOp: il.OpLdcI4},
		{name: "int out of range", value: 1 << 40, wantErr: true},
		{name: "int64", value: int64(3), wantErr: true},
		{name: "float", value: 2.5, wantErr: true},
		{name: "bool", value: true, wantErr: true},
		{name: "nil", value: nil, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			instr, err := ConstantLoad(tt.value)
			if tt.wantErr {
				if !stderrors.Is(err, &errors.Error{Phase: errors.PhaseCodegen, Kind: errors.KindUnsupportedOperand}) {
					t.Errorf("err = %v, want unsupported operand", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ConstantLoad: %v", err)
			}
			if instr.Opcode != tt.wantOp {
				t.Errorf("opcode = %s, want %s", instr.Opcode, tt.wantOp)
			}
		})
	}
}

func TestDeref(t *testing.T) {
	vt := il.ValueTypeOf(il.MakeToken(il.TableTypeDef, 1))
	tests := []struct {
		elem il.TypeSig
		want il.Opcode
		ok   bool
	}{
		{il.Prim(il.ElemI1), il.OpLdindI1, true},
		{il.Prim(il.ElemBool), il.OpLdindU1, true},
		{il.Prim(il.ElemChar), il.OpLdindU2, true},
		{il.SigI4, il.OpLdindI4, true},
		{il.Prim(il.ElemU4), il.OpLdindU4, true},
		{il.Prim(il.ElemU8), il.OpLdindI8, true},
		{il.Prim(il.ElemR4), il.OpLdindR4, true},
		{il.SigR8, il.OpLdindR8, true},
		{il.Prim(il.ElemI), il.OpLdindI, true},
		{vt, il.OpLdobj, true},
		{il.SigString, il.OpLdindRef, true},
		{il.ArrayOf(il.SigObject), il.OpLdindRef, true},
		{il.PtrOf(il.SigI4), 0, false},
		{il.Prim(il.ElemFnPtr), 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.elem.String(), func(t *testing.T) {
			instr, ok := Deref(tt.elem)
			if ok != tt.ok {
				t.Fatalf("ok = %v, want %v", ok, tt.ok)
			}
			if ok && instr.Opcode != tt.want {
				t.Errorf("opcode = %s, want %s", instr.Opcode, tt.want)
			}
		})
	}
}

var hook = Target{Method: il.MakeToken(il.TableMemberRef, 1)}

func TestArgumentCapture(t *testing.T) {
	md := &il.MethodDef{
		Name: "Format",
		Sig:  il.MethodSig{Return: il.SigString, Params: []il.TypeSig{il.SigI4, il.SigString}},
	}
	e := NewEmitter()
	res := ArgumentCapture(e, md, "Demo.Calc::Format", hook)
	if res.Truncated || res.Captured != 2 {
		t.Errorf("capture = %+v", res)
	}
	equalOps(t, e.Instructions(),
		il.OpLdstr, il.OpLdcI4, il.OpNewarr,
		il.OpDup, il.OpLdcI4, il.OpLdarg, il.OpBox, il.OpStelemRef,
		il.OpDup, il.OpLdcI4, il.OpLdarg, il.OpStelemRef,
		il.OpCall,
	)
	if got := e.Instructions()[10].Imm.(il.ArgImm).Index; got != 1 {
		t.Errorf("second argument slot = %d, want 1", got)
	}
}

func TestArgumentCaptureInstance(t *testing.T) {
	md := &il.MethodDef{
		Name: "Inc",
		Sig:  il.MethodSig{HasThis: true, Return: il.SigVoid, Params: []il.TypeSig{il.ByRefOf(il.SigI4)}},
	}
	target := Target{
		Method:   hook.Method,
		Instance: true,
		Receiver: []il.Instruction{il.Local(il.OpLdloc, 3)},
	}
	e := NewEmitter()
	ArgumentCapture(e, md, "Inc", target)
	equalOps(t, e.Instructions(),
		il.OpLdloc, il.OpLdstr, il.OpLdcI4, il.OpNewarr,
		il.OpDup, il.OpLdcI4, il.OpLdarg, il.OpLdindI4, il.OpBox, il.OpStelemRef,
		il.OpCallvirt,
	)
	if got := e.Instructions()[6].Imm.(il.ArgImm).Index; got != 1 {
		t.Errorf("argument slot = %d, want 1 (receiver is slot 0)", got)
	}
}

func TestArgumentCaptureNoParams(t *testing.T) {
	md := &il.MethodDef{Name: "Tick", Sig: il.MethodSig{Return: il.SigVoid}}
	e := NewEmitter()
	ArgumentCapture(e, md, "Tick", hook)
	equalOps(t, e.Instructions(), il.OpLdstr, il.OpLdnull, il.OpCall)
}

// A pointer-like parameter stops the capture; later parameters are dropped
// and their slots stay null.
func TestArgumentCapturePointerTruncates(t *testing.T) {
	md := &il.MethodDef{
		Name: "Pointers",
		Sig: il.MethodSig{Return: il.SigVoid, Params: []il.TypeSig{
			il.SigI4, il.Prim(il.ElemI), il.SigI4,
		}},
	}
	e := NewEmitter()
	res := ArgumentCapture(e, md, "Pointers", hook)
	if !res.Truncated || res.Stop != 1 || res.Captured != 1 {
		t.Errorf("capture = %+v", res)
	}
	equalOps(t, e.Instructions(),
		il.OpLdstr, il.OpLdcI4, il.OpNewarr,
		il.OpDup, il.OpLdcI4, il.OpLdarg, il.OpBox, il.OpStelemRef,
		il.OpCall,
	)
	if size := e.Instructions()[1].Imm.(il.I4Imm).Value; size != 3 {
		t.Errorf("array size = %d, want 3", size)
	}

	byRefPtr := &il.MethodDef{
		Name: "Deref",
		Sig:  il.MethodSig{Return: il.SigVoid, Params: []il.TypeSig{il.ByRefOf(il.PtrOf(il.SigI4))}},
	}
	e.Reset()
	if res := ArgumentCapture(e, byRefPtr, "Deref", hook); !res.Truncated || res.Stop != 0 {
		t.Errorf("byref pointer capture = %+v", res)
	}

	byRefNative := &il.MethodDef{
		Name: "Native",
		Sig:  il.MethodSig{Return: il.SigVoid, Params: []il.TypeSig{il.ByRefOf(il.Prim(il.ElemI))}},
	}
	e.Reset()
	if res := ArgumentCapture(e, byRefNative, "Native", hook); res.Truncated {
		t.Errorf("byref native int should be captured via ldind.i: %+v", res)
	}
}

func TestValueCapture(t *testing.T) {
	e := NewEmitter()
	if !ValueCapture(e, "Checked", "value", 0, il.SigObject, hook) {
		t.Fatal("object parameter not captured")
	}
	equalOps(t, e.Instructions(), il.OpLdstr, il.OpLdstr, il.OpLdarg, il.OpCall)

	e.Reset()
	if ValueCapture(e, "Checked", "p", 0, il.PtrOf(il.SigI4), hook) {
		t.Error("pointer parameter captured")
	}
	if e.Len() != 0 {
		t.Errorf("emitted %d instructions for an uncapturable parameter", e.Len())
	}
}

func TestAccessorCapture(t *testing.T) {
	e := NewEmitter()
	SetterCapture(e, "Limit", 1, il.SigI4, 2, hook)
	equalOps(t, e.Instructions(),
		il.OpLdarg, il.OpBox, il.OpStloc,
		il.OpLdstr, il.OpLdloca, il.OpCall,
		il.OpLdloc, il.OpUnboxAny, il.OpStarg,
	)

	e.Reset()
	GetterCapture(e, "Value", il.SigString, 0, hook)
	equalOps(t, e.Instructions(),
		il.OpStloc,
		il.OpLdstr, il.OpLdloca, il.OpCall,
		il.OpLdloc, il.OpCastclass,
	)

	e.Reset()
	GetterCapture(e, "Any", il.SigObject, 0, hook)
	equalOps(t, e.Instructions(),
		il.OpStloc, il.OpLdstr, il.OpLdloca, il.OpCall, il.OpLdloc,
	)
}
