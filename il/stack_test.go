package il_test

import (
	"strings"
	"testing"

	"github.com/wippyai/il-weaver/il"
)

func TestComputeMaxStack(t *testing.T) {
	m := sampleModule()
	tests := []struct {
		name string
		want uint32
	}{
		{"Add", 2},
		{"Max", 2},
		{"Guard", 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			md := m.Types[0].Method(tt.name)
			got, err := il.ComputeMaxStack(m, md.Sig, md.Body)
			if err != nil {
				t.Fatalf("ComputeMaxStack: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %d, want %d", got, tt.want)
			}
		})
	}
}

func TestComputeMaxStackCalls(t *testing.T) {
	m := sampleModule()
	ctor := m.Types[0].Methods[0].Annotations[0].Ctor
	sig := il.MethodSig{Return: il.SigVoid}
	body := &il.MethodBody{
		Code: []il.Instruction{
			il.Ldstr("a"),
			il.WithToken(il.OpNewobj, ctor),
			il.Ldstr("b"),
			il.WithToken(il.OpCallvirt, ctor), // instance call: receiver + one param
			il.Op(il.OpRet),
		},
	}
	got, err := il.ComputeMaxStack(m, sig, body)
	if err != nil {
		t.Fatalf("ComputeMaxStack: %v", err)
	}
	if got != 2 {
		t.Errorf("got %d, want 2", got)
	}
}

func TestComputeMaxStackErrors(t *testing.T) {
	m := sampleModule()
	tests := []struct {
		name string
		sig  il.MethodSig
		code []il.Instruction
		want string
	}{
		{
			name: "underflow",
			sig:  il.MethodSig{Return: il.SigVoid},
			code: []il.Instruction{il.Op(il.OpPop), il.Op(il.OpRet)},
			want: "underflow",
		},
		{
			name: "inconsistent join",
			sig:  il.MethodSig{Return: il.SigVoid, Params: []il.TypeSig{il.SigBool}},
			code: []il.Instruction{
				il.Arg(il.OpLdarg, 0),
				il.Branch(il.OpBrtrue, 3),
				il.LdcI4(1),
				il.Op(il.OpRet),
			},
			want: "stack heights",
		},
		{
			name: "falls off end",
			sig:  il.MethodSig{Return: il.SigVoid},
			code: []il.Instruction{il.Op(il.OpNop)},
			want: "falls off",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := il.ComputeMaxStack(m, tt.sig, &il.MethodBody{Code: tt.code})
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("got %v, want error containing %q", err, tt.want)
			}
		})
	}
}

func TestCatchHandlerEntersWithException(t *testing.T) {
	m := sampleModule()
	body := &il.MethodBody{
		Locals: []il.TypeSig{il.SigObject},
		Code: []il.Instruction{
			il.Op(il.OpNop),
			il.Branch(il.OpLeave, 4),
			il.Local(il.OpStloc, 0),
			il.Op(il.OpRethrow),
			il.Op(il.OpRet),
		},
		Handlers: []il.ExceptionHandler{
			{Kind: il.HandlerCatch, TryStart: 0, TryEnd: 2, HandlerStart: 2, HandlerEnd: 4},
		},
	}
	got, err := il.ComputeMaxStack(m, il.MethodSig{Return: il.SigVoid}, body)
	if err != nil {
		t.Fatalf("ComputeMaxStack: %v", err)
	}
	if got != 1 {
		t.Errorf("got %d, want 1", got)
	}
}
