package stream

import (
	stderrors "errors"
	"testing"

	"github.com/wippyai/il-weaver/errors"
	"github.com/wippyai/il-weaver/il"
)

// maxBody is: if (a >= b) return a; return b;
func maxBody() *il.MethodBody {
	return &il.MethodBody{
		Code: []il.Instruction{
			il.Arg(il.OpLdarg, 0),
			il.Arg(il.OpLdarg, 1),
			il.Branch(il.OpBge, 5),
			il.Arg(il.OpLdarg, 1),
			il.Op(il.OpRet),
			il.Arg(il.OpLdarg, 0),
			il.Op(il.OpRet),
		},
	}
}

var maxSig = il.MethodSig{Return: il.SigI4, Params: []il.TypeSig{il.SigI4, il.SigI4}}

func isInvalidStream(err error) bool {
	return stderrors.Is(err, &errors.Error{Phase: errors.PhaseWeave, Kind: errors.KindInvalidStream})
}

func TestNewAndFinishRoundTrip(t *testing.T) {
	s, err := New(maxBody())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if s.Len() != 7 {
		t.Fatalf("Len = %d, want 7", s.Len())
	}
	body, err := s.Finish(nil, maxSig)
	if err != nil {
		t.Fatalf("Finish: %v", err)
	}
	want := maxBody()
	for i := range want.Code {
		if body.Code[i].Opcode != want.Code[i].Opcode {
			t.Errorf("code[%d] = %s, want %s", i, body.Code[i].Opcode, want.Code[i].Opcode)
		}
	}
	if got := body.Code[2].Imm.(il.BranchImm).Target; got != 5 {
		t.Errorf("branch target = %d, want 5", got)
	}
	if body.MaxStack != 2 {
		t.Errorf("MaxStack = %d, want 2", body.MaxStack)
	}
}

func TestInsertBeforeKeepsBranchTargets(t *testing.T) {
	s, err := New(maxBody())
	if err != nil {
		t.Fatal(err)
	}
	target := Anchor(5)
	if _, err := s.InsertBefore(target, il.Op(il.OpNop)); err != nil {
		t.Fatal(err)
	}
	if _, _, err := s.InsertSeqBefore(s.First(), []il.Instruction{il.Op(il.OpNop), il.Op(il.OpNop)}); err != nil {
		t.Fatal(err)
	}

	body, err := s.Finish(nil, maxSig)
	if err != nil {
		t.Fatal(err)
	}
	if len(body.Code) != 10 {
		t.Fatalf("len = %d, want 10", len(body.Code))
	}
	br := body.Code[4]
	if br.Opcode != il.OpBge {
		t.Fatalf("code[4] = %s, want bge", br.Opcode)
	}
	tgt := br.Imm.(il.BranchImm).Target
	if body.Code[tgt].Opcode != il.OpLdarg || body.Code[tgt].Imm.(il.ArgImm).Index != 0 {
		t.Errorf("branch now targets %s, want the original ldarg 0", il.FormatInstruction(nil, body.Code[tgt]))
	}
	if body.Code[tgt-1].Opcode != il.OpNop {
		t.Errorf("inserted nop should sit before the target")
	}
}

func TestInsertAfterAndOrder(t *testing.T) {
	s, err := New(&il.MethodBody{Code: []il.Instruction{il.Op(il.OpRet)}})
	if err != nil {
		t.Fatal(err)
	}
	first := s.First()
	a, _ := s.InsertBefore(first, il.LdcI4(1))
	b, _ := s.InsertAfter(a, il.Op(il.OpPop))
	if s.First() != a || s.Next(a) != b || s.Next(b) != first || s.Last() != first {
		t.Errorf("unexpected order: %v", s.Anchors())
	}
	if s.Prev(first) != b {
		t.Errorf("Prev(ret) = %d, want %d", s.Prev(first), b)
	}
	last, _ := s.InsertAfter(first, il.Op(il.OpNop))
	if s.Last() != last {
		t.Error("InsertAfter at tail should move Last")
	}
}

func TestRemoveRetargetsAndInvalidates(t *testing.T) {
	s, err := New(maxBody())
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Remove(5); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if s.Valid(5) {
		t.Error("removed anchor still valid")
	}
	if _, err := s.InsertBefore(5, il.Op(il.OpNop)); !isInvalidStream(err) {
		t.Errorf("InsertBefore(removed) = %v, want invalid stream", err)
	}
	if err := s.Remove(5); !isInvalidStream(err) {
		t.Errorf("second Remove = %v, want invalid stream", err)
	}
	instr, _ := s.Get(2)
	if got := instr.Imm.(Label).Target; got != 6 {
		t.Errorf("branch retargeted to %d, want successor 6", got)
	}
}

func TestRemoveLastBranchTargetFails(t *testing.T) {
	s, err := New(&il.MethodBody{Code: []il.Instruction{
		il.Branch(il.OpBr, 1),
		il.Op(il.OpRet),
	}})
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Remove(1); !isInvalidStream(err) {
		t.Errorf("Remove = %v, want invalid stream", err)
	}
}

func TestRawBranchOperandRejected(t *testing.T) {
	s, err := New(maxBody())
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.Append(il.Branch(il.OpBr, 0)); !isInvalidStream(err) {
		t.Errorf("Append(raw branch) = %v, want invalid stream", err)
	}
	if _, err := s.Append(il.Instruction{Opcode: il.OpBr, Imm: Label{Target: 99}}); !isInvalidStream(err) {
		t.Errorf("Append(unknown label) = %v, want invalid stream", err)
	}
}

func TestReplaceKeepsIdentity(t *testing.T) {
	s, err := New(maxBody())
	if err != nil {
		t.Fatal(err)
	}
	term, err := s.Append(il.Op(il.OpRet))
	if err != nil {
		t.Fatal(err)
	}
	for _, a := range []Anchor{4, 6} {
		if err := s.Replace(a, il.Instruction{Opcode: il.OpLeave, Imm: Label{Target: term}}); err != nil {
			t.Fatal(err)
		}
	}
	// Values are abandoned by leave; the method now returns nothing.
	body, err := s.Finish(nil, il.MethodSig{Return: il.SigVoid, Params: maxSig.Params})
	if err != nil {
		t.Fatalf("Finish: %v", err)
	}
	if body.Code[4].Opcode != il.OpLeave || body.Code[4].Imm.(il.BranchImm).Target != 7 {
		t.Errorf("code[4] = %s", il.FormatInstruction(nil, body.Code[4]))
	}
	if body.Code[2].Imm.(il.BranchImm).Target != 5 {
		t.Error("branch to replaced region moved")
	}
}

func TestRegionsFollowAnchors(t *testing.T) {
	src := &il.MethodBody{
		Code: []il.Instruction{
			il.Ldstr("x"),
			il.Op(il.OpPop),
			il.Branch(il.OpLeave, 4),
			il.Op(il.OpEndfinally),
			il.Op(il.OpRet),
		},
		Handlers: []il.ExceptionHandler{
			{Kind: il.HandlerFinally, TryStart: 0, TryEnd: 3, HandlerStart: 3, HandlerEnd: 4},
		},
	}
	s, err := New(src)
	if err != nil {
		t.Fatal(err)
	}
	// before the handler start: lands inside the try range
	if _, err := s.InsertBefore(3, il.Op(il.OpNop)); err != nil {
		t.Fatal(err)
	}
	// before the try start: lands outside the region
	if _, err := s.InsertBefore(0, il.Op(il.OpNop)); err != nil {
		t.Fatal(err)
	}
	body, err := s.Finish(nil, il.MethodSig{Return: il.SigVoid})
	if err != nil {
		t.Fatalf("Finish: %v", err)
	}
	h := body.Handlers[0]
	if h.TryStart != 1 || h.TryEnd != 5 || h.HandlerStart != 5 || h.HandlerEnd != 6 {
		t.Errorf("handler = %+v", h)
	}
	if body.Code[4].Opcode != il.OpNop {
		t.Errorf("code[4] = %s, want nop", body.Code[4].Opcode)
	}
}

func TestAddRegionAndEndOfBody(t *testing.T) {
	s, err := New(&il.MethodBody{Code: []il.Instruction{
		il.Branch(il.OpLeave, 2),
		il.Op(il.OpEndfinally),
		il.Op(il.OpRet),
	}})
	if err != nil {
		t.Fatal(err)
	}
	if err := s.AddRegion(Region{Kind: il.HandlerFinally, TryStart: 0, TryEnd: 1, HandlerStart: 1, HandlerEnd: 2}); err != nil {
		t.Fatal(err)
	}
	if err := s.AddRegion(Region{Kind: il.HandlerFinally, TryStart: 7, TryEnd: None, HandlerStart: 0, HandlerEnd: None}); !isInvalidStream(err) {
		t.Errorf("AddRegion(unknown) = %v", err)
	}
	body, err := s.Finish(nil, il.MethodSig{Return: il.SigVoid})
	if err != nil {
		t.Fatal(err)
	}
	if len(body.Handlers) != 1 || body.Handlers[0].HandlerEnd != 2 {
		t.Errorf("handlers = %+v", body.Handlers)
	}
}

func TestSwitchLabels(t *testing.T) {
	s, err := New(&il.MethodBody{Code: []il.Instruction{
		il.Arg(il.OpLdarg, 0),
		{Opcode: il.OpSwitch, Imm: il.SwitchImm{Targets: []int{3, 4}}},
		il.Op(il.OpRet),
		il.Op(il.OpRet),
		il.Op(il.OpRet),
	}})
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Remove(3); err != nil {
		t.Fatal(err)
	}
	body, err := s.Finish(nil, il.MethodSig{Return: il.SigVoid, Params: []il.TypeSig{il.SigI4}})
	if err != nil {
		t.Fatal(err)
	}
	got := body.Code[1].Imm.(il.SwitchImm).Targets
	if len(got) != 2 || got[0] != 3 || got[1] != 3 {
		t.Errorf("switch targets = %v, want [3 3]", got)
	}
}

func TestLocalsAreMonotonic(t *testing.T) {
	s, err := New(&il.MethodBody{
		Locals: []il.TypeSig{il.SigI4},
		Code:   []il.Instruction{il.Op(il.OpRet)},
	})
	if err != nil {
		t.Fatal(err)
	}
	if got := s.AddLocal(il.SigObject); got != 1 {
		t.Errorf("first AddLocal = %d, want 1", got)
	}
	if got := s.AddLocal(il.SigString); got != 2 {
		t.Errorf("second AddLocal = %d, want 2", got)
	}
	s.SetInitLocals(true)
	body, err := s.Finish(nil, il.MethodSig{Return: il.SigVoid})
	if err != nil {
		t.Fatal(err)
	}
	if len(body.Locals) != 3 || !body.InitLocals {
		t.Errorf("locals = %v init = %v", body.Locals, body.InitLocals)
	}
}

func TestFinishRejectsInconsistentStack(t *testing.T) {
	s, err := New(&il.MethodBody{Code: []il.Instruction{il.Op(il.OpRet)}})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.InsertBefore(s.First(), il.Op(il.OpPop)); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Finish(nil, il.MethodSig{Return: il.SigVoid}); !isInvalidStream(err) {
		t.Errorf("Finish = %v, want invalid stream", err)
	}
}

func TestNewRejectsBadBounds(t *testing.T) {
	_, err := New(&il.MethodBody{
		Code:     []il.Instruction{il.Op(il.OpRet)},
		Handlers: []il.ExceptionHandler{{TryStart: 0, TryEnd: 1, HandlerStart: 1, HandlerEnd: 9}},
	})
	if !isInvalidStream(err) {
		t.Errorf("New = %v, want invalid stream", err)
	}
}

func TestEachAllowsInsertion(t *testing.T) {
	s, err := New(maxBody())
	if err != nil {
		t.Fatal(err)
	}
	var rets int
	err = s.Each(func(a Anchor, instr il.Instruction) error {
		if instr.Opcode == il.OpRet {
			rets++
			_, err := s.InsertBefore(a, il.Op(il.OpNop))
			return err
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if rets != 2 || s.Len() != 9 {
		t.Errorf("rets = %d len = %d", rets, s.Len())
	}
}

func TestCloseRegions(t *testing.T) {
	body := &il.MethodBody{
		Code: []il.Instruction{
			il.Ldstr("x"),
			il.Op(il.OpThrow),
			il.Op(il.OpPop),
			il.Op(il.OpRethrow),
		},
		Handlers: []il.ExceptionHandler{
			{Kind: il.HandlerCatch, TryStart: 0, TryEnd: 2, HandlerStart: 2, HandlerEnd: 4},
		},
	}
	s, err := New(body)
	if err != nil {
		t.Fatal(err)
	}
	if s.Regions()[0].HandlerEnd != None {
		t.Fatalf("HandlerEnd = %d, want None", s.Regions()[0].HandlerEnd)
	}
	end, err := s.Append(il.Op(il.OpRet))
	if err != nil {
		t.Fatal(err)
	}
	if err := s.CloseRegions(end); err != nil {
		t.Fatalf("CloseRegions: %v", err)
	}
	if _, err := s.Append(il.Op(il.OpNop)); err != nil {
		t.Fatal(err)
	}

	out, err := s.Finish(nil, il.MethodSig{Return: il.SigVoid})
	if err != nil {
		t.Fatalf("Finish: %v", err)
	}
	h := out.Handlers[0]
	if h.TryEnd != 2 || h.HandlerEnd != 4 {
		t.Errorf("handler = %+v, want try end 2 and handler end 4", h)
	}
	if err := s.CloseRegions(Anchor(99)); !isInvalidStream(err) {
		t.Errorf("CloseRegions(99) = %v", err)
	}
}
