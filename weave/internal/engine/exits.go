package engine

import (
	"github.com/wippyai/il-weaver/il"
	"github.com/wippyai/il-weaver/weave/internal/codegen"
	"github.com/wippyai/il-weaver/weave/internal/hooks"
	"github.com/wippyai/il-weaver/weave/internal/stream"
)

// normalizeExits routes every return through a single exit block appended to
// the body and returns its first instruction.
//
// Each ret becomes a leave to the exit block. For methods returning a value,
// the value is first stored in a fresh local, which the exit block loads.
func normalizeExits(s *stream.Stream, ret il.TypeSig) (stream.Anchor, error) {
	var rets []stream.Anchor
	err := s.Each(func(a stream.Anchor, instr il.Instruction) error {
		if instr.Opcode == il.OpRet {
			rets = append(rets, a)
		}
		return nil
	})
	if err != nil {
		return stream.None, err
	}

	if ret.IsVoid() {
		exit, err := s.Append(il.Op(il.OpRet))
		if err != nil {
			return stream.None, err
		}
		leave := il.Instruction{Opcode: il.OpLeave, Imm: stream.Label{Target: exit}}
		for _, r := range rets {
			if err := s.Replace(r, leave); err != nil {
				return stream.None, err
			}
		}
		return exit, nil
	}

	tmp := s.AddLocal(ret)
	exit, err := s.Append(il.Local(il.OpLdloc, tmp))
	if err != nil {
		return stream.None, err
	}
	if _, err := s.Append(il.Op(il.OpRet)); err != nil {
		return stream.None, err
	}
	leave := il.Instruction{Opcode: il.OpLeave, Imm: stream.Label{Target: exit}}
	for _, r := range rets {
		if err := s.Replace(r, il.Local(il.OpStloc, tmp)); err != nil {
			return stream.None, err
		}
		if _, err := s.InsertAfter(r, leave); err != nil {
			return stream.None, err
		}
	}
	return exit, nil
}

// buildRegions wraps the original body in a catch region running the
// exception hooks and a finally region running the post hooks, both placed
// before exit. Hooks run in reverse declaration order. Original regions are
// registered first and stay inner. It reports whether a post hook's argument
// capture was truncated.
func (w *methodWeaver) buildRegions(exit stream.Anchor, post, onError []*aspect) (bool, error) {
	s := w.s
	truncated := false

	catchStart := stream.None
	if len(onError) > 0 {
		exc := s.AddLocal(il.SigObject)
		e := codegen.NewEmitter()
		e.Stloc(exc)
		for i := len(onError) - 1; i >= 0; i-- {
			t, err := w.target(onError[i], hooks.CapException)
			if err != nil {
				return false, err
			}
			codegen.ExceptionCapture(e, w.md.Name, exc, t)
		}
		e.Rethrow()
		first, _, err := s.InsertSeqBefore(exit, e.Instructions())
		if err != nil {
			return false, err
		}
		catchStart = first
	}

	finallyStart := exit
	if len(post) > 0 {
		e := codegen.NewEmitter()
		e.Nop()
		for i := len(post) - 1; i >= 0; i-- {
			t, err := w.target(post[i], hooks.CapPost)
			if err != nil {
				return false, err
			}
			if w.capture(e, t) {
				truncated = true
			}
		}
		e.Nop().Endfinally()
		if err := e.Err(); err != nil {
			return false, err
		}
		first, _, err := s.InsertSeqBefore(exit, e.Instructions())
		if err != nil {
			return false, err
		}
		finallyStart = first
	}

	// Regions of the original body that ran to its end stop where the
	// synthesized handlers begin.
	start := finallyStart
	if catchStart != stream.None {
		start = catchStart
	}
	if err := s.CloseRegions(start); err != nil {
		return false, err
	}

	if catchStart != stream.None {
		err := s.AddRegion(stream.Region{
			Kind:         il.HandlerCatch,
			TryStart:     w.first,
			TryEnd:       catchStart,
			HandlerStart: catchStart,
			HandlerEnd:   finallyStart,
		})
		if err != nil {
			return false, err
		}
	}
	if len(post) > 0 {
		err := s.AddRegion(stream.Region{
			Kind:         il.HandlerFinally,
			TryStart:     w.first,
			TryEnd:       finallyStart,
			HandlerStart: finallyStart,
			HandlerEnd:   exit,
		})
		if err != nil {
			return false, err
		}
	}
	s.SetInitLocals(true)
	return truncated, nil
}
