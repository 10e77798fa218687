package engine

import (
	"go.uber.org/zap"

	"github.com/wippyai/il-weaver/errors"
	"github.com/wippyai/il-weaver/il"
	"github.com/wippyai/il-weaver/resolve"
	"github.com/wippyai/il-weaver/weave/internal/codegen"
	"github.com/wippyai/il-weaver/weave/internal/hooks"
	"github.com/wippyai/il-weaver/weave/internal/stream"
)

// accessor returns the method behind a property accessor token, or nil when
// the accessor is absent or has no body.
func accessor(m *il.Module, tok il.Token) *il.MethodDef {
	if tok.IsNil() {
		return nil
	}
	md, _, ok := m.MethodByToken(tok)
	if !ok || md.Body == nil || len(md.Body.Code) == 0 {
		return nil
	}
	return md
}

// weaveProperty instruments the accessors of p. Both accessor bodies are
// built before either is replaced.
func (e *Engine) weaveProperty(mod *resolve.Module, rep *Report, td *il.TypeDef, p *il.PropertyDef) error {
	member := td.FullName() + "::" + p.Name
	m := mod.Module

	aspects, err := e.resolveAll(mod, p.Annotations)
	if err != nil {
		return err
	}
	var get, set []*aspect
	for _, a := range aspects {
		if a.ann.Desc.Has(hooks.CapGet) {
			get = append(get, a)
		}
		if a.ann.Desc.Has(hooks.CapSet) {
			set = append(set, a)
		}
	}
	if len(get) == 0 && len(set) == 0 {
		rep.Skipped = append(rep.Skipped, Skip{Member: member, Reason: "annotations declare no applicable hooks"})
		Logger().Debug("member skipped", zap.String("member", member))
		return nil
	}

	getter, setter := accessor(m, p.Getter), accessor(m, p.Setter)
	if len(get) == 0 {
		getter = nil
	}
	if len(set) == 0 {
		setter = nil
	}
	if getter == nil && setter == nil {
		rep.Skipped = append(rep.Skipped, Skip{Member: member, Reason: "no accessor matches the declared hooks"})
		return nil
	}

	var getBody, setBody *il.MethodBody
	if getter != nil {
		w, err := newAccessorWeaver(m, getter, member)
		if err != nil {
			return err
		}
		if getBody, err = w.getHooks(p, get); err != nil {
			return err
		}
	}
	if setter != nil {
		w, err := newAccessorWeaver(m, setter, member)
		if err != nil {
			return err
		}
		if setBody, err = w.setHooks(p, set); err != nil {
			return err
		}
	}

	if getBody != nil {
		getter.Body = getBody
	}
	if setBody != nil {
		setter.Body = setBody
	}
	rep.Properties = append(rep.Properties, member)
	Logger().Debug("property woven",
		zap.String("member", member),
		zap.Bool("getter", getBody != nil),
		zap.Bool("setter", setBody != nil))
	return nil
}

func newAccessorWeaver(m *il.Module, md *il.MethodDef, member string) (*methodWeaver, error) {
	s, err := stream.New(md.Body)
	if err != nil {
		return nil, err
	}
	return &methodWeaver{m: m, md: md, member: member, s: s, first: s.First()}, nil
}

// getHooks passes the value of every return through the Get hooks in
// declaration order. The first hook instruction takes over the ret's anchor
// so branches to the return run the hooks too.
func (w *methodWeaver) getHooks(p *il.PropertyDef, aspects []*aspect) (*il.MethodBody, error) {
	s := w.s
	typ := w.md.Sig.Return
	tmp := s.AddLocal(il.SigObject)

	e := codegen.NewEmitter()
	for _, a := range aspects {
		t, err := w.target(a, hooks.CapGet)
		if err != nil {
			return nil, err
		}
		codegen.GetterCapture(e, p.Name, typ, tmp, t)
	}
	e.Ret()
	if err := e.Err(); err != nil {
		return nil, err
	}
	seq := e.Instructions()

	var rets []stream.Anchor
	err := s.Each(func(a stream.Anchor, instr il.Instruction) error {
		if instr.Opcode == il.OpRet {
			rets = append(rets, a)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	for _, r := range rets {
		if err := s.Replace(r, seq[0]); err != nil {
			return nil, err
		}
		if _, _, err := s.InsertSeqAfter(r, seq[1:]); err != nil {
			return nil, err
		}
	}
	s.SetInitLocals(true)
	return s.Finish(w.m, w.md.Sig)
}

// setHooks passes the incoming value through the Set hooks in declaration
// order before the original body runs.
func (w *methodWeaver) setHooks(p *il.PropertyDef, aspects []*aspect) (*il.MethodBody, error) {
	s := w.s
	params := w.md.Sig.Params
	if len(params) == 0 {
		return nil, errors.InvalidData(errors.PhaseWeave, nil, "setter takes no value")
	}
	slot := uint32(len(params) - 1)
	if w.md.Sig.HasThis {
		slot++
	}
	typ := params[len(params)-1]
	tmp := s.AddLocal(il.SigObject)

	e := codegen.NewEmitter()
	for _, a := range aspects {
		t, err := w.target(a, hooks.CapSet)
		if err != nil {
			return nil, err
		}
		codegen.SetterCapture(e, p.Name, slot, typ, tmp, t)
	}
	if err := w.insertEntry(e); err != nil {
		return nil, err
	}
	s.SetInitLocals(true)
	return s.Finish(w.m, w.md.Sig)
}
