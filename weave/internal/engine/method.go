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

// aspect is a resolved annotation on the member being woven.
type aspect struct {
	ann *hooks.Annotation
	// local holds the instance when a method hook needs a receiver.
	local    uint32
	hasLocal bool
}

// paramAspect is a Process hook bound to one parameter.
type paramAspect struct {
	aspect
	index int
	name  string
}

// methodWeaver holds the state of one method rewrite.
type methodWeaver struct {
	m      *il.Module
	md     *il.MethodDef
	member string
	s      *stream.Stream
	// first is the original first instruction; the protected range starts here.
	first stream.Anchor
}

var methodCaps = []hooks.Capability{hooks.CapPre, hooks.CapPost, hooks.CapException}

func (e *Engine) resolveAll(mod *resolve.Module, anns []il.Annotation) ([]*aspect, error) {
	out := make([]*aspect, 0, len(anns))
	for _, a := range anns {
		r, err := e.hooks.Resolve(mod, a)
		if err != nil {
			return nil, err
		}
		out = append(out, &aspect{ann: r})
	}
	return out, nil
}

// weaveMethod instruments md. The body is replaced only when every step
// succeeds.
func (e *Engine) weaveMethod(mod *resolve.Module, rep *Report, td *il.TypeDef, md *il.MethodDef) error {
	member := td.FullName() + "::" + md.Name

	aspects, err := e.resolveAll(mod, md.Annotations)
	if err != nil {
		return err
	}
	var active []*aspect
	for _, a := range aspects {
		if a.ann.Desc.Has(methodCaps...) {
			active = append(active, a)
		}
	}

	var params []*paramAspect
	for i, p := range md.Params {
		resolved, err := e.resolveAll(mod, p.Annotations)
		if err != nil {
			return err
		}
		for _, a := range resolved {
			if a.ann.Desc.Has(hooks.CapProcess) {
				params = append(params, &paramAspect{aspect: *a, index: i, name: md.ParamName(i)})
			}
		}
	}

	if len(active) == 0 && len(params) == 0 {
		rep.Skipped = append(rep.Skipped, Skip{Member: member, Reason: "annotations declare no applicable hooks"})
		Logger().Debug("member skipped", zap.String("member", member))
		return nil
	}
	if md.Body == nil || len(md.Body.Code) == 0 {
		rep.Skipped = append(rep.Skipped, Skip{Member: member, Reason: "method has no body"})
		return nil
	}

	s, err := stream.New(md.Body)
	if err != nil {
		return err
	}
	w := &methodWeaver{m: mod.Module, md: md, member: member, s: s, first: s.First()}

	if err := w.instances(active); err != nil {
		return err
	}
	processed, err := w.processCalls(params)
	if err != nil {
		return err
	}
	truncated, err := w.preHooks(active)
	if err != nil {
		return err
	}

	var post, onError []*aspect
	for _, a := range active {
		if a.ann.Desc.Has(hooks.CapPost) {
			post = append(post, a)
		}
		if a.ann.Desc.Has(hooks.CapException) {
			onError = append(onError, a)
		}
	}
	if len(post) > 0 || len(onError) > 0 {
		exit, err := normalizeExits(s, md.Sig.Return)
		if err != nil {
			return err
		}
		t, err := w.buildRegions(exit, post, onError)
		if err != nil {
			return err
		}
		truncated = truncated || t
	}

	body, err := s.Finish(w.m, md.Sig)
	if err != nil {
		return err
	}
	md.Body = body

	rep.Methods = append(rep.Methods, member)
	rep.Parameters += processed
	if truncated {
		rep.Truncated = append(rep.Truncated, member)
	}
	Logger().Debug("method woven",
		zap.String("member", member),
		zap.Int("annotations", len(active)),
		zap.Int("parameters", processed),
		zap.Int("instructions", len(body.Code)))
	return nil
}

// construct emits the creation of an annotation instance from its
// constructor arguments.
func construct(e *codegen.Emitter, a *hooks.Annotation) error {
	if want := len(a.Ctor.Def.Sig.Params); want != len(a.Args) {
		return errors.New(errors.PhaseWeave, errors.KindInvalidData).
			Member(a.Ctor.Type.FullName()).
			Detail("annotation has %d arguments, constructor takes %d", len(a.Args), want).
			Build()
	}
	for _, v := range a.Args {
		e.Const(v)
	}
	e.Newobj(a.Token)
	return e.Err()
}

// typeRef returns a token for t usable from m.
func typeRef(m *il.Module, t *resolve.Type) il.Token {
	if t.Owner.Module == m {
		return t.Token
	}
	return m.ImportTypeRef(t.Owner.Module.Name, t.Def.Namespace, t.Def.Name)
}

// instances stores one instance per annotation with instance method hooks,
// in declaration order, before the original first instruction.
func (w *methodWeaver) instances(aspects []*aspect) error {
	e := codegen.NewEmitter()
	for _, a := range aspects {
		if !a.ann.Desc.NeedsInstance(methodCaps...) {
			continue
		}
		if err := construct(e, a.ann); err != nil {
			return err
		}
		a.local = w.s.AddLocal(il.ClassOf(typeRef(w.m, a.ann.Desc.Type)))
		a.hasLocal = true
		e.Stloc(a.local)
	}
	return w.insertEntry(e)
}

// target builds the call site of hook c of a. Instance hooks load the
// annotation local, or construct a fresh instance inline when a has none.
func (w *methodWeaver) target(a *aspect, c hooks.Capability) (codegen.Target, error) {
	h, _ := a.ann.Desc.Hook(c)
	t := codegen.Target{Method: hooks.Import(w.m, h), Instance: h.Def.Sig.HasThis}
	if !t.Instance {
		return t, nil
	}
	if a.hasLocal {
		t.Receiver = []il.Instruction{il.Local(il.OpLdloc, a.local)}
		return t, nil
	}
	e := codegen.NewEmitter()
	if err := construct(e, a.ann); err != nil {
		return t, err
	}
	t.Receiver = e.Copy()
	return t, nil
}

// processCalls inserts one Process call per annotated parameter, ahead of
// the pre-hooks, and returns how many were inserted.
func (w *methodWeaver) processCalls(params []*paramAspect) (int, error) {
	e := codegen.NewEmitter()
	var this uint32
	if w.md.Sig.HasThis {
		this = 1
	}
	n := 0
	for _, p := range params {
		t, err := w.target(&p.aspect, hooks.CapProcess)
		if err != nil {
			return 0, err
		}
		typ := w.md.Sig.Params[p.index]
		if !codegen.ValueCapture(e, w.md.Name, p.name, uint32(p.index)+this, typ, t) {
			Logger().Warn("parameter cannot be captured",
				zap.String("member", w.member),
				zap.String("parameter", p.name),
				zap.String("type", w.m.TypeSigString(typ)))
			continue
		}
		n++
	}
	return n, w.insertEntry(e)
}

// preHooks inserts PreMethod calls in declaration order.
func (w *methodWeaver) preHooks(aspects []*aspect) (bool, error) {
	e := codegen.NewEmitter()
	truncated := false
	for _, a := range aspects {
		if !a.ann.Desc.Has(hooks.CapPre) {
			continue
		}
		t, err := w.target(a, hooks.CapPre)
		if err != nil {
			return false, err
		}
		if w.capture(e, t) {
			truncated = true
		}
	}
	return truncated, w.insertEntry(e)
}

// capture emits an argument capture call and reports whether it was cut
// short by a pointer parameter.
func (w *methodWeaver) capture(e *codegen.Emitter, t codegen.Target) bool {
	c := codegen.ArgumentCapture(e, w.md, w.md.Name, t)
	if c.Truncated {
		Logger().Warn("argument capture stopped at pointer parameter",
			zap.String("member", w.member),
			zap.Int("parameter", c.Stop),
			zap.Int("captured", c.Captured))
	}
	return c.Truncated
}

// insertEntry places the emitted code before the original first instruction.
func (w *methodWeaver) insertEntry(e *codegen.Emitter) error {
	if err := e.Err(); err != nil {
		return err
	}
	if e.Len() == 0 {
		return nil
	}
	_, _, err := w.s.InsertSeqBefore(w.first, e.Instructions())
	return err
}
