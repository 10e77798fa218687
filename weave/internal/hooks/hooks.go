// Package hooks resolves annotation types to the hook procedures they expose.
//
// Each annotation type is described once by a Descriptor listing the
// capabilities it declares. A capability is present when the type, or one of
// its base types, defines a method with the capability's name and exact
// calling convention. Absent capabilities simply mean the phase is skipped.
package hooks

import (
	"sync"

	"go.uber.org/zap"

	"github.com/wippyai/il-weaver/errors"
	"github.com/wippyai/il-weaver/il"
	"github.com/wippyai/il-weaver/resolve"
)

// Capability identifies a hook phase.
type Capability int

const (
	CapPre Capability = iota
	CapPost
	CapException
	CapProcess
	CapGet
	CapSet
	numCaps
)

// Convention is the fixed name and parameter list of a capability's hook.
// Hooks return void and may be static or instance methods.
type Convention struct {
	Name   string
	Params []il.TypeSig
}

var conventions = [numCaps]Convention{
	CapPre:       {"PreMethod", []il.TypeSig{il.SigString, il.ArrayOf(il.SigObject)}},
	CapPost:      {"PostMethod", []il.TypeSig{il.SigString, il.ArrayOf(il.SigObject)}},
	CapException: {"ExceptionMethod", []il.TypeSig{il.SigString, il.SigObject}},
	CapProcess:   {"Process", []il.TypeSig{il.SigString, il.SigString, il.SigObject}},
	CapGet:       {"Get", []il.TypeSig{il.SigString, il.ByRefOf(il.SigObject)}},
	CapSet:       {"Set", []il.TypeSig{il.SigString, il.ByRefOf(il.SigObject)}},
}

func (c Capability) String() string {
	if c < 0 || c >= numCaps {
		return "unknown"
	}
	return conventions[c].Name
}

// Sig returns the method signature a hook for c must have.
func (c Capability) Sig(instance bool) il.MethodSig {
	return il.MethodSig{HasThis: instance, Return: il.SigVoid, Params: conventions[c].Params}
}

// Matches reports whether md satisfies the convention of c.
func (c Capability) Matches(md *il.MethodDef) bool {
	conv := conventions[c]
	if md.Name != conv.Name || md.IsCtor() || !md.Sig.Return.IsVoid() {
		return false
	}
	return md.Sig.Equal(c.Sig(md.Sig.HasThis))
}

// Descriptor lists the hooks an annotation type declares.
type Descriptor struct {
	Type  *resolve.Type
	hooks [numCaps]*resolve.Method
}

// Hook returns the hook for c, if the annotation type declares one.
func (d *Descriptor) Hook(c Capability) (*resolve.Method, bool) {
	m := d.hooks[c]
	return m, m != nil
}

// Has reports whether any of caps is declared.
func (d *Descriptor) Has(caps ...Capability) bool {
	for _, c := range caps {
		if d.hooks[c] != nil {
			return true
		}
	}
	return false
}

// Capabilities returns the declared capabilities in phase order.
func (d *Descriptor) Capabilities() []Capability {
	var out []Capability
	for c := Capability(0); c < numCaps; c++ {
		if d.hooks[c] != nil {
			out = append(out, c)
		}
	}
	return out
}

// NeedsInstance reports whether any declared hook is an instance method.
func (d *Descriptor) NeedsInstance(caps ...Capability) bool {
	for _, c := range caps {
		if m := d.hooks[c]; m != nil && m.Def.Sig.HasThis {
			return true
		}
	}
	return false
}

// Resolver builds and caches descriptors. It is safe for concurrent use.
type Resolver struct {
	res   *resolve.Resolver
	cache map[*il.TypeDef]*Descriptor
	mu    sync.Mutex
}

// NewResolver creates a descriptor resolver over res.
func NewResolver(res *resolve.Resolver) *Resolver {
	return &Resolver{
		res:   res,
		cache: make(map[*il.TypeDef]*Descriptor),
	}
}

// Annotation is a resolved annotation on a member.
type Annotation struct {
	Ctor *resolve.Method
	Desc *Descriptor
	Args []any
	// Token is the constructor token in the annotated module.
	Token il.Token
}

// Resolve resolves ann, declared in module from, to its constructor and
// descriptor.
func (r *Resolver) Resolve(from *resolve.Module, ann il.Annotation) (*Annotation, error) {
	ctor, err := r.res.ResolveMethod(from, ann.Ctor)
	if err != nil {
		return nil, err
	}
	if !ctor.Def.IsCtor() {
		return nil, errors.New(errors.PhaseResolve, errors.KindInvalidData).
			Module(from.Module.Name).
			Member(ctor.Type.FullName() + "::" + ctor.Def.Name).
			Detail("annotation constructor is not a constructor").
			Build()
	}
	args, err := il.DecodeAnnotationArgs(ann.Args)
	if err != nil {
		return nil, errors.New(errors.PhaseResolve, errors.KindInvalidData).
			Module(from.Module.Name).
			Member(ctor.Type.FullName()).
			Detail("annotation arguments").
			Cause(err).
			Build()
	}
	desc, err := r.Describe(ctor.Type)
	if err != nil {
		return nil, err
	}
	return &Annotation{Ctor: ctor, Desc: desc, Args: args, Token: ann.Ctor}, nil
}

// Describe returns the descriptor of annotation type t.
//
// The directory of t's module is registered as a search location first, so
// base types living next to it resolve.
func (r *Resolver) Describe(t *resolve.Type) (*Descriptor, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if d, ok := r.cache[t.Def]; ok {
		return d, nil
	}

	if t.Owner.Dir != "" {
		r.res.AddSearchPath(t.Owner.Dir)
	}
	chain, err := r.res.Hierarchy(t)
	if err != nil {
		return nil, err
	}

	d := &Descriptor{Type: t}
	for _, cur := range chain {
		for _, md := range cur.Def.Methods {
			for c := Capability(0); c < numCaps; c++ {
				if d.hooks[c] == nil && c.Matches(md) {
					d.hooks[c] = &resolve.Method{
						Type:  cur,
						Def:   md,
						Token: cur.Owner.Module.MethodToken(md),
					}
				}
			}
		}
	}
	r.cache[t.Def] = d
	Logger().Debug("annotation described",
		zap.String("type", t.FullName()),
		zap.Stringers("capabilities", d.Capabilities()))
	return d, nil
}

// Import returns a token for method usable from module m: its MethodDef token
// when m defines it, otherwise a deduplicated MemberRef.
func Import(m *il.Module, method *resolve.Method) il.Token {
	owner := method.Type.Owner.Module
	if owner == m {
		return method.Token
	}
	parent := m.ImportTypeRef(owner.Name, method.Type.Def.Namespace, method.Type.Def.Name)
	return m.ImportMemberRef(parent, method.Def.Name, method.Def.Sig)
}
