package vm

import (
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/wippyai/il-weaver/errors"
	"github.com/wippyai/il-weaver/il"
	"github.com/wippyai/il-weaver/resolve"
)

const defaultMaxDepth = 256

// Fault is an exception that propagated out of the invoked method.
type Fault struct {
	Value Value
	// Trace lists the methods the exception unwound, innermost first.
	Trace []string
}

func (f *Fault) Error() string {
	msg := fmt.Sprintf("vm: unhandled exception: %v", f.Value)
	if len(f.Trace) > 0 {
		msg += " (at " + strings.Join(f.Trace, " <- ") + ")"
	}
	return msg
}

// Throw returns a fault carrying v, for host functions that raise exceptions.
func Throw(v Value) *Fault {
	return &Fault{Value: v}
}

// Config configures a Machine.
type Config struct {
	Resolver *resolve.Resolver
	Host     *Host
	MaxDepth int
}

// callee is a resolved call target: a method body or a host binding.
type callee struct {
	method *resolve.Method
	host   HostFunc
	name   string
	sig    il.MethodSig
}

type callKey struct {
	mod *il.Module
	tok il.Token
}

// Machine executes methods of loaded modules.
//
// A Machine is not safe for concurrent use.
type Machine struct {
	res      *resolve.Resolver
	host     *Host
	statics  map[*il.FieldDef]Value
	calls    map[callKey]*callee
	maxDepth int
	depth    int
	mu       sync.Mutex
}

// New creates a machine.
func New(cfg Config) *Machine {
	res := cfg.Resolver
	if res == nil {
		res = resolve.New(resolve.Config{})
	}
	host := cfg.Host
	if host == nil {
		host = NewHost()
	}
	depth := cfg.MaxDepth
	if depth <= 0 {
		depth = defaultMaxDepth
	}
	return &Machine{
		res:      res,
		host:     host,
		statics:  make(map[*il.FieldDef]Value),
		calls:    make(map[callKey]*callee),
		maxDepth: depth,
	}
}

// Host returns the host registry.
func (vm *Machine) Host() *Host { return vm.host }

// Resolver returns the resolver used to load referenced modules.
func (vm *Machine) Resolver() *resolve.Resolver { return vm.res }

// Invoke calls the first method called method on type typeName of mod.
// Instance methods take the receiver as the first argument.
func (vm *Machine) Invoke(mod *resolve.Module, typeName, method string, args ...Value) (Value, error) {
	td, tok := mod.Module.FindType(typeName)
	if td == nil {
		return nil, errors.NotFound(errors.PhaseExecute, "type", typeName)
	}
	md := td.Method(method)
	if md == nil {
		return nil, errors.NotFound(errors.PhaseExecute, "method", typeName+"::"+method)
	}
	m := &resolve.Method{
		Type:  &resolve.Type{Owner: mod, Def: td, Token: tok},
		Def:   md,
		Token: mod.Module.MethodToken(md),
	}
	v, err := vm.Call(m, args)
	if f, ok := err.(*Fault); ok {
		Logger().Debug("unhandled exception",
			zap.String("method", typeName+"::"+method),
			zap.Any("value", f.Value),
			zap.Strings("trace", f.Trace))
	}
	return v, err
}

// NewObject allocates an instance of t and runs the constructor matching args.
func (vm *Machine) NewObject(t *resolve.Type, args ...Value) (*Object, error) {
	obj := vm.alloc(t)
	for _, md := range t.Def.Methods {
		if md.IsCtor() && len(md.Sig.Params) == len(args) {
			m := &resolve.Method{Type: t, Def: md, Token: t.Owner.Module.MethodToken(md)}
			if _, err := vm.Call(m, append([]Value{obj}, args...)); err != nil {
				return nil, err
			}
			return obj, nil
		}
	}
	if len(args) == 0 {
		return obj, nil
	}
	return nil, errors.NotFound(errors.PhaseExecute, "constructor", t.FullName())
}

func (vm *Machine) alloc(t *resolve.Type) *Object {
	obj := &Object{Type: t, Fields: make(map[string]Value)}
	chain, err := vm.res.Hierarchy(t)
	if err != nil {
		chain = []*resolve.Type{t}
	}
	for _, cur := range chain {
		for _, f := range cur.Def.Fields {
			if !f.IsStatic() {
				if _, ok := obj.Fields[f.Name]; !ok {
					obj.Fields[f.Name] = zero(f.Type)
				}
			}
		}
	}
	return obj
}

// Call executes m with args. Instance methods take the receiver first.
func (vm *Machine) Call(m *resolve.Method, args []Value) (Value, error) {
	if m.Def.Body == nil {
		return nil, errors.New(errors.PhaseExecute, errors.KindUnsupported).
			Module(m.Type.Owner.Module.Name).
			Member(m.Type.FullName() + "::" + m.Def.Name).
			Detail("method has no body").
			Build()
	}
	if want := m.Def.Sig.ArgCount(); len(args) != want {
		return nil, errors.New(errors.PhaseExecute, errors.KindInvalidInput).
			Member(m.Type.FullName()+"::"+m.Def.Name).
			Detail("got %d arguments, want %d", len(args), want).
			Build()
	}
	if vm.depth >= vm.maxDepth {
		return nil, &Fault{Value: &Exception{Name: StackOverflow, Message: "call depth exceeded"}}
	}
	vm.depth++
	defer func() { vm.depth-- }()

	f := newFrame(m, args)
	v, _, err := vm.run(f, 0, false)
	if fault, ok := err.(*Fault); ok {
		fault.Trace = append(fault.Trace, f.name())
	}
	return v, err
}

// resolveCall resolves a method token of mod to a call target.
func (vm *Machine) resolveCall(mod *resolve.Module, tok il.Token) (*callee, error) {
	key := callKey{mod: mod.Module, tok: tok}
	vm.mu.Lock()
	c, ok := vm.calls[key]
	vm.mu.Unlock()
	if ok {
		return c, nil
	}

	sig, err := mod.Module.MethodSigOf(tok)
	if err != nil {
		return nil, err
	}
	c = &callee{sig: sig, name: mod.Module.MethodName(tok)}
	if tok.Table() == il.TableMemberRef {
		ref, _ := mod.Module.MemberRefByToken(tok)
		c.name = qualifiedName(mod.Module, ref.Parent) + "::" + ref.Name
		if fn, ok := vm.host.Lookup(c.name); ok {
			c.host = fn
		}
	}
	if c.host == nil {
		m, err := vm.res.ResolveMethod(mod, tok)
		if err != nil {
			return nil, errors.New(errors.PhaseExecute, errors.KindUnresolved).
				Module(mod.Module.Name).
				Member(c.name).
				Detail("no method body or host binding").
				Cause(err).
				Build()
		}
		c.method = m
	}

	vm.mu.Lock()
	vm.calls[key] = c
	vm.mu.Unlock()
	return c, nil
}

// qualifiedName returns the namespace-qualified name of a type token.
func qualifiedName(m *il.Module, tok il.Token) string {
	switch tok.Table() {
	case il.TableTypeRef:
		if tr, ok := m.TypeRefByToken(tok); ok {
			return tr.FullName()
		}
	case il.TableTypeDef:
		if td, ok := m.TypeDefByToken(tok); ok {
			return td.FullName()
		}
	}
	return tok.String()
}

// dispatch finds the override of m for the runtime type of receiver.
func (vm *Machine) dispatch(m *resolve.Method, receiver Value) *resolve.Method {
	obj, ok := receiver.(*Object)
	if !ok || obj.Type.Def == m.Type.Def {
		return m
	}
	chain, err := vm.res.Hierarchy(obj.Type)
	if err != nil {
		return m
	}
	for _, t := range chain {
		if t.Def == m.Type.Def {
			break
		}
		for _, md := range t.Def.Methods {
			if md.Name == m.Def.Name && md.Body != nil &&
				resolve.SigEqual(t.Owner.Module, md.Sig, m.Type.Owner.Module, m.Def.Sig) {
				return &resolve.Method{Type: t, Def: md, Token: t.Owner.Module.MethodToken(md)}
			}
		}
	}
	return m
}

// isInstance reports whether v is assignable to t.
func (vm *Machine) isInstance(mod *il.Module, t il.TypeSig, v Value) bool {
	if v == nil {
		return true
	}
	switch t.Kind {
	case il.ElemObject:
		return true
	case il.ElemString:
		_, ok := v.(string)
		return ok
	case il.ElemSZArray:
		_, ok := v.(*Array)
		return ok
	case il.ElemClass, il.ElemValueType:
		obj, ok := v.(*Object)
		if !ok {
			return false
		}
		want := qualifiedName(mod, t.Type)
		chain, err := vm.res.Hierarchy(obj.Type)
		if err != nil {
			return obj.Type.FullName() == want
		}
		for _, cur := range chain {
			if cur.FullName() == want {
				return true
			}
		}
		return false
	}
	if b, ok := v.(*Box); ok {
		return b.Type.Kind == t.Kind
	}
	return false
}
