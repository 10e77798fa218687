package resolve

import (
	stderrors "errors"
	"io/fs"
	"path/filepath"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/wippyai/il-weaver/errors"
	"github.com/wippyai/il-weaver/il"
	"github.com/wippyai/il-weaver/store"
)

// Config configures a Resolver. Search paths are owned by the resolver
// instance; nothing is shared between resolvers.
type Config struct {
	Store       store.Store // defaults to store.NewFiles(false)
	SearchPaths []string
}

// Module is a loaded module with the directory it was found in.
type Module struct {
	Module *il.Module
	Path   string
	Dir    string
}

// Type is a type definition together with its defining module.
type Type struct {
	Owner *Module
	Def   *il.TypeDef
	Token il.Token // TypeDef token within Owner
}

// FullName returns the qualified type name.
func (t *Type) FullName() string { return t.Def.FullName() }

// Method is a method definition together with its declaring type.
type Method struct {
	Type  *Type
	Def   *il.MethodDef
	Token il.Token // MethodDef token within Type.Owner
}

// Resolver loads referenced modules from search paths and resolves type and
// member references across them.
//
// Resolver is thread-safe.
type Resolver struct {
	store   store.Store
	modules map[string]*Module
	paths   []string
	mu      sync.RWMutex
}

// New creates a resolver.
func New(cfg Config) *Resolver {
	st := cfg.Store
	if st == nil {
		st = store.NewFiles(false)
	}
	r := &Resolver{
		store:   st,
		modules: make(map[string]*Module),
	}
	for _, p := range cfg.SearchPaths {
		r.AddSearchPath(p)
	}
	return r
}

// AddSearchPath appends dir to the search locations if not already present.
// It reports whether dir was added.
func (r *Resolver) AddSearchPath(dir string) bool {
	dir = filepath.Clean(dir)
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.paths {
		if p == dir {
			return false
		}
	}
	r.paths = append(r.paths, dir)
	Logger().Debug("search path added", zap.String("dir", dir))
	return true
}

// SearchPaths returns a copy of the search locations in lookup order.
func (r *Resolver) SearchPaths() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.paths...)
}

// Register makes an already loaded module available under its name.
func (r *Resolver) Register(m *il.Module, path string) *Module {
	lm := &Module{Module: m, Path: path, Dir: filepath.Dir(path)}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.modules[m.Name] = lm
	return lm
}

// LoadModule returns the module called name, loading <dir>/<name>.ilm from the
// first search location that has it.
func (r *Resolver) LoadModule(name string) (*Module, error) {
	r.mu.RLock()
	if lm, ok := r.modules[name]; ok {
		r.mu.RUnlock()
		return lm, nil
	}
	paths := append([]string(nil), r.paths...)
	r.mu.RUnlock()

	for _, dir := range paths {
		path := filepath.Join(dir, name+store.Ext)
		m, err := r.store.Load(path)
		if err != nil {
			if stderrors.Is(err, fs.ErrNotExist) {
				continue
			}
			return nil, err
		}
		Logger().Debug("module resolved", zap.String("module", name), zap.String("path", path))
		return r.Register(m, path), nil
	}
	return nil, errors.New(errors.PhaseResolve, errors.KindNotFound).
		Module(name).
		Detail("module not found in %d search location(s)", len(paths)).
		Build()
}

// ResolveType resolves a TypeDef or TypeRef token of from.
func (r *Resolver) ResolveType(from *Module, tok il.Token) (*Type, error) {
	switch tok.Table() {
	case il.TableTypeDef:
		td, ok := from.Module.TypeDefByToken(tok)
		if !ok {
			return nil, errors.NotFound(errors.PhaseResolve, "type", tok.String())
		}
		return &Type{Owner: from, Def: td, Token: tok}, nil
	case il.TableTypeRef:
		tr, ok := from.Module.TypeRefByToken(tok)
		if !ok {
			return nil, errors.NotFound(errors.PhaseResolve, "type reference", tok.String())
		}
		mr, ok := from.Module.ModuleRefByRow(tr.Scope)
		if !ok {
			return nil, errors.NotFound(errors.PhaseResolve, "module reference", tr.FullName())
		}
		owner, err := r.LoadModule(mr.Name)
		if err != nil {
			return nil, err
		}
		td, defTok := owner.Module.FindType(tr.FullName())
		if td == nil {
			return nil, errors.New(errors.PhaseResolve, errors.KindNotFound).
				Module(mr.Name).
				Member(tr.FullName()).
				Detail("type not defined in module").
				Build()
		}
		return &Type{Owner: owner, Def: td, Token: defTok}, nil
	}
	return nil, errors.InvalidInput(errors.PhaseResolve, "token "+tok.String()+" does not name a type")
}

// BaseType returns the base type of t, or nil at the root of the hierarchy.
func (r *Resolver) BaseType(t *Type) (*Type, error) {
	if t.Def.Base.IsNil() {
		return nil, nil
	}
	return r.ResolveType(t.Owner, t.Def.Base)
}

// Hierarchy returns t followed by its base types, most derived first.
func (r *Resolver) Hierarchy(t *Type) ([]*Type, error) {
	var chain []*Type
	seen := make(map[*il.TypeDef]bool)
	for cur := t; cur != nil; {
		if seen[cur.Def] {
			return nil, errors.InvalidData(errors.PhaseResolve, nil, "cyclic base type chain at "+cur.FullName())
		}
		seen[cur.Def] = true
		chain = append(chain, cur)
		next, err := r.BaseType(cur)
		if err != nil {
			return nil, err
		}
		cur = next
	}
	return chain, nil
}

// ResolveMethod resolves a MethodDef or MemberRef token of from.
func (r *Resolver) ResolveMethod(from *Module, tok il.Token) (*Method, error) {
	switch tok.Table() {
	case il.TableMethodDef:
		md, td, ok := from.Module.MethodByToken(tok)
		if !ok {
			return nil, errors.NotFound(errors.PhaseResolve, "method", tok.String())
		}
		return &Method{
			Type:  &Type{Owner: from, Def: td, Token: from.Module.TypeToken(td)},
			Def:   md,
			Token: tok,
		}, nil
	case il.TableMemberRef:
		ref, ok := from.Module.MemberRefByToken(tok)
		if !ok {
			return nil, errors.NotFound(errors.PhaseResolve, "member reference", tok.String())
		}
		parent, err := r.ResolveType(from, ref.Parent)
		if err != nil {
			return nil, err
		}
		for _, md := range parent.Def.Methods {
			if md.Name == ref.Name && SigEqual(from.Module, ref.Sig, parent.Owner.Module, md.Sig) {
				return &Method{Type: parent, Def: md, Token: parent.Owner.Module.MethodToken(md)}, nil
			}
		}
		return nil, errors.New(errors.PhaseResolve, errors.KindNotFound).
			Module(parent.Owner.Module.Name).
			Member(parent.FullName() + "::" + ref.Name).
			Detail("no method with matching signature").
			Build()
	}
	return nil, errors.InvalidInput(errors.PhaseResolve, "token "+tok.String()+" does not name a method")
}

// Unresolved checks every type reference of m and reports the ones that no
// search location provides.
func (r *Resolver) Unresolved(from *Module) error {
	var missing []string
	for i, tr := range from.Module.TypeRefs {
		tok := il.MakeToken(il.TableTypeRef, uint32(i+1))
		if _, err := r.ResolveType(from, tok); err != nil {
			scope := "?"
			if mr, ok := from.Module.ModuleRefByRow(tr.Scope); ok {
				scope = mr.Name
			}
			missing = append(missing, scope+"#"+tr.FullName())
		}
	}
	if len(missing) == 0 {
		return nil
	}
	sort.Strings(missing)
	return errors.NewUnresolvedReferencesError(missing)
}

// SigEqual compares method signatures declared in two modules. Type tokens
// are compared by qualified name.
func SigEqual(ma *il.Module, a il.MethodSig, mb *il.Module, b il.MethodSig) bool {
	if a.HasThis != b.HasThis || len(a.Params) != len(b.Params) {
		return false
	}
	if !TypeSigEqual(ma, a.Return, mb, b.Return) {
		return false
	}
	for i := range a.Params {
		if !TypeSigEqual(ma, a.Params[i], mb, b.Params[i]) {
			return false
		}
	}
	return true
}

// TypeSigEqual compares type signatures declared in two modules.
func TypeSigEqual(ma *il.Module, a il.TypeSig, mb *il.Module, b il.TypeSig) bool {
	if a.Kind != b.Kind {
		return false
	}
	switch a.Kind {
	case il.ElemValueType, il.ElemClass:
		return typeKey(ma, a.Type) == typeKey(mb, b.Type)
	case il.ElemPtr, il.ElemByRef, il.ElemSZArray:
		if a.Elem == nil || b.Elem == nil {
			return a.Elem == b.Elem
		}
		return TypeSigEqual(ma, *a.Elem, mb, *b.Elem)
	}
	return true
}

func typeKey(m *il.Module, tok il.Token) string {
	switch tok.Table() {
	case il.TableTypeDef:
		if td, ok := m.TypeDefByToken(tok); ok {
			return td.FullName()
		}
	case il.TableTypeRef:
		if tr, ok := m.TypeRefByToken(tok); ok {
			return tr.FullName()
		}
	}
	return tok.String()
}
