package engine

import (
	"github.com/gofrs/uuid"
	"github.com/hashicorp/go-multierror"
	"go.uber.org/zap"

	"github.com/wippyai/il-weaver/errors"
	"github.com/wippyai/il-weaver/il"
	"github.com/wippyai/il-weaver/resolve"
	"github.com/wippyai/il-weaver/weave/internal/hooks"
)

// MemberMatcher selects members by qualified type name and member name.
type MemberMatcher interface {
	MatchMember(typeName, member string) bool
}

// Config configures the weaving engine.
type Config struct {
	Resolver *resolve.Resolver
	// Exclude leaves matching members untouched.
	Exclude MemberMatcher
	// Isolate rolls back a failing member and continues with the next one.
	Isolate bool
	// RegenerateMVID assigns a fresh module version id when anything changed.
	RegenerateMVID bool
	// Verify validates the module structure after weaving.
	Verify bool
}

// Skip is a member with annotations that was left unchanged.
type Skip struct {
	Member string
	Reason string
}

// Failure is a member that could not be woven in isolated mode.
type Failure struct {
	Member string
	Err    error
}

// Report summarizes a weaving run.
type Report struct {
	Module     string
	Methods    []string
	Properties []string
	// Parameters counts the Process calls inserted.
	Parameters int
	// Truncated lists methods whose argument capture stopped at a pointer
	// parameter.
	Truncated []string
	Skipped   []Skip
	Failures  []Failure
}

// Changed reports whether any member was rewritten.
func (r *Report) Changed() bool {
	return len(r.Methods) > 0 || len(r.Properties) > 0
}

// Err combines the failures of an isolated run.
func (r *Report) Err() error {
	var result *multierror.Error
	for _, f := range r.Failures {
		result = multierror.Append(result, f.Err)
	}
	return result.ErrorOrNil()
}

// Engine weaves modules. It keeps no state between Weave calls besides the
// hook descriptor cache, which is valid for the resolver's lifetime.
type Engine struct {
	res            *resolve.Resolver
	hooks          *hooks.Resolver
	exclude        MemberMatcher
	isolate        bool
	regenerateMVID bool
	verify         bool
}

// New creates an engine.
func New(cfg Config) *Engine {
	res := cfg.Resolver
	if res == nil {
		res = resolve.New(resolve.Config{})
	}
	return &Engine{
		res:            res,
		hooks:          hooks.NewResolver(res),
		exclude:        cfg.Exclude,
		isolate:        cfg.Isolate,
		regenerateMVID: cfg.RegenerateMVID,
		verify:         cfg.Verify,
	}
}

// Resolver returns the resolver used for cross-module references.
func (e *Engine) Resolver() *resolve.Resolver { return e.res }

// Weave instruments every annotated member of mod in place.
//
// The pass visits types, then methods, then properties in declaration order.
// Methods of a type are woven before its properties, so an accessor carrying
// both method and property annotations runs its Get hook after the method's
// exit region. Modules without annotated members are left byte-identical.
func (e *Engine) Weave(mod *resolve.Module) (*Report, error) {
	m := mod.Module
	if m.Flags&il.ModuleFlagWoven != 0 {
		return nil, errors.AlreadyWoven(m.Name)
	}

	rep := &Report{Module: m.Name}
	for _, td := range m.Types {
		for _, md := range td.Methods {
			if !hasMethodAnnotations(md) {
				continue
			}
			member := td.FullName() + "::" + md.Name
			if err := e.member(mod, rep, td, member, func() error {
				return e.weaveMethod(mod, rep, td, md)
			}); err != nil {
				return rep, err
			}
		}
		for _, p := range td.Properties {
			if len(p.Annotations) == 0 {
				continue
			}
			member := td.FullName() + "::" + p.Name
			if err := e.member(mod, rep, td, member, func() error {
				return e.weaveProperty(mod, rep, td, p)
			}); err != nil {
				return rep, err
			}
		}
	}

	if !rep.Changed() {
		Logger().Debug("module unchanged", zap.String("module", m.Name))
		return rep, nil
	}
	m.Flags |= il.ModuleFlagWoven
	if e.regenerateMVID {
		id, err := uuid.NewV4()
		if err != nil {
			return rep, errors.Wrap(errors.PhaseWeave, errors.KindIO, err, "generate module version id")
		}
		m.MVID = id
	}
	if e.verify {
		if err := m.Validate(); err != nil {
			return rep, errors.Wrap(errors.PhaseValidate, errors.KindInvalidData, err, "woven module")
		}
	}
	Logger().Info("module woven",
		zap.String("module", m.Name),
		zap.Int("methods", len(rep.Methods)),
		zap.Int("properties", len(rep.Properties)),
		zap.Int("parameters", rep.Parameters),
		zap.Int("skipped", len(rep.Skipped)),
		zap.Int("failures", len(rep.Failures)))
	return rep, nil
}

// member runs fn for one annotated member, applying exclusion and isolation.
func (e *Engine) member(mod *resolve.Module, rep *Report, td *il.TypeDef, member string, fn func() error) error {
	name := member[len(td.FullName())+2:]
	if e.exclude != nil && e.exclude.MatchMember(td.FullName(), name) {
		rep.Skipped = append(rep.Skipped, Skip{Member: member, Reason: "excluded"})
		Logger().Debug("member excluded", zap.String("member", member))
		return nil
	}

	snap := snapshot(mod.Module)
	rep0 := *rep
	if err := fn(); err != nil {
		err = errors.InMember(mod.Module.Name, member, err)
		if !e.isolate {
			return err
		}
		snap.restore(mod.Module)
		rep.Methods, rep.Properties = rep0.Methods, rep0.Properties
		rep.Parameters, rep.Truncated = rep0.Parameters, rep0.Truncated
		rep.Failures = append(rep.Failures, Failure{Member: member, Err: err})
		Logger().Warn("member rolled back", zap.String("member", member), zap.Error(err))
	}
	return nil
}

func hasMethodAnnotations(md *il.MethodDef) bool {
	if len(md.Annotations) > 0 {
		return true
	}
	for _, p := range md.Params {
		if len(p.Annotations) > 0 {
			return true
		}
	}
	return false
}

// tables records the reference table sizes so imports made for a failed
// member can be dropped. Member bodies are only replaced on success.
type tables struct {
	moduleRefs, typeRefs, memberRefs int
}

func snapshot(m *il.Module) tables {
	return tables{len(m.ModuleRefs), len(m.TypeRefs), len(m.MemberRefs)}
}

func (t tables) restore(m *il.Module) {
	m.ModuleRefs = m.ModuleRefs[:t.moduleRefs]
	m.TypeRefs = m.TypeRefs[:t.typeRefs]
	m.MemberRefs = m.MemberRefs[:t.memberRefs]
}
