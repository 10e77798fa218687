package weave

import (
	"go.uber.org/zap"

	"github.com/wippyai/il-weaver/errors"
	"github.com/wippyai/il-weaver/il"
	"github.com/wippyai/il-weaver/resolve"
	"github.com/wippyai/il-weaver/store"
	"github.com/wippyai/il-weaver/weave/internal/engine"
)

// Report summarizes a weaving run.
type Report = engine.Report

// Skip is an annotated member left unchanged, with the reason.
type Skip = engine.Skip

// Failure is a member rolled back in isolated mode.
type Failure = engine.Failure

// IsWoven reports whether m carries the woven marker.
func IsWoven(m *il.Module) bool {
	return m.Flags&il.ModuleFlagWoven != 0
}

// Config configures weaving.
type Config struct {
	// Resolver loads the modules that define annotation types. When nil, a
	// resolver over SearchPaths and Store is created.
	Resolver    *resolve.Resolver
	Store       store.Store
	SearchPaths []string
	// Exclude leaves matching members untouched.
	Exclude MemberMatcher
	// ExcludeMembers are WildcardMatcher patterns added to Exclude.
	ExcludeMembers []string
	// Isolate rolls back a failing member and continues; failures are
	// collected in the report instead of aborting the run.
	Isolate bool
	// RegenerateMVID assigns a fresh module version id to a changed module.
	RegenerateMVID bool
	// Verify validates the module structure after weaving.
	Verify bool
}

func (cfg Config) resolver() *resolve.Resolver {
	if cfg.Resolver != nil {
		return cfg.Resolver
	}
	return resolve.New(resolve.Config{Store: cfg.Store, SearchPaths: cfg.SearchPaths})
}

func (cfg Config) engine(res *resolve.Resolver) *engine.Engine {
	exclude := cfg.Exclude
	if len(cfg.ExcludeMembers) > 0 {
		exclude = NewCompositeMatcher(cfg.Exclude, NewWildcardMatcher(cfg.ExcludeMembers))
	}
	return engine.New(engine.Config{
		Resolver:       res,
		Exclude:        exclude,
		Isolate:        cfg.Isolate,
		RegenerateMVID: cfg.RegenerateMVID,
		Verify:         cfg.Verify,
	})
}

// Weave instruments the annotated members of mod in place.
//
// Each annotated method gets its annotation instances constructed at entry,
// parameter Process hooks and PreMethod hooks called in declaration order,
// its returns collapsed into one exit, and its body wrapped so PostMethod
// hooks run on every exit and ExceptionMethod hooks run on faults, both in
// reverse declaration order. Annotated properties get Set hooks on setter
// entry and Get hooks before every getter return.
//
// A module that is already woven is rejected. Without Config.Isolate the
// first failing member aborts the run and the module must be discarded.
func Weave(mod *resolve.Module, cfg Config) (*Report, error) {
	return cfg.engine(cfg.resolver()).Weave(mod)
}

// WeaveModule registers m, located at path, with the configured resolver
// and weaves it.
func WeaveModule(m *il.Module, path string, cfg Config) (*Report, error) {
	res := cfg.resolver()
	return cfg.engine(res).Weave(res.Register(m, path))
}

// WeaveFile loads the module at path, weaves it and writes it back in place.
//
// The module's own directory is searched for referenced modules after the
// configured search paths. Nothing is written when weaving fails or leaves
// the module unchanged.
func WeaveFile(path string, cfg Config) (*Report, error) {
	st := cfg.Store
	if st == nil {
		st = store.NewFiles(false)
	}
	m, err := st.Load(path)
	if err != nil {
		return nil, err
	}
	if IsWoven(m) {
		return nil, errors.AlreadyWoven(m.Name)
	}

	cfg.Store = st
	res := cfg.resolver()
	mod := res.Register(m, path)
	res.AddSearchPath(mod.Dir)

	rep, err := cfg.engine(res).Weave(mod)
	if err != nil {
		return rep, err
	}
	if !rep.Changed() {
		Logger().Info("nothing to weave", zap.String("path", path))
		return rep, nil
	}
	if err := st.Save(m, path); err != nil {
		return rep, err
	}
	Logger().Info("module written",
		zap.String("path", path),
		zap.String("mvid", m.MVID.String()))
	return rep, nil
}
