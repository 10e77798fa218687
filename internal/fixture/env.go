package fixture

import (
	"github.com/wippyai/il-weaver/resolve"
	"github.com/wippyai/il-weaver/store"
	"github.com/wippyai/il-weaver/vm"
)

// Dir is the search location the fixture modules are stored under.
const Dir = "lib"

// Env holds the fixture modules in an in-memory store, loaded through a
// resolver, plus a machine whose host records hook calls.
type Env struct {
	Store    *store.Memory
	Resolver *resolve.Resolver
	Demo     *resolve.Module
	Machine  *vm.Machine
	Recorder *Recorder
}

// NewEnv encodes both modules and loads Demo back from the store.
func NewEnv() (*Env, error) {
	mem := store.NewMemory()
	if err := Write(mem, Dir); err != nil {
		return nil, err
	}
	res := resolve.New(resolve.Config{Store: mem, SearchPaths: []string{Dir}})
	demo, err := res.LoadModule(DemoModule)
	if err != nil {
		return nil, err
	}
	host := vm.NewHost()
	rec, err := NewRecorder(host)
	if err != nil {
		return nil, err
	}
	return &Env{
		Store:    mem,
		Resolver: res,
		Demo:     demo,
		Machine:  vm.New(vm.Config{Resolver: res, Host: host}),
		Recorder: rec,
	}, nil
}

// Run invokes a method of Demo.
func (e *Env) Run(typeName, method string, args ...vm.Value) (vm.Value, error) {
	return e.Machine.Invoke(e.Demo, typeName, method, args...)
}
