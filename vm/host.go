package vm

import (
	"reflect"
	"sort"
	"sync"

	"github.com/wippyai/il-weaver/errors"
)

// HostFunc implements a method outside of any loaded module.
// Returning a *Fault raises an exception in the calling code; any other error
// aborts execution.
type HostFunc func(m *Machine, args []Value) (Value, error)

// HostType is a struct-based host type. Every exported method with the
// HostFunc shape is bound as "<Namespace>::<Method>".
type HostType interface {
	// Namespace returns the qualified type name, e.g. "Host.Trace".
	Namespace() string
}

// Host binds qualified method names ("Namespace.Type::Method") to Go
// functions. Constructors are bound as "Namespace.Type::.ctor" and return the
// new instance.
type Host struct {
	funcs map[string]HostFunc
	mu    sync.RWMutex
}

// NewHost creates an empty host registry.
func NewHost() *Host {
	return &Host{funcs: make(map[string]HostFunc)}
}

// Register binds name to fn, replacing any previous binding.
func (h *Host) Register(name string, fn HostFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.funcs[name] = fn
}

var hostFuncType = reflect.TypeOf(HostFunc(nil))

// RegisterType binds the methods of t.
func (h *Host) RegisterType(t HostType) error {
	ns := t.Namespace()
	if ns == "" {
		return errors.InvalidInput(errors.PhaseExecute, "host type namespace cannot be empty")
	}

	rv := reflect.ValueOf(t)
	rt := rv.Type()

	h.mu.Lock()
	defer h.mu.Unlock()
	bound := 0
	for i := 0; i < rt.NumMethod(); i++ {
		method := rt.Method(i)
		if !method.IsExported() || method.Name == "Namespace" {
			continue
		}
		fn := rv.Method(i)
		if !fn.Type().ConvertibleTo(hostFuncType) {
			continue
		}
		h.funcs[ns+"::"+method.Name] = fn.Convert(hostFuncType).Interface().(HostFunc)
		bound++
	}
	if bound == 0 {
		return errors.InvalidInput(errors.PhaseExecute, "host type "+ns+" has no bindable methods")
	}
	return nil
}

// Lookup returns the function bound to name.
func (h *Host) Lookup(name string) (HostFunc, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	fn, ok := h.funcs[name]
	return fn, ok
}

// Names returns the bound names in sorted order.
func (h *Host) Names() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	names := make([]string, 0, len(h.funcs))
	for n := range h.funcs {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
