package fixture

import (
	"fmt"

	"github.com/wippyai/il-weaver/vm"
)

// Event is one call of Host.Trace::Hook.
type Event struct {
	Tag     string
	Phase   string
	Name    string
	Payload vm.Value
}

func (e Event) String() string {
	return e.Tag + "." + e.Phase
}

// Recorder implements Host.Trace. Hook calls are kept as events, and both
// hooks and marks are appended to Log in call order ("tag.phase" and
// "mark:name").
type Recorder struct {
	Events []Event
	Log    []string
}

// NewRecorder creates a recorder bound into host.
func NewRecorder(host *vm.Host) (*Recorder, error) {
	r := &Recorder{}
	if err := host.RegisterType(r); err != nil {
		return nil, err
	}
	return r, nil
}

// Namespace implements vm.HostType.
func (r *Recorder) Namespace() string { return TraceType }

// Hook records a hook report.
func (r *Recorder) Hook(_ *vm.Machine, args []vm.Value) (vm.Value, error) {
	e := Event{Tag: text(args[0]), Phase: text(args[1]), Name: text(args[2]), Payload: args[3]}
	r.Events = append(r.Events, e)
	r.Log = append(r.Log, e.String())
	return nil, nil
}

// Mark records that a method body ran.
func (r *Recorder) Mark(_ *vm.Machine, args []vm.Value) (vm.Value, error) {
	r.Log = append(r.Log, "mark:"+text(args[0]))
	return nil, nil
}

// Phase returns the events of the given phase in call order.
func (r *Recorder) Phase(phase string) []Event {
	var out []Event
	for _, e := range r.Events {
		if e.Phase == phase {
			out = append(out, e)
		}
	}
	return out
}

// Reset forgets everything recorded so far.
func (r *Recorder) Reset() {
	r.Events = nil
	r.Log = nil
}

// Args returns the unboxed elements of an argument array payload, or nil when
// the payload is not an array.
func Args(payload vm.Value) []vm.Value {
	arr, ok := payload.(*vm.Array)
	if !ok || arr == nil {
		return nil
	}
	out := make([]vm.Value, len(arr.Elems))
	for i, v := range arr.Elems {
		out[i] = vm.Unbox(v)
	}
	return out
}

func text(v vm.Value) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	}
	return fmt.Sprint(v)
}
