package errors

import (
	"fmt"
	"strings"
)

// Phase indicates where in processing the error occurred
type Phase string

const (
	PhaseLoad     Phase = "load"     // module parsing
	PhaseSave     Phase = "save"     // module serialization and write
	PhaseResolve  Phase = "resolve"  // cross-module reference resolution
	PhaseWeave    Phase = "weave"    // per-member instrumentation
	PhaseCodegen  Phase = "codegen"  // instruction synthesis
	PhaseValidate Phase = "validate" // structural validation
	PhaseExecute  Phase = "execute"  // reference interpreter
	PhaseConfig   Phase = "config"   // configuration loading
)

// Kind categorizes the error
type Kind string

const (
	KindInvalidData        Kind = "invalid_data"
	KindUnsupported        Kind = "unsupported"
	KindUnsupportedOperand Kind = "unsupported_operand"
	KindIO                 Kind = "io"
	KindNotFound           Kind = "not_found"
	KindInvalidStream      Kind = "invalid_stream"
	KindInvalidInput       Kind = "invalid_input"
	KindAlreadyWoven       Kind = "already_woven"
	KindUnresolved         Kind = "unresolved"
)

// Error is the structured error type used throughout the weaver
type Error struct {
	Value  any
	Cause  error
	Phase  Phase
	Kind   Kind
	Module string
	Member string
	Detail string
	Path   []string
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteByte('[')
	b.WriteString(string(e.Phase))
	b.WriteString("] ")
	b.WriteString(string(e.Kind))

	if len(e.Path) > 0 {
		b.WriteString(" at ")
		b.WriteString(strings.Join(e.Path, "/"))
	}

	if e.Module != "" || e.Member != "" {
		b.WriteString(": ")
		switch {
		case e.Module != "" && e.Member != "":
			b.WriteString(e.Module)
			b.WriteString(" ")
			b.WriteString(e.Member)
		case e.Module != "":
			b.WriteString(e.Module)
		default:
			b.WriteString(e.Member)
		}
	}

	if e.Detail != "" {
		if e.Module != "" || e.Member != "" {
			b.WriteString(" - ")
		} else {
			b.WriteString(": ")
		}
		b.WriteString(e.Detail)
	}

	if e.Cause != nil {
		b.WriteString(" (caused by: ")
		b.WriteString(e.Cause.Error())
		b.WriteByte(')')
	}

	return b.String()
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Phase == t.Phase && e.Kind == t.Kind
	}
	return false
}

// Builder provides structured error construction
type Builder struct {
	err Error
}

// New creates a new error builder
func New(phase Phase, kind Kind) *Builder {
	return &Builder{
		err: Error{
			Phase: phase,
			Kind:  kind,
		},
	}
}

// Path sets the location path (file, section, instruction)
func (b *Builder) Path(path ...string) *Builder {
	b.err.Path = path
	return b
}

// Module sets the module name
func (b *Builder) Module(name string) *Builder {
	b.err.Module = name
	return b
}

// Member sets the qualified member name
func (b *Builder) Member(name string) *Builder {
	b.err.Member = name
	return b
}

// Value sets the offending value
func (b *Builder) Value(v any) *Builder {
	b.err.Value = v
	return b
}

// Cause sets the underlying error
func (b *Builder) Cause(err error) *Builder {
	b.err.Cause = err
	return b
}

// Detail sets the human-readable detail message
func (b *Builder) Detail(msg string, args ...any) *Builder {
	if len(args) > 0 {
		b.err.Detail = fmt.Sprintf(msg, args...)
	} else {
		b.err.Detail = msg
	}
	return b
}

// Build returns the constructed error
func (b *Builder) Build() *Error {
	return &b.err
}

// Convenience constructors for common error patterns

// Load creates a module loading error
func Load(path string, cause error) *Error {
	return &Error{
		Phase:  PhaseLoad,
		Kind:   KindInvalidData,
		Path:   []string{path},
		Detail: "cannot load module",
		Cause:  cause,
	}
}

// Save creates a module write error
func Save(path string, cause error) *Error {
	return &Error{
		Phase:  PhaseSave,
		Kind:   KindIO,
		Path:   []string{path},
		Detail: "cannot save module",
		Cause:  cause,
	}
}

// UnsupportedOperand creates an error for a constant that cannot be loaded inline
func UnsupportedOperand(value any) *Error {
	return &Error{
		Phase:  PhaseCodegen,
		Kind:   KindUnsupportedOperand,
		Detail: fmt.Sprintf("cannot synthesize constant load for %T", value),
		Value:  value,
	}
}

// InvalidStream creates an instruction stream editing error
func InvalidStream(detail string, args ...any) *Error {
	return &Error{
		Phase:  PhaseWeave,
		Kind:   KindInvalidStream,
		Detail: fmt.Sprintf(detail, args...),
	}
}

// Unsupported creates an unsupported operation error
func Unsupported(phase Phase, what string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindUnsupported,
		Detail: what,
	}
}

// NotFound creates a not-found error
func NotFound(phase Phase, what, name string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNotFound,
		Detail: fmt.Sprintf("%s %q not found", what, name),
	}
}

// InvalidData creates an invalid data error
func InvalidData(phase Phase, path []string, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidData,
		Path:   path,
		Detail: detail,
	}
}

// InvalidInput creates an invalid input error
func InvalidInput(phase Phase, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidInput,
		Detail: detail,
	}
}

// AlreadyWoven reports an attempt to instrument a module twice
func AlreadyWoven(module string) *Error {
	return &Error{
		Phase:  PhaseWeave,
		Kind:   KindAlreadyWoven,
		Module: module,
		Detail: "module is already woven; re-weaving is not supported",
	}
}

// Wrap wraps an existing error with additional context
func Wrap(phase Phase, kind Kind, cause error, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   kind,
		Detail: detail,
		Cause:  cause,
	}
}

// InMember wraps cause as a weaving failure of member in module.
// Structured causes keep their phase and kind.
func InMember(module, member string, cause error) *Error {
	if e, ok := cause.(*Error); ok {
		out := *e
		out.Module = module
		out.Member = member
		return &out
	}
	return &Error{
		Phase:  PhaseWeave,
		Kind:   KindInvalidData,
		Module: module,
		Member: member,
		Cause:  cause,
	}
}

// UnresolvedReference is a type reference that no search location provides
type UnresolvedReference struct {
	Scope string // referenced module name
	Type  string // qualified type name
}

// UnresolvedReferencesError is returned when type references cannot be resolved
type UnresolvedReferencesError struct {
	Refs []UnresolvedReference
}

// NewUnresolvedReferencesError creates an error from "module#type" keys
func NewUnresolvedReferencesError(keys []string) *UnresolvedReferencesError {
	result := &UnresolvedReferencesError{
		Refs: make([]UnresolvedReference, 0, len(keys)),
	}
	for _, key := range keys {
		scope, typ := parseRefKey(key)
		result.Refs = append(result.Refs, UnresolvedReference{Scope: scope, Type: typ})
	}
	return result
}

func parseRefKey(key string) (scope, typ string) {
	s, t, found := strings.Cut(key, "#")
	if found {
		return s, t
	}
	return key, ""
}

func (e *UnresolvedReferencesError) Error() string {
	if len(e.Refs) == 0 {
		return "[resolve] unresolved: no references specified"
	}

	var b strings.Builder
	b.WriteString(fmt.Sprintf("unresolved %d type reference(s):\n", len(e.Refs)))

	// Group by module for cleaner output
	byScope := make(map[string][]string)
	var order []string
	for _, ref := range e.Refs {
		if _, exists := byScope[ref.Scope]; !exists {
			order = append(order, ref.Scope)
		}
		byScope[ref.Scope] = append(byScope[ref.Scope], ref.Type)
	}

	for _, scope := range order {
		b.WriteString("\n  ")
		b.WriteString(scope)
		b.WriteString(":\n")
		for _, typ := range byScope[scope] {
			b.WriteString("    - ")
			b.WriteString(typ)
			b.WriteByte('\n')
		}
	}

	return strings.TrimSuffix(b.String(), "\n")
}

// Is reports whether target matches this error type
func (e *UnresolvedReferencesError) Is(target error) bool {
	_, ok := target.(*UnresolvedReferencesError)
	return ok
}
