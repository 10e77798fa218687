package errors

import (
	"errors"
	"strings"
	"testing"
)

func TestError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *Error
		contains []string
	}{
		{
			name: "full error",
			err: &Error{
				Phase:  PhaseWeave,
				Kind:   KindInvalidStream,
				Path:   []string{"Demo.ilm", "typedef"},
				Module: "Demo",
				Member: "Demo.Calc::Add",
				Detail: "anchor removed",
			},
			contains: []string{"[weave]", "invalid_stream", "Demo.ilm/typedef", "Demo Demo.Calc::Add", "- anchor removed"},
		},
		{
			name: "minimal error",
			err: &Error{
				Phase: PhaseResolve,
				Kind:  KindNotFound,
			},
			contains: []string{"[resolve]", "not_found"},
		},
		{
			name: "error with cause",
			err: &Error{
				Phase:  PhaseSave,
				Kind:   KindIO,
				Detail: "disk full",
				Cause:  errors.New("underlying error"),
			},
			contains: []string{"[save]", "io", ": disk full", "caused by", "underlying error"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := tt.err.Error()
			for _, s := range tt.contains {
				if !strings.Contains(msg, s) {
					t.Errorf("error message %q does not contain %q", msg, s)
				}
			}
		})
	}
}

func TestError_Is(t *testing.T) {
	err := UnsupportedOperand(1.5)

	if !errors.Is(err, &Error{Phase: PhaseCodegen, Kind: KindUnsupportedOperand}) {
		t.Error("Is should match same phase and kind")
	}
	if errors.Is(err, &Error{Phase: PhaseWeave, Kind: KindUnsupportedOperand}) {
		t.Error("Is should not match different phase")
	}
	if errors.Is(err, &Error{Phase: PhaseCodegen, Kind: KindNotFound}) {
		t.Error("Is should not match different kind")
	}
}

func TestError_Unwrap(t *testing.T) {
	cause := errors.New("root cause")
	err := Load("a.ilm", cause)
	if !errors.Is(err, cause) {
		t.Error("errors.Is did not reach cause")
	}
}

func TestBuilder(t *testing.T) {
	cause := errors.New("root")
	err := New(PhaseResolve, KindNotFound).
		Path("lib", "Aspects.ilm").
		Module("Demo").
		Member("Aspects.Log").
		Value(42).
		Cause(cause).
		Detail("searched %d locations", 3).
		Build()

	if err.Phase != PhaseResolve || err.Kind != KindNotFound {
		t.Errorf("Phase/Kind = %v/%v", err.Phase, err.Kind)
	}
	if len(err.Path) != 2 || err.Path[1] != "Aspects.ilm" {
		t.Errorf("Path = %v", err.Path)
	}
	if err.Module != "Demo" || err.Member != "Aspects.Log" {
		t.Errorf("Module/Member = %q/%q", err.Module, err.Member)
	}
	if err.Value != 42 {
		t.Errorf("Value = %v, want 42", err.Value)
	}
	if !errors.Is(err.Cause, cause) {
		t.Errorf("Cause = %v, want %v", err.Cause, cause)
	}
	if err.Detail != "searched 3 locations" {
		t.Errorf("Detail = %q", err.Detail)
	}
}

func TestConvenienceConstructors(t *testing.T) {
	tests := []struct {
		name  string
		err   *Error
		phase Phase
		kind  Kind
	}{
		{"Load", Load("x.ilm", errors.New("bad magic")), PhaseLoad, KindInvalidData},
		{"Save", Save("x.ilm", errors.New("read-only")), PhaseSave, KindIO},
		{"UnsupportedOperand", UnsupportedOperand(true), PhaseCodegen, KindUnsupportedOperand},
		{"InvalidStream", InvalidStream("anchor %d removed", 4), PhaseWeave, KindInvalidStream},
		{"NotFound", NotFound(PhaseResolve, "module", "Aspects"), PhaseResolve, KindNotFound},
		{"AlreadyWoven", AlreadyWoven("Demo"), PhaseWeave, KindAlreadyWoven},
		{"Unsupported", Unsupported(PhaseExecute, "opcode"), PhaseExecute, KindUnsupported},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err.Phase != tt.phase || tt.err.Kind != tt.kind {
				t.Errorf("got %s/%s, want %s/%s", tt.err.Phase, tt.err.Kind, tt.phase, tt.kind)
			}
			if tt.err.Error() == "" {
				t.Error("empty message")
			}
		})
	}
}

func TestInMember(t *testing.T) {
	inner := UnsupportedOperand(2.5)
	err := InMember("Demo", "Demo.Calc::Add", inner)
	if err.Kind != KindUnsupportedOperand || err.Member != "Demo.Calc::Add" {
		t.Errorf("structured cause not preserved: %+v", err)
	}
	if inner.Member != "" {
		t.Error("InMember mutated its argument")
	}

	plain := InMember("Demo", "Demo.Calc::Add", errors.New("boom"))
	if plain.Phase != PhaseWeave || !strings.Contains(plain.Error(), "boom") {
		t.Errorf("plain cause: %v", plain)
	}
}

func TestUnresolvedReferencesError(t *testing.T) {
	err := NewUnresolvedReferencesError([]string{
		"Aspects#Aspects.Log",
		"Aspects#Aspects.Timer",
		"Core#System.Object",
	})
	msg := err.Error()
	for _, want := range []string{"unresolved 3 type reference(s)", "  Aspects:", "    - Aspects.Timer", "  Core:"} {
		if !strings.Contains(msg, want) {
			t.Errorf("message %q does not contain %q", msg, want)
		}
	}
	if !errors.Is(err, &UnresolvedReferencesError{}) {
		t.Error("errors.Is should match type")
	}
	if got := (&UnresolvedReferencesError{}).Error(); !strings.Contains(got, "no references") {
		t.Errorf("empty: %q", got)
	}
}
