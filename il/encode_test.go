package il_test

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/gofrs/uuid"

	"github.com/wippyai/il-weaver/il"
)

func sampleModule() *il.Module {
	m := &il.Module{
		Name: "Demo",
		MVID: uuid.Must(uuid.FromString("6ba7b810-9dad-11d1-80b4-00c04fd430c8")),
	}
	scope := m.ImportModuleRef("Aspects")
	m.TypeRefs = append(m.TypeRefs, il.TypeRef{Namespace: "Aspects", Name: "Log", Scope: scope})
	logType := il.MakeToken(il.TableTypeRef, 1)
	ctor := m.ImportMemberRef(logType, ".ctor", il.MethodSig{HasThis: true, Return: il.SigVoid, Params: []il.TypeSig{il.SigString}})

	calc := &il.TypeDef{
		Namespace: "Demo",
		Name:      "Calc",
		Fields:    []il.FieldDef{{Name: "total", Type: il.SigI4}},
	}
	calc.Methods = append(calc.Methods,
		&il.MethodDef{
			Name:        "Add",
			Flags:       il.MethodFlagStatic,
			Sig:         il.MethodSig{Return: il.SigI4, Params: []il.TypeSig{il.SigI4, il.SigI4}},
			Params:      []il.ParamDef{{Name: "a"}, {Name: "b"}},
			Annotations: []il.Annotation{{Ctor: ctor, Args: il.MustAnnotationArgs("add")}},
			Body: &il.MethodBody{
				MaxStack: 2,
				Code: []il.Instruction{
					il.Arg(il.OpLdarg, 0),
					il.Arg(il.OpLdarg, 1),
					il.Op(il.OpAdd),
					il.Op(il.OpRet),
				},
			},
		},
		&il.MethodDef{
			Name:   "Max",
			Flags:  il.MethodFlagStatic,
			Sig:    il.MethodSig{Return: il.SigI4, Params: []il.TypeSig{il.SigI4, il.SigI4}},
			Params: []il.ParamDef{{Name: "a"}, {Name: "b"}},
			Body: &il.MethodBody{
				MaxStack: 2,
				Code: []il.Instruction{
					il.Arg(il.OpLdarg, 0),
					il.Arg(il.OpLdarg, 1),
					il.Branch(il.OpBge, 5),
					il.Arg(il.OpLdarg, 1),
					il.Op(il.OpRet),
					il.Arg(il.OpLdarg, 0),
					il.Op(il.OpRet),
				},
			},
		},
		&il.MethodDef{
			Name:  "Guard",
			Flags: il.MethodFlagStatic,
			Sig:   il.MethodSig{Return: il.SigVoid},
			Body: &il.MethodBody{
				MaxStack:   1,
				InitLocals: true,
				Locals:     []il.TypeSig{il.SigObject, il.ArrayOf(il.SigObject), il.ByRefOf(il.SigI8)},
				Code: []il.Instruction{
					il.Ldstr("x"),
					il.Op(il.OpPop),
					il.Branch(il.OpLeave, 5),
					il.Op(il.OpNop),
					il.Op(il.OpEndfinally),
					{Opcode: il.OpLdcR8, Imm: il.R8Imm{Value: 1.25}},
					il.Op(il.OpPop),
					il.Op(il.OpRet),
				},
				Handlers: []il.ExceptionHandler{
					{Kind: il.HandlerFinally, TryStart: 0, TryEnd: 3, HandlerStart: 3, HandlerEnd: 5},
				},
			},
		},
		&il.MethodDef{
			Name:  "Abstract",
			Flags: il.MethodFlagAbstract,
			Sig:   il.MethodSig{HasThis: true, Return: il.SigVoid},
		},
	)
	calc.Properties = []*il.PropertyDef{{
		Name:   "Total",
		Type:   il.SigI4,
		Getter: il.MakeToken(il.TableMethodDef, 1),
	}}
	m.Types = []*il.TypeDef{calc}
	m.CustomSections = []il.CustomSection{{Name: "build", Data: []byte("v1")}}
	return m
}

func TestEncodeHeaderOnly(t *testing.T) {
	m := &il.Module{Name: "Empty"}
	data, err := m.Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if !bytes.Equal(data[:4], []byte{0x00, 'I', 'L', 'M'}) {
		t.Errorf("invalid magic: % x", data[:4])
	}
	if !bytes.Equal(data[4:8], []byte{0x01, 0x00, 0x00, 0x00}) {
		t.Errorf("invalid version: % x", data[4:8])
	}

	parsed, err := il.ParseModule(data)
	if err != nil {
		t.Fatalf("ParseModule: %v", err)
	}
	if parsed.Name != "Empty" {
		t.Errorf("name: got %q", parsed.Name)
	}
}

func TestEncodeRoundTrip(t *testing.T) {
	m := sampleModule()
	data, err := m.Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	parsed, err := il.ParseModule(data)
	if err != nil {
		t.Fatalf("ParseModule: %v", err)
	}
	if parsed.MVID != m.MVID {
		t.Errorf("MVID: got %s, want %s", parsed.MVID, m.MVID)
	}
	if len(parsed.Types) != 1 || len(parsed.Types[0].Methods) != 4 {
		t.Fatalf("unexpected shape: %d types", len(parsed.Types))
	}

	add := parsed.Types[0].Methods[0]
	if len(add.Annotations) != 1 {
		t.Fatalf("Add annotations: got %d", len(add.Annotations))
	}
	args, err := il.DecodeAnnotationArgs(add.Annotations[0].Args)
	if err != nil {
		t.Fatalf("DecodeAnnotationArgs: %v", err)
	}
	if len(args) != 1 || args[0] != "add" {
		t.Errorf("annotation args: got %v", args)
	}

	guard := parsed.Types[0].Methods[2]
	if !guard.Body.InitLocals || len(guard.Body.Handlers) != 1 {
		t.Errorf("Guard body not preserved: %+v", guard.Body)
	}
	if got := guard.Body.Code[5].Imm; got != (il.R8Imm{Value: 1.25}) {
		t.Errorf("ldc.r8 immediate: got %v", got)
	}
	if parsed.Types[0].Methods[3].Body != nil {
		t.Error("abstract method gained a body")
	}

	again, err := parsed.Encode()
	if err != nil {
		t.Fatalf("re-Encode: %v", err)
	}
	if !bytes.Equal(data, again) {
		t.Error("encode(parse(x)) differs from x")
	}
}

func TestParseErrors(t *testing.T) {
	good, err := sampleModule().Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	badMagic := append([]byte{}, good...)
	badMagic[1] = 'X'
	if _, err := il.ParseModule(badMagic); !errors.Is(err, il.ErrInvalidMagic) {
		t.Errorf("bad magic: got %v", err)
	}

	badVersion := append([]byte{}, good...)
	badVersion[4] = 9
	if _, err := il.ParseModule(badVersion); !errors.Is(err, il.ErrInvalidVersion) {
		t.Errorf("bad version: got %v", err)
	}

	if _, err := il.ParseModule(good[:len(good)-3]); err == nil {
		t.Error("expected error for truncated module")
	}

	headerless := append([]byte{}, good[:8]...)
	if _, err := il.ParseModule(headerless); !errors.Is(err, il.ErrMissingHeader) {
		t.Errorf("headerless: got %v", err)
	}
}

func TestParseSectionOrder(t *testing.T) {
	m := &il.Module{Name: "A"}
	data, err := m.Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	// Duplicate the header section.
	dup := append(append([]byte{}, data...), data[8:]...)
	_, err = il.ParseModule(dup)
	if err == nil || !strings.Contains(err.Error(), "out of order") {
		t.Errorf("expected ordering error, got %v", err)
	}
}

func TestEncodeRejectsMismatchedImmediate(t *testing.T) {
	m := sampleModule()
	m.Types[0].Methods[0].Body.Code[0] = il.Instruction{Opcode: il.OpLdarg, Imm: il.I4Imm{Value: 1}}
	if _, err := m.Encode(); err == nil {
		t.Error("expected error for mismatched immediate")
	}
}

func TestTokens(t *testing.T) {
	tok := il.MakeToken(il.TableMethodDef, 3)
	if tok.Table() != il.TableMethodDef || tok.Row() != 3 {
		t.Errorf("token parts: table=0x%02x row=%d", tok.Table(), tok.Row())
	}
	if !il.MakeToken(il.TableTypeDef, 0).IsNil() {
		t.Error("row 0 should be nil")
	}

	m := sampleModule()
	md, td, ok := m.MethodByToken(il.MakeToken(il.TableMethodDef, 2))
	if !ok || md.Name != "Max" || td.Name != "Calc" {
		t.Errorf("MethodByToken: got %v %v %v", md, td, ok)
	}
	if got := m.MethodToken(md); got != il.MakeToken(il.TableMethodDef, 2) {
		t.Errorf("MethodToken: got %s", got)
	}
	if got := m.FieldToken(td, "total"); got != il.MakeToken(il.TableField, 1) {
		t.Errorf("FieldToken: got %s", got)
	}
	if got := m.MethodName(m.Types[0].Methods[0].Annotations[0].Ctor); got != "[Aspects]Aspects.Log::.ctor" {
		t.Errorf("MethodName: got %q", got)
	}
}

func TestImportDeduplicates(t *testing.T) {
	m := sampleModule()
	before := len(m.MemberRefs)
	sig := il.MethodSig{HasThis: true, Return: il.SigVoid, Params: []il.TypeSig{il.SigString}}
	tok := m.ImportMemberRef(m.ImportTypeRef("Aspects", "Aspects", "Log"), ".ctor", sig)
	if len(m.MemberRefs) != before {
		t.Errorf("MemberRefs grew from %d to %d", before, len(m.MemberRefs))
	}
	if tok != il.MakeToken(il.TableMemberRef, 1) {
		t.Errorf("token: got %s", tok)
	}
	if got := m.ImportTypeRef("Demo", "Demo", "Calc"); got != il.MakeToken(il.TableTypeDef, 1) {
		t.Errorf("own type should resolve to TypeDef, got %s", got)
	}
}
