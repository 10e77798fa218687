package vm_test

import (
	stderrors "errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wippyai/il-weaver/errors"
	"github.com/wippyai/il-weaver/il"
	"github.com/wippyai/il-weaver/internal/fixture"
	"github.com/wippyai/il-weaver/resolve"
	"github.com/wippyai/il-weaver/vm"
)

func newEnv(t *testing.T) *fixture.Env {
	t.Helper()
	env, err := fixture.NewEnv()
	require.NoError(t, err)
	return env
}

func TestFixtureMethods(t *testing.T) {
	env := newEnv(t)

	tests := []struct {
		typ    string
		method string
		args   []vm.Value
		want   vm.Value
	}{
		{fixture.Calc, "Classify", []vm.Value{int32(-3)}, int32(-1)},
		{fixture.Calc, "Classify", []vm.Value{int32(0)}, int32(0)},
		{fixture.Calc, "Classify", []vm.Value{int32(7)}, int32(1)},
		{fixture.Calc, "Format", []vm.Value{int32(2), "label"}, "label"},
		{fixture.Calc, "Plain", []vm.Value{int32(4)}, int32(4)},
		{fixture.Counter, "Run", nil, int32(5)},
		{fixture.Settings, "RunValue", nil, "v"},
		{fixture.Settings, "RunLimit", nil, int32(7)},
	}
	for _, tt := range tests {
		t.Run(tt.method, func(t *testing.T) {
			got, err := env.Run(tt.typ, tt.method, tt.args...)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
	assert.Empty(t, env.Recorder.Events)
}

func TestFixtureMarks(t *testing.T) {
	env := newEnv(t)

	_, err := env.Run(fixture.Calc, "Stacked")
	require.NoError(t, err)
	_, err = env.Run(fixture.Calc, "Checked", "x")
	require.NoError(t, err)
	_, err = env.Run(fixture.Calc, "CallByRefs")
	require.NoError(t, err)

	assert.Equal(t, []string{"mark:Stacked", "mark:Checked"}, env.Recorder.Log)
}

func TestUnhandledException(t *testing.T) {
	env := newEnv(t)

	_, err := env.Run(fixture.Calc, "Fail", int32(1))
	require.NoError(t, err)

	_, err = env.Run(fixture.Calc, "Fail", int32(0))
	var fault *vm.Fault
	require.True(t, stderrors.As(err, &fault), "got %v", err)
	assert.Equal(t, "boom", fault.Value)
	assert.Equal(t, []string{"Demo.Calc::Fail"}, fault.Trace)
}

// testModule builds a single-type module "T" and registers it.
type testModule struct {
	mod  *il.Module
	typ  *il.TypeDef
	res  *resolve.Resolver
	host *vm.Host
}

func newTestModule() *testModule {
	m := &il.Module{Name: "T"}
	td := &il.TypeDef{Namespace: "T", Name: "M"}
	m.Types = []*il.TypeDef{td}
	return &testModule{mod: m, typ: td, res: resolve.New(resolve.Config{}), host: vm.NewHost()}
}

func (tm *testModule) add(name string, sig il.MethodSig, body *il.MethodBody) *il.MethodDef {
	flags := il.MethodFlagStatic
	if sig.HasThis {
		flags = 0
	}
	md := &il.MethodDef{Name: name, Flags: flags, Sig: sig, Body: body}
	tm.typ.Methods = append(tm.typ.Methods, md)
	return md
}

func (tm *testModule) run(t *testing.T, method string, args ...vm.Value) (vm.Value, error) {
	t.Helper()
	mod := tm.res.Register(tm.mod, "/t/T.ilm")
	machine := vm.New(vm.Config{Resolver: tm.res, Host: tm.host, MaxDepth: 32})
	return machine.Invoke(mod, "T.M", method, args...)
}

var sigI4 = il.MethodSig{Return: il.SigI4}

func TestFinallyRunsOnLeave(t *testing.T) {
	tm := newTestModule()
	tm.add("Run", sigI4, &il.MethodBody{
		Locals: []il.TypeSig{il.SigI4},
		Code: []il.Instruction{
			il.LdcI4(1),
			il.Local(il.OpStloc, 0),
			il.Branch(il.OpLeave, 8),
			il.Local(il.OpLdloc, 0), // finally
			il.LdcI4(10),
			il.Op(il.OpAdd),
			il.Local(il.OpStloc, 0),
			il.Op(il.OpEndfinally),
			il.Local(il.OpLdloc, 0),
			il.Op(il.OpRet),
		},
		Handlers: []il.ExceptionHandler{
			{Kind: il.HandlerFinally, TryStart: 0, TryEnd: 3, HandlerStart: 3, HandlerEnd: 8},
		},
	})

	got, err := tm.run(t, "Run")
	require.NoError(t, err)
	assert.Equal(t, int32(11), got)
}

func TestCatchHandlesThrow(t *testing.T) {
	tm := newTestModule()
	tm.add("Run", sigI4, &il.MethodBody{
		Code: []il.Instruction{
			il.Ldstr("x"),
			il.Op(il.OpThrow),
			il.Op(il.OpPop), // catch
			il.Branch(il.OpLeave, 4),
			il.LdcI4(42),
			il.Op(il.OpRet),
		},
		Handlers: []il.ExceptionHandler{
			{Kind: il.HandlerCatch, TryStart: 0, TryEnd: 2, HandlerStart: 2, HandlerEnd: 4},
		},
	})

	got, err := tm.run(t, "Run")
	require.NoError(t, err)
	assert.Equal(t, int32(42), got)
}

func TestRethrowRunsEnclosingFinally(t *testing.T) {
	tm := newTestModule()
	trace := tm.mod.ImportTypeRef("Host", "Host", "Trace")
	mark := tm.mod.ImportMemberRef(trace, "Mark", il.MethodSig{Return: il.SigVoid, Params: []il.TypeSig{il.SigString}})
	var marks []vm.Value
	tm.host.Register("Host.Trace::Mark", func(_ *vm.Machine, args []vm.Value) (vm.Value, error) {
		marks = append(marks, args[0])
		return nil, nil
	})
	tm.add("Run", il.MethodSig{Return: il.SigVoid}, &il.MethodBody{
		Code: []il.Instruction{
			il.Ldstr("e"),
			il.Op(il.OpThrow),
			il.Op(il.OpPop), // catch
			il.Op(il.OpRethrow),
			il.Ldstr("fin"), // finally
			il.WithToken(il.OpCall, mark),
			il.Op(il.OpEndfinally),
			il.Op(il.OpRet),
		},
		Handlers: []il.ExceptionHandler{
			{Kind: il.HandlerCatch, TryStart: 0, TryEnd: 2, HandlerStart: 2, HandlerEnd: 4},
			{Kind: il.HandlerFinally, TryStart: 0, TryEnd: 4, HandlerStart: 4, HandlerEnd: 7},
		},
	})

	_, err := tm.run(t, "Run")
	var fault *vm.Fault
	require.True(t, stderrors.As(err, &fault), "got %v", err)
	assert.Equal(t, "e", fault.Value)
	assert.Equal(t, []vm.Value{"fin"}, marks)
}

func TestByRefArguments(t *testing.T) {
	tm := newTestModule()
	set := tm.add("Set", il.MethodSig{Return: il.SigVoid, Params: []il.TypeSig{il.ByRefOf(il.SigI4)}}, &il.MethodBody{
		Code: []il.Instruction{
			il.Arg(il.OpLdarg, 0),
			il.LdcI4(9),
			il.Op(il.OpStindI4),
			il.Op(il.OpRet),
		},
	})
	tm.add("Run", sigI4, &il.MethodBody{
		Locals: []il.TypeSig{il.SigI4},
		Code: []il.Instruction{
			il.Local(il.OpLdloca, 0),
			il.WithToken(il.OpCall, tm.mod.MethodToken(set)),
			il.Local(il.OpLdloc, 0),
			il.Op(il.OpRet),
		},
	})

	got, err := tm.run(t, "Run")
	require.NoError(t, err)
	assert.Equal(t, int32(9), got)
}

func TestVirtualDispatch(t *testing.T) {
	m := &il.Module{Name: "T"}
	ctorSig := il.MethodSig{HasThis: true, Return: il.SigVoid}
	nameSig := il.MethodSig{HasThis: true, Return: il.SigString}
	retBody := func(instrs ...il.Instruction) *il.MethodBody {
		return &il.MethodBody{Code: append(instrs, il.Op(il.OpRet))}
	}
	base := &il.TypeDef{Namespace: "T", Name: "Base", Methods: []*il.MethodDef{
		{Name: ".ctor", Flags: il.MethodFlagCtor, Sig: ctorSig, Body: retBody()},
		{Name: "Name", Flags: il.MethodFlagVirtual, Sig: nameSig, Body: retBody(il.Ldstr("base"))},
	}}
	derived := &il.TypeDef{Namespace: "T", Name: "Derived", Methods: []*il.MethodDef{
		{Name: ".ctor", Flags: il.MethodFlagCtor, Sig: ctorSig, Body: retBody()},
		{Name: "Name", Flags: il.MethodFlagVirtual, Sig: nameSig, Body: retBody(il.Ldstr("derived"))},
	}}
	entry := &il.TypeDef{Namespace: "T", Name: "M"}
	m.Types = []*il.TypeDef{base, derived, entry}
	derived.Base = m.TypeToken(base)
	entry.Methods = []*il.MethodDef{
		{Name: "Run", Flags: il.MethodFlagStatic, Sig: il.MethodSig{Return: il.SigString}, Body: retBody(
			il.WithToken(il.OpNewobj, m.MethodToken(derived.Methods[0])),
			il.WithToken(il.OpCallvirt, m.MethodToken(base.Methods[1])),
		)},
		{Name: "Direct", Flags: il.MethodFlagStatic, Sig: il.MethodSig{Return: il.SigString}, Body: retBody(
			il.WithToken(il.OpNewobj, m.MethodToken(derived.Methods[0])),
			il.WithToken(il.OpCall, m.MethodToken(base.Methods[1])),
		)},
		{Name: "Null", Flags: il.MethodFlagStatic, Sig: il.MethodSig{Return: il.SigString}, Body: retBody(
			il.Op(il.OpLdnull),
			il.WithToken(il.OpCallvirt, m.MethodToken(base.Methods[1])),
		)},
	}

	res := resolve.New(resolve.Config{})
	mod := res.Register(m, "/t/T.ilm")
	machine := vm.New(vm.Config{Resolver: res})

	got, err := machine.Invoke(mod, "T.M", "Run")
	require.NoError(t, err)
	assert.Equal(t, "derived", got)

	got, err = machine.Invoke(mod, "T.M", "Direct")
	require.NoError(t, err)
	assert.Equal(t, "base", got)

	_, err = machine.Invoke(mod, "T.M", "Null")
	var fault *vm.Fault
	require.True(t, stderrors.As(err, &fault), "got %v", err)
	exc, ok := fault.Value.(*vm.Exception)
	require.True(t, ok)
	assert.Equal(t, vm.NullReference, exc.Name)
}

func TestCallDepthLimit(t *testing.T) {
	tm := newTestModule()
	loop := tm.add("Loop", il.MethodSig{Return: il.SigVoid}, &il.MethodBody{})
	loop.Body.Code = []il.Instruction{
		il.WithToken(il.OpCall, tm.mod.MethodToken(loop)),
		il.Op(il.OpRet),
	}

	_, err := tm.run(t, "Loop")
	var fault *vm.Fault
	require.True(t, stderrors.As(err, &fault), "got %v", err)
	exc, ok := fault.Value.(*vm.Exception)
	require.True(t, ok)
	assert.Equal(t, vm.StackOverflow, exc.Name)
	assert.Len(t, fault.Trace, 32)
}

func TestUnboundCall(t *testing.T) {
	tm := newTestModule()
	ref := tm.mod.ImportTypeRef("Nowhere", "Nowhere", "X")
	call := tm.mod.ImportMemberRef(ref, "Y", il.MethodSig{Return: il.SigVoid})
	tm.add("Run", il.MethodSig{Return: il.SigVoid}, &il.MethodBody{
		Code: []il.Instruction{il.WithToken(il.OpCall, call), il.Op(il.OpRet)},
	})

	_, err := tm.run(t, "Run")
	require.Error(t, err)
	assert.True(t, stderrors.Is(err, errors.New(errors.PhaseExecute, errors.KindUnresolved).Build()))
}

func TestStackUnderflow(t *testing.T) {
	tm := newTestModule()
	tm.add("Run", sigI4, &il.MethodBody{Code: []il.Instruction{il.Op(il.OpRet)}})

	_, err := tm.run(t, "Run")
	require.Error(t, err)
	var fault *vm.Fault
	assert.False(t, stderrors.As(err, &fault))
}

func TestInvokeMissing(t *testing.T) {
	env := newEnv(t)
	_, err := env.Run("Demo.Nope", "Run")
	assert.Error(t, err)
	_, err = env.Run(fixture.Calc, "Nope")
	assert.Error(t, err)
	_, err = env.Run(fixture.Calc, "Plain")
	assert.Error(t, err)
}

type badHost struct{}

func (badHost) Namespace() string { return "Bad" }
func (badHost) Other(int) int     { return 0 }

func TestHostRegisterType(t *testing.T) {
	host := vm.NewHost()
	_, err := fixture.NewRecorder(host)
	require.NoError(t, err)
	assert.Equal(t, []string{"Host.Trace::Hook", "Host.Trace::Mark"}, host.Names())

	assert.Error(t, host.RegisterType(badHost{}))
}
