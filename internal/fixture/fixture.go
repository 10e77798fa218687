// Package fixture builds the sample modules used by tests and by the
// "weave sample" command.
//
// Aspects defines annotation types whose hooks report to the host method
// Host.Trace::Hook(tag, phase, name, payload). Demo defines annotated methods,
// parameters and properties covering the weaving scenarios: multiple exits,
// exceptions, stacked annotations, instance methods, pointer and by-reference
// parameters and property accessors.
package fixture

import (
	"fmt"
	"path/filepath"

	"github.com/gofrs/uuid"

	"github.com/wippyai/il-weaver/il"
	"github.com/wippyai/il-weaver/store"
)

// Module and type names.
const (
	HostModule    = "Host"
	TraceType     = "Host.Trace"
	AspectsModule = "Aspects"
	DemoModule    = "Demo"

	Calc     = "Demo.Calc"
	Counter  = "Demo.Counter"
	Settings = "Demo.Settings"
)

var (
	aspectsID = uuid.Must(uuid.FromString("5d8f1d1e-4f6b-4c1a-9a57-0d1f6b2b7a10"))
	demoID    = uuid.Must(uuid.FromString("0b7c9a3e-2a41-4e0c-8f55-6c3d2e1f9b20"))

	objRef = il.ByRefOf(il.SigObject)
	objArr = il.ArrayOf(il.SigObject)
	native = il.Prim(il.ElemI)

	sigHook = static(il.SigVoid, il.SigString, il.SigString, il.SigString, il.SigObject)
	sigMark = static(il.SigVoid, il.SigString)
)

func static(ret il.TypeSig, params ...il.TypeSig) il.MethodSig {
	return il.MethodSig{Return: ret, Params: params}
}

func instance(ret il.TypeSig, params ...il.TypeSig) il.MethodSig {
	return il.MethodSig{HasThis: true, Return: ret, Params: params}
}

func method(name string, flags il.MethodFlags, sig il.MethodSig, params ...string) *il.MethodDef {
	md := &il.MethodDef{Name: name, Flags: flags, Sig: sig}
	for _, p := range params {
		md.Params = append(md.Params, il.ParamDef{Name: p})
	}
	return md
}

func ctor(params ...il.TypeSig) *il.MethodDef {
	md := method(".ctor", il.MethodFlagCtor, instance(il.SigVoid, params...))
	for i := range params {
		md.Params = append(md.Params, il.ParamDef{Name: fmt.Sprintf("arg%d", i)})
	}
	return md
}

func code(locals []il.TypeSig, instrs ...il.Instruction) *il.MethodBody {
	return &il.MethodBody{Locals: locals, Code: instrs}
}

// annotate returns an annotation constructed by ctor with args.
func annotate(ctor il.Token, args ...any) il.Annotation {
	return il.Annotation{Ctor: ctor, Args: il.MustAnnotationArgs(args...)}
}

// finish computes the stack depth of every body.
func finish(m *il.Module) *il.Module {
	m.Methods(func(_ *il.TypeDef, md *il.MethodDef) bool {
		if md.Body == nil {
			return true
		}
		depth, err := il.ComputeMaxStack(m, md.Sig, md.Body)
		if err != nil {
			panic(fmt.Sprintf("fixture: %s: %v", md.Name, err))
		}
		md.Body.MaxStack = depth
		return true
	})
	return m
}

var (
	ldarg0 = il.Arg(il.OpLdarg, 0)
	ldarg1 = il.Arg(il.OpLdarg, 1)
	ldarg2 = il.Arg(il.OpLdarg, 2)
	ldarg3 = il.Arg(il.OpLdarg, 3)
	ret    = il.Op(il.OpRet)
)

// Aspects returns the module defining the annotation types.
//
//	AspectBase(tag)  PostMethod -> Hook(tag, "post", name, args)
//	Log(tag)         extends AspectBase; PreMethod, ExceptionMethod
//	Check()          Process -> Hook("check", "process", param, value)
//	Watch()          static Get/Set -> Hook("watch", "get"|"set", property, value)
//	Clamp()          static Set reports and replaces the value with 100
//	Broken()         PreMethod(string), which matches no convention
func Aspects() *il.Module {
	m := &il.Module{Name: AspectsModule, MVID: aspectsID}
	trace := m.ImportTypeRef(HostModule, "Host", "Trace")
	hook := m.ImportMemberRef(trace, "Hook", sigHook)

	base := &il.TypeDef{
		Namespace: "Aspects", Name: "AspectBase", Flags: il.TypeFlagAnnotation,
		Fields: []il.FieldDef{{Name: "tag", Type: il.SigString}},
	}
	baseCtor := ctor(il.SigString)
	post := method("PostMethod", il.MethodFlagVirtual, instance(il.SigVoid, il.SigString, objArr), "name", "args")
	base.Methods = []*il.MethodDef{baseCtor, post}

	log := &il.TypeDef{Namespace: "Aspects", Name: "Log", Flags: il.TypeFlagAnnotation}
	logCtor := ctor(il.SigString)
	pre := method("PreMethod", 0, instance(il.SigVoid, il.SigString, objArr), "name", "args")
	exc := method("ExceptionMethod", 0, instance(il.SigVoid, il.SigString, il.SigObject), "name", "error")
	log.Methods = []*il.MethodDef{logCtor, pre, exc}

	check := &il.TypeDef{Namespace: "Aspects", Name: "Check", Flags: il.TypeFlagAnnotation}
	checkCtor := ctor()
	process := method("Process", 0, instance(il.SigVoid, il.SigString, il.SigString, il.SigObject), "method", "param", "value")
	check.Methods = []*il.MethodDef{checkCtor, process}

	watch := &il.TypeDef{Namespace: "Aspects", Name: "Watch", Flags: il.TypeFlagAnnotation}
	watchCtor := ctor()
	get := method("Get", il.MethodFlagStatic, static(il.SigVoid, il.SigString, objRef), "property", "value")
	set := method("Set", il.MethodFlagStatic, static(il.SigVoid, il.SigString, objRef), "property", "value")
	watch.Methods = []*il.MethodDef{watchCtor, get, set}

	clamp := &il.TypeDef{Namespace: "Aspects", Name: "Clamp", Flags: il.TypeFlagAnnotation}
	clampCtor := ctor()
	clampSet := method("Set", il.MethodFlagStatic, static(il.SigVoid, il.SigString, objRef), "property", "value")
	clamp.Methods = []*il.MethodDef{clampCtor, clampSet}

	broken := &il.TypeDef{Namespace: "Aspects", Name: "Broken", Flags: il.TypeFlagAnnotation}
	brokenCtor := ctor()
	brokenPre := method("PreMethod", 0, instance(il.SigVoid, il.SigString), "name")
	broken.Methods = []*il.MethodDef{brokenCtor, brokenPre}

	m.Types = []*il.TypeDef{base, log, check, watch, clamp, broken}
	log.Base = m.TypeToken(base)
	tag := m.FieldToken(base, "tag")

	baseCtor.Body = code(nil, ldarg0, ldarg1, il.WithToken(il.OpStfld, tag), ret)
	post.Body = code(nil,
		ldarg0, il.WithToken(il.OpLdfld, tag), il.Ldstr("post"), ldarg1, ldarg2,
		il.WithToken(il.OpCall, hook), ret)

	logCtor.Body = code(nil, ldarg0, ldarg1, il.WithToken(il.OpCall, m.MethodToken(baseCtor)), ret)
	pre.Body = code(nil,
		ldarg0, il.WithToken(il.OpLdfld, tag), il.Ldstr("pre"), ldarg1, ldarg2,
		il.WithToken(il.OpCall, hook), ret)
	exc.Body = code(nil,
		ldarg0, il.WithToken(il.OpLdfld, tag), il.Ldstr("exception"), ldarg1, ldarg2,
		il.WithToken(il.OpCall, hook), ret)

	checkCtor.Body = code(nil, ret)
	process.Body = code(nil,
		il.Ldstr("check"), il.Ldstr("process"), ldarg2, ldarg3,
		il.WithToken(il.OpCall, hook), ret)

	watchCtor.Body = code(nil, ret)
	get.Body = code(nil,
		il.Ldstr("watch"), il.Ldstr("get"), ldarg0, ldarg1, il.Op(il.OpLdindRef),
		il.WithToken(il.OpCall, hook), ret)
	set.Body = code(nil,
		il.Ldstr("watch"), il.Ldstr("set"), ldarg0, ldarg1, il.Op(il.OpLdindRef),
		il.WithToken(il.OpCall, hook), ret)

	clampCtor.Body = code(nil, ret)
	clampSet.Body = code(nil,
		il.Ldstr("clamp"), il.Ldstr("set"), ldarg0, ldarg1, il.Op(il.OpLdindRef),
		il.WithToken(il.OpCall, hook),
		ldarg1, il.LdcI4(100), il.WithType(il.OpBox, il.SigI4), il.Op(il.OpStindRef),
		ret)

	brokenCtor.Body = code(nil, ret)
	brokenPre.Body = code(nil, ret)

	return finish(m)
}

// Demo returns the module with annotated members.
func Demo() *il.Module {
	m := &il.Module{Name: DemoModule, MVID: demoID}
	trace := m.ImportTypeRef(HostModule, "Host", "Trace")
	mark := m.ImportMemberRef(trace, "Mark", sigMark)

	aspect := func(name string, params ...il.TypeSig) il.Token {
		t := m.ImportTypeRef(AspectsModule, "Aspects", name)
		return m.ImportMemberRef(t, ".ctor", instance(il.SigVoid, params...))
	}
	logAspect := aspect("Log", il.SigString)
	checkAspect := aspect("Check")
	watchAspect := aspect("Watch")
	clampAspect := aspect("Clamp")
	brokenAspect := aspect("Broken")

	calc := &il.TypeDef{Namespace: "Demo", Name: "Calc"}
	format := method("Format", il.MethodFlagStatic, static(il.SigString, il.SigI4, il.SigString), "count", "label")
	format.Annotations = []il.Annotation{annotate(logAspect, "F")}
	classify := method("Classify", il.MethodFlagStatic, static(il.SigI4, il.SigI4), "x")
	classify.Annotations = []il.Annotation{annotate(logAspect, "C")}
	fail := method("Fail", il.MethodFlagStatic, static(il.SigVoid, il.SigI4), "ok")
	fail.Annotations = []il.Annotation{annotate(logAspect, "X")}
	stacked := method("Stacked", il.MethodFlagStatic, static(il.SigVoid))
	stacked.Annotations = []il.Annotation{annotate(logAspect, "A"), annotate(logAspect, "B")}
	noParams := method("NoParams", il.MethodFlagStatic, static(il.SigVoid))
	noParams.Annotations = []il.Annotation{annotate(logAspect, "N")}
	pointers := method("Pointers", il.MethodFlagStatic, static(il.SigVoid, il.SigI4, native, il.SigI4), "a", "p", "b")
	pointers.Annotations = []il.Annotation{annotate(logAspect, "P")}
	byRefs := method("ByRefs", il.MethodFlagStatic,
		static(il.SigVoid, il.ByRefOf(il.SigI4), il.ByRefOf(il.SigString)), "n", "s")
	byRefs.Annotations = []il.Annotation{annotate(logAspect, "R")}
	callByRefs := method("CallByRefs", il.MethodFlagStatic, static(il.SigVoid))
	checked := method("Checked", il.MethodFlagStatic, static(il.SigVoid, il.SigObject))
	checked.Params = []il.ParamDef{{Name: "value", Annotations: []il.Annotation{annotate(checkAspect)}}}
	plain := method("Plain", il.MethodFlagStatic, static(il.SigI4, il.SigI4), "x")
	skipped := method("Skipped", il.MethodFlagStatic, static(il.SigVoid))
	skipped.Annotations = []il.Annotation{annotate(brokenAspect)}
	calc.Methods = []*il.MethodDef{
		format, classify, fail, stacked, noParams, pointers, byRefs, callByRefs, checked, plain, skipped,
	}

	counter := &il.TypeDef{
		Namespace: "Demo", Name: "Counter",
		Fields: []il.FieldDef{{Name: "count", Type: il.SigI4}},
	}
	counterCtor := ctor()
	inc := method("Inc", 0, instance(il.SigI4, il.SigI4), "by")
	inc.Annotations = []il.Annotation{annotate(logAspect, "I")}
	run := method("Run", il.MethodFlagStatic, static(il.SigI4))
	counter.Methods = []*il.MethodDef{counterCtor, inc, run}

	settings := &il.TypeDef{
		Namespace: "Demo", Name: "Settings",
		Fields: []il.FieldDef{
			{Name: "value", Type: il.SigString},
			{Name: "limit", Type: il.SigI4},
		},
	}
	settingsCtor := ctor()
	getValue := method("get_Value", 0, instance(il.SigString))
	setValue := method("set_Value", 0, instance(il.SigVoid, il.SigString), "value")
	getLimit := method("get_Limit", 0, instance(il.SigI4))
	setLimit := method("set_Limit", 0, instance(il.SigVoid, il.SigI4), "value")
	runValue := method("RunValue", il.MethodFlagStatic, static(il.SigString))
	runLimit := method("RunLimit", il.MethodFlagStatic, static(il.SigI4))
	settings.Methods = []*il.MethodDef{settingsCtor, getValue, setValue, getLimit, setLimit, runValue, runLimit}

	m.Types = []*il.TypeDef{calc, counter, settings}

	tok := m.MethodToken
	call := func(md *il.MethodDef) il.Instruction { return il.WithToken(il.OpCall, tok(md)) }
	callvirt := func(md *il.MethodDef) il.Instruction { return il.WithToken(il.OpCallvirt, tok(md)) }
	markCall := func(s string) []il.Instruction {
		return []il.Instruction{il.Ldstr(s), il.WithToken(il.OpCall, mark)}
	}

	format.Body = code(nil, append(markCall("Format"), ldarg1, ret)...)
	classify.Body = code(nil,
		ldarg0, il.LdcI4(0), il.Branch(il.OpBge, 5), // 0-2
		il.LdcI4(-1), ret, // 3-4
		ldarg0, il.LdcI4(0), il.Branch(il.OpBgt, 10), // 5-7
		il.LdcI4(0), ret, // 8-9
		il.LdcI4(1), ret, // 10-11
	)
	fail.Body = code(nil,
		ldarg0, il.Branch(il.OpBrtrue, 4),
		il.Ldstr("boom"), il.Op(il.OpThrow),
		ret,
	)
	stacked.Body = code(nil, append(markCall("Stacked"), ret)...)
	noParams.Body = code(nil, ret)
	pointers.Body = code(nil, ret)
	byRefs.Body = code(nil, ret)
	callByRefs.Body = code([]il.TypeSig{il.SigI4, il.SigString},
		il.LdcI4(5), il.Local(il.OpStloc, 0),
		il.Ldstr("s"), il.Local(il.OpStloc, 1),
		il.Local(il.OpLdloca, 0), il.Local(il.OpLdloca, 1), call(byRefs),
		ret,
	)
	checked.Body = code(nil, append(markCall("Checked"), ret)...)
	plain.Body = code(nil, ldarg0, ret)
	skipped.Body = code(nil, ret)

	count := m.FieldToken(counter, "count")
	counterType := il.ClassOf(m.TypeToken(counter))
	counterCtor.Body = code(nil, ret)
	inc.Body = code(nil,
		ldarg0, ldarg0, il.WithToken(il.OpLdfld, count), ldarg1, il.Op(il.OpAdd),
		il.WithToken(il.OpStfld, count),
		ldarg0, il.WithToken(il.OpLdfld, count), ret,
	)
	run.Body = code([]il.TypeSig{counterType},
		il.WithToken(il.OpNewobj, tok(counterCtor)), il.Local(il.OpStloc, 0),
		il.Local(il.OpLdloc, 0), il.LdcI4(2), callvirt(inc), il.Op(il.OpPop),
		il.Local(il.OpLdloc, 0), il.LdcI4(3), callvirt(inc),
		ret,
	)

	value := m.FieldToken(settings, "value")
	limit := m.FieldToken(settings, "limit")
	settingsType := il.ClassOf(m.TypeToken(settings))
	settingsCtor.Body = code(nil, ret)
	getValue.Body = code(nil, ldarg0, il.WithToken(il.OpLdfld, value), ret)
	setValue.Body = code(nil, ldarg0, ldarg1, il.WithToken(il.OpStfld, value), ret)
	getLimit.Body = code(nil, ldarg0, il.WithToken(il.OpLdfld, limit), ret)
	setLimit.Body = code(nil, ldarg0, ldarg1, il.WithToken(il.OpStfld, limit), ret)
	runValue.Body = code([]il.TypeSig{settingsType},
		il.WithToken(il.OpNewobj, tok(settingsCtor)), il.Local(il.OpStloc, 0),
		il.Local(il.OpLdloc, 0), il.Ldstr("v"), callvirt(setValue),
		il.Local(il.OpLdloc, 0), callvirt(getValue),
		ret,
	)
	runLimit.Body = code([]il.TypeSig{settingsType},
		il.WithToken(il.OpNewobj, tok(settingsCtor)), il.Local(il.OpStloc, 0),
		il.Local(il.OpLdloc, 0), il.LdcI4(7), callvirt(setLimit),
		il.Local(il.OpLdloc, 0), callvirt(getLimit),
		ret,
	)
	settings.Properties = []*il.PropertyDef{
		{
			Name: "Value", Type: il.SigString,
			Getter: tok(getValue), Setter: tok(setValue),
			Annotations: []il.Annotation{annotate(watchAspect)},
		},
		{
			Name: "Limit", Type: il.SigI4,
			Getter: tok(getLimit), Setter: tok(setLimit),
			Annotations: []il.Annotation{annotate(clampAspect)},
		},
	}

	return finish(m)
}

// Plain returns Demo with every annotation removed.
func Plain() *il.Module {
	m := Demo()
	for _, td := range m.Types {
		for _, md := range td.Methods {
			md.Annotations = nil
			for i := range md.Params {
				md.Params[i].Annotations = nil
			}
		}
		for _, p := range td.Properties {
			p.Annotations = nil
		}
	}
	return m
}

// Write saves Aspects and Demo as <dir>/Aspects.ilm and <dir>/Demo.ilm.
func Write(st store.Store, dir string) error {
	for _, m := range []*il.Module{Aspects(), Demo()} {
		if err := st.Save(m, Path(dir, m.Name)); err != nil {
			return err
		}
	}
	return nil
}

// Path returns the location of module name in dir.
func Path(dir, name string) string {
	return filepath.Join(dir, name+store.Ext)
}
