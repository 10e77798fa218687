// Package weave instruments annotated members of il modules with calls to
// hook methods declared by their annotation types.
//
// # Hooks
//
// An annotation type opts into hooks by declaring methods with fixed names
// and signatures, on itself or a base type:
//
//	PreMethod(string name, object[] args)       method entry
//	PostMethod(string name, object[] args)      every method exit
//	ExceptionMethod(string name, object error)  fault leaving the method
//	Process(string method, string param, object value)  annotated parameter
//	Get(string property, ref object value)      before a getter returns
//	Set(string property, ref object value)      on setter entry
//
// Hooks may be static or instance methods. Instance method hooks run on one
// annotation instance per annotated method, constructed at entry from the
// annotation's constructor arguments.
//
// Argument arrays hold the boxed parameter values, dereferenced for by-ref
// parameters. A pointer parameter ends the capture: it and every later slot
// stay null. Parameterless methods pass null.
//
// # Usage
//
//	rep, err := weave.WeaveFile("lib/App.ilm", weave.Config{
//	    SearchPaths:    []string{"lib", "vendor"},
//	    ExcludeMembers: []string{"App.Generated::*"},
//	})
//
// The rewritten module is marked woven; weaving it again fails.
package weave
