// Package ilweaver is an annotation-driven bytecode weaver for il modules.
//
// Members of a module carry annotations whose types declare hook methods.
// Weaving rewrites those members so the hooks run at fixed points: on entry,
// on every exit, on faults, per annotated parameter and around property
// access. The rewritten module is written back in place.
//
// # Architecture Overview
//
// The library is organized into several packages with distinct responsibilities:
//
//	ilweaver/            Root package (documentation only)
//	├── il/              Module model, opcodes, binary codec, validator, disassembler
//	├── store/           Loading and saving .ilm files
//	├── resolve/         Search-path module loading and cross-module references
//	├── weave/           Public weaving API, member matchers
//	│   └── internal/
//	│       ├── engine/  Per-member pipeline: exits, regions, properties
//	│       ├── hooks/   Annotation types to hook descriptors
//	│       ├── stream/  Anchor-based instruction stream editor
//	│       └── codegen/ Instruction emitter and argument capture
//	├── vm/              Reference interpreter for running woven modules
//	├── config/          weaver.toml configuration
//	├── errors/          Structured error types for debugging
//	└── cmd/weave/       Command line tool
//
// # Quick Start
//
// Weave a module in place:
//
//	rep, err := weave.WeaveFile("lib/App.ilm", weave.Config{
//	    SearchPaths: []string{"lib"},
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(rep.Methods)
//
// Run a woven method with the reference interpreter:
//
//	res := resolve.New(resolve.Config{SearchPaths: []string{"lib"}})
//	app, err := res.LoadModule("App")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	machine := vm.New(vm.Config{Resolver: res, Host: vm.NewHost()})
//	result, err := machine.Invoke(app, "App.Service", "Run")
//
// # Hook Conventions
//
// Hooks are found by name and signature on the annotation type or its bases:
//
//   - PreMethod(string, object[]) and PostMethod(string, object[])
//   - ExceptionMethod(string, object)
//   - Process(string, string, object) for annotated parameters
//   - Get(string, ref object) and Set(string, ref object) for properties
//
// # Thread Safety
//
// Resolver and the hook descriptor cache are safe for concurrent use. A
// weaving run mutates its module and must not share it with other goroutines.
// The interpreter is single-threaded.
package ilweaver
