// Package il provides parsing and encoding of ILM modules, the managed
// bytecode container rewritten by the weaver.
//
// An ILM module holds type definitions with fields, methods and properties,
// references to types and methods of other modules, and method bodies made of
// stack-machine instructions with exception handler regions. Annotations on
// methods, parameters and properties carry a constructor token and CBOR
// encoded constructor arguments.
//
// # Binary Format
//
//	magic   u32le  "\0ILM"
//	version u32le  1
//	section*       id byte, size uleb128, payload
//
// Sections appear in increasing id order: header (1), module references (2),
// type references (3), member references (4), type definitions (5). Custom
// sections (0) may appear anywhere and are written last. Encoding a module
// parsed from canonically encoded input reproduces the input byte for byte.
//
// # Parsing
//
//	m, err := il.ParseModule(data)
//	if err != nil {
//	    return err
//	}
//	out, err := m.Encode()
//
// # Tokens
//
// Metadata is referenced through 32-bit tokens: the table tag in the high
// byte and a 1-based row in the low 24 bits. MethodDef and Field rows number
// the members of all types in declaration order.
//
// # Analysis
//
// ComputeMaxStack runs a stack-height flow analysis over a method body.
// Validate checks token ranges, branch targets and handler bounds.
// Disassemble renders a method as a text listing.
package il
