// Package codegen synthesizes the instruction sequences the weaver injects.
//
// The Emitter builds instruction slices fluently. On top of it this package
// produces the hook call sites: argument capture for method hooks, value
// capture for parameter hooks, and the by-reference round trip used for
// property accessor hooks.
//
// # Responsibilities
//
//   - Load constants inline (strings and 32-bit integers only)
//   - Dereference and box arguments of every supported parameter kind
//   - Emit receiver loads and call or callvirt to the resolved hook
//
// This package is internal to the weaver.
package codegen
