// Package errors provides structured error types for the weaver.
//
// Errors are categorized by Phase (where the error occurred) and Kind (error category).
// The Error type carries the module and member being processed, a location path,
// and a cause chain.
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhaseResolve, errors.KindNotFound).
//		Module("Demo").
//		Member("Aspects.Log").
//		Detail("searched %d locations", len(paths)).
//		Build()
//
// Or use convenience constructors for common patterns:
//
//	err := errors.Load(path, cause)
//	err := errors.UnsupportedOperand(value)
//
// All errors implement the standard error interface and support errors.Is/As.
package errors
