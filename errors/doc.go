// Package errors provides structured error types for canoncall.
//
// Errors are categorized by Phase (the step of a call or marshal operation
// that failed) and Kind (error category). The Error type carries the function
// name, a path to the offending argument or struct member, the type involved
// and a cause chain.
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhaseRehome, errors.KindOverflow).
//		Function("add").
//		Path("args", "1").
//		Type("char").
//		Detail("value 300 overflows char").
//		Build()
//
// Or use convenience constructors for common patterns:
//
//	err := errors.Metadata(errors.PhaseMarshal, "canonical size", 12, 10)
//	err := errors.OutOfBounds(errors.PhaseUnmarshal, []string{"y"}, 16, 8)
//
// KindOf and PhaseOf classify an error through any wrapping. All errors
// implement the standard error interface and support errors.Is/As.
package errors
