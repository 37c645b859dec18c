// Package errors provides structured error types for the bridge.
//
// Errors carry a Phase (where processing failed) and a Kind (what went
// wrong), along with optional field paths and type information. Bind-time
// kinds (symbol_not_found, unsupported_layout, config_conflict) are fatal
// and raised eagerly; method_unavailable is the one recoverable
// invocation-time kind, checkable by callers before invoking.
//
// Use the Builder for complex errors:
//
//	errors.New(errors.PhaseEncode, errors.KindTypeMismatch).
//	    Path("record", "field").
//	    GoType("int32").
//	    Detail("expected float32").
//	    Build()
//
// Or the convenience constructors for common patterns.
package errors
