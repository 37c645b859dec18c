package bind

import (
	"reflect"

	"github.com/passagelabs/passage/schema"
)

// Dir declares how a parameter crosses the boundary.
type Dir int

const (
	// DirIn is written into native memory before the call and never read back.
	DirIn Dir = iota
	// DirInOut is written before the call and read back after.
	DirInOut
	// DirOut carries no meaningful input; its contents are read back after.
	DirOut
)

func (d Dir) String() string {
	switch d {
	case DirIn:
		return "in"
	case DirInOut:
		return "inout"
	case DirOut:
		return "out"
	default:
		return "unknown"
	}
}

// ReadBack reports whether the direction requires a post-call read.
func (d Dir) ReadBack() bool {
	return d == DirInOut || d == DirOut
}

// Param declares one parameter of a native method.
type Param struct {
	// Name is informational; it appears in error paths and tooling output.
	Name string
	// Type is the declared native shape.
	Type schema.Type
	// Go is the managed type the caller passes. May be nil for Callback
	// params, which default to passage.Handle.
	Go reflect.Type
	// Dir declares the data flow. Non-In directions require a
	// pointer-carrying type: there is nothing to read back from a slot
	// that passed by value.
	Dir Dir
	// PtrPtr marks a double-pointer out-parameter: the callee receives the
	// address of a pointer cell and may repoint it. Without the marker the
	// parameter is a plain single-level pointer even if the native
	// signature says otherwise.
	PtrPtr bool
	// Callback marks the parameter as an up-call function pointer. The
	// caller passes a registered passage.Handle.
	Callback bool
}

// Result declares a method's return value.
type Result struct {
	// Type is the declared native shape. Scalars return by value; pointer
	// and string results surface as passage.Handle with no interpretation.
	Type schema.Type
	// Go is the managed scalar type for by-value returns. Ignored for
	// pointer and string results.
	Go reflect.Type
}

// Method declares one native function to bind.
type Method struct {
	Name   string
	Params []Param
	// Returns is nil for void methods.
	Returns *Result
	// Optional methods may be absent from the library. Absence is not a
	// bind error; invoking the unbound method fails recoverably.
	Optional bool
	// Critical methods promise to never block, never call back into the
	// host, and finish quickly. The invoker may skip per-call bookkeeping
	// for them. Incompatible with Callback parameters.
	Critical bool
}

// SymbolSpec declares a named data symbol to resolve from the library's
// exported globals. The resolved value is captured at link time.
type SymbolSpec struct {
	Name     string
	Optional bool
}

// Interface is the full declaration bound against one library.
type Interface struct {
	// Name identifies the library in errors and logs.
	Name    string
	Methods []Method
	Symbols []SymbolSpec
}
