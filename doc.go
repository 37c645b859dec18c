// Package passage is a runtime bridge for calling native shared-library
// functions through statically declared interfaces, without hand-written
// glue per function.
//
// A library is a WebAssembly module executed by wazero: its exports are the
// symbol surface, its linear memory is the native address space, and its
// malloc/free exports back the scratch allocator. The core derives a native
// call descriptor from each declared method signature, marshals composite
// data (arrays, strings, nested records, pointer-to-record graphs) into
// guest memory, invokes the bound symbol, and copies mutated memory back
// for parameters marked for read-back. Up-calls wrap a Go method as a
// guest-callable function pointer whose lifetime is owned by an Arena.
//
// Sub-packages:
//   - schema: registration-time type descriptions that cross the boundary
//   - marshal: layout resolution and record marshalling
//   - bind: call descriptors, symbol resolution, bound method tables
//   - bridge: down-call invoker, arenas, and up-call construction
//   - engine: the wazero-backed library loader
package passage
