// Package marshal moves values between managed Go memory and the linear
// memory of a loaded native library.
//
// A Compiler binds declared schema types to concrete Go types once,
// producing CompiledType graphs that carry resolved offsets and sizes.
// The Encoder then writes values into native memory ahead of a call, and
// the Decoder reads results and in-out parameters back afterwards. All
// scratch allocations an encoding pass makes are recorded in an
// AllocationList so the owning arena can free them as one unit.
package marshal
