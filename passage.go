package passage

import "context"

// Memory represents native linear memory.
type Memory interface {
	Read(offset uint32, length uint32) ([]byte, error)
	Write(offset uint32, data []byte) error
	ReadU8(offset uint32) (uint8, error)
	ReadU16(offset uint32) (uint16, error)
	ReadU32(offset uint32) (uint32, error)
	ReadU64(offset uint32) (uint64, error)
	WriteU8(offset uint32, value uint8) error
	WriteU16(offset uint32, value uint16) error
	WriteU32(offset uint32, value uint32) error
	WriteU64(offset uint32, value uint64) error
}

// Allocator allocates scratch memory in native linear memory.
type Allocator interface {
	Alloc(size, align uint32) (uint32, error)
	Free(ptr, size, align uint32)
}

// Function is a resolved native function. Arguments and results travel as
// raw 64-bit slots; scalar values pass by value, everything else passes the
// native address of a marshalled block.
type Function interface {
	Call(ctx context.Context, args ...uint64) ([]uint64, error)
}

// Callback is the host side of an up-call: it receives raw argument slots
// from native code and returns raw result slots.
type Callback func(ctx context.Context, args []uint64) ([]uint64, error)

// CallbackRegistrar hands out native-callable function pointers bound to
// host callbacks. The returned address stays valid until released.
type CallbackRegistrar interface {
	Register(paramCount int, hasResult bool, cb Callback) (Handle, error)
	Release(addr Handle)
}

// Library is a loaded native image: a symbol-lookup capability plus the
// memory and allocation services marshalling needs.
type Library interface {
	// Function resolves an exported function, or nil if the symbol is absent.
	Function(name string) Function
	// Global resolves an exported data symbol to its value.
	Global(name string) (uint64, bool)
	Memory() Memory
	Allocator() Allocator
	Callbacks() CallbackRegistrar
	Close(ctx context.Context) error
}

// Handle is a raw native address. Pointer and opaque returns surface as
// Handle values with no further interpretation.
type Handle uint32
