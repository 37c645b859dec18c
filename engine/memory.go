package engine

import (
	"context"
	"fmt"

	"github.com/tetratelabs/wazero/api"

	passage "github.com/passagelabs/passage"
)

// wrapMemory adapts wazero api.Memory to passage.Memory.
func wrapMemory(mem api.Memory) passage.Memory {
	if mem == nil {
		return nil
	}
	return &memoryWrapper{mem: mem}
}

type memoryWrapper struct {
	mem api.Memory
}

func (m *memoryWrapper) Read(offset uint32, length uint32) ([]byte, error) {
	data, ok := m.mem.Read(offset, length)
	if !ok {
		return nil, fmt.Errorf("memory read out of bounds: offset=%d, length=%d", offset, length)
	}
	return data, nil
}

func (m *memoryWrapper) Write(offset uint32, data []byte) error {
	if !m.mem.Write(offset, data) {
		return fmt.Errorf("memory write out of bounds: offset=%d, length=%d", offset, len(data))
	}
	return nil
}

func (m *memoryWrapper) ReadU8(offset uint32) (uint8, error) {
	v, ok := m.mem.ReadByte(offset)
	if !ok {
		return 0, fmt.Errorf("memory read out of bounds: offset=%d", offset)
	}
	return v, nil
}

func (m *memoryWrapper) ReadU16(offset uint32) (uint16, error) {
	v, ok := m.mem.ReadUint16Le(offset)
	if !ok {
		return 0, fmt.Errorf("memory read out of bounds: offset=%d", offset)
	}
	return v, nil
}

func (m *memoryWrapper) ReadU32(offset uint32) (uint32, error) {
	v, ok := m.mem.ReadUint32Le(offset)
	if !ok {
		return 0, fmt.Errorf("memory read out of bounds: offset=%d", offset)
	}
	return v, nil
}

func (m *memoryWrapper) ReadU64(offset uint32) (uint64, error) {
	v, ok := m.mem.ReadUint64Le(offset)
	if !ok {
		return 0, fmt.Errorf("memory read out of bounds: offset=%d", offset)
	}
	return v, nil
}

func (m *memoryWrapper) WriteU8(offset uint32, value uint8) error {
	if !m.mem.WriteByte(offset, value) {
		return fmt.Errorf("memory write out of bounds: offset=%d", offset)
	}
	return nil
}

func (m *memoryWrapper) WriteU16(offset uint32, value uint16) error {
	if !m.mem.WriteUint16Le(offset, value) {
		return fmt.Errorf("memory write out of bounds: offset=%d", offset)
	}
	return nil
}

func (m *memoryWrapper) WriteU32(offset uint32, value uint32) error {
	if !m.mem.WriteUint32Le(offset, value) {
		return fmt.Errorf("memory write out of bounds: offset=%d", offset)
	}
	return nil
}

func (m *memoryWrapper) WriteU64(offset uint32, value uint64) error {
	if !m.mem.WriteUint64Le(offset, value) {
		return fmt.Errorf("memory write out of bounds: offset=%d", offset)
	}
	return nil
}

// guestAllocator adapts the guest's exported malloc/free pair to
// passage.Allocator. Guest allocators return max-aligned blocks, so an
// alignment stricter than the allocation guarantee is rejected rather
// than silently violated.
type guestAllocator struct {
	ctx    context.Context
	malloc api.Function
	free   api.Function
}

// malloc alignment guarantee assumed from the C ABI.
const guestAllocAlign = 8

func (a *guestAllocator) Alloc(size, align uint32) (uint32, error) {
	results, err := a.malloc.Call(a.ctx, uint64(size))
	if err != nil {
		return 0, fmt.Errorf("guest allocation failed: %w", err)
	}
	if len(results) == 0 {
		return 0, fmt.Errorf("guest allocator returned no result")
	}
	ptr := uint32(results[0])
	if align > guestAllocAlign && ptr%align != 0 {
		a.Free(ptr, size, align)
		return 0, fmt.Errorf("guest allocator cannot satisfy alignment %d", align)
	}
	return ptr, nil
}

func (a *guestAllocator) Free(ptr, size, align uint32) {
	if a.free == nil {
		return
	}
	_, _ = a.free.Call(a.ctx, uint64(ptr))
}
