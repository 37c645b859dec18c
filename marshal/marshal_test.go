package marshal

import (
	"encoding/binary"
	"fmt"
)

// testMem is a bounds-checked little-endian byte buffer standing in for
// native linear memory.
type testMem struct {
	data []byte
}

func newTestMem(size int) *testMem {
	return &testMem{data: make([]byte, size)}
}

func (m *testMem) check(off, n uint32) error {
	if uint64(off)+uint64(n) > uint64(len(m.data)) {
		return fmt.Errorf("memory access out of range: %d+%d > %d", off, n, len(m.data))
	}
	return nil
}

func (m *testMem) Read(off, n uint32) ([]byte, error) {
	if err := m.check(off, n); err != nil {
		return nil, err
	}
	out := make([]byte, n)
	copy(out, m.data[off:off+n])
	return out, nil
}

func (m *testMem) Write(off uint32, data []byte) error {
	if err := m.check(off, uint32(len(data))); err != nil {
		return err
	}
	copy(m.data[off:], data)
	return nil
}

func (m *testMem) ReadU8(off uint32) (uint8, error) {
	if err := m.check(off, 1); err != nil {
		return 0, err
	}
	return m.data[off], nil
}

func (m *testMem) ReadU16(off uint32) (uint16, error) {
	if err := m.check(off, 2); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(m.data[off:]), nil
}

func (m *testMem) ReadU32(off uint32) (uint32, error) {
	if err := m.check(off, 4); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(m.data[off:]), nil
}

func (m *testMem) ReadU64(off uint32) (uint64, error) {
	if err := m.check(off, 8); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(m.data[off:]), nil
}

func (m *testMem) WriteU8(off uint32, v uint8) error {
	if err := m.check(off, 1); err != nil {
		return err
	}
	m.data[off] = v
	return nil
}

func (m *testMem) WriteU16(off uint32, v uint16) error {
	if err := m.check(off, 2); err != nil {
		return err
	}
	binary.LittleEndian.PutUint16(m.data[off:], v)
	return nil
}

func (m *testMem) WriteU32(off uint32, v uint32) error {
	if err := m.check(off, 4); err != nil {
		return err
	}
	binary.LittleEndian.PutUint32(m.data[off:], v)
	return nil
}

func (m *testMem) WriteU64(off uint32, v uint64) error {
	if err := m.check(off, 8); err != nil {
		return err
	}
	binary.LittleEndian.PutUint64(m.data[off:], v)
	return nil
}

// testAlloc is a bump allocator that records frees for leak assertions.
type testAlloc struct {
	next     uint32
	allocs   int
	frees    int
	failNext bool
}

func newTestAlloc() *testAlloc {
	return &testAlloc{next: 16}
}

func (a *testAlloc) Alloc(size, align uint32) (uint32, error) {
	if a.failNext {
		return 0, fmt.Errorf("allocator exhausted")
	}
	if align > 0 {
		a.next = alignTo(a.next, align)
	}
	p := a.next
	a.next += size
	a.allocs++
	return p, nil
}

func (a *testAlloc) Free(ptr, size, align uint32) {
	a.frees++
}
