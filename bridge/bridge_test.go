package bridge

import (
	"context"
	"encoding/binary"
	"fmt"

	passage "github.com/passagelabs/passage"
)

// memBuf is a bounds-checked little-endian byte buffer standing in for
// native linear memory.
type memBuf struct {
	data []byte
}

func newMemBuf(size int) *memBuf {
	return &memBuf{data: make([]byte, size)}
}

func (m *memBuf) check(off, n uint32) error {
	if uint64(off)+uint64(n) > uint64(len(m.data)) {
		return fmt.Errorf("memory access out of range: %d+%d > %d", off, n, len(m.data))
	}
	return nil
}

func (m *memBuf) Read(off, n uint32) ([]byte, error) {
	if err := m.check(off, n); err != nil {
		return nil, err
	}
	out := make([]byte, n)
	copy(out, m.data[off:off+n])
	return out, nil
}

func (m *memBuf) Write(off uint32, data []byte) error {
	if err := m.check(off, uint32(len(data))); err != nil {
		return err
	}
	copy(m.data[off:], data)
	return nil
}

func (m *memBuf) ReadU8(off uint32) (uint8, error) {
	if err := m.check(off, 1); err != nil {
		return 0, err
	}
	return m.data[off], nil
}

func (m *memBuf) ReadU16(off uint32) (uint16, error) {
	if err := m.check(off, 2); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(m.data[off:]), nil
}

func (m *memBuf) ReadU32(off uint32) (uint32, error) {
	if err := m.check(off, 4); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(m.data[off:]), nil
}

func (m *memBuf) ReadU64(off uint32) (uint64, error) {
	if err := m.check(off, 8); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(m.data[off:]), nil
}

func (m *memBuf) WriteU8(off uint32, v uint8) error {
	if err := m.check(off, 1); err != nil {
		return err
	}
	m.data[off] = v
	return nil
}

func (m *memBuf) WriteU16(off uint32, v uint16) error {
	if err := m.check(off, 2); err != nil {
		return err
	}
	binary.LittleEndian.PutUint16(m.data[off:], v)
	return nil
}

func (m *memBuf) WriteU32(off uint32, v uint32) error {
	if err := m.check(off, 4); err != nil {
		return err
	}
	binary.LittleEndian.PutUint32(m.data[off:], v)
	return nil
}

func (m *memBuf) WriteU64(off uint32, v uint64) error {
	if err := m.check(off, 8); err != nil {
		return err
	}
	binary.LittleEndian.PutUint64(m.data[off:], v)
	return nil
}

// bumpAlloc counts allocations and frees for leak assertions.
type bumpAlloc struct {
	next   uint32
	allocs int
	frees  int
}

func (a *bumpAlloc) Alloc(size, align uint32) (uint32, error) {
	if align > 0 && a.next%align != 0 {
		a.next += align - a.next%align
	}
	p := a.next
	a.next += size
	a.allocs++
	return p, nil
}

func (a *bumpAlloc) Free(ptr, size, align uint32) {
	a.frees++
}

type fnFunc func(ctx context.Context, args ...uint64) ([]uint64, error)

func (f fnFunc) Call(ctx context.Context, args ...uint64) ([]uint64, error) {
	return f(ctx, args...)
}

// stubRegistrar records callback registrations so tests can dispatch to
// them and observe releases.
type stubRegistrar struct {
	next uint32
	cbs  map[passage.Handle]passage.Callback
}

func newStubRegistrar() *stubRegistrar {
	return &stubRegistrar{next: 1, cbs: map[passage.Handle]passage.Callback{}}
}

func (r *stubRegistrar) Register(paramCount int, hasResult bool, cb passage.Callback) (passage.Handle, error) {
	h := passage.Handle(r.next)
	r.next++
	r.cbs[h] = cb
	return h, nil
}

func (r *stubRegistrar) Release(h passage.Handle) {
	delete(r.cbs, h)
}

type stubLib struct {
	mem   *memBuf
	alloc *bumpAlloc
	fns   map[string]passage.Function
	regs  *stubRegistrar
}

func newStubLib() *stubLib {
	return &stubLib{
		mem:   newMemBuf(1 << 16),
		alloc: &bumpAlloc{next: 64},
		fns:   map[string]passage.Function{},
		regs:  newStubRegistrar(),
	}
}

func (l *stubLib) Function(name string) passage.Function {
	fn, ok := l.fns[name]
	if !ok {
		return nil
	}
	return fn
}

func (l *stubLib) Global(name string) (uint64, bool)    { return 0, false }
func (l *stubLib) Memory() passage.Memory               { return l.mem }
func (l *stubLib) Allocator() passage.Allocator         { return l.alloc }
func (l *stubLib) Callbacks() passage.CallbackRegistrar { return l.regs }
func (l *stubLib) Close(ctx context.Context) error      { return nil }
