package bridge

import (
	"sync"

	passage "github.com/passagelabs/passage"
	"github.com/passagelabs/passage/errors"
	"github.com/passagelabs/passage/marshal"
)

// Arena is an allocation scope over one library's native allocator. Every
// block marshalled through it, and every callback slot it adopts, lives
// until Close. Callers may hold an Arena across many calls to batch
// cleanup; the invoker creates a per-call one when they don't.
//
// An Arena is safe for concurrent use, but Close wins races: allocations
// attempted after Close fail.
type Arena struct {
	mu        sync.Mutex
	alloc     passage.Allocator
	callbacks passage.CallbackRegistrar
	allocs    *marshal.AllocationList
	handles   []passage.Handle
	closed    bool
}

// NewArena opens an allocation scope over the library's allocator.
func NewArena(lib passage.Library) *Arena {
	return &Arena{
		alloc:     lib.Allocator(),
		callbacks: lib.Callbacks(),
		allocs:    marshal.NewAllocationList(),
	}
}

// Alloc reserves native memory owned by the arena.
func (a *Arena) Alloc(size, align uint32) (uint32, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return 0, errors.InvalidArena(errors.PhaseEncode, "arena used after close")
	}
	ptr, err := a.alloc.Alloc(size, align)
	if err != nil {
		return 0, err
	}
	a.allocs.Add(ptr, size, align)
	return ptr, nil
}

// Free is a no-op: arena memory is released in bulk at Close. Individual
// frees would double-free there.
func (a *Arena) Free(ptr, size, align uint32) {}

// adopt transfers ownership of a callback slot to the arena.
func (a *Arena) adopt(h passage.Handle) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return errors.InvalidArena(errors.PhaseCallback, "arena used after close")
	}
	a.handles = append(a.handles, h)
	return nil
}

// Closed reports whether the arena has been closed.
func (a *Arena) Closed() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.closed
}

// Close frees every allocation and releases every callback slot the arena
// owns. Idempotent. Native code must not retain pointers into the arena
// past this point.
func (a *Arena) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return nil
	}
	a.closed = true

	a.allocs.FreeAndRelease(a.alloc)
	a.allocs = nil

	if a.callbacks != nil {
		for _, h := range a.handles {
			a.callbacks.Release(h)
		}
	}
	a.handles = nil
	return nil
}
