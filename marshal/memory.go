package marshal

import (
	"sync"

	passage "github.com/passagelabs/passage"
	"github.com/passagelabs/passage/errors"
)

type Memory = passage.Memory
type Allocator = passage.Allocator

type Allocation struct {
	Ptr   uint32
	Size  uint32
	Align uint32
}

// AllocationList tracks the scratch allocations one marshalling pass made,
// so an arena can free them as a unit.
type AllocationList struct {
	allocations []Allocation
}

var allocationListPool = sync.Pool{
	New: func() any {
		return &AllocationList{allocations: make([]Allocation, 0, 8)}
	},
}

func NewAllocationList() *AllocationList {
	return allocationListPool.Get().(*AllocationList)
}

const maxPooledAllocationCapacity = 128

// Release returns to pool. Must call after Free(); list invalid after Release.
func (al *AllocationList) Release() {
	// Only pool small allocations to prevent memory bloat
	if cap(al.allocations) > maxPooledAllocationCapacity {
		return
	}
	al.Reset()
	allocationListPool.Put(al)
}

func (al *AllocationList) FreeAndRelease(allocator Allocator) {
	al.Free(allocator)
	al.Release()
}

func (al *AllocationList) Add(ptr, size, align uint32) {
	al.allocations = append(al.allocations, Allocation{
		Ptr:   ptr,
		Size:  size,
		Align: align,
	})
}

func (al *AllocationList) Free(allocator Allocator) {
	if allocator == nil {
		return
	}
	for _, a := range al.allocations {
		if a.Ptr != 0 {
			allocator.Free(a.Ptr, a.Size, a.Align)
		}
	}
}

func (al *AllocationList) Reset() {
	al.allocations = al.allocations[:0]
}

func (al *AllocationList) Count() int {
	return len(al.allocations)
}

// allocTracked allocates and records in one step. Zero-size requests are
// bumped to one byte so every allocation has a distinct, freeable address.
func allocTracked(alloc Allocator, allocs *AllocationList, size, align uint32, phase errors.Phase) (uint32, error) {
	if size == 0 {
		size = 1
	}
	if align == 0 {
		align = 1
	}
	ptr, err := alloc.Alloc(size, align)
	if err != nil || ptr == 0 {
		return 0, errors.AllocationFailed(phase, size, align)
	}
	if allocs != nil {
		allocs.Add(ptr, size, align)
	}
	return ptr, nil
}
