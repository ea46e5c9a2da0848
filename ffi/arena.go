package ffi

import (
	"sync"
	"unsafe"

	"github.com/wippyai/canoncall/errors"
)

// MaxAlloc bounds a single HeapArena allocation.
const MaxAlloc = 1 << 30

// maxHeapAlign is the strongest alignment a []uint64 backing array guarantees.
const maxHeapAlign = 8

// HeapArena is an Arena backed by the Go heap. Blocks stay reachable through
// the arena until Release, so pointers into them remain valid for the call.
//
// Only the block storage is pooled. Each NewHeapArena returns a distinct
// handle, and Release detaches the storage from it, so a repeated Release on
// a stale handle cannot reach storage that another arena has since taken.
type HeapArena struct {
	store *heapStore
}

type heapStore struct {
	blocks   [][]uint64
	pointers [][]unsafe.Pointer
}

var heapStorePool = sync.Pool{
	New: func() any {
		return &heapStore{blocks: make([][]uint64, 0, 4)}
	},
}

// NewHeapArena returns an empty arena backed by pooled storage.
func NewHeapArena() *HeapArena {
	return &HeapArena{store: heapStorePool.Get().(*heapStore)}
}

const maxPooledBlocks = 32

// Alloc returns zeroed storage of at least size bytes. A zero size still
// yields a valid, distinct address.
func (a *HeapArena) Alloc(size, align uintptr) (unsafe.Pointer, error) {
	if a.store == nil {
		return nil, errors.InvalidInput(errors.PhaseRehome, "arena used after release")
	}
	if align == 0 {
		align = 1
	}
	if align&(align-1) != 0 || align > maxHeapAlign || size > MaxAlloc {
		return nil, errors.AllocationFailed(errors.PhaseRehome, size, align)
	}
	words := (size + 7) / 8
	if words == 0 {
		words = 1
	}
	block := make([]uint64, words)
	a.store.blocks = append(a.store.blocks, block)
	return unsafe.Pointer(&block[0]), nil
}

// AllocPointers returns n pointer slots visible to the garbage collector.
func (a *HeapArena) AllocPointers(n int) ([]unsafe.Pointer, error) {
	if a.store == nil {
		return nil, errors.InvalidInput(errors.PhaseRehome, "arena used after release")
	}
	if n < 0 || uintptr(n) > MaxAlloc/SizeofPointer {
		return nil, errors.AllocationFailed(errors.PhaseRehome, uintptr(n)*SizeofPointer, SizeofPointer)
	}
	ptrs := make([]unsafe.Pointer, n)
	a.store.pointers = append(a.store.pointers, ptrs)
	return ptrs, nil
}

// Len returns the number of live allocations.
func (a *HeapArena) Len() int {
	if a.store == nil {
		return 0
	}
	return len(a.store.blocks) + len(a.store.pointers)
}

// Release drops every allocation and returns the storage to the pool.
// The arena must not be used afterwards; further Release calls do nothing.
func (a *HeapArena) Release() {
	s := a.store
	if s == nil {
		return
	}
	a.store = nil
	clear(s.blocks)
	clear(s.pointers)
	s.blocks = s.blocks[:0]
	s.pointers = s.pointers[:0]
	// Only pool small stores to prevent memory bloat
	if cap(s.blocks) > maxPooledBlocks || cap(s.pointers) > maxPooledBlocks {
		return
	}
	heapStorePool.Put(s)
}

var _ Arena = (*HeapArena)(nil)
