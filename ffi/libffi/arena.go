//go:build linux && cgo

package libffi

/*
#include <stdlib.h>
*/
import "C"

import (
	"sync"
	"unsafe"

	"github.com/wippyai/canoncall/errors"
	"github.com/wippyai/canoncall/ffi"
)

// calloc guarantees alignment suitable for any fundamental type.
const maxCAlign = 16

// cArena is an ffi.Arena on the C heap. Native code may keep no reference
// into it after the call returns. The block list is pooled; the handle is
// not, so a repeated Release never frees blocks owned by a later arena.
type cArena struct {
	blocks *cBlocks
}

type cBlocks struct {
	list []unsafe.Pointer
}

var cBlocksPool = sync.Pool{
	New: func() any {
		return &cBlocks{list: make([]unsafe.Pointer, 0, 4)}
	},
}

func newCArena() *cArena {
	return &cArena{blocks: cBlocksPool.Get().(*cBlocks)}
}

func (a *cArena) Alloc(size, align uintptr) (unsafe.Pointer, error) {
	if a.blocks == nil {
		return nil, errors.InvalidInput(errors.PhaseRehome, "arena used after release")
	}
	if align == 0 {
		align = 1
	}
	if align&(align-1) != 0 || align > maxCAlign || size > ffi.MaxAlloc {
		return nil, errors.AllocationFailed(errors.PhaseRehome, size, align)
	}
	p := C.calloc(1, C.size_t(max(size, 1)))
	if p == nil {
		return nil, errors.AllocationFailed(errors.PhaseRehome, size, align)
	}
	a.blocks.list = append(a.blocks.list, p)
	return p, nil
}

// AllocPointers returns n pointer slots whose backing array is C memory, so
// the array itself can be handed to libffi.
func (a *cArena) AllocPointers(n int) ([]unsafe.Pointer, error) {
	if n < 0 || uintptr(n) > ffi.MaxAlloc/ffi.SizeofPointer {
		return nil, errors.AllocationFailed(errors.PhaseRehome, uintptr(n)*ffi.SizeofPointer, ffi.SizeofPointer)
	}
	p, err := a.Alloc(uintptr(n)*ffi.SizeofPointer, ffi.SizeofPointer)
	if err != nil {
		return nil, err
	}
	return unsafe.Slice((*unsafe.Pointer)(p), n), nil
}

func (a *cArena) len() int {
	if a.blocks == nil {
		return 0
	}
	return len(a.blocks.list)
}

func (a *cArena) Release() {
	b := a.blocks
	if b == nil {
		return
	}
	a.blocks = nil
	for i, p := range b.list {
		C.free(p)
		b.list[i] = nil
	}
	b.list = b.list[:0]
	if cap(b.list) > 32 {
		return
	}
	cBlocksPool.Put(b)
}

var _ ffi.Arena = (*cArena)(nil)
