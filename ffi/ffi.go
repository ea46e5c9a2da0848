// Package ffi defines the foreign-call primitive contract used by the invoker.
//
// A Primitive turns a function address and a type-erased argument list into a
// real call. Backends live in subpackages:
//
//	ffi/libffi  native functions through libffi (cgo, linux)
//	ffi/wasm    exported WebAssembly functions through wazero
//
// The contract follows libffi: Prepare builds a call interface from argument
// and return descriptors, Call performs the call with one pointer per argument
// slot and a return slot. Integral results are widened to ArgSize bytes in the
// return slot, float results occupy 4 bytes, double results 8 and pointer
// results SizeofPointer. A void call may pass a nil return slot.
//
// All scratch memory for one call comes from a single Arena and is freed by
// its Release.
package ffi

import (
	"context"
	"unsafe"
)

// FuncPtr is an opaque call target: a code address for native backends or a
// backend-issued handle. Zero is never a valid target.
type FuncPtr uintptr

// ABI selects a calling convention.
type ABI int

// DefaultABI is the platform's default calling convention.
const DefaultABI ABI = 0

const (
	// SizeofPointer is the size of a native pointer.
	SizeofPointer = unsafe.Sizeof(uintptr(0))

	// ArgSize is the width integral results are widened to in a return slot.
	ArgSize = SizeofPointer
)

// Interface is a prepared call interface for one signature.
type Interface struct {
	// Native is backend state (the libffi cif), nil for backends that need none.
	Native unsafe.Pointer
	Return *Type
	Args   []*Type
	ABI    ABI
}

// NumArgs returns the number of arguments the interface was prepared for.
func (i *Interface) NumArgs() int {
	return len(i.Args)
}

// Arena owns the scratch memory of one call.
type Arena interface {
	// Alloc returns size bytes aligned to align. The memory is zeroed.
	Alloc(size, align uintptr) (unsafe.Pointer, error)
	// AllocPointers returns an array of n pointer slots.
	AllocPointers(n int) ([]unsafe.Pointer, error)
	// Release frees every allocation. The arena must not be used afterwards.
	Release()
}

// Primitive performs foreign calls.
type Primitive interface {
	// NewArena returns scratch storage suitable for this backend's calls.
	NewArena() Arena
	// Prepare builds a call interface. Backend state is allocated in arena.
	Prepare(arena Arena, abi ABI, ret *Type, args []*Type) (*Interface, error)
	// Call invokes fn. args holds one pointer per argument, allocated from the
	// arena the interface was prepared in.
	Call(ctx context.Context, cif *Interface, fn FuncPtr, ret unsafe.Pointer, args []unsafe.Pointer) error
}

// ReturnSlotSize returns the number of bytes a return slot for t must hold.
func ReturnSlotSize(t *Type) uintptr {
	if t == nil || t.Kind == KindVoid {
		return 0
	}
	if t.Integral() && t.Size < ArgSize {
		return ArgSize
	}
	return t.Size
}
