package invoke

import (
	"context"
	"fmt"
	"sync"
	"unsafe"

	"github.com/wippyai/canoncall/errors"
	"github.com/wippyai/canoncall/ffi"
)

// target is a Go stand-in for a native function: it reads argument slots and
// writes the return slot following the ffi return-slot contract.
type target func(args []unsafe.Pointer, ret unsafe.Pointer)

// fakePrimitive runs Go targets and records what the invoker hands it.
type fakePrimitive struct {
	targets    map[ffi.FuncPtr]target
	prepareErr error
	callErr    error
	failAlloc  int

	mu       sync.Mutex
	arenas   []*countingArena
	calls    int
	lastCIF  *ffi.Interface
	lastArgs []unsafe.Pointer
}

func newFakePrimitive() *fakePrimitive {
	return &fakePrimitive{targets: make(map[ffi.FuncPtr]target)}
}

func (p *fakePrimitive) register(t target) ffi.FuncPtr {
	ptr := ffi.FuncPtr(len(p.targets) + 1)
	p.targets[ptr] = t
	return ptr
}

func (p *fakePrimitive) NewArena() ffi.Arena {
	a := &countingArena{inner: ffi.NewHeapArena(), failAt: p.failAlloc}
	p.mu.Lock()
	p.arenas = append(p.arenas, a)
	p.mu.Unlock()
	return a
}

func (p *fakePrimitive) Prepare(arena ffi.Arena, abi ffi.ABI, ret *ffi.Type, args []*ffi.Type) (*ffi.Interface, error) {
	if p.prepareErr != nil {
		return nil, p.prepareErr
	}
	if abi != ffi.DefaultABI {
		return nil, errors.Unsupported(errors.PhasePrepare, fmt.Sprintf("abi %d", abi))
	}
	return &ffi.Interface{ABI: abi, Return: ret, Args: args}, nil
}

func (p *fakePrimitive) Call(_ context.Context, cif *ffi.Interface, fn ffi.FuncPtr, ret unsafe.Pointer, args []unsafe.Pointer) error {
	p.mu.Lock()
	p.calls++
	p.lastCIF = cif
	p.lastArgs = args
	p.mu.Unlock()

	if p.callErr != nil {
		return p.callErr
	}
	t, ok := p.targets[fn]
	if !ok {
		return fmt.Errorf("no target at %#x", uintptr(fn))
	}
	if len(args) != cif.NumArgs() {
		return fmt.Errorf("got %d argument slots for %d arguments", len(args), cif.NumArgs())
	}
	t(args, ret)
	return nil
}

func (p *fakePrimitive) released() (arenas, releases int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, a := range p.arenas {
		releases += a.released
	}
	return len(p.arenas), releases
}

// countingArena counts allocations and releases and can fail the n-th allocation.
type countingArena struct {
	inner    *ffi.HeapArena
	allocs   int
	failAt   int
	released int
}

func (a *countingArena) next(size, align uintptr) error {
	a.allocs++
	if a.allocs == a.failAt {
		return errors.AllocationFailed(errors.PhaseRehome, size, align)
	}
	return nil
}

func (a *countingArena) Alloc(size, align uintptr) (unsafe.Pointer, error) {
	if err := a.next(size, align); err != nil {
		return nil, err
	}
	return a.inner.Alloc(size, align)
}

func (a *countingArena) AllocPointers(n int) ([]unsafe.Pointer, error) {
	if err := a.next(uintptr(n)*ffi.SizeofPointer, ffi.SizeofPointer); err != nil {
		return nil, err
	}
	return a.inner.AllocPointers(n)
}

func (a *countingArena) Release() {
	a.released++
	a.inner.Release()
}

// writeArg stores an integral result widened to register width.
func writeArg(ret unsafe.Pointer, v int64) {
	if ffi.ArgSize == 8 {
		*(*int64)(ret) = v
		return
	}
	*(*int32)(ret) = int32(v)
}

func addInts(args []unsafe.Pointer, ret unsafe.Pointer) {
	writeArg(ret, int64(*(*int32)(args[0])+*(*int32)(args[1])))
}

func meanDoubles(args []unsafe.Pointer, ret unsafe.Pointer) {
	*(*float64)(ret) = (*(*float64)(args[0]) + *(*float64)(args[1])) / 2
}

func halfFloat(args []unsafe.Pointer, ret unsafe.Pointer) {
	*(*float32)(ret) = *(*float32)(args[0]) / 2
}

func storeInt(args []unsafe.Pointer, _ unsafe.Pointer) {
	p := *(*unsafe.Pointer)(args[0])
	*(*int32)(p) = 42
}

func identity(args []unsafe.Pointer, ret unsafe.Pointer) {
	*(*uintptr)(ret) = *(*uintptr)(args[0])
}

// constant returns a target that writes v into an integral return slot.
func constant(v int64) target {
	return func(_ []unsafe.Pointer, ret unsafe.Pointer) {
		writeArg(ret, v)
	}
}

var _ ffi.Primitive = (*fakePrimitive)(nil)
