//go:build linux && cgo

// Package libffi is the native foreign-call primitive: call interfaces are
// prepared with ffi_prep_cif and calls go through ffi_call. All scratch
// memory, including the argument pointer array, lives on the C heap.
package libffi

/*
#cgo LDFLAGS: -ldl
#cgo pkg-config: libffi
#include <ffi.h>
#include <stdlib.h>

// Kind values mirror ffi.Kind.
static ffi_type* cc_type(int kind) {
	switch (kind) {
	case 0: return &ffi_type_void;
	case 1: return &ffi_type_schar;
	case 2: return &ffi_type_sshort;
	case 3: return &ffi_type_sint;
	case 4: return &ffi_type_slong;
	case 5: return &ffi_type_float;
	case 6: return &ffi_type_double;
	case 7: return &ffi_type_pointer;
	}
	return NULL;
}

static int cc_default_abi(void) {
	return FFI_DEFAULT_ABI;
}

static int cc_prep_cif(ffi_cif* cif, int abi, unsigned int nargs, ffi_type* rtype, ffi_type** atypes) {
	return ffi_prep_cif(cif, (ffi_abi)abi, nargs, rtype, atypes);
}

static void cc_call(ffi_cif* cif, void* fn, void* rvalue, void** avalue) {
	ffi_call(cif, (void (*)(void))fn, rvalue, avalue);
}
*/
import "C"

import (
	"context"
	"fmt"
	"strconv"
	"unsafe"

	"github.com/wippyai/canoncall/errors"
	"github.com/wippyai/canoncall/ffi"
)

// Primitive calls native functions through libffi.
type Primitive struct{}

// New returns the libffi primitive.
func New() *Primitive {
	return &Primitive{}
}

// NewArena returns an arena backed by the C heap.
func (p *Primitive) NewArena() ffi.Arena {
	return newCArena()
}

// Prepare builds an ffi_cif in arena. The cif and its type array are freed
// with the arena.
func (p *Primitive) Prepare(arena ffi.Arena, abi ffi.ABI, ret *ffi.Type, args []*ffi.Type) (*ffi.Interface, error) {
	if arena == nil {
		return nil, errors.NilPointer(errors.PhasePrepare, "arena")
	}
	if ret == nil {
		return nil, errors.NilPointer(errors.PhasePrepare, "return type")
	}
	rtype, err := libffiType(ret)
	if err != nil {
		return nil, err
	}

	var atypes **C.ffi_type
	if len(args) > 0 {
		mem, err := arena.AllocPointers(len(args))
		if err != nil {
			return nil, err
		}
		slots := unsafe.Slice((**C.ffi_type)(unsafe.Pointer(&mem[0])), len(args))
		for i, t := range args {
			if t == nil || t.Kind == ffi.KindVoid {
				return nil, errors.New(errors.PhasePrepare, errors.KindInvalidInput).
					Path("args", strconv.Itoa(i)).
					Detail("argument has no value type").
					Build()
			}
			if slots[i], err = libffiType(t); err != nil {
				return nil, err
			}
		}
		atypes = &slots[0]
	}

	mem, err := arena.Alloc(uintptr(C.sizeof_ffi_cif), ffi.SizeofPointer)
	if err != nil {
		return nil, err
	}
	cif := (*C.ffi_cif)(mem)

	cabi := C.int(abi)
	if abi == ffi.DefaultABI {
		cabi = C.cc_default_abi()
	}
	if status := C.cc_prep_cif(cif, cabi, C.uint(len(args)), rtype, atypes); status != C.FFI_OK {
		return nil, errors.New(errors.PhasePrepare, errors.KindPrepare).
			Detail("ffi_prep_cif returned %s", statusName(int(status))).
			Build()
	}

	return &ffi.Interface{
		Native: unsafe.Pointer(cif),
		Return: ret,
		Args:   args,
		ABI:    abi,
	}, nil
}

// Call performs the call. args must come from the same arena as cif; ret may
// be nil only for void functions. The context is checked before the call
// starts; a running native call cannot be interrupted.
func (p *Primitive) Call(ctx context.Context, cif *ffi.Interface, fn ffi.FuncPtr, ret unsafe.Pointer, args []unsafe.Pointer) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if cif == nil || cif.Native == nil {
		return errors.NilPointer(errors.PhaseCall, "call interface")
	}
	if fn == 0 {
		return errors.NilPointer(errors.PhaseCall, "function pointer")
	}
	if len(args) != cif.NumArgs() {
		return errors.New(errors.PhaseCall, errors.KindInvalidInput).
			Detail("got %d argument slots for %d arguments", len(args), cif.NumArgs()).
			Build()
	}
	if ret == nil && cif.Return.Kind != ffi.KindVoid {
		return errors.NilPointer(errors.PhaseCall, "return slot")
	}

	var argv *unsafe.Pointer
	if len(args) > 0 {
		argv = &args[0]
	}
	C.cc_call((*C.ffi_cif)(cif.Native), unsafe.Pointer(uintptr(fn)), ret, argv)
	return nil
}

func libffiType(t *ffi.Type) (*C.ffi_type, error) {
	ct := C.cc_type(C.int(t.Kind))
	if ct == nil {
		return nil, errors.Unsupported(errors.PhasePrepare, "type "+t.String())
	}
	return ct, nil
}

func statusName(status int) string {
	switch status {
	case C.FFI_BAD_TYPEDEF:
		return "FFI_BAD_TYPEDEF"
	case C.FFI_BAD_ABI:
		return "FFI_BAD_ABI"
	}
	return fmt.Sprintf("status %d", status)
}

var _ ffi.Primitive = (*Primitive)(nil)
