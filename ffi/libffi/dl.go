//go:build linux && cgo

package libffi

/*
#define _GNU_SOURCE
#include <dlfcn.h>
#include <stdlib.h>

static void* cc_dlopen(const char* path) {
	return dlopen(path, RTLD_LAZY | RTLD_LOCAL);
}

// Clear dlerror, call dlsym, and report the error alongside the symbol.
static void* cc_dlsym(void* h, const char* name, char** err) {
	dlerror();
	void* p = dlsym(h, name);
	char* e = dlerror();
	*err = e;
	return e ? NULL : p;
}

static const char* cc_dlerror(void) {
	return dlerror();
}
*/
import "C"

import (
	"sync"
	"unsafe"

	"github.com/wippyai/canoncall/errors"
	"github.com/wippyai/canoncall/ffi"
)

// Library is a dynamically loaded shared object.
type Library struct {
	handle unsafe.Pointer
	path   string
	mu     sync.Mutex
}

// Open loads the shared object at path. An empty path opens the running
// process, so symbols from already loaded libraries such as libc resolve.
func Open(path string) (*Library, error) {
	var cpath *C.char
	if path != "" {
		cpath = C.CString(path)
		defer C.free(unsafe.Pointer(cpath))
	}
	h := C.cc_dlopen(cpath)
	if h == nil {
		return nil, errors.New(errors.PhaseLink, errors.KindNotFound).
			Detail("dlopen(%q): %s", path, dlerr()).
			Build()
	}
	return &Library{handle: h, path: path}, nil
}

// Path returns the path the library was opened with.
func (l *Library) Path() string { return l.path }

// Symbol resolves name to a function pointer.
func (l *Library) Symbol(name string) (ffi.FuncPtr, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.handle == nil {
		return 0, errors.InvalidInput(errors.PhaseLink, "library is closed")
	}

	cname := C.CString(name)
	defer C.free(unsafe.Pointer(cname))
	var cerr *C.char
	p := C.cc_dlsym(l.handle, cname, &cerr)
	if cerr != nil {
		return 0, errors.New(errors.PhaseLink, errors.KindNotFound).
			Function(name).
			Detail("dlsym: %s", C.GoString(cerr)).
			Build()
	}
	if p == nil {
		return 0, errors.NotFound(errors.PhaseLink, "symbol", name)
	}
	return ffi.FuncPtr(uintptr(p)), nil
}

// Close unloads the library. Function pointers obtained from it must not be
// called afterwards.
func (l *Library) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.handle == nil {
		return nil
	}
	if C.dlclose(l.handle) != 0 {
		return errors.New(errors.PhaseLink, errors.KindInvalidInput).
			Detail("dlclose(%q): %s", l.path, dlerr()).
			Build()
	}
	l.handle = nil
	return nil
}

func dlerr() string {
	if e := C.cc_dlerror(); e != nil {
		return C.GoString(e)
	}
	return "unknown dlerror"
}
