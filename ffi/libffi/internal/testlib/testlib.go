//go:build linux && cgo

// Package testlib provides native call targets for the libffi tests.
package testlib

/*
#include <stddef.h>
#include <stdlib.h>
#include <string.h>

static int tl_add(int a, int b) { return a + b; }

static double tl_average(double a, double b) { return (a + b) / 2.0; }

static char tl_message[256];

static void tl_record_message(const char* s) {
	strncpy(tl_message, s, sizeof(tl_message) - 1);
}

static void tl_set_int(int* p) { *p = 42; }

static signed char tl_char_max(void) { return (signed char)0xff; }

static short tl_short_min(void) { return (short)0x8000; }

static float tl_half(float x) { return x / 2.0f; }

static long tl_lsum(long a, long b) { return a + b; }

static void* tl_identity(void* p) { return p; }

typedef struct {
	short x;
	long y;
} tl_point;

static long tl_point_sum(tl_point* p) { return p->x + p->y; }

static long tl_mixed(signed char c, double d, int i, short s) {
	return c + (long)d + i + s;
}

static int tl_seven(void) { return 7; }

static void* tl_fn(int which) {
	switch (which) {
	case 0: return (void*)&tl_add;
	case 1: return (void*)&tl_average;
	case 2: return (void*)&tl_record_message;
	case 3: return (void*)&tl_set_int;
	case 4: return (void*)&tl_char_max;
	case 5: return (void*)&tl_short_min;
	case 6: return (void*)&tl_half;
	case 7: return (void*)&tl_lsum;
	case 8: return (void*)&tl_identity;
	case 9: return (void*)&tl_point_sum;
	case 10: return (void*)&tl_mixed;
	case 11: return (void*)&tl_seven;
	}
	return NULL;
}

static const char* tl_last_message(void) { return tl_message; }

static void tl_reset_message(void) { tl_message[0] = 0; }

static size_t tl_point_offset_x(void) { return offsetof(tl_point, x); }
static size_t tl_point_offset_y(void) { return offsetof(tl_point, y); }
static size_t tl_point_size(void) { return sizeof(tl_point); }
*/
import "C"

import (
	"unsafe"

	"github.com/wippyai/canoncall/ffi"
)

// Target names a native test function.
type Target int

const (
	Add           Target = iota // int add(int, int)
	Average                     // double average(double, double)
	RecordMessage               // void record_message(const char*)
	SetInt                      // void set_int(int*), stores 42
	CharMax                     // signed char char_max(void), returns (signed char)0xff
	ShortMin                    // short short_min(void), returns (short)0x8000
	Half                        // float half(float)
	LongSum                     // long lsum(long, long)
	Identity                    // void* identity(void*)
	PointSum                    // long point_sum(point*)
	Mixed                       // long mixed(signed char, double, int, short)
	Seven                       // int seven(void)
)

// Ptr returns the target's address.
func (t Target) Ptr() ffi.FuncPtr {
	return ffi.FuncPtr(uintptr(C.tl_fn(C.int(t))))
}

// LastMessage returns the string most recently passed to RecordMessage.
func LastMessage() string {
	return C.GoString(C.tl_last_message())
}

// ResetMessage clears the recorded message.
func ResetMessage() {
	C.tl_reset_message()
}

// CString copies s to the C heap. Release it with Free.
func CString(s string) unsafe.Pointer {
	return unsafe.Pointer(C.CString(s))
}

// Malloc returns n zeroed bytes on the C heap. Release it with Free.
func Malloc(n uintptr) unsafe.Pointer {
	return C.calloc(1, C.size_t(n))
}

// Free releases memory from CString or Malloc.
func Free(p unsafe.Pointer) {
	C.free(p)
}

// PointLayout returns the native member offsets and size of
// struct { short x; long y; }.
func PointLayout() (x, y, size uintptr) {
	return uintptr(C.tl_point_offset_x()), uintptr(C.tl_point_offset_y()), uintptr(C.tl_point_size())
}
