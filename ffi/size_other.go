//go:build !windows

package ffi

// SizeofLong is the size of a C long, which tracks the pointer width outside Windows.
const SizeofLong = SizeofPointer
