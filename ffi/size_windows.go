package ffi

// SizeofLong is the size of a C long. Windows keeps long at 32 bits on every architecture.
const SizeofLong uintptr = 4
