package ctype

import (
	"github.com/wippyai/canoncall/errors"
	"github.com/wippyai/canoncall/ffi"
)

type entry struct {
	desc  *ffi.Type
	size  uintptr
	class Class
}

// table is indexed by Tag. It is never written after initialization.
var table = [numTags]entry{
	Void:    {desc: ffi.TypeVoid, size: 0, class: ClassNone},
	Char:    {desc: ffi.TypeSChar, size: 1, class: ClassIntegral},
	Short:   {desc: ffi.TypeSShort, size: 2, class: ClassIntegral},
	Int:     {desc: ffi.TypeSInt, size: 4, class: ClassIntegral},
	Long:    {desc: ffi.TypeSLong, size: ffi.SizeofLong, class: ClassIntegral},
	Float:   {desc: ffi.TypeFloat, size: 4, class: ClassFloating},
	Double:  {desc: ffi.TypeDouble, size: 8, class: ClassFloating},
	Pointer: {desc: ffi.TypePointer, size: ffi.SizeofPointer, class: ClassPointer},
	Struct:  {desc: ffi.TypePointer, size: ffi.SizeofPointer, class: ClassPointer},
}

// Descriptor returns the foreign-call descriptor for t.
func Descriptor(t Tag) (*ffi.Type, error) {
	if !t.Valid() {
		return nil, errors.UnknownTag(errors.PhaseResolve, t)
	}
	return table[t].desc, nil
}

// CanonicalSize returns the packed size of t, or 0 for Void and unknown tags.
func CanonicalSize(t Tag) uintptr {
	if !t.Valid() {
		return 0
	}
	return table[t].size
}

// Align returns the natural alignment of t's native representation, or 1
// for Void and unknown tags.
func Align(t Tag) uintptr {
	if !t.Valid() || t == Void {
		return 1
	}
	return table[t].desc.Align
}
