// Package ctype maps abstract type tags to foreign-call descriptors and
// canonical sizes.
//
// The tag set is closed. Every tag except Void resolves to a descriptor and a
// positive canonical size. Struct values never cross the call boundary by
// value: a Struct tag is an opaque pointer both in native argument slots and
// in canonical buffers, so it shares the Pointer descriptor.
//
//	Tag       Descriptor        Canonical size
//	───────────────────────────────────────────
//	void      ffi.TypeVoid      0
//	char      ffi.TypeSChar     1
//	short     ffi.TypeSShort    2
//	int       ffi.TypeSInt      4
//	long      ffi.TypeSLong     4 or 8 (C long)
//	float     ffi.TypeFloat     4
//	double    ffi.TypeDouble    8
//	pointer   ffi.TypePointer   pointer width
//	struct    ffi.TypePointer   pointer width
package ctype

import (
	"strconv"
	"strings"

	"github.com/wippyai/canoncall/errors"
)

// Tag identifies a value's category for marshaling and call dispatch.
type Tag uint8

const (
	Void Tag = iota
	Char
	Short
	Int
	Long
	Float
	Double
	Pointer
	Struct

	numTags
)

// Class groups tags by how a result is represented.
type Class uint8

const (
	ClassNone Class = iota
	ClassIntegral
	ClassFloating
	ClassPointer
)

func (c Class) String() string {
	switch c {
	case ClassIntegral:
		return "integral"
	case ClassFloating:
		return "floating"
	case ClassPointer:
		return "pointer"
	default:
		return "none"
	}
}

var tagNames = [numTags]string{
	Void:    "void",
	Char:    "char",
	Short:   "short",
	Int:     "int",
	Long:    "long",
	Float:   "float",
	Double:  "double",
	Pointer: "pointer",
	Struct:  "struct",
}

// Valid reports whether t is one of the known tags.
func (t Tag) Valid() bool {
	return t < numTags
}

func (t Tag) String() string {
	if t.Valid() {
		return tagNames[t]
	}
	return "tag(" + strconv.Itoa(int(t)) + ")"
}

// Class returns the result class of t. Unknown tags have ClassNone.
func (t Tag) Class() Class {
	if !t.Valid() {
		return ClassNone
	}
	return table[t].class
}

// ParseTag resolves a tag by name. Names are case-insensitive; "ptr" and
// "void*" are accepted for pointer.
func ParseTag(name string) (Tag, error) {
	n := strings.ToLower(strings.TrimSpace(name))
	switch n {
	case "ptr", "void*":
		return Pointer, nil
	}
	for i, tn := range tagNames {
		if tn == n {
			return Tag(i), nil
		}
	}
	return 0, errors.New(errors.PhaseParse, errors.KindUnknownTag).
		Value(name).
		Detail("unknown type name %q", name).
		Build()
}
