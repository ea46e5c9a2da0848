package ffi

import (
	"strconv"
	"unsafe"
)

// Kind identifies a foreign-call type.
type Kind uint8

const (
	KindVoid Kind = iota
	KindSChar
	KindSShort
	KindSInt
	KindSLong
	KindFloat
	KindDouble
	KindPointer
)

var kindNames = [...]string{
	KindVoid:    "void",
	KindSChar:   "schar",
	KindSShort:  "sshort",
	KindSInt:    "sint",
	KindSLong:   "slong",
	KindFloat:   "float",
	KindDouble:  "double",
	KindPointer: "pointer",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "kind(" + strconv.Itoa(int(k)) + ")"
}

// Type describes how a value of one kind is laid out in native memory.
// The package-level records are shared and must not be modified.
type Type struct {
	Size  uintptr
	Align uintptr
	Kind  Kind
}

// Integral reports whether values of t travel in an integer register.
func (t *Type) Integral() bool {
	switch t.Kind {
	case KindSChar, KindSShort, KindSInt, KindSLong:
		return true
	}
	return false
}

func (t *Type) String() string {
	return t.Kind.String()
}

// Builtin descriptor records.
var (
	TypeVoid    = &Type{Kind: KindVoid, Size: 1, Align: 1}
	TypeSChar   = &Type{Kind: KindSChar, Size: 1, Align: 1}
	TypeSShort  = &Type{Kind: KindSShort, Size: 2, Align: 2}
	TypeSInt    = &Type{Kind: KindSInt, Size: 4, Align: 4}
	TypeSLong   = &Type{Kind: KindSLong, Size: SizeofLong, Align: SizeofLong}
	TypeFloat   = &Type{Kind: KindFloat, Size: 4, Align: 4}
	TypeDouble  = &Type{Kind: KindDouble, Size: 8, Align: unsafe.Alignof(float64(0))}
	TypePointer = &Type{Kind: KindPointer, Size: SizeofPointer, Align: SizeofPointer}
)
