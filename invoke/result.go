package invoke

import (
	"strconv"

	"github.com/wippyai/canoncall/ctype"
)

// Result is the canonical form of a return value. It carries exactly one of a
// signed integer, a double or an address, selected by the function's
// declared return tag.
type Result struct {
	i   int64
	f   float64
	p   uintptr
	tag ctype.Tag
}

// Tag returns the declared return tag the result was produced for.
func (r Result) Tag() ctype.Tag { return r.tag }

// Class returns the payload class.
func (r Result) Class() ctype.Class { return r.tag.Class() }

// Int returns the integral payload, sign-extended from the declared width.
func (r Result) Int() int64 { return r.i }

// Float returns the floating payload. Float results are widened to float64.
func (r Result) Float() float64 { return r.f }

// Pointer returns the address payload of pointer and struct results.
func (r Result) Pointer() uintptr { return r.p }

// Value returns the payload as int64, float64 or uintptr, or nil for void.
func (r Result) Value() any {
	switch r.Class() {
	case ctype.ClassIntegral:
		return r.i
	case ctype.ClassFloating:
		return r.f
	case ctype.ClassPointer:
		return r.p
	}
	return nil
}

func (r Result) String() string {
	switch r.Class() {
	case ctype.ClassIntegral:
		return strconv.FormatInt(r.i, 10)
	case ctype.ClassFloating:
		return strconv.FormatFloat(r.f, 'g', -1, 64)
	case ctype.ClassPointer:
		return "0x" + strconv.FormatUint(uint64(r.p), 16)
	}
	return "void"
}
