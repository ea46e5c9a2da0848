package invoke

import (
	"encoding/binary"
	"math"
	"reflect"
	"strconv"
	"unsafe"

	"github.com/wippyai/canoncall/ctype"
	"github.com/wippyai/canoncall/errors"
	"github.com/wippyai/canoncall/ffi"
)

// Args builds a canonical argument buffer: each argument's host-native bytes
// at its canonical size, back to back, with no padding.
type Args struct {
	buf []byte
}

// NewArgs returns an empty buffer builder.
func NewArgs() *Args {
	return &Args{buf: make([]byte, 0, 32)}
}

// Char appends a char argument.
func (a *Args) Char(v int8) *Args {
	a.buf = append(a.buf, byte(v))
	return a
}

// Short appends a short argument.
func (a *Args) Short(v int16) *Args {
	a.buf = binary.NativeEndian.AppendUint16(a.buf, uint16(v))
	return a
}

// Int appends an int argument.
func (a *Args) Int(v int32) *Args {
	a.buf = binary.NativeEndian.AppendUint32(a.buf, uint32(v))
	return a
}

// Long appends a long argument, truncated to 32 bits where C long is 32 bits.
func (a *Args) Long(v int64) *Args {
	if ffi.SizeofLong == 4 {
		a.buf = binary.NativeEndian.AppendUint32(a.buf, uint32(v))
	} else {
		a.buf = binary.NativeEndian.AppendUint64(a.buf, uint64(v))
	}
	return a
}

// Float appends a float argument.
func (a *Args) Float(v float32) *Args {
	a.buf = binary.NativeEndian.AppendUint32(a.buf, math.Float32bits(v))
	return a
}

// Double appends a double argument.
func (a *Args) Double(v float64) *Args {
	a.buf = binary.NativeEndian.AppendUint64(a.buf, math.Float64bits(v))
	return a
}

// Pointer appends a pointer argument. The caller keeps the pointee alive
// until the call returns.
func (a *Args) Pointer(p unsafe.Pointer) *Args {
	return a.Address(uintptr(p))
}

// Address appends a pointer argument given as a raw address, such as a
// WebAssembly guest offset.
func (a *Args) Address(p uintptr) *Args {
	if ffi.SizeofPointer == 4 {
		a.buf = binary.NativeEndian.AppendUint32(a.buf, uint32(p))
	} else {
		a.buf = binary.NativeEndian.AppendUint64(a.buf, uint64(p))
	}
	return a
}

// Struct appends a struct argument, which always travels as a pointer.
func (a *Args) Struct(p unsafe.Pointer) *Args {
	return a.Pointer(p)
}

// Len returns the number of bytes packed so far.
func (a *Args) Len() int { return len(a.buf) }

// Bytes returns the packed buffer. It aliases the builder's storage.
func (a *Args) Bytes() []byte { return a.buf }

// Reset empties the builder, keeping its storage.
func (a *Args) Reset() { a.buf = a.buf[:0] }

// Pack converts values to a canonical argument buffer for fn. Integral values
// are range-checked against the argument's width; pointer and struct
// arguments accept unsafe.Pointer, uintptr or nil.
func Pack(fn *Function, values ...any) ([]byte, error) {
	if fn == nil {
		return nil, errors.NilPointer(errors.PhaseRehome, "function descriptor")
	}
	if len(values) != len(fn.Args) {
		return nil, errors.New(errors.PhaseRehome, errors.KindInvalidInput).
			Function(fn.Name).
			Detail("got %d values for %d arguments", len(values), len(fn.Args)).
			Build()
	}

	a := &Args{buf: make([]byte, 0, fn.ArgsSize())}
	for i, tag := range fn.Args {
		if err := a.pack(tag, values[i], strconv.Itoa(i)); err != nil {
			err.Function = fn.Name
			return nil, err
		}
	}
	return a.buf, nil
}

func (a *Args) pack(tag ctype.Tag, v any, path string) *errors.Error {
	switch tag {
	case ctype.Char, ctype.Short, ctype.Int, ctype.Long:
		n, ok := toInt64(v)
		if !ok {
			return errors.TypeMismatch(errors.PhaseRehome, []string{path}, typeName(v), tag.String())
		}
		bits := int(ctype.CanonicalSize(tag) * 8)
		if bits < 64 && (n < -1<<(bits-1) || n > 1<<(bits-1)-1) {
			return errors.Overflow(errors.PhaseRehome, []string{path}, v, tag.String())
		}
		switch tag {
		case ctype.Char:
			a.Char(int8(n))
		case ctype.Short:
			a.Short(int16(n))
		case ctype.Int:
			a.Int(int32(n))
		default:
			a.Long(n)
		}
	case ctype.Float, ctype.Double:
		f, ok := toFloat64(v)
		if !ok {
			return errors.TypeMismatch(errors.PhaseRehome, []string{path}, typeName(v), tag.String())
		}
		if tag == ctype.Double {
			a.Double(f)
			break
		}
		if !math.IsInf(f, 0) && !math.IsNaN(f) && math.Abs(f) > math.MaxFloat32 {
			return errors.Overflow(errors.PhaseRehome, []string{path}, v, tag.String())
		}
		a.Float(float32(f))
	case ctype.Pointer, ctype.Struct:
		switch p := v.(type) {
		case nil:
			a.Address(0)
		case unsafe.Pointer:
			a.Pointer(p)
		case uintptr:
			a.Address(p)
		default:
			return errors.TypeMismatch(errors.PhaseRehome, []string{path}, typeName(v), tag.String())
		}
	default:
		err := errors.UnknownTag(errors.PhaseRehome, tag)
		err.Path = []string{path}
		return err
	}
	return nil
}

func toInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int8:
		return int64(n), true
	case int16:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case uint8:
		return int64(n), true
	case uint16:
		return int64(n), true
	case uint32:
		return int64(n), true
	case uint:
		if uint64(n) > math.MaxInt64 {
			return 0, false
		}
		return int64(n), true
	case uint64:
		if n > math.MaxInt64 {
			return 0, false
		}
		return int64(n), true
	}
	return 0, false
}

func toFloat64(v any) (float64, bool) {
	switch f := v.(type) {
	case float32:
		return float64(f), true
	case float64:
		return f, true
	}
	return 0, false
}

// typeName returns "nil" for nil values, avoiding reflect.TypeOf(nil) panic.
func typeName(v any) string {
	if v == nil {
		return "nil"
	}
	return reflect.TypeOf(v).String()
}
