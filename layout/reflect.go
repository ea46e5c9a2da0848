package layout

import (
	"reflect"
	"unsafe"

	"github.com/wippyai/canoncall/errors"
)

// Of derives a descriptor from a Go struct value, pointer or reflect.Type.
// Members follow field declaration order; blank fields are padding and are
// skipped. Nested structs and arrays become single members of their full size.
func Of(v any) (*Struct, error) {
	var t reflect.Type
	switch x := v.(type) {
	case nil:
		return nil, errors.NilPointer(errors.PhaseValidate, "struct value")
	case reflect.Type:
		t = x
	default:
		t = reflect.TypeOf(v)
	}
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return nil, errors.New(errors.PhaseValidate, errors.KindTypeMismatch).
			Type(t.String()).
			Detail("want a struct type").
			Build()
	}

	members := make([]Member, 0, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if f.Name == "_" {
			continue
		}
		members = append(members, Member{
			Name:   f.Name,
			Offset: f.Offset,
			Size:   f.Type.Size(),
		})
	}
	return New(t.Name(), members...), nil
}

// Bytes returns the native memory of *p as a byte slice. The slice aliases
// *p, so writes through it are visible in the value.
func Bytes[T any](p *T) []byte {
	if p == nil {
		return nil
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(p)), unsafe.Sizeof(*p))
}
