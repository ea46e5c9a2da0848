package invoke

import (
	"strings"

	"github.com/wippyai/canoncall/ctype"
	"github.com/wippyai/canoncall/errors"
)

// Function describes one foreign function signature. Descriptors are shared
// and read-only once published.
type Function struct {
	Name    string
	Args    []ctype.Tag
	NumArgs int
	Return  ctype.Tag
}

// NewFunction builds a descriptor with NumArgs matching args.
func NewFunction(name string, ret ctype.Tag, args ...ctype.Tag) *Function {
	return &Function{
		Name:    name,
		Return:  ret,
		Args:    args,
		NumArgs: len(args),
	}
}

// Validate reports a metadata error if the advertised argument count
// disagrees with the argument type list.
func (f *Function) Validate() error {
	if f == nil {
		return errors.NilPointer(errors.PhaseValidate, "function descriptor")
	}
	if f.NumArgs != len(f.Args) {
		err := errors.Metadata(errors.PhaseValidate, "argument count", uintptr(f.NumArgs), uintptr(len(f.Args)))
		err.Function = f.Name
		return err
	}
	return nil
}

// ArgsSize returns the length of a canonical argument buffer for f.
func (f *Function) ArgsSize() uintptr {
	var n uintptr
	for _, t := range f.Args {
		n += ctype.CanonicalSize(t)
	}
	return n
}

// String renders a C-like signature, e.g. "int add(int, int)".
func (f *Function) String() string {
	var b strings.Builder
	b.WriteString(f.Return.String())
	b.WriteByte(' ')
	b.WriteString(f.Name)
	b.WriteByte('(')
	for i, t := range f.Args {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(t.String())
	}
	b.WriteByte(')')
	return b.String()
}
