package invoke

import (
	"context"

	"github.com/wippyai/canoncall/ffi"
)

// Func is a function descriptor bound to a call target and an invoker.
type Func struct {
	inv *Invoker
	fn  *Function
	ptr ffi.FuncPtr
}

// Bind checks fn once and returns a callable handle for ptr. Every tag must
// resolve and the pointer must be non-zero.
func (iv *Invoker) Bind(fn *Function, ptr ffi.FuncPtr) (*Func, error) {
	if _, err := iv.resolve(fn, ptr); err != nil {
		return nil, err
	}
	return &Func{inv: iv, fn: fn, ptr: ptr}, nil
}

// Descriptor returns the bound function descriptor.
func (f *Func) Descriptor() *Function { return f.fn }

// Ptr returns the bound call target.
func (f *Func) Ptr() ffi.FuncPtr { return f.ptr }

// Call invokes the function with a canonical argument buffer.
func (f *Func) Call(ctx context.Context, args []byte) (Result, error) {
	return f.inv.Invoke(ctx, f.fn, f.ptr, args)
}

// CallValues packs values with Pack and invokes the function.
func (f *Func) CallValues(ctx context.Context, values ...any) (Result, error) {
	buf, err := Pack(f.fn, values...)
	if err != nil {
		return Result{}, err
	}
	return f.Call(ctx, buf)
}
