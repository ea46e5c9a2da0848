// Package invoke calls foreign functions through canonical argument buffers.
//
// A caller that knows nothing about the target's native ABI describes the
// function with tags and packs the arguments back to back:
//
//	add := invoke.NewFunction("add", ctype.Int, ctype.Int, ctype.Int)
//	args := invoke.NewArgs().Int(5).Int(10).Bytes()
//
//	iv := invoke.NewInvoker(libffi.New())
//	res, err := iv.Invoke(ctx, add, ptr, args)
//	// res.Int() == 15
//
// # Call sequence
//
// Each Invoke is one pass through:
//
//	Resolve         tags to ffi descriptors; fails before any allocation
//	Prepare         call interface from the primitive
//	Rehome          copy arguments into naturally aligned arena slots
//	Allocate-Return return slot, skipped for void
//	Call            the primitive performs the call
//	Extract         return slot to Result
//	Release         the arena is released on every path
//
// When the canonical offsets are already naturally aligned, which is the case
// for any signature without narrow arguments ahead of wider ones, Rehome is a
// single bulk copy.
//
// # Results
//
// Integral results are truncated to the declared width and sign-extended, so
// a char function returning 0xff yields -1. Float results are widened to
// float64. Pointer and struct results are addresses.
//
// # Structs
//
// Structs cross the call boundary by pointer only. Use the layout package to
// move struct contents between canonical and native form around the call.
package invoke
