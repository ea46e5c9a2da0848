package invoke

import (
	"context"
	stderrors "errors"
	"strconv"
	"unsafe"

	"go.uber.org/zap"

	"github.com/wippyai/canoncall/ctype"
	"github.com/wippyai/canoncall/errors"
	"github.com/wippyai/canoncall/ffi"
)

// Config holds invoker configuration
type Config struct {
	// Logger receives debug records for each call. nil means no logging.
	Logger *zap.Logger

	// ABI selects the calling convention handed to the primitive.
	ABI ffi.ABI
}

// Invoker calls foreign functions described by Function descriptors with
// canonical argument buffers. It keeps no state between calls and is safe
// for concurrent use as long as its primitive is.
type Invoker struct {
	prim   ffi.Primitive
	logger *zap.Logger
	abi    ffi.ABI
}

// NewInvoker creates an invoker over p with the default calling convention.
func NewInvoker(p ffi.Primitive) *Invoker {
	return NewInvokerWithConfig(p, nil)
}

// NewInvokerWithConfig creates an invoker over p with custom configuration.
func NewInvokerWithConfig(p ffi.Primitive, cfg *Config) *Invoker {
	iv := &Invoker{
		prim:   p,
		logger: zap.NewNop(),
		abi:    ffi.DefaultABI,
	}
	if cfg != nil {
		if cfg.Logger != nil {
			iv.logger = cfg.Logger
		}
		iv.abi = cfg.ABI
	}
	return iv
}

// Invoke calls the function at ptr described by fn.
//
// args holds the arguments in canonical form; at least fn.ArgsSize() bytes
// are read and trailing bytes are ignored. The buffer is copied, never
// retained.
//
// A call runs Resolve, Prepare, Rehome, Allocate-Return, Call and Extract in
// order. Scratch memory comes from one arena that is released on every exit
// path. Descriptor and buffer problems are reported before anything is
// allocated.
func (iv *Invoker) Invoke(ctx context.Context, fn *Function, ptr ffi.FuncPtr, args []byte) (Result, error) {
	res, err := iv.invoke(ctx, fn, ptr, args)
	if err != nil {
		iv.logger.Debug("invoke failed", zap.String("function", fnName(fn)), zap.Error(err))
		return Result{}, err
	}
	iv.logger.Debug("invoke",
		zap.String("function", fn.Name),
		zap.Int("args", len(fn.Args)),
		zap.Stringer("result", res),
	)
	return res, nil
}

func (iv *Invoker) invoke(ctx context.Context, fn *Function, ptr ffi.FuncPtr, args []byte) (Result, error) {
	sig, err := iv.resolve(fn, ptr)
	if err != nil {
		return Result{}, err
	}
	if uintptr(len(args)) < sig.canonSize {
		err := errors.BufferSize(errors.PhaseRehome, len(args), int(sig.canonSize), false)
		err.Function = fn.Name
		return Result{}, err
	}

	arena := iv.prim.NewArena()
	defer arena.Release()

	cif, err := iv.prim.Prepare(arena, iv.abi, sig.ret, sig.args)
	if err != nil {
		return Result{}, stageError(errors.PhasePrepare, errors.KindPrepare, fn, err, "prepare call interface")
	}

	argv, err := sig.rehome(arena, args)
	if err != nil {
		return Result{}, stageError(errors.PhaseRehome, errors.KindAllocation, fn, err, "rehome arguments")
	}

	var ret unsafe.Pointer
	if fn.Return != ctype.Void {
		ret, err = arena.Alloc(ffi.ReturnSlotSize(sig.ret), max(sig.ret.Align, ffi.ArgSize))
		if err != nil {
			return Result{}, stageError(errors.PhaseRehome, errors.KindAllocation, fn, err, "allocate return slot")
		}
	}

	if err := iv.prim.Call(ctx, cif, ptr, ret, argv); err != nil {
		return Result{}, stageError(errors.PhaseCall, errors.KindCallFailed, fn, err, "call "+fn.Name)
	}

	return extract(fn.Return, ret), nil
}

// signature is a resolved Function: descriptors plus canonical and native
// argument offsets.
type signature struct {
	ret        *ffi.Type
	args       []*ffi.Type
	canon      []uintptr
	native     []uintptr
	canonSize  uintptr
	nativeSize uintptr
	align      uintptr
	packed     bool // canonical offsets are already naturally aligned
}

func (iv *Invoker) resolve(fn *Function, ptr ffi.FuncPtr) (*signature, error) {
	if fn == nil {
		return nil, errors.NilPointer(errors.PhaseResolve, "function descriptor")
	}
	if ptr == 0 {
		err := errors.NilPointer(errors.PhaseResolve, "function pointer")
		err.Function = fn.Name
		return nil, err
	}
	if iv.prim == nil {
		return nil, errors.NilPointer(errors.PhaseResolve, "foreign-call primitive")
	}
	if err := fn.Validate(); err != nil {
		return nil, err
	}

	ret, err := ctype.Descriptor(fn.Return)
	if err != nil {
		return nil, tagError(err, fn, "return")
	}

	n := len(fn.Args)
	sig := &signature{
		ret:    ret,
		args:   make([]*ffi.Type, n),
		canon:  make([]uintptr, n),
		native: make([]uintptr, n),
		align:  1,
		packed: true,
	}
	for i, tag := range fn.Args {
		d, err := ctype.Descriptor(tag)
		if err != nil {
			return nil, tagError(err, fn, strconv.Itoa(i))
		}
		if tag == ctype.Void {
			return nil, errors.New(errors.PhaseResolve, errors.KindInvalidInput).
				Function(fn.Name).
				Path("args", strconv.Itoa(i)).
				Detail("void is not an argument type").
				Build()
		}
		size := ctype.CanonicalSize(tag)
		off := alignUp(sig.nativeSize, d.Align)

		sig.args[i] = d
		sig.canon[i] = sig.canonSize
		sig.native[i] = off
		if off != sig.canonSize {
			sig.packed = false
		}
		sig.canonSize += size
		sig.nativeSize = off + size
		sig.align = max(sig.align, d.Align)
	}
	return sig, nil
}

// rehome copies the canonical arguments into aligned arena storage and
// returns one pointer per argument slot.
func (s *signature) rehome(arena ffi.Arena, args []byte) ([]unsafe.Pointer, error) {
	if len(s.args) == 0 {
		return nil, nil
	}

	storage, err := arena.Alloc(s.nativeSize, s.align)
	if err != nil {
		return nil, err
	}
	dst := unsafe.Slice((*byte)(storage), s.nativeSize)
	if s.packed {
		copy(dst, args[:s.canonSize])
	} else {
		for i, t := range s.args {
			copy(dst[s.native[i]:s.native[i]+t.Size], args[s.canon[i]:s.canon[i]+t.Size])
		}
	}

	argv, err := arena.AllocPointers(len(s.args))
	if err != nil {
		return nil, err
	}
	for i := range s.args {
		argv[i] = unsafe.Add(storage, s.native[i])
	}
	return argv, nil
}

// extract converts the return slot into a Result. Integral results are
// truncated to their declared width and sign-extended from there.
func extract(tag ctype.Tag, slot unsafe.Pointer) Result {
	r := Result{tag: tag}
	switch tag {
	case ctype.Char:
		r.i = int64(int8(readArg(slot)))
	case ctype.Short:
		r.i = int64(int16(readArg(slot)))
	case ctype.Int:
		r.i = int64(int32(readArg(slot)))
	case ctype.Long:
		v := readArg(slot)
		if ffi.SizeofLong == 4 {
			v = int64(int32(v))
		}
		r.i = v
	case ctype.Float:
		r.f = float64(*(*float32)(slot))
	case ctype.Double:
		r.f = *(*float64)(slot)
	case ctype.Pointer, ctype.Struct:
		r.p = *(*uintptr)(slot)
	}
	return r
}

// readArg reads a register-width integral return slot.
func readArg(slot unsafe.Pointer) int64 {
	if ffi.ArgSize == 8 {
		return *(*int64)(slot)
	}
	return int64(*(*int32)(slot))
}

func alignUp(off, align uintptr) uintptr {
	if align == 0 {
		return off
	}
	return (off + align - 1) &^ (align - 1)
}

func tagError(err error, fn *Function, path string) error {
	var e *errors.Error
	if stderrors.As(err, &e) {
		e.Function = fn.Name
		e.Path = []string{"args", path}
		if path == "return" {
			e.Path = []string{"return"}
		}
	}
	return err
}

// stageError keeps structured errors from the primitive and wraps anything else.
func stageError(phase errors.Phase, kind errors.Kind, fn *Function, err error, detail string) error {
	var e *errors.Error
	if stderrors.As(err, &e) && e.Function == "" {
		e.Function = fn.Name
	}
	if e != nil && kind != errors.KindCallFailed {
		return err
	}
	wrapped := errors.Wrap(phase, kind, err, detail)
	wrapped.Function = fn.Name
	return wrapped
}

func fnName(fn *Function) string {
	if fn == nil {
		return ""
	}
	return fn.Name
}
