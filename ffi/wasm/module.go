package wasm

import (
	"context"
	"fmt"
	"math"
	"slices"
	"strconv"
	"sync"
	"unsafe"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	"github.com/wippyai/canoncall/errors"
	"github.com/wippyai/canoncall/ffi"
)

// Module is an instantiated module acting as a foreign-call primitive.
// Function handles returned by Symbol are only meaningful to the module that
// issued them. Calls into one module are serialized.
type Module struct {
	inst     api.Module
	compiled wazero.CompiledModule
	memory   *Memory
	logger   *zap.Logger
	name     string

	mu      sync.RWMutex
	funcs   []export
	handles map[string]ffi.FuncPtr

	callMu sync.Mutex
}

type export struct {
	fn      api.Function
	name    string
	params  []api.ValueType
	results []api.ValueType
}

func newModule(name string, inst api.Module, compiled wazero.CompiledModule, logger *zap.Logger) *Module {
	m := &Module{
		inst:     inst,
		compiled: compiled,
		logger:   logger,
		name:     name,
		handles:  make(map[string]ffi.FuncPtr),
	}
	if mem := inst.Memory(); mem != nil {
		m.memory = &Memory{mem: mem}
	}
	return m
}

// Name returns the module name.
func (m *Module) Name() string { return m.name }

// Memory returns the module's linear memory, or nil if it exports none.
func (m *Module) Memory() *Memory { return m.memory }

// Symbol resolves an exported function to a call handle. Repeated lookups
// return the same handle.
func (m *Module) Symbol(name string) (ffi.FuncPtr, error) {
	m.mu.RLock()
	ptr, ok := m.handles[name]
	m.mu.RUnlock()
	if ok {
		return ptr, nil
	}

	fn := m.inst.ExportedFunction(name)
	if fn == nil {
		return 0, errors.NotFound(errors.PhaseLink, "export", name)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if ptr, ok := m.handles[name]; ok {
		return ptr, nil
	}
	def := fn.Definition()
	m.funcs = append(m.funcs, export{
		fn:      fn,
		name:    name,
		params:  def.ParamTypes(),
		results: def.ResultTypes(),
	})
	ptr = ffi.FuncPtr(len(m.funcs))
	m.handles[name] = ptr

	m.logger.Debug("bound symbol", zap.String("symbol", name), zap.Uintptr("handle", uintptr(ptr)))
	return ptr, nil
}

func (m *Module) lookup(ptr ffi.FuncPtr) (export, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	i := int(ptr) - 1
	if i < 0 || i >= len(m.funcs) {
		return export{}, false
	}
	return m.funcs[i], true
}

// NewArena returns a Go heap arena. Argument slots only need to live on the
// host side; Call lowers them onto the wazero stack.
func (m *Module) NewArena() ffi.Arena {
	return ffi.NewHeapArena()
}

// Prepare checks that every type has a core WebAssembly representation.
func (m *Module) Prepare(_ ffi.Arena, abi ffi.ABI, ret *ffi.Type, args []*ffi.Type) (*ffi.Interface, error) {
	if abi != ffi.DefaultABI {
		return nil, errors.Unsupported(errors.PhasePrepare, fmt.Sprintf("abi %d", abi))
	}
	if ret == nil {
		return nil, errors.NilPointer(errors.PhasePrepare, "return type")
	}
	if ret.Kind != ffi.KindVoid {
		if _, err := valueType(ret); err != nil {
			return nil, err
		}
	}
	for _, t := range args {
		if t == nil {
			return nil, errors.NilPointer(errors.PhasePrepare, "argument type")
		}
		if _, err := valueType(t); err != nil {
			return nil, err
		}
	}
	return &ffi.Interface{ABI: abi, Return: ret, Args: args}, nil
}

// Call runs the export behind fn. Its core signature must match cif exactly.
func (m *Module) Call(ctx context.Context, cif *ffi.Interface, fn ffi.FuncPtr, ret unsafe.Pointer, args []unsafe.Pointer) error {
	if cif == nil {
		return errors.NilPointer(errors.PhaseCall, "call interface")
	}
	if ret == nil && cif.Return.Kind != ffi.KindVoid {
		return errors.NilPointer(errors.PhaseCall, "return slot")
	}
	exp, ok := m.lookup(fn)
	if !ok {
		return errors.NotFound(errors.PhaseCall, "function handle", fmt.Sprintf("%#x", uintptr(fn)))
	}
	if err := checkSignature(exp, cif); err != nil {
		return err
	}
	if len(args) != len(cif.Args) {
		return errors.New(errors.PhaseCall, errors.KindInvalidInput).
			Function(exp.name).
			Detail("got %d argument slots for %d arguments", len(args), len(cif.Args)).
			Build()
	}

	stack := make([]uint64, max(len(exp.params), len(exp.results)))
	for i, t := range cif.Args {
		v, err := lower(t, args[i])
		if err != nil {
			err.Function = exp.name
			err.Path = []string{"args", strconv.Itoa(i)}
			return err
		}
		stack[i] = v
	}

	m.callMu.Lock()
	err := exp.fn.CallWithStack(ctx, stack)
	m.callMu.Unlock()
	if err != nil {
		return err
	}

	if cif.Return.Kind != ffi.KindVoid {
		lift(cif.Return, stack[0], ret)
	}
	return nil
}

// Close closes the module instance.
func (m *Module) Close(ctx context.Context) error {
	if err := m.inst.Close(ctx); err != nil {
		return err
	}
	return m.compiled.Close(ctx)
}

func checkSignature(exp export, cif *ffi.Interface) error {
	want := make([]api.ValueType, len(cif.Args))
	for i, t := range cif.Args {
		vt, err := valueType(t)
		if err != nil {
			return err
		}
		want[i] = vt
	}
	var wantResults []api.ValueType
	if cif.Return.Kind != ffi.KindVoid {
		vt, err := valueType(cif.Return)
		if err != nil {
			return err
		}
		wantResults = []api.ValueType{vt}
	}

	if !slices.Equal(exp.params, want) || !slices.Equal(exp.results, wantResults) {
		return errors.New(errors.PhaseCall, errors.KindTypeMismatch).
			Function(exp.name).
			Detail("export has signature %s, call needs %s", signature(exp.params, exp.results), signature(want, wantResults)).
			Build()
	}
	return nil
}

// valueType maps a descriptor to its core WebAssembly value type.
func valueType(t *ffi.Type) (api.ValueType, error) {
	switch t.Kind {
	case ffi.KindSChar, ffi.KindSShort, ffi.KindSInt, ffi.KindPointer:
		return api.ValueTypeI32, nil
	case ffi.KindSLong:
		if t.Size == 8 {
			return api.ValueTypeI64, nil
		}
		return api.ValueTypeI32, nil
	case ffi.KindFloat:
		return api.ValueTypeF32, nil
	case ffi.KindDouble:
		return api.ValueTypeF64, nil
	}
	return 0, errors.Unsupported(errors.PhasePrepare, "type "+t.String())
}

// lower reads one argument slot and encodes it for the wazero stack.
func lower(t *ffi.Type, slot unsafe.Pointer) (uint64, *errors.Error) {
	switch t.Kind {
	case ffi.KindSChar:
		return api.EncodeI32(int32(*(*int8)(slot))), nil
	case ffi.KindSShort:
		return api.EncodeI32(int32(*(*int16)(slot))), nil
	case ffi.KindSInt:
		return api.EncodeI32(*(*int32)(slot)), nil
	case ffi.KindSLong:
		if t.Size == 8 {
			return api.EncodeI64(*(*int64)(slot)), nil
		}
		return api.EncodeI32(*(*int32)(slot)), nil
	case ffi.KindFloat:
		return api.EncodeF32(*(*float32)(slot)), nil
	case ffi.KindDouble:
		return api.EncodeF64(*(*float64)(slot)), nil
	case ffi.KindPointer:
		p := *(*uintptr)(slot)
		if uint64(p) > math.MaxUint32 {
			return 0, errors.Overflow(errors.PhaseCall, nil, p, "guest address")
		}
		return api.EncodeU32(uint32(p)), nil
	}
	return 0, errors.Unsupported(errors.PhaseCall, "type "+t.String())
}

// lift writes a wazero result into the return slot. Integral results are
// widened to ffi.ArgSize.
func lift(t *ffi.Type, v uint64, ret unsafe.Pointer) {
	switch t.Kind {
	case ffi.KindSChar, ffi.KindSShort, ffi.KindSInt:
		writeArg(ret, int64(api.DecodeI32(v)))
	case ffi.KindSLong:
		if t.Size == 8 {
			writeArg(ret, int64(v))
		} else {
			writeArg(ret, int64(api.DecodeI32(v)))
		}
	case ffi.KindFloat:
		*(*float32)(ret) = api.DecodeF32(v)
	case ffi.KindDouble:
		*(*float64)(ret) = api.DecodeF64(v)
	case ffi.KindPointer:
		*(*uintptr)(ret) = uintptr(api.DecodeU32(v))
	}
}

func writeArg(ret unsafe.Pointer, v int64) {
	if ffi.ArgSize == 8 {
		*(*int64)(ret) = v
		return
	}
	*(*int32)(ret) = int32(v)
}

func signature(params, results []api.ValueType) string {
	s := "("
	for i, p := range params {
		if i > 0 {
			s += ", "
		}
		s += api.ValueTypeName(p)
	}
	s += ")"
	for _, r := range results {
		s += " " + api.ValueTypeName(r)
	}
	return s
}

var _ ffi.Primitive = (*Module)(nil)
