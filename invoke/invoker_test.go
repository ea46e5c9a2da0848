package invoke

import (
	"context"
	stderrors "errors"
	"math"
	"runtime"
	"sync"
	"testing"
	"unsafe"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/wippyai/canoncall/ctype"
	"github.com/wippyai/canoncall/errors"
	"github.com/wippyai/canoncall/ffi"
	"github.com/wippyai/canoncall/layout"
)

// storeTarget lives outside the Go stack so its address stays valid while it
// travels through a canonical buffer as a plain integer.
var storeTarget int32

func TestInvoke_AddInts(t *testing.T) {
	p := newFakePrimitive()
	add := p.register(addInts)
	iv := NewInvoker(p)

	fn := NewFunction("add", ctype.Int, ctype.Int, ctype.Int)
	args := NewArgs().Int(5).Int(10).Bytes()

	res, err := iv.Invoke(context.Background(), fn, add, args)
	if err != nil {
		t.Fatalf("Invoke failed: %v", err)
	}
	if res.Int() != 15 {
		t.Errorf("add(5, 10) = %d, want 15", res.Int())
	}
	if res.Tag() != ctype.Int || res.Class() != ctype.ClassIntegral {
		t.Errorf("result tag = %s, class = %s", res.Tag(), res.Class())
	}
}

func TestInvoke_MeanDoubles(t *testing.T) {
	p := newFakePrimitive()
	mean := p.register(meanDoubles)
	iv := NewInvoker(p)

	fn := NewFunction("average", ctype.Double, ctype.Double, ctype.Double)
	res, err := iv.Invoke(context.Background(), fn, mean, NewArgs().Double(3.0).Double(7.0).Bytes())
	if err != nil {
		t.Fatalf("Invoke failed: %v", err)
	}
	if math.Abs(res.Float()-5.0) > 1e-9 {
		t.Errorf("average(3, 7) = %v, want 5", res.Float())
	}
}

func TestInvoke_VoidPointer(t *testing.T) {
	p := newFakePrimitive()
	store := p.register(storeInt)
	iv := NewInvoker(p)

	storeTarget = 0
	fn := NewFunction("store", ctype.Void, ctype.Pointer)
	res, err := iv.Invoke(context.Background(), fn, store, NewArgs().Pointer(unsafe.Pointer(&storeTarget)).Bytes())
	if err != nil {
		t.Fatalf("Invoke failed: %v", err)
	}
	if storeTarget != 42 {
		t.Errorf("target = %d, want 42", storeTarget)
	}
	if res.Value() != nil || res.String() != "void" {
		t.Errorf("void result = %v (%s), want no payload", res.Value(), res)
	}
}

func TestInvoke_UnknownTag(t *testing.T) {
	tests := []struct {
		fn   *Function
		name string
	}{
		{NewFunction("bad_arg", ctype.Int, ctype.Int, ctype.Tag(42)), "argument"},
		{NewFunction("bad_ret", ctype.Tag(200), ctype.Int), "return"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newFakePrimitive()
			ptr := p.register(addInts)
			iv := NewInvoker(p)

			_, err := iv.Invoke(context.Background(), tt.fn, ptr, make([]byte, 16))
			if errors.KindOf(err) != errors.KindUnknownTag {
				t.Fatalf("Invoke error = %v, want unknown tag", err)
			}
			if arenas, _ := p.released(); arenas != 0 || p.calls != 0 {
				t.Errorf("arenas = %d, calls = %d; want nothing allocated or called", arenas, p.calls)
			}
			var e *errors.Error
			if stderrors.As(err, &e) && e.Function != tt.fn.Name {
				t.Errorf("error function = %q, want %q", e.Function, tt.fn.Name)
			}
		})
	}
}

func TestInvoke_PreCallFailures(t *testing.T) {
	p := newFakePrimitive()
	ptr := p.register(addInts)
	iv := NewInvoker(p)
	ctx := context.Background()
	args := NewArgs().Int(1).Int(2).Bytes()

	tests := []struct {
		fn   *Function
		name string
		kind errors.Kind
		ptr  ffi.FuncPtr
		args []byte
	}{
		{nil, "nil descriptor", errors.KindNilPointer, ptr, args},
		{NewFunction("add", ctype.Int, ctype.Int, ctype.Int), "nil pointer", errors.KindNilPointer, 0, args},
		{&Function{Name: "add", Return: ctype.Int, Args: []ctype.Tag{ctype.Int, ctype.Int}, NumArgs: 3}, "count mismatch", errors.KindMetadata, ptr, args},
		{NewFunction("add", ctype.Int, ctype.Int, ctype.Int), "short buffer", errors.KindBufferSize, ptr, args[:7]},
		{NewFunction("bad", ctype.Int, ctype.Void), "void argument", errors.KindInvalidInput, ptr, args},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := iv.Invoke(ctx, tt.fn, tt.ptr, tt.args)
			if errors.KindOf(err) != tt.kind {
				t.Errorf("Invoke error = %v, want %s", err, tt.kind)
			}
		})
	}

	if arenas, _ := p.released(); arenas != 0 || p.calls != 0 {
		t.Errorf("arenas = %d, calls = %d; want nothing allocated or called", arenas, p.calls)
	}

	if _, err := NewInvoker(nil).Invoke(ctx, NewFunction("f", ctype.Void), 1, nil); errors.KindOf(err) != errors.KindNilPointer {
		t.Errorf("nil primitive error = %v, want nil pointer", err)
	}
}

func TestInvoke_ExtraBytesIgnored(t *testing.T) {
	p := newFakePrimitive()
	add := p.register(addInts)
	iv := NewInvoker(p)

	args := NewArgs().Int(20).Int(22).Int(99).Bytes()
	res, err := iv.Invoke(context.Background(), NewFunction("add", ctype.Int, ctype.Int, ctype.Int), add, args)
	if err != nil {
		t.Fatalf("Invoke failed: %v", err)
	}
	if res.Int() != 42 {
		t.Errorf("add(20, 22) = %d, want 42", res.Int())
	}
}

// Every path that allocated releases the arena exactly once.
func TestInvoke_ReleasesScratch(t *testing.T) {
	fn := NewFunction("add", ctype.Int, ctype.Int, ctype.Int)
	args := NewArgs().Int(1).Int(2).Bytes()

	tests := []struct {
		setup func(p *fakePrimitive)
		name  string
		kind  errors.Kind
	}{
		{func(p *fakePrimitive) {}, "success", ""},
		{func(p *fakePrimitive) { p.prepareErr = stderrors.New("bad typedef") }, "prepare failure", errors.KindPrepare},
		{func(p *fakePrimitive) { p.failAlloc = 1 }, "argument storage allocation", errors.KindAllocation},
		{func(p *fakePrimitive) { p.failAlloc = 2 }, "pointer array allocation", errors.KindAllocation},
		{func(p *fakePrimitive) { p.failAlloc = 3 }, "return slot allocation", errors.KindAllocation},
		{func(p *fakePrimitive) { p.callErr = stderrors.New("trap") }, "call failure", errors.KindCallFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newFakePrimitive()
			ptr := p.register(addInts)
			tt.setup(p)

			_, err := NewInvoker(p).Invoke(context.Background(), fn, ptr, args)
			if errors.KindOf(err) != tt.kind {
				t.Errorf("Invoke error = %v, want kind %q", err, tt.kind)
			}
			arenas, releases := p.released()
			if arenas != 1 || releases != 1 {
				t.Errorf("arenas = %d, releases = %d; want 1, 1", arenas, releases)
			}
			wantCalls := 0
			if tt.kind == "" || tt.kind == errors.KindCallFailed {
				wantCalls = 1
			}
			if p.calls != wantCalls {
				t.Errorf("calls = %d, want %d", p.calls, wantCalls)
			}
		})
	}
}

func TestInvoke_CallErrorKeepsCause(t *testing.T) {
	p := newFakePrimitive()
	ptr := p.register(addInts)
	cause := stderrors.New("unreachable executed")
	p.callErr = cause

	_, err := NewInvoker(p).Invoke(context.Background(), NewFunction("add", ctype.Int, ctype.Int, ctype.Int), ptr, make([]byte, 8))
	if !stderrors.Is(err, cause) {
		t.Errorf("error %v should wrap %v", err, cause)
	}
	if errors.PhaseOf(err) != errors.PhaseCall {
		t.Errorf("phase = %q, want call", errors.PhaseOf(err))
	}
}

func TestInvoke_ConfigABI(t *testing.T) {
	p := newFakePrimitive()
	ptr := p.register(addInts)
	iv := NewInvokerWithConfig(p, &Config{ABI: 7})

	_, err := iv.Invoke(context.Background(), NewFunction("add", ctype.Int, ctype.Int, ctype.Int), ptr, make([]byte, 8))
	if errors.PhaseOf(err) != errors.PhasePrepare {
		t.Errorf("Invoke error = %v, want prepare phase", err)
	}
}

func TestInvoke_IntegralWidths(t *testing.T) {
	tests := []struct {
		name string
		tag  ctype.Tag
		slot int64
		want int64
	}{
		{"char positive", ctype.Char, 0x7f, 127},
		{"char sign bit", ctype.Char, 0xff, -1},
		{"char upper bits dropped", ctype.Char, 0x1234, 0x34},
		{"short sign bit", ctype.Short, 0x18000, -32768},
		{"short positive", ctype.Short, 1234, 1234},
		{"int sign bit", ctype.Int, 0xffffffff, -1},
		{"int negative", ctype.Int, -5, -5},
		{"long negative", ctype.Long, -7, -7},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newFakePrimitive()
			ptr := p.register(constant(tt.slot))

			res, err := NewInvoker(p).Invoke(context.Background(), NewFunction("f", tt.tag), ptr, nil)
			if err != nil {
				t.Fatalf("Invoke failed: %v", err)
			}
			if res.Int() != tt.want {
				t.Errorf("result = %d, want %d", res.Int(), tt.want)
			}
		})
	}
}

func TestInvoke_FloatResult(t *testing.T) {
	p := newFakePrimitive()
	half := p.register(halfFloat)

	fn := NewFunction("half", ctype.Float, ctype.Float)
	res, err := NewInvoker(p).Invoke(context.Background(), fn, half, NewArgs().Float(5).Bytes())
	if err != nil {
		t.Fatalf("Invoke failed: %v", err)
	}
	if res.Float() != 2.5 || res.Class() != ctype.ClassFloating {
		t.Errorf("half(5) = %v (%s), want 2.5", res.Float(), res.Class())
	}
}

func TestInvoke_PointerResult(t *testing.T) {
	p := newFakePrimitive()
	id := p.register(identity)

	for _, tag := range []ctype.Tag{ctype.Pointer, ctype.Struct} {
		fn := NewFunction("identity", tag, tag)
		res, err := NewInvoker(p).Invoke(context.Background(), fn, id, NewArgs().Address(0xdeadbeef).Bytes())
		if err != nil {
			t.Fatalf("Invoke(%s) failed: %v", tag, err)
		}
		if res.Pointer() != 0xdeadbeef {
			t.Errorf("identity(%s) = %#x, want 0xdeadbeef", tag, res.Pointer())
		}
		if res.String() != "0xdeadbeef" {
			t.Errorf("String() = %q", res.String())
		}
	}
}

// Narrow arguments ahead of wide ones leave canonical offsets unaligned; the
// invoker must still hand out naturally aligned slots.
func TestInvoke_RehomeAlignsArguments(t *testing.T) {
	p := newFakePrimitive()
	var aligned bool
	mixed := p.register(func(args []unsafe.Pointer, ret unsafe.Pointer) {
		aligned = uintptr(args[1])%unsafe.Alignof(float64(0)) == 0 &&
			uintptr(args[2])%4 == 0 &&
			uintptr(args[3])%2 == 0
		c := *(*int8)(args[0])
		d := *(*float64)(args[1])
		i := *(*int32)(args[2])
		s := *(*int16)(args[3])
		writeArg(ret, int64(c)+int64(d)+int64(i)+int64(s))
	})

	fn := NewFunction("mixed", ctype.Long, ctype.Char, ctype.Double, ctype.Int, ctype.Short)
	args := NewArgs().Char(-3).Double(1000).Int(70000).Short(-2).Bytes()
	if len(args) != 15 {
		t.Fatalf("canonical buffer = %d bytes, want 15", len(args))
	}

	res, err := NewInvoker(p).Invoke(context.Background(), fn, mixed, args)
	if err != nil {
		t.Fatalf("Invoke failed: %v", err)
	}
	if !aligned {
		t.Error("argument slots are not naturally aligned")
	}
	if res.Int() != 70995 {
		t.Errorf("mixed = %d, want 70995", res.Int())
	}
}

func TestInvoke_StructByPointer(t *testing.T) {
	if ffi.SizeofLong != 8 {
		t.Skip("point.Y is a 64-bit long")
	}
	type point struct {
		X int16
		Y int64
	}
	l, err := layout.Of(point{})
	if err != nil {
		t.Fatalf("layout.Of failed: %v", err)
	}

	p := newFakePrimitive()
	sum := p.register(func(args []unsafe.Pointer, ret unsafe.Pointer) {
		pt := *(**point)(args[0])
		writeArg(ret, int64(pt.X)+pt.Y)
	})

	canonical := NewArgs().Short(-4).Long(10).Bytes()
	native := new(point)
	if _, err := layout.Unmarshal(l, canonical, layout.Bytes(native)); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}

	fn := NewFunction("point_sum", ctype.Long, ctype.Struct)
	buf := NewArgs().Struct(unsafe.Pointer(native)).Bytes()
	res, err := NewInvoker(p).Invoke(context.Background(), fn, sum, buf)
	if err != nil {
		t.Fatalf("Invoke failed: %v", err)
	}
	if res.Int() != 6 {
		t.Errorf("point_sum = %d, want 6", res.Int())
	}
	runtime.KeepAlive(native)
}

func TestInvoke_NoArgs(t *testing.T) {
	p := newFakePrimitive()
	ptr := p.register(constant(9))

	res, err := NewInvoker(p).Invoke(context.Background(), NewFunction("nine", ctype.Int), ptr, nil)
	if err != nil {
		t.Fatalf("Invoke failed: %v", err)
	}
	if res.Int() != 9 {
		t.Errorf("nine() = %d, want 9", res.Int())
	}
	if p.lastArgs != nil {
		t.Errorf("argument slots = %v, want none", p.lastArgs)
	}
}

func TestInvoke_Concurrent(t *testing.T) {
	p := newFakePrimitive()
	add := p.register(addInts)
	iv := NewInvoker(p)
	fn := NewFunction("add", ctype.Int, ctype.Int, ctype.Int)

	var wg sync.WaitGroup
	errs := make(chan string, 64)
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				res, err := iv.Invoke(context.Background(), fn, add, NewArgs().Int(int32(g)).Int(int32(i)).Bytes())
				if err != nil || res.Int() != int64(g+i) {
					errs <- "wrong result"
					return
				}
			}
		}(g)
	}
	wg.Wait()
	close(errs)
	for e := range errs {
		t.Error(e)
	}

	arenas, releases := p.released()
	if arenas != 400 || releases != 400 {
		t.Errorf("arenas = %d, releases = %d; want 400, 400", arenas, releases)
	}
}

func TestInvoke_Logging(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	p := newFakePrimitive()
	add := p.register(addInts)
	iv := NewInvokerWithConfig(p, &Config{Logger: zap.New(core)})
	fn := NewFunction("add", ctype.Int, ctype.Int, ctype.Int)

	if _, err := iv.Invoke(context.Background(), fn, add, NewArgs().Int(1).Int(2).Bytes()); err != nil {
		t.Fatalf("Invoke failed: %v", err)
	}
	_, _ = iv.Invoke(context.Background(), fn, add, nil)

	entries := logs.All()
	if len(entries) != 2 {
		t.Fatalf("got %d log entries, want 2", len(entries))
	}
	if entries[0].Message != "invoke" || entries[0].ContextMap()["result"] != "3" {
		t.Errorf("success entry = %q %v", entries[0].Message, entries[0].ContextMap())
	}
	if entries[1].Message != "invoke failed" || entries[1].ContextMap()["function"] != "add" {
		t.Errorf("failure entry = %q %v", entries[1].Message, entries[1].ContextMap())
	}
}

func TestBind(t *testing.T) {
	p := newFakePrimitive()
	add := p.register(addInts)
	iv := NewInvoker(p)

	f, err := iv.Bind(NewFunction("add", ctype.Int, ctype.Int, ctype.Int), add)
	if err != nil {
		t.Fatalf("Bind failed: %v", err)
	}
	if f.Ptr() != add || f.Descriptor().Name != "add" {
		t.Errorf("bound %s at %#x", f.Descriptor(), f.Ptr())
	}

	res, err := f.CallValues(context.Background(), 40, int8(2))
	if err != nil {
		t.Fatalf("CallValues failed: %v", err)
	}
	if res.Int() != 42 {
		t.Errorf("add(40, 2) = %d, want 42", res.Int())
	}

	if _, err := f.CallValues(context.Background(), 1); errors.KindOf(err) != errors.KindInvalidInput {
		t.Errorf("CallValues with one value error = %v, want invalid input", err)
	}

	if _, err := iv.Bind(NewFunction("bad", ctype.Tag(99)), add); errors.KindOf(err) != errors.KindUnknownTag {
		t.Errorf("Bind(bad) error = %v, want unknown tag", err)
	}
	if _, err := iv.Bind(NewFunction("add", ctype.Int), 0); errors.KindOf(err) != errors.KindNilPointer {
		t.Errorf("Bind(nil ptr) error = %v, want nil pointer", err)
	}
}
