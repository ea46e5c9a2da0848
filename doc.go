// Package canoncall calls foreign functions through a canonical argument
// format.
//
// A caller packs arguments back to back at their canonical sizes, with no
// padding, and describes the target with type tags. The invoker resolves the
// tags, moves the arguments into naturally aligned scratch storage, performs
// the call through a foreign-call primitive and hands back the result in one
// canonical shape.
//
// # Architecture Overview
//
//	canoncall/
//	├── ctype/           Type tags and the tag-to-descriptor table
//	├── layout/          Struct layouts and canonical/native marshaling
//	├── invoke/          Function descriptors, argument packing, the invoker
//	├── ffi/             Foreign-call primitive contract, descriptors, arenas
//	│   ├── libffi/      Native primitive over libffi (linux, cgo)
//	│   └── wasm/        Primitive over wazero; guest memory as native memory
//	├── manifest/        YAML descriptor manifests and symbol binding
//	└── errors/          Structured error types
//
// # Quick Start
//
// Call a native function:
//
//	lib, err := libffi.Open("libdemo.so")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer lib.Close()
//
//	ptr, err := lib.Symbol("add")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	add := invoke.NewFunction("add", ctype.Int, ctype.Int, ctype.Int)
//	res, err := invoke.NewInvoker(libffi.New()).Invoke(ctx, add, ptr, invoke.NewArgs().Int(5).Int(10).Bytes())
//	// res.Int() == 15
//
// Bind a whole manifest against a WebAssembly module:
//
//	rt, _ := wasm.NewRuntime(ctx)
//	defer rt.Close(ctx)
//	mod, _ := rt.Instantiate(ctx, "demo", wasmBytes)
//
//	m, _ := manifest.LoadFile("demo.yaml")
//	funcs, err := m.Bind(invoke.NewInvoker(mod), mod)
//	res, err := funcs["add"].CallValues(ctx, 5, 10)
//
// # Structs
//
// Structs are passed by pointer only. Marshal native memory to canonical form
// with layout.Marshal and back with layout.Unmarshal; for WebAssembly targets
// the native side is a view of guest memory from wasm.Memory.View.
package canoncall
