// Package wasm is a foreign-call primitive backed by wazero. Exported
// WebAssembly functions are the call targets and guest linear memory plays
// the role of native memory: pointer and struct arguments are guest
// addresses.
//
//	rt, _ := wasm.NewRuntime(ctx)
//	defer rt.Close(ctx)
//	mod, _ := rt.Instantiate(ctx, "math", wasmBytes)
//	add, _ := mod.Symbol("add")
//	res, _ := invoke.NewInvoker(mod).Invoke(ctx, fn, add, args)
package wasm

import (
	"context"
	"fmt"

	"github.com/tetratelabs/wazero"
	"go.uber.org/zap"

	"github.com/wippyai/canoncall/errors"
)

// Config holds configuration for runtime creation
type Config struct {
	// Logger receives instantiation and symbol records. nil means no logging.
	Logger *zap.Logger

	// MemoryLimitPages sets the maximum memory per instance in pages (64KB each).
	// 0 means the wazero default.
	MemoryLimitPages uint32

	// CloseOnContextDone aborts a running call when its context is done.
	CloseOnContextDone bool
}

// Runtime compiles and instantiates modules that serve as call targets.
type Runtime struct {
	runtime wazero.Runtime
	logger  *zap.Logger
}

// NewRuntime creates a runtime with default configuration.
func NewRuntime(ctx context.Context) (*Runtime, error) {
	return NewRuntimeWithConfig(ctx, nil)
}

// NewRuntimeWithConfig creates a runtime with custom configuration.
func NewRuntimeWithConfig(ctx context.Context, cfg *Config) (*Runtime, error) {
	runtimeCfg := wazero.NewRuntimeConfig()
	logger := zap.NewNop()

	if cfg != nil {
		if cfg.MemoryLimitPages > 0 {
			runtimeCfg = runtimeCfg.WithMemoryLimitPages(cfg.MemoryLimitPages)
		}
		if cfg.CloseOnContextDone {
			runtimeCfg = runtimeCfg.WithCloseOnContextDone(true)
		}
		if cfg.Logger != nil {
			logger = cfg.Logger
		}
	}

	return &Runtime{
		runtime: wazero.NewRuntimeWithConfig(ctx, runtimeCfg),
		logger:  logger,
	}, nil
}

// Instantiate compiles wasmBytes and instantiates it under name. The module
// must not import anything the runtime does not provide.
func (r *Runtime) Instantiate(ctx context.Context, name string, wasmBytes []byte) (*Module, error) {
	compiled, err := r.runtime.CompileModule(ctx, wasmBytes)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseLink, errors.KindInvalidInput, err, fmt.Sprintf("compile module %q", name))
	}

	inst, err := r.runtime.InstantiateModule(ctx, compiled, wazero.NewModuleConfig().WithName(name))
	if err != nil {
		_ = compiled.Close(ctx)
		return nil, errors.Wrap(errors.PhaseLink, errors.KindInvalidInput, err, fmt.Sprintf("instantiate module %q", name))
	}

	m := newModule(name, inst, compiled, r.logger.With(zap.String("module", name)))
	r.logger.Debug("instantiated module",
		zap.String("module", name),
		zap.Int("exports", len(compiled.ExportedFunctions())),
		zap.Bool("memory", m.memory != nil),
	)
	return m, nil
}

// Close releases the runtime and every module it instantiated.
func (r *Runtime) Close(ctx context.Context) error {
	return r.runtime.Close(ctx)
}
