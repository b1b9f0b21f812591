package engine

import (
	"context"
	"io"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"
	"go.uber.org/zap"

	pgwasm "github.com/driftdb/pgwasm"
	"github.com/driftdb/pgwasm/errors"
)

// Sentinel the write callback returns to the engine on a failed host write.
var writeFault int32 = -1

// Config holds configuration for engine instantiation
type Config struct {
	// MemoryLimitPages caps linear memory in 64KB pages.
	// 0 means the wazero default (65536 pages = 4GB).
	MemoryLimitPages uint32

	// Name is the instance name; useful when multiple engines run in one
	// process. Defaults to "pgwasm".
	Name string

	// Stdout and Stderr receive the engine's own log output. nil discards.
	Stdout io.Writer
	Stderr io.Writer

	// Args and Env are passed to the engine's WASI environment.
	Args []string
	Env  map[string]string
}

// Handle is one instantiated execution module plus its linear memory view.
// It is exclusively owned by one bridge; created once, destroyed on Close.
// Handle is NOT safe for concurrent use — the bridge's serializer guarantees
// one caller at a time.
type Handle struct {
	runtime wazero.Runtime
	module  api.Module
	serveFn api.Function
	bootFn  api.Function
	io      pgwasm.StreamIO
	stack   []uint64
	closed  bool
}

var _ pgwasm.Engine = (*Handle)(nil)

// Open compiles and instantiates the engine binary and resolves its entry
// points. The returned Handle has no stream bound yet; call BindIO before
// the first ServeOne.
func Open(ctx context.Context, wasmBytes []byte, cfg *Config) (*Handle, error) {
	if cfg == nil {
		cfg = &Config{}
	}

	runtimeCfg := wazero.NewRuntimeConfig()
	if cfg.MemoryLimitPages > 0 {
		runtimeCfg = runtimeCfg.WithMemoryLimitPages(cfg.MemoryLimitPages)
	}

	// One runtime per handle: the stream callbacks close over this Handle,
	// so instances never share callback state.
	r := wazero.NewRuntimeWithConfig(ctx, runtimeCfg)
	h := &Handle{runtime: r, stack: make([]uint64, 2)}

	wasi_snapshot_preview1.MustInstantiate(ctx, r)

	_, err := r.NewHostModuleBuilder(hostModule).
		NewFunctionBuilder().
		WithGoModuleFunction(api.GoModuleFunc(h.hostWrite),
			[]api.ValueType{api.ValueTypeI32, api.ValueTypeI32},
			[]api.ValueType{api.ValueTypeI32}).
		Export(importWrite).
		NewFunctionBuilder().
		WithGoModuleFunction(api.GoModuleFunc(h.hostRead),
			[]api.ValueType{api.ValueTypeI32, api.ValueTypeI32},
			[]api.ValueType{api.ValueTypeI32}).
		Export(importRead).
		Instantiate(ctx)
	if err != nil {
		r.Close(ctx)
		return nil, errors.Wrap(errors.PhaseEngine, errors.KindNotInitialized, err, "bind stream callbacks")
	}

	compiled, err := r.CompileModule(ctx, wasmBytes)
	if err != nil {
		r.Close(ctx)
		return nil, errors.Wrap(errors.PhaseEngine, errors.KindInvalidData, err, "compile engine binary")
	}

	name := cfg.Name
	if name == "" {
		name = "pgwasm"
	}
	modCfg := wazero.NewModuleConfig().WithName(name)
	if cfg.Stdout != nil {
		modCfg = modCfg.WithStdout(cfg.Stdout)
	}
	if cfg.Stderr != nil {
		modCfg = modCfg.WithStderr(cfg.Stderr)
	}
	if len(cfg.Args) > 0 {
		modCfg = modCfg.WithArgs(cfg.Args...)
	}
	for k, v := range cfg.Env {
		modCfg = modCfg.WithEnv(k, v)
	}

	mod, err := r.InstantiateModule(ctx, compiled, modCfg)
	if err != nil {
		r.Close(ctx)
		return nil, errors.Wrap(errors.PhaseEngine, errors.KindNotInitialized, err, "instantiate engine")
	}
	h.module = mod

	h.serveFn = mod.ExportedFunction(exportServe)
	if h.serveFn == nil {
		r.Close(ctx)
		return nil, errors.New(errors.PhaseEngine, errors.KindNotInitialized).
			Detail("engine binary does not export %q", exportServe).
			Build()
	}
	h.bootFn = mod.ExportedFunction(exportBoot)

	if h.bootFn != nil {
		if err := h.boot(ctx); err != nil {
			r.Close(ctx)
			return nil, err
		}
	}

	return h, nil
}

func (h *Handle) boot(ctx context.Context) error {
	h.stack[0] = 0
	if err := h.bootFn.CallWithStack(ctx, h.stack[:1]); err != nil {
		return errors.Wrap(errors.PhaseEngine, errors.KindNotInitialized, err, "engine bootstrap")
	}
	if status := int32(h.stack[0]); status != 0 {
		return errors.New(errors.PhaseEngine, errors.KindNotInitialized).
			Detail("engine bootstrap returned status %d", status).
			Build()
	}
	return nil
}

// BindIO installs the stream capability the callbacks route to.
func (h *Handle) BindIO(io pgwasm.StreamIO) error {
	if h.closed {
		return errors.Closed(errors.PhaseEngine, "engine handle")
	}
	h.io = io
	return nil
}

// ServeOne drives one blocking protocol interaction. The engine reads the
// outbound bytes through the read callback and emits responses through the
// write callback; the interaction ends when the engine's own protocol state
// machine stops reading.
func (h *Handle) ServeOne(ctx context.Context, available int, first byte) error {
	if h.closed {
		return errors.Closed(errors.PhaseEngine, "engine handle")
	}
	if h.io == nil {
		return errors.NotInitialized(errors.PhaseEngine, "stream io")
	}

	h.stack[0] = uint64(uint32(available))
	h.stack[1] = uint64(first)
	if err := h.serveFn.CallWithStack(ctx, h.stack[:2]); err != nil {
		return errors.Wrap(errors.PhaseEngine, errors.KindProtocol, err, "serve interaction")
	}
	if status := int32(h.stack[0]); status != 0 {
		return errors.New(errors.PhaseEngine, errors.KindProtocol).
			Detail("engine reported status %d", status).
			Build()
	}
	return nil
}

// MemorySize returns the current linear memory extent in bytes.
func (h *Handle) MemorySize() uint32 {
	if h.module == nil {
		return 0
	}
	if mem := h.module.Memory(); mem != nil {
		return mem.Size()
	}
	return 0
}

// Close releases the execution module and its memory. Safe to call twice.
func (h *Handle) Close(ctx context.Context) error {
	if h.closed {
		return nil
	}
	h.closed = true
	h.io = nil
	return h.runtime.Close(ctx)
}

// hostWrite implements write(ptr, len) -> accepted. It copies bytes out of
// the engine's linear memory and hands them to the bound stream. The memory
// view is re-validated against the current extent on every call; out-of-
// bounds access fails the write rather than being clamped.
func (h *Handle) hostWrite(ctx context.Context, mod api.Module, stack []uint64) {
	ptr := uint32(stack[0])
	length := uint32(stack[1])

	if h.io == nil {
		stack[0] = uint64(uint32(int32(writeFault)))
		return
	}
	if length == 0 {
		stack[0] = 0
		return
	}

	view, ok := mod.Memory().Read(ptr, length)
	if !ok {
		// Host/engine integration bug, not a user-data problem.
		Logger().Error("engine write out of bounds",
			zap.Uint32("ptr", ptr),
			zap.Uint32("len", length),
			zap.Uint32("extent", mod.Memory().Size()))
		stack[0] = uint64(uint32(int32(writeFault)))
		return
	}

	n := h.io.EngineWrite(view)
	stack[0] = uint64(uint32(int32(n)))
}

// hostRead implements read(ptr, maxLen) -> copied. It fills engine memory
// with outbound bytes; zero means end-of-input for the round. An unavailable
// or stale memory view yields zero rather than an error, so faults do not
// cascade into the engine's own error paths.
//
// The destination view is validated before the stream is consumed: the
// stream position only advances for bytes that actually land in engine
// memory, so a rejected buffer never loses part of the round.
func (h *Handle) hostRead(ctx context.Context, mod api.Module, stack []uint64) {
	ptr := uint32(stack[0])
	max := uint32(stack[1])

	if h.io == nil || max == 0 {
		stack[0] = 0
		return
	}

	view, ok := mod.Memory().Read(ptr, max)
	if !ok {
		Logger().Error("engine read buffer out of bounds",
			zap.Uint32("ptr", ptr),
			zap.Uint32("len", max),
			zap.Uint32("extent", mod.Memory().Size()))
		stack[0] = 0
		return
	}

	// view aliases the engine's linear memory, so the copy is the write.
	chunk := h.io.EngineRead(int(max))
	stack[0] = uint64(uint32(copy(view, chunk)))
}
