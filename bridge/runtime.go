package bridge

import (
	"context"
	"sync"

	passage "github.com/passagelabs/passage"
	"github.com/passagelabs/passage/bind"
	"github.com/passagelabs/passage/engine"
	"github.com/passagelabs/passage/errors"
	"github.com/passagelabs/passage/marshal"
)

// Runtime ties the layers together: it owns an engine, shares one compiled
// type cache across every bound interface, and keeps a process-lifetime
// arena per library for callbacks and allocations that should survive
// individual calls.
type Runtime struct {
	engine   *engine.Engine
	compiler *marshal.Compiler
	linker   *bind.Linker

	mu      sync.Mutex
	process map[passage.Library]*Arena
	libs    []passage.Library
	closed  bool
}

func NewRuntime(ctx context.Context) (*Runtime, error) {
	return NewRuntimeWithConfig(ctx, engine.Config{})
}

func NewRuntimeWithConfig(ctx context.Context, cfg engine.Config) (*Runtime, error) {
	eng, err := engine.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	compiler := marshal.NewCompiler()
	return &Runtime{
		engine:   eng,
		compiler: compiler,
		linker:   bind.NewLinkerWithCompiler(compiler),
		process:  make(map[passage.Library]*Arena),
	}, nil
}

func (r *Runtime) Compiler() *marshal.Compiler {
	return r.compiler
}

// LoadLibrary loads a wasm image. Loads are already serialized by the
// engine; the runtime only tracks the result for shutdown.
func (r *Runtime) LoadLibrary(ctx context.Context, binary []byte, name string) (passage.Library, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, errors.Load("runtime is closed", nil)
	}

	lib, err := r.engine.Load(ctx, binary, name)
	if err != nil {
		return nil, err
	}
	r.libs = append(r.libs, lib)
	return lib, nil
}

// Bind links an interface declaration against a loaded library.
func (r *Runtime) Bind(lib passage.Library, iface bind.Interface) (*bind.Table, error) {
	return r.linker.Link(lib, iface)
}

// Invoker returns a call executor for the library, sharing the runtime's
// compiled type cache.
func (r *Runtime) Invoker(lib passage.Library) *Invoker {
	return NewInvoker(lib, r.compiler)
}

// ProcessArena returns the library's process-lifetime arena, creating it
// on first use. It is closed by Runtime.Close, or explicitly by the
// caller, after which callbacks it owns stop working.
func (r *Runtime) ProcessArena(lib passage.Library) *Arena {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.process[lib]
	if !ok {
		a = NewArena(lib)
		r.process[lib] = a
	}
	return a
}

// NewCallback registers an up-call bound to receiver's method. A nil
// arena parks the slot in the library's process arena.
func (r *Runtime) NewCallback(lib passage.Library, receiver any, name string, arena *Arena) (passage.Handle, error) {
	if arena == nil {
		arena = r.ProcessArena(lib)
	}
	return NewCallback(lib, receiver, name, arena)
}

// Close releases every process arena, closes every loaded library and
// shuts the engine down.
func (r *Runtime) Close(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true

	for _, a := range r.process {
		a.Close()
	}
	r.process = nil

	var firstErr error
	for _, lib := range r.libs {
		if err := lib.Close(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	r.libs = nil

	if err := r.engine.Close(ctx); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}
