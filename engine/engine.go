package engine

import (
	"context"
	"sync"

	"github.com/tetratelabs/wazero"
	"go.uber.org/zap"

	passage "github.com/passagelabs/passage"
	"github.com/passagelabs/passage/errors"
)

// Config holds configuration for engine creation.
type Config struct {
	// MemoryLimitPages sets the maximum memory per library in pages
	// (64KB each). 0 means the wazero default (4GB).
	MemoryLimitPages uint32

	// AllocName and FreeName are the guest exports used as the native
	// allocator. Empty values default to malloc/free.
	AllocName string
	FreeName  string
}

// Engine loads wasm images as callable libraries. Loads are serialized:
// compilation and instantiation share runtime-wide structures that must
// not be mutated concurrently.
type Engine struct {
	runtime  wazero.Runtime
	dispatch *dispatcher
	cfg      Config

	loadMu       sync.Mutex
	dispatchOnce sync.Once
	dispatchErr  error
}

func New(ctx context.Context) (*Engine, error) {
	return NewWithConfig(ctx, Config{})
}

func NewWithConfig(ctx context.Context, cfg Config) (*Engine, error) {
	runtimeCfg := wazero.NewRuntimeConfig()
	if cfg.MemoryLimitPages > 0 {
		runtimeCfg = runtimeCfg.WithMemoryLimitPages(cfg.MemoryLimitPages)
	}
	if cfg.AllocName == "" {
		cfg.AllocName = "malloc"
	}
	if cfg.FreeName == "" {
		cfg.FreeName = "free"
	}

	return &Engine{
		runtime:  wazero.NewRuntimeWithConfig(ctx, runtimeCfg),
		dispatch: newDispatcher(),
		cfg:      cfg,
	}, nil
}

// Load compiles and instantiates a wasm image as a library. The name must
// be unique per engine; it identifies the instance in errors and logs.
func (e *Engine) Load(ctx context.Context, binary []byte, name string) (*Library, error) {
	e.loadMu.Lock()
	defer e.loadMu.Unlock()

	e.dispatchOnce.Do(func() {
		e.dispatchErr = e.dispatch.instantiate(ctx, e.runtime)
	})
	if e.dispatchErr != nil {
		return nil, errors.Wrap(errors.PhaseLoad, errors.KindInstantiation, e.dispatchErr,
			"instantiate dispatch module")
	}

	compiled, err := e.runtime.CompileModule(ctx, binary)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseLoad, errors.KindInvalidData, err, "compile "+name)
	}

	// Libraries are reactors: run _initialize when present, never _start.
	module, err := e.runtime.InstantiateModule(ctx, compiled,
		wazero.NewModuleConfig().WithName(name).WithStartFunctions("_initialize"))
	if err != nil {
		return nil, errors.Instantiation(err)
	}

	lib := &Library{
		name:     name,
		module:   module,
		mem:      wrapMemory(module.Memory()),
		dispatch: e.dispatch,
	}

	if malloc := module.ExportedFunction(e.cfg.AllocName); malloc != nil {
		lib.alloc = &guestAllocator{
			ctx:    context.Background(),
			malloc: malloc,
			free:   module.ExportedFunction(e.cfg.FreeName),
		}
	}

	Logger().Info("library loaded",
		zap.String("name", name),
		zap.Int("size", len(binary)),
		zap.Bool("allocator", lib.alloc != nil))
	return lib, nil
}

func (e *Engine) Close(ctx context.Context) error {
	return e.runtime.Close(ctx)
}

var _ passage.Library = (*Library)(nil)
