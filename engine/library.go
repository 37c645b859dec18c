package engine

import (
	"context"

	"github.com/tetratelabs/wazero/api"

	passage "github.com/passagelabs/passage"
)

// Library is one instantiated wasm image: its exported functions are the
// symbol surface, exported globals are named data symbols, and its linear
// memory plus guest allocator back the marshalling layer.
type Library struct {
	name     string
	module   api.Module
	mem      passage.Memory
	alloc    passage.Allocator
	dispatch *dispatcher
}

func (l *Library) Name() string {
	return l.name
}

// Function resolves an exported function, or nil if the symbol is absent.
func (l *Library) Function(name string) passage.Function {
	fn := l.module.ExportedFunction(name)
	if fn == nil {
		return nil
	}
	return &guestFunction{fn: fn}
}

// Global resolves an exported data symbol to its current value.
func (l *Library) Global(name string) (uint64, bool) {
	g := l.module.ExportedGlobal(name)
	if g == nil {
		return 0, false
	}
	return g.Get(), true
}

func (l *Library) Memory() passage.Memory {
	return l.mem
}

func (l *Library) Allocator() passage.Allocator {
	return l.alloc
}

func (l *Library) Callbacks() passage.CallbackRegistrar {
	return l.dispatch
}

func (l *Library) Close(ctx context.Context) error {
	return l.module.Close(ctx)
}

type guestFunction struct {
	fn api.Function
}

func (f *guestFunction) Call(ctx context.Context, args ...uint64) ([]uint64, error) {
	return f.fn.Call(ctx, args...)
}
