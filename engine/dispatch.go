package engine

import (
	"context"
	"fmt"
	"sync"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	passage "github.com/passagelabs/passage"
)

// HostModule is the import namespace guests use to reach host callbacks.
const HostModule = "passage"

// MaxDispatchParams is the widest dispatch entry point exported to guests.
const MaxDispatchParams = 4

// dispatcher is the up-call table shared by every library on one engine.
// Guests import passage.dispatch0..dispatch4 and pass a registered slot id
// as the first argument; the host routes to the bound callback.
type dispatcher struct {
	mu    sync.RWMutex
	slots map[uint32]*slotEntry
	next  uint32
}

type slotEntry struct {
	cb        passage.Callback
	params    int
	hasResult bool
}

func newDispatcher() *dispatcher {
	// Slot 0 stays unused so a zero handle is never callable.
	return &dispatcher{slots: make(map[uint32]*slotEntry), next: 1}
}

func (d *dispatcher) Register(paramCount int, hasResult bool, cb passage.Callback) (passage.Handle, error) {
	if paramCount < 0 || paramCount > MaxDispatchParams {
		return 0, fmt.Errorf("callback takes %d parameters, dispatch table supports at most %d",
			paramCount, MaxDispatchParams)
	}
	if cb == nil {
		return 0, fmt.Errorf("callback cannot be nil")
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	slot := d.next
	d.next++
	d.slots[slot] = &slotEntry{cb: cb, params: paramCount, hasResult: hasResult}
	return passage.Handle(slot), nil
}

func (d *dispatcher) Release(h passage.Handle) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.slots, uint32(h))
}

func (d *dispatcher) lookup(slot uint32, params int) (*slotEntry, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	e, ok := d.slots[slot]
	if !ok {
		return nil, fmt.Errorf("dispatch to unregistered slot %d", slot)
	}
	if e.params != params {
		return nil, fmt.Errorf("slot %d takes %d parameters, guest passed %d", slot, e.params, params)
	}
	return e, nil
}

// instantiate builds and instantiates the host module exporting the
// dispatch entry points. Called once per engine before the first load.
func (d *dispatcher) instantiate(ctx context.Context, r wazero.Runtime) error {
	builder := r.NewHostModuleBuilder(HostModule)

	for n := 0; n <= MaxDispatchParams; n++ {
		params := make([]api.ValueType, 0, n+1)
		params = append(params, api.ValueTypeI32) // slot id
		for i := 0; i < n; i++ {
			params = append(params, api.ValueTypeI64)
		}

		nParams := n
		fn := func(ctx context.Context, mod api.Module, stack []uint64) {
			slot := uint32(stack[0])
			entry, err := d.lookup(slot, nParams)
			if err != nil {
				panic(err)
			}

			args := make([]uint64, nParams)
			copy(args, stack[1:1+nParams])

			rets, err := entry.cb(ctx, args)
			if err != nil {
				Logger().Error("callback failed",
					zap.Uint32("slot", slot),
					zap.Error(err))
				panic(err)
			}

			stack[0] = 0
			if entry.hasResult && len(rets) > 0 {
				stack[0] = rets[0]
			}
		}

		builder = builder.NewFunctionBuilder().
			WithGoModuleFunction(api.GoModuleFunc(fn), params, []api.ValueType{api.ValueTypeI64}).
			Export(fmt.Sprintf("dispatch%d", n))
	}

	_, err := builder.Instantiate(ctx)
	return err
}
