package bridge

import (
	"context"
	"reflect"

	passage "github.com/passagelabs/passage"
	"github.com/passagelabs/passage/bind"
	"github.com/passagelabs/passage/errors"
	"github.com/passagelabs/passage/marshal"
)

// Invoker executes bound methods against one loaded library. It owns the
// ordering contract of a down-call: every input is fully written into
// native memory before the call starts, and every readable output is
// fully read back before Call returns.
type Invoker struct {
	lib passage.Library
	enc *marshal.Encoder
	dec *marshal.Decoder
}

func NewInvoker(lib passage.Library, compiler *marshal.Compiler) *Invoker {
	return &Invoker{
		lib: lib,
		enc: marshal.NewEncoderWithCompiler(compiler),
		dec: marshal.NewDecoderWithCompiler(compiler),
	}
}

// pending is a parameter awaiting read-back after the call.
type pending struct {
	param *bind.BoundParam
	value reflect.Value
	// addr is the marshalled block address, or the pointer-cell address
	// for double-pointer parameters.
	addr uint32
}

// Call invokes a bound method. Args must match the descriptor's parameters
// in order; additionally at most one *Arena may appear anywhere in the
// list to own the call's native allocations. Without one, a call-scoped
// arena is created and released on every exit path.
//
// Scalar results return as their Go scalar; pointer, string and opaque
// results return as passage.Handle.
func (inv *Invoker) Call(ctx context.Context, d *bind.Descriptor, args ...any) (any, error) {
	if !d.Available() {
		return nil, errors.MethodUnavailable(d.Name)
	}
	if ctx == nil {
		ctx = context.Background()
	}

	callArgs, caller, err := splitArena(args)
	if err != nil {
		return nil, err
	}
	if len(callArgs) != len(d.Params) {
		return nil, errors.New(errors.PhaseInvoke, errors.KindInvalidInput).
			Path(d.Name).
			Detail("got %d arguments, method takes %d", len(callArgs), len(d.Params)).
			Build()
	}

	// The arena is created lazily: critical and all-scalar methods never
	// touch native memory, so they skip allocation entirely.
	var implicit *Arena
	arena := func() *Arena {
		if caller != nil {
			return caller
		}
		if implicit == nil {
			implicit = NewArena(inv.lib)
		}
		return implicit
	}
	defer func() {
		if implicit != nil {
			implicit.Close()
		}
	}()

	slots := make([]uint64, len(d.Params))
	var reads []pending

	for i := range d.Params {
		p := &d.Params[i]
		v, err := inv.argValue(d, p, callArgs[i])
		if err != nil {
			return nil, err
		}

		slot, addr, err := inv.writeIn(p, v, arena)
		if err != nil {
			return nil, err
		}
		slots[i] = slot

		if p.Dir.ReadBack() {
			reads = append(reads, pending{param: p, value: v, addr: addr})
		}
	}

	rets, err := d.Func().Call(ctx, slots...)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseInvoke, errors.KindInvalidData, err, d.Name)
	}

	mem := inv.lib.Memory()
	for i := range reads {
		if err := inv.readBack(&reads[i], mem); err != nil {
			return nil, err
		}
	}

	return inv.result(d, rets)
}

// splitArena pulls the optional caller arena out of the argument list.
func splitArena(args []any) ([]any, *Arena, error) {
	var caller *Arena
	out := args[:0:0]
	for _, arg := range args {
		if a, ok := arg.(*Arena); ok {
			if caller != nil {
				return nil, nil, errors.InvalidArena(errors.PhaseInvoke, "more than one arena argument")
			}
			caller = a
			continue
		}
		out = append(out, arg)
	}
	if caller != nil && caller.Closed() {
		return nil, nil, errors.InvalidArena(errors.PhaseInvoke, "arena used after close")
	}
	return out, caller, nil
}

func (inv *Invoker) argValue(d *bind.Descriptor, p *bind.BoundParam, arg any) (reflect.Value, error) {
	if arg == nil {
		if p.Type.Kind == marshal.KindPointer && p.Type.Elem != nil {
			// Untyped nil for a record pointer marshals as the zero address.
			return reflect.Zero(p.Type.GoType), nil
		}
		return reflect.Value{}, errors.New(errors.PhaseInvoke, errors.KindNilPointer).
			Path(d.Name, p.Name).
			Detail("argument is nil").
			Build()
	}

	v := reflect.ValueOf(arg)
	if v.Type() != p.Type.GoType {
		return reflect.Value{}, errors.New(errors.PhaseInvoke, errors.KindTypeMismatch).
			Path(d.Name, p.Name).
			GoType(v.Type().String()).
			Detail("method takes %s", p.Type.GoType).
			Build()
	}
	return v, nil
}

// writeIn produces the call slot for one parameter and, for read-back
// parameters, the address their contents live at.
func (inv *Invoker) writeIn(p *bind.BoundParam, v reflect.Value, arena func() *Arena) (uint64, uint32, error) {
	if p.ByValue() {
		if p.Type.Kind == marshal.KindPointer {
			return v.Uint(), 0, nil
		}
		slot, err := marshal.Slot(p.Type, v)
		return slot, 0, err
	}

	a := arena()
	var addr uint32
	var err error
	if p.Dir == bind.DirOut {
		// Output-only contents come from the callee: allocate the block
		// without copying the managed value in.
		addr, err = inv.enc.Reserve(p.Type, v, inv.lib.Memory(), a, nil)
	} else {
		addr, err = inv.enc.Marshal(p.Type, v, inv.lib.Memory(), a, nil)
	}
	if err != nil {
		return 0, 0, err
	}

	if p.PtrPtr {
		// The callee gets the address of a pointer cell it may repoint.
		cell, err := a.Alloc(marshal.PointerSize, marshal.PointerSize)
		if err != nil {
			return 0, 0, errors.AllocationFailed(errors.PhaseEncode, marshal.PointerSize, marshal.PointerSize)
		}
		if err := inv.lib.Memory().WriteU32(cell, addr); err != nil {
			return 0, 0, errors.Wrap(errors.PhaseEncode, errors.KindOutOfBounds, err, "pointer cell")
		}
		return uint64(cell), cell, nil
	}

	return uint64(addr), addr, nil
}

func (inv *Invoker) readBack(r *pending, mem passage.Memory) error {
	addr := r.addr
	if r.param.PtrPtr {
		// Follow whatever the callee left in the cell.
		repointed, err := mem.ReadU32(addr)
		if err != nil {
			return errors.Wrap(errors.PhaseDecode, errors.KindOutOfBounds, err, "pointer cell")
		}
		addr = repointed
	}
	if addr == 0 {
		return nil
	}
	return inv.dec.ReadInto(r.param.Type, addr, r.value, mem)
}

func (inv *Invoker) result(d *bind.Descriptor, rets []uint64) (any, error) {
	if d.Ret.Kind == bind.RetVoid {
		return nil, nil
	}
	if len(rets) == 0 {
		return nil, errors.New(errors.PhaseInvoke, errors.KindInvalidData).
			Path(d.Name).
			Detail("method declared a result but returned none").
			Build()
	}
	if d.Ret.Kind == bind.RetHandle {
		return passage.Handle(uint32(rets[0])), nil
	}
	return marshal.FromSlot(d.Ret.Scalar, rets[0]), nil
}
