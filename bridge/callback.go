package bridge

import (
	"context"
	"math"
	"reflect"
	"strings"

	passage "github.com/passagelabs/passage"
	"github.com/passagelabs/passage/errors"
	"github.com/passagelabs/passage/marshal"
)

var (
	ctxType    = reflect.TypeOf((*context.Context)(nil)).Elem()
	errType    = reflect.TypeOf((*error)(nil)).Elem()
	handleType = reflect.TypeOf(passage.Handle(0))
)

// NewCallback builds a native-callable function pointer dispatching to a
// method on receiver. The method is matched by name case-insensitively;
// zero or multiple matches fail before anything registers. Parameters and
// results are restricted to scalars and passage.Handle, optionally with a
// leading context.Context parameter and a trailing error result.
//
// The arena owns the returned slot: native code may call it until the
// arena closes.
func NewCallback(lib passage.Library, receiver any, name string, arena *Arena) (passage.Handle, error) {
	if receiver == nil {
		return 0, errors.InvalidInput(errors.PhaseCallback, "callback receiver cannot be nil")
	}
	if arena == nil {
		return 0, errors.InvalidArena(errors.PhaseCallback, "callback requires an owning arena")
	}

	rv := reflect.ValueOf(receiver)
	method, err := matchMethod(rv, name)
	if err != nil {
		return 0, err
	}

	sig, err := classifyCallback(rv.Type().String(), name, method.Type())
	if err != nil {
		return 0, err
	}

	cb := makeDispatch(method, sig)
	h, err := lib.Callbacks().Register(len(sig.params), sig.hasResult, cb)
	if err != nil {
		return 0, errors.Wrap(errors.PhaseCallback, errors.KindInstantiation, err, "register callback")
	}
	if err := arena.adopt(h); err != nil {
		lib.Callbacks().Release(h)
		return 0, err
	}
	return h, nil
}

// matchMethod finds the single exported method whose name matches
// case-insensitively.
func matchMethod(rv reflect.Value, name string) (reflect.Value, error) {
	t := rv.Type()
	found := -1
	matches := 0
	for i := 0; i < t.NumMethod(); i++ {
		m := t.Method(i)
		if !m.IsExported() {
			continue
		}
		if strings.EqualFold(m.Name, name) {
			found = i
			matches++
		}
	}
	if matches != 1 {
		return reflect.Value{}, errors.AmbiguousCallback(t.String(), name, matches)
	}
	return rv.Method(found), nil
}

type callbackSig struct {
	params    []paramSlot
	hasCtx    bool
	hasResult bool
	result    paramSlot
	hasErr    bool
}

type paramSlot struct {
	goType reflect.Type
	kind   marshal.Kind
	handle bool
}

func classifyCallback(receiver, name string, ft reflect.Type) (callbackSig, error) {
	var sig callbackSig

	start := 0
	if ft.NumIn() > 0 && ft.In(0) == ctxType {
		sig.hasCtx = true
		start = 1
	}
	for i := start; i < ft.NumIn(); i++ {
		slot, ok := slotFor(ft.In(i))
		if !ok {
			return sig, errors.UnsupportedLayout(errors.PhaseCallback, []string{receiver, name},
				"parameter type "+ft.In(i).String()+" cannot cross a callback boundary")
		}
		sig.params = append(sig.params, slot)
	}

	nOut := ft.NumOut()
	if nOut > 0 && ft.Out(nOut-1) == errType {
		sig.hasErr = true
		nOut--
	}
	switch nOut {
	case 0:
	case 1:
		slot, ok := slotFor(ft.Out(0))
		if !ok {
			return sig, errors.UnsupportedLayout(errors.PhaseCallback, []string{receiver, name},
				"result type "+ft.Out(0).String()+" cannot cross a callback boundary")
		}
		sig.hasResult = true
		sig.result = slot
	default:
		return sig, errors.UnsupportedLayout(errors.PhaseCallback, []string{receiver, name},
			"callbacks return at most one value")
	}
	return sig, nil
}

// slotFor maps a Go type onto its 64-bit slot representation. Handles and
// other uint32-kinded types travel as raw addresses.
func slotFor(t reflect.Type) (paramSlot, bool) {
	switch t.Kind() {
	case reflect.Bool:
		return paramSlot{t, marshal.KindBool, false}, true
	case reflect.Int8:
		return paramSlot{t, marshal.KindI8, false}, true
	case reflect.Int16:
		return paramSlot{t, marshal.KindI16, false}, true
	case reflect.Int32:
		return paramSlot{t, marshal.KindI32, false}, true
	case reflect.Int64:
		return paramSlot{t, marshal.KindI64, false}, true
	case reflect.Float32:
		return paramSlot{t, marshal.KindF32, false}, true
	case reflect.Float64:
		return paramSlot{t, marshal.KindF64, false}, true
	case reflect.Uint8:
		return paramSlot{t, marshal.KindByte, false}, true
	case reflect.Uint32:
		return paramSlot{t, 0, true}, true
	default:
		return paramSlot{}, false
	}
}

func makeDispatch(method reflect.Value, sig callbackSig) passage.Callback {
	return func(ctx context.Context, slots []uint64) ([]uint64, error) {
		if len(slots) != len(sig.params) {
			return nil, errors.New(errors.PhaseCallback, errors.KindInvalidInput).
				Detail("native passed %d arguments, callback takes %d", len(slots), len(sig.params)).
				Build()
		}

		in := make([]reflect.Value, 0, len(slots)+1)
		if sig.hasCtx {
			in = append(in, reflect.ValueOf(ctx))
		}
		for i, slot := range slots {
			in = append(in, decodeSlot(sig.params[i], slot))
		}

		out := method.Call(in)

		if sig.hasErr {
			if errV := out[len(out)-1]; !errV.IsNil() {
				return nil, errV.Interface().(error)
			}
		}
		if !sig.hasResult {
			return nil, nil
		}
		return []uint64{encodeSlot(sig.result, out[0])}, nil
	}
}

func decodeSlot(p paramSlot, slot uint64) reflect.Value {
	if p.handle {
		return reflect.ValueOf(uint32(slot)).Convert(p.goType)
	}
	return reflect.ValueOf(marshal.FromSlot(p.kind, slot)).Convert(p.goType)
}

func encodeSlot(p paramSlot, v reflect.Value) uint64 {
	if p.handle {
		return uint64(uint32(v.Uint()))
	}
	switch p.kind {
	case marshal.KindBool:
		if v.Bool() {
			return 1
		}
		return 0
	case marshal.KindByte:
		return v.Uint()
	case marshal.KindF32:
		return uint64(math.Float32bits(float32(v.Float())))
	case marshal.KindF64:
		return math.Float64bits(v.Float())
	case marshal.KindI64:
		return uint64(v.Int())
	default:
		return uint64(uint32(int32(v.Int())))
	}
}
