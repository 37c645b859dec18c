package engine

import (
	"context"
	"testing"
)

func TestDispatcherRegisterAndLookup(t *testing.T) {
	d := newDispatcher()

	called := false
	h, err := d.Register(2, true, func(ctx context.Context, args []uint64) ([]uint64, error) {
		called = true
		return []uint64{args[0] + args[1]}, nil
	})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if h == 0 {
		t.Fatal("slot 0 handed out; zero must stay uncallable")
	}

	entry, err := d.lookup(uint32(h), 2)
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	rets, err := entry.cb(context.Background(), []uint64{3, 4})
	if err != nil || !called || rets[0] != 7 {
		t.Errorf("dispatch = %v, %v (called=%v)", rets, err, called)
	}
}

func TestDispatcherArityMismatch(t *testing.T) {
	d := newDispatcher()
	h, err := d.Register(1, false, func(ctx context.Context, args []uint64) ([]uint64, error) {
		return nil, nil
	})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if _, err := d.lookup(uint32(h), 3); err == nil {
		t.Error("expected arity mismatch error")
	}
}

func TestDispatcherRelease(t *testing.T) {
	d := newDispatcher()
	h, err := d.Register(0, false, func(ctx context.Context, args []uint64) ([]uint64, error) {
		return nil, nil
	})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	d.Release(h)
	if _, err := d.lookup(uint32(h), 0); err == nil {
		t.Error("released slot still dispatchable")
	}
}

func TestDispatcherLimits(t *testing.T) {
	d := newDispatcher()
	cb := func(ctx context.Context, args []uint64) ([]uint64, error) { return nil, nil }

	if _, err := d.Register(MaxDispatchParams+1, false, cb); err == nil {
		t.Error("accepted callback wider than the dispatch table")
	}
	if _, err := d.Register(0, false, nil); err == nil {
		t.Error("accepted nil callback")
	}
}
