package bridge

import (
	"context"
	stderrors "errors"
	"testing"

	passage "github.com/passagelabs/passage"
	perrors "github.com/passagelabs/passage/errors"
)

type eventSink struct {
	last int32
}

func (s *eventSink) OnEvent(code int32) int32 {
	s.last = code
	return code * 2
}

func (s *eventSink) Reset() {}

type confusingSink struct{}

func (confusingSink) Notify(code int32) {}
func (confusingSink) NOTIFY(code int32) {}

func TestNewCallbackDispatch(t *testing.T) {
	lib := newStubLib()
	arena := NewArena(lib)
	defer arena.Close()

	sink := &eventSink{}
	// Matching is case-insensitive.
	h, err := NewCallback(lib, sink, "onevent", arena)
	if err != nil {
		t.Fatalf("NewCallback: %v", err)
	}

	cb := lib.regs.cbs[h]
	if cb == nil {
		t.Fatal("callback not registered")
	}
	rets, err := cb(context.Background(), []uint64{uint64(uint32(21))})
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if sink.last != 21 {
		t.Errorf("receiver saw %d, want 21", sink.last)
	}
	if int32(uint32(rets[0])) != 42 {
		t.Errorf("result slot = %d, want 42", rets[0])
	}
}

func TestNewCallbackAmbiguity(t *testing.T) {
	lib := newStubLib()
	arena := NewArena(lib)
	defer arena.Close()

	tests := []struct {
		name     string
		receiver any
		method   string
	}{
		{"no match", &eventSink{}, "missing"},
		{"multiple matches", confusingSink{}, "notify"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewCallback(lib, tt.receiver, tt.method, arena)
			if err == nil {
				t.Fatal("expected ambiguity error")
			}
			var pe *perrors.Error
			if !stderrors.As(err, &pe) || pe.Kind != perrors.KindAmbiguousCallback {
				t.Errorf("error = %v, want ambiguous callback", err)
			}
			if len(lib.regs.cbs) != 0 {
				t.Error("slot registered despite match failure")
			}
		})
	}
}

type richSink struct{}

func (richSink) Process(ctx context.Context, h passage.Handle, scale float64) (passage.Handle, error) {
	if h == 0 {
		return 0, stderrors.New("zero handle")
	}
	return h + passage.Handle(scale), nil
}

func (richSink) Bad(s string) {}

func TestNewCallbackSignatures(t *testing.T) {
	lib := newStubLib()
	arena := NewArena(lib)
	defer arena.Close()

	h, err := NewCallback(lib, richSink{}, "process", arena)
	if err != nil {
		t.Fatalf("NewCallback: %v", err)
	}

	cb := lib.regs.cbs[h]
	rets, err := cb(context.Background(), []uint64{100, 0x4010000000000000}) // 4.0
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if rets[0] != 104 {
		t.Errorf("result = %d, want 104", rets[0])
	}

	// Error results propagate.
	if _, err := cb(context.Background(), []uint64{0, 0}); err == nil {
		t.Error("callback error swallowed")
	}

	// Aggregate parameter types cannot cross the boundary.
	if _, err := NewCallback(lib, richSink{}, "bad", arena); err == nil {
		t.Error("accepted string parameter")
	}
}

func TestArenaCloseReleasesCallbacks(t *testing.T) {
	lib := newStubLib()
	arena := NewArena(lib)

	h, err := NewCallback(lib, &eventSink{}, "reset", arena)
	if err != nil {
		t.Fatalf("NewCallback: %v", err)
	}
	if _, ok := lib.regs.cbs[h]; !ok {
		t.Fatal("slot missing after registration")
	}

	if err := arena.Close(); err != nil {
		t.Fatal(err)
	}
	if _, ok := lib.regs.cbs[h]; ok {
		t.Error("slot survived arena close")
	}

	// Closed arenas refuse new callbacks.
	if _, err := NewCallback(lib, &eventSink{}, "reset", arena); err == nil {
		t.Error("closed arena adopted a callback")
	}
}

func TestArenaAllocAfterClose(t *testing.T) {
	lib := newStubLib()
	arena := NewArena(lib)
	if _, err := arena.Alloc(8, 4); err != nil {
		t.Fatalf("Alloc: %v", err)
	}
	arena.Close()

	_, err := arena.Alloc(8, 4)
	if err == nil {
		t.Fatal("closed arena allocated")
	}
	var pe *perrors.Error
	if !stderrors.As(err, &pe) || pe.Kind != perrors.KindInvalidArena {
		t.Errorf("error = %v, want invalid arena", err)
	}

	// Close is idempotent.
	if err := arena.Close(); err != nil {
		t.Fatal(err)
	}
}
