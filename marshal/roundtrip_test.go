package marshal

import (
	"math"
	"reflect"
	"testing"

	perrors "github.com/passagelabs/passage/errors"
	"github.com/passagelabs/passage/schema"
)

type fixture struct {
	mem    *testMem
	alloc  *testAlloc
	allocs *AllocationList
	enc    *Encoder
	dec    *Decoder
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	c := NewCompiler()
	return &fixture{
		mem:    newTestMem(1 << 16),
		alloc:  newTestAlloc(),
		allocs: NewAllocationList(),
		enc:    NewEncoderWithCompiler(c),
		dec:    NewDecoderWithCompiler(c),
	}
}

func (f *fixture) compile(t *testing.T, st schema.Type, goVal any) *CompiledType {
	t.Helper()
	ct, err := f.enc.Compiler().Compile(st, reflect.TypeOf(goVal))
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	return ct
}

func TestRoundtripScalarRecord(t *testing.T) {
	type sample struct {
		B   bool
		I8  int8
		I16 int16
		I32 int32
		I64 int64
		F32 float32
		F64 float64
		U8  uint8
	}

	rec := &schema.Record{TypeName: "sample", Fields: []schema.Field{
		{Name: "b", Type: schema.Bool{}},
		{Name: "i8", Type: schema.I8{}},
		{Name: "i16", Type: schema.I16{}},
		{Name: "i32", Type: schema.I32{}},
		{Name: "i64", Type: schema.I64{}},
		{Name: "f32", Type: schema.F32{}},
		{Name: "f64", Type: schema.F64{}},
		{Name: "u8", Type: schema.Byte{}},
	}}

	in := sample{
		B:   true,
		I8:  -8,
		I16: -1600,
		I32: -320000,
		I64: -64000000000,
		F32: math.Float32frombits(0x7f800001), // NaN payload must survive
		F64: -2.5e300,
		U8:  0xfe,
	}

	f := newFixture(t)
	ct := f.compile(t, rec, in)

	addr, err := f.enc.Marshal(ct, reflect.ValueOf(in), f.mem, f.alloc, f.allocs)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	var out sample
	if err := f.dec.ReadInto(ct, addr, reflect.ValueOf(&out).Elem(), f.mem); err != nil {
		t.Fatalf("ReadInto: %v", err)
	}

	if math.Float32bits(in.F32) != math.Float32bits(out.F32) {
		t.Errorf("f32 bits changed: %#x -> %#x", math.Float32bits(in.F32), math.Float32bits(out.F32))
	}
	in.F32, out.F32 = 0, 0
	if in != out {
		t.Errorf("roundtrip mismatch:\n in: %+v\nout: %+v", in, out)
	}
}

func TestRoundtripStringField(t *testing.T) {
	type msg struct {
		Text string
		Code int32
	}
	rec := &schema.Record{TypeName: "msg", Fields: []schema.Field{
		{Name: "text", Type: schema.String{}},
		{Name: "code", Type: schema.I32{}},
	}}

	f := newFixture(t)
	in := msg{Text: "héllo native", Code: 42}
	ct := f.compile(t, rec, in)

	addr, err := f.enc.Marshal(ct, reflect.ValueOf(in), f.mem, f.alloc, f.allocs)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	// The string must be stored NUL-terminated at the pointed-to block.
	strPtr, err := f.mem.ReadU32(addr)
	if err != nil {
		t.Fatal(err)
	}
	raw, err := f.mem.Read(strPtr, uint32(len(in.Text))+1)
	if err != nil {
		t.Fatal(err)
	}
	if raw[len(raw)-1] != 0 {
		t.Error("string block missing NUL terminator")
	}

	var out msg
	if err := f.dec.ReadInto(ct, addr, reflect.ValueOf(&out).Elem(), f.mem); err != nil {
		t.Fatalf("ReadInto: %v", err)
	}
	if out != in {
		t.Errorf("roundtrip mismatch: %+v != %+v", out, in)
	}
}

func TestMarshalRejectsInteriorNUL(t *testing.T) {
	f := newFixture(t)
	ct, err := f.enc.Compiler().Compile(schema.String{}, reflect.TypeOf(""))
	if err != nil {
		t.Fatal(err)
	}

	_, err = f.enc.Marshal(ct, reflect.ValueOf("bad\x00string"), f.mem, f.alloc, f.allocs)
	if err == nil {
		t.Fatal("expected interior NUL rejection")
	}
	if got := kindOf(t, err); got != perrors.KindInvalidData {
		t.Errorf("kind = %s, want InvalidData", got)
	}
}

func TestRoundtripNilRecordPointer(t *testing.T) {
	type node struct {
		Value int32
		Next  *node
	}
	rec := &schema.Record{TypeName: "node"}
	rec.Fields = []schema.Field{
		{Name: "value", Type: schema.I32{}},
		{Name: "next", Type: schema.Pointer{Elem: rec}},
	}

	f := newFixture(t)
	ct := f.compile(t, rec, node{})

	in := node{Value: 7, Next: &node{Value: 9}}
	addr, err := f.enc.Marshal(ct, reflect.ValueOf(in), f.mem, f.alloc, f.allocs)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	// Pre-populate Next so the decoder must both follow the live pointer and
	// null out the terminal one.
	out := node{Next: &node{Next: &node{Value: 99}}}
	if err := f.dec.ReadInto(ct, addr, reflect.ValueOf(&out).Elem(), f.mem); err != nil {
		t.Fatalf("ReadInto: %v", err)
	}

	if out.Value != 7 || out.Next == nil || out.Next.Value != 9 {
		t.Fatalf("chain mismatch: %+v", out)
	}
	if out.Next.Next != nil {
		t.Error("zero native address must decode to nil pointer")
	}
}

func TestRoundtripArrays(t *testing.T) {
	f := newFixture(t)

	t.Run("int32", func(t *testing.T) {
		ct := f.compile(t, schema.Array{Elem: schema.I32{}}, []int32{})
		in := []int32{1, -2, 3, -4}

		addr, err := f.enc.Marshal(ct, reflect.ValueOf(in), f.mem, f.alloc, f.allocs)
		if err != nil {
			t.Fatalf("Marshal: %v", err)
		}
		out := make([]int32, len(in))
		if err := f.dec.ReadInto(ct, addr, reflect.ValueOf(&out).Elem(), f.mem); err != nil {
			t.Fatalf("ReadInto: %v", err)
		}
		if !reflect.DeepEqual(in, out) {
			t.Errorf("roundtrip mismatch: %v != %v", out, in)
		}
	})

	t.Run("bytes", func(t *testing.T) {
		ct := f.compile(t, schema.Array{Elem: schema.Byte{}}, []byte{})
		in := []byte{0, 1, 2, 255}

		addr, err := f.enc.Marshal(ct, reflect.ValueOf(in), f.mem, f.alloc, f.allocs)
		if err != nil {
			t.Fatalf("Marshal: %v", err)
		}
		out := make([]byte, len(in))
		if err := f.dec.ReadInto(ct, addr, reflect.ValueOf(&out).Elem(), f.mem); err != nil {
			t.Fatalf("ReadInto: %v", err)
		}
		if !reflect.DeepEqual(in, out) {
			t.Errorf("roundtrip mismatch: %v != %v", out, in)
		}
	})

	t.Run("two dimensions", func(t *testing.T) {
		ct := f.compile(t, schema.Array{Elem: schema.Array{Elem: schema.I64{}}}, [][]int64{})
		in := [][]int64{{1, 2}, {3, 4, 5}, {}}

		addr, err := f.enc.Marshal(ct, reflect.ValueOf(in), f.mem, f.alloc, f.allocs)
		if err != nil {
			t.Fatalf("Marshal: %v", err)
		}
		out := [][]int64{make([]int64, 2), make([]int64, 3), {}}
		if err := f.dec.ReadInto(ct, addr, reflect.ValueOf(&out).Elem(), f.mem); err != nil {
			t.Fatalf("ReadInto: %v", err)
		}
		if !reflect.DeepEqual(in, out) {
			t.Errorf("roundtrip mismatch: %v != %v", out, in)
		}
	})
}

func TestMarshalFixedLengthMismatch(t *testing.T) {
	f := newFixture(t)
	ct := f.compile(t, schema.Array{Elem: schema.I32{}, Len: 3}, []int32{})

	_, err := f.enc.Marshal(ct, reflect.ValueOf([]int32{1, 2}), f.mem, f.alloc, f.allocs)
	if err == nil {
		t.Fatal("expected length mismatch error")
	}
	if got := kindOf(t, err); got != perrors.KindInvalidData {
		t.Errorf("kind = %s, want InvalidData", got)
	}
}

func TestRoundtripSingleRecordArray(t *testing.T) {
	type conf struct {
		Threshold int64
		Enabled   bool
	}
	rec := &schema.Record{TypeName: "conf", Fields: []schema.Field{
		{Name: "threshold", Type: schema.I64{}},
		{Name: "enabled", Type: schema.Bool{}},
	}}

	f := newFixture(t)
	ct := f.compile(t, schema.Array{Elem: rec, Len: 1}, []conf{})

	in := []conf{{Threshold: 500, Enabled: true}}
	addr, err := f.enc.Marshal(ct, reflect.ValueOf(in), f.mem, f.alloc, f.allocs)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	out := make([]conf, 1)
	if err := f.dec.ReadInto(ct, addr, reflect.ValueOf(&out).Elem(), f.mem); err != nil {
		t.Fatalf("ReadInto: %v", err)
	}
	if !reflect.DeepEqual(in, out) {
		t.Errorf("roundtrip mismatch: %+v != %+v", out, in)
	}
}

func TestRecordArrayFieldReadBack(t *testing.T) {
	type buffers struct {
		In  []int32
		Out []int32
	}
	rec := &schema.Record{TypeName: "buffers", Fields: []schema.Field{
		{Name: "in", Type: schema.Array{Elem: schema.I32{}}},
		{Name: "out", Type: schema.Array{Elem: schema.I32{}}, ReadBack: true},
	}}

	f := newFixture(t)
	ct := f.compile(t, rec, buffers{})

	v := buffers{In: []int32{1, 2}, Out: []int32{0, 0}}
	addr, err := f.enc.Marshal(ct, reflect.ValueOf(v), f.mem, f.alloc, f.allocs)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	// Simulate the callee writing into both buffers.
	inPtr, _ := f.mem.ReadU32(addr + ct.Fields[0].Offset)
	outPtr, _ := f.mem.ReadU32(addr + ct.Fields[1].Offset)
	for i, val := range []uint32{100, 200} {
		if err := f.mem.WriteU32(inPtr+uint32(i)*4, val); err != nil {
			t.Fatal(err)
		}
		if err := f.mem.WriteU32(outPtr+uint32(i)*4, val); err != nil {
			t.Fatal(err)
		}
	}

	if err := f.dec.ReadInto(ct, addr, reflect.ValueOf(&v).Elem(), f.mem); err != nil {
		t.Fatalf("ReadInto: %v", err)
	}

	if want := []int32{1, 2}; !reflect.DeepEqual(v.In, want) {
		t.Errorf("in buffer refreshed without being declared readable: %v", v.In)
	}
	if want := []int32{100, 200}; !reflect.DeepEqual(v.Out, want) {
		t.Errorf("out buffer = %v, want %v", v.Out, want)
	}
}

func TestMarshalTracksAllocations(t *testing.T) {
	type msg struct {
		Text string
		Data []byte
	}
	rec := &schema.Record{TypeName: "msg", Fields: []schema.Field{
		{Name: "text", Type: schema.String{}},
		{Name: "data", Type: schema.Array{Elem: schema.Byte{}}},
	}}

	f := newFixture(t)
	ct := f.compile(t, rec, msg{})

	in := msg{Text: "x", Data: []byte{1, 2, 3}}
	if _, err := f.enc.Marshal(ct, reflect.ValueOf(in), f.mem, f.alloc, f.allocs); err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	// Record block, string block, byte block.
	if f.allocs.Count() != 3 {
		t.Errorf("tracked allocations = %d, want 3", f.allocs.Count())
	}

	f.allocs.FreeAndRelease(f.alloc)
	if f.alloc.frees != f.alloc.allocs {
		t.Errorf("freed %d of %d allocations", f.alloc.frees, f.alloc.allocs)
	}
}

func TestMarshalAllocationFailure(t *testing.T) {
	f := newFixture(t)
	f.alloc.failNext = true
	ct := f.compile(t, schema.Array{Elem: schema.I32{}}, []int32{})

	_, err := f.enc.Marshal(ct, reflect.ValueOf([]int32{1}), f.mem, f.alloc, f.allocs)
	if err == nil {
		t.Fatal("expected allocation failure")
	}
	if got := kindOf(t, err); got != perrors.KindAllocation {
		t.Errorf("kind = %s, want Allocation", got)
	}
}

func TestReadStringUnterminated(t *testing.T) {
	f := newFixture(t)
	for i := range f.mem.data {
		f.mem.data[i] = 'a'
	}

	_, err := f.dec.ReadString(1, f.mem)
	if err == nil {
		t.Fatal("expected error for unterminated string")
	}
	if got := kindOf(t, err); got != perrors.KindOutOfBounds {
		t.Errorf("kind = %s, want OutOfBounds", got)
	}
}

func TestReadStringZeroAddress(t *testing.T) {
	f := newFixture(t)
	s, err := f.dec.ReadString(0, f.mem)
	if err != nil {
		t.Fatal(err)
	}
	if s != "" {
		t.Errorf("zero address decoded to %q, want empty", s)
	}
}

func TestSlotRoundtrip(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		st   schema.Type
		in   any
		want any
	}{
		{schema.Bool{}, true, true},
		{schema.I8{}, int8(-5), int8(-5)},
		{schema.I16{}, int16(-300), int16(-300)},
		{schema.I32{}, int32(-70000), int32(-70000)},
		{schema.I64{}, int64(-1 << 40), int64(-1 << 40)},
		{schema.F32{}, float32(-1.5), float32(-1.5)},
		{schema.F64{}, 2.75, 2.75},
		{schema.Byte{}, uint8(200), uint8(200)},
	}

	for _, tt := range tests {
		ct := f.compile(t, tt.st, tt.in)
		slot, err := Slot(ct, reflect.ValueOf(tt.in))
		if err != nil {
			t.Fatalf("Slot(%s): %v", tt.st.Name(), err)
		}
		if got := FromSlot(ct.Kind, slot); got != tt.want {
			t.Errorf("FromSlot(Slot(%v)) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestSlotRejectsAggregates(t *testing.T) {
	f := newFixture(t)
	ct := f.compile(t, schema.Array{Elem: schema.I32{}}, []int32{})
	if _, err := Slot(ct, reflect.ValueOf([]int32{1})); err == nil {
		t.Fatal("expected error for aggregate in a value slot")
	}
}
