package marshal

import (
	"fmt"
	"math"
	"reflect"
	"strings"

	"github.com/passagelabs/passage/errors"
	"github.com/passagelabs/passage/marshal/internal/types"
)

// Encoder serializes managed values into native memory blocks.
type Encoder struct {
	compiler *Compiler
}

func NewEncoder() *Encoder {
	return &Encoder{compiler: NewCompiler()}
}

func NewEncoderWithCompiler(c *Compiler) *Encoder {
	return &Encoder{compiler: c}
}

func (e *Encoder) Compiler() *Compiler {
	return e.compiler
}

// Marshal allocates a native block for the value and writes it, tracking
// every allocation it makes. The returned address is what a native callee
// receives: array contents (or the row-pointer vector for two-dimensional
// arrays), the record base, or the first byte of a NUL-terminated string.
func (e *Encoder) Marshal(ct *CompiledType, v reflect.Value, mem Memory, alloc Allocator, allocs *AllocationList) (uint32, error) {
	return e.marshal(ct, v, mem, alloc, allocs, true)
}

// Reserve allocates the block structure Marshal would build without copying
// the managed value in, for output-only parameters whose contents the callee
// produces. Everything structural is still written: row-pointer vectors,
// record pointer fields and strings. Only leaf scalar data is left as the
// allocator returned it.
func (e *Encoder) Reserve(ct *CompiledType, v reflect.Value, mem Memory, alloc Allocator, allocs *AllocationList) (uint32, error) {
	return e.marshal(ct, v, mem, alloc, allocs, false)
}

func (e *Encoder) marshal(ct *CompiledType, v reflect.Value, mem Memory, alloc Allocator, allocs *AllocationList, contents bool) (uint32, error) {
	switch ct.Kind {
	case types.KindString:
		return e.writeString(v.String(), mem, alloc, allocs, nil)

	case types.KindArray:
		return e.writeArrayContents(ct, v, mem, alloc, allocs, nil, contents)

	case types.KindRecord:
		addr, err := allocTracked(alloc, allocs, ct.Size, ct.Align, errors.PhaseEncode)
		if err != nil {
			return 0, err
		}
		if err := e.writeRecord(addr, ct, v, mem, alloc, allocs, nil, contents); err != nil {
			return 0, err
		}
		return addr, nil

	case types.KindPointer:
		if ct.Elem == nil {
			return uint32(v.Uint()), nil
		}
		if v.IsNil() {
			return 0, nil
		}
		addr, err := allocTracked(alloc, allocs, ct.Elem.Size, ct.Elem.Align, errors.PhaseEncode)
		if err != nil {
			return 0, err
		}
		if err := e.writeRecord(addr, ct.Elem, v.Elem(), mem, alloc, allocs, nil, contents); err != nil {
			return 0, err
		}
		return addr, nil

	default:
		addr, err := allocTracked(alloc, allocs, ct.Size, ct.Align, errors.PhaseEncode)
		if err != nil {
			return 0, err
		}
		if !contents {
			return addr, nil
		}
		if err := e.writeScalar(addr, ct, v, mem); err != nil {
			return 0, err
		}
		return addr, nil
	}
}

// writeSlot writes the value's representation at addr: scalars in place,
// everything else as a pointer to a freshly marshalled block. With contents
// false only the structure is written; scalar data is skipped.
func (e *Encoder) writeSlot(addr uint32, ct *CompiledType, v reflect.Value, mem Memory, alloc Allocator, allocs *AllocationList, path []string, contents bool) error {
	switch ct.Kind {
	case types.KindString:
		p, err := e.writeString(v.String(), mem, alloc, allocs, path)
		if err != nil {
			return err
		}
		return mem.WriteU32(addr, p)

	case types.KindPointer:
		if ct.Elem == nil {
			return mem.WriteU32(addr, uint32(v.Uint()))
		}
		if v.IsNil() {
			// Null pointer-to-record is the zero address, always legal.
			return mem.WriteU32(addr, 0)
		}
		nested, err := allocTracked(alloc, allocs, ct.Elem.Size, ct.Elem.Align, errors.PhaseEncode)
		if err != nil {
			return err
		}
		if err := e.writeRecord(nested, ct.Elem, v.Elem(), mem, alloc, allocs, path, contents); err != nil {
			return err
		}
		return mem.WriteU32(addr, nested)

	case types.KindArray:
		p, err := e.writeArrayContents(ct, v, mem, alloc, allocs, path, contents)
		if err != nil {
			return err
		}
		return mem.WriteU32(addr, p)

	case types.KindRecord:
		return e.writeRecord(addr, ct, v, mem, alloc, allocs, path, contents)

	default:
		if !contents {
			return nil
		}
		return e.writeScalar(addr, ct, v, mem)
	}
}

func (e *Encoder) writeRecord(addr uint32, ct *CompiledType, v reflect.Value, mem Memory, alloc Allocator, allocs *AllocationList, path []string, contents bool) error {
	for i := range ct.Fields {
		f := &ct.Fields[i]
		fieldPath := append(append([]string{}, path...), f.Name)
		if err := e.writeSlot(addr+f.Offset, f.Type, v.Field(f.GoIndex), mem, alloc, allocs, fieldPath, contents); err != nil {
			return err
		}
	}
	return nil
}

// writeArrayContents copies array data into a fresh contiguous allocation
// and returns its address. Two-dimensional arrays become a vector of row
// pointers, each row allocated and sized independently.
func (e *Encoder) writeArrayContents(ct *CompiledType, v reflect.Value, mem Memory, alloc Allocator, allocs *AllocationList, path []string, contents bool) (uint32, error) {
	n := v.Len()
	if n > MaxArrayLength {
		return 0, errors.New(errors.PhaseEncode, errors.KindOverflow).
			Path(path...).
			Detail("array length %d exceeds limit %d", n, MaxArrayLength).
			Build()
	}
	if ct.FixedLen > 0 && n != ct.FixedLen {
		return 0, errors.InvalidData(errors.PhaseEncode, path,
			fmt.Sprintf("array length %d does not match declared length %d", n, ct.FixedLen))
	}

	elem := ct.Elem

	// Row-pointer vector for the second dimension.
	if elem.Kind == types.KindArray {
		vec, err := allocTracked(alloc, allocs, uint32(n)*PointerSize, PointerSize, errors.PhaseEncode)
		if err != nil {
			return 0, err
		}
		for i := 0; i < n; i++ {
			rowPath := append(append([]string{}, path...), fmt.Sprintf("[%d]", i))
			row, err := e.writeArrayContents(elem, v.Index(i), mem, alloc, allocs, rowPath, contents)
			if err != nil {
				return 0, err
			}
			if err := mem.WriteU32(vec+uint32(i)*PointerSize, row); err != nil {
				return 0, err
			}
		}
		return vec, nil
	}

	size := uint32(n) * elem.Size
	block, err := allocTracked(alloc, allocs, size, elem.Align, errors.PhaseEncode)
	if err != nil {
		return 0, err
	}

	if elem.Kind == types.KindRecord {
		for i := 0; i < n; i++ {
			elemPath := append(append([]string{}, path...), fmt.Sprintf("[%d]", i))
			if err := e.writeRecord(block+uint32(i)*elem.Size, elem, v.Index(i), mem, alloc, allocs, elemPath, contents); err != nil {
				return 0, err
			}
		}
		return block, nil
	}

	if !contents {
		return block, nil
	}

	// Fast path for byte arrays.
	if elem.Kind == types.KindByte && v.Type().Elem().Kind() == reflect.Uint8 {
		return block, mem.Write(block, v.Bytes())
	}

	for i := 0; i < n; i++ {
		if err := e.writeScalar(block+uint32(i)*elem.Size, elem, v.Index(i), mem); err != nil {
			return 0, err
		}
	}
	return block, nil
}

// writeString encodes a managed string as bytes plus a trailing NUL. The
// stored length excludes the terminator. Interior NULs cannot survive the
// native string convention, so they are rejected rather than truncated.
func (e *Encoder) writeString(s string, mem Memory, alloc Allocator, allocs *AllocationList, path []string) (uint32, error) {
	if len(s) > MaxStringSize {
		return 0, errors.New(errors.PhaseEncode, errors.KindOverflow).
			Path(path...).
			Detail("string length %d exceeds limit %d", len(s), MaxStringSize).
			Build()
	}
	if strings.IndexByte(s, 0) >= 0 {
		return 0, errors.InvalidData(errors.PhaseEncode, path, "string contains interior NUL")
	}

	addr, err := allocTracked(alloc, allocs, uint32(len(s))+1, 1, errors.PhaseEncode)
	if err != nil {
		return 0, err
	}
	if err := mem.Write(addr, []byte(s)); err != nil {
		return 0, err
	}
	return addr, mem.WriteU8(addr+uint32(len(s)), 0)
}

func (e *Encoder) writeScalar(addr uint32, ct *CompiledType, v reflect.Value, mem Memory) error {
	switch ct.Kind {
	case types.KindBool:
		var b uint8
		if v.Bool() {
			b = 1
		}
		return mem.WriteU8(addr, b)
	case types.KindI8:
		return mem.WriteU8(addr, uint8(v.Int()))
	case types.KindI16:
		return mem.WriteU16(addr, uint16(v.Int()))
	case types.KindI32:
		return mem.WriteU32(addr, uint32(v.Int()))
	case types.KindI64:
		return mem.WriteU64(addr, uint64(v.Int()))
	case types.KindF32:
		return mem.WriteU32(addr, math.Float32bits(float32(v.Float())))
	case types.KindF64:
		return mem.WriteU64(addr, math.Float64bits(v.Float()))
	case types.KindByte:
		return mem.WriteU8(addr, uint8(v.Uint()))
	default:
		return errors.New(errors.PhaseEncode, errors.KindInvalidData).
			Detail("writeScalar called with non-scalar kind %s", ct.Kind).
			Build()
	}
}

// Slot packs a by-value scalar into a raw 64-bit call slot.
func Slot(ct *CompiledType, v reflect.Value) (uint64, error) {
	switch ct.Kind {
	case types.KindBool:
		if v.Bool() {
			return 1, nil
		}
		return 0, nil
	case types.KindI8, types.KindI16, types.KindI32:
		return uint64(uint32(int32(v.Int()))), nil
	case types.KindI64:
		return uint64(v.Int()), nil
	case types.KindF32:
		return uint64(math.Float32bits(float32(v.Float()))), nil
	case types.KindF64:
		return math.Float64bits(v.Float()), nil
	case types.KindByte:
		return v.Uint(), nil
	default:
		return 0, errors.New(errors.PhaseEncode, errors.KindInvalidData).
			Detail("kind %s does not pass by value", ct.Kind).
			Build()
	}
}

// FromSlot unpacks a raw 64-bit result slot into a managed scalar value.
func FromSlot(kind Kind, slot uint64) any {
	switch kind {
	case types.KindBool:
		return slot != 0
	case types.KindI8:
		return int8(uint8(slot))
	case types.KindI16:
		return int16(uint16(slot))
	case types.KindI32:
		return int32(uint32(slot))
	case types.KindI64:
		return int64(slot)
	case types.KindF32:
		return math.Float32frombits(uint32(slot))
	case types.KindF64:
		return math.Float64frombits(slot)
	case types.KindByte:
		return uint8(slot)
	default:
		return slot
	}
}
