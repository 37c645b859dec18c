package marshal

import (
	"math"
	"reflect"

	"github.com/passagelabs/passage/errors"
	"github.com/passagelabs/passage/marshal/internal/types"
)

// Decoder copies native memory back into managed values after a call
// returns. It is the read half of the marshalling contract: the encoder
// owns the addresses, the decoder only follows them.
type Decoder struct {
	compiler *Compiler
}

func NewDecoder() *Decoder {
	return &Decoder{compiler: NewCompiler()}
}

func NewDecoderWithCompiler(c *Compiler) *Decoder {
	return &Decoder{compiler: c}
}

func (d *Decoder) Compiler() *Compiler {
	return d.compiler
}

func wrapRead(err error) error {
	return errors.Wrap(errors.PhaseDecode, errors.KindOutOfBounds, err, "native memory read")
}

// ReadInto reads the native representation at addr into v. For records
// this refreshes every readable field; for arrays it refreshes the full
// contents. Slices and non-nil pointers work without v itself being
// settable, since only their referents are written.
func (d *Decoder) ReadInto(ct *CompiledType, addr uint32, v reflect.Value, mem Memory) error {
	switch ct.Kind {
	case types.KindString:
		if err := d.checkSettable(v); err != nil {
			return err
		}
		s, err := d.ReadString(addr, mem)
		if err != nil {
			return err
		}
		v.SetString(s)
		return nil

	case types.KindArray:
		return d.readArrayContents(ct, addr, v, mem, nil)

	case types.KindRecord:
		if err := d.checkSettable(v); err != nil {
			return err
		}
		return d.readRecord(ct, addr, v, mem, nil)

	case types.KindPointer:
		if ct.Elem != nil && !v.CanSet() {
			// A fixed pointer destination still works when the native side
			// kept it non-null.
			if v.Kind() == reflect.Ptr && !v.IsNil() && addr != 0 {
				return d.readRecord(ct.Elem, addr, v.Elem(), mem, []string{"*"})
			}
		}
		return d.readPointer(ct, addr, v, mem, nil)

	default:
		if err := d.checkSettable(v); err != nil {
			return err
		}
		return d.readScalar(ct, addr, v, mem)
	}
}

func (d *Decoder) checkSettable(v reflect.Value) error {
	if !v.CanSet() {
		return errors.New(errors.PhaseDecode, errors.KindInvalidInput).
			Detail("destination value is not settable").
			Build()
	}
	return nil
}

// readSlot reads a field slot at addr: scalars in place, records inline,
// everything else through the stored pointer. Arrays are followed only
// when the field was declared readable.
func (d *Decoder) readSlot(addr uint32, f *CompiledField, v reflect.Value, mem Memory, path []string) error {
	ct := f.Type

	switch ct.Kind {
	case types.KindString:
		p, err := mem.ReadU32(addr)
		if err != nil {
			return wrapRead(err)
		}
		s, err := d.readCString(p, mem, path)
		if err != nil {
			return err
		}
		v.SetString(s)
		return nil

	case types.KindPointer:
		p, err := mem.ReadU32(addr)
		if err != nil {
			return wrapRead(err)
		}
		if ct.Elem == nil {
			v.SetUint(uint64(p))
			return nil
		}
		return d.followRecordPointer(ct, p, v, mem, path)

	case types.KindArray:
		if !f.ReadBack {
			return nil
		}
		p, err := mem.ReadU32(addr)
		if err != nil {
			return wrapRead(err)
		}
		return d.readArrayContents(ct, p, v, mem, path)

	case types.KindRecord:
		return d.readRecord(ct, addr, v, mem, path)

	default:
		return d.readScalar(ct, addr, v, mem)
	}
}

func (d *Decoder) readRecord(ct *CompiledType, addr uint32, v reflect.Value, mem Memory, path []string) error {
	for i := range ct.Fields {
		f := &ct.Fields[i]
		fieldPath := append(append([]string{}, path...), f.Name)
		if err := d.readSlot(addr+f.Offset, f, v.Field(f.GoIndex), mem, fieldPath); err != nil {
			return err
		}
	}
	return nil
}

// readPointer reads a top-level pointer value whose address IS the pointer
// (a return slot or standalone decode), as opposed to a field slot.
func (d *Decoder) readPointer(ct *CompiledType, addr uint32, v reflect.Value, mem Memory, path []string) error {
	if ct.Elem == nil {
		v.SetUint(uint64(addr))
		return nil
	}
	return d.followRecordPointer(ct, addr, v, mem, path)
}

// followRecordPointer maps the zero address to a nil Go pointer, and
// allocates a fresh pointee when the native side materialized one.
func (d *Decoder) followRecordPointer(ct *CompiledType, p uint32, v reflect.Value, mem Memory, path []string) error {
	if p == 0 {
		v.SetZero()
		return nil
	}
	if v.IsNil() {
		v.Set(reflect.New(v.Type().Elem()))
	}
	return d.readRecord(ct.Elem, p, v.Elem(), mem, append(path, "*"))
}

// readArrayContents reads len(v) elements starting at addr. The managed
// slice length is authoritative: native code fills buffers the caller
// sized, it does not resize them.
func (d *Decoder) readArrayContents(ct *CompiledType, addr uint32, v reflect.Value, mem Memory, path []string) error {
	if addr == 0 {
		return nil
	}
	n := v.Len()
	elem := ct.Elem

	// Second dimension: follow each row pointer.
	if elem.Kind == types.KindArray {
		for i := 0; i < n; i++ {
			row, err := mem.ReadU32(addr + uint32(i)*PointerSize)
			if err != nil {
				return wrapRead(err)
			}
			rowPath := append(append([]string{}, path...), "[]")
			if err := d.readArrayContents(elem, row, v.Index(i), mem, rowPath); err != nil {
				return err
			}
		}
		return nil
	}

	// Fast path for byte arrays.
	if elem.Kind == types.KindByte && v.Type().Elem().Kind() == reflect.Uint8 {
		buf, err := mem.Read(addr, uint32(n))
		if err != nil {
			return wrapRead(err)
		}
		reflect.Copy(v, reflect.ValueOf(buf))
		return nil
	}

	if elem.Kind == types.KindRecord {
		for i := 0; i < n; i++ {
			if err := d.readRecord(elem, addr+uint32(i)*elem.Size, v.Index(i), mem, path); err != nil {
				return err
			}
		}
		return nil
	}

	for i := 0; i < n; i++ {
		if err := d.readScalar(elem, addr+uint32(i)*elem.Size, v.Index(i), mem); err != nil {
			return err
		}
	}
	return nil
}

// ReadString reads a NUL-terminated string starting at addr. The zero
// address decodes to the empty string.
func (d *Decoder) ReadString(addr uint32, mem Memory) (string, error) {
	return d.readCString(addr, mem, nil)
}

func (d *Decoder) readCString(addr uint32, mem Memory, path []string) (string, error) {
	if addr == 0 {
		return "", nil
	}

	// Scan in chunks rather than byte at a time. Most strings crossing the
	// boundary are short, so start small.
	var buf []byte
	chunk := uint32(64)
	pos := addr
	for {
		data, err := mem.Read(pos, chunk)
		if err != nil {
			// Near the end of memory a full chunk may be out of range even
			// though the terminator is in bounds. Retry byte-wise.
			data, err = d.readTailBytes(pos, mem)
			if err != nil {
				return "", errors.New(errors.PhaseDecode, errors.KindOutOfBounds).
					Path(path...).
					Cause(err).
					Detail("reading string at 0x%x", addr).
					Build()
			}
		}
		for i, b := range data {
			if b == 0 {
				return string(append(buf, data[:i]...)), nil
			}
		}
		buf = append(buf, data...)
		if len(buf) > MaxStringSize {
			return "", errors.New(errors.PhaseDecode, errors.KindOverflow).
				Path(path...).
				Detail("unterminated string at 0x%x exceeds limit %d", addr, MaxStringSize).
				Build()
		}
		pos += uint32(len(data))
		if chunk < 4096 {
			chunk *= 2
		}
	}
}

// readTailBytes reads single bytes until the first failure, for strings
// that end within a chunk of the memory boundary.
func (d *Decoder) readTailBytes(pos uint32, mem Memory) ([]byte, error) {
	var out []byte
	for {
		b, err := mem.ReadU8(pos)
		if err != nil {
			if len(out) == 0 {
				return nil, err
			}
			return out, nil
		}
		out = append(out, b)
		if b == 0 {
			return out, nil
		}
		pos++
	}
}

func (d *Decoder) readScalar(ct *CompiledType, addr uint32, v reflect.Value, mem Memory) error {
	switch ct.Kind {
	case types.KindBool:
		b, err := mem.ReadU8(addr)
		if err != nil {
			return wrapRead(err)
		}
		v.SetBool(b != 0)
		return nil
	case types.KindI8:
		b, err := mem.ReadU8(addr)
		if err != nil {
			return wrapRead(err)
		}
		v.SetInt(int64(int8(b)))
		return nil
	case types.KindI16:
		u, err := mem.ReadU16(addr)
		if err != nil {
			return wrapRead(err)
		}
		v.SetInt(int64(int16(u)))
		return nil
	case types.KindI32:
		u, err := mem.ReadU32(addr)
		if err != nil {
			return wrapRead(err)
		}
		v.SetInt(int64(int32(u)))
		return nil
	case types.KindI64:
		u, err := mem.ReadU64(addr)
		if err != nil {
			return wrapRead(err)
		}
		v.SetInt(int64(u))
		return nil
	case types.KindF32:
		u, err := mem.ReadU32(addr)
		if err != nil {
			return wrapRead(err)
		}
		v.SetFloat(float64(math.Float32frombits(u)))
		return nil
	case types.KindF64:
		u, err := mem.ReadU64(addr)
		if err != nil {
			return wrapRead(err)
		}
		v.SetFloat(math.Float64frombits(u))
		return nil
	case types.KindByte:
		b, err := mem.ReadU8(addr)
		if err != nil {
			return wrapRead(err)
		}
		v.SetUint(uint64(b))
		return nil
	default:
		return errors.New(errors.PhaseDecode, errors.KindInvalidData).
			Detail("readScalar called with non-scalar kind %s", ct.Kind).
			Build()
	}
}
