package layout

import (
	"github.com/passagelabs/passage/schema"
)

// PointerSize is the native pointer width. The boundary is wasm32 linear
// memory, so pointers, string slots, and array slots are 4 bytes.
const PointerSize = 4

// Info is the resolved native layout of one type.
type Info struct {
	Size      uint32
	Align     uint32
	FieldOffs map[string]uint32
}

// Calculator resolves schema types to native layouts for one platform
// bucket. Record layouts are cached by identity.
type Calculator struct {
	cache    map[*schema.Record]Info
	platform schema.Platform
}

func NewCalculator() *Calculator {
	return NewCalculatorFor(schema.Current())
}

func NewCalculatorFor(platform schema.Platform) *Calculator {
	return &Calculator{
		cache:    make(map[*schema.Record]Info),
		platform: platform,
	}
}

func (c *Calculator) Platform() schema.Platform {
	return c.platform
}

func (c *Calculator) Calculate(t schema.Type) Info {
	switch typ := t.(type) {
	case schema.Bool, schema.I8, schema.Byte:
		return Info{Size: 1, Align: 1}
	case schema.I16:
		return Info{Size: 2, Align: 2}
	case schema.I32, schema.F32:
		return Info{Size: 4, Align: 4}
	case schema.I64, schema.F64:
		return Info{Size: 8, Align: 8}
	case schema.String, schema.Pointer, schema.Array:
		// Pointer-sized at slot level; pointee layout is resolved
		// separately when data is actually copied.
		return Info{Size: PointerSize, Align: PointerSize}
	case *schema.Record:
		return c.calculateRecord(typ)
	default:
		return Info{Size: 0, Align: 1}
	}
}

// calculateRecord visits fields in declaration order. Each offset is the
// running offset rounded up to the field's alignment, unless an explicit
// padding override for this platform is present: negative bytes insert
// before the field (replacing auto-alignment), positive bytes insert after.
// Record alignment is the max field alignment; total size rounds up to it.
func (c *Calculator) calculateRecord(r *schema.Record) Info {
	if cached, ok := c.cache[r]; ok {
		return cached
	}

	if len(r.Fields) == 0 {
		info := Info{Size: 0, Align: 1}
		c.cache[r] = info
		return info
	}

	fieldOffs := make(map[string]uint32, len(r.Fields))
	maxAlign := uint32(1)
	offset := uint32(0)

	for i := range r.Fields {
		field := &r.Fields[i]
		fieldLayout := c.Calculate(field.Type)

		if pad, ok := field.PadFor(c.platform); ok {
			if pad < 0 {
				offset += uint32(-pad)
			}
			fieldOffs[field.Name] = offset
			offset += fieldLayout.Size
			if pad > 0 {
				offset += uint32(pad)
			}
		} else {
			offset = AlignTo(offset, fieldLayout.Align)
			fieldOffs[field.Name] = offset
			offset += fieldLayout.Size
		}

		if fieldLayout.Align > maxAlign {
			maxAlign = fieldLayout.Align
		}
	}

	info := Info{
		Size:      AlignTo(offset, maxAlign),
		Align:     maxAlign,
		FieldOffs: fieldOffs,
	}
	c.cache[r] = info
	return info
}

// AlignTo rounds n up to the next multiple of align.
func AlignTo(n, align uint32) uint32 {
	if align <= 1 {
		return n
	}
	return (n + align - 1) &^ (align - 1)
}
