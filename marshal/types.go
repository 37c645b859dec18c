package marshal

import (
	"github.com/passagelabs/passage/marshal/internal/layout"
	"github.com/passagelabs/passage/marshal/internal/types"
)

type Kind = types.Kind

const (
	KindBool    = types.KindBool
	KindI8      = types.KindI8
	KindI16     = types.KindI16
	KindI32     = types.KindI32
	KindI64     = types.KindI64
	KindF32     = types.KindF32
	KindF64     = types.KindF64
	KindByte    = types.KindByte
	KindString  = types.KindString
	KindPointer = types.KindPointer
	KindArray   = types.KindArray
	KindRecord  = types.KindRecord
)

type CompiledType = types.CompiledType
type CompiledField = types.Field

// PointerSize is the native pointer width in bytes.
const PointerSize = layout.PointerSize

// Safety limits for data crossing the boundary.
const (
	MaxStringSize  = 16 << 20 // longest C string read back (16 MB)
	MaxArrayLength = 1 << 20  // most elements per marshalled array
)

// alignTo rounds n up to the next multiple of align.
func alignTo(n, align uint32) uint32 {
	return layout.AlignTo(n, align)
}
