package types

type Kind uint8

const (
	KindBool Kind = iota
	KindI8
	KindI16
	KindI32
	KindI64
	KindF32
	KindF64
	KindByte
	KindString
	KindPointer
	KindArray
	KindRecord
)

var kindNames = [...]string{
	KindBool:    "bool",
	KindI8:      "i8",
	KindI16:     "i16",
	KindI32:     "i32",
	KindI64:     "i64",
	KindF32:     "f32",
	KindF64:     "f64",
	KindByte:    "byte",
	KindString:  "string",
	KindPointer: "pointer",
	KindArray:   "array",
	KindRecord:  "record",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "unknown"
}

// IsScalar reports whether values of this kind pass by value in a call
// slot. Everything else passes the address of a marshalled block.
func (k Kind) IsScalar() bool {
	return k <= KindByte
}
