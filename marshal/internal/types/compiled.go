package types

import (
	"reflect"
)

// CompiledType pairs a schema type with a concrete Go type and the resolved
// native layout. Built once per (schema, Go type) pair and cached.
type CompiledType struct {
	GoType reflect.Type
	// Elem is the array element or pointer pointee. Nil for opaque pointers.
	Elem   *CompiledType
	Fields []Field
	GoSize uintptr
	// Size and Align describe the native layout. Pointers, strings, and
	// arrays are pointer-sized at slot level; Elem carries the pointee.
	Size  uint32
	Align uint32
	// FixedLen is the declared array length hint; 0 takes the slice length.
	FixedLen int
	Kind     Kind
}

// Field is one compiled record member.
type Field struct {
	Type *CompiledType
	Name string
	// GoIndex is the struct field index in GoType.
	GoIndex int
	// Offset is the field's resolved native byte offset.
	Offset uint32
	// ReadBack marks array/pointer contents for copy-out after a call.
	ReadBack bool
}

func (ct *CompiledType) IsScalar() bool {
	return ct.Kind.IsScalar()
}

// ContentsSize returns the byte size of the marshalled pointee block for n
// elements. Scalar and record types ignore n.
func (ct *CompiledType) ContentsSize(n int) uint32 {
	switch ct.Kind {
	case KindArray:
		if ct.Elem.Kind == KindArray {
			// row pointer vector
			return uint32(n) * 4
		}
		return uint32(n) * ct.Elem.Size
	default:
		return ct.Size
	}
}
