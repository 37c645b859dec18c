package schema

import (
	"fmt"
	"runtime"
)

// Platform buckets for padding overrides. Record layout is identical on all
// platforms except where an explicit per-platform override diverges.
type Platform string

const (
	PlatformAll     Platform = "all"
	PlatformLinux   Platform = "linux"
	PlatformDarwin  Platform = "darwin"
	PlatformWindows Platform = "windows"
)

// Current returns the platform bucket for the running process.
func Current() Platform {
	switch runtime.GOOS {
	case "darwin":
		return PlatformDarwin
	case "windows":
		return PlatformWindows
	default:
		return PlatformLinux
	}
}

// Type describes a value that crosses the native boundary. Types are
// registered once, at binding time, rather than discovered by reflection.
type Type interface {
	// Name returns the type's display name for error messages.
	Name() string
}

// Scalar kinds. Each maps 1:1 to a fixed-width native layout.
type (
	Bool struct{}
	I8   struct{}
	I16  struct{}
	I32  struct{}
	I64  struct{}
	F32  struct{}
	F64  struct{}
	// Byte is the 8-bit byte/char kind.
	Byte struct{}
)

func (Bool) Name() string { return "bool" }
func (I8) Name() string   { return "i8" }
func (I16) Name() string  { return "i16" }
func (I32) Name() string  { return "i32" }
func (I64) Name() string  { return "i64" }
func (F32) Name() string  { return "f32" }
func (F64) Name() string  { return "f64" }
func (Byte) Name() string { return "byte" }

// String is a NUL-terminated byte sequence. Length excludes the terminator.
type String struct{}

func (String) Name() string { return "string" }

// Pointer is a native-pointer-sized slot. A nil Elem is an opaque pointer;
// a non-nil Elem (typically a *Record) is marshalled through recursively.
// The pointee's layout is resolved lazily, when data is actually copied, so
// cyclic record graphs are legal.
type Pointer struct {
	Elem Type
}

func (p Pointer) Name() string {
	if p.Elem == nil {
		return "ptr"
	}
	return "ptr<" + p.Elem.Name() + ">"
}

// Array is a contiguous sequence of Elem. Len > 0 declares a fixed length
// hint; Len == 0 takes the length from the Go slice at marshal time.
// Nesting is capped at two dimensions.
type Array struct {
	Elem Type
	Len  int
}

func (a Array) Name() string {
	if a.Len > 0 {
		return fmt.Sprintf("array<%s,%d>", a.Elem.Name(), a.Len)
	}
	return "array<" + a.Elem.Name() + ">"
}

// Record is an ordered sequence of named fields.
type Record struct {
	TypeName string
	Fields   []Field
}

func (r *Record) Name() string {
	if r.TypeName != "" {
		return "record " + r.TypeName
	}
	return "record"
}

// Field is one record member. ReadBack marks array/pointer contents to be
// copied back into the managed value after a call.
type Field struct {
	Name     string
	Type     Type
	ReadBack bool
	Pad      []PadOverride
}

// PadOverride inserts explicit padding around a field on one platform
// bucket. Negative bytes insert before the field, positive after. An
// override takes precedence over auto-alignment for its platform.
type PadOverride struct {
	Platform Platform
	Bytes    int32
}

// PadFor resolves the explicit padding for a field on the given platform.
// A platform-specific override wins over an "all" override. The second
// return is false when no override applies and auto-alignment is used.
func (f *Field) PadFor(p Platform) (int32, bool) {
	var all *PadOverride
	for i := range f.Pad {
		switch f.Pad[i].Platform {
		case p:
			return f.Pad[i].Bytes, true
		case PlatformAll:
			all = &f.Pad[i]
		}
	}
	if all != nil {
		return all.Bytes, true
	}
	return 0, false
}

// IsScalar reports whether t is one of the eight fixed-width scalar kinds.
func IsScalar(t Type) bool {
	switch t.(type) {
	case Bool, I8, I16, I32, I64, F32, F64, Byte:
		return true
	}
	return false
}
