package schema

import (
	"fmt"

	"github.com/passagelabs/passage/errors"
)

// Validate checks a type against the supported layout rules. All violations
// are binding-time configuration errors: array nesting beyond two
// dimensions, arrays of records longer than one element, arrays of arrays
// of records, and contradictory padding overrides all fail here, eagerly,
// never at call time.
func Validate(t Type) error {
	return validate(t, nil, 0, make(map[*Record]bool), make(map[*Record]bool))
}

// byValue tracks records on the current embedding chain: a record reaching
// itself without pointer indirection has no finite layout. seen tracks
// records validated once anywhere, which both permits diamond sharing and
// terminates pointer cycles.
func validate(t Type, path []string, arrayDepth int, byValue, seen map[*Record]bool) error {
	switch typ := t.(type) {
	case Bool, I8, I16, I32, I64, F32, F64, Byte, String:
		return nil

	case Pointer:
		if typ.Elem == nil {
			return nil
		}
		if rec, ok := typ.Elem.(*Record); ok && seen[rec] {
			return nil
		}
		// Pointees are resolved lazily at marshal time, but their declared
		// shape must still be legal. Indirection breaks the by-value chain.
		return validate(typ.Elem, append(path, "*"), 0, make(map[*Record]bool), seen)

	case Array:
		if typ.Len < 0 {
			return errors.InvalidInput(errors.PhaseSchema, fmt.Sprintf("array length %d is negative", typ.Len))
		}
		if arrayDepth >= 2 {
			return errors.UnsupportedLayout(errors.PhaseSchema, path, "array nesting beyond two dimensions")
		}
		if rec, ok := typ.Elem.(*Record); ok {
			if arrayDepth > 0 {
				return errors.UnsupportedLayout(errors.PhaseSchema, path, "array of array of record")
			}
			if typ.Len != 1 {
				return errors.UnsupportedLayout(errors.PhaseSchema, path,
					fmt.Sprintf("array of record %q must have length exactly 1, got %d", rec.TypeName, typ.Len))
			}
		}
		if _, ok := typ.Elem.(String); ok {
			return errors.UnsupportedLayout(errors.PhaseSchema, path, "array of string")
		}
		return validate(typ.Elem, append(path, "[]"), arrayDepth+1, byValue, seen)

	case *Record:
		if byValue[typ] {
			return errors.UnsupportedLayout(errors.PhaseSchema, path,
				fmt.Sprintf("record %q embeds itself without pointer indirection", typ.TypeName))
		}
		if seen[typ] {
			return nil
		}
		seen[typ] = true
		byValue[typ] = true
		defer delete(byValue, typ)
		names := make(map[string]bool, len(typ.Fields))
		for i := range typ.Fields {
			f := &typ.Fields[i]
			fieldPath := append(append([]string{}, path...), f.Name)
			if f.Name == "" {
				return errors.InvalidInput(errors.PhaseSchema, fmt.Sprintf("record %q has an unnamed field", typ.TypeName))
			}
			if names[f.Name] {
				return errors.ConfigConflict(fieldPath, "duplicate field name")
			}
			names[f.Name] = true
			if f.Type == nil {
				return errors.InvalidInput(errors.PhaseSchema, fmt.Sprintf("field %q has no type", f.Name))
			}
			if err := validatePad(f, fieldPath); err != nil {
				return err
			}
			if err := validate(f.Type, fieldPath, 0, byValue, seen); err != nil {
				return err
			}
		}
		return nil

	case nil:
		return errors.InvalidInput(errors.PhaseSchema, "nil type")

	default:
		return errors.UnsupportedLayout(errors.PhaseSchema, path, fmt.Sprintf("unknown type %T", t))
	}
}

// validatePad rejects two overrides naming the same platform bucket with
// different byte counts. Repeating an identical override is harmless;
// overrides across different platforms are the point of the buckets.
func validatePad(f *Field, path []string) error {
	seen := make(map[Platform]int32, len(f.Pad))
	for _, p := range f.Pad {
		switch p.Platform {
		case PlatformAll, PlatformLinux, PlatformDarwin, PlatformWindows:
		default:
			return errors.ConfigConflict(path, fmt.Sprintf("unknown platform bucket %q", p.Platform))
		}
		if prev, dup := seen[p.Platform]; dup && prev != p.Bytes {
			return errors.ConfigConflict(path,
				fmt.Sprintf("conflicting padding overrides for platform %q: %d and %d", p.Platform, prev, p.Bytes))
		}
		seen[p.Platform] = p.Bytes
	}
	return nil
}
