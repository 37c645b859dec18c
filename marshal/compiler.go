package marshal

import (
	"reflect"
	"strings"
	"sync"

	"github.com/passagelabs/passage/errors"
	"github.com/passagelabs/passage/marshal/internal/layout"
	"github.com/passagelabs/passage/marshal/internal/types"
	"github.com/passagelabs/passage/schema"
)

// Compiler pairs schema types with concrete Go types and resolves their
// native layouts. Compilation happens once per (schema, Go type) pair and
// is cached; cyclic record graphs compile because the in-progress entry is
// published before its fields are visited.
type Compiler struct {
	layout *layout.Calculator
	cache  map[cacheKey]*CompiledType
	mu     sync.Mutex

	// published lists every key added during the current top-level compile.
	// A failed pass evicts them all: cycle handling publishes in-progress
	// types, and none of them are safe to reuse after an error.
	published []cacheKey
}

type cacheKey struct {
	schemaType schema.Type
	goType     reflect.Type
}

func NewCompiler() *Compiler {
	return &Compiler{
		layout: layout.NewCalculator(),
		cache:  make(map[cacheKey]*CompiledType),
	}
}

// NewCompilerFor compiles layouts for a specific platform bucket. Used by
// tooling that inspects layouts for platforms other than the running one.
func NewCompilerFor(platform schema.Platform) *Compiler {
	return &Compiler{
		layout: layout.NewCalculatorFor(platform),
		cache:  make(map[cacheKey]*CompiledType),
	}
}

// Layout resolves the native layout of a schema type without binding a Go
// type. Pure function of the declared schema.
func (c *Compiler) Layout(st schema.Type) layout.Info {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.layout.Calculate(st)
}

func (c *Compiler) Compile(st schema.Type, goType reflect.Type) (*CompiledType, error) {
	if st == nil {
		return nil, errors.InvalidInput(errors.PhaseLayout, "schema type cannot be nil")
	}
	if goType == nil {
		return nil, errors.New(errors.PhaseLayout, errors.KindNilPointer).
			Detail("Go type cannot be nil").
			Build()
	}
	if err := schema.Validate(st); err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.published = c.published[:0]
	ct, err := c.compile(st, goType, nil)
	if err != nil {
		for _, key := range c.published {
			delete(c.cache, key)
		}
		return nil, err
	}
	return ct, nil
}

func (c *Compiler) compile(st schema.Type, goType reflect.Type, path []string) (*CompiledType, error) {
	key := cacheKey{schemaType: st, goType: goType}
	if cached, ok := c.cache[key]; ok {
		return cached, nil
	}

	info := c.layout.Calculate(st)
	ct := &CompiledType{
		GoType: goType,
		GoSize: goType.Size(),
		Size:   info.Size,
		Align:  info.Align,
	}

	// Publish before visiting fields so pointer cycles terminate. Compile
	// evicts everything published here if any part of the pass fails.
	c.cache[key] = ct
	c.published = append(c.published, key)

	if err := c.fill(ct, st, goType, info, path); err != nil {
		return nil, err
	}
	return ct, nil
}

func (c *Compiler) fill(ct *CompiledType, st schema.Type, goType reflect.Type, info layout.Info, path []string) error {
	switch typ := st.(type) {
	case schema.Bool:
		ct.Kind = types.KindBool
		return c.checkScalar(goType, reflect.Bool, "bool", path)
	case schema.I8:
		ct.Kind = types.KindI8
		return c.checkScalar(goType, reflect.Int8, "int8", path)
	case schema.I16:
		ct.Kind = types.KindI16
		return c.checkScalar(goType, reflect.Int16, "int16", path)
	case schema.I32:
		ct.Kind = types.KindI32
		return c.checkScalar(goType, reflect.Int32, "int32", path)
	case schema.I64:
		ct.Kind = types.KindI64
		return c.checkScalar(goType, reflect.Int64, "int64", path)
	case schema.F32:
		ct.Kind = types.KindF32
		return c.checkScalar(goType, reflect.Float32, "float32", path)
	case schema.F64:
		ct.Kind = types.KindF64
		return c.checkScalar(goType, reflect.Float64, "float64", path)
	case schema.Byte:
		ct.Kind = types.KindByte
		return c.checkScalar(goType, reflect.Uint8, "byte", path)

	case schema.String:
		ct.Kind = types.KindString
		if goType.Kind() != reflect.String {
			return errors.TypeMismatch(errors.PhaseLayout, path, goType.String(), "string")
		}
		return nil

	case schema.Pointer:
		ct.Kind = types.KindPointer
		return c.fillPointer(ct, typ, goType, path)

	case schema.Array:
		ct.Kind = types.KindArray
		return c.fillArray(ct, typ, goType, path)

	case *schema.Record:
		ct.Kind = types.KindRecord
		return c.fillRecord(ct, typ, goType, info, path)

	default:
		return errors.UnsupportedLayout(errors.PhaseLayout, path, "unknown schema type "+st.Name())
	}
}

func (c *Compiler) checkScalar(goType reflect.Type, want reflect.Kind, expected string, path []string) error {
	if goType.Kind() != want {
		return errors.TypeMismatch(errors.PhaseLayout, path, goType.String(), expected)
	}
	return nil
}

// fillPointer handles both opaque pointers (raw handles, uint32-backed Go
// types) and pointer-to-record fields (Go pointer to struct, marshalled
// recursively, nil is the zero address).
func (c *Compiler) fillPointer(ct *CompiledType, p schema.Pointer, goType reflect.Type, path []string) error {
	if p.Elem == nil {
		if goType.Kind() != reflect.Uint32 {
			return errors.TypeMismatch(errors.PhaseLayout, path, goType.String(), "passage.Handle (uint32)")
		}
		return nil
	}

	rec, ok := p.Elem.(*schema.Record)
	if !ok {
		return errors.UnsupportedLayout(errors.PhaseLayout, path, "pointer pointee must be a record, got "+p.Elem.Name())
	}
	if goType.Kind() != reflect.Ptr || goType.Elem().Kind() != reflect.Struct {
		return errors.TypeMismatch(errors.PhaseLayout, path, goType.String(), "*struct")
	}

	elem, err := c.compile(rec, goType.Elem(), append(path, "*"))
	if err != nil {
		return err
	}
	ct.Elem = elem
	return nil
}

func (c *Compiler) fillArray(ct *CompiledType, a schema.Array, goType reflect.Type, path []string) error {
	if goType.Kind() != reflect.Slice {
		return errors.TypeMismatch(errors.PhaseLayout, path, goType.String(), "slice")
	}

	elem, err := c.compile(a.Elem, goType.Elem(), append(path, "[]"))
	if err != nil {
		return err
	}
	ct.Elem = elem
	ct.FixedLen = a.Len
	return nil
}

func (c *Compiler) fillRecord(ct *CompiledType, r *schema.Record, goType reflect.Type, info layout.Info, path []string) error {
	if goType.Kind() != reflect.Struct {
		return errors.TypeMismatch(errors.PhaseLayout, path, goType.String(), "struct")
	}

	fields := make([]types.Field, 0, len(r.Fields))
	for i := range r.Fields {
		sf := &r.Fields[i]

		goField, goIndex, found := findGoField(goType, sf.Name)
		if !found {
			return errors.New(errors.PhaseLayout, errors.KindNotFound).
				Path(append(path, sf.Name)...).
				GoType(goType.String()).
				Detail("no struct field matches record field %q", sf.Name).
				Build()
		}

		fieldPath := append(append([]string{}, path...), sf.Name)
		fieldType, err := c.compile(sf.Type, goField.Type, fieldPath)
		if err != nil {
			return err
		}

		fields = append(fields, types.Field{
			Type:     fieldType,
			Name:     sf.Name,
			GoIndex:  goIndex,
			Offset:   info.FieldOffs[sf.Name],
			ReadBack: sf.ReadBack,
		})
	}

	ct.Fields = fields
	return nil
}

// findGoField matches by: 1) native:"name" tag, 2) case-insensitive name.
func findGoField(goType reflect.Type, name string) (reflect.StructField, int, bool) {
	for i := 0; i < goType.NumField(); i++ {
		field := goType.Field(i)
		if !field.IsExported() {
			continue
		}

		if tag := field.Tag.Get("native"); tag != "" {
			if tag == "-" {
				continue
			}
			if tag == name {
				return field, i, true
			}
			continue
		}

		if strings.EqualFold(field.Name, name) {
			return field, i, true
		}
	}
	return reflect.StructField{}, 0, false
}
