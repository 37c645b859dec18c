package bind

import (
	"reflect"

	passage "github.com/passagelabs/passage"
	"github.com/passagelabs/passage/errors"
	"github.com/passagelabs/passage/marshal"
	"github.com/passagelabs/passage/schema"
)

// RetKind classifies how a method's result leaves the call.
type RetKind int

const (
	RetVoid RetKind = iota
	// RetScalar returns by value in the result slot.
	RetScalar
	// RetHandle returns a raw native address. Pointer, string and opaque
	// results all surface this way; interpretation is the caller's.
	RetHandle
)

// Return is the compiled result classification of a bound method.
type Return struct {
	Kind RetKind
	// Scalar is the marshalling kind for RetScalar results.
	Scalar marshal.Kind
}

// BoundParam is one compiled parameter of a Descriptor.
type BoundParam struct {
	Name string
	Type *marshal.CompiledType
	Dir  Dir
	// PtrPtr parameters pass the address of a pointer cell instead of the
	// contents address, so the callee can repoint it.
	PtrPtr   bool
	Callback bool
}

// ByValue reports whether the parameter occupies the call slot directly.
func (p *BoundParam) ByValue() bool {
	return p.Type.IsScalar() || (p.Type.Kind == marshal.KindPointer && p.Type.Elem == nil)
}

// Descriptor is the compiled form of one method: parameter and return
// classification resolved once, plus the native function when the symbol
// was present at link time.
type Descriptor struct {
	Name     string
	Params   []BoundParam
	Ret      Return
	Optional bool
	Critical bool

	fn passage.Function
}

// Available reports whether the symbol resolved at link time. Optional
// methods may be unavailable; invoking one fails recoverably.
func (d *Descriptor) Available() bool {
	return d.fn != nil
}

// Func returns the resolved native function, or nil when unavailable.
func (d *Descriptor) Func() passage.Function {
	return d.fn
}

var handleType = reflect.TypeOf(passage.Handle(0))

// buildDescriptor compiles and validates one method declaration. All
// classification happens here; the invoker only follows the result.
func buildDescriptor(c *marshal.Compiler, m Method) (*Descriptor, error) {
	if m.Name == "" {
		return nil, errors.InvalidInput(errors.PhaseBind, "method name cannot be empty")
	}

	d := &Descriptor{
		Name:     m.Name,
		Params:   make([]BoundParam, 0, len(m.Params)),
		Optional: m.Optional,
		Critical: m.Critical,
	}

	for i := range m.Params {
		bp, err := buildParam(c, m, &m.Params[i])
		if err != nil {
			return nil, err
		}
		d.Params = append(d.Params, bp)
	}

	ret, err := buildReturn(c, m)
	if err != nil {
		return nil, err
	}
	d.Ret = ret
	return d, nil
}

func buildParam(c *marshal.Compiler, m Method, p *Param) (BoundParam, error) {
	path := []string{m.Name, p.Name}

	if p.Callback {
		if m.Critical {
			return BoundParam{}, errors.New(errors.PhaseBind, errors.KindConfigConflict).
				Path(path...).
				Detail("critical method %q cannot take callback parameters", m.Name).
				Build()
		}
		st := p.Type
		if st == nil {
			st = schema.Pointer{}
		}
		goType := p.Go
		if goType == nil {
			goType = handleType
		}
		ct, err := c.Compile(st, goType)
		if err != nil {
			return BoundParam{}, err
		}
		if ct.Kind != marshal.KindPointer || ct.Elem != nil {
			return BoundParam{}, errors.UnsupportedLayout(errors.PhaseBind, path,
				"callback parameters must be opaque pointers")
		}
		return BoundParam{Name: p.Name, Type: ct, Dir: DirIn, Callback: true}, nil
	}

	if p.Type == nil {
		return BoundParam{}, errors.InvalidInput(errors.PhaseBind,
			"parameter "+p.Name+" of "+m.Name+" has no declared type")
	}
	if p.Go == nil {
		return BoundParam{}, errors.InvalidInput(errors.PhaseBind,
			"parameter "+p.Name+" of "+m.Name+" has no Go type")
	}

	ct, err := c.Compile(p.Type, p.Go)
	if err != nil {
		return BoundParam{}, err
	}

	bp := BoundParam{Name: p.Name, Type: ct, Dir: p.Dir, PtrPtr: p.PtrPtr}

	if p.Dir.ReadBack() && bp.ByValue() {
		return BoundParam{}, errors.New(errors.PhaseBind, errors.KindInvalidInput).
			Path(path...).
			Detail("direction %s requires a pointer-carrying type, %s passes by value",
				p.Dir, p.Type.Name()).
			Build()
	}
	if p.Dir.ReadBack() && ct.Kind == marshal.KindString {
		// Managed strings are immutable; use a byte array for mutable text.
		return BoundParam{}, errors.New(errors.PhaseBind, errors.KindInvalidInput).
			Path(path...).
			Detail("string parameters cannot be read back").
			Build()
	}
	if p.PtrPtr {
		if bp.ByValue() {
			return BoundParam{}, errors.New(errors.PhaseBind, errors.KindInvalidInput).
				Path(path...).
				Detail("double-pointer marker on by-value parameter").
				Build()
		}
		if !p.Dir.ReadBack() {
			return BoundParam{}, errors.New(errors.PhaseBind, errors.KindInvalidInput).
				Path(path...).
				Detail("double-pointer marker requires an out direction").
				Build()
		}
	}
	return bp, nil
}

func buildReturn(c *marshal.Compiler, m Method) (Return, error) {
	if m.Returns == nil {
		return Return{Kind: RetVoid}, nil
	}

	st := m.Returns.Type
	switch st.(type) {
	case schema.Pointer, schema.String:
		return Return{Kind: RetHandle}, nil
	}

	if !schema.IsScalar(st) {
		return Return{}, errors.UnsupportedLayout(errors.PhaseBind, []string{m.Name, "return"},
			st.Name()+" cannot return by value")
	}

	goType := m.Returns.Go
	if goType == nil {
		return Return{}, errors.InvalidInput(errors.PhaseBind,
			"scalar return of "+m.Name+" has no Go type")
	}
	ct, err := c.Compile(st, goType)
	if err != nil {
		return Return{}, err
	}
	return Return{Kind: RetScalar, Scalar: ct.Kind}, nil
}
