package bind

import (
	"go.uber.org/zap"

	passage "github.com/passagelabs/passage"
	"github.com/passagelabs/passage/errors"
	"github.com/passagelabs/passage/marshal"
)

// Linker compiles interface declarations against loaded libraries. One
// linker can serve many interfaces; compiled type work is shared through
// its marshalling compiler.
type Linker struct {
	compiler *marshal.Compiler
}

func NewLinker() *Linker {
	return &Linker{compiler: marshal.NewCompiler()}
}

func NewLinkerWithCompiler(c *marshal.Compiler) *Linker {
	return &Linker{compiler: c}
}

func (l *Linker) Compiler() *marshal.Compiler {
	return l.compiler
}

// Link resolves every declared method and symbol against the library.
// Required symbols that are absent are collected and reported together;
// a partially-resolvable interface never yields a usable table. Optional
// absences are silent: the descriptor stays in the table unresolved and
// invoking it fails recoverably.
func (l *Linker) Link(lib passage.Library, iface Interface) (*Table, error) {
	if lib == nil {
		return nil, errors.InvalidInput(errors.PhaseBind, "library cannot be nil")
	}

	t := &Table{
		library: iface.Name,
		methods: make(map[string]*Descriptor, len(iface.Methods)),
		symbols: make(map[string]Symbol, len(iface.Symbols)),
	}

	var missing []string

	for i := range iface.Methods {
		m := &iface.Methods[i]
		if _, dup := t.methods[m.Name]; dup {
			return nil, errors.New(errors.PhaseBind, errors.KindConfigConflict).
				Path(iface.Name, m.Name).
				Detail("method declared twice").
				Build()
		}

		d, err := buildDescriptor(l.compiler, *m)
		if err != nil {
			return nil, err
		}

		if fn := lib.Function(m.Name); fn != nil {
			d.fn = fn
		} else if m.Optional {
			Logger().Debug("optional method absent",
				zap.String("library", iface.Name),
				zap.String("method", m.Name))
		} else {
			missing = append(missing, m.Name)
		}
		t.methods[m.Name] = d
	}

	for _, spec := range iface.Symbols {
		if v, ok := lib.Global(spec.Name); ok {
			t.symbols[spec.Name] = Symbol{Name: spec.Name, Value: v}
		} else if spec.Optional {
			Logger().Debug("optional symbol absent",
				zap.String("library", iface.Name),
				zap.String("symbol", spec.Name))
		} else {
			missing = append(missing, spec.Name)
		}
	}

	if len(missing) > 0 {
		return nil, errors.NewMissingSymbolsError(iface.Name, missing)
	}

	Logger().Debug("interface linked",
		zap.String("library", iface.Name),
		zap.Int("methods", len(t.methods)),
		zap.Int("symbols", len(t.symbols)))
	return t, nil
}
