package bind

import (
	"sort"

	"github.com/passagelabs/passage/errors"
)

// Symbol is a named data value captured from the library's exported
// globals at link time. Read-only: the cell reflects the value at link,
// not live native state.
type Symbol struct {
	Name  string
	Value uint64
}

// Table is the bound method table for one library: every declared method
// compiled into a Descriptor, plus resolved named symbols. A Table is
// immutable after linking and safe for concurrent use.
type Table struct {
	library string
	methods map[string]*Descriptor
	symbols map[string]Symbol
}

// Library returns the interface name the table was linked against.
func (t *Table) Library() string {
	return t.library
}

// Method returns the descriptor for a declared method. Optional methods
// that did not resolve are still returned; Available reports their state.
func (t *Table) Method(name string) (*Descriptor, error) {
	d, ok := t.methods[name]
	if !ok {
		return nil, errors.NotFound(errors.PhaseBind, "method", name)
	}
	return d, nil
}

// Symbol returns a resolved named data symbol.
func (t *Table) Symbol(name string) (Symbol, bool) {
	s, ok := t.symbols[name]
	return s, ok
}

// Methods returns all descriptors sorted by name.
func (t *Table) Methods() []*Descriptor {
	out := make([]*Descriptor, 0, len(t.methods))
	for _, d := range t.methods {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
