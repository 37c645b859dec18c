package errors

import (
	"fmt"
	"strings"
)

// Phase indicates where in processing the error occurred
type Phase string

const (
	PhaseSchema   Phase = "schema"   // type registration/validation
	PhaseLayout   Phase = "layout"   // native layout resolution
	PhaseBind     Phase = "bind"     // descriptor building and symbol resolution
	PhaseEncode   Phase = "encode"   // managed to native
	PhaseDecode   Phase = "decode"   // native to managed
	PhaseInvoke   Phase = "invoke"   // down-call execution
	PhaseCallback Phase = "callback" // up-call construction/dispatch
	PhaseLoad     Phase = "load"     // library loading
)

// Kind categorizes the error
type Kind string

const (
	KindSymbolNotFound    Kind = "symbol_not_found"
	KindUnsupportedLayout Kind = "unsupported_layout"
	KindAmbiguousCallback Kind = "ambiguous_callback"
	KindInvalidArena      Kind = "invalid_arena"
	KindConfigConflict    Kind = "config_conflict"
	KindMethodUnavailable Kind = "method_unavailable"
	KindTypeMismatch      Kind = "type_mismatch"
	KindOutOfBounds       Kind = "out_of_bounds"
	KindInvalidData       Kind = "invalid_data"
	KindAllocation        Kind = "allocation"
	KindInvalidUTF8       Kind = "invalid_utf8"
	KindOverflow          Kind = "overflow"
	KindNilPointer        Kind = "nil_pointer"
	KindNotFound          Kind = "not_found"
	KindInvalidInput      Kind = "invalid_input"
	KindInstantiation     Kind = "instantiation"
)

// Error is the structured error type used throughout the bridge
type Error struct {
	Value      any
	Cause      error
	Phase      Phase
	Kind       Kind
	GoType     string
	NativeType string
	Detail     string
	Path       []string
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteByte('[')
	b.WriteString(string(e.Phase))
	b.WriteString("] ")
	b.WriteString(string(e.Kind))

	if len(e.Path) > 0 {
		b.WriteString(" at ")
		b.WriteString(strings.Join(e.Path, "."))
	}

	if e.GoType != "" || e.NativeType != "" {
		b.WriteString(": ")
		if e.GoType != "" && e.NativeType != "" {
			b.WriteString("Go type ")
			b.WriteString(e.GoType)
			b.WriteString(", native type ")
			b.WriteString(e.NativeType)
		} else if e.GoType != "" {
			b.WriteString("Go type ")
			b.WriteString(e.GoType)
		} else {
			b.WriteString("native type ")
			b.WriteString(e.NativeType)
		}
	}

	if e.Detail != "" {
		if e.GoType != "" || e.NativeType != "" {
			b.WriteString(" - ")
		} else {
			b.WriteString(": ")
		}
		b.WriteString(e.Detail)
	}

	if e.Cause != nil {
		b.WriteString(" (caused by: ")
		b.WriteString(e.Cause.Error())
		b.WriteByte(')')
	}

	return b.String()
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Phase == t.Phase && e.Kind == t.Kind
	}
	return false
}

// Builder provides structured error construction
type Builder struct {
	err Error
}

// New creates a new error builder
func New(phase Phase, kind Kind) *Builder {
	return &Builder{
		err: Error{
			Phase: phase,
			Kind:  kind,
		},
	}
}

// Path sets the field path
func (b *Builder) Path(path ...string) *Builder {
	b.err.Path = path
	return b
}

// GoType sets the Go type name
func (b *Builder) GoType(t string) *Builder {
	b.err.GoType = t
	return b
}

// NativeType sets the native type name
func (b *Builder) NativeType(t string) *Builder {
	b.err.NativeType = t
	return b
}

// Value sets the offending value
func (b *Builder) Value(v any) *Builder {
	b.err.Value = v
	return b
}

// Cause sets the underlying error
func (b *Builder) Cause(err error) *Builder {
	b.err.Cause = err
	return b
}

// Detail sets the human-readable detail message
func (b *Builder) Detail(msg string, args ...any) *Builder {
	if len(args) > 0 {
		b.err.Detail = fmt.Sprintf(msg, args...)
	} else {
		b.err.Detail = msg
	}
	return b
}

// Build returns the constructed error
func (b *Builder) Build() *Error {
	return &b.err
}

// Convenience constructors for common error patterns

// TypeMismatch creates a type mismatch error
func TypeMismatch(phase Phase, path []string, goType, nativeType string) *Error {
	return &Error{
		Phase:      phase,
		Kind:       KindTypeMismatch,
		Path:       path,
		GoType:     goType,
		NativeType: nativeType,
	}
}

// UnsupportedLayout creates an unsupported layout error. These are raised
// eagerly at registration or bind time, never at call time.
func UnsupportedLayout(phase Phase, path []string, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindUnsupportedLayout,
		Path:   path,
		Detail: detail,
	}
}

// SymbolNotFound creates an error for a required symbol absent from a library
func SymbolNotFound(what, name string) *Error {
	return &Error{
		Phase:  PhaseBind,
		Kind:   KindSymbolNotFound,
		Detail: fmt.Sprintf("%s %q not exported by library", what, name),
	}
}

// MethodUnavailable marks an invocation of an optional method that was never
// resolved. This is the only recoverable invocation-time kind.
func MethodUnavailable(name string) *Error {
	return &Error{
		Phase:  PhaseInvoke,
		Kind:   KindMethodUnavailable,
		Detail: fmt.Sprintf("optional method %q was not resolved at bind time", name),
	}
}

// AmbiguousCallback creates an error for zero or multiple callback matches
func AmbiguousCallback(receiver, method string, matches int) *Error {
	return &Error{
		Phase:  PhaseCallback,
		Kind:   KindAmbiguousCallback,
		Detail: fmt.Sprintf("method %q on %s matched %d candidates, need exactly 1", method, receiver, matches),
		Value:  matches,
	}
}

// InvalidArena creates an arena misuse error
func InvalidArena(phase Phase, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidArena,
		Detail: detail,
	}
}

// ConfigConflict creates a configuration conflict error
func ConfigConflict(path []string, detail string) *Error {
	return &Error{
		Phase:  PhaseSchema,
		Kind:   KindConfigConflict,
		Path:   path,
		Detail: detail,
	}
}

// AllocationFailed creates an allocation failure error
func AllocationFailed(phase Phase, size, align uint32) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindAllocation,
		Detail: fmt.Sprintf("failed to allocate %d bytes (align %d)", size, align),
	}
}

// InvalidUTF8 creates an invalid UTF-8 error
func InvalidUTF8(phase Phase, path []string, data []byte) *Error {
	preview := data
	if len(preview) > 32 {
		preview = preview[:32]
	}
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidUTF8,
		Path:   path,
		Detail: fmt.Sprintf("invalid UTF-8 sequence: %x", preview),
	}
}

// OutOfBounds creates an out of bounds error
func OutOfBounds(phase Phase, path []string, index, length int) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindOutOfBounds,
		Path:   path,
		Detail: fmt.Sprintf("index %d out of bounds (length %d)", index, length),
		Value:  index,
	}
}

// NilPointer creates a nil pointer error
func NilPointer(phase Phase, path []string, goType string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNilPointer,
		Path:   path,
		GoType: goType,
		Detail: "nil pointer",
	}
}

// Overflow creates an overflow error
func Overflow(phase Phase, path []string, value any, targetType string) *Error {
	return &Error{
		Phase:      phase,
		Kind:       KindOverflow,
		Path:       path,
		NativeType: targetType,
		Detail:     fmt.Sprintf("value %v overflows %s", value, targetType),
		Value:      value,
	}
}

// InvalidData creates an invalid data error
func InvalidData(phase Phase, path []string, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidData,
		Path:   path,
		Detail: detail,
	}
}

// NotFound creates a not-found error
func NotFound(phase Phase, what, name string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNotFound,
		Detail: fmt.Sprintf("%s %q not found", what, name),
	}
}

// InvalidInput creates an invalid input error
func InvalidInput(phase Phase, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidInput,
		Detail: detail,
	}
}

// Instantiation creates a library instantiation error
func Instantiation(cause error) *Error {
	return &Error{
		Phase:  PhaseLoad,
		Kind:   KindInstantiation,
		Detail: "instantiate library",
		Cause:  cause,
	}
}

// Load creates a library loading error
func Load(detail string, cause error) *Error {
	return &Error{
		Phase:  PhaseLoad,
		Kind:   KindInvalidData,
		Detail: detail,
		Cause:  cause,
	}
}

// Wrap wraps an existing error with additional context
func Wrap(phase Phase, kind Kind, cause error, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   kind,
		Detail: detail,
		Cause:  cause,
	}
}

// MissingSymbol identifies one unresolved required symbol.
type MissingSymbol struct {
	Library string // library name the interface was bound against
	Symbol  string // exported name that could not be resolved
}

// MissingSymbolsError is returned when binding fails because required
// methods or named fields are absent from the library. Binding never
// returns a partially usable table alongside this error.
type MissingSymbolsError struct {
	Symbols []MissingSymbol
}

// NewMissingSymbolsError creates an error from a list of unresolved names.
func NewMissingSymbolsError(library string, names []string) *MissingSymbolsError {
	result := &MissingSymbolsError{
		Symbols: make([]MissingSymbol, 0, len(names)),
	}
	for _, name := range names {
		result.Symbols = append(result.Symbols, MissingSymbol{
			Library: library,
			Symbol:  name,
		})
	}
	return result
}

func (e *MissingSymbolsError) Error() string {
	if len(e.Symbols) == 0 {
		return "[bind] symbol_not_found: no symbols specified"
	}

	var b strings.Builder
	b.WriteString(fmt.Sprintf("missing %d required symbol(s):\n", len(e.Symbols)))

	// Group by library for cleaner output
	byLib := make(map[string][]string)
	var libOrder []string
	for _, sym := range e.Symbols {
		if _, exists := byLib[sym.Library]; !exists {
			libOrder = append(libOrder, sym.Library)
		}
		byLib[sym.Library] = append(byLib[sym.Library], sym.Symbol)
	}

	for _, lib := range libOrder {
		b.WriteString("\n  ")
		b.WriteString(lib)
		b.WriteString(":\n")
		for _, sym := range byLib[lib] {
			b.WriteString("    - ")
			b.WriteString(sym)
			b.WriteByte('\n')
		}
	}

	return strings.TrimSuffix(b.String(), "\n")
}

// Is reports whether target matches this error type
func (e *MissingSymbolsError) Is(target error) bool {
	_, ok := target.(*MissingSymbolsError)
	return ok
}
