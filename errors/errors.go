package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
)

// Phase names the step of a call or marshal operation that failed.
type Phase string

const (
	PhaseResolve   Phase = "resolve"   // type tag to descriptor lookup
	PhasePrepare   Phase = "prepare"   // call interface preparation
	PhaseRehome    Phase = "rehome"    // argument relocation into scratch storage
	PhaseCall      Phase = "call"      // foreign call
	PhaseExtract   Phase = "extract"   // return slot to canonical result
	PhaseMarshal   Phase = "marshal"   // native struct to canonical bytes
	PhaseUnmarshal Phase = "unmarshal" // canonical bytes to native struct
	PhaseValidate  Phase = "validate"  // descriptor validation
	PhaseParse     Phase = "parse"     // manifest parsing
	PhaseLink      Phase = "link"      // symbol resolution
)

// Kind is the error category.
type Kind string

const (
	KindUnknownTag   Kind = "unknown_tag"
	KindMetadata     Kind = "metadata"
	KindBufferSize   Kind = "buffer_size"
	KindAllocation   Kind = "allocation"
	KindNilPointer   Kind = "nil_pointer"
	KindPrepare      Kind = "prepare"
	KindOutOfBounds  Kind = "out_of_bounds"
	KindTypeMismatch Kind = "type_mismatch"
	KindOverflow     Kind = "overflow"
	KindNotFound     Kind = "not_found"
	KindInvalidInput Kind = "invalid_input"
	KindCallFailed   Kind = "call_failed"
)

// Error is the structured error type used throughout the module
type Error struct {
	Value    any
	Cause    error
	Phase    Phase
	Kind     Kind
	Type     string
	Function string
	Detail   string
	Path     []string
}

// Error renders "[phase] kind: detail" followed by any location fields.
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteByte('[')
	b.WriteString(string(e.Phase))
	b.WriteString("] ")
	b.WriteString(string(e.Kind))

	if e.Function != "" {
		b.WriteString(" in ")
		b.WriteString(e.Function)
	}

	if len(e.Path) > 0 {
		b.WriteString(" at ")
		b.WriteString(strings.Join(e.Path, "."))
	}

	if e.Type != "" {
		b.WriteString(": type ")
		b.WriteString(e.Type)
	}

	if e.Detail != "" {
		if e.Type != "" {
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

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches another *Error with the same Phase and Kind.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Phase == t.Phase && e.Kind == t.Kind
	}
	return false
}

// KindOf returns the kind of the first *Error in err's chain, or "" if there is none.
func KindOf(err error) Kind {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// PhaseOf returns the phase of the first *Error in err's chain, or "" if there is none.
func PhaseOf(err error) Phase {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Phase
	}
	return ""
}

// Builder assembles an *Error field by field.
type Builder struct {
	err Error
}

// New starts a Builder for the given phase and kind.
func New(phase Phase, kind Kind) *Builder {
	return &Builder{
		err: Error{
			Phase: phase,
			Kind:  kind,
		},
	}
}

// Path sets the member or argument path
func (b *Builder) Path(path ...string) *Builder {
	b.err.Path = path
	return b
}

// Type sets the type name
func (b *Builder) Type(t string) *Builder {
	b.err.Type = t
	return b
}

// Function sets the function name
func (b *Builder) Function(name string) *Builder {
	b.err.Function = name
	return b
}

// Value records the value that was rejected.
func (b *Builder) Value(v any) *Builder {
	b.err.Value = v
	return b
}

// Cause records the wrapped error.
func (b *Builder) Cause(err error) *Builder {
	b.err.Cause = err
	return b
}

// Detail formats the message.
func (b *Builder) Detail(msg string, args ...any) *Builder {
	if len(args) > 0 {
		b.err.Detail = fmt.Sprintf(msg, args...)
	} else {
		b.err.Detail = msg
	}
	return b
}

func (b *Builder) Build() *Error {
	return &b.err
}

// Shorthands used across the packages.

// UnknownTag creates an error for a type tag with no descriptor mapping
func UnknownTag(phase Phase, tag any) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindUnknownTag,
		Detail: fmt.Sprintf("no descriptor for type tag %v", tag),
		Value:  tag,
	}
}

// Metadata creates an error for internally inconsistent descriptor metadata
func Metadata(phase Phase, what string, declared, actual uintptr) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindMetadata,
		Detail: fmt.Sprintf("%s: declared %d, computed %d", what, declared, actual),
		Value:  declared,
	}
}

// BufferSize creates a buffer size violation error
func BufferSize(phase Phase, got, want int, exact bool) *Error {
	rel := "at least"
	if exact {
		rel = "exactly"
	}
	return &Error{
		Phase:  phase,
		Kind:   KindBufferSize,
		Detail: fmt.Sprintf("buffer holds %d bytes, need %s %d", got, rel, want),
		Value:  got,
	}
}

// AllocationFailed reports scratch storage that could not be obtained.
func AllocationFailed(phase Phase, size, align uintptr) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindAllocation,
		Detail: fmt.Sprintf("cannot allocate %d bytes aligned to %d", size, align),
	}
}

// NilPointer reports a required pointer or value that was nil.
func NilPointer(phase Phase, what string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNilPointer,
		Detail: fmt.Sprintf("nil %s", what),
	}
}

// OutOfBounds reports an access past the end of a region.
func OutOfBounds(phase Phase, path []string, end, length uintptr) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindOutOfBounds,
		Path:   path,
		Detail: fmt.Sprintf("region ends at %d, beyond length %d", end, length),
		Value:  end,
	}
}

// TypeMismatch reports a value of the wrong Go type for a tag.
func TypeMismatch(phase Phase, path []string, goType, tag string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindTypeMismatch,
		Path:   path,
		Type:   tag,
		Detail: fmt.Sprintf("cannot use Go type %s", goType),
	}
}

// Overflow reports a value that does not fit its canonical width.
func Overflow(phase Phase, path []string, value any, targetType string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindOverflow,
		Path:   path,
		Type:   targetType,
		Detail: fmt.Sprintf("value %v overflows %s", value, targetType),
		Value:  value,
	}
}

// Unsupported creates an invalid input error for a request the layer does not serve
func Unsupported(phase Phase, what string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidInput,
		Detail: what + " is not supported",
	}
}

// NotFound reports a missing symbol, export or descriptor.
func NotFound(phase Phase, what, name string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNotFound,
		Detail: fmt.Sprintf("%s %q not found", what, name),
	}
}

// InvalidInput reports a request the layer cannot act on.
func InvalidInput(phase Phase, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidInput,
		Detail: detail,
	}
}

// Wrap attaches a phase and kind to a foreign error.
func Wrap(phase Phase, kind Kind, cause error, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   kind,
		Detail: detail,
		Cause:  cause,
	}
}

// ParseFailed reports a manifest that could not be decoded.
func ParseFailed(what string, cause error) *Error {
	return &Error{
		Phase:  PhaseParse,
		Kind:   KindInvalidInput,
		Detail: fmt.Sprintf("parse %s", what),
		Cause:  cause,
	}
}

// MissingSymbol represents a single unresolved function symbol
type MissingSymbol struct {
	Library string // e.g., "libm.so.6", empty for the default resolver
	Symbol  string // e.g., "cos"
}

// MissingSymbolsError is returned when binding fails because symbols could not be resolved
type MissingSymbolsError struct {
	Symbols []MissingSymbol
}

// NewMissingSymbolsError creates an error from a list of "library#symbol" strings
func NewMissingSymbolsError(keys []string) *MissingSymbolsError {
	result := &MissingSymbolsError{
		Symbols: make([]MissingSymbol, 0, len(keys)),
	}
	for _, key := range keys {
		lib, sym := parseSymbolKey(key)
		result.Symbols = append(result.Symbols, MissingSymbol{
			Library: lib,
			Symbol:  sym,
		})
	}
	return result
}

func parseSymbolKey(key string) (library, symbol string) {
	lib, sym, found := strings.Cut(key, "#")
	if found {
		return lib, sym
	}
	return "", key
}

func (e *MissingSymbolsError) Error() string {
	if len(e.Symbols) == 0 {
		return "[link] not_found: no symbols specified"
	}

	var b strings.Builder
	b.WriteString(fmt.Sprintf("missing %d symbol(s):\n", len(e.Symbols)))

	// Group by library for cleaner output
	byLib := make(map[string][]string)
	var libOrder []string
	for _, s := range e.Symbols {
		if _, exists := byLib[s.Library]; !exists {
			libOrder = append(libOrder, s.Library)
		}
		byLib[s.Library] = append(byLib[s.Library], s.Symbol)
	}

	for _, lib := range libOrder {
		name := lib
		if name == "" {
			name = "<default>"
		}
		b.WriteString("\n  ")
		b.WriteString(name)
		b.WriteString(":\n")
		for _, sym := range byLib[lib] {
			b.WriteString("    - ")
			b.WriteString(sym)
			b.WriteByte('\n')
		}
	}

	return strings.TrimSuffix(b.String(), "\n")
}

// Is matches any *MissingSymbolsError.
func (e *MissingSymbolsError) Is(target error) bool {
	_, ok := target.(*MissingSymbolsError)
	return ok
}
