package errors

import (
	"fmt"
	"strings"
)

// Phase indicates where in processing the error occurred
type Phase string

const (
	PhaseArrange    Phase = "arrange"    // signature classification
	PhaseBind       Phase = "bind"       // calling-sequence construction
	PhaseSpecialize Phase = "specialize" // binding specialization
	PhaseInterp     Phase = "interp"     // interpreted binding execution
	PhaseUpcall     Phase = "upcall"     // upcall stub construction/invocation
	PhaseDowncall   Phase = "downcall"   // native entry-point construction
	PhaseResolve    Phase = "resolve"    // symbol resolution
	PhaseStubgen    Phase = "stubgen"    // stub generation backend
)

// Kind categorizes the error
type Kind string

const (
	KindSignatureMismatch Kind = "signature_mismatch"
	KindStackImbalance    Kind = "stack_imbalance"
	KindNonPrimitive      Kind = "non_primitive"
	KindReturnBuffer      Kind = "return_buffer"
	KindUnresolvedSymbol  Kind = "unresolved_symbol"
	KindExhausted         Kind = "exhausted"
	KindScopeClosed       Kind = "scope_closed"
	KindDoubleRelease     Kind = "double_release"
	KindUnsupported       Kind = "unsupported"
	KindStorageConflict   Kind = "storage_conflict"
	KindInvalidStorage    Kind = "invalid_storage"
	KindInvalidInput      Kind = "invalid_input"
	KindOutOfBounds       Kind = "out_of_bounds"
	KindTargetAbort       Kind = "target_abort"
	KindNotFound          Kind = "not_found"
)

// Error is the structured error type used throughout the bridge
type Error struct {
	Value  any
	Cause  error
	Phase  Phase
	Kind   Kind
	Type   string // low-level or native type involved, if any
	Detail string
	Path   []string
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

// Path sets the location path (argument index, binding index)
func (b *Builder) Path(path ...string) *Builder {
	b.err.Path = path
	return b
}

// Type sets the type name involved
func (b *Builder) Type(t string) *Builder {
	b.err.Type = t
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

// SignatureMismatch creates a signature mismatch error
func SignatureMismatch(phase Phase, path []string, got, want string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindSignatureMismatch,
		Path:   path,
		Type:   got,
		Detail: fmt.Sprintf("want %s", want),
	}
}

// StackImbalance creates an operand-stack imbalance error for a binding sequence
func StackImbalance(phase Phase, path []string, depth, want int) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindStackImbalance,
		Path:   path,
		Detail: fmt.Sprintf("operand stack depth %d, want %d", depth, want),
		Value:  depth,
	}
}

// NonPrimitive reports a low-level shape that is not flat
func NonPrimitive(phase Phase, path []string, typ string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNonPrimitive,
		Path:   path,
		Type:   typ,
		Detail: "low-level type must be primitive",
	}
}

// ReturnBufferMismatch reports an inconsistent return-buffer flag
func ReturnBufferMismatch(phase Phase, retMoves int, flagged bool) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindReturnBuffer,
		Detail: fmt.Sprintf("%d return moves but needsReturnBuffer=%v", retMoves, flagged),
	}
}

// UnresolvedSymbol reports a symbol that resolved to no entry point
func UnresolvedSymbol(name string, cause error) *Error {
	return &Error{
		Phase:  PhaseResolve,
		Kind:   KindUnresolvedSymbol,
		Detail: fmt.Sprintf("symbol %q has no entry point", name),
		Cause:  cause,
	}
}

// Exhausted reports scratch-memory exhaustion in an allocation context
func Exhausted(phase Phase, requested, remaining uint64) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindExhausted,
		Detail: fmt.Sprintf("requested %d bytes, %d remaining", requested, remaining),
	}
}

// ScopeClosed reports use of an entry point past its scope lifetime
func ScopeClosed(phase Phase, what string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindScopeClosed,
		Detail: fmt.Sprintf("%s used after scope close", what),
	}
}

// DoubleRelease reports a second Close of an allocation context
func DoubleRelease(phase Phase) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindDoubleRelease,
		Detail: "allocation context already released",
	}
}

// Unsupported creates an unsupported operation error
func Unsupported(phase Phase, what string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindUnsupported,
		Detail: what,
	}
}

// InvalidStorage reports a storage location outside the descriptor's register sets
func InvalidStorage(phase Phase, storage string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidStorage,
		Detail: fmt.Sprintf("storage %s not provided by descriptor", storage),
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

// OutOfBounds creates an out of bounds error
func OutOfBounds(phase Phase, path []string, offset, length int) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindOutOfBounds,
		Path:   path,
		Detail: fmt.Sprintf("offset %d out of bounds (length %d)", offset, length),
		Value:  offset,
	}
}

// TargetAbort reports a panic that escaped an upcall target
func TargetAbort(v any) *Error {
	return &Error{
		Phase:  PhaseUpcall,
		Kind:   KindTargetAbort,
		Detail: fmt.Sprintf("uncaught panic in upcall target: %v", v),
		Value:  v,
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

// Wrap wraps an existing error with additional context
func Wrap(phase Phase, kind Kind, cause error, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   kind,
		Detail: detail,
		Cause:  cause,
	}
}
