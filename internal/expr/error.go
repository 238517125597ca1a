package expr

import "fmt"

// EvalErrorKind enumerates evaluation failure modes.
type EvalErrorKind uint8

const (
	// EvalErrMissingParam indicates a field reference with no value in scope.
	EvalErrMissingParam EvalErrorKind = iota + 1
	EvalErrUnknownType
	EvalErrDivisionByZero
	EvalErrOverflow
	EvalErrUnsupported
)

// EvalError reports why an expression could not be evaluated.
type EvalError struct {
	Kind EvalErrorKind
	Ref  string // field path or type name the failure refers to
	Expr string // rendering of the offending (sub)expression
}

func (e *EvalError) Error() string {
	if e == nil {
		return "<nil>"
	}
	switch e.Kind {
	case EvalErrMissingParam:
		return fmt.Sprintf("missing parameter %q in %s", e.Ref, e.Expr)
	case EvalErrUnknownType:
		return fmt.Sprintf("unknown or variable-size type %q in %s", e.Ref, e.Expr)
	case EvalErrDivisionByZero:
		return fmt.Sprintf("division by zero in %s", e.Expr)
	case EvalErrOverflow:
		return fmt.Sprintf("arithmetic overflow in %s", e.Expr)
	case EvalErrUnsupported:
		return fmt.Sprintf("unsupported expression %s", e.Expr)
	default:
		return fmt.Sprintf("expression error kind=%d in %s", e.Kind, e.Expr)
	}
}
