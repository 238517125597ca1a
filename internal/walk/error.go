package walk

import (
	"errors"
	"fmt"

	"abi/internal/expr"
)

// ErrorKind classifies walk-time failures. Any of them aborts the
// extraction immediately; a partially walked variable-length buffer
// has no resume point.
type ErrorKind uint8

const (
	ErrMissingParam ErrorKind = iota + 1
	ErrUnsupportedExpr
	ErrDivisionByZero
	ErrOverflow
	ErrBufferTooSmall
	ErrUnknownType
	ErrUnknownVariant
)

// Error is a walk-time extraction failure at a specific field path.
type Error struct {
	Kind ErrorKind
	Path string // field path being processed
	Ref  string // parameter or type name, when relevant
	Expr string // offending expression, rendered
	Need uint64 // bytes required, or the unmatched discriminator
	Have uint64 // bytes available
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	switch e.Kind {
	case ErrMissingParam:
		return fmt.Sprintf("missing parameter %q at %q", e.Ref, e.Path)
	case ErrUnsupportedExpr:
		return fmt.Sprintf("unsupported expression %q at %q", e.Expr, e.Path)
	case ErrDivisionByZero:
		return fmt.Sprintf("division by zero in %q at %q", e.Expr, e.Path)
	case ErrOverflow:
		if e.Ref != "" {
			return fmt.Sprintf("value of %q at %q is out of unsigned range", e.Ref, e.Path)
		}
		return fmt.Sprintf("arithmetic overflow in %q at %q", e.Expr, e.Path)
	case ErrBufferTooSmall:
		return fmt.Sprintf("buffer too small at %q: need %d bytes, have %d", e.Path, e.Need, e.Have)
	case ErrUnknownType:
		return fmt.Sprintf("unknown type %q at %q", e.Ref, e.Path)
	case ErrUnknownVariant:
		return fmt.Sprintf("no variant at %q matches discriminator %d", e.Path, e.Need)
	}
	return fmt.Sprintf("walk error %d at %q", e.Kind, e.Path)
}

// fromEval rewrites an evaluator error into the walk taxonomy, keeping
// the rendered expression and attaching the current path.
func fromEval(path string, err error) error {
	var ee *expr.EvalError
	if !errors.As(err, &ee) {
		return err
	}
	out := &Error{Path: path, Ref: ee.Ref, Expr: ee.Expr}
	switch ee.Kind {
	case expr.EvalErrMissingParam:
		out.Kind = ErrMissingParam
	case expr.EvalErrUnknownType:
		out.Kind = ErrUnknownType
	case expr.EvalErrDivisionByZero:
		out.Kind = ErrDivisionByZero
	case expr.EvalErrOverflow:
		out.Kind = ErrOverflow
	default:
		out.Kind = ErrUnsupportedExpr
	}
	return out
}
