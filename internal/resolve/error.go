package resolve

import (
	"fmt"
	"strings"
)

// ErrorKind enumerates resolution failure modes.
type ErrorKind uint8

const (
	// ErrUnknownType indicates a reference to a type with no definition.
	ErrUnknownType ErrorKind = iota + 1
	// ErrCircular indicates types that can never resolve because each
	// needs another's layout first.
	ErrCircular
	ErrInvalidType
	ErrInvalidComment
	ErrFieldRefNotFound
	ErrFieldRefNotPrimitive
	ErrNonConstantRef
	// ErrForwardRef indicates a size or tag expression referencing a
	// field declared at the same or a later position in its struct.
	ErrForwardRef
)

// Error reports why a type could not be resolved.
type Error struct {
	Kind       ErrorKind
	Type       string   // type being resolved
	Detail     string   // human-readable specifics
	Field      string   // ErrForwardRef: field owning the expression
	Referenced string   // ErrForwardRef / field-ref errors: the offending path
	Unresolved []string // ErrCircular: types left unresolved
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	switch e.Kind {
	case ErrUnknownType:
		if e.Detail != "" {
			return e.Detail
		}
		return fmt.Sprintf("unknown type %q", e.Type)
	case ErrCircular:
		return fmt.Sprintf("circular dependency between types: %s", strings.Join(e.Unresolved, ", "))
	case ErrInvalidType:
		return fmt.Sprintf("invalid type definition %q: %s", e.Type, e.Detail)
	case ErrInvalidComment:
		return fmt.Sprintf("invalid comment on type %q: %s", e.Type, e.Detail)
	case ErrFieldRefNotFound:
		return fmt.Sprintf("type %q references field %q which cannot be resolved", e.Type, e.Referenced)
	case ErrFieldRefNotPrimitive:
		return fmt.Sprintf("type %q references field %q which is not a primitive", e.Type, e.Referenced)
	case ErrNonConstantRef:
		return fmt.Sprintf("type %q: %s", e.Type, e.Detail)
	case ErrForwardRef:
		return fmt.Sprintf("field %q of struct %q references field %q which is declared later",
			e.Field, e.Type, e.Referenced)
	default:
		return fmt.Sprintf("resolution error kind=%d type=%q", e.Kind, e.Type)
	}
}
