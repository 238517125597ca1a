package expr

import (
	"fmt"
	"strconv"
)

// String renders the expression as C-style infix text. The rendering
// is stable and is embedded verbatim in analysis diagnostics.
func (e *Expr) String() string {
	if e == nil {
		return "<nil>"
	}
	switch e.Op {
	case OpLit:
		return strconv.FormatUint(e.Val, 10)
	case OpFieldRef:
		return e.RefKey()
	case OpSizeof:
		return fmt.Sprintf("sizeof(%s)", e.Type)
	case OpAlignof:
		return fmt.Sprintf("alignof(%s)", e.Type)
	case OpPopcount:
		return fmt.Sprintf("popcount(%s)", e.X)
	case OpBitNot:
		return fmt.Sprintf("(~%s)", e.X)
	case OpNeg:
		return fmt.Sprintf("(-%s)", e.X)
	case OpNot:
		return fmt.Sprintf("(!%s)", e.X)
	}
	if sym, ok := binSymbols[e.Op]; ok {
		return fmt.Sprintf("(%s%s%s)", e.X, sym, e.Y)
	}
	return fmt.Sprintf("<op %d>", e.Op)
}

var binSymbols = map[Op]string{
	OpAdd:    "+",
	OpSub:    "-",
	OpMul:    "*",
	OpDiv:    "/",
	OpMod:    "%",
	OpPow:    "**",
	OpBitAnd: "&",
	OpBitOr:  "|",
	OpBitXor: "^",
	OpShl:    "<<",
	OpShr:    ">>",
	OpEq:     "==",
	OpNe:     "!=",
	OpLt:     "<",
	OpGt:     ">",
	OpLe:     "<=",
	OpGe:     ">=",
	OpAnd:    "&&",
	OpOr:     "||",
	OpXor:    "^^",
}
