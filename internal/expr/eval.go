package expr

import (
	"math/bits"

	"fortio.org/safecast"
)

// Env supplies the runtime context an expression is evaluated against:
// already-decoded field values plus resolved type metadata. Lookups
// return false on miss; the evaluator turns misses into typed errors.
type Env interface {
	// Lookup returns the value bound to a dot-joined field path.
	Lookup(path string) (uint64, bool)
	// SizeOf returns the constant byte size of a named type. Variable
	// size and unknown names both report false.
	SizeOf(typeName string) (uint64, bool)
	// AlignOf returns the alignment of a named type.
	AlignOf(typeName string) (uint64, bool)
}

// Eval resolves the expression to an unsigned 64-bit value against env.
// All arithmetic is checked: overflow, division by zero and oversized
// shifts return *EvalError instead of wrapping or panicking.
func (e *Expr) Eval(env Env) (uint64, error) {
	if e == nil {
		return 0, &EvalError{Kind: EvalErrUnsupported, Expr: "<nil>"}
	}
	switch e.Op {
	case OpLit:
		return e.Val, nil
	case OpFieldRef:
		key := e.RefKey()
		if env != nil {
			if v, ok := env.Lookup(key); ok {
				return v, nil
			}
		}
		return 0, &EvalError{Kind: EvalErrMissingParam, Ref: key, Expr: e.String()}
	case OpSizeof:
		if env != nil {
			if v, ok := env.SizeOf(e.Type); ok {
				return v, nil
			}
		}
		return 0, &EvalError{Kind: EvalErrUnknownType, Ref: e.Type, Expr: e.String()}
	case OpAlignof:
		if env != nil {
			if v, ok := env.AlignOf(e.Type); ok {
				return v, nil
			}
		}
		return 0, &EvalError{Kind: EvalErrUnknownType, Ref: e.Type, Expr: e.String()}
	}

	if e.Op.Unary() {
		x, err := e.X.Eval(env)
		if err != nil {
			return 0, err
		}
		return e.applyUnary(x)
	}

	x, err := e.X.Eval(env)
	if err != nil {
		return 0, err
	}
	y, err := e.Y.Eval(env)
	if err != nil {
		return 0, err
	}
	return e.applyBinary(x, y)
}

// Fold attempts compile-time evaluation. It reports false for any
// expression that needs runtime context (field references, type
// metadata) and for any arithmetic failure, so a true result holds
// under every possible evaluation environment.
func (e *Expr) Fold() (uint64, bool) {
	if !e.IsConstant() {
		return 0, false
	}
	// sizeof/alignof are constant per IsConstant but need a resolved
	// type table; without one they cannot fold.
	v, err := e.Eval(nil)
	if err != nil {
		return 0, false
	}
	return v, true
}

func (e *Expr) applyUnary(x uint64) (uint64, error) {
	switch e.Op {
	case OpBitNot:
		return ^x, nil
	case OpNeg:
		if x == 0 {
			return 0, nil
		}
		return 0, &EvalError{Kind: EvalErrOverflow, Expr: e.String()}
	case OpNot:
		return boolVal(x == 0), nil
	case OpPopcount:
		return uint64(bits.OnesCount64(x)), nil
	default:
		return 0, &EvalError{Kind: EvalErrUnsupported, Expr: e.String()}
	}
}

func (e *Expr) applyBinary(x, y uint64) (uint64, error) {
	overflow := func() (uint64, error) {
		return 0, &EvalError{Kind: EvalErrOverflow, Expr: e.String()}
	}
	switch e.Op {
	case OpAdd:
		sum, carry := bits.Add64(x, y, 0)
		if carry != 0 {
			return overflow()
		}
		return sum, nil
	case OpSub:
		diff, borrow := bits.Sub64(x, y, 0)
		if borrow != 0 {
			return overflow()
		}
		return diff, nil
	case OpMul:
		hi, lo := bits.Mul64(x, y)
		if hi != 0 {
			return overflow()
		}
		return lo, nil
	case OpDiv:
		if y == 0 {
			return 0, &EvalError{Kind: EvalErrDivisionByZero, Expr: e.String()}
		}
		return x / y, nil
	case OpMod:
		if y == 0 {
			return 0, &EvalError{Kind: EvalErrDivisionByZero, Expr: e.String()}
		}
		return x % y, nil
	case OpPow:
		exp, err := safecast.Conv[uint32](y)
		if err != nil {
			return overflow()
		}
		return checkedPow(x, exp, e)
	case OpBitAnd:
		return x & y, nil
	case OpBitOr:
		return x | y, nil
	case OpBitXor:
		return x ^ y, nil
	case OpShl:
		if y >= 64 {
			return overflow()
		}
		if x != 0 && bits.LeadingZeros64(x) < int(y) {
			return overflow()
		}
		return x << y, nil
	case OpShr:
		if y >= 64 {
			return overflow()
		}
		return x >> y, nil
	case OpEq:
		return boolVal(x == y), nil
	case OpNe:
		return boolVal(x != y), nil
	case OpLt:
		return boolVal(x < y), nil
	case OpGt:
		return boolVal(x > y), nil
	case OpLe:
		return boolVal(x <= y), nil
	case OpGe:
		return boolVal(x >= y), nil
	case OpAnd:
		return boolVal(x != 0 && y != 0), nil
	case OpOr:
		return boolVal(x != 0 || y != 0), nil
	case OpXor:
		return boolVal((x != 0) != (y != 0)), nil
	default:
		return 0, &EvalError{Kind: EvalErrUnsupported, Expr: e.String()}
	}
}

func checkedPow(base uint64, exp uint32, e *Expr) (uint64, error) {
	result := uint64(1)
	for i := uint32(0); i < exp; i++ {
		hi, lo := bits.Mul64(result, base)
		if hi != 0 {
			return 0, &EvalError{Kind: EvalErrOverflow, Expr: e.String()}
		}
		result = lo
	}
	return result, nil
}

func boolVal(b bool) uint64 {
	if b {
		return 1
	}
	return 0
}
