package expr_test

import (
	"errors"
	"math"
	"testing"

	"abi/internal/expr"
)

// mapEnv is a plain map-backed evaluation context.
type mapEnv struct {
	vals  map[string]uint64
	sizes map[string]uint64
}

func (m mapEnv) Lookup(path string) (uint64, bool) {
	v, ok := m.vals[path]
	return v, ok
}

func (m mapEnv) SizeOf(name string) (uint64, bool) {
	v, ok := m.sizes[name]
	return v, ok
}

func (m mapEnv) AlignOf(name string) (uint64, bool) {
	v, ok := m.sizes[name]
	return v, ok
}

func TestFold(t *testing.T) {
	tests := []struct {
		name string
		e    *expr.Expr
		want uint64
	}{
		{"literal", expr.Lit(42), 42},
		{"add", expr.Add(expr.Lit(2), expr.Lit(3)), 5},
		{"mul div", expr.Div(expr.Mul(expr.Lit(6), expr.Lit(7)), expr.Lit(2)), 21},
		{"pow", expr.Pow(expr.Lit(2), expr.Lit(10)), 1024},
		{"pow right assoc", expr.Pow(expr.Lit(2), expr.Pow(expr.Lit(3), expr.Lit(2))), 512},
		{"shift", expr.Bin(expr.OpShl, expr.Lit(1), expr.Lit(16)), 1 << 16},
		{"popcount", expr.Popcount(expr.Lit(0b1011)), 3},
		{"bitnot", expr.Unary(expr.OpBitNot, expr.Lit(0)), math.MaxUint64},
		{"neg zero", expr.Unary(expr.OpNeg, expr.Lit(0)), 0},
		{"mod", expr.Mod(expr.Lit(10), expr.Lit(3)), 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := tt.e.Fold()
			if !ok {
				t.Fatalf("Fold(%s) not constant", tt.e)
			}
			if got != tt.want {
				t.Errorf("Fold(%s) = %d, want %d", tt.e, got, tt.want)
			}
		})
	}
}

func TestFoldNotConstant(t *testing.T) {
	tests := []struct {
		name string
		e    *expr.Expr
	}{
		{"field ref", expr.Ref("len")},
		{"ref in arithmetic", expr.Add(expr.Ref("len"), expr.Lit(1))},
		// Comparison and logical results are runtime booleans, never
		// schema-time constants, even over literal operands.
		{"comparison", expr.Bin(expr.OpLt, expr.Lit(1), expr.Lit(2))},
		{"equality", expr.Bin(expr.OpEq, expr.Lit(1), expr.Lit(1))},
		{"logical and", expr.Bin(expr.OpAnd, expr.Lit(1), expr.Lit(1))},
		{"logical not", expr.Unary(expr.OpNot, expr.Lit(0))},
		// sizeof is constant in form but needs a resolved table.
		{"sizeof without table", expr.Sizeof("Header")},
		// Arithmetic failures never fold.
		{"div by zero", expr.Div(expr.Lit(1), expr.Lit(0))},
		{"overflow", expr.Mul(expr.Lit(math.MaxUint64), expr.Lit(2))},
		{"neg nonzero", expr.Unary(expr.OpNeg, expr.Lit(1))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if v, ok := tt.e.Fold(); ok {
				t.Errorf("Fold(%s) = %d, want not constant", tt.e, v)
			}
		})
	}
}

// Fold may succeed only when evaluation against any context agrees.
func TestFoldMatchesEval(t *testing.T) {
	env := mapEnv{
		vals:  map[string]uint64{"len": 7},
		sizes: map[string]uint64{"Header": 16},
	}
	exprs := []*expr.Expr{
		expr.Lit(3),
		expr.Add(expr.Lit(2), expr.Lit(3)),
		expr.Pow(expr.Lit(3), expr.Lit(4)),
		expr.Popcount(expr.Lit(0xff)),
		expr.Bin(expr.OpShr, expr.Lit(256), expr.Lit(4)),
	}
	for _, e := range exprs {
		folded, ok := e.Fold()
		if !ok {
			t.Fatalf("Fold(%s) not constant", e)
		}
		evaled, err := e.Eval(env)
		if err != nil {
			t.Fatalf("Eval(%s): %v", e, err)
		}
		if folded != evaled {
			t.Errorf("Fold(%s) = %d but Eval = %d", e, folded, evaled)
		}
	}
}

func TestEvalWithEnv(t *testing.T) {
	env := mapEnv{
		vals:  map[string]uint64{"len": 2, "hdr.flags": 0b101},
		sizes: map[string]uint64{"Header": 16},
	}
	tests := []struct {
		name string
		e    *expr.Expr
		want uint64
	}{
		{"ref", expr.Ref("len"), 2},
		{"dotted ref", expr.Ref("hdr", "flags"), 5},
		{"sizeof", expr.Sizeof("Header"), 16},
		{"ref plus literal", expr.Add(expr.Ref("len"), expr.Lit(3)), 5},
		{"popcount of ref", expr.Popcount(expr.Ref("hdr", "flags")), 2},
		{"comparison true", expr.Bin(expr.OpLt, expr.Ref("len"), expr.Lit(5)), 1},
		{"comparison false", expr.Bin(expr.OpGt, expr.Ref("len"), expr.Lit(5)), 0},
		{"logical xor", expr.Bin(expr.OpXor, expr.Lit(1), expr.Lit(0)), 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.e.Eval(env)
			if err != nil {
				t.Fatalf("Eval(%s): %v", tt.e, err)
			}
			if got != tt.want {
				t.Errorf("Eval(%s) = %d, want %d", tt.e, got, tt.want)
			}
		})
	}
}

func TestEvalErrors(t *testing.T) {
	env := mapEnv{vals: map[string]uint64{"x": 1}}
	tests := []struct {
		name string
		e    *expr.Expr
		kind expr.EvalErrorKind
	}{
		{"missing param", expr.Ref("unknown"), expr.EvalErrMissingParam},
		{"unknown type", expr.Sizeof("Nope"), expr.EvalErrUnknownType},
		{"div by zero", expr.Div(expr.Lit(1), expr.Lit(0)), expr.EvalErrDivisionByZero},
		{"mod by zero", expr.Mod(expr.Lit(1), expr.Lit(0)), expr.EvalErrDivisionByZero},
		{"add overflow", expr.Add(expr.Lit(math.MaxUint64), expr.Lit(1)), expr.EvalErrOverflow},
		{"sub underflow", expr.Sub(expr.Lit(0), expr.Lit(1)), expr.EvalErrOverflow},
		{"mul overflow", expr.Mul(expr.Lit(math.MaxUint64), expr.Lit(2)), expr.EvalErrOverflow},
		{"shift too wide", expr.Bin(expr.OpShl, expr.Lit(1), expr.Lit(64)), expr.EvalErrOverflow},
		{"shift overflow", expr.Bin(expr.OpShl, expr.Lit(1<<63), expr.Lit(1)), expr.EvalErrOverflow},
		{"pow overflow", expr.Pow(expr.Lit(2), expr.Lit(64)), expr.EvalErrOverflow},
		{"pow huge exponent", expr.Pow(expr.Lit(1), expr.Lit(1<<40)), expr.EvalErrOverflow},
		{"neg nonzero", expr.Unary(expr.OpNeg, expr.Ref("x")), expr.EvalErrOverflow},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.e.Eval(env)
			var ee *expr.EvalError
			if !errors.As(err, &ee) {
				t.Fatalf("Eval(%s) error = %v, want *EvalError", tt.e, err)
			}
			if ee.Kind != tt.kind {
				t.Errorf("Eval(%s) error kind = %d, want %d", tt.e, ee.Kind, tt.kind)
			}
		})
	}
}

func TestString(t *testing.T) {
	tests := []struct {
		e    *expr.Expr
		want string
	}{
		{expr.Lit(42), "42"},
		{expr.Ref("len"), "len"},
		{expr.Ref("hdr", "flags"), "hdr.flags"},
		{expr.Add(expr.Ref("a"), expr.Lit(1)), "(a+1)"},
		{expr.Sizeof("Header"), "sizeof(Header)"},
		{expr.Alignof("Header"), "alignof(Header)"},
		{expr.Popcount(expr.Ref("bitmap")), "popcount(bitmap)"},
		{expr.Unary(expr.OpBitNot, expr.Ref("x")), "(~x)"},
		{expr.Pow(expr.Lit(2), expr.Lit(8)), "(2**8)"},
		{expr.Bin(expr.OpLe, expr.Ref("a"), expr.Ref("b")), "(a<=b)"},
		{expr.Mul(expr.Add(expr.Ref("a"), expr.Ref("b")), expr.Lit(2)), "((a+b)*2)"},
	}
	for _, tt := range tests {
		if got := tt.e.String(); got != tt.want {
			t.Errorf("String() = %q, want %q", got, tt.want)
		}
	}
}

func TestFieldRefs(t *testing.T) {
	e := expr.Add(expr.Ref("a"), expr.Mul(expr.Ref("b", "c"), expr.Popcount(expr.Ref("a"))))
	refs := e.FieldRefs()
	want := []string{"a", "b.c", "a"}
	if len(refs) != len(want) {
		t.Fatalf("FieldRefs() = %v, want %v", refs, want)
	}
	for i := range want {
		if refs[i] != want[i] {
			t.Errorf("FieldRefs()[%d] = %q, want %q", i, refs[i], want[i])
		}
	}
}
