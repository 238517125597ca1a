// Package expr implements the expression trees that drive dynamic
// binary layouts: array counts, union tags and size computations over
// already-decoded field values and type metadata.
package expr

import "strings"

// Op identifies an expression node kind.
type Op uint8

const (
	OpLit Op = iota + 1
	OpFieldRef
	OpSizeof
	OpAlignof

	// Binary arithmetic.
	OpAdd
	OpSub
	OpMul
	OpDiv
	OpMod
	OpPow

	// Binary bitwise.
	OpBitAnd
	OpBitOr
	OpBitXor
	OpShl
	OpShr

	// Binary comparison, results are 0/1.
	OpEq
	OpNe
	OpLt
	OpGt
	OpLe
	OpGe

	// Binary logical, results are 0/1.
	OpAnd
	OpOr
	OpXor

	// Unary.
	OpBitNot
	OpNeg
	OpNot
	OpPopcount
)

// Expr is an immutable expression tree node. Which payload fields are
// meaningful depends on Op: Val for OpLit, Path for OpFieldRef, Type
// for OpSizeof/OpAlignof, X (and Y for binary ops) for operators.
type Expr struct {
	Op   Op
	Val  uint64
	Path []string
	Type string
	X, Y *Expr
}

// Lit builds a literal node.
func Lit(v uint64) *Expr { return &Expr{Op: OpLit, Val: v} }

// Ref builds a field reference from path segments.
func Ref(segments ...string) *Expr {
	return &Expr{Op: OpFieldRef, Path: segments}
}

// RefPath builds a field reference from a dot-joined path. Leading
// "../" segments climb one scope each.
func RefPath(path string) *Expr {
	var segs []string
	for strings.HasPrefix(path, "../") {
		segs = append(segs, "..")
		path = strings.TrimPrefix(path, "../")
	}
	return &Expr{Op: OpFieldRef, Path: append(segs, strings.Split(path, ".")...)}
}

// Sizeof builds a sizeof(typeName) node.
func Sizeof(typeName string) *Expr { return &Expr{Op: OpSizeof, Type: typeName} }

// Alignof builds an alignof(typeName) node.
func Alignof(typeName string) *Expr { return &Expr{Op: OpAlignof, Type: typeName} }

// Bin builds a binary node.
func Bin(op Op, x, y *Expr) *Expr { return &Expr{Op: op, X: x, Y: y} }

// Unary builds a unary node.
func Unary(op Op, x *Expr) *Expr { return &Expr{Op: op, X: x} }

func Add(x, y *Expr) *Expr { return Bin(OpAdd, x, y) }
func Sub(x, y *Expr) *Expr { return Bin(OpSub, x, y) }
func Mul(x, y *Expr) *Expr { return Bin(OpMul, x, y) }
func Div(x, y *Expr) *Expr { return Bin(OpDiv, x, y) }
func Mod(x, y *Expr) *Expr { return Bin(OpMod, x, y) }
func Pow(x, y *Expr) *Expr { return Bin(OpPow, x, y) }

func Popcount(x *Expr) *Expr { return Unary(OpPopcount, x) }

// RefKey returns the dot-joined path of a field reference node, or ""
// for any other node. Scope climbs render as a "../" prefix.
func (e *Expr) RefKey() string {
	if e == nil || e.Op != OpFieldRef {
		return ""
	}
	climb := 0
	for climb < len(e.Path) && e.Path[climb] == ".." {
		climb++
	}
	return strings.Repeat("../", climb) + strings.Join(e.Path[climb:], ".")
}

// Binary reports whether the op takes two operands.
func (op Op) Binary() bool { return op >= OpAdd && op <= OpXor }

// Unary reports whether the op takes one operand.
func (op Op) Unary() bool { return op >= OpBitNot && op <= OpPopcount }

// comparisons and logicals produce booleans, never layout constants.
func (op Op) boolean() bool { return op >= OpEq && op <= OpXor || op == OpNot }

// IsConstant reports whether the expression can be folded without any
// runtime context. Field references are never constant; boolean-valued
// operators are never treated as layout constants; sizeof/alignof are
// constant once their target type resolves; everything else is
// constant iff all operands are.
func (e *Expr) IsConstant() bool {
	switch {
	case e == nil:
		return false
	case e.Op == OpLit, e.Op == OpSizeof, e.Op == OpAlignof:
		return true
	case e.Op == OpFieldRef:
		return false
	case e.Op.boolean():
		return false
	case e.Op.Binary():
		return e.X.IsConstant() && e.Y.IsConstant()
	case e.Op.Unary():
		return e.X.IsConstant()
	default:
		return false
	}
}

// FieldRefs returns the dot-joined paths of every field reference in
// the expression, in traversal order, duplicates included.
func (e *Expr) FieldRefs() []string {
	var refs []string
	e.collectRefs(&refs)
	return refs
}

func (e *Expr) collectRefs(refs *[]string) {
	if e == nil {
		return
	}
	if e.Op == OpFieldRef {
		*refs = append(*refs, e.RefKey())
		return
	}
	e.X.collectRefs(refs)
	e.Y.collectRefs(refs)
}
