// Package schema declares the surface type model: the named layout
// descriptions a schema author writes, before dependency analysis and
// resolution. Kinds form a closed set so the resolver and walker can
// switch exhaustively.
package schema

import "abi/internal/expr"

// TypeDef is a named type declaration.
type TypeDef struct {
	Name    string
	Kind    Kind
	Comment string
}

// Kind is one of the declared type forms. The set is closed: Primitive,
// Array, Struct, Union, Enum, SizeUnion and Ref are the only
// implementations.
type Kind interface {
	isKind()
}

// Primitive is a fixed-width scalar. Size and alignment both equal the
// byte width.
type Primitive struct {
	Bits   uint16
	Signed bool
	Float  bool
}

// Array is a sequence of Elem values. Count may reference earlier
// fields. Jagged arrays allow variable-size elements and must be
// walked strictly in index order.
type Array struct {
	Elem   Kind
	Count  *expr.Expr
	Jagged bool
}

// Field pairs a name with a nested type. Offset, when non-nil, pins
// the field to a fixed byte offset instead of the accumulated cursor.
type Field struct {
	Name   string
	Type   Kind
	Offset *uint64
}

// Struct is an ordered field sequence. Packed structs use alignment 1
// and no padding; Align overrides the natural alignment when nonzero.
type Struct struct {
	Fields []Field
	Packed bool
	Align  uint64
}

// Union overlays its variants at offset 0 and is discriminated
// externally.
type Union struct {
	Variants []Field
}

// EnumVariant is one arm of a tagged union.
type EnumVariant struct {
	Name     string
	TagValue uint64
	Type     Kind
}

// Enum is a tagged union: the active variant is selected by evaluating
// Tag against already-decoded field values.
type Enum struct {
	Tag      *expr.Expr
	Variants []EnumVariant
}

// SizeVariant is one arm of a size-discriminated union; ExpectedSize
// must equal the variant type's resolved constant size.
type SizeVariant struct {
	Name         string
	ExpectedSize uint64
	Type         Kind
}

// SizeUnion selects its variant purely by the number of bytes left in
// the buffer. It may only appear inline as the final field of a struct.
type SizeUnion struct {
	Variants []SizeVariant
}

// Ref names another declared type.
type Ref struct {
	Target string
}

func (Primitive) isKind() {}
func (Array) isKind()     {}
func (Struct) isKind()    {}
func (Union) isKind()     {}
func (Enum) isKind()      {}
func (SizeUnion) isKind() {}
func (Ref) isKind()       {}

// Size returns the primitive's byte width.
func (p Primitive) Size() uint64 { return uint64(p.Bits) / 8 }

// Align returns the primitive's alignment, which equals its size.
func (p Primitive) Align() uint64 { return p.Size() }

// Integral reports whether the primitive is an integer type. Floats
// cannot feed array counts or union tags.
func (p Primitive) Integral() bool { return !p.Float }

// Common primitive widths.
var (
	U8  = Primitive{Bits: 8}
	U16 = Primitive{Bits: 16}
	U32 = Primitive{Bits: 32}
	U64 = Primitive{Bits: 64}
	I8  = Primitive{Bits: 8, Signed: true}
	I16 = Primitive{Bits: 16, Signed: true}
	I32 = Primitive{Bits: 32, Signed: true}
	I64 = Primitive{Bits: 64, Signed: true}
	F16 = Primitive{Bits: 16, Float: true}
	F32 = Primitive{Bits: 32, Float: true}
	F64 = Primitive{Bits: 64, Float: true}
)

func (p Primitive) String() string {
	prefix := "u"
	switch {
	case p.Float:
		prefix = "f"
	case p.Signed:
		prefix = "i"
	}
	switch p.Bits {
	case 8:
		return prefix + "8"
	case 16:
		return prefix + "16"
	case 32:
		return prefix + "32"
	case 64:
		return prefix + "64"
	}
	return "invalid"
}

// ParsePrimitive maps a primitive name like "u32" to its descriptor.
func ParsePrimitive(name string) (Primitive, bool) {
	switch name {
	case "u8":
		return U8, true
	case "u16":
		return U16, true
	case "u32":
		return U32, true
	case "u64":
		return U64, true
	case "i8":
		return I8, true
	case "i16":
		return I16, true
	case "i32":
		return I32, true
	case "i64":
		return I64, true
	case "f16":
		return F16, true
	case "f32":
		return F32, true
	case "f64":
		return F64, true
	}
	return Primitive{}, false
}
