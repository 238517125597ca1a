// Package resolve turns declared schema types into resolved layouts:
// a constant or parameterized byte footprint, an alignment, and a
// dynamic-parameter registry downstream consumers read values through.
package resolve

import (
	"abi/internal/expr"
	"abi/internal/schema"
)

// Size is a resolved footprint. A constant size is identical on every
// instance; a variable size lists, per referenced field path, the
// primitive read type whose runtime value is needed to compute it.
type Size struct {
	IsVariable bool
	Bytes      uint64                      // footprint when !IsVariable
	Params     map[string]schema.Primitive // read types when IsVariable
}

// ConstSize builds a constant footprint.
func ConstSize(n uint64) Size { return Size{Bytes: n} }

// VariableSize builds a variable footprint over the given parameters.
func VariableSize(params map[string]schema.Primitive) Size {
	if params == nil {
		params = map[string]schema.Primitive{}
	}
	return Size{IsVariable: true, Params: params}
}

// Type is a fully resolved type: declared kind with every nested type
// resolved, plus footprint, alignment and the dynamic-parameter
// registry (owner field -> dependency paths).
type Type struct {
	Name          string
	Size          Size
	Align         uint64
	Kind          Kind
	DynamicParams map[string][]string
	Comment       string
}

// Kind mirrors schema.Kind with resolved nesting. Closed set.
type Kind interface {
	isResolvedKind()
}

// Primitive is a resolved scalar.
type Primitive struct {
	Prim schema.Primitive
}

// Field is a resolved struct field or union variant. Offset is nil
// when a variable-size prefix makes the position runtime-dependent.
type Field struct {
	Name   string
	Type   *Type
	Offset *uint64
}

// Struct is a resolved field sequence.
type Struct struct {
	Fields        []Field
	Packed        bool
	AlignOverride uint64 // 0 when natural
}

// Union overlays resolved variants at offset 0.
type Union struct {
	Variants []Field
}

// EnumVariant is a resolved tagged-union arm. NeedsPayloadSize marks
// variable-size variants whose consumed byte count must be reported as
// a derived payload_size parameter.
type EnumVariant struct {
	Name             string
	TagValue         uint64
	Type             *Type
	NeedsPayloadSize bool
}

// Enum is a resolved tagged union. TagConst records whether the tag
// expression folds; TagParams lists the field paths it reads otherwise.
type Enum struct {
	Tag       *expr.Expr
	TagConst  bool
	TagParams map[string]schema.Primitive
	Variants  []EnumVariant
}

// Array is a resolved array. CountConst records whether the count
// expression folds; CountParams lists the field paths it reads.
type Array struct {
	Elem        *Type
	Count       *expr.Expr
	CountConst  bool
	CountParams map[string]schema.Primitive
	Jagged      bool
}

// SizeVariant is a resolved size-discriminated arm; ExpectedSize has
// been checked against the variant type's actual constant size.
type SizeVariant struct {
	Name         string
	ExpectedSize uint64
	Type         *Type
}

// SizeUnion is a resolved size-discriminated union. Its footprint is
// always variable: the active variant is chosen by remaining bytes.
type SizeUnion struct {
	Variants []SizeVariant
}

// Ref is a resolved reference to another table entry.
type Ref struct {
	Target string
}

func (Primitive) isResolvedKind() {}
func (Struct) isResolvedKind()    {}
func (Union) isResolvedKind()     {}
func (Enum) isResolvedKind()      {}
func (Array) isResolvedKind()     {}
func (SizeUnion) isResolvedKind() {}
func (Ref) isResolvedKind()       {}

// Table is the read-only name -> resolved type mapping handed to
// downstream consumers. Shared across concurrent extractions.
type Table map[string]*Type

// Lookup returns the resolved type for name.
func (t Table) Lookup(name string) (*Type, bool) {
	rt, ok := t[name]
	return rt, ok
}

// SizeOf implements the type-metadata half of expr.Env: constant sizes
// only, variable-size targets report false.
func (t Table) SizeOf(name string) (uint64, bool) {
	rt, ok := t[name]
	if !ok || rt.Size.IsVariable {
		return 0, false
	}
	return rt.Size.Bytes, true
}

// AlignOf reports the alignment of a named type.
func (t Table) AlignOf(name string) (uint64, bool) {
	rt, ok := t[name]
	if !ok {
		return 0, false
	}
	return rt.Align, true
}
