// Package manifest decodes TOML schema declarations into the declared
// type model. It is the front-end the CLI feeds the engine with; the
// engine itself never touches files.
package manifest

import (
	"fmt"
	"io"
	"sort"

	"github.com/BurntSushi/toml"

	"abi/internal/schema"
)

// File is the top-level manifest document.
type File struct {
	Types map[string]TypeDecl `toml:"types"`
}

// TypeDecl is one declared type. Kind selects which of the remaining
// fields apply.
type TypeDecl struct {
	Kind    string `toml:"kind"`
	Comment string `toml:"comment"`

	// struct
	Fields []FieldDecl `toml:"fields"`
	Packed bool        `toml:"packed"`
	Align  uint64      `toml:"align"`

	// union, enum, size_union
	Variants []VariantDecl `toml:"variants"`
	Tag      string        `toml:"tag"` // enum tag expression

	// array
	Elem   string `toml:"elem"`
	Count  string `toml:"count"`
	Jagged bool   `toml:"jagged"`
}

// FieldDecl is one struct field. A non-empty Count turns the field
// into an array of Type.
type FieldDecl struct {
	Name   string  `toml:"name"`
	Type   string  `toml:"type"`
	Count  string  `toml:"count"`
	Jagged bool    `toml:"jagged"`
	Offset *uint64 `toml:"offset"`
}

// VariantDecl is one union, enum or size-union variant.
type VariantDecl struct {
	Name         string  `toml:"name"`
	Type         string  `toml:"type"`
	Tag          *uint64 `toml:"tag"`
	ExpectedSize *uint64 `toml:"expected_size"`
	Count        string  `toml:"count"`
	Jagged       bool    `toml:"jagged"`
}

// Decode reads a TOML manifest and returns the declared types in name
// order.
func Decode(r io.Reader) ([]schema.TypeDef, error) {
	var f File
	if _, err := toml.NewDecoder(r).Decode(&f); err != nil {
		return nil, err
	}
	return f.TypeDefs()
}

// DecodeString is Decode over an in-memory document.
func DecodeString(doc string) ([]schema.TypeDef, error) {
	var f File
	if _, err := toml.Decode(doc, &f); err != nil {
		return nil, err
	}
	return f.TypeDefs()
}

// TypeDefs converts the document into schema declarations, sorted by
// type name for deterministic downstream processing.
func (f *File) TypeDefs() ([]schema.TypeDef, error) {
	names := make([]string, 0, len(f.Types))
	for name := range f.Types {
		names = append(names, name)
	}
	sort.Strings(names)

	defs := make([]schema.TypeDef, 0, len(names))
	for _, name := range names {
		decl := f.Types[name]
		kind, err := decl.kind(name)
		if err != nil {
			return nil, err
		}
		defs = append(defs, schema.TypeDef{Name: name, Kind: kind, Comment: decl.Comment})
	}
	return defs, nil
}

func (d *TypeDecl) kind(typeName string) (schema.Kind, error) {
	switch d.Kind {
	case "struct":
		fields := make([]schema.Field, 0, len(d.Fields))
		for _, fd := range d.Fields {
			ft, err := fieldKind(typeName, fd.Name, fd.Type, fd.Count, fd.Jagged)
			if err != nil {
				return nil, err
			}
			fields = append(fields, schema.Field{Name: fd.Name, Type: ft, Offset: fd.Offset})
		}
		return schema.Struct{Fields: fields, Packed: d.Packed, Align: d.Align}, nil
	case "union":
		variants := make([]schema.Field, 0, len(d.Variants))
		for _, vd := range d.Variants {
			vt, err := fieldKind(typeName, vd.Name, vd.Type, vd.Count, vd.Jagged)
			if err != nil {
				return nil, err
			}
			variants = append(variants, schema.Field{Name: vd.Name, Type: vt})
		}
		return schema.Union{Variants: variants}, nil
	case "enum":
		tag, err := ParseExpr(d.Tag)
		if err != nil {
			return nil, fmt.Errorf("type %q: tag: %w", typeName, err)
		}
		variants := make([]schema.EnumVariant, 0, len(d.Variants))
		for _, vd := range d.Variants {
			if vd.Tag == nil {
				return nil, fmt.Errorf("type %q: enum variant %q has no tag value", typeName, vd.Name)
			}
			vt, err := fieldKind(typeName, vd.Name, vd.Type, vd.Count, vd.Jagged)
			if err != nil {
				return nil, err
			}
			variants = append(variants, schema.EnumVariant{Name: vd.Name, TagValue: *vd.Tag, Type: vt})
		}
		return schema.Enum{Tag: tag, Variants: variants}, nil
	case "size_union":
		variants := make([]schema.SizeVariant, 0, len(d.Variants))
		for _, vd := range d.Variants {
			if vd.ExpectedSize == nil {
				return nil, fmt.Errorf("type %q: size union variant %q has no expected_size", typeName, vd.Name)
			}
			vt, err := fieldKind(typeName, vd.Name, vd.Type, vd.Count, vd.Jagged)
			if err != nil {
				return nil, err
			}
			variants = append(variants, schema.SizeVariant{Name: vd.Name, ExpectedSize: *vd.ExpectedSize, Type: vt})
		}
		return schema.SizeUnion{Variants: variants}, nil
	case "array":
		count, err := ParseExpr(d.Count)
		if err != nil {
			return nil, fmt.Errorf("type %q: count: %w", typeName, err)
		}
		return schema.Array{Elem: namedKind(d.Elem), Count: count, Jagged: d.Jagged}, nil
	}
	return nil, fmt.Errorf("type %q: unknown kind %q", typeName, d.Kind)
}

func fieldKind(typeName, fieldName, typ, count string, jagged bool) (schema.Kind, error) {
	base := namedKind(typ)
	if count == "" {
		return base, nil
	}
	countExpr, err := ParseExpr(count)
	if err != nil {
		return nil, fmt.Errorf("type %q: field %q count: %w", typeName, fieldName, err)
	}
	return schema.Array{Elem: base, Count: countExpr, Jagged: jagged}, nil
}

// namedKind maps a type string to a primitive or a reference to a
// declared type.
func namedKind(name string) schema.Kind {
	if p, ok := schema.ParsePrimitive(name); ok {
		return p
	}
	return schema.Ref{Target: name}
}
