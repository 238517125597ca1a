package analyze

import (
	"fmt"

	"abi/internal/schema"
)

// ValidationKind classifies duplicate-declaration errors.
type ValidationKind uint8

const (
	DuplicateTypeName ValidationKind = iota + 1
	DuplicateFieldName
	DuplicateVariantName
	DuplicateTagValue
	DuplicateExpectedSize
)

func (k ValidationKind) String() string {
	switch k {
	case DuplicateTypeName:
		return "duplicate type name"
	case DuplicateFieldName:
		return "duplicate field name"
	case DuplicateVariantName:
		return "duplicate variant name"
	case DuplicateTagValue:
		return "duplicate tag value"
	case DuplicateExpectedSize:
		return "duplicate expected size"
	}
	return "unknown"
}

// ValidationError is one duplicate-declaration rejection.
type ValidationError struct {
	Kind ValidationKind
	Type string
	Name string // the duplicated name or value, rendered
}

func (e *ValidationError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Kind == DuplicateTypeName {
		return fmt.Sprintf("%s: %q declared more than once", e.Kind, e.Name)
	}
	return fmt.Sprintf("%s: %q in type %q", e.Kind, e.Name, e.Type)
}

// validateNames collects every duplicate type, field, variant, tag
// value and expected size across the declarations.
func (a *analyzer) validateNames(defs []schema.TypeDef) []ValidationError {
	var out []ValidationError

	seen := make(map[string]bool, len(defs))
	for _, def := range defs {
		if seen[def.Name] {
			out = append(out, ValidationError{Kind: DuplicateTypeName, Name: def.Name})
			continue
		}
		seen[def.Name] = true
	}

	for _, def := range defs {
		out = append(out, validateKind(def.Name, def.Kind)...)
	}
	return out
}

func validateKind(typeName string, kind schema.Kind) []ValidationError {
	var out []ValidationError
	switch k := kind.(type) {
	case schema.Struct:
		names := map[string]bool{}
		for _, f := range k.Fields {
			if names[f.Name] {
				out = append(out, ValidationError{Kind: DuplicateFieldName, Type: typeName, Name: f.Name})
			}
			names[f.Name] = true
			out = append(out, validateKind(typeName, f.Type)...)
		}
	case schema.Union:
		names := map[string]bool{}
		for _, v := range k.Variants {
			if names[v.Name] {
				out = append(out, ValidationError{Kind: DuplicateVariantName, Type: typeName, Name: v.Name})
			}
			names[v.Name] = true
			out = append(out, validateKind(typeName, v.Type)...)
		}
	case schema.Enum:
		names := map[string]bool{}
		tags := map[uint64]string{}
		for _, v := range k.Variants {
			if names[v.Name] {
				out = append(out, ValidationError{Kind: DuplicateVariantName, Type: typeName, Name: v.Name})
			}
			names[v.Name] = true
			if prev, dup := tags[v.TagValue]; dup {
				out = append(out, ValidationError{
					Kind: DuplicateTagValue,
					Type: typeName,
					Name: fmt.Sprintf("%d (variants %q and %q)", v.TagValue, prev, v.Name),
				})
			} else {
				tags[v.TagValue] = v.Name
			}
			out = append(out, validateKind(typeName, v.Type)...)
		}
	case schema.SizeUnion:
		names := map[string]bool{}
		sizes := map[uint64]string{}
		for _, v := range k.Variants {
			if names[v.Name] {
				out = append(out, ValidationError{Kind: DuplicateVariantName, Type: typeName, Name: v.Name})
			}
			names[v.Name] = true
			if prev, dup := sizes[v.ExpectedSize]; dup {
				out = append(out, ValidationError{
					Kind: DuplicateExpectedSize,
					Type: typeName,
					Name: fmt.Sprintf("%d (variants %q and %q)", v.ExpectedSize, prev, v.Name),
				})
			} else {
				sizes[v.ExpectedSize] = v.Name
			}
			out = append(out, validateKind(typeName, v.Type)...)
		}
	case schema.Array:
		out = append(out, validateKind(typeName, k.Elem)...)
	}
	return out
}
