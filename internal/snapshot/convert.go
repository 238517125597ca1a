package snapshot

import (
	"sort"

	"abi/internal/expr"
	"abi/internal/resolve"
	"abi/internal/schema"
)

func encodeType(t *resolve.Type) *wireType {
	if t == nil {
		return nil
	}
	owners := make([]string, 0, len(t.DynamicParams))
	for owner := range t.DynamicParams {
		owners = append(owners, owner)
	}
	sort.Strings(owners)
	paths := make([][]string, len(owners))
	for i, owner := range owners {
		paths[i] = t.DynamicParams[owner]
	}
	return &wireType{
		Name:       t.Name,
		Variable:   t.Size.IsVariable,
		Bytes:      t.Size.Bytes,
		SizeParams: encodeParams(t.Size.Params),
		Align:      t.Align,
		DynOwners:  owners,
		DynPaths:   paths,
		Comment:    t.Comment,
		Kind:       encodeKind(t.Kind),
	}
}

func decodeType(w *wireType) *resolve.Type {
	if w == nil {
		return nil
	}
	size := resolve.ConstSize(w.Bytes)
	if w.Variable {
		size = resolve.VariableSize(decodeParams(w.SizeParams))
	}
	var dyn map[string][]string
	if len(w.DynOwners) > 0 {
		dyn = make(map[string][]string, len(w.DynOwners))
		for i, owner := range w.DynOwners {
			dyn[owner] = w.DynPaths[i]
		}
	}
	return &resolve.Type{
		Name:          w.Name,
		Size:          size,
		Align:         w.Align,
		Kind:          decodeKind(w.Kind),
		DynamicParams: dyn,
		Comment:       w.Comment,
	}
}

func encodeKind(k resolve.Kind) wireKind {
	switch rk := k.(type) {
	case resolve.Primitive:
		return wireKind{Which: kindPrimitive, Prim: encodePrim(rk.Prim)}
	case resolve.Struct:
		fields := make([]wireField, len(rk.Fields))
		for i, f := range rk.Fields {
			fields[i] = wireField{Name: f.Name, Type: encodeType(f.Type)}
			if f.Offset != nil {
				fields[i].HasOffset = true
				fields[i].Offset = *f.Offset
			}
		}
		return wireKind{Which: kindStruct, Fields: fields, Packed: rk.Packed, AlignOverride: rk.AlignOverride}
	case resolve.Union:
		fields := make([]wireField, len(rk.Variants))
		for i, v := range rk.Variants {
			fields[i] = wireField{Name: v.Name, Type: encodeType(v.Type)}
		}
		return wireKind{Which: kindUnion, Fields: fields}
	case resolve.Enum:
		fields := make([]wireField, len(rk.Variants))
		for i, v := range rk.Variants {
			fields[i] = wireField{
				Name:         v.Name,
				Type:         encodeType(v.Type),
				Tag:          v.TagValue,
				NeedsPayload: v.NeedsPayloadSize,
			}
		}
		return wireKind{
			Which:     kindEnum,
			Fields:    fields,
			Tag:       encodeExpr(rk.Tag),
			TagConst:  rk.TagConst,
			TagParams: encodeParams(rk.TagParams),
		}
	case resolve.Array:
		return wireKind{
			Which:       kindArray,
			Elem:        encodeType(rk.Elem),
			Count:       encodeExpr(rk.Count),
			CountConst:  rk.CountConst,
			CountParams: encodeParams(rk.CountParams),
			Jagged:      rk.Jagged,
		}
	case resolve.SizeUnion:
		fields := make([]wireField, len(rk.Variants))
		for i, v := range rk.Variants {
			fields[i] = wireField{Name: v.Name, Type: encodeType(v.Type), Tag: v.ExpectedSize}
		}
		return wireKind{Which: kindSizeUnion, Fields: fields}
	case resolve.Ref:
		return wireKind{Which: kindRef, Target: rk.Target}
	}
	return wireKind{}
}

func decodeKind(w wireKind) resolve.Kind {
	switch w.Which {
	case kindPrimitive:
		return resolve.Primitive{Prim: decodePrim(w.Prim)}
	case kindStruct:
		fields := make([]resolve.Field, len(w.Fields))
		for i, f := range w.Fields {
			fields[i] = resolve.Field{Name: f.Name, Type: decodeType(f.Type)}
			if f.HasOffset {
				off := f.Offset
				fields[i].Offset = &off
			}
		}
		return resolve.Struct{Fields: fields, Packed: w.Packed, AlignOverride: w.AlignOverride}
	case kindUnion:
		variants := make([]resolve.Field, len(w.Fields))
		for i, f := range w.Fields {
			variants[i] = resolve.Field{Name: f.Name, Type: decodeType(f.Type)}
		}
		return resolve.Union{Variants: variants}
	case kindEnum:
		variants := make([]resolve.EnumVariant, len(w.Fields))
		for i, f := range w.Fields {
			variants[i] = resolve.EnumVariant{
				Name:             f.Name,
				TagValue:         f.Tag,
				Type:             decodeType(f.Type),
				NeedsPayloadSize: f.NeedsPayload,
			}
		}
		return resolve.Enum{
			Tag:       decodeExpr(w.Tag),
			TagConst:  w.TagConst,
			TagParams: decodeParams(w.TagParams),
			Variants:  variants,
		}
	case kindArray:
		return resolve.Array{
			Elem:        decodeType(w.Elem),
			Count:       decodeExpr(w.Count),
			CountConst:  w.CountConst,
			CountParams: decodeParams(w.CountParams),
			Jagged:      w.Jagged,
		}
	case kindSizeUnion:
		variants := make([]resolve.SizeVariant, len(w.Fields))
		for i, f := range w.Fields {
			variants[i] = resolve.SizeVariant{Name: f.Name, ExpectedSize: f.Tag, Type: decodeType(f.Type)}
		}
		return resolve.SizeUnion{Variants: variants}
	case kindRef:
		return resolve.Ref{Target: w.Target}
	}
	return nil
}

func encodeExpr(e *expr.Expr) *wireExpr {
	if e == nil {
		return nil
	}
	return &wireExpr{
		Op:   uint8(e.Op),
		Val:  e.Val,
		Path: e.Path,
		Type: e.Type,
		X:    encodeExpr(e.X),
		Y:    encodeExpr(e.Y),
	}
}

func decodeExpr(w *wireExpr) *expr.Expr {
	if w == nil {
		return nil
	}
	return &expr.Expr{
		Op:   expr.Op(w.Op),
		Val:  w.Val,
		Path: w.Path,
		Type: w.Type,
		X:    decodeExpr(w.X),
		Y:    decodeExpr(w.Y),
	}
}

func encodePrim(p schema.Primitive) wirePrim {
	return wirePrim{Bits: p.Bits, Signed: p.Signed, Float: p.Float}
}

func decodePrim(w wirePrim) schema.Primitive {
	return schema.Primitive{Bits: w.Bits, Signed: w.Signed, Float: w.Float}
}

func encodeParams(params map[string]schema.Primitive) wireParams {
	if len(params) == 0 {
		return wireParams{}
	}
	paths := make([]string, 0, len(params))
	for path := range params {
		paths = append(paths, path)
	}
	sort.Strings(paths)
	prims := make([]wirePrim, len(paths))
	for i, path := range paths {
		prims[i] = encodePrim(params[path])
	}
	return wireParams{Paths: paths, Prims: prims}
}

func decodeParams(w wireParams) map[string]schema.Primitive {
	if len(w.Paths) == 0 {
		return nil
	}
	params := make(map[string]schema.Primitive, len(w.Paths))
	for i, path := range w.Paths {
		params[path] = decodePrim(w.Prims[i])
	}
	return params
}
