package resolve

import (
	"fmt"
	"math/bits"
	"slices"
	"strings"

	"abi/internal/expr"
	"abi/internal/schema"
)

func (r *Resolver) resolveKind(kind schema.Kind, name string, stack *ctxStack, order *fieldOrder) (*Type, error) {
	switch k := kind.(type) {
	case schema.Primitive:
		return &Type{
			Name:  name,
			Size:  ConstSize(k.Size()),
			Align: k.Align(),
			Kind:  Primitive{Prim: k},
		}, nil
	case schema.Ref:
		return r.resolveRef(k, name)
	case schema.Struct:
		return r.resolveStruct(k, name, stack)
	case schema.Union:
		return r.resolveUnion(k, name, stack, order)
	case schema.Enum:
		return r.resolveEnum(k, name, stack, order)
	case schema.Array:
		return r.resolveArray(k, name, stack, order)
	case schema.SizeUnion:
		return r.resolveSizeUnion(k, name, stack, order)
	default:
		return nil, &Error{Kind: ErrInvalidType, Type: name, Detail: "unhandled kind"}
	}
}

func (r *Resolver) resolveRef(k schema.Ref, name string) (*Type, error) {
	target, ok := r.types[k.Target]
	if !ok {
		// Not resolved yet, or undeclared; the fixed-point loop decides.
		return nil, &Error{Kind: ErrUnknownType, Type: k.Target}
	}
	if _, isSDU := target.Kind.(SizeUnion); isSDU {
		return nil, &Error{
			Kind:   ErrInvalidType,
			Type:   name,
			Detail: fmt.Sprintf("size-discriminated union %q cannot be a reference target, it must stay anonymous", k.Target),
		}
	}
	return &Type{
		Name:          name,
		Size:          target.Size,
		Align:         target.Align,
		Kind:          Ref{Target: k.Target},
		DynamicParams: target.DynamicParams,
	}, nil
}

func (r *Resolver) resolveStruct(k schema.Struct, name string, stack *ctxStack) (*Type, error) {
	temp := &Type{
		Name:  name,
		Size:  ConstSize(0),
		Align: 1,
	}
	tempKind := Struct{Packed: k.Packed, AlignOverride: k.Align}
	temp.Kind = tempKind
	stack.push(temp)
	defer stack.pop()

	fieldNames := make(map[string]struct{}, len(k.Fields))
	positions := make(map[string]int, len(k.Fields))
	for i, f := range k.Fields {
		fieldNames[f.Name] = struct{}{}
		positions[f.Name] = i
	}

	var (
		fields         []Field
		offset         uint64
		variablePrefix bool
		allConst       = true
		maxAlign       = uint64(1)
		ownerRefs      = map[string]map[string]schema.Primitive{}
	)

	for i, f := range k.Fields {
		isTail := i+1 == len(k.Fields)
		if _, isSDU := f.Type.(schema.SizeUnion); isSDU && !isTail {
			// The union consumes whatever bytes remain, so anything
			// declared after it could never be reached.
			return nil, &Error{
				Kind:   ErrInvalidType,
				Type:   name,
				Detail: "size-discriminated union must be the final field",
			}
		}

		tracker := &fieldOrder{
			structName: name,
			positions:  positions,
			fieldIndex: i,
			fieldName:  f.Name,
		}
		ft, err := r.resolveKind(f.Type, name+"::"+f.Name, stack, tracker)
		if err != nil {
			return nil, err
		}

		field := Field{Name: f.Name, Type: ft}
		switch {
		case !ft.Size.IsVariable && !variablePrefix:
			if f.Offset != nil {
				offset = *f.Offset
			} else if !k.Packed {
				offset = alignUp(offset, ft.Align)
			}
			at := offset
			field.Offset = &at
			offset += ft.Size.Bytes
			if !k.Packed {
				maxAlign = max(maxAlign, ft.Align)
			}
		case !ft.Size.IsVariable:
			// Constant size behind a variable prefix: position is
			// runtime-dependent, footprint contribution is not.
			allConst = false
		default:
			allConst = false
			variablePrefix = true
			liftFieldParams(ownerRefs, f.Name, ft, fieldNames, isTail)
		}

		fields = append(fields, field)
		tempKind.Fields = fields
		temp.Kind = tempKind
	}

	if k.Align > 0 {
		maxAlign = k.Align
	}

	size := ConstSize(offset)
	if !allConst {
		size = VariableSize(flattenOwnerRefs(ownerRefs))
	} else if !k.Packed {
		size = ConstSize(alignUp(offset, maxAlign))
	}

	return &Type{
		Name:          name,
		Size:          size,
		Align:         maxAlign,
		Kind:          Struct{Fields: fields, Packed: k.Packed, AlignOverride: k.Align},
		DynamicParams: ownersToParams(ownerRefs),
	}, nil
}

// liftFieldParams copies a variable-size field's parameter set into the
// enclosing struct's registry. Reference fields are skipped: their
// parameters stay reachable through the target's own table entry. A
// tail enum with variable-size variants is consumed through a single
// payload_size parameter instead of its per-variant parameters, and a
// size-discriminated union contributes only payload_size.
func liftFieldParams(ownerRefs map[string]map[string]schema.Primitive, fieldName string, ft *Type, structFields map[string]struct{}, isTail bool) {
	needsPayload := false
	skipOwners := map[string]struct{}{}
	if en, ok := ft.Kind.(Enum); ok {
		hasVariable := false
		for _, v := range en.Variants {
			if v.Type.Size.IsVariable {
				hasVariable = true
				break
			}
		}
		if hasVariable && isTail {
			needsPayload = true
			for _, v := range en.Variants {
				skipOwners[v.Name] = struct{}{}
			}
		}
	}

	if _, isRef := ft.Kind.(Ref); !isRef {
		owners := make([]string, 0, len(ft.DynamicParams))
		for owner := range ft.DynamicParams {
			owners = append(owners, owner)
		}
		slices.Sort(owners)
		for _, owner := range owners {
			if _, skip := skipOwners[owner]; skip {
				continue
			}
			for _, path := range ft.DynamicParams[owner] {
				prim, ok := ft.Size.Params[path]
				if !ok {
					prim = schema.U64
				}
				full := qualifyStructPath(fieldName, path, structFields)
				addOwnerRef(ownerRefs, fieldName, full, prim)
			}
		}
	}

	if _, isSDU := ft.Kind.(SizeUnion); isSDU {
		addOwnerRef(ownerRefs, fieldName, fieldName+".payload_size", schema.U64)
	}
	if needsPayload {
		addOwnerRef(ownerRefs, fieldName, fieldName+".payload_size", schema.U64)
	}
}

func (r *Resolver) resolveUnion(k schema.Union, name string, stack *ctxStack, order *fieldOrder) (*Type, error) {
	var (
		variants  []Field
		maxSize   uint64
		maxAlign  = uint64(1)
		allConst  = true
		ownerRefs = map[string]map[string]schema.Primitive{}
	)
	zero := uint64(0)

	for _, v := range k.Variants {
		vt, err := r.resolveKind(v.Type, name+"::"+v.Name, stack, order)
		if err != nil {
			return nil, err
		}
		if vt.Size.IsVariable {
			allConst = false
			for path, prim := range vt.Size.Params {
				addOwnerRef(ownerRefs, v.Name, prefixPath(v.Name, path), prim)
			}
		} else {
			maxSize = max(maxSize, vt.Size.Bytes)
		}
		maxAlign = max(maxAlign, vt.Align)
		off := zero
		variants = append(variants, Field{Name: v.Name, Type: vt, Offset: &off})
	}

	size := ConstSize(maxSize)
	if !allConst {
		size = VariableSize(flattenOwnerRefs(ownerRefs))
	}
	return &Type{
		Name:          name,
		Size:          size,
		Align:         maxAlign,
		Kind:          Union{Variants: variants},
		DynamicParams: ownersToParams(ownerRefs),
	}, nil
}

func (r *Resolver) resolveEnum(k schema.Enum, name string, stack *ctxStack, order *fieldOrder) (*Type, error) {
	tagInfo, err := r.analyzeExpr(k.Tag, *stack, order)
	if err != nil {
		return nil, err
	}

	var (
		variants  []EnumVariant
		maxSize   uint64
		maxAlign  = uint64(1)
		allConst  = true
		ownerRefs = map[string]map[string]schema.Primitive{}
	)

	for _, v := range k.Variants {
		vt, err := r.resolveKind(v.Type, name+"::"+v.Name, stack, order)
		if err != nil {
			return nil, err
		}
		if vt.Size.IsVariable {
			allConst = false
			for path, prim := range vt.Size.Params {
				addOwnerRef(ownerRefs, v.Name, prefixPath(v.Name, path), prim)
			}
		} else {
			maxSize = max(maxSize, vt.Size.Bytes)
		}
		maxAlign = max(maxAlign, vt.Align)
		variants = append(variants, EnumVariant{
			Name:             v.Name,
			TagValue:         v.TagValue,
			Type:             vt,
			NeedsPayloadSize: vt.Size.IsVariable,
		})
	}

	// Constant footprint needs every variant to share one constant
	// size; otherwise the footprint depends on the tag value.
	sameSize := allConst
	for _, v := range variants {
		if v.Type.Size.Bytes != maxSize {
			sameSize = false
			break
		}
	}

	if !(allConst && sameSize) && !tagInfo.constant {
		for path, prim := range tagInfo.refs {
			addOwnerRef(ownerRefs, name, path, prim)
		}
	}

	size := ConstSize(maxSize)
	if !(allConst && sameSize) {
		size = VariableSize(flattenOwnerRefs(ownerRefs))
	}
	return &Type{
		Name:  name,
		Size:  size,
		Align: maxAlign,
		Kind: Enum{
			Tag:       k.Tag,
			TagConst:  tagInfo.constant,
			TagParams: tagInfo.refs,
			Variants:  variants,
		},
		DynamicParams: ownersToParams(ownerRefs),
	}, nil
}

func (r *Resolver) resolveArray(k schema.Array, name string, stack *ctxStack, order *fieldOrder) (*Type, error) {
	if err := r.checkArrayElem(k, name); err != nil {
		return nil, err
	}

	elem, err := r.resolveKind(k.Elem, name+"::element", stack, order)
	if err != nil {
		return nil, err
	}
	countInfo, err := r.analyzeExpr(k.Count, *stack, order)
	if err != nil {
		return nil, err
	}
	for path, prim := range countInfo.refs {
		if !prim.Integral() {
			return nil, &Error{Kind: ErrFieldRefNotPrimitive, Type: name, Referenced: path}
		}
	}

	fieldKey := arrayFieldKey(name)
	ownerRefs := map[string]map[string]schema.Primitive{}
	var size Size

	switch {
	case !elem.Size.IsVariable && countInfo.constant:
		if count, ok := r.evalConst(k.Count); ok {
			hi, total := bits.Mul64(elem.Size.Bytes, count)
			if hi != 0 {
				return nil, &Error{Kind: ErrInvalidType, Type: name, Detail: "array footprint overflows"}
			}
			size = ConstSize(total)
		} else if missing := r.unresolvedMetaTarget(k.Count); missing != "" {
			// sizeof/alignof of a type that has not resolved yet; the
			// fixed-point loop retries or reports it as undeclared.
			return nil, &Error{Kind: ErrUnknownType, Type: missing}
		} else {
			// Constant in form but not yet computable (sizeof of an
			// unresolved type); footprint becomes a runtime parameter.
			addOwnerRef(ownerRefs, fieldKey, "array_size", schema.U64)
			size = VariableSize(flattenOwnerRefs(ownerRefs))
		}
	case !elem.Size.IsVariable:
		for path, prim := range countInfo.refs {
			addOwnerRef(ownerRefs, fieldKey, path, prim)
		}
		size = VariableSize(flattenOwnerRefs(ownerRefs))
	default:
		if !k.Jagged {
			return nil, &Error{
				Kind:   ErrNonConstantRef,
				Type:   name,
				Detail: "array elements have variable size; declare the array jagged",
			}
		}
		for path, prim := range elem.Size.Params {
			addOwnerRef(ownerRefs, fieldKey, "element."+path, prim)
		}
		for path, prim := range countInfo.refs {
			addOwnerRef(ownerRefs, fieldKey, path, prim)
		}
		size = VariableSize(flattenOwnerRefs(ownerRefs))
	}

	return &Type{
		Name:  name,
		Size:  size,
		Align: elem.Align,
		Kind: Array{
			Elem:        elem,
			Count:       k.Count,
			CountConst:  countInfo.constant,
			CountParams: countInfo.refs,
			Jagged:      k.Jagged,
		},
		DynamicParams: ownersToParams(ownerRefs),
	}, nil
}

// unresolvedMetaTarget finds the first sizeof/alignof operand naming a
// type with no table entry yet.
func (r *Resolver) unresolvedMetaTarget(e *expr.Expr) string {
	if e == nil {
		return ""
	}
	if e.Op == expr.OpSizeof || e.Op == expr.OpAlignof {
		if _, ok := r.types[e.Type]; !ok {
			return e.Type
		}
		return ""
	}
	if missing := r.unresolvedMetaTarget(e.X); missing != "" {
		return missing
	}
	return r.unresolvedMetaTarget(e.Y)
}

// checkArrayElem rejects element shapes before resolution: non-jagged
// arrays cannot hold variable-size referenced types, and jagged arrays
// cannot hold size-discriminated unions at any nesting level.
func (r *Resolver) checkArrayElem(k schema.Array, name string) error {
	ref, isRef := k.Elem.(schema.Ref)
	if !k.Jagged {
		if !isRef {
			return nil
		}
		if target, ok := r.types[ref.Target]; ok && target.Size.IsVariable {
			return &Error{
				Kind:   ErrNonConstantRef,
				Type:   name,
				Detail: fmt.Sprintf("element type %q has non-constant size", ref.Target),
			}
		}
		return nil
	}

	if _, inline := k.Elem.(schema.SizeUnion); inline {
		return &Error{
			Kind:   ErrNonConstantRef,
			Type:   name,
			Detail: "size-discriminated unions are not allowed as jagged array elements",
		}
	}
	if isRef {
		target, ok := r.types[ref.Target]
		if !ok {
			return nil
		}
		switch tk := target.Kind.(type) {
		case SizeUnion:
			return &Error{
				Kind:   ErrNonConstantRef,
				Type:   name,
				Detail: fmt.Sprintf("element type %q is a size-discriminated union, which jagged arrays cannot hold", ref.Target),
			}
		case Struct:
			for _, f := range tk.Fields {
				if _, isSDU := f.Type.Kind.(SizeUnion); isSDU {
					return &Error{
						Kind:   ErrNonConstantRef,
						Type:   name,
						Detail: fmt.Sprintf("element type %q contains size-discriminated union field %q, which jagged arrays cannot hold", ref.Target, f.Name),
					}
				}
			}
		}
	}
	return nil
}

func (r *Resolver) resolveSizeUnion(k schema.SizeUnion, name string, stack *ctxStack, order *fieldOrder) (*Type, error) {
	var (
		variants []SizeVariant
		maxAlign = uint64(1)
	)
	seen := make(map[uint64]struct{}, len(k.Variants))

	for _, v := range k.Variants {
		if ref, isRef := v.Type.(schema.Ref); isRef {
			if target, ok := r.types[ref.Target]; ok && target.Size.IsVariable {
				return nil, &Error{
					Kind:   ErrNonConstantRef,
					Type:   name,
					Detail: fmt.Sprintf("variant %q references type %q which has non-constant size", v.Name, ref.Target),
				}
			}
		}
		vt, err := r.resolveKind(v.Type, name+"::"+v.Name, stack, order)
		if err != nil {
			return nil, err
		}
		if vt.Size.IsVariable {
			return nil, &Error{
				Kind:   ErrInvalidType,
				Type:   name,
				Detail: fmt.Sprintf("variant %q has variable size; every size-discriminated variant must be constant-size", v.Name),
			}
		}
		if vt.Size.Bytes != v.ExpectedSize {
			return nil, &Error{
				Kind: ErrInvalidType,
				Type: name,
				Detail: fmt.Sprintf("variant %q declares expected_size %d but resolves to %d bytes",
					v.Name, v.ExpectedSize, vt.Size.Bytes),
			}
		}
		if _, dup := seen[v.ExpectedSize]; dup {
			return nil, &Error{
				Kind:   ErrInvalidType,
				Type:   name,
				Detail: fmt.Sprintf("multiple variants share expected size %d; sizes must be unique to discriminate", v.ExpectedSize),
			}
		}
		seen[v.ExpectedSize] = struct{}{}
		maxAlign = max(maxAlign, vt.Align)
		variants = append(variants, SizeVariant{Name: v.Name, ExpectedSize: v.ExpectedSize, Type: vt})
	}

	return &Type{
		Name:  name,
		Size:  VariableSize(nil),
		Align: maxAlign,
		Kind:  SizeUnion{Variants: variants},
	}, nil
}

func alignUp(v, align uint64) uint64 {
	if align <= 1 {
		return v
	}
	return (v + align - 1) &^ (align - 1)
}

// qualifyStructPath prefixes a lifted parameter path with its field
// name unless the path already anchors at a sibling field or escapes
// to a parent scope.
func qualifyStructPath(fieldName, path string, structFields map[string]struct{}) string {
	if path == "" {
		return fieldName
	}
	first, _, _ := strings.Cut(path, ".")
	if first == ".." || first == fieldName {
		return path
	}
	if _, sibling := structFields[first]; sibling {
		return path
	}
	return fieldName + "." + path
}

func prefixPath(owner, path string) string {
	if path == "" {
		return owner
	}
	return owner + "." + path
}

func addOwnerRef(out map[string]map[string]schema.Primitive, owner, path string, prim schema.Primitive) {
	inner, ok := out[owner]
	if !ok {
		inner = make(map[string]schema.Primitive)
		out[owner] = inner
	}
	if _, exists := inner[path]; !exists {
		inner[path] = prim
	}
}

func flattenOwnerRefs(ownerRefs map[string]map[string]schema.Primitive) map[string]schema.Primitive {
	flat := make(map[string]schema.Primitive)
	for _, inner := range ownerRefs {
		for path, prim := range inner {
			if _, exists := flat[path]; !exists {
				flat[path] = prim
			}
		}
	}
	return flat
}

func ownersToParams(ownerRefs map[string]map[string]schema.Primitive) map[string][]string {
	if len(ownerRefs) == 0 {
		return nil
	}
	out := make(map[string][]string, len(ownerRefs))
	for owner, inner := range ownerRefs {
		paths := make([]string, 0, len(inner))
		for path := range inner {
			paths = append(paths, path)
		}
		slices.Sort(paths)
		out[owner] = paths
	}
	return out
}

// arrayFieldKey derives the registry key for an array's parameters
// from its qualified name, e.g. "Msg::items" keys under "items".
func arrayFieldKey(name string) string {
	segments := strings.Split(name, "::")
	if len(segments) <= 1 {
		return "array"
	}
	segments = segments[1:]
	if segments[0] == "element" {
		segments = append([]string{"array"}, segments...)
	}
	return strings.Join(segments, ".")
}
