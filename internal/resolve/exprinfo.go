package resolve

import (
	"strconv"
	"strings"

	"abi/internal/expr"
	"abi/internal/schema"
)

// exprInfo is the constantness analysis of one size or tag expression:
// either it folds at schema time, or refs lists every field path it
// reads together with the primitive read type at that path.
type exprInfo struct {
	constant bool
	refs     map[string]schema.Primitive
}

func (r *Resolver) analyzeExpr(e *expr.Expr, stack ctxStack, order *fieldOrder) (exprInfo, error) {
	if e.IsConstant() {
		return exprInfo{constant: true}, nil
	}
	refs := make(map[string]schema.Primitive)
	if err := r.collectRefs(e, refs, stack, order); err != nil {
		return exprInfo{}, err
	}
	if len(refs) == 0 {
		refs = nil
	}
	return exprInfo{refs: refs}, nil
}

func (r *Resolver) collectRefs(e *expr.Expr, refs map[string]schema.Primitive, stack ctxStack, order *fieldOrder) error {
	if e == nil {
		return nil
	}
	if e.Op != expr.OpFieldRef {
		if err := r.collectRefs(e.X, refs, stack, order); err != nil {
			return err
		}
		return r.collectRefs(e.Y, refs, stack, order)
	}

	path := e.RefKey()
	if err := order.validate(path); err != nil {
		return err
	}
	if len(stack) == 0 {
		// No enclosing scope to type-check against; assume the widest
		// integral read type.
		refs[path] = schema.U64
		return nil
	}

	ft, ok := r.fieldTypeAt(e.Path, stack)
	if !ok {
		return &Error{Kind: ErrFieldRefNotFound, Type: stack[0].Name, Referenced: path}
	}
	prim, ok := r.primitiveOf(ft)
	if !ok {
		return &Error{Kind: ErrFieldRefNotPrimitive, Type: stack[0].Name, Referenced: path}
	}
	refs[path] = prim
	return nil
}

// primitiveOf unwraps a resolved type down to its primitive, following
// type references through the table.
func (r *Resolver) primitiveOf(t *Type) (schema.Primitive, bool) {
	for {
		switch k := t.Kind.(type) {
		case Primitive:
			return k.Prim, true
		case Ref:
			target, ok := r.types[k.Target]
			if !ok {
				return schema.Primitive{}, false
			}
			t = target
		default:
			return schema.Primitive{}, false
		}
	}
}

// fieldTypeAt resolves a field path against the stack of partially
// built enclosing types, innermost scope first. A ".." segment climbs
// one scope out.
func (r *Resolver) fieldTypeAt(path []string, stack ctxStack) (*Type, bool) {
	for scope := len(stack) - 1; scope >= 0; scope-- {
		if t, ok := r.pathFromScope(path, stack, scope); ok {
			return t, true
		}
	}
	return nil, false
}

func (r *Resolver) pathFromScope(path []string, stack ctxStack, scope int) (*Type, bool) {
	current := stack[scope]
	for idx := 0; idx < len(path); {
		segment := path[idx]
		if segment == ".." {
			if scope == 0 {
				return nil, false
			}
			scope--
			current = stack[scope]
			idx++
			continue
		}

		switch k := current.Kind.(type) {
		case Struct:
			name := strings.TrimPrefix(segment, "../")
			found := false
			for i := range k.Fields {
				if k.Fields[i].Name == name {
					current = k.Fields[i].Type
					found = true
					break
				}
			}
			if !found {
				return nil, false
			}
			idx++
		case Array:
			// Indexed references require a constant-length array.
			i, err := strconv.ParseUint(segment, 10, 64)
			if err != nil || !k.CountConst {
				return nil, false
			}
			count, ok := r.evalConst(k.Count)
			if !ok || i >= count {
				return nil, false
			}
			current = k.Elem
			idx++
		case Ref:
			target, ok := r.types[k.Target]
			if !ok {
				return nil, false
			}
			current = target
		default:
			return nil, false
		}
	}
	return current, true
}

// evalConst folds an expression against the resolved table, so sizeof
// and alignof of already-resolved types participate. Any evaluation
// failure is reported as "not constant".
func (r *Resolver) evalConst(e *expr.Expr) (uint64, bool) {
	v, err := e.Eval(constEnv{types: r.types})
	if err != nil {
		return 0, false
	}
	return v, true
}

// constEnv evaluates expressions with type metadata but no field
// values, which is exactly the schema-time view.
type constEnv struct {
	types Table
}

func (constEnv) Lookup(string) (uint64, bool) { return 0, false }

func (c constEnv) SizeOf(name string) (uint64, bool) { return c.types.SizeOf(name) }

func (c constEnv) AlignOf(name string) (uint64, bool) { return c.types.AlignOf(name) }
