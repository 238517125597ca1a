package resolve

import (
	"errors"
	"slices"
	"strings"

	"abi/internal/schema"
)

// Resolver accumulates type definitions and resolves them in
// dependency order.
type Resolver struct {
	defs  map[string]schema.TypeDef
	types Table
	order []string
}

// New returns an empty resolver.
func New() *Resolver {
	return &Resolver{
		defs:  make(map[string]schema.TypeDef),
		types: make(Table),
	}
}

// Add registers a type definition. A later definition with the same
// name replaces an earlier one; duplicate declarations are reported by
// the dependency analyzer, not here.
func (r *Resolver) Add(def schema.TypeDef) {
	r.defs[def.Name] = def
}

// Table returns the resolved type table. Read-only after ResolveAll.
func (r *Resolver) Table() Table { return r.types }

// Order returns type names in the order they resolved.
func (r *Resolver) Order() []string { return r.order }

// Lookup returns a resolved type by name.
func (r *Resolver) Lookup(name string) (*Type, bool) {
	rt, ok := r.types[name]
	return rt, ok
}

// ResolveAll resolves every added definition. It loops to a fixed
// point: each round retries the still-unresolved names in sorted order,
// so types resolve as soon as their dependencies have. A round that
// makes no progress means either undeclared type names (reported with
// the full missing list) or a circular dependency among the leftovers.
func (r *Resolver) ResolveAll() error {
	names := make([]string, 0, len(r.defs))
	for name := range r.defs {
		names = append(names, name)
	}
	slices.Sort(names)

	resolved := 0
	total := len(names)
	missing := make(map[string]struct{})

	for resolved < total {
		before := resolved
		clear(missing)

		for _, name := range names {
			if _, done := r.types[name]; done {
				continue
			}
			rt, err := r.tryResolve(name)
			if err == nil {
				r.types[name] = rt
				r.order = append(r.order, name)
				resolved++
				continue
			}
			var rerr *Error
			if errors.As(err, &rerr) && rerr.Kind == ErrUnknownType {
				// Unresolved-yet names retry next round; genuinely
				// undeclared names accumulate for the failure report.
				if _, declared := r.defs[rerr.Type]; !declared {
					missing[rerr.Type] = struct{}{}
				}
				continue
			}
			return err
		}

		if resolved == before {
			if len(missing) > 0 {
				list := make([]string, 0, len(missing))
				for name := range missing {
					list = append(list, name)
				}
				slices.Sort(list)
				return &Error{
					Kind:   ErrUnknownType,
					Type:   list[0],
					Detail: "missing type definitions: " + strings.Join(list, ", "),
				}
			}
			var unresolved []string
			for _, name := range names {
				if _, done := r.types[name]; !done {
					unresolved = append(unresolved, name)
				}
			}
			return &Error{Kind: ErrCircular, Unresolved: unresolved}
		}
	}
	return nil
}

func (r *Resolver) tryResolve(name string) (*Type, error) {
	def, ok := r.defs[name]
	if !ok {
		return nil, &Error{Kind: ErrUnknownType, Type: name}
	}
	var stack ctxStack
	rt, err := r.resolveKind(def.Kind, name, &stack, nil)
	if err != nil {
		return nil, err
	}
	rt.Comment = def.Comment
	return rt, nil
}

// ctxStack holds the partially built enclosing types while nested
// kinds resolve, innermost last. Field-path references inside size and
// tag expressions resolve against it.
type ctxStack []*Type

func (s *ctxStack) push(t *Type) { *s = append(*s, t) }
func (s *ctxStack) pop()         { *s = (*s)[:len(*s)-1] }

// fieldOrder validates that expressions inside a struct field only
// reference strictly earlier fields of the same struct.
type fieldOrder struct {
	structName string
	positions  map[string]int
	fieldIndex int
	fieldName  string
}

func (o *fieldOrder) validate(path string) error {
	if o == nil {
		return nil
	}
	base := baseSegment(path)
	if base == "" {
		return nil
	}
	if idx, ok := o.positions[base]; ok && idx >= o.fieldIndex {
		return &Error{
			Kind:       ErrForwardRef,
			Type:       o.structName,
			Field:      o.fieldName,
			Referenced: base,
		}
	}
	return nil
}

// baseSegment extracts the first path segment, ignoring parent-scope
// escapes, so "len" and "len.lo" both anchor at "len".
func baseSegment(path string) string {
	if strings.HasPrefix(path, "..") || strings.Contains(path, "../") {
		return ""
	}
	seg, _, _ := strings.Cut(path, ".")
	return seg
}
