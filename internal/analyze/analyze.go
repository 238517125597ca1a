package analyze

import (
	"fmt"
	"strings"

	"abi/internal/expr"
	"abi/internal/schema"
)

// ViolationClass labels why a layout cannot be walked sequentially.
type ViolationClass uint8

const (
	// ForwardDependency: an expression reads a field declared later in
	// the same struct, so its value is not available yet.
	ForwardDependency ViolationClass = iota + 1
	// LayoutCycle: two types need each other's layout directly.
	LayoutCycle
	// TransitiveCycle: the dependency closes back through one or more
	// intermediate types.
	TransitiveCycle
)

func (c ViolationClass) String() string {
	switch c {
	case ForwardDependency:
		return "forward dependency"
	case LayoutCycle:
		return "layout cycle"
	case TransitiveCycle:
		return "transitive cycle"
	}
	return "unknown"
}

// Violation is one layout-constraint rejection. Chain holds the
// dependency path that closes the loop, for diagnostics.
type Violation struct {
	Class  ViolationClass
	Type   string // violating type
	Expr   string // offending expression, rendered
	Chain  []string
	Reason string
}

// Analysis is the best-effort report over one set of declarations.
// All duplicate errors, layout violations and cycles are collected in
// a single pass rather than stopping at the first.
type Analysis struct {
	Graph      *Graph
	Cycles     []CyclePath
	Topo       *Topo
	Violations []Violation
	Errors     []ValidationError
}

// Order returns the topological resolution order, or nil when a
// type-level cycle makes one impossible.
func (a *Analysis) Order() []string {
	if a.Topo.Cyclic {
		return nil
	}
	return a.Topo.Order
}

// OK reports whether the declarations passed every check.
func (a *Analysis) OK() bool {
	return len(a.Errors) == 0 && len(a.Violations) == 0 && !a.Topo.Cyclic
}

// exprUse records one expression site together with enough struct
// context to check declaration order of sibling references.
type exprUse struct {
	owner     string
	field     string // dotted path of the field holding the expression
	e         *expr.Expr
	kind      EdgeKind
	idx       int            // index of the holding field, -1 outside a struct
	siblings  map[string]int // field name -> declaration index
	tagExempt bool           // enum tag over uniform constant-size variants
}

type analyzer struct {
	graph     *Graph
	byName    map[string]*schema.TypeDef
	current   string
	fieldPath []string
	idx       int
	siblings  map[string]int
	uses      []exprUse
}

// Analyze builds the dependency graph for the declarations, validates
// names and layout constraints, and computes the resolution order.
func Analyze(defs []schema.TypeDef) *Analysis {
	a := &analyzer{
		graph:  NewGraph(),
		byName: make(map[string]*schema.TypeDef, len(defs)),
		idx:    -1,
	}
	declared := make(map[string]struct{}, len(defs))
	for i := range defs {
		a.graph.AddNode(defs[i].Name)
		declared[defs[i].Name] = struct{}{}
		if _, dup := a.byName[defs[i].Name]; !dup {
			a.byName[defs[i].Name] = &defs[i]
		}
	}
	for i := range defs {
		a.current = defs[i].Name
		a.collectKind(defs[i].Kind)
	}

	errs := a.validateNames(defs)
	violations := a.validateLayout()

	return &Analysis{
		Graph:      a.graph,
		Cycles:     a.graph.Cycles(),
		Topo:       toposort(a.graph, declared),
		Violations: violations,
		Errors:     errs,
	}
}

func (a *analyzer) collectKind(kind schema.Kind) {
	switch k := kind.(type) {
	case schema.Struct:
		outerIdx, outerSiblings := a.idx, a.siblings
		a.siblings = make(map[string]int, len(k.Fields))
		for i, f := range k.Fields {
			a.siblings[f.Name] = i
		}
		for i, f := range k.Fields {
			a.idx = i
			a.fieldPath = append(a.fieldPath, f.Name)
			a.collectKind(f.Type)
			a.fieldPath = a.fieldPath[:len(a.fieldPath)-1]
		}
		a.idx, a.siblings = outerIdx, outerSiblings
	case schema.Union:
		for _, v := range k.Variants {
			a.collectVariant(v.Name, v.Type)
		}
	case schema.Enum:
		a.collectExpr(k.Tag, EdgeTagExpr, tagExemption(k, a.byName))
		for _, v := range k.Variants {
			a.collectVariant(v.Name, v.Type)
		}
	case schema.SizeUnion:
		for _, v := range k.Variants {
			a.collectVariant(v.Name, v.Type)
		}
	case schema.Array:
		a.collectExpr(k.Count, EdgeSizeExpr, false)
		a.collectKind(k.Elem)
	case schema.Ref:
		context := "direct type reference"
		if len(a.fieldPath) > 0 {
			context = "field: " + strings.Join(a.fieldPath, ".")
		}
		a.graph.AddEdge(Edge{
			From:    a.current,
			To:      k.Target,
			Kind:    EdgeTypeRef,
			Context: context,
		})
	case schema.Primitive:
	}
}

func (a *analyzer) collectVariant(name string, kind schema.Kind) {
	outerIdx, outerSiblings := a.idx, a.siblings
	a.idx, a.siblings = -1, nil
	a.fieldPath = append(a.fieldPath, name)
	a.collectKind(kind)
	a.fieldPath = a.fieldPath[:len(a.fieldPath)-1]
	a.idx, a.siblings = outerIdx, outerSiblings
}

// collectExpr records the expression site and emits one edge per
// reference. Field references point at "Type.field" pseudo-nodes;
// sizeof/alignof count as type references.
func (a *analyzer) collectExpr(e *expr.Expr, kind EdgeKind, tagExempt bool) {
	if e == nil {
		return
	}
	a.uses = append(a.uses, exprUse{
		owner:     a.current,
		field:     strings.Join(a.fieldPath, "."),
		e:         e,
		kind:      kind,
		idx:       a.idx,
		siblings:  a.siblings,
		tagExempt: tagExempt,
	})
	a.emitExprEdges(e, kind)
}

func (a *analyzer) emitExprEdges(e *expr.Expr, kind EdgeKind) {
	switch e.Op {
	case expr.OpLit:
	case expr.OpFieldRef:
		ref := e.RefKey()
		refType, refField := a.splitRef(ref)
		a.graph.AddEdge(Edge{
			From:    a.current,
			To:      refType + "." + refField,
			Kind:    kind,
			Context: fmt.Sprintf("field reference %q in field: %s", ref, strings.Join(a.fieldPath, ".")),
		})
	case expr.OpSizeof, expr.OpAlignof:
		a.graph.AddEdge(Edge{
			From:    a.current,
			To:      e.Type,
			Kind:    EdgeTypeRef,
			Context: fmt.Sprintf("%s in field: %s", e, strings.Join(a.fieldPath, ".")),
		})
	default:
		if e.X != nil {
			a.emitExprEdges(e.X, kind)
		}
		if e.Y != nil {
			a.emitExprEdges(e.Y, kind)
		}
	}
}

// splitRef resolves a field reference to (owning type, field path). A
// path whose first segment names a declared type anchors there; any
// other path, including "../" climbs, refers to the type under
// analysis.
func (a *analyzer) splitRef(ref string) (string, string) {
	first, rest, cut := strings.Cut(ref, ".")
	if cut && first != ".." {
		if _, declared := a.byName[first]; declared {
			return first, rest
		}
	}
	return a.current, ref
}

// validateLayout classifies every expression reference that breaks the
// sequential-layout contract.
func (a *analyzer) validateLayout() []Violation {
	var out []Violation
	for _, use := range a.uses {
		for _, ref := range use.e.FieldRefs() {
			if v, ok := a.checkRef(use, ref); ok {
				out = append(out, v)
			}
		}
	}
	return out
}

func (a *analyzer) checkRef(use exprUse, ref string) (Violation, bool) {
	refType, refField := a.splitRef(ref)

	// Sibling reference: the field must already be laid out. Paths
	// that climb out of the struct are checked at their real depth by
	// the enclosing type's own walk, not here.
	if refType == use.owner {
		base, _, _ := strings.Cut(refField, ".")
		if base == ".." || use.siblings == nil {
			return Violation{}, false
		}
		refIdx, known := use.siblings[base]
		if !known || refIdx < use.idx {
			return Violation{}, false
		}
		if use.tagExempt {
			// A tag over uniform constant-size variants does not gate
			// the layout, so it may read fields declared later.
			return Violation{}, false
		}
		return Violation{
			Class:  ForwardDependency,
			Type:   use.owner,
			Expr:   use.e.String(),
			Chain:  []string{use.owner, use.owner + "." + base},
			Reason: fmt.Sprintf("%s of field %q references field %q which is not declared before it", use.kind, use.field, base),
		}, true
	}

	// Cross-type reference: reject when the referenced type's layout
	// depends back on the referencing one.
	chain := a.graph.chainBetween(refType, use.owner)
	if chain == nil {
		return Violation{}, false
	}
	class := TransitiveCycle
	if len(chain) == 2 {
		class = LayoutCycle
	}
	return Violation{
		Class:  class,
		Type:   use.owner,
		Expr:   use.e.String(),
		Chain:  append([]string{use.owner + "." + use.field}, chain...),
		Reason: fmt.Sprintf("%s of field %q references %q whose layout depends on %q", use.kind, use.field, refType+"."+refField, use.owner),
	}, true
}

// tagExemption reports whether every enum variant has the same
// structurally constant size, in which case the tag value is not
// needed to lay the enum out.
func tagExemption(e schema.Enum, byName map[string]*schema.TypeDef) bool {
	if len(e.Variants) == 0 {
		return false
	}
	first, ok := constKindSize(e.Variants[0].Type, byName, 0)
	if !ok {
		return false
	}
	for _, v := range e.Variants[1:] {
		size, ok := constKindSize(v.Type, byName, 0)
		if !ok || size != first {
			return false
		}
	}
	return true
}

// constKindSize computes a size for kinds that are constant by
// construction: primitives, fixed arrays of them, and references that
// bottom out in one. Anything else reports false.
func constKindSize(kind schema.Kind, byName map[string]*schema.TypeDef, depth int) (uint64, bool) {
	if depth > 32 {
		return 0, false
	}
	switch k := kind.(type) {
	case schema.Primitive:
		return k.Size(), true
	case schema.Array:
		if k.Count == nil {
			return 0, false
		}
		count, ok := k.Count.Fold()
		if !ok {
			return 0, false
		}
		elem, ok := constKindSize(k.Elem, byName, depth+1)
		if !ok {
			return 0, false
		}
		return elem * count, true
	case schema.Ref:
		def, ok := byName[k.Target]
		if !ok {
			return 0, false
		}
		return constKindSize(def.Kind, byName, depth+1)
	}
	return 0, false
}
