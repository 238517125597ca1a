// Package walk is the sequential layout engine: a single byte cursor
// driven through a buffer by a resolved type, collecting decoded field
// values, requested field offsets and derived discriminators. The same
// engine serves code generation and live reflection over serialized
// data, so both observe identical maps for the same schema and buffer.
package walk

import (
	"strconv"
	"strings"

	"abi/internal/expr"
	"abi/internal/resolve"
	"abi/internal/schema"
)

type walker struct {
	buf    []byte
	table  resolve.Table
	cursor uint64

	params  map[string]uint64
	offsets map[string]uint64
	derived map[string]uint64
	neg     map[string]bool // signed params that decoded negative
	want    map[string]struct{}
	scopes  []string
}

func newWalker(buf []byte, table resolve.Table, wantOffsets []string) *walker {
	want := make(map[string]struct{}, len(wantOffsets))
	for _, p := range wantOffsets {
		want[p] = struct{}{}
	}
	return &walker{
		buf:     buf,
		table:   table,
		params:  map[string]uint64{},
		offsets: map[string]uint64{},
		derived: map[string]uint64{},
		neg:     map[string]bool{},
		want:    want,
	}
}

// process walks one resolved type at path, advancing the cursor, and
// returns the consumed byte count. Every construct recurses through
// this single entry point.
func (w *walker) process(t *resolve.Type, path string) (uint64, error) {
	if _, ok := w.want[path]; ok {
		w.offsets[path] = w.cursor
	}
	switch k := t.Kind.(type) {
	case resolve.Primitive:
		return w.processPrimitive(k.Prim, path)
	case resolve.Struct:
		return w.processStruct(t, k, path)
	case resolve.Union:
		return w.processUnion(k, path)
	case resolve.Enum:
		return w.processEnum(k, path)
	case resolve.Array:
		return w.processArray(k, path)
	case resolve.SizeUnion:
		return w.processSizeUnion(k, path)
	case resolve.Ref:
		target, ok := w.table.Lookup(k.Target)
		if !ok {
			return 0, &Error{Kind: ErrUnknownType, Path: path, Ref: k.Target}
		}
		return w.process(target, path)
	}
	return 0, &Error{Kind: ErrUnknownType, Path: path, Ref: t.Name}
}

func (w *walker) processPrimitive(p schema.Primitive, path string) (uint64, error) {
	size := p.Size()
	v, ok := w.read(size)
	if !ok {
		return 0, &Error{Kind: ErrBufferTooSmall, Path: path, Need: size, Have: w.remaining()}
	}
	if p.Signed && p.Bits < 64 && v&(1<<(p.Bits-1)) != 0 {
		v |= ^uint64(0) << p.Bits
	}
	w.params[path] = v
	if p.Signed && int64(v) < 0 {
		w.neg[path] = true
	}
	return size, nil
}

func (w *walker) processStruct(t *resolve.Type, k resolve.Struct, path string) (uint64, error) {
	base := w.cursor
	w.scopes = append(w.scopes, path)
	defer func() { w.scopes = w.scopes[:len(w.scopes)-1] }()

	for _, f := range k.Fields {
		fieldPath := joinPath(path, f.Name)
		if f.Offset != nil {
			if err := w.seek(base+*f.Offset, fieldPath); err != nil {
				return 0, err
			}
		} else if !k.Packed {
			if err := w.pad(base, f.Type.Align, fieldPath); err != nil {
				return 0, err
			}
		}
		if _, err := w.process(f.Type, fieldPath); err != nil {
			return 0, err
		}
	}
	if !k.Packed {
		if err := w.pad(base, t.Align, path); err != nil {
			return 0, err
		}
	}
	return w.cursor - base, nil
}

func (w *walker) processUnion(k resolve.Union, path string) (uint64, error) {
	key := joinPath(path, "_union_tag")
	idx, ok := w.params[key]
	if !ok {
		return 0, &Error{Kind: ErrMissingParam, Path: path, Ref: key}
	}
	if idx >= uint64(len(k.Variants)) {
		return 0, &Error{Kind: ErrUnknownVariant, Path: path, Need: idx}
	}
	v := k.Variants[idx]
	return w.process(v.Type, joinPath(path, v.Name))
}

func (w *walker) processEnum(k resolve.Enum, path string) (uint64, error) {
	tag, err := w.eval(k.Tag, path)
	if err != nil {
		return 0, err
	}
	w.derived[joinPath(path, "tag")] = tag
	for _, v := range k.Variants {
		if v.TagValue != tag {
			continue
		}
		variantPath := joinPath(path, v.Name)
		consumed, err := w.process(v.Type, variantPath)
		if err != nil {
			return 0, err
		}
		if v.NeedsPayloadSize {
			w.params[joinPath(variantPath, "payload_size")] = consumed
		}
		return consumed, nil
	}
	return 0, &Error{Kind: ErrUnknownVariant, Path: path, Need: tag}
}

func (w *walker) processArray(k resolve.Array, path string) (uint64, error) {
	count, err := w.eval(k.Count, path)
	if err != nil {
		return 0, err
	}
	// Elements are walked strictly in index order: in a jagged array
	// each element's size may depend on values decoded inside the
	// elements before it.
	var consumed uint64
	for i := uint64(0); i < count; i++ {
		n, err := w.process(k.Elem, joinPath(path, strconv.FormatUint(i, 10)))
		if err != nil {
			return 0, err
		}
		consumed += n
	}
	return consumed, nil
}

func (w *walker) processSizeUnion(k resolve.SizeUnion, path string) (uint64, error) {
	remaining := w.remaining()
	for _, v := range k.Variants {
		if v.ExpectedSize != remaining {
			continue
		}
		if _, err := w.process(v.Type, joinPath(path, v.Name)); err != nil {
			return 0, err
		}
		w.params[joinPath(path, "payload_size")] = remaining
		return remaining, nil
	}
	return 0, &Error{Kind: ErrUnknownVariant, Path: path, Need: remaining}
}

// eval evaluates a count or tag expression in the current scope. A
// signed parameter that decoded negative cannot feed an unsigned
// count or tag.
func (w *walker) eval(e *expr.Expr, path string) (uint64, error) {
	env := &scopeEnv{w: w}
	v, err := e.Eval(env)
	if env.err != nil {
		return 0, env.err
	}
	if err != nil {
		return 0, fromEval(path, err)
	}
	return v, nil
}

func (w *walker) read(size uint64) (uint64, bool) {
	if w.remaining() < size {
		return 0, false
	}
	var v uint64
	for i := uint64(0); i < size; i++ {
		v |= uint64(w.buf[w.cursor+i]) << (8 * i)
	}
	w.cursor += size
	return v, true
}

func (w *walker) remaining() uint64 {
	return uint64(len(w.buf)) - w.cursor
}

// pad advances the cursor to the next aligned position relative to
// base. The cursor may never pass the buffer end, even on padding.
func (w *walker) pad(base, align uint64, path string) error {
	if align <= 1 {
		return nil
	}
	rel := w.cursor - base
	aligned := (rel + align - 1) &^ (align - 1)
	return w.seek(base+aligned, path)
}

func (w *walker) seek(target uint64, path string) error {
	if target > uint64(len(w.buf)) {
		return &Error{Kind: ErrBufferTooSmall, Path: path, Need: target, Have: uint64(len(w.buf))}
	}
	w.cursor = target
	return nil
}

// scopeEnv resolves expression references against decoded values. A
// short name is tried against each enclosing scope from innermost to
// outermost, then bare; "../" segments climb scopes explicitly.
type scopeEnv struct {
	w   *walker
	err error
}

func (s *scopeEnv) Lookup(ref string) (uint64, bool) {
	scopes := s.w.scopes
	for strings.HasPrefix(ref, "../") {
		if len(scopes) == 0 {
			return 0, false
		}
		scopes = scopes[:len(scopes)-1]
		ref = strings.TrimPrefix(ref, "../")
	}
	for i := len(scopes) - 1; i >= 0; i-- {
		if v, ok := s.lookupKey(joinPath(scopes[i], ref)); ok {
			return v, true
		}
	}
	return s.lookupKey(ref)
}

func (s *scopeEnv) lookupKey(key string) (uint64, bool) {
	v, ok := s.w.params[key]
	if !ok {
		return 0, false
	}
	if s.w.neg[key] && s.err == nil {
		s.err = &Error{Kind: ErrOverflow, Path: key, Ref: key}
	}
	return v, true
}

func (s *scopeEnv) SizeOf(name string) (uint64, bool)  { return s.w.table.SizeOf(name) }
func (s *scopeEnv) AlignOf(name string) (uint64, bool) { return s.w.table.AlignOf(name) }

func joinPath(prefix, name string) string {
	if prefix == "" {
		return name
	}
	return prefix + "." + name
}
