package walk_test

import (
	"context"
	"errors"
	"maps"
	"testing"

	"abi/internal/expr"
	"abi/internal/resolve"
	"abi/internal/schema"
	"abi/internal/walk"
)

func mustResolve(t *testing.T, defs ...schema.TypeDef) resolve.Table {
	t.Helper()
	r := resolve.New()
	for _, def := range defs {
		r.Add(def)
	}
	if err := r.ResolveAll(); err != nil {
		t.Fatalf("ResolveAll: %v", err)
	}
	return r.Table()
}

func root(t *testing.T, table resolve.Table, name string) *resolve.Type {
	t.Helper()
	rt, ok := table.Lookup(name)
	if !ok {
		t.Fatalf("type %s missing from table", name)
	}
	return rt
}

func wantParam(t *testing.T, res *walk.Result, path string, want uint64) {
	t.Helper()
	got, ok := res.Params[path]
	if !ok {
		t.Fatalf("params = %v, missing %q", res.Params, path)
	}
	if got != want {
		t.Errorf("params[%q] = %d, want %d", path, got, want)
	}
}

func lenPrefixedPacket() schema.TypeDef {
	return schema.TypeDef{Name: "Packet", Kind: schema.Struct{
		Fields: []schema.Field{
			{Name: "len", Type: schema.U8},
			{Name: "payload", Type: schema.Array{Elem: schema.U8, Count: expr.Ref("len")}},
		},
	}}
}

func TestExtractLenPrefixedArray(t *testing.T) {
	table := mustResolve(t, lenPrefixedPacket())
	res, err := walk.Extract(root(t, table, "Packet"), []byte{2, 0xaa, 0xbb}, table, nil)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	wantParam(t, res, "len", 2)
	wantParam(t, res, "payload.0", 0xaa)
	wantParam(t, res, "payload.1", 0xbb)
}

func TestExtractPopcountCount(t *testing.T) {
	def := schema.TypeDef{Name: "Bitmapped", Kind: schema.Struct{
		Fields: []schema.Field{
			{Name: "bitmap", Type: schema.U8},
			{Name: "values", Type: schema.Array{Elem: schema.U8, Count: expr.Popcount(expr.Ref("bitmap"))}},
		},
	}}
	table := mustResolve(t, def)
	res, err := walk.Extract(root(t, table, "Bitmapped"), []byte{0b1011, 1, 2, 3}, table, nil)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	wantParam(t, res, "values.0", 1)
	wantParam(t, res, "values.1", 2)
	wantParam(t, res, "values.2", 3)
	if _, ok := res.Params["values.3"]; ok {
		t.Error("popcount(0b1011) is 3, should not read a fourth value")
	}
}

func TestExtractEnumPayloadSize(t *testing.T) {
	def := schema.TypeDef{Name: "Msg", Kind: schema.Struct{
		Fields: []schema.Field{
			{Name: "len", Type: schema.U8},
			{Name: "payload", Type: schema.Enum{
				Tag: expr.Ref("len"),
				Variants: []schema.EnumVariant{
					{Name: "blob", TagValue: 2, Type: schema.Array{Elem: schema.U8, Count: expr.Ref("len")}},
				},
			}},
		},
	}}
	table := mustResolve(t, def)
	res, err := walk.Extract(root(t, table, "Msg"), []byte{2, 0xaa, 0xbb}, table, nil)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if got := res.Derived["payload.tag"]; got != 2 {
		t.Errorf("derived[payload.tag] = %d, want 2", got)
	}
	wantParam(t, res, "payload.blob.payload_size", 2)
	wantParam(t, res, "payload.blob.0", 0xaa)
	wantParam(t, res, "payload.blob.1", 0xbb)
}

func TestExtractEnumUnknownTag(t *testing.T) {
	def := schema.TypeDef{Name: "Msg", Kind: schema.Struct{
		Fields: []schema.Field{
			{Name: "kind", Type: schema.U8},
			{Name: "body", Type: schema.Enum{
				Tag: expr.Ref("kind"),
				Variants: []schema.EnumVariant{
					{Name: "a", TagValue: 1, Type: schema.U8},
				},
			}},
		},
	}}
	table := mustResolve(t, def)
	_, err := walk.Extract(root(t, table, "Msg"), []byte{9, 0}, table, nil)
	var werr *walk.Error
	if !errors.As(err, &werr) || werr.Kind != walk.ErrUnknownVariant {
		t.Fatalf("error = %v, want ErrUnknownVariant", err)
	}
}

func sizeUnionFrame() schema.TypeDef {
	return schema.TypeDef{Name: "Frame", Kind: schema.Struct{
		Packed: true,
		Fields: []schema.Field{
			{Name: "kind", Type: schema.U8},
			{Name: "body", Type: schema.SizeUnion{Variants: []schema.SizeVariant{
				{Name: "quad", ExpectedSize: 4, Type: schema.U32},
				{Name: "octet", ExpectedSize: 8, Type: schema.U64},
			}}},
		},
	}}
}

func TestExtractSizeUnionRemainder(t *testing.T) {
	table := mustResolve(t, sizeUnionFrame())
	// 1 byte kind + exactly 4 remaining selects the quad variant.
	res, err := walk.Extract(root(t, table, "Frame"), []byte{7, 0x01, 0x02, 0x03, 0x04}, table, nil)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	wantParam(t, res, "body.payload_size", 4)
	wantParam(t, res, "body.quad", 0x04030201)
}

func TestExtractSizeUnionNoMatch(t *testing.T) {
	table := mustResolve(t, sizeUnionFrame())
	// 5 bytes remain; no variant declares expected size 5.
	_, err := walk.Extract(root(t, table, "Frame"), []byte{7, 1, 2, 3, 4, 5}, table, nil)
	var werr *walk.Error
	if !errors.As(err, &werr) || werr.Kind != walk.ErrUnknownVariant {
		t.Fatalf("error = %v, want ErrUnknownVariant", err)
	}
	if werr.Need != 5 {
		t.Errorf("unmatched remainder = %d, want 5", werr.Need)
	}
}

func TestExtractBufferTooSmall(t *testing.T) {
	table := mustResolve(t, lenPrefixedPacket())
	_, err := walk.Extract(root(t, table, "Packet"), []byte{5, 1, 2}, table, nil)
	var werr *walk.Error
	if !errors.As(err, &werr) || werr.Kind != walk.ErrBufferTooSmall {
		t.Fatalf("error = %v, want ErrBufferTooSmall", err)
	}
}

func TestExtractStructAlignment(t *testing.T) {
	def := schema.TypeDef{Name: "Aligned", Kind: schema.Struct{
		Fields: []schema.Field{
			{Name: "a", Type: schema.U8},
			{Name: "b", Type: schema.U32},
		},
	}}
	table := mustResolve(t, def)
	buf := []byte{0x11, 0, 0, 0, 0x01, 0x02, 0x03, 0x04}
	res, err := walk.Extract(root(t, table, "Aligned"), buf, table, []string{"a", "b"})
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	wantParam(t, res, "a", 0x11)
	wantParam(t, res, "b", 0x04030201)
	if res.Offsets["a"] != 0 || res.Offsets["b"] != 4 {
		t.Errorf("offsets = %v, want a=0 b=4", res.Offsets)
	}
}

// Recorded offsets never decrease in declaration order and never pass
// the buffer end.
func TestExtractOffsetMonotonicity(t *testing.T) {
	table := mustResolve(t, lenPrefixedPacket())
	buf := []byte{2, 0xaa, 0xbb}
	res, err := walk.Extract(root(t, table, "Packet"), buf, table, []string{"len", "payload"})
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if res.Offsets["len"] > res.Offsets["payload"] {
		t.Errorf("offsets out of order: %v", res.Offsets)
	}
	for path, off := range res.Offsets {
		if off > uint64(len(buf)) {
			t.Errorf("offset %q = %d beyond buffer", path, off)
		}
	}
}

func TestExtractDeterminism(t *testing.T) {
	table := mustResolve(t, lenPrefixedPacket())
	buf := []byte{2, 0xaa, 0xbb}
	first, err := walk.Extract(root(t, table, "Packet"), buf, table, []string{"payload"})
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	for range 5 {
		again, err := walk.Extract(root(t, table, "Packet"), buf, table, []string{"payload"})
		if err != nil {
			t.Fatalf("Extract: %v", err)
		}
		if !maps.Equal(first.Params, again.Params) ||
			!maps.Equal(first.Offsets, again.Offsets) ||
			!maps.Equal(first.Derived, again.Derived) {
			t.Fatal("repeated extraction differs")
		}
	}
}

func TestExtractUnionSeededDiscriminant(t *testing.T) {
	def := schema.TypeDef{Name: "Holder", Kind: schema.Struct{
		Fields: []schema.Field{
			{Name: "u", Type: schema.Union{Variants: []schema.Field{
				{Name: "narrow", Type: schema.U8},
				{Name: "wide", Type: schema.U32},
			}}},
		},
	}}
	table := mustResolve(t, def)
	buf := []byte{0x01, 0x02, 0x03, 0x04}

	res, err := walk.ExtractSeeded(root(t, table, "Holder"), buf, table, nil,
		map[string]uint64{"u._union_tag": 1})
	if err != nil {
		t.Fatalf("ExtractSeeded: %v", err)
	}
	wantParam(t, res, "u.wide", 0x04030201)

	_, err = walk.Extract(root(t, table, "Holder"), buf, table, nil)
	var werr *walk.Error
	if !errors.As(err, &werr) || werr.Kind != walk.ErrMissingParam {
		t.Fatalf("error = %v, want ErrMissingParam without a discriminant", err)
	}
}

func TestExtractNegativeSignedCount(t *testing.T) {
	def := schema.TypeDef{Name: "Signed", Kind: schema.Struct{
		Fields: []schema.Field{
			{Name: "len", Type: schema.I8},
			{Name: "data", Type: schema.Array{Elem: schema.U8, Count: expr.Ref("len")}},
		},
	}}
	table := mustResolve(t, def)
	_, err := walk.Extract(root(t, table, "Signed"), []byte{0xff}, table, nil)
	var werr *walk.Error
	if !errors.As(err, &werr) || werr.Kind != walk.ErrOverflow {
		t.Fatalf("error = %v, want ErrOverflow for negative count", err)
	}
}

func TestExtractJaggedArray(t *testing.T) {
	varType := schema.TypeDef{Name: "Chunk", Kind: schema.Struct{
		Fields: []schema.Field{
			{Name: "n", Type: schema.U8},
			{Name: "data", Type: schema.Array{Elem: schema.U8, Count: expr.Ref("n")}},
		},
	}}
	holder := schema.TypeDef{Name: "Chunks", Kind: schema.Struct{
		Fields: []schema.Field{
			{Name: "count", Type: schema.U8},
			{Name: "items", Type: schema.Array{
				Elem:   schema.Ref{Target: "Chunk"},
				Count:  expr.Ref("count"),
				Jagged: true,
			}},
		},
	}}
	table := mustResolve(t, varType, holder)
	// Two chunks: [1 byte: 0xaa], [2 bytes: 0xbb 0xcc].
	buf := []byte{2, 1, 0xaa, 2, 0xbb, 0xcc}
	res, err := walk.Extract(root(t, table, "Chunks"), buf, table, nil)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	wantParam(t, res, "items.0.n", 1)
	wantParam(t, res, "items.0.data.0", 0xaa)
	wantParam(t, res, "items.1.n", 2)
	wantParam(t, res, "items.1.data.1", 0xcc)
}

func TestExtractAllParallel(t *testing.T) {
	table := mustResolve(t, lenPrefixedPacket())
	bufs := [][]byte{
		{1, 0x10},
		{2, 0x20, 0x21},
		{0},
	}
	results, err := walk.ExtractAll(context.Background(), root(t, table, "Packet"), bufs, table, nil, 2)
	if err != nil {
		t.Fatalf("ExtractAll: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("results = %d, want 3", len(results))
	}
	wantParam(t, results[0], "payload.0", 0x10)
	wantParam(t, results[1], "payload.1", 0x21)
	if got := results[2].Params["len"]; got != 0 {
		t.Errorf("len = %d, want 0", got)
	}
}

func TestExtractAllBadBufferFails(t *testing.T) {
	table := mustResolve(t, lenPrefixedPacket())
	bufs := [][]byte{
		{1, 0x10},
		{9},
	}
	_, err := walk.ExtractAll(context.Background(), root(t, table, "Packet"), bufs, table, nil, 0)
	var werr *walk.Error
	if !errors.As(err, &werr) || werr.Kind != walk.ErrBufferTooSmall {
		t.Fatalf("error = %v, want ErrBufferTooSmall", err)
	}
}

func TestExtractTypeReference(t *testing.T) {
	inner := schema.TypeDef{Name: "Inner", Kind: schema.Struct{
		Fields: []schema.Field{{Name: "v", Type: schema.U16}},
	}}
	outer := schema.TypeDef{Name: "Outer", Kind: schema.Struct{
		Fields: []schema.Field{
			{Name: "first", Type: schema.Ref{Target: "Inner"}},
			{Name: "second", Type: schema.Ref{Target: "Inner"}},
		},
	}}
	table := mustResolve(t, inner, outer)
	buf := []byte{0x01, 0x02, 0x03, 0x04}
	res, err := walk.Extract(root(t, table, "Outer"), buf, table, nil)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	wantParam(t, res, "first.v", 0x0201)
	wantParam(t, res, "second.v", 0x0403)
}
