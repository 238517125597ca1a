package manifest_test

import (
	"strings"
	"testing"

	"abi/internal/manifest"
	"abi/internal/schema"
)

func parse(t *testing.T, src string) string {
	t.Helper()
	e, err := manifest.ParseExpr(src)
	if err != nil {
		t.Fatalf("ParseExpr(%q): %v", src, err)
	}
	return e.String()
}

func TestParseExprPrecedence(t *testing.T) {
	cases := []struct {
		src  string
		want string
	}{
		{"42", "42"},
		{"0x10", "16"},
		{"len", "len"},
		{"hdr.flags", "hdr.flags"},
		{"a + b * c", "(a+(b*c))"},
		{"(a + b) * c", "((a+b)*c)"},
		{"a * b + c", "((a*b)+c)"},
		{"a << 2 | b", "((a<<2)|b)"},
		{"a & b ^ c | d", "(((a&b)^c)|d)"},
		{"a == b && c != d", "((a==b)&&(c!=d))"},
		{"2 ** 3 ** 2", "(2**(3**2))"},
		{"-x", "(-x)"},
		{"~flags & 0xff", "((~flags)&255)"},
		{"!done", "(!done)"},
		{"sizeof(Header)", "sizeof(Header)"},
		{"alignof(Header)", "alignof(Header)"},
		{"popcount(bitmap)", "popcount(bitmap)"},
		{"popcount(a | b)", "popcount((a|b))"},
		{"../len", "../len"},
		{"../../hdr.count", "../../hdr.count"},
		{"a <= b || a > c", "((a<=b)||(a>c))"},
	}
	for _, tc := range cases {
		if got := parse(t, tc.src); got != tc.want {
			t.Errorf("ParseExpr(%q) = %s, want %s", tc.src, got, tc.want)
		}
	}
}

func TestParseExprErrors(t *testing.T) {
	cases := []string{
		"",
		"+",
		"a +",
		"(a + b",
		"a b",
		"sizeof()",
		"sizeof(1)",
		"popcount",
		"0xzz",
	}
	for _, src := range cases {
		if _, err := manifest.ParseExpr(src); err == nil {
			t.Errorf("ParseExpr(%q) succeeded, want error", src)
		}
	}
}

const packetManifest = `
[types.Packet]
kind = "struct"
comment = "length-prefixed payload"

[[types.Packet.fields]]
name = "len"
type = "u8"

[[types.Packet.fields]]
name = "payload"
type = "u8"
count = "len"

[types.Msg]
kind = "enum"
tag = "kind"

[[types.Msg.variants]]
name = "empty"
tag = 0
type = "u8"

[[types.Msg.variants]]
name = "full"
tag = 1
type = "Packet"
`

func TestDecodeString(t *testing.T) {
	defs, err := manifest.DecodeString(packetManifest)
	if err != nil {
		t.Fatalf("DecodeString: %v", err)
	}
	if len(defs) != 2 {
		t.Fatalf("got %d defs, want 2", len(defs))
	}
	// Name order is deterministic: Msg before Packet.
	if defs[0].Name != "Msg" || defs[1].Name != "Packet" {
		t.Fatalf("order = [%s %s], want [Msg Packet]", defs[0].Name, defs[1].Name)
	}

	en, ok := defs[0].Kind.(schema.Enum)
	if !ok {
		t.Fatalf("Msg kind = %T, want Enum", defs[0].Kind)
	}
	if en.Tag.String() != "kind" {
		t.Errorf("Msg tag = %s, want kind", en.Tag)
	}
	if len(en.Variants) != 2 || en.Variants[1].TagValue != 1 {
		t.Errorf("Msg variants = %+v", en.Variants)
	}
	if _, ok := en.Variants[1].Type.(schema.Ref); !ok {
		t.Errorf("variant full type = %T, want Ref", en.Variants[1].Type)
	}

	st, ok := defs[1].Kind.(schema.Struct)
	if !ok {
		t.Fatalf("Packet kind = %T, want Struct", defs[1].Kind)
	}
	if defs[1].Comment != "length-prefixed payload" {
		t.Errorf("Packet comment = %q", defs[1].Comment)
	}
	if len(st.Fields) != 2 {
		t.Fatalf("Packet fields = %d, want 2", len(st.Fields))
	}
	arr, ok := st.Fields[1].Type.(schema.Array)
	if !ok {
		t.Fatalf("payload type = %T, want Array", st.Fields[1].Type)
	}
	if arr.Count.String() != "len" {
		t.Errorf("payload count = %s, want len", arr.Count)
	}
	if arr.Elem != schema.U8 {
		t.Errorf("payload elem = %v, want u8", arr.Elem)
	}
}

func TestDecodeReader(t *testing.T) {
	defs, err := manifest.Decode(strings.NewReader(packetManifest))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(defs) != 2 {
		t.Fatalf("got %d defs, want 2", len(defs))
	}
}

func TestDecodeEnumVariantWithoutTag(t *testing.T) {
	const doc = `
[types.Bad]
kind = "enum"
tag = "kind"

[[types.Bad.variants]]
name = "x"
type = "u8"
`
	if _, err := manifest.DecodeString(doc); err == nil {
		t.Fatal("enum variant without a tag value should not decode")
	}
}

func TestDecodeSizeUnionVariantWithoutSize(t *testing.T) {
	const doc = `
[types.Bad]
kind = "size_union"

[[types.Bad.variants]]
name = "x"
type = "u8"
`
	if _, err := manifest.DecodeString(doc); err == nil {
		t.Fatal("size union variant without expected_size should not decode")
	}
}

func TestDecodeUnknownKind(t *testing.T) {
	const doc = `
[types.Bad]
kind = "tuple"
`
	if _, err := manifest.DecodeString(doc); err == nil {
		t.Fatal("unknown kind should not decode")
	}
}

func TestDecodeFixedOffsetField(t *testing.T) {
	const doc = `
[types.Mapped]
kind = "struct"

[[types.Mapped.fields]]
name = "reg"
type = "u32"
offset = 8
`
	defs, err := manifest.DecodeString(doc)
	if err != nil {
		t.Fatalf("DecodeString: %v", err)
	}
	st := defs[0].Kind.(schema.Struct)
	if st.Fields[0].Offset == nil || *st.Fields[0].Offset != 8 {
		t.Fatalf("offset = %v, want 8", st.Fields[0].Offset)
	}
}
