package report_test

import (
	"strings"
	"testing"

	"github.com/fatih/color"

	"abi/internal/analyze"
	"abi/internal/expr"
	"abi/internal/report"
	"abi/internal/resolve"
	"abi/internal/schema"
)

func TestFromAnalysisCodes(t *testing.T) {
	defs := []schema.TypeDef{
		{Name: "Dup", Kind: schema.Struct{}},
		{Name: "Dup", Kind: schema.Struct{}},
		{Name: "S", Kind: schema.Struct{
			Fields: []schema.Field{
				{Name: "a", Type: schema.Array{Elem: schema.U8, Count: expr.Ref("b")}},
				{Name: "b", Type: schema.U8},
			},
		}},
	}
	r := report.FromAnalysis(analyze.Analyze(defs))
	if !r.HasErrors() {
		t.Fatal("report has no errors")
	}

	codes := make(map[report.Code]int)
	for _, d := range r.Items() {
		codes[d.Code]++
	}
	if codes[report.ValDuplicateType] != 1 {
		t.Errorf("ValDuplicateType count = %d, want 1", codes[report.ValDuplicateType])
	}
	if codes[report.LayForwardDependency] != 1 {
		t.Errorf("LayForwardDependency count = %d, want 1", codes[report.LayForwardDependency])
	}
}

func TestFromAnalysisTypeCycle(t *testing.T) {
	defs := []schema.TypeDef{
		{Name: "A", Kind: schema.Struct{Fields: []schema.Field{{Name: "b", Type: schema.Ref{Target: "B"}}}}},
		{Name: "B", Kind: schema.Struct{Fields: []schema.Field{{Name: "a", Type: schema.Ref{Target: "A"}}}}},
	}
	r := report.FromAnalysis(analyze.Analyze(defs))

	var found *report.Diagnostic
	for _, d := range r.Items() {
		if d.Code == report.LayTypeCycle {
			found = &d
			break
		}
	}
	if found == nil {
		t.Fatal("no LayTypeCycle diagnostic")
	}
	if !strings.Contains(found.Message, "type dependency cycle") {
		t.Errorf("message = %q", found.Message)
	}
	if len(found.Chain) < 3 {
		t.Errorf("chain = %v, want closed cycle", found.Chain)
	}
}

func TestFromAnalysisSorted(t *testing.T) {
	defs := []schema.TypeDef{
		{Name: "Z", Kind: schema.Struct{
			Fields: []schema.Field{
				{Name: "a", Type: schema.Array{Elem: schema.U8, Count: expr.Ref("b")}},
				{Name: "b", Type: schema.U8},
			},
		}},
		{Name: "Dup", Kind: schema.Struct{}},
		{Name: "Dup", Kind: schema.Struct{}},
	}
	items := report.FromAnalysis(analyze.Analyze(defs)).Items()
	for i := 1; i < len(items); i++ {
		if items[i-1].Code > items[i].Code {
			t.Fatalf("items not sorted by code: %v before %v", items[i-1].Code, items[i].Code)
		}
	}
}

func TestAddResolveError(t *testing.T) {
	r := resolve.New()
	r.Add(schema.TypeDef{Name: "S", Kind: schema.Struct{
		Fields: []schema.Field{{Name: "x", Type: schema.Ref{Target: "Missing"}}},
	}})
	err := r.ResolveAll()
	if err == nil {
		t.Fatal("ResolveAll succeeded, want unknown type error")
	}

	rep := report.New(0)
	rep.AddResolveError(err)
	items := rep.Items()
	if len(items) != 1 {
		t.Fatalf("items = %d, want 1", len(items))
	}
	if items[0].Code != report.ResUnknownType {
		t.Errorf("code = %v, want ResUnknownType", items[0].Code)
	}
}

func TestReportLimit(t *testing.T) {
	r := report.New(2)
	for i := range 5 {
		added := r.Add(report.Diagnostic{Severity: report.SevError, Code: report.UnknownCode, Message: "x"})
		if added != (i < 2) {
			t.Errorf("Add #%d = %v", i, added)
		}
	}
	if r.Len() != 2 {
		t.Errorf("Len = %d, want 2", r.Len())
	}
}

func TestCodeString(t *testing.T) {
	if got := report.LayForwardDependency.String(); got != "ABI2001" {
		t.Errorf("code string = %q, want ABI2001", got)
	}
}

func TestPrettyPlain(t *testing.T) {
	defer func(prev bool) { color.NoColor = prev }(color.NoColor)
	color.NoColor = true

	r := report.New(0)
	r.Add(report.Diagnostic{
		Severity: report.SevError,
		Code:     report.LayForwardDependency,
		Subject:  "S",
		Message:  "forward dependency",
		Chain:    []string{"S", "S.b"},
	})

	var sb strings.Builder
	report.Pretty(&sb, r)
	out := sb.String()
	if !strings.Contains(out, "ERROR ABI2001 S: forward dependency") {
		t.Errorf("output = %q", out)
	}
	if !strings.Contains(out, "chain: S -> S.b") {
		t.Errorf("output missing chain: %q", out)
	}
}
