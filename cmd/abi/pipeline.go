package main

import (
	"fmt"
	"os"

	"abi/internal/analyze"
	"abi/internal/manifest"
	"abi/internal/report"
	"abi/internal/resolve"
	"abi/internal/schema"
)

// loadManifest reads and decodes a TOML schema manifest.
func loadManifest(path string) ([]schema.TypeDef, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open manifest: %w", err)
	}
	defer f.Close()

	defs, err := manifest.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("failed to decode manifest %s: %w", path, err)
	}
	return defs, nil
}

// analyzeDefs runs the full analysis and renders any diagnostics to
// stderr. Returns the analysis and whether the schema is acceptable.
func analyzeDefs(defs []schema.TypeDef) (*analyze.Analysis, bool) {
	analysis := analyze.Analyze(defs)
	rep := report.FromAnalysis(analysis)
	if rep.Len() > 0 {
		report.Pretty(os.Stderr, rep)
	}
	return analysis, analysis.OK()
}

// resolveDefs resolves every declared type into the layout table. A
// resolution failure is rendered to stderr and reported as an error.
func resolveDefs(defs []schema.TypeDef) (resolve.Table, []string, error) {
	r := resolve.New()
	for _, def := range defs {
		r.Add(def)
	}
	if err := r.ResolveAll(); err != nil {
		rep := report.New(0)
		rep.AddResolveError(err)
		report.Pretty(os.Stderr, rep)
		return nil, nil, err
	}
	return r.Table(), r.Order(), nil
}
