package report

import "sort"

// Report accumulates diagnostics up to a limit.
type Report struct {
	items []Diagnostic
	max   int
}

// New returns an empty report holding at most max diagnostics.
func New(max int) *Report {
	if max <= 0 {
		max = 256
	}
	return &Report{items: make([]Diagnostic, 0, 8), max: max}
}

// Add appends a diagnostic. Returns false when the limit is reached.
func (r *Report) Add(d Diagnostic) bool {
	if len(r.items) >= r.max {
		return false
	}
	r.items = append(r.items, d)
	return true
}

// HasErrors reports whether any diagnostic is an error.
func (r *Report) HasErrors() bool {
	for i := range r.items {
		if r.items[i].Severity >= SevError {
			return true
		}
	}
	return false
}

func (r *Report) Len() int { return len(r.items) }

// Items returns the collected diagnostics. The slice aliases the
// report's storage; callers must not modify it.
func (r *Report) Items() []Diagnostic { return r.items }

// Merge appends every diagnostic from other, growing the limit as
// needed to keep them all.
func (r *Report) Merge(other *Report) {
	if total := len(r.items) + len(other.items); total > r.max {
		r.max = total
	}
	r.items = append(r.items, other.items...)
}

// Sort orders diagnostics by code, subject, then message so output is
// stable across runs.
func (r *Report) Sort() {
	sort.SliceStable(r.items, func(i, j int) bool {
		di, dj := r.items[i], r.items[j]
		if di.Code != dj.Code {
			return di.Code < dj.Code
		}
		if di.Subject != dj.Subject {
			return di.Subject < dj.Subject
		}
		return di.Message < dj.Message
	})
}
