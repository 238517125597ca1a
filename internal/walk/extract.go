package walk

import (
	"context"
	"runtime"
	"sort"

	"golang.org/x/sync/errgroup"

	"abi/internal/resolve"
)

// Result holds the three accumulator maps of one extraction. Params
// are decoded field values plus payload sizes, Offsets the requested
// field start positions, Derived the computed discriminators.
type Result struct {
	Params  map[string]uint64
	Offsets map[string]uint64
	Derived map[string]uint64
}

// Paths returns the sorted parameter paths, for stable reporting.
func (r *Result) Paths() []string {
	paths := make([]string, 0, len(r.Params))
	for p := range r.Params {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// Extract walks buf as one instance of root and returns the decoded
// parameter, offset and derived maps. The table must already be fully
// resolved; it is read-only and may be shared across calls.
func Extract(root *resolve.Type, buf []byte, table resolve.Table, wantOffsets []string) (*Result, error) {
	return ExtractSeeded(root, buf, table, wantOffsets, nil)
}

// ExtractSeeded is Extract with externally injected values, such as
// the discriminant a plain union reads from "path._union_tag".
func ExtractSeeded(root *resolve.Type, buf []byte, table resolve.Table, wantOffsets []string, seed map[string]uint64) (*Result, error) {
	w := newWalker(buf, table, wantOffsets)
	for path, v := range seed {
		w.params[path] = v
	}
	if _, err := w.process(root, ""); err != nil {
		return nil, err
	}
	return &Result{Params: w.params, Offsets: w.offsets, Derived: w.derived}, nil
}

// ExtractAll extracts every buffer in parallel. Extractions are
// independent; each owns its cursor and accumulators and shares only
// the read-only table. jobs <= 0 means one worker per CPU.
func ExtractAll(ctx context.Context, root *resolve.Type, bufs [][]byte, table resolve.Table, wantOffsets []string, jobs int) ([]*Result, error) {
	if jobs <= 0 {
		jobs = runtime.GOMAXPROCS(0)
	}
	results := make([]*Result, len(bufs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(min(jobs, max(len(bufs), 1)))

	for i, buf := range bufs {
		g.Go(func() error {
			select {
			case <-gctx.Done():
				return gctx.Err()
			default:
			}
			res, err := Extract(root, buf, table, wantOffsets)
			if err != nil {
				return err
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
