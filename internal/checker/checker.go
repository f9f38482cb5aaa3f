// Package checker validates configuration files on disk through the safe
// loader, several files at a time.
package checker

import (
	"context"
	"fmt"
	"os"

	"golang.org/x/sync/errgroup"

	"github.com/eugenenazirov/safeconfig/internal/yamlloader"
)

const defaultConcurrency = 4

// Result is the outcome of checking one file. Exactly one of Tree and Err is
// meaningful: Tree holds the loaded document when Err is nil.
type Result struct {
	Path string
	Tree any
	Err  error
}

// OK reports whether the file loaded cleanly.
func (r Result) OK() bool {
	return r.Err == nil
}

// Check loads every path with loader, running at most concurrency loads at
// once. Results keep the order of paths. Per-file failures are reported in
// the matching Result; the returned error is only set when ctx ends before
// all files were checked, in which case the unchecked files carry ctx.Err().
func Check(ctx context.Context, loader yamlloader.Loader, paths []string, concurrency int) ([]Result, error) {
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}

	results := make([]Result, len(paths))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	for i, path := range paths {
		results[i].Path = path
		if err := gctx.Err(); err != nil {
			results[i].Err = err
			continue
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				results[i].Err = err
				return nil
			}
			results[i].Tree, results[i].Err = checkFile(loader, path)
			return nil
		})
	}

	_ = g.Wait()
	return results, ctx.Err()
}

func checkFile(loader yamlloader.Loader, path string) (any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return loader.Load(data, path)
}

// Failed counts the results that carry an error.
func Failed(results []Result) int {
	n := 0
	for _, r := range results {
		if !r.OK() {
			n++
		}
	}
	return n
}
