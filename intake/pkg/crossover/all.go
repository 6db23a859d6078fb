package crossover

import (
	"context"
	"maps"
	"slices"

	"golang.org/x/sync/errgroup"
)

// DetectAll scans every dataset against itself and every unordered pair of datasets, one task
// per scan, and returns the overlaps found in Compare order. Pairs are oriented with the lower
// dataset id first. Inputs are only read.
func DetectAll(ctx context.Context, datasets map[string][]Sample, opts Options) ([]*Overlap, error) {
	ids := slices.Sorted(maps.Keys(datasets))

	type task struct {
		a, b string
	}
	tasks := make([]task, 0, len(ids)*(len(ids)+1)/2)
	for i, a := range ids {
		tasks = append(tasks, task{a, a})
		for _, b := range ids[i+1:] {
			tasks = append(tasks, task{a, b})
		}
	}

	results := make([]*Overlap, len(tasks))
	g, gctx := errgroup.WithContext(ctx)
	if opts.MaxConcurrency > 0 {
		g.SetLimit(opts.MaxConcurrency)
	}
	for i, t := range tasks {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			if t.a == t.b {
				results[i] = detectWithin(t.a, datasets[t.a], opts)
			} else {
				results[i] = detectPair(t.a, t.b, datasets[t.a], datasets[t.b], opts)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	overlaps := slices.DeleteFunc(results, func(o *Overlap) bool { return o == nil })
	Sort(overlaps)
	return overlaps, nil
}

// DetectAgainst scans one dataset against itself and each of the others. The others are only
// read, so callers may share them between concurrent scans.
func DetectAgainst(ctx context.Context, dataset string, samples []Sample, others map[string][]Sample, opts Options) ([]*Overlap, error) {
	ids := make([]string, 0, len(others))
	for id := range others {
		if id != dataset {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)

	results := make([]*Overlap, len(ids)+1)
	g, gctx := errgroup.WithContext(ctx)
	if opts.MaxConcurrency > 0 {
		g.SetLimit(opts.MaxConcurrency)
	}
	g.Go(func() error {
		results[0] = detectWithin(dataset, samples, opts)
		return nil
	})
	for i, id := range ids {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[i+1] = detectPair(dataset, id, samples, others[id], opts)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	overlaps := slices.DeleteFunc(results, func(o *Overlap) bool { return o == nil })
	Sort(overlaps)
	return overlaps, nil
}
