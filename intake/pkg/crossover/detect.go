package crossover

import (
	"cmp"
	"slices"
)

type match struct {
	i, j int
}

// Detect returns the overlap between two datasets, or nil when no samples match. The dataset
// ids are taken from the first sample of each side.
func Detect(a, b []Sample, opts Options) *Overlap {
	if len(a) == 0 || len(b) == 0 {
		return nil
	}
	return detectPair(a[0].Dataset, b[0].Dataset, a, b, opts)
}

func detectPair(da, db string, a, b []Sample, opts Options) *Overlap {
	if len(a) == 0 || len(b) == 0 {
		return nil
	}

	var matches []match
	if opts.UseIndex && len(b) >= opts.IndexThreshold {
		idx := newSampleIndex(b)
		for i := range a {
			for _, j := range idx.candidates(a[i]) {
				if Match(a[i], b[j]) {
					matches = append(matches, match{i, j})
				}
			}
		}
	} else {
		for i := range a {
			for j := range b {
				if Match(a[i], b[j]) {
					matches = append(matches, match{i, j})
				}
			}
		}
	}
	return newOverlap(da, db, a, b, matches)
}

// DetectWithin returns the overlap of a dataset with itself, or nil when no two distinct samples
// match. Each pair is reported once with the lower row first.
func DetectWithin(a []Sample, opts Options) *Overlap {
	if len(a) < 2 {
		return nil
	}
	return detectWithin(a[0].Dataset, a, opts)
}

func detectWithin(dataset string, a []Sample, opts Options) *Overlap {
	if len(a) < 2 {
		return nil
	}

	var matches []match
	add := func(i, j int) {
		if a[i].Row > a[j].Row || (a[i].Row == a[j].Row && i > j) {
			i, j = j, i
		}
		matches = append(matches, match{i, j})
	}
	if opts.UseIndex && len(a) >= opts.IndexThreshold {
		idx := newSampleIndex(a)
		for i := range a {
			for _, j := range idx.candidates(a[i]) {
				if j > i && Match(a[i], a[j]) {
					add(i, j)
				}
			}
		}
	} else {
		for i := range a {
			for j := i + 1; j < len(a); j++ {
				if Match(a[i], a[j]) {
					add(i, j)
				}
			}
		}
	}
	return newOverlap(dataset, dataset, a, a, matches)
}

func newOverlap(da, db string, a, b []Sample, matches []match) *Overlap {
	if len(matches) == 0 {
		return nil
	}
	slices.SortFunc(matches, func(x, y match) int {
		if c := cmp.Compare(a[x.i].Row, a[y.i].Row); c != 0 {
			return c
		}
		if c := cmp.Compare(b[x.j].Row, b[y.j].Row); c != 0 {
			return c
		}
		if c := cmp.Compare(x.i, y.i); c != 0 {
			return c
		}
		return cmp.Compare(x.j, y.j)
	})

	o := &Overlap{Datasets: [2]string{da, db}}
	for side := range 2 {
		o.Rows[side] = make([]int, 0, len(matches))
		o.Lons[side] = make([]float64, 0, len(matches))
		o.Lats[side] = make([]float64, 0, len(matches))
		o.Times[side] = make([]float64, 0, len(matches))
	}
	for _, m := range matches {
		for side, s := range [2]Sample{a[m.i], b[m.j]} {
			o.Rows[side] = append(o.Rows[side], s.Row)
			o.Lons[side] = append(o.Lons[side], s.Lon)
			o.Lats[side] = append(o.Lats[side], s.Lat)
			o.Times[side] = append(o.Times[side], s.Time)
		}
	}
	return o
}
