package crossover

import (
	"cmp"
	"slices"
	"strings"

	"gonum.org/v1/gonum/floats/scalar"

	"github.com/oceanco2/intake/intake/pkg/record"
)

// Compare orders overlaps: within-dataset before cross-dataset, then fewer matches first, then
// by dataset ids, row indices, and finally times, latitudes and longitudes compared within
// tolerance.
func Compare(a, b *Overlap) int {
	if aw, bw := a.Within(), b.Within(); aw != bw {
		if aw {
			return -1
		}
		return 1
	}
	if c := cmp.Compare(a.Len(), b.Len()); c != 0 {
		return c
	}
	for side := range 2 {
		if c := strings.Compare(a.Datasets[side], b.Datasets[side]); c != 0 {
			return c
		}
	}
	for side := range 2 {
		if c := slices.Compare(a.Rows[side], b.Rows[side]); c != 0 {
			return c
		}
	}
	for side := range 2 {
		if c := compareTolerant(a.Times[side], b.Times[side], compareFloat); c != 0 {
			return c
		}
	}
	for side := range 2 {
		if c := compareTolerant(a.Lats[side], b.Lats[side], compareFloat); c != 0 {
			return c
		}
	}
	for side := range 2 {
		if c := compareTolerant(a.Lons[side], b.Lons[side], compareLongitude); c != 0 {
			return c
		}
	}
	return 0
}

// Sort orders overlaps in place by Compare.
func Sort(overlaps []*Overlap) {
	slices.SortStableFunc(overlaps, Compare)
}

func compareTolerant(a, b []float64, fn func(x, y float64) int) int {
	for i := range min(len(a), len(b)) {
		if c := fn(a[i], b[i]); c != 0 {
			return c
		}
	}
	return cmp.Compare(len(a), len(b))
}

func compareFloat(x, y float64) int {
	if scalar.EqualWithinAbsOrRel(x, y, record.AbsTolerance, record.RelTolerance) {
		return 0
	}
	return cmp.Compare(x, y)
}

func compareLongitude(x, y float64) int {
	if record.LongitudesEqual(x, y) {
		return 0
	}
	return cmp.Compare(x, y)
}
