package crossover

import (
	"math"

	"gonum.org/v1/gonum/spatial/kdtree"
)

// Samples are indexed as points in (x, y, z, t) km space: the position on a sphere of radius
// EarthRadiusKm and the time scaled by KmPerDay. The chord between two positions is never longer
// than the arc, so every true match lies within MatchThresholdKm of the query in this space.

// indexSlackKm widens queries to absorb rounding in the projected coordinates.
const indexSlackKm = 1e-6

type indexPoint struct {
	coords [4]float64
	idx    int
}

func newIndexPoint(s Sample, idx int) indexPoint {
	phi := s.Lat * math.Pi / 180
	lambda := s.Lon * math.Pi / 180
	return indexPoint{
		coords: [4]float64{
			EarthRadiusKm * math.Cos(phi) * math.Cos(lambda),
			EarthRadiusKm * math.Cos(phi) * math.Sin(lambda),
			EarthRadiusKm * math.Sin(phi),
			s.Time / secondsPerDay * KmPerDay,
		},
		idx: idx,
	}
}

func (p indexPoint) Compare(c kdtree.Comparable, d kdtree.Dim) float64 {
	q := c.(indexPoint)
	return p.coords[d] - q.coords[d]
}

func (p indexPoint) Dims() int { return len(p.coords) }

// Distance returns the squared Euclidean distance, as the tree expects.
func (p indexPoint) Distance(c kdtree.Comparable) float64 {
	q := c.(indexPoint)
	var sum float64
	for i := range p.coords {
		d := p.coords[i] - q.coords[i]
		sum += d * d
	}
	return sum
}

type indexPoints []indexPoint

func (p indexPoints) Index(i int) kdtree.Comparable { return p[i] }
func (p indexPoints) Len() int                      { return len(p) }
func (p indexPoints) Pivot(d kdtree.Dim) int {
	return indexPlane{dim: d, points: p}.pivot()
}
func (p indexPoints) Slice(start, end int) kdtree.Interface { return p[start:end] }

type indexPlane struct {
	dim    kdtree.Dim
	points indexPoints
}

func (p indexPlane) Less(i, j int) bool {
	return p.points[i].coords[p.dim] < p.points[j].coords[p.dim]
}
func (p indexPlane) Len() int      { return len(p.points) }
func (p indexPlane) Swap(i, j int) { p.points[i], p.points[j] = p.points[j], p.points[i] }
func (p indexPlane) Slice(start, end int) kdtree.SortSlicer {
	return indexPlane{dim: p.dim, points: p.points[start:end]}
}
func (p indexPlane) pivot() int {
	return kdtree.Partition(p, kdtree.MedianOfMedians(p))
}

// sampleIndex answers radius queries over one dataset's samples.
type sampleIndex struct {
	tree *kdtree.Tree
}

func newSampleIndex(samples []Sample) *sampleIndex {
	pts := make(indexPoints, 0, len(samples))
	for i, s := range samples {
		if !s.valid() {
			continue
		}
		pts = append(pts, newIndexPoint(s, i))
	}
	if len(pts) == 0 {
		return &sampleIndex{}
	}
	return &sampleIndex{tree: kdtree.New(pts, false)}
}

// candidates returns the indices of samples within MatchThresholdKm of q in index space.
func (x *sampleIndex) candidates(q Sample) []int {
	if x.tree == nil || !q.valid() {
		return nil
	}
	r := MatchThresholdKm + indexSlackKm
	keep := kdtree.NewDistKeeper(r * r)
	x.tree.NearestSet(keep, newIndexPoint(q, -1))
	out := make([]int, 0, len(keep.Heap))
	for _, c := range keep.Heap {
		if c.Comparable == nil {
			continue
		}
		out = append(out, c.Comparable.(indexPoint).idx)
	}
	return out
}
