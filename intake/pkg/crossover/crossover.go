// Package crossover finds samples that duplicate one another in position and time, within one
// dataset or between two.
//
// Two samples match when sqrt(h² + t²) <= MatchThresholdKm, where h is their great-circle
// distance and t converts their time separation to distance at KmPerDay.
package crossover

import (
	"math"
	"runtime"
)

const (
	// EarthRadiusKm is the authalic radius of a spherical Earth.
	EarthRadiusKm = 6371.007
	// KmPerDay is the distance water is assumed to travel in a day.
	KmPerDay = 30.0
	// MatchThresholdKm is the largest combined distance of a match.
	MatchThresholdKm = 80.0

	secondsPerDay = 86400.0
)

// Sample is the position and time of one data row. Time is in seconds since the Unix epoch.
type Sample struct {
	Dataset string  `json:"dataset"`
	Row     int     `json:"row"`
	Lon     float64 `json:"lon"`
	Lat     float64 `json:"lat"`
	Time    float64 `json:"time"`
}

func (s Sample) valid() bool {
	return !math.IsNaN(s.Lon) && !math.IsInf(s.Lon, 0) &&
		!math.IsNaN(s.Lat) && !math.IsInf(s.Lat, 0) &&
		!math.IsNaN(s.Time) && !math.IsInf(s.Time, 0)
}

// Overlap collects every match between two datasets, or within one. Index 0 of each pair refers
// to Datasets[0] and index 1 to Datasets[1]. Matches are ordered by row pair.
type Overlap struct {
	Datasets [2]string    `json:"datasets"`
	Rows     [2][]int     `json:"rows"`
	Lons     [2][]float64 `json:"lons"`
	Lats     [2][]float64 `json:"lats"`
	Times    [2][]float64 `json:"times"`
}

// Len returns the number of matched pairs.
func (o *Overlap) Len() int {
	return len(o.Rows[0])
}

// Within reports whether both sides are the same dataset.
func (o *Overlap) Within() bool {
	return o.Datasets[0] == o.Datasets[1]
}

// Involves reports whether the overlap has dataset on either side.
func (o *Overlap) Involves(dataset string) bool {
	return o.Datasets[0] == dataset || o.Datasets[1] == dataset
}

// Options tune detection. The zero value scans every pair by brute force without a
// concurrency limit.
type Options struct {
	// UseIndex prunes candidates with a k-d tree when the indexed side has at least
	// IndexThreshold samples.
	UseIndex       bool
	IndexThreshold int
	// MaxConcurrency bounds DetectAll's parallel tasks; zero or less means unbounded.
	MaxConcurrency int
}

func DefaultOptions() Options {
	return Options{
		UseIndex:       true,
		IndexThreshold: 64,
		MaxConcurrency: runtime.GOMAXPROCS(0),
	}
}

// Haversine returns the great-circle distance in km between two positions in degrees.
func Haversine(lon1, lat1, lon2, lat2 float64) float64 {
	phi1 := lat1 * math.Pi / 180
	phi2 := lat2 * math.Pi / 180
	dPhi := phi2 - phi1
	dLambda := (lon2 - lon1) * math.Pi / 180

	sinPhi := math.Sin(dPhi / 2)
	sinLambda := math.Sin(dLambda / 2)
	h := sinPhi*sinPhi + math.Cos(phi1)*math.Cos(phi2)*sinLambda*sinLambda
	if h > 1 {
		h = 1
	}
	return 2 * EarthRadiusKm * math.Asin(math.Sqrt(h))
}

// TimeDistance converts a time separation in seconds to km.
func TimeDistance(t1, t2 float64) float64 {
	return math.Abs(t2-t1) / secondsPerDay * KmPerDay
}

// Distance returns the combined position and time distance between two samples in km.
func Distance(a, b Sample) float64 {
	h := Haversine(a.Lon, a.Lat, b.Lon, b.Lat)
	t := TimeDistance(a.Time, b.Time)
	return math.Sqrt(h*h + t*t)
}

// Match reports whether two samples duplicate one another.
func Match(a, b Sample) bool {
	return Distance(a, b) <= MatchThresholdKm
}
