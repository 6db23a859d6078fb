package crossover

import (
	"github.com/oceanco2/intake/intake/pkg/record"
)

// Severity summarizes how many unresolved duplicates a dataset has.
type Severity int

const (
	SeverityNone Severity = iota
	SeverityFew
	SeverityMany
)

func (s Severity) String() string {
	switch s {
	case SeverityFew:
		return "few"
	case SeverityMany:
		return "many"
	default:
		return "none"
	}
}

// Policy sets the boundary between few and many duplicates.
type Policy struct {
	// FewMax is the largest number of matched pairs still considered few.
	FewMax int
}

func DefaultPolicy() Policy {
	return Policy{FewMax: 10}
}

// MatchedPairs counts the matched pairs of the overlaps that involve dataset.
func MatchedPairs(overlaps []*Overlap, dataset string) int {
	n := 0
	for _, o := range overlaps {
		if o.Involves(dataset) {
			n += o.Len()
		}
	}
	return n
}

// Classify rates the duplicates found for dataset.
func Classify(overlaps []*Overlap, dataset string, policy Policy) Severity {
	switch n := MatchedPairs(overlaps, dataset); {
	case n == 0:
		return SeverityNone
	case n <= policy.FewMax:
		return SeverityFew
	default:
		return SeverityMany
	}
}

// SamplesFromRecords derives samples from the position and time columns of records. Records
// with a missing position or time are skipped.
func SamplesFromRecords(dataset string, records []*record.Record) []Sample {
	out := make([]Sample, 0, len(records))
	for _, r := range records {
		lon, lat, ok := r.Position()
		if !ok {
			continue
		}
		ts, ok := r.Time()
		if !ok {
			continue
		}
		out = append(out, Sample{
			Dataset: dataset,
			Row:     r.RowIndex,
			Lon:     lon,
			Lat:     lat,
			Time:    float64(ts.Unix()) + float64(ts.Nanosecond())/1e9,
		})
	}
	return out
}
