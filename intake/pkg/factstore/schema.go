package factstore

import (
	"time"

	"github.com/oceanco2/intake/intake/pkg/crossover"
	"github.com/oceanco2/intake/intake/pkg/flags"
	"github.com/oceanco2/intake/intake/pkg/pipeline"
)

type flagSchema struct{}

func (flagSchema) Name() string { return "qc_flags" }

func (flagSchema) Columns() []string {
	return []string{
		"event_ts:DateTime64(3)",
		"ingested_at:DateTime64(3)",
		"run_id:String",
		"expocode:String",
		"row_idx:Int32",
		"column_idx:Int32",
		"column_name:String",
		"severity:LowCardinality(String)",
		"woce_value:LowCardinality(String)",
		"flag_name:LowCardinality(String)",
	}
}

func (flagSchema) TimeColumn() string { return "event_ts" }

// FlagFact is one QC flag entry of one validation run.
type FlagFact struct {
	EventTS    time.Time `ch:"event_ts" json:"event_ts"`
	IngestedAt time.Time `ch:"ingested_at" json:"ingested_at"`
	RunID      string    `ch:"run_id" json:"run_id"`
	Expocode   string    `ch:"expocode" json:"expocode"`
	Row        int32     `ch:"row_idx" json:"row_idx"`
	Column     int32     `ch:"column_idx" json:"column_idx"`
	ColumnName string    `ch:"column_name" json:"column_name"`
	Severity   string    `ch:"severity" json:"severity"`
	WOCEValue  string    `ch:"woce_value" json:"woce_value"`
	FlagName   string    `ch:"flag_name" json:"flag_name"`
}

// Entry converts the fact back to a flag entry.
func (f FlagFact) Entry() flags.Entry {
	return flags.Entry{
		Row:      int(f.Row),
		Column:   int(f.Column),
		Severity: f.Severity,
		Value:    f.WOCEValue,
		Name:     f.FlagName,
	}
}

type crossoverSchema struct{}

func (crossoverSchema) Name() string { return "crossovers" }

func (crossoverSchema) Columns() []string {
	return []string{
		"event_ts:DateTime64(3)",
		"ingested_at:DateTime64(3)",
		"run_id:String",
		"dataset_a:String",
		"dataset_b:String",
		"row_a:Int32",
		"row_b:Int32",
		"lon_a:Float64",
		"lat_a:Float64",
		"time_a:Float64",
		"lon_b:Float64",
		"lat_b:Float64",
		"time_b:Float64",
	}
}

func (crossoverSchema) TimeColumn() string { return "event_ts" }

// CrossoverFact is one matched sample pair.
type CrossoverFact struct {
	EventTS    time.Time `ch:"event_ts" json:"event_ts"`
	IngestedAt time.Time `ch:"ingested_at" json:"ingested_at"`
	RunID      string    `ch:"run_id" json:"run_id"`
	DatasetA   string    `ch:"dataset_a" json:"dataset_a"`
	DatasetB   string    `ch:"dataset_b" json:"dataset_b"`
	RowA       int32     `ch:"row_a" json:"row_a"`
	RowB       int32     `ch:"row_b" json:"row_b"`
	LonA       float64   `ch:"lon_a" json:"lon_a"`
	LatA       float64   `ch:"lat_a" json:"lat_a"`
	TimeA      float64   `ch:"time_a" json:"time_a"`
	LonB       float64   `ch:"lon_b" json:"lon_b"`
	LatB       float64   `ch:"lat_b" json:"lat_b"`
	TimeB      float64   `ch:"time_b" json:"time_b"`
}

// FlagFacts flattens the result's flag set. Columns skipped by the build keep an empty name.
func FlagFacts(res *pipeline.Result, eventTS, ingestedAt time.Time) []FlagFact {
	entries := res.Flags.Entries()
	out := make([]FlagFact, 0, len(entries))
	for _, e := range entries {
		name := ""
		if res.Build != nil && e.Column >= 0 && e.Column < len(res.Build.Columns) && res.Build.Columns[e.Column] != nil {
			name = res.Build.Columns[e.Column].Name
		}
		out = append(out, FlagFact{
			EventTS:    eventTS,
			IngestedAt: ingestedAt,
			RunID:      res.RunID,
			Expocode:   res.Expocode.Code,
			Row:        int32(e.Row),
			Column:     int32(e.Column),
			ColumnName: name,
			Severity:   e.Severity,
			WOCEValue:  e.Value,
			FlagName:   e.Name,
		})
	}
	return out
}

// CrossoverFacts flattens every overlap into one fact per matched pair.
func CrossoverFacts(runID string, overlaps []*crossover.Overlap, eventTS, ingestedAt time.Time) []CrossoverFact {
	n := 0
	for _, o := range overlaps {
		n += o.Len()
	}
	out := make([]CrossoverFact, 0, n)
	for _, o := range overlaps {
		for i := 0; i < o.Len(); i++ {
			out = append(out, CrossoverFact{
				EventTS:    eventTS,
				IngestedAt: ingestedAt,
				RunID:      runID,
				DatasetA:   o.Datasets[0],
				DatasetB:   o.Datasets[1],
				RowA:       int32(o.Rows[0][i]),
				RowB:       int32(o.Rows[1][i]),
				LonA:       o.Lons[0][i],
				LatA:       o.Lats[0][i],
				TimeA:      o.Times[0][i],
				LonB:       o.Lons[1][i],
				LatB:       o.Lats[1][i],
				TimeB:      o.Times[1][i],
			})
		}
	}
	return out
}
