package dataset

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	intaketesting "github.com/oceanco2/intake/utils/pkg/testing"
)

type testSchema struct {
	timeColumn string
}

func (testSchema) Name() string { return "samples" }

func (testSchema) Columns() []string {
	return []string{"event_ts:DateTime64(3)", "expocode:String", "value:Float64"}
}

func (s testSchema) TimeColumn() string { return s.timeColumn }

type testRow struct {
	EventTS  time.Time `ch:"event_ts"`
	Expocode string    `ch:"expocode"`
	Value    float64   `ch:"value"`
}

func TestIntake_ClickHouse_Dataset_FactDataset(t *testing.T) {
	t.Parallel()

	t.Run("requires logger", func(t *testing.T) {
		t.Parallel()

		_, err := NewFactDataset[testRow](nil, testSchema{})
		require.Error(t, err)
	})

	t.Run("table and column names", func(t *testing.T) {
		t.Parallel()

		ds, err := NewFactDataset[testRow](intaketesting.NewLogger(), testSchema{timeColumn: "event_ts"})
		require.NoError(t, err)
		require.Equal(t, "fact_samples", ds.TableName())
		require.Equal(t, []string{"event_ts", "expocode", "value"}, ds.ColumnNames())
	})

	t.Run("rejects column definitions without a type", func(t *testing.T) {
		t.Parallel()

		_, err := extractColumnNames([]string{"event_ts:DateTime64(3)", "expocode"})
		require.Error(t, err)
		_, err = extractColumnNames([]string{":String"})
		require.Error(t, err)
	})
}

func TestIntake_ClickHouse_Dataset_BuildGetRowsQuery(t *testing.T) {
	t.Parallel()

	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	end := start.Add(24 * time.Hour)

	t.Run("defaults to newest first", func(t *testing.T) {
		t.Parallel()

		ds, err := NewFactDataset[testRow](intaketesting.NewLogger(), testSchema{timeColumn: "event_ts"})
		require.NoError(t, err)
		query, args := ds.buildGetRowsQuery(GetRowsOptions{})
		require.Equal(t, "SELECT event_ts, expocode, value FROM fact_samples ORDER BY event_ts DESC", query)
		require.Empty(t, args)
	})

	t.Run("time bounds and where clause", func(t *testing.T) {
		t.Parallel()

		ds, err := NewFactDataset[testRow](intaketesting.NewLogger(), testSchema{timeColumn: "event_ts"})
		require.NoError(t, err)
		query, args := ds.buildGetRowsQuery(GetRowsOptions{
			StartTime:   &start,
			EndTime:     &end,
			WhereClause: "expocode = ?",
			WhereArgs:   []any{"33RO20050301"},
			OrderBy:     "value",
			Limit:       10,
		})
		require.Equal(t,
			"SELECT event_ts, expocode, value FROM fact_samples WHERE event_ts >= ? AND event_ts <= ? AND expocode = ? ORDER BY value LIMIT 10",
			query)
		require.Equal(t, []any{start, end, "33RO20050301"}, args)
	})

	t.Run("time bounds ignored without a time column", func(t *testing.T) {
		t.Parallel()

		ds, err := NewFactDataset[testRow](intaketesting.NewLogger(), testSchema{})
		require.NoError(t, err)
		query, args := ds.buildGetRowsQuery(GetRowsOptions{StartTime: &start})
		require.Equal(t, "SELECT event_ts, expocode, value FROM fact_samples", query)
		require.Empty(t, args)
	})
}
