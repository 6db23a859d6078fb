package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"

	"github.com/oceanco2/intake/intake/pkg/catalog"
	"github.com/oceanco2/intake/intake/pkg/crossover"
	"github.com/oceanco2/intake/intake/pkg/dserror"
	"github.com/oceanco2/intake/intake/pkg/flags"
	"github.com/oceanco2/intake/intake/pkg/metadata"
	"github.com/oceanco2/intake/intake/pkg/qcstatus"
	"github.com/oceanco2/intake/intake/pkg/record"
	intaketesting "github.com/oceanco2/intake/utils/pkg/testing"
)

const testExpocode = "33RO20050301"

var testColumns = []string{"year", "month", "day", "hour", "minute", "longitude", "latitude", "temp"}

func testRows() [][]string {
	return [][]string{
		{"2005", "3", "1", "12", "0", "-40.0", "20.0", "25.0"},
		{"2005", "3", "2", "12", "0", "-39.0", "20.0", "25.1"},
		{"2005", "3", "3", "12", "0", "-38.0", "20.0", "25.2"},
	}
}

func testMetadata(overrides map[string]string) *metadata.Document {
	values := map[string]string{
		metadata.FieldExpocode:      testExpocode,
		metadata.FieldDatasetName:   "RB0502",
		metadata.FieldPlatformName:  "Ronald H. Brown",
		metadata.FieldPlatformType:  "ship",
		metadata.FieldInvestigators: "Wanninkhof, R.",
		metadata.FieldOrganizations: "NOAA/AOML",
		metadata.FieldStartDate:     "2005-03-01",
		metadata.FieldEndDate:       "2005-03-03",
		metadata.FieldWestLon:       "-40.0",
		metadata.FieldEastLon:       "-38.0",
		metadata.FieldSouthLat:      "20.0",
		metadata.FieldNorthLat:      "20.0",
	}
	for k, v := range overrides {
		values[k] = v
	}
	return metadata.FromStrings(values)
}

func newTestPipeline(t *testing.T) (*Pipeline, *clockwork.FakeClock) {
	t.Helper()
	log := intaketesting.NewLogger()
	clock := clockwork.NewFakeClockAt(time.Date(2026, 1, 15, 9, 0, 0, 0, time.UTC))
	engine, err := qcstatus.NewEngine(qcstatus.EngineConfig{Logger: log, Clock: clock})
	require.NoError(t, err)
	p, err := New(Config{
		Logger:  log,
		Clock:   clock,
		Catalog: catalog.Default(),
		Engine:  engine,
	})
	require.NoError(t, err)
	return p, clock
}

func TestIntake_Pipeline_Config(t *testing.T) {
	t.Parallel()

	t.Run("requires logger catalog and engine", func(t *testing.T) {
		t.Parallel()

		_, err := New(Config{})
		require.Error(t, err)
		_, err = New(Config{Logger: intaketesting.NewLogger()})
		require.Error(t, err)
		_, err = New(Config{Logger: intaketesting.NewLogger(), Catalog: catalog.Default()})
		require.Error(t, err)
	})

	t.Run("fills defaults", func(t *testing.T) {
		t.Parallel()

		p, _ := newTestPipeline(t)
		require.NotNil(t, p.Registry())
		require.Equal(t, crossover.DefaultPolicy(), p.cfg.Policy)
		require.Equal(t, crossover.DefaultOptions(), p.cfg.Crossover)
	})
}

func TestIntake_Pipeline_Run(t *testing.T) {
	t.Parallel()

	t.Run("clean dataset is suggested for acceptance", func(t *testing.T) {
		t.Parallel()

		p, clock := newTestPipeline(t)
		st := qcstatus.NewStatus(testExpocode, clock.Now())
		res, err := p.Run(context.Background(), Input{
			Expocode: " 33ro20050301 ",
			Columns:  testColumns,
			Rows:     testRows(),
			Metadata: []*metadata.Document{testMetadata(nil)},
		}, st)
		require.NoError(t, err)

		require.NotEmpty(t, res.RunID)
		require.Equal(t, testExpocode, res.Expocode.Code)
		require.Len(t, res.Build.Records, 3)
		require.Empty(t, res.Build.Errors)
		require.Len(t, res.Samples, 3)
		require.Empty(t, res.Overlaps)
		require.Equal(t, crossover.SeverityNone, res.Crossovers)
		require.NoError(t, res.MetadataErr)
		require.True(t, res.MetadataAcceptable)
		require.Equal(t, qcstatus.CheckPassed, res.Check.Outcome)
		require.Equal(t, "[ ]", res.FlagText)
		require.Equal(t, qcstatus.Standing{State: qcstatus.StateAccepted, Grade: qcstatus.GradeA}, res.Suggested)

		require.Equal(t, res.Suggested, st.Suggested)
		require.Equal(t, qcstatus.StateEditable, st.Actual.State)
		require.True(t, st.MetadataAcceptable)
		require.Same(t, res.Check, st.LastCheck)
	})

	t.Run("nil status evaluates a fresh one", func(t *testing.T) {
		t.Parallel()

		p, _ := newTestPipeline(t)
		res, err := p.Run(context.Background(), Input{
			Expocode: testExpocode,
			Columns:  testColumns,
			Rows:     testRows(),
			Metadata: []*metadata.Document{testMetadata(nil)},
		}, nil)
		require.NoError(t, err)
		require.Equal(t, qcstatus.StateAccepted, res.Suggested.State)
	})

	t.Run("invalid expocode fails the run", func(t *testing.T) {
		t.Parallel()

		p, _ := newTestPipeline(t)
		_, err := p.Run(context.Background(), Input{
			Expocode: "bogus",
			Columns:  testColumns,
			Rows:     testRows(),
		}, nil)
		require.ErrorIs(t, err, dserror.ErrInvalidIdentifier)
	})

	t.Run("invalid column header fails the run", func(t *testing.T) {
		t.Parallel()

		p, _ := newTestPipeline(t)
		_, err := p.Run(context.Background(), Input{
			Expocode: testExpocode,
			Columns:  []string{"temp:NOTAKIND"},
			Rows:     [][]string{{"1"}},
		}, nil)
		require.ErrorIs(t, err, ErrInvalidColumnHeader)
	})

	t.Run("bad cells are flagged", func(t *testing.T) {
		t.Parallel()

		p, _ := newTestPipeline(t)
		rows := testRows()
		rows[1][7] = "abc"
		rows[2][7] = "99"
		res, err := p.Run(context.Background(), Input{
			Expocode: testExpocode,
			Columns:  testColumns,
			Rows:     rows,
			Metadata: []*metadata.Document{testMetadata(nil)},
		}, nil)
		require.NoError(t, err)

		require.Len(t, res.Build.Records, 3)
		require.ErrorIs(t, res.Build.Err(), dserror.ErrParseFailure)
		require.Equal(t, []flags.Entry{
			{Row: 1, Column: 7, Severity: flags.SeverityBad, Value: flags.WOCEBad, Name: "parse"},
			{Row: 2, Column: 7, Severity: flags.SeverityQuestionable, Value: flags.WOCEQuestionable, Name: record.RangeFlagName},
		}, res.Flags.Entries())
		require.Equal(t, `[ [1, 7, "BAD", "4", "parse"], [2, 7, "QUESTIONABLE", "3", "range"] ]`, res.FlagText)

		decoded, err := flags.Decode(res.FlagText)
		require.NoError(t, err)
		require.True(t, decoded.Equal(res.Flags))

		require.Equal(t, qcstatus.CheckPassedWithWarnings, res.Check.Outcome)
		require.Equal(t, 2, res.Check.WarningRows)
		require.Equal(t, 0, res.Check.ErrorRows)
		require.Equal(t, qcstatus.Standing{State: qcstatus.StateAccepted, Grade: qcstatus.GradeE}, res.Suggested)
	})

	t.Run("external check result is used as given", func(t *testing.T) {
		t.Parallel()

		p, clock := newTestPipeline(t)
		check := &qcstatus.CheckResult{ID: "ext-1", Outcome: qcstatus.CheckFailed, Rows: 3, At: clock.Now()}
		res, err := p.Run(context.Background(), Input{
			Expocode: testExpocode,
			Columns:  testColumns,
			Rows:     testRows(),
			Metadata: []*metadata.Document{testMetadata(nil)},
			Check:    check,
		}, nil)
		require.NoError(t, err)
		require.Same(t, check, res.Check)
		require.Equal(t, qcstatus.StateEditable, res.Suggested.State)
	})

	t.Run("crossovers with a registered dataset lower the grade", func(t *testing.T) {
		t.Parallel()

		p, _ := newTestPipeline(t)
		ts := time.Date(2005, 3, 1, 12, 0, 0, 0, time.UTC)
		p.Registry().Put("33AT20050228", []crossover.Sample{
			{Dataset: "33AT20050228", Row: 4, Lon: -40.0, Lat: 20.0, Time: float64(ts.Unix())},
		})

		res, err := p.Run(context.Background(), Input{
			Expocode: testExpocode,
			Columns:  testColumns,
			Rows:     testRows(),
			Metadata: []*metadata.Document{testMetadata(nil)},
		}, nil)
		require.NoError(t, err)

		require.Len(t, res.Overlaps, 1)
		o := res.Overlaps[0]
		require.Equal(t, [2]string{testExpocode, "33AT20050228"}, o.Datasets)
		require.Equal(t, [2][]int{{0}, {4}}, o.Rows)
		require.Equal(t, crossover.SeverityFew, res.Crossovers)
		require.Equal(t, qcstatus.Standing{State: qcstatus.StateAccepted, Grade: qcstatus.GradeB}, res.Suggested)
	})

	t.Run("registered samples of the same dataset are ignored", func(t *testing.T) {
		t.Parallel()

		p, _ := newTestPipeline(t)
		first, err := p.Run(context.Background(), Input{
			Expocode: testExpocode,
			Columns:  testColumns,
			Rows:     testRows(),
			Metadata: []*metadata.Document{testMetadata(nil)},
		}, nil)
		require.NoError(t, err)
		p.Register(first)
		require.Equal(t, 1, p.Registry().Len())

		second, err := p.Run(context.Background(), Input{
			Expocode: testExpocode,
			Columns:  testColumns,
			Rows:     testRows(),
			Metadata: []*metadata.Document{testMetadata(nil)},
		}, nil)
		require.NoError(t, err)
		require.Empty(t, second.Overlaps)
	})

	t.Run("duplicate rows within the dataset are many crossovers", func(t *testing.T) {
		t.Parallel()

		p, _ := newTestPipeline(t)
		var rows [][]string
		for range 12 {
			rows = append(rows, testRows()[0])
		}
		res, err := p.Run(context.Background(), Input{
			Expocode: testExpocode,
			Columns:  testColumns,
			Rows:     rows,
			Metadata: []*metadata.Document{testMetadata(nil)},
		}, nil)
		require.NoError(t, err)
		require.Len(t, res.Overlaps, 1)
		require.True(t, res.Overlaps[0].Within())
		require.Equal(t, 66, res.Overlaps[0].Len())
		require.Equal(t, crossover.SeverityMany, res.Crossovers)
		require.Equal(t, qcstatus.StateSuspended, res.Suggested.State)
	})

	t.Run("metadata for another dataset is unacceptable", func(t *testing.T) {
		t.Parallel()

		p, _ := newTestPipeline(t)
		res, err := p.Run(context.Background(), Input{
			Expocode: testExpocode,
			Columns:  testColumns,
			Rows:     testRows(),
			Metadata: []*metadata.Document{testMetadata(map[string]string{metadata.FieldExpocode: "33AT20050228"})},
		}, nil)
		require.NoError(t, err)
		require.ErrorIs(t, res.MetadataErr, dserror.ErrIdentifierMismatch)
		require.False(t, res.MetadataAcceptable)
		require.Equal(t, qcstatus.StateEditable, res.Suggested.State)
	})

	t.Run("conflicting metadata is unacceptable", func(t *testing.T) {
		t.Parallel()

		p, _ := newTestPipeline(t)
		res, err := p.Run(context.Background(), Input{
			Expocode: testExpocode,
			Columns:  testColumns,
			Rows:     testRows(),
			Metadata: []*metadata.Document{
				testMetadata(nil),
				testMetadata(map[string]string{metadata.FieldPlatformName: "Atlantis"}),
			},
		}, nil)
		require.NoError(t, err)
		require.NoError(t, res.MetadataErr)
		require.Equal(t, []string{metadata.FieldPlatformName}, res.Metadata.Conflicts())
		require.False(t, res.MetadataAcceptable)
	})

	t.Run("missing metadata is unacceptable", func(t *testing.T) {
		t.Parallel()

		p, _ := newTestPipeline(t)
		res, err := p.Run(context.Background(), Input{
			Expocode: testExpocode,
			Columns:  testColumns,
			Rows:     testRows(),
		}, nil)
		require.NoError(t, err)
		require.Error(t, res.MetadataErr)
		require.Nil(t, res.Metadata)
		require.False(t, res.MetadataAcceptable)
	})

	t.Run("cancelled context fails the run", func(t *testing.T) {
		t.Parallel()

		p, _ := newTestPipeline(t)
		p.Registry().Put("33AT20050228", []crossover.Sample{{Dataset: "33AT20050228", Lon: 10, Lat: 10, Time: 0}})
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := p.Run(ctx, Input{
			Expocode: testExpocode,
			Columns:  testColumns,
			Rows:     testRows(),
		}, nil)
		require.True(t, errors.Is(err, context.Canceled))
	})
}

func TestIntake_Pipeline_DeriveCheckResult(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 1, 15, 9, 0, 0, 0, time.UTC)
	newBuilder := func(t *testing.T) (*record.Builder, *catalog.Catalog) {
		cat := catalog.Default()
		b, err := record.NewBuilder(record.BuilderConfig{Logger: intaketesting.NewLogger(), Catalog: cat})
		require.NoError(t, err)
		return b, cat
	}

	t.Run("shape mismatches are error rows", func(t *testing.T) {
		t.Parallel()

		b, cat := newBuilder(t)
		cols, err := cat.ParseColumnDefs([]string{"year", "month"})
		require.NoError(t, err)
		res := b.Build(cols, [][]string{{"2005", "1"}, {"2005"}, {"2006", "2"}})

		c := DeriveCheckResult(res, res.CheckBounds(), 3, now)
		require.Equal(t, qcstatus.CheckPassedWithWarnings, c.Outcome)
		require.Equal(t, 3, c.Rows)
		require.Equal(t, 1, c.ErrorRows)
		require.Equal(t, 0, c.WarningRows)
		require.Equal(t, now, c.At)
		require.NotEmpty(t, c.ID)
	})

	t.Run("rejected column fails", func(t *testing.T) {
		t.Parallel()

		b, cat := newBuilder(t)
		cols, err := cat.ParseColumnDefs([]string{"year", "temp:INT"})
		require.NoError(t, err)
		res := b.Build(cols, [][]string{{"2005", "1"}})

		c := DeriveCheckResult(res, res.CheckBounds(), 1, now)
		require.Equal(t, qcstatus.CheckFailed, c.Outcome)
	})

	t.Run("no records fails", func(t *testing.T) {
		t.Parallel()

		b, cat := newBuilder(t)
		cols, err := cat.ParseColumnDefs([]string{"year"})
		require.NoError(t, err)
		res := b.Build(cols, nil)

		c := DeriveCheckResult(res, res.CheckBounds(), 0, now)
		require.Equal(t, qcstatus.CheckFailed, c.Outcome)
		require.Equal(t, "no valid rows", c.Summary)
	})

	t.Run("a row with several problems counts once", func(t *testing.T) {
		t.Parallel()

		b, cat := newBuilder(t)
		cols, err := cat.ParseColumnDefs([]string{"month", "temp"})
		require.NoError(t, err)
		res := b.Build(cols, [][]string{{"13", "x"}, {"1", "20"}})

		c := DeriveCheckResult(res, res.CheckBounds(), 2, now)
		require.Equal(t, qcstatus.CheckPassedWithWarnings, c.Outcome)
		require.Equal(t, 1, c.WarningRows)
	})

	t.Run("clean build passes", func(t *testing.T) {
		t.Parallel()

		b, cat := newBuilder(t)
		cols, err := cat.ParseColumnDefs([]string{"month", "temp"})
		require.NoError(t, err)
		res := b.Build(cols, [][]string{{"12", "20"}})

		c := DeriveCheckResult(res, flags.Set{}, 1, now)
		require.Equal(t, qcstatus.CheckPassed, c.Outcome)
	})
}

func TestIntake_Pipeline_Registry(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	samples := []crossover.Sample{{Dataset: "a", Row: 0, Lon: 1, Lat: 2, Time: 3}}
	r.Put("a", samples)
	samples[0].Lon = 99

	got, ok := r.Get("a")
	require.True(t, ok)
	require.Equal(t, 1.0, got[0].Lon)

	snap := r.Snapshot()
	r.Remove("a")
	require.Equal(t, 0, r.Len())
	require.Len(t, snap, 1)
	_, ok = r.Get("a")
	require.False(t, ok)
}
