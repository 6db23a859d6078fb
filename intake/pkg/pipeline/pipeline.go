// Package pipeline runs one dataset through validation: records are built from raw rows, scanned
// for crossovers against the dataset itself and every registered dataset, metadata documents are
// merged, the QC status is re-evaluated and the resulting cell flags are encoded.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/oceanco2/intake/intake/pkg/catalog"
	"github.com/oceanco2/intake/intake/pkg/crossover"
	"github.com/oceanco2/intake/intake/pkg/dserror"
	"github.com/oceanco2/intake/intake/pkg/expocode"
	"github.com/oceanco2/intake/intake/pkg/flags"
	"github.com/oceanco2/intake/intake/pkg/metadata"
	"github.com/oceanco2/intake/intake/pkg/metrics"
	"github.com/oceanco2/intake/intake/pkg/qcstatus"
	"github.com/oceanco2/intake/intake/pkg/record"
)

// ErrInvalidColumnHeader is returned when a column definition cannot be parsed.
var ErrInvalidColumnHeader = errors.New("invalid column header")

type Config struct {
	Logger    *slog.Logger
	Clock     clockwork.Clock
	Catalog   *catalog.Catalog
	Engine    *qcstatus.Engine
	Registry  *Registry
	Crossover crossover.Options
	Policy    crossover.Policy
}

func (cfg *Config) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.Catalog == nil {
		return errors.New("catalog is required")
	}
	if cfg.Engine == nil {
		return errors.New("status engine is required")
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.Registry == nil {
		cfg.Registry = NewRegistry()
	}
	if cfg.Crossover == (crossover.Options{}) {
		cfg.Crossover = crossover.DefaultOptions()
	}
	if cfg.Policy == (crossover.Policy{}) {
		cfg.Policy = crossover.DefaultPolicy()
	}
	return nil
}

type Pipeline struct {
	log     *slog.Logger
	cfg     Config
	builder *record.Builder
}

func New(cfg Config) (*Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	builder, err := record.NewBuilder(record.BuilderConfig{
		Logger:  cfg.Logger,
		Catalog: cfg.Catalog,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create record builder: %w", err)
	}
	return &Pipeline{
		log:     cfg.Logger,
		cfg:     cfg,
		builder: builder,
	}, nil
}

func (p *Pipeline) Registry() *Registry {
	return p.cfg.Registry
}

func (p *Pipeline) Catalog() *catalog.Catalog {
	return p.cfg.Catalog
}

// Input is everything a collaborator uploads for one dataset.
type Input struct {
	Expocode string
	// Columns are "name" or "name:KIND" definitions, one per value in each row.
	Columns  []string
	Rows     [][]string
	Metadata []*metadata.Document
	// Check is an external checker's verdict. When nil one is derived from the build.
	Check *qcstatus.CheckResult
}

// Result is the outcome of one run.
type Result struct {
	RunID    string
	Expocode expocode.Expocode

	Build   *record.BuildResult
	Samples []crossover.Sample

	Metadata *metadata.Document
	// MetadataErr is set when the documents could not be merged; the metadata is then
	// unacceptable.
	MetadataErr        error
	MetadataAcceptable bool

	Overlaps   []*crossover.Overlap
	Crossovers crossover.Severity

	Check     *qcstatus.CheckResult
	Suggested qcstatus.Standing

	Flags    flags.Set
	FlagText string
}

// Run validates one dataset and re-evaluates st, which may be nil. Row, cell and metadata
// problems are reported in the result; only an unusable identifier or column header fails the run.
func (p *Pipeline) Run(ctx context.Context, in Input, st *qcstatus.Status) (*Result, error) {
	start := p.cfg.Clock.Now()
	res, err := p.run(ctx, in, st)
	metrics.ValidationDuration.Observe(p.cfg.Clock.Since(start).Seconds())
	if err != nil {
		metrics.ValidationRunsTotal.WithLabelValues("error").Inc()
		return nil, err
	}
	metrics.ValidationRunsTotal.WithLabelValues(res.Check.Outcome.String()).Inc()
	return res, nil
}

func (p *Pipeline) run(ctx context.Context, in Input, st *qcstatus.Status) (*Result, error) {
	code, err := expocode.Normalize(in.Expocode)
	if err != nil {
		return nil, err
	}
	cols, err := p.cfg.Catalog.ParseColumnDefs(in.Columns)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidColumnHeader, err)
	}

	res := &Result{
		RunID:    uuid.NewString(),
		Expocode: code,
	}
	log := p.log.With("expocode", code.Code, "run_id", res.RunID)

	res.Build = p.builder.Build(cols, in.Rows)
	metrics.RecordsBuiltTotal.Add(float64(len(res.Build.Records)))
	for kind, n := range dserror.CountByKind(res.Build.Errors) {
		metrics.RecordErrorsTotal.WithLabelValues(kind.String()).Add(float64(n))
	}

	res.Metadata, res.MetadataErr = mergeMetadata(code, in.Metadata)
	if res.Metadata != nil {
		res.MetadataAcceptable = res.MetadataErr == nil && res.Metadata.Acceptable()
		metrics.MetadataConflictsTotal.Add(float64(len(res.Metadata.Conflicts())))
	}

	res.Samples = crossover.SamplesFromRecords(code.Code, res.Build.Records)
	scanStart := p.cfg.Clock.Now()
	res.Overlaps, err = crossover.DetectAgainst(ctx, code.Code, res.Samples, p.cfg.Registry.Snapshot(), p.cfg.Crossover)
	if err != nil {
		return nil, fmt.Errorf("failed to detect crossovers: %w", err)
	}
	metrics.CrossoverScanDuration.Observe(p.cfg.Clock.Since(scanStart).Seconds())
	for _, o := range res.Overlaps {
		scope := "cross"
		if o.Within() {
			scope = "within"
		}
		metrics.OverlapsFoundTotal.WithLabelValues(scope).Inc()
	}
	res.Crossovers = crossover.Classify(res.Overlaps, code.Code, p.cfg.Policy)

	rangeFlags := res.Build.CheckBounds()
	res.Flags = res.Build.ParseFlags().Union(rangeFlags)
	res.FlagText, err = flags.Encode(res.Flags)
	if err != nil {
		return nil, fmt.Errorf("failed to encode flags: %w", err)
	}

	res.Check = in.Check
	if res.Check == nil {
		res.Check = DeriveCheckResult(res.Build, rangeFlags, len(in.Rows), p.cfg.Clock.Now())
	}

	ev := qcstatus.Evaluation{
		Check:              res.Check,
		MetadataAcceptable: res.MetadataAcceptable,
		Crossovers:         res.Crossovers,
	}
	if st != nil {
		res.Suggested = p.cfg.Engine.Evaluate(st, ev)
	} else {
		res.Suggested = p.cfg.Engine.Evaluate(qcstatus.NewStatus(code.Code, p.cfg.Clock.Now()), ev)
	}

	log.Info("pipeline: dataset validated",
		"records", len(res.Build.Records),
		"errors", len(res.Build.Errors),
		"flags", res.Flags.Len(),
		"overlaps", len(res.Overlaps),
		"crossovers", res.Crossovers.String(),
		"metadata_acceptable", res.MetadataAcceptable,
		"check", res.Check.Outcome.String(),
		"suggested", res.Suggested.String())
	return res, nil
}

// Register makes a validated dataset's samples visible to later runs.
func (p *Pipeline) Register(res *Result) {
	p.cfg.Registry.Put(res.Expocode.Code, res.Samples)
}

func mergeMetadata(code expocode.Expocode, docs []*metadata.Document) (*metadata.Document, error) {
	if len(docs) == 0 {
		return nil, errors.New("no metadata documents")
	}
	merged, err := metadata.MergeAll(docs...)
	if err != nil {
		return nil, err
	}
	mc, err := expocode.Normalize(merged.Value(metadata.FieldExpocode))
	if err != nil {
		return merged, err
	}
	if mc.Code != code.Code {
		e := dserror.New(dserror.KindIdentifierMismatch, "metadata describes %s, not %s", mc.Code, code.Code)
		e.Column = metadata.FieldExpocode
		return merged, e
	}
	return merged, nil
}

// DeriveCheckResult summarizes a build as a check result when no external checker ran. The check
// fails when a whole column was rejected or no row survived. Rows rejected for their shape count
// as error rows; rows with unparsable cells or out-of-range values count as warning rows.
func DeriveCheckResult(build *record.BuildResult, rangeFlags flags.Set, totalRows int, now time.Time) *qcstatus.CheckResult {
	errorRows := make(map[int]bool)
	warningRows := make(map[int]bool)
	for _, e := range build.Errors {
		switch {
		case e.Row == dserror.NoRow:
		case e.Kind == dserror.KindShapeMismatch:
			errorRows[e.Row] = true
		default:
			warningRows[e.Row] = true
		}
	}
	for _, row := range rangeFlags.Rows() {
		warningRows[row] = true
	}

	c := &qcstatus.CheckResult{
		ID:          uuid.NewString(),
		Rows:        totalRows,
		WarningRows: len(warningRows),
		ErrorRows:   len(errorRows),
		At:          now,
	}
	switch {
	case len(build.ColumnErrors()) > 0:
		c.Outcome = qcstatus.CheckFailed
		c.Summary = strconv.Itoa(len(build.ColumnErrors())) + " column(s) rejected"
	case len(build.Records) == 0:
		c.Outcome = qcstatus.CheckFailed
		c.Summary = "no valid rows"
	case c.WarningRows+c.ErrorRows > 0:
		c.Outcome = qcstatus.CheckPassedWithWarnings
		c.Summary = fmt.Sprintf("%d warning row(s), %d error row(s)", c.WarningRows, c.ErrorRows)
	default:
		c.Outcome = qcstatus.CheckPassed
	}
	return c
}
