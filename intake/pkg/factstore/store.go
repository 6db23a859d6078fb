// Package factstore keeps the per-run QC flag and crossover history in ClickHouse.
package factstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/oceanco2/intake/intake/pkg/clickhouse"
	"github.com/oceanco2/intake/intake/pkg/clickhouse/dataset"
	"github.com/oceanco2/intake/intake/pkg/metrics"
	"github.com/oceanco2/intake/intake/pkg/pipeline"
	"github.com/oceanco2/intake/utils/pkg/retry"
)

const storeName = "clickhouse"

type Config struct {
	Logger *slog.Logger
	Client clickhouse.Client
	Clock  clockwork.Clock
	Retry  retry.Config
}

func (cfg *Config) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.Client == nil {
		return errors.New("clickhouse client is required")
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.Retry == (retry.Config{}) {
		cfg.Retry = retry.DefaultConfig()
	}
	return nil
}

type Store struct {
	log        *slog.Logger
	cfg        Config
	flags      *dataset.FactDataset[FlagFact]
	crossovers *dataset.FactDataset[CrossoverFact]
}

func New(cfg Config) (*Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	flagsDS, err := dataset.NewFactDataset[FlagFact](cfg.Logger, flagSchema{})
	if err != nil {
		return nil, fmt.Errorf("failed to create flag dataset: %w", err)
	}
	crossoversDS, err := dataset.NewFactDataset[CrossoverFact](cfg.Logger, crossoverSchema{})
	if err != nil {
		return nil, fmt.Errorf("failed to create crossover dataset: %w", err)
	}
	return &Store{
		log:        cfg.Logger,
		cfg:        cfg,
		flags:      flagsDS,
		crossovers: crossoversDS,
	}, nil
}

// WriteResult records the flags and crossovers of one validation run.
func (s *Store) WriteResult(ctx context.Context, res *pipeline.Result, eventTS time.Time) error {
	now := s.cfg.Clock.Now().UTC()
	flagRows := FlagFacts(res, eventTS.UTC(), now)
	crossoverRows := CrossoverFacts(res.RunID, res.Overlaps, eventTS.UTC(), now)

	wctx := clickhouse.ContextWithSyncInsert(ctx)
	err := retry.Do(ctx, s.cfg.Retry, func() error {
		conn, err := s.cfg.Client.Conn(ctx)
		if err != nil {
			return fmt.Errorf("failed to get connection: %w", err)
		}
		defer conn.Close()

		start := time.Now()
		if err := s.flags.WriteBatch(wctx, conn, flagRows); err != nil {
			countQuery(err)
			return fmt.Errorf("failed to write flags: %w", err)
		}
		if err := s.crossovers.WriteBatch(wctx, conn, crossoverRows); err != nil {
			countQuery(err)
			return fmt.Errorf("failed to write crossovers: %w", err)
		}
		countQuery(nil)
		metrics.DatabaseQueryDuration.WithLabelValues(storeName).Observe(time.Since(start).Seconds())
		return nil
	})
	if err != nil {
		return err
	}

	s.log.Debug("factstore: run recorded",
		"expocode", res.Expocode.Code,
		"run_id", res.RunID,
		"flags", len(flagRows),
		"pairs", len(crossoverRows))
	return nil
}

// Flags returns the flags recorded for a run.
func (s *Store) Flags(ctx context.Context, expocode, runID string) ([]FlagFact, error) {
	return query(ctx, s, s.flags, dataset.GetRowsOptions{
		WhereClause: "expocode = ? AND run_id = ?",
		WhereArgs:   []any{expocode, runID},
		OrderBy:     "row_idx, column_idx, severity, woce_value, flag_name",
	})
}

// Crossovers returns the most recent matched pairs that involve the dataset on either side.
func (s *Store) Crossovers(ctx context.Context, expocode string, limit int) ([]CrossoverFact, error) {
	return query(ctx, s, s.crossovers, dataset.GetRowsOptions{
		WhereClause: "(dataset_a = ? OR dataset_b = ?)",
		WhereArgs:   []any{expocode, expocode},
		OrderBy:     "event_ts DESC, dataset_a, dataset_b, row_a, row_b",
		Limit:       limit,
	})
}

func query[T any](ctx context.Context, s *Store, ds *dataset.FactDataset[T], opts dataset.GetRowsOptions) ([]T, error) {
	conn, err := s.cfg.Client.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get connection: %w", err)
	}
	defer conn.Close()

	start := time.Now()
	out, err := ds.GetRows(clickhouse.ContextWithSyncInsert(ctx), conn, opts)
	countQuery(err)
	metrics.DatabaseQueryDuration.WithLabelValues(storeName).Observe(time.Since(start).Seconds())
	return out, err
}

func countQuery(err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	metrics.DatabaseQueriesTotal.WithLabelValues(storeName, status).Inc()
}
