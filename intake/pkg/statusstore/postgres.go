package statusstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jonboulle/clockwork"

	"github.com/oceanco2/intake/intake/pkg/metrics"
	"github.com/oceanco2/intake/intake/pkg/qcstatus"
	"github.com/oceanco2/intake/utils/pkg/retry"
)

const storeName = "postgres"

type PostgresConfig struct {
	Logger *slog.Logger
	Pool   *pgxpool.Pool
	Clock  clockwork.Clock
	Retry  retry.Config
}

func (cfg *PostgresConfig) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.Pool == nil {
		return errors.New("pool is required")
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.Retry == (retry.Config{}) {
		cfg.Retry = retry.DefaultConfig()
	}
	return nil
}

// Postgres is a Store backed by the dataset_status table. Each change runs in its own
// transaction holding the dataset's row lock.
type Postgres struct {
	log *slog.Logger
	cfg PostgresConfig
}

func NewPostgres(cfg PostgresConfig) (*Postgres, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Postgres{
		log: cfg.Logger,
		cfg: cfg,
	}, nil
}

func (p *Postgres) Pool() *pgxpool.Pool {
	return p.cfg.Pool
}

func (p *Postgres) Get(ctx context.Context, expocode string) (*qcstatus.Status, error) {
	defer observe(time.Now())
	var raw []byte
	err := p.cfg.Pool.QueryRow(ctx, `SELECT status FROM dataset_status WHERE expocode = $1`, expocode).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		countQuery(nil)
		return nil, ErrNotFound
	}
	countQuery(err)
	if err != nil {
		return nil, fmt.Errorf("failed to get status: %w", err)
	}
	return decodeStatus(raw)
}

func (p *Postgres) List(ctx context.Context) ([]*qcstatus.Status, error) {
	defer observe(time.Now())
	rows, err := p.cfg.Pool.Query(ctx, `SELECT status FROM dataset_status ORDER BY expocode`)
	countQuery(err)
	if err != nil {
		return nil, fmt.Errorf("failed to list statuses: %w", err)
	}
	defer rows.Close()

	out := []*qcstatus.Status{}
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("failed to scan status: %w", err)
		}
		st, err := decodeStatus(raw)
		if err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate statuses: %w", err)
	}
	return out, nil
}

func (p *Postgres) Update(ctx context.Context, expocode string, fn UpdateFunc) (*qcstatus.Status, error) {
	return p.update(ctx, expocode, false, fn)
}

func (p *Postgres) Upsert(ctx context.Context, expocode string, fn UpdateFunc) (*qcstatus.Status, error) {
	return p.update(ctx, expocode, true, fn)
}

func (p *Postgres) Checks(ctx context.Context, expocode string, limit int) ([]*qcstatus.CheckResult, error) {
	defer observe(time.Now())
	if limit <= 0 {
		limit = 100
	}
	rows, err := p.cfg.Pool.Query(ctx, `
		SELECT id, outcome, rows_total, warning_rows, error_rows, summary, checked_at
		FROM check_results
		WHERE expocode = $1
		ORDER BY checked_at DESC, id ASC
		LIMIT $2
	`, expocode, limit)
	countQuery(err)
	if err != nil {
		return nil, fmt.Errorf("failed to list check results: %w", err)
	}
	defer rows.Close()

	out := []*qcstatus.CheckResult{}
	for rows.Next() {
		var (
			c       qcstatus.CheckResult
			outcome string
		)
		if err := rows.Scan(&c.ID, &outcome, &c.Rows, &c.WarningRows, &c.ErrorRows, &c.Summary, &c.At); err != nil {
			return nil, fmt.Errorf("failed to scan check result: %w", err)
		}
		if err := c.Outcome.UnmarshalText([]byte(outcome)); err != nil {
			return nil, err
		}
		c.At = c.At.UTC()
		out = append(out, &c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate check results: %w", err)
	}
	return out, nil
}

// update retries the whole transaction on serialization failures and dropped connections.
// fn may therefore run more than once and must only change st.
func (p *Postgres) update(ctx context.Context, expocode string, create bool, fn UpdateFunc) (*qcstatus.Status, error) {
	return retry.DoValue(ctx, p.cfg.Retry, func() (*qcstatus.Status, error) {
		return p.updateOnce(ctx, expocode, create, fn)
	})
}

func (p *Postgres) updateOnce(ctx context.Context, expocode string, create bool, fn UpdateFunc) (*qcstatus.Status, error) {
	defer observe(time.Now())
	tx, err := p.cfg.Pool.Begin(ctx)
	countQuery(err)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if create {
		fresh := qcstatus.NewStatus(expocode, p.cfg.Clock.Now())
		raw, err := json.Marshal(fresh)
		if err != nil {
			return nil, fmt.Errorf("failed to encode status: %w", err)
		}
		_, err = tx.Exec(ctx, `
			INSERT INTO dataset_status (expocode, state, flag, status, version, created_at, updated_at)
			VALUES ($1, $2, $3, $4, 0, $5, $5)
			ON CONFLICT (expocode) DO NOTHING
		`, expocode, fresh.Actual.State.String(), string(fresh.Flag()), raw, fresh.UpdatedAt)
		countQuery(err)
		if err != nil {
			return nil, fmt.Errorf("failed to create status: %w", err)
		}
	}

	var raw []byte
	err = tx.QueryRow(ctx, `SELECT status FROM dataset_status WHERE expocode = $1 FOR UPDATE`, expocode).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		countQuery(nil)
		return nil, ErrNotFound
	}
	countQuery(err)
	if err != nil {
		return nil, fmt.Errorf("failed to lock status: %w", err)
	}
	st, err := decodeStatus(raw)
	if err != nil {
		return nil, err
	}
	prevCheck := ""
	if st.LastCheck != nil {
		prevCheck = st.LastCheck.ID
	}

	if err := fn(st); err != nil {
		return nil, err
	}
	st.Expocode = expocode
	st.Version++
	st.UpdatedAt = p.cfg.Clock.Now()

	raw, err = json.Marshal(st)
	if err != nil {
		return nil, fmt.Errorf("failed to encode status: %w", err)
	}
	_, err = tx.Exec(ctx, `
		UPDATE dataset_status
		SET state = $2, flag = $3, status = $4, version = $5, updated_at = $6
		WHERE expocode = $1
	`, expocode, st.Actual.State.String(), string(st.Flag()), raw, st.Version, st.UpdatedAt)
	countQuery(err)
	if err != nil {
		return nil, fmt.Errorf("failed to update status: %w", err)
	}

	if c := st.LastCheck; c != nil && c.ID != prevCheck {
		_, err = tx.Exec(ctx, `
			INSERT INTO check_results (id, expocode, outcome, rows_total, warning_rows, error_rows, summary, checked_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			ON CONFLICT (id) DO NOTHING
		`, c.ID, expocode, c.Outcome.String(), c.Rows, c.WarningRows, c.ErrorRows, c.Summary, c.At)
		countQuery(err)
		if err != nil {
			return nil, fmt.Errorf("failed to record check result: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		countQuery(err)
		return nil, fmt.Errorf("failed to commit status: %w", err)
	}

	p.log.Debug("statusstore: status saved",
		"expocode", expocode,
		"version", st.Version,
		"actual", st.Actual.String())
	return st, nil
}

func decodeStatus(raw []byte) (*qcstatus.Status, error) {
	var st qcstatus.Status
	if err := json.Unmarshal(raw, &st); err != nil {
		return nil, fmt.Errorf("failed to decode status: %w", err)
	}
	if st.Comments == nil {
		st.Comments = []qcstatus.Comment{}
	}
	return &st, nil
}

func countQuery(err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	metrics.DatabaseQueriesTotal.WithLabelValues(storeName, status).Inc()
}

func observe(start time.Time) {
	metrics.DatabaseQueryDuration.WithLabelValues(storeName).Observe(time.Since(start).Seconds())
}
