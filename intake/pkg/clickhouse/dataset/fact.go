// Package dataset writes and reads append-only fact tables whose rows map onto Go structs
// through `ch` struct tags.
package dataset

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/oceanco2/intake/intake/pkg/clickhouse"
)

// FactSchema defines the structure of a fact table.
type FactSchema interface {
	// Name returns the dataset name; the table is fact_<name>.
	Name() string
	// Columns returns "name:type" definitions for every column, in table order.
	Columns() []string
	// TimeColumn returns the column used for time filters and default ordering, or "".
	TimeColumn() string
}

// FactDataset is a fact table whose rows are values of T.
type FactDataset[T any] struct {
	log    *slog.Logger
	schema FactSchema
	cols   []string
}

func NewFactDataset[T any](log *slog.Logger, schema FactSchema) (*FactDataset[T], error) {
	if log == nil {
		return nil, errors.New("logger is required")
	}
	cols, err := extractColumnNames(schema.Columns())
	if err != nil {
		return nil, fmt.Errorf("failed to extract columns: %w", err)
	}
	if len(cols) == 0 {
		return nil, fmt.Errorf("fact schema %q has no columns", schema.Name())
	}
	return &FactDataset[T]{
		log:    log,
		schema: schema,
		cols:   cols,
	}, nil
}

func (f *FactDataset[T]) TableName() string {
	return "fact_" + f.schema.Name()
}

func (f *FactDataset[T]) ColumnNames() []string {
	return f.cols
}

// WriteBatch inserts rows in one batch. Fields are matched to columns by their `ch` tags.
func (f *FactDataset[T]) WriteBatch(ctx context.Context, conn clickhouse.Connection, rows []T) error {
	if len(rows) == 0 {
		return nil
	}

	f.log.Debug("dataset: writing fact batch", "table", f.TableName(), "count", len(rows))

	query := fmt.Sprintf("INSERT INTO %s (%s)", f.TableName(), strings.Join(f.cols, ", "))
	batch, err := conn.PrepareBatch(ctx, query)
	if err != nil {
		return fmt.Errorf("failed to prepare batch: %w", err)
	}
	defer batch.Close()

	for i := range rows {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("context cancelled during batch insert: %w", err)
		}
		if err := batch.AppendStruct(&rows[i]); err != nil {
			return fmt.Errorf("failed to append row %d: %w", i, err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("failed to send batch: %w", err)
	}

	f.log.Debug("dataset: wrote fact batch", "table", f.TableName(), "count", len(rows))
	return nil
}

// GetRowsOptions filters fact rows.
type GetRowsOptions struct {
	// StartTime and EndTime bound the time column, inclusive. Ignored without a time column.
	StartTime *time.Time
	EndTime   *time.Time

	// WhereClause is an extra condition without the WHERE keyword, with ? placeholders
	// bound to WhereArgs.
	WhereClause string
	WhereArgs   []any

	// OrderBy defaults to the time column descending.
	OrderBy string
	// Limit of 0 returns every row.
	Limit int
}

// GetRows reads rows matching opts.
func (f *FactDataset[T]) GetRows(ctx context.Context, conn clickhouse.Connection, opts GetRowsOptions) ([]T, error) {
	query, args := f.buildGetRowsQuery(opts)
	return f.Query(ctx, conn, query, args)
}

// Query runs a raw query whose result columns match T's `ch` tags.
func (f *FactDataset[T]) Query(ctx context.Context, conn clickhouse.Connection, query string, args []any) ([]T, error) {
	rows, err := conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", f.TableName(), err)
	}
	defer rows.Close()

	out := []T{}
	for rows.Next() {
		var v T
		if err := rows.ScanStruct(&v); err != nil {
			return nil, fmt.Errorf("failed to scan %s row: %w", f.TableName(), err)
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate %s rows: %w", f.TableName(), err)
	}
	return out, nil
}

func (f *FactDataset[T]) buildGetRowsQuery(opts GetRowsOptions) (string, []any) {
	var conditions []string
	var args []any

	if tc := f.schema.TimeColumn(); tc != "" {
		if opts.StartTime != nil {
			conditions = append(conditions, tc+" >= ?")
			args = append(args, *opts.StartTime)
		}
		if opts.EndTime != nil {
			conditions = append(conditions, tc+" <= ?")
			args = append(args, *opts.EndTime)
		}
	}
	if opts.WhereClause != "" {
		conditions = append(conditions, opts.WhereClause)
		args = append(args, opts.WhereArgs...)
	}

	var b strings.Builder
	b.WriteString("SELECT ")
	b.WriteString(strings.Join(f.cols, ", "))
	b.WriteString(" FROM ")
	b.WriteString(f.TableName())
	if len(conditions) > 0 {
		b.WriteString(" WHERE ")
		b.WriteString(strings.Join(conditions, " AND "))
	}
	switch {
	case opts.OrderBy != "":
		b.WriteString(" ORDER BY ")
		b.WriteString(opts.OrderBy)
	case f.schema.TimeColumn() != "":
		b.WriteString(" ORDER BY ")
		b.WriteString(f.schema.TimeColumn())
		b.WriteString(" DESC")
	}
	if opts.Limit > 0 {
		fmt.Fprintf(&b, " LIMIT %d", opts.Limit)
	}
	return b.String(), args
}

func extractColumnNames(colDefs []string) ([]string, error) {
	names := make([]string, 0, len(colDefs))
	for _, colDef := range colDefs {
		name, _, ok := strings.Cut(colDef, ":")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid column definition %q: expected format 'name:type'", colDef)
		}
		names = append(names, name)
	}
	return names, nil
}
