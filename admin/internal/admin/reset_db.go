package admin

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/oceanco2/intake/intake/pkg/clickhouse"
)

// ResetDBOptions controls ResetDB.
type ResetDBOptions struct {
	DryRun      bool
	SkipConfirm bool
	// In and Out carry the confirmation prompt.
	In  io.Reader
	Out io.Writer
}

// ResetDB drops the fact tables and the goose version table so migrations can be replayed.
func ResetDB(ctx context.Context, log *slog.Logger, cfg clickhouse.Config, opts ResetDBOptions) error {
	chDB, err := clickhouse.NewClient(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to connect to ClickHouse: %w", err)
	}
	defer chDB.Close()

	conn, err := chDB.Conn(ctx)
	if err != nil {
		return fmt.Errorf("failed to get connection: %w", err)
	}
	defer conn.Close()

	tableQuery := `
		SELECT name
		FROM system.tables
		WHERE database = ?
		  AND (name LIKE 'fact_%' OR name = 'goose_db_version')
		ORDER BY name
	`
	rows, err := conn.Query(ctx, tableQuery, cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to query tables: %w", err)
	}
	defer rows.Close()

	var tables []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return fmt.Errorf("failed to scan table name: %w", err)
		}
		tables = append(tables, name)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to read tables: %w", err)
	}

	if len(tables) == 0 {
		fmt.Fprintln(opts.Out, "No fact tables found")
		return nil
	}

	fmt.Fprintf(opts.Out, "WARNING: This will DROP %d table(s) from database '%s':\n\n", len(tables), cfg.Database)
	for _, table := range tables {
		fmt.Fprintf(opts.Out, "  - %s\n", table)
	}

	if opts.DryRun {
		fmt.Fprintln(opts.Out, "\n[DRY RUN] Would drop the above tables")
		return nil
	}

	if !opts.SkipConfirm {
		ok, err := confirm(opts.In, opts.Out)
		if err != nil {
			return err
		}
		if !ok {
			fmt.Fprintf(opts.Out, "\nConfirmation failed. Operation cancelled.\n")
			return nil
		}
	}

	for _, table := range tables {
		if err := conn.Exec(ctx, fmt.Sprintf("DROP TABLE IF EXISTS %s", table)); err != nil {
			return fmt.Errorf("failed to drop table %s: %w", table, err)
		}
		log.Info("admin: dropped table", "table", table)
	}

	fmt.Fprintf(opts.Out, "\nSuccessfully dropped %d table(s)\n", len(tables))
	return nil
}

// confirm asks the operator to type "yes".
func confirm(in io.Reader, out io.Writer) (bool, error) {
	fmt.Fprintf(out, "\nThis is a DESTRUCTIVE operation that cannot be undone!\n")
	fmt.Fprintf(out, "Type 'yes' to confirm: ")

	response, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && err != io.EOF {
		return false, fmt.Errorf("failed to read confirmation: %w", err)
	}
	return strings.TrimSpace(strings.ToLower(response)) == "yes", nil
}
