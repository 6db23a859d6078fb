package main

import (
	"context"
	"fmt"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/joho/godotenv"
	flag "github.com/spf13/pflag"

	"github.com/oceanco2/intake/admin/internal/admin"
	"github.com/oceanco2/intake/api/config"
	"github.com/oceanco2/intake/intake/pkg/archive"
	"github.com/oceanco2/intake/intake/pkg/clickhouse"
	"github.com/oceanco2/intake/intake/pkg/statusstore"
	"github.com/oceanco2/intake/utils/pkg/logger"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	verboseFlag := flag.Bool("verbose", false, "enable verbose (debug) logging")

	// ClickHouse configuration
	clickhouseAddrFlag := flag.String("clickhouse-addr", "", "ClickHouse address (host:port) (or set CLICKHOUSE_ADDR_TCP env var)")
	clickhouseDatabaseFlag := flag.String("clickhouse-database", clickhouse.DefaultDatabase, "ClickHouse database name (or set CLICKHOUSE_DATABASE env var)")
	clickhouseUsernameFlag := flag.String("clickhouse-username", "default", "ClickHouse username (or set CLICKHOUSE_USERNAME env var)")
	clickhousePasswordFlag := flag.String("clickhouse-password", "", "ClickHouse password (or set CLICKHOUSE_PASSWORD env var)")
	clickhouseSecureFlag := flag.Bool("clickhouse-secure", false, "Enable TLS for ClickHouse Cloud (or set CLICKHOUSE_SECURE=true env var)")

	// Archive configuration
	archiveBucketFlag := flag.String("archive-bucket", "", "S3 bucket for archive bundles (or set ARCHIVE_BUCKET env var)")
	archivePrefixFlag := flag.String("archive-prefix", "archive", "key prefix for archive bundles (or set ARCHIVE_PREFIX env var)")
	s3EndpointFlag := flag.String("s3-endpoint", "", "custom S3 endpoint, e.g. for MinIO (or set S3_ENDPOINT env var)")

	// Commands
	clickhouseMigrateFlag := flag.Bool("clickhouse-migrate", false, "Run ClickHouse fact table migrations using goose")
	clickhouseMigrateStatusFlag := flag.Bool("clickhouse-migrate-status", false, "Show ClickHouse migration status")
	pgMigrateFlag := flag.Bool("pg-migrate", false, "Run PostgreSQL status store migrations (POSTGRES_* env vars)")
	pgMigrateDownFlag := flag.Bool("pg-migrate-down", false, "Roll back the last PostgreSQL migration")
	pgMigrateStatusFlag := flag.Bool("pg-migrate-status", false, "Show PostgreSQL migration status")
	resetDBFlag := flag.Bool("reset-db", false, "Drop the ClickHouse fact tables and migration history")
	statusFlag := flag.String("status", "", "Show the QC status of the given expocode")
	listFlag := flag.Bool("list", false, "List all dataset statuses")
	stateFlag := flag.String("state", "", "Limit --list to one state, e.g. accepted")
	exportArchiveFlag := flag.Bool("export-archive", false, "Export bundles for archived datasets that have none yet")
	dryRunFlag := flag.Bool("dry-run", false, "Dry run mode - show what would be done without actually executing")
	yesFlag := flag.Bool("yes", false, "Skip confirmation prompt (use with caution)")

	flag.Parse()

	_ = godotenv.Load()

	log := logger.New(*verboseFlag)
	ctx := context.Background()

	// Override flags with environment variables if set
	if env := os.Getenv("CLICKHOUSE_ADDR_TCP"); env != "" {
		*clickhouseAddrFlag = env
	}
	if env := os.Getenv("CLICKHOUSE_DATABASE"); env != "" {
		*clickhouseDatabaseFlag = env
	}
	if env := os.Getenv("CLICKHOUSE_USERNAME"); env != "" {
		*clickhouseUsernameFlag = env
	}
	if env := os.Getenv("CLICKHOUSE_PASSWORD"); env != "" {
		*clickhousePasswordFlag = env
	}
	if os.Getenv("CLICKHOUSE_SECURE") == "true" {
		*clickhouseSecureFlag = true
	}
	if env := os.Getenv("ARCHIVE_BUCKET"); env != "" {
		*archiveBucketFlag = env
	}
	if env := os.Getenv("ARCHIVE_PREFIX"); env != "" {
		*archivePrefixFlag = env
	}
	if env := os.Getenv("S3_ENDPOINT"); env != "" {
		*s3EndpointFlag = env
	}

	chCfg := clickhouse.Config{
		Logger:   log,
		Addr:     *clickhouseAddrFlag,
		Database: *clickhouseDatabaseFlag,
		Username: *clickhouseUsernameFlag,
		Password: *clickhousePasswordFlag,
		Secure:   *clickhouseSecureFlag,
	}

	// Execute commands
	if *clickhouseMigrateFlag {
		if *clickhouseAddrFlag == "" {
			return fmt.Errorf("--clickhouse-addr is required for --clickhouse-migrate")
		}
		return clickhouse.Up(ctx, log, chCfg.MigrationConfig())
	}

	if *clickhouseMigrateStatusFlag {
		if *clickhouseAddrFlag == "" {
			return fmt.Errorf("--clickhouse-addr is required for --clickhouse-migrate-status")
		}
		return clickhouse.MigrationStatus(ctx, log, chCfg.MigrationConfig())
	}

	if *resetDBFlag {
		if *clickhouseAddrFlag == "" {
			return fmt.Errorf("--clickhouse-addr is required for --reset-db")
		}
		return admin.ResetDB(ctx, log, chCfg, admin.ResetDBOptions{
			DryRun:      *dryRunFlag,
			SkipConfirm: *yesFlag,
			In:          os.Stdin,
			Out:         os.Stdout,
		})
	}

	if *pgMigrateFlag || *pgMigrateDownFlag || *pgMigrateStatusFlag {
		pgCfg, err := config.PostgresFromEnv()
		if err != nil {
			return err
		}
		switch {
		case *pgMigrateFlag:
			return admin.PgMigrateUp(ctx, log, pgCfg)
		case *pgMigrateDownFlag:
			return admin.PgMigrateDown(ctx, log, pgCfg)
		default:
			return admin.PgMigrateStatus(ctx, log, pgCfg)
		}
	}

	if *statusFlag == "" && !*listFlag && !*exportArchiveFlag {
		flag.Usage()
		return nil
	}

	pgCfg, err := config.PostgresFromEnv()
	if err != nil {
		return err
	}
	pool, err := config.ConnectPostgres(ctx, log, pgCfg)
	if err != nil {
		return err
	}
	defer pool.Close()
	store, err := statusstore.NewPostgres(statusstore.PostgresConfig{Logger: log, Pool: pool})
	if err != nil {
		return fmt.Errorf("failed to create status store: %w", err)
	}

	switch {
	case *statusFlag != "":
		return admin.ShowStatus(ctx, store, *statusFlag, os.Stdout)
	case *listFlag:
		return admin.ListStatuses(ctx, store, *stateFlag, os.Stdout)
	}

	if *archiveBucketFlag == "" {
		return fmt.Errorf("--archive-bucket is required for --export-archive")
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return fmt.Errorf("failed to load aws config: %w", err)
	}
	s3Client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if *s3EndpointFlag != "" {
			o.BaseEndpoint = aws.String(*s3EndpointFlag)
			o.UsePathStyle = true
		}
	})
	exporter, err := archive.NewExporter(archive.Config{
		Logger: log,
		Client: s3Client,
		Bucket: *archiveBucketFlag,
		Prefix: *archivePrefixFlag,
	})
	if err != nil {
		return fmt.Errorf("failed to create archive exporter: %w", err)
	}
	n, err := admin.ExportArchive(ctx, log, store, exporter)
	if err != nil {
		return err
	}
	fmt.Printf("Exported %d archive bundle(s)\n", n)
	return nil
}
