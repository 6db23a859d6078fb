package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/joho/godotenv"
	flag "github.com/spf13/pflag"

	"github.com/oceanco2/intake/api/config"
	"github.com/oceanco2/intake/api/handlers"
	"github.com/oceanco2/intake/intake/pkg/catalog"
	"github.com/oceanco2/intake/intake/pkg/clickhouse"
	"github.com/oceanco2/intake/intake/pkg/factstore"
	"github.com/oceanco2/intake/intake/pkg/pipeline"
	"github.com/oceanco2/intake/intake/pkg/qcstatus"
	"github.com/oceanco2/intake/intake/pkg/statusstore"
	"github.com/oceanco2/intake/utils/pkg/logger"
)

var (
	// Set by LDFLAGS
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

const defaultListenAddr = "0.0.0.0:8080"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	verboseFlag := flag.Bool("verbose", false, "enable verbose (debug) logging")
	listenAddrFlag := flag.String("listen-addr", defaultListenAddr, "HTTP listen address (or set LISTEN_ADDR env var)")
	catalogFlag := flag.String("catalog", "", "path to a YAML column catalog; the built-in catalog is used when empty (or set CATALOG_PATH env var)")
	allowedOriginsFlag := flag.String("allowed-origins", "*", "comma-separated CORS origins (or set ALLOWED_ORIGINS env var)")
	shutdownTimeoutFlag := flag.Duration("shutdown-timeout", 30*time.Second, "maximum time to wait for in-flight requests during shutdown")
	memoryStoreFlag := flag.Bool("memory-store", false, "keep statuses in memory instead of PostgreSQL")

	// ClickHouse configuration
	clickhouseAddrFlag := flag.String("clickhouse-addr", "", "ClickHouse address (host:port); run history is disabled when empty (or set CLICKHOUSE_ADDR_TCP env var)")
	clickhouseDatabaseFlag := flag.String("clickhouse-database", clickhouse.DefaultDatabase, "ClickHouse database name (or set CLICKHOUSE_DATABASE env var)")
	clickhouseUsernameFlag := flag.String("clickhouse-username", "default", "ClickHouse username (or set CLICKHOUSE_USERNAME env var)")
	clickhousePasswordFlag := flag.String("clickhouse-password", "", "ClickHouse password (or set CLICKHOUSE_PASSWORD env var)")
	clickhouseSecureFlag := flag.Bool("clickhouse-secure", false, "Enable TLS for ClickHouse Cloud (or set CLICKHOUSE_SECURE=true env var)")

	flag.Parse()

	// A missing .env file is fine; real deployments set the environment directly.
	_ = godotenv.Load()

	log := logger.New(*verboseFlag)

	if env := os.Getenv("LISTEN_ADDR"); env != "" {
		*listenAddrFlag = env
	}
	if env := os.Getenv("CATALOG_PATH"); env != "" {
		*catalogFlag = env
	}
	if env := os.Getenv("ALLOWED_ORIGINS"); env != "" {
		*allowedOriginsFlag = env
	}
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

	if dsn := os.Getenv("SENTRY_DSN"); dsn != "" {
		env := os.Getenv("SENTRY_ENVIRONMENT")
		if env == "" {
			env = "development"
		}
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:              dsn,
			Environment:      env,
			Release:          version,
			EnableTracing:    true,
			TracesSampleRate: 0.1,
		}); err != nil {
			return fmt.Errorf("failed to initialize sentry: %w", err)
		}
		defer sentry.Flush(2 * time.Second)
		log.Info("sentry initialized", "environment", env)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cat, err := loadCatalog(log, *catalogFlag)
	if err != nil {
		return err
	}

	engine, err := qcstatus.NewEngine(qcstatus.EngineConfig{Logger: log})
	if err != nil {
		return fmt.Errorf("failed to create status engine: %w", err)
	}
	p, err := pipeline.New(pipeline.Config{
		Logger:  log,
		Catalog: cat,
		Engine:  engine,
	})
	if err != nil {
		return fmt.Errorf("failed to create pipeline: %w", err)
	}

	var store statusstore.Store
	if *memoryStoreFlag {
		log.Warn("using in-memory status store; statuses are lost on restart")
		store = statusstore.NewMemory(nil)
	} else {
		pgCfg, err := config.PostgresFromEnv()
		if err != nil {
			return err
		}
		pool, err := config.ConnectPostgres(ctx, log, pgCfg)
		if err != nil {
			return err
		}
		defer pool.Close()
		store, err = statusstore.NewPostgres(statusstore.PostgresConfig{Logger: log, Pool: pool})
		if err != nil {
			return fmt.Errorf("failed to create status store: %w", err)
		}
	}

	apiCfg := handlers.Config{
		Logger:         log,
		Pipeline:       p,
		Engine:         engine,
		Store:          store,
		AllowedOrigins: splitList(*allowedOriginsFlag),
		VersionInfo:    handlers.VersionInfo{Version: version, Commit: commit, Date: date},
	}

	if *clickhouseAddrFlag != "" {
		chClient, err := clickhouse.NewClient(ctx, clickhouse.Config{
			Logger:   log,
			Addr:     *clickhouseAddrFlag,
			Database: *clickhouseDatabaseFlag,
			Username: *clickhouseUsernameFlag,
			Password: *clickhousePasswordFlag,
			Secure:   *clickhouseSecureFlag,
		})
		if err != nil {
			return fmt.Errorf("failed to create clickhouse client: %w", err)
		}
		defer chClient.Close()
		history, err := factstore.New(factstore.Config{Logger: log, Client: chClient})
		if err != nil {
			return fmt.Errorf("failed to create fact store: %w", err)
		}
		apiCfg.History = history
	} else {
		log.Info("clickhouse not configured; run history is disabled")
	}

	api, err := handlers.New(apiCfg)
	if err != nil {
		return fmt.Errorf("failed to create api: %w", err)
	}
	defer api.Close()

	srv := &http.Server{
		Addr:              *listenAddrFlag,
		Handler:           api.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      120 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20, // 1MB
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info("api: listening", "address", srv.Addr, "version", version, "commit", commit)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("api: shutting down", "timeout", *shutdownTimeoutFlag)
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), *shutdownTimeoutFlag)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down http server: %w", err)
	}
	return nil
}

func loadCatalog(log *slog.Logger, path string) (*catalog.Catalog, error) {
	if path == "" {
		return catalog.Default(), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open catalog: %w", err)
	}
	defer f.Close()
	cat, err := catalog.LoadYAML(f)
	if err != nil {
		return nil, fmt.Errorf("failed to load catalog %s: %w", path, err)
	}
	log.Info("loaded column catalog", "path", path, "columns", cat.Len())
	return cat, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
