package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/getsentry/sentry-go"
	"github.com/joho/godotenv"
	flag "github.com/spf13/pflag"

	"github.com/oceanco2/intake/api/config"
	"github.com/oceanco2/intake/intake/pkg/archive"
	"github.com/oceanco2/intake/intake/pkg/checkqueue"
	"github.com/oceanco2/intake/intake/pkg/qcstatus"
	"github.com/oceanco2/intake/intake/pkg/server"
	"github.com/oceanco2/intake/intake/pkg/statusstore"
	"github.com/oceanco2/intake/intake/pkg/worker"
	"github.com/oceanco2/intake/utils/pkg/logger"
)

var (
	// Set by LDFLAGS
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

const defaultListenAddr = "0.0.0.0:8081"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	verboseFlag := flag.Bool("verbose", false, "enable verbose (debug) logging")
	listenAddrFlag := flag.String("listen-addr", defaultListenAddr, "health and metrics listen address (or set LISTEN_ADDR env var)")
	memoryStoreFlag := flag.Bool("memory-store", false, "keep statuses in memory instead of PostgreSQL")

	// Check results
	checkQueueURLFlag := flag.String("check-queue-url", "", "SQS queue URL carrying check results; checks are not consumed when empty (or set CHECK_QUEUE_URL env var)")
	checkPollIntervalFlag := flag.Duration("check-poll-interval", time.Second, "pause after an empty or failed poll")

	// Archive export
	archiveBucketFlag := flag.String("archive-bucket", "", "S3 bucket for archive bundles; archived datasets are not exported when empty (or set ARCHIVE_BUCKET env var)")
	archivePrefixFlag := flag.String("archive-prefix", "archive", "key prefix for archive bundles (or set ARCHIVE_PREFIX env var)")
	archiveIntervalFlag := flag.Duration("archive-interval", 5*time.Minute, "interval between archive sweeps")
	s3EndpointFlag := flag.String("s3-endpoint", "", "custom S3 endpoint, e.g. for MinIO (or set S3_ENDPOINT env var)")

	flag.Parse()

	// A missing .env file is fine; real deployments set the environment directly.
	_ = godotenv.Load()

	log := logger.New(*verboseFlag)

	if env := os.Getenv("LISTEN_ADDR"); env != "" {
		*listenAddrFlag = env
	}
	if env := os.Getenv("CHECK_QUEUE_URL"); env != "" {
		*checkQueueURLFlag = env
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

	if dsn := os.Getenv("SENTRY_DSN"); dsn != "" {
		env := os.Getenv("SENTRY_ENVIRONMENT")
		if env == "" {
			env = "development"
		}
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:         dsn,
			Environment: env,
			Release:     version,
		}); err != nil {
			return fmt.Errorf("failed to initialize sentry: %w", err)
		}
		defer sentry.Flush(2 * time.Second)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	engine, err := qcstatus.NewEngine(qcstatus.EngineConfig{Logger: log})
	if err != nil {
		return fmt.Errorf("failed to create status engine: %w", err)
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

	workerCfg := worker.Config{
		Logger:          log,
		Store:           store,
		Engine:          engine,
		ArchiveInterval: *archiveIntervalFlag,
	}

	if *checkQueueURLFlag != "" || *archiveBucketFlag != "" {
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			return fmt.Errorf("failed to load aws config: %w", err)
		}

		if *checkQueueURLFlag != "" {
			consumer, err := checkqueue.New(checkqueue.Config{
				Logger:       log,
				Client:       sqs.NewFromConfig(awsCfg),
				QueueURL:     *checkQueueURLFlag,
				PollInterval: *checkPollIntervalFlag,
			})
			if err != nil {
				return fmt.Errorf("failed to create check consumer: %w", err)
			}
			workerCfg.Checks = consumer
			log.Info("consuming check results", "queue_url", *checkQueueURLFlag)
		}

		if *archiveBucketFlag != "" {
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
			workerCfg.Exporter = exporter
			log.Info("exporting archived datasets", "bucket", *archiveBucketFlag, "prefix", *archivePrefixFlag)
		}
	}

	srv, err := server.New(server.Config{
		ListenAddr: *listenAddrFlag,
		VersionInfo: server.VersionInfo{
			Version: version,
			Commit:  commit,
			Date:    date,
		},
		WorkerConfig: workerCfg,
	})
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	log.Info("intake: starting", "version", version, "commit", commit, "date", date)
	return srv.Run(ctx)
}
