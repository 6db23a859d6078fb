// Package archive exports the manifest of an archived dataset to S3.
package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/jonboulle/clockwork"

	"github.com/oceanco2/intake/intake/pkg/metrics"
	"github.com/oceanco2/intake/intake/pkg/qcstatus"
	"github.com/oceanco2/intake/utils/pkg/retry"
)

var ErrNotArchived = errors.New("dataset is not archived")

// S3Client is the subset of the S3 API the exporter uses.
type S3Client interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
}

type Config struct {
	Logger *slog.Logger
	Client S3Client
	Bucket string
	// Prefix is prepended to every key, without a trailing slash.
	Prefix string
	Clock  clockwork.Clock
	Retry  retry.Config
}

func (cfg *Config) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.Client == nil {
		return errors.New("s3 client is required")
	}
	if cfg.Bucket == "" {
		return errors.New("bucket is required")
	}
	cfg.Prefix = strings.Trim(cfg.Prefix, "/")
	if cfg.Prefix == "" {
		cfg.Prefix = "archive"
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.Retry == (retry.Config{}) {
		cfg.Retry = retry.DefaultConfig()
	}
	return nil
}

// Bundle is the archive manifest of one dataset at one status version.
type Bundle struct {
	Expocode    string                  `json:"expocode"`
	Version     int64                   `json:"version"`
	Grade       string                  `json:"grade"`
	ArchivePlan string                  `json:"archive_plan"`
	Status      *qcstatus.Status        `json:"status"`
	Checks      []*qcstatus.CheckResult `json:"checks"`
	Metadata    map[string]string       `json:"metadata,omitempty"`
	FlagText    string                  `json:"flags,omitempty"`
	ExportedAt  time.Time               `json:"exported_at"`
}

// NewBundle builds the manifest of an archived dataset.
func NewBundle(st *qcstatus.Status, checks []*qcstatus.CheckResult) (*Bundle, error) {
	if st.Actual.State != qcstatus.StateArchived {
		return nil, fmt.Errorf("%w: %s is %s", ErrNotArchived, st.Expocode, st.Actual.String())
	}
	if checks == nil {
		checks = []*qcstatus.CheckResult{}
	}
	return &Bundle{
		Expocode:    st.Expocode,
		Version:     st.Version,
		Grade:       st.Actual.Grade.String(),
		ArchivePlan: st.ArchivePlan.String(),
		Status:      st.Clone(),
		Checks:      checks,
	}, nil
}

type Exporter struct {
	log *slog.Logger
	cfg Config
}

func NewExporter(cfg Config) (*Exporter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Exporter{
		log: cfg.Logger,
		cfg: cfg,
	}, nil
}

// Key returns the object key of a dataset's bundle at a status version.
func (e *Exporter) Key(expocode string, version int64) string {
	return fmt.Sprintf("%s/%s/v%d.json", e.cfg.Prefix, expocode, version)
}

// Exported reports whether the bundle for this status version already exists.
func (e *Exporter) Exported(ctx context.Context, expocode string, version int64) (bool, error) {
	key := e.Key(expocode, version)
	_, err := retry.DoValue(ctx, e.cfg.Retry, func() (*s3.HeadObjectOutput, error) {
		return e.cfg.Client.HeadObject(ctx, &s3.HeadObjectInput{
			Bucket: aws.String(e.cfg.Bucket),
			Key:    aws.String(key),
		})
	})
	if err == nil {
		return true, nil
	}
	var nf *s3types.NotFound
	if errors.As(err, &nf) {
		return false, nil
	}
	return false, fmt.Errorf("failed to check s3://%s/%s: %w", e.cfg.Bucket, key, err)
}

// Export writes the bundle and returns its key. Exporting the same version again overwrites
// the object with identical content apart from ExportedAt.
func (e *Exporter) Export(ctx context.Context, b *Bundle) (string, error) {
	b.ExportedAt = e.cfg.Clock.Now().UTC()
	body, err := json.MarshalIndent(b, "", "  ")
	if err != nil {
		metrics.ArchiveExportsTotal.WithLabelValues("error").Inc()
		return "", fmt.Errorf("failed to encode bundle: %w", err)
	}

	key := e.Key(b.Expocode, b.Version)
	tags := fmt.Sprintf("Expocode=%s&Grade=%s&Component=%s",
		url.QueryEscape(b.Expocode),
		url.QueryEscape(b.Grade),
		url.QueryEscape("intake-archive"),
	)
	err = retry.Do(ctx, e.cfg.Retry, func() error {
		_, err := e.cfg.Client.PutObject(ctx, &s3.PutObjectInput{
			Bucket:      aws.String(e.cfg.Bucket),
			Key:         aws.String(key),
			Body:        bytes.NewReader(body),
			ContentType: aws.String("application/json"),
			Tagging:     aws.String(tags),
		})
		return err
	})
	if err != nil {
		metrics.ArchiveExportsTotal.WithLabelValues("error").Inc()
		return "", fmt.Errorf("failed to upload s3://%s/%s: %w", e.cfg.Bucket, key, err)
	}
	metrics.ArchiveExportsTotal.WithLabelValues("success").Inc()

	e.log.Info("archive: bundle exported",
		"expocode", b.Expocode,
		"version", b.Version,
		"bucket", e.cfg.Bucket,
		"key", key)
	return key, nil
}
