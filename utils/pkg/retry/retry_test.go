package retry

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/aws/smithy-go"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"
)

func fastConfig() Config {
	return Config{MaxAttempts: 3, BaseBackoff: time.Millisecond, MaxBackoff: 5 * time.Millisecond}
}

type statusError struct{ code int }

func (e *statusError) Error() string   { return fmt.Sprintf("status %d", e.code) }
func (e *statusError) StatusCode() int { return e.code }

func TestIntake_Retry_DoValue(t *testing.T) {
	t.Parallel()

	t.Run("serialization failure is retried until the upsert commits", func(t *testing.T) {
		t.Parallel()

		attempts := 0
		version, err := DoValue(context.Background(), fastConfig(), func() (int64, error) {
			attempts++
			if attempts < 3 {
				return 0, fmt.Errorf("upsert 33RO20050301: %w", &pgconn.PgError{Code: "40001"})
			}
			return 7, nil
		})
		require.NoError(t, err)
		require.Equal(t, int64(7), version)
		require.Equal(t, 3, attempts)
	})

	t.Run("constraint violation stops at once", func(t *testing.T) {
		t.Parallel()

		attempts := 0
		pgErr := &pgconn.PgError{Code: "23505", Message: "duplicate key"}
		version, err := DoValue(context.Background(), fastConfig(), func() (int64, error) {
			attempts++
			return 3, pgErr
		})
		require.ErrorIs(t, err, pgErr)
		require.Zero(t, version)
		require.Equal(t, 1, attempts)
	})

	t.Run("exhausted attempts wrap the last error", func(t *testing.T) {
		t.Parallel()

		throttled := &smithy.GenericAPIError{Code: "ThrottlingException", Fault: smithy.FaultServer}
		attempts := 0
		_, err := DoValue(context.Background(), fastConfig(), func() (string, error) {
			attempts++
			return "", throttled
		})
		require.Error(t, err)
		require.Contains(t, err.Error(), "failed after 3 attempts")
		var apiErr smithy.APIError
		require.ErrorAs(t, err, &apiErr)
		require.Equal(t, "ThrottlingException", apiErr.ErrorCode())
		require.Equal(t, 3, attempts)
	})

	t.Run("cancellation during backoff", func(t *testing.T) {
		t.Parallel()

		ctx, cancel := context.WithCancel(context.Background())
		cfg := Config{MaxAttempts: 5, BaseBackoff: time.Hour, MaxBackoff: time.Hour}
		attempts := 0
		_, err := DoValue(ctx, cfg, func() (int, error) {
			attempts++
			cancel()
			return 0, errors.New("connection refused")
		})
		require.ErrorIs(t, err, context.Canceled)
		require.Equal(t, 1, attempts)
	})
}

func TestIntake_Retry_Do(t *testing.T) {
	t.Parallel()

	t.Run("first success", func(t *testing.T) {
		t.Parallel()

		attempts := 0
		require.NoError(t, Do(context.Background(), fastConfig(), func() error {
			attempts++
			return nil
		}))
		require.Equal(t, 1, attempts)
	})

	t.Run("sqs receive recovers from a server fault", func(t *testing.T) {
		t.Parallel()

		attempts := 0
		require.NoError(t, Do(context.Background(), fastConfig(), func() error {
			attempts++
			if attempts == 1 {
				return &smithy.GenericAPIError{Code: "ServiceUnavailable", Fault: smithy.FaultServer}
			}
			return nil
		}))
		require.Equal(t, 2, attempts)
	})
}

func TestIntake_Retry_IsRetryable(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"canceled", context.Canceled, false},
		{"deadline wrapped", fmt.Errorf("get status: %w", context.DeadlineExceeded), false},

		{"pg serialization failure", &pgconn.PgError{Code: "40001"}, true},
		{"pg deadlock", &pgconn.PgError{Code: "40P01"}, true},
		{"pg starting up", &pgconn.PgError{Code: "57P03"}, true},
		{"pg too many connections", &pgconn.PgError{Code: "53300"}, true},
		{"pg connection exception class", &pgconn.PgError{Code: "08006"}, true},
		{"pg unique violation", &pgconn.PgError{Code: "23505"}, false},
		{"pg undefined table", &pgconn.PgError{Code: "42P01", Message: "relation does not exist"}, false},

		{"s3 slow down", &smithy.GenericAPIError{Code: "SlowDown", Fault: smithy.FaultServer}, true},
		{"sqs throttled", &smithy.GenericAPIError{Code: "RequestThrottled", Fault: smithy.FaultClient}, true},
		{"s3 no such bucket", &smithy.GenericAPIError{Code: "NoSuchBucket", Fault: smithy.FaultClient}, false},
		{"sqs queue missing", &smithy.GenericAPIError{Code: "AWS.SimpleQueueService.NonExistentQueue", Fault: smithy.FaultClient}, false},

		{"dial timeout", &net.OpError{Op: "dial", Err: timeoutError{}}, true},
		{"clickhouse 503", &statusError{code: http.StatusServiceUnavailable}, true},
		{"clickhouse 429", &statusError{code: http.StatusTooManyRequests}, true},
		{"clickhouse 400", &statusError{code: http.StatusBadRequest}, false},

		{"connection reset text", errors.New("read tcp: connection reset by peer"), true},
		{"invalid expocode", errors.New("invalid expocode \"nope\""), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tt.want, IsRetryable(tt.err))
		})
	}
}

type timeoutError struct{}

func (timeoutError) Error() string   { return "i/o timeout" }
func (timeoutError) Timeout() bool   { return true }
func (timeoutError) Temporary() bool { return true }

func TestIntake_Retry_CalculateBackoff(t *testing.T) {
	t.Parallel()

	base, hi := 100*time.Millisecond, time.Second
	for attempt, full := range []time.Duration{100 * time.Millisecond, 200 * time.Millisecond, 400 * time.Millisecond, 800 * time.Millisecond, time.Second, time.Second} {
		for range 20 {
			got := calculateBackoff(base, hi, attempt)
			require.GreaterOrEqual(t, got, full/2, "attempt %d", attempt)
			require.Less(t, got, full, "attempt %d", attempt)
		}
	}
}
