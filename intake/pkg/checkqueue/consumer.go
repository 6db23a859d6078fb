// Package checkqueue consumes automated data check results from an SQS queue.
package checkqueue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"github.com/oceanco2/intake/intake/pkg/expocode"
	"github.com/oceanco2/intake/intake/pkg/metrics"
	"github.com/oceanco2/intake/intake/pkg/qcstatus"
	"github.com/oceanco2/intake/utils/pkg/retry"
)

// SQS limits.
const (
	maxMessages       = 10
	maxWaitSeconds    = 20
	defaultVisibility = 300
)

// SQSClient is the subset of the SQS API the consumer uses.
type SQSClient interface {
	ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
}

type Config struct {
	Logger   *slog.Logger
	Client   SQSClient
	QueueURL string

	MaxMessages       int32
	WaitTimeSeconds   int32
	VisibilityTimeout int32
	// PollInterval is the pause after an empty or failed poll.
	PollInterval time.Duration
	Retry        retry.Config
}

func (cfg *Config) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.Client == nil {
		return errors.New("sqs client is required")
	}
	if cfg.QueueURL == "" {
		return errors.New("queue url is required")
	}
	if cfg.MaxMessages <= 0 || cfg.MaxMessages > maxMessages {
		cfg.MaxMessages = maxMessages
	}
	if cfg.WaitTimeSeconds <= 0 || cfg.WaitTimeSeconds > maxWaitSeconds {
		cfg.WaitTimeSeconds = maxWaitSeconds
	}
	if cfg.VisibilityTimeout <= 0 {
		cfg.VisibilityTimeout = defaultVisibility
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	if cfg.Retry == (retry.Config{}) {
		cfg.Retry = retry.DefaultConfig()
	}
	return nil
}

// Message is one check result for one dataset.
type Message struct {
	MessageID     string                `json:"-"`
	ReceiptHandle string                `json:"-"`
	Expocode      string                `json:"expocode"`
	Check         *qcstatus.CheckResult `json:"check"`
}

// Handler processes one message. A message is deleted from the queue only when its handler
// returns nil; otherwise it becomes visible again after the visibility timeout.
type Handler func(ctx context.Context, msg *Message) error

type Consumer struct {
	log *slog.Logger
	cfg Config
}

func New(cfg Config) (*Consumer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Consumer{
		log: cfg.Logger,
		cfg: cfg,
	}, nil
}

// DecodeMessage parses a message body. The expocode is normalized and the check result must
// carry an id and a known outcome.
func DecodeMessage(body string) (*Message, error) {
	var msg Message
	dec := json.NewDecoder(strings.NewReader(body))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&msg); err != nil {
		return nil, fmt.Errorf("failed to decode check message: %w", err)
	}
	code, err := expocode.Normalize(msg.Expocode)
	if err != nil {
		return nil, err
	}
	msg.Expocode = code.Code
	if msg.Check == nil {
		return nil, errors.New("check message has no check result")
	}
	if msg.Check.ID == "" {
		return nil, errors.New("check result has no id")
	}
	if msg.Check.Rows < 0 || msg.Check.WarningRows < 0 || msg.Check.ErrorRows < 0 {
		return nil, errors.New("check result has negative row counts")
	}
	return &msg, nil
}

// Poll receives up to MaxMessages messages. Messages that cannot be decoded are deleted and
// counted as invalid, since redelivery cannot fix them.
func (c *Consumer) Poll(ctx context.Context) ([]*Message, error) {
	out, err := retry.DoValue(ctx, c.cfg.Retry, func() (*sqs.ReceiveMessageOutput, error) {
		return c.cfg.Client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
			QueueUrl:            aws.String(c.cfg.QueueURL),
			MaxNumberOfMessages: c.cfg.MaxMessages,
			WaitTimeSeconds:     c.cfg.WaitTimeSeconds,
			VisibilityTimeout:   c.cfg.VisibilityTimeout,
		})
	})
	if err != nil {
		metrics.CheckMessagesTotal.WithLabelValues("receive_error").Inc()
		return nil, fmt.Errorf("failed to poll check queue: %w", err)
	}

	msgs := make([]*Message, 0, len(out.Messages))
	for _, m := range out.Messages {
		msg, err := DecodeMessage(aws.ToString(m.Body))
		if err != nil {
			metrics.CheckMessagesTotal.WithLabelValues("invalid").Inc()
			c.log.Warn("checkqueue: dropping invalid message",
				"message_id", aws.ToString(m.MessageId),
				"error", err)
			if err := c.delete(ctx, aws.ToString(m.ReceiptHandle)); err != nil {
				c.log.Warn("checkqueue: failed to delete invalid message",
					"message_id", aws.ToString(m.MessageId),
					"error", err)
			}
			continue
		}
		msg.MessageID = aws.ToString(m.MessageId)
		msg.ReceiptHandle = aws.ToString(m.ReceiptHandle)
		msgs = append(msgs, msg)
	}
	return msgs, nil
}

// Ack deletes a processed message.
func (c *Consumer) Ack(ctx context.Context, msg *Message) error {
	if err := c.delete(ctx, msg.ReceiptHandle); err != nil {
		return fmt.Errorf("failed to acknowledge message %s: %w", msg.MessageID, err)
	}
	return nil
}

func (c *Consumer) delete(ctx context.Context, receiptHandle string) error {
	return retry.Do(ctx, c.cfg.Retry, func() error {
		_, err := c.cfg.Client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
			QueueUrl:      aws.String(c.cfg.QueueURL),
			ReceiptHandle: aws.String(receiptHandle),
		})
		return err
	})
}

// Run polls until ctx is cancelled, handing each message to handle.
func (c *Consumer) Run(ctx context.Context, handle Handler) error {
	c.log.Info("checkqueue: consumer started", "queue", c.cfg.QueueURL)
	for {
		if ctx.Err() != nil {
			c.log.Info("checkqueue: consumer stopped")
			return nil
		}

		n, err := c.PollOnce(ctx, handle)
		if err != nil && ctx.Err() == nil {
			c.log.Error("checkqueue: poll failed", "error", err)
		}
		if err != nil || n == 0 {
			select {
			case <-ctx.Done():
			case <-time.After(c.cfg.PollInterval):
			}
		}
	}
}

// PollOnce receives one batch and handles it, returning the number of messages handled.
func (c *Consumer) PollOnce(ctx context.Context, handle Handler) (int, error) {
	msgs, err := c.Poll(ctx)
	if err != nil {
		return 0, err
	}
	handled := 0
	for _, msg := range msgs {
		if err := handle(ctx, msg); err != nil {
			metrics.CheckMessagesTotal.WithLabelValues("failed").Inc()
			c.log.Warn("checkqueue: handler failed, message will be redelivered",
				"message_id", msg.MessageID,
				"expocode", msg.Expocode,
				"error", err)
			continue
		}
		if err := c.Ack(ctx, msg); err != nil {
			metrics.CheckMessagesTotal.WithLabelValues("ack_error").Inc()
			c.log.Warn("checkqueue: ack failed", "message_id", msg.MessageID, "error", err)
			continue
		}
		metrics.CheckMessagesTotal.WithLabelValues("success").Inc()
		handled++
	}
	return handled, nil
}
