package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"rentscore/utils"

	"github.com/segmentio/kafka-go"
)

// MessageReader is the part of kafka.Reader the sync worker uses
type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// PaymentSyncWorker consumes bank payment messages and stores them in the ledger
type PaymentSyncWorker struct {
	reader     MessageReader
	ledger     *LedgerService
	maxRetries int
	backoff    time.Duration
}

// NewKafkaPaymentReader opens a consumer-group reader on the bank topic
func NewKafkaPaymentReader(brokers []string, groupID, topic string) (*kafka.Reader, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("kafka consumer requires at least one broker")
	}
	if groupID == "" {
		return nil, fmt.Errorf("kafka consumer requires group id")
	}
	if topic == "" {
		return nil, fmt.Errorf("kafka consumer requires a topic")
	}
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		GroupID:  groupID,
		Topic:    topic,
		MinBytes: 1,
		MaxBytes: 10e6,
		MaxWait:  500 * time.Millisecond,
	}), nil
}

// NewPaymentSyncWorker creates a worker reading from reader
func NewPaymentSyncWorker(reader MessageReader, ledger *LedgerService) *PaymentSyncWorker {
	return &PaymentSyncWorker{
		reader:     reader,
		ledger:     ledger,
		maxRetries: 3,
		backoff:    time.Second,
	}
}

// Run processes messages until ctx is done. Messages that can never succeed
// (bad JSON, failed validation, unknown tenancy) are logged and committed;
// other failures are retried before the message is given up.
func (w *PaymentSyncWorker) Run(ctx context.Context) error {
	for {
		msg, err := w.reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("fetch bank payment message: %w", err)
		}

		if err := w.handle(ctx, msg); err != nil {
			utils.LogError("bank payment at %s/%d offset %d dropped: %v", msg.Topic, msg.Partition, msg.Offset, err)
		}

		if err := w.reader.CommitMessages(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("commit bank payment message: %w", err)
		}
	}
}

func (w *PaymentSyncWorker) handle(ctx context.Context, msg kafka.Message) error {
	var dto BankPaymentDTO
	if err := json.Unmarshal(msg.Value, &dto); err != nil {
		return fmt.Errorf("decode: %w", err)
	}

	var err error
	for attempt := 0; attempt <= w.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(w.backoff * time.Duration(attempt)):
			}
		}
		_, err = w.ledger.IngestBankPayment(ctx, dto)
		if err == nil || errors.Is(err, ErrValidation) || errors.Is(err, ErrNotFound) {
			return err
		}
		utils.LogError("bank payment for tenant %d attempt %d failed: %v", dto.TenantID, attempt+1, err)
	}
	return err
}

// Close closes the underlying reader
func (w *PaymentSyncWorker) Close() error {
	return w.reader.Close()
}
