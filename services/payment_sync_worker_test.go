package services

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"rentscore/models"

	"github.com/segmentio/kafka-go"
)

// fakeReader serves a fixed list of messages and cancels the run once drained
type fakeReader struct {
	messages  []kafka.Message
	next      int
	committed []int64
	cancel    context.CancelFunc
	closed    bool
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	if r.next < len(r.messages) {
		msg := r.messages[r.next]
		r.next++
		return msg, nil
	}
	r.cancel()
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (r *fakeReader) CommitMessages(ctx context.Context, msgs ...kafka.Message) error {
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	return nil
}

func (r *fakeReader) Close() error {
	r.closed = true
	return nil
}

func TestPaymentSyncWorkerRun(t *testing.T) {
	s := newTestStack(t, day(2024, time.April, 10))
	createUser(t, s.db, 1, "tenant@example.com", models.UserRoleTenant)
	tenancy := registerTenancy(t, s.properties, 1, jan2024, "")

	paid := day(2024, time.March, 2)
	valid, _ := json.Marshal(BankPaymentDTO{
		TenantID:   1,
		PropertyID: tenancy.PropertyID,
		DueDate:    day(2024, time.March, 1),
		PaidDate:   &paid,
		Amount:     95000,
		Reference:  "FPS-1",
	})
	unknown, _ := json.Marshal(BankPaymentDTO{
		TenantID:   1,
		PropertyID: 999,
		DueDate:    day(2024, time.March, 1),
		PaidDate:   &paid,
		Amount:     95000,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	reader := &fakeReader{
		cancel: cancel,
		messages: []kafka.Message{
			{Offset: 1, Value: valid},
			{Offset: 2, Value: []byte("not json")},
			{Offset: 3, Value: unknown},
		},
	}

	worker := NewPaymentSyncWorker(reader, s.ledger)
	worker.backoff = time.Millisecond
	if err := worker.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(reader.committed) != 3 {
		t.Errorf("expected every message committed, got offsets %v", reader.committed)
	}

	var bank models.Payment
	if err := s.db.Where("property_id = ? AND period = ? AND source = ?", tenancy.PropertyID, "2024-03", models.PaymentSourceBank).
		First(&bank).Error; err != nil {
		t.Fatalf("bank record not stored: %v", err)
	}
	if bank.Status != models.PaymentStatusPaid || !bank.Verified || bank.Reference != "FPS-1" {
		t.Errorf("unexpected bank record %+v", bank)
	}

	if err := worker.Close(); err != nil || !reader.closed {
		t.Errorf("Close: %v", err)
	}
}

func TestNewKafkaPaymentReaderValidation(t *testing.T) {
	if _, err := NewKafkaPaymentReader(nil, "group", "topic"); err == nil {
		t.Error("expected error without brokers")
	}
	if _, err := NewKafkaPaymentReader([]string{"localhost:9092"}, "", "topic"); err == nil {
		t.Error("expected error without group id")
	}
	if _, err := NewKafkaPaymentReader([]string{"localhost:9092"}, "group", ""); err == nil {
		t.Error("expected error without topic")
	}
}
