package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"rentscore/utils"

	"github.com/segmentio/kafka-go"
)

// Event types emitted for downstream notification delivery
const (
	EventBadgeEarned     = "badge.earned"
	EventReportGenerated = "report.generated"
	EventReportShared    = "report.shared"
)

// BadgeEarnedEvent is the payload of badge.earned
type BadgeEarnedEvent struct {
	TenantID  uint      `json:"tenantId"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	BadgeType BadgeType `json:"badgeType"`
	Title     string    `json:"title"`
	EarnedAt  time.Time `json:"earnedAt"`
}

// ReportGeneratedEvent is the payload of report.generated
type ReportGeneratedEvent struct {
	TenantID    uint       `json:"tenantId"`
	Email       string     `json:"email"`
	Name        string     `json:"name"`
	ReportID    string     `json:"reportId"`
	ReportType  ReportType `json:"reportType"`
	RentScore   int        `json:"rentScore"`
	GeneratedAt time.Time  `json:"generatedAt"`
}

// ReportSharedEvent is the payload of report.shared
type ReportSharedEvent struct {
	TenantID  uint      `json:"tenantId"`
	ReportID  string    `json:"reportId"`
	ShareID   string    `json:"shareId"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// EventPublisher hands events to a downstream collaborator
type EventPublisher interface {
	Publish(ctx context.Context, eventType string, payload []byte, partitionKey string) error
}

// publishEvent encodes and publishes an event. Failures are logged and never
// returned; the operation that produced the event has already happened.
func publishEvent(ctx context.Context, publisher EventPublisher, eventType string, tenantID uint, event interface{}) {
	if publisher == nil {
		return
	}
	payload, err := json.Marshal(event)
	if err != nil {
		utils.LogError("failed to encode %s event: %v", eventType, err)
		return
	}
	if err := publisher.Publish(ctx, eventType, payload, strconv.FormatUint(uint64(tenantID), 10)); err != nil {
		utils.LogError("failed to publish %s event for tenant %d: %v", eventType, tenantID, err)
	}
}

// LoggingPublisher writes events to the info log
type LoggingPublisher struct{}

// Publish implements EventPublisher
func (LoggingPublisher) Publish(ctx context.Context, eventType string, payload []byte, partitionKey string) error {
	utils.LogInfo("event published: type=%s key=%s bytes=%d", eventType, partitionKey, len(payload))
	return nil
}

// MultiPublisher fans an event out to several publishers
type MultiPublisher []EventPublisher

// Publish implements EventPublisher. Every publisher is tried; errors are joined.
func (m MultiPublisher) Publish(ctx context.Context, eventType string, payload []byte, partitionKey string) error {
	var errs []error
	for _, p := range m {
		if err := p.Publish(ctx, eventType, payload, partitionKey); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// KafkaPublisher writes events to Kafka, one topic per event type
type KafkaPublisher struct {
	writer       *kafka.Writer
	topicByEvent map[string]string
}

// NewKafkaPublisher creates a publisher for brokers
func NewKafkaPublisher(brokers []string, topicByEvent map[string]string) (*KafkaPublisher, error) {
	if len(brokers) == 0 {
		return nil, errors.New("kafka publisher requires at least one broker")
	}
	return &KafkaPublisher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			RequiredAcks: kafka.RequireAll,
			Balancer:     &kafka.Hash{},
		},
		topicByEvent: topicByEvent,
	}, nil
}

// Publish implements EventPublisher
func (p *KafkaPublisher) Publish(ctx context.Context, eventType string, payload []byte, partitionKey string) error {
	topic := eventType
	if mapped, ok := p.topicByEvent[eventType]; ok && mapped != "" {
		topic = mapped
	}
	err := p.writer.WriteMessages(ctx, kafka.Message{
		Topic: topic,
		Key:   []byte(partitionKey),
		Value: payload,
		Time:  time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("kafka write to %s: %w", topic, err)
	}
	return nil
}

// Close flushes and closes the writer
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
