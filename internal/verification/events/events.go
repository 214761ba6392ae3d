// Package events publishes verification outcomes to Kafka after they are
// committed to the log.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"bobinator/internal/platform/kafka/producer"
	"bobinator/internal/verification/models"
	id "bobinator/pkg/domain"
)

const (
	DefaultTopic = "verification.events"

	TypeVerificationRecorded = "verification.recorded"
)

// Event is the wire form of one committed log entry.
type Event struct {
	EventID        string                `json:"event_id"`
	Type           string                `json:"type"`
	LogEntryID     id.LogEntryID         `json:"log_entry_id"`
	ProviderID     id.ProviderID         `json:"provider_id"`
	CredentialType models.CredentialType `json:"credential_type"`
	Result         models.Result         `json:"result"`
	Details        string                `json:"details"`
	CheckedAt      time.Time             `json:"checked_at"`
}

func FromLogEntry(entry models.LogEntry) Event {
	return Event{
		EventID:        uuid.NewString(),
		Type:           TypeVerificationRecorded,
		LogEntryID:     entry.ID,
		ProviderID:     entry.ProviderID,
		CredentialType: entry.CredentialType,
		Result:         entry.Result,
		Details:        entry.Details,
		CheckedAt:      entry.CheckedAt,
	}
}

// Publisher hands committed log entries to downstream consumers.
type Publisher interface {
	Publish(ctx context.Context, entry models.LogEntry) error
}

// Sender is the subset of the Kafka producer the publisher uses.
type Sender interface {
	ProduceAsync(msg *producer.Message) error
}

// KafkaPublisher buffers events on a topic keyed by provider id, so every
// event for a provider lands on the same partition in order.
type KafkaPublisher struct {
	sender Sender
	topic  string
	logger *slog.Logger
}

func NewKafkaPublisher(sender Sender, topic string, logger *slog.Logger) *KafkaPublisher {
	if topic == "" {
		topic = DefaultTopic
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &KafkaPublisher{sender: sender, topic: topic, logger: logger}
}

func (p *KafkaPublisher) Publish(ctx context.Context, entry models.LogEntry) error {
	evt := FromLogEntry(entry)
	payload, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("encode verification event: %w", err)
	}
	msg := &producer.Message{
		Topic: p.topic,
		Key:   []byte(entry.ProviderID.String()),
		Value: payload,
		Headers: map[string]string{
			"event_type":      evt.Type,
			"credential_type": string(evt.CredentialType),
		},
	}
	if err := p.sender.ProduceAsync(msg); err != nil {
		return fmt.Errorf("publish verification event: %w", err)
	}
	p.logger.DebugContext(ctx, "verification event queued",
		"provider_id", entry.ProviderID.String(),
		"credential_type", entry.CredentialType,
		"result", entry.Result,
	)
	return nil
}

// NoopPublisher drops every event. Used when Kafka is not configured.
type NoopPublisher struct{}

func (NoopPublisher) Publish(context.Context, models.LogEntry) error { return nil }

var (
	_ Publisher = (*KafkaPublisher)(nil)
	_ Publisher = NoopPublisher{}
	_ Sender    = (*producer.Producer)(nil)
)
