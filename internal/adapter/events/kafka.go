// Package events publishes settlement outcomes to Kafka.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"savings-ledger/internal/core/domain"
	"savings-ledger/internal/core/ports"
)

// SettlementEvent is the message value written for every reconciled batch.
type SettlementEvent struct {
	EventType  string                   `json:"event_type"`
	Outcome    domain.SettlementOutcome `json:"outcome"`
	OccurredAt time.Time                `json:"occurred_at"`
}

// EventType returns settlement.settled or settlement.failed.
func EventType(status domain.SettlementStatus) string {
	return "settlement." + strings.ToLower(string(status))
}

// messageWriter is the subset of *kafka.Writer the publisher needs.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher implements ports.EventPublisher. Messages are keyed by user
// id so one user's outcomes stay ordered within a partition.
type KafkaPublisher struct {
	writer messageWriter
	clock  ports.Clock
	log    zerolog.Logger
}

// NewKafkaPublisher creates a synchronous writer for topic.
func NewKafkaPublisher(brokers []string, topic string, clock ports.Clock, log zerolog.Logger) *KafkaPublisher {
	w := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.LeastBytes{},
		RequiredAcks: kafka.RequireOne,
		MaxAttempts:  3,
		BatchTimeout: 10 * time.Millisecond,
		WriteTimeout: 10 * time.Second,
		Logger: kafka.LoggerFunc(func(msg string, args ...interface{}) {
			log.Debug().Str("component", "kafka").Msgf(msg, args...)
		}),
		ErrorLogger: kafka.LoggerFunc(func(msg string, args ...interface{}) {
			log.Error().Str("component", "kafka").Msgf(msg, args...)
		}),
	}
	return newKafkaPublisher(w, clock, log)
}

func newKafkaPublisher(w messageWriter, clock ports.Clock, log zerolog.Logger) *KafkaPublisher {
	return &KafkaPublisher{writer: w, clock: clock, log: log}
}

// PublishSettlement writes one SettlementEvent.
func (p *KafkaPublisher) PublishSettlement(ctx context.Context, outcome *domain.SettlementOutcome) error {
	now := p.clock.Now()
	ev := SettlementEvent{
		EventType:  EventType(outcome.Status),
		Outcome:    *outcome,
		OccurredAt: now,
	}
	value, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal settlement event: %w", err)
	}

	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(outcome.UserID),
		Value: value,
		Time:  now,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(ev.EventType)},
			{Key: "settlement_id", Value: []byte(outcome.SettlementID.String())},
		},
	})
	if err != nil {
		return fmt.Errorf("write settlement event: %w", err)
	}

	p.log.Debug().
		Str("settlement_id", outcome.SettlementID.String()).
		Str("event_type", ev.EventType).
		Msg("settlement event published")
	return nil
}

// Close flushes and closes the writer.
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
