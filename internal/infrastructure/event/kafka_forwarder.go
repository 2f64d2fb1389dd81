package event

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/farmpay/backend/internal/domain/shared"
	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// MessageWriter is the part of kafka.Writer the forwarder uses
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// KafkaConfig configures the Kafka writer
type KafkaConfig struct {
	Brokers      []string
	Topic        string
	WriteTimeout time.Duration
}

// NewKafkaWriter creates a kafka-go writer keyed by aggregate id, so every
// event of one payment or debt lands on the same partition in order
func NewKafkaWriter(cfg KafkaConfig) (*kafkago.Writer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("kafka brokers are required")
	}
	if cfg.Topic == "" {
		return nil, errors.New("kafka topic is required")
	}
	timeout := cfg.WriteTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &kafkago.Writer{
		Addr:                   kafkago.TCP(cfg.Brokers...),
		Topic:                  cfg.Topic,
		Balancer:               &kafkago.Hash{},
		RequiredAcks:           kafkago.RequireAll,
		WriteTimeout:           timeout,
		AllowAutoTopicCreation: false,
	}, nil
}

// KafkaForwarder is an event handler that forwards committed ledger events to Kafka
type KafkaForwarder struct {
	writer     MessageWriter
	serializer *EventSerializer
	logger     *zap.Logger
}

// NewKafkaForwarder creates a forwarder writing through writer
func NewKafkaForwarder(writer MessageWriter, serializer *EventSerializer, logger *zap.Logger) *KafkaForwarder {
	return &KafkaForwarder{
		writer:     writer,
		serializer: serializer,
		logger:     logger.Named("kafka.forwarder"),
	}
}

// EventTypes subscribes the forwarder to every event
func (f *KafkaForwarder) EventTypes() []string {
	return nil
}

// Handle writes one message per event
func (f *KafkaForwarder) Handle(ctx context.Context, event shared.DomainEvent) error {
	value, err := f.serializer.Marshal(event)
	if err != nil {
		return err
	}

	msg := kafkago.Message{
		Key:   []byte(event.AggregateID().String()),
		Value: value,
		Time:  event.OccurredAt(),
		Headers: []kafkago.Header{
			{Key: "event_type", Value: []byte(event.EventType())},
			{Key: "aggregate_type", Value: []byte(event.AggregateType())},
			{Key: "event_id", Value: []byte(event.EventID().String())},
		},
	}
	if err := f.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to forward %s to kafka: %w", event.EventType(), err)
	}

	f.logger.Debug("event forwarded",
		zap.String("event_type", event.EventType()),
		zap.String("event_id", event.EventID().String()),
	)
	return nil
}

// Close closes the underlying writer
func (f *KafkaForwarder) Close() error {
	return f.writer.Close()
}

var _ shared.EventHandler = (*KafkaForwarder)(nil)
