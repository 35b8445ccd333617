package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/Adithya-Monish-Kumar-K/plant-disease-detection/pkg/config"
)

const HeaderEventType = "event-type"

// Event is one record to publish. Key picks the partition; Value is
// marshalled to JSON.
type Event struct {
	Key     string
	Type    string
	Value   any
	Headers map[string]string
}

type Producer struct {
	writer  *kafka.Writer
	brokers []string
	logger  *slog.Logger
}

func NewProducer(cfg config.KafkaConfig, topic string) *Producer {
	return &Producer{
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(cfg.Brokers...),
			Topic:                  topic,
			Balancer:               &kafka.Hash{},
			BatchTimeout:           10 * time.Millisecond,
			MaxAttempts:            3,
			RequiredAcks:           kafka.RequireOne,
			AllowAutoTopicCreation: true,
		},
		brokers: cfg.Brokers,
		logger:  slog.Default().With("component", "kafka-producer", "topic", topic),
	}
}

func (p *Producer) Publish(ctx context.Context, event Event) error {
	return p.PublishBatch(ctx, []Event{event})
}

// PublishBatch writes events in one request. Nothing is written if any
// event fails to marshal.
func (p *Producer) PublishBatch(ctx context.Context, events []Event) error {
	if len(events) == 0 {
		return nil
	}
	msgs := make([]kafka.Message, len(events))
	for i, e := range events {
		msg, err := toMessage(e)
		if err != nil {
			return fmt.Errorf("event %q: %w", e.Type, err)
		}
		msgs[i] = msg
	}
	if err := p.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("publishing %d events to %s: %w", len(msgs), p.writer.Topic, err)
	}
	p.logger.Debug("published", "count", len(msgs), "type", events[0].Type)
	return nil
}

// Ping dials the first reachable broker.
func (p *Producer) Ping(ctx context.Context) error {
	return ping(ctx, p.brokers)
}

// Close flushes pending writes.
func (p *Producer) Close() error {
	return p.writer.Close()
}

func toMessage(e Event) (kafka.Message, error) {
	value, err := json.Marshal(e.Value)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("marshalling event: %w", err)
	}
	msg := kafka.Message{Key: []byte(e.Key), Value: value}
	if e.Type != "" {
		msg.Headers = append(msg.Headers, kafka.Header{Key: HeaderEventType, Value: []byte(e.Type)})
	}
	for k, v := range e.Headers {
		msg.Headers = append(msg.Headers, kafka.Header{Key: k, Value: []byte(v)})
	}
	return msg, nil
}
