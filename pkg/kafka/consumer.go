// Package kafka carries detection events and catalogue updates over
// segmentio/kafka-go. Values are JSON; the event-type header lets one topic
// carry several kinds of event.
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/Adithya-Monish-Kumar-K/plant-disease-detection/pkg/config"
)

const (
	fetchBackoffStart = 100 * time.Millisecond
	fetchBackoffMax   = 5 * time.Second
)

type Message struct {
	Key     []byte
	Value   []byte
	Headers map[string]string
}

// Type returns the event-type header, or "".
func (m Message) Type() string {
	return m.Headers[HeaderEventType]
}

type MessageHandler func(ctx context.Context, msg Message) error

// Consumer feeds one topic to a handler. A message whose handler fails is
// logged and committed anyway: events here are advisory and a poison
// message must not stall the partition.
type Consumer struct {
	reader    *kafka.Reader
	brokers   []string
	handler   MessageHandler
	logger    *slog.Logger
	processed atomic.Int64
	failed    atomic.Int64
}

// NewConsumer reads topic in the given group, or the configured group when
// group is empty. Detector replicas each pass their own group so every
// replica sees every catalogue update.
func NewConsumer(cfg config.KafkaConfig, topic, group string, handler MessageHandler) *Consumer {
	if group == "" {
		group = cfg.ConsumerGroup
	}
	return &Consumer{
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers:     cfg.Brokers,
			Topic:       topic,
			GroupID:     group,
			MinBytes:    1,
			MaxBytes:    1 << 20,
			MaxWait:     500 * time.Millisecond,
			StartOffset: kafka.LastOffset,
		}),
		brokers: cfg.Brokers,
		handler: handler,
		logger:  slog.Default().With("component", "kafka-consumer", "topic", topic, "group", group),
	}
}

// Start consumes until ctx ends. Fetch errors back off exponentially.
func (c *Consumer) Start(ctx context.Context) error {
	c.logger.Info("consumer started")
	backoff := fetchBackoffStart
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				c.logger.Info("consumer stopped", "processed", c.processed.Load(), "failed", c.failed.Load())
				return nil
			}
			c.logger.Warn("fetch failed", "error", err, "retry_in", backoff)
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return nil
			}
			backoff = min(backoff*2, fetchBackoffMax)
			continue
		}
		backoff = fetchBackoffStart
		c.process(ctx, msg)
	}
}

func (c *Consumer) process(ctx context.Context, msg kafka.Message) {
	log := c.logger.With("partition", msg.Partition, "offset", msg.Offset)
	if err := c.handler(ctx, fromKafka(msg)); err != nil {
		c.failed.Add(1)
		log.Error("handler failed, skipping message", "error", err)
	} else {
		c.processed.Add(1)
	}
	if err := c.reader.CommitMessages(ctx, msg); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("commit failed", "error", err)
	}
}

// Ping dials the first reachable broker.
func (c *Consumer) Ping(ctx context.Context) error {
	return ping(ctx, c.brokers)
}

func (c *Consumer) Close() error {
	return c.reader.Close()
}

func ping(ctx context.Context, brokers []string) error {
	var errs []error
	for _, addr := range brokers {
		conn, err := kafka.DialContext(ctx, "tcp", addr)
		if err == nil {
			return conn.Close()
		}
		errs = append(errs, err)
	}
	if len(errs) == 0 {
		return errors.New("no kafka brokers configured")
	}
	return errors.Join(errs...)
}

// DecodeJSON unmarshals a message value into T.
func DecodeJSON[T any](value []byte) (T, error) {
	var v T
	if err := json.Unmarshal(value, &v); err != nil {
		return v, fmt.Errorf("decoding kafka message: %w", err)
	}
	return v, nil
}

func fromKafka(msg kafka.Message) Message {
	headers := make(map[string]string, len(msg.Headers))
	for _, h := range msg.Headers {
		headers[h.Key] = string(h.Value)
	}
	return Message{Key: msg.Key, Value: msg.Value, Headers: headers}
}
