// Package events publishes and consumes JSON messages over Kafka.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"
)

type Publisher interface {
	Publish(ctx context.Context, key string, payload interface{}) error
	PublishBatch(ctx context.Context, msgs []Message) error
	Close() error
}

// Message is one keyed payload for PublishBatch.
type Message struct {
	Key     string
	Payload interface{}
}

// KafkaPublisher writes JSON-encoded messages to a single topic.
type KafkaPublisher struct {
	writer *kafka.Writer
}

func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	return &KafkaPublisher{writer: &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		AllowAutoTopicCreation: true,
		BatchTimeout:           50 * time.Millisecond,
		WriteTimeout:           10 * time.Second,
		ReadTimeout:            10 * time.Second,
		MaxAttempts:            3,
	}}
}

func (p *KafkaPublisher) Publish(ctx context.Context, key string, payload interface{}) error {
	msg, err := Encode(key, payload)
	if err != nil {
		return err
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish to %s: %w", p.writer.Topic, err)
	}
	return nil
}

// PublishBatch writes all messages in one call. Messages that fail to encode
// are skipped and reported in the returned error.
func (p *KafkaPublisher) PublishBatch(ctx context.Context, msgs []Message) error {
	out := make([]kafka.Message, 0, len(msgs))
	var encErr error
	for _, m := range msgs {
		km, err := Encode(m.Key, m.Payload)
		if err != nil {
			encErr = err
			continue
		}
		out = append(out, km)
	}
	if len(out) > 0 {
		if err := p.writer.WriteMessages(ctx, out...); err != nil {
			return fmt.Errorf("publish %d messages to %s: %w", len(out), p.writer.Topic, err)
		}
	}
	return encErr
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// Encode builds the Kafka message for payload.
func Encode(key string, payload interface{}) (kafka.Message, error) {
	value, err := json.Marshal(payload)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("encode event: %w", err)
	}
	return kafka.Message{Key: []byte(key), Value: value}, nil
}

// NopPublisher drops every message. Used when no brokers are configured.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, string, interface{}) error { return nil }
func (NopPublisher) PublishBatch(context.Context, []Message) error      { return nil }
func (NopPublisher) Close() error                                       { return nil }

// NewPublisher returns a Kafka publisher when brokers are configured.
func NewPublisher(brokers []string, topic string) Publisher {
	if len(brokers) == 0 {
		return NopPublisher{}
	}
	slog.Info("kafka publisher configured", "topic", topic, "brokers", brokers)
	return NewKafkaPublisher(brokers, topic)
}

// HandlerFunc processes one message value. Returning an error leaves the
// message uncommitted so it is redelivered after a restart or rebalance.
type HandlerFunc func(ctx context.Context, value []byte) error

// Consumer reads a topic with a consumer group and hands each message to a
// handler.
type Consumer struct {
	reader  *kafka.Reader
	handler HandlerFunc
}

func NewConsumer(brokers []string, topic, groupID string, handler HandlerFunc) *Consumer {
	return &Consumer{
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers:     brokers,
			Topic:       topic,
			GroupID:     groupID,
			MinBytes:    1,
			MaxBytes:    10e6,
			MaxWait:     time.Second,
			StartOffset: kafka.FirstOffset,
		}),
		handler: handler,
	}
}

// Run blocks until ctx is cancelled.
func (c *Consumer) Run(ctx context.Context) {
	topic := c.reader.Config().Topic
	slog.Info("kafka consumer started", "topic", topic)
	for {
		m, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				slog.Info("kafka consumer stopped", "topic", topic)
				return
			}
			slog.Error("kafka fetch failed", "component", "events", "topic", topic, "error", err)
			time.Sleep(time.Second)
			continue
		}

		if err := c.handler(ctx, m.Value); err != nil {
			slog.Error("kafka message handling failed", "component", "events", "topic", topic, "offset", m.Offset, "error", err)
			continue
		}

		if err := c.reader.CommitMessages(ctx, m); err != nil {
			slog.Error("kafka commit failed", "component", "events", "topic", topic, "error", err)
		}
	}
}

func (c *Consumer) Close() error {
	return c.reader.Close()
}
