package queue

import (
	"context"
	"fmt"
	"net"
	"strconv"

	"github.com/segmentio/kafka-go"

	"github.com/plantpulse/plant-server/internal/metrics"
)

// Producer publishes messages to one topic. Writes are synchronous and keyed
// so all events for a user land on the same partition, preserving order.
type Producer struct {
	writer *kafka.Writer
	topic  string
}

func NewProducer(brokers []string, topic string) *Producer {
	return &Producer{
		topic: topic,
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireOne,
			Async:        false,
		},
	}
}

// Publish writes one keyed message and waits for the broker ack.
func (p *Producer) Publish(ctx context.Context, key string, value []byte) error {
	err := p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(key),
		Value: value,
	})
	if err != nil {
		metrics.KafkaPublishTotal.WithLabelValues(p.topic, "failed").Inc()
		return fmt.Errorf("publish to %s failed: %w", p.topic, err)
	}
	metrics.KafkaPublishTotal.WithLabelValues(p.topic, "success").Inc()
	return nil
}

func (p *Producer) Close() error {
	return p.writer.Close()
}

// Consumer reads from a consumer group with manual offset commits, so a
// message is only acknowledged after it has been fully processed.
type Consumer struct {
	reader *kafka.Reader
}

func NewConsumer(brokers []string, topic, groupID string) *Consumer {
	return &Consumer{
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers:        brokers,
			Topic:          topic,
			GroupID:        groupID,
			MinBytes:       1,
			MaxBytes:       10e6,
			CommitInterval: 0, // commit explicitly via Commit
			StartOffset:    kafka.LastOffset,
		}),
	}
}

// Consume blocks until the next message arrives or the context is cancelled.
// The offset is not committed; call Commit once the message is processed.
func (c *Consumer) Consume(ctx context.Context) (kafka.Message, error) {
	msg, err := c.reader.FetchMessage(ctx)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("fetch failed: %w", err)
	}
	return msg, nil
}

// Commit acknowledges a processed message.
func (c *Consumer) Commit(ctx context.Context, msg kafka.Message) error {
	if err := c.reader.CommitMessages(ctx, msg); err != nil {
		return fmt.Errorf("commit failed: %w", err)
	}
	return nil
}

func (c *Consumer) Close() error {
	return c.reader.Close()
}

func (c *Consumer) Stats() kafka.ReaderStats {
	return c.reader.Stats()
}

// CreateTopic creates a topic via the cluster controller. Idempotent enough
// for startup: an already-exists error from the broker is returned as-is and
// callers treat it as non-fatal.
func CreateTopic(brokers []string, topic string, numPartitions, replicationFactor int) error {
	conn, err := kafka.Dial("tcp", brokers[0])
	if err != nil {
		return fmt.Errorf("dial broker: %w", err)
	}
	defer conn.Close()

	controller, err := conn.Controller()
	if err != nil {
		return fmt.Errorf("resolve controller: %w", err)
	}

	controllerConn, err := kafka.Dial("tcp", net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port)))
	if err != nil {
		return fmt.Errorf("dial controller: %w", err)
	}
	defer controllerConn.Close()

	err = controllerConn.CreateTopics(kafka.TopicConfig{
		Topic:             topic,
		NumPartitions:     numPartitions,
		ReplicationFactor: replicationFactor,
	})
	if err != nil {
		return fmt.Errorf("create topic %s: %w", topic, err)
	}
	return nil
}
