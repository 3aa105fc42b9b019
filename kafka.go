package bridge

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
)

const (
	defaultKafkaGroup = "bridge"
	kafkaRetryDelay   = time.Second
)

// KafkaConnector opens channels backed by Kafka topics. Consumers of each
// channel join one consumer group, so a topic's messages are balanced across
// them the way a broker queue balances its consumers.
type KafkaConnector struct {
	creds Credentials
	group string
}

func NewKafkaConnector(creds Credentials, group string) *KafkaConnector {
	if group == "" {
		group = defaultKafkaGroup
	}
	return &KafkaConnector{creds: creds, group: group}
}

func (c *KafkaConnector) CreateChannel() (Channel, error) {
	addr := c.creds.Addr()
	writer := &kafka.Writer{
		Addr:         kafka.TCP(addr),
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		BatchTimeout: 10 * time.Millisecond,
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &kafkaChannel{
		writer:  writer,
		admin:   &kafka.Client{Addr: kafka.TCP(addr)},
		brokers: []string{addr},
		group:   c.group,
		ctx:     ctx,
		cancel:  cancel,
	}, nil
}

// kafkaChannel leaves the writer's Topic unset and addresses the topic per
// message, so one writer serves every topic of the transport.
type kafkaChannel struct {
	writer  *kafka.Writer
	admin   *kafka.Client
	brokers []string
	group   string
	ctx     context.Context
	cancel  context.CancelFunc

	mu      sync.Mutex
	nextTag int
	closed  bool
}

// DeclareTopic creates the topic with a single partition. A topic that
// already exists is fine.
func (k *kafkaChannel) DeclareTopic(name string) error {
	if k.isClosed() {
		return ErrChannelClosed
	}
	resp, err := k.admin.CreateTopics(k.ctx, &kafka.CreateTopicsRequest{
		Topics: []kafka.TopicConfig{{
			Topic:             name,
			NumPartitions:     1,
			ReplicationFactor: 1,
		}},
	})
	if err != nil {
		return err
	}
	if topicErr := resp.Errors[name]; topicErr != nil && !errors.Is(topicErr, kafka.TopicAlreadyExists) {
		return topicErr
	}
	return nil
}

func (k *kafkaChannel) PublishBytes(ctx context.Context, topic string, body []byte) error {
	if k.isClosed() {
		return ErrChannelClosed
	}
	return k.writer.WriteMessages(ctx, kafka.Message{
		Topic: topic,
		Value: body,
	})
}

// Consume starts a reader goroutine on the topic. Offsets are committed as
// messages are fetched, before delivery, which is what auto-ack means here.
func (k *kafkaChannel) Consume(topic string, deliver DeliverFunc) (ConsumerTag, error) {
	k.mu.Lock()
	if k.closed {
		k.mu.Unlock()
		return "", ErrChannelClosed
	}
	k.nextTag++
	tag := ConsumerTag(fmt.Sprintf("%s-%d", k.group, k.nextTag))
	k.mu.Unlock()

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     k.brokers,
		GroupID:     k.group,
		Topic:       topic,
		MinBytes:    10e3,
		MaxBytes:    10e6,
		StartOffset: kafka.LastOffset,
	})
	go k.fetchLoop(reader, deliver)
	return tag, nil
}

func (k *kafkaChannel) fetchLoop(reader *kafka.Reader, deliver DeliverFunc) {
	defer reader.Close()

	for {
		m, err := reader.FetchMessage(k.ctx)
		if err != nil {
			if k.ctx.Err() != nil {
				return
			}
			time.Sleep(kafkaRetryDelay)
			continue
		}
		if err := reader.CommitMessages(k.ctx, m); err != nil && k.ctx.Err() != nil {
			return
		}
		deliver(m.Value)
	}
}

// Close unblocks every fetch loop and shuts the writer. Each reader closes
// itself as its loop ends. A second Close fails.
func (k *kafkaChannel) Close() error {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.closed {
		return ErrChannelClosed
	}
	k.closed = true
	k.cancel()
	return k.writer.Close()
}

func (k *kafkaChannel) isClosed() bool {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.closed
}
