package bridge

import (
	"context"
	"fmt"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
)

// AMQPConnector dials an AMQP 0-9-1 broker and opens one channel per call.
type AMQPConnector struct {
	creds Credentials
}

func NewAMQPConnector(creds Credentials) *AMQPConnector {
	return &AMQPConnector{creds: creds}
}

func (c *AMQPConnector) CreateChannel() (Channel, error) {
	conn, err := amqp.Dial(c.creds.URL())
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrConnectionFailed, c.creds.Addr(), err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("%w: open channel: %w", ErrConnectionFailed, err)
	}
	return &amqpChannel{conn: conn, ch: ch}, nil
}

// amqpChannel sends through the default exchange, so the routing key is the
// queue name and every topic maps to one durable queue.
type amqpChannel struct {
	conn *amqp.Connection
	ch   *amqp.Channel

	mu      sync.Mutex
	nextTag int
	closed  bool
}

func (a *amqpChannel) DeclareTopic(name string) error {
	_, err := a.ch.QueueDeclare(name, true, false, false, false, nil)
	return err
}

func (a *amqpChannel) PublishBytes(ctx context.Context, topic string, body []byte) error {
	return a.ch.PublishWithContext(ctx, "", topic, false, false, amqp.Publishing{
		ContentType: "application/octet-stream",
		Body:        body,
	})
}

// Consume starts an auto-acked consumer. The broker forgets a message the
// moment it leaves the queue, so a failing handler never sees it again.
func (a *amqpChannel) Consume(topic string, deliver DeliverFunc) (ConsumerTag, error) {
	a.mu.Lock()
	a.nextTag++
	tag := ConsumerTag(fmt.Sprintf("bridge-%d", a.nextTag))
	a.mu.Unlock()

	deliveries, err := a.ch.Consume(topic, string(tag), true, false, false, false, nil)
	if err != nil {
		return "", err
	}
	go func() {
		for d := range deliveries {
			deliver(d.Body)
		}
	}()
	return tag, nil
}

// Close shuts the channel and the connection behind it. The deliveries
// channel of every consumer is closed by the library, which ends their
// goroutines. A second Close fails.
func (a *amqpChannel) Close() error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return ErrChannelClosed
	}
	a.closed = true
	a.mu.Unlock()

	chErr := a.ch.Close()
	connErr := a.conn.Close()
	if chErr != nil {
		return chErr
	}
	return connErr
}
