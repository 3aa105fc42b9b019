package bridge

import "context"

// DeliverFunc receives the raw body of one broker delivery. The broker has
// already acknowledged the message by the time the callback runs, so a
// failing consumer never causes redelivery.
type DeliverFunc func(body []byte)

// ConsumerTag identifies a registered consumer on a channel. Tags are opaque;
// the only way to stop deliveries is closing the channel.
type ConsumerTag string

// Channel is the broker capability the transport is built on.
// Implementations wrap one broker-level communication context and are not
// required to be safe for concurrent use; the transport serializes access.
type Channel interface {
	// DeclareTopic ensures the named durable topic exists.
	// Declaring an existing topic is a no-op.
	DeclareTopic(name string) error

	// PublishBytes sends a raw payload to the topic. It blocks until the
	// broker has accepted the publish call, not until consumer delivery.
	PublishBytes(ctx context.Context, topic string, body []byte) error

	// Consume registers deliver as the auto-ack callback for the topic.
	// Deliveries keep flowing until the channel is closed.
	Consume(topic string, deliver DeliverFunc) (ConsumerTag, error)

	// Close shuts down the channel. Closing an already-closed channel
	// is an error.
	Close() error
}
