// Package bridge is a topic publish/subscribe layer in front of a message
// broker. A Transport sends typed messages to named durable topics and feeds
// subscribed handlers, in blocking and non-blocking variants, over a broker
// Channel obtained from a Connector. A Resource scopes the transport's
// lifecycle, and a LockMapper serializes handler work per key.
package bridge

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// Handler processes one decoded message. The ctx is the transport's
// lifecycle context and is cancelled when the transport closes.
type Handler[T any] func(ctx context.Context, msg T) error

// Publisher is the sending half of a transport.
type Publisher[T any] interface {
	Publish(ctx context.Context, topic string, msg T) error
	PublishAsync(ctx context.Context, topic string, msg T) *Future[struct{}]
	PublishMultiple(ctx context.Context, topics []string, msg T) error
	PublishMultipleAsync(ctx context.Context, topics []string, msg T) *Future[struct{}]
}

// Subscriber is the consuming half of a transport.
type Subscriber[T any] interface {
	Subscribe(topic string, handler Handler[T]) error
	SubscribeAsync(topic string, handler Handler[T]) *Future[struct{}]
	SubscribeMultiple(topics []string, handler Handler[T]) *Future[struct{}]
}

// Transport binds one broker channel, one codec, and the per-topic record of
// delivered messages. It moves from open to closed exactly once; after Close
// every publish and subscribe call fails with ErrTransportClosed.
//
// All channel access is serialized internally, so Channel implementations
// need not be safe for concurrent use.
type Transport[T any] struct {
	ch      Channel
	codec   Codec
	logger  *zap.Logger
	metrics *Metrics

	// lifecycle context for deliveries and handlers, cancelled at Close
	ctx    context.Context
	cancel context.CancelFunc

	// bounds concurrent asynchronous work
	sem chan struct{}

	// serializes every operation on ch
	chMu sync.Mutex

	mu     sync.RWMutex
	closed bool
	queues map[string]*deliveredQueue[T]
}

var (
	_ Publisher[any]  = (*Transport[any])(nil)
	_ Subscriber[any] = (*Transport[any])(nil)
)

// NewTransport wraps an open broker channel. The caller hands over ownership;
// the channel is closed by Transport.Close.
func NewTransport[T any](ch Channel, opts ...Option) *Transport[T] {
	options := defaultOptions()
	for _, opt := range opts {
		opt(&options)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Transport[T]{
		ch:      ch,
		codec:   options.Codec,
		logger:  options.Logger,
		metrics: options.Metrics,
		ctx:     ctx,
		cancel:  cancel,
		sem:     make(chan struct{}, options.AsyncLimit),
		queues:  make(map[string]*deliveredQueue[T]),
	}
}

// NewTransportResource pairs a transport initializer with its disposer: the
// initializer opens a channel through the connector, the disposer closes the
// transport. Use it with Resource.Use to scope a transport to one operation.
func NewTransportResource[T any](c Connector, opts ...Option) *Resource[*Transport[T]] {
	return NewResource(
		func() (*Transport[T], error) {
			ch, err := c.CreateChannel()
			if err != nil {
				return nil, err
			}
			return NewTransport[T](ch, opts...), nil
		},
		func(t *Transport[T]) error { return t.Close() },
	)
}

// Publish declares the topic and sends one message. It blocks until the
// broker has accepted the publish call, not until consumer delivery.
func (t *Transport[T]) Publish(ctx context.Context, topic string, msg T) error {
	if err := t.checkOpen(topic); err != nil {
		return err
	}

	body, err := t.codec.Marshal(msg)
	if err != nil {
		return fmt.Errorf("%w: topic %q: %w", ErrEncodeFailed, topic, err)
	}
	return t.send(ctx, topic, body)
}

// PublishMultiple encodes the message once and publishes it to every topic
// in order. It is not transactional: when publishing to topic k fails, the
// topics before k have already received the message; the first failure is
// returned, naming its topic, and nothing is rolled back.
func (t *Transport[T]) PublishMultiple(ctx context.Context, topics []string, msg T) error {
	if err := t.checkOpen(topics...); err != nil {
		return err
	}

	body, err := t.codec.Marshal(msg)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrEncodeFailed, err)
	}
	for _, topic := range topics {
		if err := t.send(ctx, topic, body); err != nil {
			return err
		}
	}
	return nil
}

// Subscribe declares the topic and installs a delivery callback that decodes
// the payload, records it in the topic's delivered queue, and runs handler
// inline on the delivery goroutine. A handler failure is logged and counted
// but never ends the subscription; since deliveries are auto-acked, it never
// causes redelivery either.
func (t *Transport[T]) Subscribe(topic string, handler Handler[T]) error {
	return t.subscribe(topic, handler, false)
}

// Delivered returns a copy of the messages received on the topic so far, in
// arrival order. It stays readable after Close.
func (t *Transport[T]) Delivered(topic string) []T {
	t.mu.RLock()
	q, ok := t.queues[topic]
	t.mu.RUnlock()
	if !ok {
		return nil
	}
	return q.snapshot()
}

// Close cancels deliveries and closes the underlying channel. Close is not
// idempotent: a second call fails with ErrCloseFailed wrapping
// ErrTransportClosed.
func (t *Transport[T]) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return fmt.Errorf("%w: %w", ErrCloseFailed, ErrTransportClosed)
	}
	t.closed = true
	t.mu.Unlock()

	t.cancel()

	t.chMu.Lock()
	defer t.chMu.Unlock()
	if err := t.ch.Close(); err != nil {
		return fmt.Errorf("%w: %w", ErrCloseFailed, err)
	}
	t.logger.Debug("transport closed")
	return nil
}

// send declares and publishes under the channel lock.
func (t *Transport[T]) send(ctx context.Context, topic string, body []byte) error {
	t.chMu.Lock()
	defer t.chMu.Unlock()

	if t.isClosed() {
		return ErrTransportClosed
	}
	if err := t.ch.DeclareTopic(topic); err != nil {
		return fmt.Errorf("%w: topic %q: %w", ErrDeclareFailed, topic, err)
	}
	if err := t.ch.PublishBytes(ctx, topic, body); err != nil {
		return fmt.Errorf("%w: topic %q: %w", ErrSendFailed, topic, err)
	}
	t.metrics.published(topic)
	return nil
}

// subscribe registers the topic's delivered queue and consumer. With async
// set, each message's handler is dispatched onto the worker pool instead of
// running inline on the delivery goroutine.
func (t *Transport[T]) subscribe(topic string, handler Handler[T], async bool) error {
	if err := t.checkOpen(topic); err != nil {
		return err
	}

	queue := t.queueFor(topic)
	deliver := func(body []byte) {
		var msg T
		if err := t.codec.Unmarshal(body, &msg); err != nil {
			t.logger.Error("message decode failed",
				zap.String("topic", topic),
				zap.Error(fmt.Errorf("%w: %w", ErrDecodeFailed, err)))
			t.metrics.decodeFailed(topic)
			return
		}
		queue.append(msg)
		t.metrics.consumed(topic)

		if async {
			t.dispatch(topic, handler, msg)
		} else {
			t.runHandler(topic, handler, msg)
		}
	}

	t.chMu.Lock()
	defer t.chMu.Unlock()

	if t.isClosed() {
		return ErrTransportClosed
	}
	if err := t.ch.DeclareTopic(topic); err != nil {
		return fmt.Errorf("%w: topic %q: %w", ErrDeclareFailed, topic, err)
	}
	tag, err := t.ch.Consume(topic, deliver)
	if err != nil {
		return fmt.Errorf("%w: topic %q: %w", ErrConsumeFailed, topic, err)
	}
	t.logger.Debug("consumer registered",
		zap.String("topic", topic), zap.String("tag", string(tag)))
	return nil
}

// runHandler contains a handler failure: logged and counted, never
// propagated, so one bad message cannot end the subscription.
func (t *Transport[T]) runHandler(topic string, handler Handler[T], msg T) {
	if err := handler(t.ctx, msg); err != nil {
		t.logger.Error("message handler failed",
			zap.String("topic", topic),
			zap.Error(fmt.Errorf("%w: %w", ErrHandlerFailed, err)))
		t.metrics.handlerFailed(topic)
	}
}

// dispatch runs the handler on the worker pool. The pool slot is acquired
// inside the goroutine so the delivery path never blocks on a full pool.
func (t *Transport[T]) dispatch(topic string, handler Handler[T], msg T) {
	go func() {
		t.sem <- struct{}{}
		defer func() { <-t.sem }()
		t.runHandler(topic, handler, msg)
	}()
}

// queueFor returns the topic's delivered queue, creating it on first use.
// This is the single registration point for the queues map; each queue
// guards its own entries.
func (t *Transport[T]) queueFor(topic string) *deliveredQueue[T] {
	t.mu.Lock()
	defer t.mu.Unlock()
	q, ok := t.queues[topic]
	if !ok {
		q = &deliveredQueue[T]{}
		t.queues[topic] = q
	}
	return q
}

func (t *Transport[T]) checkOpen(topics ...string) error {
	for _, topic := range topics {
		if topic == "" {
			return ErrEmptyTopic
		}
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.closed {
		return ErrTransportClosed
	}
	return nil
}

func (t *Transport[T]) isClosed() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.closed
}

// deliveredQueue is the arrival-ordered record of decoded messages for one
// topic. Every topic owns an independent instance with its own lock, so
// concurrent delivery callbacks never contend on a shared structure.
type deliveredQueue[T any] struct {
	mu    sync.Mutex
	items []T
}

func (q *deliveredQueue[T]) append(msg T) {
	q.mu.Lock()
	q.items = append(q.items, msg)
	q.mu.Unlock()
}

func (q *deliveredQueue[T]) snapshot() []T {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]T, len(q.items))
	copy(out, q.items)
	return out
}
