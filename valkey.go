package bridge

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/valkey-io/valkey-go"
)

// ValkeyConnector opens Valkey pub/sub channels. The credentials supply the
// address and auth; a custom ClientOption overrides everything else.
type ValkeyConnector struct {
	creds  Credentials
	option valkey.ClientOption
}

func NewValkeyConnector(creds Credentials, options ...valkey.ClientOption) *ValkeyConnector {
	option := valkey.ClientOption{
		InitAddress: []string{creds.Addr()},
		Username:    creds.Username,
		Password:    creds.Password,
	}
	if len(options) > 0 {
		option = options[0]
		if len(option.InitAddress) == 0 {
			option.InitAddress = []string{creds.Addr()}
		}
	}
	return &ValkeyConnector{creds: creds, option: option}
}

func (c *ValkeyConnector) CreateChannel() (Channel, error) {
	client, err := valkey.NewClient(c.option)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrConnectionFailed, c.creds.Addr(), err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &valkeyChannel{
		client: client,
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}, nil
}

// valkeyChannel maps each topic to a Valkey pub/sub channel of the same
// name. Delivery is fire-and-forget: a message published while no consumer
// is connected is gone.
type valkeyChannel struct {
	client valkey.Client
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	mu      sync.Mutex
	nextTag int
	closed  bool
}

// DeclareTopic is a no-op. A pub/sub channel exists once someone publishes
// or subscribes to it; there is nothing to create up front.
func (v *valkeyChannel) DeclareTopic(string) error {
	if v.isClosed() {
		return ErrChannelClosed
	}
	return nil
}

func (v *valkeyChannel) PublishBytes(ctx context.Context, topic string, body []byte) error {
	if v.isClosed() {
		return ErrChannelClosed
	}
	cmd := v.client.B().Publish().Channel(topic).Message(string(body)).Build()
	return v.client.Do(ctx, cmd).Error()
}

// Consume starts a subscription goroutine for the topic. The goroutine
// re-subscribes with exponential backoff when the connection drops and ends
// when the channel closes.
func (v *valkeyChannel) Consume(topic string, deliver DeliverFunc) (ConsumerTag, error) {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return "", ErrChannelClosed
	}
	v.nextTag++
	tag := ConsumerTag(fmt.Sprintf("valkey-%d", v.nextTag))
	v.mu.Unlock()

	go v.receiveLoop(topic, deliver)
	return tag, nil
}

func (v *valkeyChannel) receiveLoop(topic string, deliver DeliverFunc) {
	retryDelay := 100 * time.Millisecond
	maxRetryDelay := 30 * time.Second
	subscriber := v.client.B().Subscribe().Channel(topic).Build()

	for {
		if v.shouldStop() {
			return
		}

		// Blocks until the subscription drops or the context is cancelled.
		err := v.client.Receive(v.ctx, subscriber, func(msg valkey.PubSubMessage) {
			if msg.Channel != topic {
				return
			}
			deliver([]byte(msg.Message))
		})

		if v.shouldStop() {
			return
		}

		if err != nil {
			// Network disconnections and server restarts land here;
			// retry with backoff.
			time.Sleep(retryDelay)
			retryDelay *= 2
			if retryDelay > maxRetryDelay {
				retryDelay = maxRetryDelay
			}
			continue
		}

		// Receive returned cleanly; reset the delay before resubscribing.
		retryDelay = 100 * time.Millisecond
		time.Sleep(retryDelay)
	}
}

// Close stops every subscription goroutine and releases the client. A second
// Close fails.
func (v *valkeyChannel) Close() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return ErrChannelClosed
	}
	v.closed = true
	close(v.done)
	v.cancel()
	v.client.Close()
	return nil
}

func (v *valkeyChannel) isClosed() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.closed
}

func (v *valkeyChannel) shouldStop() bool {
	select {
	case <-v.done:
		return true
	case <-v.ctx.Done():
		return true
	default:
		return false
	}
}
