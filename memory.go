package bridge

import (
	"context"
	"fmt"
	"sync"
)

// memoryBufferSize is the per-consumer delivery buffer.
const memoryBufferSize = 100

// MemoryChannel is an in-process Channel for tests and single-process use.
// Every consumer of a topic receives every message published to it; there is
// no competing-consumer balancing. Deliveries reach each consumer in publish
// order through a dedicated goroutine, and messages still buffered at Close
// are dropped.
type MemoryChannel struct {
	mu        sync.RWMutex
	declared  map[string]bool
	consumers map[string][]*memoryConsumer
	nextTag   int
	closed    bool
	done      chan struct{}
}

type memoryConsumer struct {
	ch      chan []byte
	deliver DeliverFunc
}

func NewMemoryChannel() *MemoryChannel {
	return &MemoryChannel{
		declared:  make(map[string]bool),
		consumers: make(map[string][]*memoryConsumer),
		done:      make(chan struct{}),
	}
}

// MemoryConnector opens a fresh, unconnected MemoryChannel per call. Tests
// that need two transports on one channel should share a MemoryChannel via
// ConnectorFunc instead.
type MemoryConnector struct{}

func (MemoryConnector) CreateChannel() (Channel, error) {
	return NewMemoryChannel(), nil
}

// DeclareTopic records the topic. Declaring it again is a no-op.
func (m *MemoryChannel) DeclareTopic(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrChannelClosed
	}
	m.declared[name] = true
	return nil
}

// PublishBytes hands a copy of body to every consumer of the topic. A topic
// without consumers swallows the message, as a broker queue without a
// binding would.
func (m *MemoryChannel) PublishBytes(ctx context.Context, topic string, body []byte) error {
	m.mu.RLock()
	if m.closed {
		m.mu.RUnlock()
		return ErrChannelClosed
	}
	consumers := make([]*memoryConsumer, len(m.consumers[topic]))
	copy(consumers, m.consumers[topic])
	m.mu.RUnlock()

	for _, c := range consumers {
		buf := make([]byte, len(body))
		copy(buf, body)
		select {
		case c.ch <- buf:
		case <-m.done:
			return ErrChannelClosed
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// Consume registers deliver for the topic and starts its delivery goroutine.
func (m *MemoryChannel) Consume(topic string, deliver DeliverFunc) (ConsumerTag, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return "", ErrChannelClosed
	}

	c := &memoryConsumer{
		ch:      make(chan []byte, memoryBufferSize),
		deliver: deliver,
	}
	m.consumers[topic] = append(m.consumers[topic], c)
	m.nextTag++
	tag := ConsumerTag(fmt.Sprintf("memory-%d", m.nextTag))

	go func() {
		for {
			select {
			case body := <-c.ch:
				c.deliver(body)
			case <-m.done:
				return
			}
		}
	}()
	return tag, nil
}

// Close stops all delivery goroutines. A second Close fails.
func (m *MemoryChannel) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrChannelClosed
	}
	m.closed = true
	close(m.done)
	return nil
}
