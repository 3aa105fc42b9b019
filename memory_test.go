package bridge

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestMemoryChannelRoundTrip(t *testing.T) {
	ch := NewMemoryChannel()
	defer ch.Close()

	got := make(chan []byte, 1)
	if _, err := ch.Consume("events", func(body []byte) { got <- body }); err != nil {
		t.Fatalf("Failed to consume: %v", err)
	}

	if err := ch.PublishBytes(context.Background(), "events", []byte("hello")); err != nil {
		t.Fatalf("Failed to publish: %v", err)
	}

	select {
	case body := <-got:
		if string(body) != "hello" {
			t.Fatalf("Expected %q, got: %q", "hello", string(body))
		}
	case <-time.After(time.Second):
		t.Fatal("Expected the message to be delivered")
	}
}

func TestMemoryChannelFanOut(t *testing.T) {
	ch := NewMemoryChannel()
	defer ch.Close()

	// Every consumer of a topic sees every message
	first := make(chan []byte, 1)
	second := make(chan []byte, 1)
	if _, err := ch.Consume("events", func(body []byte) { first <- body }); err != nil {
		t.Fatalf("Failed to register first consumer: %v", err)
	}
	if _, err := ch.Consume("events", func(body []byte) { second <- body }); err != nil {
		t.Fatalf("Failed to register second consumer: %v", err)
	}

	if err := ch.PublishBytes(context.Background(), "events", []byte("both")); err != nil {
		t.Fatalf("Failed to publish: %v", err)
	}

	for name, c := range map[string]chan []byte{"first": first, "second": second} {
		select {
		case body := <-c:
			if string(body) != "both" {
				t.Fatalf("Expected %q for the %s consumer, got: %q", "both", name, string(body))
			}
		case <-time.After(time.Second):
			t.Fatalf("Expected the %s consumer to receive the message", name)
		}
	}
}

func TestMemoryChannelWithoutConsumers(t *testing.T) {
	ch := NewMemoryChannel()
	defer ch.Close()

	// Publishing into the void succeeds, like a queue without consumers
	if err := ch.PublishBytes(context.Background(), "events", []byte("unheard")); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
}

func TestMemoryChannelDeclareIdempotent(t *testing.T) {
	ch := NewMemoryChannel()
	defer ch.Close()

	for i := 0; i < 2; i++ {
		if err := ch.DeclareTopic("events"); err != nil {
			t.Fatalf("Declare %d failed: %v", i, err)
		}
	}
}

func TestMemoryChannelClose(t *testing.T) {
	ch := NewMemoryChannel()
	if err := ch.Close(); err != nil {
		t.Fatalf("Expected no error closing, got: %v", err)
	}

	// Every operation on a closed channel is rejected
	if err := ch.DeclareTopic("events"); !errors.Is(err, ErrChannelClosed) {
		t.Fatalf("Expected ErrChannelClosed declaring, got: %v", err)
	}
	if err := ch.PublishBytes(context.Background(), "events", nil); !errors.Is(err, ErrChannelClosed) {
		t.Fatalf("Expected ErrChannelClosed publishing, got: %v", err)
	}
	if _, err := ch.Consume("events", func([]byte) {}); !errors.Is(err, ErrChannelClosed) {
		t.Fatalf("Expected ErrChannelClosed consuming, got: %v", err)
	}
	if err := ch.Close(); !errors.Is(err, ErrChannelClosed) {
		t.Fatalf("Expected ErrChannelClosed on second close, got: %v", err)
	}
}

func TestMemoryConnectorIsolatedChannels(t *testing.T) {
	var c MemoryConnector

	first, err := c.CreateChannel()
	if err != nil {
		t.Fatalf("Failed to create first channel: %v", err)
	}
	defer first.Close()
	second, err := c.CreateChannel()
	if err != nil {
		t.Fatalf("Failed to create second channel: %v", err)
	}
	defer second.Close()

	// A consumer on one channel never sees the other channel's messages
	got := make(chan []byte, 1)
	if _, err := first.Consume("events", func(body []byte) { got <- body }); err != nil {
		t.Fatalf("Failed to consume: %v", err)
	}
	if err := second.PublishBytes(context.Background(), "events", []byte("elsewhere")); err != nil {
		t.Fatalf("Failed to publish: %v", err)
	}

	select {
	case <-got:
		t.Fatal("Expected channels from separate CreateChannel calls to be isolated")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestTransportMemoryRoundTrip(t *testing.T) {
	transport := NewTransport[testEvent](NewMemoryChannel())
	defer transport.Close()

	handled := make(chan testEvent, 1)
	err := transport.Subscribe("events", func(ctx context.Context, msg testEvent) error {
		handled <- msg
		return nil
	})
	if err != nil {
		t.Fatalf("Failed to subscribe: %v", err)
	}

	event := testEvent{Name: "loop", Count: 9}
	if err := transport.Publish(context.Background(), "events", event); err != nil {
		t.Fatalf("Failed to publish: %v", err)
	}

	select {
	case got := <-handled:
		if got != event {
			t.Fatalf("Expected %+v, got: %+v", event, got)
		}
	case <-time.After(time.Second):
		t.Fatal("Expected the published message to come back around")
	}

	if len(transport.Delivered("events")) != 1 {
		t.Fatalf("Expected 1 delivered message, got: %d", len(transport.Delivered("events")))
	}
}

func TestTransportResource(t *testing.T) {
	r := NewTransportResource[testEvent](MemoryConnector{})

	var leaked *Transport[testEvent]
	err := r.Use(func(transport *Transport[testEvent]) error {
		leaked = transport

		handled := make(chan testEvent, 1)
		if err := transport.Subscribe("events", func(ctx context.Context, msg testEvent) error {
			handled <- msg
			return nil
		}); err != nil {
			return err
		}
		if err := transport.Publish(context.Background(), "events", testEvent{Name: "scoped"}); err != nil {
			return err
		}

		select {
		case <-handled:
			return nil
		case <-time.After(time.Second):
			return errors.New("message never delivered")
		}
	})
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	// The transport is disposed when Use returns
	err = leaked.Publish(context.Background(), "events", testEvent{})
	if !errors.Is(err, ErrTransportClosed) {
		t.Fatalf("Expected ErrTransportClosed after Use, got: %v", err)
	}
}

func TestTransportResourceConnectorError(t *testing.T) {
	boom := errors.New("dial boom")
	r := NewTransportResource[testEvent](ConnectorFunc(func() (Channel, error) {
		return nil, boom
	}))

	opRan := false
	err := r.Use(func(transport *Transport[testEvent]) error {
		opRan = true
		return nil
	})
	if !errors.Is(err, boom) {
		t.Fatalf("Expected the connector error, got: %v", err)
	}
	if opRan {
		t.Fatal("Operation must not run when the connector fails")
	}
}
