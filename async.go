package bridge

import (
	"context"
	"fmt"
	"sync"
)

// PublishAsync schedules Publish on the worker pool and returns immediately.
// The future settles with the same error taxonomy as Publish.
func (t *Transport[T]) PublishAsync(ctx context.Context, topic string, msg T) *Future[struct{}] {
	if err := t.checkOpen(topic); err != nil {
		return resolvedFuture(struct{}{}, err)
	}
	return t.schedule(func() error { return t.Publish(ctx, topic, msg) })
}

// PublishMultipleAsync encodes the message once, then schedules every
// topic's send independently. The returned future settles after all sends
// have settled, carrying the first error observed if any. Like
// PublishMultiple it is not transactional: sends that succeeded stand.
func (t *Transport[T]) PublishMultipleAsync(ctx context.Context, topics []string, msg T) *Future[struct{}] {
	if err := t.checkOpen(topics...); err != nil {
		return resolvedFuture(struct{}{}, err)
	}

	f := newFuture[struct{}]()
	go func() {
		body, err := t.codec.Marshal(msg)
		if err != nil {
			f.complete(struct{}{}, fmt.Errorf("%w: %w", ErrEncodeFailed, err))
			return
		}

		var (
			wg       sync.WaitGroup
			mu       sync.Mutex
			firstErr error
		)
		for _, topic := range topics {
			wg.Add(1)
			go func(topic string) {
				defer wg.Done()
				t.sem <- struct{}{}
				defer func() { <-t.sem }()

				if err := t.send(ctx, topic, body); err != nil {
					mu.Lock()
					if firstErr == nil {
						firstErr = err
					}
					mu.Unlock()
				}
			}(topic)
		}
		wg.Wait()
		f.complete(struct{}{}, firstErr)
	}()
	return f
}

// SubscribeAsync registers the subscription through the worker pool. The
// returned future settles once the broker-side consumer registration has
// settled, successfully or not; it says nothing about message arrivals.
// Each delivery's handler is then dispatched onto the worker pool, with
// decode and handler failures logged and counted exactly as in Subscribe.
func (t *Transport[T]) SubscribeAsync(topic string, handler Handler[T]) *Future[struct{}] {
	if err := t.checkOpen(topic); err != nil {
		return resolvedFuture(struct{}{}, err)
	}
	return t.schedule(func() error { return t.subscribe(topic, handler, true) })
}

// SubscribeMultiple registers an empty delivered queue for every topic up
// front, then subscribes to each topic independently. The returned future
// settles once every per-topic registration has settled, carrying the first
// error encountered if any.
func (t *Transport[T]) SubscribeMultiple(topics []string, handler Handler[T]) *Future[struct{}] {
	if err := t.checkOpen(topics...); err != nil {
		return resolvedFuture(struct{}{}, err)
	}
	for _, topic := range topics {
		t.queueFor(topic)
	}

	f := newFuture[struct{}]()
	go func() {
		subs := make([]*Future[struct{}], 0, len(topics))
		for _, topic := range topics {
			subs = append(subs, t.SubscribeAsync(topic, handler))
		}

		var firstErr error
		for _, sub := range subs {
			if err := sub.Err(); err != nil && firstErr == nil {
				firstErr = err
			}
		}
		f.complete(struct{}{}, firstErr)
	}()
	return f
}

// CloseAsync runs Close off the calling goroutine and returns its future.
// Like Close it is not idempotent.
func (t *Transport[T]) CloseAsync() *Future[struct{}] {
	f := newFuture[struct{}]()
	go func() {
		f.complete(struct{}{}, t.Close())
	}()
	return f
}

// schedule runs fn on the worker pool and returns a future settling with its
// outcome. The pool slot is acquired inside the goroutine, so the caller
// never blocks even when the pool is saturated.
func (t *Transport[T]) schedule(fn func() error) *Future[struct{}] {
	f := newFuture[struct{}]()
	go func() {
		t.sem <- struct{}{}
		defer func() { <-t.sem }()
		f.complete(struct{}{}, fn())
	}()
	return f
}
