package bridge

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// defaultStreamGroup is the consumer group joined by every consumer,
	// which gives streams the same competing-consumer delivery a broker
	// queue has.
	defaultStreamGroup = "bridge"

	streamPayloadKey = "payload"
	streamReadBlock  = 2 * time.Second
	streamRetryDelay = time.Second
)

// RedisStreamConnector opens channels backed by Redis Streams. Unlike plain
// pub/sub, a stream retains messages published while no consumer is running.
type RedisStreamConnector struct {
	creds Credentials
	group string
}

func NewRedisStreamConnector(creds Credentials, group string) *RedisStreamConnector {
	if group == "" {
		group = defaultStreamGroup
	}
	return &RedisStreamConnector{creds: creds, group: group}
}

func (c *RedisStreamConnector) CreateChannel() (Channel, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     c.creds.Addr(),
		Username: c.creds.Username,
		Password: c.creds.Password,
	})

	// go-redis dials lazily, so ping to surface a bad address here rather
	// than on the first publish.
	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: %s: %w", ErrConnectionFailed, c.creds.Addr(), err)
	}

	ctx, stop := context.WithCancel(context.Background())
	return &redisStreamChannel{
		client: client,
		group:  c.group,
		ctx:    ctx,
		cancel: stop,
	}, nil
}

// redisStreamChannel maps each topic to a stream of the same name and reads
// through one consumer group, acknowledging entries as they are read.
type redisStreamChannel struct {
	client *redis.Client
	group  string
	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	nextTag int
	closed  bool
}

// DeclareTopic creates the stream and its consumer group. A group that
// already exists is fine.
func (r *redisStreamChannel) DeclareTopic(name string) error {
	if r.isClosed() {
		return ErrChannelClosed
	}
	err := r.client.XGroupCreateMkStream(r.ctx, name, r.group, "$").Err()
	if err != nil && err.Error() != "BUSYGROUP Consumer Group name already exists" {
		return err
	}
	return nil
}

func (r *redisStreamChannel) PublishBytes(ctx context.Context, topic string, body []byte) error {
	if r.isClosed() {
		return ErrChannelClosed
	}
	return r.client.XAdd(ctx, &redis.XAddArgs{
		Stream: topic,
		Values: map[string]interface{}{streamPayloadKey: body},
	}).Err()
}

// Consume reads the topic's stream in a goroutine that blocks on XREADGROUP
// and ends when the channel closes.
func (r *redisStreamChannel) Consume(topic string, deliver DeliverFunc) (ConsumerTag, error) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return "", ErrChannelClosed
	}
	r.nextTag++
	tag := ConsumerTag(fmt.Sprintf("%s-%d", r.group, r.nextTag))
	r.mu.Unlock()

	go r.readLoop(topic, string(tag), deliver)
	return tag, nil
}

func (r *redisStreamChannel) readLoop(topic, consumer string, deliver DeliverFunc) {
	for {
		select {
		case <-r.ctx.Done():
			return
		default:
		}

		streams, err := r.client.XReadGroup(r.ctx, &redis.XReadGroupArgs{
			Group:    r.group,
			Consumer: consumer,
			Streams:  []string{topic, ">"},
			Count:    1,
			Block:    streamReadBlock,
		}).Result()

		if err == redis.Nil {
			continue // block timed out with no message
		}
		if err != nil {
			if r.ctx.Err() != nil {
				return
			}
			time.Sleep(streamRetryDelay)
			continue
		}

		for _, stream := range streams {
			for _, msg := range stream.Messages {
				// Ack first: delivery is the point of no return, the
				// same way an auto-acked broker consumer works.
				r.client.XAck(r.ctx, topic, r.group, msg.ID)

				val, ok := msg.Values[streamPayloadKey].(string)
				if !ok {
					continue // entry written by something else, skip
				}
				deliver([]byte(val))
			}
		}
	}
}

// Close stops every read loop and releases the client. A second Close fails.
func (r *redisStreamChannel) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrChannelClosed
	}
	r.closed = true
	r.cancel()
	return r.client.Close()
}

func (r *redisStreamChannel) isClosed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}
