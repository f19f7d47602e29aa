package stream

import (
	"context"
	"encoding/json"
	"fmt"

	v1 "github.com/pulse-analytics/pulse/internal/api/v1"
	"github.com/redis/go-redis/v9"
)

// streamAdder is the slice of the redis client the publisher needs.
type streamAdder interface {
	Pipelined(ctx context.Context, fn func(redis.Pipeliner) error) ([]redis.Cmder, error)
	Close() error
}

// RedisPublisher appends events to a Redis stream, one entry per event.
// Entries carry the JSON event under a single "data" field.
type RedisPublisher struct {
	client streamAdder
	stream string
	maxLen int64
}

// NewRedisPublisher connects to addr. The stream is capped approximately at maxLen entries when maxLen > 0.
func NewRedisPublisher(addr, stream string, maxLen int64) *RedisPublisher {
	client := redis.NewClient(&redis.Options{Addr: addr})
	return newRedisPublisher(client, stream, maxLen)
}

func newRedisPublisher(client streamAdder, stream string, maxLen int64) *RedisPublisher {
	return &RedisPublisher{client: client, stream: stream, maxLen: maxLen}
}

func (p *RedisPublisher) Name() string { return "redis" }

// Publish writes the batch in one pipeline round trip.
func (p *RedisPublisher) Publish(ctx context.Context, events []*v1.Event) error {
	payloads := make([]string, len(events))
	for i, e := range events {
		b, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("marshal event %s: %w", e.ID, err)
		}
		payloads[i] = string(b)
	}

	_, err := p.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, e := range events {
			args := &redis.XAddArgs{
				Stream: p.stream,
				Values: map[string]any{
					"site_id": e.SiteID,
					"kind":    string(e.Kind),
					"data":    payloads[i],
				},
			}
			if p.maxLen > 0 {
				args.MaxLen = p.maxLen
				args.Approx = true
			}
			pipe.XAdd(ctx, args)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("xadd %s: %w", p.stream, err)
	}
	return nil
}

func (p *RedisPublisher) Close() error {
	return p.client.Close()
}
