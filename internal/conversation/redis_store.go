package conversation

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/bookline-ai/bookline/internal/dialogue"
)

const contextTTL = 24 * time.Hour

// RedisStore persists conversation contexts as JSON blobs with a TTL.
// The TTL doubles as a hard upper bound on session lifetime; goal-level
// staleness inside the window is handled by the dialogue manager.
type RedisStore struct {
	redis    *redis.Client
	capacity int
	tracer   trace.Tracer
}

// NewRedisStore creates a redis-backed context store. capacity bounds the
// turn buffer of loaded contexts.
func NewRedisStore(client *redis.Client, capacity int) *RedisStore {
	if client == nil {
		panic("conversation: redis client cannot be nil")
	}
	return &RedisStore{
		redis:    client,
		capacity: capacity,
		tracer:   otel.Tracer("bookline.internal.conversation.store"),
	}
}

// Load fetches the context for key, returning a fresh empty context when
// the key is absent or expired.
func (s *RedisStore) Load(ctx context.Context, key Key) (*Context, error) {
	ctx, span := s.tracer.Start(ctx, "conversation.load_context")
	defer span.End()

	data, err := s.redis.Get(ctx, contextKey(key)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return NewContext(key, s.capacity), nil
		}
		span.RecordError(err)
		return nil, fmt.Errorf("conversation: failed to load context: %w", err)
	}

	var conv Context
	if err := json.Unmarshal(data, &conv); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("conversation: failed to decode context: %w", err)
	}
	if conv.State == nil {
		conv.State = &dialogue.State{}
	}
	conv.SetCapacity(s.capacity)
	return &conv, nil
}

// Save persists the context, refreshing its TTL.
func (s *RedisStore) Save(ctx context.Context, conv *Context) error {
	ctx, span := s.tracer.Start(ctx, "conversation.save_context")
	defer span.End()

	data, err := json.Marshal(conv)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("conversation: failed to marshal context: %w", err)
	}
	if err := s.redis.Set(ctx, contextKey(conv.Key), data, contextTTL).Err(); err != nil {
		span.RecordError(err)
		return fmt.Errorf("conversation: failed to persist context: %w", err)
	}
	return nil
}

func contextKey(key Key) string {
	return fmt.Sprintf("context:%s", key.String())
}
