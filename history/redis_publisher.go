package history

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// RedisReplayStore persists the last event per execution ID to Redis so a
// subscriber joining a different process than the one running the plan
// still gets a replay, for multi-process deployments. The in-process
// Publisher remains the default; this is an optional addition a
// multi-replica deployment can wire in alongside it.
type RedisReplayStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisReplayStore wraps an existing redis client. ttl bounds how long a
// replay entry survives after the last publish for that execution ID.
func NewRedisReplayStore(client *redis.Client, ttl time.Duration) *RedisReplayStore {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &RedisReplayStore{client: client, ttl: ttl}
}

func key(executionID string) string {
	return fmt.Sprintf("conductor:history:replay:%s", executionID)
}

// Save persists evt as the replay value for its execution ID.
func (s *RedisReplayStore) Save(ctx context.Context, evt Event) error {
	data, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("redis replay store: encoding event: %w", err)
	}
	return s.client.Set(ctx, key(evt.ExecutionID), data, s.ttl).Err()
}

// Load fetches the last replayed event for executionID, if any.
func (s *RedisReplayStore) Load(ctx context.Context, executionID string) (Event, bool, error) {
	data, err := s.client.Get(ctx, key(executionID)).Bytes()
	if err == redis.Nil {
		return Event{}, false, nil
	}
	if err != nil {
		return Event{}, false, fmt.Errorf("redis replay store: loading event: %w", err)
	}
	var evt Event
	if err := json.Unmarshal(data, &evt); err != nil {
		return Event{}, false, fmt.Errorf("redis replay store: decoding event: %w", err)
	}
	return evt, true, nil
}
