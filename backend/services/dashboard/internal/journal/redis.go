package journal

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	libredis "parkdash/backend/libs/redis"
)

// RedisJournal keeps a session feed in a capped Redis list so it survives dashboard
// restarts and can be read by other console instances.
type RedisJournal struct {
	client   *redis.Client
	key      string
	capacity int
	ttl      time.Duration
}

// NewRedisJournal returns a journal stored under parkdash:journal:<sessionID>.
func NewRedisJournal(client *redis.Client, sessionID string, capacity int, ttl time.Duration) *RedisJournal {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &RedisJournal{
		client:   client,
		key:      libredis.Key("parkdash", "journal", sessionID),
		capacity: capacity,
		ttl:      ttl,
	}
}

// Key returns the list key.
func (j *RedisJournal) Key() string {
	return j.key
}

func (j *RedisJournal) Append(ctx context.Context, e Entry) error {
	data, err := json.Marshal(e)
	if err != nil {
		return err
	}
	pipe := j.client.TxPipeline()
	pipe.LPush(ctx, j.key, data)
	pipe.LTrim(ctx, j.key, 0, int64(j.capacity-1))
	if j.ttl > 0 {
		pipe.Expire(ctx, j.key, j.ttl)
	}
	_, err = pipe.Exec(ctx)
	return err
}

func (j *RedisJournal) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 || limit > j.capacity {
		limit = j.capacity
	}
	raw, err := j.client.LRange(ctx, j.key, 0, int64(limit-1)).Result()
	if err != nil {
		return nil, err
	}
	out := make([]Entry, 0, len(raw))
	for _, item := range raw {
		var e Entry
		if err := json.Unmarshal([]byte(item), &e); err != nil {
			return nil, fmt.Errorf("journal: decode entry: %w", err)
		}
		out = append(out, e)
	}
	return out, nil
}

func (j *RedisJournal) Clear(ctx context.Context) error {
	return j.client.Del(ctx, j.key).Err()
}
