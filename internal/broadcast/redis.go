package broadcast

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisSink publishes events over Redis pub/sub for the external relay
// gateway to consume.
type RedisSink struct {
	rdb *redis.Client
}

func NewRedisSink(rdb *redis.Client) *RedisSink {
	return &RedisSink{rdb: rdb}
}

func (s *RedisSink) Publish(ctx context.Context, topic string, ev Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("broadcast: marshal event %q: %w", ev.Name, err)
	}
	// PUBLISH to zero subscribers is a successful no-op; that is the
	// at-most-once contract, not an error.
	return s.rdb.Publish(ctx, topic, data).Err()
}
