package livecache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis implements Cache on a shared Redis instance.
//
// Every primitive maps to a single Redis command or a single Lua script, so
// horizontal coordinator instances never race through application-level
// read-modify-write cycles.
type Redis struct {
	rdb *redis.Client
}

func NewRedis(rdb *redis.Client) *Redis {
	return &Redis{rdb: rdb}
}

var pushMailboxScript = redis.NewScript(`
-- KEYS[1] = mailbox key
-- ARGV[1] = payload
-- ARGV[2] = ttl_ms (int)
--
-- Append and refresh the TTL in one step so a mailbox never outlives
-- its TTL window after the latest push.
redis.call('RPUSH', KEYS[1], ARGV[1])
redis.call('PEXPIRE', KEYS[1], ARGV[2])
return 1
`)

var drainMailboxScript = redis.NewScript(`
-- KEYS[1] = mailbox key
-- Read everything and delete atomically; two concurrent drains must not
-- both observe the same payloads.
local items = redis.call('LRANGE', KEYS[1], 0, -1)
redis.call('DEL', KEYS[1])
return items
`)

func (r *Redis) SetActiveBlob(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		return fmt.Errorf("livecache: ttl must be > 0 for %q", key)
	}
	return r.rdb.Set(ctx, key, value, ttl).Err()
}

func (r *Redis) GetActiveBlob(ctx context.Context, key string) ([]byte, bool, error) {
	v, err := r.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return v, true, nil
}

func (r *Redis) DeleteActiveBlob(ctx context.Context, key string) error {
	return r.rdb.Del(ctx, key).Err()
}

func (r *Redis) AddMember(ctx context.Context, setKey, member string) error {
	return r.rdb.SAdd(ctx, setKey, member).Err()
}

func (r *Redis) RemoveMember(ctx context.Context, setKey, member string) error {
	return r.rdb.SRem(ctx, setKey, member).Err()
}

func (r *Redis) Cardinality(ctx context.Context, setKey string) (int64, error) {
	return r.rdb.SCard(ctx, setKey).Result()
}

func (r *Redis) ClearMembers(ctx context.Context, setKey string) error {
	return r.rdb.Del(ctx, setKey).Err()
}

func (r *Redis) SetPointer(ctx context.Context, key, value string) error {
	return r.rdb.Set(ctx, key, value, 0).Err()
}

func (r *Redis) SetPointerIfAbsent(ctx context.Context, key, value string) (bool, error) {
	return r.rdb.SetNX(ctx, key, value, 0).Result()
}

func (r *Redis) GetPointer(ctx context.Context, key string) (string, bool, error) {
	v, err := r.rdb.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

func (r *Redis) ClearPointer(ctx context.Context, key string) error {
	return r.rdb.Del(ctx, key).Err()
}

func (r *Redis) PushMailbox(ctx context.Context, mailboxKey string, payload []byte, ttl time.Duration) error {
	if ttl <= 0 {
		return fmt.Errorf("livecache: ttl must be > 0 for %q", mailboxKey)
	}
	return pushMailboxScript.Run(ctx, r.rdb, []string{mailboxKey}, payload, ttl.Milliseconds()).Err()
}

func (r *Redis) DrainMailbox(ctx context.Context, mailboxKey string) ([][]byte, error) {
	vals, err := drainMailboxScript.Run(ctx, r.rdb, []string{mailboxKey}).StringSlice()
	if err != nil {
		return nil, err
	}
	out := make([][]byte, 0, len(vals))
	for _, v := range vals {
		out = append(out, []byte(v))
	}
	return out, nil
}
