package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "resolver:ratelimit:"

// takeScript increments the window counter, starts the window on the first
// hit and reports the remaining lifetime in milliseconds.
var takeScript = redis.NewScript(`
local current = redis.call("INCR", KEYS[1])
if current == 1 then
	redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return {current, redis.call("PTTL", KEYS[1])}
`)

// RedisStore shares windows between instances. Keys expire with their
// window, so no sweeping is needed.
type RedisStore struct {
	client redis.Scripter
	prefix string
}

func NewRedisStore(client redis.Scripter, prefix string) *RedisStore {
	if prefix == "" {
		prefix = redisKeyPrefix
	}
	return &RedisStore{client: client, prefix: prefix}
}

func (r *RedisStore) Take(ctx context.Context, key string, limit int, window time.Duration) (Decision, error) {
	values, err := takeScript.Run(ctx, r.client, []string{r.prefix + key}, window.Milliseconds()).Int64Slice()
	if err != nil {
		return Decision{}, err
	}
	if len(values) != 2 {
		return Decision{}, fmt.Errorf("unexpected rate limit script reply: %v", values)
	}
	count := int(values[0])
	wait := time.Duration(values[1]) * time.Millisecond
	if wait <= 0 {
		wait = window
	}
	remaining := limit - count
	if remaining < 0 {
		remaining = 0
	}
	return Decision{
		Allowed:   count <= limit,
		Remaining: remaining,
		ResetAt:   time.Now().Add(wait),
	}, nil
}
