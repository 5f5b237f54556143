package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// takeScript keeps one sorted set of hit timestamps per rule. All keys are checked before any is
// written, so a rejection leaves every window untouched. Returns the 1-based index of the
// exhausted rule, or 0.
var takeScript = redis.NewScript(`
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local member = ARGV[3]
for i, key in ipairs(KEYS) do
  redis.call('ZREMRANGEBYSCORE', key, '-inf', now - window)
  if redis.call('ZCARD', key) >= tonumber(ARGV[3 + i]) then
    return i
  end
end
for _, key in ipairs(KEYS) do
  redis.call('ZADD', key, now, member)
  redis.call('PEXPIRE', key, window)
end
return 0
`)

// RedisStore shares windows across gateway replicas. The script touches several keys, so it
// needs a single-node or sentinel deployment rather than Redis Cluster.
type RedisStore struct {
	client redis.Scripter
	prefix string
	now    func() time.Time
}

func NewRedisStore(client redis.Scripter, prefix string) *RedisStore {
	return &RedisStore{client: client, prefix: prefix, now: time.Now}
}

func (s *RedisStore) Take(ctx context.Context, win time.Duration, rules []Rule) (int, error) {
	if len(rules) == 0 {
		return -1, nil
	}
	keys := make([]string, len(rules))
	args := make([]interface{}, 0, 3+len(rules))
	args = append(args, s.now().UnixMilli(), win.Milliseconds(), uuid.NewString())
	for i, r := range rules {
		keys[i] = s.prefix + ":rl:" + r.Scope + ":" + r.Key
		args = append(args, strconv.Itoa(r.Limit))
	}

	idx, err := takeScript.Run(ctx, s.client, keys, args...).Int()
	if err != nil {
		return -1, fmt.Errorf("rate limit script: %w", err)
	}
	return idx - 1, nil
}
