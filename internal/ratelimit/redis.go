package ratelimit

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// refillAndTake refills the bucket from elapsed time and consumes one
// token, all inside Redis so concurrent takers on the same key cannot
// interleave.
var refillAndTake = redis.NewScript(`
local key = KEYS[1]
local max = tonumber(ARGV[1])
local refill = tonumber(ARGV[2])
local now = tonumber(ARGV[3])
local ttl = tonumber(ARGV[4])

local data = redis.call('HMGET', key, 'tokens', 'ts')
local tokens = tonumber(data[1])
local ts = tonumber(data[2])
if tokens == nil or ts == nil then
  tokens = max
  ts = now
end

local elapsed = now - ts
if elapsed > 0 then
  tokens = math.min(max, tokens + elapsed * refill)
end

local allowed = 0
if tokens >= 1 then
  tokens = tokens - 1
  allowed = 1
end

redis.call('HSET', key, 'tokens', tokens, 'ts', now)
redis.call('EXPIRE', key, ttl)
return {allowed, tostring(tokens)}
`)

// RedisStore keeps buckets in Redis so all nodes share one budget.
type RedisStore struct {
	client *redis.Client
	now    func() time.Time
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client, now: time.Now}
}

func (s *RedisStore) Take(ctx context.Context, key string, rule Rule) (Decision, error) {
	refillPerSecond := rule.RefillPerMinute / 60.0
	now := float64(s.now().UnixMicro()) / 1e6

	// Idle buckets expire once they would have refilled completely.
	ttl := int(math.Ceil(rule.ResetAfter().Seconds())) + 60

	res, err := refillAndTake.Run(ctx, s.client,
		[]string{key},
		rule.MaxTokens, refillPerSecond, now, ttl,
	).Slice()
	if err != nil {
		return Decision{}, fmt.Errorf("rate limit script: %w", err)
	}
	if len(res) != 2 {
		return Decision{}, fmt.Errorf("rate limit script: unexpected reply %v", res)
	}

	allowed, ok := res[0].(int64)
	if !ok {
		return Decision{}, fmt.Errorf("rate limit script: unexpected allowed value %v", res[0])
	}
	tokensStr, ok := res[1].(string)
	if !ok {
		return Decision{}, fmt.Errorf("rate limit script: unexpected tokens value %v", res[1])
	}
	tokens, err := strconv.ParseFloat(tokensStr, 64)
	if err != nil {
		return Decision{}, fmt.Errorf("rate limit script: parse tokens: %w", err)
	}

	d := Decision{
		Allowed:   allowed == 1,
		Limit:     rule.MaxTokens,
		Remaining: int(tokens),
	}
	if !d.Allowed {
		d.RetryAfter = rule.RetryAfter()
	}
	return d, nil
}
