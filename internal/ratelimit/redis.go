package ratelimit

import (
	"context"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"

	"github.com/aastar/faucet/internal/xerrors"
)

// RedisClient is the subset of *redis.Client used by RedisWindow.
type RedisClient interface {
	Eval(ctx context.Context, script string, keys []string, args ...interface{}) *redis.Cmd
	EvalSha(ctx context.Context, sha1 string, keys []string, args ...interface{}) *redis.Cmd
	ScriptExists(ctx context.Context, hashes ...string) *redis.BoolSliceCmd
	ScriptLoad(ctx context.Context, script string) *redis.StringCmd
	ZRangeByScoreWithScores(ctx context.Context, key string, opt *redis.ZRangeBy) *redis.ZSliceCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// admitScript keeps one sorted set per key scored by admission time in ms.
// KEYS[1] key, ARGV: now_ms, window_ms, max, member
var admitScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local max = tonumber(ARGV[3])
redis.call('ZREMRANGEBYSCORE', key, '-inf', now - window)
if redis.call('ZCARD', key) >= max then
  return 0
end
redis.call('ZADD', key, now, ARGV[4])
redis.call('PEXPIRE', key, window)
return 1
`)

// RedisWindow is a sliding-window limiter whose history lives in Redis,
// giving every replica the same quota per key.
type RedisWindow struct {
	client RedisClient
	prefix string
	window time.Duration
	max    int
	now    Clock
}

type RedisOption func(*RedisWindow)

// WithRedisPrefix namespaces keys in Redis. Defaults to "faucet:rl:".
func WithRedisPrefix(p string) RedisOption {
	return func(r *RedisWindow) { r.prefix = p }
}

// WithRedisClock replaces time.Now for scoring.
func WithRedisClock(c Clock) RedisOption {
	return func(r *RedisWindow) {
		if c != nil {
			r.now = c
		}
	}
}

// NewRedisWindow returns a Redis-backed limiter. Non-positive window or max fall
// back to 1h and 2.
func NewRedisWindow(client RedisClient, window time.Duration, max int, opts ...RedisOption) *RedisWindow {
	r := &RedisWindow{
		client: client,
		prefix: "faucet:rl:",
		window: window,
		max:    max,
		now:    time.Now,
	}
	if r.window <= 0 {
		r.window = time.Hour
	}
	if r.max <= 0 {
		r.max = 2
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Admit implements Limiter. Errors reaching Redis are returned to the caller,
// which decides whether to fail open or closed.
func (r *RedisWindow) Admit(ctx context.Context, key string) (bool, error) {
	now := r.now().UnixMilli()
	res, err := admitScript.Run(ctx, r.client, []string{r.prefix + key},
		now, r.window.Milliseconds(), r.max, uuid.NewString(),
	).Int64()
	if err != nil {
		return false, xerrors.Wrapf(err, "rate limit admit %s", key)
	}
	return res == 1, nil
}

// Live implements Limiter.
func (r *RedisWindow) Live(ctx context.Context, key string) ([]time.Time, error) {
	now := r.now().UnixMilli()
	zs, err := r.client.ZRangeByScoreWithScores(ctx, r.prefix+key, &redis.ZRangeBy{
		Min: "(" + strconv.FormatInt(now-r.window.Milliseconds(), 10),
		Max: "+inf",
	}).Result()
	if err != nil {
		return nil, xerrors.Wrapf(err, "rate limit live %s", key)
	}
	out := make([]time.Time, 0, len(zs))
	for _, z := range zs {
		out = append(out, time.UnixMilli(int64(z.Score)))
	}
	return out, nil
}

// RetryAfter implements Limiter. Scores are admission times in ms, so the
// answer is on the same clock that scored them.
func (r *RedisWindow) RetryAfter(ctx context.Context, key string) (time.Duration, error) {
	now := r.now()
	live, err := r.Live(ctx, key)
	if err != nil {
		return 0, err
	}
	return untilRoom(live, r.max, r.window, now), nil
}

// Reset implements Limiter.
func (r *RedisWindow) Reset(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, r.prefix+key).Err(); err != nil {
		return xerrors.Wrapf(err, "rate limit reset %s", key)
	}
	return nil
}

// Limits implements Limiter.
func (r *RedisWindow) Limits() (int, time.Duration) {
	return r.max, r.window
}

// DialRedis parses a redis:// URL (or bare host:port) and verifies connectivity.
func DialRedis(ctx context.Context, addr string) (*redis.Client, error) {
	opt, err := redis.ParseURL(addr)
	if err != nil {
		opt = &redis.Options{Addr: addr}
	}
	c := redis.NewClient(opt)
	if err := c.Ping(ctx).Err(); err != nil {
		_ = c.Close()
		return nil, xerrors.Wrapf(err, "ping redis %s", opt.Addr)
	}
	return c, nil
}
