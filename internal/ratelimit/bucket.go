// Package ratelimit implements token buckets shared across processes through
// Redis. Each bucket is a hash holding the current token count and the time
// of the last refill; one Lua script refills, consumes and writes back
// atomically.
package ratelimit

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rotisserie/eris"
)

// ErrRequestTooLarge is returned when a caller asks for more tokens than the
// bucket can ever hold.
var ErrRequestTooLarge = eris.New("ratelimit: tokens requested exceeds bucket capacity")

const (
	defaultNamespace = "rate_limit"
	defaultIdleTTL   = time.Hour
)

// KEYS[1] bucket hash
// ARGV: max_tokens, refill_per_sec, requested, now_ms, idle_ttl_ms
// Returns {allowed, remaining, wait_ms}; wait_ms is -1 when the bucket
// never refills.
var consumeScript = redis.NewScript(`
local max_tokens = tonumber(ARGV[1])
local refill_rate = tonumber(ARGV[2])
local requested = tonumber(ARGV[3])
local now_ms = tonumber(ARGV[4])
local ttl_ms = tonumber(ARGV[5])

local state = redis.call('HMGET', KEYS[1], 'tokens', 'last_refill')
local tokens = tonumber(state[1])
local last_refill = tonumber(state[2])
if tokens == nil or last_refill == nil then
	tokens = max_tokens
	last_refill = now_ms
end

if now_ms > last_refill then
	tokens = tokens + ((now_ms - last_refill) / 1000) * refill_rate
	last_refill = now_ms
end
tokens = math.max(0, math.min(max_tokens, tokens))

local allowed = 0
local wait_ms = 0
if tokens >= requested then
	tokens = tokens - requested
	allowed = 1
elseif refill_rate > 0 then
	wait_ms = math.ceil(((requested - tokens) / refill_rate) * 1000)
else
	wait_ms = -1
end

redis.call('HSET', KEYS[1], 'tokens', tostring(tokens), 'last_refill', tostring(last_refill))
redis.call('PEXPIRE', KEYS[1], ttl_ms)
return {allowed, tostring(tokens), wait_ms}
`)

// Decision is the outcome of one check-and-consume.
type Decision struct {
	Allowed   bool
	Remaining float64
	// ResetTime is when enough tokens will exist for the denied request.
	// It equals the check time when the request was allowed and is zero
	// when the bucket never refills.
	ResetTime time.Time
}

// Limiter checks and consumes tokens from Redis-backed buckets.
type Limiter struct {
	rdb       redis.Scripter
	namespace string
	idleTTL   time.Duration
	now       func() time.Time
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithNamespace sets the key prefix. Default "rate_limit".
func WithNamespace(ns string) Option {
	return func(l *Limiter) {
		if ns != "" {
			l.namespace = ns
		}
	}
}

// WithIdleTTL sets how long an untouched bucket survives. Default 1h.
func WithIdleTTL(d time.Duration) Option {
	return func(l *Limiter) {
		if d > 0 {
			l.idleTTL = d
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) { l.now = now }
}

// New creates a Limiter over rdb.
func New(rdb redis.Scripter, opts ...Option) *Limiter {
	l := &Limiter{
		rdb:       rdb,
		namespace: defaultNamespace,
		idleTTL:   defaultIdleTTL,
		now:       time.Now,
	}
	for _, o := range opts {
		o(l)
	}
	return l
}

// Key returns the Redis key of the bucket for scope.
func (l *Limiter) Key(scope string) string {
	return l.namespace + ":" + scope
}

// CheckAndConsume refills the bucket for scope, then takes requested tokens
// if enough are available. A requested value <= 0 counts as 1.
func (l *Limiter) CheckAndConsume(ctx context.Context, scope string, maxTokens, refillPerSec, requested float64) (Decision, error) {
	if requested <= 0 {
		requested = 1
	}
	if maxTokens <= 0 {
		return Decision{}, eris.Errorf("ratelimit: scope %s: max tokens must be positive", scope)
	}
	if requested > maxTokens {
		return Decision{}, eris.Wrapf(ErrRequestTooLarge, "ratelimit: scope %s: requested %g of %g", scope, requested, maxTokens)
	}

	now := l.now()
	res, err := consumeScript.Run(ctx, l.rdb, []string{l.Key(scope)},
		formatFloat(maxTokens),
		formatFloat(refillPerSec),
		formatFloat(requested),
		now.UnixMilli(),
		l.idleTTL.Milliseconds(),
	).Slice()
	if err != nil {
		return Decision{}, eris.Wrapf(err, "ratelimit: consume %s", scope)
	}
	return parseDecision(res, now)
}

func parseDecision(res []any, now time.Time) (Decision, error) {
	if len(res) != 3 {
		return Decision{}, eris.Errorf("ratelimit: unexpected script reply of %d elements", len(res))
	}
	allowed, _ := res[0].(int64)
	remainingStr, _ := res[1].(string)
	waitMs, _ := res[2].(int64)

	remaining, err := strconv.ParseFloat(remainingStr, 64)
	if err != nil {
		return Decision{}, eris.Wrapf(err, "ratelimit: parse remaining %q", remainingStr)
	}

	d := Decision{Allowed: allowed == 1, Remaining: remaining}
	switch {
	case d.Allowed:
		d.ResetTime = now
	case waitMs >= 0:
		d.ResetTime = now.Add(time.Duration(waitMs) * time.Millisecond)
	}
	return d, nil
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
