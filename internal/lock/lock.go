// Package lock provides a Redis-backed mutual-exclusion lock with an owner
// token, so only the holder can release or extend it.
package lock

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rotisserie/eris"
)

// DefaultTTL is how long a lock lives without being extended.
const DefaultTTL = 5 * time.Minute

var releaseScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
	return redis.call('DEL', KEYS[1])
end
return 0
`)

var extendScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
	return redis.call('PEXPIRE', KEYS[1], ARGV[2])
end
return 0
`)

// Client is the subset of the Redis client the lock needs.
type Client interface {
	redis.Scripter
	SetNX(ctx context.Context, key string, value any, expiration time.Duration) *redis.BoolCmd
}

// Lock is one named lock owned by a random token.
type Lock struct {
	rdb   Client
	key   string
	token string
	ttl   time.Duration
}

// New creates an unacquired lock on key.
func New(rdb Client, key string, ttl time.Duration) *Lock {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Lock{rdb: rdb, key: key, token: uuid.NewString(), ttl: ttl}
}

// Key returns the Redis key.
func (l *Lock) Key() string { return l.key }

// Token returns the owner token written on acquire.
func (l *Lock) Token() string { return l.token }

// Acquire tries once to take the lock. It reports false without error when
// another owner holds it.
func (l *Lock) Acquire(ctx context.Context) (bool, error) {
	ok, err := l.rdb.SetNX(ctx, l.key, l.token, l.ttl).Result()
	if err != nil {
		return false, eris.Wrapf(err, "lock: acquire %s", l.key)
	}
	return ok, nil
}

// Release deletes the lock if this owner still holds it.
func (l *Lock) Release(ctx context.Context) (bool, error) {
	n, err := releaseScript.Run(ctx, l.rdb, []string{l.key}, l.token).Int64()
	if err != nil && !errors.Is(err, redis.Nil) {
		return false, eris.Wrapf(err, "lock: release %s", l.key)
	}
	return n == 1, nil
}

// Extend resets the TTL if this owner still holds the lock. A ttl <= 0
// reuses the lock's original TTL.
func (l *Lock) Extend(ctx context.Context, ttl time.Duration) (bool, error) {
	if ttl <= 0 {
		ttl = l.ttl
	}
	n, err := extendScript.Run(ctx, l.rdb, []string{l.key}, l.token, ttl.Milliseconds()).Int64()
	if err != nil && !errors.Is(err, redis.Nil) {
		return false, eris.Wrapf(err, "lock: extend %s", l.key)
	}
	return n == 1, nil
}

// Factory builds locks with a shared client and TTL.
type Factory struct {
	rdb Client
	ttl time.Duration
}

// NewFactory creates a Factory. A ttl <= 0 selects DefaultTTL.
func NewFactory(rdb Client, ttl time.Duration) *Factory {
	return &Factory{rdb: rdb, ttl: ttl}
}

// ForCampaign returns the lock guarding fetch runs of one campaign.
func (f *Factory) ForCampaign(campaignID string) *Lock {
	return New(f.rdb, "lock:campaign:"+campaignID, f.ttl)
}
