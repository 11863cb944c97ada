package ratelimit

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/leadfetch/internal/config"
	"github.com/sells-group/leadfetch/internal/resilience"
)

// minWait bounds the sleep between denied checks so a ResetTime in the
// past does not spin.
const minWait = 10 * time.Millisecond

// Scope names one bucket and its limits.
type Scope struct {
	Name         string
	MaxTokens    float64
	RefillPerSec float64
}

// GlobalScope is shared by every job in every process.
func GlobalScope(b config.BucketConfig) Scope {
	return Scope{Name: "global", MaxTokens: b.MaxTokens, RefillPerSec: b.RefillPerSec}
}

// UserScope is shared by all jobs of one user.
func UserScope(userID string, b config.BucketConfig) Scope {
	return Scope{Name: "user:" + userID, MaxTokens: b.MaxTokens, RefillPerSec: b.RefillPerSec}
}

// CampaignScope is private to one campaign.
func CampaignScope(campaignID string, b config.BucketConfig) Scope {
	return Scope{Name: "campaign:" + campaignID, MaxTokens: b.MaxTokens, RefillPerSec: b.RefillPerSec}
}

// JobScopes returns the global, user and campaign scopes for one job, in
// the order they must be checked.
func JobScopes(cfg config.RateLimitConfig, userID, campaignID string) []Scope {
	return []Scope{
		GlobalScope(cfg.Global),
		UserScope(userID, cfg.User),
		CampaignScope(campaignID, cfg.Campaign),
	}
}

// MultiLimiter admits one call through several buckets in turn.
type MultiLimiter struct {
	limiter *Limiter
	maxWait time.Duration
	sleep   func(ctx context.Context, d time.Duration) error
}

// MultiOption configures a MultiLimiter.
type MultiOption func(*MultiLimiter)

// WithMaxWait bounds the total time Wait may sleep for one scope. Zero
// means unbounded.
func WithMaxWait(d time.Duration) MultiOption {
	return func(m *MultiLimiter) { m.maxWait = d }
}

// WithSleep replaces the context-aware sleep.
func WithSleep(fn func(ctx context.Context, d time.Duration) error) MultiOption {
	return func(m *MultiLimiter) { m.sleep = fn }
}

// NewMultiLimiter wraps l.
func NewMultiLimiter(l *Limiter, opts ...MultiOption) *MultiLimiter {
	m := &MultiLimiter{limiter: l, sleep: resilience.SleepContext}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Wait takes one token from each scope in order, sleeping until the
// bucket's reset time whenever a scope denies. Tokens taken from earlier
// scopes are not returned if a later scope blocks.
func (m *MultiLimiter) Wait(ctx context.Context, scopes ...Scope) error {
	for _, s := range scopes {
		if err := m.waitScope(ctx, s); err != nil {
			return err
		}
	}
	return nil
}

func (m *MultiLimiter) waitScope(ctx context.Context, s Scope) error {
	var waited time.Duration
	for {
		if err := ctx.Err(); err != nil {
			return eris.Wrapf(err, "ratelimit: wait %s", s.Name)
		}

		d, err := m.limiter.CheckAndConsume(ctx, s.Name, s.MaxTokens, s.RefillPerSec, 1)
		if err != nil {
			return err
		}
		if d.Allowed {
			return nil
		}
		if d.ResetTime.IsZero() {
			return eris.Errorf("ratelimit: scope %s never refills", s.Name)
		}

		wait := d.ResetTime.Sub(m.limiter.now())
		if wait < minWait {
			wait = minWait
		}
		if m.maxWait > 0 && waited+wait > m.maxWait {
			return resilience.NewTransientError(
				eris.Errorf("ratelimit: scope %s still limited after %s", s.Name, waited), 429)
		}

		zap.L().Debug("ratelimit: waiting for tokens",
			zap.String("scope", s.Name),
			zap.Duration("wait", wait),
			zap.Float64("remaining", d.Remaining),
		)
		if err := m.sleep(ctx, wait); err != nil {
			return eris.Wrapf(err, "ratelimit: wait %s", s.Name)
		}
		waited += wait
	}
}
