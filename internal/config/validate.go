package config

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
)

// Validate checks that the keys required by the given command mode are
// present and that tunables are in range. Modes: worker, serve, enqueue,
// export, migrate.
func (c *Config) Validate(mode string) error {
	var problems []string

	switch mode {
	case "worker":
		problems = append(problems, c.requireStore()...)
		problems = append(problems, c.requireRedis()...)
		if c.Search.Key == "" {
			problems = append(problems, "search.key is required")
		}
		if c.Worker.Concurrency < 1 || c.Worker.Concurrency > 32 {
			problems = append(problems, "worker.concurrency must be between 1 and 32")
		}
		if c.Worker.MaxAttempts < 1 {
			problems = append(problems, "worker.max_attempts must be >= 1")
		}
		problems = append(problems, c.validateFetch()...)
		problems = append(problems, c.validateBuckets()...)
	case "serve":
		problems = append(problems, c.requireStore()...)
		problems = append(problems, c.requireRedis()...)
		if c.Server.Port <= 0 {
			problems = append(problems, "server.port must be > 0")
		}
	case "enqueue":
		problems = append(problems, c.requireStore()...)
		problems = append(problems, c.requireRedis()...)
	case "export", "migrate":
		problems = append(problems, c.requireStore()...)
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(problems) > 0 {
		return eris.Errorf("config: %s", strings.Join(problems, "; "))
	}
	return nil
}

func (c *Config) requireStore() []string {
	switch c.Store.Driver {
	case "postgres":
		if c.Store.DatabaseURL == "" {
			return []string{"store.database_url is required"}
		}
	case "sqlite":
	default:
		return []string{fmt.Sprintf("store.driver %q is not supported", c.Store.Driver)}
	}
	return nil
}

func (c *Config) requireRedis() []string {
	if c.Redis.URL == "" {
		return []string{"redis.url is required"}
	}
	return nil
}

func (c *Config) validateFetch() []string {
	var problems []string
	f := c.Fetch
	if f.PrepareConcurrency < 1 {
		problems = append(problems, "fetch.prepare_concurrency must be >= 1")
	}
	if f.PageRetryAttempts < 1 {
		problems = append(problems, "fetch.page_retry_attempts must be >= 1")
	}
	if f.ConserveMinPages > f.ConserveMaxPages {
		problems = append(problems, "fetch.conserve_min_pages must be <= conserve_max_pages")
	}
	if f.BalancedMinPages > f.BalancedMaxPages {
		problems = append(problems, "fetch.balanced_min_pages must be <= balanced_max_pages")
	}
	return problems
}

func (c *Config) validateBuckets() []string {
	var problems []string
	for name, b := range map[string]BucketConfig{
		"global":   c.RateLimit.Global,
		"user":     c.RateLimit.User,
		"campaign": c.RateLimit.Campaign,
	} {
		if b.MaxTokens < 1 || b.RefillPerSec <= 0 {
			problems = append(problems, fmt.Sprintf("ratelimit.%s needs max_tokens >= 1 and refill_per_sec > 0", name))
		}
	}
	return problems
}
