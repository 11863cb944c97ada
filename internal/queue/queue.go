// Package queue carries fetch job payloads between the API/CLI producers and
// the worker over a Redis Stream with a consumer group. Retries are parked in
// a sorted set until due; exhausted deliveries move to a dead-letter stream.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/leadfetch/internal/model"
	"github.com/sells-group/leadfetch/internal/resilience"
)

// Queue is what producers and the worker need from the job transport.
type Queue interface {
	Enqueue(ctx context.Context, p model.JobPayload) (string, error)
	Receive(ctx context.Context) ([]Delivery, error)
	Ack(ctx context.Context, d Delivery) error
	Fail(ctx context.Context, d Delivery, cause error, retryable bool) (Outcome, error)
}

// Delivery is one received job message.
type Delivery struct {
	ID      string
	Payload model.JobPayload
	// Attempt is 1 for the first delivery and grows with each retry.
	Attempt int
}

// Outcome reports what Fail did with a delivery.
type Outcome string

const (
	OutcomeRetried      Outcome = "retried"
	OutcomeDeadLettered Outcome = "dead_lettered"
)

// Config configures a RedisQueue.
type Config struct {
	Stream      string
	Group       string
	Consumer    string
	Block       time.Duration // <0 disables blocking reads
	BatchSize   int64
	MaxAttempts int
	RetryBase   time.Duration
	ReclaimIdle time.Duration
}

// Stats is a snapshot of queue depth.
type Stats struct {
	Stream  int64 `json:"stream"`
	Pending int64 `json:"pending"`
	Delayed int64 `json:"delayed"`
	Dead    int64 `json:"dead"`
}

// RedisQueue implements Queue on Redis Streams.
type RedisQueue struct {
	rdb redis.UniversalClient
	cfg Config
	now func() time.Time
}

const (
	fieldPayload   = "payload"
	fieldAttempt   = "attempt"
	fieldError     = "error"
	fieldErrorType = "error_type"
)

// NewRedis creates a RedisQueue, filling unset config with defaults.
func NewRedis(rdb redis.UniversalClient, cfg Config) *RedisQueue {
	if cfg.Stream == "" {
		cfg.Stream = "leadfetch:jobs"
	}
	if cfg.Group == "" {
		cfg.Group = "leadfetch-workers"
	}
	if cfg.Consumer == "" {
		cfg.Consumer = "worker-" + uuid.NewString()[:8]
	}
	if cfg.Block == 0 {
		cfg.Block = 5 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 1
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.RetryBase <= 0 {
		cfg.RetryBase = 30 * time.Second
	}
	if cfg.ReclaimIdle <= 0 {
		cfg.ReclaimIdle = 10 * time.Minute
	}
	return &RedisQueue{rdb: rdb, cfg: cfg, now: time.Now}
}

// DelayedKey is the sorted set holding retries until they are due.
func (q *RedisQueue) DelayedKey() string { return q.cfg.Stream + ":delayed" }

// DeadStream is the stream receiving exhausted deliveries.
func (q *RedisQueue) DeadStream() string { return q.cfg.Stream + ":dead" }

// Consumer returns this consumer's name within the group.
func (q *RedisQueue) Consumer() string { return q.cfg.Consumer }

// EnsureGroup creates the consumer group (and stream) if missing. The group
// starts at the beginning of the stream so jobs enqueued before the first
// worker came up are not skipped.
func (q *RedisQueue) EnsureGroup(ctx context.Context) error {
	err := q.rdb.XGroupCreateMkStream(ctx, q.cfg.Stream, q.cfg.Group, "0").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return eris.Wrapf(err, "queue: create group %s", q.cfg.Group)
	}
	return nil
}

// Enqueue appends a first-attempt job to the stream.
func (q *RedisQueue) Enqueue(ctx context.Context, p model.JobPayload) (string, error) {
	return q.add(ctx, p, 1)
}

func (q *RedisQueue) add(ctx context.Context, p model.JobPayload, attempt int) (string, error) {
	body, err := json.Marshal(p)
	if err != nil {
		return "", eris.Wrap(err, "queue: marshal payload")
	}
	id, err := q.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: q.cfg.Stream,
		Values: map[string]any{fieldPayload: string(body), fieldAttempt: attempt},
	}).Result()
	if err != nil {
		return "", eris.Wrapf(err, "queue: enqueue job %s", p.JobID)
	}
	return id, nil
}

// Receive reads new deliveries for this consumer, blocking up to the
// configured duration. A timeout returns no deliveries and no error.
func (q *RedisQueue) Receive(ctx context.Context) ([]Delivery, error) {
	streams, err := q.rdb.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    q.cfg.Group,
		Consumer: q.cfg.Consumer,
		Streams:  []string{q.cfg.Stream, ">"},
		Count:    q.cfg.BatchSize,
		Block:    q.cfg.Block,
	}).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "queue: read group")
	}

	var out []Delivery
	for _, s := range streams {
		out = append(out, q.decodeAll(ctx, s.Messages)...)
	}
	return out, nil
}

// Reclaim takes over deliveries another consumer received but never
// acknowledged within the reclaim idle window.
func (q *RedisQueue) Reclaim(ctx context.Context) ([]Delivery, error) {
	msgs, _, err := q.rdb.XAutoClaim(ctx, &redis.XAutoClaimArgs{
		Stream:   q.cfg.Stream,
		Group:    q.cfg.Group,
		Consumer: q.cfg.Consumer,
		MinIdle:  q.cfg.ReclaimIdle,
		Start:    "0-0",
		Count:    q.cfg.BatchSize,
	}).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "queue: autoclaim")
	}
	return q.decodeAll(ctx, msgs), nil
}

// decodeAll parses messages; malformed ones are dead-lettered and dropped.
func (q *RedisQueue) decodeAll(ctx context.Context, msgs []redis.XMessage) []Delivery {
	out := make([]Delivery, 0, len(msgs))
	for _, m := range msgs {
		d, err := decode(m)
		if err != nil {
			zap.L().Warn("queue: dropping malformed message",
				zap.String("message_id", m.ID), zap.Error(err))
			if derr := q.deadLetter(ctx, m.ID, m.Values[fieldPayload], 0, err); derr == nil {
				_ = q.Ack(ctx, Delivery{ID: m.ID})
			}
			continue
		}
		out = append(out, d)
	}
	return out
}

func decode(m redis.XMessage) (Delivery, error) {
	raw, ok := m.Values[fieldPayload].(string)
	if !ok || raw == "" {
		return Delivery{}, eris.New("queue: message has no payload")
	}
	var p model.JobPayload
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return Delivery{}, eris.Wrap(err, "queue: decode payload")
	}
	if p.JobID == "" || p.CampaignID == "" {
		return Delivery{}, eris.New("queue: payload missing jobId or campaignId")
	}

	attempt := 1
	if s, ok := m.Values[fieldAttempt].(string); ok {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			attempt = n
		}
	}
	return Delivery{ID: m.ID, Payload: p, Attempt: attempt}, nil
}

// Ack acknowledges a delivery so it is never redelivered.
func (q *RedisQueue) Ack(ctx context.Context, d Delivery) error {
	err := q.rdb.XAck(ctx, q.cfg.Stream, q.cfg.Group, d.ID).Err()
	return eris.Wrapf(err, "queue: ack %s", d.ID)
}

type delayedEntry struct {
	Payload model.JobPayload `json:"payload"`
	Attempt int              `json:"attempt"`
	Origin  string           `json:"origin"`
}

// Fail either schedules a retry (marked isRetry) after an exponential delay
// or, when not retryable or out of attempts, moves the delivery to the
// dead-letter stream. The delivery is acknowledged only after that write
// succeeds; on error it stays pending and is reclaimed later.
func (q *RedisQueue) Fail(ctx context.Context, d Delivery, cause error, retryable bool) (Outcome, error) {
	outcome := OutcomeRetried
	if !retryable || d.Attempt >= q.cfg.MaxAttempts {
		if err := q.deadLetter(ctx, d.ID, d.Payload, d.Attempt, cause); err != nil {
			return "", err
		}
		outcome = OutcomeDeadLettered
	} else if err := q.scheduleRetry(ctx, d); err != nil {
		return "", err
	}

	if err := q.Ack(ctx, d); err != nil {
		return outcome, err
	}
	return outcome, nil
}

func (q *RedisQueue) scheduleRetry(ctx context.Context, d Delivery) error {
	p := d.Payload
	p.IsRetry = true
	member, err := json.Marshal(delayedEntry{Payload: p, Attempt: d.Attempt + 1, Origin: d.ID})
	if err != nil {
		return eris.Wrap(err, "queue: marshal retry")
	}
	due := q.now().Add(q.RetryDelay(d.Attempt))
	err = q.rdb.ZAdd(ctx, q.DelayedKey(), redis.Z{
		Score:  float64(due.UnixMilli()),
		Member: string(member),
	}).Err()
	return eris.Wrapf(err, "queue: schedule retry for job %s", p.JobID)
}

// RetryDelay is the wait before the retry following the given attempt.
func (q *RedisQueue) RetryDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	return time.Duration(float64(q.cfg.RetryBase) * math.Pow(2, float64(attempt-1)))
}

func (q *RedisQueue) deadLetter(ctx context.Context, id string, payload any, attempt int, cause error) error {
	body := payload
	if p, ok := payload.(model.JobPayload); ok {
		b, err := json.Marshal(p)
		if err != nil {
			return eris.Wrap(err, "queue: marshal dead letter")
		}
		body = string(b)
	}
	if body == nil {
		body = ""
	}
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	err := q.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: q.DeadStream(),
		Values: map[string]any{
			fieldPayload:   body,
			fieldAttempt:   attempt,
			fieldError:     msg,
			fieldErrorType: resilience.ClassifyError(cause),
			"origin":       id,
		},
	}).Err()
	if err != nil {
		zap.L().Error("queue: dead letter failed", zap.String("message_id", id), zap.Error(err))
		return eris.Wrapf(err, "queue: dead letter %s", id)
	}
	return nil
}

// promoteScript appends a due retry to the stream and only then removes it
// from the delayed set. A member already taken by another promoter is
// skipped.
var promoteScript = redis.NewScript(`
if not redis.call("ZSCORE", KEYS[1], ARGV[1]) then
	return 0
end
redis.call("XADD", KEYS[2], "*", ARGV[2], ARGV[3], ARGV[4], ARGV[5])
redis.call("ZREM", KEYS[1], ARGV[1])
return 1
`)

// PromoteDue moves retries whose delay has elapsed back onto the stream.
// Each move runs as one script, so a failed append leaves the retry parked
// and concurrent promoters never duplicate it.
func (q *RedisQueue) PromoteDue(ctx context.Context) (int, error) {
	upto := strconv.FormatInt(q.now().UnixMilli(), 10)
	members, err := q.rdb.ZRangeByScore(ctx, q.DelayedKey(), &redis.ZRangeBy{Min: "-inf", Max: upto}).Result()
	if err != nil {
		return 0, eris.Wrap(err, "queue: list due retries")
	}

	promoted := 0
	for _, m := range members {
		var e delayedEntry
		if err := json.Unmarshal([]byte(m), &e); err != nil {
			zap.L().Warn("queue: dropping malformed retry", zap.Error(err))
			q.rdb.ZRem(ctx, q.DelayedKey(), m) //nolint:errcheck
			continue
		}
		body, err := json.Marshal(e.Payload)
		if err != nil {
			return promoted, eris.Wrap(err, "queue: marshal retry payload")
		}
		moved, err := promoteScript.Run(ctx, q.rdb,
			[]string{q.DelayedKey(), q.cfg.Stream},
			m, fieldPayload, string(body), fieldAttempt, e.Attempt,
		).Int()
		if err != nil {
			return promoted, eris.Wrapf(err, "queue: promote retry for job %s", e.Payload.JobID)
		}
		promoted += moved
	}
	return promoted, nil
}

// Stats reports stream length, group pending count, delayed retries and
// dead letters.
func (q *RedisQueue) Stats(ctx context.Context) (Stats, error) {
	var s Stats
	var err error
	if s.Stream, err = q.rdb.XLen(ctx, q.cfg.Stream).Result(); err != nil {
		return s, eris.Wrap(err, "queue: stream length")
	}
	if pending, perr := q.rdb.XPending(ctx, q.cfg.Stream, q.cfg.Group).Result(); perr == nil {
		s.Pending = pending.Count
	}
	if s.Delayed, err = q.rdb.ZCard(ctx, q.DelayedKey()).Result(); err != nil {
		return s, eris.Wrap(err, "queue: delayed count")
	}
	if s.Dead, err = q.rdb.XLen(ctx, q.DeadStream()).Result(); err != nil {
		return s, eris.Wrap(err, "queue: dead count")
	}
	return s, nil
}
