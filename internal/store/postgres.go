package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/leadfetch/internal/db"
	"github.com/sells-group/leadfetch/internal/model"
	"github.com/sells-group/leadfetch/internal/resilience"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
	now     func() time.Time
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close, now: utcNow}, nil
}

func utcNow() time.Time { return time.Now().UTC() }

const postgresMigration = `
CREATE TABLE IF NOT EXISTS campaigns (
	id              TEXT PRIMARY KEY,
	user_id         TEXT NOT NULL,
	name            TEXT NOT NULL DEFAULT '',
	job_titles      TEXT NOT NULL DEFAULT '',
	locations       TEXT NOT NULL DEFAULT '',
	keywords        TEXT NOT NULL DEFAULT '',
	include_domains TEXT NOT NULL DEFAULT '',
	exclude_domains TEXT NOT NULL DEFAULT '',
	max_leads       INTEGER NOT NULL DEFAULT 100,
	page_size       INTEGER NOT NULL DEFAULT 25,
	search_mode     TEXT NOT NULL DEFAULT 'balanced',
	is_active       BOOLEAN NOT NULL DEFAULT true,
	spreadsheet_id  TEXT NOT NULL DEFAULT '',
	sheet_name      TEXT NOT NULL DEFAULT '',
	created_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at      TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_campaigns_user ON campaigns(user_id);

CREATE TABLE IF NOT EXISTS campaign_jobs (
	id              TEXT PRIMARY KEY,
	campaign_id     TEXT NOT NULL REFERENCES campaigns(id) ON DELETE CASCADE,
	user_id         TEXT NOT NULL,
	status          TEXT NOT NULL DEFAULT 'PENDING',
	leads_processed INTEGER NOT NULL DEFAULT 0,
	leads_written   INTEGER NOT NULL DEFAULT 0,
	total_pages     INTEGER NOT NULL DEFAULT 0,
	last_error      TEXT NOT NULL DEFAULT '',
	created_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
	started_at      TIMESTAMPTZ,
	finished_at     TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_campaign_jobs_campaign ON campaign_jobs(campaign_id, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_campaign_jobs_status ON campaign_jobs(status, updated_at);

CREATE TABLE IF NOT EXISTS job_attempts (
	id                 TEXT PRIMARY KEY,
	job_id             TEXT NOT NULL REFERENCES campaign_jobs(id) ON DELETE CASCADE,
	attempt_number     INTEGER NOT NULL,
	status             TEXT NOT NULL DEFAULT 'RUNNING',
	pages_processed    INTEGER NOT NULL DEFAULT 0,
	leads_found        INTEGER NOT NULL DEFAULT 0,
	leads_written      INTEGER NOT NULL DEFAULT 0,
	sheet_rows_written INTEGER NOT NULL DEFAULT 0,
	search_mode        TEXT NOT NULL DEFAULT '',
	warning            TEXT NOT NULL DEFAULT '',
	error              TEXT NOT NULL DEFAULT '',
	started_at         TIMESTAMPTZ NOT NULL DEFAULT now(),
	finished_at        TIMESTAMPTZ,
	UNIQUE (job_id, attempt_number)
);

CREATE TABLE IF NOT EXISTS leads (
	id            TEXT PRIMARY KEY,
	campaign_id   TEXT NOT NULL REFERENCES campaigns(id) ON DELETE CASCADE,
	user_id       TEXT NOT NULL,
	job_id        TEXT NOT NULL,
	attempt_id    TEXT NOT NULL,
	external_id   TEXT NOT NULL DEFAULT '',
	email         TEXT NOT NULL DEFAULT '',
	email_status  TEXT NOT NULL DEFAULT '',
	is_valid      BOOLEAN NOT NULL DEFAULT false,
	is_suppressed BOOLEAN NOT NULL DEFAULT false,
	first_name    TEXT NOT NULL DEFAULT '',
	last_name     TEXT NOT NULL DEFAULT '',
	full_name     TEXT NOT NULL DEFAULT '',
	title         TEXT NOT NULL DEFAULT '',
	company       TEXT NOT NULL DEFAULT '',
	domain        TEXT NOT NULL DEFAULT '',
	website_url   TEXT NOT NULL DEFAULT '',
	linkedin_url  TEXT NOT NULL DEFAULT '',
	city          TEXT NOT NULL DEFAULT '',
	state         TEXT NOT NULL DEFAULT '',
	country       TEXT NOT NULL DEFAULT '',
	summary       TEXT NOT NULL DEFAULT '',
	dedup_scope   TEXT NOT NULL,
	dedup_key     TEXT NOT NULL,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (campaign_id, dedup_key)
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_leads_user_scope ON leads(user_id, dedup_key) WHERE dedup_scope = 'user';
CREATE INDEX IF NOT EXISTS idx_leads_user_key ON leads(user_id, dedup_key);
CREATE INDEX IF NOT EXISTS idx_leads_attempt ON leads(attempt_id);

CREATE TABLE IF NOT EXISTS suppressions (
	user_id    TEXT NOT NULL,
	email      TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (user_id, email)
);

CREATE TABLE IF NOT EXISTS dead_letter_queue (
	id             TEXT PRIMARY KEY,
	payload        JSONB NOT NULL,
	error          TEXT NOT NULL,
	error_type     TEXT NOT NULL DEFAULT 'transient',
	attempts       INTEGER NOT NULL DEFAULT 0,
	created_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
	last_failed_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_dlq_error_type ON dead_letter_queue(error_type);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) clock() time.Time {
	if s.now == nil {
		return utcNow()
	}
	return s.now()
}

// Campaigns

func (s *PostgresStore) GetCampaign(ctx context.Context, id string) (*model.Campaign, error) {
	var c model.Campaign
	err := s.pool.QueryRow(ctx,
		`SELECT `+campaignColumns+` FROM campaigns WHERE id = $1`, id,
	).Scan(campaignDest(&c)...)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "postgres: campaign %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get campaign %s", id)
	}
	return &c, nil
}

func (s *PostgresStore) UpsertCampaign(ctx context.Context, c *model.Campaign) error {
	now := s.clock()
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	c.UpdatedAt = now

	_, err := s.pool.Exec(ctx,
		`INSERT INTO campaigns (`+campaignColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		 ON CONFLICT (id) DO UPDATE SET
		   user_id = $2, name = $3, job_titles = $4, locations = $5, keywords = $6,
		   include_domains = $7, exclude_domains = $8, max_leads = $9, page_size = $10,
		   search_mode = $11, is_active = $12, spreadsheet_id = $13, sheet_name = $14, updated_at = $16`,
		c.ID, c.UserID, c.Name, c.JobTitles, c.Locations, c.Keywords, c.IncludeDomains, c.ExcludeDomains,
		c.MaxLeads, c.PageSize, string(c.SearchMode), c.IsActive, c.SpreadsheetID, c.SheetName, c.CreatedAt, c.UpdatedAt,
	)
	return eris.Wrapf(err, "postgres: upsert campaign %s", c.ID)
}

func (s *PostgresStore) ListCampaigns(ctx context.Context, userID string) ([]model.Campaign, error) {
	query := `SELECT ` + campaignColumns + ` FROM campaigns`
	args := []any{}
	if userID != "" {
		query += ` WHERE user_id = $1`
		args = append(args, userID)
	}
	query += ` ORDER BY created_at DESC`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list campaigns")
	}
	defer rows.Close()

	var out []model.Campaign
	for rows.Next() {
		var c model.Campaign
		if err := rows.Scan(campaignDest(&c)...); err != nil {
			return nil, eris.Wrap(err, "postgres: scan campaign")
		}
		out = append(out, c)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list campaigns iterate")
}

func (s *PostgresStore) SetCampaignActive(ctx context.Context, id string, active bool) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE campaigns SET is_active = $1, updated_at = $2 WHERE id = $3`,
		active, s.clock(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: set campaign active %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "postgres: campaign %s", id)
	}
	return nil
}

// Jobs

func (s *PostgresStore) CreateJob(ctx context.Context, campaignID, userID string) (*model.CampaignJob, error) {
	now := s.clock()
	j := &model.CampaignJob{
		ID:         uuid.New().String(),
		CampaignID: campaignID,
		UserID:     userID,
		Status:     model.JobStatusPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO campaign_jobs (id, campaign_id, user_id, status, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		j.ID, j.CampaignID, j.UserID, string(j.Status), j.CreatedAt, j.UpdatedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert job")
	}
	return j, nil
}

func (s *PostgresStore) GetJob(ctx context.Context, id string) (*model.CampaignJob, error) {
	var j model.CampaignJob
	err := s.pool.QueryRow(ctx,
		`SELECT `+jobColumns+` FROM campaign_jobs WHERE id = $1`, id,
	).Scan(jobDest(&j)...)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "postgres: job %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get job %s", id)
	}
	return &j, nil
}

func (s *PostgresStore) ListJobs(ctx context.Context, filter JobFilter) ([]model.CampaignJob, error) {
	query := `SELECT ` + jobColumns + ` FROM campaign_jobs WHERE true`
	args := []any{}
	argIdx := 1

	if filter.CampaignID != "" {
		query += fmt.Sprintf(` AND campaign_id = $%d`, argIdx)
		args = append(args, filter.CampaignID)
		argIdx++
	}
	if filter.UserID != "" {
		query += fmt.Sprintf(` AND user_id = $%d`, argIdx)
		args = append(args, filter.UserID)
		argIdx++
	}
	if filter.Status != "" {
		query += fmt.Sprintf(` AND status = $%d`, argIdx)
		args = append(args, string(filter.Status))
		argIdx++
	}
	query += fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d`, argIdx)
	args = append(args, listLimit(filter.Limit))
	argIdx++

	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list jobs")
	}
	defer rows.Close()

	var jobs []model.CampaignJob
	for rows.Next() {
		var j model.CampaignJob
		if err := rows.Scan(jobDest(&j)...); err != nil {
			return nil, eris.Wrap(err, "postgres: scan job")
		}
		jobs = append(jobs, j)
	}
	return jobs, eris.Wrap(rows.Err(), "postgres: list jobs iterate")
}

func (s *PostgresStore) MarkJobRunning(ctx context.Context, id string) error {
	now := s.clock()
	tag, err := s.pool.Exec(ctx,
		`UPDATE campaign_jobs
		 SET status = $1, last_error = '', started_at = COALESCE(started_at, $2), finished_at = NULL, updated_at = $2
		 WHERE id = $3`,
		string(model.JobStatusRunning), now, id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: mark job running %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "postgres: job %s", id)
	}
	return nil
}

func (s *PostgresStore) UpdateJobProgress(ctx context.Context, id string, p model.JobProgress) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE campaign_jobs SET leads_processed = $1, leads_written = $2, total_pages = $3, updated_at = $4 WHERE id = $5`,
		p.LeadsProcessed, p.LeadsWritten, p.TotalPages, s.clock(), id,
	)
	return eris.Wrapf(err, "postgres: update job progress %s", id)
}

func (s *PostgresStore) FinishJob(ctx context.Context, id string, status model.JobStatus, p model.JobProgress, lastError string) error {
	now := s.clock()
	tag, err := s.pool.Exec(ctx,
		`UPDATE campaign_jobs
		 SET status = $1, leads_processed = $2, leads_written = $3, total_pages = $4, last_error = $5, finished_at = $6, updated_at = $6
		 WHERE id = $7`,
		string(status), p.LeadsProcessed, p.LeadsWritten, p.TotalPages, lastError, now, id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: finish job %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "postgres: job %s", id)
	}
	return nil
}

func (s *PostgresStore) MarkStaleJobs(ctx context.Context, cutoff time.Time, reason string) (int, error) {
	now := s.clock()
	tag, err := s.pool.Exec(ctx,
		`UPDATE campaign_jobs SET status = $1, last_error = $2, finished_at = $3, updated_at = $3
		 WHERE status = $4 AND updated_at < $5`,
		string(model.JobStatusFailed), reason, now, string(model.JobStatusRunning), cutoff,
	)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: mark stale jobs")
	}
	return int(tag.RowsAffected()), nil
}

func (s *PostgresStore) JobStats(ctx context.Context, since time.Time) (model.JobStats, error) {
	var stats model.JobStats
	rows, err := s.pool.Query(ctx,
		`SELECT status, COUNT(*) FROM campaign_jobs WHERE created_at >= $1 GROUP BY status`, since,
	)
	if err != nil {
		return stats, eris.Wrap(err, "postgres: job stats")
	}
	defer rows.Close()

	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return stats, eris.Wrap(err, "postgres: scan job stats")
		}
		stats.Add(model.JobStatus(status), n)
	}
	return stats, eris.Wrap(rows.Err(), "postgres: job stats iterate")
}

// Attempts

func (s *PostgresStore) CreateAttempt(ctx context.Context, jobID string) (*model.JobAttempt, error) {
	a := &model.JobAttempt{
		ID:        uuid.New().String(),
		JobID:     jobID,
		Status:    model.JobStatusRunning,
		StartedAt: s.clock(),
	}
	err := s.pool.QueryRow(ctx,
		`INSERT INTO job_attempts (id, job_id, attempt_number, status, started_at)
		 SELECT $1, $2, COALESCE(MAX(attempt_number), 0) + 1, $3, $4 FROM job_attempts WHERE job_id = $2
		 RETURNING attempt_number`,
		a.ID, a.JobID, string(a.Status), a.StartedAt,
	).Scan(&a.AttemptNumber)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: create attempt for job %s", jobID)
	}
	return a, nil
}

func (s *PostgresStore) UpdateAttempt(ctx context.Context, a *model.JobAttempt) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE job_attempts
		 SET status = $1, pages_processed = $2, leads_found = $3, leads_written = $4, sheet_rows_written = $5,
		     search_mode = $6, warning = $7, error = $8, finished_at = $9
		 WHERE id = $10`,
		string(a.Status), a.PagesProcessed, a.LeadsFound, a.LeadsWritten, a.SheetRowsWritten,
		string(a.SearchMode), a.Warning, a.Error, a.FinishedAt, a.ID,
	)
	return eris.Wrapf(err, "postgres: update attempt %s", a.ID)
}

func (s *PostgresStore) ListAttempts(ctx context.Context, jobID string) ([]model.JobAttempt, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+attemptColumns+` FROM job_attempts WHERE job_id = $1 ORDER BY attempt_number`, jobID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: list attempts %s", jobID)
	}
	defer rows.Close()

	var out []model.JobAttempt
	for rows.Next() {
		var a model.JobAttempt
		if err := rows.Scan(attemptDest(&a)...); err != nil {
			return nil, eris.Wrap(err, "postgres: scan attempt")
		}
		out = append(out, a)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list attempts iterate")
}

// Leads

func (s *PostgresStore) ExistingLeadKeys(ctx context.Context, scope model.DedupScope, scopeID string, keys []string) (map[string]bool, error) {
	found := make(map[string]bool)
	if len(keys) == 0 {
		return found, nil
	}

	query := `SELECT DISTINCT dedup_key FROM leads WHERE campaign_id = $1 AND dedup_key = ANY($2)`
	if scope == model.DedupScopeUser {
		query = `SELECT DISTINCT dedup_key FROM leads WHERE user_id = $1 AND dedup_key = ANY($2)`
	}

	rows, err := s.pool.Query(ctx, query, scopeID, keys)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: existing lead keys")
	}
	defer rows.Close()

	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, eris.Wrap(err, "postgres: scan lead key")
		}
		found[k] = true
	}
	return found, eris.Wrap(rows.Err(), "postgres: existing lead keys iterate")
}

// InsertLeads bulk-inserts leads, silently skipping any that violate a
// uniqueness constraint.
func (s *PostgresStore) InsertLeads(ctx context.Context, leads []model.Lead) (int64, error) {
	rows := make([][]any, len(leads))
	for i := range leads {
		if leads[i].ID == "" {
			leads[i].ID = uuid.New().String()
		}
		if leads[i].CreatedAt.IsZero() {
			leads[i].CreatedAt = s.clock()
		}
		rows[i] = leadValues(&leads[i])
	}
	n, err := db.BulkInsert(ctx, s.pool, db.InsertConfig{Table: "leads", Columns: leadColumns}, rows)
	return n, eris.Wrap(err, "postgres: insert leads")
}

func (s *PostgresStore) LeadsByKeys(ctx context.Context, campaignID, attemptID string, keys []string) ([]model.Lead, error) {
	if len(keys) == 0 {
		return nil, nil
	}
	rows, err := s.pool.Query(ctx,
		`SELECT `+joinColumns(leadColumns)+` FROM leads
		 WHERE campaign_id = $1 AND attempt_id = $2 AND dedup_key = ANY($3)`,
		campaignID, attemptID, keys,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: leads by keys")
	}
	return collectLeads(rows)
}

func (s *PostgresStore) ListLeads(ctx context.Context, filter LeadFilter) ([]model.Lead, error) {
	query := `SELECT ` + joinColumns(leadColumns) + ` FROM leads WHERE true`
	args := []any{}
	argIdx := 1
	if filter.CampaignID != "" {
		query += fmt.Sprintf(` AND campaign_id = $%d`, argIdx)
		args = append(args, filter.CampaignID)
		argIdx++
	}
	if filter.JobID != "" {
		query += fmt.Sprintf(` AND job_id = $%d`, argIdx)
		args = append(args, filter.JobID)
		argIdx++
	}
	query += fmt.Sprintf(` ORDER BY created_at, id LIMIT $%d OFFSET $%d`, argIdx, argIdx+1)
	limit := filter.Limit
	if limit <= 0 {
		limit = 10000
	}
	args = append(args, limit, filter.Offset)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list leads")
	}
	return collectLeads(rows)
}

func collectLeads(rows pgx.Rows) ([]model.Lead, error) {
	defer rows.Close()
	var out []model.Lead
	for rows.Next() {
		var l model.Lead
		if err := rows.Scan(leadDest(&l)...); err != nil {
			return nil, eris.Wrap(err, "postgres: scan lead")
		}
		out = append(out, l)
	}
	return out, eris.Wrap(rows.Err(), "postgres: leads iterate")
}

// Suppression list

func (s *PostgresStore) SuppressedEmails(ctx context.Context, userID string, emails []string) (map[string]bool, error) {
	out := make(map[string]bool)
	if len(emails) == 0 {
		return out, nil
	}
	rows, err := s.pool.Query(ctx,
		`SELECT email FROM suppressions WHERE user_id = $1 AND email = ANY($2)`, userID, emails,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: suppressed emails")
	}
	defer rows.Close()
	for rows.Next() {
		var e string
		if err := rows.Scan(&e); err != nil {
			return nil, eris.Wrap(err, "postgres: scan suppression")
		}
		out[e] = true
	}
	return out, eris.Wrap(rows.Err(), "postgres: suppressed emails iterate")
}

func (s *PostgresStore) AddSuppression(ctx context.Context, userID, email string) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO suppressions (user_id, email, created_at) VALUES ($1, $2, $3) ON CONFLICT DO NOTHING`,
		userID, email, s.clock(),
	)
	return eris.Wrap(err, "postgres: add suppression")
}

// Dead letter queue

func (s *PostgresStore) EnqueueDLQ(ctx context.Context, entry resilience.DLQEntry) error {
	payload, err := json.Marshal(entry.Payload)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal dlq payload")
	}
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO dead_letter_queue (id, payload, error, error_type, attempts, created_at, last_failed_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (id) DO UPDATE SET error = $3, error_type = $4, attempts = $5, last_failed_at = $7`,
		entry.ID, payload, entry.Error, entry.ErrorType, entry.Attempts, entry.CreatedAt, entry.LastFailedAt,
	)
	return eris.Wrap(err, "postgres: enqueue dlq")
}

func (s *PostgresStore) ListDLQ(ctx context.Context, filter resilience.DLQFilter) ([]resilience.DLQEntry, error) {
	query := `SELECT id, payload, error, error_type, attempts, created_at, last_failed_at FROM dead_letter_queue`
	args := []any{}
	argIdx := 1
	if filter.ErrorType != "" {
		query += fmt.Sprintf(` WHERE error_type = $%d`, argIdx)
		args = append(args, filter.ErrorType)
		argIdx++
	}
	query += fmt.Sprintf(` ORDER BY last_failed_at DESC LIMIT $%d`, argIdx)
	args = append(args, listLimit(filter.Limit))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list dlq")
	}
	defer rows.Close()

	var entries []resilience.DLQEntry
	for rows.Next() {
		var e resilience.DLQEntry
		var payload []byte
		if err := rows.Scan(&e.ID, &payload, &e.Error, &e.ErrorType, &e.Attempts, &e.CreatedAt, &e.LastFailedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan dlq entry")
		}
		if err := json.Unmarshal(payload, &e.Payload); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal dlq payload")
		}
		entries = append(entries, e)
	}
	return entries, eris.Wrap(rows.Err(), "postgres: list dlq iterate")
}

func (s *PostgresStore) CountDLQ(ctx context.Context) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM dead_letter_queue`).Scan(&count)
	return count, eris.Wrap(err, "postgres: count dlq")
}
