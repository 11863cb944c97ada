package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/leadfetch/internal/model"
	"github.com/sells-group/leadfetch/internal/resilience"
)

// SQLiteStore implements Store using modernc.org/sqlite. It serves local
// runs and tests; production uses PostgresStore.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db, now: utcNow}, nil
}

const sqliteMigration = `
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
	is_active       BOOLEAN NOT NULL DEFAULT 1,
	spreadsheet_id  TEXT NOT NULL DEFAULT '',
	sheet_name      TEXT NOT NULL DEFAULT '',
	created_at      DATETIME NOT NULL,
	updated_at      DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_campaigns_user ON campaigns(user_id);

CREATE TABLE IF NOT EXISTS campaign_jobs (
	id              TEXT PRIMARY KEY,
	campaign_id     TEXT NOT NULL,
	user_id         TEXT NOT NULL,
	status          TEXT NOT NULL DEFAULT 'PENDING',
	leads_processed INTEGER NOT NULL DEFAULT 0,
	leads_written   INTEGER NOT NULL DEFAULT 0,
	total_pages     INTEGER NOT NULL DEFAULT 0,
	last_error      TEXT NOT NULL DEFAULT '',
	created_at      DATETIME NOT NULL,
	updated_at      DATETIME NOT NULL,
	started_at      DATETIME,
	finished_at     DATETIME
);

CREATE INDEX IF NOT EXISTS idx_campaign_jobs_campaign ON campaign_jobs(campaign_id, created_at);
CREATE INDEX IF NOT EXISTS idx_campaign_jobs_status ON campaign_jobs(status, updated_at);

CREATE TABLE IF NOT EXISTS job_attempts (
	id                 TEXT PRIMARY KEY,
	job_id             TEXT NOT NULL,
	attempt_number     INTEGER NOT NULL,
	status             TEXT NOT NULL DEFAULT 'RUNNING',
	pages_processed    INTEGER NOT NULL DEFAULT 0,
	leads_found        INTEGER NOT NULL DEFAULT 0,
	leads_written      INTEGER NOT NULL DEFAULT 0,
	sheet_rows_written INTEGER NOT NULL DEFAULT 0,
	search_mode        TEXT NOT NULL DEFAULT '',
	warning            TEXT NOT NULL DEFAULT '',
	error              TEXT NOT NULL DEFAULT '',
	started_at         DATETIME NOT NULL,
	finished_at        DATETIME,
	UNIQUE (job_id, attempt_number)
);

CREATE TABLE IF NOT EXISTS leads (
	id            TEXT PRIMARY KEY,
	campaign_id   TEXT NOT NULL,
	user_id       TEXT NOT NULL,
	job_id        TEXT NOT NULL,
	attempt_id    TEXT NOT NULL,
	external_id   TEXT NOT NULL DEFAULT '',
	email         TEXT NOT NULL DEFAULT '',
	email_status  TEXT NOT NULL DEFAULT '',
	is_valid      BOOLEAN NOT NULL DEFAULT 0,
	is_suppressed BOOLEAN NOT NULL DEFAULT 0,
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
	created_at    DATETIME NOT NULL,
	UNIQUE (campaign_id, dedup_key)
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_leads_user_scope ON leads(user_id, dedup_key) WHERE dedup_scope = 'user';
CREATE INDEX IF NOT EXISTS idx_leads_user_key ON leads(user_id, dedup_key);
CREATE INDEX IF NOT EXISTS idx_leads_attempt ON leads(attempt_id);

CREATE TABLE IF NOT EXISTS suppressions (
	user_id    TEXT NOT NULL,
	email      TEXT NOT NULL,
	created_at DATETIME NOT NULL,
	PRIMARY KEY (user_id, email)
);

CREATE TABLE IF NOT EXISTS dead_letter_queue (
	id             TEXT PRIMARY KEY,
	payload        TEXT NOT NULL,
	error          TEXT NOT NULL,
	error_type     TEXT NOT NULL DEFAULT 'transient',
	attempts       INTEGER NOT NULL DEFAULT 0,
	created_at     DATETIME NOT NULL,
	last_failed_at DATETIME NOT NULL
);
`

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.db.PingContext(ctx), "sqlite: ping")
}

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Campaigns

func (s *SQLiteStore) GetCampaign(ctx context.Context, id string) (*model.Campaign, error) {
	var c model.Campaign
	err := s.db.QueryRowContext(ctx,
		`SELECT `+campaignColumns+` FROM campaigns WHERE id = ?`, id,
	).Scan(campaignDest(&c)...)
	if err == sql.ErrNoRows {
		return nil, eris.Wrapf(ErrNotFound, "sqlite: campaign %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get campaign %s", id)
	}
	return &c, nil
}

func (s *SQLiteStore) UpsertCampaign(ctx context.Context, c *model.Campaign) error {
	now := s.now()
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	c.UpdatedAt = now

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO campaigns (`+campaignColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET
		   user_id = excluded.user_id, name = excluded.name, job_titles = excluded.job_titles,
		   locations = excluded.locations, keywords = excluded.keywords,
		   include_domains = excluded.include_domains, exclude_domains = excluded.exclude_domains,
		   max_leads = excluded.max_leads, page_size = excluded.page_size, search_mode = excluded.search_mode,
		   is_active = excluded.is_active, spreadsheet_id = excluded.spreadsheet_id,
		   sheet_name = excluded.sheet_name, updated_at = excluded.updated_at`,
		c.ID, c.UserID, c.Name, c.JobTitles, c.Locations, c.Keywords, c.IncludeDomains, c.ExcludeDomains,
		c.MaxLeads, c.PageSize, string(c.SearchMode), c.IsActive, c.SpreadsheetID, c.SheetName, c.CreatedAt, c.UpdatedAt,
	)
	return eris.Wrapf(err, "sqlite: upsert campaign %s", c.ID)
}

func (s *SQLiteStore) ListCampaigns(ctx context.Context, userID string) ([]model.Campaign, error) {
	query := `SELECT ` + campaignColumns + ` FROM campaigns`
	var args []any
	if userID != "" {
		query += ` WHERE user_id = ?`
		args = append(args, userID)
	}
	query += ` ORDER BY created_at DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list campaigns")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.Campaign
	for rows.Next() {
		var c model.Campaign
		if err := rows.Scan(campaignDest(&c)...); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan campaign")
		}
		out = append(out, c)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list campaigns iterate")
}

func (s *SQLiteStore) SetCampaignActive(ctx context.Context, id string, active bool) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE campaigns SET is_active = ?, updated_at = ? WHERE id = ?`,
		active, s.now(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: set campaign active %s", id)
	}
	return checkRowsAffected(res, "campaign", id)
}

// Jobs

func (s *SQLiteStore) CreateJob(ctx context.Context, campaignID, userID string) (*model.CampaignJob, error) {
	now := s.now()
	j := &model.CampaignJob{
		ID:         uuid.New().String(),
		CampaignID: campaignID,
		UserID:     userID,
		Status:     model.JobStatusPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO campaign_jobs (id, campaign_id, user_id, status, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`,
		j.ID, j.CampaignID, j.UserID, string(j.Status), j.CreatedAt, j.UpdatedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert job")
	}
	return j, nil
}

func (s *SQLiteStore) GetJob(ctx context.Context, id string) (*model.CampaignJob, error) {
	var j model.CampaignJob
	err := s.db.QueryRowContext(ctx,
		`SELECT `+jobColumns+` FROM campaign_jobs WHERE id = ?`, id,
	).Scan(jobDest(&j)...)
	if err == sql.ErrNoRows {
		return nil, eris.Wrapf(ErrNotFound, "sqlite: job %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get job %s", id)
	}
	return &j, nil
}

func (s *SQLiteStore) ListJobs(ctx context.Context, filter JobFilter) ([]model.CampaignJob, error) {
	query := `SELECT ` + jobColumns + ` FROM campaign_jobs WHERE 1=1`
	var args []any
	if filter.CampaignID != "" {
		query += ` AND campaign_id = ?`
		args = append(args, filter.CampaignID)
	}
	if filter.UserID != "" {
		query += ` AND user_id = ?`
		args = append(args, filter.UserID)
	}
	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	query += ` ORDER BY created_at DESC LIMIT ? OFFSET ?`
	args = append(args, listLimit(filter.Limit), filter.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list jobs")
	}
	defer rows.Close() //nolint:errcheck

	var jobs []model.CampaignJob
	for rows.Next() {
		var j model.CampaignJob
		if err := rows.Scan(jobDest(&j)...); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan job")
		}
		jobs = append(jobs, j)
	}
	return jobs, eris.Wrap(rows.Err(), "sqlite: list jobs iterate")
}

func (s *SQLiteStore) MarkJobRunning(ctx context.Context, id string) error {
	now := s.now()
	res, err := s.db.ExecContext(ctx,
		`UPDATE campaign_jobs
		 SET status = ?, last_error = '', started_at = COALESCE(started_at, ?), finished_at = NULL, updated_at = ?
		 WHERE id = ?`,
		string(model.JobStatusRunning), now, now, id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: mark job running %s", id)
	}
	return checkRowsAffected(res, "job", id)
}

func (s *SQLiteStore) UpdateJobProgress(ctx context.Context, id string, p model.JobProgress) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE campaign_jobs SET leads_processed = ?, leads_written = ?, total_pages = ?, updated_at = ? WHERE id = ?`,
		p.LeadsProcessed, p.LeadsWritten, p.TotalPages, s.now(), id,
	)
	return eris.Wrapf(err, "sqlite: update job progress %s", id)
}

func (s *SQLiteStore) FinishJob(ctx context.Context, id string, status model.JobStatus, p model.JobProgress, lastError string) error {
	now := s.now()
	res, err := s.db.ExecContext(ctx,
		`UPDATE campaign_jobs
		 SET status = ?, leads_processed = ?, leads_written = ?, total_pages = ?, last_error = ?, finished_at = ?, updated_at = ?
		 WHERE id = ?`,
		string(status), p.LeadsProcessed, p.LeadsWritten, p.TotalPages, lastError, now, now, id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: finish job %s", id)
	}
	return checkRowsAffected(res, "job", id)
}

func (s *SQLiteStore) MarkStaleJobs(ctx context.Context, cutoff time.Time, reason string) (int, error) {
	now := s.now()
	res, err := s.db.ExecContext(ctx,
		`UPDATE campaign_jobs SET status = ?, last_error = ?, finished_at = ?, updated_at = ?
		 WHERE status = ? AND updated_at < ?`,
		string(model.JobStatusFailed), reason, now, now, string(model.JobStatusRunning), cutoff.UTC(),
	)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: mark stale jobs")
	}
	n, err := res.RowsAffected()
	return int(n), eris.Wrap(err, "sqlite: rows affected")
}

func (s *SQLiteStore) JobStats(ctx context.Context, since time.Time) (model.JobStats, error) {
	var stats model.JobStats
	rows, err := s.db.QueryContext(ctx,
		`SELECT status, COUNT(*) FROM campaign_jobs WHERE created_at >= ? GROUP BY status`, since.UTC(),
	)
	if err != nil {
		return stats, eris.Wrap(err, "sqlite: job stats")
	}
	defer rows.Close() //nolint:errcheck

	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return stats, eris.Wrap(err, "sqlite: scan job stats")
		}
		stats.Add(model.JobStatus(status), n)
	}
	return stats, eris.Wrap(rows.Err(), "sqlite: job stats iterate")
}

// Attempts

func (s *SQLiteStore) CreateAttempt(ctx context.Context, jobID string) (*model.JobAttempt, error) {
	a := &model.JobAttempt{
		ID:        uuid.New().String(),
		JobID:     jobID,
		Status:    model.JobStatusRunning,
		StartedAt: s.now(),
	}
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO job_attempts (id, job_id, attempt_number, status, started_at)
		 SELECT ?, ?, COALESCE(MAX(attempt_number), 0) + 1, ?, ? FROM job_attempts WHERE job_id = ?
		 RETURNING attempt_number`,
		a.ID, a.JobID, string(a.Status), a.StartedAt, a.JobID,
	).Scan(&a.AttemptNumber)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: create attempt for job %s", jobID)
	}
	return a, nil
}

func (s *SQLiteStore) UpdateAttempt(ctx context.Context, a *model.JobAttempt) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE job_attempts
		 SET status = ?, pages_processed = ?, leads_found = ?, leads_written = ?, sheet_rows_written = ?,
		     search_mode = ?, warning = ?, error = ?, finished_at = ?
		 WHERE id = ?`,
		string(a.Status), a.PagesProcessed, a.LeadsFound, a.LeadsWritten, a.SheetRowsWritten,
		string(a.SearchMode), a.Warning, a.Error, a.FinishedAt, a.ID,
	)
	return eris.Wrapf(err, "sqlite: update attempt %s", a.ID)
}

func (s *SQLiteStore) ListAttempts(ctx context.Context, jobID string) ([]model.JobAttempt, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+attemptColumns+` FROM job_attempts WHERE job_id = ? ORDER BY attempt_number`, jobID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: list attempts %s", jobID)
	}
	defer rows.Close() //nolint:errcheck

	var out []model.JobAttempt
	for rows.Next() {
		var a model.JobAttempt
		if err := rows.Scan(attemptDest(&a)...); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan attempt")
		}
		out = append(out, a)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list attempts iterate")
}

// Leads

func (s *SQLiteStore) ExistingLeadKeys(ctx context.Context, scope model.DedupScope, scopeID string, keys []string) (map[string]bool, error) {
	found := make(map[string]bool)
	if len(keys) == 0 {
		return found, nil
	}

	column := "campaign_id"
	if scope == model.DedupScopeUser {
		column = "user_id"
	}
	args := append([]any{scopeID}, stringArgs(keys)...)
	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT dedup_key FROM leads WHERE `+column+` = ? AND dedup_key IN (`+placeholders(len(keys))+`)`,
		args...,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: existing lead keys")
	}
	defer rows.Close() //nolint:errcheck

	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan lead key")
		}
		found[k] = true
	}
	return found, eris.Wrap(rows.Err(), "sqlite: existing lead keys iterate")
}

// InsertLeads inserts leads in one transaction, silently skipping any that
// violate a uniqueness constraint.
func (s *SQLiteStore) InsertLeads(ctx context.Context, leads []model.Lead) (int64, error) {
	if len(leads) == 0 {
		return 0, nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: insert leads: begin tx")
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO leads (`+joinColumns(leadColumns)+`) VALUES (`+placeholders(len(leadColumns))+`) ON CONFLICT DO NOTHING`)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: insert leads: prepare")
	}
	defer stmt.Close() //nolint:errcheck

	var inserted int64
	for i := range leads {
		if leads[i].ID == "" {
			leads[i].ID = uuid.New().String()
		}
		if leads[i].CreatedAt.IsZero() {
			leads[i].CreatedAt = s.now()
		}
		res, err := stmt.ExecContext(ctx, leadValues(&leads[i])...)
		if err != nil {
			return 0, eris.Wrapf(err, "sqlite: insert lead %s", leads[i].DedupKey)
		}
		n, _ := res.RowsAffected()
		inserted += n
	}

	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: insert leads: commit")
	}
	return inserted, nil
}

func (s *SQLiteStore) LeadsByKeys(ctx context.Context, campaignID, attemptID string, keys []string) ([]model.Lead, error) {
	if len(keys) == 0 {
		return nil, nil
	}
	args := append([]any{campaignID, attemptID}, stringArgs(keys)...)
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+joinColumns(leadColumns)+` FROM leads
		 WHERE campaign_id = ? AND attempt_id = ? AND dedup_key IN (`+placeholders(len(keys))+`)`,
		args...,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: leads by keys")
	}
	return scanLeads(rows)
}

func (s *SQLiteStore) ListLeads(ctx context.Context, filter LeadFilter) ([]model.Lead, error) {
	query := `SELECT ` + joinColumns(leadColumns) + ` FROM leads WHERE 1=1`
	var args []any
	if filter.CampaignID != "" {
		query += ` AND campaign_id = ?`
		args = append(args, filter.CampaignID)
	}
	if filter.JobID != "" {
		query += ` AND job_id = ?`
		args = append(args, filter.JobID)
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = 10000
	}
	query += ` ORDER BY created_at, id LIMIT ? OFFSET ?`
	args = append(args, limit, filter.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list leads")
	}
	return scanLeads(rows)
}

func scanLeads(rows *sql.Rows) ([]model.Lead, error) {
	defer rows.Close() //nolint:errcheck
	var out []model.Lead
	for rows.Next() {
		var l model.Lead
		if err := rows.Scan(leadDest(&l)...); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan lead")
		}
		out = append(out, l)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: leads iterate")
}

// Suppression list

func (s *SQLiteStore) SuppressedEmails(ctx context.Context, userID string, emails []string) (map[string]bool, error) {
	out := make(map[string]bool)
	if len(emails) == 0 {
		return out, nil
	}
	args := append([]any{userID}, stringArgs(emails)...)
	rows, err := s.db.QueryContext(ctx,
		`SELECT email FROM suppressions WHERE user_id = ? AND email IN (`+placeholders(len(emails))+`)`, args...,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: suppressed emails")
	}
	defer rows.Close() //nolint:errcheck
	for rows.Next() {
		var e string
		if err := rows.Scan(&e); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan suppression")
		}
		out[e] = true
	}
	return out, eris.Wrap(rows.Err(), "sqlite: suppressed emails iterate")
}

func (s *SQLiteStore) AddSuppression(ctx context.Context, userID, email string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO suppressions (user_id, email, created_at) VALUES (?, ?, ?) ON CONFLICT DO NOTHING`,
		userID, email, s.now(),
	)
	return eris.Wrap(err, "sqlite: add suppression")
}

// Dead letter queue

func (s *SQLiteStore) EnqueueDLQ(ctx context.Context, entry resilience.DLQEntry) error {
	payload, err := json.Marshal(entry.Payload)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal dlq payload")
	}
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO dead_letter_queue (id, payload, error, error_type, attempts, created_at, last_failed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET error = excluded.error, error_type = excluded.error_type,
		   attempts = excluded.attempts, last_failed_at = excluded.last_failed_at`,
		entry.ID, string(payload), entry.Error, entry.ErrorType, entry.Attempts, entry.CreatedAt.UTC(), entry.LastFailedAt.UTC(),
	)
	return eris.Wrap(err, "sqlite: enqueue dlq")
}

func (s *SQLiteStore) ListDLQ(ctx context.Context, filter resilience.DLQFilter) ([]resilience.DLQEntry, error) {
	query := `SELECT id, payload, error, error_type, attempts, created_at, last_failed_at FROM dead_letter_queue`
	var args []any
	if filter.ErrorType != "" {
		query += ` WHERE error_type = ?`
		args = append(args, filter.ErrorType)
	}
	query += ` ORDER BY last_failed_at DESC LIMIT ?`
	args = append(args, listLimit(filter.Limit))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list dlq")
	}
	defer rows.Close() //nolint:errcheck

	var entries []resilience.DLQEntry
	for rows.Next() {
		var e resilience.DLQEntry
		var payload string
		if err := rows.Scan(&e.ID, &payload, &e.Error, &e.ErrorType, &e.Attempts, &e.CreatedAt, &e.LastFailedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan dlq entry")
		}
		if err := json.Unmarshal([]byte(payload), &e.Payload); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal dlq payload")
		}
		entries = append(entries, e)
	}
	return entries, eris.Wrap(rows.Err(), "sqlite: list dlq iterate")
}

func (s *SQLiteStore) CountDLQ(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM dead_letter_queue`).Scan(&count)
	return count, eris.Wrap(err, "sqlite: count dlq")
}

// helpers

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Wrapf(ErrNotFound, "%s %s", entity, id)
	}
	return nil
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func stringArgs(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}
