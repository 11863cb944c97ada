// Package store persists campaigns, fetch jobs, attempts and leads.
package store

import (
	"context"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/leadfetch/internal/model"
	"github.com/sells-group/leadfetch/internal/resilience"
)

// ErrNotFound is returned (wrapped) when a looked-up row does not exist.
var ErrNotFound = eris.New("store: not found")

// JobFilter specifies criteria for listing jobs.
type JobFilter struct {
	CampaignID string          `json:"campaign_id,omitempty"`
	UserID     string          `json:"user_id,omitempty"`
	Status     model.JobStatus `json:"status,omitempty"`
	Limit      int             `json:"limit,omitempty"`
	Offset     int             `json:"offset,omitempty"`
}

// LeadFilter specifies criteria for listing leads.
type LeadFilter struct {
	CampaignID string `json:"campaign_id,omitempty"`
	JobID      string `json:"job_id,omitempty"`
	Limit      int    `json:"limit,omitempty"`
	Offset     int    `json:"offset,omitempty"`
}

// Store defines the persistence interface for the lead-fetch pipeline.
type Store interface {
	// Campaigns
	GetCampaign(ctx context.Context, id string) (*model.Campaign, error)
	UpsertCampaign(ctx context.Context, c *model.Campaign) error
	ListCampaigns(ctx context.Context, userID string) ([]model.Campaign, error)
	SetCampaignActive(ctx context.Context, id string, active bool) error

	// Jobs
	CreateJob(ctx context.Context, campaignID, userID string) (*model.CampaignJob, error)
	GetJob(ctx context.Context, id string) (*model.CampaignJob, error)
	ListJobs(ctx context.Context, filter JobFilter) ([]model.CampaignJob, error)
	MarkJobRunning(ctx context.Context, id string) error
	UpdateJobProgress(ctx context.Context, id string, p model.JobProgress) error
	FinishJob(ctx context.Context, id string, status model.JobStatus, p model.JobProgress, lastError string) error
	MarkStaleJobs(ctx context.Context, cutoff time.Time, reason string) (int, error)
	JobStats(ctx context.Context, since time.Time) (model.JobStats, error)

	// Attempts
	CreateAttempt(ctx context.Context, jobID string) (*model.JobAttempt, error)
	UpdateAttempt(ctx context.Context, a *model.JobAttempt) error
	ListAttempts(ctx context.Context, jobID string) ([]model.JobAttempt, error)

	// Leads
	ExistingLeadKeys(ctx context.Context, scope model.DedupScope, scopeID string, keys []string) (map[string]bool, error)
	InsertLeads(ctx context.Context, leads []model.Lead) (int64, error)
	LeadsByKeys(ctx context.Context, campaignID, attemptID string, keys []string) ([]model.Lead, error)
	ListLeads(ctx context.Context, filter LeadFilter) ([]model.Lead, error)

	// Suppression list
	SuppressedEmails(ctx context.Context, userID string, emails []string) (map[string]bool, error)
	AddSuppression(ctx context.Context, userID, email string) error

	// Dead letter queue
	EnqueueDLQ(ctx context.Context, entry resilience.DLQEntry) error
	ListDLQ(ctx context.Context, filter resilience.DLQFilter) ([]resilience.DLQEntry, error)
	CountDLQ(ctx context.Context) (int, error)

	// Lifecycle
	Ping(ctx context.Context) error
	Migrate(ctx context.Context) error
	Close() error
}

// leadColumns is the column order shared by both drivers for lead rows.
var leadColumns = []string{
	"id", "campaign_id", "user_id", "job_id", "attempt_id", "external_id",
	"email", "email_status", "is_valid", "is_suppressed",
	"first_name", "last_name", "full_name", "title", "company", "domain",
	"website_url", "linkedin_url", "city", "state", "country", "summary",
	"dedup_scope", "dedup_key", "created_at",
}

func leadValues(l *model.Lead) []any {
	return []any{
		l.ID, l.CampaignID, l.UserID, l.JobID, l.AttemptID, l.ExternalID,
		l.Email, l.EmailStatus, l.IsValid, l.IsSuppressed,
		l.FirstName, l.LastName, l.FullName, l.Title, l.Company, l.Domain,
		l.WebsiteURL, l.LinkedInURL, l.City, l.State, l.Country, l.Summary,
		string(l.DedupScope), l.DedupKey, l.CreatedAt,
	}
}

func leadDest(l *model.Lead) []any {
	return []any{
		&l.ID, &l.CampaignID, &l.UserID, &l.JobID, &l.AttemptID, &l.ExternalID,
		&l.Email, &l.EmailStatus, &l.IsValid, &l.IsSuppressed,
		&l.FirstName, &l.LastName, &l.FullName, &l.Title, &l.Company, &l.Domain,
		&l.WebsiteURL, &l.LinkedInURL, &l.City, &l.State, &l.Country, &l.Summary,
		&l.DedupScope, &l.DedupKey, &l.CreatedAt,
	}
}

const (
	campaignColumns = `id, user_id, name, job_titles, locations, keywords, include_domains, exclude_domains,
		max_leads, page_size, search_mode, is_active, spreadsheet_id, sheet_name, created_at, updated_at`
	jobColumns     = `id, campaign_id, user_id, status, leads_processed, leads_written, total_pages, last_error, created_at, updated_at, started_at, finished_at`
	attemptColumns = `id, job_id, attempt_number, status, pages_processed, leads_found, leads_written, sheet_rows_written, search_mode, warning, error, started_at, finished_at`
)

func campaignDest(c *model.Campaign) []any {
	return []any{
		&c.ID, &c.UserID, &c.Name, &c.JobTitles, &c.Locations, &c.Keywords, &c.IncludeDomains, &c.ExcludeDomains,
		&c.MaxLeads, &c.PageSize, &c.SearchMode, &c.IsActive, &c.SpreadsheetID, &c.SheetName, &c.CreatedAt, &c.UpdatedAt,
	}
}

func jobDest(j *model.CampaignJob) []any {
	return []any{
		&j.ID, &j.CampaignID, &j.UserID, &j.Status, &j.LeadsProcessed, &j.LeadsWritten, &j.TotalPages,
		&j.LastError, &j.CreatedAt, &j.UpdatedAt, &j.StartedAt, &j.FinishedAt,
	}
}

func attemptDest(a *model.JobAttempt) []any {
	return []any{
		&a.ID, &a.JobID, &a.AttemptNumber, &a.Status, &a.PagesProcessed, &a.LeadsFound, &a.LeadsWritten,
		&a.SheetRowsWritten, &a.SearchMode, &a.Warning, &a.Error, &a.StartedAt, &a.FinishedAt,
	}
}

func joinColumns(cols []string) string {
	return strings.Join(cols, ", ")
}

func listLimit(n int) int {
	if n <= 0 || n > 1000 {
		return 100
	}
	return n
}
