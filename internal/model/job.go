package model

import "time"

// JobStatus is the lifecycle state of a fetch job or attempt.
type JobStatus string

const (
	JobStatusPending   JobStatus = "PENDING"
	JobStatusRunning   JobStatus = "RUNNING"
	JobStatusSucceeded JobStatus = "SUCCEEDED"
	JobStatusFailed    JobStatus = "FAILED"
	JobStatusCancelled JobStatus = "CANCELLED"
)

// Terminal reports whether no further transitions are expected.
func (s JobStatus) Terminal() bool {
	switch s {
	case JobStatusSucceeded, JobStatusFailed, JobStatusCancelled:
		return true
	}
	return false
}

// CampaignJob is one fetch run for a campaign.
type CampaignJob struct {
	ID             string     `json:"id"`
	CampaignID     string     `json:"campaign_id"`
	UserID         string     `json:"user_id"`
	Status         JobStatus  `json:"status"`
	LeadsProcessed int        `json:"leads_processed"`
	LeadsWritten   int        `json:"leads_written"`
	TotalPages     int        `json:"total_pages"`
	LastError      string     `json:"last_error,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
	StartedAt      *time.Time `json:"started_at,omitempty"`
	FinishedAt     *time.Time `json:"finished_at,omitempty"`
}

// JobProgress is the counter checkpoint written after every page.
type JobProgress struct {
	LeadsProcessed int `json:"leads_processed"`
	LeadsWritten   int `json:"leads_written"`
	TotalPages     int `json:"total_pages"`
}

// JobAttempt records one execution of a CampaignJob.
type JobAttempt struct {
	ID               string     `json:"id"`
	JobID            string     `json:"job_id"`
	AttemptNumber    int        `json:"attempt_number"`
	Status           JobStatus  `json:"status"`
	PagesProcessed   int        `json:"pages_processed"`
	LeadsFound       int        `json:"leads_found"`
	LeadsWritten     int        `json:"leads_written"`
	SheetRowsWritten int        `json:"sheet_rows_written"`
	SearchMode       SearchMode `json:"search_mode,omitempty"`
	Warning          string     `json:"warning,omitempty"`
	Error            string     `json:"error,omitempty"`
	StartedAt        time.Time  `json:"started_at"`
	FinishedAt       *time.Time `json:"finished_at,omitempty"`
}

// JobPayload is the message carried by the job queue.
type JobPayload struct {
	CampaignID string `json:"campaignId"`
	JobID      string `json:"jobId"`
	UserID     string `json:"userId"`
	IsRetry    bool   `json:"isRetry,omitempty"`
}

// JobStats aggregates job outcomes over a window.
type JobStats struct {
	Total     int `json:"total"`
	Pending   int `json:"pending"`
	Running   int `json:"running"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
	Cancelled int `json:"cancelled"`
}

// Add counts one job with the given status.
func (s *JobStats) Add(status JobStatus, n int) {
	s.Total += n
	switch status {
	case JobStatusPending:
		s.Pending += n
	case JobStatusRunning:
		s.Running += n
	case JobStatusSucceeded:
		s.Succeeded += n
	case JobStatusFailed:
		s.Failed += n
	case JobStatusCancelled:
		s.Cancelled += n
	}
}

// FailureRate is failed / finished, or 0 when nothing finished.
func (s JobStats) FailureRate() float64 {
	finished := s.Succeeded + s.Failed + s.Cancelled
	if finished == 0 {
		return 0
	}
	return float64(s.Failed) / float64(finished)
}
