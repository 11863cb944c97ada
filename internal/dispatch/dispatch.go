// Package dispatch creates fetch jobs for campaigns and hands them to the
// queue. The status API and the enqueue command share it.
package dispatch

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/leadfetch/internal/model"
	"github.com/sells-group/leadfetch/internal/store"
)

// ErrCampaignInactive is returned when submitting for a paused campaign.
var ErrCampaignInactive = eris.New("dispatch: campaign inactive")

// ErrJobInFlight is returned when the campaign already has a PENDING or
// RUNNING job. A second job would only find the campaign lock held.
var ErrJobInFlight = eris.New("dispatch: campaign has a job in flight")

// Store is the persistence Submit needs.
type Store interface {
	GetCampaign(ctx context.Context, id string) (*model.Campaign, error)
	CreateJob(ctx context.Context, campaignID, userID string) (*model.CampaignJob, error)
	ListJobs(ctx context.Context, filter store.JobFilter) ([]model.CampaignJob, error)
	FinishJob(ctx context.Context, id string, status model.JobStatus, p model.JobProgress, lastError string) error
}

// Enqueuer publishes a job payload.
type Enqueuer interface {
	Enqueue(ctx context.Context, p model.JobPayload) (string, error)
}

// Submission is a created and queued job.
type Submission struct {
	Job       *model.CampaignJob `json:"job"`
	MessageID string             `json:"message_id"`
}

// Submit creates a PENDING job for the campaign and enqueues it. It refuses
// with ErrJobInFlight while another job for the campaign is PENDING or
// RUNNING. A job whose enqueue fails is marked FAILED so it never lingers
// as PENDING.
func Submit(ctx context.Context, st Store, q Enqueuer, campaignID string) (*Submission, error) {
	c, err := st.GetCampaign(ctx, campaignID)
	if err != nil {
		return nil, eris.Wrapf(err, "dispatch: load campaign %s", campaignID)
	}
	if !c.IsActive {
		return nil, eris.Wrapf(ErrCampaignInactive, "campaign %s", campaignID)
	}

	if active, err := inFlight(ctx, st, c.ID); err != nil {
		return nil, err
	} else if active != "" {
		return nil, eris.Wrapf(ErrJobInFlight, "campaign %s job %s", c.ID, active)
	}

	job, err := st.CreateJob(ctx, c.ID, c.UserID)
	if err != nil {
		return nil, eris.Wrap(err, "dispatch: create job")
	}

	msgID, err := q.Enqueue(ctx, model.JobPayload{CampaignID: c.ID, JobID: job.ID, UserID: c.UserID})
	if err != nil {
		if ferr := st.FinishJob(ctx, job.ID, model.JobStatusFailed, model.JobProgress{}, "enqueue failed: "+err.Error()); ferr != nil {
			zap.L().Error("dispatch: mark unqueued job failed", zap.String("job_id", job.ID), zap.Error(ferr))
		}
		return nil, eris.Wrapf(err, "dispatch: enqueue job %s", job.ID)
	}

	zap.L().Info("dispatch: job queued",
		zap.String("job_id", job.ID),
		zap.String("campaign_id", c.ID),
		zap.String("message_id", msgID),
	)
	return &Submission{Job: job, MessageID: msgID}, nil
}

// inFlight returns the ID of a PENDING or RUNNING job for the campaign, or
// "" when there is none.
func inFlight(ctx context.Context, st Store, campaignID string) (string, error) {
	for _, status := range []model.JobStatus{model.JobStatusRunning, model.JobStatusPending} {
		jobs, err := st.ListJobs(ctx, store.JobFilter{CampaignID: campaignID, Status: status, Limit: 1})
		if err != nil {
			return "", eris.Wrapf(err, "dispatch: list %s jobs", status)
		}
		if len(jobs) > 0 {
			return jobs[0].ID, nil
		}
	}
	return "", nil
}
