package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJobStatusValues(t *testing.T) {
	t.Parallel()

	tests := []struct {
		status   JobStatus
		want     string
		terminal bool
	}{
		{JobStatusPending, "PENDING", false},
		{JobStatusRunning, "RUNNING", false},
		{JobStatusSucceeded, "SUCCEEDED", true},
		{JobStatusFailed, "FAILED", true},
		{JobStatusCancelled, "CANCELLED", true},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, string(tt.status))
			assert.Equal(t, tt.terminal, tt.status.Terminal())
		})
	}
}

func TestSplitList(t *testing.T) {
	t.Parallel()

	assert.Nil(t, SplitList(""))
	assert.Nil(t, SplitList("   "))
	assert.Equal(t, []string{"CEO", "Founder"}, SplitList(" CEO , Founder "))
	assert.Equal(t, []string{"Austin"}, SplitList("Austin,,"))
}

func TestCampaign_DedupScope(t *testing.T) {
	t.Parallel()

	conserve := &Campaign{ID: "c1", UserID: "u1", SearchMode: SearchModeConserve}
	assert.Equal(t, DedupScopeCampaign, conserve.DedupScope())
	assert.Equal(t, "c1", conserve.DedupScopeID())

	balanced := &Campaign{ID: "c1", UserID: "u1", SearchMode: SearchModeBalanced}
	assert.Equal(t, DedupScopeUser, balanced.DedupScope())
	assert.Equal(t, "u1", balanced.DedupScopeID())

	unset := &Campaign{ID: "c1", UserID: "u1"}
	assert.Equal(t, DedupScopeUser, unset.DedupScope())
}

func TestSearchMode_Valid(t *testing.T) {
	t.Parallel()

	assert.True(t, SearchModeBalanced.Valid())
	assert.True(t, SearchModeConserve.Valid())
	assert.False(t, SearchMode("aggressive").Valid())
}

func TestLead_LookupKey(t *testing.T) {
	t.Parallel()

	l := &Lead{CampaignID: "c1", UserID: "u1", DedupScope: DedupScopeCampaign, DedupKey: "a@x.com"}
	assert.Equal(t, "campaign:c1:a@x.com", l.LookupKey())

	l.DedupScope = DedupScopeUser
	assert.Equal(t, "user:u1:a@x.com", l.LookupKey())
}

func TestNewSheetRow(t *testing.T) {
	t.Parallel()

	l := &Lead{
		ID: "lead-1", CampaignID: "c1", DedupScope: DedupScopeCampaign, DedupKey: "a@x.com",
		FullName: "Ada Lovelace", Email: "a@x.com", Company: "Analytical",
	}
	row := NewSheetRow(l)
	require.Len(t, row.Values, len(SheetHeader))
	assert.Equal(t, l.LookupKey(), row.LookupKey)
	assert.Equal(t, "Ada Lovelace", row.Values[0])
	assert.Equal(t, "a@x.com", row.Values[6])
	assert.Equal(t, "lead-1", row.Values[len(row.Values)-1])

	updated := row.WithID("lead-2")
	assert.Equal(t, "lead-2", updated.Values[len(updated.Values)-1])
	assert.Equal(t, "lead-1", row.Values[len(row.Values)-1])
}

func TestJobStats_FailureRate(t *testing.T) {
	t.Parallel()

	var s JobStats
	assert.Zero(t, s.FailureRate())

	s.Add(JobStatusSucceeded, 3)
	s.Add(JobStatusFailed, 1)
	s.Add(JobStatusRunning, 2)
	assert.Equal(t, 6, s.Total)
	assert.InDelta(t, 0.25, s.FailureRate(), 0.0001)
}

func TestJobPayload_JSON(t *testing.T) {
	t.Parallel()

	var p JobPayload
	require.NoError(t, json.Unmarshal([]byte(`{"campaignId":"c1","jobId":"j1","userId":"u1","isRetry":true}`), &p))
	assert.Equal(t, JobPayload{CampaignID: "c1", JobID: "j1", UserID: "u1", IsRetry: true}, p)
}
