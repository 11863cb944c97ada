//go:build !integration

package main

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/leadfetch/internal/model"
	"github.com/sells-group/leadfetch/internal/resilience"
)

func TestWriteJobsTable(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 15, 0, 0, time.UTC)
	jobs := []model.CampaignJob{
		{
			ID:             "abc12345-6789-0000-0000-000000000000",
			CampaignID:     "camp0001-aaaa",
			Status:         model.JobStatusSucceeded,
			LeadsWritten:   42,
			LeadsProcessed: 50,
			TotalPages:     3,
			CreatedAt:      now,
		},
		{
			ID:         "def12345-6789-0000-0000-000000000000",
			CampaignID: "camp0002-bbbb",
			Status:     model.JobStatusFailed,
			LastError:  strings.Repeat("x", 80),
			CreatedAt:  now.Add(-time.Hour),
		},
	}

	var buf bytes.Buffer
	require.NoError(t, writeJobsTable(&buf, jobs))

	out := buf.String()
	assert.Contains(t, out, "STATUS")
	assert.Contains(t, out, "abc12345")
	assert.NotContains(t, out, "abc12345-6789")
	assert.Contains(t, out, "camp0001")
	assert.Contains(t, out, "SUCCEEDED")
	assert.Contains(t, out, "42")
	assert.Contains(t, out, "2026-03-01 09:15:00")
	assert.Contains(t, out, "FAILED")
	assert.Contains(t, out, strings.Repeat("x", 47)+"...")
	assert.NotContains(t, out, strings.Repeat("x", 48))
}

func TestWriteJobsTable_Empty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeJobsTable(&buf, nil))
	assert.Equal(t, "No jobs found.\n", buf.String())
}

func TestWriteCampaignsTable(t *testing.T) {
	campaigns := []model.Campaign{
		{ID: "c1", UserID: "u1", Name: "Austin CTOs", SearchMode: model.SearchModeConserve, MaxLeads: 100, IsActive: true, SheetName: "Leads"},
	}

	var buf bytes.Buffer
	require.NoError(t, writeCampaignsTable(&buf, campaigns))

	out := buf.String()
	assert.Contains(t, out, "Austin CTOs")
	assert.Contains(t, out, "conserve")
	assert.Contains(t, out, "true")
	assert.Contains(t, out, "Leads")
}

func TestWriteCampaignsTable_Empty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeCampaignsTable(&buf, nil))
	assert.Equal(t, "No campaigns found.\n", buf.String())
}

func TestShortIDAndTruncate(t *testing.T) {
	assert.Equal(t, "abc", shortID("abc"))
	assert.Equal(t, "abcdefgh", shortID("abcdefghij"))
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "abcdefg...", truncate("abcdefghijklmnop", 10))
}

func TestWriteDLQTable(t *testing.T) {
	failed := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)
	entries := []resilience.DLQEntry{
		{
			Payload:      model.JobPayload{JobID: "job12345-xxxx", CampaignID: "camp9876-yyyy"},
			Error:        "search: search people: permission (status 401): invalid api key",
			ErrorType:    "permanent",
			Attempts:     1,
			LastFailedAt: failed,
		},
	}

	var buf bytes.Buffer
	require.NoError(t, writeDLQTable(&buf, entries))

	out := buf.String()
	assert.Contains(t, out, "job12345")
	assert.Contains(t, out, "camp9876")
	assert.Contains(t, out, "permanent")
	assert.Contains(t, out, "2026-03-02 08:00:00")
	assert.Contains(t, out, "search: search people: permission")
}

func TestWriteDLQTable_Empty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeDLQTable(&buf, nil))
	assert.Equal(t, "Dead letter queue is empty.\n", buf.String())
}
