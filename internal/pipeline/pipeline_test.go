package pipeline

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/leadfetch/internal/config"
	"github.com/sells-group/leadfetch/internal/model"
	"github.com/sells-group/leadfetch/internal/resilience"
	"github.com/sells-group/leadfetch/internal/sheetsync"
	"github.com/sells-group/leadfetch/internal/store"
	"github.com/sells-group/leadfetch/pkg/search"
	"github.com/sells-group/leadfetch/pkg/sheets"
)

func (h *harness) leadCount(t *testing.T, campaignID string) int {
	t.Helper()
	ls, err := h.store.ListLeads(context.Background(), store.LeadFilter{CampaignID: campaignID})
	require.NoError(t, err)
	return len(ls)
}

func (h *harness) attempts(t *testing.T, jobID string) []model.JobAttempt {
	t.Helper()
	as, err := h.store.ListAttempts(context.Background(), jobID)
	require.NoError(t, err)
	return as
}

func TestRun_CapacityCapsAcrossOverlappingPages(t *testing.T) {
	h := newHarness(t)
	c := h.campaign(t, model.Campaign{MaxLeads: 10, PageSize: 25, SpreadsheetID: "sp1"})
	payload := h.job(t, c)

	first := people("a", 8)
	second := append(people("a", 3), people("b", 5)...)
	h.serve(func(req search.SearchRequest) (*search.SearchResponse, error) {
		assert.Equal(t, 25, req.PerPage)
		assert.Equal(t, []string{"CTO", "VP Engineering"}, req.Titles)
		if req.Page == 1 {
			return page(5, first...), nil
		}
		return page(5, second...), nil
	})

	res, err := h.pipeline(h.sheets).Run(context.Background(), payload)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusSucceeded, res.Status)
	h.search.AssertNumberOfCalls(t, "SearchPeople", 2)
	assert.Equal(t, 10, res.LeadsFound)
	assert.Equal(t, 10, res.LeadsWritten)
	assert.Equal(t, 10, h.leadCount(t, c.ID))
	assert.Len(t, h.rows, 10)
	h.sheets.AssertNumberOfCalls(t, "Write", 1)
	assert.Equal(t, 10, res.SheetRows)

	job, err := h.store.GetJob(context.Background(), payload.JobID)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusSucceeded, job.Status)
	assert.Equal(t, 10, job.LeadsProcessed)
	assert.LessOrEqual(t, job.LeadsWritten, 10)
	assert.Equal(t, 5, job.TotalPages)
	assert.NotNil(t, job.FinishedAt)

	attempts := h.attempts(t, payload.JobID)
	require.Len(t, attempts, 1)
	assert.Equal(t, 1, attempts[0].AttemptNumber)
	assert.Equal(t, model.JobStatusSucceeded, attempts[0].Status)
	assert.Equal(t, 2, attempts[0].PagesProcessed)
	assert.Equal(t, 10, attempts[0].SheetRowsWritten)
	assert.Equal(t, model.SearchModeBalanced, attempts[0].SearchMode)

	assert.False(t, h.mr.Exists("lock:campaign:c1"), "lock released")
}

func TestRun_ConserveFallsBackToBalanced(t *testing.T) {
	h := newHarness(t)
	c := h.campaign(t, model.Campaign{MaxLeads: 20, PageSize: 50, SearchMode: model.SearchModeConserve})
	payload := h.job(t, c)

	var conserveCalls atomic.Int32
	h.serve(func(req search.SearchRequest) (*search.SearchResponse, error) {
		if req.PerPage == 25 {
			conserveCalls.Add(1)
			return page(0), nil
		}
		assert.Equal(t, 50, req.PerPage)
		return page(1, people("x", 5)...), nil
	})

	res, err := h.pipeline(h.sheets).Run(context.Background(), payload)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusSucceeded, res.Status)
	assert.Equal(t, model.SearchModeBalanced, res.Mode)
	assert.Equal(t, int32(2), conserveCalls.Load(), "conserve stops after two empty pages")

	job, err := h.store.GetJob(context.Background(), payload.JobID)
	require.NoError(t, err)
	assert.Equal(t, 5, job.LeadsProcessed)
	assert.Equal(t, 5, job.LeadsWritten)

	leads, err := h.store.ListLeads(context.Background(), store.LeadFilter{CampaignID: c.ID})
	require.NoError(t, err)
	require.Len(t, leads, 5)
	assert.Equal(t, model.DedupScopeCampaign, leads[0].DedupScope, "scope follows the campaign's mode")
}

func TestRun_DeactivatedMidRunIsCancelled(t *testing.T) {
	h := newHarness(t)
	c := h.campaign(t, model.Campaign{MaxLeads: 100, PageSize: 10, SpreadsheetID: "sp1"})
	payload := h.job(t, c)

	h.serve(func(req search.SearchRequest) (*search.SearchResponse, error) {
		if req.Page == 2 {
			require.NoError(t, h.store.SetCampaignActive(context.Background(), c.ID, false))
		}
		return page(50, people(fmt.Sprintf("p%d-", req.Page), 3)...), nil
	})

	res, err := h.pipeline(h.sheets).Run(context.Background(), payload)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusCancelled, res.Status)
	h.search.AssertNumberOfCalls(t, "SearchPeople", 2)
	assert.Equal(t, 6, h.leadCount(t, c.ID), "persisted leads are kept")
	assert.Empty(t, h.rows)
	h.sheets.AssertNotCalled(t, "Write", mock.Anything, mock.Anything, mock.Anything)

	job, err := h.store.GetJob(context.Background(), payload.JobID)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusCancelled, job.Status)
	assert.Contains(t, job.LastError, "inactive")

	attempts := h.attempts(t, payload.JobID)
	require.Len(t, attempts, 1)
	assert.Equal(t, model.JobStatusCancelled, attempts[0].Status)
	assert.Empty(t, attempts[0].Error)
}

func TestRun_MissingCampaignIsCancelled(t *testing.T) {
	h := newHarness(t)
	j, err := h.store.CreateJob(context.Background(), "ghost", "u1")
	require.NoError(t, err)

	res, err := h.pipeline(h.sheets).Run(context.Background(), model.JobPayload{CampaignID: "ghost", JobID: j.ID, UserID: "u1"})
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusCancelled, res.Status)

	job, err := h.store.GetJob(context.Background(), j.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusCancelled, job.Status)
	assert.False(t, h.mr.Exists("lock:campaign:ghost"))
	h.search.AssertNotCalled(t, "SearchPeople", mock.Anything, mock.Anything)
}

func TestRun_SpreadsheetFailureIsWarning(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			w.Write([]byte(`{"values":[]}`))
			return
		}
		if r.Method == http.MethodPut {
			w.Write([]byte(`{}`))
			return
		}
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`backend error`))
	}))
	defer srv.Close()

	h := newHarness(t)
	c := h.campaign(t, model.Campaign{MaxLeads: 5, PageSize: 5, SpreadsheetID: "sp1"})
	payload := h.job(t, c)
	h.serve(func(search.SearchRequest) (*search.SearchResponse, error) {
		return page(1, people("s", 5)...), nil
	})

	writer := sheetsync.New(sheets.NewClient("tok", sheets.WithBaseURL(srv.URL)),
		config.SheetsConfig{MaxAttempts: 5},
		sheetsync.WithSleep(func(context.Context, time.Duration) error { return nil }))

	res, err := h.pipeline(writer).Run(context.Background(), payload)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusSucceeded, res.Status)
	assert.Contains(t, res.Warning, "spreadsheet write failed")
	assert.Equal(t, 5, h.leadCount(t, c.ID))

	attempts := h.attempts(t, payload.JobID)
	require.Len(t, attempts, 1)
	assert.Equal(t, model.JobStatusSucceeded, attempts[0].Status)
	assert.Contains(t, attempts[0].Warning, "backend error")
	assert.Zero(t, attempts[0].SheetRowsWritten)
}

func TestRun_PaginationBoundedByCeiling(t *testing.T) {
	h := newHarness(t)
	c := h.campaign(t, model.Campaign{MaxLeads: 100, PageSize: 100})
	payload := h.job(t, c)
	h.serve(func(req search.SearchRequest) (*search.SearchResponse, error) {
		return page(1_000_000, person(fmt.Sprintf("page%d@acme.com", req.Page))), nil
	})

	res, err := h.pipeline(nil).Run(context.Background(), payload)
	require.NoError(t, err)
	h.search.AssertNumberOfCalls(t, "SearchPeople", 30)
	assert.Equal(t, 30, res.PagesFetched)
	assert.Equal(t, 30, res.LeadsWritten)
}

func TestRun_NoLeadsSucceedsWithZeroCounts(t *testing.T) {
	h := newHarness(t)
	c := h.campaign(t, model.Campaign{MaxLeads: 10, PageSize: 10, SpreadsheetID: "sp1"})
	payload := h.job(t, c)
	h.serve(func(search.SearchRequest) (*search.SearchResponse, error) {
		return page(0), nil
	})

	res, err := h.pipeline(h.sheets).Run(context.Background(), payload)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusSucceeded, res.Status)
	h.search.AssertNumberOfCalls(t, "SearchPeople", 3)
	assert.Zero(t, res.LeadsWritten)
	assert.Empty(t, h.rows)
	h.sheets.AssertNotCalled(t, "Write", mock.Anything, mock.Anything, mock.Anything)
}

func TestRun_LockHeldElsewhereSkips(t *testing.T) {
	h := newHarness(t)
	c := h.campaign(t, model.Campaign{MaxLeads: 10})
	payload := h.job(t, c)
	require.NoError(t, h.mr.Set("lock:campaign:c1", "someone-else"))

	res, err := h.pipeline(h.sheets).Run(context.Background(), payload)
	require.NoError(t, err)
	assert.True(t, res.Skipped)

	job, err := h.store.GetJob(context.Background(), payload.JobID)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusPending, job.Status)
	assert.Empty(t, h.attempts(t, payload.JobID))

	got, err := h.mr.Get("lock:campaign:c1")
	require.NoError(t, err)
	assert.Equal(t, "someone-else", got)
	h.search.AssertNotCalled(t, "SearchPeople", mock.Anything, mock.Anything)
}

func TestRun_PermissionErrorFailsJob(t *testing.T) {
	h := newHarness(t)
	c := h.campaign(t, model.Campaign{MaxLeads: 10})
	payload := h.job(t, c)
	h.serve(func(search.SearchRequest) (*search.SearchResponse, error) {
		return nil, &search.APIError{Op: "search people", Kind: search.KindPermission, StatusCode: 401, Body: "invalid api key"}
	})

	res, err := h.pipeline(h.sheets).Run(context.Background(), payload)
	require.Error(t, err)
	assert.True(t, search.IsPermission(err))
	assert.False(t, resilience.IsTransient(err))
	assert.True(t, resilience.IsPermanent(err))
	assert.Equal(t, model.JobStatusFailed, res.Status)
	h.search.AssertNumberOfCalls(t, "SearchPeople", 1)

	job, err := h.store.GetJob(context.Background(), payload.JobID)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusFailed, job.Status)
	assert.Contains(t, job.LastError, "invalid api key")

	attempts := h.attempts(t, payload.JobID)
	require.Len(t, attempts, 1)
	assert.Equal(t, model.JobStatusFailed, attempts[0].Status)
	assert.Contains(t, attempts[0].Error, "invalid api key")
	assert.False(t, h.mr.Exists("lock:campaign:c1"))
}

func TestRun_TransientPageErrorRetriesSamePage(t *testing.T) {
	h := newHarness(t)
	c := h.campaign(t, model.Campaign{MaxLeads: 3, PageSize: 3})
	payload := h.job(t, c)

	var failures atomic.Int32
	h.serve(func(req search.SearchRequest) (*search.SearchResponse, error) {
		if failures.Add(1) <= 2 {
			return nil, resilience.NewTransientError(errors.New("search: 503"), 503)
		}
		assert.Equal(t, 1, req.Page)
		return page(1, people("r", 3)...), nil
	})

	res, err := h.pipeline(nil).Run(context.Background(), payload)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusSucceeded, res.Status)
	h.search.AssertNumberOfCalls(t, "SearchPeople", 3)
	assert.Equal(t, 1, res.PagesFetched)
	assert.Equal(t, 3, res.LeadsWritten)
}

func TestRun_DomainFiltersApplied(t *testing.T) {
	h := newHarness(t)
	c := h.campaign(t, model.Campaign{MaxLeads: 10, PageSize: 10, ExcludeDomains: "gmail.com"})
	payload := h.job(t, c)

	blocked := person("joe@gmail.com")
	blocked.Organization = search.Organization{Name: "Personal", PrimaryDomain: "gmail.com"}
	h.serve(func(search.SearchRequest) (*search.SearchResponse, error) {
		return page(1, append(people("d", 2), blocked)...), nil
	})

	res, err := h.pipeline(nil).Run(context.Background(), payload)
	require.NoError(t, err)
	assert.Equal(t, 2, res.LeadsWritten)
	assert.Equal(t, 2, h.leadCount(t, c.ID))
}

func TestRun_SecondRunSkipsAlreadyStoredLeads(t *testing.T) {
	h := newHarness(t)
	c := h.campaign(t, model.Campaign{MaxLeads: 10, PageSize: 10})
	h.serve(func(search.SearchRequest) (*search.SearchResponse, error) {
		return page(1, people("k", 4)...), nil
	})
	p := h.pipeline(h.sheets)

	_, err := p.Run(context.Background(), h.job(t, c))
	require.NoError(t, err)

	payload := h.job(t, c)
	res, err := p.Run(context.Background(), payload)
	require.NoError(t, err)
	assert.Equal(t, 4, res.LeadsFound)
	assert.Zero(t, res.LeadsWritten)
	assert.Equal(t, 4, h.leadCount(t, c.ID))
	assert.Len(t, h.rows, 4, "only the first run reached the sheet")
	h.sheets.AssertNumberOfCalls(t, "Write", 1)
}
