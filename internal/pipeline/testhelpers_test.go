package pipeline

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/leadfetch/internal/config"
	"github.com/sells-group/leadfetch/internal/lock"
	"github.com/sells-group/leadfetch/internal/model"
	"github.com/sells-group/leadfetch/internal/ratelimit"
	"github.com/sells-group/leadfetch/internal/sheetsync"
	"github.com/sells-group/leadfetch/internal/store"
	"github.com/sells-group/leadfetch/pkg/search"
)

type harness struct {
	store  *store.SQLiteStore
	mr     *miniredis.Miniredis
	rdb    *redis.Client
	search *mockSearch
	sheets *mockSheets
	rows   []model.SheetRow
	cfg    *config.Config
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "pipeline.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() }) //nolint:errcheck

	bucket := config.BucketConfig{MaxTokens: 1000, RefillPerSec: 1000}
	h := &harness{
		store:  st,
		mr:     mr,
		rdb:    rdb,
		search: &mockSearch{},
		sheets: &mockSheets{},
		cfg: &config.Config{
			RateLimit: config.RateLimitConfig{Global: bucket, User: bucket, Campaign: bucket},
			Fetch:     config.FetchConfig{PageRetryAttempts: 3, PageRetryInitialMs: 1, PageRetryMaxSecs: 1},
		},
	}
	h.search.Test(t)
	h.sheets.Test(t)
	h.sheets.On("Write", mock.Anything, mock.AnythingOfType("*model.Campaign"), mock.AnythingOfType("[]model.SheetRow")).
		Return(sheetFunc(func(rows []model.SheetRow) (*sheetsync.Result, error) {
			h.rows = append(h.rows, rows...)
			return &sheetsync.Result{RowsWritten: len(rows), Batches: 1}, nil
		})).Maybe()
	return h
}

// serve answers every SearchPeople call with fn.
func (h *harness) serve(fn searchFunc) {
	h.search.On("SearchPeople", mock.Anything, mock.AnythingOfType("search.SearchRequest")).Return(fn)
}

func (h *harness) pipeline(sheets SheetWriter) *Pipeline {
	return New(h.cfg, Deps{
		Store:   h.store,
		Search:  h.search,
		Locks:   lock.NewFactory(h.rdb, time.Minute),
		Limiter: ratelimit.NewMultiLimiter(ratelimit.New(h.rdb)),
		Sheets:  sheets,
	})
}

func (h *harness) campaign(t *testing.T, c model.Campaign) *model.Campaign {
	t.Helper()
	if c.ID == "" {
		c.ID = "c1"
	}
	if c.UserID == "" {
		c.UserID = "u1"
	}
	if c.SearchMode == "" {
		c.SearchMode = model.SearchModeBalanced
	}
	c.Name = "campaign " + c.ID
	c.JobTitles = "CTO, VP Engineering"
	c.Locations = "Austin, TX"
	c.IsActive = true
	require.NoError(t, h.store.UpsertCampaign(context.Background(), &c))
	return &c
}

func (h *harness) job(t *testing.T, c *model.Campaign) model.JobPayload {
	t.Helper()
	j, err := h.store.CreateJob(context.Background(), c.ID, c.UserID)
	require.NoError(t, err)
	return model.JobPayload{CampaignID: c.ID, JobID: j.ID, UserID: c.UserID}
}

func people(prefix string, n int) []search.Person {
	out := make([]search.Person, n)
	for i := range out {
		out[i] = person(fmt.Sprintf("%s%d@acme.com", prefix, i))
	}
	return out
}

func person(email string) search.Person {
	return search.Person{
		ID:           "ext-" + email,
		Name:         "Person " + email,
		Title:        "CTO",
		Email:        email,
		EmailStatus:  "verified",
		Organization: search.Organization{Name: "Acme", PrimaryDomain: "acme.com"},
	}
}

func page(total int, ppl ...search.Person) *search.SearchResponse {
	return &search.SearchResponse{People: ppl, Pagination: search.Pagination{TotalPages: total}}
}
