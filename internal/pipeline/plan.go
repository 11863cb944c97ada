package pipeline

import (
	"github.com/sells-group/leadfetch/internal/config"
	"github.com/sells-group/leadfetch/internal/model"
)

const (
	defaultMaxLeads = 100
	defaultPageSize = 25
)

// modePlan bounds pagination for one search mode.
type modePlan struct {
	Mode           model.SearchMode
	PerPage        int
	MaxPages       int
	EmptyThreshold int
}

// searchModes returns the modes to try in order. Conserve campaigns fall
// back to balanced when conserve finds nothing.
func searchModes(c *model.Campaign) []model.SearchMode {
	if c.SearchMode == model.SearchModeConserve {
		return []model.SearchMode{model.SearchModeConserve, model.SearchModeBalanced}
	}
	return []model.SearchMode{model.SearchModeBalanced}
}

func campaignMaxLeads(c *model.Campaign) int {
	if c.MaxLeads <= 0 {
		return defaultMaxLeads
	}
	return c.MaxLeads
}

func planFor(mode model.SearchMode, c *model.Campaign, cfg config.FetchConfig) modePlan {
	cfg = withFetchDefaults(cfg)

	pageSize := c.PageSize
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	pagesNeeded := func(perPage int) int {
		return ceilDiv(campaignMaxLeads(c), perPage)
	}

	if mode == model.SearchModeConserve {
		perPage := clamp(pageSize, 1, cfg.ConservePageSizeCap)
		return modePlan{
			Mode:           mode,
			PerPage:        perPage,
			MaxPages:       clamp(2*pagesNeeded(perPage), cfg.ConserveMinPages, cfg.ConserveMaxPages),
			EmptyThreshold: cfg.ConserveEmptyThreshold,
		}
	}

	perPage := clamp(pageSize, 1, cfg.MaxPageSize)
	return modePlan{
		Mode:           model.SearchModeBalanced,
		PerPage:        perPage,
		MaxPages:       clamp(3*pagesNeeded(perPage), cfg.BalancedMinPages, cfg.BalancedMaxPages),
		EmptyThreshold: cfg.BalancedEmptyThreshold,
	}
}

func withFetchDefaults(cfg config.FetchConfig) config.FetchConfig {
	def := func(v *int, d int) {
		if *v <= 0 {
			*v = d
		}
	}
	def(&cfg.MaxPageSize, 100)
	def(&cfg.ConservePageSizeCap, 25)
	def(&cfg.ConserveMinPages, 10)
	def(&cfg.ConserveMaxPages, 20)
	def(&cfg.ConserveEmptyThreshold, 2)
	def(&cfg.BalancedMinPages, 30)
	def(&cfg.BalancedMaxPages, 50)
	def(&cfg.BalancedEmptyThreshold, 3)
	def(&cfg.PageRetryAttempts, 5)
	def(&cfg.PageRetryInitialMs, 1000)
	def(&cfg.PageRetryMaxSecs, 30)
	def(&cfg.LockTTLSecs, 300)
	return cfg
}

func ceilDiv(a, b int) int {
	return (a + b - 1) / b
}

func clamp(v, lo, hi int) int {
	return max(lo, min(v, hi))
}
