package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/leadfetch/internal/config"
	"github.com/sells-group/leadfetch/internal/model"
)

func TestSearchModes(t *testing.T) {
	assert.Equal(t, []model.SearchMode{model.SearchModeConserve, model.SearchModeBalanced},
		searchModes(&model.Campaign{SearchMode: model.SearchModeConserve}))
	assert.Equal(t, []model.SearchMode{model.SearchModeBalanced},
		searchModes(&model.Campaign{SearchMode: model.SearchModeBalanced}))
	assert.Equal(t, []model.SearchMode{model.SearchModeBalanced}, searchModes(&model.Campaign{}))
}

func TestPlanFor(t *testing.T) {
	tests := []struct {
		name     string
		mode     model.SearchMode
		maxLeads int
		pageSize int
		want     modePlan
	}{
		{
			name: "conserve caps page size", mode: model.SearchModeConserve, maxLeads: 100, pageSize: 50,
			want: modePlan{Mode: model.SearchModeConserve, PerPage: 25, MaxPages: 10, EmptyThreshold: 2},
		},
		{
			name: "conserve max pages ceiling", mode: model.SearchModeConserve, maxLeads: 1000, pageSize: 10,
			want: modePlan{Mode: model.SearchModeConserve, PerPage: 10, MaxPages: 20, EmptyThreshold: 2},
		},
		{
			name: "balanced floor", mode: model.SearchModeBalanced, maxLeads: 10, pageSize: 25,
			want: modePlan{Mode: model.SearchModeBalanced, PerPage: 25, MaxPages: 30, EmptyThreshold: 3},
		},
		{
			name: "balanced ceiling", mode: model.SearchModeBalanced, maxLeads: 5000, pageSize: 200,
			want: modePlan{Mode: model.SearchModeBalanced, PerPage: 100, MaxPages: 50, EmptyThreshold: 3},
		},
		{
			name: "defaults", mode: model.SearchModeBalanced,
			want: modePlan{Mode: model.SearchModeBalanced, PerPage: 25, MaxPages: 30, EmptyThreshold: 3},
		},
		{
			name: "balanced in range", mode: model.SearchModeBalanced, maxLeads: 400, pageSize: 10,
			want: modePlan{Mode: model.SearchModeBalanced, PerPage: 10, MaxPages: 50, EmptyThreshold: 3},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &model.Campaign{MaxLeads: tt.maxLeads, PageSize: tt.pageSize}
			assert.Equal(t, tt.want, planFor(tt.mode, c, config.FetchConfig{}))
		})
	}
}

func TestPlanFor_ConfigOverrides(t *testing.T) {
	cfg := config.FetchConfig{MaxPageSize: 40, BalancedMinPages: 2, BalancedMaxPages: 4, BalancedEmptyThreshold: 1}
	got := planFor(model.SearchModeBalanced, &model.Campaign{MaxLeads: 200, PageSize: 100}, cfg)
	assert.Equal(t, modePlan{Mode: model.SearchModeBalanced, PerPage: 40, MaxPages: 4, EmptyThreshold: 1}, got)
}

func TestReachedLast(t *testing.T) {
	assert.False(t, reachedLast(5, 0))
	assert.False(t, reachedLast(2, 3))
	assert.True(t, reachedLast(3, 3))
	assert.True(t, reachedLast(4, 3))
}

func TestSeenKey(t *testing.T) {
	p := person("Ada@Acme.com")
	assert.Equal(t, "ada@acme.com", seenKey(p))

	p.Email = "email_not_unlocked@domain.com"
	assert.Equal(t, "ext:ext-Ada@Acme.com", seenKey(p))

	p.ID = ""
	assert.Empty(t, seenKey(p))
}
