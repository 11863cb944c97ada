package model

import (
	"strings"
	"time"
)

// SearchMode selects how aggressively a campaign spends search credits.
type SearchMode string

const (
	SearchModeBalanced SearchMode = "balanced"
	SearchModeConserve SearchMode = "conserve"
)

// Valid reports whether m is a known search mode.
func (m SearchMode) Valid() bool {
	return m == SearchModeBalanced || m == SearchModeConserve
}

// Campaign is a user-defined lead search. The worker only reads it.
type Campaign struct {
	ID             string     `json:"id" yaml:"id"`
	UserID         string     `json:"user_id" yaml:"user_id"`
	Name           string     `json:"name" yaml:"name"`
	JobTitles      string     `json:"job_titles" yaml:"job_titles"` // comma-separated
	Locations      string     `json:"locations" yaml:"locations"`   // comma-separated
	Keywords       string     `json:"keywords,omitempty" yaml:"keywords"`
	IncludeDomains string     `json:"include_domains,omitempty" yaml:"include_domains"`
	ExcludeDomains string     `json:"exclude_domains,omitempty" yaml:"exclude_domains"`
	MaxLeads       int        `json:"max_leads" yaml:"max_leads"`
	PageSize       int        `json:"page_size" yaml:"page_size"`
	SearchMode     SearchMode `json:"search_mode" yaml:"search_mode"`
	IsActive       bool       `json:"is_active" yaml:"is_active"`
	SpreadsheetID  string     `json:"spreadsheet_id,omitempty" yaml:"spreadsheet_id"`
	SheetName      string     `json:"sheet_name,omitempty" yaml:"sheet_name"`
	CreatedAt      time.Time  `json:"created_at" yaml:"-"`
	UpdatedAt      time.Time  `json:"updated_at" yaml:"-"`
}

// DedupScope returns the scope within which this campaign's leads must be
// unique. Conserve campaigns dedupe per campaign; balanced campaigns forbid
// duplicates across all of the owner's campaigns.
func (c *Campaign) DedupScope() DedupScope {
	if c.SearchMode == SearchModeConserve {
		return DedupScopeCampaign
	}
	return DedupScopeUser
}

// DedupScopeID returns the campaign or user ID matching DedupScope.
func (c *Campaign) DedupScopeID() string {
	if c.DedupScope() == DedupScopeCampaign {
		return c.ID
	}
	return c.UserID
}

// HasSpreadsheet reports whether the campaign has a spreadsheet target.
func (c *Campaign) HasSpreadsheet() bool {
	return c.SpreadsheetID != ""
}

// SplitList splits a comma-separated list, trimming blanks and dropping
// empty entries.
func SplitList(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
