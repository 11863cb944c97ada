package model

import "time"

// DedupScope is the boundary within which a lead must be unique.
type DedupScope string

const (
	DedupScopeCampaign DedupScope = "campaign"
	DedupScopeUser     DedupScope = "user"
)

// Lead is a persisted contact record.
type Lead struct {
	ID           string     `json:"id"`
	CampaignID   string     `json:"campaign_id"`
	UserID       string     `json:"user_id"`
	JobID        string     `json:"job_id"`
	AttemptID    string     `json:"attempt_id"`
	ExternalID   string     `json:"external_id,omitempty"`
	Email        string     `json:"email,omitempty"`
	EmailStatus  string     `json:"email_status,omitempty"`
	IsValid      bool       `json:"is_valid"`
	IsSuppressed bool       `json:"is_suppressed"`
	FirstName    string     `json:"first_name,omitempty"`
	LastName     string     `json:"last_name,omitempty"`
	FullName     string     `json:"full_name,omitempty"`
	Title        string     `json:"title,omitempty"`
	Company      string     `json:"company,omitempty"`
	Domain       string     `json:"domain,omitempty"`
	WebsiteURL   string     `json:"website_url,omitempty"`
	LinkedInURL  string     `json:"linkedin_url,omitempty"`
	City         string     `json:"city,omitempty"`
	State        string     `json:"state,omitempty"`
	Country      string     `json:"country,omitempty"`
	Summary      string     `json:"summary,omitempty"`
	DedupScope   DedupScope `json:"dedup_scope"`
	DedupKey     string     `json:"dedup_key"`
	CreatedAt    time.Time  `json:"created_at"`
}

// ScopeID returns the campaign or user ID the lead's dedup scope refers to.
func (l *Lead) ScopeID() string {
	if l.DedupScope == DedupScopeCampaign {
		return l.CampaignID
	}
	return l.UserID
}

// LookupKey identifies a lead within its dedup scope. Both projections of
// a prepared lead carry the same key.
func (l *Lead) LookupKey() string {
	return LookupKey(l.DedupScope, l.ScopeID(), l.DedupKey)
}

// LookupKey joins a dedup scope, its owning ID, and a dedup key.
func LookupKey(scope DedupScope, scopeID, dedupKey string) string {
	return string(scope) + ":" + scopeID + ":" + dedupKey
}

// SheetHeader is the fixed column layout of the campaign spreadsheet.
var SheetHeader = []string{
	"Full Name", "First Name", "Last Name", "Title", "Company", "Domain",
	"Email", "Email Status", "LinkedIn", "Website", "City", "State",
	"Country", "Summary", "Lead ID",
}

// SheetRow is the spreadsheet projection of a lead.
type SheetRow struct {
	LookupKey string   `json:"lookup_key"`
	Values    []string `json:"values"`
}

// NewSheetRow projects a lead onto SheetHeader order.
func NewSheetRow(l *Lead) SheetRow {
	return SheetRow{
		LookupKey: l.LookupKey(),
		Values: []string{
			l.FullName, l.FirstName, l.LastName, l.Title, l.Company, l.Domain,
			l.Email, l.EmailStatus, l.LinkedInURL, l.WebsiteURL, l.City, l.State,
			l.Country, l.Summary, l.ID,
		},
	}
}

// WithID returns a copy of the row with the lead ID column filled in.
func (r SheetRow) WithID(id string) SheetRow {
	vals := make([]string, len(r.Values))
	copy(vals, r.Values)
	if n := len(vals); n > 0 {
		vals[n-1] = id
	}
	return SheetRow{LookupKey: r.LookupKey, Values: vals}
}
