// Package campaignfile loads campaign definitions from YAML or XLSX files.
package campaignfile

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/leadfetch/internal/model"
)

// Entry is one campaign as written in a file. List fields accept either a
// YAML sequence or a comma-separated string.
type Entry struct {
	ID             string   `yaml:"id"`
	UserID         string   `yaml:"user_id"`
	Name           string   `yaml:"name"`
	JobTitles      listFlex `yaml:"job_titles"`
	Locations      listFlex `yaml:"locations"`
	Keywords       string   `yaml:"keywords"`
	IncludeDomains listFlex `yaml:"include_domains"`
	ExcludeDomains listFlex `yaml:"exclude_domains"`
	MaxLeads       int      `yaml:"max_leads"`
	PageSize       int      `yaml:"page_size"`
	SearchMode     string   `yaml:"search_mode"`
	Active         *bool    `yaml:"active"`
	SpreadsheetID  string   `yaml:"spreadsheet_id"`
	SheetName      string   `yaml:"sheet_name"`
}

type listFlex []string

func (l *listFlex) UnmarshalYAML(n *yaml.Node) error {
	if n.Kind == yaml.ScalarNode {
		*l = model.SplitList(n.Value)
		return nil
	}
	var items []string
	if err := n.Decode(&items); err != nil {
		return err
	}
	*l = items
	return nil
}

// Campaign converts the entry, applying defaults: balanced mode and
// active unless stated otherwise.
func (e Entry) Campaign() (model.Campaign, error) {
	c := model.Campaign{
		ID:             strings.TrimSpace(e.ID),
		UserID:         strings.TrimSpace(e.UserID),
		Name:           strings.TrimSpace(e.Name),
		JobTitles:      strings.Join(e.JobTitles, ", "),
		Locations:      strings.Join(e.Locations, ", "),
		Keywords:       strings.TrimSpace(e.Keywords),
		IncludeDomains: strings.Join(e.IncludeDomains, ", "),
		ExcludeDomains: strings.Join(e.ExcludeDomains, ", "),
		MaxLeads:       e.MaxLeads,
		PageSize:       e.PageSize,
		SearchMode:     model.SearchMode(strings.ToLower(strings.TrimSpace(e.SearchMode))),
		IsActive:       e.Active == nil || *e.Active,
		SpreadsheetID:  strings.TrimSpace(e.SpreadsheetID),
		SheetName:      strings.TrimSpace(e.SheetName),
	}
	if c.SearchMode == "" {
		c.SearchMode = model.SearchModeBalanced
	}

	switch {
	case c.UserID == "":
		return c, eris.Errorf("campaignfile: campaign %q: user_id is required", c.Name)
	case c.Name == "":
		return c, eris.New("campaignfile: campaign name is required")
	case len(e.JobTitles) == 0:
		return c, eris.Errorf("campaignfile: campaign %q: job_titles is required", c.Name)
	case !c.SearchMode.Valid():
		return c, eris.Errorf("campaignfile: campaign %q: unknown search_mode %q", c.Name, c.SearchMode)
	case c.MaxLeads < 0 || c.PageSize < 0:
		return c, eris.Errorf("campaignfile: campaign %q: max_leads and page_size must be >= 0", c.Name)
	}
	return c, nil
}

// Load reads campaigns from a .yaml/.yml or .xlsx file.
func Load(path string) ([]model.Campaign, error) {
	var entries []Entry
	var err error
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		entries, err = readYAML(path)
	case ".xlsx":
		entries, err = readXLSX(path)
	default:
		return nil, eris.Errorf("campaignfile: unsupported file type %q", filepath.Ext(path))
	}
	if err != nil {
		return nil, err
	}

	out := make([]model.Campaign, 0, len(entries))
	for _, e := range entries {
		c, err := e.Campaign()
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

func readYAML(path string) ([]Entry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "campaignfile: read %s", path)
	}
	var doc struct {
		Campaigns []Entry `yaml:"campaigns"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, eris.Wrapf(err, "campaignfile: parse %s", path)
	}
	return doc.Campaigns, nil
}

// entryFromRecord maps a header-keyed row onto an Entry.
func entryFromRecord(rec map[string]string) (Entry, error) {
	e := Entry{
		ID:             rec["id"],
		UserID:         rec["user_id"],
		Name:           rec["name"],
		JobTitles:      model.SplitList(rec["job_titles"]),
		Locations:      model.SplitList(rec["locations"]),
		Keywords:       rec["keywords"],
		IncludeDomains: model.SplitList(rec["include_domains"]),
		ExcludeDomains: model.SplitList(rec["exclude_domains"]),
		SearchMode:     rec["search_mode"],
		SpreadsheetID:  rec["spreadsheet_id"],
		SheetName:      rec["sheet_name"],
	}
	var err error
	if e.MaxLeads, err = atoiBlank(rec["max_leads"]); err != nil {
		return e, eris.Wrapf(err, "campaignfile: max_leads of %q", e.Name)
	}
	if e.PageSize, err = atoiBlank(rec["page_size"]); err != nil {
		return e, eris.Wrapf(err, "campaignfile: page_size of %q", e.Name)
	}
	if v := strings.TrimSpace(rec["active"]); v != "" {
		b, err := strconv.ParseBool(strings.ToLower(v))
		if err != nil {
			return e, eris.Wrapf(err, "campaignfile: active of %q", e.Name)
		}
		e.Active = &b
	}
	return e, nil
}

func atoiBlank(s string) (int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	return strconv.Atoi(s)
}
