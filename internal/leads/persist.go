package leads

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/leadfetch/internal/model"
)

// DefaultChunkSize bounds the rows sent in one insert.
const DefaultChunkSize = 500

// LeadStore is the subset of store.Store the persister uses.
type LeadStore interface {
	ExistingLeadKeys(ctx context.Context, scope model.DedupScope, scopeID string, keys []string) (map[string]bool, error)
	InsertLeads(ctx context.Context, leads []model.Lead) (int64, error)
	LeadsByKeys(ctx context.Context, campaignID, attemptID string, keys []string) ([]model.Lead, error)
}

// Persister writes prepared leads exactly once per dedup scope.
type Persister struct {
	store     LeadStore
	chunkSize int
}

// NewPersister creates a Persister. chunkSize <= 0 uses DefaultChunkSize.
func NewPersister(s LeadStore, chunkSize int) *Persister {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	return &Persister{store: s, chunkSize: chunkSize}
}

// Written holds the leads this attempt actually inserted and their sheet
// rows, with persisted IDs filled in.
type Written struct {
	Leads      []model.Lead
	Rows       []model.SheetRow
	Duplicates int
}

// Persist collapses in-batch duplicates, drops leads already stored in the
// scope, inserts the rest with skip-duplicate semantics and re-reads what
// this attempt wrote. Leads lost to a concurrent writer are counted as
// duplicates and never reach the spreadsheet.
func (p *Persister) Persist(ctx context.Context, t Target, batch *Batch) (*Written, error) {
	out := &Written{}
	if batch == nil || batch.Len() == 0 {
		return out, nil
	}
	c := t.Campaign
	scope, scopeID := c.DedupScope(), c.DedupScopeID()

	// 1. Collapse by lookup key, keeping the first occurrence.
	seen := make(map[string]bool, batch.Len())
	candidates := make([]model.Lead, 0, batch.Len())
	rowsByKey := make(map[string]model.SheetRow, batch.Len())
	for i, l := range batch.Leads {
		k := l.LookupKey()
		if seen[k] {
			out.Duplicates++
			continue
		}
		seen[k] = true
		candidates = append(candidates, l)
		rowsByKey[k] = batch.Rows[i]
	}

	// 2. Drop keys already present in scope.
	keys := make([]string, len(candidates))
	for i, l := range candidates {
		keys[i] = l.DedupKey
	}
	existing, err := p.store.ExistingLeadKeys(ctx, scope, scopeID, keys)
	if err != nil {
		return nil, eris.Wrap(err, "leads: existing keys")
	}
	fresh := candidates[:0]
	for _, l := range candidates {
		if existing[l.DedupKey] {
			out.Duplicates++
			continue
		}
		fresh = append(fresh, l)
	}
	if len(fresh) == 0 {
		return out, nil
	}

	// 3. Insert in chunks.
	var inserted int64
	for start := 0; start < len(fresh); start += p.chunkSize {
		end := min(start+p.chunkSize, len(fresh))
		n, err := p.store.InsertLeads(ctx, fresh[start:end])
		if err != nil {
			return nil, eris.Wrapf(err, "leads: insert chunk %d-%d", start, end)
		}
		inserted += n
	}

	// 4. Re-read what this attempt owns.
	freshKeys := make([]string, len(fresh))
	for i, l := range fresh {
		freshKeys[i] = l.DedupKey
	}
	stored, err := p.store.LeadsByKeys(ctx, c.ID, t.AttemptID, freshKeys)
	if err != nil {
		return nil, eris.Wrap(err, "leads: re-read inserted")
	}

	byKey := make(map[string]model.Lead, len(stored))
	for _, l := range stored {
		byKey[l.DedupKey] = l
	}
	for _, l := range fresh {
		got, ok := byKey[l.DedupKey]
		if !ok {
			out.Duplicates++
			continue
		}
		out.Leads = append(out.Leads, got)
		out.Rows = append(out.Rows, rowsByKey[l.LookupKey()].WithID(got.ID))
	}

	if int64(len(out.Leads)) != inserted {
		zap.L().Warn("leads: insert count differs from re-read",
			zap.String("campaign_id", c.ID),
			zap.Int64("inserted", inserted),
			zap.Int("confirmed", len(out.Leads)),
		)
	}
	return out, nil
}
