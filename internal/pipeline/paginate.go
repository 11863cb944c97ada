package pipeline

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/leadfetch/internal/leads"
	"github.com/sells-group/leadfetch/internal/lock"
	"github.com/sells-group/leadfetch/internal/model"
	"github.com/sells-group/leadfetch/internal/ratelimit"
	"github.com/sells-group/leadfetch/internal/resilience"
	"github.com/sells-group/leadfetch/pkg/search"
)

// paginate fetches pages for one mode until capacity, the last reported
// page, the empty-page threshold or the page ceiling. It returns the number
// of leads accepted in this mode.
func (p *Pipeline) paginate(ctx context.Context, r *run, c *model.Campaign, plan modePlan, lk *lock.Lock) (int, error) {
	maxLeads := campaignMaxLeads(c)
	filter := leads.NewDomainFilter(model.SplitList(c.IncludeDomains), model.SplitList(c.ExcludeDomains))
	req := search.SearchRequest{
		Titles:    model.SplitList(c.JobTitles),
		Locations: model.SplitList(c.Locations),
		Keywords:  strings.TrimSpace(c.Keywords),
		PerPage:   plan.PerPage,
	}
	log := r.log.With(zap.String("mode", string(plan.Mode)))

	accepted := 0
	emptyStreak := 0
	for page := 1; page <= plan.MaxPages && accepted < maxLeads; page++ {
		live, err := p.liveCampaign(ctx, c.ID)
		if err != nil {
			return accepted, err
		}

		if err := p.limiter.Wait(ctx, ratelimit.JobScopes(p.rate, live.UserID, live.ID)...); err != nil {
			return accepted, eris.Wrapf(err, "pipeline: rate limit page %d", page)
		}

		req.Page = page
		resp, err := resilience.DoVal(ctx, p.pageRetry, func(ctx context.Context) (*search.SearchResponse, error) {
			return p.search.SearchPeople(ctx, req)
		})
		if err != nil {
			if search.IsPermission(err) {
				err = resilience.Permanent(err)
			}
			return accepted, eris.Wrapf(err, "pipeline: search page %d", page)
		}
		r.attempt.PagesProcessed++
		r.result.PagesFetched++
		lastPage := resp.Pagination.TotalPages
		r.progress.TotalPages = max(r.progress.TotalPages, lastPage)

		if len(resp.People) == 0 {
			emptyStreak++
			log.Debug("pipeline: empty page", zap.Int("page", page), zap.Int("streak", emptyStreak))
			p.checkpoint(ctx, r)
			if emptyStreak >= plan.EmptyThreshold || reachedLast(page, lastPage) {
				break
			}
			continue
		}
		emptyStreak = 0

		candidates := r.accept(resp.People, filter, maxLeads-accepted)
		accepted += len(candidates)
		r.progress.LeadsProcessed += len(candidates)

		if len(candidates) > 0 {
			if err := p.prepareAndPersist(ctx, r, c, candidates); err != nil {
				return accepted, err
			}
		}
		p.checkpoint(ctx, r)
		p.extendLock(ctx, r, lk)

		log.Debug("pipeline: page done",
			zap.Int("page", page),
			zap.Int("people", len(resp.People)),
			zap.Int("accepted", len(candidates)),
			zap.Int("mode_total", accepted),
		)
		if reachedLast(page, lastPage) {
			break
		}
	}
	return accepted, nil
}

// accept applies domain filters and the run's seen set, keeping at most
// capacity people.
func (r *run) accept(people []search.Person, filter leads.DomainFilter, capacity int) []search.Person {
	out := make([]search.Person, 0, min(len(people), capacity))
	for _, person := range people {
		if len(out) >= capacity {
			break
		}
		if !filter.Allow(leads.PersonDomain(person)) {
			continue
		}
		key := seenKey(person)
		if key == "" || r.seen[key] {
			continue
		}
		r.seen[key] = true
		out = append(out, person)
	}
	return out
}

// seenKey identifies a search hit before enrichment: its email, or its
// external ID when the email is still locked.
func seenKey(person search.Person) string {
	email := person.Email
	if search.IsLockedEmail(email, person.EmailStatus) {
		email = ""
	}
	return leads.DedupKey(email, person.ID)
}

func (p *Pipeline) prepareAndPersist(ctx context.Context, r *run, c *model.Campaign, people []search.Person) error {
	target := leads.Target{Campaign: c, JobID: r.payload.JobID, AttemptID: r.attempt.ID}

	r.log.Debug("pipeline: phase", zap.String("phase", "preparing"), zap.Int("people", len(people)))
	batch, err := p.preparer.Prepare(ctx, target, people)
	if err != nil {
		return eris.Wrap(err, "pipeline: prepare leads")
	}
	written, err := p.persister.Persist(ctx, target, batch)
	if err != nil {
		return eris.Wrap(err, "pipeline: persist leads")
	}

	r.progress.LeadsWritten += len(written.Leads)
	r.rows = append(r.rows, written.Rows...)
	return nil
}

// checkpoint saves job and attempt counters. Failures are logged only.
func (p *Pipeline) checkpoint(ctx context.Context, r *run) {
	if err := p.store.UpdateJobProgress(ctx, r.payload.JobID, r.progress); err != nil {
		r.log.Warn("pipeline: checkpoint job progress", zap.Error(err))
	}
	r.attempt.LeadsFound = r.progress.LeadsProcessed
	r.attempt.LeadsWritten = r.progress.LeadsWritten
	if err := p.store.UpdateAttempt(ctx, r.attempt); err != nil {
		r.log.Warn("pipeline: checkpoint attempt", zap.Error(err))
	}
}

func (p *Pipeline) extendLock(ctx context.Context, r *run, lk *lock.Lock) {
	ok, err := lk.Extend(ctx, 0)
	if err != nil || !ok {
		r.log.Warn("pipeline: extend lock", zap.Bool("held", ok), zap.Error(err))
	}
}

// reachedLast reports whether page is the last page the API reported. A
// zero total means unknown.
func reachedLast(page, lastPage int) bool {
	return lastPage > 0 && page >= lastPage
}
