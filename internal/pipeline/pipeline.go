// Package pipeline drives the per-category harvest loop: seed sweeps,
// candidate processing, quota tracking, and persistence.
package pipeline

import (
	"context"
	"errors"
	"log"
	"math/rand/v2"
	"time"

	"newsharvest/internal/article"
	"newsharvest/internal/config"
	"newsharvest/internal/discover"
	"newsharvest/internal/extract"
	"newsharvest/internal/score"
	"newsharvest/internal/store"
	"newsharvest/internal/textutil"
	"newsharvest/internal/validate"
)

// Fetcher fetches a URL's body. Terminal failures mean "skip this URL".
type Fetcher interface {
	Get(ctx context.Context, url string) ([]byte, error)
}

// Validator escalates a draft to the external cleaning service. A nil
// Validator disables escalation.
type Validator interface {
	Validate(ctx context.Context, title, content string) (*validate.Verdict, error)
}

// CategoryResult holds counters for one category's harvest.
type CategoryResult struct {
	Category   string
	Sweeps     int
	Extracted  int
	Persisted  int
	Duplicates int
	Rejected   int
	Failed     int
	QuotaMet   bool
	// Reasons counts rejection and skip reasons.
	Reasons map[string]int
}

// Result holds the outcome of a full pipeline pass.
type Result struct {
	StartedAt  time.Time
	FinishedAt time.Time
	Categories []CategoryResult
}

// NewlyPersisted returns the total count of newly persisted articles.
func (r *Result) NewlyPersisted() int {
	total := 0
	for _, c := range r.Categories {
		total += c.Persisted
	}
	return total
}

// Pipeline orchestrates a harvest pass. All collaborators are passed in;
// nothing is ambient process state.
type Pipeline struct {
	cfg       *config.Config
	store     *store.DB
	fetcher   Fetcher
	validator Validator

	// sleep and delay are injectable for tests.
	sleep func(context.Context, time.Duration)
	delay func() time.Duration
}

// New creates a pipeline over the given collaborators. validator may be nil.
func New(cfg *config.Config, st *store.DB, fetcher Fetcher, validator Validator) *Pipeline {
	return &Pipeline{
		cfg:       cfg,
		store:     st,
		fetcher:   fetcher,
		validator: validator,
		sleep:     sleepCtx,
		delay:     politenessDelay,
	}
}

// politenessDelay returns a randomized 1-3s pause between article fetches.
func politenessDelay() time.Duration {
	return time.Second + time.Duration(rand.N(2000))*time.Millisecond
}

func sleepCtx(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

// Run executes one full pass over every configured category. No per-category
// failure is fatal; the pass always proceeds to the next category. The only
// early exit is context cancellation.
func (p *Pipeline) Run(ctx context.Context) (*Result, error) {
	result := &Result{StartedAt: time.Now()}

	// Budgets start fresh every run; only the store knows what is already
	// ingested.
	existing, err := p.store.CountByCategory()
	if err != nil {
		return nil, err
	}

	for _, cat := range article.Categories {
		seeds := p.cfg.Seeds[cat]
		if len(seeds) == 0 {
			continue
		}
		if ctx.Err() != nil {
			result.FinishedAt = time.Now()
			return result, ctx.Err()
		}

		log.Printf("Harvesting category %q (%d seeds, %d already stored)", cat, len(seeds), existing[cat])
		cr := p.runCategory(ctx, cat, seeds)
		result.Categories = append(result.Categories, cr)

		if cr.QuotaMet {
			log.Printf("Category %q done: %d new articles in %d sweep(s)", cat, cr.Persisted, cr.Sweeps)
		} else {
			log.Printf("WARNING: category %q quota unmet: %d/%d new articles after %d sweep(s)",
				cat, cr.Persisted, p.cfg.Budget.TargetPerCategory, cr.Sweeps)
		}
	}

	result.FinishedAt = time.Now()
	return result, ctx.Err()
}

// runCategory sweeps a category's seeds until the persisted quota is met or
// the sweep budget runs out.
func (p *Pipeline) runCategory(ctx context.Context, cat string, seeds []string) CategoryResult {
	res := CategoryResult{Category: cat, Reasons: make(map[string]int)}
	target := p.cfg.Budget.TargetPerCategory
	maxSweeps := p.cfg.Budget.MaxSweeps
	if maxSweeps < 1 {
		maxSweeps = 1
	}

	for sweep := 1; sweep <= maxSweeps && res.Persisted < target; sweep++ {
		if ctx.Err() != nil {
			return res
		}
		res.Sweeps = sweep

		pool := p.sweepSeeds(ctx, cat, seeds, &res)
		p.persistPool(pool, target, &res)
	}

	res.QuotaMet = res.Persisted >= target
	return res
}

// sweepSeeds walks every seed once and returns the accepted candidate pool.
// Already-seen URLs are not filtered here; the store rejects them at
// persistence time.
func (p *Pipeline) sweepSeeds(ctx context.Context, cat string, seeds []string, res *CategoryResult) []*article.Draft {
	var pool []*article.Draft

	for _, seed := range seeds {
		if ctx.Err() != nil {
			return pool
		}
		if res.Persisted+len(pool) >= p.cfg.Budget.TargetPerCategory {
			break
		}
		if res.Extracted >= p.cfg.Budget.MaxPerCategory {
			break
		}

		body, err := p.fetcher.Get(ctx, seed)
		if err != nil {
			log.Printf("Seed fetch failed, skipping %s: %v", seed, err)
			res.Failed++
			continue
		}

		links, err := discover.Links(body, seed)
		if err != nil {
			log.Printf("Link discovery failed, skipping %s: %v", seed, err)
			res.Failed++
			continue
		}
		log.Printf("Discovered %d candidate links on %s", len(links), seed)

		accepted := 0
		for _, link := range links {
			if ctx.Err() != nil {
				return pool
			}
			if accepted >= p.cfg.Budget.MaxPerPage {
				break
			}
			if res.Persisted+len(pool) >= p.cfg.Budget.TargetPerCategory {
				break
			}
			if res.Extracted >= p.cfg.Budget.MaxPerCategory {
				break
			}

			draft := p.processCandidate(ctx, cat, link, res)
			if draft == nil {
				continue
			}
			pool = append(pool, draft)
			accepted++

			// Politeness pause between successive article fetches.
			p.sleep(ctx, p.delay())
		}
	}

	return pool
}

// processCandidate runs one candidate URL through fetch, extract, normalize,
// score, and optional validation. It returns an accepted draft or nil, and
// records the outcome in res. Nothing here aborts the sweep.
func (p *Pipeline) processCandidate(ctx context.Context, cat, link string, res *CategoryResult) *article.Draft {
	body, err := p.fetcher.Get(ctx, link)
	if err != nil {
		res.Failed++
		res.Reasons["fetch failed"]++
		return nil
	}

	draft, err := extract.Extract(body, link)
	if err != nil {
		if errors.Is(err, extract.ErrNoTitle) {
			res.Rejected++
			res.Reasons["no title"]++
		} else {
			log.Printf("Extraction failed for %s: %v", link, err)
			res.Failed++
			res.Reasons["parse failed"]++
		}
		return nil
	}
	res.Extracted++
	draft.Category = cat

	if textutil.WordCount(draft.Title) <= 1 {
		p.reject(draft, "short title", res)
		return nil
	}

	draft.Content = textutil.StripBoilerplate(draft.Content, p.cfg.BoilerplatePatterns)
	if draft.Content == "" {
		p.reject(draft, "no content", res)
		return nil
	}
	draft.Content = textutil.Truncate(draft.Content, textutil.MaxSentences)

	draft.RelevanceScore = score.Relevance(draft.Title, draft.Content)
	if draft.RelevanceScore < score.Threshold {
		p.reject(draft, score.LowRelevanceReason, res)
		return nil
	}

	english, reliable := score.DetectEnglish(draft.Content)
	if reliable && !english {
		p.reject(draft, "not english", res)
		return nil
	}
	if !reliable && p.validator != nil {
		// AI-enhanced runs treat ambiguous language detection conservatively.
		p.reject(draft, "language undetermined", res)
		return nil
	}

	if p.validator != nil {
		verdict, err := p.validator.Validate(ctx, draft.Title, draft.Content)
		if err != nil {
			log.Printf("Validation failed for %s: %v", link, err)
			draft.Validity = article.ValidityError
			res.Failed++
			res.Reasons["validation failed"]++
			return nil
		}
		if !verdict.IsValid {
			reason := verdict.Reason
			if reason == "" {
				reason = "rejected by validator"
			}
			p.reject(draft, reason, res)
			return nil
		}
		if verdict.Title != "" {
			draft.Title = verdict.Title
		}
		if verdict.Content != "" {
			draft.Content = verdict.Content
		}
		draft.Keywords = verdict.Keywords
	}

	if draft.MediaURL == "" {
		p.reject(draft, "no media", res)
		return nil
	}

	draft.Accept()
	return draft
}

func (p *Pipeline) reject(d *article.Draft, reason string, res *CategoryResult) {
	d.Reject(reason)
	res.Rejected++
	res.Reasons[reason]++
	log.Printf("Skipping article (%s): %s", reason, d.Title)
}

// persistPool upserts accepted drafts until the quota is reached. A
// duplicate source URL is a no-op, not an error, and does not count toward
// the quota.
func (p *Pipeline) persistPool(pool []*article.Draft, target int, res *CategoryResult) {
	for _, d := range pool {
		if res.Persisted >= target {
			break
		}
		_, created, err := p.store.Upsert(d)
		if err != nil {
			log.Printf("Persist failed for %s: %v", d.SourceURL, err)
			res.Failed++
			continue
		}
		if created {
			res.Persisted++
		} else {
			res.Duplicates++
		}
	}
}
