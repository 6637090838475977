// Package worker implements the record-processing pipeline loop.
package worker

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/askern/mapleads/internal/classify"
	"github.com/askern/mapleads/internal/crawlstate"
	"github.com/askern/mapleads/internal/decode"
	"github.com/askern/mapleads/internal/engine"
	"github.com/askern/mapleads/internal/metrics"
	"github.com/askern/mapleads/internal/resolve"
)

// Config controls Pool behavior.
type Config struct {
	// Workers is the number of concurrent pipeline goroutines.
	Workers int
	// MaxContactPages caps how many prioritized internal links are
	// visited per business after the homepage.
	MaxContactPages int
	// FetchTimeout bounds each page fetch; a timed-out fetch is treated
	// as failed and recorded as visited.
	FetchTimeout time.Duration
	// MaxRateLimitWait bounds how long a worker sleeps on a rate-limit
	// permit before giving up on the URL for this pass.
	MaxRateLimitWait time.Duration
}

func (c Config) withDefaults() Config {
	if c.Workers <= 0 {
		c.Workers = 4
	}
	if c.MaxContactPages <= 0 {
		c.MaxContactPages = 5
	}
	if c.FetchTimeout <= 0 {
		c.FetchTimeout = 15 * time.Second
	}
	if c.MaxRateLimitWait <= 0 {
		c.MaxRateLimitWait = 30 * time.Second
	}
	return c
}

// Pool consumes scraped business records and runs the full pipeline on
// each: resolve against the accepted set, crawl the accepted record's site
// under the tracker's permits, decode and classify page content, and attach
// the resulting business-role emails.
//
// Resolution and crawl-state access are serialized inside their owning
// components; everything else a worker does is pure computation, so workers
// never coordinate with each other directly. A failure is always scoped to
// the single record or URL being processed.
type Pool struct {
	registry   *resolve.Registry
	tracker    *crawlstate.Tracker
	fetcher    engine.Fetcher
	decoder    *decode.Decoder
	classifier *classify.Classifier
	cfg        Config
	logger     *zap.Logger
}

// New constructs a Pool.
func New(
	registry *resolve.Registry,
	tracker *crawlstate.Tracker,
	fetcher engine.Fetcher,
	decoder *decode.Decoder,
	classifier *classify.Classifier,
	cfg Config,
	logger *zap.Logger,
) *Pool {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pool{
		registry:   registry,
		tracker:    tracker,
		fetcher:    fetcher,
		decoder:    decoder,
		classifier: classifier,
		cfg:        cfg.withDefaults(),
		logger:     logger,
	}
}

// Run consumes records until the channel closes or the context finishes.
// It blocks until all workers drain.
func (p *Pool) Run(ctx context.Context, records <-chan engine.BusinessRecord) {
	var wg sync.WaitGroup
	for i := 0; i < p.cfg.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case rec, ok := <-records:
					if !ok {
						return
					}
					metrics.IncActiveWorkers()
					p.Process(ctx, rec)
					metrics.DecActiveWorkers()
				}
			}
		}()
	}
	wg.Wait()
}

// Process runs the pipeline for one record.
func (p *Pool) Process(ctx context.Context, rec engine.BusinessRecord) {
	outcome := p.registry.Resolve(rec)
	if outcome.Matched {
		p.logger.Info("skipping duplicate business",
			zap.String("name", rec.Name),
			zap.String("existing_id", outcome.Record.ID),
			zap.String("signal", string(outcome.Signal)),
		)
		return
	}
	accepted := outcome.Record
	if accepted.WebsiteURL == "" {
		return
	}

	emails := p.harvest(ctx, accepted.WebsiteURL)
	if len(emails) == 0 {
		return
	}
	p.registry.AttachEmails(accepted.ID, emails)
	p.logger.Info("attached emails",
		zap.String("id", accepted.ID),
		zap.String("name", accepted.Name),
		zap.Int("count", len(emails)),
	)
}

// harvest crawls the site homepage plus up to MaxContactPages prioritized
// internal links and returns the deduplicated business-role addresses.
func (p *Pool) harvest(ctx context.Context, siteURL string) []string {
	var candidates []engine.EmailCandidate

	home, ok := p.fetchOne(ctx, siteURL)
	if ok {
		candidates = append(candidates, p.decodePage(home)...)
	}

	visited := 0
	for _, link := range p.tracker.Prioritize(home.Links) {
		if visited >= p.cfg.MaxContactPages || ctx.Err() != nil {
			break
		}
		page, ok := p.fetchOne(ctx, link)
		if !ok {
			continue
		}
		visited++
		candidates = append(candidates, p.decodePage(page)...)
	}

	return p.classifier.Extract(candidates)
}

func (p *Pool) decodePage(page engine.PageContent) []engine.EmailCandidate {
	cands := p.decoder.Decode(decode.Input{Markup: string(page.HTML), Text: page.Text})
	for _, c := range cands {
		metrics.ObserveEmailCandidate(string(c.Method))
	}
	return cands
}

// fetchOne asks the tracker for permission, waiting out at most one
// rate-limit delay, then fetches with a bounded timeout. Every attempt,
// failed or not, is recorded as visited so dead pages are not retried.
func (p *Pool) fetchOne(ctx context.Context, rawURL string) (engine.PageContent, bool) {
	permit := p.tracker.MayFetch(ctx, rawURL)
	if !permit.Allowed && permit.RetryAfter > 0 && permit.RetryAfter <= p.cfg.MaxRateLimitWait {
		if !sleepCtx(ctx, permit.RetryAfter) {
			return engine.PageContent{}, false
		}
		permit = p.tracker.MayFetch(ctx, rawURL)
	}
	if !permit.Allowed {
		p.logger.Debug("fetch not permitted",
			zap.String("url", rawURL),
			zap.String("reason", permit.Reason),
		)
		return engine.PageContent{}, false
	}

	fetchCtx, cancel := context.WithTimeout(ctx, p.cfg.FetchTimeout)
	defer cancel()
	page, err := p.fetcher.Fetch(fetchCtx, rawURL)
	p.tracker.RecordFetch(rawURL)
	if err != nil {
		metrics.ObserveFetch("failure")
		p.logger.Warn("page fetch failed", zap.String("url", rawURL), zap.Error(err))
		return engine.PageContent{}, false
	}
	metrics.ObserveFetch("success")
	return page, true
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
