// Package crawlstate tracks visited URLs, cached robots.txt decisions, and
// per-domain rate limits, answering "may I fetch this URL now, and with
// what delay".
//
// All state is owned by the Tracker and mutated only under its mutex, so
// concurrent workers cannot fetch the same URL twice or violate a domain's
// inter-request interval. The robots.txt retrieval itself runs outside the
// mutex, once per domain, so a slow robots host cannot stall permits for
// unrelated domains. Robots.txt retrieval failures are never fatal:
// the fetch is allowed and the decision is recorded as unknown for
// observability.
package crawlstate

import (
	"context"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/temoto/robotstxt"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/askern/mapleads/internal/engine"
	"github.com/askern/mapleads/internal/metrics"
)

// Config controls tracker behavior.
type Config struct {
	// Interval is the minimum delay between requests to one domain.
	Interval time.Duration
	// RobotsTimeout bounds the lazy robots.txt fetch.
	RobotsTimeout time.Duration
	// UserAgent is used for robots.txt retrieval and group matching.
	UserAgent string
	// ContactKeywords order Prioritize output; defaults apply when empty.
	ContactKeywords []string
}

// DefaultContactKeywords mark paths worth visiting first when hunting for
// contact details.
var DefaultContactKeywords = []string{"contact", "about", "reach", "support", "team"}

// Permit is the answer to a MayFetch call. RetryAfter is nonzero only when
// the denial is a rate-limit wait the caller may sleep through.
type Permit struct {
	Allowed    bool
	RetryAfter time.Duration
	Reason     string
	Robots     engine.RobotsDecision
}

// Denial reasons surfaced in Permit.Reason.
const (
	ReasonVisited   = "already visited"
	ReasonRobots    = "disallowed by robots.txt"
	ReasonRateLimit = "rate limited"
	ReasonBadURL    = "unparsable url"
)

type domainState struct {
	lastFetch      time.Time
	robotsDecision engine.RobotsDecision
	robotsData     *robotstxt.RobotsData
	robotsOnce     sync.Once
	robotsLoaded   bool
	visited        map[string]struct{}
	limiter        *rate.Limiter
}

// Tracker owns per-domain crawl state.
type Tracker struct {
	mu      sync.Mutex
	domains map[string]*domainState
	cfg     Config
	robots  RobotsLoader
	logger  *zap.Logger
	now     func() time.Time
}

// Option customizes a Tracker.
type Option func(*Tracker)

// WithRobotsLoader overrides the HTTP robots.txt loader, primarily for tests.
func WithRobotsLoader(l RobotsLoader) Option {
	return func(t *Tracker) { t.robots = l }
}

// WithClock overrides the time source, primarily for tests.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) { t.now = now }
}

// New builds a Tracker.
func New(cfg Config, logger *zap.Logger, opts ...Option) *Tracker {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Second
	}
	if cfg.RobotsTimeout <= 0 {
		cfg.RobotsTimeout = 5 * time.Second
	}
	if len(cfg.ContactKeywords) == 0 {
		cfg.ContactKeywords = DefaultContactKeywords
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	t := &Tracker{
		domains: make(map[string]*domainState),
		cfg:     cfg,
		logger:  logger,
		now:     time.Now,
	}
	t.robots = newHTTPRobotsLoader(cfg.RobotsTimeout, cfg.UserAgent)
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// FetchOption adjusts a single MayFetch call.
type FetchOption func(*fetchOptions)

type fetchOptions struct {
	force bool
}

// Force permits re-crawling a path that was already visited this run.
func Force() FetchOption {
	return func(o *fetchOptions) { o.force = true }
}

// MayFetch checks, in order: whether the URL's path was already visited
// this run, the cached robots.txt decision for the domain, and the
// per-domain inter-request interval. Only the rate-limit denial carries a
// RetryAfter; the others are final for this run.
func (t *Tracker) MayFetch(ctx context.Context, rawURL string, opts ...FetchOption) Permit {
	var o fetchOptions
	for _, opt := range opts {
		opt(&o)
	}
	domain, path, ok := splitURL(rawURL)
	if !ok {
		return Permit{Reason: ReasonBadURL, Robots: engine.RobotsUnknown}
	}

	t.mu.Lock()
	st := t.domain(domain)
	if _, seen := st.visited[path]; seen && !o.force {
		decision := st.robotsDecision
		t.mu.Unlock()
		return Permit{Reason: ReasonVisited, Robots: decision}
	}
	loaded := st.robotsLoaded
	t.mu.Unlock()

	// The robots load does network I/O; it runs outside the mutex so a slow
	// robots host only delays permits for its own domain.
	if !loaded {
		t.ensureRobots(ctx, domain, st)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	// Another worker may have claimed the path while the lock was released.
	if _, seen := st.visited[path]; seen && !o.force {
		return Permit{Reason: ReasonVisited, Robots: st.robotsDecision}
	}
	if st.robotsDecision == engine.RobotsDisallowed || !t.robotsAllows(st, path) {
		return Permit{Reason: ReasonRobots, Robots: engine.RobotsDisallowed}
	}

	now := t.now()
	res := st.limiter.ReserveN(now, 1)
	if delay := res.DelayFrom(now); delay > 0 {
		res.CancelAt(now)
		metrics.ObserveRateLimitDelay(domain, delay)
		return Permit{RetryAfter: delay, Reason: ReasonRateLimit, Robots: st.robotsDecision}
	}

	// Claim the path at grant time so no second worker can be permitted
	// the same URL while the first is still fetching it.
	st.visited[path] = struct{}{}
	return Permit{Allowed: true, Robots: st.robotsDecision}
}

// RecordFetch marks the URL's path visited and stamps the domain's last
// fetch time. Failed fetches count too, so a dead page is not hammered.
func (t *Tracker) RecordFetch(rawURL string) {
	domain, path, ok := splitURL(rawURL)
	if !ok {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	st := t.domain(domain)
	st.visited[path] = struct{}{}
	st.lastFetch = t.now()
}

// Prioritize orders candidate URLs so paths matching contact keywords come
// first. The sort is stable: discovery order is preserved within each
// priority class.
func (t *Tracker) Prioritize(candidateURLs []string) []string {
	out := append([]string(nil), candidateURLs...)
	sort.SliceStable(out, func(i, j int) bool {
		return t.priority(out[i]) < t.priority(out[j])
	})
	return out
}

func (t *Tracker) priority(rawURL string) int {
	lower := strings.ToLower(rawURL)
	for i, kw := range t.cfg.ContactKeywords {
		if strings.Contains(lower, kw) {
			return i
		}
	}
	return len(t.cfg.ContactKeywords)
}

// Snapshot exports every domain's crawl entry, with visited paths sorted,
// so a caller can persist state across runs.
func (t *Tracker) Snapshot() []engine.CrawlEntry {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]engine.CrawlEntry, 0, len(t.domains))
	for domain, st := range t.domains {
		paths := make([]string, 0, len(st.visited))
		for p := range st.visited {
			paths = append(paths, p)
		}
		sort.Strings(paths)
		out = append(out, engine.CrawlEntry{
			Domain:         domain,
			LastFetchTime:  st.lastFetch,
			RobotsDecision: st.robotsDecision,
			VisitedPaths:   paths,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Domain < out[j].Domain })
	return out
}

// Restore loads a previously exported snapshot. Robots parse state is not
// carried across runs; a restored disallowed/unknown decision is kept as a
// hint but robots.txt is re-fetched lazily on first contact.
func (t *Tracker) Restore(entries []engine.CrawlEntry) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, e := range entries {
		domain := strings.ToLower(e.Domain)
		if domain == "" {
			continue
		}
		st := t.domain(domain)
		st.lastFetch = e.LastFetchTime
		if e.RobotsDecision != "" {
			st.robotsDecision = e.RobotsDecision
		}
		for _, p := range e.VisitedPaths {
			st.visited[p] = struct{}{}
		}
	}
}

// domain returns the state for a domain, creating it on first contact.
// Callers must hold t.mu.
func (t *Tracker) domain(domain string) *domainState {
	st, ok := t.domains[domain]
	if !ok {
		st = &domainState{
			robotsDecision: engine.RobotsUnknown,
			visited:        make(map[string]struct{}),
			limiter:        rate.NewLimiter(rate.Every(t.cfg.Interval), 1),
		}
		t.domains[domain] = st
	}
	return st
}

// ensureRobots lazily fetches robots.txt once per domain. The fetch runs
// without t.mu held; concurrent callers for the same domain wait on the
// domain's Once. On failure or timeout the decision stays unknown and
// fetching is allowed; public contact pages should not be blocked by a
// robots retrieval failure. Callers must not hold t.mu.
func (t *Tracker) ensureRobots(ctx context.Context, domain string, st *domainState) {
	st.robotsOnce.Do(func() {
		loadCtx, cancel := context.WithTimeout(ctx, t.cfg.RobotsTimeout)
		defer cancel()
		data, err := t.robots.Load(loadCtx, domain)

		decision := engine.RobotsAllowed
		if err != nil {
			data = nil
			decision = engine.RobotsUnknown
			t.logger.Warn("robots.txt fetch failed; allowing access",
				zap.String("domain", domain),
				zap.Error(err),
			)
		} else if group := data.FindGroup(t.cfg.UserAgent); group != nil && !group.Test("/") {
			decision = engine.RobotsDisallowed
		}
		metrics.ObserveRobotsDecision(string(decision))

		t.mu.Lock()
		st.robotsData = data
		st.robotsDecision = decision
		st.robotsLoaded = true
		t.mu.Unlock()
	})
}

// robotsAllows tests a specific path against the cached robots group.
// Unknown state (no parsed data) always allows.
func (t *Tracker) robotsAllows(st *domainState, path string) bool {
	if st.robotsData == nil {
		return true
	}
	group := st.robotsData.FindGroup(t.cfg.UserAgent)
	if group == nil {
		return true
	}
	return group.Test(path)
}

// splitURL extracts the lowercased host and the path used as the visited
// key. The query string is kept in the key so distinct resources on one
// path are distinguishable.
func splitURL(rawURL string) (domain, path string, ok bool) {
	raw := strings.TrimSpace(rawURL)
	if raw == "" {
		return "", "", false
	}
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil || u.Hostname() == "" {
		return "", "", false
	}
	path = u.EscapedPath()
	if path == "" {
		path = "/"
	}
	if u.RawQuery != "" {
		path += "?" + u.RawQuery
	}
	return strings.ToLower(u.Hostname()), path, true
}
