package crawlstate

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/temoto/robotstxt"

	"github.com/askern/mapleads/internal/engine"
)

type stubRobotsLoader struct {
	data  *robotstxt.RobotsData
	err   error
	calls int
}

func (s *stubRobotsLoader) Load(_ context.Context, _ string) (*robotstxt.RobotsData, error) {
	s.calls++
	return s.data, s.err
}

func robotsFrom(t *testing.T, body string) *robotstxt.RobotsData {
	t.Helper()
	data, err := robotstxt.FromString(body)
	require.NoError(t, err)
	return data
}

// testTracker builds a tracker with a stub robots loader and a manual clock.
// The returned advance function moves the clock forward.
func testTracker(t *testing.T, interval time.Duration, loader RobotsLoader) (*Tracker, func(time.Duration)) {
	t.Helper()
	current := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	tracker := New(
		Config{Interval: interval},
		nil,
		WithRobotsLoader(loader),
		WithClock(func() time.Time { return current }),
	)
	return tracker, func(d time.Duration) { current = current.Add(d) }
}

func TestMayFetchGrantsAndClaims(t *testing.T) {
	tracker, _ := testTracker(t, time.Second, &stubRobotsLoader{err: errors.New("offline")})
	ctx := context.Background()

	first := tracker.MayFetch(ctx, "https://example.com/contact")
	require.True(t, first.Allowed)

	// The grant itself claims the path: a second worker asking for the same
	// URL is refused even though no RecordFetch happened yet.
	second := tracker.MayFetch(ctx, "https://example.com/contact")
	require.False(t, second.Allowed)
	require.Equal(t, ReasonVisited, second.Reason)
	require.Zero(t, second.RetryAfter)
}

func TestMayFetchForceRevisits(t *testing.T) {
	tracker, advance := testTracker(t, time.Second, &stubRobotsLoader{err: errors.New("offline")})
	ctx := context.Background()

	require.True(t, tracker.MayFetch(ctx, "https://example.com/contact").Allowed)
	advance(2 * time.Second)

	require.False(t, tracker.MayFetch(ctx, "https://example.com/contact").Allowed)
	require.True(t, tracker.MayFetch(ctx, "https://example.com/contact", Force()).Allowed)
}

func TestMayFetchRateLimitsPerDomain(t *testing.T) {
	tracker, advance := testTracker(t, 2*time.Second, &stubRobotsLoader{err: errors.New("offline")})
	ctx := context.Background()

	require.True(t, tracker.MayFetch(ctx, "https://example.com/a").Allowed)

	limited := tracker.MayFetch(ctx, "https://example.com/b")
	require.False(t, limited.Allowed)
	require.Equal(t, ReasonRateLimit, limited.Reason)
	require.Greater(t, limited.RetryAfter, time.Duration(0))
	require.LessOrEqual(t, limited.RetryAfter, 2*time.Second)

	// Another domain has its own limiter.
	require.True(t, tracker.MayFetch(ctx, "https://other.org/a").Allowed)

	// A rate-limit denial must not claim the path.
	advance(2 * time.Second)
	require.True(t, tracker.MayFetch(ctx, "https://example.com/b").Allowed)
}

func TestMayFetchHonorsRobots(t *testing.T) {
	loader := &stubRobotsLoader{data: robotsFrom(t, "User-agent: *\nDisallow: /private/\n")}
	tracker, advance := testTracker(t, time.Second, loader)
	ctx := context.Background()

	denied := tracker.MayFetch(ctx, "https://example.com/private/page")
	require.False(t, denied.Allowed)
	require.Equal(t, ReasonRobots, denied.Reason)
	require.Equal(t, engine.RobotsDisallowed, denied.Robots)

	advance(time.Second)
	allowed := tracker.MayFetch(ctx, "https://example.com/contact")
	require.True(t, allowed.Allowed)
	require.Equal(t, engine.RobotsAllowed, allowed.Robots)

	require.Equal(t, 1, loader.calls, "robots.txt should be fetched once per domain")
}

func TestMayFetchRobotsDisallowedEntirely(t *testing.T) {
	loader := &stubRobotsLoader{data: robotsFrom(t, "User-agent: *\nDisallow: /\n")}
	tracker, _ := testTracker(t, time.Second, loader)

	denied := tracker.MayFetch(context.Background(), "https://example.com/")
	require.False(t, denied.Allowed)
	require.Equal(t, ReasonRobots, denied.Reason)
}

func TestMayFetchRobotsFailureAllows(t *testing.T) {
	tracker, _ := testTracker(t, time.Second, &stubRobotsLoader{err: errors.New("connection refused")})

	permit := tracker.MayFetch(context.Background(), "https://example.com/contact")
	require.True(t, permit.Allowed)
	require.Equal(t, engine.RobotsUnknown, permit.Robots)
}

// gateRobotsLoader blocks the load for one domain until released, so tests
// can hold a robots fetch in flight deterministically.
type gateRobotsLoader struct {
	gated   string
	entered chan struct{}
	release chan struct{}
	data    *robotstxt.RobotsData
}

func (l *gateRobotsLoader) Load(_ context.Context, domain string) (*robotstxt.RobotsData, error) {
	if domain == l.gated {
		close(l.entered)
		<-l.release
	}
	return l.data, nil
}

func TestMayFetchSlowRobotsDoesNotStallOtherDomains(t *testing.T) {
	loader := &gateRobotsLoader{
		gated:   "slow.example",
		entered: make(chan struct{}),
		release: make(chan struct{}),
		data:    robotsFrom(t, "User-agent: *\nAllow: /\n"),
	}
	tracker, _ := testTracker(t, time.Second, loader)
	ctx := context.Background()

	slow := make(chan Permit, 1)
	go func() { slow <- tracker.MayFetch(ctx, "https://slow.example/contact") }()
	<-loader.entered

	// The gated domain's robots fetch is still in flight; permits for other
	// domains must be issued without waiting on it.
	done := make(chan Permit, 1)
	go func() { done <- tracker.MayFetch(ctx, "https://fast.example/contact") }()
	select {
	case permit := <-done:
		require.True(t, permit.Allowed)
	case <-time.After(2 * time.Second):
		t.Fatal("permit for an unrelated domain blocked on another domain's robots fetch")
	}

	close(loader.release)
	require.True(t, (<-slow).Allowed)
}

func TestMayFetchBadURL(t *testing.T) {
	tracker, _ := testTracker(t, time.Second, &stubRobotsLoader{})
	for _, raw := range []string{"", "   ", "http://"} {
		permit := tracker.MayFetch(context.Background(), raw)
		require.False(t, permit.Allowed)
		require.Equal(t, ReasonBadURL, permit.Reason)
	}
}

func TestVisitedKeyIncludesQuery(t *testing.T) {
	tracker, advance := testTracker(t, time.Second, &stubRobotsLoader{err: errors.New("offline")})
	ctx := context.Background()

	require.True(t, tracker.MayFetch(ctx, "https://example.com/page?id=1").Allowed)
	advance(time.Second)
	require.True(t, tracker.MayFetch(ctx, "https://example.com/page?id=2").Allowed)
	require.Equal(t, ReasonVisited, tracker.MayFetch(ctx, "https://example.com/page?id=1").Reason)
}

func TestPrioritize(t *testing.T) {
	tracker, _ := testTracker(t, time.Second, &stubRobotsLoader{})

	in := []string{
		"https://example.com/products",
		"https://example.com/about-us",
		"https://example.com/contact",
		"https://example.com/blog",
	}
	got := tracker.Prioritize(in)
	require.Equal(t, []string{
		"https://example.com/contact",
		"https://example.com/about-us",
		"https://example.com/products",
		"https://example.com/blog",
	}, got)

	// Input order is untouched.
	require.Equal(t, "https://example.com/products", in[0])
}

func TestSnapshotRestoreRoundTrip(t *testing.T) {
	tracker, advance := testTracker(t, time.Second, &stubRobotsLoader{err: errors.New("offline")})
	ctx := context.Background()

	require.True(t, tracker.MayFetch(ctx, "https://example.com/contact").Allowed)
	tracker.RecordFetch("https://example.com/contact")
	advance(time.Second)
	require.True(t, tracker.MayFetch(ctx, "https://example.com/about").Allowed)
	tracker.RecordFetch("https://example.com/about")
	tracker.RecordFetch("https://other.org/")

	snap := tracker.Snapshot()
	require.Len(t, snap, 2)
	require.Equal(t, "example.com", snap[0].Domain)
	require.Equal(t, []string{"/about", "/contact"}, snap[0].VisitedPaths)
	require.Equal(t, "other.org", snap[1].Domain)

	restored, _ := testTracker(t, time.Second, &stubRobotsLoader{err: errors.New("offline")})
	restored.Restore(snap)
	require.Equal(t, snapDomains(snap), snapDomains(restored.Snapshot()))

	require.Equal(t, ReasonVisited, restored.MayFetch(ctx, "https://example.com/contact").Reason)
	require.Equal(t, ReasonVisited, restored.MayFetch(ctx, "https://other.org/").Reason)
	require.True(t, restored.MayFetch(ctx, "https://example.com/pricing").Allowed)
}

func snapDomains(entries []engine.CrawlEntry) map[string][]string {
	out := make(map[string][]string, len(entries))
	for _, e := range entries {
		out[e.Domain] = e.VisitedPaths
	}
	return out
}

func TestSplitURL(t *testing.T) {
	cases := []struct {
		raw    string
		domain string
		path   string
		ok     bool
	}{
		{"https://Example.com/Contact", "example.com", "/Contact", true},
		{"example.com", "example.com", "/", true},
		{"https://example.com/p?id=1", "example.com", "/p?id=1", true},
		{"", "", "", false},
		{"http://", "", "", false},
	}
	for _, tc := range cases {
		domain, path, ok := splitURL(tc.raw)
		require.Equal(t, tc.ok, ok, tc.raw)
		require.Equal(t, tc.domain, domain, tc.raw)
		require.Equal(t, tc.path, path, tc.raw)
	}
}
