package crawlstate

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/temoto/robotstxt"
)

// RobotsLoader fetches and parses a domain's robots.txt. Implementations
// must be safe for concurrent use; the tracker caches results per domain.
type RobotsLoader interface {
	Load(ctx context.Context, domain string) (*robotstxt.RobotsData, error)
}

// httpRobotsLoader retrieves robots.txt over plain HTTP with a bounded
// timeout. The body is capped at 1 MiB.
type httpRobotsLoader struct {
	client    *http.Client
	userAgent string
}

func newHTTPRobotsLoader(timeout time.Duration, userAgent string) *httpRobotsLoader {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &httpRobotsLoader{
		client:    &http.Client{Timeout: timeout},
		userAgent: userAgent,
	}
}

func (l *httpRobotsLoader) Load(ctx context.Context, domain string) (*robotstxt.RobotsData, error) {
	robotsURL := "https://" + strings.ToLower(domain) + "/robots.txt"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, robotsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("new robots request: %w", err)
	}
	req.Header.Set("User-Agent", l.userAgent)
	resp, err := l.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch robots: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read robots body: %w", err)
	}
	data, err := robotstxt.FromStatusAndBytes(resp.StatusCode, body)
	if err != nil {
		return nil, fmt.Errorf("parse robots: %w", err)
	}
	return data, nil
}
