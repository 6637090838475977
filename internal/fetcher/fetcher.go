// Package fetcher retrieves business web pages using gocolly.
//
// The fetcher is a transport-level collaborator: it owns timeouts, TLS
// tolerance, and the user agent. Crawl permission (visited set, robots,
// rate limits) is the crawl state tracker's job, so colly's own robots
// handling is disabled here.
package fetcher

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/askern/mapleads/internal/engine"
)

// Config controls collector behavior.
type Config struct {
	UserAgent string
	Timeout   time.Duration
}

// Client implements engine.Fetcher using a Colly collector.
type Client struct {
	cfg  Config
	base *colly.Collector
}

// New builds a Client.
func New(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	// colly v2.1.0's Async option ignores its argument and always enables
	// async mode; assign the field directly to keep the collector synchronous.
	c := colly.NewCollector()
	c.Async = false
	c.IgnoreRobotsTxt = true
	c.WithTransport(newHTTPTransport())
	return &Client{cfg: cfg, base: c}
}

// Fetch executes a single HTTP GET and returns the page with its flattened
// text view and discovered links.
func (c *Client) Fetch(ctx context.Context, rawURL string) (engine.PageContent, error) {
	collector := c.base.Clone()
	if c.cfg.UserAgent != "" {
		collector.UserAgent = c.cfg.UserAgent
	}
	collector.SetRequestTimeout(c.cfg.Timeout)

	var (
		body     []byte
		finalURL = rawURL
		fetchErr error
		status   int
	)
	collector.OnResponse(func(r *colly.Response) {
		body = append([]byte(nil), r.Body...)
		finalURL = r.Request.URL.String()
		status = r.StatusCode
	})
	collector.OnError(func(r *colly.Response, err error) {
		fetchErr = err
		if r != nil {
			status = r.StatusCode
		}
	})

	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(rawURL)
	}()

	select {
	case <-ctx.Done():
		return engine.PageContent{}, fmt.Errorf("fetch canceled: %w", ctx.Err())
	case err := <-done:
		if err != nil {
			return engine.PageContent{}, fmt.Errorf("visit %s: %w", rawURL, err)
		}
		if fetchErr != nil {
			return engine.PageContent{}, fmt.Errorf("fetch %s (status %d): %w", rawURL, status, fetchErr)
		}
	}

	return ParsePage(finalURL, body), nil
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		// Many small-business sites carry broken certificate chains;
		// skipping verification trades integrity for reach.
		TLSClientConfig:       &tls.Config{InsecureSkipVerify: true}, // #nosec G402
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
