// Package engine defines core types shared across subsystems.
package engine

import (
	"context"
	"time"
)

// RobotsDecision is the cached outcome of checking a domain's robots.txt.
type RobotsDecision string

// Robots decision values recorded per domain.
const (
	RobotsAllowed    RobotsDecision = "allowed"
	RobotsDisallowed RobotsDecision = "disallowed"
	RobotsUnknown    RobotsDecision = "unknown"
)

// BusinessRecord is a scraped business listing. Identity is not a stable
// key: two records with different raw strings may describe the same entity,
// and uniqueness is established only by the resolver. After acceptance a
// record is never mutated except to attach extracted emails.
type BusinessRecord struct {
	ID              string   `json:"id"`
	Name            string   `json:"name"`
	Address         string   `json:"address"`
	Phone           string   `json:"phone"`
	WebsiteURL      string   `json:"website_url,omitempty"`
	RawQueryContext string   `json:"raw_query_context,omitempty"`
	Emails          []string `json:"emails,omitempty"`
}

// DecodingMethod tags how an email candidate was recovered from page content.
type DecodingMethod string

// Decoding methods, one per decoder pass.
const (
	MethodPlain             DecodingMethod = "plain"
	MethodHTMLEntity        DecodingMethod = "htmlEntity"
	MethodUnicodeEscape     DecodingMethod = "unicodeEscape"
	MethodWordedObfuscation DecodingMethod = "wordedObfuscation"
	MethodScriptConcat      DecodingMethod = "scriptConcat"
	MethodMailto            DecodingMethod = "mailto"
	MethodDataAttr          DecodingMethod = "dataAttr"
)

// EmailCandidate is a possible address recovered by a single decoder pass.
// RawSpan is the matched span in that pass's working view of the text; it is
// kept for observability and discarded after classification.
type EmailCandidate struct {
	RawSpan        string
	DecodedAddress string
	Method         DecodingMethod
}

// CrawlEntry captures the crawl state for one domain. It is owned
// exclusively by the crawl state tracker and round-trips losslessly through
// snapshots.
type CrawlEntry struct {
	Domain         string         `json:"domain"`
	LastFetchTime  time.Time      `json:"last_fetch_time"`
	RobotsDecision RobotsDecision `json:"robots_decision"`
	VisitedPaths   []string       `json:"visited_paths"`
}

// PageContent is the fetched content of a single URL: the original markup
// plus a tag-flattened text view and the discovered same-site links.
type PageContent struct {
	URL   string
	HTML  []byte
	Text  string
	Links []string
}

// Fetcher retrieves a page on behalf of the engine. Implementations own
// transport concerns (TLS tolerance, redirects, user agent).
type Fetcher interface {
	Fetch(ctx context.Context, url string) (PageContent, error)
}
