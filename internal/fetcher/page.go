package fetcher

import (
	"bytes"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/askern/mapleads/internal/decode"
	"github.com/askern/mapleads/internal/engine"
)

// ParsePage builds a PageContent from raw markup: the tag-flattened text
// view (text nodes concatenated without added whitespace, scripts and
// styles removed) and the absolutized same-site links in discovery order.
func ParsePage(pageURL string, body []byte) engine.PageContent {
	page := engine.PageContent{URL: pageURL, HTML: body}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		page.Text = string(body)
		return page
	}

	base, baseErr := url.Parse(pageURL)

	page.Text = decode.Flatten(string(body))

	seen := make(map[string]struct{})
	doc.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
		href, _ := sel.Attr("href")
		href = strings.TrimSpace(href)
		if href == "" || strings.HasPrefix(href, "#") ||
			strings.HasPrefix(href, "mailto:") || strings.HasPrefix(href, "javascript:") {
			return
		}
		if baseErr == nil {
			ref, err := url.Parse(href)
			if err != nil {
				return
			}
			abs := base.ResolveReference(ref)
			if abs.Hostname() != base.Hostname() {
				return
			}
			href = abs.String()
		}
		if _, dup := seen[href]; dup {
			return
		}
		seen[href] = struct{}{}
		page.Links = append(page.Links, href)
	})
	return page
}
