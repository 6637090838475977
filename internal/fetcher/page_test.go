package fetcher

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePageLinks(t *testing.T) {
	body := []byte(`<html><body>
<a href="/contact">contact</a>
<a href="https://example.com/about">about</a>
<a href="https://elsewhere.org/page">external</a>
<a href="#top">anchor</a>
<a href="mailto:info@example.com">mail</a>
<a href="javascript:void(0)">js</a>
<a href="/contact">duplicate</a>
</body></html>`)

	page := ParsePage("https://example.com/", body)

	require.Equal(t, []string{
		"https://example.com/contact",
		"https://example.com/about",
	}, page.Links, "relative links absolutized, external and non-http links dropped, duplicates collapsed")
	assert.Equal(t, "https://example.com/", page.URL)
	assert.Equal(t, body, page.HTML)
}

func TestParsePageTextFlattensTags(t *testing.T) {
	body := []byte(`<html><body><p><span>info</span><span>@</span><span>example.com</span></p><script>var x=1;</script></body></html>`)
	page := ParsePage("https://example.com/", body)

	assert.Contains(t, page.Text, "info@example.com")
	assert.NotContains(t, page.Text, "var x")
}

func TestParsePageEmptyBody(t *testing.T) {
	page := ParsePage("https://example.com/", nil)
	assert.Empty(t, page.Links)
	assert.Empty(t, page.Text)
}
