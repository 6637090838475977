package decode

import (
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/askern/mapleads/internal/engine"
)

// wordedTokenReplacer undoes the common at/dot token substitutions found in
// data attributes, where fragments are short and bracket context is absent.
var wordedTokenReplacer = strings.NewReplacer(
	"[at]", "@", "(at)", "@", "{at}", "@", " at ", "@", " AT ", "@",
	"[dot]", ".", "(dot)", ".", "{dot}", ".", " dot ", ".", " DOT ", ".",
)

// mailtoPass collects addresses from mailto: anchors, dropping any query
// parameters after the address.
func mailtoPass(in Input) []engine.EmailCandidate {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(in.Markup))
	if err != nil {
		return nil
	}
	var out []engine.EmailCandidate
	doc.Find(`a[href^="mailto:"]`).Each(func(_ int, sel *goquery.Selection) {
		href, _ := sel.Attr("href")
		addr := strings.TrimPrefix(href, "mailto:")
		addr, _, _ = strings.Cut(addr, "?")
		addr = strings.TrimSpace(addr)
		if addr == "" {
			return
		}
		out = append(out, engine.EmailCandidate{
			RawSpan:        href,
			DecodedAddress: strings.ToLower(addr),
			Method:         engine.MethodMailto,
		})
	})
	return out
}

// dataAttrPass reassembles addresses stashed in data attributes: either a
// data-user/data-domain pair or a single obfuscated data-email style value.
func dataAttrPass(in Input) []engine.EmailCandidate {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(in.Markup))
	if err != nil {
		return nil
	}
	var out []engine.EmailCandidate
	doc.Find("[data-email], [data-mail], [data-contact], [data-user]").Each(func(_ int, sel *goquery.Selection) {
		user, _ := sel.Attr("data-user")
		domain, _ := sel.Attr("data-domain")
		if user != "" && domain != "" {
			out = append(out, engine.EmailCandidate{
				RawSpan:        user + "@" + domain,
				DecodedAddress: strings.ToLower(user + "@" + domain),
				Method:         engine.MethodDataAttr,
			})
		}
		for _, attr := range []string{"data-email", "data-mail", "data-contact"} {
			raw, ok := sel.Attr(attr)
			if !ok || raw == "" {
				continue
			}
			addr := wordedTokenReplacer.Replace(raw)
			addr = strings.Join(strings.Fields(addr), "")
			out = append(out, engine.EmailCandidate{
				RawSpan:        raw,
				DecodedAddress: strings.ToLower(addr),
				Method:         engine.MethodDataAttr,
			})
		}
	})
	return out
}

// Flatten returns the tag-stripped concatenation of the document's text
// nodes. Adjacent nodes separated only by tags are joined without
// intervening whitespace, which is what lets the script-concat pass see
// fragments split across sibling elements as one token stream.
func Flatten(markup string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		return markup
	}
	doc.Find("script, style").Remove()
	return doc.Text()
}
