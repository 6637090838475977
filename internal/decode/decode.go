// Package decode recovers plaintext email candidates from raw page content.
//
// Detection is organized as a fixed, ordered list of independent passes.
// Each pass is a pure function over the same input and the decoder unions
// their results in pass order. A single address may be found by more than
// one pass; de-duplication by decoded address is the classifier's job.
package decode

import (
	"regexp"
	"strings"

	"github.com/askern/mapleads/internal/engine"
)

// Input carries the two views of a fetched page the passes operate on. Text
// is the caller-supplied tag-flattened concatenation of text nodes, joined
// without intervening whitespace; the decoder never re-parses markup for it.
type Input struct {
	Markup string
	Text   string
}

// PassFunc is the contract every detection pass implements.
type PassFunc func(in Input) []engine.EmailCandidate

// Pass couples a decoding method tag with its detection function.
type Pass struct {
	Method engine.DecodingMethod
	Fn     PassFunc
}

// Decoder applies its passes to an input and unions the candidates.
type Decoder struct {
	passes []Pass
}

// New builds a Decoder. With no arguments it uses DefaultPasses.
func New(passes ...Pass) *Decoder {
	if len(passes) == 0 {
		passes = DefaultPasses()
	}
	return &Decoder{passes: passes}
}

// DefaultPasses returns the standard pass list in application order.
func DefaultPasses() []Pass {
	return []Pass{
		{Method: engine.MethodPlain, Fn: plainPass},
		{Method: engine.MethodHTMLEntity, Fn: entityPass},
		{Method: engine.MethodUnicodeEscape, Fn: unicodeEscapePass},
		{Method: engine.MethodWordedObfuscation, Fn: wordedPass},
		{Method: engine.MethodScriptConcat, Fn: scriptConcatPass},
		{Method: engine.MethodMailto, Fn: mailtoPass},
		{Method: engine.MethodDataAttr, Fn: dataAttrPass},
	}
}

// Decode runs every pass over the input. Candidates whose decoded address
// fails the basic syntactic validity check are dropped; overlapping matches
// from different passes are all emitted.
func (d *Decoder) Decode(in Input) []engine.EmailCandidate {
	var out []engine.EmailCandidate
	for _, p := range d.passes {
		for _, cand := range p.Fn(in) {
			if !ValidAddress(cand.DecodedAddress) {
				continue
			}
			out = append(out, cand)
		}
	}
	return out
}

var emailRe = regexp.MustCompile(`[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`)

// ValidAddress reports whether an address passes the basic syntactic check:
// a single @, a non-empty local part, and a domain with at least one dot
// and a plausible top-level segment of two or more letters.
func ValidAddress(addr string) bool {
	at := strings.Count(addr, "@")
	if at != 1 {
		return false
	}
	local, domain, _ := strings.Cut(addr, "@")
	if local == "" || domain == "" {
		return false
	}
	dot := strings.LastIndex(domain, ".")
	if dot <= 0 || dot == len(domain)-1 {
		return false
	}
	tld := domain[dot+1:]
	if len(tld) < 2 {
		return false
	}
	for _, r := range tld {
		if (r < 'a' || r > 'z') && (r < 'A' || r > 'Z') {
			return false
		}
	}
	return true
}

// plainPass matches the standard local@domain.tld shape on the raw markup.
func plainPass(in Input) []engine.EmailCandidate {
	return matchPlain(in.Markup, engine.MethodPlain)
}

func matchPlain(text string, method engine.DecodingMethod) []engine.EmailCandidate {
	var out []engine.EmailCandidate
	for _, span := range emailRe.FindAllString(text, -1) {
		out = append(out, engine.EmailCandidate{
			RawSpan:        span,
			DecodedAddress: strings.ToLower(span),
			Method:         method,
		})
	}
	return out
}

// Character references and escapes resolving to '@' and '.'.
var (
	entityReplacer = strings.NewReplacer(
		"&#64;", "@", "&#064;", "@", "&#0064;", "@", "&#x40;", "@", "&#X40;", "@", "&commat;", "@",
		"&#46;", ".", "&#046;", ".", "&#0046;", ".", "&#x2e;", ".", "&#x2E;", ".", "&period;", ".",
	)
	unicodeReplacer = strings.NewReplacer(
		`\u0040`, "@", `\U0040`, "@", `\x40`, "@", `\X40`, "@",
		`\u002e`, ".", `\u002E`, ".", `\x2e`, ".", `\x2E`, ".",
	)
)

// entityPass decodes numeric and named character references for '@' and '.'
// and re-runs the plain pattern on the decoded text.
func entityPass(in Input) []engine.EmailCandidate {
	decoded := entityReplacer.Replace(in.Markup)
	if decoded == in.Markup {
		return nil
	}
	return matchPlain(decoded, engine.MethodHTMLEntity)
}

// unicodeEscapePass decodes escaped code points for '@' and '.' the same way.
func unicodeEscapePass(in Input) []engine.EmailCandidate {
	decoded := unicodeReplacer.Replace(in.Markup)
	if decoded == in.Markup {
		return nil
	}
	return matchPlain(decoded, engine.MethodUnicodeEscape)
}

// wordedPass handles bracketed or spaced "at"/"dot" tokens. The local and
// domain fragments are constrained to plausible address character classes so
// ordinary prose containing the word "at" does not match.
var wordedRe = regexp.MustCompile(
	`(?i)([a-z0-9._%+\-]+)\s*(?:\[\s*(?:at|@)\s*\]|\(\s*(?:at|@)\s*\)|\{\s*at\s*\}| at )\s*` +
		`((?:[a-z0-9_\-]+\s*(?:\[\s*(?:dot|\.)\s*\]|\(\s*(?:dot|\.)\s*\)|\{\s*dot\s*\}| dot |\.)\s*)+[a-z]{2,})`,
)

var wordedDotRe = regexp.MustCompile(`(?i)\s*(?:\[\s*(?:dot|\.)\s*\]|\(\s*(?:dot|\.)\s*\)|\{\s*dot\s*\}| dot |\.)\s*`)

func wordedPass(in Input) []engine.EmailCandidate {
	var out []engine.EmailCandidate
	for _, m := range wordedRe.FindAllStringSubmatch(in.Markup, -1) {
		span, local, domain := m[0], m[1], m[2]
		// A spaced "at" with a purely literal-dot domain is indistinguishable
		// from prose ("met at noon.he said"), so require at least one worded
		// or bracketed token somewhere in the match.
		if !strings.ContainsAny(span, "[]{}()") && !wordedDotRe.MatchString(strings.ReplaceAll(domain, ".", "")) {
			continue
		}
		addr := strings.ToLower(local) + "@" + wordedDotRe.ReplaceAllString(strings.ToLower(domain), ".")
		out = append(out, engine.EmailCandidate{
			RawSpan:        span,
			DecodedAddress: addr,
			Method:         engine.MethodWordedObfuscation,
		})
	}
	return out
}

// scriptConcatPass rejoins fragments split across markup. It runs the plain
// pattern over the pre-flattened text view, where sibling text nodes are
// already concatenated without whitespace, and additionally reassembles
// quoted JavaScript string concatenations ('info' + '@' + 'example.com').
var jsConcatRe = regexp.MustCompile(`(?:"[^"\s]*"|'[^'\s]*')(?:\s*\+\s*(?:"[^"\s]*"|'[^'\s]*'))+`)

var quoteStripRe = regexp.MustCompile(`["']\s*\+\s*["']|["']`)

func scriptConcatPass(in Input) []engine.EmailCandidate {
	out := matchPlain(in.Text, engine.MethodScriptConcat)
	for _, chain := range jsConcatRe.FindAllString(in.Markup, -1) {
		joined := quoteStripRe.ReplaceAllString(chain, "")
		for _, cand := range matchPlain(joined, engine.MethodScriptConcat) {
			cand.RawSpan = chain
			out = append(out, cand)
		}
	}
	return out
}
