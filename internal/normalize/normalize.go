// Package normalize canonicalizes free-form record fields for comparison.
//
// Every function is pure, deterministic, and idempotent: applying a
// normalizer to its own output returns the output unchanged. Unparsable
// input never fails; it collapses to the most conservative canonical form
// (usually the empty string), which simply removes that signal from the
// resolver's precedence chain.
package normalize

import (
	"net/url"
	"strings"
	"unicode"
)

// Corporate suffixes stripped from business names when they are trailing
// tokens. Multi-word suffixes ("pvt ltd") fall out of repeated single-token
// stripping.
var corporateSuffixes = map[string]struct{}{
	"llc":  {},
	"inc":  {},
	"ltd":  {},
	"pvt":  {},
	"co":   {},
	"corp": {},
	"llp":  {},
	"plc":  {},
	"gmbh": {},
}

// Normalizer holds the configurable knobs for field canonicalization.
// The zero value is usable: no locale context and no address aliases.
type Normalizer struct {
	// PhoneNationalLength is the expected digit count of a national
	// phone number for the records' locale. Zero means unknown locale,
	// in which case digits are kept as-is.
	PhoneNationalLength int

	// AddressAliases maps address tokens to canonical replacements
	// (for example "st" -> "street"). Replacement values must be stable
	// under the alias map themselves, otherwise idempotence is lost.
	AddressAliases map[string]string
}

// Name lowercases, strips punctuation, collapses whitespace, and removes
// trailing corporate suffix tokens. At least one token is always kept so a
// name consisting only of suffixes does not vanish.
func (n Normalizer) Name(raw string) string {
	tokens := strings.Fields(stripPunct(strings.ToLower(raw)))
	for len(tokens) > 1 {
		if _, ok := corporateSuffixes[tokens[len(tokens)-1]]; !ok {
			break
		}
		tokens = tokens[:len(tokens)-1]
	}
	return strings.Join(tokens, " ")
}

// Address lowercases, strips punctuation, and collapses whitespace.
// Abbreviation expansion is not attempted beyond the caller-supplied alias
// map; directional and unit abbreviations are left literal.
func (n Normalizer) Address(raw string) string {
	tokens := strings.Fields(stripPunct(strings.ToLower(raw)))
	if len(n.AddressAliases) > 0 {
		for i, tok := range tokens {
			if alias, ok := n.AddressAliases[tok]; ok {
				tokens[i] = alias
			}
		}
	}
	return strings.Join(tokens, " ")
}

// Phone keeps digits only. When the locale national length is known, it
// also strips leading trunk zeros and, if the number is still longer, drops
// the leading country-code digits so only the national number remains.
// Without a locale, digits are kept as-is: stripping trunk zeros blindly
// would collide distinct numbers like "0123456" and "123456".
func (n Normalizer) Phone(raw string) string {
	var b strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()
	if n.PhoneNationalLength <= 0 {
		return digits
	}
	digits = strings.TrimLeft(digits, "0")
	if len(digits) > n.PhoneNationalLength {
		// The slice can expose fresh leading zeros; trim again so the
		// result is stable under re-normalization.
		digits = strings.TrimLeft(digits[len(digits)-n.PhoneNationalLength:], "0")
	}
	return digits
}

// URL lowercases the host, strips the scheme, a leading "www.", the query
// string, the fragment, and any trailing slash. Invalid URLs normalize to
// the empty string.
func (n Normalizer) URL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	if u.Scheme == "" && u.Host == "" {
		// Bare host forms ("example.com/shop") parse as a path; retry
		// with a scheme so the host is recognized.
		if u, err = url.Parse("http://" + raw); err != nil {
			return ""
		}
	}
	if u.Hostname() == "" {
		return ""
	}
	host := strings.ToLower(u.Hostname())
	host = strings.TrimPrefix(host, "www.")
	path := strings.TrimRight(strings.ToLower(u.EscapedPath()), "/")
	return host + path
}

func stripPunct(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		default:
			b.WriteRune(' ')
		}
	}
	return b.String()
}
