// Package classify labels decoded email candidates and produces the final
// deduplicated address set for a record.
package classify

import (
	"strings"

	"github.com/askern/mapleads/internal/decode"
	"github.com/askern/mapleads/internal/engine"
)

// Label is the classification outcome for a single candidate.
type Label string

// Candidate labels.
const (
	LabelBusinessRole Label = "businessRole"
	LabelPersonal     Label = "personal"
	LabelRejected     Label = "rejected"
)

// DefaultRolePrefixes are the local-part prefixes treated as business-role
// addresses when no configuration is supplied.
var DefaultRolePrefixes = []string{
	"info", "contact", "hello", "support", "sales", "business",
	"admin", "office", "help", "service", "inquiry", "enquiry", "team",
	"marketing", "hr", "jobs", "careers", "feedback", "webmaster", "reach",
}

// Config controls classification behavior.
type Config struct {
	// RolePrefixes overrides DefaultRolePrefixes when non-empty.
	RolePrefixes []string
	// BlockedDomains lists disposable or placeholder domains whose
	// addresses are rejected outright.
	BlockedDomains []string
	// IncludePersonal surfaces personal addresses in Extract output in
	// addition to business-role ones.
	IncludePersonal bool
}

// Classifier applies role-prefix and block-list rules to candidates.
type Classifier struct {
	prefixes        []string
	blocked         map[string]struct{}
	includePersonal bool
}

// New builds a Classifier from cfg.
func New(cfg Config) *Classifier {
	prefixes := cfg.RolePrefixes
	if len(prefixes) == 0 {
		prefixes = DefaultRolePrefixes
	}
	lowered := make([]string, 0, len(prefixes))
	for _, p := range prefixes {
		if p = strings.ToLower(strings.TrimSpace(p)); p != "" {
			lowered = append(lowered, p)
		}
	}
	blocked := make(map[string]struct{}, len(cfg.BlockedDomains))
	for _, d := range cfg.BlockedDomains {
		if d = strings.ToLower(strings.TrimSpace(d)); d != "" {
			blocked[d] = struct{}{}
		}
	}
	return &Classifier{
		prefixes:        lowered,
		blocked:         blocked,
		includePersonal: cfg.IncludePersonal,
	}
}

// Classify labels one candidate. Syntactically invalid addresses and
// addresses on blocked domains are rejected; role-prefixed local parts are
// business-role; everything else is personal.
func (c *Classifier) Classify(cand engine.EmailCandidate) Label {
	addr := strings.ToLower(cand.DecodedAddress)
	if !decode.ValidAddress(addr) {
		return LabelRejected
	}
	local, domain, _ := strings.Cut(addr, "@")
	if _, ok := c.blocked[domain]; ok {
		return LabelRejected
	}
	if c.isRoleLocal(local) {
		return LabelBusinessRole
	}
	return LabelPersonal
}

// isRoleLocal matches exact role prefixes and prefix-plus-separator forms
// such as "sales.eu" or "support-us".
func (c *Classifier) isRoleLocal(local string) bool {
	for _, p := range c.prefixes {
		if local == p {
			return true
		}
		for _, sep := range []string{".", "-", "_"} {
			if strings.HasPrefix(local, p+sep) {
				return true
			}
		}
	}
	return false
}

// Extract classifies every candidate and returns the final deduplicated
// address set in first-seen order. By default only business-role addresses
// are surfaced.
func (c *Classifier) Extract(cands []engine.EmailCandidate) []string {
	seen := make(map[string]struct{}, len(cands))
	var out []string
	for _, cand := range cands {
		addr := strings.ToLower(cand.DecodedAddress)
		if _, dup := seen[addr]; dup {
			continue
		}
		seen[addr] = struct{}{}
		switch c.Classify(cand) {
		case LabelBusinessRole:
			out = append(out, addr)
		case LabelPersonal:
			if c.includePersonal {
				out = append(out, addr)
			}
		}
	}
	return out
}
