// Package resolve decides whether a scraped business record refers to an
// already-accepted real-world entity.
//
// The accepted set is guarded by a single mutex so concurrent workers
// observe a consistent collection and the pairwise non-duplication
// invariant holds: at insertion time no two accepted records would be
// judged duplicates of each other. Decisions are never revisited; a record
// that later surfaces a previously-missing signal is not re-merged.
package resolve

import (
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/askern/mapleads/internal/engine"
	"github.com/askern/mapleads/internal/metrics"
	"github.com/askern/mapleads/internal/normalize"
)

// Signal identifies which precedence step decided a match.
type Signal string

// Match signals in precedence order.
const (
	SignalWebsiteURL  Signal = "website_url"
	SignalPhone       Signal = "phone"
	SignalNameAddress Signal = "name_address"
	SignalNone        Signal = "none"
)

// Config holds the resolver thresholds. Zero values fall back to defaults.
type Config struct {
	// SimilarityThreshold is the combined name/address score at or above
	// which two records match. Exposed so suites can probe boundary
	// behavior exactly at the cutoff.
	SimilarityThreshold float64
	// MinPhoneDigits is the minimum normalized phone length considered a
	// plausible match signal.
	MinPhoneDigits int
	// NameWeight and AddressWeight weight the combined similarity score.
	NameWeight    float64
	AddressWeight float64
}

const (
	defaultSimilarityThreshold = 0.75
	defaultMinPhoneDigits      = 7
	defaultNameWeight          = 0.6
	defaultAddressWeight       = 0.4
)

func (c Config) withDefaults() Config {
	if c.SimilarityThreshold <= 0 {
		c.SimilarityThreshold = defaultSimilarityThreshold
	}
	if c.MinPhoneDigits <= 0 {
		c.MinPhoneDigits = defaultMinPhoneDigits
	}
	if c.NameWeight <= 0 {
		c.NameWeight = defaultNameWeight
	}
	if c.AddressWeight <= 0 {
		c.AddressWeight = defaultAddressWeight
	}
	return c
}

// Outcome reports a resolution decision.
type Outcome struct {
	Matched bool
	// Record is the accepted record: on a match, the existing one; on a
	// no-match, the newly accepted record (with an assigned ID).
	Record engine.BusinessRecord
	Signal Signal
}

// Registry owns the accepted-records collection.
type Registry struct {
	mu      sync.Mutex
	records []engine.BusinessRecord
	keys    []recordKey
	norm    normalize.Normalizer
	cfg     Config
	logger  *zap.Logger
}

// recordKey caches the normalized comparison fields of an accepted record.
type recordKey struct {
	name    string
	address string
	phone   string
	url     string
}

// NewRegistry builds an empty Registry.
func NewRegistry(norm normalize.Normalizer, cfg Config, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		norm:   norm,
		cfg:    cfg.withDefaults(),
		logger: logger,
	}
}

// Resolve decides match or no-match for rec against the accepted set.
// Signals are tried in strict precedence: equal normalized website URLs,
// then equal plausible phone numbers, then combined name/address
// similarity. A signal only ever produces a match; if every signal is
// missing or below threshold the record is accepted as new. A record with
// no usable signal at all is always new.
func (r *Registry) Resolve(rec engine.BusinessRecord) Outcome {
	key := recordKey{
		name:    r.norm.Name(rec.Name),
		address: r.norm.Address(rec.Address),
		phone:   r.norm.Phone(rec.Phone),
		url:     r.norm.URL(rec.WebsiteURL),
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for i := range r.records {
		if signal, ok := r.match(key, r.keys[i]); ok {
			r.logger.Debug("duplicate record",
				zap.String("name", rec.Name),
				zap.String("existing_id", r.records[i].ID),
				zap.String("signal", string(signal)),
			)
			metrics.ObserveResolution(string(signal), true)
			return Outcome{Matched: true, Record: r.records[i], Signal: signal}
		}
	}

	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	r.records = append(r.records, rec)
	r.keys = append(r.keys, key)
	metrics.ObserveResolution(string(SignalNone), false)
	return Outcome{Matched: false, Record: rec, Signal: SignalNone}
}

func (r *Registry) match(a, b recordKey) (Signal, bool) {
	if a.url != "" && a.url == b.url {
		return SignalWebsiteURL, true
	}
	if len(a.phone) >= r.cfg.MinPhoneDigits && a.phone == b.phone {
		return SignalPhone, true
	}
	if a.name == "" || b.name == "" {
		return SignalNone, false
	}
	nameSim := ratio(a.name, b.name)
	addrSim := ratio(a.address, b.address)
	nameW, addrW := r.cfg.NameWeight, r.cfg.AddressWeight
	score := nameSim
	if a.address != "" && b.address != "" {
		score = (nameW*nameSim + addrW*addrSim) / (nameW + addrW)
	}
	if score >= r.cfg.SimilarityThreshold {
		return SignalNameAddress, true
	}
	return SignalNone, false
}

// AttachEmails appends extracted addresses to an accepted record, the only
// mutation permitted after acceptance. Unknown IDs are ignored.
func (r *Registry) AttachEmails(id string, emails []string) {
	if id == "" || len(emails) == 0 {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.records {
		if r.records[i].ID != id {
			continue
		}
		seen := make(map[string]struct{}, len(r.records[i].Emails))
		for _, e := range r.records[i].Emails {
			seen[e] = struct{}{}
		}
		for _, e := range emails {
			if _, dup := seen[e]; !dup {
				r.records[i].Emails = append(r.records[i].Emails, e)
				seen[e] = struct{}{}
			}
		}
		return
	}
}

// Records returns a copy of the accepted collection in acceptance order.
func (r *Registry) Records() []engine.BusinessRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]engine.BusinessRecord, len(r.records))
	copy(out, r.records)
	for i := range out {
		out[i].Emails = append([]string(nil), out[i].Emails...)
	}
	return out
}

// Len reports the number of accepted records.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.records)
}
