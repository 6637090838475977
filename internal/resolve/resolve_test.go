package resolve

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/askern/mapleads/internal/engine"
	"github.com/askern/mapleads/internal/normalize"
)

func newTestRegistry(t *testing.T, norm normalize.Normalizer, cfg Config) *Registry {
	t.Helper()
	return NewRegistry(norm, cfg, nil)
}

func TestResolveWebsiteURLMatch(t *testing.T) {
	r := newTestRegistry(t, normalize.Normalizer{}, Config{})

	first := r.Resolve(engine.BusinessRecord{Name: "Acme Traders", WebsiteURL: "https://www.acme.com/"})
	require.False(t, first.Matched)
	require.NotEmpty(t, first.Record.ID)
	require.Equal(t, SignalNone, first.Signal)

	second := r.Resolve(engine.BusinessRecord{Name: "Totally Different", WebsiteURL: "acme.com"})
	require.True(t, second.Matched)
	require.Equal(t, SignalWebsiteURL, second.Signal)
	require.Equal(t, first.Record.ID, second.Record.ID)
	require.Equal(t, 1, r.Len())
}

func TestResolvePhoneMatch(t *testing.T) {
	r := newTestRegistry(t, normalize.Normalizer{PhoneNationalLength: 9}, Config{})

	first := r.Resolve(engine.BusinessRecord{Name: "Acme Traders", Phone: "+92-21-1234567"})
	require.False(t, first.Matched)

	second := r.Resolve(engine.BusinessRecord{Name: "Acme Trading Co", Phone: "0211234567"})
	require.True(t, second.Matched)
	require.Equal(t, SignalPhone, second.Signal)
	require.Equal(t, first.Record.ID, second.Record.ID)
}

func TestResolveMatchesInEitherOrder(t *testing.T) {
	cases := []struct {
		name   string
		a, b   engine.BusinessRecord
		signal Signal
	}{
		{
			"website url",
			engine.BusinessRecord{Name: "Acme Traders", WebsiteURL: "https://www.acme.com/"},
			engine.BusinessRecord{Name: "Totally Different", WebsiteURL: "acme.com"},
			SignalWebsiteURL,
		},
		{
			"phone",
			engine.BusinessRecord{Name: "Acme Traders", Phone: "+92-21-1234567"},
			engine.BusinessRecord{Name: "Acme Trading Co", Phone: "0211234567"},
			SignalPhone,
		},
		{
			"name and address",
			engine.BusinessRecord{Name: "Acme Traders LLC", Address: "12-B Main Street, Springfield"},
			engine.BusinessRecord{Name: "Acme Traders", Address: "12B Main Street Springfield"},
			SignalNameAddress,
		},
	}
	norm := normalize.Normalizer{PhoneNationalLength: 9}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			for _, pair := range [][2]engine.BusinessRecord{{tc.a, tc.b}, {tc.b, tc.a}} {
				r := newTestRegistry(t, norm, Config{})
				first := r.Resolve(pair[0])
				require.False(t, first.Matched)

				second := r.Resolve(pair[1])
				require.True(t, second.Matched, "insertion order must not change the outcome")
				require.Equal(t, tc.signal, second.Signal)
				require.Equal(t, first.Record.ID, second.Record.ID)
				require.Equal(t, 1, r.Len())
			}
		})
	}
}

func TestResolveShortPhoneIsNotASignal(t *testing.T) {
	r := newTestRegistry(t, normalize.Normalizer{}, Config{})

	r.Resolve(engine.BusinessRecord{Name: "Zeta Labs", Phone: "12345"})
	out := r.Resolve(engine.BusinessRecord{Name: "Completely Unrelated", Phone: "12345"})
	require.False(t, out.Matched, "a phone below the digit floor must not match")
	require.Equal(t, 2, r.Len())
}

func TestResolveURLPrecedesPhone(t *testing.T) {
	r := newTestRegistry(t, normalize.Normalizer{}, Config{})

	r.Resolve(engine.BusinessRecord{Name: "Acme", WebsiteURL: "acme.com", Phone: "5551234567"})
	out := r.Resolve(engine.BusinessRecord{Name: "Acme", WebsiteURL: "www.acme.com", Phone: "5551234567"})
	require.True(t, out.Matched)
	require.Equal(t, SignalWebsiteURL, out.Signal)
}

func TestResolveDifferingURLsStillMatchOnPhone(t *testing.T) {
	r := newTestRegistry(t, normalize.Normalizer{}, Config{})

	r.Resolve(engine.BusinessRecord{Name: "Acme", WebsiteURL: "acme.com", Phone: "5551234567"})
	out := r.Resolve(engine.BusinessRecord{Name: "Acme Traders", WebsiteURL: "acme.org", Phone: "(555) 123-4567"})
	require.True(t, out.Matched, "a URL mismatch must not veto the phone signal")
	require.Equal(t, SignalPhone, out.Signal)
}

func TestResolveNameAddressSimilarity(t *testing.T) {
	r := newTestRegistry(t, normalize.Normalizer{}, Config{})

	first := r.Resolve(engine.BusinessRecord{
		Name:    "Acme Traders LLC",
		Address: "12-B Main Street, Springfield",
	})
	require.False(t, first.Matched)

	out := r.Resolve(engine.BusinessRecord{
		Name:    "Acme Traders",
		Address: "12B Main Street Springfield",
	})
	require.True(t, out.Matched)
	require.Equal(t, SignalNameAddress, out.Signal)
	require.Equal(t, first.Record.ID, out.Record.ID)
}

func TestResolveSimilarityBelowThreshold(t *testing.T) {
	r := newTestRegistry(t, normalize.Normalizer{}, Config{})

	r.Resolve(engine.BusinessRecord{Name: "Acme Traders", Address: "12 Main Street"})
	out := r.Resolve(engine.BusinessRecord{Name: "Zenith Motors", Address: "900 Hilltop Avenue"})
	require.False(t, out.Matched)
	require.Equal(t, 2, r.Len())
}

func TestResolveThresholdBoundary(t *testing.T) {
	// "abcd" vs "abcx": distance 1 over length 4 scores exactly 0.75 on
	// the name alone. At-threshold must match.
	r := newTestRegistry(t, normalize.Normalizer{}, Config{SimilarityThreshold: 0.75})

	r.Resolve(engine.BusinessRecord{Name: "abcd"})
	out := r.Resolve(engine.BusinessRecord{Name: "abcx"})
	require.True(t, out.Matched)
	require.Equal(t, SignalNameAddress, out.Signal)
}

func TestResolveMissingAddressScoresOnNameAlone(t *testing.T) {
	r := newTestRegistry(t, normalize.Normalizer{}, Config{})

	r.Resolve(engine.BusinessRecord{Name: "Acme Traders", Address: "12 Main Street"})
	out := r.Resolve(engine.BusinessRecord{Name: "Acme Traders"})
	require.True(t, out.Matched)
	require.Equal(t, SignalNameAddress, out.Signal)
}

func TestResolveNoSignalsAcceptsAsNew(t *testing.T) {
	r := newTestRegistry(t, normalize.Normalizer{}, Config{})

	first := r.Resolve(engine.BusinessRecord{})
	second := r.Resolve(engine.BusinessRecord{})
	require.False(t, first.Matched)
	require.False(t, second.Matched)
	require.NotEqual(t, first.Record.ID, second.Record.ID)
	require.Equal(t, 2, r.Len())
}

func TestResolveKeepsSuppliedID(t *testing.T) {
	r := newTestRegistry(t, normalize.Normalizer{}, Config{})
	out := r.Resolve(engine.BusinessRecord{ID: "rec-7", Name: "Acme"})
	require.Equal(t, "rec-7", out.Record.ID)
}

func TestAttachEmails(t *testing.T) {
	r := newTestRegistry(t, normalize.Normalizer{}, Config{})
	out := r.Resolve(engine.BusinessRecord{Name: "Acme", WebsiteURL: "acme.com"})

	r.AttachEmails(out.Record.ID, []string{"info@acme.com", "sales@acme.com"})
	r.AttachEmails(out.Record.ID, []string{"info@acme.com", "support@acme.com"})
	r.AttachEmails("unknown-id", []string{"x@y.com"})

	records := r.Records()
	require.Len(t, records, 1)
	require.Equal(t, []string{"info@acme.com", "sales@acme.com", "support@acme.com"}, records[0].Emails)
}

func TestRecordsReturnsACopy(t *testing.T) {
	r := newTestRegistry(t, normalize.Normalizer{}, Config{})
	out := r.Resolve(engine.BusinessRecord{Name: "Acme"})
	r.AttachEmails(out.Record.ID, []string{"info@acme.com"})

	records := r.Records()
	records[0].Name = "mutated"
	records[0].Emails[0] = "mutated@acme.com"

	fresh := r.Records()
	require.Equal(t, "Acme", fresh[0].Name)
	require.Equal(t, []string{"info@acme.com"}, fresh[0].Emails)
}

func TestRatio(t *testing.T) {
	cases := []struct {
		name string
		a, b string
		want float64
	}{
		{"identical", "acme", "acme", 1},
		{"empty left", "", "acme", 0},
		{"empty right", "acme", "", 0},
		{"one substitution", "abcd", "abcx", 0.75},
		{"disjoint", "abc", "xyz", 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.InDelta(t, tc.want, ratio(tc.a, tc.b), 1e-9)
		})
	}
}
