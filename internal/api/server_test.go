package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/askern/mapleads/internal/engine"
)

type stubSources struct {
	records []engine.BusinessRecord
	entries []engine.CrawlEntry
}

func (s *stubSources) Records() []engine.BusinessRecord { return s.records }
func (s *stubSources) Snapshot() []engine.CrawlEntry    { return s.entries }

func newTestServer() *Server {
	src := &stubSources{
		records: []engine.BusinessRecord{
			{ID: "rec-1", Name: "Acme Traders", Emails: []string{"info@acme.test"}},
		},
		entries: []engine.CrawlEntry{
			{Domain: "acme.test", LastFetchTime: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
				RobotsDecision: engine.RobotsAllowed, VisitedPaths: []string{"/"}},
		},
	}
	return NewServer(src, src, nil)
}

func doRequest(t *testing.T, srv *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func TestHealthz(t *testing.T) {
	srv := newTestServer()
	rec := doRequest(t, srv, "/healthz")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestGetRecords(t *testing.T) {
	srv := newTestServer()
	rec := doRequest(t, srv, "/v1/records")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var payload struct {
		Count   int                     `json:"count"`
		Records []engine.BusinessRecord `json:"records"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	assert.Equal(t, 1, payload.Count)
	require.Len(t, payload.Records, 1)
	assert.Equal(t, "Acme Traders", payload.Records[0].Name)
	assert.Equal(t, []string{"info@acme.test"}, payload.Records[0].Emails)
}

func TestGetSnapshot(t *testing.T) {
	srv := newTestServer()
	rec := doRequest(t, srv, "/v1/snapshot")

	require.Equal(t, http.StatusOK, rec.Code)

	var payload struct {
		Count   int                 `json:"count"`
		Entries []engine.CrawlEntry `json:"entries"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	assert.Equal(t, 1, payload.Count)
	require.Len(t, payload.Entries, 1)
	assert.Equal(t, "acme.test", payload.Entries[0].Domain)
	assert.Equal(t, engine.RobotsAllowed, payload.Entries[0].RobotsDecision)
}

func TestMetricsEndpoint(t *testing.T) {
	srv := newTestServer()
	rec := doRequest(t, srv, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestRequestIDHeader(t *testing.T) {
	srv := newTestServer()

	rec := doRequest(t, srv, "/healthz")
	assert.NotEmpty(t, rec.Header().Get(requestIDHeader), "a request id is generated when absent")

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set(requestIDHeader, "fixed-id")
	res := httptest.NewRecorder()
	srv.Handler().ServeHTTP(res, req)
	assert.Equal(t, "fixed-id", res.Header().Get(requestIDHeader), "a supplied request id is echoed")
}

func TestUnknownRoute(t *testing.T) {
	srv := newTestServer()
	rec := doRequest(t, srv, "/nope")
	require.Equal(t, http.StatusNotFound, rec.Code)
}
