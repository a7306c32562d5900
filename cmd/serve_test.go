package main

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/provider-screen/internal/config"
	"github.com/sells-group/provider-screen/internal/engine"
	"github.com/sells-group/provider-screen/internal/model"
	"github.com/sells-group/provider-screen/internal/monitoring"
)

const scanBody = `{
  "profile": "inter_agency",
  "tag": "api",
  "providers": [
    {"id": "p1", "name": "Bright Start Academy", "city": "Spokane", "state": "WA", "phone": "509-555-0101"},
    {"id": "p2", "name": "Little Sprouts", "city": "Spokane", "state": "WA"}
  ],
  "evidence": [
    {"id": "e1", "provider_id": "p1", "source_type": "government", "label": "childcare_license", "timestamp_utc": "2025-05-01T00:00:00Z"},
    {"id": "e2", "provider_id": "p1", "source_type": "places", "label": "listing", "timestamp_utc": "2025-05-01T00:00:00Z"},
    {"id": "e9", "provider_id": "ghost", "source_type": "places", "label": "listing", "timestamp_utc": "2025-05-01T00:00:00Z"}
  ]
}`

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	return newTestServerWith(t, config.ServeConfig{})
}

func newTestServerWith(t *testing.T, sc config.ServeConfig) *httptest.Server {
	t.Helper()
	setupConfig(t)

	reg := prometheus.NewRegistry()
	eng, err := engine.New(cfg, engine.WithRecorder(monitoring.NewMetrics(reg)))
	require.NoError(t, err)

	st, err := initStore(context.Background())
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	srv := httptest.NewServer(newServer(eng, st, reg, sc).routes())
	t.Cleanup(srv.Close)
	return srv
}

func postScan(t *testing.T, srv *httptest.Server, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(srv.URL+"/scan", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func getJSON(t *testing.T, url string, into any) int {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close() //nolint:errcheck
	if into != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(into))
	}
	return resp.StatusCode
}

func TestServe_Health(t *testing.T) {
	srv := newTestServer(t)

	var body map[string]string
	assert.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/health", &body))
	assert.Equal(t, "ok", body["status"])
}

func TestServe_ScanAndQuery(t *testing.T) {
	srv := newTestServer(t)

	resp := postScan(t, srv, scanBody)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	var sr scanResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&sr))
	assert.NotEmpty(t, sr.Run.RunID)
	assert.Equal(t, "api", sr.Run.Tag)
	assert.Equal(t, "inter_agency", sr.Summary.Profile)
	assert.Equal(t, 2, sr.Summary.ProviderCount)
	assert.Equal(t, 2, sr.Summary.EvidenceCount)
	assert.Equal(t, 1, sr.Summary.OrphanEvidence)
	require.Len(t, sr.Integrity, 1)
	assert.Equal(t, "e9", sr.Integrity[0].EvidenceID)

	var runs []model.Run
	assert.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/runs?tag=api", &runs))
	require.Len(t, runs, 1)
	assert.Equal(t, sr.Run.RunID, runs[0].RunID)

	var run model.Run
	assert.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/runs/"+sr.Run.RunID, &run))
	assert.Equal(t, 2, run.Summary.ProviderCount)

	var recs []model.ProviderRecord
	assert.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/runs/"+sr.Run.RunID+"/providers", &recs))
	require.Len(t, recs, 2)
	for _, r := range recs {
		assert.Equal(t, "inter_agency", r.Redaction.Profile)
		assert.NotEqual(t, "509-555-0101", r.Phone)
	}

	recs = nil
	assert.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/runs/"+sr.Run.RunID+"/providers?status=licensed_and_active", &recs))
	require.Len(t, recs, 1)
	assert.Equal(t, "p1", recs[0].ID)
}

func TestServe_ScanErrors(t *testing.T) {
	srv := newTestServer(t)

	tests := []struct {
		name string
		body string
		want int
	}{
		{"malformed", `{"providers": [`, http.StatusBadRequest},
		{"no providers", `{"providers": []}`, http.StatusBadRequest},
		{"duplicate ids", `{"providers": [{"id": "p1"}, {"id": "p1"}]}`, http.StatusUnprocessableEntity},
		{"unknown profile", `{"profile": "everyone", "providers": [{"id": "p1"}]}`, http.StatusUnprocessableEntity},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := postScan(t, srv, tt.body)
			assert.Equal(t, tt.want, resp.StatusCode)

			var body map[string]string
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
			assert.NotEmpty(t, body["error"])
		})
	}
}

func TestServe_NotFoundAndBadQuery(t *testing.T) {
	srv := newTestServer(t)

	assert.Equal(t, http.StatusNotFound, getJSON(t, srv.URL+"/runs/missing", nil))

	var runs []model.Run
	assert.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/runs", &runs))
	assert.Empty(t, runs)

	assert.Equal(t, http.StatusBadRequest, getJSON(t, srv.URL+"/runs/x/providers?tier=severe", nil))
	assert.Equal(t, http.StatusBadRequest, getJSON(t, srv.URL+"/runs/x/providers?min_fraud_score=abc", nil))
}

func TestServe_Metrics(t *testing.T) {
	srv := newTestServer(t)
	postScan(t, srv, scanBody)

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close() //nolint:errcheck

	buf := new(strings.Builder)
	_, err = io.Copy(buf, resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, buf.String(), `provider_screen_runs_total{profile="inter_agency"} 1`)
}

func TestServe_ScanRateLimit(t *testing.T) {
	srv := newTestServerWith(t, config.ServeConfig{ScanRate: 0.001, ScanBurst: 1})

	assert.Equal(t, http.StatusAccepted, postScan(t, srv, scanBody).StatusCode)

	resp := postScan(t, srv, scanBody)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.Equal(t, "1", resp.Header.Get("Retry-After"))

	// Reads are not limited.
	assert.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/health", nil))
}

func TestServe_CORS(t *testing.T) {
	srv := newTestServerWith(t, config.ServeConfig{CORSOrigins: []string{"https://dashboard.example"}})

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/runs", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "https://dashboard.example")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close() //nolint:errcheck

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "https://dashboard.example", resp.Header.Get("Access-Control-Allow-Origin"))

	req.Header.Set("Origin", "https://elsewhere.example")
	other, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer other.Body.Close() //nolint:errcheck
	assert.Empty(t, other.Header.Get("Access-Control-Allow-Origin"))
}
