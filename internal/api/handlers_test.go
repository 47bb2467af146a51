package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CodyDvorak/CryptoOracle-sub001/internal/db"
	"github.com/CodyDvorak/CryptoOracle-sub001/internal/scan"
)

type fakeScans struct {
	started  []scan.Spec
	runID    uuid.UUID
	statuses map[uuid.UUID]*scan.Status
	startErr error
}

func (f *fakeScans) Start(_ context.Context, spec scan.Spec) (uuid.UUID, error) {
	if f.startErr != nil {
		return uuid.Nil, f.startErr
	}
	f.started = append(f.started, spec)
	return f.runID, nil
}

func (f *fakeScans) Status(_ context.Context, runID uuid.UUID) (*scan.Status, error) {
	return f.statuses[runID], nil
}

type fakeReader struct {
	runs      []*db.ScanRun
	recs      []*db.Recommendation
	healthErr error
}

func (f *fakeReader) ListRecentScanRuns(_ context.Context, limit int) ([]*db.ScanRun, error) {
	if len(f.runs) > limit {
		return f.runs[:limit], nil
	}
	return f.runs, nil
}

func (f *fakeReader) ListRecommendationsByRun(context.Context, uuid.UUID) ([]*db.Recommendation, error) {
	return f.recs, nil
}

func (f *fakeReader) TopRecommendations(_ context.Context, _ uuid.UUID, limit int) ([]*db.Recommendation, error) {
	if len(f.recs) > limit {
		return f.recs[:limit], nil
	}
	return f.recs, nil
}

func (f *fakeReader) Health(context.Context) error { return f.healthErr }

func newTestServer(scans *fakeScans, store *fakeReader) *Server {
	return NewServer(Config{Host: "127.0.0.1", Port: 0, Scans: scans, Store: store})
}

func doRequest(s *Server, method, path string, body []byte) *httptest.ResponseRecorder {
	var req *http.Request
	if body != nil {
		req = httptest.NewRequest(method, path, bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func TestStartScanReturnsAccepted(t *testing.T) {
	scans := &fakeScans{runID: uuid.New()}
	s := newTestServer(scans, &fakeReader{})

	body := []byte(`{"scan_type":"quick","coin_limit":25,"use_deep_ai":true}`)
	w := doRequest(s, http.MethodPost, "/api/v1/scans", body)

	require.Equal(t, http.StatusAccepted, w.Code)
	var resp struct {
		RunID  uuid.UUID `json:"run_id"`
		Status string    `json:"status"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, scans.runID, resp.RunID)
	assert.Equal(t, "running", resp.Status)

	require.Len(t, scans.started, 1)
	assert.Equal(t, "quick", scans.started[0].ScanType)
	assert.Equal(t, 25, scans.started[0].CoinLimit)
	assert.True(t, scans.started[0].UseDeepAI)
}

func TestStartScanRejectsMalformedBody(t *testing.T) {
	s := newTestServer(&fakeScans{runID: uuid.New()}, &fakeReader{})

	w := doRequest(s, http.MethodPost, "/api/v1/scans", []byte(`{"coin_limit":"lots"}`))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestStartScanSurfacesOrchestratorError(t *testing.T) {
	scans := &fakeScans{startErr: errors.New("db unreachable")}
	s := newTestServer(scans, &fakeReader{})

	w := doRequest(s, http.MethodPost, "/api/v1/scans", []byte(`{}`))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "db unreachable")
}

func TestScanStatus(t *testing.T) {
	runID := uuid.New()
	scans := &fakeScans{statuses: map[uuid.UUID]*scan.Status{
		runID: {
			RunID:     runID,
			Status:    "running",
			Processed: 12,
			Total:     50,
			Signals:   4,
			StartedAt: time.Now().UTC(),
		},
	}}
	s := newTestServer(scans, &fakeReader{})

	w := doRequest(s, http.MethodGet, "/api/v1/scans/"+runID.String(), nil)
	require.Equal(t, http.StatusOK, w.Code)

	var st scan.Status
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &st))
	assert.Equal(t, runID, st.RunID)
	assert.Equal(t, 12, st.Processed)
	assert.Equal(t, 4, st.Signals)
}

func TestScanStatusNotFound(t *testing.T) {
	s := newTestServer(&fakeScans{statuses: map[uuid.UUID]*scan.Status{}}, &fakeReader{})

	w := doRequest(s, http.MethodGet, "/api/v1/scans/"+uuid.NewString(), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestScanStatusRejectsBadID(t *testing.T) {
	s := newTestServer(&fakeScans{}, &fakeReader{})

	w := doRequest(s, http.MethodGet, "/api/v1/scans/not-a-uuid", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestListScans(t *testing.T) {
	store := &fakeReader{runs: []*db.ScanRun{
		{ID: uuid.New(), Status: db.ScanStatusCompleted, ScanType: "quick"},
		{ID: uuid.New(), Status: db.ScanStatusRunning, ScanType: "deep"},
	}}
	s := newTestServer(&fakeScans{}, store)

	w := doRequest(s, http.MethodGet, "/api/v1/scans", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"count":2`)

	w = doRequest(s, http.MethodGet, "/api/v1/scans?limit=1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"count":1`)

	w = doRequest(s, http.MethodGet, "/api/v1/scans?limit=0", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestScanRecommendations(t *testing.T) {
	price := 142.5
	store := &fakeReader{recs: []*db.Recommendation{
		{ID: uuid.New(), Coin: "Solana", Ticker: "SOL", ConsensusDirection: db.DirectionLong, CurrentPrice: &price},
		{ID: uuid.New(), Coin: "Avalanche", Ticker: "AVAX", ConsensusDirection: db.DirectionShort},
	}}
	s := newTestServer(&fakeScans{}, store)

	w := doRequest(s, http.MethodGet, "/api/v1/scans/"+uuid.NewString()+"/recommendations", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"count":2`)
	assert.Contains(t, w.Body.String(), "SOL")

	w = doRequest(s, http.MethodGet, "/api/v1/scans/"+uuid.NewString()+"/recommendations?top=1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"count":1`)
}

func TestHealth(t *testing.T) {
	s := newTestServer(&fakeScans{}, &fakeReader{})
	w := doRequest(s, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	s = newTestServer(&fakeScans{}, &fakeReader{healthErr: errors.New("pool exhausted")})
	w = doRequest(s, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}
