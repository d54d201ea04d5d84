package httpadapter_test

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/couchcryptid/bird-flu-hotspots/internal/adapter/httpadapter"
	"github.com/couchcryptid/bird-flu-hotspots/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockReadiness struct {
	err error
}

func (m *mockReadiness) CheckReadiness(_ context.Context) error { return m.err }

type mockReports struct {
	report *domain.HotspotReport
}

func (m *mockReports) Latest() *domain.HotspotReport { return m.report }

func testReport() *domain.HotspotReport {
	return &domain.HotspotReport{
		RunID:        "run-1",
		ComputedAt:   time.Date(2024, 2, 2, 10, 0, 0, 0, time.UTC),
		Attribute:    "prop_infected",
		Alpha:        0.05,
		Permutations: 999,
		PValueMode:   domain.TwoSided,
		Results: []domain.HotspotResult{
			{RegionID: "7", Value: 0.25, Z: 2.1, P: 0.004, Label: domain.HotSpot, Neighbors: 1},
			{RegionID: "8", Value: 0, Z: -0.3, P: 0.6, Label: domain.NotSignificant, Neighbors: 1},
		},
		Partition: domain.Partition{Hot: []string{"7"}, Cold: []string{}, NotSignificant: []string{"8"}},
		Islands:   []string{},
	}
}

func newTestServer(readyErr error, report *domain.HotspotReport) *httpadapter.Server {
	return httpadapter.NewServer(":0", &mockReadiness{err: readyErr}, &mockReports{report: report}, slog.Default())
}

func serve(srv *httpadapter.Server, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestHealthzReturns200(t *testing.T) {
	rec := serve(newTestServer(nil, nil), "/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestReadyzReturns200WhenReady(t *testing.T) {
	rec := serve(newTestServer(nil, testReport()), "/readyz")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestReadyzReturns503WhenNotReady(t *testing.T) {
	rec := serve(newTestServer(fmt.Errorf("no hot-spot run has completed yet"), nil), "/readyz")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	rec := serve(newTestServer(nil, nil), "/metrics")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestHotspotsReturns503BeforeFirstRun(t *testing.T) {
	for _, path := range []string{"/hotspots", "/hotspots/7"} {
		rec := serve(newTestServer(nil, nil), path)
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code, path)
	}
}

func TestHotspotsReturnsLatestReport(t *testing.T) {
	rec := serve(newTestServer(nil, testReport()), "/hotspots")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var got domain.HotspotReport
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "run-1", got.RunID)
	assert.Equal(t, []string{"7"}, got.Partition.Hot)
	assert.Len(t, got.Results, 2)
}

func TestHotspotsByRegion(t *testing.T) {
	srv := newTestServer(nil, testReport())

	rec := serve(srv, "/hotspots/7")
	require.Equal(t, http.StatusOK, rec.Code)
	var got domain.HotspotResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, domain.HotSpot, got.Label)
	assert.InDelta(t, 0.004, got.P, 1e-12)

	rec = serve(srv, "/hotspots/missing")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
