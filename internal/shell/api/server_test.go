package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/homelab-sh/homelab/internal/core/domain"
	"github.com/homelab-sh/homelab/internal/pipeline"
)

// stubSource implements StatusSource.
type stubSource struct {
	report *pipeline.StatusReport
	err    error
}

func (s *stubSource) CurrentStatus(ctx context.Context) (*pipeline.StatusReport, error) {
	return s.report, s.err
}

func TestHealthz(t *testing.T) {
	srv := NewServer(":0", &stubSource{}, nil)

	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestStatusEndpoint(t *testing.T) {
	source := &stubSource{report: &pipeline.StatusReport{
		Target:  "production",
		Overall: domain.HealthStatusHealthy,
		Services: []domain.ServiceHealth{
			{Service: "dashboard", State: "running", Health: domain.HealthStatusHealthy},
		},
	}}
	srv := NewServer(":0", source, nil)

	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/status", nil))

	require.Equal(t, http.StatusOK, rec.Code)

	var report pipeline.StatusReport
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	assert.Equal(t, "production", report.Target)
	assert.Equal(t, domain.HealthStatusHealthy, report.Overall)
	require.Len(t, report.Services, 1)
	assert.Equal(t, "dashboard", report.Services[0].Service)
}

func TestStatusEndpoint_SourceError(t *testing.T) {
	srv := NewServer(":0", &stubSource{err: errors.New("daemon unreachable")}, nil)

	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/status", nil))

	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Contains(t, rec.Body.String(), "daemon unreachable")
}
