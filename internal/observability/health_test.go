package observability

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestHealthCheckHandler(t *testing.T) {
	rec := httptest.NewRecorder()
	HealthCheckHandler()(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	var status HealthStatus
	if err := json.NewDecoder(rec.Body).Decode(&status); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if status.Service != "cuecam" || status.Status != "healthy" {
		t.Errorf("Unexpected status: %+v", status)
	}
}

func TestReadinessHandler(t *testing.T) {
	ok := func(ctx context.Context) (bool, error) { return true, nil }
	failing := func(ctx context.Context) (bool, error) { return false, errors.New("engine unavailable") }

	tests := []struct {
		name     string
		checks   map[string]HealthCheckFunc
		wantCode int
	}{
		{"all healthy", map[string]HealthCheckFunc{"engine": ok, "bus": ok}, http.StatusOK},
		{"one failing", map[string]HealthCheckFunc{"engine": failing, "bus": ok}, http.StatusServiceUnavailable},
		{"nil check skipped", map[string]HealthCheckFunc{"engine": ok, "bus": nil}, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			ReadinessHandler(tt.checks)(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))

			if rec.Code != tt.wantCode {
				t.Errorf("Expected %d, got %d", tt.wantCode, rec.Code)
			}
			var status HealthStatus
			if err := json.NewDecoder(rec.Body).Decode(&status); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if _, present := status.Dependencies["bus"]; present != (tt.checks["bus"] != nil) {
				t.Errorf("Unexpected dependency set: %+v", status.Dependencies)
			}
			if tt.wantCode != http.StatusOK && status.Dependencies["engine"].Message != "engine unavailable" {
				t.Errorf("Expected failure message, got %+v", status.Dependencies["engine"])
			}
		})
	}
}

func TestParseLevel(t *testing.T) {
	if got := ParseLevel("DEBUG"); got.String() != "debug" {
		t.Errorf("Expected debug, got %s", got)
	}
	if got := ParseLevel("bogus"); got.String() != "info" {
		t.Errorf("Expected info fallback, got %s", got)
	}
}
