package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Nanda8994/MCPD365Server/internal/entra"
)

func validTestConfig() entra.Config {
	return entra.Config{
		Resource:     "https://contoso.operations.dynamics.com",
		TenantID:     "tenant-id",
		ClientID:     "client-id",
		ClientSecret: "client-secret",
	}
}

func TestLivenessHandlerAlwaysOK(t *testing.T) {
	health := NewHealthChecker(nil)
	health.SetReady(false)

	rec := httptest.NewRecorder()
	health.LivenessHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if rec.Code != http.StatusOK {
		t.Errorf("liveness status = %d, want %d", rec.Code, http.StatusOK)
	}
}

func TestReadinessHandlerReady(t *testing.T) {
	sc := NewServerContext(context.Background(), validTestConfig())
	defer sc.Shutdown()

	health := NewHealthChecker(sc)

	rec := httptest.NewRecorder()
	health.ReadinessHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("readiness status = %d, want %d", rec.Code, http.StatusOK)
	}

	var resp HealthResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Status != healthStatusOK {
		t.Errorf("status = %q, want %q", resp.Status, healthStatusOK)
	}
	if resp.Checks["credentials"] != healthStatusOK {
		t.Errorf("credentials check = %q, want %q", resp.Checks["credentials"], healthStatusOK)
	}
}

func TestReadinessHandlerNotReady(t *testing.T) {
	health := NewHealthChecker(nil)
	health.SetReady(false)

	rec := httptest.NewRecorder()
	health.ReadinessHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("readiness status = %d, want %d", rec.Code, http.StatusServiceUnavailable)
	}
}

func TestReadinessHandlerMissingCredentials(t *testing.T) {
	cfg := validTestConfig()
	cfg.ClientSecret = ""
	sc := NewServerContext(context.Background(), cfg)
	defer sc.Shutdown()

	health := NewHealthChecker(sc)

	rec := httptest.NewRecorder()
	health.ReadinessHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("readiness status = %d, want %d", rec.Code, http.StatusServiceUnavailable)
	}

	var resp HealthResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Checks["credentials"] != healthStatusMisconfig {
		t.Errorf("credentials check = %q, want %q", resp.Checks["credentials"], healthStatusMisconfig)
	}
}

func TestReadinessHandlerShuttingDown(t *testing.T) {
	sc := NewServerContext(context.Background(), validTestConfig())
	sc.Shutdown()

	health := NewHealthChecker(sc)

	rec := httptest.NewRecorder()
	health.ReadinessHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("readiness status = %d, want %d", rec.Code, http.StatusServiceUnavailable)
	}
}

func TestDetailedHealthReportsSessions(t *testing.T) {
	health := NewHealthChecker(nil)
	health.SetSessionCount(func() int { return 3 })

	rec := httptest.NewRecorder()
	health.DetailedHealthHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz/detailed", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("detailed status = %d, want %d", rec.Code, http.StatusOK)
	}

	var resp DetailedHealthResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Sessions != 3 {
		t.Errorf("sessions = %d, want 3", resp.Sessions)
	}
	if resp.Uptime == "" {
		t.Error("uptime should not be empty")
	}
}
