package routes

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"ridestore/pkg/metrics"
)

func TestSetupHealthRoutes_ReportsComponents(t *testing.T) {
	gin.SetMode(gin.TestMode)
	healthy := HealthCheck{Name: "mongodb", Check: func(context.Context) error { return nil }}
	failing := HealthCheck{Name: "redis", Check: func(context.Context) error { return errors.New("connection refused") }}

	r := gin.New()
	SetupHealthRoutes(r, "1.0.0", func() uint64 { return 7 }, metrics.New(), healthy)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"seq":7`) {
		t.Fatalf("expected healthy response with seq, got %d %s", w.Code, w.Body.String())
	}

	r = gin.New()
	SetupHealthRoutes(r, "1.0.0", func() uint64 { return 7 }, metrics.New(), healthy, failing)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	if w.Code != http.StatusServiceUnavailable || !strings.Contains(w.Body.String(), "connection refused") {
		t.Fatalf("expected degraded response, got %d %s", w.Code, w.Body.String())
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "go_goroutines") {
		t.Fatalf("expected prometheus exposition, got %d", w.Code)
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/nowhere", nil))
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown route, got %d", w.Code)
	}
}
