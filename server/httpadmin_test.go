package main

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestHealthzOKWhenPersistenceAndCoordinatorReachable(t *testing.T) {
	_, coord := newTestRig(t)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	newAdminMux(coord).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestMetricsServesPrometheusExposition(t *testing.T) {
	_, coord := newTestRig(t)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	newAdminMux(coord).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if rec.Body.Len() == 0 {
		t.Fatalf("expected non-empty exposition body")
	}
}
