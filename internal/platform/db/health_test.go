package db

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
)

type fakePinger struct{ err error }

func (f fakePinger) Ping(context.Context) error { return f.err }

func runHealth(t *testing.T, p Pinger, stats func() *PoolStats) *httptest.ResponseRecorder {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/health/db", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	if err := HealthHandler(p, stats)(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return rec
}

func TestHealthHandler_Healthy(t *testing.T) {
	rec := runHealth(t, fakePinger{}, func() *PoolStats { return &PoolStats{TotalConns: 2, Healthy: true} })

	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"total_conns":2`) {
		t.Errorf("expected pool stats in body, got %s", rec.Body.String())
	}
}

func TestHealthHandler_Unhealthy(t *testing.T) {
	rec := runHealth(t, fakePinger{err: errors.New("connection refused")}, nil)

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "connection refused") {
		t.Errorf("expected error in body, got %s", rec.Body.String())
	}
}
