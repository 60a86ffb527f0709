package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestHealthz(t *testing.T) {
	t.Parallel()

	h := New(func() int { return 3 })
	rec := httptest.NewRecorder()
	h.Healthz(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var body struct {
		Status   string `json:"status"`
		Sessions *int   `json:"sessions"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Status != "ok" {
		t.Errorf("status = %q", body.Status)
	}
	if body.Sessions == nil || *body.Sessions != 3 {
		t.Errorf("sessions = %v, want 3", body.Sessions)
	}
}

func TestReadyz_AllPass(t *testing.T) {
	t.Parallel()

	h := New(nil, Checker{Name: "archive", Check: func(context.Context) error { return nil }})
	rec := httptest.NewRecorder()
	h.Readyz(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
}

func TestReadyz_FailurePropagates(t *testing.T) {
	t.Parallel()

	h := New(nil,
		Checker{Name: "archive", Check: func(context.Context) error { return errors.New("down") }},
		Checker{Name: "providers", Check: func(context.Context) error { return nil }},
	)
	rec := httptest.NewRecorder()
	h.Readyz(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
	var body struct {
		Status string            `json:"status"`
		Checks map[string]string `json:"checks"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Status != "fail" {
		t.Errorf("status = %q", body.Status)
	}
	if body.Checks["archive"] != "fail: down" || body.Checks["providers"] != "ok" {
		t.Errorf("checks = %v", body.Checks)
	}
}
