package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"testing"
	"time"
)

func TestHealthzAlwaysOK(t *testing.T) {
	c := NewChecker(time.Second)
	rec := httptest.NewRecorder()
	c.Healthz(rec, httptest.NewRequest("GET", "/health", nil))
	if rec.Code != 200 {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestReadyzAggregatesChecks(t *testing.T) {
	c := NewChecker(time.Second)
	c.Register("registry", func(ctx context.Context) error { return nil })
	c.Register("audit", func(ctx context.Context) error { return errors.New("db locked") })

	rec := httptest.NewRecorder()
	c.Readyz(rec, httptest.NewRequest("GET", "/ready", nil))
	if rec.Code != 503 {
		t.Fatalf("status = %d, want 503", rec.Code)
	}

	var body struct {
		Status string `json:"status"`
		Checks map[string]struct {
			Status string `json:"status"`
			Error  string `json:"error"`
		} `json:"checks"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body.Status != "not_ready" {
		t.Errorf("overall status = %q", body.Status)
	}
	if body.Checks["registry"].Status != "ok" {
		t.Errorf("registry check = %+v", body.Checks["registry"])
	}
	if body.Checks["audit"].Error != "db locked" {
		t.Errorf("audit check = %+v", body.Checks["audit"])
	}
}

func TestReadyzNoChecks(t *testing.T) {
	c := NewChecker(0)
	rec := httptest.NewRecorder()
	c.Readyz(rec, httptest.NewRequest("GET", "/ready", nil))
	if rec.Code != 200 {
		t.Fatalf("status = %d, want 200 with no checks registered", rec.Code)
	}
}
