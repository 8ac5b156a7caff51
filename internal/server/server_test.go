package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/ShayCichocki/quorum/internal/alerting"
	"github.com/ShayCichocki/quorum/internal/config"
	"github.com/ShayCichocki/quorum/internal/metrics"
	"github.com/ShayCichocki/quorum/internal/router"
	"github.com/ShayCichocki/quorum/internal/scaling"
	"github.com/ShayCichocki/quorum/pkg/models"
)

func newTestHandler(t *testing.T, secret string) http.Handler {
	t.Helper()

	cfg := config.Default()
	registry := router.NewRegistry()
	registry.Register(models.RoleEngineer, 0) // capacity 0 keeps tasks queued

	noop := router.ExecutorFunc(func(ctx context.Context, task *models.Task) (*router.Outcome, error) {
		return &router.Outcome{Result: "done"}, nil
	})
	reg := metrics.NewRegistry()
	rt := router.New(cfg.Router, registry, noop, router.WithMetrics(reg))

	scaler := scaling.New(cfg.Scaling,
		scaling.PlatformFunc(func(ctx context.Context, cmd models.ScaleCommand) error { return nil }),
		rt, registry, scaling.WithMetrics(reg))
	scaler.AddPool(models.RoleEngineer)

	alerts := alerting.NewEngine(reg, nil, time.Second)

	return New(Config{
		Router:  rt,
		Scaler:  scaler,
		Alerts:  alerts,
		Metrics: reg,
		Auth:    AuthConfig{JWTSecret: secret},
	})
}

func submitBody() []byte {
	b, _ := json.Marshal(SubmitTaskRequest{
		SenderRole:    "lead",
		RecipientRole: "engineer",
		TaskType:      "implementation",
		Description:   "build the export endpoint",
		Priority:      "high",
	})
	return b
}

func TestSubmitAndGetTask(t *testing.T) {
	handler := newTestHandler(t, "")

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v0/tasks", bytes.NewReader(submitBody())))
	if rec.Code != http.StatusCreated {
		t.Fatalf("submit status = %d, body %s", rec.Code, rec.Body.String())
	}

	var created TaskResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if created.Status != "queued" {
		t.Errorf("status = %s, want queued", created.Status)
	}
	if created.Priority != "high" {
		t.Errorf("priority = %s, want high", created.Priority)
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v0/tasks/"+created.ID, nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("get status = %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v0/tasks?status=queued", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("list status = %d", rec.Code)
	}
	var listed []TaskResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &listed); err != nil {
		t.Fatalf("decoding list: %v", err)
	}
	if len(listed) != 1 {
		t.Fatalf("expected 1 queued task, got %d", len(listed))
	}
}

func TestSubmitValidation(t *testing.T) {
	handler := newTestHandler(t, "")

	body, _ := json.Marshal(SubmitTaskRequest{SenderRole: "lead", RecipientRole: "engineer"})
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v0/tasks", bytes.NewReader(body)))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400: %s", rec.Code, rec.Body.String())
	}
}

func TestGetTaskNotFound(t *testing.T) {
	handler := newTestHandler(t, "")

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v0/tasks/nope", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestRequeueWrongStateConflicts(t *testing.T) {
	handler := newTestHandler(t, "")

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v0/tasks", bytes.NewReader(submitBody())))
	var created TaskResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("decoding response: %v", err)
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v0/tasks/"+created.ID+"/requeue", bytes.NewReader([]byte("{}"))))
	if rec.Code != http.StatusConflict {
		t.Errorf("requeue of queued task: status = %d, want 409: %s", rec.Code, rec.Body.String())
	}
}

func TestCancelQueuedTask(t *testing.T) {
	handler := newTestHandler(t, "")

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v0/tasks", bytes.NewReader(submitBody())))
	var created TaskResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("decoding response: %v", err)
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v0/tasks/"+created.ID+"/cancel", bytes.NewReader([]byte("{}"))))
	if rec.Code != http.StatusOK {
		t.Fatalf("cancel status = %d: %s", rec.Code, rec.Body.String())
	}
	var cancelled TaskResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &cancelled); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if cancelled.Status != "rejected" {
		t.Errorf("status = %s, want rejected", cancelled.Status)
	}
}

func TestPoolsEndpoint(t *testing.T) {
	handler := newTestHandler(t, "")

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v0/pools", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("pools status = %d", rec.Code)
	}
	var pools []PoolResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &pools); err != nil {
		t.Fatalf("decoding pools: %v", err)
	}
	if len(pools) != 1 || pools[0].Role != "engineer" {
		t.Fatalf("unexpected pools: %v", pools)
	}
}

func TestAlertAckUnknownRule(t *testing.T) {
	handler := newTestHandler(t, "")

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v0/alerts/nope/ack", bytes.NewReader([]byte("{}"))))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestAuthRequired(t *testing.T) {
	secret := "test-secret"
	handler := newTestHandler(t, secret)

	// No token: rejected.
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v0/tasks", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("unauthenticated status = %d, want 401", rec.Code)
	}

	// Health stays open.
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v0/health", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("health status = %d, want 200", rec.Code)
	}

	// Bad token: rejected.
	req := httptest.NewRequest(http.MethodGet, "/v0/tasks", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("bad token status = %d, want 401", rec.Code)
	}

	// Valid token: accepted, subject becomes the actor.
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "alice",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("signing token: %v", err)
	}
	req = httptest.NewRequest(http.MethodGet, "/v0/tasks", nil)
	req.Header.Set("Authorization", "Bearer "+signed)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("authenticated status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
}
