package notifications

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/careslot/careslot/internal/auth/sessions"
)

func authedRequest(t *testing.T, method, target string, userID uuid.UUID) *http.Request {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	ctx := sessions.WithPrincipal(req.Context(), sessions.Principal{
		Subject: userID.String(),
		Role:    sessions.RolePatient,
	})
	return req.WithContext(ctx)
}

func TestListReturnsOwnNotifications(t *testing.T) {
	repo := NewInMemoryRepository()
	userID := uuid.New()
	otherID := uuid.New()

	_ = repo.Create(context.Background(), &Notification{UserID: userID, Message: "booking confirmed"})
	_ = repo.Create(context.Background(), &Notification{UserID: otherID, Message: "not yours"})

	h := NewHandler(repo, nil)
	rec := httptest.NewRecorder()
	h.List(rec, authedRequest(t, http.MethodGet, "/api/notifications", userID))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var items []Notification
	if err := json.Unmarshal(rec.Body.Bytes(), &items); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("expected 1 notification, got %d", len(items))
	}
	if items[0].Message != "booking confirmed" {
		t.Fatalf("unexpected message %q", items[0].Message)
	}
}

func TestListRequiresSession(t *testing.T) {
	h := NewHandler(NewInMemoryRepository(), nil)
	rec := httptest.NewRecorder()
	h.List(rec, httptest.NewRequest(http.MethodGet, "/api/notifications", nil))

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestMarkRead(t *testing.T) {
	repo := NewInMemoryRepository()
	userID := uuid.New()
	n := &Notification{UserID: userID, Message: "hello"}
	_ = repo.Create(context.Background(), n)

	h := NewHandler(repo, nil)

	req := authedRequest(t, http.MethodPost, "/api/notifications/"+n.ID.String()+"/read", userID)
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("id", n.ID.String())
	req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))

	rec := httptest.NewRecorder()
	h.MarkRead(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	items, _ := repo.ListByUser(context.Background(), userID)
	if len(items) != 1 || !items[0].Read {
		t.Fatal("expected notification to be marked read")
	}
}

func TestMarkReadRejectsForeignNotification(t *testing.T) {
	repo := NewInMemoryRepository()
	owner := uuid.New()
	n := &Notification{UserID: owner, Message: "private"}
	_ = repo.Create(context.Background(), n)

	h := NewHandler(repo, nil)

	intruder := uuid.New()
	req := authedRequest(t, http.MethodPost, "/api/notifications/"+n.ID.String()+"/read", intruder)
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("id", n.ID.String())
	req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))

	rec := httptest.NewRecorder()
	h.MarkRead(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}
