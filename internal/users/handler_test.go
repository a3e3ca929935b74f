package users

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/careslot/careslot/internal/auth/sessions"
)

func newTestHandler(t *testing.T) (*Handler, *InMemoryRepository, *sessions.Store) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	store := sessions.NewStore(client, time.Hour)
	repo := NewInMemoryRepository()
	return NewHandler(repo, store, nil), repo, store
}

func post(t *testing.T, handler http.HandlerFunc, target string, body any) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal body: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, target, bytes.NewReader(raw))
	rec := httptest.NewRecorder()
	handler(rec, req)
	return rec
}

func TestRegister(t *testing.T) {
	h, repo, _ := newTestHandler(t)

	rec := post(t, h.Register, "/api/register", RegisterRequest{
		Name:     "Ada",
		Email:    "  Ada@Example.COM ",
		Phone:    "555-0101",
		Password: "long-enough",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	var created User
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if created.Role != string(sessions.RolePatient) {
		t.Fatalf("expected patient role, got %q", created.Role)
	}
	if bytes.Contains(rec.Body.Bytes(), []byte("long-enough")) {
		t.Fatal("password leaked in response")
	}

	// Email is normalized before storage.
	stored, err := repo.GetByEmail(context.Background(), "ada@example.com")
	if err != nil {
		t.Fatalf("user not found by normalized email: %v", err)
	}
	if stored.PasswordHash == "" || stored.PasswordHash == "long-enough" {
		t.Fatal("password was not hashed before storage")
	}
}

func TestRegisterValidation(t *testing.T) {
	h, _, _ := newTestHandler(t)

	cases := map[string]RegisterRequest{
		"missing name":   {Email: "a@b.test", Password: "long-enough"},
		"missing email":  {Name: "Ada", Password: "long-enough"},
		"short password": {Name: "Ada", Email: "a@b.test", Password: "short"},
	}
	for name, req := range cases {
		t.Run(name, func(t *testing.T) {
			if rec := post(t, h.Register, "/api/register", req); rec.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d", rec.Code)
			}
		})
	}
}

func TestRegisterDuplicateEmail(t *testing.T) {
	h, _, _ := newTestHandler(t)
	req := RegisterRequest{Name: "Ada", Email: "ada@example.com", Password: "long-enough"}

	if rec := post(t, h.Register, "/api/register", req); rec.Code != http.StatusCreated {
		t.Fatalf("first register failed: %d", rec.Code)
	}
	if rec := post(t, h.Register, "/api/register", req); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for duplicate email, got %d", rec.Code)
	}
}

func TestLogin(t *testing.T) {
	h, _, store := newTestHandler(t)
	if rec := post(t, h.Register, "/api/register", RegisterRequest{Name: "Ada", Email: "ada@example.com", Password: "long-enough"}); rec.Code != http.StatusCreated {
		t.Fatalf("register failed: %d", rec.Code)
	}

	rec := post(t, h.Login, "/api/login", loginRequest{Email: "Ada@Example.com", Password: "long-enough"})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Token string `json:"token"`
		User  User   `json:"user"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Token == "" {
		t.Fatal("expected a session token")
	}

	p, err := store.Get(context.Background(), resp.Token)
	if err != nil {
		t.Fatalf("session not stored: %v", err)
	}
	if p.Subject != resp.User.ID.String() || p.Role != sessions.RolePatient {
		t.Fatalf("unexpected principal %+v", p)
	}
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	h, _, _ := newTestHandler(t)
	if rec := post(t, h.Register, "/api/register", RegisterRequest{Name: "Ada", Email: "ada@example.com", Password: "long-enough"}); rec.Code != http.StatusCreated {
		t.Fatalf("register failed: %d", rec.Code)
	}

	if rec := post(t, h.Login, "/api/login", loginRequest{Email: "ada@example.com", Password: "wrong"}); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for wrong password, got %d", rec.Code)
	}
	if rec := post(t, h.Login, "/api/login", loginRequest{Email: "nobody@example.com", Password: "long-enough"}); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for unknown email, got %d", rec.Code)
	}
}

func TestMe(t *testing.T) {
	h, repo, _ := newTestHandler(t)

	user := &User{ID: uuid.New(), Name: "Ada", Email: "ada@example.com", Role: "patient"}
	if err := repo.Create(context.Background(), user); err != nil {
		t.Fatalf("seed user: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/me", nil)
	req = req.WithContext(sessions.WithPrincipal(req.Context(), sessions.Principal{
		Subject: user.ID.String(),
		Role:    sessions.RolePatient,
	}))
	rec := httptest.NewRecorder()
	h.Me(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var got User
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if got.ID != user.ID {
		t.Fatalf("expected user %s, got %s", user.ID, got.ID)
	}

	rec = httptest.NewRecorder()
	h.Me(rec, httptest.NewRequest(http.MethodGet, "/api/me", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without session, got %d", rec.Code)
	}
}

func TestLogout(t *testing.T) {
	h, _, store := newTestHandler(t)

	token, err := store.Create(context.Background(), sessions.Principal{Subject: "u1", Role: sessions.RolePatient})
	if err != nil {
		t.Fatalf("create session: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/logout", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	h.Logout(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	if _, err := store.Get(context.Background(), token); err == nil {
		t.Fatal("session survived logout")
	}
}
