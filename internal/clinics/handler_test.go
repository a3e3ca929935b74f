package clinics

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

func postJSON(t *testing.T, handler http.HandlerFunc, target string, body any) *httptest.ResponseRecorder {
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

func withClinicID(r *http.Request, id uuid.UUID) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("clinicID", id.String())
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

func validCreateRequest() CreateClinicRequest {
	return CreateClinicRequest{
		Name:     "Lakeside Family Clinic",
		Address:  "12 Shore Rd",
		Phone:    "555-0100",
		Email:    "front@lakeside.test",
		Username: "lakeside",
		Password: "a-long-password",
		Doctors:  []Doctor{{Name: "Dr. Patel", Specialization: "GP", Degree: "MD"}},
	}
}

func TestCreateClinic(t *testing.T) {
	repo := NewInMemoryRepository()
	h := NewAdminHandler(repo, nil)

	rec := postJSON(t, h.CreateClinic, "/api/admin/clinics", validCreateRequest())
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	var created Clinic
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if created.ID == uuid.Nil {
		t.Fatal("expected a generated clinic id")
	}
	if bytes.Contains(rec.Body.Bytes(), []byte("passwordHash")) {
		t.Fatal("password hash leaked in response")
	}

	stored, err := repo.GetByID(context.Background(), created.ID)
	if err != nil {
		t.Fatalf("clinic not persisted: %v", err)
	}
	if stored.PasswordHash == "" || stored.PasswordHash == "a-long-password" {
		t.Fatal("password was not hashed before storage")
	}
}

func TestCreateClinicValidation(t *testing.T) {
	h := NewAdminHandler(NewInMemoryRepository(), nil)

	cases := map[string]func(*CreateClinicRequest){
		"missing name":     func(r *CreateClinicRequest) { r.Name = " " },
		"missing username": func(r *CreateClinicRequest) { r.Username = "" },
		"short password":   func(r *CreateClinicRequest) { r.Password = "short" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			req := validCreateRequest()
			mutate(&req)
			if rec := postJSON(t, h.CreateClinic, "/api/admin/clinics", req); rec.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d", rec.Code)
			}
		})
	}
}

func TestCreateClinicDuplicateUsername(t *testing.T) {
	h := NewAdminHandler(NewInMemoryRepository(), nil)

	if rec := postJSON(t, h.CreateClinic, "/api/admin/clinics", validCreateRequest()); rec.Code != http.StatusCreated {
		t.Fatalf("first create failed: %d", rec.Code)
	}
	rec := postJSON(t, h.CreateClinic, "/api/admin/clinics", validCreateRequest())
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for duplicate username, got %d", rec.Code)
	}
}

func TestUpdateClinicPartial(t *testing.T) {
	repo := NewInMemoryRepository()
	h := NewAdminHandler(repo, nil)

	clinic := &Clinic{ID: uuid.New(), Name: "Old Name", Address: "Old Addr", Username: "old"}
	if err := repo.Create(context.Background(), clinic); err != nil {
		t.Fatalf("seed clinic: %v", err)
	}

	newName := "New Name"
	body, _ := json.Marshal(UpdateClinicRequest{Name: &newName})
	req := withClinicID(httptest.NewRequest(http.MethodPut, "/api/admin/clinics/"+clinic.ID.String(), bytes.NewReader(body)), clinic.ID)
	rec := httptest.NewRecorder()
	h.UpdateClinic(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	updated, _ := repo.GetByID(context.Background(), clinic.ID)
	if updated.Name != "New Name" {
		t.Fatalf("name not updated: %q", updated.Name)
	}
	if updated.Address != "Old Addr" {
		t.Fatalf("omitted field was overwritten: %q", updated.Address)
	}
}

func TestArchiveRemovesFromPublicDirectory(t *testing.T) {
	repo := NewInMemoryRepository()
	h := NewAdminHandler(repo, nil)

	clinic := &Clinic{ID: uuid.New(), Name: "Visible", Username: "visible"}
	if err := repo.Create(context.Background(), clinic); err != nil {
		t.Fatalf("seed clinic: %v", err)
	}

	req := withClinicID(httptest.NewRequest(http.MethodPost, "/archive", nil), clinic.ID)
	rec := httptest.NewRecorder()
	h.ArchiveClinic(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("archive failed: %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	h.ListPublicClinics(rec, httptest.NewRequest(http.MethodGet, "/api/public/clinics", nil))
	var list []map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &list); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(list) != 0 {
		t.Fatalf("archived clinic still listed: %v", list)
	}

	// Unarchive brings it back.
	req = withClinicID(httptest.NewRequest(http.MethodPost, "/unarchive", nil), clinic.ID)
	h.UnarchiveClinic(httptest.NewRecorder(), req)

	rec = httptest.NewRecorder()
	h.ListPublicClinics(rec, httptest.NewRequest(http.MethodGet, "/api/public/clinics", nil))
	if err := json.Unmarshal(rec.Body.Bytes(), &list); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("expected 1 clinic after unarchive, got %d", len(list))
	}
}

func TestPublicDirectoryHidesCredentials(t *testing.T) {
	repo := NewInMemoryRepository()
	h := NewAdminHandler(repo, nil)

	clinic := &Clinic{ID: uuid.New(), Name: "Lakeside", Username: "lakeside", PasswordHash: "$2a$10$secret", Email: "private@lakeside.test"}
	if err := repo.Create(context.Background(), clinic); err != nil {
		t.Fatalf("seed clinic: %v", err)
	}

	rec := httptest.NewRecorder()
	h.ListPublicClinics(rec, httptest.NewRequest(http.MethodGet, "/api/public/clinics", nil))

	body := rec.Body.String()
	for _, secret := range []string{"$2a$10$secret", "username", "passwordHash", "email"} {
		if bytes.Contains([]byte(body), []byte(secret)) {
			t.Fatalf("credential field %q leaked: %s", secret, body)
		}
	}
}

func TestGetClinicNotFound(t *testing.T) {
	h := NewAdminHandler(NewInMemoryRepository(), nil)

	req := withClinicID(httptest.NewRequest(http.MethodGet, "/api/admin/clinics/x", nil), uuid.New())
	rec := httptest.NewRecorder()
	h.GetClinic(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
	var msg map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &msg); err != nil {
		t.Fatalf("decode message: %v", err)
	}
	if msg["message"] != "clinic not found" {
		t.Fatalf("unexpected message %q", msg["message"])
	}
}
