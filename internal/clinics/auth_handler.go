package clinics

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/careslot/careslot/internal/auth"
	"github.com/careslot/careslot/internal/auth/sessions"
	"github.com/careslot/careslot/pkg/logging"
)

// SessionCookie is the cookie carrying the clinic session token.
const SessionCookie = "careslot_session"

// AuthHandler serves clinic login and account endpoints.
type AuthHandler struct {
	repo     Repository
	store    *sessions.Store
	logger   *logging.Logger
	secureCk bool
}

// NewAuthHandler creates the clinic auth handler. secureCookies should be
// true outside local development.
func NewAuthHandler(repo Repository, store *sessions.Store, secureCookies bool, logger *logging.Logger) *AuthHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &AuthHandler{repo: repo, store: store, logger: logger, secureCk: secureCookies}
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Login handles POST /api/clinic/login.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.Username = strings.TrimSpace(req.Username)
	if req.Username == "" || req.Password == "" {
		writeMessage(w, http.StatusBadRequest, "username and password are required")
		return
	}

	clinic, err := h.repo.GetByUsername(r.Context(), req.Username)
	if err != nil {
		if errors.Is(err, ErrClinicNotFound) {
			writeMessage(w, http.StatusUnauthorized, ErrInvalidCredentials.Error())
			return
		}
		h.logger.Error("clinic login lookup failed", "error", err)
		writeMessage(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if clinic.Archived {
		writeMessage(w, http.StatusUnauthorized, "clinic account is archived")
		return
	}
	if !auth.CheckPassword(clinic.PasswordHash, req.Password) {
		writeMessage(w, http.StatusUnauthorized, ErrInvalidCredentials.Error())
		return
	}

	token, err := h.store.Create(r.Context(), sessions.Principal{
		Subject:  clinic.ID.String(),
		Role:     sessions.RoleClinic,
		ClinicID: clinic.ID.String(),
	})
	if err != nil {
		h.logger.Error("clinic session create failed", "error", err)
		writeMessage(w, http.StatusInternalServerError, "internal server error")
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   h.secureCk,
		SameSite: http.SameSiteLaxMode,
	})
	h.logger.Info("clinic logged in", "clinic_id", clinic.ID)
	writeJSON(w, http.StatusOK, map[string]any{"token": token, "clinic": clinic})
}

// Me handles GET /api/clinic/me.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	clinic, ok := h.clinicFromSession(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, clinic)
}

type changePasswordRequest struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

// ChangePassword handles POST /api/clinic/password.
func (h *AuthHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	clinic, ok := h.clinicFromSession(w, r)
	if !ok {
		return
	}
	var req changePasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if !auth.CheckPassword(clinic.PasswordHash, req.CurrentPassword) {
		writeMessage(w, http.StatusUnauthorized, "current password is incorrect")
		return
	}
	if len(req.NewPassword) < 8 {
		writeMessage(w, http.StatusBadRequest, ErrWeakPassword.Error())
		return
	}
	hash, err := auth.HashPassword(req.NewPassword)
	if err != nil {
		h.logger.Error("failed to hash new password", "error", err)
		writeMessage(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if err := h.repo.UpdatePassword(r.Context(), clinic.ID, hash); err != nil {
		h.logger.Error("failed to update password", "error", err)
		writeMessage(w, http.StatusInternalServerError, "internal server error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "password updated"})
}

// Logout handles POST /api/clinic/logout.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if token := bearerOrCookieToken(r); token != "" {
		if err := h.store.Destroy(r.Context(), token); err != nil {
			h.logger.Error("session destroy failed", "error", err)
		}
	}
	http.SetCookie(w, &http.Cookie{Name: SessionCookie, Value: "", Path: "/", MaxAge: -1})
	writeJSON(w, http.StatusOK, map[string]string{"message": "logged out"})
}

func (h *AuthHandler) clinicFromSession(w http.ResponseWriter, r *http.Request) (*Clinic, bool) {
	p, ok := sessions.PrincipalFromContext(r.Context())
	if !ok || p.ClinicID == "" {
		writeMessage(w, http.StatusUnauthorized, "missing clinic session")
		return nil, false
	}
	id, err := uuid.Parse(p.ClinicID)
	if err != nil {
		writeMessage(w, http.StatusUnauthorized, "invalid clinic session")
		return nil, false
	}
	c, err := h.repo.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, ErrClinicNotFound) {
			writeMessage(w, http.StatusUnauthorized, "clinic no longer exists")
			return nil, false
		}
		h.logger.Error("clinic session resolve failed", "error", err)
		writeMessage(w, http.StatusInternalServerError, "internal server error")
		return nil, false
	}
	return c, true
}

func bearerOrCookieToken(r *http.Request) string {
	if authz := r.Header.Get("Authorization"); strings.HasPrefix(authz, "Bearer ") {
		return strings.TrimPrefix(authz, "Bearer ")
	}
	if ck, err := r.Cookie(SessionCookie); err == nil {
		return ck.Value
	}
	return ""
}
