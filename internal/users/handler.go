package users

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

// Handler serves user registration, login and account endpoints.
type Handler struct {
	repo   Repository
	store  *sessions.Store
	logger *logging.Logger
}

// NewHandler creates a users handler.
func NewHandler(repo Repository, store *sessions.Store, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{repo: repo, store: store, logger: logger}
}

// Register handles POST /api/register.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := req.Validate(); err != nil {
		writeMessage(w, http.StatusBadRequest, err.Error())
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		h.logger.Error("failed to hash user password", "error", err)
		writeMessage(w, http.StatusInternalServerError, "internal server error")
		return
	}

	user := &User{
		ID:           uuid.New(),
		Name:         strings.TrimSpace(req.Name),
		Email:        strings.ToLower(strings.TrimSpace(req.Email)),
		Phone:        req.Phone,
		PasswordHash: hash,
		Role:         string(sessions.RolePatient),
	}
	if err := h.repo.Create(r.Context(), user); err != nil {
		if errors.Is(err, ErrEmailTaken) {
			writeMessage(w, http.StatusBadRequest, err.Error())
			return
		}
		h.logger.Error("failed to create user", "error", err)
		writeMessage(w, http.StatusInternalServerError, "internal server error")
		return
	}

	h.logger.Info("user registered", "user_id", user.ID)
	writeJSON(w, http.StatusCreated, user)
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Login handles POST /api/login.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid request body")
		return
	}

	user, err := h.repo.GetByEmail(r.Context(), strings.ToLower(strings.TrimSpace(req.Email)))
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			writeMessage(w, http.StatusUnauthorized, ErrInvalidCredentials.Error())
			return
		}
		h.logger.Error("user login lookup failed", "error", err)
		writeMessage(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if !auth.CheckPassword(user.PasswordHash, req.Password) {
		writeMessage(w, http.StatusUnauthorized, ErrInvalidCredentials.Error())
		return
	}

	token, err := h.store.Create(r.Context(), sessions.Principal{
		Subject: user.ID.String(),
		Role:    sessions.Role(user.Role),
	})
	if err != nil {
		h.logger.Error("user session create failed", "error", err)
		writeMessage(w, http.StatusInternalServerError, "internal server error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"token": token, "user": user})
}

// Me handles GET /api/me.
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	p, ok := sessions.PrincipalFromContext(r.Context())
	if !ok {
		writeMessage(w, http.StatusUnauthorized, "missing session")
		return
	}
	id, err := uuid.Parse(p.Subject)
	if err != nil {
		writeMessage(w, http.StatusUnauthorized, "invalid session")
		return
	}
	user, err := h.repo.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			writeMessage(w, http.StatusUnauthorized, "account no longer exists")
			return
		}
		h.logger.Error("me lookup failed", "error", err)
		writeMessage(w, http.StatusInternalServerError, "internal server error")
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// Logout handles POST /api/logout.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	if authz := r.Header.Get("Authorization"); strings.HasPrefix(authz, "Bearer ") {
		token := strings.TrimPrefix(authz, "Bearer ")
		if err := h.store.Destroy(r.Context(), token); err != nil {
			h.logger.Error("session destroy failed", "error", err)
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "logged out"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeMessage(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"message": msg})
}
