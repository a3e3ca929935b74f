package notifications

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/careslot/careslot/internal/auth/sessions"
	"github.com/careslot/careslot/pkg/logging"
)

// Handler serves the authenticated notification endpoints.
type Handler struct {
	repo   Repository
	logger *logging.Logger
}

// NewHandler creates a notifications handler.
func NewHandler(repo Repository, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{repo: repo, logger: logger}
}

// List returns the session user's notifications.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := sessionUserID(r)
	if !ok {
		writeMessage(w, http.StatusUnauthorized, "authentication required")
		return
	}

	items, err := h.repo.ListByUser(r.Context(), userID)
	if err != nil {
		h.logger.Error("list notifications failed", "error", err, "user_id", userID)
		writeMessage(w, http.StatusInternalServerError, "failed to list notifications")
		return
	}
	writeJSON(w, http.StatusOK, items)
}

// MarkRead flags one of the session user's notifications as read.
func (h *Handler) MarkRead(w http.ResponseWriter, r *http.Request) {
	userID, ok := sessionUserID(r)
	if !ok {
		writeMessage(w, http.StatusUnauthorized, "authentication required")
		return
	}

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid notification id")
		return
	}

	if err := h.repo.MarkRead(r.Context(), id, userID); err != nil {
		if errors.Is(err, ErrNotificationNotFound) {
			writeMessage(w, http.StatusNotFound, "notification not found")
			return
		}
		h.logger.Error("mark notification read failed", "error", err, "id", id)
		writeMessage(w, http.StatusInternalServerError, "failed to update notification")
		return
	}
	writeMessage(w, http.StatusOK, "notification marked as read")
}

func sessionUserID(r *http.Request) (uuid.UUID, bool) {
	p, ok := sessions.PrincipalFromContext(r.Context())
	if !ok {
		return uuid.Nil, false
	}
	id, err := uuid.Parse(p.Subject)
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeMessage(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"message": msg})
}
