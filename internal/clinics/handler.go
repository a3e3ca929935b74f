package clinics

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/careslot/careslot/internal/auth"
	"github.com/careslot/careslot/pkg/logging"
)

// AdminHandler exposes the platform-admin clinic management endpoints.
type AdminHandler struct {
	repo   Repository
	logger *logging.Logger
}

// NewAdminHandler creates the admin clinic handler.
func NewAdminHandler(repo Repository, logger *logging.Logger) *AdminHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &AdminHandler{repo: repo, logger: logger}
}

// CreateClinic handles POST /api/admin/clinics.
func (h *AdminHandler) CreateClinic(w http.ResponseWriter, r *http.Request) {
	var req CreateClinicRequest
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
		h.logger.Error("failed to hash clinic password", "error", err)
		writeMessage(w, http.StatusInternalServerError, "internal server error")
		return
	}

	clinic := &Clinic{
		ID:           uuid.New(),
		Name:         req.Name,
		Address:      req.Address,
		Phone:        req.Phone,
		Email:        req.Email,
		Username:     req.Username,
		PasswordHash: hash,
		Doctors:      req.Doctors,
	}
	if err := h.repo.Create(r.Context(), clinic); err != nil {
		if errors.Is(err, ErrUsernameTaken) {
			writeMessage(w, http.StatusBadRequest, err.Error())
			return
		}
		h.logger.Error("failed to create clinic", "error", err)
		writeMessage(w, http.StatusInternalServerError, "internal server error")
		return
	}

	h.logger.Info("clinic created", "clinic_id", clinic.ID, "name", clinic.Name)
	writeJSON(w, http.StatusCreated, clinic)
}

// ListClinics handles GET /api/admin/clinics. ?archived=true includes
// archived tenants.
func (h *AdminHandler) ListClinics(w http.ResponseWriter, r *http.Request) {
	includeArchived := r.URL.Query().Get("archived") == "true"

	list, err := h.repo.List(r.Context(), includeArchived)
	if err != nil {
		h.logger.Error("failed to list clinics", "error", err)
		writeMessage(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if list == nil {
		list = []*Clinic{}
	}
	writeJSON(w, http.StatusOK, list)
}

// GetClinic handles GET /api/admin/clinics/{clinicID}.
func (h *AdminHandler) GetClinic(w http.ResponseWriter, r *http.Request) {
	id, ok := clinicIDParam(w, r)
	if !ok {
		return
	}
	clinic, err := h.repo.GetByID(r.Context(), id)
	if err != nil {
		h.respondRepoError(w, err, "get clinic")
		return
	}
	writeJSON(w, http.StatusOK, clinic)
}

// UpdateClinic handles PUT /api/admin/clinics/{clinicID}.
func (h *AdminHandler) UpdateClinic(w http.ResponseWriter, r *http.Request) {
	id, ok := clinicIDParam(w, r)
	if !ok {
		return
	}
	var req UpdateClinicRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid request body")
		return
	}

	clinic, err := h.repo.GetByID(r.Context(), id)
	if err != nil {
		h.respondRepoError(w, err, "load clinic for update")
		return
	}
	req.ApplyTo(clinic)
	if err := h.repo.Update(r.Context(), clinic); err != nil {
		h.respondRepoError(w, err, "update clinic")
		return
	}
	writeJSON(w, http.StatusOK, clinic)
}

// ArchiveClinic handles POST /api/admin/clinics/{clinicID}/archive.
func (h *AdminHandler) ArchiveClinic(w http.ResponseWriter, r *http.Request) {
	h.setArchived(w, r, true)
}

// UnarchiveClinic handles POST /api/admin/clinics/{clinicID}/unarchive.
func (h *AdminHandler) UnarchiveClinic(w http.ResponseWriter, r *http.Request) {
	h.setArchived(w, r, false)
}

func (h *AdminHandler) setArchived(w http.ResponseWriter, r *http.Request, archived bool) {
	id, ok := clinicIDParam(w, r)
	if !ok {
		return
	}
	if err := h.repo.SetArchived(r.Context(), id, archived); err != nil {
		h.respondRepoError(w, err, "set archived")
		return
	}
	h.logger.Info("clinic archive state changed", "clinic_id", id, "archived", archived)
	writeJSON(w, http.StatusOK, map[string]bool{"archived": archived})
}

// ListPublicClinics handles GET /api/public/clinics: the patient-facing
// directory of bookable clinics. Credentials are never exposed.
func (h *AdminHandler) ListPublicClinics(w http.ResponseWriter, r *http.Request) {
	list, err := h.repo.List(r.Context(), false)
	if err != nil {
		h.logger.Error("failed to list public clinics", "error", err)
		writeMessage(w, http.StatusInternalServerError, "internal server error")
		return
	}

	type publicClinic struct {
		ID      uuid.UUID `json:"id"`
		Name    string    `json:"name"`
		Address string    `json:"address"`
		Phone   string    `json:"phone"`
		Doctors []Doctor  `json:"doctors"`
	}
	out := make([]publicClinic, 0, len(list))
	for _, c := range list {
		out = append(out, publicClinic{ID: c.ID, Name: c.Name, Address: c.Address, Phone: c.Phone, Doctors: c.Doctors})
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *AdminHandler) respondRepoError(w http.ResponseWriter, err error, op string) {
	if errors.Is(err, ErrClinicNotFound) {
		writeMessage(w, http.StatusNotFound, ErrClinicNotFound.Error())
		return
	}
	h.logger.Error("clinic repository error", "op", op, "error", err)
	writeMessage(w, http.StatusInternalServerError, "internal server error")
}

func clinicIDParam(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "clinicID"))
	if err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid clinic id")
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
