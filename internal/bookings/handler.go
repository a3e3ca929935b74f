package bookings

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/careslot/careslot/internal/auth/sessions"
	"github.com/careslot/careslot/internal/clinics"
	"github.com/careslot/careslot/pkg/logging"
)

// Handler serves the booking endpoints for all three audiences: anonymous
// customers, clinic operators and signed-in users.
type Handler struct {
	svc    *Service
	logger *logging.Logger
}

// NewHandler creates a bookings handler.
func NewHandler(svc *Service, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{svc: svc, logger: logger}
}

// CreatePublic handles POST /api/public/bookings.
func (h *Handler) CreatePublic(w http.ResponseWriter, r *http.Request) {
	var req PublicBookingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid request body")
		return
	}

	booking, err := h.svc.CreatePublic(r.Context(), req)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, booking)
}

// RequestWithCode handles POST /api/public/bookings/request, the one-time-code
// flow retained for clients that cannot use the direct booking endpoint.
func (h *Handler) RequestWithCode(w http.ResponseWriter, r *http.Request) {
	var req PublicBookingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid request body")
		return
	}

	booking, err := h.svc.CreatePending(r.Context(), req)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"id":      booking.ID,
		"message": "verification code sent to your email",
	})
}

type verifyRequest struct {
	BookingID string `json:"bookingId"`
	Code      string `json:"code"`
}

// Verify handles POST /api/public/bookings/verify.
func (h *Handler) Verify(w http.ResponseWriter, r *http.Request) {
	var req verifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid request body")
		return
	}
	bookingID, err := uuid.Parse(req.BookingID)
	if err != nil {
		writeMessage(w, http.StatusBadRequest, "bookingId is invalid")
		return
	}
	if req.Code == "" {
		writeMessage(w, http.StatusBadRequest, "code is required")
		return
	}

	if err := h.svc.Verify(r.Context(), bookingID, req.Code); err != nil {
		h.writeError(w, err)
		return
	}
	writeMessage(w, http.StatusOK, "booking verified")
}

type resendRequest struct {
	BookingID string `json:"bookingId"`
}

// Resend handles POST /api/public/bookings/resend.
func (h *Handler) Resend(w http.ResponseWriter, r *http.Request) {
	var req resendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid request body")
		return
	}
	bookingID, err := uuid.Parse(req.BookingID)
	if err != nil {
		writeMessage(w, http.StatusBadRequest, "bookingId is invalid")
		return
	}

	if err := h.svc.Resend(r.Context(), bookingID); err != nil {
		h.writeError(w, err)
		return
	}
	writeMessage(w, http.StatusOK, "verification code resent")
}

// CreateAuthenticated handles POST /api/bookings for signed-in users.
func (h *Handler) CreateAuthenticated(w http.ResponseWriter, r *http.Request) {
	userID, ok := sessionUserID(r)
	if !ok {
		writeMessage(w, http.StatusUnauthorized, "authentication required")
		return
	}

	var req AuthenticatedBookingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid request body")
		return
	}

	booking, err := h.svc.CreateAuthenticated(r.Context(), userID, req)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, booking)
}

// ListMine handles GET /api/bookings for signed-in users.
func (h *Handler) ListMine(w http.ResponseWriter, r *http.Request) {
	userID, ok := sessionUserID(r)
	if !ok {
		writeMessage(w, http.StatusUnauthorized, "authentication required")
		return
	}

	items, err := h.svc.ListUserBookings(r.Context(), userID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

// ListClinic handles GET /api/clinic/bookings.
func (h *Handler) ListClinic(w http.ResponseWriter, r *http.Request) {
	clinicID, ok := sessionClinicID(r)
	if !ok {
		writeMessage(w, http.StatusUnauthorized, "clinic session required")
		return
	}

	items, err := h.svc.ListClinicBookings(r.Context(), clinicID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

// Cancel handles DELETE /api/clinic/bookings/{id}.
func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	clinicID, ok := sessionClinicID(r)
	if !ok {
		writeMessage(w, http.StatusUnauthorized, "clinic session required")
		return
	}
	bookingID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid booking id")
		return
	}

	if err := h.svc.Cancel(r.Context(), clinicID, bookingID); err != nil {
		h.writeError(w, err)
		return
	}
	writeMessage(w, http.StatusOK, "booking cancelled")
}

// CreateSlot handles POST /api/clinic/slots.
func (h *Handler) CreateSlot(w http.ResponseWriter, r *http.Request) {
	clinicID, ok := sessionClinicID(r)
	if !ok {
		writeMessage(w, http.StatusUnauthorized, "clinic session required")
		return
	}

	var req CreateSlotRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid request body")
		return
	}

	slot, err := h.svc.PublishSlot(r.Context(), clinicID, req)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, slot)
}

// ListSlots handles GET /api/clinic/slots.
func (h *Handler) ListSlots(w http.ResponseWriter, r *http.Request) {
	clinicID, ok := sessionClinicID(r)
	if !ok {
		writeMessage(w, http.StatusUnauthorized, "clinic session required")
		return
	}

	slots, err := h.svc.ListSlots(r.Context(), clinicID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, slots)
}

// DeleteSlot handles DELETE /api/clinic/slots/{id}.
func (h *Handler) DeleteSlot(w http.ResponseWriter, r *http.Request) {
	clinicID, ok := sessionClinicID(r)
	if !ok {
		writeMessage(w, http.StatusUnauthorized, "clinic session required")
		return
	}
	slotID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid slot id")
		return
	}

	if err := h.svc.RemoveSlot(r.Context(), clinicID, slotID); err != nil {
		h.writeError(w, err)
		return
	}
	writeMessage(w, http.StatusOK, "slot deleted")
}

// writeError maps service errors to HTTP responses.
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	var fieldErr *FieldError
	switch {
	case errors.As(err, &fieldErr):
		writeMessage(w, http.StatusBadRequest, fieldErr.Error())
	case errors.Is(err, clinics.ErrClinicNotFound):
		writeMessage(w, http.StatusNotFound, "clinic not found")
	case errors.Is(err, ErrCapacityExceeded):
		writeMessage(w, http.StatusBadRequest, "this time slot is fully booked, please choose another time")
	case errors.Is(err, ErrSlotNotFound):
		writeMessage(w, http.StatusNotFound, "slot not found")
	case errors.Is(err, ErrBookingNotFound):
		writeMessage(w, http.StatusNotFound, "booking not found")
	case errors.Is(err, ErrSlotAlreadyBooked):
		writeMessage(w, http.StatusConflict, "slot is already booked")
	case errors.Is(err, ErrAlreadyVerified):
		writeMessage(w, http.StatusBadRequest, "booking is already verified")
	case errors.Is(err, ErrCodeMismatch):
		writeMessage(w, http.StatusBadRequest, "invalid verification code")
	case errors.Is(err, ErrCodeExpired):
		writeMessage(w, http.StatusBadRequest, "verification code expired, please book again")
	case errors.Is(err, ErrNotClinicBooking):
		writeMessage(w, http.StatusForbidden, "booking does not belong to this clinic")
	default:
		h.logger.Error("booking request failed", "error", err)
		writeMessage(w, http.StatusInternalServerError, "internal server error")
	}
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

func sessionClinicID(r *http.Request) (uuid.UUID, bool) {
	p, ok := sessions.PrincipalFromContext(r.Context())
	if !ok || p.ClinicID == "" {
		return uuid.Nil, false
	}
	id, err := uuid.Parse(p.ClinicID)
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
