package bookings

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/careslot/careslot/internal/auth/sessions"
)

func newHandlerFixture(t *testing.T) (*Handler, *fixture) {
	t.Helper()
	f := newFixture(t)
	return NewHandler(f.svc, nil), f
}

func postJSON(t *testing.T, h http.HandlerFunc, target string, body any) *httptest.ResponseRecorder {
	t.Helper()
	buf, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, target, bytes.NewReader(buf))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h(rec, req)
	return rec
}

func decodeMessage(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body["message"]
}

func TestCreatePublicEndpoint(t *testing.T) {
	h, f := newHandlerFixture(t)

	rec := postJSON(t, h.CreatePublic, "/api/public/bookings", f.publicRequest(f.now.Add(time.Hour)))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var booking Booking
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &booking))
	assert.Equal(t, VerificationVerified, booking.VerificationStatus)
	assert.NotEqual(t, uuid.Nil, booking.ID)
}

func TestCreatePublicValidation(t *testing.T) {
	h, f := newHandlerFixture(t)

	cases := []struct {
		name   string
		mutate func(*PublicBookingRequest)
	}{
		{"missing name", func(r *PublicBookingRequest) { r.CustomerName = "" }},
		{"missing phone", func(r *PublicBookingRequest) { r.CustomerPhone = "" }},
		{"bad email", func(r *PublicBookingRequest) { r.CustomerEmail = "not-an-email" }},
		{"bad clinic id", func(r *PublicBookingRequest) { r.ClinicID = "abc" }},
		{"bad start", func(r *PublicBookingRequest) { r.StartTime = "tomorrow" }},
		{"end before start", func(r *PublicBookingRequest) { r.EndTime = r.StartTime }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := f.publicRequest(f.now.Add(time.Hour))
			tc.mutate(&req)
			rec := postJSON(t, h.CreatePublic, "/api/public/bookings", req)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.NotEmpty(t, decodeMessage(t, rec))
		})
	}
}

func TestFourthBookingGetsRejected(t *testing.T) {
	h, f := newHandlerFixture(t)
	start := f.now.Add(24 * time.Hour)

	for i := 0; i < 3; i++ {
		rec := postJSON(t, h.CreatePublic, "/api/public/bookings", f.publicRequest(start))
		require.Equal(t, http.StatusCreated, rec.Code, "booking %d: %s", i+1, rec.Body.String())
	}

	rec := postJSON(t, h.CreatePublic, "/api/public/bookings", f.publicRequest(start))
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decodeMessage(t, rec), "fully booked")
}

func TestNearbyStartTimesShareCapacity(t *testing.T) {
	h, f := newHandlerFixture(t)
	start := f.now.Add(24 * time.Hour)

	offsets := []time.Duration{0, 30 * time.Second, -45 * time.Second}
	for i, off := range offsets {
		rec := postJSON(t, h.CreatePublic, "/api/public/bookings", f.publicRequest(start.Add(off)))
		require.Equal(t, http.StatusCreated, rec.Code, "booking %d", i+1)
	}

	rec := postJSON(t, h.CreatePublic, "/api/public/bookings", f.publicRequest(start.Add(59*time.Second)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestVerifyEndpointFlow(t *testing.T) {
	h, f := newHandlerFixture(t)
	f.svc.genCode = func() (string, error) { return "314159", nil }

	rec := postJSON(t, h.RequestWithCode, "/api/public/bookings/request", f.publicRequest(f.now.Add(time.Hour)))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var created struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))

	// Wrong code first.
	rec = postJSON(t, h.Verify, "/api/public/bookings/verify", verifyRequest{BookingID: created.ID, Code: "000000"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = postJSON(t, h.Verify, "/api/public/bookings/verify", verifyRequest{BookingID: created.ID, Code: "314159"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	// Verifying twice is rejected.
	rec = postJSON(t, h.Verify, "/api/public/bookings/verify", verifyRequest{BookingID: created.ID, Code: "314159"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestVerifyUnknownBooking(t *testing.T) {
	h, _ := newHandlerFixture(t)

	rec := postJSON(t, h.Verify, "/api/public/bookings/verify",
		verifyRequest{BookingID: uuid.New().String(), Code: "123456"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestResendEndpoint(t *testing.T) {
	h, f := newHandlerFixture(t)
	f.svc.genCode = func() (string, error) { return "271828", nil }

	rec := postJSON(t, h.RequestWithCode, "/api/public/bookings/request", f.publicRequest(f.now.Add(time.Hour)))
	require.Equal(t, http.StatusCreated, rec.Code)
	var created struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))

	rec = postJSON(t, h.Resend, "/api/public/bookings/resend", resendRequest{BookingID: created.ID})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, f.mailer.codes, 2)
}

func clinicRequest(method, target string, clinicID uuid.UUID, body []byte) *http.Request {
	var req *http.Request
	if body != nil {
		req = httptest.NewRequest(method, target, bytes.NewReader(body))
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	ctx := sessions.WithPrincipal(req.Context(), sessions.Principal{
		Subject:  clinicID.String(),
		Role:     sessions.RoleClinic,
		ClinicID: clinicID.String(),
	})
	return req.WithContext(ctx)
}

func withURLParam(req *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}

func TestCancelEndpoint(t *testing.T) {
	h, f := newHandlerFixture(t)

	booking, err := f.svc.CreatePublic(context.Background(), f.publicRequest(f.now.Add(time.Hour)))
	require.NoError(t, err)

	req := clinicRequest(http.MethodDelete, "/api/clinic/bookings/"+booking.ID.String(), f.clinicID, nil)
	req = withURLParam(req, "id", booking.ID.String())
	rec := httptest.NewRecorder()
	h.Cancel(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	_, err = f.repo.GetBooking(context.Background(), booking.ID)
	assert.ErrorIs(t, err, ErrBookingNotFound)
}

func TestCancelForeignBookingForbidden(t *testing.T) {
	h, f := newHandlerFixture(t)

	booking, err := f.svc.CreatePublic(context.Background(), f.publicRequest(f.now.Add(time.Hour)))
	require.NoError(t, err)

	req := clinicRequest(http.MethodDelete, "/api/clinic/bookings/"+booking.ID.String(), uuid.New(), nil)
	req = withURLParam(req, "id", booking.ID.String())
	rec := httptest.NewRecorder()
	h.Cancel(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestCancelRequiresClinicSession(t *testing.T) {
	h, f := newHandlerFixture(t)

	booking, err := f.svc.CreatePublic(context.Background(), f.publicRequest(f.now.Add(time.Hour)))
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodDelete, "/api/clinic/bookings/"+booking.ID.String(), nil)
	req = withURLParam(req, "id", booking.ID.String())
	rec := httptest.NewRecorder()
	h.Cancel(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestSlotEndpoints(t *testing.T) {
	h, f := newHandlerFixture(t)

	body, _ := json.Marshal(CreateSlotRequest{
		StartTime: f.now.Add(time.Hour).Format(time.RFC3339),
		EndTime:   f.now.Add(90 * time.Minute).Format(time.RFC3339),
	})
	req := clinicRequest(http.MethodPost, "/api/clinic/slots", f.clinicID, body)
	rec := httptest.NewRecorder()
	h.CreateSlot(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var slot Slot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &slot))
	assert.Equal(t, DefaultMaxBookings, slot.MaxBookings)

	req = clinicRequest(http.MethodGet, "/api/clinic/slots", f.clinicID, nil)
	rec = httptest.NewRecorder()
	h.ListSlots(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	var slots []Slot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &slots))
	require.Len(t, slots, 1)

	req = clinicRequest(http.MethodDelete, "/api/clinic/slots/"+slot.ID.String(), f.clinicID, nil)
	req = withURLParam(req, "id", slot.ID.String())
	rec = httptest.NewRecorder()
	h.DeleteSlot(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestCreateAuthenticatedEndpoint(t *testing.T) {
	h, f := newHandlerFixture(t)
	userID := uuid.New()
	start := f.now.Add(time.Hour)

	body, _ := json.Marshal(AuthenticatedBookingRequest{
		ClinicID:      f.clinicID.String(),
		StartTime:     start.Format(time.RFC3339),
		EndTime:       start.Add(30 * time.Minute).Format(time.RFC3339),
		CustomerName:  "Jane Doe",
		CustomerPhone: "+15550001111",
		CustomerEmail: "jane@example.com",
	})
	req := httptest.NewRequest(http.MethodPost, "/api/bookings", bytes.NewReader(body))
	ctx := sessions.WithPrincipal(req.Context(), sessions.Principal{
		Subject: userID.String(),
		Role:    sessions.RolePatient,
	})
	rec := httptest.NewRecorder()
	h.CreateAuthenticated(rec, req.WithContext(ctx))

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Len(t, f.notifier.notified, 1)
}

func TestListMineRequiresSession(t *testing.T) {
	h, _ := newHandlerFixture(t)
	rec := httptest.NewRecorder()
	h.ListMine(rec, httptest.NewRequest(http.MethodGet, "/api/bookings", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestErrorResponsesAreMessageShaped(t *testing.T) {
	h, f := newHandlerFixture(t)
	req := f.publicRequest(f.now.Add(time.Hour))
	req.ClinicID = uuid.New().String()

	rec := postJSON(t, h.CreatePublic, "/api/public/bookings", req)
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "clinic not found", decodeMessage(t, rec))
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
}
