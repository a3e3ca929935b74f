package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/careslot/careslot/internal/admin"
	"github.com/careslot/careslot/internal/auth/sessions"
	"github.com/careslot/careslot/internal/bookings"
	"github.com/careslot/careslot/internal/clinics"
	httpmiddleware "github.com/careslot/careslot/internal/http/middleware"
	"github.com/careslot/careslot/internal/notifications"
	"github.com/careslot/careslot/internal/observability/metrics"
	"github.com/careslot/careslot/internal/users"
	"github.com/careslot/careslot/pkg/logging"
)

// Config holds router configuration
type Config struct {
	Logger *logging.Logger

	BookingHandler      *bookings.Handler
	ClinicAdminHandler  *clinics.AdminHandler
	ClinicAuthHandler   *clinics.AuthHandler
	UserHandler         *users.Handler
	NotificationHandler *notifications.Handler
	AdminHandler        *admin.Handler

	SessionStore   *sessions.Store
	MetricsHandler http.Handler
	Metrics        *metrics.BookingMetrics

	AdminJWTSecret string
	OIDCIssuer     string
	OIDCClientID   string

	CORSAllowedOrigins []string
	RateLimitPerSec    float64
	RateLimitBurst     int
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
	}
	if cfg.Logger != nil {
		r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	}
	if cfg.Metrics != nil {
		r.Use(httpmiddleware.Metrics(cfg.Metrics))
	}
	if cfg.RateLimitPerSec > 0 {
		r.Use(httpmiddleware.RateLimit(cfg.RateLimitPerSec, cfg.RateLimitBurst))
	}

	adminAuth := httpmiddleware.AdminAuth(cfg.AdminJWTSecret, httpmiddleware.OIDCConfig{
		Issuer:   cfg.OIDCIssuer,
		ClientID: cfg.OIDCClientID,
	})

	// Public endpoints
	r.Group(func(public chi.Router) {
		public.Get("/health", healthCheck)
		if cfg.MetricsHandler != nil {
			public.Handle("/metrics", cfg.MetricsHandler)
		}

		public.Route("/api/public", func(p chi.Router) {
			p.Get("/clinics", cfg.ClinicAdminHandler.ListPublicClinics)
			p.Post("/bookings", cfg.BookingHandler.CreatePublic)
			p.Post("/bookings/request", cfg.BookingHandler.RequestWithCode)
			p.Post("/bookings/verify", cfg.BookingHandler.Verify)
			p.Post("/bookings/resend", cfg.BookingHandler.Resend)
		})

		public.Post("/api/register", cfg.UserHandler.Register)
		public.Post("/api/login", cfg.UserHandler.Login)
		public.Post("/api/clinic/login", cfg.ClinicAuthHandler.Login)
		public.Post("/api/admin/login", cfg.AdminHandler.Login)
	})

	// Clinic operator endpoints
	r.Group(func(c chi.Router) {
		c.Use(httpmiddleware.RequireClinicSession(cfg.SessionStore))
		c.Get("/api/clinic/me", cfg.ClinicAuthHandler.Me)
		c.Post("/api/clinic/password", cfg.ClinicAuthHandler.ChangePassword)
		c.Post("/api/clinic/logout", cfg.ClinicAuthHandler.Logout)

		c.Get("/api/clinic/bookings", cfg.BookingHandler.ListClinic)
		c.Delete("/api/clinic/bookings/{id}", cfg.BookingHandler.Cancel)

		c.Post("/api/clinic/slots", cfg.BookingHandler.CreateSlot)
		c.Get("/api/clinic/slots", cfg.BookingHandler.ListSlots)
		c.Delete("/api/clinic/slots/{id}", cfg.BookingHandler.DeleteSlot)
	})

	// Signed-in user endpoints
	r.Group(func(u chi.Router) {
		u.Use(httpmiddleware.RequireSession(cfg.SessionStore,
			sessions.RolePatient, sessions.RoleOwner, sessions.RoleSuperuser))
		u.Post("/api/bookings", cfg.BookingHandler.CreateAuthenticated)
		u.Get("/api/bookings", cfg.BookingHandler.ListMine)
		u.Get("/api/notifications", cfg.NotificationHandler.List)
		u.Post("/api/notifications/{id}/read", cfg.NotificationHandler.MarkRead)
		u.Get("/api/me", cfg.UserHandler.Me)
		u.Post("/api/logout", cfg.UserHandler.Logout)
	})

	// Platform admin endpoints
	r.Group(func(a chi.Router) {
		a.Use(adminAuth)
		a.Post("/api/admin/clinics", cfg.ClinicAdminHandler.CreateClinic)
		a.Get("/api/admin/clinics", cfg.ClinicAdminHandler.ListClinics)
		a.Get("/api/admin/clinics/{clinicID}", cfg.ClinicAdminHandler.GetClinic)
		a.Put("/api/admin/clinics/{clinicID}", cfg.ClinicAdminHandler.UpdateClinic)
		a.Post("/api/admin/clinics/{clinicID}/archive", cfg.ClinicAdminHandler.ArchiveClinic)
		a.Post("/api/admin/clinics/{clinicID}/unarchive", cfg.ClinicAdminHandler.UnarchiveClinic)
		a.Get("/api/admin/stats", cfg.AdminHandler.Stats)
	})

	return r
}

func healthCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}
