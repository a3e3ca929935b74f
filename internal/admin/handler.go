package admin

import (
	"crypto/subtle"
	"database/sql"
	"encoding/json"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/careslot/careslot/pkg/logging"
)

// Handler serves platform admin endpoints: login and aggregate stats.
type Handler struct {
	db       *sql.DB
	username string
	password string
	secret   string
	tokenTTL time.Duration
	logger   *logging.Logger
}

// Config holds the admin credential pair and JWT signing secret.
type Config struct {
	Username  string
	Password  string
	JWTSecret string
	TokenTTL  time.Duration
}

// NewHandler creates the admin handler. db may be nil; Stats then reports
// that no database is configured.
func NewHandler(db *sql.DB, cfg Config, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = time.Hour
	}
	return &Handler{
		db:       db,
		username: cfg.Username,
		password: cfg.Password,
		secret:   cfg.JWTSecret,
		tokenTTL: cfg.TokenTTL,
		logger:   logger,
	}
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Login handles POST /api/admin/login, exchanging the configured credential
// pair for a short-lived HMAC JWT.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	if h.username == "" || h.password == "" || h.secret == "" {
		writeMessage(w, http.StatusServiceUnavailable, "admin login not configured")
		return
	}

	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid request body")
		return
	}

	userOK := subtle.ConstantTimeCompare([]byte(req.Username), []byte(h.username)) == 1
	passOK := subtle.ConstantTimeCompare([]byte(req.Password), []byte(h.password)) == 1
	if !userOK || !passOK {
		writeMessage(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   req.Username,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(h.tokenTTL)),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(h.secret))
	if err != nil {
		h.logger.Error("admin token signing failed", "error", err)
		writeMessage(w, http.StatusInternalServerError, "internal server error")
		return
	}

	h.logger.Info("admin logged in", "username", req.Username)
	writeJSON(w, http.StatusOK, map[string]any{
		"token":     token,
		"expiresAt": claims.ExpiresAt.Time,
	})
}

// StatsResponse is the platform-wide counters payload.
type StatsResponse struct {
	Clinics       int `json:"clinics"`
	ActiveClinics int `json:"activeClinics"`
	Users         int `json:"users"`
	Bookings      int `json:"bookings"`
	BookingsToday int `json:"bookingsToday"`
}

// Stats handles GET /api/admin/stats.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	if h.db == nil {
		writeMessage(w, http.StatusServiceUnavailable, "stats require a database")
		return
	}

	var out StatsResponse
	err := h.db.QueryRowContext(r.Context(), `
		SELECT
			(SELECT COUNT(*) FROM clinics),
			(SELECT COUNT(*) FROM clinics WHERE archived = FALSE),
			(SELECT COUNT(*) FROM users),
			(SELECT COUNT(*) FROM bookings),
			(SELECT COUNT(*) FROM bookings WHERE created_at >= date_trunc('day', NOW()))
	`).Scan(&out.Clinics, &out.ActiveClinics, &out.Users, &out.Bookings, &out.BookingsToday)
	if err != nil {
		h.logger.Error("stats query failed", "error", err)
		writeMessage(w, http.StatusInternalServerError, "failed to load stats")
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeMessage(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"message": msg})
}
