package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/careslot/careslot/internal/auth/sessions"
)

// SessionCookie is the cookie carrying the session token. Bearer headers take
// precedence when both are present.
const SessionCookie = "careslot_session"

// RequireSession resolves the session token and injects the principal into
// the request context. When roles are given, the principal must hold one of
// them.
func RequireSession(store *sessions.Store, roles ...sessions.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := sessionToken(r)
			if token == "" {
				writeMessage(w, http.StatusUnauthorized, "authentication required")
				return
			}
			p, err := store.Get(r.Context(), token)
			if err != nil {
				if errors.Is(err, sessions.ErrSessionNotFound) {
					writeMessage(w, http.StatusUnauthorized, "session expired or invalid")
					return
				}
				writeMessage(w, http.StatusInternalServerError, "internal server error")
				return
			}
			if len(roles) > 0 && !hasRole(p.Role, roles) {
				writeMessage(w, http.StatusForbidden, "insufficient permissions")
				return
			}
			next.ServeHTTP(w, r.WithContext(sessions.WithPrincipal(r.Context(), p)))
		})
	}
}

// RequireClinicSession additionally demands a clinic-scoped principal.
func RequireClinicSession(store *sessions.Store) func(http.Handler) http.Handler {
	base := RequireSession(store, sessions.RoleClinic)
	return func(next http.Handler) http.Handler {
		return base(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := sessions.PrincipalFromContext(r.Context())
			if !ok || p.ClinicID == "" {
				writeMessage(w, http.StatusUnauthorized, "clinic session required")
				return
			}
			next.ServeHTTP(w, r)
		}))
	}
}

func hasRole(role sessions.Role, allowed []sessions.Role) bool {
	for _, a := range allowed {
		if role == a {
			return true
		}
	}
	return false
}

func sessionToken(r *http.Request) string {
	if authz := r.Header.Get("Authorization"); strings.HasPrefix(authz, "Bearer ") {
		return strings.TrimPrefix(authz, "Bearer ")
	}
	if ck, err := r.Cookie(SessionCookie); err == nil {
		return ck.Value
	}
	return ""
}
