package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/url"

	"sigrafilm/internal/auth"
	"sigrafilm/internal/logger"
	"sigrafilm/internal/models"
)

type contextKey string

const IdentityContextKey contextKey = "identity"

type AuthMiddleware struct {
	sessions    *auth.SessionManager
	userService *auth.UserService
}

func NewAuthMiddleware(sessions *auth.SessionManager, userService *auth.UserService) *AuthMiddleware {
	return &AuthMiddleware{
		sessions:    sessions,
		userService: userService,
	}
}

// RequireAuth resolves the session to an identity and stores it in the
// request context. The user row is re-read so deleted accounts and role
// changes take effect on the next request.
func (m *AuthMiddleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sessionID, ok := m.sessions.Identity(r)
		if !ok {
			redirectToLogin(w, r)
			return
		}

		user, err := m.userService.GetByID(r.Context(), sessionID.ID)
		if err != nil {
			if !errors.Is(err, auth.ErrUserNotFound) {
				logger.Errorf("failed to resolve session user %d: %v", sessionID.ID, err)
				http.Error(w, "Internal Server Error", http.StatusInternalServerError)
				return
			}
			m.sessions.Clear(w, r)
			redirectToLogin(w, r)
			return
		}

		ctx := context.WithValue(r.Context(), IdentityContextKey, user.Identity())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (m *AuthMiddleware) RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := GetIdentity(r)
		if !ok || !id.IsAdmin() {
			http.Error(w, "Forbidden", http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireCSRF guards destructive requests with the session's CSRF token.
func (m *AuthMiddleware) RequireCSRF(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := m.sessions.VerifyCSRF(r); err != nil {
			logger.Warningf("csrf check failed for %s %s", r.Method, r.URL.Path)
			http.Error(w, "Bad Request: invalid CSRF token", http.StatusBadRequest)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func GetIdentity(r *http.Request) (models.Identity, bool) {
	id, ok := r.Context().Value(IdentityContextKey).(models.Identity)
	return id, ok
}

// redirectToLogin sends the browser to the login page, remembering the
// page it asked for.
func redirectToLogin(w http.ResponseWriter, r *http.Request) {
	target := "/login"
	if r.Method == http.MethodGet && r.URL.RequestURI() != "/" {
		target += "?next=" + url.QueryEscape(r.URL.RequestURI())
	}
	http.Redirect(w, r, target, http.StatusSeeOther)
}
