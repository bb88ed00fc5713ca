package handlers

import (
	"net/http"
	"strings"

	"sigrafilm/internal/auth"
	"sigrafilm/internal/logger"
)

type AuthHandler struct {
	*Renderer
	userService      *auth.UserService
	initAdminEnabled bool
}

func NewAuthHandler(renderer *Renderer, userService *auth.UserService, initAdminEnabled bool) *AuthHandler {
	return &AuthHandler{
		Renderer:         renderer,
		userService:      userService,
		initAdminEnabled: initAdminEnabled,
	}
}

func (h *AuthHandler) LoginPage(w http.ResponseWriter, r *http.Request) {
	// If already logged in, redirect to dashboard
	if _, ok := h.sessions.Identity(r); ok {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}

	h.render(w, r, "login.html", map[string]interface{}{
		"Title": "Login",
		"Next":  safeNext(r.URL.Query().Get("next")),
	})
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.renderLoginError(w, r, "", "Invalid form data")
		return
	}

	username := strings.TrimSpace(r.FormValue("username"))
	password := r.FormValue("password")
	next := safeNext(r.FormValue("next"))

	if username == "" || password == "" {
		h.renderLoginError(w, r, username, "Username and password are required")
		return
	}

	// The fixed admin row is created on its first sign-in.
	if err := h.userService.EnsureFixedAdminForLogin(r.Context(), username, password); err != nil {
		logger.Errorf("fixed admin reconciliation failed: %v", err)
	}

	user, err := h.userService.Authenticate(r.Context(), username, password)
	if err != nil {
		h.userService.LogAction(r.Context(), nil, "login_failed", "Username: "+username, getClientIP(r))
		h.renderLoginError(w, r, username, "Invalid username or password")
		return
	}

	if err := h.sessions.SetIdentity(w, r, user.Identity()); err != nil {
		logger.Errorf("Session error: %v", err)
		h.renderLoginError(w, r, username, "Failed to create session")
		return
	}

	h.userService.LogAction(r.Context(), &user.ID, "login_success", "", getClientIP(r))
	h.redirectWith(w, r, next, "success", "Welcome, "+user.Username+"!")
}

// Logout clears the session whether or not one exists.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if id, ok := h.sessions.Identity(r); ok {
		h.userService.LogAction(r.Context(), &id.ID, "logout", "", getClientIP(r))
	}

	if err := h.sessions.Clear(w, r); err != nil {
		logger.Warningf("failed to clear session: %v", err)
	}

	http.Redirect(w, r, "/login", http.StatusSeeOther)
}

// InitAdmin creates or resets the fixed admin. It only exists when
// explicitly enabled.
func (h *AuthHandler) InitAdmin(w http.ResponseWriter, r *http.Request) {
	if !h.initAdminEnabled {
		http.NotFound(w, r)
		return
	}

	created, err := h.userService.ReconcileFixedAdmin(r.Context(), true)
	if err != nil {
		logger.Errorf("init-admin failed: %v", err)
		h.redirectWith(w, r, "/login", "danger", "Admin could not be initialised")
		return
	}

	h.userService.LogAction(r.Context(), nil, "init_admin", "Username: "+h.userService.FixedAdmin().Username, getClientIP(r))
	message := "Admin credential restored"
	if created {
		message = "Admin '" + h.userService.FixedAdmin().Username + "' created"
	}
	h.redirectWith(w, r, "/login", "success", message)
}

func (h *AuthHandler) renderLoginError(w http.ResponseWriter, r *http.Request, username, message string) {
	h.render(w, r, "login.html", map[string]interface{}{
		"Title":    "Login",
		"Error":    message,
		"Username": username,
		"Next":     safeNext(r.FormValue("next")),
	})
}

// safeNext only lets local paths through so the login form cannot be used
// as an open redirect.
func safeNext(next string) string {
	if !strings.HasPrefix(next, "/") || strings.HasPrefix(next, "//") || strings.HasPrefix(next, "/\\") {
		return "/"
	}
	return next
}
