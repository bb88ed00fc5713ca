package handlers

import (
	"bytes"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"sigrafilm/internal/apperr"
	"sigrafilm/internal/auth"
	"sigrafilm/internal/logger"
	"sigrafilm/internal/middleware"

	"github.com/go-chi/chi/v5"
)

// TemplateExecutor is an interface for template execution
// This allows both *template.Template and custom template registries to be used
type TemplateExecutor interface {
	ExecuteTemplate(wr io.Writer, name string, data interface{}) error
}

// Renderer renders pages with the data every page shares: the caller,
// pending flashes and the CSRF token.
type Renderer struct {
	templates TemplateExecutor
	sessions  *auth.SessionManager
}

func NewRenderer(templates TemplateExecutor, sessions *auth.SessionManager) *Renderer {
	return &Renderer{templates: templates, sessions: sessions}
}

func (rd *Renderer) render(w http.ResponseWriter, r *http.Request, name string, data map[string]interface{}) {
	if data == nil {
		data = map[string]interface{}{}
	}
	if id, ok := middleware.GetIdentity(r); ok {
		data["User"] = &id
	}
	data["Flashes"] = rd.sessions.Flashes(w, r)
	token, err := rd.sessions.CSRFToken(w, r)
	if err != nil {
		logger.Errorf("csrf token: %v", err)
	}
	data["CSRFToken"] = token

	var buf bytes.Buffer
	if err := rd.templates.ExecuteTemplate(&buf, name, data); err != nil {
		logger.Errorf("Template error: %v", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(buf.Bytes())
}

func (rd *Renderer) flash(w http.ResponseWriter, r *http.Request, kind, message string) {
	rd.sessions.AddFlash(w, r, kind, message)
}

// redirectWith flashes a notice and sends the browser to target.
func (rd *Renderer) redirectWith(w http.ResponseWriter, r *http.Request, target, kind, message string) {
	rd.flash(w, r, kind, message)
	http.Redirect(w, r, target, http.StatusSeeOther)
}

// fail maps a store error onto the response. Validation and conflict errors
// become a notice on the page at back; missing and forbidden resources get
// their status code.
func (rd *Renderer) fail(w http.ResponseWriter, r *http.Request, err error, back string) {
	switch {
	case errors.Is(err, apperr.ErrInvalidInput):
		rd.redirectWith(w, r, back, "warning", apperr.Message(err))
	case errors.Is(err, apperr.ErrConflict):
		rd.redirectWith(w, r, back, "danger", apperr.Message(err))
	case errors.Is(err, apperr.ErrNotFound):
		http.Error(w, "Not Found", http.StatusNotFound)
	case errors.Is(err, apperr.ErrForbidden):
		http.Error(w, "Forbidden", http.StatusForbidden)
	default:
		logger.Errorf("%s %s: %v", r.Method, r.URL.Path, err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
	}
}

func idParam(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	return id, err == nil && id > 0
}

func getClientIP(r *http.Request) string {
	// Check X-Forwarded-For header for proxy setups
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		return strings.TrimSpace(strings.Split(xff, ",")[0])
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	return r.RemoteAddr
}
