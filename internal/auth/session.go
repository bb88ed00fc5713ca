package auth

import (
	"crypto/subtle"
	"encoding/gob"
	"encoding/hex"
	"errors"
	"net/http"

	"sigrafilm/internal/models"

	"github.com/gorilla/securecookie"
	"github.com/gorilla/sessions"
)

const (
	SessionName     = "sigra-session"
	SessionUserID   = "user_id"
	SessionRole     = "role"
	SessionUsername = "username"
	SessionCSRF     = "csrf_token"

	CSRFFormField = "csrf_token"
	CSRFHeader    = "X-CSRF-Token"
)

var ErrCSRFMismatch = errors.New("csrf token missing or invalid")

// Flash is a one-shot notice shown on the next rendered page.
type Flash struct {
	Kind    string
	Message string
}

func init() {
	gob.Register(Flash{})
}

type SessionManager struct {
	store *sessions.CookieStore
}

func NewSessionManager(secret string, maxAge int, secure bool) *SessionManager {
	store := sessions.NewCookieStore([]byte(secret))
	store.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	}
	return &SessionManager{store: store}
}

// Get returns the request's session. A cookie that fails to decode yields a
// fresh session together with the decode error; callers may ignore it.
func (m *SessionManager) Get(r *http.Request) (*sessions.Session, error) {
	return m.store.Get(r, SessionName)
}

func (m *SessionManager) SetIdentity(w http.ResponseWriter, r *http.Request, id models.Identity) error {
	session, _ := m.Get(r)

	session.Values[SessionUserID] = id.ID
	session.Values[SessionRole] = string(id.Role)
	session.Values[SessionUsername] = id.Username
	// A new sign-in never inherits the previous token.
	delete(session.Values, SessionCSRF)

	return session.Save(r, w)
}

// Identity returns the identity recorded at sign-in, if any. It is not
// re-validated against the store; the auth middleware does that.
func (m *SessionManager) Identity(r *http.Request) (models.Identity, bool) {
	session, err := m.Get(r)
	if err != nil {
		return models.Identity{}, false
	}

	userID, ok := session.Values[SessionUserID].(int64)
	if !ok || userID <= 0 {
		return models.Identity{}, false
	}
	role, _ := session.Values[SessionRole].(string)
	username, _ := session.Values[SessionUsername].(string)
	return models.Identity{ID: userID, Username: username, Role: models.Role(role)}, true
}

func (m *SessionManager) Clear(w http.ResponseWriter, r *http.Request) error {
	session, _ := m.Get(r)

	session.Values = make(map[interface{}]interface{})
	session.Options.MaxAge = -1

	return session.Save(r, w)
}

func (m *SessionManager) AddFlash(w http.ResponseWriter, r *http.Request, kind, message string) {
	session, _ := m.Get(r)
	session.AddFlash(Flash{Kind: kind, Message: message})
	_ = session.Save(r, w)
}

// Flashes pops the pending notices. It must run before the response body is
// written so the updated cookie can still be sent.
func (m *SessionManager) Flashes(w http.ResponseWriter, r *http.Request) []Flash {
	session, err := m.Get(r)
	if err != nil {
		return nil
	}
	raw := session.Flashes()
	if len(raw) == 0 {
		return nil
	}
	_ = session.Save(r, w)

	flashes := make([]Flash, 0, len(raw))
	for _, v := range raw {
		if f, ok := v.(Flash); ok {
			flashes = append(flashes, f)
		}
	}
	return flashes
}

// CSRFToken returns the session's token, issuing one on first use.
func (m *SessionManager) CSRFToken(w http.ResponseWriter, r *http.Request) (string, error) {
	session, _ := m.Get(r)
	if token, ok := session.Values[SessionCSRF].(string); ok && token != "" {
		return token, nil
	}

	key := securecookie.GenerateRandomKey(32)
	if key == nil {
		return "", errors.New("failed to generate csrf token")
	}
	token := hex.EncodeToString(key)
	session.Values[SessionCSRF] = token
	if err := session.Save(r, w); err != nil {
		return "", err
	}
	return token, nil
}

// VerifyCSRF compares the submitted token (form field or header) with the
// one stored in the session.
func (m *SessionManager) VerifyCSRF(r *http.Request) error {
	session, err := m.Get(r)
	if err != nil {
		return ErrCSRFMismatch
	}
	expected, _ := session.Values[SessionCSRF].(string)

	submitted := r.Header.Get(CSRFHeader)
	if submitted == "" {
		submitted = r.PostFormValue(CSRFFormField)
	}

	if expected == "" || submitted == "" ||
		subtle.ConstantTimeCompare([]byte(expected), []byte(submitted)) != 1 {
		return ErrCSRFMismatch
	}
	return nil
}
