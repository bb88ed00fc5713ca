package app

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"regexp"
	"strings"
	"testing"

	"sigrafilm/internal/config"
	"sigrafilm/internal/models"
	"sigrafilm/internal/services"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testEnv struct {
	app *App
	srv *httptest.Server
}

func newTestEnv(t *testing.T, mutate func(*config.Config)) *testEnv {
	t.Helper()
	cfg := &config.Config{
		DataDir:        t.TempDir(),
		SessionSecret:  "test-secret-test-secret-test-sec",
		SessionMaxAge:  3600,
		LogLevel:       "error",
		AdminUser:      "admin",
		AdminPassword:  "admin-pass",
		UserOrder:      "id_asc",
		IssueListLimit: 200,
	}
	if mutate != nil {
		mutate(cfg)
	}

	a, err := New(cfg)
	require.NoError(t, err)
	srv := httptest.NewServer(a.Router)
	t.Cleanup(func() {
		srv.Close()
		a.Close()
	})
	return &testEnv{app: a, srv: srv}
}

// client returns a browser-like client that keeps cookies but reports
// redirects instead of following them.
func (e *testEnv) client(t *testing.T) *http.Client {
	t.Helper()
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	return &http.Client{
		Jar: jar,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

func (e *testEnv) get(t *testing.T, c *http.Client, path string) (*http.Response, string) {
	t.Helper()
	resp, err := c.Get(e.srv.URL + path)
	require.NoError(t, err)
	return resp, readBody(t, resp)
}

func (e *testEnv) post(t *testing.T, c *http.Client, path string, form url.Values) (*http.Response, string) {
	t.Helper()
	resp, err := c.PostForm(e.srv.URL+path, form)
	require.NoError(t, err)
	return resp, readBody(t, resp)
}

func (e *testEnv) login(t *testing.T, username, password string) *http.Client {
	t.Helper()
	c := e.client(t)
	resp, _ := e.post(t, c, "/login", url.Values{"username": {username}, "password": {password}})
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	require.Equal(t, "/", resp.Header.Get("Location"))
	return c
}

var csrfPattern = regexp.MustCompile(`name="csrf_token" value="([0-9a-f]+)"`)

func (e *testEnv) csrf(t *testing.T, c *http.Client) string {
	t.Helper()
	_, body := e.get(t, c, "/")
	m := csrfPattern.FindStringSubmatch(body)
	require.NotNil(t, m, "no csrf token on dashboard")
	return m[1]
}

func (e *testEnv) mustUser(t *testing.T, name string, role models.Role) models.Identity {
	t.Helper()
	u, err := e.app.Users.Create(context.Background(), name, "password123", role)
	require.NoError(t, err)
	return u.Identity()
}

func (e *testEnv) userCount(t *testing.T) int {
	t.Helper()
	n, err := e.app.Users.Count(context.Background())
	require.NoError(t, err)
	return n
}

func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(b)
}

func TestUnauthenticatedRedirectsToLogin(t *testing.T) {
	e := newTestEnv(t, nil)
	c := e.client(t)

	resp, _ := e.get(t, c, "/export.csv?status=Aperto")
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, "/login?next="+url.QueryEscape("/export.csv?status=Aperto"), resp.Header.Get("Location"))

	resp, _ = e.get(t, c, "/")
	assert.Equal(t, "/login", resp.Header.Get("Location"))

	resp, _ = e.get(t, c, "/login")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestFixedAdminFirstLoginCreatesRow(t *testing.T) {
	e := newTestEnv(t, nil)
	require.Equal(t, 0, e.userCount(t))

	c := e.login(t, "admin", "admin-pass")
	assert.Equal(t, 1, e.userCount(t))

	_, body := e.get(t, c, "/")
	assert.Contains(t, body, "Welcome, admin!")
	assert.Contains(t, body, `href="/admin/users"`)

	e.login(t, "admin", "admin-pass")
	assert.Equal(t, 1, e.userCount(t))
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	e := newTestEnv(t, nil)
	e.mustUser(t, "alice", models.RoleUser)
	c := e.client(t)

	resp, body := e.post(t, c, "/login", url.Values{"username": {"alice"}, "password": {"wrong-password"}})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "Invalid username or password")

	resp, _ = e.post(t, c, "/login", url.Values{"username": {"admin"}, "password": {"not-the-admin"}})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 1, e.userCount(t))
}

func TestLoginFollowsOnlyLocalNext(t *testing.T) {
	e := newTestEnv(t, nil)
	e.mustUser(t, "alice", models.RoleUser)

	for next, want := range map[string]string{
		"/account":          "/account",
		"//evil.example":    "/",
		"https://evil.test": "/",
	} {
		c := e.client(t)
		resp, _ := e.post(t, c, "/login", url.Values{
			"username": {"alice"}, "password": {"password123"}, "next": {next},
		})
		assert.Equal(t, want, resp.Header.Get("Location"), next)
	}
}

func TestLogoutClearsSession(t *testing.T) {
	e := newTestEnv(t, nil)
	e.mustUser(t, "alice", models.RoleUser)
	c := e.login(t, "alice", "password123")

	resp, _ := e.get(t, c, "/logout")
	assert.Equal(t, "/login", resp.Header.Get("Location"))

	resp, _ = e.get(t, c, "/account")
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)

	// Logging out without a session is harmless.
	resp, _ = e.post(t, e.client(t), "/logout", nil)
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
}

func TestAdminPagesForbiddenForUsers(t *testing.T) {
	e := newTestEnv(t, nil)
	e.mustUser(t, "alice", models.RoleUser)
	c := e.login(t, "alice", "password123")

	for _, path := range []string{"/admin/users", "/users"} {
		resp, _ := e.get(t, c, path)
		assert.Equal(t, http.StatusForbidden, resp.StatusCode, path)
	}
	resp, _ := e.post(t, c, "/admin/users", url.Values{"username": {"mallory"}, "password": {"password123"}, "role": {"admin"}})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, 1, e.userCount(t))
}

func TestVisibilityAcrossUsers(t *testing.T) {
	e := newTestEnv(t, nil)
	e.mustUser(t, "alice", models.RoleUser)
	e.mustUser(t, "bob", models.RoleUser)
	alice := e.login(t, "alice", "password123")
	bob := e.login(t, "bob", "password123")

	resp, _ := e.post(t, alice, "/dashboard", url.Values{"room": {"Sala-Alice"}, "kind": {"Proiettore"}, "urgency": {"Urgente"}})
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	resp, _ = e.post(t, bob, "/", url.Values{"room": {"Sala-Bob"}, "kind": {"Audio"}})
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)

	_, body := e.get(t, alice, "/")
	assert.Contains(t, body, "Sala-Alice")
	assert.NotContains(t, body, "Sala-Bob")

	issues, err := e.app.Issues.List(context.Background(), models.Identity{Role: models.RoleAdmin}, models.IssueFilter{})
	require.NoError(t, err)
	require.Len(t, issues, 2)
	var bobIssue models.Issue
	for _, is := range issues {
		if is.AuthorUsername == "bob" {
			bobIssue = is
		}
	}

	resp, _ = e.get(t, alice, fmt.Sprintf("/issues/%d/edit", bobIssue.ID))
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	resp, _ = e.post(t, alice, fmt.Sprintf("/problems/%d/edit", bobIssue.ID), url.Values{"status": {"Chiuso"}})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	admin := e.login(t, "admin", "admin-pass")
	_, body = e.get(t, admin, "/dashboard")
	assert.Contains(t, body, "Sala-Alice")
	assert.Contains(t, body, "Sala-Bob")
}

func TestCreateIssueValidation(t *testing.T) {
	e := newTestEnv(t, nil)
	e.mustUser(t, "alice", models.RoleUser)
	c := e.login(t, "alice", "password123")

	resp, _ := e.post(t, c, "/dashboard", url.Values{"room": {"Sala 1"}, "kind": {""}})
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
	_, body := e.get(t, c, "/")
	assert.Contains(t, body, "alert-warning")
	assert.Contains(t, body, "No tickets.")

	resp, _ = e.post(t, c, "/dashboard", url.Values{"room": {"Sala 1"}, "kind": {"Luci"}, "opened_at": {"yesterday"}})
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
	_, body = e.get(t, c, "/")
	assert.Contains(t, body, "Invalid opening date")
	assert.Contains(t, body, "Luci")
}

func TestUpdateIssue(t *testing.T) {
	e := newTestEnv(t, nil)
	alice := e.mustUser(t, "alice", models.RoleUser)
	issue, err := e.app.Issues.Create(context.Background(), alice, models.IssueInput{Room: "Sala 2", Kind: "Schermo"})
	require.NoError(t, err)
	c := e.login(t, "alice", "password123")

	resp, body := e.get(t, c, fmt.Sprintf("/issue/%d/edit", issue.ID))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "Schermo")

	resp, _ = e.post(t, c, fmt.Sprintf("/issues/%d/edit", issue.ID), url.Values{
		"status": {"In corso"}, "description": {"lampada bruciata"},
	})
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)

	got, err := e.app.Issues.Get(context.Background(), alice, issue.ID)
	require.NoError(t, err)
	assert.Equal(t, models.Status("In corso"), got.Status)
	assert.Equal(t, "lampada bruciata", got.Description)
	assert.Equal(t, "Schermo", got.Kind)
	assert.NotNil(t, got.UpdatedAt)

	resp, _ = e.post(t, c, fmt.Sprintf("/issues/%d/edit", issue.ID), url.Values{"status": {"Riaperto"}})
	assert.Equal(t, fmt.Sprintf("/issues/%d/edit", issue.ID), resp.Header.Get("Location"))

	resp, _ = e.get(t, c, "/issues/99999/edit")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestDeleteRequiresCSRF(t *testing.T) {
	e := newTestEnv(t, nil)
	alice := e.mustUser(t, "alice", models.RoleUser)
	issue, err := e.app.Issues.Create(context.Background(), alice, models.IssueInput{Room: "Sala 3", Kind: "Porta"})
	require.NoError(t, err)
	c := e.login(t, "alice", "password123")

	path := fmt.Sprintf("/issues/%d/delete", issue.ID)
	resp, _ := e.post(t, c, path, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp, _ = e.post(t, c, path, url.Values{"csrf_token": {"deadbeef"}})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	_, err = e.app.Issues.Get(context.Background(), alice, issue.ID)
	require.NoError(t, err)

	resp, _ = e.post(t, c, path, url.Values{"csrf_token": {e.csrf(t, c)}})
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)

	_, err = e.app.Issues.Get(context.Background(), alice, issue.ID)
	assert.ErrorIs(t, err, services.ErrIssueNotFound)
}

func TestBulkDeleteAdminOnly(t *testing.T) {
	e := newTestEnv(t, nil)
	alice := e.mustUser(t, "alice", models.RoleUser)
	ctx := context.Background()
	var ids []string
	for i := 0; i < 3; i++ {
		is, err := e.app.Issues.Create(ctx, alice, models.IssueInput{Room: fmt.Sprintf("Sala %d", i), Kind: "Varie"})
		require.NoError(t, err)
		ids = append(ids, fmt.Sprint(is.ID))
	}

	user := e.login(t, "alice", "password123")
	resp, _ := e.post(t, user, "/issues/bulk-delete", url.Values{"ids": ids, "csrf_token": {e.csrf(t, user)}})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	admin := e.login(t, "admin", "admin-pass")
	resp, _ = e.post(t, admin, "/issues/bulk-delete", url.Values{"ids": ids[:2], "csrf_token": {e.csrf(t, admin)}})
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)

	left, err := e.app.Issues.List(ctx, alice, models.IssueFilter{})
	require.NoError(t, err)
	require.Len(t, left, 1)
	assert.Equal(t, ids[2], fmt.Sprint(left[0].ID))
}

func TestExportCSV(t *testing.T) {
	e := newTestEnv(t, nil)
	alice := e.mustUser(t, "alice", models.RoleUser)
	bob := e.mustUser(t, "bob", models.RoleUser)
	ctx := context.Background()
	_, err := e.app.Issues.Create(ctx, alice, models.IssueInput{Room: "Sala A", Cinema: "Odeon", Kind: "Audio"})
	require.NoError(t, err)
	_, err = e.app.Issues.Create(ctx, alice, models.IssueInput{Room: "Sala B", Cinema: "Lux", Kind: "Audio"})
	require.NoError(t, err)
	_, err = e.app.Issues.Create(ctx, bob, models.IssueInput{Room: "Sala C", Cinema: "Odeon", Kind: "Audio"})
	require.NoError(t, err)

	c := e.login(t, "alice", "password123")
	resp, body := e.get(t, c, "/export.csv?cinema=odeon")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/csv; charset=utf-8", resp.Header.Get("Content-Type"))
	assert.Regexp(t, `attachment; filename="sigrafilm_issues_\d{8}_\d{6}\.csv"`, resp.Header.Get("Content-Disposition"))

	records, err := csv.NewReader(strings.NewReader(body)).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, services.ExportColumns, records[0])
	assert.Equal(t, "Sala A", records[1][1])
	assert.Equal(t, "alice", records[1][7])
}

func TestUserAdministration(t *testing.T) {
	e := newTestEnv(t, nil)
	admin := e.login(t, "admin", "admin-pass")
	ctx := context.Background()

	resp, _ := e.post(t, admin, "/admin/users", url.Values{"username": {"carol"}, "password": {"password123"}, "role": {"superuser"}})
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
	carol, err := e.app.Users.GetByUsername(ctx, "carol")
	require.NoError(t, err)
	assert.Equal(t, models.RoleUser, carol.Role)

	resp, _ = e.post(t, admin, "/admin/users", url.Values{"username": {"carol"}, "password": {"password123"}})
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
	_, body := e.get(t, admin, "/admin/users")
	assert.Contains(t, body, "Username already exists")

	resp, _ = e.post(t, admin, fmt.Sprintf("/users/%d/role", carol.ID), url.Values{"role": {"admin"}})
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
	resp, _ = e.post(t, admin, fmt.Sprintf("/admin/users/%d/reset", carol.ID), url.Values{"password": {"brand-new-pw"}})
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
	carol, err = e.app.Users.GetByUsername(ctx, "carol")
	require.NoError(t, err)
	assert.Equal(t, models.RoleAdmin, carol.Role)
	_, err = e.app.Users.Authenticate(ctx, "carol", "brand-new-pw")
	assert.NoError(t, err)

	self, err := e.app.Users.GetByUsername(ctx, "admin")
	require.NoError(t, err)
	resp, _ = e.post(t, admin, fmt.Sprintf("/users/%d/delete", self.ID), url.Values{"csrf_token": {e.csrf(t, admin)}})
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
	_, body = e.get(t, admin, "/users")
	assert.Contains(t, body, "You cannot delete your own account")

	resp, _ = e.post(t, admin, fmt.Sprintf("/users/%d/delete", carol.ID), url.Values{"csrf_token": {e.csrf(t, admin)}})
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, 1, e.userCount(t))
}

func TestDeletedUserLosesSession(t *testing.T) {
	e := newTestEnv(t, nil)
	alice := e.mustUser(t, "alice", models.RoleUser)
	c := e.login(t, "alice", "password123")

	require.NoError(t, e.app.Users.Delete(context.Background(), 0, alice.ID))

	resp, _ := e.get(t, c, "/account")
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.True(t, strings.HasPrefix(resp.Header.Get("Location"), "/login"))
}

func TestChangePassword(t *testing.T) {
	e := newTestEnv(t, nil)
	e.mustUser(t, "alice", models.RoleUser)
	c := e.login(t, "alice", "password123")

	e.post(t, c, "/account/password", url.Values{
		"current_password": {"wrong"}, "new_password": {"newpassword1"}, "confirm_password": {"newpassword1"},
	})
	_, body := e.get(t, c, "/account")
	assert.Contains(t, body, "Current password is incorrect")

	resp, _ := e.post(t, c, "/account/password", url.Values{
		"current_password": {"password123"}, "new_password": {"newpassword1"}, "confirm_password": {"newpassword1"},
	})
	assert.Equal(t, "/account", resp.Header.Get("Location"))

	_, err := e.app.Users.Authenticate(context.Background(), "alice", "newpassword1")
	assert.NoError(t, err)
}

func TestLockedFixedAdmin(t *testing.T) {
	e := newTestEnv(t, func(c *config.Config) { c.AdminLock = true })
	admin := e.login(t, "admin", "admin-pass")

	self, err := e.app.Users.GetByUsername(context.Background(), "admin")
	require.NoError(t, err)
	resp, _ := e.post(t, admin, fmt.Sprintf("/users/%d/reset", self.ID), url.Values{"password": {"another-pass"}})
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
	_, body := e.get(t, admin, "/admin/users")
	assert.Contains(t, body, "managed outside the panel")

	_, err = e.app.Users.Authenticate(context.Background(), "admin", "admin-pass")
	assert.NoError(t, err)
}

func TestInitAdmin(t *testing.T) {
	disabled := newTestEnv(t, nil)
	resp, _ := disabled.get(t, disabled.client(t), "/init-admin")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, 0, disabled.userCount(t))

	enabled := newTestEnv(t, func(c *config.Config) { c.InitAdminEnabled = true })
	resp, _ = enabled.get(t, enabled.client(t), "/init-admin")
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, "/login", resp.Header.Get("Location"))
	assert.Equal(t, 1, enabled.userCount(t))
}

func TestHealthz(t *testing.T) {
	e := newTestEnv(t, nil)
	e.mustUser(t, "alice", models.RoleUser)

	resp, body := e.get(t, e.client(t), "/healthz")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	var got struct {
		Status  string `json:"status"`
		Dialect string `json:"dialect"`
		Users   int    `json:"users"`
	}
	require.NoError(t, json.Unmarshal([]byte(body), &got))
	assert.Equal(t, "ok", got.Status)
	assert.Equal(t, "sqlite3", got.Dialect)
	assert.Equal(t, 1, got.Users)
}

func TestOverlongPasswordIsANotice(t *testing.T) {
	e := newTestEnv(t, nil)
	admin := e.login(t, "admin", "admin-pass")

	resp, _ := e.post(t, admin, "/admin/users", url.Values{"username": {"carol"}, "password": {strings.Repeat("p", 80)}})
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, "/admin/users", resp.Header.Get("Location"))
	_, body := e.get(t, admin, "/admin/users")
	assert.Contains(t, body, "Password must be at most 72 bytes")
	assert.Equal(t, 1, e.userCount(t))

	e.mustUser(t, "alice", models.RoleUser)
	c := e.login(t, "alice", "password123")
	long := strings.Repeat("n", 73)
	resp, _ = e.post(t, c, "/account/password", url.Values{
		"current_password": {"password123"}, "new_password": {long}, "confirm_password": {long},
	})
	assert.Equal(t, "/account", resp.Header.Get("Location"))
	_, body = e.get(t, c, "/account")
	assert.Contains(t, body, "Password must be at most 72 bytes")

	_, err := e.app.Users.Authenticate(context.Background(), "alice", "password123")
	assert.NoError(t, err)
}
