package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"sigrafilm/internal/apperr"
	"sigrafilm/internal/auth"
	"sigrafilm/internal/logger"
	"sigrafilm/internal/middleware"
	"sigrafilm/internal/models"
)

const auditLogLimit = 50

type UsersHandler struct {
	*Renderer
	userService  *auth.UserService
	defaultOrder models.UserOrder
}

func NewUsersHandler(renderer *Renderer, userService *auth.UserService, defaultOrder models.UserOrder) *UsersHandler {
	return &UsersHandler{
		Renderer:     renderer,
		userService:  userService,
		defaultOrder: defaultOrder,
	}
}

func (h *UsersHandler) List(w http.ResponseWriter, r *http.Request) {
	order := h.defaultOrder
	if o := r.URL.Query().Get("order"); o != "" {
		order = models.UserOrder(o)
	}

	users, err := h.userService.List(r.Context(), order)
	if err != nil {
		h.fail(w, r, err, "/")
		return
	}

	logs, err := h.userService.AuditLogs(r.Context(), auditLogLimit)
	if err != nil {
		logger.Warningf("Failed to get audit logs: %v", err)
	}

	h.render(w, r, "users.html", map[string]interface{}{
		"Title":      "Users",
		"ActivePage": "users",
		"Users":      users,
		"AuditLogs":  logs,
	})
}

func (h *UsersHandler) Create(w http.ResponseWriter, r *http.Request) {
	caller, _ := middleware.GetIdentity(r)

	if err := r.ParseForm(); err != nil {
		h.redirectWith(w, r, "/admin/users", "warning", "Invalid form data")
		return
	}

	role := models.Role(strings.TrimSpace(r.PostFormValue("role")))
	if !role.Valid() {
		role = models.RoleUser
	}

	user, err := h.userService.Create(r.Context(), r.PostFormValue("username"), r.PostFormValue("password"), role)
	if err != nil {
		h.failUsers(w, r, err)
		return
	}

	h.userService.LogAction(r.Context(), &caller.ID, "user_create", "Created user: "+user.Username, getClientIP(r))
	h.redirectWith(w, r, "/admin/users", "success", "User '"+user.Username+"' created")
}

func (h *UsersHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	caller, _ := middleware.GetIdentity(r)
	id, ok := idParam(r)
	if !ok {
		http.NotFound(w, r)
		return
	}

	if err := h.userService.ResetPassword(r.Context(), id, r.PostFormValue("password")); err != nil {
		h.failUsers(w, r, err)
		return
	}

	h.userService.LogAction(r.Context(), &caller.ID, "user_reset_password", userDetail(id), getClientIP(r))
	h.redirectWith(w, r, "/admin/users", "success", "Password updated")
}

func (h *UsersHandler) SetRole(w http.ResponseWriter, r *http.Request) {
	caller, _ := middleware.GetIdentity(r)
	id, ok := idParam(r)
	if !ok {
		http.NotFound(w, r)
		return
	}

	role := models.Role(strings.TrimSpace(r.PostFormValue("role")))
	if err := h.userService.SetRole(r.Context(), caller.ID, id, role); err != nil {
		h.failUsers(w, r, err)
		return
	}

	h.userService.LogAction(r.Context(), &caller.ID, "user_set_role", userDetail(id)+" role="+string(role), getClientIP(r))
	h.redirectWith(w, r, "/admin/users", "success", "Role updated")
}

func (h *UsersHandler) Delete(w http.ResponseWriter, r *http.Request) {
	caller, _ := middleware.GetIdentity(r)
	id, ok := idParam(r)
	if !ok {
		http.NotFound(w, r)
		return
	}

	if err := h.userService.Delete(r.Context(), caller.ID, id); err != nil {
		h.failUsers(w, r, err)
		return
	}

	h.userService.LogAction(r.Context(), &caller.ID, "user_delete", userDetail(id), getClientIP(r))
	h.redirectWith(w, r, "/admin/users", "info", "User deleted")
}

// failUsers reports refusals on the user page itself. The caller already
// passed the admin gate, so a refused self-edit or locked account is a
// notice rather than a 403.
func (h *UsersHandler) failUsers(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, apperr.ErrForbidden) {
		h.redirectWith(w, r, "/admin/users", "danger", apperr.Message(err))
		return
	}
	h.fail(w, r, err, "/admin/users")
}

func userDetail(id int64) string {
	return "User ID: " + strconv.FormatInt(id, 10)
}
