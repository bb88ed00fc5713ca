package handlers

import (
	"errors"
	"net/http"

	"sigrafilm/internal/apperr"
	"sigrafilm/internal/auth"
	"sigrafilm/internal/middleware"
)

type AccountHandler struct {
	*Renderer
	userService *auth.UserService
}

func NewAccountHandler(renderer *Renderer, userService *auth.UserService) *AccountHandler {
	return &AccountHandler{Renderer: renderer, userService: userService}
}

func (h *AccountHandler) Account(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, "account.html", map[string]interface{}{
		"Title":      "Account",
		"ActivePage": "account",
	})
}

func (h *AccountHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	caller, _ := middleware.GetIdentity(r)

	if err := r.ParseForm(); err != nil {
		h.redirectWith(w, r, "/account", "warning", "Invalid form data")
		return
	}

	current := r.PostFormValue("current_password")
	newPassword := r.PostFormValue("new_password")
	confirm := r.PostFormValue("confirm_password")

	if newPassword != confirm {
		h.redirectWith(w, r, "/account", "warning", "New passwords do not match")
		return
	}

	if _, err := h.userService.Authenticate(r.Context(), caller.Username, current); err != nil {
		h.redirectWith(w, r, "/account", "danger", "Current password is incorrect")
		return
	}

	if err := h.userService.ResetPassword(r.Context(), caller.ID, newPassword); err != nil {
		if errors.Is(err, apperr.ErrForbidden) {
			h.redirectWith(w, r, "/account", "danger", apperr.Message(err))
			return
		}
		h.fail(w, r, err, "/account")
		return
	}

	h.userService.LogAction(r.Context(), &caller.ID, "password_change", "", getClientIP(r))
	h.redirectWith(w, r, "/account", "success", "Password changed successfully")
}
