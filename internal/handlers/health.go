package handlers

import (
	"context"
	"net/http"
	"time"

	"sigrafilm/internal/auth"
	"sigrafilm/internal/database"
	"sigrafilm/internal/logger"

	"github.com/goccy/go-json"
)

type healthResponse struct {
	Status  string `json:"status"`
	Dialect string `json:"dialect"`
	Users   int    `json:"users"`
	Error   string `json:"error,omitempty"`
}

type HealthHandler struct {
	db          *database.DB
	userService *auth.UserService
}

func NewHealthHandler(db *database.DB, userService *auth.UserService) *HealthHandler {
	return &HealthHandler{db: db, userService: userService}
}

// Health reports whether the database answers. It is public and carries no
// session.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	resp := healthResponse{Status: "ok", Dialect: string(h.db.Dialect)}
	code := http.StatusOK

	err := h.db.PingContext(ctx)
	if err == nil {
		resp.Users, err = h.userService.Count(ctx)
	}
	if err != nil {
		logger.Warningf("health check failed: %v", err)
		resp.Status = "unavailable"
		resp.Error = "database unavailable"
		code = http.StatusServiceUnavailable
	}

	body, err := json.Marshal(resp)
	if err != nil {
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(code)
	w.Write(body)
}
