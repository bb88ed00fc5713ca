package handlers

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"sigrafilm/internal/auth"
	"sigrafilm/internal/logger"
	"sigrafilm/internal/middleware"
	"sigrafilm/internal/models"
	"sigrafilm/internal/services"
)

type IssuesHandler struct {
	*Renderer
	issueService *services.IssueService
	userService  *auth.UserService
}

func NewIssuesHandler(renderer *Renderer, issueService *services.IssueService, userService *auth.UserService) *IssuesHandler {
	return &IssuesHandler{
		Renderer:     renderer,
		issueService: issueService,
		userService:  userService,
	}
}

func (h *IssuesHandler) Edit(w http.ResponseWriter, r *http.Request) {
	caller, _ := middleware.GetIdentity(r)
	id, ok := idParam(r)
	if !ok {
		http.NotFound(w, r)
		return
	}

	issue, err := h.issueService.Get(r.Context(), caller, id)
	if err != nil {
		h.fail(w, r, err, "/")
		return
	}

	h.render(w, r, "issue_edit.html", map[string]interface{}{
		"Title":      fmt.Sprintf("Ticket #%d", issue.ID),
		"ActivePage": "dashboard",
		"Issue":      issue,
		"Urgencies":  models.Urgencies,
		"Statuses":   models.Statuses,
	})
}

func (h *IssuesHandler) Update(w http.ResponseWriter, r *http.Request) {
	caller, _ := middleware.GetIdentity(r)
	id, ok := idParam(r)
	if !ok {
		http.NotFound(w, r)
		return
	}
	back := fmt.Sprintf("/issues/%d/edit", id)

	if err := r.ParseForm(); err != nil {
		h.redirectWith(w, r, back, "warning", "Invalid form data")
		return
	}

	upd := models.IssueUpdate{
		Room:        nonBlank(r, "room"),
		Kind:        nonBlank(r, "kind"),
		Cinema:      present(r, "cinema"),
		Description: present(r, "description"),
	}
	if v := nonBlank(r, "urgency"); v != nil {
		u := models.Urgency(strings.TrimSpace(*v))
		upd.Urgency = &u
	}
	if v := nonBlank(r, "status"); v != nil {
		s := models.Status(strings.TrimSpace(*v))
		upd.Status = &s
	}
	if v := r.PostFormValue("opened_at"); v != "" {
		openedAt, ok := parseOpenedAt(v)
		if ok {
			upd.OpenedAt = openedAt
		} else {
			h.flash(w, r, "warning", "Invalid opening date, left unchanged")
		}
	}

	if _, err := h.issueService.Update(r.Context(), caller, id, upd); err != nil {
		h.fail(w, r, err, back)
		return
	}

	h.redirectWith(w, r, "/", "success", fmt.Sprintf("Ticket #%d updated", id))
}

func (h *IssuesHandler) Delete(w http.ResponseWriter, r *http.Request) {
	caller, _ := middleware.GetIdentity(r)
	id, ok := idParam(r)
	if !ok {
		http.NotFound(w, r)
		return
	}

	if err := h.issueService.Delete(r.Context(), caller, id); err != nil {
		h.fail(w, r, err, "/")
		return
	}

	logger.Infof("issue %d deleted by %s", id, caller.Username)
	h.redirectWith(w, r, "/", "info", fmt.Sprintf("Ticket #%d deleted", id))
}

func (h *IssuesHandler) BulkDelete(w http.ResponseWriter, r *http.Request) {
	caller, _ := middleware.GetIdentity(r)

	if err := r.ParseForm(); err != nil {
		h.redirectWith(w, r, "/", "warning", "Invalid form data")
		return
	}

	var ids []int64
	for _, raw := range r.PostForm["ids"] {
		if id, err := strconv.ParseInt(raw, 10, 64); err == nil && id > 0 {
			ids = append(ids, id)
		}
	}

	n, err := h.issueService.BulkDelete(r.Context(), caller, ids)
	if err != nil {
		h.fail(w, r, err, "/")
		return
	}

	h.userService.LogAction(r.Context(), &caller.ID, "issue_bulk_delete", fmt.Sprintf("Deleted: %d", n), getClientIP(r))
	h.redirectWith(w, r, "/", "info", fmt.Sprintf("%d tickets deleted", n))
}

// Export streams the caller's visible tickets as a CSV attachment.
func (h *IssuesHandler) Export(w http.ResponseWriter, r *http.Request) {
	caller, _ := middleware.GetIdentity(r)
	filter := parseFilter(r.URL.Query(), caller)

	aw := &attachmentWriter{w: w, filename: services.ExportFilename(time.Now())}
	if err := h.issueService.Export(r.Context(), caller, filter, aw); err != nil {
		logger.Errorf("export failed for %s: %v", caller.Username, err)
		if !aw.started {
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		}
	}
}

// attachmentWriter commits the CSV download headers on the first write, so
// an export that fails before producing output can still report an error.
type attachmentWriter struct {
	w        http.ResponseWriter
	filename string
	started  bool
}

func (a *attachmentWriter) Write(p []byte) (int, error) {
	if !a.started {
		a.started = true
		a.w.Header().Set("Content-Type", "text/csv; charset=utf-8")
		a.w.Header().Set("Content-Disposition", `attachment; filename="`+a.filename+`"`)
	}
	return a.w.Write(p)
}

// present returns the trimmed form value when the field was submitted.
func present(r *http.Request, field string) *string {
	if _, ok := r.PostForm[field]; !ok {
		return nil
	}
	v := strings.TrimSpace(r.PostForm.Get(field))
	return &v
}

// nonBlank returns the form value only when it is submitted and not blank.
func nonBlank(r *http.Request, field string) *string {
	v := present(r, field)
	if v == nil || *v == "" {
		return nil
	}
	return v
}
