package handlers

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"sigrafilm/internal/auth"
	"sigrafilm/internal/logger"
	"sigrafilm/internal/middleware"
	"sigrafilm/internal/models"
	"sigrafilm/internal/services"
)

type DashboardHandler struct {
	*Renderer
	issueService *services.IssueService
	userService  *auth.UserService
}

func NewDashboardHandler(renderer *Renderer, issueService *services.IssueService, userService *auth.UserService) *DashboardHandler {
	return &DashboardHandler{
		Renderer:     renderer,
		issueService: issueService,
		userService:  userService,
	}
}

func (h *DashboardHandler) Dashboard(w http.ResponseWriter, r *http.Request) {
	caller, _ := middleware.GetIdentity(r)
	filter := parseFilter(r.URL.Query(), caller)

	issues, err := h.issueService.List(r.Context(), caller, filter)
	if err != nil {
		h.fail(w, r, err, "/")
		return
	}

	var authors []models.User
	if caller.IsAdmin() {
		if authors, err = h.userService.List(r.Context(), models.UserOrderIDAsc); err != nil {
			logger.Warningf("Failed to list users: %v", err)
		}
	}

	h.render(w, r, "dashboard.html", map[string]interface{}{
		"Title":      "Tickets",
		"ActivePage": "dashboard",
		"Issues":     issues,
		"Filter":     filter,
		"Query":      r.URL.RawQuery,
		"Authors":    authors,
		"Urgencies":  models.Urgencies,
		"Statuses":   models.Statuses,
		"Now":        time.Now().UTC(),
	})
}

func (h *DashboardHandler) CreateIssue(w http.ResponseWriter, r *http.Request) {
	caller, _ := middleware.GetIdentity(r)

	if err := r.ParseForm(); err != nil {
		h.redirectWith(w, r, "/", "warning", "Invalid form data")
		return
	}

	in := models.IssueInput{
		Room:        r.PostFormValue("room"),
		Cinema:      r.PostFormValue("cinema"),
		Kind:        r.PostFormValue("kind"),
		Description: r.PostFormValue("description"),
		Urgency:     models.Urgency(strings.TrimSpace(r.PostFormValue("urgency"))),
	}

	openedAt, ok := parseOpenedAt(r.PostFormValue("opened_at"))
	if !ok {
		h.flash(w, r, "warning", "Invalid opening date, the current time was used instead")
	}
	in.OpenedAt = openedAt

	issue, err := h.issueService.Create(r.Context(), caller, in)
	if err != nil {
		h.fail(w, r, err, "/")
		return
	}

	logger.Infof("issue %d opened by %s", issue.ID, caller.Username)
	h.redirectWith(w, r, "/", "success", "Ticket #"+strconv.FormatInt(issue.ID, 10)+" opened")
}

// parseFilter reads the listing filter from query parameters. The author
// filter is only taken from admins.
func parseFilter(q url.Values, caller models.Identity) models.IssueFilter {
	filter := models.IssueFilter{
		Status:  models.Status(strings.TrimSpace(q.Get("status"))),
		Urgency: models.Urgency(strings.TrimSpace(q.Get("urgency"))),
		Cinema:  strings.TrimSpace(q.Get("cinema")),
		Search:  strings.TrimSpace(q.Get("q")),
	}
	if caller.IsAdmin() {
		if id, err := strconv.ParseInt(q.Get("author"), 10, 64); err == nil && id > 0 {
			filter.AuthorID = id
		}
	}
	return filter
}

var openedAtLayouts = []string{
	"2006-01-02T15:04",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
	"2006-01-02 15:04:05",
}

// parseOpenedAt parses a datetime-local value. An empty value yields nil;
// a malformed one yields nil and false so the caller can warn and carry on.
func parseOpenedAt(s string) (*time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, true
	}
	for _, layout := range openedAtLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return &t, true
		}
	}
	return nil, false
}
