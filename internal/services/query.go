package services

import (
	"strings"

	"sigrafilm/internal/models"
)

const issueSelect = `SELECT i.id, i.room, i.cinema, i.kind, i.description, i.urgency, i.status,
	i.author_id, u.username, i.opened_at, i.created_at, i.updated_at
FROM issues i
JOIN users u ON u.id = i.author_id`

// likeEscape is the LIKE escape character. A backslash would need extra
// quoting in MySQL string literals.
const likeEscape = "!"

// BuildIssueQuery turns a filter into a parameterized listing query. Values
// only ever travel as arguments. Non-admin callers are scoped to their own
// issues whatever the filter says. limit <= 0 means no limit.
func BuildIssueQuery(caller models.Identity, filter models.IssueFilter, limit int) (string, []interface{}) {
	var (
		where []string
		args  []interface{}
	)

	if !caller.IsAdmin() {
		where = append(where, "i.author_id = ?")
		args = append(args, caller.ID)
	} else if filter.AuthorID > 0 {
		where = append(where, "i.author_id = ?")
		args = append(args, filter.AuthorID)
	}

	if filter.Status != "" {
		where = append(where, "i.status = ?")
		args = append(args, string(filter.Status))
	}
	if filter.Urgency != "" {
		where = append(where, "i.urgency = ?")
		args = append(args, string(filter.Urgency))
	}
	if cinema := strings.TrimSpace(filter.Cinema); cinema != "" {
		where = append(where, "LOWER(i.cinema) LIKE ? ESCAPE '"+likeEscape+"'")
		args = append(args, containsPattern(cinema))
	}
	if search := strings.TrimSpace(filter.Search); search != "" {
		pattern := containsPattern(search)
		var ors []string
		for _, col := range []string{"i.description", "i.kind", "i.room", "i.cinema"} {
			ors = append(ors, "LOWER("+col+") LIKE ? ESCAPE '"+likeEscape+"'")
			args = append(args, pattern)
		}
		where = append(where, "("+strings.Join(ors, " OR ")+")")
	}

	var b strings.Builder
	b.WriteString(issueSelect)
	if len(where) > 0 {
		b.WriteString("\nWHERE ")
		b.WriteString(strings.Join(where, " AND "))
	}
	b.WriteString("\nORDER BY i.created_at DESC, i.id DESC")
	if limit > 0 {
		b.WriteString("\nLIMIT ?")
		args = append(args, limit)
	}
	return b.String(), args
}

// containsPattern lowercases s and wraps it for a substring LIKE match,
// escaping the wildcard characters it contains.
func containsPattern(s string) string {
	r := strings.NewReplacer(likeEscape, likeEscape+likeEscape, "%", likeEscape+"%", "_", likeEscape+"_")
	return "%" + r.Replace(strings.ToLower(s)) + "%"
}
