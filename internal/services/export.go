package services

import (
	"context"
	"encoding/csv"
	"io"
	"strconv"
	"time"

	"sigrafilm/internal/models"
)

// ExportColumns is the fixed header of the CSV export.
var ExportColumns = []string{
	"id", "room", "cinema", "kind", "description", "urgency", "status", "author", "created_at", "updated_at",
}

const exportTimeFormat = "2006-01-02 15:04:05"

// Export streams every issue visible to caller that matches filter as CSV.
// Unlike List it applies no row limit.
func (s *IssueService) Export(ctx context.Context, caller models.Identity, filter models.IssueFilter, w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(ExportColumns); err != nil {
		return err
	}

	err := s.each(ctx, caller, filter, 0, func(issue *models.Issue) error {
		return cw.Write(exportRecord(issue))
	})
	if err != nil {
		return err
	}

	cw.Flush()
	return cw.Error()
}

func exportRecord(issue *models.Issue) []string {
	updated := ""
	if issue.UpdatedAt != nil {
		updated = formatExportTime(*issue.UpdatedAt)
	}
	return []string{
		strconv.FormatInt(issue.ID, 10),
		issue.Room,
		issue.Cinema,
		issue.Kind,
		issue.Description,
		string(issue.Urgency),
		string(issue.Status),
		issue.AuthorUsername,
		formatExportTime(issue.CreatedAt),
		updated,
	}
}

func formatExportTime(t time.Time) string {
	return t.UTC().Format(exportTimeFormat)
}

// ExportFilename names an export taken at t.
func ExportFilename(t time.Time) string {
	return "sigrafilm_issues_" + t.UTC().Format("20060102_150405") + ".csv"
}
