package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"sigrafilm/internal/apperr"
	"sigrafilm/internal/database"
	"sigrafilm/internal/models"
)

var (
	ErrIssueNotFound = apperr.New(apperr.ErrNotFound, "issue not found")
	ErrNotIssueOwner = apperr.New(apperr.ErrForbidden, "only the author or an admin can change this issue")
	ErrAdminOnly     = apperr.New(apperr.ErrForbidden, "admin role required")
)

type IssueService struct {
	db    *database.DB
	limit int
	now   func() time.Time
}

// NewIssueService returns a store whose interactive listings are capped at
// listLimit rows. Exports are never capped.
func NewIssueService(db *database.DB, listLimit int) *IssueService {
	return &IssueService{
		db:    db,
		limit: listLimit,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

func (s *IssueService) Create(ctx context.Context, caller models.Identity, in models.IssueInput) (*models.Issue, error) {
	issue := &models.Issue{
		Room:           strings.TrimSpace(in.Room),
		Cinema:         strings.TrimSpace(in.Cinema),
		Kind:           strings.TrimSpace(in.Kind),
		Description:    strings.TrimSpace(in.Description),
		Urgency:        in.Urgency,
		Status:         models.StatusOpen,
		AuthorID:       caller.ID,
		AuthorUsername: caller.Username,
		CreatedAt:      s.now(),
	}
	if issue.Room == "" || issue.Kind == "" {
		return nil, apperr.Invalid("room and kind are required")
	}
	if issue.Urgency == "" {
		issue.Urgency = models.UrgencyNone
	}
	if !issue.Urgency.Valid() {
		return nil, apperr.Invalid("unknown urgency " + string(issue.Urgency))
	}
	issue.OpenedAt = issue.CreatedAt
	if in.OpenedAt != nil {
		issue.OpenedAt = in.OpenedAt.UTC()
	}

	id, err := s.db.InsertID(ctx,
		`INSERT INTO issues (room, cinema, kind, description, urgency, status, author_id, opened_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		issue.Room, issue.Cinema, issue.Kind, issue.Description, string(issue.Urgency),
		string(issue.Status), issue.AuthorID, issue.OpenedAt, issue.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create issue: %w", err)
	}
	issue.ID = id
	return issue, nil
}

// Get returns an issue the caller may edit.
func (s *IssueService) Get(ctx context.Context, caller models.Identity, id int64) (*models.Issue, error) {
	issue, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !canModify(caller, issue) {
		return nil, ErrNotIssueOwner
	}
	return issue, nil
}

func (s *IssueService) load(ctx context.Context, id int64) (*models.Issue, error) {
	row := s.db.QueryRowContext(ctx, issueSelect+"\nWHERE i.id = ?", id)
	issue, err := scanIssue(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrIssueNotFound
		}
		return nil, fmt.Errorf("failed to get issue: %w", err)
	}
	return issue, nil
}

func canModify(caller models.Identity, issue *models.Issue) bool {
	return caller.IsAdmin() || caller.ID == issue.AuthorID
}

// Update overwrites only the supplied fields and stamps updated_at.
func (s *IssueService) Update(ctx context.Context, caller models.Identity, id int64, upd models.IssueUpdate) (*models.Issue, error) {
	issue, err := s.Get(ctx, caller, id)
	if err != nil {
		return nil, err
	}

	if upd.Room != nil {
		room := strings.TrimSpace(*upd.Room)
		if room == "" {
			return nil, apperr.Invalid("room cannot be empty")
		}
		issue.Room = room
	}
	if upd.Kind != nil {
		kind := strings.TrimSpace(*upd.Kind)
		if kind == "" {
			return nil, apperr.Invalid("kind cannot be empty")
		}
		issue.Kind = kind
	}
	if upd.Cinema != nil {
		issue.Cinema = strings.TrimSpace(*upd.Cinema)
	}
	if upd.Description != nil {
		issue.Description = strings.TrimSpace(*upd.Description)
	}
	if upd.Urgency != nil {
		if !upd.Urgency.Valid() {
			return nil, apperr.Invalid("unknown urgency " + string(*upd.Urgency))
		}
		issue.Urgency = *upd.Urgency
	}
	if upd.Status != nil {
		if !upd.Status.Valid() {
			return nil, apperr.Invalid("unknown status " + string(*upd.Status))
		}
		issue.Status = *upd.Status
	}
	if upd.OpenedAt != nil {
		issue.OpenedAt = upd.OpenedAt.UTC()
	}
	now := s.now()
	issue.UpdatedAt = &now

	_, err = s.db.ExecContext(ctx,
		`UPDATE issues SET room = ?, cinema = ?, kind = ?, description = ?, urgency = ?, status = ?,
		opened_at = ?, updated_at = ? WHERE id = ?`,
		issue.Room, issue.Cinema, issue.Kind, issue.Description, string(issue.Urgency),
		string(issue.Status), issue.OpenedAt, now, issue.ID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to update issue: %w", err)
	}
	return issue, nil
}

func (s *IssueService) Delete(ctx context.Context, caller models.Identity, id int64) error {
	if _, err := s.Get(ctx, caller, id); err != nil {
		return err
	}
	result, err := s.db.ExecContext(ctx, "DELETE FROM issues WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete issue: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return ErrIssueNotFound
	}
	return nil
}

// BulkDelete removes several issues at once and reports how many went away.
// Unknown ids are skipped.
func (s *IssueService) BulkDelete(ctx context.Context, caller models.Identity, ids []int64) (int64, error) {
	if !caller.IsAdmin() {
		return 0, ErrAdminOnly
	}
	if len(ids) == 0 {
		return 0, apperr.Invalid("no issues selected")
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(ids)), ", ")
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	result, err := s.db.ExecContext(ctx, "DELETE FROM issues WHERE id IN ("+placeholders+")", args...)
	if err != nil {
		return 0, fmt.Errorf("failed to delete issues: %w", err)
	}
	return result.RowsAffected()
}

// List returns the issues visible to caller, newest first, capped at the
// configured listing limit.
func (s *IssueService) List(ctx context.Context, caller models.Identity, filter models.IssueFilter) ([]models.Issue, error) {
	var issues []models.Issue
	err := s.each(ctx, caller, filter, s.limit, func(issue *models.Issue) error {
		issues = append(issues, *issue)
		return nil
	})
	return issues, err
}

func (s *IssueService) each(ctx context.Context, caller models.Identity, filter models.IssueFilter, limit int, fn func(*models.Issue) error) error {
	query, args := BuildIssueQuery(caller, filter, limit)
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to list issues: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		issue, err := scanIssue(rows)
		if err != nil {
			return fmt.Errorf("failed to scan issue: %w", err)
		}
		if err := fn(issue); err != nil {
			return err
		}
	}
	return rows.Err()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanIssue(row scanner) (*models.Issue, error) {
	var (
		issue   models.Issue
		updated sql.NullTime
	)
	err := row.Scan(&issue.ID, &issue.Room, &issue.Cinema, &issue.Kind, &issue.Description,
		&issue.Urgency, &issue.Status, &issue.AuthorID, &issue.AuthorUsername,
		&issue.OpenedAt, &issue.CreatedAt, &updated)
	if err != nil {
		return nil, err
	}
	if updated.Valid {
		t := updated.Time
		issue.UpdatedAt = &t
	}
	return &issue, nil
}
