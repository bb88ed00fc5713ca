package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"sigrafilm/internal/apperr"
	"sigrafilm/internal/database"
	"sigrafilm/internal/logger"
	"sigrafilm/internal/models"

	"golang.org/x/crypto/bcrypt"
)

const (
	MinPasswordLength = 8
	// MaxPasswordBytes is the longest input bcrypt accepts.
	MaxPasswordBytes  = 72
	MaxUsernameLength = 80
)

var (
	ErrUserNotFound     = apperr.New(apperr.ErrNotFound, "user not found")
	ErrInvalidPassword  = apperr.New(apperr.ErrUnauthenticated, "invalid username or password")
	ErrUserExists       = apperr.New(apperr.ErrConflict, "username already exists")
	ErrSelfDelete       = apperr.New(apperr.ErrForbidden, "you cannot delete your own account")
	ErrSelfDemote       = apperr.New(apperr.ErrForbidden, "you cannot remove your own admin role")
	ErrUserHasIssues    = apperr.New(apperr.ErrConflict, "the user still authors issues")
	ErrFixedAdminLocked = apperr.New(apperr.ErrForbidden, "the fixed admin account is managed outside the panel")
)

// FixedAdmin describes the privileged account whose credential is managed
// by configuration. Password takes precedence over PasswordHash. With Lock
// set the account cannot be edited through the panel and reconciliation
// always restores the configured hash and role.
type FixedAdmin struct {
	Username     string
	Password     string
	PasswordHash string
	Lock         bool
}

func (f FixedAdmin) configured() bool {
	return f.Username != "" && (f.Password != "" || f.PasswordHash != "")
}

func (f FixedAdmin) matches(password string) bool {
	if f.Password != "" {
		return password == f.Password
	}
	return bcrypt.CompareHashAndPassword([]byte(f.PasswordHash), []byte(password)) == nil
}

func (f FixedAdmin) hash() (string, error) {
	if f.Password == "" {
		return f.PasswordHash, nil
	}
	return hashPassword(f.Password)
}

type UserService struct {
	db    *database.DB
	fixed FixedAdmin
}

func NewUserService(db *database.DB, fixed FixedAdmin) *UserService {
	return &UserService{db: db, fixed: fixed}
}

func (s *UserService) FixedAdmin() FixedAdmin {
	return s.fixed
}

const userColumns = "id, username, password_hash, role, created_at"

func (s *UserService) Create(ctx context.Context, username, password string, role models.Role) (*models.User, error) {
	username = strings.TrimSpace(username)
	if err := validateUsername(username); err != nil {
		return nil, err
	}
	if err := ValidatePassword(password); err != nil {
		return nil, err
	}
	if role == "" {
		role = models.RoleUser
	}
	if !role.Valid() {
		return nil, apperr.Invalid("unknown role " + string(role))
	}

	hash, err := hashPassword(password)
	if err != nil {
		return nil, err
	}
	return s.insert(ctx, username, hash, role)
}

func (s *UserService) insert(ctx context.Context, username, hash string, role models.Role) (*models.User, error) {
	now := time.Now().UTC()
	id, err := s.db.InsertID(ctx,
		"INSERT INTO users (username, password_hash, role, created_at) VALUES (?, ?, ?, ?)",
		username, hash, string(role), now,
	)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return nil, ErrUserExists
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	return &models.User{
		ID:           id,
		Username:     username,
		PasswordHash: hash,
		Role:         role,
		CreatedAt:    now,
	}, nil
}

func (s *UserService) Authenticate(ctx context.Context, username, password string) (*models.User, error) {
	user, err := s.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, ErrInvalidPassword
		}
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidPassword
	}

	return user, nil
}

func (s *UserService) GetByID(ctx context.Context, id int64) (*models.User, error) {
	return s.getOne(ctx, "SELECT "+userColumns+" FROM users WHERE id = ?", id)
}

func (s *UserService) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	return s.getOne(ctx, "SELECT "+userColumns+" FROM users WHERE username = ?", username)
}

func (s *UserService) getOne(ctx context.Context, query string, arg interface{}) (*models.User, error) {
	var user models.User
	err := s.db.QueryRowContext(ctx, query, arg).
		Scan(&user.ID, &user.Username, &user.PasswordHash, &user.Role, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return &user, nil
}

func (s *UserService) List(ctx context.Context, order models.UserOrder) ([]models.User, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT "+userColumns+" FROM users ORDER BY "+order.OrderBy())
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	var users []models.User
	for rows.Next() {
		var user models.User
		if err := rows.Scan(&user.ID, &user.Username, &user.PasswordHash, &user.Role, &user.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, user)
	}
	return users, rows.Err()
}

func (s *UserService) ResetPassword(ctx context.Context, id int64, password string) error {
	if err := ValidatePassword(password); err != nil {
		return err
	}
	if err := s.guardFixed(ctx, id); err != nil {
		return err
	}

	hash, err := hashPassword(password)
	if err != nil {
		return err
	}
	return s.updateByID(ctx, id, "failed to update password",
		"UPDATE users SET password_hash = ? WHERE id = ?", hash)
}

func (s *UserService) SetRole(ctx context.Context, actorID, id int64, role models.Role) error {
	if !role.Valid() {
		return apperr.Invalid("unknown role " + string(role))
	}
	if actorID == id && role != models.RoleAdmin {
		return ErrSelfDemote
	}
	if err := s.guardFixed(ctx, id); err != nil {
		return err
	}
	return s.updateByID(ctx, id, "failed to update role",
		"UPDATE users SET role = ? WHERE id = ?", string(role))
}

// Delete removes a user. actorID is the id bound to the caller's session;
// deleting it is refused so an admin cannot lock themselves out.
func (s *UserService) Delete(ctx context.Context, actorID, id int64) error {
	if actorID == id {
		return ErrSelfDelete
	}
	if err := s.guardFixed(ctx, id); err != nil {
		return err
	}

	var authored int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM issues WHERE author_id = ?", id).Scan(&authored); err != nil {
		return fmt.Errorf("failed to count issues: %w", err)
	}
	if authored > 0 {
		return ErrUserHasIssues
	}

	return s.updateByID(ctx, id, "failed to delete user", "DELETE FROM users WHERE id = ?")
}

// updateByID runs a statement whose last placeholder is the user id.
func (s *UserService) updateByID(ctx context.Context, id int64, what, query string, args ...interface{}) error {
	result, err := s.db.ExecContext(ctx, query, append(args, id)...)
	if err != nil {
		return fmt.Errorf("%s: %w", what, err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		// MySQL reports zero affected rows when the new value equals the old one.
		if _, err := s.GetByID(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

// guardFixed refuses panel edits of the fixed admin while it is locked.
func (s *UserService) guardFixed(ctx context.Context, id int64) error {
	if !s.fixed.Lock || s.fixed.Username == "" {
		return nil
	}
	user, err := s.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if user.Username == s.fixed.Username {
		return ErrFixedAdminLocked
	}
	return nil
}

func (s *UserService) Count(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM users").Scan(&count)
	return count, err
}

// ReconcileFixedAdmin creates the fixed admin when it is missing. With force
// or Lock it also restores the configured hash and the admin role on an
// existing row. It reports whether a row was created.
func (s *UserService) ReconcileFixedAdmin(ctx context.Context, force bool) (bool, error) {
	if !s.fixed.configured() {
		return false, errors.New("fixed admin credential is not configured")
	}
	hash, err := s.fixed.hash()
	if err != nil {
		return false, err
	}

	existing, err := s.GetByUsername(ctx, s.fixed.Username)
	switch {
	case errors.Is(err, ErrUserNotFound):
		if _, err := s.insert(ctx, s.fixed.Username, hash, models.RoleAdmin); err != nil {
			if errors.Is(err, ErrUserExists) {
				return false, nil
			}
			return false, err
		}
		logger.Infof("created fixed admin %q", s.fixed.Username)
		return true, nil
	case err != nil:
		return false, err
	}

	if !force && !s.fixed.Lock {
		return false, nil
	}
	if existing.Role == models.RoleAdmin && s.fixed.matchesHash(existing.PasswordHash, hash) {
		return false, nil
	}
	if _, err := s.db.ExecContext(ctx,
		"UPDATE users SET password_hash = ?, role = ? WHERE id = ?",
		hash, string(models.RoleAdmin), existing.ID,
	); err != nil {
		return false, fmt.Errorf("failed to reset fixed admin: %w", err)
	}
	logger.Infof("restored fixed admin %q", s.fixed.Username)
	return false, nil
}

func (f FixedAdmin) matchesHash(stored, canonical string) bool {
	if f.Password != "" {
		return bcrypt.CompareHashAndPassword([]byte(stored), []byte(f.Password)) == nil
	}
	return stored == canonical
}

// EnsureFixedAdminForLogin creates the fixed admin row on the first sign-in
// with its configured credential, before the credential is checked against
// the store.
func (s *UserService) EnsureFixedAdminForLogin(ctx context.Context, username, password string) error {
	if !s.fixed.configured() || username != s.fixed.Username || !s.fixed.matches(password) {
		return nil
	}
	if _, err := s.GetByUsername(ctx, username); !errors.Is(err, ErrUserNotFound) {
		return err
	}
	_, err := s.ReconcileFixedAdmin(ctx, false)
	return err
}

func (s *UserService) LogAction(ctx context.Context, userID *int64, action, details, ipAddress string) {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO audit_logs (user_id, action, details, ip_address, created_at) VALUES (?, ?, ?, ?, ?)",
		userID, action, details, ipAddress, time.Now().UTC(),
	)
	if err != nil {
		logger.Warningf("failed to record %s: %v", action, err)
	}
}

func (s *UserService) AuditLogs(ctx context.Context, limit int) ([]models.AuditLog, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT a.id, a.user_id, COALESCE(u.username, 'system'), a.action, COALESCE(a.details, ''), COALESCE(a.ip_address, ''), a.created_at
		FROM audit_logs a
		LEFT JOIN users u ON a.user_id = u.id
		ORDER BY a.created_at DESC, a.id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var logs []models.AuditLog
	for rows.Next() {
		var entry models.AuditLog
		if err := rows.Scan(&entry.ID, &entry.UserID, &entry.Username, &entry.Action, &entry.Details, &entry.IPAddress, &entry.CreatedAt); err != nil {
			return nil, err
		}
		logs = append(logs, entry)
	}
	return logs, rows.Err()
}

func ValidatePassword(password string) error {
	if utf8.RuneCountInString(password) < MinPasswordLength {
		return apperr.Invalid(fmt.Sprintf("password must be at least %d characters", MinPasswordLength))
	}
	if len(password) > MaxPasswordBytes {
		return apperr.Invalid(fmt.Sprintf("password must be at most %d bytes", MaxPasswordBytes))
	}
	return nil
}

func validateUsername(username string) error {
	if username == "" {
		return apperr.Invalid("username is required")
	}
	if utf8.RuneCountInString(username) > MaxUsernameLength {
		return apperr.Invalid(fmt.Sprintf("username must be at most %d characters", MaxUsernameLength))
	}
	return nil
}

func hashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}
