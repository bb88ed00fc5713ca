package database

import (
	"fmt"
	"strings"
)

func (d *DB) migrate() error {
	for _, m := range d.migrations() {
		if _, err := d.DB.Exec(m); err != nil {
			if d.Dialect == MySQL && strings.Contains(err.Error(), "Duplicate key name") {
				continue
			}
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	return nil
}

func (d *DB) migrations() []string {
	pk := "INTEGER PRIMARY KEY AUTOINCREMENT"
	ts := "DATETIME"
	text := "TEXT"
	short := "TEXT"
	ifNotExists := "IF NOT EXISTS "
	switch d.Dialect {
	case Postgres:
		pk = "BIGSERIAL PRIMARY KEY"
		ts = "TIMESTAMP"
	case MySQL:
		pk = "BIGINT AUTO_INCREMENT PRIMARY KEY"
		short = "VARCHAR(191)"
		// MySQL has no CREATE INDEX IF NOT EXISTS; duplicates are skipped in migrate.
		ifNotExists = ""
	}

	return []string{
		`CREATE TABLE IF NOT EXISTS users (
			id ` + pk + `,
			username ` + short + ` NOT NULL UNIQUE,
			password_hash ` + short + ` NOT NULL,
			role ` + short + ` NOT NULL DEFAULT 'user',
			created_at ` + ts + ` NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS issues (
			id ` + pk + `,
			room ` + short + ` NOT NULL,
			cinema ` + short + ` NOT NULL DEFAULT '',
			kind ` + text + ` NOT NULL,
			description ` + text + ` NOT NULL,
			urgency ` + short + ` NOT NULL,
			status ` + short + ` NOT NULL,
			author_id BIGINT NOT NULL,
			opened_at ` + ts + ` NOT NULL,
			created_at ` + ts + ` NOT NULL,
			updated_at ` + ts + ` NULL,
			FOREIGN KEY (author_id) REFERENCES users(id)
		)`,
		`CREATE TABLE IF NOT EXISTS audit_logs (
			id ` + pk + `,
			user_id BIGINT NULL,
			action ` + short + ` NOT NULL,
			details ` + text + `,
			ip_address ` + short + `,
			created_at ` + ts + ` NOT NULL,
			FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE SET NULL
		)`,
		`CREATE INDEX ` + ifNotExists + `idx_issues_author_id ON issues(author_id)`,
		`CREATE INDEX ` + ifNotExists + `idx_issues_created_at ON issues(created_at)`,
		`CREATE INDEX ` + ifNotExists + `idx_audit_logs_created_at ON audit_logs(created_at)`,
	}
}
