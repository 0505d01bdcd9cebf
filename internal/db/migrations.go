package db

import (
	"database/sql"
	"fmt"
)

// RunMigrations executes all database migrations
func RunMigrations(db *DB) error {
	// Check if schema_version table exists
	var tableExists bool
	err := db.QueryRow(`
		SELECT COUNT(*) > 0
		FROM sqlite_master
		WHERE type='table' AND name='schema_version'
	`).Scan(&tableExists)
	if err != nil {
		return fmt.Errorf("failed to check schema_version table: %w", err)
	}

	if !tableExists {
		// First time initialization
		if err := initializeSchema(db); err != nil {
			return fmt.Errorf("failed to initialize schema: %w", err)
		}
		return nil
	}

	// Get current version
	var currentVersion int
	err = db.QueryRow(`
		SELECT version FROM schema_version
		ORDER BY applied_at DESC LIMIT 1
	`).Scan(&currentVersion)
	if err != nil {
		return fmt.Errorf("failed to get current schema version: %w", err)
	}

	if currentVersion < 1 {
		return fmt.Errorf("invalid schema version: %d", currentVersion)
	}

	return nil
}

// initializeSchema creates all tables for a new database
func initializeSchema(db *DB) error {
	tx, err := db.BeginTx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	statements := []string{
		schemaVersionTable,
		usersTable,
		usersIndexes,
		certificatesTable,
		certificatesIndexes,
		emailsTable,
		emailsIndexes,
		authTokensTable,
		authTokensIndexes,
		auditLogsTable,
		auditLogsIndexes,
		`INSERT INTO schema_version (version) VALUES (1)`,
	}

	for _, stmt := range statements {
		if err := execSQL(tx, stmt); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// execSQL executes a SQL statement
func execSQL(tx *sql.Tx, query string) error {
	_, err := tx.Exec(query)
	return err
}

// Schema definitions
const (
	schemaVersionTable = `
CREATE TABLE schema_version (
    version INTEGER NOT NULL,
    applied_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
)`

	usersTable = `
CREATE TABLE users (
    id            INTEGER PRIMARY KEY AUTOINCREMENT,
    email         TEXT NOT NULL UNIQUE,
    name          TEXT NOT NULL,
    password_hash TEXT NOT NULL,
    created_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
)`

	usersIndexes = `
CREATE INDEX idx_users_email ON users(email)`

	certificatesTable = `
CREATE TABLE certificates (
    serial_number      TEXT PRIMARY KEY,
    subject_name       TEXT NOT NULL,
    subject_email      TEXT NOT NULL,
    subject_public_key TEXT NOT NULL,
    issuer             TEXT NOT NULL,
    issued_at          DATETIME NOT NULL,
    expires_at         DATETIME NOT NULL,
    ca_signature       TEXT NOT NULL,
    revoked            INTEGER NOT NULL DEFAULT 0,
    revocation_reason  TEXT,
    revoked_at         DATETIME
)`

	certificatesIndexes = `
CREATE INDEX idx_certs_subject_email ON certificates(subject_email);
CREATE INDEX idx_certs_issued_at ON certificates(issued_at);
CREATE INDEX idx_certs_revoked ON certificates(revoked)`

	emailsTable = `
CREATE TABLE emails (
    id                TEXT PRIMARY KEY,
    from_email        TEXT NOT NULL,
    to_email          TEXT NOT NULL,
    subject           TEXT NOT NULL,
    encrypted_content TEXT NOT NULL,
    signature         TEXT NOT NULL,
    sent_at           DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
)`

	emailsIndexes = `
CREATE INDEX idx_emails_from ON emails(from_email);
CREATE INDEX idx_emails_to ON emails(to_email);
CREATE INDEX idx_emails_sent_at ON emails(sent_at)`

	authTokensTable = `
CREATE TABLE auth_tokens (
    id           INTEGER PRIMARY KEY AUTOINCREMENT,
    user_id      INTEGER NOT NULL,
    token_hash   TEXT NOT NULL UNIQUE,
    created_at   DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    expires_at   DATETIME NOT NULL,
    last_used_at DATETIME,

    FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE
)`

	authTokensIndexes = `
CREATE INDEX idx_tokens_user_id ON auth_tokens(user_id);
CREATE INDEX idx_tokens_hash ON auth_tokens(token_hash);
CREATE INDEX idx_tokens_expires_at ON auth_tokens(expires_at)`

	auditLogsTable = `
CREATE TABLE audit_logs (
    id         INTEGER PRIMARY KEY AUTOINCREMENT,
    timestamp  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    action     TEXT NOT NULL,
    subject    TEXT,
    client_ip  TEXT NOT NULL,
    user_agent TEXT,
    success    INTEGER NOT NULL,
    error_msg  TEXT,
    details    TEXT
)`

	auditLogsIndexes = `
CREATE INDEX idx_audit_timestamp ON audit_logs(timestamp);
CREATE INDEX idx_audit_action ON audit_logs(action);
CREATE INDEX idx_audit_subject ON audit_logs(subject)`
)
