package repository

import (
	"database/sql"
	"fmt"

	"github.com/secmail/secmaild/internal/models"
)

// AuditRepository handles audit log entries
type AuditRepository struct {
	db *sql.DB
}

// NewAuditRepository creates a new audit repository
func NewAuditRepository(db *sql.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

// Create appends an audit log entry
func (r *AuditRepository) Create(entry *models.AuditLog) error {
	query := `
		INSERT INTO audit_logs (action, subject, client_ip, user_agent, success, error_msg, details)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	success := 0
	if entry.Success {
		success = 1
	}

	_, err := r.db.Exec(query,
		entry.Action,
		entry.Subject,
		entry.ClientIP,
		entry.UserAgent,
		success,
		entry.ErrorMsg,
		entry.Details,
	)
	if err != nil {
		return fmt.Errorf("failed to create audit log: %w", err)
	}

	return nil
}

// Recent lists the most recent audit entries, newest first
func (r *AuditRepository) Recent(limit int) ([]*models.AuditLog, error) {
	query := `
		SELECT id, timestamp, action, subject, client_ip, user_agent, success, error_msg, details
		FROM audit_logs
		ORDER BY timestamp DESC
		LIMIT ?
	`

	rows, err := r.db.Query(query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit logs: %w", err)
	}
	defer rows.Close()

	var entries []*models.AuditLog
	for rows.Next() {
		entry := &models.AuditLog{}
		var (
			subject   sql.NullString
			userAgent sql.NullString
			errorMsg  sql.NullString
			details   sql.NullString
			success   int
		)

		err := rows.Scan(
			&entry.ID,
			&entry.Timestamp,
			&entry.Action,
			&subject,
			&entry.ClientIP,
			&userAgent,
			&success,
			&errorMsg,
			&details,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan audit log: %w", err)
		}

		entry.Subject = subject.String
		entry.UserAgent = userAgent.String
		entry.ErrorMsg = errorMsg.String
		entry.Details = details.String
		entry.Success = success == 1
		entries = append(entries, entry)
	}

	return entries, rows.Err()
}
