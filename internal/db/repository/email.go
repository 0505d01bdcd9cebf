package repository

import (
	"database/sql"
	"fmt"

	"github.com/secmail/secmaild/internal/models"
)

// EmailRepository handles stored email records. Records are append-only.
type EmailRepository struct {
	db *sql.DB
}

// NewEmailRepository creates a new email repository
func NewEmailRepository(db *sql.DB) *EmailRepository {
	return &EmailRepository{db: db}
}

// Create persists a new email record
func (r *EmailRepository) Create(email *models.EmailRecord) error {
	query := `
		INSERT INTO emails (id, from_email, to_email, subject, encrypted_content, signature, sent_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.Exec(query,
		email.ID,
		email.FromEmail,
		email.ToEmail,
		email.Subject,
		email.EncryptedContent,
		email.Signature,
		email.SentAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create email record: %w", err)
	}

	return nil
}

// GetByID retrieves an email record by id
func (r *EmailRepository) GetByID(id string) (*models.EmailRecord, error) {
	query := `
		SELECT id, from_email, to_email, subject, encrypted_content, signature, sent_at
		FROM emails
		WHERE id = ?
	`

	email := &models.EmailRecord{}
	err := r.db.QueryRow(query, id).Scan(
		&email.ID,
		&email.FromEmail,
		&email.ToEmail,
		&email.Subject,
		&email.EncryptedContent,
		&email.Signature,
		&email.SentAt,
	)

	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get email: %w", err)
	}

	return email, nil
}

// ListInbox lists emails received by an address, newest first
func (r *EmailRepository) ListInbox(email string) ([]*models.EmailRecord, error) {
	return r.list(`to_email`, email)
}

// ListSent lists emails sent by an address, newest first
func (r *EmailRepository) ListSent(email string) ([]*models.EmailRecord, error) {
	return r.list(`from_email`, email)
}

func (r *EmailRepository) list(column, email string) ([]*models.EmailRecord, error) {
	query := `
		SELECT id, from_email, to_email, subject, encrypted_content, signature, sent_at
		FROM emails
		WHERE ` + column + ` = ?
		ORDER BY sent_at DESC
	`

	rows, err := r.db.Query(query, email)
	if err != nil {
		return nil, fmt.Errorf("failed to list emails: %w", err)
	}
	defer rows.Close()

	var emails []*models.EmailRecord
	for rows.Next() {
		record := &models.EmailRecord{}
		err := rows.Scan(
			&record.ID,
			&record.FromEmail,
			&record.ToEmail,
			&record.Subject,
			&record.EncryptedContent,
			&record.Signature,
			&record.SentAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan email: %w", err)
		}
		emails = append(emails, record)
	}

	return emails, rows.Err()
}
