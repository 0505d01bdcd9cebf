package repository

import (
	"database/sql"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/secmail/secmaild/internal/models"
)

// CertRepository is the persistent certificate store, keyed by serial number
type CertRepository struct {
	db *sql.DB
}

// NewCertRepository creates a new certificate repository
func NewCertRepository(db *sql.DB) *CertRepository {
	return &CertRepository{db: db}
}

const certColumns = `serial_number, subject_name, subject_email, subject_public_key,
	issuer, issued_at, expires_at, ca_signature, revoked, revocation_reason, revoked_at`

// CreateIfNoActive inserts a certificate record unless an active
// (non-revoked, non-expired) certificate already exists for the same
// subject email. The check and insert run in one transaction so the
// one-active-certificate-per-email invariant holds under concurrency.
func (r *CertRepository) CreateIfNoActive(cert *models.Certificate, now time.Time) error {
	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var active int
	err = tx.QueryRow(`
		SELECT COUNT(*)
		FROM certificates
		WHERE subject_email = ? AND revoked = 0 AND expires_at > ?
	`, cert.SubjectEmail, now).Scan(&active)
	if err != nil {
		return fmt.Errorf("failed to check active certificates: %w", err)
	}
	if active > 0 {
		return ErrDuplicateActiveSubject
	}

	_, err = tx.Exec(`
		INSERT INTO certificates (
			serial_number, subject_name, subject_email, subject_public_key,
			issuer, issued_at, expires_at, ca_signature
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		cert.SerialNumber,
		cert.SubjectName,
		cert.SubjectEmail,
		cert.SubjectPublicKey,
		cert.Issuer,
		cert.IssuedAt,
		cert.ExpiresAt,
		base64.StdEncoding.EncodeToString(cert.CASignature),
	)
	if err != nil {
		return fmt.Errorf("failed to create certificate record: %w", err)
	}

	return tx.Commit()
}

// GetBySerialNumber retrieves a certificate by serial number
func (r *CertRepository) GetBySerialNumber(serial string) (*models.Certificate, error) {
	row := r.db.QueryRow(`
		SELECT `+certColumns+`
		FROM certificates
		WHERE serial_number = ?
	`, serial)

	cert, err := scanCert(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get certificate: %w", err)
	}

	return cert, nil
}

// GetActiveByEmail retrieves the active certificate for an email, if any
func (r *CertRepository) GetActiveByEmail(email string, now time.Time) (*models.Certificate, error) {
	row := r.db.QueryRow(`
		SELECT `+certColumns+`
		FROM certificates
		WHERE subject_email = ? AND revoked = 0 AND expires_at > ?
		ORDER BY issued_at DESC
		LIMIT 1
	`, email, now)

	cert, err := scanCert(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get active certificate: %w", err)
	}

	return cert, nil
}

// GetLatestByEmail retrieves the most recently issued certificate for an
// email regardless of status. Used for signature verification of stored
// mail after the sender's certificate expired or was revoked.
func (r *CertRepository) GetLatestByEmail(email string) (*models.Certificate, error) {
	row := r.db.QueryRow(`
		SELECT `+certColumns+`
		FROM certificates
		WHERE subject_email = ?
		ORDER BY issued_at DESC
		LIMIT 1
	`, email)

	cert, err := scanCert(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest certificate: %w", err)
	}

	return cert, nil
}

// CountIssuedToday returns the number of certificates issued for an
// email today
func (r *CertRepository) CountIssuedToday(email string) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM certificates
		WHERE subject_email = ? AND DATE(issued_at) = DATE('now')
	`

	var count int
	if err := r.db.QueryRow(query, email).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to get cert count: %w", err)
	}

	return count, nil
}

// List lists all certificates ordered by issuance time ascending
func (r *CertRepository) List() ([]*models.Certificate, error) {
	rows, err := r.db.Query(`
		SELECT ` + certColumns + `
		FROM certificates
		ORDER BY issued_at ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list certificates: %w", err)
	}
	defer rows.Close()

	var certs []*models.Certificate
	for rows.Next() {
		cert, err := scanCert(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan certificate: %w", err)
		}
		certs = append(certs, cert)
	}

	return certs, rows.Err()
}

// Revoke marks a certificate as revoked. Revocation is terminal: the
// update is guarded on revoked = 0 so a revoked certificate can never be
// revoked again or un-revoked.
func (r *CertRepository) Revoke(serial, reason string, now time.Time) error {
	res, err := r.db.Exec(`
		UPDATE certificates
		SET revoked = 1, revocation_reason = ?, revoked_at = ?
		WHERE serial_number = ? AND revoked = 0
	`, reason, now, serial)
	if err != nil {
		return fmt.Errorf("failed to revoke certificate: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		// Distinguish missing from already revoked
		var revoked int
		err := r.db.QueryRow(`SELECT revoked FROM certificates WHERE serial_number = ?`, serial).Scan(&revoked)
		if err == sql.ErrNoRows {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to check certificate: %w", err)
		}
		return ErrAlreadyRevoked
	}

	return nil
}

// scanner is satisfied by both *sql.Row and *sql.Rows
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanCert(s scanner) (*models.Certificate, error) {
	cert := &models.Certificate{}
	var (
		sigB64    string
		revoked   int
		reason    sql.NullString
		revokedAt sql.NullTime
	)

	err := s.Scan(
		&cert.SerialNumber,
		&cert.SubjectName,
		&cert.SubjectEmail,
		&cert.SubjectPublicKey,
		&cert.Issuer,
		&cert.IssuedAt,
		&cert.ExpiresAt,
		&sigB64,
		&revoked,
		&reason,
		&revokedAt,
	)
	if err != nil {
		return nil, err
	}

	sig, err := base64.StdEncoding.DecodeString(sigB64)
	if err != nil {
		return nil, fmt.Errorf("failed to decode stored signature: %w", err)
	}

	cert.CASignature = sig
	cert.Revoked = revoked == 1
	if reason.Valid {
		cert.RevocationReason = reason.String
	}
	if revokedAt.Valid {
		t := revokedAt.Time
		cert.RevokedAt = &t
	}

	return cert, nil
}
