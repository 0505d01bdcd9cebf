package repository

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/secmail/secmaild/internal/models"
)

// TokenRepository handles bearer session tokens
type TokenRepository struct {
	db *sql.DB
}

// NewTokenRepository creates a new token repository
func NewTokenRepository(db *sql.DB) *TokenRepository {
	return &TokenRepository{db: db}
}

// Create persists a new session token record
func (r *TokenRepository) Create(token *models.AuthToken) error {
	query := `
		INSERT INTO auth_tokens (user_id, token_hash, expires_at)
		VALUES (?, ?, ?)
	`

	result, err := r.db.Exec(query,
		token.UserID,
		token.TokenHash,
		token.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create token: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	token.ID = id
	token.CreatedAt = time.Now()

	return nil
}

// Validate looks up a token by hash and checks its expiry
func (r *TokenRepository) Validate(tokenHash string, now time.Time) (*models.AuthToken, error) {
	query := `
		SELECT id, user_id, token_hash, created_at, expires_at, last_used_at
		FROM auth_tokens
		WHERE token_hash = ?
	`

	token := &models.AuthToken{}
	var lastUsed sql.NullTime

	err := r.db.QueryRow(query, tokenHash).Scan(
		&token.ID,
		&token.UserID,
		&token.TokenHash,
		&token.CreatedAt,
		&token.ExpiresAt,
		&lastUsed,
	)

	if err == sql.ErrNoRows {
		return nil, ErrTokenInvalid
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up token: %w", err)
	}

	if now.After(token.ExpiresAt) {
		return nil, ErrTokenInvalid
	}

	if lastUsed.Valid {
		t := lastUsed.Time
		token.LastUsedAt = &t
	}

	return token, nil
}

// UpdateLastUsed records the last use of a token
func (r *TokenRepository) UpdateLastUsed(id int64) error {
	query := `UPDATE auth_tokens SET last_used_at = CURRENT_TIMESTAMP WHERE id = ?`

	if _, err := r.db.Exec(query, id); err != nil {
		return fmt.Errorf("failed to update token: %w", err)
	}

	return nil
}

// DeleteExpired removes tokens past their expiry
func (r *TokenRepository) DeleteExpired(now time.Time) (int64, error) {
	res, err := r.db.Exec(`DELETE FROM auth_tokens WHERE expires_at < ?`, now)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired tokens: %w", err)
	}

	return res.RowsAffected()
}
