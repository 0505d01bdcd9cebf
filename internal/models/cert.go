package models

import "time"

// Revocation reasons stored with a revoked certificate
const (
	RevocationUnspecified   = "unspecified"
	RevocationKeyCompromise = "keyCompromise"
	RevocationSuperseded    = "superseded"
	RevocationCessation     = "cessationOfOperation"
)

// Certificate represents an identity certificate issued by the CA.
// Status (active/expired/revoked) is derived from ExpiresAt and Revoked,
// never stored as a separate field.
type Certificate struct {
	SerialNumber     string     `json:"serial_number"`
	SubjectName      string     `json:"subject_name"`
	SubjectEmail     string     `json:"subject_email"`
	SubjectPublicKey string     `json:"subject_public_key"` // PEM
	Issuer           string     `json:"issuer"`
	IssuedAt         time.Time  `json:"issued_at"`
	ExpiresAt        time.Time  `json:"expires_at"`
	CASignature      []byte     `json:"ca_signature"`
	Revoked          bool       `json:"is_revoked"`
	RevocationReason string     `json:"revocation_reason,omitempty"`
	RevokedAt        *time.Time `json:"revoked_at,omitempty"`
}

// IsExpiredAt reports whether the certificate is outside its validity
// window at the given instant.
func (c *Certificate) IsExpiredAt(t time.Time) bool {
	return t.Before(c.IssuedAt) || t.After(c.ExpiresAt)
}

// IsActiveAt reports whether the certificate is usable at the given
// instant: not revoked and within its validity window.
func (c *Certificate) IsActiveAt(t time.Time) bool {
	return !c.Revoked && !c.IsExpiredAt(t)
}
