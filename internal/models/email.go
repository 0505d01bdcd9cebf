package models

import "time"

// EmailRecord is a stored email. Content is encrypted for the recipient
// at send time and the signature covers the plaintext, so the record is
// opaque to the server after creation.
type EmailRecord struct {
	ID               string    `json:"id"`
	FromEmail        string    `json:"from_email"`
	ToEmail          string    `json:"to_email"`
	Subject          string    `json:"subject"`
	EncryptedContent string    `json:"encrypted_content"`
	Signature        string    `json:"signature"` // base64
	SentAt           time.Time `json:"sent_at"`
}
