// Package mail orchestrates the CA, hybrid cipher and signature engine
// into the send and read flows for encrypted email.
package mail

import (
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/secmail/secmaild/internal/ca"
	"github.com/secmail/secmaild/internal/crypto"
	"github.com/secmail/secmaild/internal/db/repository"
	"github.com/secmail/secmaild/internal/models"
	"github.com/secmail/secmaild/pkg/certpem"
)

// Sentinel errors for errors.Is() checks
var (
	// ErrCertificateNotValid is returned when CA validation of the
	// sender's certificate fails.
	ErrCertificateNotValid = errors.New("sender certificate not valid")

	// ErrRecipientNotFound is returned when no active certificate exists
	// for the recipient.
	ErrRecipientNotFound = errors.New("no active certificate for recipient")

	// ErrSenderKeyMismatch is returned when the supplied private key does
	// not match the sender certificate's public key.
	ErrSenderKeyMismatch = errors.New("private key does not match sender certificate")
)

// Engine produces and consumes signed, encrypted email records. It reads
// certificates through the CA and never mutates them.
type Engine struct {
	ca     *ca.CA
	emails *repository.EmailRepository
}

// NewEngine creates a messaging engine
func NewEngine(authority *ca.CA, emails *repository.EmailRepository) *Engine {
	return &Engine{
		ca:     authority,
		emails: emails,
	}
}

// Send signs the plaintext message with the sender's private key,
// encrypts the content for the recipient's active certificate, and
// persists the resulting record. The signature covers plaintext, so
// verification later requires the decrypted content.
func (e *Engine) Send(fromEmail, toEmail, subject, content, senderPrivateKeyPEM string) (*models.EmailRecord, error) {
	senderCert, err := e.ca.ActiveCertificate(fromEmail)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%w: no active certificate for sender", ErrCertificateNotValid)
		}
		return nil, err
	}

	result, err := e.ca.Validate(senderCert)
	if err != nil {
		return nil, err
	}
	if !result.Valid() {
		return nil, fmt.Errorf("%w: %s", ErrCertificateNotValid, result.Status)
	}

	senderPriv, err := certpem.ParsePrivateKey(senderPrivateKeyPEM)
	if err != nil {
		return nil, fmt.Errorf("invalid sender private key: %w", err)
	}

	certPub, err := certpem.ParsePublicKey(senderCert.SubjectPublicKey)
	if err != nil {
		return nil, fmt.Errorf("invalid certificate public key: %w", err)
	}
	if senderPriv.PublicKey.N.Cmp(certPub.N) != 0 || senderPriv.PublicKey.E != certPub.E {
		return nil, ErrSenderKeyMismatch
	}

	recipientCert, err := e.ca.ActiveCertificate(toEmail)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrRecipientNotFound
		}
		return nil, err
	}

	recipientPub, err := certpem.ParsePublicKey(recipientCert.SubjectPublicKey)
	if err != nil {
		return nil, fmt.Errorf("invalid recipient public key: %w", err)
	}

	msg := crypto.CanonicalMessage{
		Subject:   subject,
		Content:   content,
		FromEmail: fromEmail,
		ToEmail:   toEmail,
	}

	sig, err := crypto.Sign(msg, senderPriv)
	if err != nil {
		return nil, err
	}

	encrypted, err := crypto.Encrypt([]byte(content), recipientPub)
	if err != nil {
		return nil, err
	}

	record := &models.EmailRecord{
		ID:               uuid.NewString(),
		FromEmail:        fromEmail,
		ToEmail:          toEmail,
		Subject:          subject,
		EncryptedContent: encrypted,
		Signature:        base64.StdEncoding.EncodeToString(sig),
		SentAt:           time.Now().UTC(),
	}

	if err := e.emails.Create(record); err != nil {
		return nil, err
	}

	return record, nil
}

// VerificationResult reports the trust state of a decrypted email. A
// revoked sender certificate and an invalid signature are different
// failures and are reported distinctly.
type VerificationResult struct {
	SignatureValid           bool   `json:"signature_valid"`
	SenderCertificateRevoked bool   `json:"sender_certificate_revoked"`
	RevocationReason         string `json:"revocation_reason,omitempty"`
}

// Read decrypts a stored record with the reader's private key and
// verifies the signature against the sender's current public key fetched
// fresh from the CA, so a revocation after send time is still flagged.
func (e *Engine) Read(record *models.EmailRecord, readerPrivateKeyPEM string) (string, VerificationResult, error) {
	readerPriv, err := certpem.ParsePrivateKey(readerPrivateKeyPEM)
	if err != nil {
		return "", VerificationResult{}, fmt.Errorf("invalid reader private key: %w", err)
	}

	plaintext, err := crypto.Decrypt(record.EncryptedContent, readerPriv)
	if err != nil {
		return "", VerificationResult{}, err
	}

	result := VerificationResult{}

	senderCert, err := e.ca.LatestCertificate(record.FromEmail)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			// Sender unknown to the CA: nothing to verify against
			return string(plaintext), result, nil
		}
		return "", VerificationResult{}, err
	}

	if senderCert.Revoked {
		result.SenderCertificateRevoked = true
		result.RevocationReason = senderCert.RevocationReason
	}

	senderPub, err := certpem.ParsePublicKey(senderCert.SubjectPublicKey)
	if err != nil {
		return string(plaintext), result, nil
	}

	sig, err := base64.StdEncoding.DecodeString(record.Signature)
	if err != nil {
		return string(plaintext), result, nil
	}

	msg := crypto.CanonicalMessage{
		Subject:   record.Subject,
		Content:   string(plaintext),
		FromEmail: record.FromEmail,
		ToEmail:   record.ToEmail,
	}
	result.SignatureValid = crypto.Verify(msg, sig, senderPub)

	return string(plaintext), result, nil
}
