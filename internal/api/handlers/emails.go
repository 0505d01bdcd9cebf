package handlers

import (
	"encoding/base64"
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/secmail/secmaild/internal/api/middleware"
	"github.com/secmail/secmaild/internal/ca"
	"github.com/secmail/secmaild/internal/crypto"
	"github.com/secmail/secmaild/internal/db/repository"
	"github.com/secmail/secmaild/internal/mail"
	"github.com/secmail/secmaild/internal/models"
	"github.com/secmail/secmaild/pkg/certpem"
)

// EmailHandler handles sending, listing, decrypting and verifying emails
type EmailHandler struct {
	engine    *mail.Engine
	authority *ca.CA
	userRepo  *repository.UserRepository
	emailRepo *repository.EmailRepository
	auditRepo *repository.AuditRepository
}

// NewEmailHandler creates a new email handler
func NewEmailHandler(
	engine *mail.Engine,
	authority *ca.CA,
	userRepo *repository.UserRepository,
	emailRepo *repository.EmailRepository,
	auditRepo *repository.AuditRepository,
) *EmailHandler {
	return &EmailHandler{
		engine:    engine,
		authority: authority,
		userRepo:  userRepo,
		emailRepo: emailRepo,
		auditRepo: auditRepo,
	}
}

// SendRequest represents an email send request
type SendRequest struct {
	FromEmail  string `json:"fromEmail" binding:"required"`
	ToEmail    string `json:"toEmail" binding:"required"`
	Subject    string `json:"subject" binding:"required"`
	Content    string `json:"content" binding:"required"`
	PrivateKey string `json:"privateKey" binding:"required"`
}

// Send signs and encrypts an email and persists the record
// POST /api/emails/send
func (h *EmailHandler) Send(c *gin.Context) {
	var req SendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_request", "Invalid request body")
		return
	}

	clientIP := GetClientIP(c)
	userAgent := c.GetHeader("User-Agent")

	// The bearer token must belong to the claimed sender
	if userID, ok := c.Get(middleware.ContextKeyUserID); ok {
		user, err := h.userRepo.GetByID(userID.(int64))
		if err != nil || user.Email != req.FromEmail {
			RespondError(c, http.StatusForbidden, "sender_mismatch", "Token does not belong to sender")
			return
		}
	}

	record, err := h.engine.Send(req.FromEmail, req.ToEmail, req.Subject, req.Content, req.PrivateKey)
	if err != nil {
		h.auditRepo.Create(&models.AuditLog{
			Action:    models.ActionEmailSend,
			Subject:   req.FromEmail,
			ClientIP:  clientIP,
			UserAgent: userAgent,
			Success:   false,
			ErrorMsg:  err.Error(),
		})

		switch {
		case errors.Is(err, mail.ErrCertificateNotValid):
			RespondError(c, http.StatusForbidden, "certificate_not_valid", err.Error())
		case errors.Is(err, mail.ErrSenderKeyMismatch):
			RespondError(c, http.StatusForbidden, "sender_key_mismatch", err.Error())
		case errors.Is(err, mail.ErrRecipientNotFound):
			RespondError(c, http.StatusNotFound, "recipient_not_found", "No active certificate for recipient")
		default:
			log.Printf("Error sending email: %v", err)
			RespondError(c, http.StatusInternalServerError, "internal_error", "Failed to send email")
		}
		return
	}

	h.auditRepo.Create(&models.AuditLog{
		Action:    models.ActionEmailSend,
		Subject:   req.FromEmail,
		ClientIP:  clientIP,
		UserAgent: userAgent,
		Success:   true,
		Details:   record.ID,
	})

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"emailId": record.ID,
	})
}

// EmailListItem is an email record augmented with the sender's current
// public key so the client can verify the signature after decrypting.
type EmailListItem struct {
	*models.EmailRecord
	SenderPublicKey string `json:"sender_public_key"`
}

// Inbox lists emails received by an address
// GET /api/emails/inbox/:email
func (h *EmailHandler) Inbox(c *gin.Context) {
	h.listEmails(c, h.emailRepo.ListInbox)
}

// Sent lists emails sent by an address
// GET /api/emails/sent/:email
func (h *EmailHandler) Sent(c *gin.Context) {
	h.listEmails(c, h.emailRepo.ListSent)
}

func (h *EmailHandler) listEmails(c *gin.Context, list func(string) ([]*models.EmailRecord, error)) {
	email := c.Param("email")
	if email == "" {
		RespondError(c, http.StatusBadRequest, "invalid_request", "Email address required")
		return
	}

	records, err := list(email)
	if err != nil {
		log.Printf("Error listing emails for %s: %v", email, err)
		RespondError(c, http.StatusInternalServerError, "database_error", "Failed to list emails")
		return
	}

	items := make([]EmailListItem, 0, len(records))
	for _, record := range records {
		items = append(items, EmailListItem{
			EmailRecord:     record,
			SenderPublicKey: h.senderPublicKey(record.FromEmail),
		})
	}

	c.JSON(http.StatusOK, items)
}

// senderPublicKey fetches the sender's most recent public key from the
// CA, or empty when the sender has no certificate.
func (h *EmailHandler) senderPublicKey(email string) string {
	cert, err := h.authority.LatestCertificate(email)
	if err != nil {
		return ""
	}
	return cert.SubjectPublicKey
}

// DecryptRequest represents a decryption request
type DecryptRequest struct {
	EncryptedContent string `json:"encryptedContent" binding:"required"`
	PrivateKey       string `json:"privateKey" binding:"required"`
}

// Decrypt opens an encrypted payload with the supplied private key. All
// decryption failures produce the same response.
// POST /api/emails/decrypt
func (h *EmailHandler) Decrypt(c *gin.Context) {
	var req DecryptRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_request", "Invalid request body")
		return
	}

	priv, err := certpem.ParsePrivateKey(req.PrivateKey)
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_key", "Could not parse private key")
		return
	}

	plaintext, err := crypto.Decrypt(req.EncryptedContent, priv)
	if err != nil {
		RespondError(c, http.StatusBadRequest, "decryption_failed", "Decryption failed")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"content": string(plaintext),
	})
}

// VerifySignatureRequest represents a signature verification request
type VerifySignatureRequest struct {
	Subject         string `json:"subject"`
	Content         string `json:"content" binding:"required"`
	FromEmail       string `json:"fromEmail" binding:"required"`
	ToEmail         string `json:"toEmail" binding:"required"`
	Signature       string `json:"signature" binding:"required"`
	SenderPublicKey string `json:"senderPublicKey" binding:"required"`
}

// VerifySignature checks an email signature over the canonical message
// POST /api/emails/verify
func (h *EmailHandler) VerifySignature(c *gin.Context) {
	var req VerifySignatureRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_request", "Invalid request body")
		return
	}

	pub, err := certpem.ParsePublicKey(req.SenderPublicKey)
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_key", "Could not parse public key")
		return
	}

	sig, err := base64.StdEncoding.DecodeString(req.Signature)
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_signature_encoding", "Signature must be base64")
		return
	}

	msg := crypto.CanonicalMessage{
		Subject:   req.Subject,
		Content:   req.Content,
		FromEmail: req.FromEmail,
		ToEmail:   req.ToEmail,
	}

	c.JSON(http.StatusOK, gin.H{
		"isValid": crypto.Verify(msg, sig, pub),
	})
}
