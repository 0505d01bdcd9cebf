package handlers

import (
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/secmail/secmaild/internal/ca"
	"github.com/secmail/secmaild/internal/db/repository"
	"github.com/secmail/secmaild/internal/models"
	"github.com/secmail/secmaild/pkg/certpem"
)

// CertHandler handles certificate revocation and verification
type CertHandler struct {
	authority *ca.CA
	auditRepo *repository.AuditRepository
}

// NewCertHandler creates a new certificate handler
func NewCertHandler(authority *ca.CA, auditRepo *repository.AuditRepository) *CertHandler {
	return &CertHandler{
		authority: authority,
		auditRepo: auditRepo,
	}
}

// RevokeRequest represents a revocation request
type RevokeRequest struct {
	SerialNumber string `json:"serialNumber" binding:"required"`
	Reason       string `json:"reason"`
}

// Revoke terminally revokes a certificate by serial number. Revoking an
// already-revoked certificate is treated as success here: the caller's
// desired state holds either way.
// POST /api/certificates/revoke
func (h *CertHandler) Revoke(c *gin.Context) {
	var req RevokeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_request", "Invalid request body")
		return
	}

	clientIP := GetClientIP(c)
	userAgent := c.GetHeader("User-Agent")

	err := h.authority.Revoke(req.SerialNumber, req.Reason)
	if err != nil && !errors.Is(err, repository.ErrAlreadyRevoked) {
		if errors.Is(err, repository.ErrNotFound) {
			RespondError(c, http.StatusNotFound, "not_found", "No certificate with that serial number")
			return
		}
		log.Printf("Error revoking certificate %s: %v", req.SerialNumber, err)
		RespondError(c, http.StatusInternalServerError, "internal_error", "Failed to revoke certificate")
		return
	}

	h.auditRepo.Create(&models.AuditLog{
		Action:    models.ActionCertRevoke,
		Subject:   req.SerialNumber,
		ClientIP:  clientIP,
		UserAgent: userAgent,
		Success:   true,
		Details:   req.Reason,
	})

	c.JSON(http.StatusOK, gin.H{
		"success": true,
	})
}

// VerifyRequest represents a certificate verification request
type VerifyRequest struct {
	Certificate string `json:"certificate" binding:"required"`
}

// VerifyResponse reports the validation outcome for a certificate
type VerifyResponse struct {
	IsValid          bool   `json:"isValid"`
	IsRevoked        bool   `json:"isRevoked"`
	Status           string `json:"status"`
	RevocationReason string `json:"revocationReason,omitempty"`
}

// Verify validates a presented certificate: CA signature, validity
// window, then revocation status.
// POST /api/certificates/verify
func (h *CertHandler) Verify(c *gin.Context) {
	var req VerifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_request", "Invalid request body")
		return
	}

	cert, err := certpem.DecodeCertificate(req.Certificate)
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_certificate", "Could not parse certificate")
		return
	}

	result, err := h.authority.Validate(cert)
	if err != nil {
		log.Printf("Error validating certificate %s: %v", cert.SerialNumber, err)
		RespondError(c, http.StatusInternalServerError, "internal_error", "Failed to validate certificate")
		return
	}

	c.JSON(http.StatusOK, VerifyResponse{
		IsValid:          result.Valid(),
		IsRevoked:        result.Status == ca.StatusRevoked,
		Status:           result.Status.String(),
		RevocationReason: result.RevocationReason,
	})
}
