package handlers

import (
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/secmail/secmaild/internal/ca"
	"github.com/secmail/secmaild/pkg/certpem"
)

// CAHandler handles CA root and certificate listing requests
type CAHandler struct {
	authority *ca.CA
}

// NewCAHandler creates a new CA handler
func NewCAHandler(authority *ca.CA) *CAHandler {
	return &CAHandler{
		authority: authority,
	}
}

// GetRootCertificate returns the CA's self-signed root certificate
// GET /api/ca/certificate
func (h *CAHandler) GetRootCertificate(c *gin.Context) {
	certPEM, err := certpem.EncodeCertificate(h.authority.Root())
	if err != nil {
		log.Printf("Error encoding root certificate: %v", err)
		RespondError(c, http.StatusInternalServerError, "internal_error", "Failed to encode root certificate")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"certificate": certPEM,
	})
}

// ListCertificates returns all issued certificates ordered by issuance
// time ascending, for audit and browsing.
// GET /api/ca/certificates
func (h *CAHandler) ListCertificates(c *gin.Context) {
	certs, err := h.authority.List()
	if err != nil {
		log.Printf("Error listing certificates: %v", err)
		RespondError(c, http.StatusInternalServerError, "database_error", "Failed to list certificates")
		return
	}

	c.JSON(http.StatusOK, certs)
}
