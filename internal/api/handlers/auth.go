package handlers

import (
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/secmail/secmaild/internal/auth"
	"github.com/secmail/secmaild/internal/ca"
	"github.com/secmail/secmaild/internal/config"
	"github.com/secmail/secmaild/internal/db/repository"
	"github.com/secmail/secmaild/internal/models"
	"github.com/secmail/secmaild/internal/policy"
	"github.com/secmail/secmaild/pkg/certpem"
)

// AuthHandler handles registration, login and the user directory
type AuthHandler struct {
	config    *config.Config
	authority *ca.CA
	userRepo  *repository.UserRepository
	tokenRepo *repository.TokenRepository
	auditRepo *repository.AuditRepository
	validator *policy.Validator
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(
	cfg *config.Config,
	authority *ca.CA,
	userRepo *repository.UserRepository,
	tokenRepo *repository.TokenRepository,
	auditRepo *repository.AuditRepository,
	validator *policy.Validator,
) *AuthHandler {
	return &AuthHandler{
		config:    cfg,
		authority: authority,
		userRepo:  userRepo,
		tokenRepo: tokenRepo,
		auditRepo: auditRepo,
		validator: validator,
	}
}

// RegisterRequest represents a registration request
type RegisterRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Name     string `json:"name" binding:"required"`
	Password string `json:"password" binding:"required,min=8"`
}

// UserResponse is the user shape returned to the client
type UserResponse struct {
	ID          int64  `json:"id"`
	Email       string `json:"email"`
	Name        string `json:"name"`
	Certificate string `json:"certificate"`
	PublicKey   string `json:"publicKey"`
	PrivateKey  string `json:"privateKey"`
}

// AuthResponse wraps a user plus a session token
type AuthResponse struct {
	User  UserResponse `json:"user"`
	Token string       `json:"token"`
}

// Register handles new user registration. The key pair is generated here
// and the private key is delivered exactly once, in this response; the
// server never stores it.
// POST /api/auth/register
func (h *AuthHandler) Register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_request", "Invalid request body")
		return
	}

	clientIP := GetClientIP(c)
	userAgent := c.GetHeader("User-Agent")

	if existing, _ := h.userRepo.GetByEmail(req.Email); existing != nil {
		RespondError(c, http.StatusConflict, "user_exists", "User already exists")
		return
	}

	if err := h.validator.ValidateIssueRequest(req.Email); err != nil {
		RespondError(c, http.StatusForbidden, "policy_violation", err.Error())
		return
	}

	passwordHash, err := auth.HashPassword(req.Password)
	if err != nil {
		log.Printf("Error hashing password: %v", err)
		RespondError(c, http.StatusInternalServerError, "internal_error", "Failed to process registration")
		return
	}

	keyPair, err := ca.GenerateKeyPair()
	if err != nil {
		log.Printf("Error generating key pair: %v", err)
		RespondError(c, http.StatusInternalServerError, "key_generation_error", "Failed to generate key pair")
		return
	}

	publicKeyPEM, err := keyPair.PublicKeyPEM()
	if err != nil {
		log.Printf("Error encoding public key: %v", err)
		RespondError(c, http.StatusInternalServerError, "internal_error", "Failed to encode public key")
		return
	}

	cert, err := h.authority.Issue(req.Name, req.Email, publicKeyPEM)
	if err != nil {
		if errors.Is(err, repository.ErrDuplicateActiveSubject) {
			RespondError(c, http.StatusConflict, "duplicate_subject", "An active certificate already exists for this email")
			return
		}
		log.Printf("Error issuing certificate: %v", err)
		RespondError(c, http.StatusInternalServerError, "issuance_error", "Failed to issue certificate")
		return
	}

	h.auditRepo.Create(&models.AuditLog{
		Action:    models.ActionCertIssue,
		Subject:   req.Email,
		ClientIP:  clientIP,
		UserAgent: userAgent,
		Success:   true,
		Details:   cert.SerialNumber,
	})

	user := &models.User{
		Email:        req.Email,
		Name:         req.Name,
		PasswordHash: passwordHash,
	}
	if err := h.userRepo.Create(user); err != nil {
		log.Printf("Error creating user: %v", err)
		// The certificate must not outlive the failed registration, or it
		// would block a retry with a duplicate-subject error.
		if revokeErr := h.authority.Revoke(cert.SerialNumber, models.RevocationCessation); revokeErr != nil {
			log.Printf("Error revoking certificate %s after failed registration: %v", cert.SerialNumber, revokeErr)
		}
		RespondError(c, http.StatusInternalServerError, "database_error", "Failed to create user")
		return
	}

	token, err := h.issueToken(user.ID)
	if err != nil {
		log.Printf("Error issuing token: %v", err)
		RespondError(c, http.StatusInternalServerError, "internal_error", "Failed to create session")
		return
	}

	certPEM, err := certpem.EncodeCertificate(cert)
	if err != nil {
		log.Printf("Error encoding certificate: %v", err)
		RespondError(c, http.StatusInternalServerError, "internal_error", "Failed to encode certificate")
		return
	}

	h.auditRepo.Create(&models.AuditLog{
		Action:    models.ActionUserRegister,
		Subject:   req.Email,
		ClientIP:  clientIP,
		UserAgent: userAgent,
		Success:   true,
		Details:   cert.SerialNumber,
	})

	c.JSON(http.StatusOK, AuthResponse{
		User: UserResponse{
			ID:          user.ID,
			Email:       user.Email,
			Name:        user.Name,
			Certificate: certPEM,
			PublicKey:   publicKeyPEM,
			PrivateKey:  keyPair.PrivateKeyPEM(),
		},
		Token: token,
	})
}

// LoginRequest represents a login request
type LoginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// Login authenticates a user. The private key is never re-delivered:
// registration is its only delivery.
// POST /api/auth/login
func (h *AuthHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_request", "Invalid request body")
		return
	}

	clientIP := GetClientIP(c)
	userAgent := c.GetHeader("User-Agent")

	user, err := h.userRepo.GetByEmail(req.Email)
	if err != nil || !auth.VerifyPassword(req.Password, user.PasswordHash) {
		h.auditRepo.Create(&models.AuditLog{
			Action:    models.ActionAuthFailed,
			Subject:   req.Email,
			ClientIP:  clientIP,
			UserAgent: userAgent,
			Success:   false,
			ErrorMsg:  "invalid credentials",
		})
		RespondError(c, http.StatusUnauthorized, "invalid_credentials", "Invalid email or password")
		return
	}

	certPEM, publicKeyPEM := h.lookupCertificate(user.Email)

	token, err := h.issueToken(user.ID)
	if err != nil {
		log.Printf("Error issuing token: %v", err)
		RespondError(c, http.StatusInternalServerError, "internal_error", "Failed to create session")
		return
	}

	h.auditRepo.Create(&models.AuditLog{
		Action:    models.ActionUserLogin,
		Subject:   req.Email,
		ClientIP:  clientIP,
		UserAgent: userAgent,
		Success:   true,
	})

	c.JSON(http.StatusOK, AuthResponse{
		User: UserResponse{
			ID:          user.ID,
			Email:       user.Email,
			Name:        user.Name,
			Certificate: certPEM,
			PublicKey:   publicKeyPEM,
			PrivateKey:  "",
		},
		Token: token,
	})
}

// DirectoryEntry is a user directory listing item
type DirectoryEntry struct {
	ID          int64  `json:"id"`
	Email       string `json:"email"`
	Name        string `json:"name"`
	PublicKey   string `json:"publicKey"`
	Certificate string `json:"certificate"`
}

// ListUsers returns the user directory with each user's active
// certificate and public key.
// GET /api/auth/users
func (h *AuthHandler) ListUsers(c *gin.Context) {
	users, err := h.userRepo.List()
	if err != nil {
		log.Printf("Error listing users: %v", err)
		RespondError(c, http.StatusInternalServerError, "database_error", "Failed to list users")
		return
	}

	entries := make([]DirectoryEntry, 0, len(users))
	for _, user := range users {
		certPEM, publicKeyPEM := h.lookupCertificate(user.Email)
		entries = append(entries, DirectoryEntry{
			ID:          user.ID,
			Email:       user.Email,
			Name:        user.Name,
			PublicKey:   publicKeyPEM,
			Certificate: certPEM,
		})
	}

	c.JSON(http.StatusOK, entries)
}

// lookupCertificate returns the PEM certificate and public key for a
// user's active certificate, or empty strings when none exists (all
// certificates revoked or expired).
func (h *AuthHandler) lookupCertificate(email string) (certPEM, publicKeyPEM string) {
	cert, err := h.authority.ActiveCertificate(email)
	if err != nil {
		return "", ""
	}

	certPEM, err = certpem.EncodeCertificate(cert)
	if err != nil {
		log.Printf("Error encoding certificate for %s: %v", email, err)
		return "", ""
	}

	return certPEM, cert.SubjectPublicKey
}

func (h *AuthHandler) issueToken(userID int64) (string, error) {
	token, err := auth.GenerateToken()
	if err != nil {
		return "", err
	}

	record := &models.AuthToken{
		UserID:    userID,
		TokenHash: auth.HashToken(token),
		ExpiresAt: time.Now().UTC().Add(h.config.GetTokenValidityDuration()),
	}
	if err := h.tokenRepo.Create(record); err != nil {
		return "", err
	}

	return token, nil
}
