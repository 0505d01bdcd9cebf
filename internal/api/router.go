package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/secmail/secmaild/internal/api/handlers"
	"github.com/secmail/secmaild/internal/api/middleware"
	"github.com/secmail/secmaild/internal/ca"
	"github.com/secmail/secmaild/internal/config"
	"github.com/secmail/secmaild/internal/db"
	"github.com/secmail/secmaild/internal/db/repository"
	"github.com/secmail/secmaild/internal/mail"
	"github.com/secmail/secmaild/internal/policy"
)

// Server represents the HTTP server
type Server struct {
	router *gin.Engine
	config *config.Config
}

// NewServer creates a new API server
func NewServer(
	cfg *config.Config,
	database *db.DB,
	authority *ca.CA,
	engine *mail.Engine,
	userRepo *repository.UserRepository,
	tokenRepo *repository.TokenRepository,
	emailRepo *repository.EmailRepository,
	auditRepo *repository.AuditRepository,
	validator *policy.Validator,
) *Server {
	// Set Gin mode
	if cfg.Logging.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	// Global middleware
	router.Use(gin.Recovery())
	router.Use(middleware.Logger())

	// Create handlers
	authHandler := handlers.NewAuthHandler(cfg, authority, userRepo, tokenRepo, auditRepo, validator)
	caHandler := handlers.NewCAHandler(authority)
	certHandler := handlers.NewCertHandler(authority, auditRepo)
	emailHandler := handlers.NewEmailHandler(engine, authority, userRepo, emailRepo, auditRepo)

	// API routes
	apiGroup := router.Group("/api")
	{
		authGroup := apiGroup.Group("/auth")
		{
			authGroup.POST("/register", authHandler.Register)
			authGroup.POST("/login", authHandler.Login)
			authGroup.GET("/users", authHandler.ListUsers)
		}

		caGroup := apiGroup.Group("/ca")
		{
			caGroup.GET("/certificate", caHandler.GetRootCertificate)
			caGroup.GET("/certificates", caHandler.ListCertificates)
		}

		certGroup := apiGroup.Group("/certificates")
		{
			// Revocation is an operator action and requires the admin token
			certGroup.POST("/revoke", middleware.AdminAuth(cfg.Admin.Token), certHandler.Revoke)
			certGroup.POST("/verify", certHandler.Verify)
		}

		emailGroup := apiGroup.Group("/emails")
		{
			emailGroup.POST("/send", middleware.BearerAuth(tokenRepo), emailHandler.Send)
			emailGroup.GET("/inbox/:email", emailHandler.Inbox)
			emailGroup.GET("/sent/:email", emailHandler.Sent)
			emailGroup.POST("/decrypt", emailHandler.Decrypt)
			emailGroup.POST("/verify", emailHandler.VerifySignature)
		}

		// Health check: up only when the database is reachable
		apiGroup.GET("/health", func(c *gin.Context) {
			if err := database.Ping(); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{
					"status": "unavailable",
				})
				return
			}
			c.JSON(http.StatusOK, gin.H{
				"status": "ok",
			})
		})
	}

	return &Server{
		router: router,
		config: cfg,
	}
}

// Run starts the HTTP server
func (s *Server) Run() error {
	return s.router.Run(s.config.Server.ListenAddr)
}

// Router returns the underlying Gin router
func (s *Server) Router() *gin.Engine {
	return s.router
}
