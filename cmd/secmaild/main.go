package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/secmail/secmaild/internal/api"
	"github.com/secmail/secmaild/internal/ca"
	"github.com/secmail/secmaild/internal/config"
	"github.com/secmail/secmaild/internal/db"
	"github.com/secmail/secmaild/internal/db/repository"
	"github.com/secmail/secmaild/internal/mail"
	"github.com/secmail/secmaild/internal/policy"
)

var (
	// Version information (set via ldflags)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	// Parse command line flags
	configPath := flag.String("config", "/etc/secmail/config.yaml", "Path to configuration file")
	showVersion := flag.Bool("version", false, "Show version information")
	flag.Parse()

	if *showVersion {
		fmt.Printf("SecMail CA Server\n")
		fmt.Printf("Version:    %s\n", Version)
		fmt.Printf("Commit:     %s\n", Commit)
		fmt.Printf("Build Time: %s\n", BuildTime)
		os.Exit(0)
	}

	log.Printf("Starting SecMail CA Server %s (commit: %s)", Version, Commit)

	// Load configuration
	log.Printf("Loading configuration from %s", *configPath)
	cfg, err := config.LoadWithEnv(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize database
	log.Printf("Connecting to database: %s", cfg.Database.Path)
	database, err := db.New(cfg.Database.Path)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.Close()

	// Run migrations
	log.Printf("Running database migrations...")
	if err := db.RunMigrations(database); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	// Load or create root CA material
	log.Printf("Loading CA root from %s", cfg.CA.PrivateKeyPath)
	keyPair, rootCert, err := ca.LoadOrCreateRoot(
		cfg.CA.Name,
		cfg.CA.PrivateKeyPath,
		cfg.CA.CertificatePath,
		cfg.GetRootValidityDuration(),
	)
	if err != nil {
		log.Fatalf("Failed to load/create CA root: %v", err)
	}
	log.Printf("CA root loaded (serial: %s)", rootCert.SerialNumber)

	// Initialize repositories
	userRepo := repository.NewUserRepository(database.DB)
	certRepo := repository.NewCertRepository(database.DB)
	tokenRepo := repository.NewTokenRepository(database.DB)
	emailRepo := repository.NewEmailRepository(database.DB)
	auditRepo := repository.NewAuditRepository(database.DB)

	// Prune session tokens that expired while the server was down
	if removed, err := tokenRepo.DeleteExpired(time.Now().UTC()); err != nil {
		log.Printf("Failed to prune expired tokens: %v", err)
	} else if removed > 0 {
		log.Printf("Pruned %d expired session tokens", removed)
	}

	// Initialize the CA and messaging engine
	authority := ca.New(cfg.CA.Name, cfg.GetValidityDuration(), keyPair, rootCert, certRepo)
	engine := mail.NewEngine(authority, emailRepo)

	// Initialize policy validator
	validator := policy.NewValidator(cfg, certRepo)

	// Create HTTP server
	server := api.NewServer(
		cfg,
		database,
		authority,
		engine,
		userRepo,
		tokenRepo,
		emailRepo,
		auditRepo,
		validator,
	)

	// Setup graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	// Start server in a goroutine
	go func() {
		log.Printf("Starting HTTP server on %s", cfg.Server.ListenAddr)
		if err := server.Run(); err != nil {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	log.Printf("SecMail CA Server is running")

	// Wait for interrupt signal
	<-quit
	log.Printf("Shutting down server...")

	database.Close()

	log.Printf("Server stopped")
}
