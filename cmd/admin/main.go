package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/secmail/secmaild/internal/ca"
	"github.com/secmail/secmaild/internal/config"
	"github.com/secmail/secmaild/internal/db"
	"github.com/secmail/secmaild/internal/db/repository"
)

var (
	configPath string
	cfg        *config.Config
	database   *db.DB
)

var rootCmd = &cobra.Command{
	Use:   "admin",
	Short: "SecMail CA Server administration tool",
	Long:  "Administrative tool for managing SecMail users, certificates, and audit logs",
}

var userCmd = &cobra.Command{
	Use:   "user",
	Short: "Manage users",
}

var userListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all users",
	RunE:  listUsers,
}

var certCmd = &cobra.Command{
	Use:   "cert",
	Short: "Manage certificates",
}

var certListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all issued certificates",
	RunE:  listCerts,
}

var certRevokeCmd = &cobra.Command{
	Use:   "revoke",
	Short: "Revoke a certificate by serial number",
	RunE:  revokeCert,
}

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Inspect audit logs",
}

var auditTailCmd = &cobra.Command{
	Use:   "tail",
	Short: "Show the most recent audit entries",
	RunE:  tailAudit,
}

var (
	serialNumber string
	revokeReason string
	auditLimit   int
)

func init() {
	// Root flags
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "/etc/secmail/config.yaml", "Config file path")

	// Cert revoke flags
	certRevokeCmd.Flags().StringVarP(&serialNumber, "serial", "s", "", "Certificate serial number (required)")
	certRevokeCmd.Flags().StringVarP(&revokeReason, "reason", "r", "unspecified", "Revocation reason")
	certRevokeCmd.MarkFlagRequired("serial")

	// Audit tail flags
	auditTailCmd.Flags().IntVarP(&auditLimit, "limit", "n", 20, "Number of entries to show")

	// Add commands
	userCmd.AddCommand(userListCmd)
	certCmd.AddCommand(certListCmd)
	certCmd.AddCommand(certRevokeCmd)
	auditCmd.AddCommand(auditTailCmd)
	rootCmd.AddCommand(userCmd)
	rootCmd.AddCommand(certCmd)
	rootCmd.AddCommand(auditCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// setup loads config and opens the database
func setup() error {
	var err error
	cfg, err = config.LoadWithEnv(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	database, err = db.New(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	return db.RunMigrations(database)
}

func listUsers(cmd *cobra.Command, args []string) error {
	if err := setup(); err != nil {
		return err
	}
	defer database.Close()

	users, err := repository.NewUserRepository(database.DB).List()
	if err != nil {
		return err
	}

	fmt.Printf("%-5s %-30s %-25s %s\n", "ID", "EMAIL", "NAME", "CREATED")
	for _, u := range users {
		fmt.Printf("%-5d %-30s %-25s %s\n", u.ID, u.Email, u.Name, u.CreatedAt.Format(time.RFC3339))
	}

	return nil
}

func listCerts(cmd *cobra.Command, args []string) error {
	if err := setup(); err != nil {
		return err
	}
	defer database.Close()

	certs, err := repository.NewCertRepository(database.DB).List()
	if err != nil {
		return err
	}

	fmt.Printf("%-34s %-30s %-10s %-20s %s\n", "SERIAL", "SUBJECT", "STATUS", "ISSUED", "EXPIRES")
	now := time.Now()
	for _, c := range certs {
		status := "active"
		switch {
		case c.Revoked:
			status = "revoked"
		case c.IsExpiredAt(now):
			status = "expired"
		}
		fmt.Printf("%-34s %-30s %-10s %-20s %s\n",
			c.SerialNumber,
			c.SubjectEmail,
			status,
			c.IssuedAt.Format("2006-01-02 15:04:05"),
			c.ExpiresAt.Format("2006-01-02 15:04:05"),
		)
	}

	return nil
}

func revokeCert(cmd *cobra.Command, args []string) error {
	if err := setup(); err != nil {
		return err
	}
	defer database.Close()

	certRepo := repository.NewCertRepository(database.DB)

	keyPair, rootCert, err := ca.LoadOrCreateRoot(
		cfg.CA.Name,
		cfg.CA.PrivateKeyPath,
		cfg.CA.CertificatePath,
		cfg.GetRootValidityDuration(),
	)
	if err != nil {
		return err
	}

	authority := ca.New(cfg.CA.Name, cfg.GetValidityDuration(), keyPair, rootCert, certRepo)
	if err := authority.Revoke(serialNumber, revokeReason); err != nil {
		return err
	}

	fmt.Printf("Certificate %s revoked (%s)\n", serialNumber, revokeReason)
	return nil
}

func tailAudit(cmd *cobra.Command, args []string) error {
	if err := setup(); err != nil {
		return err
	}
	defer database.Close()

	entries, err := repository.NewAuditRepository(database.DB).Recent(auditLimit)
	if err != nil {
		return err
	}

	for _, e := range entries {
		outcome := "ok"
		if !e.Success {
			outcome = "FAIL " + e.ErrorMsg
		}
		fmt.Printf("%s %-15s %-30s %-15s %s\n",
			e.Timestamp.Format(time.RFC3339),
			e.Action,
			e.Subject,
			e.ClientIP,
			outcome,
		)
	}

	return nil
}
