package config

import (
	"fmt"
	"time"
)

// Config holds all configuration for the application
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	CA       CAConfig       `yaml:"ca"`
	Auth     AuthConfig     `yaml:"auth"`
	Policy   PolicyConfig   `yaml:"policy"`
	Admin    AdminConfig    `yaml:"admin"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// ServerConfig contains server configuration
type ServerConfig struct {
	ListenAddr string `yaml:"listen_addr"`
}

// DatabaseConfig contains database configuration
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// CAConfig contains root CA configuration
type CAConfig struct {
	Name            string `yaml:"name"`
	PrivateKeyPath  string `yaml:"private_key_path"`
	CertificatePath string `yaml:"certificate_path"`
	Validity        string `yaml:"validity"`
	RootValidity    string `yaml:"root_validity"`
}

// AuthConfig contains session token configuration
type AuthConfig struct {
	TokenValidity string `yaml:"token_validity"`
}

// PolicyConfig contains certificate issuance policy
type PolicyConfig struct {
	MaxCertsPerDay int `yaml:"max_certs_per_day"`
}

// AdminConfig contains admin configuration
type AdminConfig struct {
	Token string `yaml:"token"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.ListenAddr == "" {
		return fmt.Errorf("server.listen_addr is required")
	}

	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}

	if c.CA.Name == "" {
		return fmt.Errorf("ca.name is required")
	}
	if c.CA.PrivateKeyPath == "" {
		return fmt.Errorf("ca.private_key_path is required")
	}
	if c.CA.CertificatePath == "" {
		return fmt.Errorf("ca.certificate_path is required")
	}
	if _, err := parseDuration(c.CA.Validity); err != nil {
		return fmt.Errorf("ca.validity is invalid: %w", err)
	}
	if _, err := parseDuration(c.CA.RootValidity); err != nil {
		return fmt.Errorf("ca.root_validity is invalid: %w", err)
	}

	if _, err := parseDuration(c.Auth.TokenValidity); err != nil {
		return fmt.Errorf("auth.token_validity is invalid: %w", err)
	}

	if c.Policy.MaxCertsPerDay <= 0 {
		return fmt.Errorf("policy.max_certs_per_day must be positive")
	}

	if c.Admin.Token == "" {
		return fmt.Errorf("admin.token is required")
	}

	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}
	if c.Logging.Format != "json" && c.Logging.Format != "text" {
		return fmt.Errorf("logging.format must be 'json' or 'text'")
	}

	return nil
}

// GetValidityDuration returns the subject certificate validity as time.Duration
func (c *Config) GetValidityDuration() time.Duration {
	d, _ := parseDuration(c.CA.Validity)
	return d
}

// GetRootValidityDuration returns the root certificate validity as time.Duration
func (c *Config) GetRootValidityDuration() time.Duration {
	d, _ := parseDuration(c.CA.RootValidity)
	return d
}

// GetTokenValidityDuration returns the session token validity as time.Duration
func (c *Config) GetTokenValidityDuration() time.Duration {
	d, _ := parseDuration(c.Auth.TokenValidity)
	return d
}

// parseDuration parses duration with support for days (e.g., "365d")
func parseDuration(s string) (time.Duration, error) {
	// Handle "d" suffix for days
	if len(s) > 1 && s[len(s)-1] == 'd' {
		days := s[:len(s)-1]
		var d int
		if _, err := fmt.Sscanf(days, "%d", &d); err != nil {
			return 0, err
		}
		return time.Duration(d) * 24 * time.Hour, nil
	}
	return time.ParseDuration(s)
}
