package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	return &Config{
		Server:   ServerConfig{ListenAddr: ":8080"},
		Database: DatabaseConfig{Path: "/var/lib/secmail/secmail.db"},
		CA: CAConfig{
			Name:            "SecMail Root CA",
			PrivateKeyPath:  "/etc/secmail/ca.key",
			CertificatePath: "/etc/secmail/ca.crt",
			Validity:        "365d",
			RootValidity:    "3650d",
		},
		Auth:    AuthConfig{TokenValidity: "24h"},
		Policy:  PolicyConfig{MaxCertsPerDay: 10},
		Admin:   AdminConfig{Token: "test-admin-token"},
		Logging: LoggingConfig{Level: "info", Format: "text"},
	}
}

func TestValidateOK(t *testing.T) {
	assert.NoError(t, validConfig().Validate())
}

func TestValidateFailures(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing listen addr", func(c *Config) { c.Server.ListenAddr = "" }},
		{"missing db path", func(c *Config) { c.Database.Path = "" }},
		{"missing ca name", func(c *Config) { c.CA.Name = "" }},
		{"missing key path", func(c *Config) { c.CA.PrivateKeyPath = "" }},
		{"missing cert path", func(c *Config) { c.CA.CertificatePath = "" }},
		{"bad validity", func(c *Config) { c.CA.Validity = "soon" }},
		{"bad token validity", func(c *Config) { c.Auth.TokenValidity = "never" }},
		{"zero certs per day", func(c *Config) { c.Policy.MaxCertsPerDay = 0 }},
		{"missing admin token", func(c *Config) { c.Admin.Token = "" }},
		{"bad log level", func(c *Config) { c.Logging.Level = "verbose" }},
		{"bad log format", func(c *Config) { c.Logging.Format = "xml" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestDurationHelpers(t *testing.T) {
	cfg := validConfig()
	assert.Equal(t, 365*24*time.Hour, cfg.GetValidityDuration())
	assert.Equal(t, 3650*24*time.Hour, cfg.GetRootValidityDuration())
	assert.Equal(t, 24*time.Hour, cfg.GetTokenValidityDuration())
}

const testYAML = `
server:
  listen_addr: ":9090"
database:
  path: "/tmp/test.db"
ca:
  name: "SecMail Root CA"
  private_key_path: "/tmp/ca.key"
  certificate_path: "/tmp/ca.crt"
  validity: "365d"
  root_validity: "3650d"
auth:
  token_validity: "12h"
policy:
  max_certs_per_day: 5
admin:
  token: "file-admin-token"
logging:
  level: "debug"
  format: "json"
`

func writeTestConfig(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(testYAML), 0600))
	return path
}

func TestLoad(t *testing.T) {
	cfg, err := Load(writeTestConfig(t))
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Server.ListenAddr)
	assert.Equal(t, 5, cfg.Policy.MaxCertsPerDay)
	assert.Equal(t, 12*time.Hour, cfg.GetTokenValidityDuration())
}

func TestLoadWithEnvOverrides(t *testing.T) {
	t.Setenv("SECMAIL_LISTEN_ADDR", ":7070")
	t.Setenv("SECMAIL_ADMIN_TOKEN", "env-admin-token")

	cfg, err := LoadWithEnv(writeTestConfig(t))
	require.NoError(t, err)

	assert.Equal(t, ":7070", cfg.Server.ListenAddr)
	assert.Equal(t, "env-admin-token", cfg.Admin.Token)
	// Untouched values come from the file
	assert.Equal(t, "/tmp/test.db", cfg.Database.Path)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load("/nonexistent/config.yaml")
	assert.Error(t, err)
}
