// Package config loads the server configuration from a YAML file and
// validates it eagerly so wiring failures surface at startup, not on the
// first request.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/goccy/go-yaml"
)

type Config struct {
	Server       ServerConfig      `yaml:"server"`
	Token        TokenConfig       `yaml:"token"`
	Certificates CertificateConfig `yaml:"certificates"`
	Audit        AuditConfig       `yaml:"audit"`
	Admin        AdminConfig       `yaml:"admin"`
}

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	// Addr is the listen address, e.g. ":4443" or "localhost:4443".
	Addr string `yaml:"addr"`

	// ShutdownTimeout bounds graceful shutdown. Zero means 10 seconds.
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// ExitAfterRequest stops the server once a single entitlement request
	// has been answered. Useful for smoke tests and scripted checks.
	ExitAfterRequest bool `yaml:"exit_after_request"`
}

// TokenConfig pins the audience and issuer the server accepts. Both default
// to the well-known entitlement URIs when left empty.
type TokenConfig struct {
	Audience string `yaml:"audience"`
	Issuer   string `yaml:"issuer"`
}

// CertificateConfig names the certificates by thumbprint; the actual material
// is looked up in the certificate directory.
type CertificateConfig struct {
	// Dir is the directory scanned for PEM certificates and keys.
	Dir string `yaml:"dir"`

	// SigningThumbprint selects the certificate used to verify token
	// signatures. Required.
	SigningThumbprint string `yaml:"signing_thumbprint"`

	// EncryptionThumbprint selects the certificate whose private key
	// decrypts encrypted tokens. Optional; without it the server only
	// accepts unencrypted tokens.
	EncryptionThumbprint string `yaml:"encryption_thumbprint"`
}

// AuditConfig holds configuration for auditing.
type AuditConfig struct {
	Enabled bool           `yaml:"enabled"`
	Type    string         `yaml:"type"`    // e.g., "file", "memory"
	Options map[string]any `yaml:",inline"` // Capture remaining fields
}

// AdminConfig guards the administrative endpoints.
type AdminConfig struct {
	// SigningKey is the shared HS256 secret for admin tokens. Leaving it
	// empty disables the admin endpoints entirely.
	SigningKey string `yaml:"signing_key"`
}

// Load reads and parses the configuration file at the given path.
// It returns a Config struct or an error if loading/parsing/validation fails.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config file: %w", err)
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return fmt.Errorf("server.addr is required")
	}
	if c.Server.ShutdownTimeout < 0 {
		return fmt.Errorf("server.shutdown_timeout must not be negative")
	}
	if c.Certificates.Dir == "" {
		return fmt.Errorf("certificates.dir is required")
	}
	if c.Certificates.SigningThumbprint == "" {
		return fmt.Errorf("certificates.signing_thumbprint is required")
	}
	if c.Audit.Enabled {
		switch c.Audit.Type {
		case "memory", "file":
		case "":
			return fmt.Errorf("audit.type is required when auditing is enabled")
		default:
			return fmt.Errorf("unknown audit type %q", c.Audit.Type)
		}
	}
	return nil
}
