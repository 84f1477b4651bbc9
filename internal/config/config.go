// Package config loads and holds all proxy configuration.
// Settings are layered: defaults → environment variables (env vars win).
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Config holds the full proxy configuration (spec.md §6).
type Config struct {
	UpstreamCommand string   // UPSTREAM_MCP_COMMAND
	UpstreamArgs    []string // UPSTREAM_MCP_ARGS, whitespace-split
	UpstreamURL     string   // UPSTREAM_MCP_URL

	ComplianceProfile string // COMPLIANCE_PROFILE, default "GDPR"
	AuditEnabled      bool   // AUDIT_ENABLED, default true
	ComprehendEnabled bool   // COMPREHEND_ENABLED, default false
	AWSRegion         string // AWS_REGION, default "us-east-1"

	ManagementPort int
	LogLevel       string
}

// ConfigurationError reports a startup-only configuration failure
// (spec.md §7). The caller prints it to the error stream and exits
// non-zero; it is never retried or swallowed.
type ConfigurationError struct {
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error: %s", e.Reason)
}

// Load returns config with defaults overridden by environment variables.
// It reports a *ConfigurationError if neither UPSTREAM_MCP_COMMAND nor
// UPSTREAM_MCP_URL names an upstream backend.
func Load() (*Config, error) {
	cfg := defaults()
	loadEnv(cfg)

	if cfg.UpstreamCommand == "" && cfg.UpstreamURL == "" {
		return nil, &ConfigurationError{
			Reason: "neither UPSTREAM_MCP_COMMAND nor UPSTREAM_MCP_URL is set",
		}
	}
	return cfg, nil
}

func defaults() *Config {
	return &Config{
		ComplianceProfile: "GDPR",
		AuditEnabled:      true,
		ComprehendEnabled: false,
		AWSRegion:         "us-east-1",
		ManagementPort:    8090,
		LogLevel:          "info",
	}
}

func loadEnv(cfg *Config) {
	if v := os.Getenv("UPSTREAM_MCP_COMMAND"); v != "" {
		cfg.UpstreamCommand = v
	}
	if v := os.Getenv("UPSTREAM_MCP_URL"); v != "" {
		cfg.UpstreamURL = v
	}
	if v := os.Getenv("UPSTREAM_MCP_ARGS"); v != "" {
		cfg.UpstreamArgs = strings.Fields(v)
	}
	if v := os.Getenv("COMPLIANCE_PROFILE"); v != "" {
		cfg.ComplianceProfile = v
	}
	if v := os.Getenv("AUDIT_ENABLED"); v == "false" {
		cfg.AuditEnabled = false
	}
	if v := os.Getenv("COMPREHEND_ENABLED"); v == "true" {
		cfg.ComprehendEnabled = true
	}
	if v := os.Getenv("AWS_REGION"); v != "" {
		cfg.AWSRegion = v
	}
	if v := os.Getenv("MANAGEMENT_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.ManagementPort = n
		}
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
}
