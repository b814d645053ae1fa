package entra

import (
	"fmt"
	"os"
	"strings"
	"time"
)

// Environment variable names for the identity configuration.
const (
	EnvTenantID     = "D365_TENANT_ID"
	EnvClientID     = "D365_CLIENT_ID"
	EnvClientSecret = "D365_CLIENT_SECRET"
	EnvResourceURL  = "D365_RESOURCE_URL"
)

// DefaultLoginBase is the Microsoft identity platform endpoint used for the
// client credentials exchange.
const DefaultLoginBase = "https://login.microsoftonline.com"

// DefaultExchangeTimeout bounds a single token exchange HTTP call.
const DefaultExchangeTimeout = 30 * time.Second

// Config holds the identity parameters required for a client credentials
// token exchange against Entra ID.
type Config struct {
	// TenantID is the Entra ID tenant (directory) identifier.
	TenantID string

	// ClientID is the application (client) identifier.
	ClientID string

	// ClientSecret is the application client secret.
	ClientSecret string

	// Resource is the base URL of the Dynamics 365 environment the token is
	// requested for (e.g. https://myorg.operations.dynamics.com). It doubles
	// as the OAuth2 resource parameter.
	Resource string

	// LoginBase overrides the identity endpoint base URL. Used in tests;
	// defaults to DefaultLoginBase.
	LoginBase string
}

// ConfigFromEnv builds a Config from the D365_* environment variables.
func ConfigFromEnv() Config {
	return Config{
		TenantID:     os.Getenv(EnvTenantID),
		ClientID:     os.Getenv(EnvClientID),
		ClientSecret: os.Getenv(EnvClientSecret),
		Resource:     strings.TrimRight(os.Getenv(EnvResourceURL), "/"),
	}
}

// Validate checks that all required identity parameters are present.
// It returns a *ConfigError naming every missing parameter so the failure is
// actionable, and must be called before any network exchange is attempted.
func (c Config) Validate() error {
	var missing []string
	if c.TenantID == "" {
		missing = append(missing, EnvTenantID)
	}
	if c.ClientID == "" {
		missing = append(missing, EnvClientID)
	}
	if c.ClientSecret == "" {
		missing = append(missing, EnvClientSecret)
	}
	if c.Resource == "" {
		missing = append(missing, EnvResourceURL)
	}
	if len(missing) > 0 {
		return &ConfigError{Missing: missing}
	}
	return nil
}

// tokenURL returns the v1 token endpoint for the configured tenant.
func (c Config) tokenURL() string {
	base := c.LoginBase
	if base == "" {
		base = DefaultLoginBase
	}
	return fmt.Sprintf("%s/%s/oauth2/token", strings.TrimRight(base, "/"), c.TenantID)
}
