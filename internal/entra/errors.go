package entra

import (
	"fmt"
	"strings"
)

// ConfigError indicates that required identity parameters are missing.
// It is returned before any network call is attempted.
type ConfigError struct {
	// Missing lists the environment variable names of the absent parameters.
	Missing []string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("missing required Dynamics 365 configuration: %s", strings.Join(e.Missing, ", "))
}

// AuthError indicates that the identity provider rejected the token exchange.
type AuthError struct {
	// StatusCode is the HTTP status returned by the identity provider.
	StatusCode int

	// Body is the raw response body, kept for diagnosability.
	Body string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("token exchange failed with status %d: %s", e.StatusCode, e.Body)
}
