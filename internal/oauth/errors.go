package oauth

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownProvider rejects provider names outside the supported set.
	ErrUnknownProvider = errors.New("Unknown provider")
	// ErrNotConnected is returned when no token is stored for a provider.
	ErrNotConnected = errors.New("not connected")
)

// ConfigError reports a missing client id variable.
type ConfigError struct {
	Var string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("Set %s environment variable with your OAuth client ID", e.Var)
}
