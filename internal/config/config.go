package config

import (
	"github.com/caarlos0/env/v11"
	"github.com/pkg/errors"
)

type Config interface {
	EnvConfig
	OAuthConfig
}

type EnvConfig interface {
	GetPort() string
	GetAppName() string
	GetBaseURL() string
	GetEnv() string
	GetSigningKeyPEM() string
}

type mainConfig struct {
	EnvVars
	OAuth
}

// New loads the process configuration from the environment. The result
// is immutable: it is built once at startup and passed by reference
// into every component, with no runtime mutation path.
func New() (Config, error) {
	var vars EnvVars
	if err := env.Parse(&vars); err != nil {
		return nil, errors.Wrap(err, "[config.New] env.Parse")
	}

	var oauth OAuth
	if err := env.Parse(&oauth); err != nil {
		return nil, errors.Wrap(err, "[config.New] env.Parse oauth")
	}

	return mainConfig{EnvVars: vars, OAuth: oauth}, nil
}
