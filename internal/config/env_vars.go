package config

import "fmt"

type EnvVars struct {
	Port          string `env:"PORT" envDefault:"8080"`
	AppName       string `env:"APP_NAME" envDefault:"Go ID Server"`
	BaseURL       string `env:"BASE_URL" envDefault:"http://localhost:8080"`
	Env           string `env:"ENV" envDefault:"DEV"`
	SigningKeyPEM string `env:"SIGNING_KEY_PEM"` // Optional; a fresh RSA key is generated when empty
}

var _ EnvConfig = EnvVars{}

func (e EnvVars) GetPort() string {
	port := e.Port
	if port != "" && port[0] != ':' {
		port = fmt.Sprintf(":%s", port)
	}
	return port
}

func (e EnvVars) GetAppName() string {
	return e.AppName
}

// GetBaseURL returns the base URL for the identity provider (e.g.
// "https://auth.example.com"). Used as the token issuer and for all
// discovery endpoint URLs.
func (e EnvVars) GetBaseURL() string {
	return e.BaseURL
}

func (e EnvVars) GetEnv() string {
	return e.Env
}

func (e EnvVars) GetSigningKeyPEM() string {
	return e.SigningKeyPEM
}
