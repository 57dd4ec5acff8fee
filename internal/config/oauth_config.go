package config

import "time"

type OAuthConfig interface {
	GetAccessTokenExpiry() time.Duration
	GetIDTokenExpiry() time.Duration
	GetMaxTokenLifetime() time.Duration
	GetSessionLifetime() time.Duration
}

type OAuth struct {
	AccessTokenExpiry time.Duration `env:"ACCESS_TOKEN_EXPIRY" envDefault:"1h"`
	IDTokenExpiry     time.Duration `env:"ID_TOKEN_EXPIRY" envDefault:"1h"`
	MaxTokenLifetime  time.Duration `env:"MAX_TOKEN_LIFETIME" envDefault:"24h"`
	SessionLifetime   time.Duration `env:"SESSION_LIFETIME" envDefault:"8h"`
}

var _ OAuthConfig = OAuth{}

func (o OAuth) GetAccessTokenExpiry() time.Duration {
	return o.AccessTokenExpiry
}

func (o OAuth) GetIDTokenExpiry() time.Duration {
	return o.IDTokenExpiry
}

// GetMaxTokenLifetime caps client-requested token lifetimes.
func (o OAuth) GetMaxTokenLifetime() time.Duration {
	return o.MaxTokenLifetime
}

func (o OAuth) GetSessionLifetime() time.Duration {
	return o.SessionLifetime
}
