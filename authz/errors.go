package authz

import "github.com/pkg/errors"

// Flow error taxonomy. ErrUnknownClient and ErrInvalidRedirectURI must
// be rendered directly - redirecting on either would turn the server
// into an open redirector. Every other failure redirects back into the
// flow with a non-specific message.
var (
	ErrUnknownClient            = errors.New("unknown client")
	ErrInvalidRedirectURI       = errors.New("invalid redirect uri")
	ErrUnauthorizedGrantType    = errors.New("unauthorized grant type")
	ErrInvalidScope             = errors.New("invalid scope")
	ErrInvalidCredentials       = errors.New("invalid credentials")
	ErrAccessDenied             = errors.New("access denied")
	ErrExpiredSession           = errors.New("session expired")
	ErrSigningFailure           = errors.New("token signing failure")
	ErrInvalidAuthorizationCode = errors.New("invalid authorization code")
	ErrInvalidClientSecret      = errors.New("invalid client secret")
)

// RenderDirectly reports whether err must be shown on an error page
// instead of being propagated to the claimed redirect URI.
func RenderDirectly(err error) bool {
	return errors.Is(err, ErrUnknownClient) || errors.Is(err, ErrInvalidRedirectURI)
}
