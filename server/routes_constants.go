package server

// Route path constants
// All application routes are defined here to ensure consistency and prevent typos
const (
	// Auth Routes - Login, Consent & Logout
	RouteLogin       = "/login"
	RouteAuthLogin   = "/auth/login"
	RouteAuthConsent = "/auth/consent"
	RouteAuthLogout  = "/auth/logout"

	// OAuth2 / OIDC Routes
	RouteWellKnownOpenIDConfig = "/.well-known/openid-configuration"
	RouteWellKnownJWKS         = "/.well-known/jwks.json"
	RouteOAuth2Authorize       = "/oauth2/authorize"
	RouteOAuth2Token           = "/oauth2/token"
)
