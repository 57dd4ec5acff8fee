package clients

import "strings"

type ClientType string

const (
	ClientTypeConfidential ClientType = "confidential" // Can keep secrets (server-side apps)
	ClientTypePublic       ClientType = "public"       // Cannot keep secrets (SPAs, mobile apps)
)

// GrantType represents an OAuth 2.0 grant type a client is permitted to use.
type GrantType string

const (
	// ImplicitGrant returns tokens directly in the redirect fragment.
	// Legacy/test-only: an implementation targeting production should
	// prefer the authorization code flow.
	ImplicitGrant GrantType = "implicit"

	// AuthorizationCodeGrant exchanges an authorization code for tokens
	// at the token endpoint.
	AuthorizationCodeGrant GrantType = "authorization_code"

	// ClientCredentialsGrant allows machine-to-machine authentication
	// for confidential clients. No user context.
	ClientCredentialsGrant GrantType = "client_credentials"
)

// Client is a registered relying party. Instances are immutable once
// loaded into the Registry.
type Client struct {
	ID                     string      `json:"id"`
	Type                   ClientType  `json:"type"` // public or confidential
	Description            string      `json:"description"`
	GrantTypes             []GrantType `json:"grantTypes"`
	Scopes                 []string    `json:"scopes"` // Allowed scopes for this client
	RedirectURIs           []string    `json:"redirectURIs"`
	PostLogoutRedirectURIs []string    `json:"postLogoutRedirectURIs"`
	AllowedCORSOrigins     []string    `json:"allowedCorsOrigins"`
	SecretHash             string      `json:"-"` // bcrypt hash, confidential clients only
}

// IsPublic returns true if the client is a public client
func (c *Client) IsPublic() bool {
	return c.Type == ClientTypePublic
}

// AllowsGrantType checks whether the client may use the given grant type
func (c *Client) AllowsGrantType(gt GrantType) bool {
	for _, g := range c.GrantTypes {
		if g == gt {
			return true
		}
	}
	return false
}

// AllowsRedirectURI reports whether uri exactly matches a registered
// redirect URI. Matching is intentionally exact - pattern or prefix
// matching would reopen the open-redirector hole this list exists to close.
func (c *Client) AllowsRedirectURI(uri string) bool {
	for _, u := range c.RedirectURIs {
		if uri == u {
			return true
		}
	}
	return false
}

// AllowsPostLogoutRedirectURI reports whether uri is a registered
// post-logout destination (exact match).
func (c *Client) AllowsPostLogoutRedirectURI(uri string) bool {
	for _, u := range c.PostLogoutRedirectURIs {
		if uri == u {
			return true
		}
	}
	return false
}

// AllowsOrigin reports whether the given CORS origin is registered for
// this client.
func (c *Client) AllowsOrigin(origin string) bool {
	for _, o := range c.AllowedCORSOrigins {
		if origin == o {
			return true
		}
	}
	return false
}

// HasScope checks if the client has permission for a specific scope
func (c *Client) HasScope(scope string) bool {
	for _, s := range c.Scopes {
		if s == scope {
			return true
		}
	}
	return false
}

// ValidateScopes checks if all requested scopes are allowed for this client
func (c *Client) ValidateScopes(requestedScopes string) error {
	for _, scope := range SplitScopes(requestedScopes) {
		if !c.HasScope(scope) {
			return ErrInvalidScope
		}
	}
	return nil
}

// SplitScopes splits a space-separated scope string, dropping empty tokens.
func SplitScopes(scopes string) []string {
	result := []string{}
	for _, s := range strings.Fields(scopes) {
		result = append(result, s)
	}
	return result
}

// JoinScopes renders a scope set back to its space-separated wire form.
func JoinScopes(scopes []string) string {
	return strings.Join(scopes, " ")
}
