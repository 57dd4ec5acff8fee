package authz

import (
	"net/url"
	"strings"

	"github.com/oidcware/go-id-server/clients"
	"github.com/pkg/errors"
)

// ResponseType represents the OAuth 2.0 response_type parameter. OIDC
// allows space-separated combinations ("id_token token").
type ResponseType string

const (
	// CodeResponseType indicates the authorization code flow.
	CodeResponseType ResponseType = "code"

	// TokenResponseType indicates the implicit flow returning an access
	// token in the redirect fragment.
	TokenResponseType ResponseType = "token"

	// IDTokenResponseType indicates the implicit flow returning an
	// identity token in the redirect fragment.
	IDTokenResponseType ResponseType = "id_token"
)

// ResponseModeType denotes how the authorization response parameters are
// returned to the client.
type ResponseModeType string

const (
	// QueryResponseMode returns parameters in the URL query string.
	// Default for the code flow.
	QueryResponseMode ResponseModeType = "query"

	// FragmentResponseMode returns parameters in the URL fragment (after #).
	// Default, and mandatory, for implicit responses: fragments are not
	// sent to the redirect target's server, only to its JavaScript.
	FragmentResponseMode ResponseModeType = "fragment"
)

// AuthorizationParameters is the transient value object built from the
// incoming authorization request query. It is validated against the
// client before any login or consent step runs.
type AuthorizationParameters struct {
	ClientID     string
	ResponseType ResponseType
	RedirectURI  string
	Scope        string // space-separated, order preserved
	State        string
	Nonce        string
}

// ParseAuthorizationParameters builds AuthorizationParameters from the
// request query values.
func ParseAuthorizationParameters(query url.Values) *AuthorizationParameters {
	return &AuthorizationParameters{
		ClientID:     query.Get("client_id"),
		ResponseType: ResponseType(query.Get("response_type")),
		RedirectURI:  query.Get("redirect_uri"),
		Scope:        query.Get("scope"),
		State:        query.Get("state"),
		Nonce:        query.Get("nonce"),
	}
}

// Query renders the parameters back to their wire form, so the original
// request survives a round trip through login and consent as a
// return-to URL rather than server-side state.
func (p *AuthorizationParameters) Query() url.Values {
	values := url.Values{}
	values.Set("client_id", p.ClientID)
	values.Set("response_type", string(p.ResponseType))
	values.Set("redirect_uri", p.RedirectURI)
	if p.Scope != "" {
		values.Set("scope", p.Scope)
	}
	if p.State != "" {
		values.Set("state", p.State)
	}
	if p.Nonce != "" {
		values.Set("nonce", p.Nonce)
	}
	return values
}

// Scopes returns the requested scope set in request order.
func (p *AuthorizationParameters) Scopes() []string {
	return clients.SplitScopes(p.Scope)
}

// wantsToken / wantsIDToken inspect the (possibly compound) response type.
func (p *AuthorizationParameters) wantsToken() bool {
	return p.hasResponseType(TokenResponseType)
}

func (p *AuthorizationParameters) wantsIDToken() bool {
	return p.hasResponseType(IDTokenResponseType)
}

// IsImplicit reports whether the request asks for tokens directly in the
// redirect rather than an authorization code.
func (p *AuthorizationParameters) IsImplicit() bool {
	return p.wantsToken() || p.wantsIDToken()
}

func (p *AuthorizationParameters) hasResponseType(want ResponseType) bool {
	for _, part := range strings.Fields(string(p.ResponseType)) {
		if ResponseType(part) == want {
			return true
		}
	}
	return false
}

// GrantType maps the response type onto the grant type the client must
// be registered for.
func (p *AuthorizationParameters) GrantType() clients.GrantType {
	if p.IsImplicit() {
		return clients.ImplicitGrant
	}
	return clients.AuthorizationCodeGrant
}

// ResponseMode returns the delivery mechanism for the response:
// fragment for implicit responses, query for the code flow.
func (p *AuthorizationParameters) ResponseMode() ResponseModeType {
	if p.IsImplicit() {
		return FragmentResponseMode
	}
	return QueryResponseMode
}

// ValidateWithClient checks the parameters against the registered
// client. The redirect URI check comes first: nothing downstream may
// run, and no redirect may be issued, until the URI is known-good.
func (p *AuthorizationParameters) ValidateWithClient(client *clients.Client) error {
	if !client.AllowsRedirectURI(p.RedirectURI) {
		return errors.Wrapf(ErrInvalidRedirectURI, "[ValidateWithClient] %q", p.RedirectURI)
	}

	if !p.responseTypeValid() {
		return errors.Wrapf(ErrUnauthorizedGrantType, "[ValidateWithClient] unsupported response_type %q", p.ResponseType)
	}

	if !client.AllowsGrantType(p.GrantType()) {
		return errors.Wrapf(ErrUnauthorizedGrantType, "[ValidateWithClient] client %q may not use %q", client.ID, p.GrantType())
	}

	if err := client.ValidateScopes(p.Scope); err != nil {
		return errors.Wrapf(ErrInvalidScope, "[ValidateWithClient] %q", p.Scope)
	}
	return nil
}

func (p *AuthorizationParameters) responseTypeValid() bool {
	parts := strings.Fields(string(p.ResponseType))
	if len(parts) == 0 {
		return false
	}
	for _, part := range parts {
		switch ResponseType(part) {
		case CodeResponseType, TokenResponseType, IDTokenResponseType:
		default:
			return false
		}
	}

	// code cannot be combined with implicit response types here
	if p.hasResponseType(CodeResponseType) && len(parts) > 1 {
		return false
	}
	return true
}
