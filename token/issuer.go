package token

import (
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/oidcware/go-id-server/users"
	"github.com/pkg/errors"
)

// Response is the token material handed back to the client, either in
// the redirect fragment (implicit flow) or from the token endpoint.
type Response struct {
	AccessToken string `json:"access_token,omitempty"`
	IDToken     string `json:"id_token,omitempty"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
	Scope       string `json:"scope,omitempty"`
}

// Specifics carries the per-issuance inputs for a token response.
type Specifics struct {
	User     *users.User // nil for client_credentials
	ClientID string
	Scopes   []string
	Nonce    string        // echoed into the id_token when present
	Lifetime time.Duration // requested lifetime; 0 means the configured default
}

// Issuer signs identity and access tokens. The signer is process-wide
// state: installed at startup and only replaced through an explicit key
// rotation on the underlying KeySet. Safe for concurrent use.
type Issuer struct {
	signer            Signer
	issuerURL         string
	accessTokenExpiry time.Duration
	idTokenExpiry     time.Duration
	maxTokenLifetime  time.Duration
	nowFunc           func() time.Time
}

// IssuerOption defines a function type to modify the Issuer instance.
type IssuerOption func(*Issuer)

// WithTokenExpiry sets the default access and identity token lifetimes.
func WithTokenExpiry(accessTokenExpiry, idTokenExpiry time.Duration) IssuerOption {
	return func(i *Issuer) {
		i.accessTokenExpiry = accessTokenExpiry
		i.idTokenExpiry = idTokenExpiry
	}
}

// WithMaxTokenLifetime caps client-requested token lifetimes.
func WithMaxTokenLifetime(max time.Duration) IssuerOption {
	return func(i *Issuer) {
		i.maxTokenLifetime = max
	}
}

// WithNowFunc sets the now time function (primarily for testing)
func WithNowFunc(now func() time.Time) IssuerOption {
	return func(i *Issuer) {
		i.nowFunc = now
	}
}

// NewIssuer initializes an Issuer signing on behalf of issuerURL.
func NewIssuer(issuerURL string, signer Signer, options ...IssuerOption) (*Issuer, error) {
	if issuerURL == "" {
		return nil, errors.New("[NewIssuer] issuerURL is required")
	}
	if signer == nil {
		return nil, errors.New("[NewIssuer] signer is required")
	}

	issuer := &Issuer{
		signer:    signer,
		issuerURL: issuerURL,
		nowFunc:   time.Now,
	}
	for _, opt := range options {
		opt(issuer)
	}

	if issuer.accessTokenExpiry == 0 {
		issuer.accessTokenExpiry = time.Hour
	}
	if issuer.idTokenExpiry == 0 {
		issuer.idTokenExpiry = time.Hour
	}
	if issuer.maxTokenLifetime == 0 {
		issuer.maxTokenLifetime = 24 * time.Hour
	}
	return issuer, nil
}

// IssueResponse creates the signed token response for a completed
// authorization: an access token plus, when the openid scope is
// present and a user is known, an id_token.
func (i *Issuer) IssueResponse(spec Specifics) (*Response, error) {
	lifetime := i.clampLifetime(spec.Lifetime, i.accessTokenExpiry)

	accessToken, err := i.IssueAccessToken(spec.User, spec.ClientID, spec.Scopes, lifetime)
	if err != nil {
		return nil, errors.Wrap(err, "[Issuer.IssueResponse] access token")
	}

	response := &Response{
		AccessToken: accessToken,
		TokenType:   "Bearer",
		ExpiresIn:   int(lifetime.Seconds()),
		Scope:       joinScopes(spec.Scopes),
	}

	if spec.User != nil && hasScope(spec.Scopes, "openid") {
		idToken, err := i.IssueIDToken(spec.User, spec.ClientID, spec.Scopes, spec.Nonce, spec.Lifetime)
		if err != nil {
			return nil, errors.Wrap(err, "[Issuer.IssueResponse] id token")
		}
		response.IDToken = idToken
	}
	return response, nil
}

// IssueIDToken signs an identity token with the standard claims plus
// one claim group per granted scope's user attributes.
func (i *Issuer) IssueIDToken(user *users.User, clientID string, scopes []string, nonce string, lifetime time.Duration) (string, error) {
	if user == nil {
		return "", errors.New("[Issuer.IssueIDToken] user is required")
	}
	lifetime = i.clampLifetime(lifetime, i.idTokenExpiry)

	now := i.nowFunc()
	claims := jwt.MapClaims{
		"iss": i.issuerURL,
		"sub": user.Subject,
		"aud": clientID,
		"iat": now.Unix(),
		"exp": now.Add(lifetime).Unix(),
		"jti": uuid.New().String(),
	}

	if nonce != "" {
		claims["nonce"] = nonce
	}
	addScopeClaims(claims, user, scopes)

	return i.signer.Sign(claims)
}

// IssueAccessToken signs an access token. user may be nil for the
// client_credentials grant, in which case the client is the subject.
func (i *Issuer) IssueAccessToken(user *users.User, clientID string, scopes []string, lifetime time.Duration) (string, error) {
	lifetime = i.clampLifetime(lifetime, i.accessTokenExpiry)

	now := i.nowFunc()
	claims := jwt.MapClaims{
		"iss":   i.issuerURL,
		"sub":   clientID,
		"aud":   clientID,
		"scope": joinScopes(scopes),
		"iat":   now.Unix(),
		"exp":   now.Add(lifetime).Unix(),
		"jti":   uuid.New().String(),
	}
	if user != nil {
		claims["sub"] = user.Subject
	}

	return i.signer.Sign(claims)
}

// Verify parses a raw token against the issuer's key set and returns
// its claims. Used by relying parties and resource servers; the issuer
// itself tracks no state about issued tokens.
func (i *Issuer) Verify(rawToken string) (jwt.MapClaims, error) {
	parsed, err := jwt.Parse(rawToken, i.signer.GetVerificationKey, jwt.WithTimeFunc(i.nowFunc))
	if err != nil {
		return nil, errors.Wrap(err, "[Issuer.Verify] parse")
	}
	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return nil, errors.New("[Issuer.Verify] error extracting claims")
	}
	return claims, nil
}

func (i *Issuer) clampLifetime(requested, fallback time.Duration) time.Duration {
	if requested <= 0 {
		requested = fallback
	}
	if requested > i.maxTokenLifetime {
		return i.maxTokenLifetime
	}
	return requested
}

func addScopeClaims(claims jwt.MapClaims, user *users.User, scopes []string) {
	for _, scope := range scopes {
		switch scope {
		case "profile":
			claims["name"] = user.Name()
			claims["given_name"] = user.FirstName
			claims["family_name"] = user.LastName
			claims["preferred_username"] = user.Username
		case "email":
			claims["email"] = user.Email
			claims["email_verified"] = user.EmailVerified
		}
	}
}

func hasScope(scopes []string, want string) bool {
	for _, s := range scopes {
		if s == want {
			return true
		}
	}
	return false
}

func joinScopes(scopes []string) string {
	return strings.Join(scopes, " ")
}
