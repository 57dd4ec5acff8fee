package authz

import (
	"net/url"
	"strconv"
	"time"

	"github.com/oidcware/go-id-server/clients"
	"github.com/oidcware/go-id-server/consent"
	"github.com/oidcware/go-id-server/sessions"
	"github.com/oidcware/go-id-server/token"
	"github.com/oidcware/go-id-server/users"
	"github.com/pkg/errors"
)

// AuthorizationRedirect completes the flow: it delivers the response
// values to the client's verified redirect URI, in the fragment for
// implicit responses or the query string for the code flow. The state
// value, when present, is already included in values verbatim.
type AuthorizationRedirect func(redirectURI string, responseMode ResponseModeType, values url.Values)

// ChallengeRedirect sends the user agent into a login or consent
// challenge. returnURL is the original authorization request URL; the
// flow resumes by re-entering the endpoint through it, so no request
// state lives in server memory.
type ChallengeRedirect func(returnURL string)

// ConsentChallenge is a ChallengeRedirect that also carries what the
// consent page must display.
type ConsentChallenge func(returnURL string, client *clients.Client, scopes []string)

// Deps holds the collaborator dependencies of the AuthorizationService.
type Deps struct {
	Clients *clients.Registry // Static client catalog
	Users   users.Store       // Credential backend
	Consent consent.Ledger    // Recorded consent decisions
	Issuer  *token.Issuer     // Token signing
}

// AuthorizationService is the authorization flow state machine:
// Start -> ClientValidated -> LoginRequired|LoginOk ->
// ConsentRequired|ConsentOk -> TokenIssued -> Redirected, with Rejected
// reachable from any point. Each invocation is independent; the only
// shared state is the registry (read-only), the consent ledger, and
// the outstanding-code store, all safe for concurrent use.
type AuthorizationService struct {
	deps    Deps
	codes   *codeStore
	nowFunc func() time.Time
}

// AuthorizationServiceOption defines a function type to modify the
// AuthorizationService instance.
type AuthorizationServiceOption func(*AuthorizationService)

// WithNowFunc sets the now time function (primarily for testing)
func WithNowFunc(now func() time.Time) AuthorizationServiceOption {
	return func(as *AuthorizationService) {
		as.nowFunc = now
	}
}

// NewAuthorizationService initializes a new AuthorizationService with
// required dependencies.
func NewAuthorizationService(deps Deps, options ...AuthorizationServiceOption) (*AuthorizationService, error) {
	if deps.Clients == nil {
		return nil, errors.New("[NewAuthorizationService] Clients registry is required")
	}
	if deps.Users == nil {
		return nil, errors.New("[NewAuthorizationService] Users store is required")
	}
	if deps.Consent == nil {
		return nil, errors.New("[NewAuthorizationService] Consent ledger is required")
	}
	if deps.Issuer == nil {
		return nil, errors.New("[NewAuthorizationService] Issuer is required")
	}

	authService := &AuthorizationService{
		deps:    deps,
		nowFunc: time.Now,
	}
	for _, opt := range options {
		opt(authService)
	}
	authService.codes = newCodeStore(authService.nowFunc)

	return authService, nil
}

// Authorize runs the authorization request through the state machine.
// session may be nil (anonymous). Exactly one of the three redirect
// callbacks fires on success; on error none do, and the caller decides
// between a direct error page and an error redirect via RenderDirectly.
func (as *AuthorizationService) Authorize(
	params *AuthorizationParameters,
	session *sessions.Session,
	returnURL string,
	loginRedirect ChallengeRedirect,
	consentRedirect ConsentChallenge,
	oauthRedirect AuthorizationRedirect,
) error {
	// Start -> ClientValidated
	client, err := as.deps.Clients.Get(params.ClientID)
	if err != nil {
		return errors.Wrap(ErrUnknownClient, "[Authorize] registry lookup")
	}
	if err := params.ValidateWithClient(client); err != nil {
		return errors.Wrap(err, "[Authorize] parameter validation")
	}

	// ClientValidated -> LoginRequired
	if session == nil {
		loginRedirect(returnURL)
		return nil
	}
	if session.Expired(as.nowFunc()) {
		return errors.Wrap(ErrExpiredSession, "[Authorize] session")
	}

	// LoginOk -> ConsentRequired
	scopes := params.Scopes()
	if !as.deps.Consent.HasConsent(session.Subject, client.ID, scopes) {
		consentRedirect(returnURL, client, scopes)
		return nil
	}

	// ConsentOk -> TokenIssued -> Redirected
	values, err := as.issue(session.Subject, params, scopes)
	if err != nil {
		return errors.Wrap(err, "[Authorize] issue")
	}
	oauthRedirect(params.RedirectURI, params.ResponseMode(), values)
	return nil
}

// Login delegates the credential check to the user store. The returned
// error never distinguishes an unknown username from a wrong password.
func (as *AuthorizationService) Login(username, password string) (*users.User, error) {
	user, err := as.deps.Users.Authenticate(username, password)
	if err != nil {
		return nil, errors.Wrap(ErrInvalidCredentials, "[Login] authenticate")
	}
	return user, nil
}

// Consent records the user's consent decision. Deny rejects the flow
// with ErrAccessDenied; grant upserts the ledger (idempotent per
// (subject, client) key) so that re-entering the authorization request
// now passes the consent check.
func (as *AuthorizationService) Consent(subject, clientID string, scopes []string, granted, remember bool) error {
	if !granted {
		return errors.Wrap(ErrAccessDenied, "[Consent] denied")
	}
	if err := as.deps.Consent.Grant(subject, clientID, scopes, remember); err != nil {
		return errors.Wrap(err, "[Consent] ledger grant")
	}
	return nil
}

// RevokeConsent removes the recorded grant for (subject, client).
func (as *AuthorizationService) RevokeConsent(subject, clientID string) error {
	return as.deps.Consent.Revoke(subject, clientID)
}

// issue builds the response values for a fully authorized request.
// Construction is side-effect-free for implicit responses, and for the
// code flow only appends to the one-time code store, so a duplicate
// submission at most re-issues an equivalent token.
func (as *AuthorizationService) issue(subject string, params *AuthorizationParameters, scopes []string) (url.Values, error) {
	values := url.Values{}

	if params.IsImplicit() {
		user, err := as.deps.Users.GetBySubject(subject)
		if err != nil {
			return nil, errors.Wrap(err, "[issue] user lookup")
		}

		response, err := as.deps.Issuer.IssueResponse(token.Specifics{
			User:     user,
			ClientID: params.ClientID,
			Scopes:   scopes,
			Nonce:    params.Nonce,
		})
		if err != nil {
			return nil, errors.Wrap(ErrSigningFailure, "[issue] implicit")
		}

		if params.wantsToken() {
			values.Set("access_token", response.AccessToken)
			values.Set("token_type", response.TokenType)
		}
		if params.wantsIDToken() && response.IDToken != "" {
			values.Set("id_token", response.IDToken)
		}
		values.Set("expires_in", strconv.Itoa(response.ExpiresIn))
		values.Set("scope", response.Scope)
	} else {
		code, err := as.codes.Issue(subject, params, scopes)
		if err != nil {
			return nil, errors.Wrap(err, "[issue] code")
		}
		values.Set("code", code)
	}

	if params.State != "" {
		values.Set("state", params.State)
	}
	return values, nil
}

// TokenRequest is the parsed body of a token endpoint request.
type TokenRequest struct {
	GrantType    clients.GrantType
	Code         string
	RedirectURI  string
	ClientID     string
	ClientSecret string
	Scope        string
}

// Token handles the token endpoint: authorization code exchange and the
// client_credentials grant for confidential clients.
func (as *AuthorizationService) Token(request TokenRequest) (*token.Response, error) {
	client, err := as.deps.Clients.Get(request.ClientID)
	if err != nil {
		return nil, errors.Wrap(ErrUnknownClient, "[Token] registry lookup")
	}
	if !client.AllowsGrantType(request.GrantType) {
		return nil, errors.Wrapf(ErrUnauthorizedGrantType, "[Token] client %q may not use %q", client.ID, request.GrantType)
	}

	switch request.GrantType {
	case clients.AuthorizationCodeGrant:
		return as.exchangeCode(client, request)
	case clients.ClientCredentialsGrant:
		return as.clientCredentials(client, request)
	default:
		return nil, errors.Wrapf(ErrUnauthorizedGrantType, "[Token] unsupported grant type %q", request.GrantType)
	}
}

func (as *AuthorizationService) exchangeCode(client *clients.Client, request TokenRequest) (*token.Response, error) {
	if !client.IsPublic() {
		if !users.CheckPasswordHash(request.ClientSecret, client.SecretHash) {
			return nil, errors.Wrap(ErrInvalidClientSecret, "[exchangeCode] secret check")
		}
	}

	issued, err := as.codes.Consume(request.Code)
	if err != nil {
		return nil, errors.Wrap(err, "[exchangeCode] consume")
	}
	if issued.Params.ClientID != client.ID {
		return nil, errors.Wrap(ErrInvalidAuthorizationCode, "[exchangeCode] client mismatch")
	}
	if issued.Params.RedirectURI != request.RedirectURI {
		return nil, errors.Wrap(ErrInvalidAuthorizationCode, "[exchangeCode] redirect_uri mismatch")
	}

	user, err := as.deps.Users.GetBySubject(issued.Subject)
	if err != nil {
		return nil, errors.Wrap(err, "[exchangeCode] user lookup")
	}

	response, err := as.deps.Issuer.IssueResponse(token.Specifics{
		User:     user,
		ClientID: client.ID,
		Scopes:   issued.Scopes,
		Nonce:    issued.Params.Nonce,
	})
	if err != nil {
		return nil, errors.Wrap(ErrSigningFailure, "[exchangeCode] issue")
	}
	return response, nil
}

func (as *AuthorizationService) clientCredentials(client *clients.Client, request TokenRequest) (*token.Response, error) {
	if client.IsPublic() {
		return nil, errors.Wrap(ErrUnauthorizedGrantType, "[clientCredentials] public client")
	}
	if !users.CheckPasswordHash(request.ClientSecret, client.SecretHash) {
		return nil, errors.Wrap(ErrInvalidClientSecret, "[clientCredentials] secret check")
	}

	scope := request.Scope
	if scope == "" {
		scope = clients.JoinScopes(client.Scopes)
	}
	if err := client.ValidateScopes(scope); err != nil {
		return nil, errors.Wrap(ErrInvalidScope, "[clientCredentials] scopes")
	}

	response, err := as.deps.Issuer.IssueResponse(token.Specifics{
		ClientID: client.ID,
		Scopes:   clients.SplitScopes(scope),
	})
	if err != nil {
		return nil, errors.Wrap(ErrSigningFailure, "[clientCredentials] issue")
	}
	return response, nil
}
