package rp

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/pkg/errors"
	"golang.org/x/oauth2"
)

var (
	// ErrStateMismatch is returned when the callback carries a missing or
	// unknown state value. The response must be rejected, never retried
	// silently.
	ErrStateMismatch = errors.New("state missing or mismatched")

	// ErrNonceMismatch is returned when the id_token's nonce claim does
	// not match the one generated for the originating request.
	ErrNonceMismatch = errors.New("nonce mismatch")
)

// Client is the relying-party counterpart of the identity provider: it
// discovers provider metadata, builds authorization request URIs with
// unguessable state and nonce, validates the returned fragment, and
// persists accepted tokens in its TokenCache.
type Client struct {
	issuerURL   string
	clientID    string
	redirectURI string
	scopes      []string
	cache       TokenCache
	nowFunc     func() time.Time

	provider *oidc.Provider
	verifier *oidc.IDTokenVerifier

	lock    sync.Mutex
	pending map[string]string // state -> nonce, consumed on callback
}

// ClientOption modifies a Client instance.
type ClientOption func(*Client)

// WithTokenCache sets the token storage capability.
func WithTokenCache(cache TokenCache) ClientOption {
	return func(c *Client) {
		c.cache = cache
	}
}

// WithNowFunc sets the now time function (primarily for testing)
func WithNowFunc(now func() time.Time) ClientOption {
	return func(c *Client) {
		c.nowFunc = now
	}
}

// NewClient creates a relying-party client. Discover must be called
// before any authorization request.
func NewClient(issuerURL, clientID, redirectURI string, scopes []string, options ...ClientOption) *Client {
	c := &Client{
		issuerURL:   issuerURL,
		clientID:    clientID,
		redirectURI: redirectURI,
		scopes:      scopes,
		cache:       NewInMemoryTokenCache(),
		nowFunc:     time.Now,
		pending:     make(map[string]string),
	}
	for _, opt := range options {
		opt(c)
	}
	return c
}

// Discover fetches the provider metadata and prepares the id_token
// verifier against the provider's JWKS.
func (c *Client) Discover(ctx context.Context) error {
	provider, err := oidc.NewProvider(ctx, c.issuerURL)
	if err != nil {
		return errors.Wrap(err, "[Client.Discover] provider metadata")
	}
	c.provider = provider
	c.verifier = provider.Verifier(&oidc.Config{
		ClientID: c.clientID,
		Now:      c.nowFunc,
	})
	return nil
}

// AuthorizationURL builds the authorization request URI for the
// implicit flow with fresh unguessable state and nonce values. The
// state is remembered so the callback can be correlated.
func (c *Client) AuthorizationURL() (string, error) {
	if c.provider == nil {
		return "", errors.New("[Client.AuthorizationURL] call Discover first")
	}

	state, err := randomValue()
	if err != nil {
		return "", errors.Wrap(err, "[Client.AuthorizationURL] state")
	}
	nonce, err := randomValue()
	if err != nil {
		return "", errors.Wrap(err, "[Client.AuthorizationURL] nonce")
	}

	c.lock.Lock()
	c.pending[state] = nonce
	c.lock.Unlock()

	query := url.Values{}
	query.Set("response_type", "id_token token")
	query.Set("client_id", c.clientID)
	query.Set("redirect_uri", c.redirectURI)
	query.Set("scope", joinScopes(c.scopes))
	query.Set("state", state)
	query.Set("nonce", nonce)

	return c.provider.Endpoint().AuthURL + "?" + query.Encode(), nil
}

// HandleCallback validates the response values parsed from the redirect
// fragment (or query). A missing or unknown state, or a nonce that does
// not match the originating request, rejects the response outright.
// Accepted tokens are persisted in the cache.
func (c *Client) HandleCallback(ctx context.Context, values url.Values) (*StoredToken, error) {
	if errCode := values.Get("error"); errCode != "" {
		return nil, errors.Errorf("[Client.HandleCallback] authorization error: %s", errCode)
	}

	state := values.Get("state")
	nonce, ok := c.consumeState(state)
	if !ok {
		return nil, errors.Wrap(ErrStateMismatch, "[Client.HandleCallback]")
	}

	rawIDToken := values.Get("id_token")
	if rawIDToken == "" {
		return nil, errors.New("[Client.HandleCallback] missing id_token")
	}

	idToken, err := c.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		return nil, errors.Wrap(err, "[Client.HandleCallback] id_token verification")
	}
	if idToken.Nonce != nonce {
		return nil, errors.Wrap(ErrNonceMismatch, "[Client.HandleCallback]")
	}

	expiresIn, _ := strconv.Atoi(values.Get("expires_in"))
	stored := &StoredToken{
		AccessToken: values.Get("access_token"),
		IDToken:     rawIDToken,
		TokenType:   values.Get("token_type"),
		Scope:       values.Get("scope"),
		ExpiresAt:   c.nowFunc().Add(time.Duration(expiresIn) * time.Second),
	}
	c.cache.Save(stored)
	return stored, nil
}

// AuthorizationCodeURL builds a code-flow authorization request URI
// with fresh state and nonce.
func (c *Client) AuthorizationCodeURL() (string, error) {
	if c.provider == nil {
		return "", errors.New("[Client.AuthorizationCodeURL] call Discover first")
	}

	state, err := randomValue()
	if err != nil {
		return "", errors.Wrap(err, "[Client.AuthorizationCodeURL] state")
	}
	nonce, err := randomValue()
	if err != nil {
		return "", errors.Wrap(err, "[Client.AuthorizationCodeURL] nonce")
	}

	c.lock.Lock()
	c.pending[state] = nonce
	c.lock.Unlock()

	return c.oauth2Config().AuthCodeURL(state, oidc.Nonce(nonce)), nil
}

// ExchangeCode validates a code-flow callback and redeems the code at
// the token endpoint. State and nonce failures reject the response.
func (c *Client) ExchangeCode(ctx context.Context, values url.Values) (*StoredToken, error) {
	if errCode := values.Get("error"); errCode != "" {
		return nil, errors.Errorf("[Client.ExchangeCode] authorization error: %s", errCode)
	}

	nonce, ok := c.consumeState(values.Get("state"))
	if !ok {
		return nil, errors.Wrap(ErrStateMismatch, "[Client.ExchangeCode]")
	}

	oauth2Token, err := c.oauth2Config().Exchange(ctx, values.Get("code"))
	if err != nil {
		return nil, errors.Wrap(err, "[Client.ExchangeCode] token exchange")
	}

	rawIDToken, ok := oauth2Token.Extra("id_token").(string)
	if !ok {
		return nil, errors.New("[Client.ExchangeCode] no id_token in response")
	}
	idToken, err := c.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		return nil, errors.Wrap(err, "[Client.ExchangeCode] id_token verification")
	}
	if idToken.Nonce != nonce {
		return nil, errors.Wrap(ErrNonceMismatch, "[Client.ExchangeCode]")
	}

	stored := &StoredToken{
		AccessToken: oauth2Token.AccessToken,
		IDToken:     rawIDToken,
		TokenType:   oauth2Token.TokenType,
		Scope:       joinScopes(c.scopes),
		ExpiresAt:   oauth2Token.Expiry,
	}
	c.cache.Save(stored)
	return stored, nil
}

func (c *Client) oauth2Config() *oauth2.Config {
	return &oauth2.Config{
		ClientID:    c.clientID,
		Endpoint:    c.provider.Endpoint(),
		RedirectURL: c.redirectURI,
		Scopes:      c.scopes,
	}
}

// Token returns the cached token if it is still live, nil otherwise.
func (c *Client) Token() *StoredToken {
	stored := c.cache.Read()
	if stored == nil {
		return nil
	}
	if c.nowFunc().After(stored.ExpiresAt) {
		c.cache.Clear()
		return nil
	}
	return stored
}

// Logout drops the cached token.
func (c *Client) Logout() {
	c.cache.Clear()
}

// consumeState checks and removes a pending state value in one step.
func (c *Client) consumeState(state string) (string, bool) {
	if state == "" {
		return "", false
	}
	c.lock.Lock()
	defer c.lock.Unlock()
	nonce, ok := c.pending[state]
	if ok {
		delete(c.pending, state)
	}
	return nonce, ok
}

func randomValue() (string, error) {
	bytes := make([]byte, 32)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(bytes), nil
}

func joinScopes(scopes []string) string {
	return strings.Join(scopes, " ")
}
