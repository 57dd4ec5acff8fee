package server_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/oidcware/go-id-server/authz"
	"github.com/oidcware/go-id-server/clients"
	"github.com/oidcware/go-id-server/consent"
	"github.com/oidcware/go-id-server/internal/config"
	"github.com/oidcware/go-id-server/rp"
	"github.com/oidcware/go-id-server/server"
	"github.com/oidcware/go-id-server/sessions"
	"github.com/oidcware/go-id-server/token"
	"github.com/oidcware/go-id-server/users"
	"github.com/stretchr/testify/require"
)

const spaRedirectURI = "http://localhost:4200/"

type testConfig struct {
	config.EnvVars
	config.OAuth
}

type fixture struct {
	ts     *httptest.Server
	client *http.Client
	keys   *token.KeySet
}

// newFixture stands up the full HTTP surface behind an httptest server.
// The handler is bound after the listener starts so the advertised
// issuer can be the test server's own URL.
func newFixture(t *testing.T) *fixture {
	t.Helper()

	var srv *server.Server
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		srv.ServeHTTP(w, r)
	}))
	t.Cleanup(ts.Close)

	cfg := testConfig{
		EnvVars: config.EnvVars{
			Port:    "8080",
			AppName: "Go ID Server",
			BaseURL: ts.URL,
			Env:     "TEST",
		},
		OAuth: config.OAuth{
			AccessTokenExpiry: time.Hour,
			IDTokenExpiry:     time.Hour,
			MaxTokenLifetime:  24 * time.Hour,
			SessionLifetime:   8 * time.Hour,
		},
	}

	keyPair, err := token.GenerateRSAKeyPair(uuid.NewString(), 2048)
	require.NoError(t, err)
	keySet := token.NewKeySet(token.NewKeyPairSigner(keyPair))

	clientList, err := server.DefaultClients()
	require.NoError(t, err)
	clientList = append(clientList, &clients.Client{
		ID:           "web-code-001",
		Type:         clients.ClientTypePublic,
		Description:  "Code flow client",
		GrantTypes:   []clients.GrantType{clients.AuthorizationCodeGrant},
		Scopes:       []string{"openid", "profile", "email"},
		RedirectURIs: []string{spaRedirectURI},
	})
	registry, err := clients.NewRegistry(clientList)
	require.NoError(t, err)

	store := users.NewInMemoryStore()
	require.NoError(t, server.SeedUserStore(store))

	issuer, err := token.NewIssuer(ts.URL, keySet,
		token.WithTokenExpiry(cfg.GetAccessTokenExpiry(), cfg.GetIDTokenExpiry()),
		token.WithMaxTokenLifetime(cfg.GetMaxTokenLifetime()),
	)
	require.NoError(t, err)

	auth, err := authz.NewAuthorizationService(authz.Deps{
		Clients: registry,
		Users:   store,
		Consent: consent.NewInMemoryLedger(),
		Issuer:  issuer,
	})
	require.NoError(t, err)

	srv, err = server.New(cfg, server.Deps{
		Auth:     auth,
		Registry: registry,
		Sessions: sessions.NewAuthenticator(sessions.WithLifetime(cfg.GetSessionLifetime())),
		Keys:     keySet,
	})
	require.NoError(t, err)

	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	return &fixture{
		ts:   ts,
		keys: keySet,
		client: &http.Client{
			Jar: jar,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}
}

// get resolves path against the test server unless it is absolute, and
// returns the response without following redirects.
func (f *fixture) get(t *testing.T, path string) *http.Response {
	t.Helper()

	if strings.HasPrefix(path, "/") {
		path = f.ts.URL + path
	}
	resp, err := f.client.Get(path)
	require.NoError(t, err)
	return resp
}

func (f *fixture) postForm(t *testing.T, path string, form url.Values) *http.Response {
	t.Helper()

	resp, err := f.client.PostForm(f.ts.URL+path, form)
	require.NoError(t, err)
	return resp
}

func body(t *testing.T, resp *http.Response) string {
	t.Helper()

	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(data)
}

func location(t *testing.T, resp *http.Response) string {
	t.Helper()

	resp.Body.Close()
	return resp.Header.Get("Location")
}

// signIn walks the login challenge for an authorization request URL and
// returns the return_url the flow resumes through.
func (f *fixture) signIn(t *testing.T, authURL string) string {
	t.Helper()

	resp := f.get(t, authURL)
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	loginURL := location(t, resp)
	require.True(t, strings.HasPrefix(loginURL, server.RouteLogin))

	parsed, err := url.Parse(loginURL)
	require.NoError(t, err)
	returnURL := parsed.Query().Get("return_url")
	require.True(t, strings.HasPrefix(returnURL, server.RouteOAuth2Authorize))

	page := f.get(t, loginURL)
	require.Equal(t, http.StatusOK, page.StatusCode)
	require.Contains(t, body(t, page), `name="username"`)

	resp = f.postForm(t, server.RouteAuthLogin, url.Values{
		"username":    {"mary"},
		"password":    {"Secret123!"},
		"remember_me": {"true"},
		"return_url":  {returnURL},
	})
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	require.Equal(t, returnURL, location(t, resp))
	return returnURL
}

// grantConsent walks the consent challenge reached by re-entering the
// authorization endpoint with a live session.
func (f *fixture) grantConsent(t *testing.T, returnURL string) {
	t.Helper()

	resp := f.get(t, returnURL)
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	consentURL := location(t, resp)
	require.True(t, strings.HasPrefix(consentURL, server.RouteAuthConsent))

	page := f.get(t, consentURL)
	require.Equal(t, http.StatusOK, page.StatusCode)
	require.Contains(t, body(t, page), "openid")

	resp = f.postForm(t, server.RouteAuthConsent, url.Values{
		"decision":         {"grant"},
		"remember_consent": {"true"},
		"return_url":       {returnURL},
	})
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	require.Equal(t, returnURL, location(t, resp))
}

func TestDiscoveryDocument(t *testing.T) {
	f := newFixture(t)

	resp := f.get(t, server.RouteWellKnownOpenIDConfig)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var doc map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&doc))
	resp.Body.Close()

	require.Equal(t, f.ts.URL, doc["issuer"])
	require.Equal(t, f.ts.URL+server.RouteOAuth2Authorize, doc["authorization_endpoint"])
	require.Equal(t, f.ts.URL+server.RouteOAuth2Token, doc["token_endpoint"])
	require.Equal(t, f.ts.URL+server.RouteWellKnownJWKS, doc["jwks_uri"])
	require.Contains(t, doc["scopes_supported"], "openid")
	require.Contains(t, doc["grant_types_supported"], "implicit")
}

func TestJWKSServesSigningKeys(t *testing.T) {
	f := newFixture(t)

	resp := f.get(t, server.RouteWellKnownJWKS)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var jwks token.JWKS
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&jwks))
	resp.Body.Close()
	require.Len(t, jwks.Keys, 1)
	require.Equal(t, "RS256", jwks.Keys[0].Alg)
}

func TestImplicitFlowEndToEnd(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	rpClient := rp.NewClient(f.ts.URL, "angular-spa-001", spaRedirectURI, []string{"openid", "profile", "email"})
	require.NoError(t, rpClient.Discover(ctx))

	authURL, err := rpClient.AuthorizationURL()
	require.NoError(t, err)

	returnURL := f.signIn(t, authURL)
	f.grantConsent(t, returnURL)

	resp := f.get(t, returnURL)
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	target := location(t, resp)
	require.True(t, strings.HasPrefix(target, spaRedirectURI+"#"), "tokens must ride in the fragment, got %s", target)

	parsed, err := url.Parse(target)
	require.NoError(t, err)
	values, err := url.ParseQuery(parsed.Fragment)
	require.NoError(t, err)

	stored, err := rpClient.HandleCallback(ctx, values)
	require.NoError(t, err)
	require.NotEmpty(t, stored.AccessToken)
	require.NotEmpty(t, stored.IDToken)
	require.Equal(t, "Bearer", stored.TokenType)
	require.NotNil(t, rpClient.Token())

	// Second authorization with the remembered consent and live session
	// completes in a single round trip.
	secondURL, err := rpClient.AuthorizationURL()
	require.NoError(t, err)
	resp = f.get(t, secondURL)
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	require.True(t, strings.HasPrefix(location(t, resp), spaRedirectURI+"#"))
}

func TestAuthorizationCodeFlowEndToEnd(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	rpClient := rp.NewClient(f.ts.URL, "web-code-001", spaRedirectURI, []string{"openid", "profile", "email"})
	require.NoError(t, rpClient.Discover(ctx))

	authURL, err := rpClient.AuthorizationCodeURL()
	require.NoError(t, err)

	returnURL := f.signIn(t, authURL)
	f.grantConsent(t, returnURL)

	resp := f.get(t, returnURL)
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	target := location(t, resp)

	parsed, err := url.Parse(target)
	require.NoError(t, err)
	require.NotEmpty(t, parsed.Query().Get("code"))
	require.Empty(t, parsed.Fragment)

	stored, err := rpClient.ExchangeCode(ctx, parsed.Query())
	require.NoError(t, err)
	require.NotEmpty(t, stored.AccessToken)
	require.NotEmpty(t, stored.IDToken)
}

func TestTamperedRedirectURIRendersError(t *testing.T) {
	f := newFixture(t)

	query := url.Values{
		"client_id":     {"angular-spa-001"},
		"response_type": {"id_token token"},
		"redirect_uri":  {"http://evil.example/"},
		"scope":         {"openid"},
		"state":         {"abc"},
	}
	resp := f.get(t, server.RouteOAuth2Authorize+"?"+query.Encode())
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.Empty(t, resp.Header.Get("Location"), "a tampered redirect URI must never receive a redirect")
	require.Contains(t, body(t, resp), "invalid")
}

func TestUnknownClientRendersError(t *testing.T) {
	f := newFixture(t)

	query := url.Values{
		"client_id":     {"no-such-client"},
		"response_type": {"id_token token"},
		"redirect_uri":  {spaRedirectURI},
		"scope":         {"openid"},
	}
	resp := f.get(t, server.RouteOAuth2Authorize+"?"+query.Encode())
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.Empty(t, resp.Header.Get("Location"))
	resp.Body.Close()
}

func TestFailedLoginPreservesRequest(t *testing.T) {
	f := newFixture(t)

	returnURL := server.RouteOAuth2Authorize + "?client_id=angular-spa-001&response_type=id_token+token&redirect_uri=" +
		url.QueryEscape(spaRedirectURI) + "&scope=openid&state=abc&nonce=n1"

	resp := f.postForm(t, server.RouteAuthLogin, url.Values{
		"username":   {"mary"},
		"password":   {"not-the-password"},
		"return_url": {returnURL},
	})
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)

	target := location(t, resp)
	require.True(t, strings.HasPrefix(target, server.RouteLogin+"?failed=1"))

	parsed, err := url.Parse(target)
	require.NoError(t, err)
	require.Equal(t, returnURL, parsed.Query().Get("return_url"))

	page := f.get(t, target)
	require.Equal(t, http.StatusOK, page.StatusCode)
	require.Contains(t, body(t, page), "Invalid username or password")
}

func TestLoginRejectsForeignReturnURL(t *testing.T) {
	f := newFixture(t)

	resp := f.get(t, server.RouteLogin+"?return_url="+url.QueryEscape("http://evil.example/"))
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()

	resp = f.postForm(t, server.RouteAuthLogin, url.Values{
		"username":   {"mary"},
		"password":   {"Secret123!"},
		"return_url": {"http://evil.example/"},
	})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()
}

func TestConsentDenyRedirectsWithAccessDenied(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	rpClient := rp.NewClient(f.ts.URL, "angular-spa-001", spaRedirectURI, []string{"openid"})
	require.NoError(t, rpClient.Discover(ctx))
	authURL, err := rpClient.AuthorizationURL()
	require.NoError(t, err)

	returnURL := f.signIn(t, authURL)

	resp := f.postForm(t, server.RouteAuthConsent, url.Values{
		"decision":   {"deny"},
		"return_url": {returnURL},
	})
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)

	target := location(t, resp)
	parsed, err := url.Parse(target)
	require.NoError(t, err)
	values, err := url.ParseQuery(parsed.Fragment)
	require.NoError(t, err)
	require.Equal(t, "access_denied", values.Get("error"))
	require.NotEmpty(t, values.Get("state"))

	// The relying party refuses the error response.
	_, err = rpClient.HandleCallback(ctx, values)
	require.Error(t, err)
}

func TestClientCredentialsTokenEndpoint(t *testing.T) {
	f := newFixture(t)

	resp := f.postForm(t, server.RouteOAuth2Token, url.Values{
		"grant_type":    {"client_credentials"},
		"client_id":     {"foo-client-001"},
		"client_secret": {"apisleutel"},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "no-store", resp.Header.Get("Cache-Control"))

	var tokenResponse token.Response
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&tokenResponse))
	resp.Body.Close()
	require.NotEmpty(t, tokenResponse.AccessToken)
	require.Empty(t, tokenResponse.IDToken)
	require.Equal(t, "fake-api-1", tokenResponse.Scope)
}

func TestTokenEndpointRejectsWrongSecret(t *testing.T) {
	f := newFixture(t)

	resp := f.postForm(t, server.RouteOAuth2Token, url.Values{
		"grant_type":    {"client_credentials"},
		"client_id":     {"foo-client-001"},
		"client_secret": {"wrong"},
	})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	var errResponse map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&errResponse))
	resp.Body.Close()
	require.Equal(t, "invalid_client", errResponse["error"])
}

func TestLogout(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	rpClient := rp.NewClient(f.ts.URL, "angular-spa-001", spaRedirectURI, []string{"openid"})
	require.NoError(t, rpClient.Discover(ctx))
	authURL, err := rpClient.AuthorizationURL()
	require.NoError(t, err)

	returnURL := f.signIn(t, authURL)

	// A registered post-logout target is honored.
	resp := f.get(t, server.RouteAuthLogout+"?post_logout_redirect_uri="+url.QueryEscape(spaRedirectURI))
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	require.Equal(t, spaRedirectURI, location(t, resp))

	// The session is gone: re-entering the flow challenges login again.
	resp = f.get(t, returnURL)
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	require.True(t, strings.HasPrefix(location(t, resp), server.RouteLogin))

	// An unregistered target renders a plain confirmation instead.
	resp = f.get(t, server.RouteAuthLogout+"?post_logout_redirect_uri="+url.QueryEscape("http://evil.example/"))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Contains(t, body(t, resp), "signed out")
}
