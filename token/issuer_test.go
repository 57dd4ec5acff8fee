package token_test

import (
	"sort"
	"testing"
	"time"

	"github.com/oidcware/go-id-server/token"
	"github.com/oidcware/go-id-server/users"
	"github.com/stretchr/testify/require"
)

const (
	testIssuerURL = "http://localhost:8080"
	testClientID  = "angular-spa-001"
	testNonce     = "random-nonce-value"
)

var testScopes = []string{"openid", "profile", "email"}

func testUser() *users.User {
	return &users.User{
		Subject:       "fake-guid-123",
		Username:      "mary",
		Email:         "mary@example.com",
		EmailVerified: true,
		FirstName:     "Mary",
		LastName:      "Doe",
	}
}

func newTestKeySet(t *testing.T) *token.KeySet {
	t.Helper()

	keyPair, err := token.GenerateRSAKeyPair("test-key-1", 2048)
	require.NoError(t, err)
	return token.NewKeySet(token.NewKeyPairSigner(keyPair))
}

func newTestIssuer(t *testing.T, keySet *token.KeySet, options ...token.IssuerOption) *token.Issuer {
	t.Helper()

	issuer, err := token.NewIssuer(testIssuerURL, keySet, options...)
	require.NoError(t, err)
	return issuer
}

func TestIssueResponseClaims(t *testing.T) {
	keySet := newTestKeySet(t)
	issuer := newTestIssuer(t, keySet)

	response, err := issuer.IssueResponse(token.Specifics{
		User:     testUser(),
		ClientID: testClientID,
		Scopes:   testScopes,
		Nonce:    testNonce,
	})
	require.NoError(t, err)
	require.NotEmpty(t, response.AccessToken)
	require.NotEmpty(t, response.IDToken)
	require.Equal(t, "Bearer", response.TokenType)
	require.Equal(t, "openid profile email", response.Scope)
	require.Equal(t, 3600, response.ExpiresIn)

	claims, err := issuer.Verify(response.IDToken)
	require.NoError(t, err)
	require.Equal(t, testIssuerURL, claims["iss"])
	require.Equal(t, "fake-guid-123", claims["sub"])
	require.Equal(t, testClientID, claims["aud"])
	require.Equal(t, testNonce, claims["nonce"])
	require.Equal(t, "Mary Doe", claims["name"])
	require.Equal(t, "mary", claims["preferred_username"])
	require.Equal(t, "mary@example.com", claims["email"])
	require.Equal(t, true, claims["email_verified"])
}

func TestIDTokenOnlyWithOpenIDScope(t *testing.T) {
	issuer := newTestIssuer(t, newTestKeySet(t))

	response, err := issuer.IssueResponse(token.Specifics{
		User:     testUser(),
		ClientID: testClientID,
		Scopes:   []string{"profile"},
	})
	require.NoError(t, err)
	require.NotEmpty(t, response.AccessToken)
	require.Empty(t, response.IDToken)
}

func TestClientCredentialsResponse(t *testing.T) {
	issuer := newTestIssuer(t, newTestKeySet(t))

	response, err := issuer.IssueResponse(token.Specifics{
		ClientID: "foo-client-001",
		Scopes:   []string{"fake-api-1"},
	})
	require.NoError(t, err)
	require.Empty(t, response.IDToken)

	claims, err := issuer.Verify(response.AccessToken)
	require.NoError(t, err)
	require.Equal(t, "foo-client-001", claims["sub"])
	require.Equal(t, "fake-api-1", claims["scope"])
}

func TestClaimShapeIsDeterministic(t *testing.T) {
	issuer := newTestIssuer(t, newTestKeySet(t))

	spec := token.Specifics{
		User:     testUser(),
		ClientID: testClientID,
		Scopes:   testScopes,
		Nonce:    testNonce,
	}

	first, err := issuer.IssueResponse(spec)
	require.NoError(t, err)
	second, err := issuer.IssueResponse(spec)
	require.NoError(t, err)

	firstClaims, err := issuer.Verify(first.IDToken)
	require.NoError(t, err)
	secondClaims, err := issuer.Verify(second.IDToken)
	require.NoError(t, err)

	require.Equal(t, claimKeys(firstClaims), claimKeys(secondClaims))
	for key := range firstClaims {
		switch key {
		case "iat", "exp", "jti":
			// Only timestamps and the token id may differ
		default:
			require.Equal(t, firstClaims[key], secondClaims[key], "claim %s", key)
		}
	}
}

func claimKeys(claims map[string]any) []string {
	keys := make([]string, 0, len(claims))
	for key := range claims {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

func TestRequestedLifetimeIsClamped(t *testing.T) {
	issuer := newTestIssuer(t, newTestKeySet(t),
		token.WithTokenExpiry(time.Hour, time.Hour),
		token.WithMaxTokenLifetime(2*time.Hour),
	)

	response, err := issuer.IssueResponse(token.Specifics{
		User:     testUser(),
		ClientID: testClientID,
		Scopes:   testScopes,
		Lifetime: 48 * time.Hour,
	})
	require.NoError(t, err)
	require.Equal(t, int((2 * time.Hour).Seconds()), response.ExpiresIn)
}

func TestExpiredTokenFailsVerification(t *testing.T) {
	now := time.Now()
	issuer := newTestIssuer(t, newTestKeySet(t),
		token.WithTokenExpiry(time.Hour, time.Hour),
		token.WithNowFunc(func() time.Time { return now }),
	)

	response, err := issuer.IssueResponse(token.Specifics{
		User:     testUser(),
		ClientID: testClientID,
		Scopes:   testScopes,
	})
	require.NoError(t, err)

	now = now.Add(2 * time.Hour)
	_, err = issuer.Verify(response.AccessToken)
	require.Error(t, err)
}

func TestKeyRotationKeepsOldTokensVerifiable(t *testing.T) {
	keyPair1, err := token.GenerateRSAKeyPair("key-1", 2048)
	require.NoError(t, err)
	keySet := token.NewKeySet(token.NewKeyPairSigner(keyPair1))
	issuer := newTestIssuer(t, keySet)

	before, err := issuer.IssueResponse(token.Specifics{
		User:     testUser(),
		ClientID: testClientID,
		Scopes:   testScopes,
	})
	require.NoError(t, err)

	keyPair2, err := token.GenerateRSAKeyPair("key-2", 2048)
	require.NoError(t, err)
	keySet.Rotate(token.NewKeyPairSigner(keyPair2))

	after, err := issuer.IssueResponse(token.Specifics{
		User:     testUser(),
		ClientID: testClientID,
		Scopes:   testScopes,
	})
	require.NoError(t, err)

	// Tokens signed before and after the rotation both verify
	_, err = issuer.Verify(before.AccessToken)
	require.NoError(t, err)
	_, err = issuer.Verify(after.AccessToken)
	require.NoError(t, err)

	// And the JWKS advertises both keys
	jwks, err := keySet.JWKS()
	require.NoError(t, err)
	require.Len(t, jwks.Keys, 2)

	kids := []string{jwks.Keys[0].Kid, jwks.Keys[1].Kid}
	sort.Strings(kids)
	require.Equal(t, []string{"key-1", "key-2"}, kids)
}
