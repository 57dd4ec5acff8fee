package rp_test

import (
	"context"
	"net/url"
	"testing"
	"time"

	"github.com/oidcware/go-id-server/rp"
	"github.com/stretchr/testify/require"
)

func TestAuthorizationURLRequiresDiscovery(t *testing.T) {
	client := rp.NewClient("http://localhost:8080", "angular-spa-001", "http://localhost:4200/", []string{"openid"})

	_, err := client.AuthorizationURL()
	require.Error(t, err)

	_, err = client.AuthorizationCodeURL()
	require.Error(t, err)
}

func TestCallbackRejectsUnknownState(t *testing.T) {
	client := rp.NewClient("http://localhost:8080", "angular-spa-001", "http://localhost:4200/", []string{"openid"})

	_, err := client.HandleCallback(context.Background(), url.Values{
		"state":    {"never-issued"},
		"id_token": {"whatever"},
	})
	require.ErrorIs(t, err, rp.ErrStateMismatch)

	_, err = client.HandleCallback(context.Background(), url.Values{
		"id_token": {"whatever"},
	})
	require.ErrorIs(t, err, rp.ErrStateMismatch)
}

func TestCallbackSurfacesAuthorizationError(t *testing.T) {
	client := rp.NewClient("http://localhost:8080", "angular-spa-001", "http://localhost:4200/", []string{"openid"})

	_, err := client.HandleCallback(context.Background(), url.Values{
		"error": {"access_denied"},
		"state": {"irrelevant"},
	})
	require.Error(t, err)
	require.Contains(t, err.Error(), "access_denied")
}

func TestTokenCache(t *testing.T) {
	cache := rp.NewInMemoryTokenCache()
	require.Nil(t, cache.Read())

	stored := &rp.StoredToken{
		AccessToken: "at",
		IDToken:     "idt",
		TokenType:   "Bearer",
		Scope:       "openid profile",
		ExpiresAt:   time.Now().Add(time.Hour),
	}
	cache.Save(stored)
	require.Equal(t, stored, cache.Read())

	cache.Clear()
	require.Nil(t, cache.Read())
}

func TestTokenExpiryIsHonored(t *testing.T) {
	now := time.Now()
	cache := rp.NewInMemoryTokenCache()
	client := rp.NewClient("http://localhost:8080", "angular-spa-001", "http://localhost:4200/", []string{"openid"},
		rp.WithTokenCache(cache),
		rp.WithNowFunc(func() time.Time { return now }),
	)

	cache.Save(&rp.StoredToken{
		AccessToken: "at",
		ExpiresAt:   now.Add(time.Hour),
	})
	require.NotNil(t, client.Token())

	now = now.Add(2 * time.Hour)
	require.Nil(t, client.Token())
	require.Nil(t, cache.Read(), "an expired token is dropped from the cache on read")
}

func TestLogoutClearsCache(t *testing.T) {
	cache := rp.NewInMemoryTokenCache()
	client := rp.NewClient("http://localhost:8080", "angular-spa-001", "http://localhost:4200/", []string{"openid"},
		rp.WithTokenCache(cache),
	)

	cache.Save(&rp.StoredToken{AccessToken: "at", ExpiresAt: time.Now().Add(time.Hour)})
	client.Logout()
	require.Nil(t, cache.Read())
}
