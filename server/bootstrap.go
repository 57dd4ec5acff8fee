package server

import (
	"github.com/oidcware/go-id-server/clients"
	"github.com/oidcware/go-id-server/users"
	"github.com/pkg/errors"
)

// DefaultClients returns the built-in development client catalog: one
// browser-exposed public client and one confidential machine client.
func DefaultClients() ([]*clients.Client, error) {
	apiSecretHash, err := users.HashPassword("apisleutel")
	if err != nil {
		return nil, errors.Wrap(err, "[DefaultClients] hash client secret")
	}

	return []*clients.Client{
		{
			ID:          "angular-spa-001",
			Type:        clients.ClientTypePublic,
			Description: "Angular SPA",
			GrantTypes:  []clients.GrantType{clients.ImplicitGrant},
			Scopes:      []string{"openid", "profile", "email"},
			RedirectURIs: []string{
				"http://localhost:4200/",
				"http://localhost:4200/silent-refresh.html",
			},
			PostLogoutRedirectURIs: []string{"http://localhost:4200/"},
			AllowedCORSOrigins:     []string{"http://localhost:4200"},
		},
		{
			ID:          "foo-client-001",
			Type:        clients.ClientTypeConfidential,
			Description: "Fake API client",
			GrantTypes:  []clients.GrantType{clients.ClientCredentialsGrant},
			Scopes:      []string{"fake-api-1"},
			SecretHash:  apiSecretHash,
		},
	}, nil
}

// SeedUserStore populates the in-memory store with the single test
// user. A real deployment swaps the store variant instead.
func SeedUserStore(store *users.InMemoryStore) error {
	return store.Add(&users.User{
		Subject:       "fake-guid-123",
		Username:      "mary",
		Email:         "mary@example.com",
		EmailVerified: true,
		FirstName:     "Mary",
		LastName:      "Doe",
	}, "Secret123!")
}
