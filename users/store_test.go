package users_test

import (
	"testing"

	"github.com/oidcware/go-id-server/users"
	"github.com/stretchr/testify/require"
)

func newSeededStore(t *testing.T) *users.InMemoryStore {
	t.Helper()

	store := users.NewInMemoryStore()
	err := store.Add(&users.User{
		Subject:       "fake-guid-123",
		Username:      "mary",
		Email:         "mary@example.com",
		EmailVerified: true,
		FirstName:     "Mary",
		LastName:      "Doe",
	}, "Secret123!")
	require.NoError(t, err)
	return store
}

func TestAuthenticate(t *testing.T) {
	store := newSeededStore(t)

	user, err := store.Authenticate("mary", "Secret123!")
	require.NoError(t, err)
	require.Equal(t, "fake-guid-123", user.Subject)
}

func TestAuthenticateFailuresAreIndistinguishable(t *testing.T) {
	store := newSeededStore(t)

	_, wrongPassword := store.Authenticate("mary", "wrong")
	_, unknownUser := store.Authenticate("nobody", "Secret123!")

	require.ErrorIs(t, wrongPassword, users.ErrInvalidCredentials)
	require.ErrorIs(t, unknownUser, users.ErrInvalidCredentials)
	require.Equal(t, wrongPassword.Error(), unknownUser.Error())
}

func TestGetBySubject(t *testing.T) {
	store := newSeededStore(t)

	user, err := store.GetBySubject("fake-guid-123")
	require.NoError(t, err)
	require.Equal(t, "mary", user.Username)

	_, err = store.GetBySubject("no-such-subject")
	require.ErrorIs(t, err, users.ErrUserNotFound)
}

func TestName(t *testing.T) {
	require.Equal(t, "Mary Doe", (&users.User{Username: "mary", FirstName: "Mary", LastName: "Doe"}).Name())
	require.Equal(t, "Mary", (&users.User{Username: "mary", FirstName: "Mary"}).Name())
	require.Equal(t, "mary", (&users.User{Username: "mary"}).Name())
}
