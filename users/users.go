package users

import (
	"golang.org/x/crypto/bcrypt"
)

// User is an authenticated subject together with the profile attributes
// the token issuer may expose through scopes.
type User struct {
	Subject       string `json:"subject"` // Stable subject identifier
	Username      string `json:"username"`
	PasswordHash  string `json:"-"` // Hashed password - never serialize
	Email         string `json:"email,omitempty"`
	EmailVerified bool   `json:"email_verified,omitempty"`
	FirstName     string `json:"first_name,omitempty"`
	LastName      string `json:"last_name,omitempty"`
}

// Name returns the user's display name for the profile scope.
func (u *User) Name() string {
	switch {
	case u.FirstName != "" && u.LastName != "":
		return u.FirstName + " " + u.LastName
	case u.FirstName != "":
		return u.FirstName
	default:
		return u.Username
	}
}

func HashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	return string(bytes), err
}

func CheckPasswordHash(password, hash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	return err == nil
}
