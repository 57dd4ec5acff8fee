package users

import (
	"sync"

	"github.com/pkg/errors"
)

// ErrInvalidCredentials is returned whenever authentication fails. It is
// deliberately a single error: callers must never learn which of the
// username or password was wrong.
var ErrInvalidCredentials = errors.New("invalid credentials")

// ErrUserNotFound is returned when a subject lookup misses.
var ErrUserNotFound = errors.New("user not found")

// Store is the credential backend capability. The flow core only ever
// talks to this interface; a real deployment swaps the in-memory variant
// for an external identity backend without touching the endpoint.
type Store interface {
	// Authenticate checks the presented credentials and returns the user
	// on success, ErrInvalidCredentials otherwise. Safe for concurrent use.
	Authenticate(username, password string) (*User, error)

	// GetBySubject returns the user with the given stable subject id.
	GetBySubject(subject string) (*User, error)
}

var _ Store = (*InMemoryStore)(nil)

// InMemoryStore is the test/development Store variant.
type InMemoryStore struct {
	byUsername map[string]*User
	bySubject  map[string]*User
	lock       sync.RWMutex
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		byUsername: make(map[string]*User),
		bySubject:  make(map[string]*User),
	}
}

// Add registers a user, hashing the plaintext password.
func (s *InMemoryStore) Add(user *User, password string) error {
	hash, err := HashPassword(password)
	if err != nil {
		return errors.Wrap(err, "[InMemoryStore.Add] HashPassword")
	}
	user.PasswordHash = hash

	s.lock.Lock()
	defer s.lock.Unlock()
	s.byUsername[user.Username] = user
	s.bySubject[user.Subject] = user
	return nil
}

func (s *InMemoryStore) Authenticate(username, password string) (*User, error) {
	s.lock.RLock()
	user, ok := s.byUsername[username]
	s.lock.RUnlock()

	// The hash comparison runs even for unknown users: both failure
	// modes must be indistinguishable to the caller.
	hash := ""
	if ok {
		hash = user.PasswordHash
	}
	if !CheckPasswordHash(password, hash) || !ok {
		return nil, ErrInvalidCredentials
	}
	return user, nil
}

func (s *InMemoryStore) GetBySubject(subject string) (*User, error) {
	s.lock.RLock()
	defer s.lock.RUnlock()

	user, ok := s.bySubject[subject]
	if !ok {
		return nil, ErrUserNotFound
	}
	return user, nil
}
