package sessions

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

var (
	ErrNoSession      = errors.New("no session")
	ErrSessionExpired = errors.New("session expired")
)

const defaultSessionLifetime = 8 * time.Hour

// Authenticator owns the mapping from a browser's session id to an
// authenticated subject. Expiry is checked opportunistically on read -
// there is no background eviction.
type Authenticator struct {
	lifetime time.Duration
	nowFunc  func() time.Time

	lock     sync.RWMutex
	sessions map[string]*Session
}

// AuthenticatorOption modifies an Authenticator instance.
type AuthenticatorOption func(*Authenticator)

// WithLifetime sets the absolute session timeout.
func WithLifetime(lifetime time.Duration) AuthenticatorOption {
	return func(a *Authenticator) {
		a.lifetime = lifetime
	}
}

// WithNowFunc sets the now time function (primarily for testing)
func WithNowFunc(now func() time.Time) AuthenticatorOption {
	return func(a *Authenticator) {
		a.nowFunc = now
	}
}

func NewAuthenticator(options ...AuthenticatorOption) *Authenticator {
	a := &Authenticator{
		lifetime: defaultSessionLifetime,
		nowFunc:  time.Now,
		sessions: make(map[string]*Session),
	}
	for _, opt := range options {
		opt(a)
	}
	return a
}

// Establish creates a new session for the subject and returns it.
func (a *Authenticator) Establish(subject string, persistent bool) *Session {
	now := a.nowFunc()
	session := &Session{
		ID:         uuid.New().String(),
		Subject:    subject,
		CreatedAt:  now,
		ExpiresAt:  now.Add(a.lifetime),
		Persistent: persistent,
	}

	a.lock.Lock()
	defer a.lock.Unlock()
	a.sessions[session.ID] = session
	return session
}

// Current resolves a session id to its live session. Expired sessions
// are removed on access and reported as ErrSessionExpired.
func (a *Authenticator) Current(sessionID string) (*Session, error) {
	if sessionID == "" {
		return nil, ErrNoSession
	}

	a.lock.RLock()
	session, ok := a.sessions[sessionID]
	a.lock.RUnlock()
	if !ok {
		return nil, ErrNoSession
	}

	if session.Expired(a.nowFunc()) {
		a.Destroy(sessionID)
		return nil, ErrSessionExpired
	}
	return session, nil
}

// Destroy removes the session. Destroying an unknown session is a no-op.
func (a *Authenticator) Destroy(sessionID string) {
	a.lock.Lock()
	defer a.lock.Unlock()
	delete(a.sessions, sessionID)
}
