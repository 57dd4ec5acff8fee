package consent

import (
	"sync"
	"time"

	"github.com/pkg/errors"
)

// Non-remembered grants only have to outlive the authorization request
// that triggered the consent challenge.
const transientGrantLifetime = 5 * time.Minute

type key struct {
	subject  string
	clientID string
}

var _ Ledger = (*InMemoryLedger)(nil)

// InMemoryLedger is the in-memory Ledger implementation. All operations
// are atomic per (subject, client) key; grants for different subjects
// never block each other beyond the map lock.
type InMemoryLedger struct {
	lock    sync.RWMutex
	grants  map[key]*Grant
	nowFunc func() time.Time
}

// LedgerOption modifies an InMemoryLedger instance.
type LedgerOption func(*InMemoryLedger)

// WithNowFunc sets the now time function (primarily for testing)
func WithNowFunc(now func() time.Time) LedgerOption {
	return func(l *InMemoryLedger) {
		l.nowFunc = now
	}
}

func NewInMemoryLedger(options ...LedgerOption) *InMemoryLedger {
	l := &InMemoryLedger{
		grants:  make(map[key]*Grant),
		nowFunc: time.Now,
	}
	for _, opt := range options {
		opt(l)
	}
	return l
}

func (l *InMemoryLedger) HasConsent(subject, clientID string, scopes []string) bool {
	l.lock.RLock()
	grant, ok := l.grants[key{subject, clientID}]
	l.lock.RUnlock()
	if !ok {
		return false
	}

	if !grant.Remember && l.nowFunc().Sub(grant.GrantedAt) > transientGrantLifetime {
		return false
	}
	return grant.Covers(scopes)
}

func (l *InMemoryLedger) Grant(subject, clientID string, scopes []string, remember bool) error {
	if subject == "" {
		return errors.New("[InMemoryLedger.Grant] subject is required")
	}
	if clientID == "" {
		return errors.New("[InMemoryLedger.Grant] clientID is required")
	}

	grant := &Grant{
		Subject:   subject,
		ClientID:  clientID,
		Scopes:    append([]string(nil), scopes...),
		Remember:  remember,
		GrantedAt: l.nowFunc(),
	}

	l.lock.Lock()
	defer l.lock.Unlock()
	l.grants[key{subject, clientID}] = grant
	return nil
}

func (l *InMemoryLedger) Revoke(subject, clientID string) error {
	l.lock.Lock()
	defer l.lock.Unlock()
	delete(l.grants, key{subject, clientID})
	return nil
}
