package authz

import (
	"crypto/rand"
	"encoding/base64"
	"sync"
	"time"

	"github.com/pkg/errors"
)

const (
	codeGenerationLength = 32
	authCodeTimeout      = 5 * time.Minute
)

// issuedCode is the server-side record behind an authorization code:
// who authorized what, pending the code exchange at the token endpoint.
type issuedCode struct {
	Subject   string
	Params    *AuthorizationParameters
	Scopes    []string
	CreatedAt time.Time
}

// codeStore holds outstanding authorization codes. Codes are one-time
// use and expire after authCodeTimeout; expired entries are dropped on
// access.
type codeStore struct {
	lock    sync.Mutex
	codes   map[string]*issuedCode
	nowFunc func() time.Time
}

func newCodeStore(nowFunc func() time.Time) *codeStore {
	return &codeStore{
		codes:   make(map[string]*issuedCode),
		nowFunc: nowFunc,
	}
}

// Issue generates an unguessable code and records the authorization
// behind it.
func (cs *codeStore) Issue(subject string, params *AuthorizationParameters, scopes []string) (string, error) {
	bytes := make([]byte, codeGenerationLength)
	if _, err := rand.Read(bytes); err != nil {
		return "", errors.Wrap(err, "[codeStore.Issue] rand.Read")
	}
	code := base64.RawURLEncoding.EncodeToString(bytes)

	cs.lock.Lock()
	defer cs.lock.Unlock()
	cs.codes[code] = &issuedCode{
		Subject:   subject,
		Params:    params,
		Scopes:    scopes,
		CreatedAt: cs.nowFunc(),
	}
	return code, nil
}

// Consume redeems a code exactly once. Unknown, already-used, and
// timed-out codes are indistinguishable to the caller.
func (cs *codeStore) Consume(code string) (*issuedCode, error) {
	cs.lock.Lock()
	defer cs.lock.Unlock()

	issued, ok := cs.codes[code]
	if !ok {
		return nil, ErrInvalidAuthorizationCode
	}
	delete(cs.codes, code)

	if cs.nowFunc().Sub(issued.CreatedAt) > authCodeTimeout {
		return nil, ErrInvalidAuthorizationCode
	}
	return issued, nil
}
