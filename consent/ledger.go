package consent

import "time"

// Grant records which scopes a subject has approved for a client.
// Keyed by (subject, client); a new grant for the same key replaces the
// prior one.
type Grant struct {
	Subject   string    `json:"subject"`
	ClientID  string    `json:"client_id"`
	Scopes    []string  `json:"scopes"`
	Remember  bool      `json:"remember"`
	GrantedAt time.Time `json:"granted_at"`
}

// Covers reports whether the grant's scope set is a superset of the
// requested scopes.
func (g *Grant) Covers(scopes []string) bool {
	granted := make(map[string]struct{}, len(g.Scopes))
	for _, s := range g.Scopes {
		granted[s] = struct{}{}
	}
	for _, s := range scopes {
		if _, ok := granted[s]; !ok {
			return false
		}
	}
	return true
}

// Ledger records consent decisions. An absent entry always means "not
// granted" - the authorization endpoint must never treat unknown as
// consented.
type Ledger interface {
	// HasConsent is true iff a stored grant for (subject, client) covers
	// every requested scope.
	HasConsent(subject, clientID string, scopes []string) bool

	// Grant upserts the consent record for (subject, client). The upsert
	// is last-writer-wins and atomic per key, so concurrent identical
	// grants converge.
	Grant(subject, clientID string, scopes []string, remember bool) error

	// Revoke removes the consent record for (subject, client).
	Revoke(subject, clientID string) error
}
