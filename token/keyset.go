package token

import (
	"sync"

	"github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"
)

// KeySet holds the active signing key plus any retired keys that are
// kept for verification only. Tokens signed before a rotation stay
// verifiable until their natural expiry; new tokens are always signed
// with the active key.
type KeySet struct {
	lock    sync.RWMutex
	active  *KeyPairSigner
	retired map[string]*KeyPairSigner // keyed by kid
}

// NewKeySet creates a KeySet with the given active signer.
func NewKeySet(active *KeyPairSigner) *KeySet {
	return &KeySet{
		active:  active,
		retired: make(map[string]*KeyPairSigner),
	}
}

// Sign signs claims with the active key.
func (ks *KeySet) Sign(claims jwt.MapClaims) (string, error) {
	ks.lock.RLock()
	signer := ks.active
	ks.lock.RUnlock()
	return signer.Sign(claims)
}

// GetSigningMethod returns the active key's signing method.
func (ks *KeySet) GetSigningMethod() jwt.SigningMethod {
	ks.lock.RLock()
	defer ks.lock.RUnlock()
	return ks.active.GetSigningMethod()
}

// GetVerificationKey resolves a parsed token's kid header to a public
// key, checking the active key first and then retired keys.
func (ks *KeySet) GetVerificationKey(token *jwt.Token) (any, error) {
	if _, ok := token.Method.(*jwt.SigningMethodRSA); !ok {
		return nil, errors.Errorf("unexpected signing method: %v", token.Header["alg"])
	}

	kid, _ := token.Header["kid"].(string)

	ks.lock.RLock()
	defer ks.lock.RUnlock()

	if kid == "" || kid == ks.active.KeyID() {
		return ks.active.GetVerificationKey(token)
	}
	if retired, ok := ks.retired[kid]; ok {
		return retired.GetVerificationKey(token)
	}
	return nil, errors.Errorf("no key for kid %q", kid)
}

// Rotate installs a new active signer, moving the previous one to the
// retired set so tokens it signed remain verifiable.
func (ks *KeySet) Rotate(next *KeyPairSigner) {
	ks.lock.Lock()
	defer ks.lock.Unlock()
	ks.retired[ks.active.KeyID()] = ks.active
	ks.active = next
}

// JWKS exports the public keys of the active and all retired signers.
func (ks *KeySet) JWKS() (*JWKS, error) {
	ks.lock.RLock()
	defer ks.lock.RUnlock()

	keys := make([]JWK, 0, len(ks.retired)+1)
	jwk, err := ks.active.JWK()
	if err != nil {
		return nil, errors.Wrap(err, "[KeySet.JWKS] active key")
	}
	keys = append(keys, *jwk)

	for kid, signer := range ks.retired {
		jwk, err := signer.JWK()
		if err != nil {
			return nil, errors.Wrapf(err, "[KeySet.JWKS] retired key %q", kid)
		}
		keys = append(keys, *jwk)
	}
	return &JWKS{Keys: keys}, nil
}

var _ Signer = (*KeySet)(nil)
