package rp

import (
	"sync"
	"time"
)

// StoredToken is the token material the relying party persists after a
// successful callback.
type StoredToken struct {
	AccessToken string
	IDToken     string
	TokenType   string
	Scope       string
	ExpiresAt   time.Time
}

// TokenCache is the relying party's token storage capability. The
// store is owned by the client and injectable.
type TokenCache interface {
	Save(token *StoredToken)
	Read() *StoredToken // nil when empty
	Clear()
}

var _ TokenCache = (*InMemoryTokenCache)(nil)

// InMemoryTokenCache holds at most one token, like a browser tab.
type InMemoryTokenCache struct {
	lock  sync.RWMutex
	token *StoredToken
}

func NewInMemoryTokenCache() *InMemoryTokenCache {
	return &InMemoryTokenCache{}
}

func (c *InMemoryTokenCache) Save(token *StoredToken) {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.token = token
}

func (c *InMemoryTokenCache) Read() *StoredToken {
	c.lock.RLock()
	defer c.lock.RUnlock()
	return c.token
}

func (c *InMemoryTokenCache) Clear() {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.token = nil
}
