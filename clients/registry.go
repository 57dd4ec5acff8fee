package clients

import (
	"github.com/pkg/errors"
)

var (
	ErrUnknownClient = errors.New("unknown client")
	ErrInvalidScope  = errors.New("invalid scope")
)

// Registry is the process-wide catalog of registered clients. It is
// populated once at startup and read-only afterwards, so lookups need
// no locking and are safe for unlimited concurrent readers.
type Registry struct {
	clients map[string]*Client
}

// NewRegistry builds a Registry from the startup client configuration.
// Duplicate client ids are rejected.
func NewRegistry(clientList []*Client) (*Registry, error) {
	registry := &Registry{clients: make(map[string]*Client, len(clientList))}
	for _, c := range clientList {
		if c.ID == "" {
			return nil, errors.New("[NewRegistry] client with empty id")
		}
		if _, exists := registry.clients[c.ID]; exists {
			return nil, errors.Errorf("[NewRegistry] duplicate client id %q", c.ID)
		}
		registry.clients[c.ID] = c
	}
	return registry, nil
}

// Get returns the client with the given id, or ErrUnknownClient.
func (r *Registry) Get(clientID string) (*Client, error) {
	client, ok := r.clients[clientID]
	if !ok {
		return nil, errors.Wrapf(ErrUnknownClient, "[Registry.Get] %q", clientID)
	}
	return client, nil
}

// List returns all registered clients.
func (r *Registry) List() []*Client {
	list := make([]*Client, 0, len(r.clients))
	for _, c := range r.clients {
		list = append(list, c)
	}
	return list
}
