// Package registry holds the set of OAuth2 clients this deployment trusts.
// Clients are declared in configuration and loaded once at startup; the
// registry is handed to the services that need it rather than living in a
// package-level variable so tests can build their own.
package registry

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"sync"

	"github.com/openphotolib/photolib/internal/auth/domain"
)

var (
	// ErrDuplicateClient reports a client_id registered twice.
	ErrDuplicateClient = errors.New("registry: duplicate client id")

	// ErrUnknownClient reports a lookup for an unregistered client_id.
	ErrUnknownClient = errors.New("registry: unknown client")
)

// Registry is an in-memory client directory keyed by client_id.
type Registry struct {
	mu      sync.RWMutex
	clients map[string]domain.Client
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{clients: make(map[string]domain.Client)}
}

// Register adds a client. Registering an already-known client_id fails.
func (r *Registry) Register(c domain.Client) error {
	if c.ID == "" {
		return fmt.Errorf("registry: client %q has no id", c.Name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.clients[c.ID]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateClient, c.ID)
	}
	r.clients[c.ID] = c
	return nil
}

// Find returns the client for id or ErrUnknownClient.
func (r *Registry) Find(id string) (domain.Client, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.clients[id]
	if !ok {
		return domain.Client{}, ErrUnknownClient
	}
	return c, nil
}

// ValidateRedirectURI reports whether uri exactly matches one of the
// client's registered redirect URIs. No prefix or wildcard matching.
func (r *Registry) ValidateRedirectURI(id, uri string) bool {
	c, err := r.Find(id)
	if err != nil {
		return false
	}
	for _, registered := range c.RedirectURIs {
		if registered == uri {
			return true
		}
	}
	return false
}

// ValidateSecret checks the client secret in constant time.
func (r *Registry) ValidateSecret(id, secret string) bool {
	c, err := r.Find(id)
	if err != nil {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(c.Secret), []byte(secret)) == 1
}

// Len reports how many clients are registered.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.clients)
}
