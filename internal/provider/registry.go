package provider

import (
	"errors"
	"sort"
	"sync"
)

// ErrNotFound is returned for an unknown provider id.
var ErrNotFound = errors.New("provider not found")

// Registry holds the registered provider descriptors and their protocol
// clients. Registration happens at startup; lookups during request handling
// only read.
type Registry struct {
	mu          sync.RWMutex
	descriptors map[string]*Descriptor
	clients     map[string]Client
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		descriptors: make(map[string]*Descriptor),
		clients:     make(map[string]Client),
	}
}

// Register adds a descriptor, building its protocol client for OAuth kinds.
func (r *Registry) Register(d *Descriptor) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if d.Kind == KindOAuth {
		client, err := NewClient(d)
		if err != nil {
			return err
		}
		r.clients[d.ID] = client
	}
	r.descriptors[d.ID] = d
	return nil
}

// Get returns the registered descriptor for id.
func (r *Registry) Get(id string) (*Descriptor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	d, ok := r.descriptors[id]
	if !ok {
		return nil, ErrNotFound
	}
	return d, nil
}

// Client returns the protocol client for an OAuth provider.
func (r *Registry) Client(id string) (Client, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.clients[id]
	if !ok {
		return nil, ErrNotFound
	}
	return c, nil
}

// List returns all descriptors ordered by id.
func (r *Registry) List() []*Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Descriptor, 0, len(r.descriptors))
	for _, d := range r.descriptors {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
