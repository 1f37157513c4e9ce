package chain

import (
	"fmt"
	"sort"
)

// Registry holds one verifier per configured network id.
type Registry struct {
	verifiers map[string]Verifier
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{verifiers: make(map[string]Verifier)}
}

// NewRegistryFromNetworks creates a verifier for every network. Verifiers
// created before a failure are closed.
func NewRegistryFromNetworks(networks []Network) (*Registry, error) {
	r := NewRegistry()
	for _, network := range networks {
		v, err := NewVerifier(network)
		if err != nil {
			r.Close()
			return nil, fmt.Errorf("failed to create verifier for %s: %w", network.ID, err)
		}
		if err := r.Add(v); err != nil {
			v.Close()
			r.Close()
			return nil, err
		}
	}
	return r, nil
}

// Add registers a verifier under its network id.
func (r *Registry) Add(v Verifier) error {
	id := v.Network().ID
	if _, exists := r.verifiers[id]; exists {
		return fmt.Errorf("network %s already registered", id)
	}
	r.verifiers[id] = v
	return nil
}

// Get returns the verifier for a network id.
func (r *Registry) Get(id string) (Verifier, error) {
	v, ok := r.verifiers[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedNetwork, id)
	}
	return v, nil
}

// Networks returns the configured networks sorted by id.
func (r *Registry) Networks() []Network {
	networks := make([]Network, 0, len(r.verifiers))
	for _, v := range r.verifiers {
		networks = append(networks, v.Network())
	}
	sort.Slice(networks, func(i, j int) bool { return networks[i].ID < networks[j].ID })
	return networks
}

// Len returns the number of registered networks.
func (r *Registry) Len() int {
	return len(r.verifiers)
}

// Close closes every verifier.
func (r *Registry) Close() {
	for _, v := range r.verifiers {
		v.Close()
	}
}
