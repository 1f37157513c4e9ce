package chain_test

import (
	"errors"
	"testing"

	"github.com/zeebo/assert"

	"github.com/Cogwheel-Validator/spectra-canvas/canvas/chain"
)

type closeCounter struct {
	scriptedVerifier
	closed int
}

func (c *closeCounter) Close() { c.closed++ }

func TestRegistry(t *testing.T) {
	r := chain.NewRegistry()
	warden := &closeCounter{scriptedVerifier: scriptedVerifier{network: chain.Network{ID: "warden"}}}
	axone := &closeCounter{scriptedVerifier: scriptedVerifier{network: chain.Network{ID: "axone"}}}

	assert.NoError(t, r.Add(warden))
	assert.NoError(t, r.Add(axone))
	assert.Error(t, r.Add(warden))
	assert.Equal(t, r.Len(), 2)

	v, err := r.Get("warden")
	assert.NoError(t, err)
	assert.Equal(t, v.Network().ID, "warden")

	_, err = r.Get("osmosis")
	assert.True(t, errors.Is(err, chain.ErrUnsupportedNetwork))

	networks := r.Networks()
	assert.Equal(t, len(networks), 2)
	assert.Equal(t, networks[0].ID, "axone")
	assert.Equal(t, networks[1].ID, "warden")

	r.Close()
	assert.Equal(t, warden.closed, 1)
	assert.Equal(t, axone.closed, 1)
}

func TestNewRegistryFromNetworksRejectsDuplicates(t *testing.T) {
	srv := newCosmosServer(t, 200, `{}`)
	network := axoneNetwork(srv.URL)

	_, err := chain.NewRegistryFromNetworks([]chain.Network{network, network})
	assert.Error(t, err)

	r, err := chain.NewRegistryFromNetworks([]chain.Network{network})
	assert.NoError(t, err)
	assert.Equal(t, r.Len(), 1)
	r.Close()
}
