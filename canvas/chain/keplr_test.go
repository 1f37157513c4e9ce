package chain_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/zeebo/assert"

	"github.com/Cogwheel-Validator/spectra-canvas/canvas/chain"
)

const axoneKeplrJSON = `{
  "rpc": "https://api.dentrite.axone.xyz:443/rpc",
  "rest": "https://api.dentrite.axone.xyz",
  "chainId": "axone-dentrite-1",
  "chainName": "Axone testnet",
  "bip44": {"coinType": 118},
  "bech32Config": {"bech32PrefixAccAddr": "axone"},
  "currencies": [{"coinDenom": "AXONE", "coinMinimalDenom": "uaxone", "coinDecimals": 6}],
  "feeCurrencies": [{"coinDenom": "AXONE", "coinMinimalDenom": "uaxone", "coinDecimals": 6,
    "gasPriceStep": {"low": 0.01, "average": 0.025, "high": 0.03}}],
  "stakeCurrency": {"coinDenom": "AXONE", "coinMinimalDenom": "uaxone", "coinDecimals": 6},
  "features": ["cosmwasm"]
}`

func TestDefaultKeplrChainConfig(t *testing.T) {
	config := chain.DefaultKeplrChainConfig(axoneNetwork("https://api.dentrite.axone.xyz"))

	assert.Equal(t, config.ChainID, "axone-dentrite-1")
	assert.Equal(t, config.Bip44.CoinType, 118)
	assert.Equal(t, config.Bech32Config.Bech32PrefixAccAddr, "axone")
	assert.Equal(t, config.Bech32Config.Bech32PrefixValAddr, "axonevaloper")
	assert.Equal(t, config.Currencies[0].CoinMinimalDenom, "uaxone")
	assert.Equal(t, config.FeeCurrencies[0].CoinDecimals, int32(6))
	assert.Equal(t, config.FeeCurrencies[0].GasPriceStep.Average, 0.025)
}

func TestFetchKeplrChainConfigFromFile(t *testing.T) {
	srcDir := t.TempDir()
	src := filepath.Join(srcDir, "axone.json")
	assert.NoError(t, os.WriteFile(src, []byte(axoneKeplrJSON), 0o644))

	config, err := chain.FetchKeplrChainConfig(context.Background(), src, t.TempDir())
	assert.NoError(t, err)
	assert.Equal(t, config.ChainID, "axone-dentrite-1")
	assert.Equal(t, config.FeeCurrencies[0].GasPriceStep.High, 0.03)
	assert.Equal(t, len(config.Features), 1)
}

func TestFetchKeplrChainConfigRequiresChainID(t *testing.T) {
	srcDir := t.TempDir()
	src := filepath.Join(srcDir, "broken.json")
	assert.NoError(t, os.WriteFile(src, []byte(`{"chainName": "nothing"}`), 0o644))

	_, err := chain.FetchKeplrChainConfig(context.Background(), src, t.TempDir())
	assert.Error(t, err)
}
