package chain

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/hashicorp/go-getter"
)

// KeplrChainConfig is the payload passed to keplr.experimentalSuggestChain. It
// uses the same layout as the chainapsis keplr-chain-registry files.
type KeplrChainConfig struct {
	RPC                 string        `json:"rpc"`
	Rest                string        `json:"rest"`
	ChainID             string        `json:"chainId"`
	ChainName           string        `json:"chainName"`
	ChainSymbolImageURL string        `json:"chainSymbolImageUrl,omitempty"`
	Bip44               Bip44         `json:"bip44"`
	Bech32Config        Bech32Config  `json:"bech32Config"`
	Currencies          []Currency    `json:"currencies"`
	FeeCurrencies       []FeeCurrency `json:"feeCurrencies"`
	StakeCurrency       Currency      `json:"stakeCurrency"`
	Features            []string      `json:"features"`
	Beta                bool          `json:"beta,omitempty"`
}

type Bip44 struct {
	CoinType int `json:"coinType"`
}

type Bech32Config struct {
	Bech32PrefixAccAddr  string `json:"bech32PrefixAccAddr"`
	Bech32PrefixAccPub   string `json:"bech32PrefixAccPub"`
	Bech32PrefixValAddr  string `json:"bech32PrefixValAddr"`
	Bech32PrefixValPub   string `json:"bech32PrefixValPub"`
	Bech32PrefixConsAddr string `json:"bech32PrefixConsAddr"`
	Bech32PrefixConsPub  string `json:"bech32PrefixConsPub"`
}

type Currency struct {
	CoinDenom        string `json:"coinDenom"`
	CoinMinimalDenom string `json:"coinMinimalDenom"`
	CoinDecimals     int32  `json:"coinDecimals"`
	CoinImageURL     string `json:"coinImageUrl,omitempty"`
	CoinGeckoID      string `json:"coinGeckoId,omitempty"`
}

type FeeCurrency struct {
	Currency
	GasPriceStep GasPriceStep `json:"gasPriceStep"`
}

type GasPriceStep struct {
	Low     float64 `json:"low"`
	Average float64 `json:"average"`
	High    float64 `json:"high"`
}

// DefaultKeplrChainConfig derives a suggestion from the network settings alone.
// Coin type 118 and the standard prefix suffixes cover Cosmos SDK chains.
func DefaultKeplrChainConfig(network Network) *KeplrChainConfig {
	prefix := network.Bech32Prefix
	currency := Currency{
		CoinDenom:        network.Symbol,
		CoinMinimalDenom: network.Denom,
		CoinDecimals:     network.Decimals,
	}
	return &KeplrChainConfig{
		RPC:       network.RPC,
		Rest:      network.Rest,
		ChainID:   network.ChainID,
		ChainName: network.Name,
		Bip44:     Bip44{CoinType: 118},
		Bech32Config: Bech32Config{
			Bech32PrefixAccAddr:  prefix,
			Bech32PrefixAccPub:   prefix + "pub",
			Bech32PrefixValAddr:  prefix + "valoper",
			Bech32PrefixValPub:   prefix + "valoperpub",
			Bech32PrefixConsAddr: prefix + "valcons",
			Bech32PrefixConsPub:  prefix + "valconspub",
		},
		Currencies: []Currency{currency},
		FeeCurrencies: []FeeCurrency{{
			Currency:     currency,
			GasPriceStep: GasPriceStep{Low: 0.01, Average: 0.025, High: 0.03},
		}},
		StakeCurrency: currency,
		Features:      []string{},
		Beta:          true,
	}
}

/*
FetchKeplrChainConfig downloads a keplr chain registry JSON file and decodes it.

Params:
- src: any go-getter file source, e.g. a local path or
  "https://raw.githubusercontent.com/chainapsis/keplr-chain-registry/main/cosmos/axone.json"
- workDir: directory the file is downloaded into

Returns:
- *KeplrChainConfig: the decoded chain suggestion
- error: if the file cannot be fetched or decoded
*/
func FetchKeplrChainConfig(ctx context.Context, src string, workDir string) (*KeplrChainConfig, error) {
	ctx, cancel := context.WithTimeout(ctx, 120*time.Second)
	defer cancel()

	pwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("failed to resolve working directory: %w", err)
	}

	dst := filepath.Join(workDir, "keplr_chain.json")
	client := getter.Client{
		Ctx:  ctx,
		Src:  src,
		Dst:  dst,
		Pwd:  pwd,
		Mode: getter.ClientModeFile,
	}
	if err := client.Get(); err != nil {
		return nil, fmt.Errorf("failed to download keplr chain config: %w", err)
	}

	body, err := os.ReadFile(dst)
	if err != nil {
		return nil, fmt.Errorf("failed to read keplr chain config: %w", err)
	}

	var config KeplrChainConfig
	if err := json.Unmarshal(body, &config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal keplr chain config: %w", err)
	}
	if config.ChainID == "" {
		return nil, fmt.Errorf("keplr chain config from %s has no chainId", src)
	}
	return &config, nil
}
