package config

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pelletier/go-toml/v2"
	"github.com/shopspring/decimal"

	"github.com/Cogwheel-Validator/spectra-canvas/canvas/chain"
)

var networkIDPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]*$`)

// FileReader defines the interface for reading files
type FileReader interface {
	// ReadFile reads the file at the given path and returns the contents
	ReadFile(path string) ([]byte, error)
}

// DefaultFileReader implements FileReader using os.ReadFile
type DefaultFileReader struct{}

func (d *DefaultFileReader) ReadFile(path string) ([]byte, error) {
	return os.ReadFile(path)
}

// KeplrFetcher downloads a keplr chain registry file.
type KeplrFetcher func(ctx context.Context, src string, workDir string) (*chain.KeplrChainConfig, error)

// NetworkConfigLoader reads the networks file and converts it to chain types.
type NetworkConfigLoader struct {
	fileReader FileReader
	fetchKeplr KeplrFetcher
	cacheDir   string
}

// NewNetworkConfigLoader creates a loader. An empty cacheDir downloads keplr
// chain files into a temporary directory.
func NewNetworkConfigLoader(fileReader FileReader, fetchKeplr KeplrFetcher, cacheDir string) *NetworkConfigLoader {
	return &NetworkConfigLoader{
		fileReader: fileReader,
		fetchKeplr: fetchKeplr,
		cacheDir:   cacheDir,
	}
}

// NewDefaultNetworkConfigLoader reads from disk and fetches keplr files with go-getter.
func NewDefaultNetworkConfigLoader(cacheDir string) *NetworkConfigLoader {
	return NewNetworkConfigLoader(&DefaultFileReader{}, chain.FetchKeplrChainConfig, cacheDir)
}

// LoadFromFile parses a TOML (or .json) networks file.
func (l *NetworkConfigLoader) LoadFromFile(ctx context.Context, filePath string) ([]chain.Network, error) {
	data, err := l.fileReader.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read networks file: %w", err)
	}

	var file NetworksFile
	if strings.HasSuffix(filePath, ".json") {
		if err := json.Unmarshal(data, &file); err != nil {
			return nil, fmt.Errorf("failed to parse JSON networks file: %w", err)
		}
	} else {
		if err := toml.Unmarshal(data, &file); err != nil {
			return nil, fmt.Errorf("failed to parse TOML networks file: %w", err)
		}
	}

	networks, err := ConvertToNetworks(&file)
	if err != nil {
		return nil, err
	}

	if err := l.attachKeplrConfigs(ctx, filepath.Dir(filePath), file.Networks, networks); err != nil {
		return nil, err
	}
	return networks, nil
}

// ConvertToNetworks validates every entry and converts it to chain.Network.
func ConvertToNetworks(file *NetworksFile) ([]chain.Network, error) {
	if file == nil || len(file.Networks) == 0 {
		return nil, fmt.Errorf("no networks in config")
	}

	seen := make(map[string]bool, len(file.Networks))
	networks := make([]chain.Network, len(file.Networks))
	for i, nc := range file.Networks {
		network, err := convertNetwork(nc)
		if err != nil {
			return nil, fmt.Errorf("network %d (%s): %w", i, nc.ID, err)
		}
		if seen[network.ID] {
			return nil, fmt.Errorf("duplicate network id %s", network.ID)
		}
		seen[network.ID] = true
		networks[i] = network
	}
	return networks, nil
}

func convertNetwork(nc NetworkConfig) (chain.Network, error) {
	if !networkIDPattern.MatchString(nc.ID) {
		return chain.Network{}, fmt.Errorf("id must be a lowercase slug, got %q", nc.ID)
	}
	family, err := chain.ParseFamily(nc.Family)
	if err != nil {
		return chain.Network{}, err
	}
	if nc.ChainID == "" {
		return chain.Network{}, fmt.Errorf("chain_id is required")
	}
	if nc.RPC == "" {
		return chain.Network{}, fmt.Errorf("rpc is required")
	}
	if nc.Denom == "" || nc.Symbol == "" {
		return chain.Network{}, fmt.Errorf("denom and symbol are required")
	}
	if nc.Decimals < 0 || nc.Decimals > 36 {
		return chain.Network{}, fmt.Errorf("decimals must be between 0 and 36")
	}

	priceStr := nc.Price
	if priceStr == "" {
		priceStr = "1"
	}
	price, err := decimal.NewFromString(priceStr)
	if err != nil {
		return chain.Network{}, fmt.Errorf("invalid price %q: %w", nc.Price, err)
	}
	if _, err := chain.ToBaseUnits(price, nc.Decimals); err != nil {
		return chain.Network{}, fmt.Errorf("invalid price: %w", err)
	}

	name := nc.Name
	if name == "" {
		name = nc.ID
	}

	network := chain.Network{
		ID:           nc.ID,
		Name:         name,
		Family:       family,
		ChainID:      nc.ChainID,
		RPC:          nc.RPC,
		Rest:         nc.Rest,
		Recipient:    nc.Recipient,
		Price:        price,
		Denom:        nc.Denom,
		Symbol:       nc.Symbol,
		Decimals:     nc.Decimals,
		Bech32Prefix: nc.Bech32Prefix,
		ExplorerURL:  nc.ExplorerURL,
	}

	switch family {
	case chain.FamilyEVM:
		if _, err := chain.ParseEVMChainID(nc.ChainID); err != nil {
			return chain.Network{}, err
		}
		if !common.IsHexAddress(nc.Recipient) {
			return chain.Network{}, fmt.Errorf("recipient must be a hex address, got %q", nc.Recipient)
		}
	case chain.FamilyCosmos:
		if nc.Rest == "" {
			return chain.Network{}, fmt.Errorf("rest is required for cosmos networks")
		}
		if nc.Bech32Prefix == "" {
			return chain.Network{}, fmt.Errorf("bech32_prefix is required for cosmos networks")
		}
		if err := chain.ValidateBech32Address(nc.Recipient, nc.Bech32Prefix); err != nil {
			return chain.Network{}, fmt.Errorf("invalid recipient: %w", err)
		}
	}
	return network, nil
}

func (l *NetworkConfigLoader) attachKeplrConfigs(
	ctx context.Context,
	baseDir string,
	configs []NetworkConfig,
	networks []chain.Network,
) error {
	for i, nc := range configs {
		if nc.KeplrChainFile == "" || networks[i].Family != chain.FamilyCosmos {
			continue
		}
		if l.fetchKeplr == nil {
			return fmt.Errorf("network %s sets keplr_chain_file but no fetcher is configured", nc.ID)
		}

		workDir := l.cacheDir
		if workDir == "" {
			dir, err := os.MkdirTemp("", "canvas-keplr-")
			if err != nil {
				return fmt.Errorf("failed to create keplr work dir: %w", err)
			}
			workDir = dir
		}
		workDir = filepath.Join(workDir, nc.ID)
		if err := os.MkdirAll(workDir, 0o755); err != nil {
			return fmt.Errorf("failed to create keplr work dir: %w", err)
		}

		keplr, err := l.fetchKeplr(ctx, resolveSource(baseDir, nc.KeplrChainFile), workDir)
		if err != nil {
			return fmt.Errorf("network %s: %w", nc.ID, err)
		}
		if keplr.ChainID != networks[i].ChainID {
			return fmt.Errorf("network %s: keplr chain file is for %s, expected %s",
				nc.ID, keplr.ChainID, networks[i].ChainID)
		}
		networks[i].Keplr = keplr
	}
	return nil
}

// resolveSource makes plain relative paths relative to the networks file.
func resolveSource(baseDir, src string) string {
	if strings.Contains(src, "::") || strings.Contains(src, "://") || filepath.IsAbs(src) {
		return src
	}
	return filepath.Join(baseDir, src)
}
