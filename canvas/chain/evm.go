package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"regexp"
	"strings"
	"time"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
)

var evmTxHashPattern = regexp.MustCompile(`^0x[0-9a-fA-F]{64}$`)

// IsEVMTxHash reports whether s is a 0x prefixed 32 byte hash.
func IsEVMTxHash(s string) bool {
	return evmTxHashPattern.MatchString(s)
}

// EVMBackend is the subset of ethclient.Client the verifier needs.
type EVMBackend interface {
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	TransactionByHash(ctx context.Context, hash common.Hash) (tx *types.Transaction, isPending bool, err error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	Close()
}

var _ EVMBackend = (*ethclient.Client)(nil)

// EVMVerifier confirms native token transfers through the JSON-RPC receipt API.
type EVMVerifier struct {
	network   Network
	backend   EVMBackend
	chainID   *big.Int
	recipient common.Address
	minAmount *big.Int
}

var _ Verifier = (*EVMVerifier)(nil)

// NewEVMVerifier dials the network RPC endpoint.
func NewEVMVerifier(network Network) (*EVMVerifier, error) {
	client, err := ethclient.Dial(network.RPC)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to EVM RPC for %s: %w", network.ID, err)
	}
	return NewEVMVerifierWithBackend(network, client)
}

// NewEVMVerifierWithBackend creates a verifier over an existing backend.
func NewEVMVerifierWithBackend(network Network, backend EVMBackend) (*EVMVerifier, error) {
	if !common.IsHexAddress(network.Recipient) {
		return nil, fmt.Errorf("invalid recipient address %q for %s", network.Recipient, network.ID)
	}
	chainID, err := ParseEVMChainID(network.ChainID)
	if err != nil {
		return nil, err
	}
	minAmount, err := network.PriceBaseUnits()
	if err != nil {
		return nil, fmt.Errorf("invalid price for %s: %w", network.ID, err)
	}
	return &EVMVerifier{
		network:   network,
		backend:   backend,
		chainID:   chainID,
		recipient: common.HexToAddress(network.Recipient),
		minAmount: minAmount,
	}, nil
}

// Check looks up the receipt and, once mined, the transfer itself.
func (v *EVMVerifier) Check(ctx context.Context, txHash string) (*Payment, error) {
	if !IsEVMTxHash(txHash) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidTxHash, txHash)
	}
	hash := common.HexToHash(txHash)

	payment := &Payment{
		Network:     v.network.ID,
		TxHash:      hash.Hex(),
		Status:      StatusPending,
		Recipient:   v.recipient.Hex(),
		Denom:       v.network.Denom,
		ExplorerURL: v.network.TxURL(hash.Hex()),
	}

	receipt, err := v.backend.TransactionReceipt(ctx, hash)
	if errors.Is(err, ethereum.NotFound) {
		return payment, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch receipt: %w", err)
	}
	if receipt.BlockNumber != nil {
		payment.Height = receipt.BlockNumber.Int64()
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		payment.Status = StatusFailed
		payment.Reason = "transaction reverted"
		return payment, nil
	}
	if v.network.MaxPaymentAge > 0 {
		header, err := v.backend.HeaderByNumber(ctx, receipt.BlockNumber)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch block header: %w", err)
		}
		if v.network.Expired(time.Unix(int64(header.Time), 0), time.Now()) {
			payment.Status = StatusFailed
			payment.Reason = ReasonExpired
			return payment, nil
		}
	}

	tx, _, err := v.backend.TransactionByHash(ctx, hash)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch transaction: %w", err)
	}
	payment.Amount = tx.Value().String()
	if sender, err := types.Sender(types.LatestSignerForChainID(v.chainID), tx); err == nil {
		payment.Sender = sender.Hex()
	}

	switch {
	case tx.To() == nil || *tx.To() != v.recipient:
		payment.Status = StatusFailed
		payment.Reason = "recipient mismatch"
	case tx.Value().Cmp(v.minAmount) < 0:
		payment.Status = StatusFailed
		payment.Reason = fmt.Sprintf("insufficient payment: sent %s, required %s", tx.Value(), v.minAmount)
	default:
		payment.Status = StatusConfirmed
	}
	return payment, nil
}

func (v *EVMVerifier) Network() Network { return v.network }

func (v *EVMVerifier) Close() {
	v.backend.Close()
}

// ParseEVMChainID accepts a decimal ("10010") or hex ("0x271A") chain id.
func ParseEVMChainID(s string) (*big.Int, error) {
	s = strings.TrimSpace(s)
	id := new(big.Int)
	var ok bool
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		_, ok = id.SetString(s[2:], 16)
	} else {
		_, ok = id.SetString(s, 10)
	}
	if !ok || id.Sign() <= 0 {
		return nil, fmt.Errorf("invalid EVM chain id %q", s)
	}
	return id, nil
}

// AddEthereumChainParams is the wallet_addEthereumChain payload (EIP-3085).
type AddEthereumChainParams struct {
	ChainID           string         `json:"chainId"`
	ChainName         string         `json:"chainName"`
	RPCURLs           []string       `json:"rpcUrls"`
	NativeCurrency    NativeCurrency `json:"nativeCurrency"`
	BlockExplorerURLs []string       `json:"blockExplorerUrls,omitempty"`
}

type NativeCurrency struct {
	Name     string `json:"name"`
	Symbol   string `json:"symbol"`
	Decimals int32  `json:"decimals"`
}

// EVMChainParams builds the chain description browser wallets expect.
func EVMChainParams(network Network) (*AddEthereumChainParams, error) {
	id, err := ParseEVMChainID(network.ChainID)
	if err != nil {
		return nil, err
	}
	params := &AddEthereumChainParams{
		ChainID:   "0x" + id.Text(16),
		ChainName: network.Name,
		RPCURLs:   []string{network.RPC},
		NativeCurrency: NativeCurrency{
			Name:     network.Symbol,
			Symbol:   network.Symbol,
			Decimals: network.Decimals,
		},
	}
	if network.ExplorerURL != "" {
		params.BlockExplorerURLs = []string{network.ExplorerURL}
	}
	return params, nil
}
