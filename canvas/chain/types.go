package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Family groups networks by the wallet provider and query API they use.
type Family string

const (
	FamilyEVM    Family = "evm"
	FamilyCosmos Family = "cosmos"
)

// ParseFamily returns the Family for a config value.
func ParseFamily(s string) (Family, error) {
	switch Family(strings.ToLower(strings.TrimSpace(s))) {
	case FamilyEVM:
		return FamilyEVM, nil
	case FamilyCosmos:
		return FamilyCosmos, nil
	default:
		return "", fmt.Errorf("unknown network family %q", s)
	}
}

// PaymentStatus is the state of a fee transaction as seen on chain.
type PaymentStatus string

const (
	StatusPending   PaymentStatus = "pending"
	StatusConfirmed PaymentStatus = "confirmed"
	StatusFailed    PaymentStatus = "failed"
)

var (
	ErrUnsupportedNetwork = errors.New("unsupported network")
	ErrInvalidTxHash      = errors.New("invalid transaction hash")
)

// Network describes one chain a visitor can pay the generation fee on.
type Network struct {
	ID        string
	Name      string
	Family    Family
	ChainID   string
	RPC       string
	Rest      string
	Recipient string

	// Price is expressed in display units (e.g. 1 WARD), Decimals converts it to base units.
	Price    decimal.Decimal
	Denom    string
	Symbol   string
	Decimals int32

	Bech32Prefix string
	ExplorerURL  string

	// MaxPaymentAge rejects transfers included in a block older than this, zero disables the bound.
	// Redemptions live in memory, so the bound is what stops old transfers being redeemed after a restart.
	MaxPaymentAge time.Duration

	// Keplr is the chain suggestion sent to the Keplr extension, cosmos only.
	Keplr *KeplrChainConfig
}

// PriceBaseUnits returns the fee in the smallest unit of the native token.
func (n Network) PriceBaseUnits() (*big.Int, error) {
	return ToBaseUnits(n.Price, n.Decimals)
}

// TxURL returns the explorer link for a transaction, or "" when no explorer is configured.
func (n Network) TxURL(txHash string) string {
	if n.ExplorerURL == "" {
		return ""
	}
	return strings.TrimSuffix(n.ExplorerURL, "/") + "/tx/" + txHash
}

// ReasonExpired is the failure reason of a transfer older than MaxPaymentAge.
const ReasonExpired = "payment expired"

// Expired reports whether a transfer included at blockTime is past MaxPaymentAge.
func (n Network) Expired(blockTime, now time.Time) bool {
	return n.MaxPaymentAge > 0 && now.Sub(blockTime) > n.MaxPaymentAge
}

// ToBaseUnits shifts a display amount by decimals and requires the result to be integral.
func ToBaseUnits(amount decimal.Decimal, decimals int32) (*big.Int, error) {
	if amount.Sign() <= 0 {
		return nil, fmt.Errorf("amount must be positive, got %s", amount.String())
	}
	shifted := amount.Shift(decimals)
	if !shifted.IsInteger() {
		return nil, fmt.Errorf("amount %s has more than %d decimal places", amount.String(), decimals)
	}
	return shifted.BigInt(), nil
}

// Payment is the observed state of a fee transaction.
type Payment struct {
	Network     string        `json:"network"`
	TxHash      string        `json:"txHash"`
	Status      PaymentStatus `json:"status"`
	Sender      string        `json:"sender,omitempty"`
	Recipient   string        `json:"recipient,omitempty"`
	Amount      string        `json:"amount,omitempty"`
	Denom       string        `json:"denom,omitempty"`
	Height      int64         `json:"height,omitempty"`
	Reason      string        `json:"reason,omitempty"`
	ExplorerURL string        `json:"explorerUrl,omitempty"`
}

// Terminal reports whether polling can stop.
func (p *Payment) Terminal() bool {
	return p != nil && (p.Status == StatusConfirmed || p.Status == StatusFailed)
}

// Verifier checks fee transactions on a single network.
type Verifier interface {
	// Check queries the chain once. A transaction the node does not know yet is
	// reported as StatusPending, not as an error.
	Check(ctx context.Context, txHash string) (*Payment, error)
	Network() Network
	Close()
}

// NewVerifier builds the verifier matching the network family.
func NewVerifier(network Network) (Verifier, error) {
	switch network.Family {
	case FamilyEVM:
		return NewEVMVerifier(network)
	case FamilyCosmos:
		return NewCosmosVerifier(network)
	default:
		return nil, fmt.Errorf("%w: family %q", ErrUnsupportedNetwork, network.Family)
	}
}
