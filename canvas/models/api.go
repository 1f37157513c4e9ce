package models

import "github.com/Cogwheel-Validator/spectra-canvas/canvas/chain"

// GenerateRequest - POST /api/generateImage body
type GenerateRequest struct {
	Prompt  string `json:"prompt" validate:"required"`
	Network string `json:"network,omitempty" validate:"required_with=TxHash"` // e.g. "warden", "axone"
	TxHash  string `json:"txHash,omitempty" validate:"required_with=Network"` // fee transaction
}

// HasPayment reports whether the request references a fee transaction.
func (r GenerateRequest) HasPayment() bool {
	return r.Network != "" || r.TxHash != ""
}

// GenerateResponse - image as a data URI, plus the redeemed payment when there is one
type GenerateResponse struct {
	Image       string `json:"image"`
	Network     string `json:"network,omitempty"`
	TxHash      string `json:"txHash,omitempty"`
	ExplorerURL string `json:"explorerUrl,omitempty"`
}

// NetworkInfo - public description of a network a fee can be paid on
type NetworkInfo struct {
	ID             string                        `json:"id"`
	Name           string                        `json:"name"`
	Family         chain.Family                  `json:"family"`
	ChainID        string                        `json:"chainId"`
	RPC            string                        `json:"rpc"`
	Rest           string                        `json:"rest,omitempty"`
	Recipient      string                        `json:"recipient"`
	Price          string                        `json:"price"`          // display units, e.g. "1"
	PriceBaseUnits string                        `json:"priceBaseUnits"` // e.g. "1000000"
	Denom          string                        `json:"denom"`
	Symbol         string                        `json:"symbol"`
	Decimals       int32                         `json:"decimals"`
	ExplorerURL    string                        `json:"explorerUrl,omitempty"`
	EVMChain       *chain.AddEthereumChainParams `json:"evmChain,omitempty"`
	Keplr          *chain.KeplrChainConfig       `json:"keplr,omitempty"`
}

// NetworksResponse - GET /api/networks
type NetworksResponse struct {
	RequirePayment bool          `json:"requirePayment"`
	Networks       []NetworkInfo `json:"networks"`
}
