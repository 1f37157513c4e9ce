package chain

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"
)

const msgSendTypeURL = "/cosmos.bank.v1beta1.MsgSend"

var cosmosTxHashPattern = regexp.MustCompile(`^[0-9a-fA-F]{64}$`)

// IsCosmosTxHash reports whether s is a 32 byte hex hash without prefix.
func IsCosmosTxHash(s string) bool {
	return cosmosTxHashPattern.MatchString(s)
}

// CosmosVerifier confirms bank sends through the Cosmos SDK REST gateway.
type CosmosVerifier struct {
	network    Network
	httpClient *http.Client
	baseURL    string
	minAmount  *big.Int
}

var _ Verifier = (*CosmosVerifier)(nil)

// NewCosmosVerifier creates a verifier for the network REST endpoint.
func NewCosmosVerifier(network Network) (*CosmosVerifier, error) {
	return NewCosmosVerifierWithClient(network, &http.Client{Timeout: 10 * time.Second})
}

// NewCosmosVerifierWithClient creates a verifier using the given http client.
func NewCosmosVerifierWithClient(network Network, httpClient *http.Client) (*CosmosVerifier, error) {
	if network.Rest == "" {
		return nil, fmt.Errorf("rest endpoint is required for %s", network.ID)
	}
	if err := ValidateBech32Address(network.Recipient, network.Bech32Prefix); err != nil {
		return nil, fmt.Errorf("invalid recipient for %s: %w", network.ID, err)
	}
	if network.Denom == "" {
		return nil, fmt.Errorf("denom is required for %s", network.ID)
	}
	minAmount, err := network.PriceBaseUnits()
	if err != nil {
		return nil, fmt.Errorf("invalid price for %s: %w", network.ID, err)
	}
	return &CosmosVerifier{
		network:    network,
		httpClient: httpClient,
		baseURL:    strings.TrimSuffix(network.Rest, "/"),
		minAmount:  minAmount,
	}, nil
}

// Check queries GET /cosmos/tx/v1beta1/txs/{hash}.
func (v *CosmosVerifier) Check(ctx context.Context, txHash string) (*Payment, error) {
	if !IsCosmosTxHash(txHash) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidTxHash, txHash)
	}
	hash := strings.ToUpper(txHash)

	payment := &Payment{
		Network:     v.network.ID,
		TxHash:      hash,
		Status:      StatusPending,
		Recipient:   v.network.Recipient,
		Denom:       v.network.Denom,
		ExplorerURL: v.network.TxURL(hash),
	}

	fullURL := fmt.Sprintf("%s/cosmos/tx/v1beta1/txs/%s", v.baseURL, hash)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := v.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to query tx: %w", err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			Logger.Debug().Err(err).Msg("Failed to close response body")
		}
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read tx response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		// nodes answer 404, or 400/500 with "tx not found", until the tx is indexed
		if resp.StatusCode == http.StatusNotFound || strings.Contains(strings.ToLower(string(body)), "not found") {
			return payment, nil
		}
		return nil, fmt.Errorf("tx query returned status %d: %s", resp.StatusCode, truncate(string(body), 200))
	}

	var response GetTxResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, fmt.Errorf("failed to decode tx response: %w", err)
	}
	if response.TxResponse == nil {
		return payment, nil
	}

	if h, err := strconv.ParseInt(response.TxResponse.Height, 10, 64); err == nil {
		payment.Height = h
	}
	if response.TxResponse.Code != 0 {
		payment.Status = StatusFailed
		payment.Reason = fmt.Sprintf("code %d: %s", response.TxResponse.Code, response.TxResponse.RawLog)
		return payment, nil
	}
	if v.network.MaxPaymentAge > 0 {
		blockTime, err := time.Parse(time.RFC3339, response.TxResponse.Timestamp)
		if err != nil || v.network.Expired(blockTime, time.Now()) {
			// without a block time the age cannot be bounded
			payment.Status = StatusFailed
			payment.Reason = ReasonExpired
			return payment, nil
		}
	}

	v.matchTransfer(payment, response.Tx)
	return payment, nil
}

// matchTransfer looks for a MsgSend paying the recipient at least the fee.
func (v *CosmosVerifier) matchTransfer(payment *Payment, tx *Tx) {
	payment.Status = StatusFailed
	payment.Reason = "no transfer to recipient found"
	if tx == nil {
		return
	}

	for _, msg := range tx.Body.Messages {
		if msg.Type != msgSendTypeURL || msg.ToAddress != v.network.Recipient {
			continue
		}
		var coins []Coin
		if err := json.Unmarshal(msg.Amount, &coins); err != nil {
			continue
		}
		for _, coin := range coins {
			if coin.Denom != v.network.Denom {
				continue
			}
			amount, ok := new(big.Int).SetString(coin.Amount, 10)
			if !ok {
				continue
			}
			payment.Sender = msg.FromAddress
			payment.Amount = amount.String()
			if amount.Cmp(v.minAmount) < 0 {
				payment.Reason = fmt.Sprintf("insufficient payment: sent %s%s, required %s%s",
					amount, coin.Denom, v.minAmount, v.network.Denom)
				continue
			}
			payment.Status = StatusConfirmed
			payment.Reason = ""
			return
		}
	}
}

func (v *CosmosVerifier) Network() Network { return v.network }

func (v *CosmosVerifier) Close() {
	v.httpClient.CloseIdleConnections()
}

// GetTxResponse is the body of the cosmos.tx.v1beta1 GetTx REST route.
type GetTxResponse struct {
	Tx         *Tx         `json:"tx"`
	TxResponse *TxResponse `json:"tx_response"`
}

type Tx struct {
	Body TxBody `json:"body"`
}

type TxBody struct {
	Messages []TxMessage `json:"messages"`
	Memo     string      `json:"memo"`
}

// TxMessage keeps only the MsgSend fields. Amount stays raw because other
// message types use a single coin object under the same key.
type TxMessage struct {
	Type        string          `json:"@type"`
	FromAddress string          `json:"from_address"`
	ToAddress   string          `json:"to_address"`
	Amount      json.RawMessage `json:"amount"`
}

type Coin struct {
	Denom  string `json:"denom"`
	Amount string `json:"amount"`
}

type TxResponse struct {
	Height    string `json:"height"`
	TxHash    string `json:"txhash"`
	Codespace string `json:"codespace"`
	Code      uint32 `json:"code"`
	RawLog    string `json:"raw_log"`
	GasWanted string `json:"gas_wanted"`
	GasUsed   string `json:"gas_used"`
	Timestamp string `json:"timestamp"` // block time, RFC3339
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
