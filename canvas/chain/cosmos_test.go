package chain_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/zeebo/assert"

	"github.com/Cogwheel-Validator/spectra-canvas/canvas/chain"
)

const (
	axoneRecipient = "axone1mtp47d2uyu9g89tfh2ghtey7f9a4lj8f9rg9x4"
	axoneSender    = "axone1sender"
	cosmosTxHash   = "9F86D081884C7D659A2FEAA0C55AD015A3BF4F1B2B0B822CD15D6C15B0F00A08"
)

func axoneNetwork(rest string) chain.Network {
	return chain.Network{
		ID:           "axone",
		Name:         "Axone testnet",
		Family:       chain.FamilyCosmos,
		ChainID:      "axone-dentrite-1",
		RPC:          "https://api.dentrite.axone.xyz:443/rpc",
		Rest:         rest,
		Recipient:    axoneRecipient,
		Price:        decimal.NewFromInt(1),
		Denom:        "uaxone",
		Symbol:       "AXONE",
		Decimals:     6,
		Bech32Prefix: "axone",
	}
}

func newCosmosServer(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.URL.Path, "/cosmos/tx/v1beta1/txs/") {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newCosmosVerifier(t *testing.T, srv *httptest.Server) *chain.CosmosVerifier {
	t.Helper()
	v, err := chain.NewCosmosVerifierWithClient(axoneNetwork(srv.URL), srv.Client())
	assert.NoError(t, err)
	return v
}

func sendTxBody(code int, amount string) string {
	return sendTxBodyAt(code, amount, "2024-05-01T12:00:00Z")
}

func sendTxBodyAt(code int, amount string, timestamp string) string {
	return `{
  "tx": {"body": {"messages": [
    {"@type": "/cosmos.staking.v1beta1.MsgDelegate", "delegator_address": "axone1x", "amount": {"denom": "uaxone", "amount": "5"}},
    {"@type": "/cosmos.bank.v1beta1.MsgSend", "from_address": "` + axoneSender + `", "to_address": "` + axoneRecipient + `",
     "amount": [{"denom": "uaxone", "amount": "` + amount + `"}]}
  ], "memo": ""}},
  "tx_response": {"height": "1234", "txhash": "` + cosmosTxHash + `", "code": ` + strconv.Itoa(code) + `, "raw_log": "out of gas",
    "timestamp": "` + timestamp + `"}
}`
}

func TestCosmosCheckConfirmed(t *testing.T) {
	v := newCosmosVerifier(t, newCosmosServer(t, http.StatusOK, sendTxBody(0, "1000000")))

	payment, err := v.Check(context.Background(), strings.ToLower(cosmosTxHash))
	assert.NoError(t, err)
	assert.Equal(t, payment.Status, chain.StatusConfirmed)
	assert.Equal(t, payment.TxHash, cosmosTxHash)
	assert.Equal(t, payment.Sender, axoneSender)
	assert.Equal(t, payment.Amount, "1000000")
	assert.Equal(t, payment.Height, int64(1234))
}

func TestCosmosCheckFailedCode(t *testing.T) {
	v := newCosmosVerifier(t, newCosmosServer(t, http.StatusOK, sendTxBody(11, "1000000")))

	payment, err := v.Check(context.Background(), cosmosTxHash)
	assert.NoError(t, err)
	assert.Equal(t, payment.Status, chain.StatusFailed)
	assert.True(t, strings.Contains(payment.Reason, "out of gas"))
}

func TestCosmosCheckInsufficientAmount(t *testing.T) {
	v := newCosmosVerifier(t, newCosmosServer(t, http.StatusOK, sendTxBody(0, "999999")))

	payment, err := v.Check(context.Background(), cosmosTxHash)
	assert.NoError(t, err)
	assert.Equal(t, payment.Status, chain.StatusFailed)
	assert.True(t, strings.HasPrefix(payment.Reason, "insufficient payment"))
}

func TestCosmosCheckNoMatchingTransfer(t *testing.T) {
	body := `{"tx": {"body": {"messages": []}}, "tx_response": {"height": "5", "code": 0}}`
	v := newCosmosVerifier(t, newCosmosServer(t, http.StatusOK, body))

	payment, err := v.Check(context.Background(), cosmosTxHash)
	assert.NoError(t, err)
	assert.Equal(t, payment.Status, chain.StatusFailed)
	assert.Equal(t, payment.Reason, "no transfer to recipient found")
}

func TestCosmosCheckPendingWhenNotFound(t *testing.T) {
	cases := []struct {
		name   string
		status int
		body   string
	}{
		{"404", http.StatusNotFound, `{"code": 5, "message": "tx not found"}`},
		{"400 not found", http.StatusBadRequest, `{"code": 5, "message": "tx not found: 9F86"}`},
		{"empty response", http.StatusOK, `{}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			v := newCosmosVerifier(t, newCosmosServer(t, tc.status, tc.body))
			payment, err := v.Check(context.Background(), cosmosTxHash)
			assert.NoError(t, err)
			assert.Equal(t, payment.Status, chain.StatusPending)
		})
	}
}

func TestCosmosCheckServerError(t *testing.T) {
	v := newCosmosVerifier(t, newCosmosServer(t, http.StatusInternalServerError, `{"message": "internal"}`))

	_, err := v.Check(context.Background(), cosmosTxHash)
	assert.Error(t, err)
}

func TestCosmosCheckInvalidHash(t *testing.T) {
	v := newCosmosVerifier(t, newCosmosServer(t, http.StatusOK, `{}`))

	_, err := v.Check(context.Background(), "0x"+cosmosTxHash)
	assert.True(t, errors.Is(err, chain.ErrInvalidTxHash))
}

func TestCosmosVerifierRejectsWrongPrefix(t *testing.T) {
	network := axoneNetwork("http://localhost:1317")
	network.Bech32Prefix = "cosmos"
	_, err := chain.NewCosmosVerifierWithClient(network, http.DefaultClient)
	assert.Error(t, err)
}

func newBoundedCosmosVerifier(t *testing.T, body string) *chain.CosmosVerifier {
	t.Helper()
	srv := newCosmosServer(t, http.StatusOK, body)
	network := axoneNetwork(srv.URL)
	network.MaxPaymentAge = 15 * time.Minute
	v, err := chain.NewCosmosVerifierWithClient(network, srv.Client())
	assert.NoError(t, err)
	return v
}

func TestCosmosCheckExpired(t *testing.T) {
	old := time.Now().Add(-2 * time.Hour).UTC().Format(time.RFC3339)
	v := newBoundedCosmosVerifier(t, sendTxBodyAt(0, "1000000", old))

	payment, err := v.Check(context.Background(), cosmosTxHash)
	assert.NoError(t, err)
	assert.Equal(t, payment.Status, chain.StatusFailed)
	assert.Equal(t, payment.Reason, chain.ReasonExpired)
}

func TestCosmosCheckRecentWithinMaxAge(t *testing.T) {
	recent := time.Now().Add(-time.Minute).UTC().Format(time.RFC3339)
	v := newBoundedCosmosVerifier(t, sendTxBodyAt(0, "1000000", recent))

	payment, err := v.Check(context.Background(), cosmosTxHash)
	assert.NoError(t, err)
	assert.Equal(t, payment.Status, chain.StatusConfirmed)
}

func TestCosmosCheckMissingTimestampWithMaxAge(t *testing.T) {
	v := newBoundedCosmosVerifier(t, sendTxBodyAt(0, "1000000", ""))

	payment, err := v.Check(context.Background(), cosmosTxHash)
	assert.NoError(t, err)
	assert.Equal(t, payment.Status, chain.StatusFailed)
	assert.Equal(t, payment.Reason, chain.ReasonExpired)
}
