package models

// Error codes returned next to the message in APIError.
const (
	CodeMethodNotAllowed   = "method_not_allowed"
	CodeInvalidRequest     = "invalid_request"
	CodePromptRequired     = "prompt_required"
	CodePromptTooLong      = "prompt_too_long"
	CodePaymentRequired    = "payment_required"
	CodeUnsupportedNetwork = "unsupported_network"
	CodeInvalidTxHash      = "invalid_tx_hash"
	CodePaymentFailed      = "payment_failed"
	CodePaymentTimeout     = "payment_timeout"
	CodeAlreadyRedeemed    = "already_redeemed"
	CodePaymentInFlight    = "payment_in_flight"
	CodeUpstreamError      = "upstream_error"
	CodeInternalError      = "internal_error"
)

// APIError - error body of every API route
type APIError struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}
