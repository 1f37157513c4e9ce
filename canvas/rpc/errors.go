package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/Cogwheel-Validator/spectra-canvas/canvas/chain"
	"github.com/Cogwheel-Validator/spectra-canvas/canvas/checkout"
	"github.com/Cogwheel-Validator/spectra-canvas/canvas/inference"
	"github.com/Cogwheel-Validator/spectra-canvas/canvas/ledger"
	"github.com/Cogwheel-Validator/spectra-canvas/canvas/models"
)

const (
	msgMethodNotAllowed = "Method not allowed"
	msgPromptRequired   = "Prompt is required"
	msgInternalError    = "Internal server error"
	msgGenerationFailed = "Error generating image"
)

// toAPIError maps service errors to a status and the body sent to the page
func toAPIError(err error) (int, models.APIError) {
	var upstream *inference.Error
	switch {
	case errors.Is(err, checkout.ErrPromptRequired):
		return http.StatusBadRequest, models.APIError{Error: msgPromptRequired, Code: models.CodePromptRequired}
	case errors.Is(err, checkout.ErrPromptTooLong):
		return http.StatusBadRequest, models.APIError{Error: err.Error(), Code: models.CodePromptTooLong}
	case errors.Is(err, checkout.ErrPaymentRequired):
		return http.StatusPaymentRequired, models.APIError{Error: err.Error(), Code: models.CodePaymentRequired}
	case errors.Is(err, chain.ErrUnsupportedNetwork):
		return http.StatusBadRequest, models.APIError{Error: err.Error(), Code: models.CodeUnsupportedNetwork}
	case errors.Is(err, chain.ErrInvalidTxHash):
		return http.StatusBadRequest, models.APIError{Error: err.Error(), Code: models.CodeInvalidTxHash}
	case errors.Is(err, checkout.ErrPaymentFailed):
		return http.StatusPaymentRequired, models.APIError{Error: err.Error(), Code: models.CodePaymentFailed}
	case errors.Is(err, checkout.ErrPaymentTimeout):
		return http.StatusGatewayTimeout, models.APIError{Error: err.Error(), Code: models.CodePaymentTimeout}
	case errors.Is(err, ledger.ErrAlreadyRedeemed):
		return http.StatusConflict, models.APIError{Error: err.Error(), Code: models.CodeAlreadyRedeemed}
	case errors.Is(err, ledger.ErrInFlight):
		return http.StatusConflict, models.APIError{Error: err.Error(), Code: models.CodePaymentInFlight}
	case errors.As(err, &upstream):
		message := upstream.Message
		if message == "" {
			message = msgGenerationFailed
		}
		return upstream.StatusCode, models.APIError{Error: message, Code: models.CodeUpstreamError}
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, models.APIError{Error: msgGenerationFailed, Code: models.CodeUpstreamError}
	default:
		return http.StatusInternalServerError, models.APIError{Error: msgInternalError, Code: models.CodeInternalError}
	}
}

func writeError(w http.ResponseWriter, err error) {
	status, body := toAPIError(err)
	if status >= http.StatusInternalServerError {
		Logger.Error().Err(err).Int("status", status).Msg("Request failed")
	} else {
		Logger.Debug().Err(err).Int("status", status).Msg("Request rejected")
	}
	writeJSON(w, status, body)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		Logger.Debug().Err(err).Msg("Failed to write response")
	}
}
