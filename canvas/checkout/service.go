// Package checkout turns a confirmed fee payment into exactly one generated image.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/Cogwheel-Validator/spectra-canvas/canvas/chain"
	"github.com/Cogwheel-Validator/spectra-canvas/canvas/inference"
	"github.com/Cogwheel-Validator/spectra-canvas/canvas/ledger"
	"github.com/Cogwheel-Validator/spectra-canvas/canvas/metrics"
	"github.com/Cogwheel-Validator/spectra-canvas/canvas/models"
)

const tracerName = "github.com/Cogwheel-Validator/spectra-canvas/canvas/checkout"

var (
	ErrPromptRequired  = errors.New("prompt is required")
	ErrPromptTooLong   = errors.New("prompt is too long")
	ErrPaymentRequired = errors.New("payment is required")
	ErrPaymentFailed   = errors.New("payment failed")
	ErrPaymentTimeout  = errors.New("payment was not confirmed in time")
)

var Logger = zerolog.Nop()

func SetLogger(logger zerolog.Logger) {
	Logger = logger
}

var validate = validator.New()

type Config struct {
	RequirePayment  bool
	PollInterval    time.Duration
	WaitTimeout     time.Duration
	MaxPromptLength int
}

// Service validates generation requests, waits for the fee payment and calls the model.
type Service struct {
	config    Config
	registry  *chain.Registry
	ledger    *ledger.Ledger
	generator inference.Generator
	recorder  metrics.Recorder
	tracer    trace.Tracer
}

// NewService wires the service. A nil registry or recorder is replaced with an empty one.
func NewService(
	config Config,
	registry *chain.Registry,
	redemptions *ledger.Ledger,
	generator inference.Generator,
	recorder metrics.Recorder,
) *Service {
	if registry == nil {
		registry = chain.NewRegistry()
	}
	if redemptions == nil {
		redemptions = ledger.New()
	}
	if recorder == nil {
		recorder = metrics.NoopRecorder{}
	}
	if config.PollInterval <= 0 {
		config.PollInterval = chain.DefaultPollInterval
	}
	if config.WaitTimeout <= 0 {
		config.WaitTimeout = 5 * time.Minute
	}
	return &Service{
		config:    config,
		registry:  registry,
		ledger:    redemptions,
		generator: generator,
		recorder:  recorder,
		tracer:    otel.Tracer(tracerName),
	}
}

// RequirePayment reports whether anonymous generation is disabled.
func (s *Service) RequirePayment() bool {
	return s.config.RequirePayment
}

/*
Redeem generates an image for the request.

When the request references a payment, or payment is required, the transaction
is reserved in the ledger, polled until it reaches a terminal status and only a
confirmed payment leads to generation. A failed generation releases the
reservation so the same transaction can be used again.

Returns:
- *models.GenerateResponse: the image as a data URI
- error: one of the package errors, a chain or ledger error, or *inference.Error
*/
func (s *Service) Redeem(ctx context.Context, req models.GenerateRequest) (*models.GenerateResponse, error) {
	req.Prompt = strings.TrimSpace(req.Prompt)
	req.Network = strings.TrimSpace(req.Network)
	req.TxHash = strings.TrimSpace(req.TxHash)

	if err := s.validateRequest(req); err != nil {
		return nil, err
	}

	if !req.HasPayment() {
		image, err := s.generate(ctx, "", req.Prompt)
		if err != nil {
			return nil, err
		}
		return &models.GenerateResponse{Image: image.DataURI()}, nil
	}

	verifier, err := s.registry.Get(req.Network)
	if err != nil {
		return nil, err
	}
	if !validTxHash(verifier.Network().Family, req.TxHash) {
		return nil, fmt.Errorf("%w: %q", chain.ErrInvalidTxHash, req.TxHash)
	}

	if err := s.ledger.Reserve(req.Network, req.TxHash); err != nil {
		return nil, err
	}
	committed := false
	defer func() {
		if !committed {
			s.ledger.Release(req.Network, req.TxHash)
		}
	}()

	payment, err := s.waitForPayment(ctx, verifier, req.TxHash)
	if err != nil {
		return nil, err
	}

	image, err := s.generate(ctx, req.Network, req.Prompt)
	if err != nil {
		return nil, err
	}

	if err := s.ledger.Commit(req.Network, req.TxHash); err != nil {
		return nil, err
	}
	committed = true

	Logger.Info().
		Str("network", req.Network).
		Str("tx_hash", payment.TxHash).
		Str("sender", payment.Sender).
		Msg("Payment redeemed")

	return &models.GenerateResponse{
		Image:       image.DataURI(),
		Network:     req.Network,
		TxHash:      payment.TxHash,
		ExplorerURL: payment.ExplorerURL,
	}, nil
}

// CheckPayment queries the payment status once.
func (s *Service) CheckPayment(ctx context.Context, network, txHash string) (*chain.Payment, error) {
	verifier, err := s.registry.Get(network)
	if err != nil {
		return nil, err
	}
	payment, err := verifier.Check(ctx, strings.TrimSpace(txHash))
	if err != nil {
		s.recorder.IncCounter(metrics.EventPaymentCheck, metrics.Labels(network, "error"))
		return nil, err
	}
	if payment.Status == chain.StatusConfirmed && s.ledger.Redeemed(network, txHash) {
		payment.Reason = "already redeemed"
	}
	s.recorder.IncCounter(metrics.EventPaymentCheck, metrics.Labels(network, string(payment.Status)))
	return payment, nil
}

// Networks describes every configured network for the page and /api/networks.
func (s *Service) Networks() []models.NetworkInfo {
	networks := s.registry.Networks()
	infos := make([]models.NetworkInfo, 0, len(networks))
	for _, network := range networks {
		infos = append(infos, NetworkInfo(network))
	}
	return infos
}

// NetworkInfo converts a network into its public description.
func NetworkInfo(network chain.Network) models.NetworkInfo {
	info := models.NetworkInfo{
		ID:          network.ID,
		Name:        network.Name,
		Family:      network.Family,
		ChainID:     network.ChainID,
		RPC:         network.RPC,
		Rest:        network.Rest,
		Recipient:   network.Recipient,
		Price:       network.Price.String(),
		Denom:       network.Denom,
		Symbol:      network.Symbol,
		Decimals:    network.Decimals,
		ExplorerURL: network.ExplorerURL,
	}
	if base, err := network.PriceBaseUnits(); err == nil {
		info.PriceBaseUnits = base.String()
	}
	switch network.Family {
	case chain.FamilyEVM:
		if params, err := chain.EVMChainParams(network); err == nil {
			info.EVMChain = params
		}
	case chain.FamilyCosmos:
		info.Keplr = network.Keplr
		if info.Keplr == nil {
			info.Keplr = chain.DefaultKeplrChainConfig(network)
		}
	}
	return info
}

func (s *Service) validateRequest(req models.GenerateRequest) error {
	if err := validate.Struct(req); err != nil {
		var validationErrs validator.ValidationErrors
		if errors.As(err, &validationErrs) {
			for _, fieldErr := range validationErrs {
				if fieldErr.Field() == "Prompt" {
					return ErrPromptRequired
				}
			}
			return fmt.Errorf("%w: network and txHash must be set together", ErrPaymentRequired)
		}
		return err
	}
	if s.config.MaxPromptLength > 0 && utf8.RuneCountInString(req.Prompt) > s.config.MaxPromptLength {
		return fmt.Errorf("%w: at most %d characters", ErrPromptTooLong, s.config.MaxPromptLength)
	}
	if s.config.RequirePayment && !req.HasPayment() {
		return ErrPaymentRequired
	}
	return nil
}

func (s *Service) waitForPayment(ctx context.Context, verifier chain.Verifier, txHash string) (*chain.Payment, error) {
	network := verifier.Network().ID
	ctx, span := s.tracer.Start(ctx, "payment.wait", trace.WithAttributes(
		attribute.String("network", network),
		attribute.String("tx_hash", txHash),
	))
	defer span.End()

	start := time.Now()
	waitCtx, cancel := context.WithTimeout(ctx, s.config.WaitTimeout)
	defer cancel()

	payment, err := chain.WaitForPayment(waitCtx, verifier, txHash, s.config.PollInterval)
	outcome := "error"
	switch {
	case err == nil:
		outcome = string(payment.Status)
	case errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil:
		outcome = "timeout"
		err = fmt.Errorf("%w after %s", ErrPaymentTimeout, s.config.WaitTimeout)
	}
	s.recorder.ObserveLatency(metrics.EventPaymentWait, time.Since(start), metrics.Labels(network, outcome))
	s.recorder.IncCounter(metrics.EventPaymentWait, metrics.Labels(network, outcome))

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.String("status", string(payment.Status)))
	if payment.Status != chain.StatusConfirmed {
		err := fmt.Errorf("%w: %s", ErrPaymentFailed, payment.Reason)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	return payment, nil
}

func (s *Service) generate(ctx context.Context, network, prompt string) (*inference.Image, error) {
	ctx, span := s.tracer.Start(ctx, "inference.generate", trace.WithAttributes(
		attribute.String("network", network),
		attribute.Int("prompt_length", utf8.RuneCountInString(prompt)),
	))
	defer span.End()

	start := time.Now()
	image, err := s.generator.Generate(ctx, prompt)
	outcome := "success"
	if err != nil {
		outcome = "error"
		var apiErr *inference.Error
		if errors.As(err, &apiErr) {
			outcome = "upstream_error"
			span.SetAttributes(attribute.Int("http.status_code", apiErr.StatusCode))
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetAttributes(attribute.Int("image_bytes", len(image.Data)))
	}
	s.recorder.ObserveLatency(metrics.EventGeneration, time.Since(start), metrics.Labels(network, outcome))
	s.recorder.IncCounter(metrics.EventGeneration, metrics.Labels(network, outcome))

	if err != nil {
		Logger.Error().Err(err).Str("network", network).Msg("Image generation failed")
		return nil, err
	}
	return image, nil
}

func validTxHash(family chain.Family, txHash string) bool {
	switch family {
	case chain.FamilyEVM:
		return chain.IsEVMTxHash(txHash)
	case chain.FamilyCosmos:
		return chain.IsCosmosTxHash(txHash)
	default:
		return false
	}
}
