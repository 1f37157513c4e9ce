package main

import (
	"context"
	"errors"
	"flag"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/Cogwheel-Validator/spectra-canvas/canvas/chain"
	"github.com/Cogwheel-Validator/spectra-canvas/canvas/checkout"
	"github.com/Cogwheel-Validator/spectra-canvas/canvas/config"
	"github.com/Cogwheel-Validator/spectra-canvas/canvas/inference"
	"github.com/Cogwheel-Validator/spectra-canvas/canvas/ledger"
	"github.com/Cogwheel-Validator/spectra-canvas/canvas/metrics"
	"github.com/Cogwheel-Validator/spectra-canvas/canvas/rpc"
	"github.com/Cogwheel-Validator/spectra-canvas/canvas/web"
)

var log zerolog.Logger

func init() {
	out := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	log = zerolog.New(out).With().Timestamp().Logger()
}

func main() {
	configRpc := flag.String("config-rpc", "", "toml config file for the canvas server, CANVAS_* env vars are used when empty")
	tlsCert := flag.String("tls-cert", "", "TLS certificate file, serves plain http when empty")
	tlsKey := flag.String("tls-key", "", "TLS key file")
	flag.Parse()

	var configPath *string
	if *configRpc != "" {
		configPath = configRpc
	}

	rpcConfig, err := config.LoadRPCCanvasConfig(configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load RPC config")
	}

	level, err := zerolog.ParseLevel(rpcConfig.LogLevel)
	if err != nil {
		log.Fatal().Err(err).Str("log_level", rpcConfig.LogLevel).Msg("Invalid log level")
	}
	log = log.Level(level)
	shareLogger(log)

	log.Info().
		Str("rpc_config", *configRpc).
		Str("networks_file", rpcConfig.NetworksFile).
		Bool("require_payment", rpcConfig.RequirePayment).
		Msg("Starting Spectra Canvas")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var networks []chain.Network
	if rpcConfig.NetworksFile != "" {
		loader := config.NewDefaultNetworkConfigLoader(rpcConfig.CacheDir)
		networks, err = loader.LoadFromFile(ctx, rpcConfig.NetworksFile)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to load network config")
		}
	}
	boundPaymentAge(networks, rpcConfig.PaymentMaxAge)
	log.Info().Int("count", len(networks)).Dur("payment_max_age", rpcConfig.PaymentMaxAge).Msg("Loaded networks")

	registry, err := chain.NewRegistryFromNetworks(networks)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create payment verifiers")
	}
	defer registry.Close()

	generator := inference.NewClient(inference.Config{
		URL:        rpcConfig.InferenceURL,
		APIKey:     rpcConfig.InferenceAPIKey,
		Timeout:    rpcConfig.InferenceTimeout,
		RetryDelay: rpcConfig.InferenceRetryDelay,
		Attempts:   rpcConfig.InferenceAttempts,
	})

	var recorder metrics.Recorder = metrics.NoopRecorder{}
	if rpcConfig.UsePrometheus {
		prometheusRecorder, err := metrics.NewPrometheusRecorder(prometheus.DefaultRegisterer)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to register metrics")
		}
		recorder = prometheusRecorder
	}

	service := checkout.NewService(checkout.Config{
		RequirePayment:  rpcConfig.RequirePayment,
		PollInterval:    rpcConfig.PollInterval,
		WaitTimeout:     rpcConfig.PaymentWaitTimeout,
		MaxPromptLength: rpcConfig.MaxPromptLength,
	}, registry, ledger.New(), generator, recorder)

	site, err := web.New()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load page templates")
	}

	server, err := rpc.NewServer(ctx, buildServerConfig(rpcConfig), service, site)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create RPC server")
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		var err error
		if *tlsCert != "" && *tlsKey != "" {
			err = server.StartTLS(*tlsCert, *tlsKey)
		} else {
			err = server.Start()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("Server error")
			sigCh <- syscall.SIGTERM
		}
	}()

	sig := <-sigCh
	log.Info().Str("signal", sig.String()).Msg("Received shutdown signal")

	// in flight generations may still be waiting on a payment
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Shutdown error")
	}
}

// boundPaymentAge sets the freshness bound on every network
func boundPaymentAge(networks []chain.Network, maxAge time.Duration) {
	for i := range networks {
		networks[i].MaxPaymentAge = maxAge
	}
}

// shareLogger hands the configured logger to every package that logs
func shareLogger(l zerolog.Logger) {
	rpc.SetLogger(l)
	chain.SetLogger(l.With().Str("component", "chain").Logger())
	inference.SetLogger(l.With().Str("component", "inference").Logger())
	checkout.SetLogger(l.With().Str("component", "checkout").Logger())
}

// buildServerConfig converts the loaded RPCCanvasConfig to rpc.ServerConfig
func buildServerConfig(cfg *config.RPCCanvasConfig) *rpc.ServerConfig {
	serverConfig := &rpc.ServerConfig{
		Address:         net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		AllowedOrigins:  cfg.AllowedOrigins,
		EnableMetrics:   cfg.UsePrometheus,
		RequestTimeout:  requestTimeout(cfg),
		Title:           cfg.Title,
		MaxPromptLength: cfg.MaxPromptLength,
	}

	if cfg.RatePerMinute > 0 {
		serverConfig.RatePerMinute = &cfg.RatePerMinute
	}
	if cfg.MaxConcurrentRequests > 0 {
		serverConfig.Burst = &cfg.MaxConcurrentRequests
	}

	if cfg.EnableTracing || cfg.EnableMetrics || cfg.EnableLogs {
		serverConfig.OTelConfig = &rpc.OTelConfig{
			ServiceName:     defaultString(cfg.ServiceName, "spectra-canvas"),
			ServiceVersion:  defaultString(cfg.ServiceVersion, "1.0.0"),
			Environment:     defaultString(cfg.Environment, "development"),
			EnableTracing:   cfg.EnableTracing,
			UseOTLPTraces:   cfg.UseOTLPTraces,
			OTLPTracesURL:   cfg.OTLPTracesURL,
			EnableMetrics:   cfg.EnableMetrics,
			UsePrometheus:   cfg.UsePrometheus,
			UseOTLPMetrics:  cfg.UseOTLPMetrics,
			OTLPMetricsURL:  cfg.OTLPMetricsURL,
			EnableLogs:      cfg.EnableLogs,
			UseOTLPLogs:     cfg.UseOTLPLogs,
			OTLPLogsURL:     cfg.OTLPLogsURL,
			InsecureOTLP:    cfg.InsecureOTLP,
			DevelopmentMode: cfg.DevelopmentMode,
		}
	}

	return serverConfig
}

// requestTimeout covers the payment wait plus every inference attempt and its retry delay
func requestTimeout(cfg *config.RPCCanvasConfig) time.Duration {
	attempts := time.Duration(cfg.InferenceAttempts)
	return cfg.PaymentWaitTimeout + attempts*(cfg.InferenceTimeout+cfg.InferenceRetryDelay) + 10*time.Second
}

// defaultString returns the default value if s is empty
func defaultString(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
