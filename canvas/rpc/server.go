package rpc

import (
	"context"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"github.com/rs/zerolog"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/Cogwheel-Validator/spectra-canvas/canvas/checkout"
	"github.com/Cogwheel-Validator/spectra-canvas/canvas/web"
)

var Logger zerolog.Logger

func init() {
	out := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	Logger = zerolog.New(out).With().Timestamp().Logger()
}

// SetLogger allows setting a custom logger
func SetLogger(l zerolog.Logger) {
	Logger = l
}

// ServerConfig holds configuration for the HTTP server
type ServerConfig struct {
	Address        string
	AllowedOrigins []string
	EnableMetrics  bool
	RatePerMinute  *int
	Burst          *int
	// RequestTimeout must cover the payment wait plus every inference attempt
	RequestTimeout  time.Duration
	Title           string
	MaxPromptLength int
	OTelConfig      *OTelConfig // OpenTelemetry configuration
}

// DefaultServerConfig returns a default server configuration
func DefaultServerConfig() *ServerConfig {
	rateLimit := 60
	burst := 50
	return &ServerConfig{
		Address:         "localhost:8080",
		AllowedOrigins:  []string{"http://localhost:3000", "http://localhost:8080"},
		EnableMetrics:   true,
		RatePerMinute:   &rateLimit,
		Burst:           &burst,
		RequestTimeout:  3 * time.Minute,
		MaxPromptLength: 1000,
		OTelConfig:      DefaultOTelConfig(),
	}
}

// Server wraps the HTTP server and provides lifecycle management
type Server struct {
	config       *ServerConfig
	httpServer   *http.Server
	mux          *chi.Mux
	otelShutdown func(context.Context) error
}

// NewServer creates the canvas server with the given configuration
func NewServer(
	ctx context.Context,
	config *ServerConfig,
	service *checkout.Service,
	site *web.Site,
) (*Server, error) {
	if config == nil {
		config = DefaultServerConfig()
	}
	if config.RequestTimeout <= 0 {
		config.RequestTimeout = 3 * time.Minute
	}

	// Initialize OpenTelemetry if configured
	var otelShutdown func(context.Context) error
	if config.OTelConfig != nil && (config.OTelConfig.EnableTracing || config.OTelConfig.EnableMetrics || config.OTelConfig.EnableLogs) {
		shutdown, err := NewOTelSDK(ctx, config.OTelConfig)
		if err != nil {
			Logger.Error().Err(err).Msg("Failed to initialize OpenTelemetry")
			// Don't fail the server, just continue without OTel
		} else {
			otelShutdown = shutdown
		}
	}

	mux := newRouter(config, NewHandlers(service, site, config.Title, config.MaxPromptLength))

	corsHandler := newCORSHandler(config.AllowedOrigins, mux)

	// h2c serves HTTP/2 without TLS behind a proxy
	httpServer := &http.Server{
		Addr:              config.Address,
		Handler:           h2c.NewHandler(corsHandler, &http2.Server{}),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      config.RequestTimeout + 10*time.Second,
		IdleTimeout:       120 * time.Second,
	}

	return &Server{
		config:       config,
		httpServer:   httpServer,
		mux:          mux,
		otelShutdown: otelShutdown,
	}, nil
}

func newRouter(config *ServerConfig, handlers *Handlers) *chi.Mux {
	mux := chi.NewMux()

	// RequestID runs first so the access log sees the id
	mux.Use(middleware.RequestID)

	// Add zerolog middleware (replaces chi's default logger)
	mux.Use(zerologMiddleware)

	// Add recovery middleware with zerolog
	mux.Use(zerologRecoverer)

	// Standard middleware
	mux.Use(middleware.RealIP)
	mux.Use(middleware.Compress(5, "text/html", "text/css", "application/javascript", "application/json"))
	mux.Use(middleware.Timeout(config.RequestTimeout))

	if config.OTelConfig != nil && config.OTelConfig.EnableTracing {
		mux.Use(otelHTTPMiddleware)
	}

	// Prometheus metrics endpoint - enabled by separate flag or OTel config
	if metricsEnabled(config) {
		mux.Handle("/metrics", promhttp.Handler())
		Logger.Info().Msg("Metrics endpoint enabled: /metrics")
	}

	// Health check endpoint
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"healthy","service":"spectra-canvas"}`))
	})

	// Readiness probe, the page is useless without a network when payment is required
	mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if handlers.service.RequirePayment() && len(handlers.service.Networks()) == 0 {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"status":"no networks configured"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ready"}`))
	})

	handlers.Routes(mux, apiLimits(config)...)
	return mux
}

// apiLimits guards only /api. A generation holds its slot until the payment wait and
// inference finish, health checks and the page must keep answering meanwhile.
func apiLimits(config *ServerConfig) []func(http.Handler) http.Handler {
	var limits []func(http.Handler) http.Handler
	if config.RatePerMinute != nil && *config.RatePerMinute > 0 {
		limits = append(limits, httprate.LimitByIP(*config.RatePerMinute, 1*time.Minute))
	}
	if config.Burst != nil && *config.Burst > 0 {
		limits = append(limits, middleware.Throttle(*config.Burst))
	}
	return limits
}

// metricsEnabled reports whether /metrics is mounted. The OTel Prometheus reader only
// exists when OTel metrics are enabled.
func metricsEnabled(config *ServerConfig) bool {
	if config.EnableMetrics {
		return true
	}
	return config.OTelConfig != nil && config.OTelConfig.EnableMetrics && config.OTelConfig.UsePrometheus
}

func newCORSHandler(allowedOrigins []string, next http.Handler) http.Handler {
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"*"}
	}

	// browsers reject a wildcard origin combined with credentials
	allowCredentials := !(len(allowedOrigins) == 1 && allowedOrigins[0] == "*")

	return cors.New(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{
			http.MethodGet,
			http.MethodPost,
		},
		AllowedHeaders: []string{
			"Accept",
			"Accept-Encoding",
			"Content-Type",
			"Traceparent",
			"Tracestate",
		},
		ExposedHeaders: []string{
			"Content-Encoding",
			"X-Request-Id",
		},
		AllowCredentials: allowCredentials,
		MaxAge:           int(2 * time.Hour / time.Second),
	}).Handler(next)
}

// Handler returns the full handler chain, used by tests
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start begins serving requests without TLS
func (s *Server) Start() error {
	s.logServerInfo("http")
	return s.httpServer.ListenAndServe()
}

// StartTLS begins serving requests with TLS
func (s *Server) StartTLS(certFile, keyFile string) error {
	s.logServerInfo("https")
	return s.httpServer.ListenAndServeTLS(certFile, keyFile)
}

// logServerInfo logs server startup information
func (s *Server) logServerInfo(protocol string) {
	Logger.Info().
		Str("address", s.config.Address).
		Str("protocol", protocol).
		Dur("request_timeout", s.config.RequestTimeout).
		Msg("Spectra Canvas server starting")

	Logger.Info().Msg("Available endpoints:")
	Logger.Info().Msg("\tPage: /")
	Logger.Info().Msg("\tNetworks: GET /api/networks")
	Logger.Info().Msg("\tPayment: GET /api/payments/{network}/{txHash}")
	Logger.Info().Msg("\tGenerate: POST /api/generateImage")
	Logger.Info().Msg("\tHealth: /health")
	Logger.Info().Msg("\tReady: /ready")

	if metricsEnabled(s.config) {
		Logger.Info().Msg("\tMetrics: /metrics")
	}
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	Logger.Info().Msg("Shutting down canvas server...")

	// Shutdown HTTP server first
	if err := s.httpServer.Shutdown(ctx); err != nil {
		Logger.Error().Err(err).Msg("Error shutting down HTTP server")
	}

	// Then shutdown OpenTelemetry to flush any pending telemetry
	if s.otelShutdown != nil {
		if err := s.otelShutdown(ctx); err != nil {
			Logger.Error().Err(err).Msg("Error shutting down OpenTelemetry")
			return err
		}
	}

	Logger.Info().Msg("Server shutdown complete")
	return nil
}
