package config

import "time"

type RPCCanvasConfig struct {
	// rpc configs
	Port int    `toml:"port" mapstructure:"port"`
	Host string `toml:"host" mapstructure:"host"`

	// CORS configs
	AllowedOrigins []string `toml:"allowed_origins" mapstructure:"allowed_origins"`

	// rate limiting configs
	RatePerMinute         int `toml:"rate_per_minute" mapstructure:"rate_per_minute"`
	MaxConcurrentRequests int `toml:"max_concurrent_requests" mapstructure:"max_concurrent_requests"`

	// OpenTelemetry configs
	ServiceName    string `toml:"service_name" mapstructure:"service_name"`
	ServiceVersion string `toml:"service_version" mapstructure:"service_version"`
	Environment    string `toml:"environment" mapstructure:"environment"` // PROD, DEV, TEST, LOCAL
	EnableTracing  bool   `toml:"enable_tracing" mapstructure:"enable_tracing"`
	UseOTLPTraces  bool   `toml:"use_otlp_traces" mapstructure:"use_otlp_traces"`
	OTLPTracesURL  string `toml:"otlp_traces_url" mapstructure:"otlp_traces_url"`
	EnableMetrics  bool   `toml:"enable_metrics" mapstructure:"enable_metrics"`
	UsePrometheus  bool   `toml:"use_prometheus" mapstructure:"use_prometheus"`
	UseOTLPMetrics bool   `toml:"use_otlp_metrics" mapstructure:"use_otlp_metrics"`
	OTLPMetricsURL string `toml:"otlp_metrics_url" mapstructure:"otlp_metrics_url"`
	EnableLogs     bool   `toml:"enable_logs" mapstructure:"enable_logs"`
	UseOTLPLogs    bool   `toml:"use_otlp_logs" mapstructure:"use_otlp_logs"`
	OTLPLogsURL    string `toml:"otlp_logs_url" mapstructure:"otlp_logs_url"`

	InsecureOTLP bool `toml:"insecure_otlp" mapstructure:"insecure_otlp"`

	// Development mode uses stdout exporters
	DevelopmentMode bool `toml:"development_mode" mapstructure:"development_mode"`

	LogLevel string `toml:"log_level" mapstructure:"log_level"` // debug, info, warn, error

	// page configs
	Title string `toml:"title" mapstructure:"title"` // shown in the nav bar and <title>

	// payment configs
	NetworksFile       string        `toml:"networks_file" mapstructure:"networks_file"`
	CacheDir           string        `toml:"cache_dir" mapstructure:"cache_dir"` // keplr chain files are downloaded here
	RequirePayment     bool          `toml:"require_payment" mapstructure:"require_payment"`
	PollInterval       time.Duration `toml:"poll_interval" mapstructure:"poll_interval"`
	PaymentWaitTimeout time.Duration `toml:"payment_wait_timeout" mapstructure:"payment_wait_timeout"`
	// transfers included in a block older than this are rejected, redemptions do not survive a restart
	PaymentMaxAge time.Duration `toml:"payment_max_age" mapstructure:"payment_max_age"`

	// inference API configs
	InferenceURL        string        `toml:"inference_url" mapstructure:"inference_url"`
	InferenceAPIKey     string        `toml:"inference_api_key" mapstructure:"inference_api_key"`
	InferenceTimeout    time.Duration `toml:"inference_timeout" mapstructure:"inference_timeout"`
	InferenceAttempts   int           `toml:"inference_attempts" mapstructure:"inference_attempts"`
	InferenceRetryDelay time.Duration `toml:"inference_retry_delay" mapstructure:"inference_retry_delay"`
	MaxPromptLength     int           `toml:"max_prompt_length" mapstructure:"max_prompt_length"`
}

// NetworksFile is the layout of the file named by networks_file.
type NetworksFile struct {
	Networks []NetworkConfig `toml:"networks" json:"networks"`
}

type NetworkConfig struct {
	ID        string `toml:"id" json:"id"` // e.g. "warden", "axone"
	Name      string `toml:"name" json:"name"`
	Family    string `toml:"family" json:"family"`     // "evm" or "cosmos"
	ChainID   string `toml:"chain_id" json:"chain_id"` // "0x271A" or "axone-dentrite-1"
	RPC       string `toml:"rpc" json:"rpc"`
	Rest      string `toml:"rest" json:"rest"` // cosmos only
	Recipient string `toml:"recipient" json:"recipient"`

	Price    string `toml:"price" json:"price"` // display units, defaults to "1"
	Denom    string `toml:"denom" json:"denom"`
	Symbol   string `toml:"symbol" json:"symbol"`
	Decimals int32  `toml:"decimals" json:"decimals"`

	Bech32Prefix string `toml:"bech32_prefix" json:"bech32_prefix"`
	ExplorerURL  string `toml:"explorer_url" json:"explorer_url"`

	// any go-getter source holding a keplr chain registry json file
	KeplrChainFile string `toml:"keplr_chain_file" json:"keplr_chain_file"`
}
