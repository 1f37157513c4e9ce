package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/Cogwheel-Validator/spectra-canvas/canvas/inference"
)

// HuggingFaceKeyEnv is read when inference_api_key is not configured.
const HuggingFaceKeyEnv = "HUGGING_FACE_API_KEY"

// LoadRPCCanvasConfig loads the canvas server config from the given path,
// or from CANVAS_* environment variables when path is nil
func LoadRPCCanvasConfig(configPath *string) (*RPCCanvasConfig, error) {
	v := viper.New()
	setDefaults(v)

	if configPath == nil {
		// if no file expect envs
		config, err := loadEnv(v)
		if err != nil {
			return nil, fmt.Errorf("failed to load env config: %w", err)
		}
		return config, nil
	}
	config, err := loadFile(v, *configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load file config: %w", err)
	}
	return config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("port", 8080)
	v.SetDefault("host", "0.0.0.0")
	v.SetDefault("allowed_origins", []string{"*"})
	v.SetDefault("rate_per_minute", 60)
	v.SetDefault("max_concurrent_requests", 50)
	v.SetDefault("service_name", "spectra-canvas")
	v.SetDefault("log_level", "info")
	v.SetDefault("title", "Spectra Canvas")
	v.SetDefault("poll_interval", 3*time.Second)
	v.SetDefault("payment_wait_timeout", 5*time.Minute)
	v.SetDefault("payment_max_age", 15*time.Minute)
	v.SetDefault("inference_url", inference.DefaultURL)
	v.SetDefault("inference_timeout", inference.DefaultTimeout)
	v.SetDefault("inference_attempts", inference.DefaultAttempts)
	v.SetDefault("inference_retry_delay", inference.DefaultRetryDelay)
	v.SetDefault("max_prompt_length", 1000)
}

func loadEnv(v *viper.Viper) (*RPCCanvasConfig, error) {
	// .env is optional, env can be applied through docker, systemd or other means
	_ = godotenv.Load()
	v.SetEnvPrefix("CANVAS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindEnvKeys(v)

	var config RPCCanvasConfig
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal env config: %w", err)
	}
	applyKeyFallback(&config)
	if err := verifyConfig(&config); err != nil {
		return nil, fmt.Errorf("failed to verify config: %w", err)
	}
	return &config, nil
}

// bindEnvKeys binds each config key to its env var so Unmarshal sees env values
// when no config file is loaded (env-only mode).
func bindEnvKeys(v *viper.Viper) {
	keys := []string{
		"port", "host", "allowed_origins",
		"rate_per_minute", "max_concurrent_requests",
		"service_name", "service_version", "environment",
		"enable_tracing", "use_otlp_traces", "otlp_traces_url",
		"enable_metrics", "use_prometheus", "use_otlp_metrics", "otlp_metrics_url",
		"enable_logs", "use_otlp_logs", "otlp_logs_url",
		"insecure_otlp", "development_mode", "log_level", "title",
		"networks_file", "cache_dir", "require_payment", "poll_interval", "payment_wait_timeout", "payment_max_age",
		"inference_url", "inference_api_key", "inference_timeout",
		"inference_attempts", "inference_retry_delay", "max_prompt_length",
	}
	for _, k := range keys {
		_ = v.BindEnv(k)
	}
}

func loadFile(v *viper.Viper, configPath string) (*RPCCanvasConfig, error) {
	if !strings.HasSuffix(configPath, ".toml") {
		return nil, fmt.Errorf("config file must be a toml file")
	}

	v.SetConfigFile(configPath)
	v.SetConfigType("toml")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config RPCCanvasConfig
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	applyKeyFallback(&config)
	if err := verifyConfig(&config); err != nil {
		return nil, fmt.Errorf("failed to verify config: %w", err)
	}

	return &config, nil
}

func applyKeyFallback(config *RPCCanvasConfig) {
	if config.InferenceAPIKey == "" {
		config.InferenceAPIKey = os.Getenv(HuggingFaceKeyEnv)
	}
}

func verifyConfig(config *RPCCanvasConfig) error {
	if config.Port <= 0 || config.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535")
	}

	if config.Host == "" {
		return fmt.Errorf("host is required")
	}

	if len(config.AllowedOrigins) == 0 {
		return fmt.Errorf("allowed_origins is required")
	}

	if config.PollInterval <= 0 {
		return fmt.Errorf("poll_interval must be positive")
	}

	if config.PaymentWaitTimeout < config.PollInterval {
		return fmt.Errorf("payment_wait_timeout must be at least poll_interval")
	}

	if config.PaymentMaxAge <= 0 {
		return fmt.Errorf("payment_max_age must be positive")
	}

	if config.InferenceAttempts < 1 {
		return fmt.Errorf("inference_attempts must be at least 1")
	}

	if config.InferenceTimeout <= 0 {
		return fmt.Errorf("inference_timeout must be positive")
	}

	if config.InferenceRetryDelay < 0 {
		return fmt.Errorf("inference_retry_delay must not be negative")
	}

	if config.RequirePayment && config.NetworksFile == "" {
		return fmt.Errorf("networks_file is required when require_payment is set")
	}

	switch strings.ToLower(config.LogLevel) {
	case "", "trace", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown log_level %q", config.LogLevel)
	}

	return nil
}
