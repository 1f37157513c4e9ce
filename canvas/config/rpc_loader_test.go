package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	. "github.com/Cogwheel-Validator/spectra-canvas/canvas/config"
)

// helper to reset env vars with CANVAS_ prefix between tests
func unsetCanvasEnv(t *testing.T) {
	t.Helper()
	for _, e := range os.Environ() {
		if strings.HasPrefix(e, "CANVAS_") || strings.HasPrefix(e, HuggingFaceKeyEnv+"=") {
			if idx := strings.Index(e, "="); idx != -1 {
				key, value := e[:idx], e[idx+1:]
				_ = os.Unsetenv(key)
				t.Cleanup(func() { _ = os.Setenv(key, value) })
			}
		}
	}
	// run in empty dir so godotenv.Load() inside the loader doesn't pick up a .env file
	origWd, _ := os.Getwd()
	t.Cleanup(func() { _ = os.Chdir(origWd) })
	_ = os.Chdir(t.TempDir())
}

func TestLoadRPCCanvasConfig_FromEnv_Defaults(t *testing.T) {
	unsetCanvasEnv(t)
	t.Setenv("CANVAS_PORT", "8080")

	cfg, err := LoadRPCCanvasConfig(nil)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if cfg.Host != "0.0.0.0" {
		t.Errorf("unexpected host: %v", cfg.Host)
	}
	if cfg.PollInterval != 3*time.Second {
		t.Errorf("unexpected poll interval: %v", cfg.PollInterval)
	}
	if cfg.PaymentWaitTimeout != 5*time.Minute {
		t.Errorf("unexpected wait timeout: %v", cfg.PaymentWaitTimeout)
	}
	if cfg.InferenceAttempts != 3 || cfg.InferenceTimeout != 60*time.Second || cfg.InferenceRetryDelay != 5*time.Second {
		t.Errorf("unexpected inference retry settings: %+v", cfg)
	}
	if cfg.InferenceURL != "https://api-inference.huggingface.co/models/stabilityai/stable-diffusion-2" {
		t.Errorf("unexpected inference url: %v", cfg.InferenceURL)
	}
	if cfg.MaxPromptLength != 1000 {
		t.Errorf("unexpected max prompt length: %v", cfg.MaxPromptLength)
	}
	if cfg.RequirePayment {
		t.Errorf("expected payment to be optional by default")
	}
	if cfg.PaymentMaxAge != 15*time.Minute {
		t.Errorf("unexpected payment max age: %v", cfg.PaymentMaxAge)
	}
	if cfg.Title != "Spectra Canvas" {
		t.Errorf("unexpected title: %v", cfg.Title)
	}
}

func TestLoadRPCCanvasConfig_FromEnv_Success(t *testing.T) {
	unsetCanvasEnv(t)
	t.Setenv("CANVAS_PORT", "9000")
	t.Setenv("CANVAS_HOST", "127.0.0.1")
	t.Setenv("CANVAS_ALLOWED_ORIGINS", "https://canvas.example.com,https://www.canvas.example.com")
	t.Setenv("CANVAS_REQUIRE_PAYMENT", "true")
	t.Setenv("CANVAS_NETWORKS_FILE", "networks.toml")
	t.Setenv("CANVAS_POLL_INTERVAL", "2s")
	t.Setenv("CANVAS_INFERENCE_API_KEY", "hf_env")

	cfg, err := LoadRPCCanvasConfig(nil)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if cfg.Port != 9000 || cfg.Host != "127.0.0.1" {
		t.Errorf("unexpected port/host: %v %v", cfg.Port, cfg.Host)
	}
	if len(cfg.AllowedOrigins) != 2 {
		t.Errorf("expected 2 allowed origins, got %d", len(cfg.AllowedOrigins))
	}
	if !cfg.RequirePayment || cfg.NetworksFile != "networks.toml" {
		t.Errorf("unexpected payment settings: %+v", cfg)
	}
	if cfg.PollInterval != 2*time.Second {
		t.Errorf("unexpected poll interval: %v", cfg.PollInterval)
	}
	if cfg.InferenceAPIKey != "hf_env" {
		t.Errorf("unexpected api key: %v", cfg.InferenceAPIKey)
	}
}

func TestLoadRPCCanvasConfig_HuggingFaceKeyFallback(t *testing.T) {
	unsetCanvasEnv(t)
	t.Setenv(HuggingFaceKeyEnv, "hf_fallback")

	cfg, err := LoadRPCCanvasConfig(nil)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if cfg.InferenceAPIKey != "hf_fallback" {
		t.Errorf("expected fallback key, got %q", cfg.InferenceAPIKey)
	}
}

func TestLoadRPCCanvasConfig_FromEnv_FailVerification(t *testing.T) {
	unsetCanvasEnv(t)

	// payment required without a networks file
	t.Setenv("CANVAS_REQUIRE_PAYMENT", "true")

	_, err := LoadRPCCanvasConfig(nil)
	if err == nil {
		t.Fatalf("expected error due to missing networks file, got nil")
	}
}

func TestLoadRPCCanvasConfig_FromFile_Success(t *testing.T) {
	unsetCanvasEnv(t)

	dir := t.TempDir()
	path := filepath.Join(dir, "rpc_config.toml")
	content := `
port = 9090
host = "127.0.0.1"
allowed_origins = ["https://example.com"]
require_payment = true
networks_file = "networks.toml"
payment_wait_timeout = "2m"
inference_attempts = 5
log_level = "debug"
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("failed writing temp config: %v", err)
	}

	cfgPath := path
	cfg, err := LoadRPCCanvasConfig(&cfgPath)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if cfg.Port != 9090 || cfg.Host != "127.0.0.1" {
		t.Errorf("unexpected values: %+v", cfg)
	}
	if len(cfg.AllowedOrigins) != 1 || cfg.AllowedOrigins[0] != "https://example.com" {
		t.Errorf("unexpected allowed origins: %+v", cfg.AllowedOrigins)
	}
	if cfg.PaymentWaitTimeout != 2*time.Minute {
		t.Errorf("unexpected wait timeout: %v", cfg.PaymentWaitTimeout)
	}
	if cfg.InferenceAttempts != 5 {
		t.Errorf("unexpected attempts: %v", cfg.InferenceAttempts)
	}
	// unset keys keep defaults
	if cfg.PollInterval != 3*time.Second {
		t.Errorf("unexpected poll interval: %v", cfg.PollInterval)
	}
}

func TestLoadRPCCanvasConfig_FromFile_WrongExtension(t *testing.T) {
	unsetCanvasEnv(t)
	p := "config.yaml"
	_, err := LoadRPCCanvasConfig(&p)
	if err == nil {
		t.Fatalf("expected error for non-toml file")
	}
}

func TestLoadRPCCanvasConfig_FromFile_InvalidValues(t *testing.T) {
	unsetCanvasEnv(t)

	cases := map[string]string{
		"port":     "port = 70000\n",
		"attempts": "inference_attempts = 0\n",
		"max_age":  "payment_max_age = \"0s\"\n",
		"log":      "log_level = \"loud\"\n",
	}
	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "rpc_config.toml")
			if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
				t.Fatalf("failed writing temp config: %v", err)
			}
			if _, err := LoadRPCCanvasConfig(&path); err == nil {
				t.Fatalf("expected verification error")
			}
		})
	}
}
