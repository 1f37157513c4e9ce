package main

import (
	"testing"
	"time"

	"github.com/zeebo/assert"

	"github.com/Cogwheel-Validator/spectra-canvas/canvas/chain"
	"github.com/Cogwheel-Validator/spectra-canvas/canvas/config"
)

func testConfig() *config.RPCCanvasConfig {
	return &config.RPCCanvasConfig{
		Host:                  "0.0.0.0",
		Port:                  8080,
		AllowedOrigins:        []string{"*"},
		RatePerMinute:         60,
		MaxConcurrentRequests: 50,
		UsePrometheus:         true,
		Title:                 "Warden AI tool",
		PaymentWaitTimeout:    5 * time.Minute,
		InferenceTimeout:      60 * time.Second,
		InferenceRetryDelay:   5 * time.Second,
		InferenceAttempts:     3,
		MaxPromptLength:       500,
	}
}

func TestBuildServerConfig(t *testing.T) {
	serverConfig := buildServerConfig(testConfig())

	assert.Equal(t, serverConfig.Address, "0.0.0.0:8080")
	assert.Equal(t, *serverConfig.RatePerMinute, 60)
	assert.Equal(t, *serverConfig.Burst, 50)
	assert.True(t, serverConfig.EnableMetrics)
	assert.Equal(t, serverConfig.Title, "Warden AI tool")
	assert.Equal(t, serverConfig.MaxPromptLength, 500)
	assert.True(t, serverConfig.OTelConfig == nil)
	assert.Equal(t, serverConfig.RequestTimeout, 5*time.Minute+3*65*time.Second+10*time.Second)
}

func TestBuildServerConfigTelemetry(t *testing.T) {
	cfg := testConfig()
	cfg.EnableTracing = true
	cfg.OTLPTracesURL = "http://collector:4318/v1/traces"

	serverConfig := buildServerConfig(cfg)

	assert.True(t, serverConfig.OTelConfig != nil)
	assert.True(t, serverConfig.OTelConfig.EnableTracing)
	assert.Equal(t, serverConfig.OTelConfig.ServiceName, "spectra-canvas")
	assert.Equal(t, serverConfig.OTelConfig.Environment, "development")
	assert.Equal(t, serverConfig.OTelConfig.OTLPTracesURL, "http://collector:4318/v1/traces")
}

func TestBoundPaymentAge(t *testing.T) {
	networks := []chain.Network{{ID: "warden"}, {ID: "axone"}}

	boundPaymentAge(networks, 15*time.Minute)

	for _, network := range networks {
		assert.Equal(t, network.MaxPaymentAge, 15*time.Minute)
	}
}
