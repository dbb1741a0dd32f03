package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	return &Config{
		Port:              DefaultPort,
		Env:               DefaultEnv,
		LogLevel:          DefaultLogLevel,
		RazorpayKeyID:     "rzp_test_abc",
		RazorpayKeySecret: "secret",
		Currency:          DefaultCurrency,
		OrderTTLHours:     DefaultOrderTTLHours,
		GlobalViewCost:    DefaultGlobalViewCost,
	}
}

func TestValidate_OK(t *testing.T) {
	require.NoError(t, validConfig().Validate())
}

func TestValidate_MissingGatewayCredentials(t *testing.T) {
	cfg := validConfig()
	cfg.RazorpayKeyID = ""
	assert.Error(t, cfg.Validate())

	cfg = validConfig()
	cfg.RazorpayKeySecret = ""
	assert.Error(t, cfg.Validate())
}

func TestValidate_DemoModeSkipsGatewayCredentials(t *testing.T) {
	cfg := validConfig()
	cfg.RazorpayKeyID = ""
	cfg.RazorpayKeySecret = ""
	cfg.DemoMode = true
	assert.NoError(t, cfg.Validate())
}

func TestValidate_RejectsNonPositiveLimits(t *testing.T) {
	cfg := validConfig()
	cfg.OrderTTLHours = 0
	assert.Error(t, cfg.Validate())

	cfg = validConfig()
	cfg.GlobalViewCost = -1
	assert.Error(t, cfg.Validate())
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("DEMO_MODE", "true")
	t.Setenv("RAZORPAY_KEY_ID", "")
	t.Setenv("RAZORPAY_KEY_SECRET", "")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, DefaultPort, cfg.Port)
	assert.Equal(t, DefaultCurrency, cfg.Currency)
	assert.Equal(t, DefaultOrderTTLHours, cfg.OrderTTLHours)
	assert.True(t, cfg.DemoMode)
	assert.True(t, cfg.IsDevelopment())
	assert.False(t, cfg.IsProduction())
}
