package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestGradingRuntimeConfig_ResolveAppliesDefaultsWhenZero(t *testing.T) {
	var empty GradingRuntimeConfig
	cfg := empty.Resolve()

	assert.Equal(t, 1000, cfg.BatchSize)
	assert.Equal(t, 5, cfg.MaxConcurrentWorkers)
	assert.Equal(t, 2, cfg.MaxRetries)
	assert.Equal(t, 1*time.Second, cfg.RetryDelay)
	assert.Equal(t, 0.7, cfg.ReviewThreshold)
}

func TestGradingRuntimeConfig_ResolveOverridesNonZeroFields(t *testing.T) {
	runtime := GradingRuntimeConfig{
		BatchSize:            50,
		MaxConcurrentWorkers: 10,
		ReviewThreshold:      0.9,
		ExportDir:            "/tmp/export",
	}
	cfg := runtime.Resolve()

	assert.Equal(t, 50, cfg.BatchSize)
	assert.Equal(t, 10, cfg.MaxConcurrentWorkers)
	assert.Equal(t, 0.9, cfg.ReviewThreshold)
	assert.Equal(t, "/tmp/export", cfg.ExportDir)
	// untouched fields keep the package default
	assert.Equal(t, 2, cfg.MaxRetries)
}

func TestConfig_ValidateRequiresJWTSecretInProduction(t *testing.T) {
	cfg := &Config{Environment: "production"}
	err := cfg.Validate()
	assert.Error(t, err)

	cfg.Auth.JWTSecret = "s3cr3t"
	assert.NoError(t, cfg.Validate())
}

func TestConfig_ValidateAllowsMissingSecretInDevelopment(t *testing.T) {
	cfg := &Config{Environment: "development"}
	assert.NoError(t, cfg.Validate())
}
