package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestServerConfigDefaults(t *testing.T) {
	cfg := &Config{}
	setDefaults(cfg)

	assert.Equal(t, ":8000", cfg.Server.ListenAddr)
	assert.Equal(t, 30*time.Second, cfg.Server.RequestTimeout)
}

func TestSecureConfigDefaultClockSkew(t *testing.T) {
	cfg := &Config{Secure: &SecureConfig{}}
	setDefaults(cfg)

	assert.Equal(t, 5*time.Minute, cfg.Secure.ClockSkew)
}

func TestSecureConfigExplicitClockSkewPreserved(t *testing.T) {
	cfg := &Config{Secure: &SecureConfig{ClockSkew: 90 * time.Second}}
	setDefaults(cfg)

	assert.Equal(t, 90*time.Second, cfg.Secure.ClockSkew)
}

func TestHealthConfigDefaults(t *testing.T) {
	cfg := &Config{}
	setDefaults(cfg)

	assert.Equal(t, ":9091", cfg.Health.Addr)
	assert.Equal(t, "/healthz", cfg.Health.Path)
}

func TestMetricsConfigDefaults(t *testing.T) {
	cfg := &Config{}
	setDefaults(cfg)

	assert.Equal(t, ":9090", cfg.Metrics.Addr)
	assert.Equal(t, "/metrics", cfg.Metrics.Path)
}

func TestFirstContactOptional(t *testing.T) {
	cfg := &Config{Node: &NodeConfig{Name: "n1", Type: "PARTIAL"}}
	setDefaults(cfg)

	assert.Nil(t, cfg.FirstContact)
	assert.NoError(t, cfg.Validate())
}
