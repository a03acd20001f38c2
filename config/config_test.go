package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFromFileYAML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "node.yaml")

	content := `environment: production
node:
  name: relay-01
  type: FULL
  base_url: https://relay-01.example.com
cache:
  type: file
  path: /var/lib/koi/cache
first_contact:
  rid: orn:koi-net.node:bootstrap
  url: https://bootstrap.example.com
keystore:
  private_key_file: /etc/koi/identity.pem
logging:
  level: debug
  format: json
`
	require.NoError(t, os.WriteFile(configPath, []byte(content), 0o644))

	cfg, err := LoadFromFile(configPath)
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, "production", cfg.Environment)
	assert.Equal(t, "relay-01", cfg.Node.Name)
	assert.Equal(t, "FULL", cfg.Node.Type)
	assert.Equal(t, "https://relay-01.example.com", cfg.Node.BaseURL)
	assert.Equal(t, "file", cfg.Cache.Type)
	assert.Equal(t, "/var/lib/koi/cache", cfg.Cache.Path)
	assert.Equal(t, "orn:koi-net.node:bootstrap", cfg.FirstContact.RID)
	assert.Equal(t, "debug", cfg.Logging.Level)
	// defaults still apply to fields left unset
	assert.Equal(t, 5*time.Minute, cfg.Secure.ClockSkew)
	assert.Equal(t, ":9090", cfg.Metrics.Addr)
}

func TestLoadFromFileMissing(t *testing.T) {
	_, err := LoadFromFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestSaveAndReloadRoundTrip(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "node.yaml")

	cfg := &Config{
		Node: &NodeConfig{Name: "n1", Type: "PARTIAL"},
	}
	setDefaults(cfg)

	require.NoError(t, SaveToFile(cfg, path))

	reloaded, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, "n1", reloaded.Node.Name)
	assert.Equal(t, "PARTIAL", reloaded.Node.Type)
	assert.Equal(t, cfg.Cache.Path, reloaded.Cache.Path)
}

func TestSetDefaultsFillsEveryField(t *testing.T) {
	cfg := &Config{}
	setDefaults(cfg)

	require.NotNil(t, cfg.Node)
	require.NotNil(t, cfg.Cache)
	require.NotNil(t, cfg.KeyStore)
	require.NotNil(t, cfg.Secure)
	require.NotNil(t, cfg.Server)
	require.NotNil(t, cfg.Logging)
	require.NotNil(t, cfg.Metrics)
	require.NotNil(t, cfg.Health)

	assert.Equal(t, "development", cfg.Environment)
	assert.Equal(t, "FULL", cfg.Node.Type)
	assert.Equal(t, "file", cfg.Cache.Type)
	assert.Equal(t, ".koi/identity.pem", cfg.KeyStore.PrivateKeyFile)
	assert.Equal(t, ":8000", cfg.Server.ListenAddr)
	assert.Equal(t, "/healthz", cfg.Health.Path)
}

func TestValidateRequiresNodeName(t *testing.T) {
	cfg := &Config{Node: &NodeConfig{Type: "FULL", BaseURL: "https://x"}}
	assert.Error(t, cfg.Validate())

	cfg.Node.Name = "n1"
	assert.NoError(t, cfg.Validate())
}

func TestValidateRejectsUnknownNodeType(t *testing.T) {
	cfg := &Config{Node: &NodeConfig{Name: "n1", Type: "BOGUS"}}
	assert.Error(t, cfg.Validate())
}

func TestValidateRequiresBaseURLForFullNodes(t *testing.T) {
	cfg := &Config{Node: &NodeConfig{Name: "n1", Type: "FULL"}}
	assert.Error(t, cfg.Validate())

	cfg.Node.Type = "PARTIAL"
	assert.NoError(t, cfg.Validate())
}
