package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "memory", cfg.Database.Driver)
	assert.Equal(t, "fs", cfg.Storage.Driver)
	assert.Equal(t, "memory", cfg.Cache.Driver)
	assert.Equal(t, 15, cfg.Worker.IntervalSeconds)
	assert.False(t, cfg.AI.Enabled)
	assert.Equal(t, "gpt-4o-mini", cfg.AI.Model)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9090
  apiKeys:
    - acme:sekrit
database:
  driver: postgres
  host: db.internal
  port: 5432
  user: scanner
  name: modelscan
scanner:
  prefixBytes: 2048
  quarantine:
    highConfidence: 0.9
worker:
  batchSize: 25
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, 25, cfg.Worker.BatchSize)
	// untouched sections keep their defaults
	assert.Equal(t, "fs", cfg.Storage.Driver)
	assert.Equal(t, 4, cfg.Worker.Concurrency)

	tun := cfg.Tunables()
	assert.Equal(t, int64(2048), tun.PrefixBytes)
	assert.Equal(t, 0.9, tun.Policy.HighConfidence)
	// zero yaml values fall back to engine defaults
	assert.Equal(t, 0.5, tun.Policy.MediumConfidence)
	assert.Equal(t, int64(10<<30), tun.MaxArtifactBytes)
}

func TestLoadRejectsBrokenYAML(t *testing.T) {
	path := writeConfig(t, "server: [not a map")
	_, err := Load(path)
	assert.ErrorContains(t, err, "parse config")
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("MODELSCAN_API_KEYS", "acme:k1, beta:k2")
	t.Setenv("MODELSCAN_DB_DRIVER", "memory")
	t.Setenv("MODELSCAN_DB_PASSWORD", "hunter2")
	t.Setenv("MODELSCAN_WEBHOOK_URL", "https://hooks.internal/scan")
	t.Setenv("OPENAI_API_KEY", "sk-test")

	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)

	assert.Equal(t, []string{"acme:k1", "beta:k2"}, cfg.Server.APIKeys)
	assert.Equal(t, "hunter2", cfg.Database.Password)
	assert.Equal(t, "https://hooks.internal/scan", cfg.Notify.WebhookURL)
	assert.Equal(t, "sk-test", cfg.AI.APIKey)
}

func TestValidateRejectsUnknownDrivers(t *testing.T) {
	cfg := Default()
	cfg.Database.Driver = "oracle"
	assert.ErrorContains(t, cfg.Validate(), `unknown database driver "oracle"`)

	cfg = Default()
	cfg.Storage.Driver = "tape"
	assert.ErrorContains(t, cfg.Validate(), `unknown storage driver "tape"`)

	cfg = Default()
	cfg.Cache.Driver = "etcd"
	assert.ErrorContains(t, cfg.Validate(), `unknown cache driver "etcd"`)

	cfg = Default()
	cfg.Server.Port = 70000
	assert.ErrorContains(t, cfg.Validate(), "invalid server port")
}

func TestValidateRejectsMalformedAPIKeys(t *testing.T) {
	for _, entry := range []string{"nokey", ":keyonly", "tenantonly:"} {
		cfg := Default()
		cfg.Server.APIKeys = []string{entry}
		assert.ErrorContains(t, cfg.Validate(), "must look like tenant:key", "entry %q", entry)
	}
}

func TestTenantKeys(t *testing.T) {
	cfg := Default()
	cfg.Server.APIKeys = []string{"acme:k1", "beta:k2"}
	assert.Equal(t, map[string]string{"acme": "k1", "beta": "k2"}, cfg.TenantKeys())

	cfg.Server.APIKeys = nil
	assert.Empty(t, cfg.TenantKeys())
}

func TestDSNBuilders(t *testing.T) {
	cfg := Default()
	cfg.Database.Host = "db.internal"
	cfg.Database.Port = 5432
	cfg.Database.User = "scanner"
	cfg.Database.Password = "pw"
	cfg.Database.Name = "modelscan"

	assert.Equal(t,
		"scanner:pw@tcp(db.internal:5432)/modelscan?parseTime=true&charset=utf8mb4&loc=UTC",
		cfg.MySQLDSN())

	cfg.Database.SSLMode = ""
	assert.Equal(t,
		"host=db.internal port=5432 user=scanner password=pw dbname=modelscan sslmode=disable",
		cfg.PostgresDSN())

	cfg.Database.SSLMode = "require"
	assert.Contains(t, cfg.PostgresDSN(), "sslmode=require")
}
