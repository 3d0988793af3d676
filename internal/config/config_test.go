package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	t.Setenv("SALE_ID", "sale-1")

	var cfg Config
	require.NoError(t, LoadConfig(&cfg, &[]string{"server"}))

	assert.Equal(t, "sale-1", cfg.Sale.ID)
	assert.Equal(t, 6, cfg.Sale.TokenDecimals)
	assert.False(t, cfg.Sale.StrictReclaim)
	assert.Equal(t, BackendMemory, cfg.Storage.Backend)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "escrow_sale", cfg.Metrics.Namespace)
	assert.Equal(t, "0.0.0.0:8080", cfg.Web.Address)
	assert.Equal(t, 64, cfg.Web.FeedSendBuffer)
}

func TestLoadConfig_FlagsOverrideEnv(t *testing.T) {
	t.Setenv("SALE_ID", "from-env")
	t.Setenv("WEB_ADDRESS", "127.0.0.1:7000")
	t.Setenv("STRICT_RECLAIM", "true")

	var cfg Config
	args := []string{"server", "-sale-id=from-flag", "-web-address=127.0.0.1:9000", "-token-decimals=9"}
	require.NoError(t, LoadConfig(&cfg, &args))

	assert.Equal(t, "from-flag", cfg.Sale.ID)
	assert.Equal(t, "127.0.0.1:9000", cfg.Web.Address)
	assert.Equal(t, 9, cfg.Sale.TokenDecimals)
	assert.True(t, cfg.Sale.StrictReclaim)
}

func TestLoadConfig_Validation(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"missing sale id", map[string]string{}},
		{"unknown backend", map[string]string{"SALE_ID": "s", "STORAGE_BACKEND": "redis"}},
		{"sqlite without path", map[string]string{"SALE_ID": "s", "STORAGE_BACKEND": "sqlite"}},
		{"postgres without dsn", map[string]string{"SALE_ID": "s", "STORAGE_BACKEND": "postgres"}},
		{"bad log level", map[string]string{"SALE_ID": "s", "LOG_LEVEL": "verbose"}},
		{"bad web address", map[string]string{"SALE_ID": "s", "WEB_ADDRESS": "no-port"}},
		{"too many decimals", map[string]string{"SALE_ID": "s", "TOKEN_DECIMALS": "20"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("SALE_ID", "")
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			var cfg Config
			err := LoadConfig(&cfg, &[]string{"server"})
			assert.ErrorIs(t, err, ErrConfigValidation)
		})
	}
}

func TestLoadConfig_SqliteBackend(t *testing.T) {
	t.Setenv("SALE_ID", "s")
	t.Setenv("STORAGE_BACKEND", "sqlite")
	t.Setenv("SQLITE_PATH", "/tmp/sale.db")

	var cfg Config
	require.NoError(t, LoadConfig(&cfg, &[]string{"server"}))
	assert.Equal(t, "/tmp/sale.db", cfg.Storage.SqlitePath)
}

func TestLoadConfig_UnknownFlag(t *testing.T) {
	t.Setenv("SALE_ID", "s")
	var cfg Config
	err := LoadConfig(&cfg, &[]string{"server", "-no-such-flag"})
	assert.ErrorIs(t, err, ErrFlagParse)
}

func TestLoadEnvFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(path, []byte("SALE_ID=from-file\nLOG_LEVEL=debug\n"), 0o600))

	// godotenv does not override variables that are already set
	t.Setenv("LOG_LEVEL", "warn")
	t.Setenv("SALE_ID", "")
	require.NoError(t, os.Unsetenv("SALE_ID"))

	require.NoError(t, LoadEnvFile(filepath.Join(dir, "missing.env"), path))
	assert.Equal(t, "from-file", os.Getenv("SALE_ID"))
	assert.Equal(t, "warn", os.Getenv("LOG_LEVEL"))
}
