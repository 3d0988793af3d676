// Package config defines the runtime configuration of the sale service.
package config

import "escrow-sale/internal/feed"

const (
	BackendMemory   = "memory"
	BackendSqlite   = "sqlite"
	BackendPostgres = "postgres"
)

// Validation tags described here: https://pkg.go.dev/github.com/go-playground/validator/v10
type Config struct {
	Sale struct {
		ID            string `env:"SALE_ID"        flag:"sale-id"        validate:"required"                desc:"sale namespace, the escrow account is derived from it"`
		StrictReclaim bool   `env:"STRICT_RECLAIM" flag:"strict-reclaim"                                    desc:"refuse token reclaims that would leave owed tokens unbacked"`
		TokenDecimals int    `env:"TOKEN_DECIMALS" flag:"token-decimals" validate:"gte=0,lte=19"            desc:"decimals of the sale token used for display amounts, defaults to 6"`
	}
	Storage struct {
		Backend       string `env:"STORAGE_BACKEND" flag:"storage-backend" validate:"oneof=memory sqlite postgres"`
		SqlitePath    string `env:"SQLITE_PATH"     flag:"sqlite-path"     validate:"required_if=Backend sqlite"`
		PostgresDSN   string `env:"POSTGRES_DSN"    flag:"postgres-dsn"    validate:"required_if=Backend postgres"`
		ClickhouseDSN string `env:"CLICKHOUSE_DSN"  flag:"clickhouse-dsn"  validate:"omitempty,url"         desc:"enables the analytics event journal"`
	}
	Log struct {
		Color  bool   `env:"LOG_COLOR"   flag:"log-color"`
		IsProd bool   `env:"LOG_IS_PROD" flag:"log-is-prod" desc:"affects the format of the log output"`
		JSON   bool   `env:"LOG_JSON"    flag:"log-json"`
		Level  string `env:"LOG_LEVEL"   flag:"log-level"   validate:"oneof=debug info warn error dpanic panic fatal"`
	}
	Metrics struct {
		Namespace string `env:"METRICS_NAMESPACE" flag:"metrics-namespace"`
	}
	Web struct {
		Address        string `env:"WEB_ADDRESS"          flag:"web-address"          validate:"required,hostname_port" desc:"http server address host:port"`
		FeedSendBuffer int    `env:"WEB_FEED_SEND_BUFFER" flag:"web-feed-send-buffer" validate:"gte=1"                  desc:"events queued per feed subscriber before it is dropped"`
	}
}

func (cfg *Config) SetDefaults() {
	// Sale
	if cfg.Sale.TokenDecimals == 0 {
		cfg.Sale.TokenDecimals = 6
	}

	// Storage
	if cfg.Storage.Backend == "" {
		cfg.Storage.Backend = BackendMemory
	}

	// Log
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}

	// Metrics
	if cfg.Metrics.Namespace == "" {
		cfg.Metrics.Namespace = "escrow_sale"
	}

	// Web
	if cfg.Web.Address == "" {
		cfg.Web.Address = "0.0.0.0:8080"
	}
	if cfg.Web.FeedSendBuffer == 0 {
		cfg.Web.FeedSendBuffer = feed.DefaultHubConfig().SendBuffer
	}
}
