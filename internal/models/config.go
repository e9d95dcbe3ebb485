package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Config represents the application configuration
type Config struct {
	Database DatabaseConfig
	Watcher  WatcherConfig
	Chain    ChainConfig
	Catalog  CatalogConfig
	Access   AccessConfig
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Path            string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	PingTimeout     time.Duration
}

// WatcherConfig holds reconciliation scheduler settings
type WatcherConfig struct {
	PollInterval time.Duration
	MaxAttempts  int
	TolerancePct float64
	SweepSpec    string // cron spec for the expiry sweep
}

// ChainConfig holds settings for the ledger-query collaborator
type ChainConfig struct {
	ApiUrl         string
	ApiKeys        []string
	SystemAddress  string
	RequestTimeout time.Duration
}

// CatalogConfig points at the static plan and token definitions
type CatalogConfig struct {
	PlansFile  string
	TokensFile string
}

// AccessConfig prices the daily platform-access subscription
type AccessConfig struct {
	Currency    string
	DailyAmount decimal.Decimal
}
