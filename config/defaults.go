package config

import (
	"time"

	"github.com/root-sector-ltd-and-co-kg/healthchain-access-ledger/types"
)

const (
	// EnvPrefix prefixes every environment override, e.g. HEALTHCHAIN_STORE__DRIVER
	EnvPrefix = "HEALTHCHAIN_"

	// EnvNestingSeparator separates nested keys in environment variable names
	EnvNestingSeparator = "__"

	// DefaultEnvFile is loaded into the process environment when present
	DefaultEnvFile = ".env"

	DefaultMongoDatabase         = "healthchain"
	DefaultMongoTimeout          = 10 * time.Second
	DefaultSQLitePath            = ".healthchain/ledger.db"
	DefaultLogLevel              = "info"
	DefaultLogFormat             = "console"
	DefaultRecentWindowHours     = 720
	DefaultGrantDurationHours    = 24.0
	DefaultMaxGrantDurationHours = 24.0 * 365
)

// DefaultConfig returns the configuration used when no file or environment overrides are present
func DefaultConfig() *types.Config {
	return &types.Config{
		Store: types.StoreConfig{
			Driver: types.DriverMemory,
			Mongo: types.MongoConfig{
				Database: DefaultMongoDatabase,
				Timeout:  DefaultMongoTimeout,
			},
			SQLite: types.SQLiteConfig{Path: DefaultSQLitePath},
		},
		Log: types.LogConfig{
			Level:  DefaultLogLevel,
			Format: DefaultLogFormat,
		},
		Policy: types.PolicyConfig{RecentWindowHours: DefaultRecentWindowHours},
		Grants: types.GrantsConfig{
			DefaultDurationHours: DefaultGrantDurationHours,
			MaxDurationHours:     DefaultMaxGrantDurationHours,
		},
	}
}
