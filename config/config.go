// Package config loads the ledger configuration from defaults, a YAML file, .env and the environment
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"strings"

	"github.com/hengadev/errsx"
	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/rs/zerolog"

	"github.com/root-sector-ltd-and-co-kg/healthchain-access-ledger/types"
)

// Load reads configuration from the YAML file at path (optional), loads .env
// from the working directory when present, then overlays HEALTHCHAIN_* variables.
func Load(path string) (*types.Config, error) {
	return LoadWithEnvFile(path, DefaultEnvFile)
}

// LoadWithEnvFile is Load with an explicit .env location. An empty envFile skips .env loading.
func LoadWithEnvFile(path, envFile string) (*types.Config, error) {
	if envFile != "" {
		// godotenv never overrides variables already set in the process
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("loading env file %s: %w", envFile, err)
		}
	}

	k := koanf.New(".")
	cfg := DefaultConfig()

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
				return nil, fmt.Errorf("reading config %s: %w", path, err)
			}
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("accessing config %s: %w", path, err)
		}
	}

	// HEALTHCHAIN_STORE__MONGO__URI -> store.mongo.uri
	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("loading env overrides: %w", err)
	}

	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}
	return cfg, nil
}

func envKey(s string) string {
	key := strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	return strings.ReplaceAll(key, EnvNestingSeparator, ".")
}

var validDrivers = map[types.StoreDriver]bool{
	types.DriverMemory:  true,
	types.DriverMongoDB: true,
	types.DriverSQLite:  true,
}

var validProviders = map[types.ProviderType]bool{
	types.ProviderNone:  true,
	types.ProviderAead:  true,
	types.ProviderAWS:   true,
	types.ProviderAzure: true,
	types.ProviderGCP:   true,
	types.ProviderVault: true,
}

// Validate reports every invalid field at once as an errsx.Map keyed by config path
func Validate(cfg *types.Config) error {
	var errs errsx.Map
	if cfg == nil {
		errs.Set("config", errors.New("config is required"))
		return errs.AsError()
	}

	switch {
	case !validDrivers[cfg.Store.Driver]:
		errs.Set("store.driver", fmt.Errorf("invalid driver %q: must be one of memory, mongodb, sqlite", cfg.Store.Driver))
	case cfg.Store.Driver == types.DriverMongoDB:
		if cfg.Store.Mongo.URI == "" {
			errs.Set("store.mongo.uri", errors.New("uri is required for the mongodb driver"))
		}
		if cfg.Store.Mongo.Database == "" {
			errs.Set("store.mongo.database", errors.New("database is required for the mongodb driver"))
		}
	case cfg.Store.Driver == types.DriverSQLite:
		if cfg.Store.SQLite.Path == "" {
			errs.Set("store.sqlite.path", errors.New("path is required for the sqlite driver"))
		}
	}
	if cfg.Store.Mongo.Timeout < 0 {
		errs.Set("store.mongo.timeout", errors.New("timeout must be non-negative"))
	}

	if _, err := zerolog.ParseLevel(strings.ToLower(cfg.Log.Level)); err != nil {
		errs.Set("log.level", fmt.Errorf("invalid level %q: %w", cfg.Log.Level, err))
	}
	if f := cfg.Log.Format; f != "" && f != "console" && f != "json" {
		errs.Set("log.format", fmt.Errorf("invalid format %q: must be console or json", f))
	}

	if !validProviders[cfg.Sealer.Provider] {
		errs.Set("sealer.provider", fmt.Errorf("invalid provider %q: must be one of aead, aws, azure, gcp, vault", cfg.Sealer.Provider))
	}

	if cfg.Policy.RecentWindowHours <= 0 {
		errs.Set("policy.recentWindowHours", errors.New("recent window must be greater than zero"))
	}

	grants := cfg.Grants
	if !positiveFinite(grants.DefaultDurationHours) {
		errs.Set("grants.defaultDurationHours", errors.New("default duration must be a positive number of hours"))
	}
	if grants.MaxDurationHours != 0 && !positiveFinite(grants.MaxDurationHours) {
		errs.Set("grants.maxDurationHours", errors.New("max duration must be a positive number of hours or zero for no limit"))
	} else if grants.MaxDurationHours > 0 && grants.DefaultDurationHours > grants.MaxDurationHours {
		errs.Set("grants.defaultDurationHours", errors.New("default duration exceeds max duration"))
	}

	return errs.AsError()
}

func positiveFinite(v float64) bool {
	return v > 0 && !math.IsInf(v, 0) && !math.IsNaN(v)
}
