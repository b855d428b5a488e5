package config

import (
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/hengadev/errsx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/root-sector-ltd-and-co-kg/healthchain-access-ledger/types"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, types.DriverMemory, cfg.Store.Driver)
	assert.Equal(t, "healthchain", cfg.Store.Mongo.Database)
	assert.Equal(t, 10*time.Second, cfg.Store.Mongo.Timeout)
	assert.Equal(t, ".healthchain/ledger.db", cfg.Store.SQLite.Path)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, 720, cfg.Policy.RecentWindowHours)
	assert.Equal(t, 24.0, cfg.Grants.DefaultDurationHours)
	assert.NoError(t, Validate(cfg))
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := LoadWithEnvFile(filepath.Join(t.TempDir(), "missing.yaml"), "")
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoadYAML(t *testing.T) {
	path := writeFile(t, t.TempDir(), "healthchain.yaml", `
store:
  driver: mongodb
  mongo:
    uri: mongodb://localhost:27017
    database: ledger
    timeout: 5s
log:
  level: debug
  format: json
sealer:
  provider: vault
  keyId: records
  vaultAddress: https://vault.example.com
  credentials:
    token: s.abc
policy:
  recentWindowHours: 48
grants:
  defaultDurationHours: 1.5
`)

	cfg, err := LoadWithEnvFile(path, "")
	require.NoError(t, err)

	assert.Equal(t, types.DriverMongoDB, cfg.Store.Driver)
	assert.Equal(t, "mongodb://localhost:27017", cfg.Store.Mongo.URI)
	assert.Equal(t, "ledger", cfg.Store.Mongo.Database)
	assert.Equal(t, 5*time.Second, cfg.Store.Mongo.Timeout)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, types.ProviderVault, cfg.Sealer.Provider)
	assert.Equal(t, "records", cfg.Sealer.KeyID)
	assert.Equal(t, "https://vault.example.com", cfg.Sealer.VaultAddress)
	assert.Equal(t, map[string]string{"token": "s.abc"}, cfg.Sealer.Credentials)
	assert.Equal(t, 48, cfg.Policy.RecentWindowHours)
	assert.Equal(t, 1.5, cfg.Grants.DefaultDurationHours)
	// Untouched keys keep their defaults
	assert.Equal(t, DefaultMaxGrantDurationHours, cfg.Grants.MaxDurationHours)
	assert.Equal(t, DefaultSQLitePath, cfg.Store.SQLite.Path)
	assert.NoError(t, Validate(cfg))
}

func TestLoadMalformedYAML(t *testing.T) {
	path := writeFile(t, t.TempDir(), "bad.yaml", "store: [unterminated")
	_, err := LoadWithEnvFile(path, "")
	assert.Error(t, err)
}

func TestEnvOverridesFile(t *testing.T) {
	path := writeFile(t, t.TempDir(), "healthchain.yaml", "store:\n  driver: memory\n")
	t.Setenv("HEALTHCHAIN_STORE__DRIVER", "sqlite")
	t.Setenv("HEALTHCHAIN_STORE__SQLITE__PATH", "/var/lib/healthchain/ledger.db")
	t.Setenv("HEALTHCHAIN_GRANTS__MAXDURATIONHOURS", "48")

	cfg, err := LoadWithEnvFile(path, "")
	require.NoError(t, err)
	assert.Equal(t, types.DriverSQLite, cfg.Store.Driver)
	assert.Equal(t, "/var/lib/healthchain/ledger.db", cfg.Store.SQLite.Path)
	assert.Equal(t, 48.0, cfg.Grants.MaxDurationHours)
}

func TestLoadEnvFile(t *testing.T) {
	const key = "HEALTHCHAIN_SEALER__KEYID"
	_, preset := os.LookupEnv(key)
	require.False(t, preset, "%s must not be set for this test", key)
	t.Cleanup(func() { _ = os.Unsetenv(key) })

	envFile := writeFile(t, t.TempDir(), ".env", key+"=from-dotenv\n")
	cfg, err := LoadWithEnvFile("", envFile)
	require.NoError(t, err)
	assert.Equal(t, "from-dotenv", cfg.Sealer.KeyID)
}

func TestLoadMissingEnvFileIsIgnored(t *testing.T) {
	_, err := LoadWithEnvFile("", filepath.Join(t.TempDir(), ".env"))
	assert.NoError(t, err)
}

func TestEnvKey(t *testing.T) {
	assert.Equal(t, "store.mongo.uri", envKey("HEALTHCHAIN_STORE__MONGO__URI"))
	assert.Equal(t, "log.level", envKey("HEALTHCHAIN_LOG__LEVEL"))
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*types.Config)
		errKeys []string
	}{
		{name: "defaults", mutate: func(*types.Config) {}},
		{
			name:    "unknown driver",
			mutate:  func(c *types.Config) { c.Store.Driver = "postgres" },
			errKeys: []string{"store.driver"},
		},
		{
			name: "mongo without uri or database",
			mutate: func(c *types.Config) {
				c.Store.Driver = types.DriverMongoDB
				c.Store.Mongo.Database = ""
			},
			errKeys: []string{"store.mongo.uri", "store.mongo.database"},
		},
		{
			name: "sqlite without path",
			mutate: func(c *types.Config) {
				c.Store.Driver = types.DriverSQLite
				c.Store.SQLite.Path = ""
			},
			errKeys: []string{"store.sqlite.path"},
		},
		{
			name: "bad logging",
			mutate: func(c *types.Config) {
				c.Log.Level = "loud"
				c.Log.Format = "xml"
			},
			errKeys: []string{"log.level", "log.format"},
		},
		{
			name:    "unknown sealer provider",
			mutate:  func(c *types.Config) { c.Sealer.Provider = "hsm" },
			errKeys: []string{"sealer.provider"},
		},
		{
			name: "grant bounds",
			mutate: func(c *types.Config) {
				c.Policy.RecentWindowHours = 0
				c.Grants.DefaultDurationHours = math.NaN()
				c.Grants.MaxDurationHours = -1
			},
			errKeys: []string{"policy.recentWindowHours", "grants.defaultDurationHours", "grants.maxDurationHours"},
		},
		{
			name: "default above max",
			mutate: func(c *types.Config) {
				c.Grants.DefaultDurationHours = 48
				c.Grants.MaxDurationHours = 24
			},
			errKeys: []string{"grants.defaultDurationHours"},
		},
		{
			name:   "zero max means unlimited",
			mutate: func(c *types.Config) { c.Grants.MaxDurationHours = 0 },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)

			err := Validate(cfg)
			if len(tt.errKeys) == 0 {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			errs, ok := err.(errsx.Map)
			require.True(t, ok, "expected errsx.Map, got %T", err)
			assert.Len(t, errs, len(tt.errKeys))
			for _, key := range tt.errKeys {
				assert.Contains(t, errs, key)
			}
		})
	}
}

func TestValidateNil(t *testing.T) {
	assert.Error(t, Validate(nil))
}
