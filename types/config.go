package types

import (
	"time"
)

// StoreDriver selects the persistence backend
type StoreDriver string

const (
	DriverMemory  StoreDriver = "memory"
	DriverMongoDB StoreDriver = "mongodb"
	DriverSQLite  StoreDriver = "sqlite"
)

// ProviderType represents the type of KMS provider used to seal records
type ProviderType string

const (
	ProviderNone  ProviderType = ""
	ProviderAead  ProviderType = "aead"
	ProviderAWS   ProviderType = "aws"
	ProviderAzure ProviderType = "azure"
	ProviderGCP   ProviderType = "gcp"
	ProviderVault ProviderType = "vault"
)

// Config is the top-level configuration
type Config struct {
	Store  StoreConfig  `json:"store" yaml:"store" koanf:"store"`
	Log    LogConfig    `json:"log" yaml:"log" koanf:"log"`
	Sealer SealerConfig `json:"sealer" yaml:"sealer" koanf:"sealer"`
	Policy PolicyConfig `json:"policy" yaml:"policy" koanf:"policy"`
	Grants GrantsConfig `json:"grants" yaml:"grants" koanf:"grants"`
}

// StoreConfig holds persistence configuration
type StoreConfig struct {
	Driver StoreDriver  `json:"driver" yaml:"driver" koanf:"driver"`
	Mongo  MongoConfig  `json:"mongo" yaml:"mongo" koanf:"mongo"`
	SQLite SQLiteConfig `json:"sqlite" yaml:"sqlite" koanf:"sqlite"`
}

// MongoConfig holds MongoDB connection settings
type MongoConfig struct {
	URI      string        `json:"uri" yaml:"uri" koanf:"uri"`
	Database string        `json:"database" yaml:"database" koanf:"database"`
	Timeout  time.Duration `json:"timeout" yaml:"timeout" koanf:"timeout"`
}

// SQLiteConfig holds embedded database settings
type SQLiteConfig struct {
	Path string `json:"path" yaml:"path" koanf:"path"`
}

// LogConfig controls zerolog output
type LogConfig struct {
	Level  string `json:"level" yaml:"level" koanf:"level"`
	Format string `json:"format" yaml:"format" koanf:"format"` // "console" or "json"
}

// SealerConfig configures the record sealing collaborator
type SealerConfig struct {
	Provider      ProviderType      `json:"provider" yaml:"provider" koanf:"provider"`
	KeyID         string            `json:"keyId" yaml:"keyId" koanf:"keyid"`
	AeadKeyBase64 string            `json:"aeadKeyBase64,omitempty" yaml:"aeadKeyBase64,omitempty" koanf:"aeadkeybase64"`
	Passphrase    string            `json:"-" yaml:"passphrase,omitempty" koanf:"passphrase"`
	Salt          string            `json:"salt,omitempty" yaml:"salt,omitempty" koanf:"salt"`
	Region        string            `json:"region,omitempty" yaml:"region,omitempty" koanf:"region"`
	VaultAddress  string            `json:"vaultAddress,omitempty" yaml:"vaultAddress,omitempty" koanf:"vaultaddress"`
	VaultMount    string            `json:"vaultMount,omitempty" yaml:"vaultMount,omitempty" koanf:"vaultmount"`
	Credentials   map[string]string `json:"-" yaml:"credentials,omitempty" koanf:"credentials"`

	// CredentialsKeyBase64 decrypts Credentials values written as ENC[...]
	CredentialsKeyBase64 string `json:"-" yaml:"credentialsKeyBase64,omitempty" koanf:"credentialskeybase64"`
}

// PolicyConfig tunes the default scope policy
type PolicyConfig struct {
	RecentWindowHours int `json:"recentWindowHours" yaml:"recentWindowHours" koanf:"recentwindowhours"`
}

// GrantsConfig bounds grant durations accepted through the service facade
type GrantsConfig struct {
	DefaultDurationHours float64 `json:"defaultDurationHours" yaml:"defaultDurationHours" koanf:"defaultdurationhours"`
	MaxDurationHours     float64 `json:"maxDurationHours" yaml:"maxDurationHours" koanf:"maxdurationhours"`
}
