// Package healthchain wires configuration into a ready ledger service
package healthchain

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/root-sector-ltd-and-co-kg/healthchain-access-ledger/config"
	"github.com/root-sector-ltd-and-co-kg/healthchain-access-ledger/interfaces"
	"github.com/root-sector-ltd-and-co-kg/healthchain-access-ledger/kms"
	"github.com/root-sector-ltd-and-co-kg/healthchain-access-ledger/kms/credentials"
	"github.com/root-sector-ltd-and-co-kg/healthchain-access-ledger/store/memory"
	"github.com/root-sector-ltd-and-co-kg/healthchain-access-ledger/store/mongodb"
	"github.com/root-sector-ltd-and-co-kg/healthchain-access-ledger/store/sqlite"
	"github.com/root-sector-ltd-and-co-kg/healthchain-access-ledger/types"
)

// New validates cfg, opens the configured store and sealer, and returns the service.
// The caller owns the service and must Close it.
func New(ctx context.Context, cfg *types.Config, opts ...Option) (*Service, error) {
	if err := config.Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	store, err := createStore(ctx, cfg.Store)
	if err != nil {
		return nil, err
	}

	sealer, err := createSealer(ctx, cfg.Sealer)
	if err != nil {
		if closeErr := store.Close(ctx); closeErr != nil {
			log.Error().Err(closeErr).Msg("Failed to close store after sealer initialization error")
		}
		return nil, err
	}
	if sealer != nil {
		opts = append([]Option{WithSealer(sealer)}, opts...)
	}

	return NewService(store, cfg, opts...), nil
}

func createStore(ctx context.Context, cfg types.StoreConfig) (interfaces.Store, error) {
	logger := log.With().Str("component", "factory").Logger()

	switch cfg.Driver {
	case types.DriverMemory, "":
		logger.Warn().Msg("Using in-memory store; data is lost when the process exits")
		return memory.NewStore(), nil
	case types.DriverSQLite:
		store, err := sqlite.Open(ctx, cfg.SQLite.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlite store: %w", err)
		}
		return store, nil
	case types.DriverMongoDB:
		store, err := mongodb.Open(ctx, cfg.Mongo)
		if err != nil {
			return nil, fmt.Errorf("failed to open mongodb store: %w", err)
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unsupported store driver: %q", cfg.Driver)
	}
}

// createSealer returns nil when no provider is configured.
// ENC[...] credentials are decrypted with CredentialsKeyBase64 first.
func createSealer(ctx context.Context, cfg types.SealerConfig) (interfaces.Sealer, error) {
	if cfg.Provider == types.ProviderNone {
		return nil, nil
	}

	if cfg.CredentialsKeyBase64 != "" && len(cfg.Credentials) > 0 {
		manager, err := credentials.NewManagerFromBase64(cfg.CredentialsKeyBase64)
		if err != nil {
			return nil, fmt.Errorf("failed to create credentials manager: %w", err)
		}
		creds := make(map[string]string, len(cfg.Credentials))
		for k, v := range cfg.Credentials {
			creds[k] = v
		}
		cfg.Credentials = creds
		if err := manager.DecryptCredentials(&cfg); err != nil {
			return nil, fmt.Errorf("failed to decrypt sealer credentials: %w", err)
		}
	}

	provider, err := kms.NewProvider(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create KMS provider: %w", err)
	}

	healthCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := provider.HealthCheck(healthCtx); err != nil {
		return nil, fmt.Errorf("KMS provider is not usable: %w", err)
	}

	return kms.NewSealer(provider), nil
}
