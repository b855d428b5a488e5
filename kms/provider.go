// Package kms provides KMS providers and the record sealer built on them
package kms

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"strings"

	wrapping "github.com/hashicorp/go-kms-wrapping/v2"
	kmsaead "github.com/hashicorp/go-kms-wrapping/v2/aead"
	awskms "github.com/hashicorp/go-kms-wrapping/wrappers/awskms/v2"
	azurekeyvault "github.com/hashicorp/go-kms-wrapping/wrappers/azurekeyvault/v2"
	gcpckms "github.com/hashicorp/go-kms-wrapping/wrappers/gcpckms/v2"
	transit "github.com/hashicorp/go-kms-wrapping/wrappers/transit/v2"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/root-sector-ltd-and-co-kg/healthchain-access-ledger/types"
)

// logger derives from the global logger on each call so it follows runtime log configuration
func logger() *zerolog.Logger {
	l := log.With().Str("component", "kms").Logger()
	return &l
}

// provider implements the Provider interface
type provider struct {
	wrapper         wrapping.Wrapper
	lastHealthCheck error
}

// NewProvider creates a new KMS provider based on the configuration
func NewProvider(ctx context.Context, config types.SealerConfig) (Provider, error) {
	var (
		wrapper  wrapping.Wrapper
		err      error
		location string
	)

	logger().Debug().
		Str("provider", string(config.Provider)).
		Msg("Initializing KMS provider")

	switch config.Provider {
	case types.ProviderAWS:
		location = config.Region
		if err = validateAWSConfig(config); err != nil {
			return nil, fmt.Errorf("invalid AWS KMS configuration: %w", err)
		}
		wrapper, err = createAWSWrapper(ctx, config)
	case types.ProviderAzure:
		location = config.VaultAddress
		if err = validateAzureConfig(config); err != nil {
			return nil, fmt.Errorf("invalid Azure Key Vault configuration: %w", err)
		}
		wrapper, err = createAzureWrapper(ctx, config)
	case types.ProviderGCP:
		if err = validateGCPConfig(config); err != nil {
			return nil, fmt.Errorf("invalid GCP KMS configuration: %w", err)
		}
		location = strings.Split(config.KeyID, "/")[3]
		wrapper, err = createGCPWrapper(ctx, config)
	case types.ProviderVault:
		location = config.VaultAddress
		if err = validateVaultConfig(config); err != nil {
			return nil, fmt.Errorf("invalid Vault configuration: %w", err)
		}
		wrapper, err = createVaultWrapper(ctx, config)
	case types.ProviderAead:
		location = "local"
		var key []byte
		if key, err = aeadKey(config); err != nil {
			return nil, fmt.Errorf("invalid AEAD configuration: %w", err)
		}
		wrapper, err = createAeadWrapper(ctx, key, config.KeyID)
	default:
		return nil, fmt.Errorf("unsupported KMS provider type: %q", config.Provider)
	}

	if err != nil {
		logger().Error().Err(err).Str("provider", string(config.Provider)).Msg("Failed to create KMS provider wrapper")
		return nil, fmt.Errorf("failed to create wrapper: %w", err)
	}

	logger().Info().
		Str("provider", string(config.Provider)).
		Str("keyIdentifier", config.KeyID).
		Str("locationContext", location).
		Msg("KMS provider initialized successfully")

	return &provider{wrapper: wrapper}, nil
}

// NewAeadProvider creates a local AES-256-GCM provider from a raw key
func NewAeadProvider(ctx context.Context, key []byte, keyID string) (Provider, error) {
	if len(key) != AeadKeySize {
		return nil, fmt.Errorf("AEAD key must be %d bytes for AES-256-GCM, got %d", AeadKeySize, len(key))
	}
	wrapper, err := createAeadWrapper(ctx, key, keyID)
	if err != nil {
		return nil, err
	}
	return &provider{wrapper: wrapper}, nil
}

// GetWrapper returns the underlying KMS wrapper
func (p *provider) GetWrapper() wrapping.Wrapper {
	return p.wrapper
}

// Test tests the KMS wrapper by performing a test encryption/decryption
func (p *provider) Test(ctx context.Context) error {
	if p.wrapper == nil {
		return fmt.Errorf("wrapper not initialized")
	}

	testData := []byte("test")
	encrypted, err := p.wrapper.Encrypt(ctx, testData)
	if err != nil {
		return fmt.Errorf("encryption test failed: %w", err)
	}
	decrypted, err := p.wrapper.Decrypt(ctx, encrypted)
	if err != nil {
		return fmt.Errorf("decryption test failed: %w", err)
	}
	if !bytes.Equal(decrypted, testData) {
		return fmt.Errorf("decrypted data does not match original")
	}
	return nil
}

// HealthCheck performs a comprehensive health check of the KMS provider
func (p *provider) HealthCheck(ctx context.Context) error {
	if p.wrapper == nil {
		return fmt.Errorf("KMS provider not properly initialized: wrapper is nil")
	}
	if err := p.Test(ctx); err != nil {
		p.lastHealthCheck = fmt.Errorf("KMS provider health check failed: %w", err)
		return p.lastHealthCheck
	}
	p.lastHealthCheck = nil
	return nil
}

// GetLastHealthCheckError returns the last health check error if any
func (p *provider) GetLastHealthCheckError() error {
	return p.lastHealthCheck
}

// aeadKey resolves the local key from base64 or a PBKDF2 passphrase
func aeadKey(config types.SealerConfig) ([]byte, error) {
	switch {
	case config.AeadKeyBase64 != "" && config.Passphrase != "":
		return nil, fmt.Errorf("set either aeadKeyBase64 or passphrase, not both")
	case config.AeadKeyBase64 != "":
		key, err := base64.StdEncoding.DecodeString(config.AeadKeyBase64)
		if err != nil {
			return nil, fmt.Errorf("failed to decode aeadKeyBase64: %w", err)
		}
		if len(key) != AeadKeySize {
			return nil, fmt.Errorf("decoded AEAD key must be %d bytes for AES-256-GCM, got %d", AeadKeySize, len(key))
		}
		return key, nil
	case config.Passphrase != "":
		return DeriveKey(config.Passphrase, config.Salt), nil
	}
	return nil, fmt.Errorf("AEAD provider requires aeadKeyBase64 or passphrase")
}

func createAeadWrapper(ctx context.Context, key []byte, keyID string) (wrapping.Wrapper, error) {
	wrapper := kmsaead.NewWrapper()
	opts := []wrapping.Option{kmsaead.WithKey(key)}
	if keyID != "" {
		opts = append(opts, wrapping.WithKeyId(keyID))
	}
	if _, err := wrapper.SetConfig(ctx, opts...); err != nil {
		return nil, fmt.Errorf("failed to configure AEAD wrapper: %w", err)
	}
	return wrapper, nil
}

// validateAWSConfig validates AWS KMS configuration
func validateAWSConfig(config types.SealerConfig) error {
	if config.KeyID == "" {
		return fmt.Errorf("key ID (ARN) is required")
	}
	if config.Region == "" {
		return fmt.Errorf("region is required")
	}

	if config.Credentials != nil {
		hasAccessKey := config.Credentials[CredAccessKeyID] != ""
		hasSecretKey := config.Credentials[CredSecretAccessKey] != ""
		if hasAccessKey != hasSecretKey {
			return fmt.Errorf("both accessKeyId and secretAccessKey must be provided if using credentials")
		}
	} else {
		logger().Info().Msg("AWS credentials not provided in config, assuming environment variables or default credentials")
	}
	return nil
}

// validateAzureConfig validates Azure Key Vault configuration
func validateAzureConfig(config types.SealerConfig) error {
	if config.KeyID == "" {
		return fmt.Errorf("key ID (URL) is required")
	}
	if !strings.HasPrefix(config.VaultAddress, "https://") || !strings.Contains(config.VaultAddress, ".vault.azure.net") {
		return fmt.Errorf("vault address must be a valid Azure Key Vault URL (e.g., https://myvault.vault.azure.net)")
	}

	if config.Credentials != nil {
		for _, field := range []string{CredTenantID, CredClientID, CredClientSecret} {
			if config.Credentials[field] == "" {
				return fmt.Errorf("%s is required in credentials and cannot be empty", field)
			}
		}
	} else {
		logger().Info().Msg("Azure credentials not provided, assuming alternative authentication method (e.g., Managed Identity)")
	}
	return nil
}

// validateGCPConfig validates GCP KMS configuration. KeyID holds the full resource name.
func validateGCPConfig(config types.SealerConfig) error {
	if config.KeyID == "" {
		return fmt.Errorf("resource name is required")
	}
	// projects/{project}/locations/{location}/keyRings/{keyRing}/cryptoKeys/{cryptoKey}
	parts := strings.Split(config.KeyID, "/")
	if len(parts) != 8 || parts[0] != "projects" || parts[2] != "locations" || parts[4] != "keyRings" || parts[6] != "cryptoKeys" {
		return fmt.Errorf("invalid resource name format. Expected: projects/{project}/locations/{location}/keyRings/{keyRing}/cryptoKeys/{cryptoKey}")
	}
	if parts[1] == "" || parts[3] == "" || parts[5] == "" || parts[7] == "" {
		return fmt.Errorf("project, location, keyRing, and cryptoKey components in resource name cannot be empty")
	}

	if config.Credentials != nil {
		if config.Credentials[CredCredentialsJSON] == "" {
			return fmt.Errorf("credentialsJson is required in credentials map and cannot be empty")
		}
	} else {
		logger().Info().Msg("GCP credentials map not provided in config, assuming Application Default Credentials (ADC).")
	}
	return nil
}

// validateVaultConfig validates HashiCorp Vault configuration
func validateVaultConfig(config types.SealerConfig) error {
	if config.KeyID == "" {
		return fmt.Errorf("key ID (key name) is required")
	}
	if config.VaultAddress == "" {
		return fmt.Errorf("vault address is required")
	}

	if config.Credentials != nil {
		if config.Credentials[CredToken] == "" {
			return fmt.Errorf("token is required in credentials map and cannot be empty")
		}
	} else {
		logger().Info().Msg("Vault token not provided in config, assuming VAULT_TOKEN environment variable or other auth method")
	}
	return nil
}

// createAWSWrapper creates an AWS KMS wrapper
func createAWSWrapper(ctx context.Context, config types.SealerConfig) (wrapping.Wrapper, error) {
	wrapper := awskms.NewWrapper()

	configMap := map[string]string{
		"kms_key_id": config.KeyID,
		"region":     config.Region,
	}
	if v := config.Credentials[CredAccessKeyID]; v != "" {
		configMap["access_key"] = v
	}
	if v := config.Credentials[CredSecretAccessKey]; v != "" {
		configMap["secret_key"] = v
	}
	if v := config.Credentials[CredSessionToken]; v != "" {
		configMap["session_token"] = v
	}

	if _, err := wrapper.SetConfig(ctx, wrapping.WithConfigMap(configMap)); err != nil {
		return nil, fmt.Errorf("failed to configure AWS KMS wrapper: %w", err)
	}
	return wrapper, nil
}

// azureKeyParts splits https://myvault.vault.azure.net/keys/mykey/version into vault, key name and version
func azureKeyParts(keyID, vaultAddress string) (vaultName, keyName, keyVersion string) {
	keyName = keyID
	parts := strings.Split(keyID, "/")
	if len(parts) >= 5 && parts[3] == "keys" {
		keyName = parts[4]
		if len(parts) >= 6 {
			keyVersion = parts[5]
		}
	} else {
		logger().Warn().Str("keyId", keyID).Msg("Azure KeyID does not look like a standard Key Identifier URL. Using the full value as key_name.")
	}
	vaultName = strings.Split(strings.TrimPrefix(vaultAddress, "https://"), ".")[0]
	return vaultName, keyName, keyVersion
}

// createAzureWrapper creates an Azure Key Vault wrapper
func createAzureWrapper(ctx context.Context, config types.SealerConfig) (wrapping.Wrapper, error) {
	wrapper := azurekeyvault.NewWrapper()

	vaultName, keyName, keyVersion := azureKeyParts(config.KeyID, config.VaultAddress)
	configMap := map[string]string{
		"key_name":   keyName,
		"vault_name": vaultName,
		"vault_url":  config.VaultAddress,
	}
	if keyVersion != "" {
		configMap["key_version"] = keyVersion
	}
	if config.Credentials != nil {
		configMap["tenant_id"] = config.Credentials[CredTenantID]
		configMap["client_id"] = config.Credentials[CredClientID]
		configMap["client_secret"] = config.Credentials[CredClientSecret]
	}

	if _, err := wrapper.SetConfig(ctx, wrapping.WithConfigMap(configMap)); err != nil {
		return nil, fmt.Errorf("failed to configure Azure Key Vault wrapper: %w", err)
	}
	return wrapper, nil
}

// createGCPWrapper creates a Google Cloud KMS wrapper
func createGCPWrapper(ctx context.Context, config types.SealerConfig) (wrapping.Wrapper, error) {
	wrapper := gcpckms.NewWrapper()

	parts := strings.Split(config.KeyID, "/")
	configMap := map[string]string{
		"project":    parts[1],
		"region":     parts[3],
		"key_ring":   parts[5],
		"crypto_key": parts[7],
	}

	// The library reads credentials from a file path
	if credsJSON := config.Credentials[CredCredentialsJSON]; credsJSON != "" {
		tempFile, err := os.CreateTemp("", "gcp-creds-*.json")
		if err != nil {
			return nil, fmt.Errorf("failed to create temporary credentials file: %w", err)
		}
		defer func() {
			if err := os.Remove(tempFile.Name()); err != nil {
				logger().Error().Err(err).Str("filePath", tempFile.Name()).Msg("Failed to remove temporary credentials file")
			}
		}()

		if _, err := tempFile.WriteString(credsJSON); err != nil {
			_ = tempFile.Close()
			return nil, fmt.Errorf("failed to write credentials to temporary file: %w", err)
		}
		if err := tempFile.Close(); err != nil {
			logger().Error().Err(err).Str("filePath", tempFile.Name()).Msg("Failed to close temporary credentials file after successful write")
		}
		configMap["credentials"] = tempFile.Name()
	}

	if _, err := wrapper.SetConfig(ctx, wrapping.WithConfigMap(configMap)); err != nil {
		return nil, fmt.Errorf("failed to configure GCP KMS wrapper: %w", err)
	}
	return wrapper, nil
}

// createVaultWrapper creates a HashiCorp Vault Transit wrapper
func createVaultWrapper(ctx context.Context, config types.SealerConfig) (wrapping.Wrapper, error) {
	wrapper := transit.NewWrapper()

	configMap := map[string]string{
		"address":  config.VaultAddress,
		"key_name": config.KeyID,
	}
	if config.VaultMount != "" {
		configMap["mount_path"] = config.VaultMount
	}
	if token := config.Credentials[CredToken]; token != "" {
		configMap["token"] = token
	}

	if _, err := wrapper.SetConfig(ctx, wrapping.WithConfigMap(configMap)); err != nil {
		return nil, fmt.Errorf("failed to configure Vault Transit wrapper: %w", err)
	}
	return wrapper, nil
}
