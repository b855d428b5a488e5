// Package credentials encrypts, decrypts and masks KMS credentials held in configuration
package credentials

import (
	"fmt"
	"sort"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/root-sector-ltd-and-co-kg/healthchain-access-ledger/interfaces"
	"github.com/root-sector-ltd-and-co-kg/healthchain-access-ledger/kms"
	"github.com/root-sector-ltd-and-co-kg/healthchain-access-ledger/kms/credentials/symmetric"
	"github.com/root-sector-ltd-and-co-kg/healthchain-access-ledger/types"
)

// MaskedValue replaces secrets in printable configuration
const MaskedValue = "[MASKED]"

// logger derives from the global logger on each call so it follows runtime log configuration
func logger() *zerolog.Logger {
	l := log.With().Str("component", "kms_credentials").Logger()
	return &l
}

// providerFields lists the credential keys each provider accepts
var providerFields = map[types.ProviderType][]string{
	types.ProviderAWS:   {kms.CredAccessKeyID, kms.CredSecretAccessKey, kms.CredSessionToken},
	types.ProviderAzure: {kms.CredTenantID, kms.CredClientID, kms.CredClientSecret},
	types.ProviderGCP:   {kms.CredCredentialsJSON},
	types.ProviderVault: {kms.CredToken},
	types.ProviderAead:  {},
}

// credentialManager implements interfaces.CredentialsManager
type credentialManager struct {
	encryptor interfaces.SymmetricEncryptor
}

var _ interfaces.CredentialsManager = (*credentialManager)(nil)

// NewManager creates a credential manager from a raw encryption key
func NewManager(encryptionKey []byte) (interfaces.CredentialsManager, error) {
	encryptor, err := symmetric.NewEncryption(encryptionKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create encryptor: %w", err)
	}
	return &credentialManager{encryptor: encryptor}, nil
}

// NewManagerFromBase64 creates a credential manager from a base64 encoded key
func NewManagerFromBase64(encoded string) (interfaces.CredentialsManager, error) {
	encryptor, err := symmetric.NewEncryptionFromBase64(encoded)
	if err != nil {
		return nil, fmt.Errorf("failed to create encryptor: %w", err)
	}
	return &credentialManager{encryptor: encryptor}, nil
}

func fieldsFor(provider types.ProviderType) ([]string, error) {
	fields, ok := providerFields[provider]
	if !ok {
		return nil, fmt.Errorf("unsupported provider type: %q", provider)
	}
	return fields, nil
}

// EncryptCredentials encrypts every known credential of the configured provider.
// Empty and masked values are dropped; unknown keys are rejected.
func (m *credentialManager) EncryptCredentials(config *types.SealerConfig) error {
	if config == nil || config.Credentials == nil {
		return nil
	}
	fields, err := fieldsFor(config.Provider)
	if err != nil {
		return err
	}
	if err := rejectUnknown(config.Credentials, fields); err != nil {
		return err
	}

	encrypted := make(map[string]string, len(fields))
	for _, field := range fields {
		value := config.Credentials[field]
		if value == "" || value == MaskedValue {
			continue
		}
		sealed, err := m.encryptor.Encrypt(value)
		if err != nil {
			return fmt.Errorf("failed to encrypt %s %s: %w", config.Provider, field, err)
		}
		encrypted[field] = sealed
	}
	config.Credentials = encrypted
	return nil
}

// DecryptCredentials decrypts credential envelopes in place. Plain values pass through.
func (m *credentialManager) DecryptCredentials(config *types.SealerConfig) error {
	if config == nil || config.Credentials == nil {
		return nil
	}
	if config.Provider == types.ProviderNone {
		return fmt.Errorf("provider type is required for decryption")
	}
	fields, err := fieldsFor(config.Provider)
	if err != nil {
		return err
	}

	decrypted := make(map[string]string, len(fields))
	status := make(map[string]bool, len(fields))
	for _, field := range fields {
		value := config.Credentials[field]
		if value == "" || value == MaskedValue {
			status[field] = false
			continue
		}
		plain, err := m.encryptor.Decrypt(value)
		if err != nil {
			logger().Error().Err(err).Str("field", field).Msg("Failed to decrypt credential field")
			return fmt.Errorf("failed to decrypt %s %s: %w", config.Provider, field, err)
		}
		decrypted[field] = plain
		status[field] = true
	}
	config.Credentials = decrypted

	logger().Debug().
		Str("provider", string(config.Provider)).
		Interface("credentialStatus", status).
		Msg("Credentials decrypted successfully")
	return nil
}

// MaskCredentials returns a copy of config with every secret replaced by MaskedValue
func (m *credentialManager) MaskCredentials(config types.SealerConfig) types.SealerConfig {
	return Mask(config)
}

// Mask returns a copy of config with credentials, passphrase and raw keys masked
func Mask(config types.SealerConfig) types.SealerConfig {
	masked := config
	if config.Credentials != nil {
		masked.Credentials = make(map[string]string, len(config.Credentials))
		for k, v := range config.Credentials {
			if v != "" {
				masked.Credentials[k] = MaskedValue
			}
		}
	}
	if masked.Passphrase != "" {
		masked.Passphrase = MaskedValue
	}
	if masked.AeadKeyBase64 != "" {
		masked.AeadKeyBase64 = MaskedValue
	}
	if masked.CredentialsKeyBase64 != "" {
		masked.CredentialsKeyBase64 = MaskedValue
	}
	return masked
}

func rejectUnknown(credentials map[string]string, fields []string) error {
	allowed := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		allowed[f] = struct{}{}
	}
	var unknown []string
	for k := range credentials {
		if _, ok := allowed[k]; !ok {
			unknown = append(unknown, k)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return fmt.Errorf("unknown credential fields for provider: %v", unknown)
	}
	return nil
}
