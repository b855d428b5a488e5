package credentials

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/root-sector-ltd-and-co-kg/healthchain-access-ledger/kms"
	"github.com/root-sector-ltd-and-co-kg/healthchain-access-ledger/kms/credentials/symmetric"
	"github.com/root-sector-ltd-and-co-kg/healthchain-access-ledger/types"
)

func testKey() []byte {
	key := make([]byte, symmetric.KeySize)
	for i := range key {
		key[i] = byte(i*13 + 1)
	}
	return key
}

func newTestManager(t *testing.T) *credentialManager {
	t.Helper()
	m, err := NewManager(testKey())
	require.NoError(t, err)
	return m.(*credentialManager)
}

func TestEncryptDecryptCredentials(t *testing.T) {
	tests := []struct {
		name        string
		provider    types.ProviderType
		credentials map[string]string
	}{
		{
			name:     "aws",
			provider: types.ProviderAWS,
			credentials: map[string]string{
				kms.CredAccessKeyID:     "AKIA...",
				kms.CredSecretAccessKey: "SECRET...",
				kms.CredSessionToken:    "SESSION...",
			},
		},
		{
			name:     "azure",
			provider: types.ProviderAzure,
			credentials: map[string]string{
				kms.CredTenantID:     "TENANT",
				kms.CredClientID:     "CLIENT",
				kms.CredClientSecret: "SECRET",
			},
		},
		{
			name:        "gcp",
			provider:    types.ProviderGCP,
			credentials: map[string]string{kms.CredCredentialsJSON: `{"project_id":"p"}`},
		},
		{
			name:        "vault",
			provider:    types.ProviderVault,
			credentials: map[string]string{kms.CredToken: "VAULT_TOKEN"},
		},
	}

	m := newTestManager(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			original := make(map[string]string, len(tt.credentials))
			for k, v := range tt.credentials {
				original[k] = v
			}
			config := &types.SealerConfig{Provider: tt.provider, Credentials: tt.credentials}

			require.NoError(t, m.EncryptCredentials(config))
			require.Len(t, config.Credentials, len(original))
			for k, v := range config.Credentials {
				assert.True(t, symmetric.IsEncrypted(v), "field %s not encrypted", k)
				assert.NotEqual(t, original[k], v)
			}

			require.NoError(t, m.DecryptCredentials(config))
			assert.Equal(t, original, config.Credentials)
		})
	}
}

func TestEncryptCredentialsDropsEmptyAndMasked(t *testing.T) {
	m := newTestManager(t)
	config := &types.SealerConfig{
		Provider: types.ProviderAWS,
		Credentials: map[string]string{
			kms.CredAccessKeyID:     "AKIA...",
			kms.CredSecretAccessKey: MaskedValue,
			kms.CredSessionToken:    "",
		},
	}

	require.NoError(t, m.EncryptCredentials(config))
	assert.Len(t, config.Credentials, 1)
	assert.Contains(t, config.Credentials, kms.CredAccessKeyID)
}

func TestEncryptCredentialsRejectsUnknownFields(t *testing.T) {
	m := newTestManager(t)
	config := &types.SealerConfig{
		Provider:    types.ProviderVault,
		Credentials: map[string]string{kms.CredToken: "t", kms.CredClientSecret: "s"},
	}

	err := m.EncryptCredentials(config)
	require.Error(t, err)
	assert.Contains(t, err.Error(), kms.CredClientSecret)
}

func TestCredentialsNilConfig(t *testing.T) {
	m := newTestManager(t)
	assert.NoError(t, m.EncryptCredentials(nil))
	assert.NoError(t, m.DecryptCredentials(nil))
	assert.NoError(t, m.EncryptCredentials(&types.SealerConfig{Provider: types.ProviderAWS}))
}

func TestDecryptCredentialsErrors(t *testing.T) {
	m := newTestManager(t)

	err := m.DecryptCredentials(&types.SealerConfig{Credentials: map[string]string{kms.CredToken: "x"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "provider type is required")

	err = m.DecryptCredentials(&types.SealerConfig{Provider: "other", Credentials: map[string]string{}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported provider type")

	err = m.DecryptCredentials(&types.SealerConfig{
		Provider:    types.ProviderVault,
		Credentials: map[string]string{kms.CredToken: "ENC[bm90LXJlYWxseS1zZWFsZWQtYnl0ZXMtaGVyZQ==]"},
	})
	assert.Error(t, err)
}

func TestDecryptCredentialsPassesPlainValues(t *testing.T) {
	m := newTestManager(t)
	config := &types.SealerConfig{
		Provider:    types.ProviderVault,
		Credentials: map[string]string{kms.CredToken: "plain-token"},
	}
	require.NoError(t, m.DecryptCredentials(config))
	assert.Equal(t, "plain-token", config.Credentials[kms.CredToken])
}

func TestMaskCredentials(t *testing.T) {
	config := types.SealerConfig{
		Provider:             types.ProviderAead,
		KeyID:                "local-1",
		Passphrase:           "hunter2",
		AeadKeyBase64:        "a2V5",
		CredentialsKeyBase64: "a2V5",
		Credentials:          map[string]string{kms.CredToken: "secret", "empty": ""},
	}

	masked := newTestManager(t).MaskCredentials(config)
	assert.Equal(t, "local-1", masked.KeyID)
	assert.Equal(t, MaskedValue, masked.Passphrase)
	assert.Equal(t, MaskedValue, masked.AeadKeyBase64)
	assert.Equal(t, MaskedValue, masked.CredentialsKeyBase64)
	assert.Equal(t, map[string]string{kms.CredToken: MaskedValue}, masked.Credentials)

	// Original untouched
	assert.Equal(t, "secret", config.Credentials[kms.CredToken])
	assert.Equal(t, "hunter2", config.Passphrase)
}

func TestNewManagerFromBase64(t *testing.T) {
	_, err := NewManagerFromBase64(base64.StdEncoding.EncodeToString(testKey()))
	assert.NoError(t, err)

	_, err = NewManagerFromBase64(base64.StdEncoding.EncodeToString(make([]byte, 32)))
	assert.Error(t, err)

	_, err = NewManager([]byte("short"))
	assert.Error(t, err)
}
